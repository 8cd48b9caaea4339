// Package kalshi implements the Kalshi venue client over the trade API.
// Every request is signed with RSA-PSS; each tradeable outcome is its own
// binary market, so arbitrage legs always trade the yes side of the market
// named by the leg's ticker.
package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hedgeworks/crossarb/internal/crypto"
	"github.com/hedgeworks/crossarb/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	// tradePrefix is part of every request path and of every signed message.
	tradePrefix = "/trade-api/v2"
	// limiterKey buckets all Kalshi calls under one rate-limit window.
	limiterKey = "kalshi"

	orderTypeLimit = "limit"
	orderSideYes   = "yes"
)

// Client talks to the Kalshi trade API and satisfies domain.VenueClient.
type Client struct {
	baseURL    string
	auth       *crypto.RSAAuth
	httpClient *http.Client

	limiter domain.RateLimiter
}

// NewClient creates a Kalshi client.
//
// baseURL is the host root, e.g. "https://api.elections.kalshi.com"; the
// trade API prefix is appended per request. auth carries the API key ID and
// the RSA key it was issued with.
func NewClient(baseURL string, auth *crypto.RSAAuth) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// SetRateLimiter installs a shared limiter consulted before every API call.
func (c *Client) SetRateLimiter(l domain.RateLimiter) {
	c.limiter = l
}

// Venue implements domain.VenueClient.
func (c *Client) Venue() domain.Venue {
	return domain.VenueKalshi
}

// PlaceOrder implements domain.VenueClient. The request's market ID is the
// Kalshi ticker; price converts to cents and quantity to whole contracts.
// An order the exchange refuses (insufficient balance, market closed) comes
// back as an unsuccessful result, not an error.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	count := int64(math.Round(req.Quantity))
	if count < 1 {
		return domain.OrderResult{}, fmt.Errorf("kalshi: place order: %w", domain.ErrInvalidQuantity)
	}
	price := centPrice(req.Price)

	action := "buy"
	if req.Side == domain.OrderSideSell {
		action = "sell"
	}

	body := orderRequest{
		Ticker:   req.MarketID,
		Action:   action,
		Side:     orderSideYes,
		Type:     orderTypeLimit,
		Count:    count,
		YesPrice: &price,
	}

	status, respBody, err := c.roundTrip(ctx, http.MethodPost, "/portfolio/orders", body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("kalshi: place order: %w", err)
	}

	// 400 and 409 are order-level refusals; everything else non-2xx is a
	// transport or auth failure.
	if status == http.StatusBadRequest || status == http.StatusConflict {
		return domain.OrderResult{
			Status:  "failed",
			Message: apiMessage(respBody),
		}, nil
	}
	if err := checkStatus(status, respBody); err != nil {
		return domain.OrderResult{}, fmt.Errorf("kalshi: place order: %w", err)
	}

	var resp orderEnvelope
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}

	if resp.Order.Status == "canceled" {
		return domain.OrderResult{
			OrderID: resp.Order.OrderID,
			Status:  "cancelled",
			Message: "order cancelled on arrival",
		}, nil
	}

	return domain.OrderResult{
		Success: true,
		OrderID: resp.Order.OrderID,
		Status:  orderStatus(resp.Order.Status),
		Filled:  resp.Order.filled(),
	}, nil
}

// CancelOrder implements domain.VenueClient.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (domain.CancelResult, error) {
	path := "/portfolio/orders/" + url.PathEscape(orderID)

	respBody, err := c.doSignedRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return domain.CancelResult{}, fmt.Errorf("kalshi: cancel order %s: %w", orderID, err)
	}

	var resp cancelEnvelope
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.CancelResult{}, fmt.Errorf("kalshi: decode cancel response: %w", err)
	}

	return domain.CancelResult{Success: true, CancelledAt: time.Now().UTC()}, nil
}

// GetOrderStatus implements domain.VenueClient.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	path := "/portfolio/orders/" + url.PathEscape(orderID)

	respBody, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.OrderStatus{}, fmt.Errorf("kalshi: get order %s: %w", orderID, err)
	}

	var resp orderEnvelope
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.OrderStatus{}, fmt.Errorf("kalshi: decode order: %w", err)
	}

	return domain.OrderStatus{
		Status:    orderStatus(resp.Order.Status),
		Filled:    resp.Order.filled(),
		Remaining: float64(resp.Order.RemainingCount),
	}, nil
}

// GetSettlementStatus implements domain.VenueClient. A settled market reports
// its winning outcome through the yes/no subtitles; a voided market counts as
// resolved with no usable winner.
func (c *Client) GetSettlementStatus(ctx context.Context, marketID string) (domain.SettlementStatus, error) {
	path := "/markets/" + url.PathEscape(marketID)

	respBody, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.SettlementStatus{}, fmt.Errorf("kalshi: get market %s: %w", marketID, err)
	}

	var resp marketEnvelope
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.SettlementStatus{}, fmt.Errorf("kalshi: decode market: %w", err)
	}

	m := resp.Market
	if !m.resolved() {
		return domain.SettlementStatus{}, nil
	}
	return domain.SettlementStatus{Resolved: true, Winner: m.winner()}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doSignedRequest round-trips a request and maps non-2xx statuses to errors.
func (c *Client) doSignedRequest(ctx context.Context, method, endpoint string, reqBody any) ([]byte, error) {
	status, respBody, err := c.roundTrip(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(status, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// roundTrip builds, signs, and sends one request against the trade API,
// returning the HTTP status and body. Only transport-level failures become
// errors here.
func (c *Client) roundTrip(ctx context.Context, method, endpoint string, reqBody any) (int, []byte, error) {
	if err := c.wait(ctx); err != nil {
		return 0, nil, err
	}
	if c.auth == nil {
		return 0, nil, fmt.Errorf("%w: no RSA credentials", domain.ErrUnauthorized)
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+tradePrefix+endpoint, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	// Query strings stay out of the signed message.
	signPath := tradePrefix + endpoint
	if i := strings.IndexByte(signPath, '?'); i >= 0 {
		signPath = signPath[:i]
	}
	headers, err := c.auth.Headers(method, signPath)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

// wait blocks on the shared rate limiter when one is installed.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx, limiterKey); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// checkStatus maps non-2xx status codes to domain errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := apiMessage(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}

// apiMessage extracts the structured error message from a response body,
// falling back to the raw body.
func apiMessage(body []byte) string {
	var apiErr errorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		if apiErr.Code != "" {
			return fmt.Sprintf("%s (%s)", apiErr.Message, apiErr.Code)
		}
		return apiErr.Message
	}
	return string(body)
}

// centPrice converts a native 0-1 price to cents, clamped to the exchange's
// 1-99 band.
func centPrice(price float64) int64 {
	cents := int64(math.Round(price * 100))
	if cents < 1 {
		cents = 1
	}
	if cents > 99 {
		cents = 99
	}
	return cents
}

// orderStatus maps trade API status strings onto the engine's vocabulary.
func orderStatus(status string) string {
	switch status {
	case "resting":
		return "open"
	case "executed":
		return "filled"
	case "pending":
		return "pending"
	case "canceled", "cancelled":
		return "cancelled"
	}
	return status
}
