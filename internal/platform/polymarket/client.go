// Package polymarket implements the Polymarket venue client. Orders go to
// the CLOB API with EIP-712 signatures and HMAC request auth; settlement and
// outcome-token lookups come from the Gamma API.
package polymarket

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hedgeworks/crossarb/internal/crypto"
	"github.com/hedgeworks/crossarb/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	orderTypeGTC   = "GTC"
	// taker for open orders; a non-zero taker makes a private fill.
	publicTaker = "0x0000000000000000000000000000000000000000"
	// limiterKey buckets all Polymarket calls under one rate-limit window.
	limiterKey = "polymarket"
)

// Client talks to the Polymarket CLOB and Gamma APIs and satisfies
// domain.VenueClient.
type Client struct {
	clobURL    string
	gammaURL   string
	httpClient *http.Client
	signer     *crypto.Signer

	mu   sync.Mutex
	auth *crypto.HMACAuth

	limiter domain.RateLimiter

	tokenMu sync.Mutex
	tokens  map[string]map[string]string // marketID → lower(outcome) → tokenID
}

// NewClient creates a Polymarket client.
//
// clobURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// gammaURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
// signer holds the wallet key that funds and signs every order.
func NewClient(clobURL, gammaURL string, signer *crypto.Signer) *Client {
	return &Client{
		clobURL:  strings.TrimRight(clobURL, "/"),
		gammaURL: strings.TrimRight(gammaURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		signer: signer,
		tokens: make(map[string]map[string]string),
	}
}

// SetCredentials installs API credentials obtained out of band, skipping the
// derive flow on startup.
func (c *Client) SetCredentials(auth *crypto.HMACAuth) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = auth
}

// SetRateLimiter installs a shared limiter consulted before every API call.
func (c *Client) SetRateLimiter(l domain.RateLimiter) {
	c.limiter = l
}

// Venue implements domain.VenueClient.
func (c *Client) Venue() domain.Venue {
	return domain.VenuePolymarket
}

// EnsureCredentials makes sure the client holds HMAC credentials, deriving
// them from the wallet signature when none were installed. Existing wallets
// derive; first-time wallets need a create call.
func (c *Client) EnsureCredentials(ctx context.Context) error {
	if c.credentials() != nil {
		return nil
	}
	if err := c.DeriveAPIKey(ctx); err == nil {
		return nil
	}
	return c.CreateAPIKey(ctx)
}

// DeriveAPIKey signs a ClobAuth message and exchanges it for the HMAC
// credentials bound to the wallet.
func (c *Client) DeriveAPIKey(ctx context.Context) error {
	return c.fetchCredentials(ctx, http.MethodGet, "/auth/derive-api-key")
}

// CreateAPIKey registers new HMAC credentials for a wallet that has none.
func (c *Client) CreateAPIKey(ctx context.Context) error {
	return c.fetchCredentials(ctx, http.MethodPost, "/auth/api-key")
}

// PlaceOrder implements domain.VenueClient. It resolves the outcome token,
// builds and signs a GTC limit order, and submits it. A venue-side rejection
// comes back as an unsuccessful result, not an error.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	auth := c.credentials()
	if auth == nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket: place order: %w: no API credentials", domain.ErrUnauthorized)
	}

	tokenID, err := c.resolveToken(ctx, req.MarketID, req.Outcome, req.OutcomeName)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket: place order: %w", err)
	}

	sideWire, sideCode := orderSide(req.Side)
	makerAmount, takerAmount := orderAmounts(req.Side, req.Price, req.Quantity)
	wallet := c.signer.Address().Hex()

	payload := crypto.OrderPayload{
		Salt:          newSalt(),
		Maker:         wallet,
		Signer:        wallet,
		Taker:         publicTaker,
		TokenID:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideCode,
		SignatureType: 0,
	}

	sig, err := c.signer.SignOrder(payload)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket: %w: %v", domain.ErrSigningFailed, err)
	}

	body := postOrderRequest{
		Order: orderJSON{
			Salt:          payload.Salt,
			Maker:         payload.Maker,
			Signer:        payload.Signer,
			Taker:         payload.Taker,
			TokenID:       payload.TokenID,
			MakerAmount:   payload.MakerAmount,
			TakerAmount:   payload.TakerAmount,
			Expiration:    payload.Expiration,
			Nonce:         payload.Nonce,
			FeeRateBps:    payload.FeeRateBps,
			Side:          sideWire,
			SignatureType: payload.SignatureType,
			Signature:     sig,
		},
		Owner:     auth.APIKey,
		OrderType: orderTypeGTC,
	}

	respBody, err := c.doClob(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket: post order: %w", err)
	}

	var resp postOrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket: decode order result: %w", err)
	}

	return domain.OrderResult{
		Success: resp.Success,
		OrderID: resp.OrderID,
		Status:  orderStatus(resp.Status, resp.Success),
		Message: resp.ErrorMsg,
	}, nil
}

// CancelOrder implements domain.VenueClient.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (domain.CancelResult, error) {
	body := map[string]string{"orderID": orderID}

	respBody, err := c.doClob(ctx, http.MethodDelete, "/order", body)
	if err != nil {
		return domain.CancelResult{}, fmt.Errorf("polymarket: cancel order %s: %w", orderID, err)
	}

	var resp cancelResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.CancelResult{}, fmt.Errorf("polymarket: decode cancel response: %w", err)
	}
	if !resp.Success {
		return domain.CancelResult{Message: resp.ErrorMsg},
			fmt.Errorf("polymarket: cancel order %s rejected: %s", orderID, resp.ErrorMsg)
	}

	return domain.CancelResult{Success: true, CancelledAt: time.Now().UTC()}, nil
}

// GetOrderStatus implements domain.VenueClient.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	respBody, err := c.doClob(ctx, http.MethodGet, "/order/"+orderID, nil)
	if err != nil {
		return domain.OrderStatus{}, fmt.Errorf("polymarket: get order %s: %w", orderID, err)
	}

	var o apiOrder
	if err := json.Unmarshal(respBody, &o); err != nil {
		return domain.OrderStatus{}, fmt.Errorf("polymarket: decode order: %w", err)
	}

	original, _ := strconv.ParseFloat(o.OriginalSize, 64)
	matched, _ := strconv.ParseFloat(o.SizeMatched, 64)
	remaining := original - matched
	if remaining < 0 {
		remaining = 0
	}

	return domain.OrderStatus{
		Status:    orderStatus(o.Status, true),
		Filled:    matched,
		Remaining: remaining,
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) credentials() *crypto.HMACAuth {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auth
}

// fetchCredentials runs one L1-authenticated call against an auth endpoint
// and installs the returned credentials.
func (c *Client) fetchCredentials(ctx context.Context, method, path string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	timestamp := time.Now().Unix()
	const nonce = int64(0)

	sig, err := c.signer.SignAuthMessage(timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket: %w: %v", domain.ErrSigningFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.clobURL+path, nil)
	if err != nil {
		return fmt.Errorf("polymarket: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", c.signer.Address().Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket: read auth response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return fmt.Errorf("polymarket: auth: %w", err)
	}

	var creds deriveKeyResponse
	if err := json.Unmarshal(respBody, &creds); err != nil {
		return fmt.Errorf("polymarket: decode auth response: %w", err)
	}
	if creds.APIKey == "" {
		return fmt.Errorf("polymarket: auth response carried no API key")
	}

	c.SetCredentials(&crypto.HMACAuth{
		APIKey:     creds.APIKey,
		Secret:     creds.Secret,
		Passphrase: creds.Passphrase,
	})

	return nil
}

// doClob builds, signs (HMAC), sends, and reads a CLOB API request.
func (c *Client) doClob(ctx context.Context, method, path string, body any) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	auth := c.credentials()
	if auth == nil {
		return nil, fmt.Errorf("%w: no API credentials", domain.ErrUnauthorized)
	}

	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.clobURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range auth.Headers(c.signer.Address().Hex(), method, path, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
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

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

// orderSide returns the wire spelling and the signed uint8 for a side.
func orderSide(s domain.OrderSide) (string, int) {
	if s == domain.OrderSideSell {
		return "SELL", 1
	}
	return "BUY", 0
}

// orderAmounts converts price and quantity to 6-decimal base units. On a buy
// the maker gives USDC and takes outcome tokens; on a sell the reverse.
func orderAmounts(side domain.OrderSide, price, quantity float64) (maker, taker string) {
	usdc := microUnits(price * quantity)
	shares := microUnits(quantity)
	if side == domain.OrderSideSell {
		return shares, usdc
	}
	return usdc, shares
}

// microUnits formats v as an integer count of 1e-6 units.
func microUnits(v float64) string {
	return strconv.FormatInt(int64(math.Round(v*1e6)), 10)
}

// orderStatus maps CLOB status strings onto the engine's vocabulary.
func orderStatus(status string, success bool) string {
	switch status {
	case "live", "open":
		return "open"
	case "matched", "filled":
		return "filled"
	case "delayed":
		return "pending"
	case "cancelled", "canceled":
		return "cancelled"
	}
	if success {
		return "pending"
	}
	return "failed"
}

// newSalt returns a random uint256-compatible decimal string. The salt only
// has to be unique per order; on the unreachable rand failure a nanosecond
// timestamp serves.
func newSalt() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return strconv.FormatUint(binary.BigEndian.Uint64(b[:]), 10)
}
