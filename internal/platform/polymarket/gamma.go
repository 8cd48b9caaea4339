package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hedgeworks/crossarb/internal/domain"
)

// GetSettlementStatus implements domain.VenueClient. A market that is closed
// but names no winning token reports Resolved with an empty Winner; the
// reconciler treats that as an unusable answer.
func (c *Client) GetSettlementStatus(ctx context.Context, marketID string) (domain.SettlementStatus, error) {
	m, err := c.fetchMarket(ctx, marketID)
	if err != nil {
		return domain.SettlementStatus{}, fmt.Errorf("polymarket: settlement %s: %w", marketID, err)
	}

	if !m.Closed {
		return domain.SettlementStatus{}, nil
	}

	return domain.SettlementStatus{Resolved: true, Winner: m.winner()}, nil
}

// resolveToken maps a market outcome to its CLOB token ID, matching the
// outcome code first and the display name second, case-insensitively.
// Resolved mappings are cached; token IDs never change for a market.
func (c *Client) resolveToken(ctx context.Context, marketID, code, name string) (string, error) {
	c.tokenMu.Lock()
	byOutcome, ok := c.tokens[marketID]
	c.tokenMu.Unlock()

	if !ok {
		m, err := c.fetchMarket(ctx, marketID)
		if err != nil {
			return "", err
		}

		byOutcome = make(map[string]string)
		for _, t := range m.outcomeTokens() {
			byOutcome[strings.ToLower(t.Outcome)] = t.TokenID
		}
		if len(byOutcome) == 0 {
			return "", fmt.Errorf("market %s lists no outcome tokens", marketID)
		}

		c.tokenMu.Lock()
		c.tokens[marketID] = byOutcome
		c.tokenMu.Unlock()
	}

	if id, ok := byOutcome[strings.ToLower(code)]; ok {
		return id, nil
	}
	if id, ok := byOutcome[strings.ToLower(name)]; ok {
		return id, nil
	}

	return "", fmt.Errorf("market %s has no outcome %q or %q: %w", marketID, code, name, domain.ErrNotFound)
}

// fetchMarket reads one market from the Gamma API.
func (c *Client) fetchMarket(ctx context.Context, marketID string) (gammaMarket, error) {
	body, err := c.doGamma(ctx, "/markets/"+url.PathEscape(marketID))
	if err != nil {
		return gammaMarket{}, err
	}

	var m gammaMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return gammaMarket{}, fmt.Errorf("decode market: %w", err)
	}

	return m, nil
}

// doGamma sends an unauthenticated GET to the Gamma API.
func (c *Client) doGamma(ctx context.Context, path string) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gammaURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}
