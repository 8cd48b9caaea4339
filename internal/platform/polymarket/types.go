package polymarket

import (
	"encoding/json"
	"strings"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether a flag is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// orderJSON is the signed order as the CLOB expects it on POST /order. The
// numeric fields stay strings end to end; Side is the wire spelling of the
// signed uint8.
type orderJSON struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"` // "BUY" or "SELL"
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// postOrderRequest is the full POST /order body.
type postOrderRequest struct {
	Order     orderJSON `json:"order"`
	Owner     string    `json:"owner"` // API key the order is managed under
	OrderType string    `json:"orderType"`
}

// postOrderResponse is the CLOB's answer to a placement.
type postOrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg,omitempty"`
	OrderID  string `json:"orderID,omitempty"`
	Status   string `json:"status,omitempty"`
}

// cancelResponse is the CLOB's answer to DELETE /order.
type cancelResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg,omitempty"`
}

// apiOrder is an order as returned by GET /order/{id}.
type apiOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
}

// deriveKeyResponse is the answer from the auth endpoints.
type deriveKeyResponse struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// gammaMarket is the subset of a Gamma market the client reads: resolution
// state and the outcome-token mapping. Outcomes and ClobTokenIDs arrive
// JSON-encoded inside strings; Tokens is populated by the CLOB-shaped
// responses instead.
type gammaMarket struct {
	ID           string       `json:"id"`
	Question     string       `json:"question"`
	Active       flexBool     `json:"active"`
	Closed       bool         `json:"closed"`
	Outcomes     string       `json:"outcomes"`
	ClobTokenIDs string       `json:"clobTokenIds"`
	Tokens       []gammaToken `json:"tokens"`
}

// gammaToken is one outcome token inside a market response.
type gammaToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// outcomeTokens returns outcome→tokenID pairs, preferring the explicit
// Tokens array and falling back to zipping the JSON-encoded string fields.
func (m *gammaMarket) outcomeTokens() []gammaToken {
	if len(m.Tokens) > 0 {
		return m.Tokens
	}

	var outcomes, ids []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
		return nil
	}
	if len(outcomes) != len(ids) {
		return nil
	}

	tokens := make([]gammaToken, 0, len(ids))
	for i := range ids {
		tokens = append(tokens, gammaToken{TokenID: ids[i], Outcome: outcomes[i]})
	}
	return tokens
}

// winner returns the winning outcome name, if the market reports one.
func (m *gammaMarket) winner() string {
	for _, t := range m.Tokens {
		if t.Winner {
			return t.Outcome
		}
	}
	return ""
}
