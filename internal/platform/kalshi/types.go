package kalshi

// --------------------------------------------------------------------------
// Trade API DTOs
// --------------------------------------------------------------------------

// orderRequest is the POST /portfolio/orders body. Count is whole contracts;
// YesPrice is the limit price in cents (1-99).
type orderRequest struct {
	Ticker   string `json:"ticker"`
	Action   string `json:"action"` // "buy" or "sell"
	Side     string `json:"side"`   // "yes" or "no"
	Type     string `json:"type"`   // "limit" or "market"
	Count    int64  `json:"count"`
	YesPrice *int64 `json:"yes_price,omitempty"`
	NoPrice  *int64 `json:"no_price,omitempty"`
}

// apiOrder is an order as the trade API reports it.
type apiOrder struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
	Action         string `json:"action"`
	Side           string `json:"side"`
	YesPrice       int64  `json:"yes_price"`
	NoPrice        int64  `json:"no_price"`
	RemainingCount int64  `json:"remaining_count"`
	TakerFillCount int64  `json:"taker_fill_count"`
	MakerFillCount int64  `json:"maker_fill_count"`
}

// filled returns the number of contracts filled so far.
func (o *apiOrder) filled() float64 {
	return float64(o.TakerFillCount + o.MakerFillCount)
}

// orderEnvelope wraps the single-order responses.
type orderEnvelope struct {
	Order apiOrder `json:"order"`
}

// cancelEnvelope is the DELETE /portfolio/orders/{id} response.
type cancelEnvelope struct {
	Order     apiOrder `json:"order"`
	ReducedBy int64    `json:"reduced_by"`
}

// market is the subset of a market record the client reads: lifecycle state,
// the settled result, and the yes/no subtitles that name the outcome each
// side stands for.
type market struct {
	Ticker      string `json:"ticker"`
	Title       string `json:"title"`
	Status      string `json:"status"` // "open", "closed", "settled"
	Result      string `json:"result"` // "yes", "no", "void", "" while unsettled
	YesSubTitle string `json:"yes_sub_title"`
	NoSubTitle  string `json:"no_sub_title"`
}

// marketEnvelope wraps GET /markets/{ticker}.
type marketEnvelope struct {
	Market market `json:"market"`
}

// errorResponse is the trade API's structured error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --------------------------------------------------------------------------
// Settlement helpers
// --------------------------------------------------------------------------

// resolved reports whether the market has reached a terminal state.
func (m *market) resolved() bool {
	return m.Result != "" || m.Status == "settled"
}

// winner returns the identifier of the winning outcome. A yes result names
// the outcome the market asks about, via the yes subtitle; a no result names
// the opposite side. Void or missing results return an empty string, which
// the reconciler treats as an unusable answer.
func (m *market) winner() string {
	switch m.Result {
	case "yes":
		if m.YesSubTitle != "" {
			return m.YesSubTitle
		}
		return "yes"
	case "no":
		if m.NoSubTitle != "" {
			return m.NoSubTitle
		}
		return "no"
	}
	return ""
}
