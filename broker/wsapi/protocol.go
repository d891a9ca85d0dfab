package wsapi

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Request and event names on the wire.
const (
	msgSSID          = "ssid"
	msgAuthenticated = "authenticated"
	msgSend          = "sendMessage"

	opBalance  = "get-balance"
	opCandles  = "get-candles"
	opPlace    = "digital-options.place-digital-option"
	opPosition = "digital-options.get-position"
)

// Response status codes.
const (
	statusOK       = 2000
	statusRejected = 4000
	statusNotFound = 4004
)

type envelope struct {
	Name      string          `json:"name"`
	RequestID string          `json:"request_id,omitempty"`
	Status    int             `json:"status,omitempty"`
	Msg       json.RawMessage `json:"msg,omitempty"`
}

type request struct {
	Name string `json:"name"`
	Body any    `json:"body,omitempty"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	SSID    string `json:"ssid"`
	Message string `json:"message,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
}

type balanceBody struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

type candlesRequest struct {
	Active string `json:"active"`
	Size   int    `json:"size"`
	Count  int    `json:"count"`
	To     int64  `json:"to"`
}

type wireCandle struct {
	From   int64   `json:"from"`
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Volume float64 `json:"volume"`
}

type candlesBody struct {
	Candles []wireCandle `json:"candles"`
}

type placeRequest struct {
	Instrument    string          `json:"instrument"`
	Direction     string          `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	ExpiryMinutes int             `json:"expiry_minutes"`
}

type placeBody struct {
	Accepted bool   `json:"accepted"`
	ID       string `json:"id"`
}

type positionRequest struct {
	ID string `json:"id"`
}

type positionBody struct {
	Closed bool            `json:"closed"`
	PnL    decimal.Decimal `json:"pnl"`
}
