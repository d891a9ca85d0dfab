// Package wsapi is a broker.Broker for a JSON-over-WebSocket brokerage
// gateway. A session token obtained over HTTP authenticates the socket;
// every request carries a request_id that its response echoes.
package wsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/evdnx/gobinary/broker"
	"github.com/evdnx/gobinary/logger"
	"github.com/evdnx/gobinary/types"
)

var (
	// ErrAuth is returned when the gateway refuses the credentials or token.
	ErrAuth = errors.New("wsapi: authentication failed")
	// ErrStatus wraps a non-OK response status.
	ErrStatus = errors.New("wsapi: request failed")
)

// Options configures the client.
type Options struct {
	URL      string // ws:// or wss:// endpoint
	AuthURL  string // login endpoint
	Email    string
	Password string

	RequestsPerSecond float64
	RequestTimeout    time.Duration

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// Client talks to the gateway over a single socket. Requests are
// serialized: write, then read until the matching response arrives.
type Client struct {
	opts    Options
	log     logger.Logger
	limiter *rate.Limiter

	mu   sync.Mutex
	conn *websocket.Conn
	ssid string
}

var _ broker.Broker = (*Client)(nil)

// New creates a disconnected client.
func New(opts Options, log logger.Logger) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.RequestTimeout}
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: opts.RequestTimeout}
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return &Client{opts: opts, log: log, limiter: lim}
}

// Connect logs in, dials the socket and authenticates it.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	ssid, err := c.login(ctx)
	if err != nil {
		return err
	}
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("wsapi: dial: %w", err)
	}
	if err := c.authenticate(ctx, conn, ssid); err != nil {
		return multierr.Append(err, conn.Close())
	}
	c.conn, c.ssid = conn, ssid
	c.log.Info("broker_connected", logger.String("url", c.opts.URL))
	return nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(loginRequest{Identifier: c.opts.Email, Password: c.opts.Password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.AuthURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("wsapi: login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("wsapi: login: %w", err)
	}
	defer resp.Body.Close()

	var body loginResponse
	decErr := json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: login status %d %s", ErrAuth, resp.StatusCode, body.Message)
	}
	if decErr != nil {
		return "", fmt.Errorf("wsapi: decode login: %w", decErr)
	}
	if body.SSID == "" {
		return "", fmt.Errorf("%w: empty session token", ErrAuth)
	}
	return body.SSID, nil
}

func (c *Client) authenticate(ctx context.Context, conn *websocket.Conn, ssid string) error {
	raw, _ := json.Marshal(ssid)
	if err := c.write(ctx, conn, envelope{Name: msgSSID, Msg: raw}); err != nil {
		return err
	}
	for {
		env, err := c.read(ctx, conn)
		if err != nil {
			return err
		}
		if env.Name != msgAuthenticated {
			continue
		}
		var ok bool
		if err := json.Unmarshal(env.Msg, &ok); err != nil || !ok {
			return ErrAuth
		}
		return nil
	}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close sends a close frame and drops the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	if errors.Is(err, websocket.ErrCloseSent) {
		err = nil
	}
	err = multierr.Append(err, c.conn.Close())
	c.conn = nil
	return err
}

func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	var out balanceBody
	if err := c.call(ctx, opBalance, nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Amount, nil
}

func (c *Client) Candles(ctx context.Context, instrument string, periodSeconds, count int, asOf time.Time) ([]types.Candle, error) {
	var out candlesBody
	req := candlesRequest{Active: instrument, Size: periodSeconds, Count: count, To: asOf.Unix()}
	if err := c.call(ctx, opCandles, req, &out); err != nil {
		return nil, err
	}
	candles := make([]types.Candle, len(out.Candles))
	for i, w := range out.Candles {
		candles[i] = types.Candle{
			Open:   w.Open,
			High:   w.Max,
			Low:    w.Min,
			Close:  w.Close,
			Volume: w.Volume,
			Time:   time.Unix(w.From, 0).UTC(),
		}
	}
	return candles, nil
}

func (c *Client) PlaceTrade(ctx context.Context, o types.Order) (bool, string, error) {
	var out placeBody
	req := placeRequest{
		Instrument:    o.Instrument,
		Direction:     o.Side.BrokerDirection(),
		Amount:        o.Stake,
		ExpiryMinutes: o.ExpiryMinutes,
	}
	err := c.call(ctx, opPlace, req, &out)
	var se *statusError
	if errors.As(err, &se) && se.code == statusRejected {
		c.log.Warn("order_refused_by_gateway", logger.String("reason", se.message))
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return out.Accepted && out.ID != "", out.ID, nil
}

func (c *Client) PollTradeResult(ctx context.Context, tradeID string) (bool, decimal.Decimal, error) {
	var out positionBody
	err := c.call(ctx, opPosition, positionRequest{ID: tradeID}, &out)
	var se *statusError
	if errors.As(err, &se) && se.code == statusNotFound {
		return false, decimal.Zero, broker.ErrUnknownTrade
	}
	if err != nil {
		return false, decimal.Zero, err
	}
	if !out.Closed {
		return false, decimal.Zero, nil
	}
	return true, out.PnL, nil
}

type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: status %d %s", ErrStatus, e.code, e.message)
}

func (e *statusError) Unwrap() error { return ErrStatus }

// call performs one request/response round trip. A transport failure
// drops the connection so the next Connect starts fresh.
func (c *Client) call(ctx context.Context, name string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return broker.ErrNotConnected
	}

	id := uuid.NewString()
	msg, err := json.Marshal(request{Name: name, Body: body})
	if err != nil {
		return err
	}
	if err := c.write(ctx, c.conn, envelope{Name: msgSend, RequestID: id, Msg: msg}); err != nil {
		c.drop(name, err)
		return err
	}
	for {
		env, err := c.read(ctx, c.conn)
		if err != nil {
			c.drop(name, err)
			return err
		}
		if env.RequestID != id {
			c.log.Debug("ws_message_skipped", logger.String("name", env.Name))
			continue
		}
		if env.Status != statusOK {
			var eb errorBody
			_ = json.Unmarshal(env.Msg, &eb)
			return &statusError{code: env.Status, message: eb.Message}
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(env.Msg, out); err != nil {
			return fmt.Errorf("wsapi: decode %s: %w", name, err)
		}
		return nil
	}
}

func (c *Client) drop(op string, cause error) {
	c.log.Warn("ws_connection_dropped", logger.String("op", op), logger.Err(cause))
	_ = c.conn.Close()
	c.conn = nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.opts.RequestTimeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

func (c *Client) write(ctx context.Context, conn *websocket.Conn, env envelope) error {
	if err := conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return fmt.Errorf("wsapi: write: %w", err)
	}
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("wsapi: write: %w", err)
	}
	return nil
}

func (c *Client) read(ctx context.Context, conn *websocket.Conn) (envelope, error) {
	var env envelope
	if err := conn.SetReadDeadline(c.deadline(ctx)); err != nil {
		return env, fmt.Errorf("wsapi: read: %w", err)
	}
	if err := conn.ReadJSON(&env); err != nil {
		return env, fmt.Errorf("wsapi: read: %w", err)
	}
	return env, nil
}
