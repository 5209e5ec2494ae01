// Package gatewayclient implements the bridge's connection to the agent
// gateway: a reconnecting, request/response-correlated, frame-typed
// full-duplex session client with a challenge-then-handshake protocol
//
package gatewayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/corvidlabs/missionbridge/internal/domain"
)

// Config configures a Client.
type Config struct {
	URL                  string
	Token                string
	ClientID             string
	ClientVersion        string
	Platform             string
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int // 0 = unlimited
	RequestTimeout       time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.ClientID == "" {
		c.ClientID = "missionbridge"
	}
	if c.ClientVersion == "" {
		c.ClientVersion = "dev"
	}
	if c.Platform == "" {
		c.Platform = "go"
	}
	return c
}

const challengeWaitTimeout = 1 * time.Second

// pendingRequest tracks one outstanding request() call.
type pendingRequest struct {
	resultCh chan requestResult
	timer    *time.Timer
}

type requestResult struct {
	value any
	err   error
}

// Client is a reconnecting gateway session client.
type Client struct {
	cfg      Config
	observer Observer
	dial     dialFunc

	mu                 sync.Mutex
	state              State
	conn               wsConn
	pumpDone           chan struct{}
	allowReconnect     bool
	reconnectAttempts  int
	lastConnectedAt    *time.Time
	lastDisconnectedAt *time.Time
	lastError          string
	helloSnapshot      *domain.GatewayFrame
	challengeNonce     string

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	reqCounter int64

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a Client. The client does nothing until Start is called.
func New(cfg Config, observer Observer) *Client {
	if observer == nil {
		observer = NoopObserver{}
	}
	return &Client{
		cfg:      cfg.withDefaults(),
		observer: observer,
		dial:     defaultDial,
		state:    StateIdle,
		pending:  make(map[string]*pendingRequest),
		closed:   make(chan struct{}),
	}
}

// SetObserver replaces the client's observer. Callers that need the
// observer itself to hold a reference to the client (the orchestrator's
// own Bridge type) must call this before Start.
func (c *Client) SetObserver(observer Observer) {
	if observer == nil {
		observer = NoopObserver{}
	}
	c.observer = observer
}

// Start begins the connect-and-reconnect loop in the background and
// returns immediately. Call Close to stop it.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	c.allowReconnect = true
	c.mu.Unlock()
	go c.runLoop(ctx)
}

func (c *Client) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}

		if err := c.connectOnce(ctx); err != nil {
			c.setLastError(err)
			c.observer.OnError(err)
			if !c.scheduleReconnect(ctx) {
				return
			}
			continue
		}

		// Connected: block until the transport goes away.
		c.readUntilClosed(ctx)

		c.mu.Lock()
		reconnect := c.allowReconnect
		c.lastDisconnectedAt = timePtr(time.Now())
		c.mu.Unlock()

		c.observer.OnDisconnected()

		if !reconnect {
			return
		}
		if !c.scheduleReconnect(ctx) {
			return
		}
	}
}

// scheduleReconnect transitions to Reconnecting, waits the capped
// exponential backoff delay, and reports whether the caller should retry
// (false means a fatal condition was reached and emitted).
func (c *Client) scheduleReconnect(ctx context.Context) bool {
	c.mu.Lock()
	if !c.allowReconnect {
		c.mu.Unlock()
		return false
	}
	c.state = StateReconnecting
	c.reconnectAttempts++
	attempts := c.reconnectAttempts
	maxAttempts := c.cfg.MaxReconnectAttempts
	c.mu.Unlock()

	if maxAttempts > 0 && attempts >= maxAttempts {
		err := fmt.Errorf("gateway client: exceeded max reconnect attempts (%d)", maxAttempts)
		c.setLastError(err)
		c.observer.OnFatal(err)
		return false
	}

	delay := reconnectDelay(c.cfg.ReconnectInterval, attempts)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.closed:
		return false
	}
}

// reconnectDelay computes min(interval * 2^(attempts-1), 60s).
func reconnectDelay(interval time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	factor := math.Pow(2, float64(attempts-1))
	delay := time.Duration(float64(interval) * factor)
	maxDelay := 60 * time.Second
	if delay > maxDelay || delay <= 0 {
		return maxDelay
	}
	return delay
}

// connectOnce performs one Idle/Reconnecting -> Connected attempt: dial,
// authenticate, and on success transition to Connected and emit OnConnected.
func (c *Client) connectOnce(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateOpening
	c.mu.Unlock()

	conn, err := c.dial(ctx, c.cfg.URL)
	if err != nil {
		return fmt.Errorf("open gateway transport: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateAuthenticating
	c.mu.Unlock()

	frameCh := make(chan domain.GatewayFrame, 64)
	readErrCh := make(chan error, 1)
	pumpDone := make(chan struct{})
	c.mu.Lock()
	c.pumpDone = pumpDone
	c.mu.Unlock()
	go c.pump(ctx, conn, frameCh, readErrCh, pumpDone)

	hello, err := c.authenticate(ctx, frameCh, readErrCh)
	if err != nil {
		_ = conn.CloseNow()
		return err
	}

	c.mu.Lock()
	c.state = StateConnected
	c.reconnectAttempts = 0
	c.lastConnectedAt = timePtr(time.Now())
	c.helloSnapshot = &hello
	c.mu.Unlock()

	c.observer.OnConnected(hello)

	// Keep consuming frames from the pump for the remainder of the
	// connection's life; authenticate() only peeked at frameCh during the
	// handshake window.
	go c.dispatchLoop(frameCh, readErrCh)

	return nil
}

// authenticate runs the challenge-then-connect handshake. It
// consumes frames from frameCh until it has a hello snapshot or an error;
// remaining (non-consumed) frames stay available for dispatchLoop since
// frameCh is shared and buffered.
func (c *Client) authenticate(ctx context.Context, frameCh <-chan domain.GatewayFrame, readErrCh <-chan error) (domain.GatewayFrame, error) {
	// Wait briefly for an optional connect.challenge event.
	challengeTimer := time.NewTimer(challengeWaitTimeout)
	defer challengeTimer.Stop()
waitChallenge:
	for {
		select {
		case frame := <-frameCh:
			c.handleFrame(frame)
			if frame.Type == domain.FrameTypeEvent && frame.Event == "connect.challenge" {
				break waitChallenge
			}
			continue
		case <-challengeTimer.C:
			break waitChallenge
		case err := <-readErrCh:
			return domain.GatewayFrame{}, err
		case <-ctx.Done():
			return domain.GatewayFrame{}, ctx.Err()
		}
	}

	params := map[string]any{
		"minProtocol": 3,
		"maxProtocol": 3,
		"client": map[string]any{
			"id":       c.cfg.ClientID,
			"version":  c.cfg.ClientVersion,
			"platform": c.cfg.Platform,
			"mode":     "operator",
		},
		"role":   "operator",
		"scopes": []string{"operator.read"},
		"auth":   map[string]any{"token": c.cfg.Token},
	}

	connID := c.nextRequestID()
	connResultCh := make(chan requestResult, 1)
	if err := c.sendRequestFrame(ctx, connID, "connect", params, connResultCh, c.cfg.RequestTimeout); err != nil {
		return domain.GatewayFrame{}, err
	}

	var helloFromConnect *domain.GatewayFrame
	for {
		select {
		case res := <-connResultCh:
			if res.err != nil {
				return domain.GatewayFrame{}, fmt.Errorf("connect request failed: %w", res.err)
			}
			if hello, ok := extractHelloFromResult(res.value); ok {
				return hello, nil
			}
			helloFromConnect = &domain.GatewayFrame{} // connect succeeded; wait for separate hello-ok below
		case frame := <-frameCh:
			c.handleFrame(frame)
			if frame.Type == domain.FrameTypeHelloOK {
				return frame, nil
			}
		case err := <-readErrCh:
			return domain.GatewayFrame{}, err
		case <-ctx.Done():
			return domain.GatewayFrame{}, ctx.Err()
		}

		if helloFromConnect != nil {
			// connect succeeded without an embedded hello; give the
			// separate hello-ok frame a short window to arrive.
			select {
			case frame := <-frameCh:
				c.handleFrame(frame)
				if frame.Type == domain.FrameTypeHelloOK {
					return frame, nil
				}
			case err := <-readErrCh:
				return domain.GatewayFrame{}, err
			case <-time.After(c.cfg.RequestTimeout):
				return domain.GatewayFrame{}, errors.New("gateway connect: no hello-ok received")
			case <-ctx.Done():
				return domain.GatewayFrame{}, ctx.Err()
			}
		}
	}
}

// handleFrame applies the non-response side-effects of frame dispatch
// (nonce capture, challenge/hello observer calls) during the handshake
// window, before dispatchLoop takes over for the life of the connection.
func (c *Client) handleFrame(frame domain.GatewayFrame) {
	switch frame.Type {
	case domain.FrameTypeEvent:
		if frame.Event == "connect.challenge" {
			nonce := extractNonce(frame.Payload)
			c.mu.Lock()
			c.challengeNonce = nonce
			c.mu.Unlock()
			c.observer.OnChallenge(nonce)
		}
	case domain.FrameTypeResponse:
		c.resolvePending(frame)
	case domain.FrameTypeHelloOK:
		c.observer.OnHello(frame)
	}
}

// dispatchLoop consumes frames for the lifetime of a Connected session.
func (c *Client) dispatchLoop(frameCh <-chan domain.GatewayFrame, readErrCh <-chan error) {
	for {
		select {
		case frame, ok := <-frameCh:
			if !ok {
				return
			}
			c.dispatch(frame)
		case <-readErrCh:
			return
		case <-c.closed:
			return
		}
	}
}

// dispatch applies the full frame-dispatch rules.
func (c *Client) dispatch(frame domain.GatewayFrame) {
	switch frame.Type {
	case domain.FrameTypeResponse:
		c.resolvePending(frame)
	case domain.FrameTypeEvent:
		if frame.Event == "connect.challenge" {
			nonce := extractNonce(frame.Payload)
			c.mu.Lock()
			c.challengeNonce = nonce
			c.mu.Unlock()
			c.observer.OnChallenge(nonce)
		}
		c.observer.OnEvent(frame)
		if frame.Event == "presence" {
			if snapshot, ok := ParsePresencePayload(frame.Payload); ok {
				c.observer.OnPresence(snapshot)
			}
		}
	case domain.FrameTypeHelloOK:
		c.mu.Lock()
		c.helloSnapshot = &frame
		c.mu.Unlock()
		c.observer.OnHello(frame)
	}
}

// pump is the connection's sole reader: it reads frames off conn and
// forwards them to frameCh until the connection closes or errors, closing
// doneCh on exit so readUntilClosed can tell the transport is gone without
// reading it itself. On a transport error it emits to readErrCh once and
// returns; on a parse error it emits OnError and discards the frame.
func (c *Client) pump(ctx context.Context, conn wsConn, frameCh chan<- domain.GatewayFrame, readErrCh chan<- error, doneCh chan<- struct{}) {
	defer close(doneCh)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		frame, err := parseFrame(data)
		if err != nil {
			c.observer.OnError(err)
			continue
		}
		select {
		case frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// readUntilClosed blocks until pump reports the transport is gone (rather
// than reading conn itself, which would race pump for frames on the same
// connection), then rejects outstanding requests and tears it down.
func (c *Client) readUntilClosed(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	done := c.pumpDone
	c.mu.Unlock()
	if conn == nil {
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	case <-c.closed:
	}

	c.rejectAllPending(errors.New("connection closed"))
	_ = conn.CloseNow()
}

// Request issues a gateway RPC and waits for its response or timeout
//
func (c *Client) Request(ctx context.Context, method string, params any) (any, error) {
	c.mu.Lock()
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected {
		return nil, errors.New("not connected")
	}

	id := c.nextRequestID()
	resultCh := make(chan requestResult, 1)
	if err := c.sendRequestFrame(ctx, id, method, params, resultCh, c.cfg.RequestTimeout); err != nil {
		return nil, err
	}

	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

// sendRequestFrame installs a pending-request entry and writes the
// request frame. The install-then-write must be atomic with respect to
// the receive loop, which is why both
// steps happen here under pendingMu/writeMu rather than split across
// caller boundaries.
func (c *Client) sendRequestFrame(ctx context.Context, id, method string, params any, resultCh chan requestResult, timeout time.Duration) error {
	timer := time.AfterFunc(timeout, func() {
		if c.removePending(id) {
			select {
			case resultCh <- requestResult{err: fmt.Errorf("Gateway request timeout: %s", method)}:
			default:
			}
		}
	})

	c.pendingMu.Lock()
	c.pending[id] = &pendingRequest{resultCh: resultCh, timer: timer}
	c.pendingMu.Unlock()

	frame := domain.NewGatewayRequest(id, method, params)
	data, err := json.Marshal(frame)
	if err != nil {
		c.removePending(id)
		timer.Stop()
		return fmt.Errorf("marshal gateway request: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.removePending(id)
		timer.Stop()
		return errors.New("not connected")
	}

	c.writeMu.Lock()
	err = conn.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if err != nil {
		c.removePending(id)
		timer.Stop()
		return fmt.Errorf("write gateway request: %w", err)
	}
	return nil
}

func (c *Client) resolvePending(frame domain.GatewayFrame) {
	c.pendingMu.Lock()
	p, ok := c.pending[frame.ID]
	if ok {
		delete(c.pending, frame.ID)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}

	if frame.OK {
		value := frame.Result
		if value == nil {
			value = frame.Payload
		}
		select {
		case p.resultCh <- requestResult{value: value}:
		default:
		}
		return
	}

	msg := "Gateway error"
	if frame.Error != nil && frame.Error.Message != "" {
		msg = frame.Error.Message
	}
	select {
	case p.resultCh <- requestResult{err: errors.New(msg)}:
	default:
	}
}

func (c *Client) removePending(id string) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(c.pending, id)
	return true
}

func (c *Client) rejectAllPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.pendingMu.Unlock()

	for _, p := range pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		select {
		case p.resultCh <- requestResult{err: err}:
		default:
		}
	}
}

// Send sends message into sessionKey's session.
func (c *Client) Send(ctx context.Context, sessionKey, message string) (any, error) {
	return c.Request(ctx, "send", map[string]any{"sessionKey": sessionKey, "message": message})
}

// Subscribe asks the gateway to subscribe this connection to events.
func (c *Client) Subscribe(ctx context.Context, events []string) (any, error) {
	return c.Request(ctx, "subscribe", map[string]any{"events": events})
}

// Call invokes an arbitrary gateway method, the same vocabulary a
// GatewayAction uses for its "call" variant.
func (c *Client) Call(ctx context.Context, method string, params any) (any, error) {
	return c.Request(ctx, method, params)
}

// HealthCheck invokes the gateway's "health" method.
func (c *Client) HealthCheck(ctx context.Context) (any, error) {
	return c.Request(ctx, "health", nil)
}

// GetConnectionState returns a snapshot of the client's lifecycle state.
func (c *Client) GetConnectionState() domain.GatewayConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.GatewayConnectionState{
		Connected:          c.state == StateConnected,
		ReadyState:         c.state.String(),
		Reconnecting:       c.state == StateReconnecting,
		ReconnectAttempts:  c.reconnectAttempts,
		LastConnectedAt:    c.lastConnectedAt,
		LastDisconnectedAt: c.lastDisconnectedAt,
		LastError:          c.lastError,
	}
}

// Close stops the client: reconnect is disabled, the transport is closed,
// and all pending requests are rejected. Operator-initiated Close never
// triggers reconnect or emits fatal.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.allowReconnect = false
		c.state = StateClosed
		conn := c.conn
		c.mu.Unlock()

		close(c.closed)
		c.rejectAllPending(errors.New("connection closed"))
		if conn != nil {
			err = conn.Close(websocket.StatusNormalClosure, "bridge closing")
		}
	})
	return err
}

func (c *Client) setLastError(err error) {
	c.mu.Lock()
	c.lastError = err.Error()
	c.mu.Unlock()
}

func (c *Client) nextRequestID() string {
	n := atomic.AddInt64(&c.reqCounter, 1)
	return fmt.Sprintf("req_%d", n)
}

func timePtr(t time.Time) *time.Time { return &t }
