package wstransport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	telemetry "github.com/Whagons-International/whagons5-telemetry"
)

const (
	messageTypeAuth      = "auth"
	messageTypeTelemetry = "telemetry"
	operationAck         = "ack"
	operationOK          = "ok"
)

// ErrNotConnected is returned by Send while the transport has no usable
// connection.
var ErrNotConnected = errors.New("telemetry wstransport: not connected")

// ErrURLRequired is returned when New is called with an empty endpoint.
var ErrURLRequired = errors.New("telemetry wstransport: endpoint URL is required")

type authFrame struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

type inboundFrame struct {
	Type      string          `json:"type"`
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
}

// Transport delivers telemetry over a websocket connection to the collector
// and relays its acknowledgment frames back to subscribers.
type Transport struct {
	url string
	cfg Config

	mu      sync.Mutex
	conn    *websocket.Conn
	status  telemetry.ConnectionStatus
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	subMu      sync.Mutex
	nextSubID  int
	ackSubs    map[int]func(telemetry.AckEvent)
	statusSubs map[int]func(telemetry.ConnectionStatus)
}

var _ telemetry.Transport = (*Transport)(nil)

// New constructs a websocket transport for the given collector endpoint.
// The connection is not dialed until Start.
func New(url string, opts ...Option) (*Transport, error) {
	if url == "" {
		return nil, ErrURLRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Transport{
		url:        url,
		cfg:        cfg.withDefaults(),
		ackSubs:    make(map[int]func(telemetry.AckEvent)),
		statusSubs: make(map[int]func(telemetry.ConnectionStatus)),
	}, nil
}

// Start launches the connection loop. It returns immediately; connectivity
// is reported through OnStatusChange. Calling Start twice is a no-op.
func (t *Transport) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started || t.closed {
		t.mu.Unlock()

		return
	}
	t.started = true
	ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	t.wg.Add(1)
	go t.connectLoop(ctx)
}

// Close tears down the connection and stops the redial loop.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()

		return nil
	}
	t.closed = true
	cancel := t.cancel
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	t.wg.Wait()
	t.setStatus(telemetry.ConnectionStatus{})

	return nil
}

// Status returns the current connectivity state.
func (t *Transport) Status() telemetry.ConnectionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.status
}

// Send writes one telemetry message as a JSON text frame. The write deadline
// applies per frame; ctx cancellation is checked before the write.
func (t *Transport) Send(ctx context.Context, msg telemetry.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || !t.status.Ready() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("telemetry wstransport: marshal message: %w", err)
	}

	t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("telemetry wstransport: write: %w", err)
	}

	return nil
}

// OnAck registers a handler for acknowledgment batches.
func (t *Transport) OnAck(fn func(telemetry.AckEvent)) func() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextSubID
	t.nextSubID++
	t.ackSubs[id] = fn

	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		delete(t.ackSubs, id)
	}
}

// OnStatusChange registers a handler for connectivity transitions.
func (t *Transport) OnStatusChange(fn func(telemetry.ConnectionStatus)) func() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextSubID
	t.nextSubID++
	t.statusSubs[id] = fn

	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		delete(t.statusSubs, id)
	}
}

func (t *Transport) connectLoop(ctx context.Context) {
	defer t.wg.Done()

	delay := t.cfg.BackoffMin
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := t.dial(ctx)
		if err != nil {
			t.cfg.Logger.Debug("telemetry wstransport: dial failed", "url", t.url, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > t.cfg.BackoffMax {
				delay = t.cfg.BackoffMax
			}

			continue
		}
		delay = t.cfg.BackoffMin

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.Close()

			return
		}
		t.conn = conn
		t.mu.Unlock()
		t.setStatus(telemetry.ConnectionStatus{Connected: true, Authenticated: t.cfg.Token == ""})

		if t.cfg.Token != "" {
			if err := t.authenticate(conn); err != nil {
				t.cfg.Logger.Warn("telemetry wstransport: authentication failed", "err", err)
				t.dropConn(conn)

				continue
			}
		}

		// readLoop blocks until the connection drops or Close is called.
		t.readLoop(ctx, conn)
		t.dropConn(conn)
	}
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, t.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return conn, err
}

func (t *Transport) authenticate(conn *websocket.Conn) error {
	frame, err := json.Marshal(authFrame{Type: messageTypeAuth, Token: t.cfg.Token})
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))

	return conn.WriteMessage(websocket.TextMessage, frame)
}

// readLoop parses inbound frames. An auth/ok frame flips Authenticated; a
// telemetry/ack frame fans out to ack subscribers. Unknown frames are
// ignored so the collector can evolve its protocol.
func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				t.cfg.Logger.Debug("telemetry wstransport: connection lost", "err", err)
			}

			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.cfg.Logger.Debug("telemetry wstransport: malformed frame dropped", "err", err)

			continue
		}

		switch {
		case frame.Type == messageTypeAuth && frame.Operation == operationOK:
			t.setStatus(telemetry.ConnectionStatus{Connected: true, Authenticated: true})
		case frame.Type == messageTypeTelemetry && frame.Operation == operationAck:
			var event telemetry.AckEvent
			if err := json.Unmarshal(frame.Data, &event); err != nil {
				t.cfg.Logger.Debug("telemetry wstransport: malformed ack dropped", "err", err)

				continue
			}
			t.fanOutAck(event)
		}
	}
}

func (t *Transport) dropConn(conn *websocket.Conn) {
	conn.Close()
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
	t.setStatus(telemetry.ConnectionStatus{})
}

func (t *Transport) setStatus(status telemetry.ConnectionStatus) {
	t.mu.Lock()
	if t.status == status {
		t.mu.Unlock()

		return
	}
	t.status = status
	t.mu.Unlock()

	t.subMu.Lock()
	subs := make([]func(telemetry.ConnectionStatus), 0, len(t.statusSubs))
	for _, fn := range t.statusSubs {
		subs = append(subs, fn)
	}
	t.subMu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}

func (t *Transport) fanOutAck(event telemetry.AckEvent) {
	t.subMu.Lock()
	subs := make([]func(telemetry.AckEvent), 0, len(t.ackSubs))
	for _, fn := range t.ackSubs {
		subs = append(subs, fn)
	}
	t.subMu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
}
