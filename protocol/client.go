package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCallTimeout bounds the wait for a reply when ClientConfig leaves it unset
const DefaultCallTimeout = 3 * time.Second

const (
	readChunkSize     = 64 * 1024
	handshakeReadSize = 4 * 1024
	directionSent     = "sent"
	directionReceived = "received"
)

// State is the lifecycle state of a Client
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateHandshakeInFlight
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshakeInFlight:
		return "handshake"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Tracker receives frame and call metrics
type Tracker interface {
	IncrementFrames(direction, opcode string)
	ObserveCall(method, outcome string, seconds float64)
}

type nopTracker struct{}

func (nopTracker) IncrementFrames(string, string) {}

func (nopTracker) ObserveCall(string, string, float64) {}

// ClientConfig describes the wRPC endpoint
type ClientConfig struct {
	Host        string
	Port        int
	Path        string
	DialTimeout time.Duration
	CallTimeout time.Duration
}

type callResult struct {
	resp *Response
	err  error
}

// pendingCall holds the result channel for a single in-flight request.
// The channel is buffered so whoever removes the entry from the table can
// deliver without blocking.
type pendingCall struct {
	id       uint64
	method   string
	resultCh chan callResult
}

// Client is a minimal WebSocket JSON client over a raw TCP stream. It
// performs the upgrade handshake itself and correlates replies to requests
// by id, falling back to the oldest pending request for replies without one.
//
// The peer is assumed to be a single well-behaved node that replies with
// unfragmented text frames no longer than the 16-bit extended length.
type Client struct {
	cfg     ClientConfig
	dialer  TCPDialer
	tracker Tracker
	logger  zerolog.Logger

	mu            sync.Mutex
	state         State
	conn          net.Conn
	pending       map[uint64]*pendingCall
	order         []uint64
	readerStarted bool

	writeLock sync.Mutex
	nextID    atomic.Uint64

	// Closed when the read loop exits
	done chan struct{}
}

// NewClient creates a client in the idle state. A nil tracker is allowed.
func NewClient(cfg ClientConfig, dialer TCPDialer, tracker Tracker, logger zerolog.Logger) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = cfg.CallTimeout
	}
	if dialer == nil {
		dialer = &DefaultTCPDialer{Timeout: cfg.DialTimeout}
	}
	if tracker == nil {
		tracker = nopTracker{}
	}

	return &Client{
		cfg:     cfg,
		dialer:  dialer,
		tracker: tracker,
		logger:  logger.With().Str("endpoint", Address(cfg.Host, cfg.Port)).Logger(),
		state:   StateIdle,
		pending: make(map[uint64]*pendingCall),
		done:    make(chan struct{}),
	}
}

// State returns the current lifecycle state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the number of calls awaiting a reply
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Connect dials the endpoint and performs the upgrade handshake. It returns
// once the connection is open. On failure the socket is released.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return newError(KindTransport, "connect", fmt.Errorf("client is %s", state))
	}
	c.state = StateConnecting
	c.mu.Unlock()

	addr := Address(c.cfg.Host, c.cfg.Port)
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.shutdown(ErrClosed)
		return newError(KindTransport, "dial", err)
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		conn.Close()
		return newError(KindClosed, "connect", errors.New("closed during dial"))
	}
	c.conn = conn
	c.state = StateHandshakeInFlight
	c.mu.Unlock()

	leftover, err := c.handshake(ctx, conn)
	if err != nil {
		c.shutdown(ErrClosed)
		return err
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return newError(KindClosed, "connect", errors.New("closed during handshake"))
	}
	c.state = StateOpen
	c.readerStarted = true
	c.mu.Unlock()

	go c.readLoop(conn, leftover)

	c.logger.Debug().Msg("WebSocket connected")
	return nil
}

// handshake writes the upgrade request and treats the first delivery as the
// complete response. Bytes after the response headers are returned so they
// can seed the frame buffer.
func (c *Client) handshake(ctx context.Context, conn net.Conn) ([]byte, error) {
	req, _, err := BuildHandshake(c.cfg.Host, c.cfg.Port, c.cfg.Path)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.cfg.CallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})

	// Unblock the read if ctx is cancelled first
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(req); err != nil {
		return nil, newError(KindTransport, "handshake write", err)
	}

	buf := make([]byte, handshakeReadSize)
	n, err := conn.Read(buf)
	if n == 0 && err != nil {
		return nil, newError(KindTransport, "handshake read", err)
	}
	if err := ValidateHandshake(buf[:n]); err != nil {
		return nil, err
	}

	rest := splitHandshake(buf[:n])
	if len(rest) == 0 {
		return nil, nil
	}
	leftover := make([]byte, len(rest))
	copy(leftover, rest)
	return leftover, nil
}

// Call sends one request and waits for its reply. The client must be open.
// Replies carrying an error field fail with ErrRPC. A call that gets no reply
// within the call timeout fails with ErrTimeout and is forgotten.
func (c *Client) Call(ctx context.Context, method string, params any) (resp *Response, err error) {
	start := time.Now()
	defer func() {
		c.tracker.ObserveCall(method, Outcome(err), time.Since(start).Seconds())
	}()

	if state := c.State(); state != StateOpen {
		return nil, newError(KindNotOpen, "call", fmt.Errorf("client is %s", state))
	}

	if params == nil {
		params = struct{}{}
	}
	id := c.nextID.Add(1)

	payload, err := json.Marshal(Request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, newError(KindDecode, "encode request", err)
	}
	frame, err := EncodeTextFrame(payload)
	if err != nil {
		return nil, err
	}

	call := &pendingCall{
		id:       id,
		method:   method,
		resultCh: make(chan callResult, 1),
	}

	c.mu.Lock()
	if c.state != StateOpen {
		state := c.state
		c.mu.Unlock()
		return nil, newError(KindNotOpen, "call", fmt.Errorf("client is %s", state))
	}
	c.pending[id] = call
	c.order = append(c.order, id)
	conn := c.conn
	c.mu.Unlock()

	callLogger := c.logger.With().Str("method", method).Uint64("requestID", id).Logger()

	if err := c.writeFrame(conn, frame); err != nil {
		c.removePending(id)
		werr := newError(KindTransport, "write", err)
		c.shutdown(werr)
		return nil, werr
	}
	callLogger.Debug().Int("payloadBytes", len(payload)).Msg("Sent request")

	timer := time.NewTimer(c.cfg.CallTimeout)
	defer timer.Stop()

	select {
	case res := <-call.resultCh:
		return res.resp, res.err
	case <-timer.C:
		if c.removePending(id) {
			callLogger.Debug().Dur("timeout", c.cfg.CallTimeout).Msg("Request timed out")
			return nil, newError(KindTimeout, "call", fmt.Errorf("no reply to %s within %s", method, c.cfg.CallTimeout))
		}
	case <-ctx.Done():
		if c.removePending(id) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, newError(KindTimeout, "call", ctx.Err())
			}
			return nil, ctx.Err()
		}
	}

	// The reply won the race against the timer
	res := <-call.resultCh
	return res.resp, res.err
}

func (c *Client) writeFrame(conn net.Conn, frame []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.CallTimeout))
	if _, err := conn.Write(frame); err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Time{})

	c.tracker.IncrementFrames(directionSent, OpcodeName(OpcodeText))
	return nil
}

// Close releases the connection and fails every pending call. It is safe to
// call in any state, any number of times.
func (c *Client) Close() error {
	c.shutdown(newError(KindClosed, "close", errors.New("client closed")))

	c.mu.Lock()
	started := c.readerStarted
	c.mu.Unlock()
	if started {
		<-c.done
	}
	return nil
}

// shutdown moves the client to closed exactly once and resolves all pending
// calls with cause
func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	conn := c.conn
	pending := c.pending
	c.pending = make(map[uint64]*pendingCall)
	c.order = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	for id, call := range pending {
		c.logger.Debug().Uint64("requestID", id).Str("method", call.method).Msg("Failing pending call on connection shutdown")
		call.resultCh <- callResult{err: cause}
	}
}

// removePending deletes the entry for id. Only the caller that gets true may
// resolve the call.
func (c *Client) removePending(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(id) != nil
}

// take removes and returns the call for id, or nil if it is no longer pending
func (c *Client) take(id uint64) *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(id)
}

// takeOldest removes and returns the longest-waiting call
func (c *Client) takeOldest() *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.order) == 0 {
		return nil
	}
	return c.removeLocked(c.order[0])
}

func (c *Client) removeLocked(id uint64) *pendingCall {
	call, exists := c.pending[id]
	if !exists {
		return nil
	}
	delete(c.pending, id)
	for i, queued := range c.order {
		if queued == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return call
}

// readLoop accumulates bytes from conn and decodes frames from the head of
// the buffer until the connection ends
func (c *Client) readLoop(conn net.Conn, buf []byte) {
	defer close(c.done)

	chunk := make([]byte, readChunkSize)
	for {
		for {
			frame, n, err := DecodeFrame(buf)
			if errors.Is(err, ErrIncomplete) {
				break
			}
			if err != nil {
				c.logger.Error().Err(err).Msg("Failed to decode frame, closing connection")
				c.shutdown(err)
				return
			}
			buf = buf[n:]
			if !c.handleFrame(frame) {
				return
			}
		}
		if len(buf) == 0 {
			buf = nil
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if c.State() == StateClosed {
				c.logger.Debug().Msg("Read loop stopped")
			} else {
				c.logger.Info().Err(err).Msg("WebSocket read error")
			}
			c.shutdown(newError(KindTransport, "read", err))
			return
		}
	}
}

// handleFrame routes one inbound frame. Returns false if the connection ended.
func (c *Client) handleFrame(frame *Frame) bool {
	opcode := OpcodeName(frame.Opcode)
	c.tracker.IncrementFrames(directionReceived, opcode)

	switch frame.Opcode {
	case OpcodeText, OpcodeContinuation:
		c.dispatch(frame.Payload)
		return true
	case OpcodeClose:
		c.logger.Info().Msg("Server closed connection")
		c.shutdown(newError(KindClosed, "read", errors.New("server sent close frame")))
		return false
	default:
		c.logger.Debug().Str("opcode", opcode).Int("payloadBytes", len(frame.Payload)).Msg("Ignoring frame")
		return true
	}
}

// dispatch resolves the pending call a reply belongs to. Replies with an id
// that is no longer pending (late replies after a timeout) are dropped.
func (c *Client) dispatch(payload []byte) {
	resp, parseErr := parseResponse(payload)

	var call *pendingCall
	if parseErr == nil {
		if id, ok := resp.RequestID(); ok {
			call = c.take(id)
			if call == nil {
				c.logger.Debug().Uint64("requestID", id).Msg("Dropping reply for unknown request")
				return
			}
		}
	}
	if call == nil {
		call = c.takeOldest()
	}
	if call == nil {
		c.logger.Debug().Int("payloadBytes", len(payload)).Msg("Dropping unsolicited frame")
		return
	}

	if parseErr != nil {
		call.resultCh <- callResult{err: parseErr}
		return
	}
	call.resultCh <- callResult{resp: resp, err: resp.rpcError()}
}
