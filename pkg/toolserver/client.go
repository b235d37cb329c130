// Package toolserver implements the client side of the remote tool
// protocol: newline-delimited JSON frames over TCP, websocket or a
// subprocess, with calls correlated by identifier so responses may arrive
// out of order.
package toolserver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ToolDescriptor is a remote tool's advertisement.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolOutcome is the result of one remote tool call.
type ToolOutcome struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DefaultCallTimeout bounds a single remote tool call.
const DefaultCallTimeout = 30 * time.Second

// Session is one live connection to a tool server. Safe for concurrent use;
// calls may be pipelined and are matched to responses by correlation ID.
type Session struct {
	address string
	conn    frameConn

	mu      sync.Mutex
	pending map[string]chan *response
	closed  bool

	// writeMu serializes frame writes. Pipelined calls must not interleave
	// bytes on the line transports, and the websocket transport allows only
	// one concurrent writer.
	writeMu sync.Mutex

	tools []ToolDescriptor
}

// Connect dials the address and starts the response reader. A failure here
// is reported as ConnectFailed so the caller can degrade to local tools.
func Connect(ctx context.Context, address string) (*Session, error) {
	conn, err := dial(ctx, address)
	if err != nil {
		return nil, &Error{Kind: KindConnectFailed, Address: address, Message: err.Error()}
	}

	s := &Session{
		address: address,
		conn:    conn,
		pending: make(map[string]chan *response),
	}
	go s.listen()

	log.Debug().Str("address", address).Msg("tool server connected")
	return s, nil
}

// Address returns the dialed address.
func (s *Session) Address() string {
	return s.address
}

func (s *Session) listen() {
	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			s.failAll(&Error{Kind: KindDisconnected, Address: s.address, Message: err.Error()})
			return
		}

		var resp response
		if err := json.Unmarshal(frame, &resp); err != nil {
			log.Warn().Err(err).Str("address", s.address).Msg("discarding unparsable tool server frame")
			continue
		}

		s.mu.Lock()
		ch, ok := s.pending[resp.ID]
		if ok {
			delete(s.pending, resp.ID)
		}
		s.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
}

// failAll marks the session dead and unblocks every in-flight call.
func (s *Session) failAll(err *Error) {
	s.mu.Lock()
	s.closed = true
	pending := s.pending
	s.pending = make(map[string]chan *response)
	s.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if len(pending) > 0 {
		log.Warn().Str("address", s.address).Int("in_flight", len(pending)).Err(err).
			Msg("tool server session dropped with calls in flight")
	}
}

func (s *Session) call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id := uuid.NewString()
	ch := make(chan *response, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, &Error{Kind: KindDisconnected, Address: s.address, Message: "session closed"}
	}
	s.pending[id] = ch
	s.mu.Unlock()

	data, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		s.forget(id)
		return nil, &Error{Kind: KindProtocolError, Address: s.address, Message: err.Error()}
	}
	s.writeMu.Lock()
	err = s.conn.WriteFrame(data)
	s.writeMu.Unlock()
	if err != nil {
		s.forget(id)
		return nil, &Error{Kind: KindDisconnected, Address: s.address, Message: err.Error()}
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, &Error{Kind: KindDisconnected, Address: s.address, Message: "connection lost"}
		}
		if resp.Error != nil {
			return nil, &Error{Kind: kindForCode(resp.Error.Code), Address: s.address, Message: resp.Error.Message}
		}
		return resp.Result, nil
	case <-ctx.Done():
		s.forget(id)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &Error{Kind: KindTimeout, Address: s.address, Message: method + " timed out"}
		}
		return nil, ctx.Err()
	}
}

func (s *Session) forget(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// ListTools fetches the server's tool advertisements. A successful result
// is cached for the session lifetime; reconnecting makes a new session and
// a fresh fetch.
func (s *Session) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	s.mu.Lock()
	cached := s.tools
	s.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	raw, err := s.call(ctx, "list_tools", nil, DefaultCallTimeout)
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &Error{Kind: KindProtocolError, Address: s.address, Message: err.Error()}
	}
	if result.Tools == nil {
		result.Tools = []ToolDescriptor{}
	}

	s.mu.Lock()
	s.tools = result.Tools
	s.mu.Unlock()
	return result.Tools, nil
}

// CallTool invokes a remote tool with arguments forwarded verbatim.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) (*ToolOutcome, error) {
	params := map[string]any{
		"name":      name,
		"arguments": args,
	}
	raw, err := s.call(ctx, "call_tool", params, timeout)
	if err != nil {
		return nil, err
	}

	var outcome ToolOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return nil, &Error{Kind: KindProtocolError, Address: s.address, Message: err.Error()}
	}
	return &outcome, nil
}

// Close tears down the session; in-flight calls fail with Disconnected.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}
