package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer speaks the NDJSON protocol over TCP. The handler decides the
// response per request; returning nil means stay silent.
type fakeServer struct {
	listener net.Listener
	handler  func(req request) *response

	mu    sync.Mutex
	conns []net.Conn
}

func newFakeServer(t *testing.T, handler func(req request) *response) *fakeServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{listener: listener, handler: handler}
	go s.serve()
	t.Cleanup(s.close)
	return s
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *fakeServer) handleConn(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		resp := s.handler(req)
		if resp == nil {
			continue
		}
		data, _ := json.Marshal(resp)
		conn.Write(append(data, '\n'))
	}
}

func (s *fakeServer) address() string {
	return "tcp://" + s.listener.Addr().String()
}

func (s *fakeServer) close() {
	s.listener.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
}

func result(id string, payload any) *response {
	data, _ := json.Marshal(payload)
	return &response{ID: id, Result: data}
}

func toolListHandler(req request) *response {
	switch req.Method {
	case "list_tools":
		return result(req.ID, map[string]any{
			"tools": []ToolDescriptor{
				{
					Name:        "get_weather",
					Description: "Current weather for a city",
					InputSchema: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"city": map[string]any{"type": "string"},
						},
						"required": []any{"city"},
					},
				},
			},
		})
	case "call_tool":
		return result(req.ID, ToolOutcome{Content: "sunny, 21C"})
	default:
		return &response{ID: req.ID, Error: &wireError{Code: -32600, Message: "bad method"}}
	}
}

func TestConnectFailure(t *testing.T) {
	_, err := Connect(context.Background(), "tcp://127.0.0.1:1")
	var tsErr *Error
	require.ErrorAs(t, err, &tsErr)
	assert.Equal(t, KindConnectFailed, tsErr.Kind)
}

func TestConnectUnsupportedScheme(t *testing.T) {
	_, err := Connect(context.Background(), "ftp://example.org")
	var tsErr *Error
	require.ErrorAs(t, err, &tsErr)
	assert.Equal(t, KindConnectFailed, tsErr.Kind)
}

func TestListToolsAndCall(t *testing.T) {
	server := newFakeServer(t, toolListHandler)

	session, err := Connect(context.Background(), server.address())
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_weather", tools[0].Name)

	outcome, err := session.CallTool(context.Background(), "get_weather", map[string]any{"city": "Oslo"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "sunny, 21C", outcome.Content)
	assert.False(t, outcome.IsError)
}

func TestListToolsCached(t *testing.T) {
	var mu sync.Mutex
	listCalls := 0
	server := newFakeServer(t, func(req request) *response {
		if req.Method == "list_tools" {
			mu.Lock()
			listCalls++
			mu.Unlock()
		}
		return toolListHandler(req)
	})

	session, err := Connect(context.Background(), server.address())
	require.NoError(t, err)
	defer session.Close()

	_, err = session.ListTools(context.Background())
	require.NoError(t, err)
	_, err = session.ListTools(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, listCalls)
}

func TestCallToolServerError(t *testing.T) {
	server := newFakeServer(t, func(req request) *response {
		return &response{ID: req.ID, Error: &wireError{Code: codeToolNotFound, Message: "no such tool"}}
	})

	session, err := Connect(context.Background(), server.address())
	require.NoError(t, err)
	defer session.Close()

	_, err = session.CallTool(context.Background(), "missing", nil, time.Second)
	var tsErr *Error
	require.ErrorAs(t, err, &tsErr)
	assert.Equal(t, KindToolNotFound, tsErr.Kind)
}

func TestCallToolInvalidParams(t *testing.T) {
	server := newFakeServer(t, func(req request) *response {
		return &response{ID: req.ID, Error: &wireError{Code: codeInvalidParams, Message: "city required"}}
	})

	session, err := Connect(context.Background(), server.address())
	require.NoError(t, err)
	defer session.Close()

	_, err = session.CallTool(context.Background(), "get_weather", nil, time.Second)
	var tsErr *Error
	require.ErrorAs(t, err, &tsErr)
	assert.Equal(t, KindInvalidParams, tsErr.Kind)
}

func TestCallToolTimeout(t *testing.T) {
	server := newFakeServer(t, func(req request) *response {
		return nil // never answer
	})

	session, err := Connect(context.Background(), server.address())
	require.NoError(t, err)
	defer session.Close()

	start := time.Now()
	_, err = session.CallTool(context.Background(), "slow", nil, 100*time.Millisecond)
	var tsErr *Error
	require.ErrorAs(t, err, &tsErr)
	assert.Equal(t, KindTimeout, tsErr.Kind)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResponsesMatchedByCorrelationID(t *testing.T) {
	// Answer the first call only after the second arrives, so responses
	// come back in reverse order of the requests.
	var mu sync.Mutex
	var held *request
	var server *fakeServer
	server = newFakeServer(t, func(req request) *response {
		if req.Method == "list_tools" {
			return toolListHandler(req)
		}
		mu.Lock()
		defer mu.Unlock()
		name, _ := req.Params.(map[string]any)["name"].(string)
		if name == "slow" {
			held = &req
			return nil
		}
		if held != nil {
			go func(h request) {
				time.Sleep(50 * time.Millisecond)
				data, _ := json.Marshal(result(h.ID, ToolOutcome{Content: "slow done"}))
				mu.Lock()
				conn := serverConn(server)
				mu.Unlock()
				if conn != nil {
					conn.Write(append(data, '\n'))
				}
			}(*held)
		}
		return result(req.ID, ToolOutcome{Content: "fast done"})
	})

	session, err := Connect(context.Background(), server.address())
	require.NoError(t, err)
	defer session.Close()

	type callResult struct {
		name    string
		outcome *ToolOutcome
		err     error
	}
	results := make(chan callResult, 2)

	go func() {
		outcome, err := session.CallTool(context.Background(), "slow", nil, 5*time.Second)
		results <- callResult{"slow", outcome, err}
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		outcome, err := session.CallTool(context.Background(), "fast", nil, 5*time.Second)
		results <- callResult{"fast", outcome, err}
	}()

	byName := map[string]callResult{}
	for i := 0; i < 2; i++ {
		r := <-results
		byName[r.name] = r
	}

	require.NoError(t, byName["fast"].err)
	require.NoError(t, byName["slow"].err)
	assert.Equal(t, "fast done", byName["fast"].outcome.Content)
	assert.Equal(t, "slow done", byName["slow"].outcome.Content)
}

func serverConn(s *fakeServer) net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		return nil
	}
	return s.conns[0]
}

func TestConcurrentCallsOverWebsocket(t *testing.T) {
	// One model turn can fan several tool calls out over the same session,
	// so writes from many goroutines must land on the wire intact.
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var writeMu sync.Mutex
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req request
			if err := json.Unmarshal(frame, &req); err != nil {
				continue
			}
			go func(req request) {
				data, _ := json.Marshal(result(req.ID, ToolOutcome{Content: "done"}))
				writeMu.Lock()
				defer writeMu.Unlock()
				conn.WriteMessage(websocket.TextMessage, data)
			}(req)
		}
	}))
	defer srv.Close()

	session, err := Connect(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	defer session.Close()

	payload := strings.Repeat("x", 1<<16)
	errs := make(chan error, 32)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := session.CallTool(context.Background(), "echo", map[string]any{"blob": payload}, 5*time.Second)
			if err != nil {
				errs <- err
				return
			}
			if outcome.Content != "done" {
				errs <- fmt.Errorf("unexpected content %q", outcome.Content)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestDisconnectFailsInFlightCalls(t *testing.T) {
	server := newFakeServer(t, func(req request) *response {
		return nil // hold the call open
	})

	session, err := Connect(context.Background(), server.address())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := session.CallTool(context.Background(), "hang", nil, 10*time.Second)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	server.close()

	select {
	case err := <-done:
		var tsErr *Error
		require.ErrorAs(t, err, &tsErr)
		assert.Equal(t, KindDisconnected, tsErr.Kind)
	case <-time.After(3 * time.Second):
		t.Fatal("in-flight call not released on disconnect")
	}
}

func TestCallAfterCloseFails(t *testing.T) {
	server := newFakeServer(t, toolListHandler)

	session, err := Connect(context.Background(), server.address())
	require.NoError(t, err)
	require.NoError(t, session.Close())

	_, err = session.CallTool(context.Background(), "get_weather", nil, time.Second)
	var tsErr *Error
	require.ErrorAs(t, err, &tsErr)
	assert.Equal(t, KindDisconnected, tsErr.Kind)
}
