// Package remote implements the remote-protocol backend: a JSON-RPC 2.0
// peer spoken to over newline-delimited messages, typically the stdio
// of a spawned server process.
package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hanzoai/aci/internal/logging"
)

// ErrClosed is returned for calls against a closed transport.
var ErrClosed = errors.New("transport closed")

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

// Transport multiplexes JSON-RPC calls over one reader/writer pair.
// Responses are routed back to callers by request ID; the read loop
// runs until the reader closes.
type Transport struct {
	mu      sync.Mutex
	w       io.Writer
	pending map[int64]chan *rpcResponse
	nextID  int64
	closed  bool

	wg sync.WaitGroup
}

// NewTransport starts a transport over the given pipe ends.
func NewTransport(w io.Writer, r io.Reader) *Transport {
	t := &Transport{
		w:       w,
		pending: make(map[int64]chan *rpcResponse),
		nextID:  1,
	}
	t.wg.Add(1)
	go t.readLoop(r)
	return t
}

func (t *Transport) readLoop(r io.Reader) {
	defer t.wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			logging.BackendWarn("remote: discarding malformed message: %v", err)
			continue
		}

		t.mu.Lock()
		ch, ok := t.pending[resp.ID]
		if ok {
			delete(t.pending, resp.ID)
		}
		t.mu.Unlock()

		if !ok {
			logging.BackendWarn("remote: response for unknown request %d", resp.ID)
			continue
		}
		ch <- &resp
	}

	// Reader closed: fail every caller still waiting.
	t.mu.Lock()
	t.closed = true
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.mu.Unlock()
}

// Call sends one request and waits for its response or ctx cancellation.
func (t *Transport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}

	id := t.nextID
	t.nextID++
	ch := make(chan *rpcResponse, 1)
	t.pending[id] = ch

	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("cannot encode request: %w", err)
	}
	if _, err := t.w.Write(append(data, '\n')); err != nil {
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("cannot write request: %w", err)
	}
	t.mu.Unlock()

	select {
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, ErrClosed
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("remote error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Closed reports whether the read side has shut down.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Wait blocks until the read loop exits.
func (t *Transport) Wait() {
	t.wg.Wait()
}
