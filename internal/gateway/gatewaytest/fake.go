package gatewaytest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/congo-pay/walletclient/internal/gateway"
)

// Response is a canned reply. A non-nil Err wins over Body.
type Response struct {
	Body any
	Err  error
}

// Fake records calls and answers them from a route table keyed by
// "METHOD /path". Routes may hold a queue of responses; the last one repeats.
type Fake struct {
	mu     sync.Mutex
	routes map[string][]Response
	calls  []gateway.Request
}

// New builds an empty Fake. Unknown routes answer with HTTP 404.
func New() *Fake {
	return &Fake{routes: make(map[string][]Response)}
}

// On queues responses for method+path.
func (f *Fake) On(method, path string, responses ...Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + path
	f.routes[key] = append(f.routes[key], responses...)
	return f
}

// Fail is shorthand for a RequestError response.
func Fail(status int, message string) Response {
	return Response{Err: &gateway.RequestError{StatusCode: status, Message: message}}
}

// Do satisfies the consumers' Doer interfaces.
func (f *Fake) Do(_ context.Context, req gateway.Request, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	key := req.Method + " " + req.Path
	queue := f.routes[key]
	var resp Response
	switch len(queue) {
	case 0:
		f.mu.Unlock()
		return &gateway.RequestError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("HTTP %d", http.StatusNotFound)}
	case 1:
		resp = queue[0]
	default:
		resp = queue[0]
		f.routes[key] = queue[1:]
	}
	f.mu.Unlock()

	if resp.Err != nil {
		return resp.Err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &gateway.RequestError{StatusCode: http.StatusOK, Message: err.Error(), Err: errors.Join(gateway.ErrSchemaMismatch, err)}
	}
	if v, ok := out.(gateway.Validator); ok {
		if err := v.Validate(); err != nil {
			return &gateway.RequestError{StatusCode: http.StatusOK, Message: err.Error(), Err: errors.Join(gateway.ErrSchemaMismatch, err)}
		}
	}
	return nil
}

// Calls returns a copy of the recorded requests.
func (f *Fake) Calls() []gateway.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.Request(nil), f.calls...)
}

// CallCount returns how many requests were recorded.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
