// Package browser drives a DevTools-compatible browser over a websocket and
// owns every DOM selector the agent touches. Strategy and state-machine code
// never see a selector; a change in the game's HTML is absorbed here.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"auto_trader/internal/core"
	apperrors "auto_trader/pkg/errors"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/gorilla/websocket"
)

// Options configures the CDP session.
type Options struct {
	DevToolsURL string
	NavTimeout  time.Duration
	CallTimeout time.Duration
}

type cdpRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type cdpResponse struct {
	ID     int64           `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *cdpError       `json:"error,omitempty"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *cdpError) Error() string {
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// Session is a DevTools protocol client implementing core.IBrowserSession.
// One session drives one page; the core never issues two concurrent commands
// against it, but the reader goroutine below keeps responses and events
// flowing regardless.
type Session struct {
	opts Options
	conn *websocket.Conn

	nextID   atomic.Int64
	writeMu  sync.Mutex
	pending  map[int64]chan *cdpResponse
	pendMu   sync.Mutex
	loadedCh chan struct{}
	loadMu   sync.Mutex
	closed   chan struct{}
	closeErr error
	executor failsafe.Executor[json.RawMessage]
	logger   core.ILogger
}

// Connect dials the DevTools endpoint and enables the Page domain.
func Connect(ctx context.Context, opts Options, logger core.ILogger) (*Session, error) {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: opts.CallTimeout}
	conn, _, err := dialer.DialContext(ctx, opts.DevToolsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", apperrors.ErrBrowserCrashed, opts.DevToolsURL, err)
	}

	// Retry transient transport faults; trip the breaker when the browser
	// stops answering altogether.
	retryPolicy := retrypolicy.NewBuilder[json.RawMessage]().
		HandleIf(func(_ json.RawMessage, err error) bool {
			var nerr net.Error
			return errors.As(err, &nerr) && nerr.Timeout()
		}).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(2).
		Build()
	breaker := circuitbreaker.NewBuilder[json.RawMessage]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(10 * time.Second).
		Build()

	s := &Session{
		opts:     opts,
		conn:     conn,
		pending:  make(map[int64]chan *cdpResponse),
		closed:   make(chan struct{}),
		executor: failsafe.With[json.RawMessage](retryPolicy, breaker),
		logger:   logger.WithField("component", "browser"),
	}
	go s.readLoop()

	for _, domain := range []string{"Page.enable", "Runtime.enable", "Network.enable"} {
		if _, err := s.send(ctx, domain, nil); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("enable %s: %w", domain, err)
		}
	}
	return s, nil
}

func (s *Session) readLoop() {
	defer close(s.closed)
	for {
		var resp cdpResponse
		if err := s.conn.ReadJSON(&resp); err != nil {
			s.closeErr = fmt.Errorf("%w: %v", apperrors.ErrBrowserCrashed, err)
			s.failPending()
			return
		}
		if resp.ID != 0 {
			s.pendMu.Lock()
			ch, ok := s.pending[resp.ID]
			delete(s.pending, resp.ID)
			s.pendMu.Unlock()
			if ok {
				ch <- &resp
			}
			continue
		}
		if resp.Method == "Page.loadEventFired" {
			s.loadMu.Lock()
			if s.loadedCh != nil {
				close(s.loadedCh)
				s.loadedCh = nil
			}
			s.loadMu.Unlock()
		}
	}
}

func (s *Session) failPending() {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	for id, ch := range s.pending {
		delete(s.pending, id)
		close(ch)
	}
}

// send issues one protocol command and waits for its response through the
// resilience pipeline.
func (s *Session) send(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return s.executor.GetWithExecution(func(_ failsafe.Execution[json.RawMessage]) (json.RawMessage, error) {
		return s.sendOnce(ctx, method, params)
	})
}

func (s *Session) sendOnce(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	select {
	case <-s.closed:
		return nil, s.closeErr
	default:
	}

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params for %s: %w", method, err)
		}
		raw = data
	}

	id := s.nextID.Add(1)
	ch := make(chan *cdpResponse, 1)
	s.pendMu.Lock()
	s.pending[id] = ch
	s.pendMu.Unlock()

	s.writeMu.Lock()
	err := s.conn.WriteJSON(cdpRequest{ID: id, Method: method, Params: raw})
	s.writeMu.Unlock()
	if err != nil {
		s.pendMu.Lock()
		delete(s.pending, id)
		s.pendMu.Unlock()
		return nil, fmt.Errorf("%w: write %s: %v", apperrors.ErrBrowserCrashed, method, err)
	}

	timer := time.NewTimer(s.opts.CallTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTimeout, method)
	case resp, ok := <-ch:
		if !ok {
			return nil, s.closeErr
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%s: %w", method, resp.Error)
		}
		return resp.Result, nil
	}
}

// Goto navigates and waits for the load event within the nav timeout.
func (s *Session) Goto(ctx context.Context, url string) error {
	s.loadMu.Lock()
	loaded := make(chan struct{})
	s.loadedCh = loaded
	s.loadMu.Unlock()

	result, err := s.send(ctx, "Page.navigate", map[string]string{"url": url})
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrNavigation, err)
	}
	var nav struct {
		ErrorText string `json:"errorText"`
	}
	if err := json.Unmarshal(result, &nav); err == nil && nav.ErrorText != "" {
		return fmt.Errorf("%w: %s", apperrors.ErrNavigation, nav.ErrorText)
	}

	timer := time.NewTimer(s.opts.NavTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: load event for %s", apperrors.ErrTimeout, url)
	case <-loaded:
		return nil
	}
}

// CurrentURL returns the page's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	return s.Evaluate(ctx, "window.location.href")
}

// Evaluate runs a script and returns its result coerced to a string.
// Restricted to read operations and overlay suppression by convention.
func (s *Session) Evaluate(ctx context.Context, script string) (string, error) {
	result, err := s.send(ctx, "Runtime.evaluate", map[string]interface{}{
		"expression":    script,
		"returnByValue": true,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Result struct {
			Value interface{} `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return "", fmt.Errorf("decode evaluate result: %w", err)
	}
	if out.ExceptionDetails != nil {
		return "", fmt.Errorf("script threw: %s", out.ExceptionDetails.Text)
	}
	switch v := out.Result.Value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		data, _ := json.Marshal(v)
		return string(data), nil
	}
}

// resolveObject evaluates an expression and returns a remote object id, or
// "" when the expression resolved to null/undefined.
func (s *Session) resolveObject(ctx context.Context, expr string) (string, error) {
	result, err := s.send(ctx, "Runtime.evaluate", map[string]interface{}{
		"expression": expr,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Result struct {
			Subtype  string `json:"subtype"`
			Type     string `json:"type"`
			ObjectID string `json:"objectId"`
		} `json:"result"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return "", fmt.Errorf("decode object result: %w", err)
	}
	if out.Result.Subtype == "null" || out.Result.Type == "undefined" || out.Result.ObjectID == "" {
		return "", nil
	}
	return out.Result.ObjectID, nil
}

// QuerySelector returns a handle for the first match, or (nil, nil).
func (s *Session) QuerySelector(ctx context.Context, selector string) (core.IElement, error) {
	objectID, err := s.resolveObject(ctx, fmt.Sprintf("document.querySelector(%q)", selector))
	if err != nil {
		return nil, err
	}
	if objectID == "" {
		return nil, nil
	}
	return &Element{session: s, objectID: objectID}, nil
}

// QuerySelectorAll returns handles for every match.
func (s *Session) QuerySelectorAll(ctx context.Context, selector string) ([]core.IElement, error) {
	listID, err := s.resolveObject(ctx, fmt.Sprintf("Array.from(document.querySelectorAll(%q))", selector))
	if err != nil {
		return nil, err
	}
	if listID == "" {
		return nil, nil
	}

	result, err := s.send(ctx, "Runtime.getProperties", map[string]interface{}{
		"objectId":               listID,
		"ownProperties":          true,
		"generatePreview":        false,
		"nonIndexedPropertiesOnly": false,
	})
	if err != nil {
		return nil, err
	}
	var props struct {
		Result []struct {
			Name  string `json:"name"`
			Value *struct {
				ObjectID string `json:"objectId"`
				Subtype  string `json:"subtype"`
			} `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(result, &props); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}

	var elements []core.IElement
	for _, p := range props.Result {
		if p.Value == nil || p.Value.ObjectID == "" || p.Value.Subtype != "node" {
			continue
		}
		elements = append(elements, &Element{session: s, objectID: p.Value.ObjectID})
	}
	return elements, nil
}

// MouseMove dispatches a mouse movement to page coordinates.
func (s *Session) MouseMove(ctx context.Context, x, y float64) error {
	_, err := s.send(ctx, "Input.dispatchMouseEvent", map[string]interface{}{
		"type": "mouseMoved",
		"x":    x,
		"y":    y,
	})
	return err
}

// MouseClick dispatches a full press/release at page coordinates.
func (s *Session) MouseClick(ctx context.Context, x, y float64) error {
	return s.dispatchClick(ctx, x, y, "left")
}

func (s *Session) dispatchClick(ctx context.Context, x, y float64, button string) error {
	for _, typ := range []string{"mousePressed", "mouseReleased"} {
		_, err := s.send(ctx, "Input.dispatchMouseEvent", map[string]interface{}{
			"type":       typ,
			"x":          x,
			"y":          y,
			"button":     button,
			"clickCount": 1,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// GetCookies returns every cookie visible to the page.
func (s *Session) GetCookies(ctx context.Context) ([]core.Cookie, error) {
	result, err := s.send(ctx, "Network.getCookies", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Cookies []core.Cookie `json:"cookies"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode cookies: %w", err)
	}
	return out.Cookies, nil
}

// AddCookies installs cookies into the browser.
func (s *Session) AddCookies(ctx context.Context, cookies []core.Cookie) error {
	_, err := s.send(ctx, "Network.setCookies", map[string]interface{}{
		"cookies": cookies,
	})
	return err
}

// Close tears down the websocket.
func (s *Session) Close() error {
	err := s.conn.Close()
	<-s.closed
	return err
}

var _ core.IBrowserSession = (*Session)(nil)
