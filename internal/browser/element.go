package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"auto_trader/internal/core"
)

// Element is a remote DOM node handle. Handles become stale after a
// navigation; callers re-query after every page change.
type Element struct {
	session  *Session
	objectID string
}

// callFunction invokes a function on the remote node with this bound to it.
func (e *Element) callFunction(ctx context.Context, declaration string, args ...interface{}) (json.RawMessage, error) {
	callArgs := make([]map[string]interface{}, 0, len(args))
	for _, a := range args {
		callArgs = append(callArgs, map[string]interface{}{"value": a})
	}
	result, err := e.session.send(ctx, "Runtime.callFunctionOn", map[string]interface{}{
		"objectId":            e.objectID,
		"functionDeclaration": declaration,
		"arguments":           callArgs,
		"returnByValue":       true,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode call result: %w", err)
	}
	if out.ExceptionDetails != nil {
		return nil, fmt.Errorf("element call threw: %s", out.ExceptionDetails.Text)
	}
	return out.Result.Value, nil
}

// BoundingBox returns the node's viewport rectangle.
func (e *Element) BoundingBox(ctx context.Context) (core.Box, error) {
	value, err := e.callFunction(ctx,
		`function() { const r = this.getBoundingClientRect(); return {x: r.x, y: r.y, width: r.width, height: r.height}; }`)
	if err != nil {
		return core.Box{}, err
	}
	var rect struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := json.Unmarshal(value, &rect); err != nil {
		return core.Box{}, fmt.Errorf("decode bounding box: %w", err)
	}
	return core.Box{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}, nil
}

// Click dispatches a trusted mouse click at the node's center. With force
// set, it falls back to a synthetic DOM click that ignores overlay hit
// testing.
func (e *Element) Click(ctx context.Context, force bool) error {
	if force {
		_, err := e.callFunction(ctx, `function() { this.click(); }`)
		return err
	}
	box, err := e.BoundingBox(ctx)
	if err != nil {
		return err
	}
	if box.Width == 0 && box.Height == 0 {
		_, err := e.callFunction(ctx, `function() { this.click(); }`)
		return err
	}
	return e.session.dispatchClick(ctx, box.X+box.Width/2, box.Y+box.Height/2, "left")
}

// RightClick dispatches a trusted right click at the node's center.
func (e *Element) RightClick(ctx context.Context) error {
	box, err := e.BoundingBox(ctx)
	if err != nil {
		return err
	}
	return e.session.dispatchClick(ctx, box.X+box.Width/2, box.Y+box.Height/2, "right")
}

// Type focuses the node and inserts the text as keyboard input.
func (e *Element) Type(ctx context.Context, text string) error {
	if _, err := e.callFunction(ctx, `function() { this.focus(); }`); err != nil {
		return err
	}
	_, err := e.session.send(ctx, "Input.insertText", map[string]interface{}{"text": text})
	return err
}

// Fill sets the node's value directly and fires an input event.
func (e *Element) Fill(ctx context.Context, text string) error {
	_, err := e.callFunction(ctx,
		`function(v) { this.value = v; this.dispatchEvent(new Event('input', {bubbles: true})); }`, text)
	return err
}

// InnerText returns the node's rendered text.
func (e *Element) InnerText(ctx context.Context) (string, error) {
	value, err := e.callFunction(ctx, `function() { return this.innerText; }`)
	if err != nil {
		return "", err
	}
	var text string
	if err := json.Unmarshal(value, &text); err != nil {
		return "", fmt.Errorf("decode inner text: %w", err)
	}
	return text, nil
}

// Attr returns an attribute value, or "" when absent.
func (e *Element) Attr(ctx context.Context, name string) (string, error) {
	value, err := e.callFunction(ctx, `function(n) { return this.getAttribute(n) || ""; }`, name)
	if err != nil {
		return "", err
	}
	var text string
	if err := json.Unmarshal(value, &text); err != nil {
		return "", fmt.Errorf("decode attribute: %w", err)
	}
	return text, nil
}

// IsDisabled reports whether the node carries the disabled property.
func (e *Element) IsDisabled(ctx context.Context) (bool, error) {
	value, err := e.callFunction(ctx, `function() { return this.disabled === true; }`)
	if err != nil {
		return false, err
	}
	var disabled bool
	if err := json.Unmarshal(value, &disabled); err != nil {
		return false, fmt.Errorf("decode disabled: %w", err)
	}
	return disabled, nil
}

// IsVisible reports whether the node takes up layout space.
func (e *Element) IsVisible(ctx context.Context) (bool, error) {
	value, err := e.callFunction(ctx,
		`function() { return !!(this.offsetWidth || this.offsetHeight || this.getClientRects().length); }`)
	if err != nil {
		return false, err
	}
	var visible bool
	if err := json.Unmarshal(value, &visible); err != nil {
		return false, fmt.Errorf("decode visible: %w", err)
	}
	return visible, nil
}

var _ core.IElement = (*Element)(nil)
