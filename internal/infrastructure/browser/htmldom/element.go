package htmldom

import (
	"context"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

var _ output.Element = (*Element)(nil)

var textInputTypes = map[string]bool{
	"": true, "text": true, "search": true, "email": true, "url": true, "tel": true,
}

type Element struct {
	doc    *Document
	node   *html.Node
	handle string
}

func (e *Element) Handle() string { return e.handle }

func (e *Element) Connected(ctx context.Context) (bool, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.connectedLocked(e.node), nil
}

func (e *Element) TagName(ctx context.Context) (string, error) {
	return strings.ToLower(e.node.Data), nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	v, ok := attr(e.node, name)
	return v, ok, nil
}

func (e *Element) Parent(ctx context.Context) (output.Element, error) {
	e.doc.mu.Lock()
	p := e.node.Parent
	e.doc.mu.Unlock()
	if p == nil || p.Type != html.ElementNode {
		return nil, nil
	}
	return e.doc.wrap(p), nil
}

func (e *Element) EditableKind(ctx context.Context) (output.EditableKind, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return editableKind(e.node), nil
}

func editableKind(n *html.Node) output.EditableKind {
	switch n.Data {
	case "textarea":
		return output.EditableFormControl
	case "input":
		t, _ := attr(n, "type")
		if textInputTypes[strings.ToLower(t)] {
			return output.EditableFormControl
		}
		return output.EditableNone
	}
	if v, ok := attr(n, "contenteditable"); ok {
		switch strings.ToLower(v) {
		case "", "true", "plaintext-only":
			return output.EditableRichText
		}
	}
	return output.EditableNone
}

func (e *Element) Disabled(ctx context.Context) (bool, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return disabled(e.node), nil
}

func disabled(n *html.Node) bool {
	if _, ok := attr(n, "disabled"); ok {
		return true
	}
	v, _ := attr(n, "aria-disabled")
	return v == "true"
}

// Value stays readable after the node is detached, as in a browser.
func (e *Element) Value(ctx context.Context) (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.valueLocked(e.node), nil
}

func (d *Document) valueLocked(n *html.Node) string {
	if v, ok := d.values[n]; ok {
		return v
	}
	if n.Data == "textarea" {
		return htmlquery.InnerText(n)
	}
	v, _ := attr(n, "value")
	return v
}

func (e *Element) SetValue(ctx context.Context, value string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if !e.doc.connectedLocked(e.node) {
		return entity.ErrElementGone
	}
	e.doc.values[e.node] = value
	return nil
}

func (e *Element) TextContent(ctx context.Context) (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return htmlquery.InnerText(e.node), nil
}

func (e *Element) SetTextContent(ctx context.Context, text string) error {
	e.doc.mu.Lock()
	if !e.doc.connectedLocked(e.node) {
		e.doc.mu.Unlock()
		return entity.ErrElementGone
	}
	removeChildren(e.node)
	if text != "" {
		e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	pending := e.doc.collectLocked(output.Mutation{Type: "childList", Target: e.handle}, e.node)
	e.doc.mu.Unlock()
	deliver(pending)
	return nil
}

// Dispatch fires a synthetic bubbling event at the element.
func (e *Element) Dispatch(ctx context.Context, eventType string) error {
	if ok, _ := e.Connected(ctx); !ok {
		return entity.ErrElementGone
	}
	e.doc.dispatch(e.node, &Event{Type: eventType, Bubbles: true})
	return nil
}

// Type replaces the element's content the way a user typing would, firing an
// input event afterwards.
func (e *Element) Type(text string) {
	ctx := context.Background()
	if editableKind(e.node) == output.EditableRichText {
		_ = e.SetTextContent(ctx, text)
	} else {
		_ = e.SetValue(ctx, text)
	}
	e.doc.dispatch(e.node, &Event{Type: "input", Bubbles: true, Trusted: true})
}

// Click simulates a user click. Disabled controls receive no event.
func (e *Element) Click() {
	e.doc.click(e.node, true)
}

// PressEnter simulates an Enter keydown on the element.
func (e *Element) PressEnter(shift bool) {
	e.doc.dispatch(e.node, &Event{Type: "keydown", Key: "Enter", ShiftKey: shift, Bubbles: true, Trusted: true})
}

// RequestSubmit submits the form the element belongs to, firing a submit event.
func (e *Element) RequestSubmit() {
	if form := closest(e.node, "form"); form != nil {
		e.doc.submit(form)
	}
}
