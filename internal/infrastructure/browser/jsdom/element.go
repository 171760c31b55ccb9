//go:build js && wasm

package jsdom

import (
	"context"
	"strings"
	"syscall/js"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

var _ output.Element = (*Element)(nil)

var textInputTypes = map[string]bool{"": true, "text": true, "search": true, "email": true, "url": true, "tel": true, "password": true}

type Element struct {
	doc  *Document
	node js.Value
	id   string
}

func (e *Element) Handle() string { return e.id }

func (e *Element) Connected(ctx context.Context) (bool, error) {
	return e.node.Get("isConnected").Bool(), nil
}

func (e *Element) live() error {
	if !e.node.Get("isConnected").Bool() {
		return entity.ErrElementGone
	}
	return nil
}

func (e *Element) TagName(ctx context.Context) (string, error) {
	return strings.ToLower(e.node.Get("tagName").String()), nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if !e.node.Call("hasAttribute", name).Bool() {
		return "", false, nil
	}
	return e.node.Call("getAttribute", name).String(), true, nil
}

func (e *Element) Parent(ctx context.Context) (output.Element, error) {
	p := e.doc.wrap(e.node.Get("parentElement"))
	if p == nil {
		return nil, nil
	}
	return p, nil
}

func (e *Element) EditableKind(ctx context.Context) (output.EditableKind, error) {
	switch strings.ToLower(e.node.Get("tagName").String()) {
	case "textarea":
		return output.EditableFormControl, nil
	case "input":
		typ := ""
		if t := e.node.Call("getAttribute", "type"); !nullish(t) {
			typ = strings.ToLower(t.String())
		}
		if textInputTypes[typ] {
			return output.EditableFormControl, nil
		}
		return output.EditableNone, nil
	}
	if e.node.Get("isContentEditable").Bool() {
		return output.EditableRichText, nil
	}
	return output.EditableNone, nil
}

func disabled(node js.Value) bool {
	if d := node.Get("disabled"); d.Type() == js.TypeBoolean && d.Bool() {
		return true
	}
	if node.Call("hasAttribute", "disabled").Bool() {
		return true
	}
	aria := node.Call("getAttribute", "aria-disabled")
	return !nullish(aria) && aria.String() == "true"
}

func (e *Element) Disabled(ctx context.Context) (bool, error) {
	return disabled(e.node), nil
}

func (e *Element) Value(ctx context.Context) (string, error) {
	if v := e.node.Get("value"); v.Type() == js.TypeString {
		return v.String(), nil
	}
	return e.node.Get("textContent").String(), nil
}

// SetValue goes through the prototype setter so framework-controlled inputs
// see the change.
func (e *Element) SetValue(ctx context.Context, value string) error {
	if err := e.live(); err != nil {
		return err
	}
	return try(func() {
		proto := js.Global().Get("Object").Call("getPrototypeOf", e.node)
		desc := js.Global().Get("Object").Call("getOwnPropertyDescriptor", proto, "value")
		if !nullish(desc) && !nullish(desc.Get("set")) {
			desc.Get("set").Call("call", e.node, value)
			return
		}
		e.node.Set("value", value)
	})
}

func (e *Element) TextContent(ctx context.Context) (string, error) {
	t := e.node.Get("textContent")
	if nullish(t) {
		return "", nil
	}
	return t.String(), nil
}

func (e *Element) SetTextContent(ctx context.Context, text string) error {
	if err := e.live(); err != nil {
		return err
	}
	e.node.Set("textContent", text)
	return nil
}

func (e *Element) Dispatch(ctx context.Context, eventType string) error {
	if err := e.live(); err != nil {
		return err
	}
	ctor := "Event"
	if eventType == "input" {
		ctor = "InputEvent"
	}
	ev := js.Global().Get(ctor).New(eventType, map[string]any{"bubbles": true, "composed": true})
	return try(func() { e.node.Call("dispatchEvent", ev) })
}
