package rod

import (
	"context"

	"context-injector/internal/application/port/output"
)

var _ output.Element = (*Element)(nil)

// Element is a shim id. Reads work on detached nodes; writes and dispatch
// report entity.ErrElementGone.
type Element struct {
	doc *Document
	id  string
}

func (e *Element) Handle() string { return e.id }

func (e *Element) Connected(ctx context.Context) (bool, error) {
	res, err := e.doc.call(ctx, "connected", e.id)
	if err != nil {
		return false, err
	}
	return res.Bool(), nil
}

func (e *Element) TagName(ctx context.Context) (string, error) {
	res, err := e.doc.call(ctx, "tag", e.id)
	if err != nil {
		return "", err
	}
	return res.Str(), nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	res, err := e.doc.call(ctx, "attr", e.id, name)
	if err != nil {
		return "", false, err
	}
	if res.Nil() {
		return "", false, nil
	}
	return res.Str(), true, nil
}

func (e *Element) Parent(ctx context.Context) (output.Element, error) {
	res, err := e.doc.call(ctx, "parent", e.id)
	if err != nil {
		return nil, err
	}
	if res.Nil() {
		return nil, nil
	}
	return e.doc.wrap(res.Str()), nil
}

func (e *Element) EditableKind(ctx context.Context) (output.EditableKind, error) {
	res, err := e.doc.call(ctx, "kind", e.id)
	if err != nil {
		return output.EditableNone, err
	}
	return output.EditableKind(res.Str()), nil
}

func (e *Element) Disabled(ctx context.Context) (bool, error) {
	res, err := e.doc.call(ctx, "disabled", e.id)
	if err != nil {
		return false, err
	}
	return res.Bool(), nil
}

func (e *Element) Value(ctx context.Context) (string, error) {
	res, err := e.doc.call(ctx, "value", e.id)
	if err != nil {
		return "", err
	}
	return res.Str(), nil
}

func (e *Element) SetValue(ctx context.Context, value string) error {
	_, err := e.doc.call(ctx, "setValue", e.id, value)
	return err
}

func (e *Element) TextContent(ctx context.Context) (string, error) {
	res, err := e.doc.call(ctx, "text", e.id)
	if err != nil {
		return "", err
	}
	return res.Str(), nil
}

func (e *Element) SetTextContent(ctx context.Context, text string) error {
	_, err := e.doc.call(ctx, "setText", e.id, text)
	return err
}

func (e *Element) Dispatch(ctx context.Context, eventType string) error {
	_, err := e.doc.call(ctx, "dispatch", e.id, eventType)
	return err
}
