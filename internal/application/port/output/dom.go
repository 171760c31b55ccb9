package output

import (
	"context"

	"context-injector/internal/domain/entity"
)

type EditableKind string

const (
	EditableNone        EditableKind = "none"
	EditableFormControl EditableKind = "form-control"
	EditableRichText    EditableKind = "rich-text"
)

// Element is a non-owning reference to a node in the host page. Any call may
// fail with entity.ErrElementGone once the node has been detached.
type Element interface {
	Handle() string
	Connected(ctx context.Context) (bool, error)
	TagName(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	Parent(ctx context.Context) (Element, error)
	EditableKind(ctx context.Context) (EditableKind, error)
	Disabled(ctx context.Context) (bool, error)

	Value(ctx context.Context) (string, error)
	SetValue(ctx context.Context, value string) error
	TextContent(ctx context.Context) (string, error)
	SetTextContent(ctx context.Context, text string) error

	// Dispatch fires a bubbling synthetic event of the given type on the element.
	Dispatch(ctx context.Context, eventType string) error
}

type ResolvedElements struct {
	Form         Element
	Textarea     Element
	SubmitButton Element
	StrategyName string
}

func (r ResolvedElements) Ready() bool {
	return r.Form != nil && r.Textarea != nil && r.SubmitButton != nil
}

func (r ResolvedElements) SameAs(other ResolvedElements) bool {
	if r.Ready() != other.Ready() {
		return false
	}
	if !r.Ready() {
		return true
	}
	return r.Form.Handle() == other.Form.Handle() &&
		r.Textarea.Handle() == other.Textarea.Handle() &&
		r.SubmitButton.Handle() == other.SubmitButton.Handle()
}

type ObserveOptions struct {
	ChildList       bool
	Subtree         bool
	AttributeFilter []string
}

type Mutation struct {
	Type      string
	Target    string
	Attribute string
}

type Observation interface {
	Disconnect()
}

type InterceptHandler func(trigger entity.TriggerSource)

// Interception suppresses submit, submit-button click and Enter keydown on a
// resolved triple and reports them to the handler. Resubmit replays the
// submission with suppression lifted for exactly that dispatch.
type Interception interface {
	Resubmit(ctx context.Context, target Element, trigger entity.TriggerSource) error
	Close() error
}

type DocumentPort interface {
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	Body(ctx context.Context) (Element, error)
	Observe(ctx context.Context, scope Element, opts ObserveOptions, fn func([]Mutation)) (Observation, error)
	Intercept(ctx context.Context, els ResolvedElements, fn InterceptHandler) (Interception, error)
}

// ReloadNotifier is implemented by backends whose document can be replaced by
// a full navigation. A replaced document has lost every observation and
// interception installed on the old one.
type ReloadNotifier interface {
	Reloads() <-chan struct{}
}

// Snapshotter is implemented by backends that can capture the page for debugging.
type Snapshotter interface {
	Snapshot(ctx context.Context, reason string) (string, error)
}
