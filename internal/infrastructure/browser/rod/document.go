package rod

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
	"context-injector/internal/util"
)

//go:embed shim.js
var shim string

var (
	_ output.DocumentPort   = (*Document)(nil)
	_ output.Snapshotter    = (*Document)(nil)
	_ output.ReloadNotifier = (*Document)(nil)
)

const (
	mutationBinding  = "__ciMutation"
	interceptBinding = "__ciIntercept"
)

var ErrForeignElement = errors.New("element does not belong to this page")

// Document talks to the page through the injected __ci shim. Element handles
// are shim ids and are scoped to one loaded document.
type Document struct {
	page   *rod.Page
	logger output.LoggerPort

	mu         sync.Mutex
	observers  map[string]func([]output.Mutation)
	intercepts map[string]output.InterceptHandler
	seq        atomic.Int64

	stops   []func() error
	reloads chan struct{}

	snapshotDir string
}

// NewDocument exposes the Go bindings and installs the shim in the current
// document and every document loaded after it.
func NewDocument(ctx context.Context, page *rod.Page, logger output.LoggerPort) (*Document, error) {
	d := &Document{
		page:        page.Context(ctx),
		logger:      logger,
		observers:   make(map[string]func([]output.Mutation)),
		intercepts:  make(map[string]output.InterceptHandler),
		reloads:     make(chan struct{}, 1),
		snapshotDir: "log",
	}

	stop, err := d.page.Expose(mutationBinding, d.onMutation)
	if err != nil {
		return nil, fmt.Errorf("expose %s: %w", mutationBinding, err)
	}
	d.stops = append(d.stops, stop)

	stop, err = d.page.Expose(interceptBinding, d.onIntercept)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("expose %s: %w", interceptBinding, err)
	}
	d.stops = append(d.stops, stop)

	remove, err := d.page.EvalOnNewDocument("(" + shim + ")()")
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("install shim: %w", err)
	}
	d.stops = append(d.stops, remove)

	if _, err := d.page.Eval(shim); err != nil {
		d.Close()
		return nil, fmt.Errorf("install shim: %w", err)
	}

	// DOMContentLoaded of the main frame means a new document with a fresh
	// shim; everything registered in the old one is gone.
	navCtx, cancel := context.WithCancel(ctx)
	wait := d.page.Context(navCtx).EachEvent(func(*proto.PageDomContentEventFired) {
		d.onReload()
	})
	util.SafeGo(logger, "rod-navigation", wait)
	d.stops = append(d.stops, func() error {
		cancel()
		return nil
	})

	return d, nil
}

// Reloads signals each time the page loads a new document.
func (d *Document) Reloads() <-chan struct{} {
	return d.reloads
}

func (d *Document) onReload() {
	d.mu.Lock()
	clear(d.observers)
	clear(d.intercepts)
	d.mu.Unlock()

	d.logger.Debug("page loaded a new document")
	select {
	case d.reloads <- struct{}{}:
	default:
	}
}

func (d *Document) Close() {
	for _, stop := range d.stops {
		_ = stop()
	}
	d.stops = nil
}

// call invokes a shim method. A thrown ci:gone maps to entity.ErrElementGone.
func (d *Document) call(ctx context.Context, method string, args ...any) (gson.JSON, error) {
	res, err := d.page.Context(ctx).Eval(`(m, ...a) => window.__ci[m](...a)`, append([]any{method}, args...)...)
	if err != nil {
		return gson.New(nil), classify(method, err)
	}
	return res.Value, nil
}

func classify(method string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ci:gone"):
		return entity.ErrElementGone
	case strings.Contains(msg, "ci:disabled"):
		return fmt.Errorf("%s: target is disabled", method)
	case strings.Contains(msg, "ci:noform"):
		return fmt.Errorf("%s: target is not inside a form", method)
	}
	return fmt.Errorf("%s: %w", method, err)
}

func (d *Document) wrap(id string) *Element {
	return &Element{doc: d, id: id}
}

func (d *Document) QueryAll(ctx context.Context, selector string) ([]output.Element, error) {
	xpath := entity.IsXPath(selector)
	if xpath {
		selector = entity.TrimXPath(selector)
	}

	res, err := d.call(ctx, "query", selector, xpath)
	if err != nil {
		return nil, err
	}

	ids := res.Arr()
	out := make([]output.Element, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.wrap(id.Str()))
	}
	return out, nil
}

func (d *Document) Body(ctx context.Context) (output.Element, error) {
	res, err := d.call(ctx, "body")
	if err != nil {
		return nil, err
	}
	if res.Nil() {
		return nil, fmt.Errorf("document has no body")
	}
	return d.wrap(res.Str()), nil
}

func (d *Document) own(el output.Element) (string, error) {
	e, ok := el.(*Element)
	if !ok || e.doc != d {
		return "", ErrForeignElement
	}
	return e.id, nil
}

func (d *Document) nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, d.seq.Add(1))
}

type observeInit struct {
	ChildList       bool     `json:"childList"`
	Subtree         bool     `json:"subtree"`
	AttributeFilter []string `json:"attributeFilter"`
}

func (d *Document) Observe(ctx context.Context, scope output.Element, opts output.ObserveOptions, fn func([]output.Mutation)) (output.Observation, error) {
	scopeID, err := d.own(scope)
	if err != nil {
		return nil, err
	}

	obs := d.nextID("obs")
	d.mu.Lock()
	d.observers[obs] = fn
	d.mu.Unlock()

	init := observeInit{ChildList: opts.ChildList, Subtree: opts.Subtree, AttributeFilter: opts.AttributeFilter}
	if _, err := d.call(ctx, "observe", obs, scopeID, init); err != nil {
		d.mu.Lock()
		delete(d.observers, obs)
		d.mu.Unlock()
		return nil, err
	}

	return &observation{doc: d, id: obs}, nil
}

type observation struct {
	doc  *Document
	id   string
	once sync.Once
}

func (o *observation) Disconnect() {
	o.once.Do(func() {
		o.doc.mu.Lock()
		delete(o.doc.observers, o.id)
		o.doc.mu.Unlock()
		_, _ = o.doc.call(context.Background(), "disconnect", o.id)
	})
}

// onMutation runs on rod's binding goroutine; the observer callback is moved
// off it so that callbacks may evaluate in the page again.
func (d *Document) onMutation(payload gson.JSON) (interface{}, error) {
	obs := payload.Get("obs").Str()

	d.mu.Lock()
	fn := d.observers[obs]
	d.mu.Unlock()
	if fn == nil {
		return nil, nil
	}

	records := payload.Get("records").Arr()
	muts := make([]output.Mutation, 0, len(records))
	for _, r := range records {
		muts = append(muts, output.Mutation{
			Type:      r.Get("type").Str(),
			Target:    r.Get("target").Str(),
			Attribute: r.Get("attribute").Str(),
		})
	}

	util.SafeGo(d.logger, "rod-mutation", func() { fn(muts) })
	return nil, nil
}

func (d *Document) Intercept(ctx context.Context, els output.ResolvedElements, fn output.InterceptHandler) (output.Interception, error) {
	if !els.Ready() {
		return nil, fmt.Errorf("intercept: elements not resolved")
	}
	formID, err := d.own(els.Form)
	if err != nil {
		return nil, err
	}
	textareaID, err := d.own(els.Textarea)
	if err != nil {
		return nil, err
	}
	buttonID, err := d.own(els.SubmitButton)
	if err != nil {
		return nil, err
	}

	ic := d.nextID("ic")
	d.mu.Lock()
	d.intercepts[ic] = fn
	d.mu.Unlock()

	if _, err := d.call(ctx, "intercept", ic, formID, textareaID, buttonID); err != nil {
		d.mu.Lock()
		delete(d.intercepts, ic)
		d.mu.Unlock()
		return nil, err
	}

	return &interception{doc: d, id: ic}, nil
}

func (d *Document) onIntercept(payload gson.JSON) (interface{}, error) {
	d.mu.Lock()
	fn := d.intercepts[payload.Get("ic").Str()]
	d.mu.Unlock()
	if fn == nil {
		return nil, nil
	}

	trigger := entity.TriggerSource(payload.Get("trigger").Str())
	if err := util.SafeCall(func() error { fn(trigger); return nil }); err != nil {
		d.logger.Error("intercept handler failed", "error", err)
	}
	return nil, nil
}

type interception struct {
	doc  *Document
	id   string
	once sync.Once
}

func (ic *interception) Resubmit(ctx context.Context, target output.Element, trigger entity.TriggerSource) error {
	id, err := ic.doc.own(target)
	if err != nil {
		return err
	}
	_, err = ic.doc.call(ctx, "resubmit", id, string(trigger))
	return err
}

func (ic *interception) Close() error {
	var err error
	ic.once.Do(func() {
		ic.doc.mu.Lock()
		delete(ic.doc.intercepts, ic.id)
		ic.doc.mu.Unlock()
		_, err = ic.doc.call(context.Background(), "unintercept", ic.id)
	})
	return err
}

func protoTarget(url string) proto.TargetCreateTarget {
	return proto.TargetCreateTarget{URL: url}
}
