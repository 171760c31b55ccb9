//go:build js && wasm

// Package jsdom implements the DOM port on the live page when the engine is
// compiled to WebAssembly and loaded as a content script.
package jsdom

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall/js"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
	"context-injector/internal/util"
)

var (
	_ output.DocumentPort = (*Document)(nil)

	ErrForeignElement = errors.New("element does not belong to this document")
)

const orderedNodeSnapshot = 7

type Document struct {
	doc    js.Value
	logger output.LoggerPort

	// ids maps nodes to handles weakly; Elements hold their node directly, so
	// nothing here keeps a detached node alive.
	mu  sync.Mutex
	ids js.Value
	seq int64

	// bypass is read from listeners that may run re-entrantly inside Resubmit.
	bypass atomic.Int32
}

func New(logger output.LoggerPort) *Document {
	return &Document{
		doc:    js.Global().Get("document"),
		logger: logger,
		ids:    js.Global().Get("WeakMap").New(),
	}
}

// try converts a thrown JS exception into an error.
func try(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if jsErr, ok := r.(js.Error); ok {
				err = jsErr
				return
			}
			panic(r)
		}
	}()
	fn()
	return nil
}

func nullish(v js.Value) bool {
	return v.IsNull() || v.IsUndefined()
}

func (d *Document) wrap(v js.Value) *Element {
	if nullish(v) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if id := d.ids.Call("get", v); !id.IsUndefined() {
		return &Element{doc: d, node: v, id: id.String()}
	}
	d.seq++
	id := "node-" + strconv.FormatInt(d.seq, 10)
	d.ids.Call("set", v, id)
	return &Element{doc: d, node: v, id: id}
}

func (d *Document) own(el output.Element) (*Element, error) {
	e, ok := el.(*Element)
	if !ok || e == nil || e.doc != d {
		return nil, ErrForeignElement
	}
	return e, nil
}

func (d *Document) QueryAll(ctx context.Context, selector string) ([]output.Element, error) {
	var out []output.Element
	err := try(func() {
		if entity.IsXPath(selector) {
			snap := d.doc.Call("evaluate", entity.TrimXPath(selector), d.doc, js.Null(), orderedNodeSnapshot, js.Null())
			n := snap.Get("snapshotLength").Int()
			for i := 0; i < n; i++ {
				node := snap.Call("snapshotItem", i)
				if node.Get("nodeType").Int() == 1 {
					out = append(out, d.wrap(node))
				}
			}
			return
		}
		list := d.doc.Call("querySelectorAll", selector)
		n := list.Get("length").Int()
		for i := 0; i < n; i++ {
			out = append(out, d.wrap(list.Index(i)))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return out, nil
}

func (d *Document) Body(ctx context.Context) (output.Element, error) {
	body := d.doc.Get("body")
	if nullish(body) {
		return nil, fmt.Errorf("document has no body")
	}
	return d.wrap(body), nil
}

func (d *Document) Observe(ctx context.Context, scope output.Element, opts output.ObserveOptions, fn func([]output.Mutation)) (output.Observation, error) {
	target, err := d.own(scope)
	if err != nil {
		return nil, err
	}

	cb := js.FuncOf(func(this js.Value, args []js.Value) any {
		records := args[0]
		n := records.Get("length").Int()
		muts := make([]output.Mutation, 0, n)
		for i := 0; i < n; i++ {
			r := records.Index(i)
			node := r.Get("target")
			if node.Get("nodeType").Int() != 1 {
				node = node.Get("parentElement")
			}
			m := output.Mutation{Type: r.Get("type").String()}
			if el := d.wrap(node); el != nil {
				m.Target = el.id
			}
			if name := r.Get("attributeName"); !nullish(name) {
				m.Attribute = name.String()
			}
			muts = append(muts, m)
		}
		util.SafeGo(d.logger, "jsdom-mutation", func() { fn(muts) })
		return nil
	})

	init := map[string]any{"childList": opts.ChildList, "subtree": opts.Subtree}
	if len(opts.AttributeFilter) > 0 {
		filter := make([]any, len(opts.AttributeFilter))
		for i, a := range opts.AttributeFilter {
			filter[i] = a
		}
		init["attributes"] = true
		init["attributeFilter"] = filter
	}

	mo := js.Global().Get("MutationObserver").New(cb)
	if err := try(func() { mo.Call("observe", target.node, init) }); err != nil {
		cb.Release()
		return nil, fmt.Errorf("observe: %w", err)
	}
	return &observation{mo: mo, cb: cb}, nil
}

type observation struct {
	mo   js.Value
	cb   js.Func
	once sync.Once
}

func (o *observation) Disconnect() {
	o.once.Do(func() {
		o.mo.Call("disconnect")
		o.cb.Release()
	})
}

type listener struct {
	typ string
	fn  js.Func
}

func (d *Document) Intercept(ctx context.Context, els output.ResolvedElements, fn output.InterceptHandler) (output.Interception, error) {
	if !els.Ready() {
		return nil, fmt.Errorf("intercept: elements not resolved")
	}
	form, err := d.own(els.Form)
	if err != nil {
		return nil, err
	}
	textarea, err := d.own(els.Textarea)
	if err != nil {
		return nil, err
	}
	button, err := d.own(els.SubmitButton)
	if err != nil {
		return nil, err
	}

	report := func(ev js.Value, trigger entity.TriggerSource) {
		if d.bypass.Load() > 0 {
			return
		}
		ev.Call("preventDefault")
		ev.Call("stopImmediatePropagation")
		fn(trigger)
	}
	within := func(ev js.Value, root js.Value) bool {
		target := ev.Get("target")
		return !nullish(target) && (target.Equal(root) || root.Call("contains", target).Bool())
	}

	ic := &interception{doc: d}
	add := func(typ string, handler func(ev js.Value)) {
		f := js.FuncOf(func(this js.Value, args []js.Value) any {
			handler(args[0])
			return nil
		})
		d.doc.Call("addEventListener", typ, f, true)
		ic.listeners = append(ic.listeners, listener{typ: typ, fn: f})
	}

	add("submit", func(ev js.Value) {
		if within(ev, form.node) {
			report(ev, entity.TriggerSubmit)
		}
	})
	add("click", func(ev js.Value) {
		if within(ev, button.node) {
			report(ev, entity.TriggerClick)
		}
	})
	add("keydown", func(ev js.Value) {
		if ev.Get("key").String() == "Enter" && !ev.Get("shiftKey").Bool() && !ev.Get("isComposing").Bool() && within(ev, textarea.node) {
			report(ev, entity.TriggerEnter)
		}
	})

	return ic, nil
}

type interception struct {
	doc       *Document
	listeners []listener
	once      sync.Once
}

func (ic *interception) Resubmit(ctx context.Context, target output.Element, trigger entity.TriggerSource) error {
	el, err := ic.doc.own(target)
	if err != nil {
		return err
	}
	if !el.node.Get("isConnected").Bool() {
		return entity.ErrElementGone
	}

	ic.doc.bypass.Add(1)
	defer ic.doc.bypass.Add(-1)

	if trigger == entity.TriggerSubmit {
		form := el.node
		if form.Get("tagName").String() != "FORM" {
			form = form.Call("closest", "form")
		}
		if nullish(form) {
			return fmt.Errorf("resubmit: %s is not inside a form", el.id)
		}
		return try(func() { form.Call("requestSubmit") })
	}

	if disabled(el.node) {
		return fmt.Errorf("resubmit: %s is disabled", el.id)
	}
	return try(func() { el.node.Call("click") })
}

func (ic *interception) Close() error {
	ic.once.Do(func() {
		for _, l := range ic.listeners {
			ic.doc.doc.Call("removeEventListener", l.typ, l.fn, true)
			l.fn.Release()
		}
		ic.listeners = nil
	})
	return nil
}
