package htmldom

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/net/html"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

var ErrForeignElement = errors.New("element does not belong to this document")

type Event struct {
	Type     string
	Key      string
	ShiftKey bool
	Bubbles  bool
	Trusted  bool
	Target   *Element

	prevented bool
	stopped   bool
}

func (e *Event) PreventDefault()        { e.prevented = true }
func (e *Event) StopPropagation()       { e.stopped = true }
func (e *Event) DefaultPrevented() bool { return e.prevented }

type Listener func(ev *Event)

type listener struct {
	typ     string
	capture bool
	fn      Listener
}

// AddEventListener registers fn on target, or on the document itself when
// target is nil. The returned func removes the listener.
func (d *Document) AddEventListener(target *Element, typ string, capture bool, fn Listener) func() {
	node := d.root
	if target != nil {
		node = target.node
	}
	l := &listener{typ: typ, capture: capture, fn: fn}

	d.mu.Lock()
	d.listeners[node] = append(d.listeners[node], l)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.listeners[node] = slices.DeleteFunc(d.listeners[node], func(x *listener) bool { return x == l })
		})
	}
}

// dispatch runs the capture and bubble phases for ev and then the default
// action, unless a listener cancelled it. Listeners run without the lock held.
func (d *Document) dispatch(target *html.Node, ev *Event) {
	ev.Target = d.wrap(target)

	d.mu.Lock()
	var path []*html.Node
	for p := target; p != nil; p = p.Parent {
		path = append(path, p)
	}
	snapshot := make(map[*html.Node][]*listener, len(path))
	for _, n := range path {
		snapshot[n] = slices.Clone(d.listeners[n])
	}
	d.mu.Unlock()

	run := func(n *html.Node, capture bool) {
		for _, l := range snapshot[n] {
			if l.typ == ev.Type && l.capture == capture {
				l.fn(ev)
			}
		}
	}

	for i := len(path) - 1; i > 0 && !ev.stopped; i-- {
		run(path[i], true)
	}
	if !ev.stopped {
		run(target, true)
	}
	if !ev.stopped {
		run(target, false)
	}
	if ev.Bubbles {
		for i := 1; i < len(path) && !ev.stopped; i++ {
			run(path[i], false)
		}
	}

	if !ev.prevented {
		d.defaultAction(target, ev)
	}
}

func (d *Document) defaultAction(target *html.Node, ev *Event) {
	if ev.Type != "click" {
		return
	}
	d.mu.Lock()
	form := submitterForm(target)
	d.mu.Unlock()
	if form != nil {
		d.submit(form)
	}
}

func submitterForm(n *html.Node) *html.Node {
	btn := closest(n, "button")
	if btn == nil && n.Data == "input" {
		if t, _ := attr(n, "type"); t == "submit" || t == "image" {
			btn = n
		}
	}
	if btn == nil {
		return nil
	}
	if btn.Data == "button" {
		if t, ok := attr(btn, "type"); ok && t != "submit" {
			return nil
		}
	}
	return closest(btn, "form")
}

func (d *Document) click(n *html.Node, trusted bool) bool {
	d.mu.Lock()
	blocked := disabled(n) || !d.connectedLocked(n)
	d.mu.Unlock()
	if blocked {
		return false
	}
	d.dispatch(n, &Event{Type: "click", Bubbles: true, Trusted: trusted})
	return true
}

func (d *Document) submit(form *html.Node) {
	ev := &Event{Type: "submit", Bubbles: true}
	d.dispatch(form, ev)
	if ev.prevented {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	sub := Submission{Form: d.handleLocked(form), Fields: make(map[string]string)}
	textSet := false
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			kind := editableKind(n)
			var value string
			switch kind {
			case output.EditableFormControl:
				value = d.valueLocked(n)
			case output.EditableRichText:
				value = innerText(n)
			}
			if kind != output.EditableNone {
				key, ok := attr(n, "name")
				if !ok {
					key, _ = attr(n, "id")
				}
				if key != "" {
					sub.Fields[key] = value
				}
				if !textSet {
					sub.Text, textSet = value, true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(form)
	d.submissions = append(d.submissions, sub)
}

type observer struct {
	scope  *html.Node
	opts   output.ObserveOptions
	fn     func([]output.Mutation)
	active atomic.Bool
}

type delivery struct {
	fn      func([]output.Mutation)
	records []output.Mutation
}

func (d *Document) Observe(ctx context.Context, scope output.Element, opts output.ObserveOptions, fn func([]output.Mutation)) (output.Observation, error) {
	el, ok := scope.(*Element)
	if !ok || el.doc != d {
		return nil, ErrForeignElement
	}
	o := &observer{scope: el.node, opts: opts, fn: fn}
	o.active.Store(true)

	d.mu.Lock()
	d.observers = append(d.observers, o)
	d.mu.Unlock()
	return &observation{doc: d, obs: o}, nil
}

type observation struct {
	doc *Document
	obs *observer
}

func (o *observation) Disconnect() {
	o.obs.active.Store(false)
	o.doc.mu.Lock()
	defer o.doc.mu.Unlock()
	o.doc.observers = slices.DeleteFunc(o.doc.observers, func(x *observer) bool { return x == o.obs })
}

func (d *Document) collectLocked(m output.Mutation, target *html.Node) []delivery {
	var out []delivery
	for _, o := range d.observers {
		inScope := target == o.scope || (o.opts.Subtree && isDescendant(target, o.scope))
		if !inScope {
			continue
		}
		switch m.Type {
		case "childList":
			if !o.opts.ChildList {
				continue
			}
		case "attributes":
			if !slices.Contains(o.opts.AttributeFilter, m.Attribute) {
				continue
			}
		}
		obs := o
		out = append(out, delivery{
			fn: func(records []output.Mutation) {
				if obs.active.Load() {
					obs.fn(records)
				}
			},
			records: []output.Mutation{m},
		})
	}
	return out
}

func deliver(ds []delivery) {
	for _, d := range ds {
		d.fn(d.records)
	}
}

// Intercept installs document-level capture listeners that cancel submit,
// send-button clicks and Enter keydowns and hand them to fn instead.
func (d *Document) Intercept(ctx context.Context, els output.ResolvedElements, fn output.InterceptHandler) (output.Interception, error) {
	form, err := d.own(els.Form)
	if err != nil {
		return nil, err
	}
	button, err := d.own(els.SubmitButton)
	if err != nil {
		return nil, err
	}
	textarea, err := d.own(els.Textarea)
	if err != nil {
		return nil, err
	}

	ic := &interception{doc: d}
	within := func(ev *Event, n *html.Node) bool {
		return n != nil && isDescendant(ev.Target.node, n)
	}
	handle := func(ev *Event, trigger entity.TriggerSource) {
		if ic.bypass.Load() > 0 {
			return
		}
		ev.PreventDefault()
		ev.StopPropagation()
		fn(trigger)
	}

	ic.removers = append(ic.removers,
		d.AddEventListener(nil, "submit", true, func(ev *Event) {
			if within(ev, form) {
				handle(ev, entity.TriggerSubmit)
			}
		}),
		d.AddEventListener(nil, "click", true, func(ev *Event) {
			if within(ev, button) {
				handle(ev, entity.TriggerClick)
			}
		}),
		d.AddEventListener(nil, "keydown", true, func(ev *Event) {
			if ev.Key == "Enter" && !ev.ShiftKey && within(ev, textarea) {
				handle(ev, entity.TriggerEnter)
			}
		}),
	)
	return ic, nil
}

func (d *Document) own(el output.Element) (*html.Node, error) {
	if el == nil {
		return nil, nil
	}
	e, ok := el.(*Element)
	if !ok || e.doc != d {
		return nil, ErrForeignElement
	}
	return e.node, nil
}

type interception struct {
	doc      *Document
	bypass   atomic.Int32
	removers []func()
}

// Resubmit replays the original submission with interception suspended for the
// duration of the synchronous dispatch. Submit triggers go through the form,
// everything else through a click on target.
func (ic *interception) Resubmit(ctx context.Context, target output.Element, trigger entity.TriggerSource) error {
	n, err := ic.doc.own(target)
	if err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("resubmit: no target")
	}
	if ok, _ := target.Connected(ctx); !ok {
		return entity.ErrElementGone
	}

	ic.bypass.Add(1)
	defer ic.bypass.Add(-1)

	if trigger == entity.TriggerSubmit {
		form := closest(n, "form")
		if form == nil {
			return fmt.Errorf("resubmit: %s is not inside a form", target.Handle())
		}
		ic.doc.submit(form)
		return nil
	}
	if !ic.doc.click(n, false) {
		return fmt.Errorf("resubmit: %s is disabled", target.Handle())
	}
	return nil
}

func (ic *interception) Close() error {
	for _, remove := range ic.removers {
		remove()
	}
	return nil
}

func innerText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var s string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s += innerText(c)
	}
	return s
}
