// Package htmldom is an in-memory DOM over golang.org/x/net/html. It keeps the
// parts of browser behaviour the engine depends on: CSS and XPath queries,
// value properties, capture/bubble event dispatch with default actions,
// mutation observers and form submission.
package htmldom

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

var _ output.DocumentPort = (*Document)(nil)

// Submission is recorded whenever a form submit event is not cancelled.
type Submission struct {
	Form   string
	Fields map[string]string
	Text   string
}

type Document struct {
	mu          sync.Mutex
	root        *html.Node
	handles     map[*html.Node]string
	nodes       map[string]*html.Node
	values      map[*html.Node]string
	listeners   map[*html.Node][]*listener
	observers   []*observer
	submissions []Submission
	nextID      int
	nextObs     int
	snapshotDir string
}

func Parse(src string) (*Document, error) {
	root, err := htmlquery.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{
		root:      root,
		handles:   make(map[*html.Node]string),
		nodes:     make(map[string]*html.Node),
		values:    make(map[*html.Node]string),
		listeners: make(map[*html.Node][]*listener),
	}, nil
}

func MustParse(src string) *Document {
	d, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Document) QueryAll(ctx context.Context, selector string) ([]output.Element, error) {
	nodes, err := d.query(selector)
	if err != nil {
		return nil, err
	}
	result := make([]output.Element, 0, len(nodes))
	for _, n := range nodes {
		result = append(result, d.wrap(n))
	}
	return result, nil
}

// Query returns the first element matching selector, or nil.
func (d *Document) Query(selector string) *Element {
	nodes, err := d.query(selector)
	if err != nil || len(nodes) == 0 {
		return nil
	}
	return d.wrap(nodes[0])
}

func (d *Document) MustQuery(selector string) *Element {
	el := d.Query(selector)
	if el == nil {
		panic("htmldom: no element for " + selector)
	}
	return el
}

func (d *Document) query(selector string) ([]*html.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entity.IsXPath(selector) {
		nodes, err := htmlquery.QueryAll(d.root, entity.TrimXPath(selector))
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", selector, err)
		}
		return elementsOnly(nodes), nil
	}

	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return elementsOnly(sel.MatchAll(d.root)), nil
}

func (d *Document) Body(ctx context.Context) (output.Element, error) {
	d.mu.Lock()
	body := htmlquery.FindOne(d.root, "//body")
	d.mu.Unlock()
	if body == nil {
		return nil, fmt.Errorf("document has no body")
	}
	return d.wrap(body), nil
}

func (d *Document) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Submission, len(d.submissions))
	copy(out, d.submissions)
	return out
}

// HTML renders the current tree, mostly for test failure messages.
func (d *Document) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return htmlquery.OutputHTML(d.root, true)
}

func (d *Document) wrap(n *html.Node) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &Element{doc: d, node: n, handle: d.handleLocked(n)}
}

func (d *Document) handleLocked(n *html.Node) string {
	if h, ok := d.handles[n]; ok {
		return h
	}
	d.nextID++
	h := "node-" + strconv.Itoa(d.nextID)
	d.handles[n] = h
	d.nodes[h] = n
	return h
}

func (d *Document) connectedLocked(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// Remove detaches el from the tree.
func (d *Document) Remove(el *Element) {
	d.mu.Lock()
	parent := el.node.Parent
	if parent == nil {
		d.mu.Unlock()
		return
	}
	parent.RemoveChild(el.node)
	pending := d.collectLocked(output.Mutation{Type: "childList", Target: d.handleLocked(parent)}, parent)
	d.mu.Unlock()
	deliver(pending)
}

// AppendHTML parses fragment in the context of parent and appends the result.
func (d *Document) AppendHTML(parent *Element, fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent.node)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}
	d.mu.Lock()
	for _, n := range nodes {
		parent.node.AppendChild(n)
	}
	pending := d.collectLocked(output.Mutation{Type: "childList", Target: d.handleLocked(parent.node)}, parent.node)
	d.mu.Unlock()
	deliver(pending)
	return nil
}

// ReplaceChildren swaps all children of parent for the parsed fragment, the way
// a client-side re-render does.
func (d *Document) ReplaceChildren(parent *Element, fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent.node)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}
	d.mu.Lock()
	removeChildren(parent.node)
	for _, n := range nodes {
		parent.node.AppendChild(n)
	}
	pending := d.collectLocked(output.Mutation{Type: "childList", Target: d.handleLocked(parent.node)}, parent.node)
	d.mu.Unlock()
	deliver(pending)
	return nil
}

func (d *Document) SetAttribute(el *Element, name, value string) {
	d.mu.Lock()
	setAttr(el.node, name, value)
	pending := d.collectLocked(output.Mutation{Type: "attributes", Target: el.handle, Attribute: name}, el.node)
	d.mu.Unlock()
	deliver(pending)
}

func (d *Document) RemoveAttribute(el *Element, name string) {
	d.mu.Lock()
	removeAttr(el.node, name)
	pending := d.collectLocked(output.Mutation{Type: "attributes", Target: el.handle, Attribute: name}, el.node)
	d.mu.Unlock()
	deliver(pending)
}

func elementsOnly(nodes []*html.Node) []*html.Node {
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
	}
	return out
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != name {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

func isDescendant(n, ancestor *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func closest(n *html.Node, tag string) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == tag {
			return p
		}
	}
	return nil
}
