package watcher

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/browser/htmldom"
	"context-injector/internal/infrastructure/logger"
	"context-injector/internal/usecase/resolver"
)

const page = `<html><body>
<div id="app"><main>
  <form id="composer">
    <textarea id="prompt"></textarea>
    <button type="submit" id="send">Send</button>
  </form>
</main></div>
</body></html>`

var strategies = []entity.SelectorStrategy{{
	Name: "generic-form", Form: "form", Textarea: "form textarea", SubmitButton: "form button[type='submit']",
}}

type countingDoc struct {
	*htmldom.Document
	observes int
}

func (c *countingDoc) Observe(ctx context.Context, scope output.Element, opts output.ObserveOptions, fn func([]output.Mutation)) (output.Observation, error) {
	c.observes++
	return c.Document.Observe(ctx, scope, opts, fn)
}

type events struct {
	mu    sync.Mutex
	ready []output.ResolvedElements
	lost  []output.ResolvedElements
}

func (e *events) onReady(els output.ResolvedElements) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = append(e.ready, els)
}

func (e *events) onLost(els output.ResolvedElements) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lost = append(e.lost, els)
}

func (e *events) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ready), len(e.lost)
}

func newWatcher(doc output.DocumentPort) *Watcher {
	log := logger.NewNopLogger()
	return New(doc, resolver.New(doc, log), log)
}

func TestStart_ReadyAndScoped(t *testing.T) {
	doc := htmldom.MustParse(page)
	w := newWatcher(doc)
	ev := &events{}

	require.NoError(t, w.Start(context.Background(), strategies, ev.onReady, ev.onLost))
	defer w.Stop()

	ready, lost := ev.counts()
	assert.Equal(t, 1, ready)
	assert.Zero(t, lost)
	assert.Equal(t, "generic-form", w.Current().StrategyName)

	tag, _ := w.Scope().TagName(context.Background())
	assert.Equal(t, "main", tag)
}

func TestStart_TwiceKeepsSingleSubscription(t *testing.T) {
	doc := &countingDoc{Document: htmldom.MustParse(page)}
	w := newWatcher(doc)
	ev := &events{}

	require.NoError(t, w.Start(context.Background(), strategies, ev.onReady, ev.onLost))
	require.NoError(t, w.Start(context.Background(), strategies, ev.onReady, ev.onLost))
	assert.Equal(t, 1, doc.observes)

	w.Stop()
	w.Stop()
	assert.False(t, w.Active())

	require.NoError(t, w.Start(context.Background(), strategies, ev.onReady, ev.onLost))
	assert.Equal(t, 2, doc.observes)
	w.Stop()
}

func TestMutations_LostThenReady(t *testing.T) {
	doc := htmldom.MustParse(page)
	w := newWatcher(doc)
	ev := &events{}
	require.NoError(t, w.Start(context.Background(), strategies, ev.onReady, ev.onLost))
	defer w.Stop()

	first := w.Current()
	doc.Remove(doc.MustQuery("#prompt"))

	ready, lost := ev.counts()
	assert.Equal(t, 1, ready)
	assert.Equal(t, 1, lost)
	assert.False(t, w.Current().Ready())

	require.NoError(t, doc.AppendHTML(doc.MustQuery("#composer"), `<textarea id="prompt2"></textarea>`))
	ready, lost = ev.counts()
	assert.Equal(t, 2, ready)
	assert.Equal(t, 1, lost)
	assert.NotEqual(t, first.Textarea.Handle(), w.Current().Textarea.Handle())
}

func TestMutations_UnchangedTripleIsQuiet(t *testing.T) {
	doc := htmldom.MustParse(page)
	w := newWatcher(doc)
	ev := &events{}
	require.NoError(t, w.Start(context.Background(), strategies, ev.onReady, ev.onLost))
	defer w.Stop()

	doc.SetAttribute(doc.MustQuery("#send"), "disabled", "")
	doc.SetAttribute(doc.MustQuery("#send"), "class", "busy")
	require.NoError(t, doc.AppendHTML(doc.MustQuery("main"), `<p>typing...</p>`))

	ready, lost := ev.counts()
	assert.Equal(t, 1, ready)
	assert.Zero(t, lost)
}

func TestStop_NoCallbacksAfterward(t *testing.T) {
	doc := htmldom.MustParse(page)
	w := newWatcher(doc)
	ev := &events{}
	require.NoError(t, w.Start(context.Background(), strategies, ev.onReady, ev.onLost))

	w.Stop()
	doc.Remove(doc.MustQuery("#prompt"))

	ready, lost := ev.counts()
	assert.Equal(t, 1, ready)
	assert.Zero(t, lost)
}

func TestRefresh_RescopesToBodyWhenScopeDetached(t *testing.T) {
	doc := htmldom.MustParse(page)
	w := newWatcher(doc)
	ev := &events{}
	require.NoError(t, w.Start(context.Background(), strategies, ev.onReady, ev.onLost))
	defer w.Stop()

	doc.Remove(doc.MustQuery("main"))
	got := w.Refresh()
	assert.False(t, got.Ready())

	tag, _ := w.Scope().TagName(context.Background())
	assert.Equal(t, "body", tag)

	require.NoError(t, doc.AppendHTML(doc.MustQuery("#app"),
		`<form><textarea></textarea><button type="submit">Send</button></form>`))
	ready, lost := ev.counts()
	assert.Equal(t, 2, ready)
	assert.Equal(t, 1, lost)
}

func TestStart_NoMatchObservesBody(t *testing.T) {
	doc := htmldom.MustParse(`<html><body><div id="loading"></div></body></html>`)
	w := newWatcher(doc)
	ev := &events{}
	require.NoError(t, w.Start(context.Background(), strategies, ev.onReady, ev.onLost))
	defer w.Stop()

	ready, _ := ev.counts()
	assert.Zero(t, ready)
	tag, _ := w.Scope().TagName(context.Background())
	assert.Equal(t, "body", tag)

	require.NoError(t, doc.ReplaceChildren(doc.MustQuery("#loading"),
		`<form><textarea></textarea><button type="submit">Send</button></form>`))
	ready, _ = ev.counts()
	assert.Equal(t, 1, ready)
}
