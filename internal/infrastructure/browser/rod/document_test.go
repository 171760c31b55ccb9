package rod

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/logger"
)

const chatHTML = `<!DOCTYPE html>
<html>
<body>
	<main id="chat">
		<form id="composer">
			<textarea id="prompt" name="prompt"></textarea>
			<div id="rich" contenteditable="true"></div>
			<button id="send" type="submit">Send</button>
		</form>
	</main>
	<div id="log"></div>
	<script>
		window.submitted = [];
		document.getElementById('composer').addEventListener('submit', function (e) {
			e.preventDefault();
			window.submitted.push(document.getElementById('prompt').value);
		});
	</script>
</body>
</html>`

func newTestDocument(t *testing.T) (*Browser, *Document) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(chatHTML))
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Headless = true
	cfg.NoSandbox = os.Getuid() == 0

	log := logger.NewNopLogger()
	b, err := Launch(ctx, cfg, log)
	if err != nil {
		t.Skipf("no browser available: %v", err)
	}
	t.Cleanup(b.Close)

	require.NoError(t, b.Navigate(ctx, srv.URL))

	doc, err := NewDocument(ctx, b.Page(), log)
	require.NoError(t, err)
	t.Cleanup(doc.Close)
	return b, doc
}

func queryOne(t *testing.T, doc *Document, selector string) output.Element {
	t.Helper()
	els, err := doc.QueryAll(context.Background(), selector)
	require.NoError(t, err)
	require.Len(t, els, 1, selector)
	return els[0]
}

func TestDocument_QueryCSSAndXPath(t *testing.T) {
	_, doc := newTestDocument(t)
	ctx := context.Background()

	css := queryOne(t, doc, "#prompt")
	xpath := queryOne(t, doc, "//textarea[@name='prompt']")
	assert.Equal(t, css.Handle(), xpath.Handle())

	tag, err := css.TagName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "textarea", tag)

	_, err = doc.QueryAll(ctx, "div[")
	assert.Error(t, err)
}

func TestDocument_EditableKinds(t *testing.T) {
	_, doc := newTestDocument(t)
	ctx := context.Background()

	kind, err := queryOne(t, doc, "#prompt").EditableKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, output.EditableFormControl, kind)

	kind, err = queryOne(t, doc, "#rich").EditableKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, output.EditableRichText, kind)

	kind, err = queryOne(t, doc, "#send").EditableKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, output.EditableNone, kind)
}

func TestDocument_ValueRoundTrip(t *testing.T) {
	_, doc := newTestDocument(t)
	ctx := context.Background()
	el := queryOne(t, doc, "#prompt")

	text := "héllo \"world\" <tag> \\n 日本語"
	require.NoError(t, el.SetValue(ctx, text))
	require.NoError(t, el.Dispatch(ctx, "input"))

	got, err := el.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

func TestDocument_DetachedWritesFail(t *testing.T) {
	b, doc := newTestDocument(t)
	ctx := context.Background()
	el := queryOne(t, doc, "#prompt")

	_, err := b.Page().Eval(`() => document.getElementById('prompt').remove()`)
	require.NoError(t, err)

	connected, err := el.Connected(ctx)
	require.NoError(t, err)
	assert.False(t, connected)
	assert.ErrorIs(t, el.SetValue(ctx, "x"), entity.ErrElementGone)
	assert.ErrorIs(t, el.Dispatch(ctx, "input"), entity.ErrElementGone)
}

func TestDocument_InterceptAndResubmit(t *testing.T) {
	b, doc := newTestDocument(t)
	ctx := context.Background()

	els := output.ResolvedElements{
		Form:         queryOne(t, doc, "#composer"),
		Textarea:     queryOne(t, doc, "#prompt"),
		SubmitButton: queryOne(t, doc, "#send"),
	}

	var mu sync.Mutex
	var triggers []entity.TriggerSource
	ic, err := doc.Intercept(ctx, els, func(trigger entity.TriggerSource) {
		mu.Lock()
		triggers = append(triggers, trigger)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer ic.Close()

	require.NoError(t, els.Textarea.SetValue(ctx, "hello"))
	_, err = b.Page().Eval(`() => document.getElementById('send').click()`)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(triggers) == 1 && triggers[0] == entity.TriggerClick
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, b.Page().MustEval(`() => window.submitted.length`).Int())

	require.NoError(t, ic.Resubmit(ctx, els.SubmitButton, entity.TriggerClick))
	assert.Equal(t, "hello", b.Page().MustEval(`() => window.submitted[0]`).Str())

	mu.Lock()
	assert.Len(t, triggers, 1)
	mu.Unlock()
}

func TestDocument_ObserveReportsChildList(t *testing.T) {
	b, doc := newTestDocument(t)
	ctx := context.Background()

	body, err := doc.Body(ctx)
	require.NoError(t, err)

	got := make(chan []output.Mutation, 4)
	obs, err := doc.Observe(ctx, body, output.ObserveOptions{ChildList: true, Subtree: true}, func(m []output.Mutation) {
		got <- m
	})
	require.NoError(t, err)
	defer obs.Disconnect()

	_, err = b.Page().Eval(`() => document.getElementById('log').appendChild(document.createElement('p'))`)
	require.NoError(t, err)

	select {
	case muts := <-got:
		require.NotEmpty(t, muts)
		assert.Equal(t, "childList", muts[0].Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no mutation delivered")
	}
}

func TestDocument_Snapshot(t *testing.T) {
	_, doc := newTestDocument(t)
	doc.SetSnapshotDir(t.TempDir())

	path, err := doc.Snapshot(context.Background(), "attempt-1/guard timeout")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Contains(t, path, "attempt-1_guard_timeout")
}

func TestDocument_QueryPrunesDetachedNodes(t *testing.T) {
	b, doc := newTestDocument(t)
	ctx := context.Background()
	tracked := func() int {
		return b.Page().MustEval(`() => window.__ci.tracked()`).Int()
	}

	queryOne(t, doc, "#prompt")
	send := queryOne(t, doc, "#send")
	before := tracked()

	_, err := b.Page().Eval(`() => document.getElementById('prompt').remove()`)
	require.NoError(t, err)

	_, err = doc.QueryAll(ctx, "#send")
	require.NoError(t, err)
	assert.Equal(t, before-1, tracked())

	again := queryOne(t, doc, "#send")
	assert.Equal(t, send.Handle(), again.Handle())
}

func TestDocument_ReloadIsSignalled(t *testing.T) {
	b, doc := newTestDocument(t)

	b.Page().MustReload()

	select {
	case <-doc.Reloads():
	case <-time.After(5 * time.Second):
		t.Fatal("reload not signalled")
	}
	assert.True(t, b.Page().MustEval(`() => !!window.__ci`).Bool())
	queryOne(t, doc, "#prompt")
}
