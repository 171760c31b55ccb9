package injector

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/browser/htmldom"
	"context-injector/internal/infrastructure/logger"
)

const page = `<html><body><form>
<textarea id="ta">draft</textarea>
<div id="rich" contenteditable="true"><p>draft</p></div>
<input id="text" type="text" value="draft">
<button id="send">Send</button>
</form></body></html>`

var roundTrip = []string{
	"",
	"best pizza in rome",
	"ünïcödé 🍕 日本語 ﷽",
	`<script>alert("x")</script> & &amp; 'quotes' \backslash`,
	"line one\nline two\ttabbed\r\n",
}

func newInjector() *Injector {
	i := New(clock.New(), logger.NewNopLogger())
	i.SetTypingDelay(0, 0)
	return i
}

func TestInject_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, mode := range []entity.InjectMode{entity.InjectInstant, entity.InjectSimulated} {
		for _, target := range []string{"#ta", "#rich", "#text"} {
			for _, text := range roundTrip {
				doc := htmldom.MustParse(page)
				el := doc.MustQuery(target)
				i := newInjector()

				require.NoError(t, i.Inject(ctx, el, text, mode), "%s %s %q", mode, target, text)
				got, err := i.Read(ctx, el)
				require.NoError(t, err)
				assert.Equal(t, text, got, "%s %s", mode, target)
			}
		}
	}
}

func TestInject_InputEventsPerMode(t *testing.T) {
	ctx := context.Background()

	count := func(mode entity.InjectMode, text string) (inputs, changes int) {
		doc := htmldom.MustParse(page)
		el := doc.MustQuery("#ta")
		doc.AddEventListener(nil, "input", false, func(*htmldom.Event) { inputs++ })
		doc.AddEventListener(nil, "change", false, func(*htmldom.Event) { changes++ })
		require.NoError(t, newInjector().Inject(ctx, el, text, mode))
		return inputs, changes
	}

	inputs, changes := count(entity.InjectInstant, "héllo")
	assert.Equal(t, 1, inputs)
	assert.Equal(t, 1, changes)

	inputs, changes = count(entity.InjectSimulated, "héllo")
	assert.Equal(t, 5, inputs)
	assert.Equal(t, 1, changes)
}

func TestInject_SimulatedHonoursDelay(t *testing.T) {
	doc := htmldom.MustParse(page)
	i := New(clock.New(), logger.NewNopLogger())
	i.SetTypingDelay(2*time.Millisecond, 3*time.Millisecond)

	start := time.Now()
	require.NoError(t, i.Inject(context.Background(), doc.MustQuery("#ta"), "abcd", entity.InjectSimulated))
	assert.GreaterOrEqual(t, time.Since(start), 8*time.Millisecond)
}

func TestInject_SimulatedCancelled(t *testing.T) {
	doc := htmldom.MustParse(page)
	i := New(clock.New(), logger.NewNopLogger())
	i.SetTypingDelay(time.Second, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := i.Inject(ctx, doc.MustQuery("#ta"), "slow", entity.InjectSimulated)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInject_RewritesOnceAfterHostEdit(t *testing.T) {
	doc := htmldom.MustParse(page)
	el := doc.MustQuery("#ta")
	edited := false
	doc.AddEventListener(el, "change", false, func(ev *htmldom.Event) {
		if !edited {
			edited = true
			_ = el.SetValue(context.Background(), "host rewrote this")
		}
	})

	require.NoError(t, newInjector().Inject(context.Background(), el, "enhanced", entity.InjectInstant))
	v, _ := el.Value(context.Background())
	assert.Equal(t, "enhanced", v)
}

func TestInject_PersistentMismatch(t *testing.T) {
	doc := htmldom.MustParse(page)
	el := doc.MustQuery("#ta")
	doc.AddEventListener(el, "change", false, func(ev *htmldom.Event) {
		_ = el.SetValue(context.Background(), "")
	})

	err := newInjector().Inject(context.Background(), el, "enhanced", entity.InjectInstant)
	assert.ErrorIs(t, err, entity.ErrInjectionMismatch)
	assert.ErrorIs(t, err, entity.ErrInjectionFailure)
}

func TestInject_ElementRemovedMidWrite(t *testing.T) {
	doc := htmldom.MustParse(page)
	el := doc.MustQuery("#ta")
	doc.AddEventListener(el, "input", false, func(*htmldom.Event) { doc.Remove(el) })

	err := newInjector().Inject(context.Background(), el, "enhanced", entity.InjectInstant)
	assert.ErrorIs(t, err, entity.ErrElementGone)
}

func TestInject_NotEditable(t *testing.T) {
	doc := htmldom.MustParse(page)
	err := newInjector().Inject(context.Background(), doc.MustQuery("#send"), "x", entity.InjectInstant)
	assert.ErrorIs(t, err, entity.ErrInjectionFailure)
}
