// Package injector writes text into the host page's message field so that the
// page's own listeners observe it as user input.
package injector

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

type Injector struct {
	clock  clock.Clock
	logger output.LoggerPort

	mu       sync.RWMutex
	delayMin time.Duration
	delayMax time.Duration
}

func New(clk clock.Clock, logger output.LoggerPort) *Injector {
	return &Injector{
		clock:    clk,
		logger:   logger,
		delayMin: entity.DefaultTypingDelayMin,
		delayMax: entity.DefaultTypingDelayMax,
	}
}

// SetTypingDelay bounds the randomized pause between characters in simulated mode.
func (i *Injector) SetTypingDelay(lo, hi time.Duration) {
	if hi < lo {
		hi = lo
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.delayMin, i.delayMax = lo, hi
}

// writer is the tagged variant chosen from the element's capabilities.
type writer struct {
	kind  output.EditableKind
	read  func(ctx context.Context) (string, error)
	write func(ctx context.Context, s string) error
}

func writerFor(ctx context.Context, el output.Element) (writer, error) {
	kind, err := el.EditableKind(ctx)
	if err != nil {
		return writer{}, err
	}
	switch kind {
	case output.EditableFormControl:
		return writer{kind: kind, read: el.Value, write: el.SetValue}, nil
	case output.EditableRichText:
		return writer{kind: kind, read: el.TextContent, write: el.SetTextContent}, nil
	default:
		return writer{}, fmt.Errorf("%w: element %s is not editable", entity.ErrInjectionFailure, el.Handle())
	}
}

// Read returns the element's current value or text content.
func (i *Injector) Read(ctx context.Context, el output.Element) (string, error) {
	w, err := writerFor(ctx, el)
	if err != nil {
		return "", err
	}
	return w.read(ctx)
}

// Inject replaces the element's content with text. On return without error the
// element reads back exactly text.
func (i *Injector) Inject(ctx context.Context, el output.Element, text string, mode entity.InjectMode) error {
	w, err := writerFor(ctx, el)
	if err != nil {
		return err
	}

	if mode == entity.InjectSimulated {
		err = i.simulate(ctx, el, w, text)
	} else {
		err = i.instant(ctx, el, w, text)
	}
	if err != nil {
		return fmt.Errorf("inject into %s: %w", el.Handle(), err)
	}

	return i.verify(ctx, el, w, text)
}

func (i *Injector) instant(ctx context.Context, el output.Element, w writer, text string) error {
	if err := w.write(ctx, text); err != nil {
		return err
	}
	if err := el.Dispatch(ctx, "input"); err != nil {
		return err
	}
	return el.Dispatch(ctx, "change")
}

func (i *Injector) simulate(ctx context.Context, el output.Element, w writer, text string) error {
	if err := w.write(ctx, ""); err != nil {
		return err
	}

	var typed strings.Builder
	for _, r := range text {
		if err := i.pause(ctx); err != nil {
			return err
		}
		typed.WriteRune(r)
		if err := w.write(ctx, typed.String()); err != nil {
			return err
		}
		if err := el.Dispatch(ctx, "input"); err != nil {
			return err
		}
	}
	return el.Dispatch(ctx, "change")
}

// verify corrects a host-side rewrite with one bulk write before giving up.
func (i *Injector) verify(ctx context.Context, el output.Element, w writer, text string) error {
	got, err := w.read(ctx)
	if err != nil {
		return fmt.Errorf("read back %s: %w", el.Handle(), err)
	}
	if got == text {
		return nil
	}

	i.logger.Debug("injected value differs, rewriting", "element", el.Handle(), "kind", w.kind, "got_len", len(got), "want_len", len(text))
	if err := i.instant(ctx, el, w, text); err != nil {
		return fmt.Errorf("rewrite %s: %w", el.Handle(), err)
	}
	if got, err = w.read(ctx); err != nil {
		return fmt.Errorf("read back %s: %w", el.Handle(), err)
	}
	if got != text {
		return entity.ErrInjectionMismatch
	}
	return nil
}

func (i *Injector) pause(ctx context.Context) error {
	i.mu.RLock()
	lo, hi := i.delayMin, i.delayMax
	i.mu.RUnlock()

	d := lo
	if hi > lo {
		d += rand.N(hi - lo + 1)
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := i.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
