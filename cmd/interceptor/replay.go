package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"context-injector/internal/di"
	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/browser/htmldom"
	"context-injector/internal/usecase/resolver"
)

const replayPoll = 10 * time.Millisecond

// runReplay loads a saved chat page, types message into its input, presses
// the send button and prints what the page would have received.
func runReplay(ctx context.Context, c *di.Container, path, message string, out io.Writer) error {
	if message == "" {
		return errors.New("-replay needs -message")
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read page: %w", err)
	}
	doc, err := htmldom.Parse(string(src))
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}

	doc.SetSnapshotDir(c.Config.SnapshotDir)

	engine := c.NewInterceptor(doc, doc)
	settings := engine.Settings()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- engine.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(settings.GuardTimeout)
	if err := waitFor(ctx, deadline, func() bool { return engine.ActiveStrategy() != "" }); err != nil {
		return fmt.Errorf("no selector strategy matched %s", path)
	}

	els := resolver.New(doc, c.Logger).Resolve(ctx, settings.Strategies)
	textarea, ok1 := els.Textarea.(*htmldom.Element)
	button, ok2 := els.SubmitButton.(*htmldom.Element)
	if !ok1 || !ok2 {
		return fmt.Errorf("no selector strategy matched %s", path)
	}

	textarea.Type(message)
	button.Click()

	deadline = time.Now().Add(settings.GuardTimeout + time.Second)
	if err := waitFor(ctx, deadline, func() bool {
		a, ok := engine.LastAttempt()
		return ok && a.Status.Terminal()
	}); err != nil {
		return fmt.Errorf("attempt did not finish: %w", err)
	}

	a, _ := engine.LastAttempt()
	fmt.Fprintf(out, "strategy:  %s\n", els.StrategyName)
	fmt.Fprintf(out, "status:    %s\n", a.Status)
	if a.Status == entity.AttemptAborted {
		fmt.Fprintf(out, "reason:    %s\n", a.AbortReason)
	}
	fmt.Fprintf(out, "enhanced:  %t (%d fetch)\n", a.Enhanced, a.FetchCalls)
	for _, s := range doc.Submissions() {
		fmt.Fprintf(out, "submitted: %s\n", s.Text)
	}
	return nil
}

func waitFor(ctx context.Context, deadline time.Time, cond func() bool) error {
	for !cond() {
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(replayPoll):
		}
	}
	return nil
}
