package userinteraction

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

var _ output.AttemptReporter = (*ConsoleReporter)(nil)

// ConsoleReporter prints attempt progress for someone watching the session.
type ConsoleReporter struct {
	out    io.Writer
	reader *bufio.Reader
}

func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: color.Output, reader: bufio.NewReader(os.Stdin)}
}

func NewConsoleReporterTo(w io.Writer, in io.Reader) *ConsoleReporter {
	return &ConsoleReporter{out: w, reader: bufio.NewReader(in)}
}

// WaitForUserAction blocks until the user presses Enter, e.g. after logging in
// to the chat site in the launched browser.
func (u *ConsoleReporter) WaitForUserAction(ctx context.Context, message string) error {
	fmt.Fprintf(u.out, "\n[USER ACTION REQUIRED] %s\n", message)
	fmt.Fprint(u.out, "Press Enter when done...")

	done := make(chan error, 1)
	go func() {
		_, err := u.reader.ReadString('\n')
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to wait for user: %w", err)
		}
		return nil
	}
}

func (u *ConsoleReporter) StateChanged(attemptID int64, from, to entity.EngineState) {
	icon, c := stateDisplay(to)
	c.Fprintf(u.out, "%s #%d %s → %s\n", icon, attemptID, from, to)
}

func (u *ConsoleReporter) AttemptFinished(a entity.SubmissionAttempt) {
	if a.Status == entity.AttemptAborted {
		red := color.New(color.FgRed, color.Bold)
		red.Fprintf(u.out, "❌ #%d aborted: %s (%s)\n", a.ID, a.AbortReason, a.Duration())
		dim := color.New(color.Faint)
		dim.Fprintf(u.out, "   message left in place: %s\n", truncate(a.OriginalText, 80))
		return
	}

	green := color.New(color.FgGreen, color.Bold)
	if a.Enhanced {
		green.Fprintf(u.out, "✓ #%d submitted with context (%s, %d fetch)\n", a.ID, a.Duration(), a.FetchCalls)
	} else {
		yellow := color.New(color.FgYellow)
		yellow.Fprintf(u.out, "✓ #%d submitted unchanged (%s, %d fetch)\n", a.ID, a.Duration(), a.FetchCalls)
	}
	dim := color.New(color.Faint)
	dim.Fprintf(u.out, "   %s\n", truncate(a.EnhancedText, 120))
}

func stateDisplay(state entity.EngineState) (string, *color.Color) {
	switch state {
	case entity.StateIntercepted:
		return "✋", color.New(color.FgCyan)
	case entity.StateEnhancing:
		return "🔎", color.New(color.FgBlue)
	case entity.StateInjected:
		return "✏️", color.New(color.FgMagenta)
	case entity.StateResubmitting:
		return "📤", color.New(color.FgYellow)
	case entity.StateAborted:
		return "⛔", color.New(color.FgRed)
	default:
		return "·", color.New(color.Faint)
	}
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
