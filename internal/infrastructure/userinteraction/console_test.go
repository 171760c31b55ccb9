package userinteraction

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"context-injector/internal/domain/entity"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func TestConsoleReporter_Output(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporterTo(&buf, strings.NewReader(""))

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.StateChanged(3, entity.StateIdle, entity.StateIntercepted)
	r.AttemptFinished(entity.SubmissionAttempt{
		ID: 3, Status: entity.AttemptCompleted, Enhanced: true, FetchCalls: 1,
		EnhancedText: "best pizza in rome [context]", StartedAt: start, FinishedAt: start.Add(time.Second),
	})
	r.AttemptFinished(entity.SubmissionAttempt{
		ID: 4, Status: entity.AttemptAborted, AbortReason: entity.AbortElementsLost, OriginalText: "hi",
	})

	out := buf.String()
	assert.Contains(t, out, "#3 idle → intercepted")
	assert.Contains(t, out, "#3 submitted with context (1s, 1 fetch)")
	assert.Contains(t, out, "#4 aborted: elements_lost")
}

func TestWaitForUserAction(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporterTo(&buf, strings.NewReader("\n"))
	assert.NoError(t, r.WaitForUserAction(context.Background(), "log in"))
	assert.Contains(t, buf.String(), "log in")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", truncate("héllo", 10))
	assert.Equal(t, "hé...", truncate("héllo", 2))
}
