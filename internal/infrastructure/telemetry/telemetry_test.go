package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context-injector/internal/domain/entity"
)

func record(id int64, status entity.RequestStatus) entity.APIRequestRecord {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return entity.APIRequestRecord{
		Timestamp:         ts,
		ResponseTimestamp: ts.Add(120 * time.Millisecond),
		NetworkDuration:   120 * time.Millisecond,
		TotalDuration:     125 * time.Millisecond,
		Status:            status,
		AttemptID:         id,
		Backend:           "contextapi",
	}
}

func TestMemorySink_RingKeepsNewest(t *testing.T) {
	m := NewMemorySink(3)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, m.Append(context.Background(), record(i, entity.RequestSuccess)))
	}

	got := m.Records()
	require.Len(t, got, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{got[0].AttemptID, got[1].AttemptID, got[2].AttemptID})
}

func TestMemorySink_PartiallyFilled(t *testing.T) {
	m := NewMemorySink(0)
	require.NoError(t, m.Append(context.Background(), record(1, entity.RequestError)))
	assert.Len(t, m.Records(), 1)
}

func TestFileSink_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "telemetry.jsonl")
	s, err := NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, s.Append(context.Background(), record(1, entity.RequestSuccess)))
	require.NoError(t, s.Append(context.Background(), record(2, entity.RequestError)))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []entity.APIRequestRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec entity.APIRequestRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, entity.RequestError, lines[1].Status)
}

type failingSink struct{}

func (failingSink) Append(context.Context, entity.APIRequestRecord) error {
	return errors.New("disk full")
}

func TestMultiSink_AppendsEverywhere(t *testing.T) {
	mem := NewMemorySink(10)
	multi := MultiSink{mem, failingSink{}}

	err := multi.Append(context.Background(), record(1, entity.RequestSuccess))
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, mem.Records(), 1)
}

func TestMetrics_CountsAttemptsAndFetches(t *testing.T) {
	m := NewMetrics()

	m.StateChanged(1, entity.StateIdle, entity.StateIntercepted)
	m.AttemptFinished(entity.SubmissionAttempt{ID: 1, Status: entity.AttemptCompleted})
	m.AttemptFinished(entity.SubmissionAttempt{ID: 2, Status: entity.AttemptAborted, AbortReason: entity.AbortGuardTimeout})
	require.NoError(t, m.Append(context.Background(), record(1, entity.RequestSuccess)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("completed", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("aborted", "guard_timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("idle", "intercepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("contextapi", "success", "")))
}
