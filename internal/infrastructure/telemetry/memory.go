// Package telemetry holds the sinks that persist APIRequestRecords.
package telemetry

import (
	"context"
	"sync"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

var _ output.TelemetrySink = (*MemorySink)(nil)

const DefaultMemoryCapacity = 500

// MemorySink keeps the most recent records in a ring for export.
type MemorySink struct {
	mu      sync.RWMutex
	records []entity.APIRequestRecord
	next    int
	full    bool
}

func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemorySink{records: make([]entity.APIRequestRecord, capacity)}
}

func (m *MemorySink) Append(ctx context.Context, rec entity.APIRequestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[m.next] = rec
	m.next = (m.next + 1) % len(m.records)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Records returns the stored records oldest first.
func (m *MemorySink) Records() []entity.APIRequestRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.full {
		return append([]entity.APIRequestRecord(nil), m.records[:m.next]...)
	}
	out := make([]entity.APIRequestRecord, 0, len(m.records))
	out = append(out, m.records[m.next:]...)
	return append(out, m.records[:m.next]...)
}
