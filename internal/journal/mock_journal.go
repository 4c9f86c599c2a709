package journal

import (
	"context"
	"errors"
	"sort"
	"sync"

	"example.com/postfeed/internal/models"
)

// MockJournal keeps entries in memory for testing.
type MockJournal struct {
	mu         sync.Mutex
	Entries    map[int64][]models.Event
	ShouldFail bool
	Closed     bool
}

func NewMock() *MockJournal {
	return &MockJournal{Entries: make(map[int64][]models.Event)}
}

func (m *MockJournal) Append(ctx context.Context, userID int64, ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock journal append failed")
	}
	m.Entries[userID] = append(m.Entries[userID], ev)
	return nil
}

func (m *MockJournal) Recent(ctx context.Context, userID int64, limit int) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock journal read failed")
	}
	out := append([]models.Event(nil), m.Entries[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if limit = NormalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockJournal) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
}

// Len counts entries recorded for userID.
func (m *MockJournal) Len(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries[userID])
}

var (
	_ Journal = (*CassandraJournal)(nil)
	_ Journal = (*MockJournal)(nil)
)
