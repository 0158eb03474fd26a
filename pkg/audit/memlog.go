package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemLog is an in-memory Log. It backs the memory task store and tests.
type MemLog struct {
	mu      sync.RWMutex
	entries []Entry // insertion order
	now     func() time.Time
}

// NewMemLog creates an empty MemLog.
func NewMemLog() *MemLog {
	return &MemLog{now: time.Now}
}

// EnsureTable is a no-op.
func (l *MemLog) EnsureTable(context.Context) error { return nil }

// Append seals and stores e.
func (l *MemLog) Append(_ context.Context, e *Entry) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := prepare(e, l.now()); err != nil {
		return nil, err
	}
	prevHash := ""
	if n := len(l.entries); n > 0 {
		prevHash = l.entries[n-1].Hash
	}
	if err := seal(e, prevHash); err != nil {
		return nil, err
	}
	e.Seq = int64(len(l.entries) + 1)
	l.entries = append(l.entries, *e)
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (l *MemLog) Recent(_ context.Context, limit int) ([]Entry, error) {
	l.mu.RLock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	l.mu.RUnlock()
	return newestFirst(out, limit), nil
}

// ByTask returns up to limit entries for taskID, newest first.
func (l *MemLog) ByTask(_ context.Context, taskID string, limit int) ([]Entry, error) {
	l.mu.RLock()
	var out []Entry
	for _, e := range l.entries {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	l.mu.RUnlock()
	return newestFirst(out, limit), nil
}

// Count returns the number of entries.
func (l *MemLog) Count(context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// VerifyChain checks the hash chain.
func (l *MemLog) VerifyChain(context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return verify(l.entries)
}

func newestFirst(entries []Entry, limit int) []Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].Seq > entries[j].Seq
	})
	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
