// Package history is the debug-only snapshot/rewind buffer: a deep copy of
// game state at each phase entry, restorable on demand. The state machine
// never depends on it.
package history

import (
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/tierdrift/internal/game"
)

const maxEntries = 64

// Buffer keeps phase-start snapshots for one session.
type Buffer struct {
	entries []game.Snapshot
}

func (b *Buffer) record(s *game.Session) {
	snap := s.Snapshot()
	// Dedupe a re-entry of the same phase for the same item.
	if n := len(b.entries); n > 0 {
		last := b.entries[n-1]
		if last.Phase == snap.Phase && last.CurrentItem == snap.CurrentItem {
			return
		}
	}
	b.entries = append(b.entries, snap)
	if len(b.entries) > maxEntries {
		b.entries = b.entries[len(b.entries)-maxEntries:]
	}
}

// restorePrev rewinds to the snapshot before the current phase start.
func (b *Buffer) restorePrev(s *game.Session, clock clockwork.Clock, d game.Durations) bool {
	if len(b.entries) < 2 {
		return false
	}
	b.entries = b.entries[:len(b.entries)-1]
	s.Restore(b.entries[len(b.entries)-1], clock.Now(), d)
	return true
}

// Store keeps per-session buffers. A nil Store is a disabled recorder: every
// method is a no-op, so callers never branch on debug mode.
type Store struct {
	mu        sync.Mutex
	buffers   map[string]*Buffer
	clock     clockwork.Clock
	durations game.Durations
}

func NewStore(clock clockwork.Clock, durations game.Durations) *Store {
	return &Store{
		buffers:   make(map[string]*Buffer),
		clock:     clock,
		durations: durations,
	}
}

// RecordPhaseStart snapshots the session's state. Caller holds the session
// lock. Implements scheduler.Recorder.
func (st *Store) RecordPhaseStart(s *game.Session) {
	if st == nil {
		return
	}
	st.mu.Lock()
	buf, ok := st.buffers[s.Code]
	if !ok {
		buf = &Buffer{}
		st.buffers[s.Code] = buf
	}
	st.mu.Unlock()
	buf.record(s)
}

// RestorePrev rewinds the session one phase start, rebuilding the deadline so
// the restored phase begins fresh. Caller holds the session lock.
func (st *Store) RestorePrev(s *game.Session) bool {
	if st == nil {
		return false
	}
	st.mu.Lock()
	buf, ok := st.buffers[s.Code]
	st.mu.Unlock()
	if !ok {
		return false
	}
	return buf.restorePrev(s, st.clock, st.durations)
}

// Drop releases the buffer for a deleted session.
func (st *Store) Drop(code string) {
	if st == nil {
		return
	}
	st.mu.Lock()
	delete(st.buffers, code)
	st.mu.Unlock()
}
