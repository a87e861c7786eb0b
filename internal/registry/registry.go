// Package registry owns the set of live sessions: creation with a unique
// human-typable code, retrieval by code, deletion. It holds no game logic.
package registry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/tierdrift/internal/game"
)

// Options configures code allocation and the idle janitor.
type Options struct {
	CodeLength    int
	CodeAlphabet  string
	SessionTTL    time.Duration
	SweepInterval time.Duration
	// CodeFilter optionally rejects generated codes (profanity screening is
	// an external collaborator). A rejected code is simply re-rolled.
	CodeFilter func(code string) bool
}

const (
	defaultCodeLength   = 4
	defaultCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	defaultSessionTTL   = time.Hour
	defaultSweep        = time.Hour
)

// Registry is the injectable in-memory session store.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*game.Session

	opts  Options
	clock clockwork.Clock
}

func New(opts Options, clock clockwork.Clock) *Registry {
	if opts.CodeLength <= 0 {
		opts.CodeLength = defaultCodeLength
	}
	if opts.CodeAlphabet == "" {
		opts.CodeAlphabet = defaultCodeAlphabet
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweep
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		sessions: make(map[string]*game.Session),
		opts:     opts,
		clock:    clock,
	}
}

func (r *Registry) makeCode() string {
	buf := make([]byte, r.opts.CodeLength)
	for i := range buf {
		buf[i] = r.opts.CodeAlphabet[rand.Intn(len(r.opts.CodeAlphabet))]
	}
	return string(buf)
}

// Create allocates a session under a code unique among live sessions.
func (r *Registry) Create() *game.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := r.makeCode()
	for {
		_, taken := r.sessions[code]
		if !taken && (r.opts.CodeFilter == nil || r.opts.CodeFilter(code)) {
			break
		}
		code = r.makeCode()
	}

	s := game.NewSession(code, r.clock.Now())
	r.sessions[code] = s
	log.Info().Str("session_code", code).Msg("session created")
	return s
}

// Get retrieves a session by its code.
func (r *Registry) Get(code string) (*game.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[code]
	return s, ok
}

// Delete removes a session from the registry. Releasing its timers is the
// caller's job; the registry owns no scheduling.
func (r *Registry) Delete(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[code]; ok {
		delete(r.sessions, code)
		log.Info().Str("session_code", code).Msg("session deleted")
	}
}

// All returns the live sessions at this instant.
func (r *Registry) All() []*game.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*game.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep performs one janitor pass: sessions with zero live connections are
// deleted immediately, and sessions idle past the TTL are deleted regardless
// of stale connections. onDelete runs after a session is removed so callers
// can release timers and notify the transport.
func (r *Registry) Sweep(onDelete func(*game.Session)) {
	now := r.clock.Now()
	for _, s := range r.All() {
		s.Lock()
		empty := !s.HasConnections()
		idle := now.Sub(s.LastActivityAt) > r.opts.SessionTTL
		s.Unlock()

		if !empty && !idle {
			continue
		}
		r.Delete(s.Code)
		log.Info().
			Str("session_code", s.Code).
			Bool("empty", empty).
			Bool("idle", idle).
			Msg("janitor reaped session")
		if onDelete != nil {
			onDelete(s)
		}
	}
}

// RunJanitor sweeps on the configured interval until the context ends.
func (r *Registry) RunJanitor(ctx context.Context, onDelete func(*game.Session)) {
	ticker := r.clock.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.opts.SweepInterval).Msg("janitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("janitor shutting down")
			return
		case <-ticker.Chan():
			r.Sweep(onDelete)
		}
	}
}
