// Package scheduler arms exactly one deadline timer per session, matching
// the session's current phase, and drives the state machine when it fires.
package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/tierdrift/internal/game"
)

// Broadcaster delivers a session's new public state to the transport layer.
type Broadcaster interface {
	BroadcastState(s *game.Session)
}

// Recorder observes phase starts. The debug rewind buffer hangs off this;
// the zero value of the scheduler works without one.
type Recorder interface {
	RecordPhaseStart(s *game.Session)
}

type armedTimer struct {
	timer clockwork.Timer
	stop  chan struct{}
}

// Scheduler owns one live timer per session. Rescheduling is idempotent and
// never leaves two timers for the same session.
type Scheduler struct {
	clock       clockwork.Clock
	durations   game.Durations
	broadcaster Broadcaster
	recorder    Recorder

	mu     sync.Mutex
	timers map[string]*armedTimer
}

func New(clock clockwork.Clock, durations game.Durations, broadcaster Broadcaster) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		clock:       clock,
		durations:   durations,
		broadcaster: broadcaster,
		timers:      make(map[string]*armedTimer),
	}
}

// SetRecorder attaches a phase-start observer. Call before any session runs.
func (sch *Scheduler) SetRecorder(r Recorder) { sch.recorder = r }

// Durations exposes the configured phase durations for callers that run
// transitions in-band (vote completion, continuity repairs).
func (sch *Scheduler) Durations() game.Durations { return sch.durations }

// Clock exposes the scheduler's clock so in-band actions share its notion of
// now.
func (sch *Scheduler) Clock() clockwork.Clock { return sch.clock }

// Reschedule clears any timer previously armed for the session and, if the
// current phase carries a deadline, arms a fresh one. Caller must hold the
// session lock. Safe to call redundantly.
func (sch *Scheduler) Reschedule(s *game.Session) {
	sch.Cancel(s.Code)

	deadline := s.Deadlines.Active()
	if deadline == nil {
		return
	}

	phase := s.Phase
	due := *deadline
	wait := due.Sub(sch.clock.Now())
	if wait < 0 {
		wait = 0
	}

	armed := &armedTimer{
		timer: sch.clock.NewTimer(wait),
		stop:  make(chan struct{}),
	}

	sch.mu.Lock()
	sch.timers[s.Code] = armed
	sch.mu.Unlock()

	go func() {
		select {
		case <-armed.timer.Chan():
			// A Cancel racing the firing may have already removed the entry;
			// in that case the expiry must not run.
			if sch.clearIf(s.Code, armed) {
				sch.expire(s, phase, due)
			}
		case <-armed.stop:
			stopAndDrainTimer(armed.timer)
		}
	}()

	log.Debug().
		Str("session_code", s.Code).
		Str("phase", string(phase)).
		Time("deadline", due).
		Dur("wait", wait).
		Msg("armed phase deadline")
}

// Cancel stops and removes the session's live timer, if any.
func (sch *Scheduler) Cancel(code string) {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	if armed, ok := sch.timers[code]; ok {
		close(armed.stop)
		delete(sch.timers, code)
	}
}

// clearIf removes the timer entry only if it is still the one that fired, so
// a reschedule that slipped in concurrently is not clobbered. Reports whether
// the fired timer was still current.
func (sch *Scheduler) clearIf(code string, armed *armedTimer) bool {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	if sch.timers[code] == armed {
		delete(sch.timers, code)
		return true
	}
	return false
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// expire runs the transition matching the phase the timer was armed for. A
// prior in-band action may have already advanced the phase (or started a new
// round of the same phase); either way the fence makes a stale firing a
// silent no-op, never an error.
func (sch *Scheduler) expire(s *game.Session, armedPhase game.Phase, armedDeadline time.Time) {
	s.Lock()
	defer s.Unlock()

	if s.Phase != armedPhase {
		log.Debug().
			Str("session_code", s.Code).
			Str("armed_phase", string(armedPhase)).
			Str("phase", string(s.Phase)).
			Msg("stale timer fired; ignoring")
		return
	}
	if current := s.Deadlines.Active(); current == nil || !current.Equal(armedDeadline) {
		log.Debug().
			Str("session_code", s.Code).
			Str("phase", string(s.Phase)).
			Msg("timer fired for a superseded deadline; ignoring")
		return
	}

	if !sch.advance(s, armedPhase) {
		return
	}

	sch.record(s)
	sch.broadcaster.BroadcastState(s)
	sch.Reschedule(s)
}

// AdvanceNow runs the transition the current phase's deadline would have
// triggered, immediately, then broadcasts and re-arms. Backs the debug
// controls. Caller must hold the session lock.
func (sch *Scheduler) AdvanceNow(s *game.Session) {
	if !sch.advance(s, s.Phase) {
		return
	}
	sch.record(s)
	sch.broadcaster.BroadcastState(s)
	sch.Reschedule(s)
}

// advance performs the deadline transition for phase. Returns false when the
// session was halted (or the phase carries no deadline transition).
func (sch *Scheduler) advance(s *game.Session, phase game.Phase) bool {
	now := sch.clock.Now()
	d := sch.durations

	switch phase {
	case game.PhaseStarting:
		s.BeginTurn(now, d)

	case game.PhasePlace:
		if s.PendingTier != "" {
			s.BeginVote(now, d)
		} else {
			// Placer let the deadline lapse: skip them, keep the item.
			s.SkipPlacer(now, d)
		}

	case game.PhaseVote:
		s.FillMissingVotesAsNeutral()
		if err := s.BeginResults(now, d); err != nil {
			sch.halt(s, err)
			return false
		}

	case game.PhaseResults:
		if err := s.BeginDrift(now, d); err != nil {
			sch.halt(s, err)
			return false
		}

	case game.PhaseDrift:
		if err := s.CommitDriftResolution(); err != nil {
			sch.halt(s, err)
			return false
		}
		if err := s.FinalizeTurn(); err != nil {
			sch.halt(s, err)
			return false
		}
		sch.record(s)
		sch.broadcaster.BroadcastState(s)
		s.BeginTurn(now, d)

	default:
		return false
	}
	return true
}

// halt handles an invariant violation surfacing from a timer callback. These
// are unreachable through legal operation sequences; rather than spin on a
// past-due deadline, the session's game is force-finished and the fault
// logged loudly.
func (sch *Scheduler) halt(s *game.Session, err error) {
	log.Error().
		Err(err).
		Str("session_code", s.Code).
		Str("phase", string(s.Phase)).
		Msg("invariant violation in timer transition; finishing session")
	s.ForceFinish()
	sch.broadcaster.BroadcastState(s)
	sch.Cancel(s.Code)
}

func (sch *Scheduler) record(s *game.Session) {
	if sch.recorder != nil {
		sch.recorder.RecordPhaseStart(s)
	}
}
