package gateway

import (
	"errors"

	"github.com/mcdev12/tierdrift/internal/game"
)

var errDebugDisabled = errors.New("debug controls are disabled")

// handleDebugNext advances the session as if the current phase deadline had
// fired. Host-only, and only when the server runs with debug controls on.
func (svc *Service) handleDebugNext(c *Connection) {
	s, ok := svc.debugSession(c)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()
	if s.HostConnID != c.ID {
		svc.sendError(c, game.ErrHostOnly)
		return
	}
	svc.scheduler.AdvanceNow(s)
	s.Touch(svc.scheduler.Clock().Now())
}

// handleDebugPrev rewinds the session to the previous recorded phase start.
func (svc *Service) handleDebugPrev(c *Connection) {
	s, ok := svc.debugSession(c)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()
	if s.HostConnID != c.ID {
		svc.sendError(c, game.ErrHostOnly)
		return
	}
	if !svc.history.RestorePrev(s) {
		svc.sendError(c, errors.New("no earlier state to rewind to"))
		return
	}
	s.Touch(svc.scheduler.Clock().Now())
	svc.BroadcastState(s)
	svc.scheduler.Reschedule(s)
}

func (svc *Service) debugSession(c *Connection) (*game.Session, bool) {
	if !svc.opts.DebugControls {
		svc.sendError(c, errDebugDisabled)
		return nil, false
	}
	return svc.session(c)
}
