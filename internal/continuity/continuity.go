// Package continuity reconciles disconnects, reconnects and host-initiated
// rematches against the state machine. It reuses the same transitions normal
// play uses; it never grows its own phase logic.
package continuity

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/tierdrift/internal/game"
	"github.com/mcdev12/tierdrift/internal/registry"
	"github.com/mcdev12/tierdrift/internal/scheduler"
)

// Transport is the narrow slice of the gateway the manager needs.
type Transport interface {
	// BroadcastState delivers the session's public state; caller holds the
	// session lock.
	BroadcastState(s *game.Session)
	// CloseSession notifies and force-disconnects the given connections.
	CloseSession(code string, connIDs []string)
	// KickConnection force-disconnects one connection.
	KickConnection(connID string)
}

// Manager wires disconnect/leave/rematch events into the state machine.
type Manager struct {
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	transport Transport
}

func NewManager(reg *registry.Registry, sch *scheduler.Scheduler, transport Transport) *Manager {
	return &Manager{registry: reg, scheduler: sch, transport: transport}
}

// HandleDisconnect reconciles a connection going away. permanent marks an
// explicit client-initiated leave; a transport drop is soft and the
// participant keeps full standing for a later resume.
func (m *Manager) HandleDisconnect(s *game.Session, connID string, permanent bool) {
	s.Lock()
	defer s.Unlock()

	wasHost := s.HostConnID == connID
	delete(s.DisplayConns, connID)
	if wasHost {
		s.HostConnID = ""
	}

	// A finished session whose host walks away before starting a rematch can
	// never produce a valid one: tear it down for everybody.
	if wasHost && s.Phase == game.PhaseFinished && !s.Rematch.HostRestarted {
		m.closeSessionLocked(s)
		return
	}

	if device, ok := s.Rematch.DeviceByDeferredConn[connID]; ok {
		// Deferred connections sit outside the broadcast group; only the
		// connection mapping goes, the retained identity stays for rejoin.
		delete(s.Rematch.DeviceByDeferredConn, connID)
		log.Debug().
			Str("session_code", s.Code).
			Str("device_id", device).
			Msg("deferred connection dropped")
		m.deleteIfEmptyLocked(s)
		return
	}

	deviceID, _ := s.Conns.ResolveDevice(connID)
	pid, ok := s.Conns.Detach(connID)
	if !ok {
		m.deleteIfEmptyLocked(s)
		return
	}

	if permanent {
		m.permanentLeaveLocked(s, pid, deviceID)
	} else if p, found := s.Participant(pid); found {
		p.Connected = false
		log.Info().
			Str("session_code", s.Code).
			Str("participant_id", pid.String()).
			Msg("participant disconnected (soft)")
	}

	if !m.deleteIfEmptyLocked(s) {
		m.transport.BroadcastState(s)
	}
}

// permanentLeaveLocked demotes a participant to a deferred record and repairs
// turn order, votes and the roster. Caller holds the session lock.
func (m *Manager) permanentLeaveLocked(s *game.Session, pid uuid.UUID, deviceID string) {
	now := m.scheduler.Clock().Now()
	d := m.scheduler.Durations()

	if p, ok := s.Participant(pid); ok && deviceID != "" {
		s.Rematch.DeferredByDevice[deviceID] = game.DeferredParticipant{
			ID:       p.ID,
			Name:     p.Name,
			Avatar:   p.Avatar,
			JoinedAt: p.JoinedAt,
		}
	}
	s.Conns.Unlink(pid)
	delete(s.Rematch.OptedIn, pid)

	_, reschedule := s.RemoveFromTurnOrder(pid, now, d)
	s.RemoveFromRoster(pid)

	// A removal can leave every remaining eligible voter already confirmed;
	// resolve the round now instead of waiting out the deadline.
	if s.Phase == game.PhaseVote && s.AllEligibleConfirmed() {
		s.FillMissingVotesAsNeutral()
		if err := s.BeginResults(now, d); err != nil {
			log.Error().Err(err).Str("session_code", s.Code).Msg("early vote resolution failed")
			s.ForceFinish()
		}
		reschedule = true
	}

	if reschedule {
		m.scheduler.Reschedule(s)
	}

	log.Info().
		Str("session_code", s.Code).
		Str("participant_id", pid.String()).
		Str("phase", string(s.Phase)).
		Msg("participant left permanently")
}

// OptInRematch queues a participant for the next rematch. Legal only while
// the session is FINISHED and the host has not restarted yet.
func (m *Manager) OptInRematch(s *game.Session, pid uuid.UUID) error {
	if s.Phase != game.PhaseFinished {
		return game.ErrInvalidPhase
	}
	if s.Rematch.HostRestarted {
		return game.ErrInvalidPhase
	}
	if _, ok := s.Participant(pid); !ok {
		return game.ErrNotAParticipant
	}
	s.Rematch.OptedIn[pid] = struct{}{}
	return nil
}

// StartRematch opens a fresh lobby under the same code. Participants who
// opted in are carried over; everyone else becomes a deferred record that can
// rejoin with original identity while the new lobby stays open. Caller must
// hold the session lock and have verified the host.
func (m *Manager) StartRematch(s *game.Session) error {
	if s.Phase != game.PhaseFinished {
		return game.ErrInvalidPhase
	}

	carried := make([]*game.Participant, 0, len(s.Players))
	for _, p := range s.Players {
		if _, in := s.Rematch.OptedIn[p.ID]; in {
			carried = append(carried, p)
			continue
		}
		device, hasDevice := s.Conns.DeviceForParticipant(p.ID)
		if hasDevice {
			s.Rematch.DeferredByDevice[device] = game.DeferredParticipant{
				ID:       p.ID,
				Name:     p.Name,
				Avatar:   p.Avatar,
				JoinedAt: p.JoinedAt,
			}
			if conn, connected := s.Conns.ResolveConnection(p.ID); connected {
				s.Rematch.DeviceByDeferredConn[conn] = device
			}
		}
		s.Conns.Unlink(p.ID)
	}

	s.Players = carried
	s.Phase = game.PhaseLobby
	s.TurnOrder = nil
	s.TurnIndex = 0
	s.CurrentPlacer = uuid.Nil
	s.CurrentItem = ""
	s.PendingTier = ""
	s.Votes = make(map[uuid.UUID]game.VoteValue)
	s.VoteConfirmed = make(map[uuid.UUID]bool)
	s.LastResolution = nil
	s.ItemQueue = nil
	for tierID := range s.Tiers {
		s.Tiers[tierID] = []string{}
	}
	s.Deadlines = game.Deadlines{}
	s.Rematch.HostRestarted = true
	s.Rematch.OptedIn = make(map[uuid.UUID]struct{})

	m.scheduler.Cancel(s.Code)
	log.Info().
		Str("session_code", s.Code).
		Int("carried", len(carried)).
		Int("deferred", len(s.Rematch.DeferredByDevice)).
		Msg("rematch lobby opened")
	return nil
}

// RejoinDeferred restores a deferred identity into an open lobby: the
// original lobby after an explicit leave, or the rematch lobby once the host
// restarts. The same name-uniqueness rule as any lobby join applies. Caller
// holds the session lock.
func (m *Manager) RejoinDeferred(s *game.Session, connID, deviceID string) (*game.Participant, error) {
	entry, ok := s.Rematch.DeferredByDevice[deviceID]
	if !ok {
		return nil, game.ErrNotAParticipant
	}
	if s.Phase != game.PhaseLobby {
		return nil, game.ErrLobbyStarted
	}
	if s.NameTaken(entry.Name) {
		return nil, game.ErrNameTaken
	}

	p := &game.Participant{
		ID:        entry.ID,
		Name:      entry.Name,
		Avatar:    entry.Avatar,
		JoinedAt:  entry.JoinedAt,
		Connected: true,
	}
	s.Players = append(s.Players, p)
	s.Conns.Attach(connID, deviceID, entry.ID)
	delete(s.Rematch.DeferredByDevice, deviceID)
	for conn, device := range s.Rematch.DeviceByDeferredConn {
		if device == deviceID {
			delete(s.Rematch.DeviceByDeferredConn, conn)
		}
	}

	log.Info().
		Str("session_code", s.Code).
		Str("participant_id", entry.ID.String()).
		Msg("deferred participant rejoined rematch lobby")
	return p, nil
}

// CloseSession tears a session down on behalf of the host: everyone,
// deferred connections included, is notified and dropped.
func (m *Manager) CloseSession(s *game.Session) {
	s.Lock()
	defer s.Unlock()
	m.closeSessionLocked(s)
}

func (m *Manager) closeSessionLocked(s *game.Session) {
	conns := make([]string, 0, len(s.DisplayConns)+s.Conns.ConnectionCount()+len(s.Rematch.DeviceByDeferredConn))
	for conn := range s.DisplayConns {
		conns = append(conns, conn)
	}
	conns = append(conns, s.Conns.Connections()...)
	for conn := range s.Rematch.DeviceByDeferredConn {
		conns = append(conns, conn)
	}

	m.scheduler.Cancel(s.Code)
	m.registry.Delete(s.Code)
	m.transport.CloseSession(s.Code, conns)
	log.Info().Str("session_code", s.Code).Msg("session closed")
}

// deleteIfEmptyLocked reaps the session immediately when no live connection
// remains. Returns true if the session was deleted.
func (m *Manager) deleteIfEmptyLocked(s *game.Session) bool {
	if s.HasConnections() {
		return false
	}
	m.scheduler.Cancel(s.Code)
	m.registry.Delete(s.Code)
	log.Info().Str("session_code", s.Code).Msg("session emptied; deleted")
	return true
}
