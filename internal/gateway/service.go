// Package gateway is the transport layer: WebSocket connections, the JSON
// event protocol, and routing of inbound actions into the state machine.
package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/tierdrift/internal/avatar"
	"github.com/mcdev12/tierdrift/internal/catalog"
	"github.com/mcdev12/tierdrift/internal/continuity"
	"github.com/mcdev12/tierdrift/internal/game"
	"github.com/mcdev12/tierdrift/internal/history"
	"github.com/mcdev12/tierdrift/internal/registry"
	"github.com/mcdev12/tierdrift/internal/scheduler"
)

// Options carries the lobby-policy knobs the handlers enforce.
type Options struct {
	LobbyCapacity int
	MaxNameLength int
	DebugControls bool
}

// Service routes inbound client messages into the state machine and renders
// outbound state. It implements scheduler.Broadcaster and
// continuity.Transport.
type Service struct {
	cm         *ConnectionManager
	registry   *registry.Registry
	scheduler  *scheduler.Scheduler
	continuity *continuity.Manager
	history    *history.Store
	opts       Options
}

func NewService(cm *ConnectionManager, reg *registry.Registry, sch *scheduler.Scheduler, hist *history.Store, opts Options) *Service {
	svc := &Service{
		cm:        cm,
		registry:  reg,
		scheduler: sch,
		history:   hist,
		opts:      opts,
	}
	svc.continuity = continuity.NewManager(reg, sch, svc)
	cm.SetHandlers(svc.HandleMessage, svc.HandleSocketClosed)
	return svc
}

// Continuity exposes the manager for callers that wire shutdown paths.
func (svc *Service) Continuity() *continuity.Manager { return svc.continuity }

// BroadcastState renders the session's public state and fans it out to every
// grouped connection except deferred rematch connections, which sit outside
// the broadcast group by design of the rematch record. Caller holds the
// session lock.
func (svc *Service) BroadcastState(s *game.Session) {
	payload := encode(MsgRoomState, s.Public())
	var exclude map[string]struct{}
	if len(s.Rematch.DeviceByDeferredConn) > 0 {
		exclude = make(map[string]struct{}, len(s.Rematch.DeviceByDeferredConn))
		for conn := range s.Rematch.DeviceByDeferredConn {
			exclude[conn] = struct{}{}
		}
	}
	svc.cm.Broadcast(s.Code, payload, exclude)
}

// CloseSession notifies and force-disconnects the given connections.
// Implements continuity.Transport.
func (svc *Service) CloseSession(code string, connIDs []string) {
	closed := encode(MsgRoomClosed, nil)
	for _, id := range connIDs {
		svc.cm.CloseConnection(id, closed)
	}
	svc.history.Drop(code)
}

// KickConnection force-disconnects one connection with a kicked notice.
func (svc *Service) KickConnection(connID string) {
	svc.cm.CloseConnection(connID, encode(MsgRoomKicked, nil))
}

// HandleSocketClosed reconciles a socket going away. A clean close frame is
// a deliberate departure (permanent leave); anything else is a transport
// drop the participant may resume from.
func (svc *Service) HandleSocketClosed(c *Connection) {
	if c.SessionCode == "" {
		return
	}
	s, ok := svc.registry.Get(c.SessionCode)
	if !ok {
		return
	}
	svc.continuity.HandleDisconnect(s, c.ID, c.leftCleanly)
}

// HandleMessage dispatches one inbound client event.
func (svc *Service) HandleMessage(c *Connection, msg ClientMessage) {
	switch msg.Type {
	case MsgRoomCreate:
		svc.handleCreate(c, msg.Data)
	case MsgRoomJoin:
		svc.handleJoin(c, msg.Data)
	case MsgRoomLeave:
		svc.handleLeave(c)
	case MsgRoomClose:
		svc.handleClose(c)
	case MsgRoomSetTierSet:
		svc.handleSetTierSet(c, msg.Data)
	case MsgRoomStart:
		svc.handleStart(c)
	case MsgRoomRematchOpt:
		svc.handleRematchOptIn(c)
	case MsgRoomRematch:
		svc.handleRematch(c)
	case MsgRoomBoot:
		svc.handleBoot(c, msg.Data)
	case MsgGamePlace:
		svc.handlePlace(c, msg.Data)
	case MsgGameVote:
		svc.handleVote(c, msg.Data)
	case MsgGameConfirm:
		svc.handleConfirmVote(c)
	case MsgTierSetsList:
		svc.handleTierSetsList(c)
	case MsgTierSetsGet:
		svc.handleTierSetsGet(c, msg.Data)
	case MsgDebugNext:
		svc.handleDebugNext(c)
	case MsgDebugPrev:
		svc.handleDebugPrev(c)
	default:
		log.Debug().Str("type", msg.Type).Str("connection_id", c.ID).Msg("unknown message type")
	}
}

func (svc *Service) sendError(c *Connection, err error) {
	c.enqueue(encode(MsgRoomError, errorPayload{Message: err.Error()}))
}

// session resolves the connection's current session, reporting an error to
// the client when there is none.
func (svc *Service) session(c *Connection) (*game.Session, bool) {
	if c.SessionCode == "" {
		svc.sendError(c, game.ErrSessionNotFound)
		return nil, false
	}
	s, ok := svc.registry.Get(c.SessionCode)
	if !ok {
		svc.sendError(c, game.ErrSessionNotFound)
		return nil, false
	}
	return s, true
}

func (svc *Service) handleCreate(c *Connection, data json.RawMessage) {
	var p createPayload
	_ = json.Unmarshal(data, &p)

	s := svc.registry.Create()
	s.Lock()
	// The creator counts as a live display connection from the first moment,
	// whatever role it later joins with.
	s.DisplayConns[c.ID] = struct{}{}
	if p.Role == RoleHost {
		s.HostConnID = c.ID
	}
	svc.cm.JoinSession(c, s.Code)
	c.enqueue(encode(MsgRoomCreated, map[string]string{"code": s.Code}))
	svc.BroadcastState(s)
	s.Unlock()
}

func (svc *Service) handleJoin(c *Connection, data json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		svc.sendError(c, err)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(p.Code))
	s, ok := svc.registry.Get(code)
	if !ok {
		svc.sendError(c, game.ErrSessionNotFound)
		return
	}

	s.Lock()
	defer s.Unlock()

	now := svc.scheduler.Clock().Now()
	switch p.Role {
	case RoleHost:
		if err := svc.joinAsHost(s, c, p.DeviceID); err != nil {
			svc.sendError(c, err)
			return
		}
	case RoleObserver:
		s.DisplayConns[c.ID] = struct{}{}
		svc.cm.JoinSession(c, s.Code)
	default:
		participant, err := svc.joinAsPlayer(s, c, p.DeviceID, p.Name, now)
		if err != nil {
			svc.sendError(c, err)
			return
		}
		svc.cm.JoinSession(c, s.Code)
		c.enqueue(encode(MsgRoomJoined, map[string]string{"playerId": participant.ID.String()}))
	}

	c.DeviceID = p.DeviceID
	s.Touch(now)
	svc.BroadcastState(s)
}

// joinAsHost pins the host device on first join and reattaches the same
// device thereafter; any other device is refused.
func (svc *Service) joinAsHost(s *game.Session, c *Connection, deviceID string) error {
	if s.HostDeviceID == "" {
		s.HostDeviceID = deviceID
	} else if s.HostDeviceID != deviceID {
		return game.ErrNotAuthorized
	}
	s.HostConnID = c.ID
	s.DisplayConns[c.ID] = struct{}{}
	svc.cm.JoinSession(c, s.Code)
	return nil
}

// joinAsPlayer handles the three player join shapes: a rematch-deferred
// identity restoring itself, a known device reattaching, and a brand-new
// lobby join.
func (svc *Service) joinAsPlayer(s *game.Session, c *Connection, deviceID, name string, now time.Time) (*game.Participant, error) {
	if _, deferred := s.Rematch.DeferredByDevice[deviceID]; deferred {
		return svc.continuity.RejoinDeferred(s, c.ID, deviceID)
	}

	// RESUME: a known device only refreshes the connection mapping; it never
	// creates a second participant entry.
	if pid, known := s.Conns.ParticipantForDevice(deviceID); known {
		s.Conns.Attach(c.ID, deviceID, pid)
		if p, ok := s.Participant(pid); ok {
			p.Connected = true
			return p, nil
		}
		return nil, game.ErrNotAParticipant
	}

	if s.Phase != game.PhaseLobby {
		return nil, game.ErrLobbyStarted
	}
	if len(s.Players) >= svc.opts.LobbyCapacity {
		return nil, game.ErrLobbyFull
	}
	safeName := strings.TrimSpace(name)
	if runes := []rune(safeName); len(runes) > svc.opts.MaxNameLength {
		safeName = string(runes[:svc.opts.MaxNameLength])
	}
	if safeName == "" {
		return nil, game.ErrNameRequired
	}
	if s.NameTaken(safeName) {
		return nil, game.ErrNameTaken
	}

	p := &game.Participant{
		ID:        uuid.New(),
		Name:      safeName,
		Avatar:    avatar.Random(),
		JoinedAt:  now,
		Connected: true,
	}
	s.Players = append(s.Players, p)
	s.Conns.Attach(c.ID, deviceID, p.ID)
	return p, nil
}

// handleLeave is the in-band explicit departure: the participant is demoted
// to a deferred record immediately, without waiting for the socket to close.
func (svc *Service) handleLeave(c *Connection) {
	s, ok := svc.session(c)
	if !ok {
		return
	}
	svc.continuity.HandleDisconnect(s, c.ID, true)
	svc.cm.LeaveSession(c)
}

func (svc *Service) handleClose(c *Connection) {
	s, ok := svc.session(c)
	if !ok {
		return
	}
	s.Lock()
	isHost := s.HostConnID == c.ID
	s.Unlock()
	if !isHost {
		svc.sendError(c, game.ErrHostOnly)
		return
	}
	svc.continuity.CloseSession(s)
}

func (svc *Service) handleSetTierSet(c *Connection, data json.RawMessage) {
	var p setTierSetPayload
	if err := json.Unmarshal(data, &p); err != nil {
		svc.sendError(c, err)
		return
	}
	s, ok := svc.session(c)
	if !ok {
		return
	}
	set, found := catalog.Get(p.TierSetID)
	if !found {
		svc.sendError(c, game.ErrTierSetNotFound)
		return
	}

	s.Lock()
	defer s.Unlock()
	if s.HostConnID != c.ID {
		svc.sendError(c, game.ErrHostOnly)
		return
	}
	if err := s.SelectTierSet(set); err != nil {
		svc.sendError(c, err)
		return
	}
	s.Touch(svc.scheduler.Clock().Now())
	svc.BroadcastState(s)
}

func (svc *Service) handleStart(c *Connection) {
	s, ok := svc.session(c)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()
	if s.HostConnID != c.ID {
		svc.sendError(c, game.ErrHostOnly)
		return
	}
	if s.TierSetID == "" {
		svc.sendError(c, game.ErrTierSetNotSelected)
		return
	}
	set, found := catalog.Get(s.TierSetID)
	if !found {
		svc.sendError(c, game.ErrTierSetNotFound)
		return
	}

	now := svc.scheduler.Clock().Now()
	if err := s.StartGame(set, now, svc.scheduler.Durations()); err != nil {
		svc.sendError(c, err)
		return
	}
	s.Touch(now)
	svc.history.RecordPhaseStart(s)
	svc.BroadcastState(s)
	svc.scheduler.Reschedule(s)
}

// participant resolves the sender to its participant id; the session lock
// must be held.
func (svc *Service) participant(s *game.Session, c *Connection) (uuid.UUID, bool) {
	pid, ok := s.Conns.ResolveParticipant(c.ID)
	if !ok {
		svc.sendError(c, game.ErrNotAParticipant)
		return uuid.Nil, false
	}
	return pid, true
}

func (svc *Service) handlePlace(c *Connection, data json.RawMessage) {
	var p placePayload
	if err := json.Unmarshal(data, &p); err != nil {
		svc.sendError(c, err)
		return
	}
	s, ok := svc.session(c)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()
	pid, ok := svc.participant(s, c)
	if !ok {
		return
	}
	if err := s.SubmitPlacement(pid, p.TierID); err != nil {
		svc.sendError(c, err)
		return
	}

	now := svc.scheduler.Clock().Now()
	s.BeginVote(now, svc.scheduler.Durations())
	s.Touch(now)
	svc.history.RecordPhaseStart(s)
	svc.BroadcastState(s)
	svc.scheduler.Reschedule(s)
}

func (svc *Service) handleVote(c *Connection, data json.RawMessage) {
	var p votePayload
	if err := json.Unmarshal(data, &p); err != nil {
		svc.sendError(c, err)
		return
	}
	s, ok := svc.session(c)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()
	pid, ok := svc.participant(s, c)
	if !ok {
		return
	}
	if err := s.CastVote(pid, p.Vote); err != nil {
		svc.sendError(c, err)
		return
	}
	s.Touch(svc.scheduler.Clock().Now())
	svc.BroadcastState(s)
}

func (svc *Service) handleConfirmVote(c *Connection) {
	s, ok := svc.session(c)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()
	pid, ok := svc.participant(s, c)
	if !ok {
		return
	}
	if err := s.ConfirmVote(pid); err != nil {
		svc.sendError(c, err)
		return
	}

	now := svc.scheduler.Clock().Now()
	s.Touch(now)

	// Every eligible voter confirmed: resolve now instead of waiting for the
	// deadline. The stale timer is fenced off by the phase check.
	if s.AllEligibleConfirmed() {
		s.FillMissingVotesAsNeutral()
		if err := s.BeginResults(now, svc.scheduler.Durations()); err != nil {
			log.Error().Err(err).Str("session_code", s.Code).Msg("early vote resolution failed")
			svc.sendError(c, err)
			return
		}
		svc.history.RecordPhaseStart(s)
		svc.BroadcastState(s)
		svc.scheduler.Reschedule(s)
		return
	}
	svc.BroadcastState(s)
}

func (svc *Service) handleRematchOptIn(c *Connection) {
	s, ok := svc.session(c)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()
	pid, ok := svc.participant(s, c)
	if !ok {
		return
	}
	if err := svc.continuity.OptInRematch(s, pid); err != nil {
		svc.sendError(c, err)
		return
	}
	s.Touch(svc.scheduler.Clock().Now())
	svc.BroadcastState(s)
}

func (svc *Service) handleRematch(c *Connection) {
	s, ok := svc.session(c)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()
	if s.HostConnID != c.ID {
		svc.sendError(c, game.ErrHostOnly)
		return
	}
	if err := svc.continuity.StartRematch(s); err != nil {
		svc.sendError(c, err)
		return
	}
	s.Touch(svc.scheduler.Clock().Now())
	svc.BroadcastState(s)
}

func (svc *Service) handleBoot(c *Connection, data json.RawMessage) {
	var p bootPayload
	if err := json.Unmarshal(data, &p); err != nil {
		svc.sendError(c, err)
		return
	}
	pid, err := uuid.Parse(p.PlayerID)
	if err != nil {
		svc.sendError(c, err)
		return
	}
	s, ok := svc.session(c)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()
	if s.HostConnID != c.ID {
		svc.sendError(c, game.ErrHostOnly)
		return
	}
	if s.Phase != game.PhaseLobby {
		svc.sendError(c, game.ErrInvalidPhase)
		return
	}
	if _, found := s.Participant(pid); !found {
		svc.sendError(c, game.ErrNotAParticipant)
		return
	}

	conn, connected := s.Conns.ResolveConnection(pid)
	s.Conns.Unlink(pid)
	s.RemoveFromRoster(pid)
	if connected {
		svc.KickConnection(conn)
	}
	s.Touch(svc.scheduler.Clock().Now())
	svc.BroadcastState(s)
}

func (svc *Service) handleTierSetsList(c *Connection) {
	c.enqueue(encode(MsgTierSetsListed, map[string]interface{}{"tierSets": catalog.List()}))
}

func (svc *Service) handleTierSetsGet(c *Connection, data json.RawMessage) {
	var p tierSetGetPayload
	if err := json.Unmarshal(data, &p); err != nil {
		svc.sendError(c, err)
		return
	}
	set, found := catalog.Get(p.ID)
	if !found {
		svc.sendError(c, game.ErrTierSetNotFound)
		return
	}
	c.enqueue(encode(MsgTierSetsGot, map[string]interface{}{"tierSet": set}))
}
