// Package identity binds the three identifiers a participant carries: a
// volatile connection id, a durable device id, and the permanent
// game-visible participant id. Lookups are O(1) in every direction.
package identity

import (
	"sync"

	"github.com/google/uuid"
)

// Map is the per-session identity and connection map. It owns no game state;
// callers decide what a disconnect or reconnect means for the session.
type Map struct {
	mu sync.RWMutex

	participantByConn   map[string]uuid.UUID
	deviceByConn        map[string]string
	participantByDevice map[string]uuid.UUID
	connByParticipant   map[uuid.UUID]string
	deviceByParticipant map[uuid.UUID]string
}

func NewMap() *Map {
	return &Map{
		participantByConn:   make(map[string]uuid.UUID),
		deviceByConn:        make(map[string]string),
		participantByDevice: make(map[string]uuid.UUID),
		connByParticipant:   make(map[uuid.UUID]string),
		deviceByParticipant: make(map[uuid.UUID]string),
	}
}

// Attach binds a connection to a device and participant. Reattaching a known
// device silently replaces any stale connection mapping for the same
// participant, so it is safe to call on every reconnect.
func (m *Map) Attach(connID, deviceID string, participantID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stale, ok := m.connByParticipant[participantID]; ok && stale != connID {
		delete(m.participantByConn, stale)
		delete(m.deviceByConn, stale)
	}
	if old, ok := m.deviceByParticipant[participantID]; ok && old != deviceID {
		delete(m.participantByDevice, old)
	}

	m.participantByConn[connID] = participantID
	m.deviceByConn[connID] = deviceID
	m.participantByDevice[deviceID] = participantID
	m.connByParticipant[participantID] = connID
	m.deviceByParticipant[participantID] = deviceID
}

// Detach removes a connection mapping. The device to participant binding is
// kept so the participant can resume later. Returns the participant the
// connection belonged to, if any.
func (m *Map) Detach(connID string) (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pid, ok := m.participantByConn[connID]
	if !ok {
		return uuid.Nil, false
	}
	delete(m.participantByConn, connID)
	delete(m.deviceByConn, connID)
	if m.connByParticipant[pid] == connID {
		delete(m.connByParticipant, pid)
	}
	return pid, true
}

// Unlink erases every binding for a participant, including its device
// mapping. Used on permanent leave, after the identity has been deferred.
func (m *Map) Unlink(participantID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn, ok := m.connByParticipant[participantID]; ok {
		delete(m.participantByConn, conn)
		delete(m.deviceByConn, conn)
		delete(m.connByParticipant, participantID)
	}
	if device, ok := m.deviceByParticipant[participantID]; ok {
		delete(m.participantByDevice, device)
		delete(m.deviceByParticipant, participantID)
	}
}

// ResolveParticipant maps a live connection to its participant.
func (m *Map) ResolveParticipant(connID string) (uuid.UUID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pid, ok := m.participantByConn[connID]
	return pid, ok
}

// ResolveConnection maps a participant to its live connection, if connected.
func (m *Map) ResolveConnection(participantID uuid.UUID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connByParticipant[participantID]
	return conn, ok
}

// ResolveDevice maps a live connection to the device id it presented.
func (m *Map) ResolveDevice(connID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	device, ok := m.deviceByConn[connID]
	return device, ok
}

// ParticipantForDevice maps a durable device id to its participant. This is
// what makes reconnects and rematch rejoins idempotent: a device id maps to
// at most one participant id at a time.
func (m *Map) ParticipantForDevice(deviceID string) (uuid.UUID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pid, ok := m.participantByDevice[deviceID]
	return pid, ok
}

// DeviceForParticipant is the reverse of ParticipantForDevice.
func (m *Map) DeviceForParticipant(participantID uuid.UUID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	device, ok := m.deviceByParticipant[participantID]
	return device, ok
}

// ConnectionCount reports how many live connections are attached.
func (m *Map) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.participantByConn)
}

// Connections returns the ids of all live connections.
func (m *Map) Connections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns := make([]string, 0, len(m.participantByConn))
	for conn := range m.participantByConn {
		conns = append(conns, conn)
	}
	return conns
}
