package identity

import (
	"testing"

	"github.com/google/uuid"
)

func TestAttachResolvesAllDirections(t *testing.T) {
	m := NewMap()
	pid := uuid.New()
	m.Attach("conn-1", "dev-1", pid)

	if got, ok := m.ResolveParticipant("conn-1"); !ok || got != pid {
		t.Errorf("ResolveParticipant = %v, %v", got, ok)
	}
	if got, ok := m.ResolveConnection(pid); !ok || got != "conn-1" {
		t.Errorf("ResolveConnection = %q, %v", got, ok)
	}
	if got, ok := m.ResolveDevice("conn-1"); !ok || got != "dev-1" {
		t.Errorf("ResolveDevice = %q, %v", got, ok)
	}
	if got, ok := m.ParticipantForDevice("dev-1"); !ok || got != pid {
		t.Errorf("ParticipantForDevice = %v, %v", got, ok)
	}
	if got, ok := m.DeviceForParticipant(pid); !ok || got != "dev-1" {
		t.Errorf("DeviceForParticipant = %q, %v", got, ok)
	}
}

func TestReattachKnownDeviceNeverCreatesSecondMapping(t *testing.T) {
	m := NewMap()
	pid := uuid.New()
	m.Attach("conn-1", "dev-1", pid)
	m.Attach("conn-2", "dev-1", pid)

	if m.ConnectionCount() != 1 {
		t.Fatalf("ConnectionCount = %d, want 1; reattach must replace, not add", m.ConnectionCount())
	}
	if _, ok := m.ResolveParticipant("conn-1"); ok {
		t.Error("stale connection still resolves")
	}
	if got, ok := m.ResolveConnection(pid); !ok || got != "conn-2" {
		t.Errorf("ResolveConnection = %q, %v; want conn-2", got, ok)
	}
	if got, _ := m.ParticipantForDevice("dev-1"); got != pid {
		t.Errorf("device maps to %v, want the original participant %v", got, pid)
	}
}

func TestAttachNewDeviceRebindsParticipant(t *testing.T) {
	m := NewMap()
	pid := uuid.New()
	m.Attach("conn-1", "dev-1", pid)
	m.Attach("conn-2", "dev-2", pid)

	if _, ok := m.ParticipantForDevice("dev-1"); ok {
		t.Error("old device binding survived a device change")
	}
	if got, ok := m.ParticipantForDevice("dev-2"); !ok || got != pid {
		t.Errorf("ParticipantForDevice(dev-2) = %v, %v", got, ok)
	}
	if got, ok := m.DeviceForParticipant(pid); !ok || got != "dev-2" {
		t.Errorf("DeviceForParticipant = %q, %v; want dev-2", got, ok)
	}
}

func TestDetachKeepsDeviceBinding(t *testing.T) {
	m := NewMap()
	pid := uuid.New()
	m.Attach("conn-1", "dev-1", pid)

	got, ok := m.Detach("conn-1")
	if !ok || got != pid {
		t.Fatalf("Detach = %v, %v", got, ok)
	}
	if _, ok := m.ResolveConnection(pid); ok {
		t.Error("participant still has a live connection after detach")
	}
	// The durable binding survives for a later resume.
	if got, ok := m.ParticipantForDevice("dev-1"); !ok || got != pid {
		t.Errorf("ParticipantForDevice after detach = %v, %v; want retained", got, ok)
	}

	if _, ok := m.Detach("conn-1"); ok {
		t.Error("second detach of the same connection reported a participant")
	}
}

func TestUnlinkErasesEverything(t *testing.T) {
	m := NewMap()
	pid := uuid.New()
	m.Attach("conn-1", "dev-1", pid)
	m.Unlink(pid)

	if m.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount = %d, want 0", m.ConnectionCount())
	}
	if _, ok := m.ParticipantForDevice("dev-1"); ok {
		t.Error("device binding survived an unlink")
	}
	if _, ok := m.ResolveParticipant("conn-1"); ok {
		t.Error("connection binding survived an unlink")
	}
}
