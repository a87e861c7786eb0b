package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/tierdrift/internal/game"
)

var testDurations = game.Durations{
	Build:   5 * time.Second,
	Place:   15 * time.Second,
	Vote:    60 * time.Second,
	Results: 3 * time.Second,
	Drift:   time.Second,
}

type captureBroadcaster struct {
	mu     sync.Mutex
	phases []game.Phase
}

// BroadcastState is invoked with the session lock held; it only records.
func (b *captureBroadcaster) BroadcastState(s *game.Session) {
	b.mu.Lock()
	b.phases = append(b.phases, s.Phase)
	b.mu.Unlock()
}

func (b *captureBroadcaster) count(p game.Phase) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, got := range b.phases {
		if got == p {
			n++
		}
	}
	return n
}

func testTierSet() *game.TierSet {
	return &game.TierSet{
		ID:    "animals",
		Tiers: []game.Tier{{ID: "S"}, {ID: "A"}, {ID: "B"}, {ID: "C"}, {ID: "D"}},
		Items: []game.TierItem{{ID: "cat"}, {ID: "dog"}},
	}
}

// newRunningSession returns a session in STARTING with its build timer armed.
func newRunningSession(t *testing.T, fake clockwork.Clock, sch *Scheduler, players int) (*game.Session, []uuid.UUID) {
	t.Helper()
	s := game.NewSession("ABCD", fake.Now())
	ids := make([]uuid.UUID, players)
	for i := range ids {
		ids[i] = uuid.New()
		s.Players = append(s.Players, &game.Participant{
			ID:        ids[i],
			Name:      string(rune('a' + i)),
			Connected: true,
		})
	}
	set := testTierSet()
	if err := s.SelectTierSet(set); err != nil {
		t.Fatalf("SelectTierSet: %v", err)
	}
	if err := s.StartGame(set, fake.Now(), testDurations); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	s.TurnOrder = append([]uuid.UUID(nil), ids...)
	s.TurnIndex = 0

	s.Lock()
	sch.Reschedule(s)
	s.Unlock()
	return s, ids
}

// waitFor polls until cond holds under the session lock; the timer callbacks
// run on their own goroutines, so assertions need a grace window.
func waitFor(t *testing.T, s *game.Session, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.Lock()
		ok := cond()
		s.Unlock()
		if ok {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// settle gives any in-flight (and expectedly no-op) timer goroutine time to
// run before a negative assertion.
func settle() { time.Sleep(50 * time.Millisecond) }

func TestDeadlineChainDrivesPhases(t *testing.T) {
	fake := clockwork.NewFakeClock()
	bc := &captureBroadcaster{}
	sch := New(fake, testDurations, bc)
	s, ids := newRunningSession(t, fake, sch, 2)

	// STARTING -> PLACE on build expiry.
	fake.BlockUntil(1)
	fake.Advance(testDurations.Build)
	waitFor(t, s, func() bool { return s.Phase == game.PhasePlace }, "build expiry did not enter PLACE")

	s.Lock()
	firstPlacer := s.CurrentPlacer
	firstItem := s.CurrentItem
	s.Unlock()
	if firstPlacer != ids[0] {
		t.Fatalf("placer = %s, want %s", firstPlacer, ids[0])
	}

	// No placement before the deadline: the placer is skipped, the item stays.
	fake.BlockUntil(1)
	fake.Advance(testDurations.Place)
	waitFor(t, s, func() bool { return s.CurrentPlacer == ids[1] }, "place expiry did not skip the placer")
	s.Lock()
	if s.Phase != game.PhasePlace || s.CurrentItem != firstItem {
		t.Errorf("phase = %s, item = %q; skip must keep PLACE and the item", s.Phase, s.CurrentItem)
	}
	s.Unlock()

	// Placement lands in-band; vote expiry fills neutral and resolves.
	s.Lock()
	if err := s.SubmitPlacement(ids[1], "A"); err != nil {
		t.Fatalf("SubmitPlacement: %v", err)
	}
	s.BeginVote(fake.Now(), testDurations)
	sch.Reschedule(s)
	s.Unlock()

	fake.BlockUntil(1)
	fake.Advance(testDurations.Vote)
	waitFor(t, s, func() bool { return s.Phase == game.PhaseResults }, "vote expiry did not resolve")

	s.Lock()
	if s.LastResolution == nil || s.LastResolution.Score != 0 {
		t.Errorf("resolution = %+v; filled-neutral round must score 0", s.LastResolution)
	}
	s.Unlock()

	fake.BlockUntil(1)
	fake.Advance(testDurations.Results)
	waitFor(t, s, func() bool { return s.Phase == game.PhaseDrift }, "results expiry did not enter DRIFT")

	fake.BlockUntil(1)
	fake.Advance(testDurations.Drift)
	waitFor(t, s, func() bool { return s.Phase == game.PhasePlace && s.CurrentItem != firstItem },
		"drift expiry did not commit and begin the next turn")

	s.Lock()
	placed := 0
	for _, items := range s.Tiers {
		for _, id := range items {
			if id == firstItem {
				placed++
			}
		}
	}
	s.Unlock()
	if placed != 1 {
		t.Errorf("committed item appears %d times, want 1", placed)
	}
}

func TestStaleTimerIsSilentNoOp(t *testing.T) {
	fake := clockwork.NewFakeClock()
	bc := &captureBroadcaster{}
	sch := New(fake, testDurations, bc)
	s, ids := newRunningSession(t, fake, sch, 2)

	fake.BlockUntil(1)
	fake.Advance(testDurations.Build)
	waitFor(t, s, func() bool { return s.Phase == game.PhasePlace }, "build expiry did not enter PLACE")

	// The phase moves on in-band but the old timer is (deliberately) left
	// armed: the fence must reject it on phase mismatch.
	s.Lock()
	if err := s.SubmitPlacement(ids[0], "B"); err != nil {
		t.Fatalf("SubmitPlacement: %v", err)
	}
	s.BeginVote(fake.Now(), testDurations)
	voteDeadline := *s.Deadlines.VoteEndsAt
	s.Unlock()

	fake.Advance(testDurations.Place)
	settle()

	s.Lock()
	defer s.Unlock()
	if s.Phase != game.PhaseVote {
		t.Fatalf("phase = %s; stale place timer must not fire a transition", s.Phase)
	}
	if !s.Deadlines.VoteEndsAt.Equal(voteDeadline) {
		t.Error("vote deadline changed; stale timer must be a no-op")
	}
}

func TestSupersededDeadlineIsFencedOff(t *testing.T) {
	fake := clockwork.NewFakeClock()
	bc := &captureBroadcaster{}
	sch := New(fake, testDurations, bc)
	s, ids := newRunningSession(t, fake, sch, 3)

	fake.BlockUntil(1)
	fake.Advance(testDurations.Build)
	waitFor(t, s, func() bool { return s.Phase == game.PhasePlace }, "build expiry did not enter PLACE")

	// Same phase, newer deadline: the pointer has already advanced once, so a
	// firing of the earlier deadline must not advance it again.
	fake.BlockUntil(1)
	fake.Advance(5 * time.Second)
	s.Lock()
	s.SkipPlacer(fake.Now(), testDurations)
	s.Unlock()

	fake.Advance(testDurations.Place - 5*time.Second)
	settle()

	s.Lock()
	defer s.Unlock()
	if s.CurrentPlacer != ids[1] {
		t.Errorf("placer = %s, want %s; superseded deadline must not skip again", s.CurrentPlacer, ids[1])
	}
}

func TestRoundResolvesExactlyOnce(t *testing.T) {
	fake := clockwork.NewFakeClock()
	bc := &captureBroadcaster{}
	sch := New(fake, testDurations, bc)
	s, ids := newRunningSession(t, fake, sch, 3)

	fake.BlockUntil(1)
	fake.Advance(testDurations.Build)
	waitFor(t, s, func() bool { return s.Phase == game.PhasePlace }, "build expiry did not enter PLACE")

	s.Lock()
	if err := s.SubmitPlacement(ids[0], "A"); err != nil {
		t.Fatalf("SubmitPlacement: %v", err)
	}
	s.BeginVote(fake.Now(), testDurations)
	sch.Reschedule(s)

	// Every eligible voter confirms: the round resolves in-band, pre-empting
	// the vote deadline.
	for _, id := range ids[1:] {
		if err := s.CastVote(id, game.VoteUp); err != nil {
			t.Fatalf("CastVote: %v", err)
		}
		if err := s.ConfirmVote(id); err != nil {
			t.Fatalf("ConfirmVote: %v", err)
		}
	}
	if !s.AllEligibleConfirmed() {
		t.Fatal("AllEligibleConfirmed = false")
	}
	s.FillMissingVotesAsNeutral()
	if err := s.BeginResults(fake.Now(), testDurations); err != nil {
		t.Fatalf("BeginResults: %v", err)
	}
	resolution := *s.LastResolution
	sch.Reschedule(s)
	s.Unlock()

	if resolution.Score != 1.0 || resolution.ToTier != "C" {
		t.Fatalf("resolution = %+v; want score 1.0 into C", resolution)
	}

	// The canceled vote deadline lies inside this window; only the results
	// and drift deadlines may act.
	fake.BlockUntil(1)
	fake.Advance(testDurations.Results)
	waitFor(t, s, func() bool { return s.Phase == game.PhaseDrift }, "results expiry did not enter DRIFT")
	fake.BlockUntil(1)
	fake.Advance(testDurations.Drift)
	waitFor(t, s, func() bool { return s.Phase == game.PhasePlace }, "drift expiry did not begin the next turn")

	s.Lock()
	defer s.Unlock()
	count := 0
	for _, items := range s.Tiers {
		count += len(items)
	}
	if count != 1 {
		t.Errorf("%d items placed, want 1; the round must resolve exactly once", count)
	}
	if len(s.Tiers["C"]) != 1 {
		t.Errorf("tier C holds %d items, want the resolved item", len(s.Tiers["C"]))
	}
}

func TestCancelDropsTheArmedTimer(t *testing.T) {
	fake := clockwork.NewFakeClock()
	bc := &captureBroadcaster{}
	sch := New(fake, testDurations, bc)
	s, _ := newRunningSession(t, fake, sch, 2)

	sch.Cancel(s.Code)
	fake.Advance(testDurations.Build)
	settle()

	s.Lock()
	defer s.Unlock()
	if s.Phase != game.PhaseStarting {
		t.Errorf("phase = %s; canceled timer must not fire", s.Phase)
	}
	if bc.count(game.PhasePlace) != 0 {
		t.Error("canceled timer still broadcast a transition")
	}
}
