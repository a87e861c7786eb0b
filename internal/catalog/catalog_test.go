package catalog

import "testing"

func TestListMatchesGet(t *testing.T) {
	summaries := List()
	if len(summaries) == 0 {
		t.Fatal("no built-in tier sets")
	}
	for _, sum := range summaries {
		set, ok := Get(sum.ID)
		if !ok {
			t.Fatalf("listed set %q not retrievable", sum.ID)
		}
		if len(set.Tiers) != sum.TierCount || len(set.Items) != sum.ItemCount {
			t.Errorf("%s: summary counts %d/%d, set has %d/%d",
				sum.ID, sum.TierCount, sum.ItemCount, len(set.Tiers), len(set.Items))
		}
	}
}

func TestEverySetIsPlayable(t *testing.T) {
	for _, sum := range List() {
		set, _ := Get(sum.ID)
		if len(set.ItemIDs()) == 0 {
			t.Errorf("%s has no playable items", set.ID)
		}
		if len(set.TierIDs()) < 2 {
			t.Errorf("%s has a drift axis too short to play on", set.ID)
		}
		seen := make(map[string]struct{})
		for _, id := range set.TierIDs() {
			if _, dup := seen[id]; dup {
				t.Errorf("%s repeats tier id %q", set.ID, id)
			}
			seen[id] = struct{}{}
		}
	}
}

func TestGetUnknownID(t *testing.T) {
	if _, ok := Get("nope"); ok {
		t.Error("unknown id resolved to a set")
	}
}
