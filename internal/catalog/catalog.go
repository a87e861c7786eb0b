// Package catalog serves the static tier-set content the game plays through.
package catalog

import "github.com/mcdev12/tierdrift/internal/game"

var videoGames = game.TierSet{
	ID:          "video-games",
	Title:       "Video Games",
	Description: "Rank these games.",
	Tiers: []game.Tier{
		{ID: "S", Name: "S"},
		{ID: "A", Name: "A"},
		{ID: "B", Name: "B"},
		{ID: "C", Name: "C"},
		{ID: "D", Name: "D"},
		{ID: "F", Name: "F"},
	},
	Items: []game.TierItem{
		{ID: "minecraft", Name: "Minecraft", ImageSrc: "/tier-sets/video-games/minecraft.jpg"},
		{ID: "skyrim", Name: "Skyrim", ImageSrc: "/tier-sets/video-games/skyrim.jpg"},
		{ID: "zelda-botw", Name: "Zelda: BOTW", ImageSrc: "/tier-sets/video-games/zelda-botw.jpg"},
		{ID: "gta-v", Name: "GTA V", ImageSrc: "/tier-sets/video-games/gta-v.jpg"},
		{ID: "hollow-knight", Name: "Hollow Knight", ImageSrc: "/tier-sets/video-games/hollow-knight.jpg"},
		{ID: "stardew-valley", Name: "Stardew Valley", ImageSrc: "/tier-sets/video-games/stardew-valley.jpg"},
	},
}

var fastFood = game.TierSet{
	ID:          "fast-food",
	Title:       "Fast Food",
	Description: "Rank these chains.",
	Tiers: []game.Tier{
		{ID: "S", Name: "S"},
		{ID: "A", Name: "A"},
		{ID: "B", Name: "B"},
		{ID: "C", Name: "C"},
		{ID: "D", Name: "D"},
		{ID: "F", Name: "F"},
	},
	Items: []game.TierItem{
		{ID: "in-n-out", Name: "In-N-Out", ImageSrc: "/tier-sets/fast-food/in-n-out.jpg"},
		{ID: "mcdonalds", Name: "McDonald's", ImageSrc: "/tier-sets/fast-food/mcdonalds.jpg"},
		{ID: "chipotle", Name: "Chipotle", ImageSrc: "/tier-sets/fast-food/chipotle.jpg"},
		{ID: "taco-bell", Name: "Taco Bell", ImageSrc: "/tier-sets/fast-food/taco-bell.jpg"},
		{ID: "subway", Name: "Subway", ImageSrc: "/tier-sets/fast-food/subway.jpg"},
		{ID: "wendys", Name: "Wendy's", ImageSrc: "/tier-sets/fast-food/wendys.jpg"},
	},
}

var gymLifts = game.TierSet{
	ID:          "gym-lifts",
	Title:       "Gym Lifts",
	Description: "Rank these lifts.",
	Tiers: []game.Tier{
		{ID: "S", Name: "S"},
		{ID: "A", Name: "A"},
		{ID: "B", Name: "B"},
		{ID: "C", Name: "C"},
		{ID: "D", Name: "D"},
	},
	Items: []game.TierItem{
		{ID: "deadlift", Name: "Deadlift", ImageSrc: "/tier-sets/gym-lifts/deadlift.jpg"},
		{ID: "squat", Name: "Squat", ImageSrc: "/tier-sets/gym-lifts/squat.jpg"},
		{ID: "bench-press", Name: "Bench Press", ImageSrc: "/tier-sets/gym-lifts/bench-press.jpg"},
		{ID: "overhead-press", Name: "Overhead Press", ImageSrc: "/tier-sets/gym-lifts/overhead-press.jpg"},
		{ID: "barbell-row", Name: "Barbell Row", ImageSrc: "/tier-sets/gym-lifts/barbell-row.jpg"},
	},
}

var builtins = []*game.TierSet{&videoGames, &fastFood, &gymLifts}

var byID = func() map[string]*game.TierSet {
	m := make(map[string]*game.TierSet, len(builtins))
	for _, s := range builtins {
		m[s.ID] = s
	}
	return m
}()

// Summary is the list view of a tier set, without the item catalog.
type Summary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	TierCount   int    `json:"tierCount"`
	ItemCount   int    `json:"itemCount"`
}

// List returns summaries of all built-in tier sets.
func List() []Summary {
	out := make([]Summary, 0, len(builtins))
	for _, s := range builtins {
		out = append(out, Summary{
			ID:          s.ID,
			Title:       s.Title,
			Description: s.Description,
			TierCount:   len(s.Tiers),
			ItemCount:   len(s.Items),
		})
	}
	return out
}

// Get returns a tier set by id.
func Get(id string) (*game.TierSet, bool) {
	s, ok := byID[id]
	return s, ok
}
