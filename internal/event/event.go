// Package event defines the fishing-outcome data received from the host
// and the built-in variables resolved from it.
package event

import "time"

// Outcome kinds.
const (
	KindSuccess = "success"
	KindFailure = "failure"
)

// Player identifies the angler.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	World string `json:"world,omitempty"`
}

// Loot is what came out of the water. Empty for failed attempts.
type Loot struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Group  string  `json:"group,omitempty"`
	Weight float64 `json:"weight"`
	Size   float64 `json:"size"`
	Score  float64 `json:"score"`
	Tier   string  `json:"tier,omitempty"`
}

// Location is where the hook landed.
type Location struct {
	World string  `json:"world"`
	Biome string  `json:"biome,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// Gear lists the equipment used for the attempt.
type Gear struct {
	Rod  string `json:"rod,omitempty"`
	Bait string `json:"bait,omitempty"`
	Hook string `json:"hook,omitempty"`
}

// Competition is set when a fishing competition is running.
type Competition struct {
	ID string `json:"id"`
}

// FishingOutcome is one completed fishing attempt as reported by the host.
// It is read-only to the engine.
type FishingOutcome struct {
	ID          string                 `json:"id"` // host delivery id; duplicates share it
	Kind        string                 `json:"kind"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Player      Player                 `json:"player"`
	Loot        *Loot                  `json:"loot,omitempty"`
	Location    *Location              `json:"location,omitempty"`
	Gear        Gear                   `json:"gear"`
	ReelTimeMs  int64                  `json:"reel_time_ms,omitempty"`
	Competition *Competition           `json:"competition,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// ReelTime is the time between bite and landing.
func (o *FishingOutcome) ReelTime() time.Duration {
	return time.Duration(o.ReelTimeMs) * time.Millisecond
}

// Source is what resolvers read from. Outcome is nil for placeholder
// queries, which only know the player.
type Source struct {
	Player  Player
	Outcome *FishingOutcome
	At      time.Time
}

// ForOutcome builds the Source for a fishing outcome.
func ForOutcome(o *FishingOutcome) *Source {
	at := o.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	return &Source{Player: o.Player, Outcome: o, At: at}
}

// ForPlayer builds the player-only Source used by placeholder queries.
func ForPlayer(p Player, at time.Time) *Source {
	return &Source{Player: p, At: at}
}
