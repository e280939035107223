package event

import (
	"strings"

	"github.com/gyaneshwarpardhi/fishrules/internal/value"
)

// RegisterResolvers installs the built-in fishing variables into reg.
// Variables that depend on the outcome are unresolved for player-only
// sources.
func RegisterResolvers(reg *value.Registry) {
	str := func(f func(*Source) string) value.Resolver {
		return func(src interface{}) (value.Value, bool) {
			s, ok := src.(*Source)
			if !ok {
				return value.Value{}, false
			}
			v := f(s)
			return value.String(v), v != ""
		}
	}

	reg.Register("player.id", str(func(s *Source) string { return s.Player.ID }))
	reg.Register("player.name", str(func(s *Source) string { return s.Player.Name }))
	reg.Register("player.world", str(func(s *Source) string { return s.Player.World }))

	reg.Register("time.hour", func(src interface{}) (value.Value, bool) {
		s, ok := src.(*Source)
		if !ok || s.At.IsZero() {
			return value.Value{}, false
		}
		return value.Int(int64(s.At.Hour())), true
	})
	reg.Register("time.weekday", str(func(s *Source) string {
		if s.At.IsZero() {
			return ""
		}
		return strings.ToLower(s.At.Weekday().String())
	}))

	outcome := func(f func(*FishingOutcome) (value.Value, bool)) value.Resolver {
		return func(src interface{}) (value.Value, bool) {
			s, ok := src.(*Source)
			if !ok || s.Outcome == nil {
				return value.Value{}, false
			}
			return f(s.Outcome)
		}
	}
	text := func(v string) (value.Value, bool) { return value.String(v), v != "" }

	reg.Register("event.id", outcome(func(o *FishingOutcome) (value.Value, bool) { return text(o.ID) }))
	reg.Register("event.kind", outcome(func(o *FishingOutcome) (value.Value, bool) { return text(o.Kind) }))
	reg.Register("rod.id", outcome(func(o *FishingOutcome) (value.Value, bool) { return text(o.Gear.Rod) }))
	reg.Register("bait.id", outcome(func(o *FishingOutcome) (value.Value, bool) { return text(o.Gear.Bait) }))
	reg.Register("hook.id", outcome(func(o *FishingOutcome) (value.Value, bool) { return text(o.Gear.Hook) }))
	reg.Register("fish.reel_time", outcome(func(o *FishingOutcome) (value.Value, bool) {
		return value.Duration(o.ReelTime()), o.ReelTimeMs > 0
	}))
	reg.Register("competition.active", outcome(func(o *FishingOutcome) (value.Value, bool) {
		return value.Bool(o.Competition != nil), true
	}))
	reg.Register("competition.id", outcome(func(o *FishingOutcome) (value.Value, bool) {
		if o.Competition == nil {
			return value.Value{}, false
		}
		return text(o.Competition.ID)
	}))

	loot := func(f func(*Loot) (value.Value, bool)) value.Resolver {
		return outcome(func(o *FishingOutcome) (value.Value, bool) {
			if o.Loot == nil {
				return value.Value{}, false
			}
			return f(o.Loot)
		})
	}
	reg.Register("fish.id", loot(func(l *Loot) (value.Value, bool) { return text(l.ID) }))
	reg.Register("fish.name", loot(func(l *Loot) (value.Value, bool) { return text(l.Name) }))
	reg.Register("fish.group", loot(func(l *Loot) (value.Value, bool) { return text(l.Group) }))
	reg.Register("fish.tier", loot(func(l *Loot) (value.Value, bool) { return text(l.Tier) }))
	reg.Register("fish.weight", loot(func(l *Loot) (value.Value, bool) { return value.Number(l.Weight), true }))
	reg.Register("fish.size", loot(func(l *Loot) (value.Value, bool) { return value.Number(l.Size), true }))
	reg.Register("fish.score", loot(func(l *Loot) (value.Value, bool) { return value.Number(l.Score), true }))

	loc := func(f func(*Location) (value.Value, bool)) value.Resolver {
		return outcome(func(o *FishingOutcome) (value.Value, bool) {
			if o.Location == nil {
				return value.Value{}, false
			}
			return f(o.Location)
		})
	}
	reg.Register("location.world", loc(func(l *Location) (value.Value, bool) { return text(l.World) }))
	reg.Register("location.biome", loc(func(l *Location) (value.Value, bool) { return text(l.Biome) }))
	reg.Register("location.x", loc(func(l *Location) (value.Value, bool) { return value.Number(l.X), true }))
	reg.Register("location.y", loc(func(l *Location) (value.Value, bool) { return value.Number(l.Y), true }))
	reg.Register("location.z", loc(func(l *Location) (value.Value, bool) { return value.Number(l.Z), true }))

	reg.RegisterPrefix("extra.", func(src interface{}, key string) (value.Value, bool) {
		s, ok := src.(*Source)
		if !ok || s.Outcome == nil {
			return value.Value{}, false
		}
		raw, ok := s.Outcome.Extra[key]
		if !ok {
			return value.Value{}, false
		}
		v, err := value.FromAny(raw)
		if err != nil {
			return value.Value{}, false
		}
		return v, true
	})
}
