package board

// ZoneType distinguishes player-owned zones from shared zones.
type ZoneType string

const (
	ZoneTypePlayer ZoneType = "player"
	ZoneTypeShared ZoneType = "shared"
)

// Zone is an axis-aligned rectangle on the table. An exclusive player zone
// restricts mutations inside it to the player seated with the matching color.
type Zone struct {
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Width     float64  `json:"width"`
	Height    float64  `json:"height"`
	Type      ZoneType `json:"type"`
	Color     string   `json:"color,omitempty"`
	Exclusive bool     `json:"exclusive,omitempty"`
}

// Contains reports whether the point (x, y) lies inside the zone.
func (z Zone) Contains(x, y float64) bool {
	return x >= z.X && x < z.X+z.Width && y >= z.Y && y < z.Y+z.Height
}

// Allowed decides whether a player with the given color may mutate state at
// (x, y). Zones are consulted in order; the first exclusive player zone
// containing the point decides the outcome and later zones are never
// consulted. If no exclusive zone contains the point the action is allowed,
// which also covers rooms that play without zones.
func Allowed(zones []Zone, playerColor string, x, y float64) bool {
	for _, z := range zones {
		if !z.Exclusive || z.Type != ZoneTypePlayer {
			continue
		}
		if z.Contains(x, y) {
			return z.Color == playerColor
		}
	}
	return true
}
