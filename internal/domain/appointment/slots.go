package appointment

import (
	"github.com/google/uuid"
)

// Interval is a half-open [Start, End) range in minutes since midnight.
type Interval struct {
	Start int
	End   int
}

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && i.End > o.Start
}

// GenerateSlots walks the working window in slotMinutes steps and
// returns the start minutes of every slot that fits. The walk always
// advances by slotMinutes, so the grid stays on the same lattice;
// candidates overlapping a break are dropped, not shifted. Slots that
// would end past windowEnd are discarded.
func GenerateSlots(windowStart, windowEnd, slotMinutes int, breaks []Interval) []int {
	if slotMinutes <= 0 || windowEnd <= windowStart {
		return nil
	}
	var slots []int
	for t := windowStart; t+slotMinutes <= windowEnd; t += slotMinutes {
		candidate := Interval{Start: t, End: t + slotMinutes}
		blocked := false
		for _, b := range breaks {
			if candidate.Overlaps(b) {
				blocked = true
				break
			}
		}
		if !blocked {
			slots = append(slots, t)
		}
	}
	return slots
}

// GridRow is one generated appointment of a batch grid: a chair at a
// slot, with the provider chosen round-robin.
type GridRow struct {
	StartTime  string
	EndTime    string
	Chair      int
	ProviderID uuid.UUID
}

// BuildGrid expands slot start minutes into chairs rows per slot,
// assigning providers round-robin across the whole grid. The rotation
// index runs slot-major so parallel chairs in the same slot get
// different providers as long as enough providers are given.
func BuildGrid(slots []int, slotMinutes, chairs int, providerIDs []uuid.UUID) []GridRow {
	if chairs <= 0 || len(providerIDs) == 0 {
		return nil
	}
	rows := make([]GridRow, 0, len(slots)*chairs)
	for si, start := range slots {
		for c := 0; c < chairs; c++ {
			rows = append(rows, GridRow{
				StartTime:  FormatClock(start),
				EndTime:    FormatClock(start + slotMinutes),
				Chair:      c,
				ProviderID: providerIDs[(si*chairs+c)%len(providerIDs)],
			})
		}
	}
	return rows
}
