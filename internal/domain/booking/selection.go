package booking

import (
	"sort"
	"time"
)

// SlotKey identifies a tee time on the sheet for one date.
type SlotKey struct {
	Time  Clock     `json:"time"`
	Holes HoleCount `json:"holes,omitempty"` // 0 when the portal does not restrict the round length
	Tee   int       `json:"tee,omitempty"`
}

type Slot struct {
	SlotKey
	Capacity int    `json:"capacity"`
	Handle   string `json:"handle"`
}

// SlotSnapshot is what the portal showed for one date at one moment.
// Slots are kept in time order, then tee order; equal keys keep portal order.
type SlotSnapshot struct {
	Date      time.Time `json:"date"`
	FetchedAt time.Time `json:"fetched_at"`
	Slots     []Slot    `json:"slots"`
}

func NewSnapshot(date, fetchedAt time.Time, slots []Slot) SlotSnapshot {
	sorted := make([]Slot, len(slots))
	copy(sorted, slots)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Time != sorted[j].Time {
			return sorted[i].Time < sorted[j].Time
		}
		return sorted[i].Tee < sorted[j].Tee
	})
	return SlotSnapshot{Date: date, FetchedAt: fetchedAt, Slots: sorted}
}

// Match returns the best slot for a preference: the earliest slot inside the
// preference window that fits the tee, round length and party size. Ties on
// time resolve to snapshot order.
func (s SlotSnapshot) Match(p Preference) (Slot, bool) {
	for _, sl := range s.Slots {
		if sl.fits(p) {
			return sl, true
		}
	}
	return Slot{}, false
}

func (sl Slot) fits(p Preference) bool {
	if !p.Window.Contains(sl.Time) {
		return false
	}
	if p.Tee != 0 && sl.Tee != p.Tee {
		return false
	}
	if sl.Holes != 0 && sl.Holes != p.Holes {
		return false
	}
	return sl.Capacity >= p.PartySize()
}
