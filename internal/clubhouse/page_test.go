package clubhouse

import (
	"testing"
	"time"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateSelector(t *testing.T) {
	d := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "a.date-wrapper[data-date='3'][data-month='1'][data-year='2026']", dateSelector(d))
}

func TestHandleRoundTrip(t *testing.T) {
	h := handleFor(booking.NewClock(8, 7), 10)
	assert.Equal(t, "08:07:00|10", h)

	timeOf, tee, err := parseHandle(h)
	require.NoError(t, err)
	assert.Equal(t, "08:07:00", timeOf)
	assert.Equal(t, 10, tee)
	assert.Equal(t, "div.tt.card[data-timeof='08:07:00'][data-hole='10']", cardSelector(timeOf, tee))

	for _, bad := range []string{"08:07:00", "08:07:00|x", "x|10", "'];alert(1)//|1"} {
		_, _, err := parseHandle(bad)
		assert.Error(t, err, bad)
	}
}

func TestSlotsFromCards(t *testing.T) {
	slots, dropped := slotsFromCards([]card{
		{TimeOf: "08:07:00", Hole: "10", SlotsAvailable: "4", Class: "tt card"},
		{TimeOf: "13:30:00", Hole: "1", SlotsAvailable: "2", Class: "tt card"},
		{TimeOf: "08:15:00", Hole: "1", SlotsAvailable: "3", Class: "tt card unavailable"},
		{TimeOf: "", Hole: "1", SlotsAvailable: "4"},
		{TimeOf: "09:00:00", Hole: "ten", SlotsAvailable: "4"},
	})
	assert.Equal(t, 2, dropped)
	require.Len(t, slots, 3)

	assert.Equal(t, booking.NewClock(8, 7), slots[0].Time)
	assert.Equal(t, 10, slots[0].Tee)
	assert.Equal(t, 4, slots[0].Capacity)
	assert.Equal(t, "08:07:00|10", slots[0].Handle)

	// 13:30 stays afternoon: card times are 24-hour.
	assert.Equal(t, booking.NewClock(13, 30), slots[1].Time)
	assert.Zero(t, slots[2].Capacity, "unavailable cards have no room")
}

func TestTransportLabel(t *testing.T) {
	assert.Equal(t, "WALK (WLK)", transportLabel(booking.TransportWalk))
	assert.Equal(t, "WALK/RIDE (W/R)", transportLabel(booking.TransportWalkRide))
	assert.Equal(t, "CART (CRT)", transportLabel(booking.Transport("SEGWAY")))
}

func TestClassifyConfirmation(t *testing.T) {
	c := classifyConfirmation("Reservation Confirmed\nConfirmation #: TT-88231\nSaturday 8:07 AM")
	assert.Equal(t, booking.Confirmed, c.Kind)
	assert.Equal(t, "TT-88231", c.Reference)

	c = classifyConfirmation("Your tee time has been successfully booked.")
	assert.Equal(t, booking.Confirmed, c.Kind)

	c = classifyConfirmation("Unable to book: this tee time is no longer available")
	assert.Equal(t, booking.Declined, c.Kind)

	c = classifyConfirmation("Back   Submit Reservation")
	assert.Equal(t, booking.Ambiguous, c.Kind, "the form itself is not a confirmation")

	c = classifyConfirmation("Tee Times\n7:59 AM Not Available\n8:07 AM 4 slots\nGuests Holes MOT\nBack Submit Reservation")
	assert.Equal(t, booking.Ambiguous, c.Kind, "a full row on the tee sheet is not a decline")

	c = classifyConfirmation("Terms: errors in your group may be corrected by the pro shop\nBack Submit")
	assert.Equal(t, booking.Ambiguous, c.Kind, "terms text mentioning errors is not a decline")

	c = classifyConfirmation("Error: member booking limit reached for this day")
	assert.Equal(t, booking.Declined, c.Kind)
}

func TestClassifyAfterSubmit(t *testing.T) {
	form := "Tee Times\n7:59 AM Not Available\n8:07 AM 4 slots\nGuests Holes MOT\nBack Submit Reservation"

	c := classifyAfterSubmit(form, form)
	assert.Equal(t, booking.Ambiguous, c.Kind)
	assert.Equal(t, "page unchanged after submit", c.Detail)

	c = classifyAfterSubmit(form, form+"\nUnable to book: this tee time is no longer available")
	assert.Equal(t, booking.Declined, c.Kind)
	assert.Equal(t, "Unable to book: this tee time is no longer available", c.Detail)

	c = classifyAfterSubmit(form, "Reservation Confirmed\nConfirmation #: TT-88231")
	assert.Equal(t, booking.Confirmed, c.Kind)
	assert.Equal(t, "TT-88231", c.Reference)

	// Leftover decline wording from before the click does not count.
	stale := "Unable to book: this tee time is no longer available\nBack Submit Reservation"
	c = classifyAfterSubmit(stale, stale+"\nPlease wait")
	assert.Equal(t, booking.Ambiguous, c.Kind)

	c = classifyAfterSubmit("", "Your tee time has been successfully booked.")
	assert.Equal(t, booking.Confirmed, c.Kind)
}

func TestVisibleTimes(t *testing.T) {
	got := visibleTimes("8:00 AM  8:07 AM 8:00 AM 13:30 12:45PM", 3)
	assert.Equal(t, []string{"8:00 AM", "8:07 AM", "13:30"}, got)
}
