package runs

import (
	"context"
	"fmt"
	"time"

	"github.com/example/teetime-scheduler/internal/db"
	"github.com/example/teetime-scheduler/internal/domain/booking"
)

// Run is a stored run without its outcomes, for listings.
type Run struct {
	ID         string
	Portal     string
	TargetDate time.Time
	Target     int
	Booked     int
	Status     booking.RunStatus
	Canceled   bool
	Messages   []string
	StartedAt  time.Time
	FinishedAt time.Time
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Name() string { return "postgres" }

// Record stores a finished run with its outcomes. It makes Repo a result sink.
func (r *Repo) Record(ctx context.Context, res booking.RunResult) error {
	return r.db.Tx(ctx, func(tx db.Execer) error {
		messages := res.Messages
		if messages == nil {
			messages = []string{}
		}
		if err := tx.Exec(ctx, `
INSERT INTO runs(id,portal,target_date,target,booked,status,canceled,messages,started_at,finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			res.RunID, res.Portal, dateOnly(res.TargetDate), res.Target, res.Booked, string(res.Status), res.Canceled,
			messages, res.StartedAt, res.FinishedAt,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for _, o := range res.Outcomes {
			row := outcomeRow(o)
			if err := tx.Exec(ctx, `
INSERT INTO run_outcomes(run_id,priority,window_start,window_end,tee,holes,transport,guests,status,slot_time,slot_tee,slot_capacity,slot_holes,slot_handle,reason,confirmation,retries,duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
				res.RunID, row.Priority, row.WindowStart, row.WindowEnd, row.Tee, row.Holes, row.Transport, row.Guests,
				row.Status, row.SlotTime, row.SlotTee, row.SlotCapacity, row.SlotHoles, row.SlotHandle,
				row.Reason, row.Confirmation, row.Retries, row.DurationMS,
			); err != nil {
				return fmt.Errorf("insert outcome %d: %w", o.Priority, err)
			}
		}
		return nil
	})
}

const runColumns = `id,portal,target_date,target,booked,status,canceled,messages,started_at,finished_at`

func scanRun(row db.Row) (Run, error) {
	var rn Run
	var status string
	err := row.Scan(&rn.ID, &rn.Portal, &rn.TargetDate, &rn.Target, &rn.Booked, &status, &rn.Canceled,
		&rn.Messages, &rn.StartedAt, &rn.FinishedAt)
	rn.Status = booking.RunStatus(status)
	return rn, err
}

func (r *Repo) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.Query(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		rn, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rn)
	}
	return out, rows.Err()
}

// Get loads a run with its outcomes.
func (r *Repo) Get(ctx context.Context, id string) (booking.RunResult, error) {
	rn, err := scanRun(r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id=$1`, id))
	if err != nil {
		return booking.RunResult{}, db.WrapNotFound(err)
	}
	res := booking.RunResult{
		RunID:      rn.ID,
		Portal:     rn.Portal,
		TargetDate: rn.TargetDate,
		Target:     rn.Target,
		Booked:     rn.Booked,
		Status:     rn.Status,
		Canceled:   rn.Canceled,
		Messages:   rn.Messages,
		StartedAt:  rn.StartedAt,
		FinishedAt: rn.FinishedAt,
	}

	rows, err := r.db.Query(ctx, `
SELECT priority,window_start,window_end,tee,holes,transport,guests,status,slot_time,slot_tee,slot_capacity,slot_holes,slot_handle,reason,confirmation,retries,duration_ms
FROM run_outcomes WHERE run_id=$1 ORDER BY priority`, id)
	if err != nil {
		return booking.RunResult{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var o outcome
		if err := rows.Scan(&o.Priority, &o.WindowStart, &o.WindowEnd, &o.Tee, &o.Holes, &o.Transport, &o.Guests,
			&o.Status, &o.SlotTime, &o.SlotTee, &o.SlotCapacity, &o.SlotHoles, &o.SlotHandle, &o.Reason, &o.Confirmation, &o.Retries, &o.DurationMS); err != nil {
			return booking.RunResult{}, err
		}
		res.Outcomes = append(res.Outcomes, o.toDomain())
	}
	return res, rows.Err()
}

// HasRunFor reports whether any run targeted date.
func (r *Repo) HasRunFor(ctx context.Context, date time.Time) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM runs WHERE target_date=$1)`, dateOnly(date)).Scan(&ok)
	return ok, err
}

// dateOnly keeps the calendar date of t as seen in its own location.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// outcome is one run_outcomes row.
type outcome struct {
	Priority     int
	WindowStart  int
	WindowEnd    int
	Tee          int
	Holes        int
	Transport    string
	Guests       int
	Status       string
	SlotTime     *int
	SlotTee      *int
	SlotCapacity *int
	SlotHoles    *int
	SlotHandle   string
	Reason       string
	Confirmation string
	Retries      int
	DurationMS   int64
}

func outcomeRow(o booking.Outcome) outcome {
	row := outcome{
		Priority:     o.Priority,
		WindowStart:  int(o.Preference.Window.Start),
		WindowEnd:    int(o.Preference.Window.End),
		Tee:          o.Preference.Tee,
		Holes:        int(o.Preference.Holes),
		Transport:    string(o.Preference.Transport),
		Guests:       o.Preference.Guests,
		Status:       string(o.Status),
		Reason:       o.Reason,
		Confirmation: o.Confirmation,
		Retries:      o.Retries,
		DurationMS:   o.Duration.Milliseconds(),
	}
	if o.Slot != nil {
		at, tee, capacity, holes := int(o.Slot.Time), o.Slot.Tee, o.Slot.Capacity, int(o.Slot.Holes)
		row.SlotTime, row.SlotTee, row.SlotCapacity, row.SlotHoles = &at, &tee, &capacity, &holes
		row.SlotHandle = o.Slot.Handle
	}
	return row
}

func (o outcome) toDomain() booking.Outcome {
	out := booking.Outcome{
		Priority: o.Priority,
		Preference: booking.Preference{
			Priority:  o.Priority,
			Window:    booking.TimeWindow{Start: booking.Clock(o.WindowStart), End: booking.Clock(o.WindowEnd)},
			Tee:       o.Tee,
			Holes:     booking.HoleCount(o.Holes),
			Transport: booking.Transport(o.Transport),
			Guests:    o.Guests,
		},
		Status:       booking.OutcomeStatus(o.Status),
		Reason:       o.Reason,
		Confirmation: o.Confirmation,
		Retries:      o.Retries,
		Duration:     time.Duration(o.DurationMS) * time.Millisecond,
	}
	if o.SlotTime != nil {
		s := booking.Slot{SlotKey: booking.SlotKey{Time: booking.Clock(*o.SlotTime)}, Handle: o.SlotHandle}
		if o.SlotTee != nil {
			s.Tee = *o.SlotTee
		}
		if o.SlotCapacity != nil {
			s.Capacity = *o.SlotCapacity
		}
		if o.SlotHoles != nil {
			s.Holes = booking.HoleCount(*o.SlotHoles)
		}
		out.Slot = &s
	}
	return out
}
