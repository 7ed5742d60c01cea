package booking

import (
	"encoding/json"
	"time"
)

type OutcomeStatus string

const (
	OutcomeBooked    OutcomeStatus = "booked"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeUnmatched OutcomeStatus = "unmatched"
)

type RunStatus string

const (
	RunComplete RunStatus = "complete"
	RunPartial  RunStatus = "partial"
	RunFailed   RunStatus = "failed"
)

// Outcome records what happened to one evaluated preference.
type Outcome struct {
	Priority     int           `json:"priority"`
	Preference   Preference    `json:"preference"`
	Status       OutcomeStatus `json:"status"`
	Slot         *Slot         `json:"slot,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Confirmation string        `json:"confirmation,omitempty"`
	Retries      int           `json:"retries,omitempty"`
	Duration     time.Duration `json:"duration_ns,omitempty"`
}

// RunResult is the full record of one run. It is built by the orchestrator
// and not modified after it is returned.
type RunResult struct {
	RunID      string    `json:"run_id"`
	Portal     string    `json:"portal,omitempty"`
	TargetDate time.Time `json:"target_date"`
	Target     int       `json:"target"`
	Booked     int       `json:"booked"`
	Status     RunStatus `json:"status"`
	Canceled   bool      `json:"canceled,omitempty"`
	Outcomes   []Outcome `json:"outcomes"`
	Messages   []string  `json:"messages,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// StatusFor derives the terminal status from the confirmed count.
func StatusFor(booked, target int) RunStatus {
	switch {
	case target > 0 && booked >= target:
		return RunComplete
	case booked > 0:
		return RunPartial
	default:
		return RunFailed
	}
}

func (r RunResult) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Summary is the compact form handed to schedulers and notification channels.
type Summary struct {
	RunID      string            `json:"run_id"`
	Status     RunStatus         `json:"status"`
	TargetDate string            `json:"target_date"`
	Requested  int               `json:"requested"`
	Booked     int               `json:"booked"`
	Failed     int               `json:"failed"`
	Unmatched  int               `json:"unmatched"`
	PerPref    map[string]string `json:"per_preference"`
	Messages   []string          `json:"messages,omitempty"`
}

func (r RunResult) Summary() Summary {
	per := make(map[string]string, len(r.Outcomes))
	for _, o := range r.Outcomes {
		v := string(o.Status)
		if o.Reason != "" {
			v += ": " + o.Reason
		}
		per[o.Preference.String()] = v
	}
	return Summary{
		RunID:      r.RunID,
		Status:     r.Status,
		TargetDate: r.TargetDate.Format("2006-01-02"),
		Requested:  r.Target,
		Booked:     r.Booked,
		Failed:     r.Count(OutcomeFailed),
		Unmatched:  r.Count(OutcomeUnmatched),
		PerPref:    per,
		Messages:   r.Messages,
	}
}

func (r RunResult) MarshalSummary() ([]byte, error) {
	return json.MarshalIndent(r.Summary(), "", "  ")
}
