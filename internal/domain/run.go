package domain

import "time"

// RunStatus is the outcome of one executed design point.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord is the append-only result of one executed design point.
type RunRecord struct {
	ID            string      `json:"id"`
	RunID         string      `json:"run_id"`
	Sequence      int         `json:"sequence"`
	Point         DesignPoint `json:"point"`
	Label         string      `json:"label"`
	Status        RunStatus   `json:"status"`
	Error         string      `json:"error,omitempty"`
	TeardownError string      `json:"teardown_error,omitempty"`
	LogRef        string      `json:"log_ref,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    time.Time   `json:"finished_at"`
}

// Progress counts visited points for one exploration.
type Progress struct {
	Total    uint64 `json:"total"`
	Executed uint64 `json:"executed"`
	Skipped  uint64 `json:"skipped"`
	Failed   uint64 `json:"failed"`
}

func (p Progress) Visited() uint64 { return p.Executed + p.Skipped }

// Percent is the share of the design space visited so far, in [0, 100].
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	pct := 100 * float64(p.Visited()) / float64(p.Total)
	if pct > 100 {
		return 100
	}
	return pct
}

// Summary is what a finished exploration reports to the run log.
type Summary struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	Progress   Progress  `json:"progress"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
