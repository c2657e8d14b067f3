// Package report persists resolution run results as JSON for later
// inspection. The index file is rewritten atomically after every run
// so a live viewer can tail it.
package report

import "time"

// Version of the report format.
const Version = "1.0"

// Status of a run or of the whole report.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed
}

// Device describes the device the runs executed on.
type Device struct {
	Serial     string `json:"serial"`
	Model      string `json:"model,omitempty"`
	SDK        string `json:"sdk,omitempty"`
	IsEmulator bool   `json:"isEmulator"`
}

// Summary aggregates run statuses.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// TapRecord is one tap inside a run.
type TapRecord struct {
	Index  int    `json:"index"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// RunEntry is the index-level view of one resolution run.
type RunEntry struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"sessionId"`
	Target        string     `json:"target"`
	Policy        string     `json:"policy"`
	Status        Status     `json:"status"`
	TapsAttempted int        `json:"tapsAttempted"`
	TapsSucceeded int        `json:"tapsSucceeded"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	Duration      *int64     `json:"duration,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// RunDetail is the full record of one run, written to its own file.
type RunDetail struct {
	RunEntry

	Strategy    string            `json:"strategy,omitempty"`
	Candidates  int               `json:"candidates"`
	Taps        []TapRecord       `json:"taps,omitempty"`
	Attachments map[string]string `json:"attachments,omitempty"`
}

// Index is the top-level report file.
type Index struct {
	Version     string     `json:"version"`
	UpdateSeq   uint64     `json:"updateSeq"`
	Status      Status     `json:"status"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	LastUpdated time.Time  `json:"lastUpdated"`
	Device      Device     `json:"device"`
	Summary     Summary    `json:"summary"`
	Runs        []RunEntry `json:"runs"`
}
