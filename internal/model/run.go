package model

import "time"

// OutcomeStatus classifies what happened to one attempted item
type OutcomeStatus string

const (
	OutcomeSuccess          OutcomeStatus = "success"           // Record candidate produced
	OutcomeSkipped          OutcomeStatus = "skipped"           // Not a confirmation
	OutcomeExtractionFailed OutcomeStatus = "extraction_failed" // Confirmation, but no usable fields
	OutcomeError            OutcomeStatus = "error"             // Classification failed
)

// Outcome is one entry of the ordered per-item log of a run
type Outcome struct {
	ItemID     string        `json:"item_id"`
	Subject    string        `json:"subject"`
	Sender     string        `json:"sender"`
	ReceivedAt time.Time     `json:"received_at"`
	Status     OutcomeStatus `json:"status"`
	Company    string        `json:"company,omitempty"`
	Position   string        `json:"position,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Summary aggregates a finished (or aborted) run
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Fetched           int  `json:"fetched"`            // Items returned by the source
	Scanned           int  `json:"scanned"`            // Items attempted
	Matched           int  `json:"matched"`            // Classified as confirmations
	Recorded          int  `json:"recorded"`           // Newly inserted records
	DuplicatesSkipped int  `json:"duplicates_skipped"` // Seen-filtered plus record-level duplicates
	Errors            int  `json:"errors"`
	Cancelled         bool `json:"cancelled"`

	// Watermark is the watermark after this run (diagnostic only)
	Watermark time.Time `json:"watermark,omitempty"`

	Outcomes []Outcome `json:"outcomes"`

	// Pending holds record candidates that could not be saved
	Pending []Record `json:"pending,omitempty"`
}

// Stage names the state of a run
type Stage string

const (
	StageIdle        Stage = "idle"
	StageFetching    Stage = "fetching"
	StageFiltering   Stage = "filtering"
	StageIterating   Stage = "iterating"
	StageReconciling Stage = "reconciling"
)

// EventKind classifies progress events
type EventKind string

const (
	EventStage   EventKind = "stage"
	EventItem    EventKind = "item"
	EventDone    EventKind = "done"
	EventFailure EventKind = "failure"
)

// Event is one element of a run's progress stream
type Event struct {
	Seq     int       `json:"seq"`
	RunID   string    `json:"run_id"`
	Kind    EventKind `json:"kind"`
	Stage   Stage     `json:"stage,omitempty"`
	Index   int       `json:"index,omitempty"` // 1-based position of the item in this run
	Total   int       `json:"total,omitempty"`
	Message string    `json:"message,omitempty"`
	Outcome *Outcome  `json:"outcome,omitempty"`
	Summary *Summary  `json:"summary,omitempty"`
}

// Stats is the scan-history view exposed to the control surface
type Stats struct {
	TotalSeen    int       `json:"total_seen"`
	TotalRecords int       `json:"total_records"`
	Watermark    time.Time `json:"watermark,omitempty"`
}
