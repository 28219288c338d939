package model

import "time"

// Item is one inbox message reduced to the fields the pipeline needs.
// Items are immutable once fetched.
type Item struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Snippet    string    `json:"snippet"`
}

// Window bounds a fetch from the mail source
type Window struct {
	// LookbackDays is used when After is zero
	LookbackDays int

	// After is an explicit date floor (day granularity)
	After time.Time

	// MaxCount caps the number of items returned
	MaxCount int
}

// Floor returns the effective date floor of the window relative to now.
func (w Window) Floor(now time.Time) time.Time {
	if !w.After.IsZero() {
		return w.After
	}
	days := w.LookbackDays
	if days <= 0 {
		days = DefaultLookbackDays
	}
	y, m, d := now.AddDate(0, 0, -days).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// Extraction holds the fields pulled out of a confirmation email.
// An empty string means the field is absent.
type Extraction struct {
	Company  string `json:"company,omitempty"`
	Position string `json:"position,omitempty"`

	// MentionedDate is whatever date the model claimed. It is never persisted:
	// records always carry the message's own received time.
	MentionedDate string `json:"mentioned_date,omitempty"`
}

// Complete reports whether at least one of company/position is present
func (e Extraction) Complete() bool {
	return e.Company != "" || e.Position != ""
}

// Record is a persisted job application derived from one confirmed email
type Record struct {
	ItemID      string    `json:"message_id"`
	Company     string    `json:"company"`
	Position    string    `json:"position"`
	EmailTitle  string    `json:"email_title"`
	EmailDate   time.Time `json:"email_date"`
	ProcessedAt time.Time `json:"processed_at"`
}

// NewRecord builds a record candidate. The email date always comes from the
// item, never from the extraction.
func NewRecord(item Item, ext Extraction, processedAt time.Time) Record {
	return Record{
		ItemID:      item.ID,
		Company:     ext.Company,
		Position:    ext.Position,
		EmailTitle:  item.Subject,
		EmailDate:   item.ReceivedAt.Truncate(time.Second),
		ProcessedAt: processedAt.Truncate(time.Second),
	}
}
