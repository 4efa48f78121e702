package task

import "time"

const (
	TaskTypeSyncPass = "sync_pass"
	TaskTypeAPIFetch = "api_fetch"
)

// SyncPassPayload optionally overrides the configured pass parameters.
// Zero values fall back to config.
type SyncPassPayload struct {
	BaseURL     string `json:"base_url,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
	Delete      *bool  `json:"delete,omitempty"`
}

type APIFetchPayload struct {
	URL string `json:"url,omitempty"`
}

// PassSummary is the durable record of one completed pass, kept in the
// history store and served by the status endpoint.
type PassSummary struct {
	Kind        string    `json:"kind"`
	Source      string    `json:"source"`
	Uploaded    int       `json:"uploaded"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Deleted     int       `json:"deleted"`
	Records     int       `json:"records,omitempty"`
	FailedNames []string  `json:"failed_names,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	Duration    string    `json:"duration"`
}
