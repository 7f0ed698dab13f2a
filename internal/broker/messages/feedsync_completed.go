package messages

import "time"

// FeedSyncCompleted — сводка одного прогона реконсиляции фида.
type FeedSyncCompleted struct {
	RunID       string    `json:"run_id"`
	Marketplace string    `json:"marketplace"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	Scanned   int `json:"scanned"`
	Matched   int `json:"matched"`
	Updated   int `json:"updated"`
	Unmatched int `json:"unmatched"`
	Errors    int `json:"errors"`
}
