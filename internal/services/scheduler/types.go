package scheduler

// JobListResponse represents a scheduled job in list responses
type JobListResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	JobType   string  `json:"job_type"`
	Cron      string  `json:"cron"`
	Timezone  string  `json:"timezone"`
	Enabled   bool    `json:"enabled"`
	Payload   string  `json:"payload,omitempty"`
	LastRunAt *string `json:"last_run_at"` // ISO 8601 format
	NextRun   *string `json:"next_run"`    // ISO 8601 format
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// UpsertJobRequest represents a request to create or update a scheduled job.
// Payload is a hierarchy filter, either as a JSON string or as an object.
type UpsertJobRequest struct {
	Name     string      `json:"name" binding:"required"`
	JobType  string      `json:"job_type" binding:"required"` // "cache_warmup" or "stats_snapshot"
	Cron     string      `json:"cron" binding:"required"`
	Timezone string      `json:"timezone"`
	Enabled  bool        `json:"enabled"`
	Payload  interface{} `json:"payload"`
}
