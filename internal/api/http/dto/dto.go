package dto

// MigrateUpRequest applies every pending migration of a connection
type MigrateUpRequest struct {
	Connection string `json:"connection" binding:"required"`
	DryRun     bool   `json:"dry_run"` // Optional, default false
}

// MigrateDownRequest reverts applied migrations above TargetVersion
type MigrateDownRequest struct {
	Connection    string `json:"connection" binding:"required"`
	TargetVersion *int64 `json:"target_version" binding:"required"`
	DryRun        bool   `json:"dry_run"`
}

// MigrateResponse represents a migration response
type MigrateResponse struct {
	Success bool    `json:"success"`
	DryRun  bool    `json:"dry_run,omitempty"`
	Applied []int64 `json:"applied"`
	Pending []int64 `json:"pending"`
	Error   string  `json:"error,omitempty"`
	Kind    string  `json:"kind,omitempty"`
	Failed  *int64  `json:"failed_version,omitempty"`
}

// QueuedResponse is returned when a run was handed to the queue
type QueuedResponse struct {
	Queued bool   `json:"queued"`
	JobID  string `json:"job_id"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
