package dto

// MigrationStatusItem is one version of a connection's migration status
type MigrationStatusItem struct {
	Version   int64  `json:"version"`
	Name      string `json:"name"`
	Applied   bool   `json:"applied"`
	AppliedAt string `json:"applied_at,omitempty"`
	Unknown   bool   `json:"unknown,omitempty"` // applied but not registered
}

// MigrationStatusResponse lists every known version of a connection
type MigrationStatusResponse struct {
	Connection string                `json:"connection"`
	Database   string                `json:"database"`
	Current    int64                 `json:"current"`
	Latest     int64                 `json:"latest"`
	Items      []MigrationStatusItem `json:"items"`
}

// PendingResponse lists versions not yet applied
type PendingResponse struct {
	Connection string  `json:"connection"`
	Pending    []int64 `json:"pending"`
}

// HistoryFilters are the query parameters of the history endpoint
type HistoryFilters struct {
	Connection string `form:"connection"`
	Database   string `form:"database"`
	Status     string `form:"status"`
	Version    int64  `form:"version"`
	Limit      int    `form:"limit"`
}

// MigrationHistoryItem represents a single execution record
type MigrationHistoryItem struct {
	ID               string `json:"id"`
	Connection       string `json:"connection"`
	Database         string `json:"database"`
	Version          int64  `json:"version"`
	Name             string `json:"name"`
	Direction        string `json:"direction"`
	Status           string `json:"status"`
	ErrorMessage     string `json:"error_message,omitempty"`
	ExecutedBy       string `json:"executed_by"`
	ExecutionMethod  string `json:"execution_method"`
	ExecutionContext string `json:"execution_context,omitempty"`
	DurationMS       int64  `json:"duration_ms"`
	AppliedAt        string `json:"applied_at"`
}

// MigrationHistoryResponse represents execution history
type MigrationHistoryResponse struct {
	Items []MigrationHistoryItem `json:"items"`
	Total int                    `json:"total"`
}

// ConnectionItem describes a configured connection
type ConnectionItem struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Database string `json:"database"`
}
