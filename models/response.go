package models

import "encoding/json"

// Record is a typed extraction result. Fields always holds the full field
// set of its shape; values that could not be found are nil and encode as
// JSON null.
type Record struct {
	Shape  ShapeName      `json:"shape"`
	Fields map[string]any `json:"fields"`
}

// Get returns a field value, nil when absent.
func (r *Record) Get(field string) any {
	if r == nil {
		return nil
	}
	return r.Fields[field]
}

// ScrapeResult is the only value the scrape core returns. Success is true
// exactly when Data is non-nil and ErrorKind is KindNone.
type ScrapeResult struct {
	RequestID       string    `json:"request_id"`
	Target          string    `json:"target"`
	Success         bool      `json:"success"`
	Data            *Record   `json:"data"`
	ErrorKind       ErrorKind `json:"error_kind"`
	Error           string    `json:"error,omitempty"`
	AttemptsUsed    int       `json:"attempts_used"`
	DurationSeconds float64   `json:"duration_seconds"`
	ConfidenceScore float64   `json:"confidence_score"`
	Engine          string    `json:"engine,omitempty"`
}

// MarshalJSON keeps the record's field map flat under "data".
func (r ScrapeResult) MarshalJSON() ([]byte, error) {
	type alias ScrapeResult
	out := struct {
		alias
		Data map[string]any `json:"data"`
	}{alias: alias(r)}
	if r.Data != nil {
		out.Data = r.Data.Fields
	}
	return json.Marshal(out)
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser session pool.
type PoolStats struct {
	MaxSessions    int `json:"max_sessions"`
	LiveSessions   int `json:"live_sessions"`
	ActiveSessions int `json:"active_sessions"`
	Available      int `json:"available"`
}

// ErrorResponse is the body of requests rejected before reaching the
// scrape core (bad JSON, auth, rate limit).
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
