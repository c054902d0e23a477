package models

import (
	"time"

	"github.com/nexconsult/quote-harvester/internal/worker"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}

// Error codes returned by the control API
const (
	ErrorCodeInternalError  = "INTERNAL_ERROR"
	ErrorCodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrorCodeInvalidRequest = "INVALID_REQUEST"
	ErrorCodeRunInProgress  = "RUN_IN_PROGRESS"
	ErrorCodeNotFound       = "NOT_FOUND"
	ErrorCodeUnauthorized   = "UNAUTHORIZED"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Services  map[string]ServiceInfo `json:"services"`
	Uptime    string                 `json:"uptime"`
}

// ServiceInfo represents individual service health
type ServiceInfo struct {
	Status    string    `json:"status"`
	LastCheck time.Time `json:"last_check"`
	Error     string    `json:"error,omitempty"`
}

// RunRequest starts a harvesting run through the API
type RunRequest struct {
	Kind     string `json:"kind" binding:"required"`
	TenantID *int64 `json:"tenant_id,omitempty"`
}

// RunAccepted is returned when a run was started in the background
type RunAccepted struct {
	RunID     string    `json:"run_id"`
	Kind      RunKind   `json:"kind"`
	StartedAt time.Time `json:"started_at"`
}

// StatsResponse reports process statistics
type StatsResponse struct {
	Browser   map[string]interface{} `json:"browser"`
	Cache     map[string]interface{} `json:"cache"`
	Workers   worker.PoolStats       `json:"workers"`
	System    SystemStats            `json:"system"`
	Timestamp time.Time              `json:"timestamp"`
}

// SystemStats represents runtime statistics
type SystemStats struct {
	MemoryMB   float64 `json:"memory_mb"`
	Goroutines int     `json:"goroutines"`
	Uptime     string  `json:"uptime"`
}
