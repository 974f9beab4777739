package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeRunCompleted = "PIPELINE_RUN_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// RunCompletedEvent published when a pipeline run has reloaded the store
type RunCompletedEvent struct {
	BaseEvent
	RunID        string          `json:"run_id"`
	RowsLoaded   int             `json:"rows_loaded"`
	Customers    int             `json:"customers"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	NetRevenue   decimal.Decimal `json:"net_revenue"`
}
