package model

import "time"

// SyncRunStatus is the lifecycle state of a recorded task invocation.
type SyncRunStatus string

const (
	SyncRunRunning  SyncRunStatus = "running"
	SyncRunComplete SyncRunStatus = "complete"
	SyncRunFailed   SyncRunStatus = "failed"
)

// Task names recorded in the sync history.
const (
	TaskTariffSync   = "tariff_sync"
	TaskSheetsExport = "sheets_export"
)

// SyncRun is one recorded invocation of a sync task.
type SyncRun struct {
	ID          int64         `json:"id"`
	Task        string        `json:"task"`
	Status      SyncRunStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Rows        int64         `json:"rows"`
	Error       string        `json:"error,omitempty"`
}
