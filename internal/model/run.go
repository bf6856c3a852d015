package model

import (
	"time"

	"gorm.io/datatypes"
)

// RunStats 单次流水线运行的计数
type RunStats struct {
	CandidatesReceived int `json:"candidates_received"`
	DroppedInvalid     int `json:"dropped_invalid"`
	DroppedPast        int `json:"dropped_past"`
	MainsDuplicate     int `json:"mains_duplicate"`
	SubsDuplicate      int `json:"subs_duplicate"`

	Archived           int64 `json:"archived"`
	OrphansDeleted     int64 `json:"orphans_deleted"`
	IntraMainDeleted   int64 `json:"intra_main_deleted"`
	IntraSubDeleted    int64 `json:"intra_sub_deleted"`
	IntraCascaded      int64 `json:"intra_cascaded"`
	CrossDeleted       int64 `json:"cross_deleted"`
	CrossCascaded      int64 `json:"cross_cascaded"`
	CorrectionCascaded int64 `json:"correction_cascaded"`
	MainsInserted      int   `json:"mains_inserted"`
	SubsInserted       int   `json:"subs_inserted"`
	Corrections        int   `json:"corrections"`
}

// PipelineRun 运行记录表
type PipelineRun struct {
	ID         uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	RunUUID    string         `gorm:"column:run_uuid;type:varchar(64);uniqueIndex;not null" json:"run_uuid"`
	Trigger    string         `gorm:"column:trigger_source;type:varchar(64);not null" json:"trigger"`
	StartedAt  time.Time      `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt time.Time      `gorm:"column:finished_at" json:"finished_at"`
	Stats      datatypes.JSON `gorm:"column:stats;type:jsonb" json:"stats"`
	Aborted    bool           `gorm:"column:aborted;default:false" json:"aborted"`
	Reason     string         `gorm:"column:reason;type:text" json:"reason,omitempty"`
	Errors     string         `gorm:"column:errors;type:text" json:"errors,omitempty"`
}

func (PipelineRun) TableName() string { return "pipeline_runs" }
