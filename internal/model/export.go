package model

import "time"

// CatalogExport is the top-level JSON structure written by the export command.
type CatalogExport struct {
	ExportedAt time.Time       `json:"exportedAt"`
	Chapters   []Chapter       `json:"chapters"`
	Unassigned []ExamSet       `json:"unassigned"`
	ExamSets   []ExamSetDetail `json:"examSets"`
}
