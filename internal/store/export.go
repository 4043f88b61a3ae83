package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/examprep/internal/model"
)

// ExportCatalog builds an export-ready snapshot of the whole catalog.
func (s *Store) ExportCatalog() (model.CatalogExport, error) {
	chapters, err := s.CatalogTree(0)
	if err != nil {
		return model.CatalogExport{}, fmt.Errorf("catalog tree: %w", err)
	}

	unassigned, err := s.ListUnassignedExamSets()
	if err != nil {
		return model.CatalogExport{}, fmt.Errorf("list unassigned: %w", err)
	}

	sets, err := s.ListExamSets(model.ExamSetFilter{})
	if err != nil {
		return model.CatalogExport{}, fmt.Errorf("list exam sets: %w", err)
	}

	now := time.Now()
	details := make([]model.ExamSetDetail, 0, len(sets))
	for _, e := range sets {
		d, err := s.GetExamSetDetail(e.ID)
		if err != nil {
			return model.CatalogExport{}, fmt.Errorf("get exam set %d: %w", e.ID, err)
		}
		d.ExamSet = d.ExamSet.WithEffectiveStatus(now)
		details = append(details, d)
	}

	return model.CatalogExport{
		ExportedAt: now,
		Chapters:   chapters,
		Unassigned: unassigned,
		ExamSets:   details,
	}, nil
}
