package worklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned for lookups of unknown patient or study ids.
var ErrNotFound = errors.New("not found")

// DefaultWorklistLimit caps a worklist page when the caller does not ask
// for one.
const DefaultWorklistLimit = 100

type Service struct {
	patients PatientRepository
	orders   OrderRepository
	studies  StudyRepository
	series   SeriesRepository
	reports  ReportRepository
}

func NewService(p PatientRepository, o OrderRepository, st StudyRepository, se SeriesRepository, re ReportRepository) *Service {
	return &Service{patients: p, orders: o, studies: st, series: se, reports: re}
}

// Worklist returns the filtered, ordered worklist page. The accompanying
// total is the size of the returned page.
func (s *Service) Worklist(ctx context.Context, filter WorklistFilter) ([]*WorklistItem, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultWorklistLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	items, err := s.studies.Worklist(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, len(items), nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// GetStudy returns the study with patient/order context, its series ordered
// by series number, and the current report if one exists.
func (s *Service) GetStudy(ctx context.Context, id uuid.UUID) (*StudyDetail, error) {
	study, err := s.studies.GetDetail(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	series, err := s.series.ListByStudy(ctx, id)
	if err != nil {
		return nil, err
	}

	report, err := s.reports.LatestByStudy(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		report = nil
	} else if err != nil {
		return nil, err
	}

	return &StudyDetail{Study: study, Series: series, Report: report}, nil
}

// CreateReport stores a new report for the study, defaulting sign_status to
// Draft and stamping both timestamps with the current time.
func (s *Service) CreateReport(ctx context.Context, author string, r *Report) error {
	if r.StudyID == uuid.Nil {
		return fmt.Errorf("study_id is required")
	}
	if _, err := s.studies.GetByID(ctx, r.StudyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	// Sign status is stored as sent; only the empty default is applied.
	if r.SignStatus == "" {
		r.SignStatus = SignStatusDraft
	}

	now := time.Now()
	r.Author = author
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Addenda == "" {
		r.Addenda = "[]"
	}
	return s.reports.Create(ctx, r)
}

// UpdateReport overwrites the narrative fields of an existing report and
// bumps updated_at. An unknown report id is not an error; the returned count
// is zero in that case.
func (s *Service) UpdateReport(ctx context.Context, r *Report) (int64, error) {
	if r.SignStatus == "" {
		r.SignStatus = SignStatusDraft
	}
	r.UpdatedAt = time.Now()
	return s.reports.Update(ctx, r)
}

// ListReports returns every report with its study and patient context,
// most recently updated first.
func (s *Service) ListReports(ctx context.Context) ([]*ReportListItem, error) {
	return s.reports.ListAll(ctx)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.studies.Stats(ctx)
}

// Export returns the fixed study/patient/order projection ordered by
// scheduled time descending.
func (s *Service) Export(ctx context.Context) ([]*ExportRow, error) {
	return s.studies.ExportRows(ctx)
}
