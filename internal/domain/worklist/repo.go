package worklist

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrDuplicateMRN is returned when a patient insert collides with an
// existing medical record number.
var ErrDuplicateMRN = errors.New("duplicate mrn")

// PatientRepository persists patients.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Count(ctx context.Context) (int, error)
}

// OrderRepository persists imaging orders.
type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
}

// StudyRepository persists studies and serves the worklist queries built
// over the study/patient/order join.
type StudyRepository interface {
	Create(ctx context.Context, s *Study) error
	GetByID(ctx context.Context, id uuid.UUID) (*Study, error)
	Count(ctx context.Context) (int, error)
	Worklist(ctx context.Context, filter WorklistFilter) ([]*WorklistItem, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*StudyContext, error)
	Stats(ctx context.Context) (*Stats, error)
	ExportRows(ctx context.Context) ([]*ExportRow, error)
}

// SeriesRepository persists series.
type SeriesRepository interface {
	Create(ctx context.Context, s *Series) error
	ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Series, error)
}

// ReportRepository persists reports. Update returns the number of rows
// affected so callers can distinguish a no-op on an unknown report id.
type ReportRepository interface {
	Create(ctx context.Context, r *Report) error
	Update(ctx context.Context, r *Report) (int64, error)
	LatestByStudy(ctx context.Context, studyID uuid.UUID) (*Report, error)
	ListAll(ctx context.Context) ([]*ReportListItem, error)
}
