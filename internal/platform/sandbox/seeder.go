package sandbox

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/aria-health/aria/internal/domain/worklist"
	"github.com/aria-health/aria/internal/platform/db"
)

// GenerateConfig controls the volume and shape of generated data.
type GenerateConfig struct {
	Patients          int `json:"patients"`
	StudiesPerPatient int `json:"studies_per_patient"`
	CriticalPct       int `json:"critical_pct"`
}

// DefaultGenerateConfig returns the defaults used when a request leaves a
// field unset.
func DefaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		Patients:          50,
		StudiesPerPatient: 3,
		CriticalPct:       15,
	}
}

// SeedResult summarizes a generation run.
type SeedResult struct {
	Patients int `json:"patients"`
	Studies  int `json:"studies"`
}

// Seeder persists generated bundles through the worklist repositories. Each
// patient bundle is written in its own transaction so a medical record
// number collision skips the whole bundle and leaves no orphaned studies.
type Seeder struct {
	mu       sync.Mutex
	pool     *pgxpool.Pool
	patients worklist.PatientRepository
	orders   worklist.OrderRepository
	studies  worklist.StudyRepository
	series   worklist.SeriesRepository
	reports  worklist.ReportRepository
	gen      *DataGenerator
}

// NewSeeder builds a seeder over the given pool and repositories. seed 0
// selects a time-based seed.
func NewSeeder(
	pool *pgxpool.Pool,
	patients worklist.PatientRepository,
	orders worklist.OrderRepository,
	studies worklist.StudyRepository,
	series worklist.SeriesRepository,
	reports worklist.ReportRepository,
	seed int64,
) *Seeder {
	return &Seeder{
		pool:     pool,
		patients: patients,
		orders:   orders,
		studies:  studies,
		series:   series,
		reports:  reports,
		gen:      NewDataGenerator(seed),
	}
}

func (s *Seeder) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.pool == nil {
		return fn(ctx)
	}
	return db.InTransaction(ctx, s.pool, fn)
}

// Generate creates cfg.Patients synthetic patients, each with 1 to
// cfg.StudiesPerPatient studies. Duplicate generated MRNs are skipped and
// not counted. One Seeder serves all requests, so runs are serialized: the
// underlying random source is not safe for concurrent use.
func (s *Seeder) Generate(ctx context.Context, cfg GenerateConfig) (*SeedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &SeedResult{}

	for i := 0; i < cfg.Patients; i++ {
		bundle := s.gen.PatientBundle(cfg.StudiesPerPatient, cfg.CriticalPct)

		err := s.run(ctx, func(ctx context.Context) error {
			if err := s.patients.Create(ctx, bundle.Patient); err != nil {
				return err
			}
			for _, sb := range bundle.Studies {
				if err := s.orders.Create(ctx, sb.Order); err != nil {
					return err
				}
				if err := s.studies.Create(ctx, sb.Study); err != nil {
					return err
				}
				for _, se := range sb.Series {
					if err := s.series.Create(ctx, se); err != nil {
						return err
					}
				}
				if sb.Report != nil {
					if err := s.reports.Create(ctx, sb.Report); err != nil {
						return err
					}
				}
			}
			return nil
		})
		if errors.Is(err, worklist.ErrDuplicateMRN) {
			continue
		}
		if err != nil {
			return nil, err
		}

		result.Patients++
		result.Studies += len(bundle.Studies)
	}

	return result, nil
}

// SeedIfEmpty seeds the database on first run, when no studies exist yet.
// It returns the result, or nil when the database already holds data.
func (s *Seeder) SeedIfEmpty(ctx context.Context, cfg GenerateConfig) (*SeedResult, error) {
	count, err := s.studies.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, nil
	}
	return s.Generate(ctx, cfg)
}

// Handler exposes the generate endpoint.
type Handler struct {
	seeder *Seeder
}

func NewHandler(seeder *Seeder) *Handler {
	return &Handler{seeder: seeder}
}

// RegisterRoutes registers the sandbox endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/generate", h.Generate)
}

func (h *Handler) Generate(c echo.Context) error {
	var req GenerateConfig
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cfg := DefaultGenerateConfig()
	if req.Patients > 0 {
		cfg.Patients = req.Patients
	}
	if req.StudiesPerPatient > 0 {
		cfg.StudiesPerPatient = req.StudiesPerPatient
	}
	if req.CriticalPct > 0 {
		cfg.CriticalPct = req.CriticalPct
	}

	result, err := h.seeder.Generate(c.Request().Context(), cfg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
