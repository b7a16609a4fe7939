package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/aria-health/aria/internal/domain/worklist"
)

type mockPatientRepo struct {
	created []*worklist.Patient
	mrns    map[string]bool
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{mrns: make(map[string]bool)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *worklist.Patient) error {
	if m.mrns[p.MRN] {
		return worklist.ErrDuplicateMRN
	}
	m.mrns[p.MRN] = true
	m.created = append(m.created, p)
	return nil
}

func (m *mockPatientRepo) GetByID(context.Context, uuid.UUID) (*worklist.Patient, error) {
	return nil, nil
}

func (m *mockPatientRepo) Count(context.Context) (int, error) {
	return len(m.created), nil
}

type mockOrderRepo struct {
	created []*worklist.Order
}

func (m *mockOrderRepo) Create(_ context.Context, o *worklist.Order) error {
	m.created = append(m.created, o)
	return nil
}

type mockStudyRepo struct {
	created []*worklist.Study
}

func (m *mockStudyRepo) Create(_ context.Context, s *worklist.Study) error {
	m.created = append(m.created, s)
	return nil
}

func (m *mockStudyRepo) GetByID(context.Context, uuid.UUID) (*worklist.Study, error) {
	return nil, nil
}

func (m *mockStudyRepo) Count(context.Context) (int, error) {
	return len(m.created), nil
}

func (m *mockStudyRepo) Worklist(context.Context, worklist.WorklistFilter) ([]*worklist.WorklistItem, error) {
	return nil, nil
}

func (m *mockStudyRepo) GetDetail(context.Context, uuid.UUID) (*worklist.StudyContext, error) {
	return nil, nil
}

func (m *mockStudyRepo) Stats(context.Context) (*worklist.Stats, error) {
	return nil, nil
}

func (m *mockStudyRepo) ExportRows(context.Context) ([]*worklist.ExportRow, error) {
	return nil, nil
}

type mockSeriesRepo struct {
	created []*worklist.Series
}

func (m *mockSeriesRepo) Create(_ context.Context, s *worklist.Series) error {
	m.created = append(m.created, s)
	return nil
}

func (m *mockSeriesRepo) ListByStudy(context.Context, uuid.UUID) ([]*worklist.Series, error) {
	return nil, nil
}

type mockReportRepo struct {
	created []*worklist.Report
}

func (m *mockReportRepo) Create(_ context.Context, r *worklist.Report) error {
	m.created = append(m.created, r)
	return nil
}

func (m *mockReportRepo) Update(context.Context, *worklist.Report) (int64, error) {
	return 0, nil
}

func (m *mockReportRepo) LatestByStudy(context.Context, uuid.UUID) (*worklist.Report, error) {
	return nil, nil
}

func (m *mockReportRepo) ListAll(context.Context) ([]*worklist.ReportListItem, error) {
	return nil, nil
}

type seederFixture struct {
	seeder   *Seeder
	patients *mockPatientRepo
	orders   *mockOrderRepo
	studies  *mockStudyRepo
	series   *mockSeriesRepo
	reports  *mockReportRepo
}

func newSeederFixture(seed int64) *seederFixture {
	f := &seederFixture{
		patients: newMockPatientRepo(),
		orders:   &mockOrderRepo{},
		studies:  &mockStudyRepo{},
		series:   &mockSeriesRepo{},
		reports:  &mockReportRepo{},
	}
	f.seeder = NewSeeder(nil, f.patients, f.orders, f.studies, f.series, f.reports, seed)
	return f
}

func TestDataGenerator_Patient(t *testing.T) {
	g := NewDataGenerator(42)
	for i := 0; i < 50; i++ {
		p := g.Patient()

		if !strings.HasPrefix(p.MRN, "KCH") || len(p.MRN) != 10 {
			t.Errorf("unexpected MRN %q", p.MRN)
		}
		if p.Sex != "M" && p.Sex != "F" {
			t.Errorf("unexpected sex %q", p.Sex)
		}
		if !strings.HasPrefix(p.Phone, "+44 7") {
			t.Errorf("unexpected phone %q", p.Phone)
		}
		if p.InfectionFlags != "[]" {
			t.Errorf("expected empty infection flags, got %q", p.InfectionFlags)
		}

		var allergies, alerts []string
		if err := json.Unmarshal([]byte(p.Allergies), &allergies); err != nil {
			t.Fatalf("allergies not a JSON array: %q", p.Allergies)
		}
		if len(allergies) < 1 || len(allergies) > 3 {
			t.Errorf("expected 1-3 allergies, got %d", len(allergies))
		}
		if err := json.Unmarshal([]byte(p.Alerts), &alerts); err != nil {
			t.Fatalf("alerts not a JSON array: %q", p.Alerts)
		}
		if len(alerts) > 2 {
			t.Errorf("expected at most 2 alerts, got %d", len(alerts))
		}
	}
}

func TestDataGenerator_StudyBundleShape(t *testing.T) {
	g := NewDataGenerator(7)
	patientID := uuid.New()

	for i := 0; i < 200; i++ {
		b := g.Study(patientID, 50)

		if b.Study.PatientID != patientID {
			t.Fatal("study not linked to patient")
		}
		if b.Order.OrderID != b.Study.OrderID {
			t.Fatal("study not linked to its order")
		}
		switch b.Order.Priority {
		case worklist.PriorityEmergency, worklist.PriorityUrgent, worklist.PriorityRoutine:
		default:
			t.Errorf("unexpected priority %q", b.Order.Priority)
		}
		if !strings.HasPrefix(b.Order.Indication, "Query ") {
			t.Errorf("unexpected indication %q", b.Order.Indication)
		}
		if !strings.HasPrefix(b.Study.Accession, "ACC") || len(b.Study.Accession) != 11 {
			t.Errorf("unexpected accession %q", b.Study.Accession)
		}
		if b.Study.AcquisitionTime == nil {
			t.Error("expected an acquisition time")
		}

		if len(b.Series) < 1 || len(b.Series) > 4 {
			t.Fatalf("expected 1-4 series, got %d", len(b.Series))
		}
		for sn, se := range b.Series {
			if se.StudyID != b.Study.StudyID {
				t.Fatal("series not linked to study")
			}
			if se.SeriesNumber != sn+1 {
				t.Errorf("expected series number %d, got %d", sn+1, se.SeriesNumber)
			}
			if !strings.HasPrefix(se.SeriesDescription, "Series ") {
				t.Errorf("unexpected series description %q", se.SeriesDescription)
			}
		}

		reported := b.Study.ReportStatus == worklist.ReportStatusPreliminary ||
			b.Study.ReportStatus == worklist.ReportStatusFinal
		if reported && b.Report == nil {
			t.Fatalf("status %s but no report", b.Study.ReportStatus)
		}
		if !reported && b.Report != nil {
			t.Fatalf("status %s but a report was generated", b.Study.ReportStatus)
		}
		if b.Report != nil {
			if b.Report.StudyID != b.Study.StudyID {
				t.Fatal("report not linked to study")
			}
			if b.Report.SignStatus != b.Study.ReportStatus {
				t.Errorf("sign status %s does not match study status %s",
					b.Report.SignStatus, b.Study.ReportStatus)
			}
			if b.Study.CriticalFlag && !strings.Contains(b.Report.Findings, "CRITICAL FINDING") {
				t.Error("critical study report is missing the critical finding banner")
			}
			if !b.Study.CriticalFlag && strings.Contains(b.Report.Findings, "CRITICAL FINDING") {
				t.Error("non-critical study report carries a critical finding banner")
			}
		}
	}
}

func TestDataGenerator_CriticalPctBounds(t *testing.T) {
	g := NewDataGenerator(3)
	patientID := uuid.New()

	for i := 0; i < 100; i++ {
		if b := g.Study(patientID, 0); b.Study.CriticalFlag {
			t.Fatal("0% critical produced a critical study")
		}
		if b := g.Study(patientID, 100); !b.Study.CriticalFlag {
			t.Fatal("100% critical produced a non-critical study")
		}
	}
}

func TestDataGenerator_Deterministic(t *testing.T) {
	a := NewDataGenerator(99).PatientBundle(3, 15)
	b := NewDataGenerator(99).PatientBundle(3, 15)

	if a.Patient.MRN != b.Patient.MRN {
		t.Errorf("same seed produced different MRNs: %s vs %s", a.Patient.MRN, b.Patient.MRN)
	}
	if a.Patient.FirstName != b.Patient.FirstName || a.Patient.LastName != b.Patient.LastName {
		t.Error("same seed produced different names")
	}
	if len(a.Studies) != len(b.Studies) {
		t.Errorf("same seed produced different study counts: %d vs %d", len(a.Studies), len(b.Studies))
	}
}

func TestSeeder_Generate(t *testing.T) {
	f := newSeederFixture(11)

	result, err := f.seeder.Generate(context.Background(), GenerateConfig{
		Patients:          10,
		StudiesPerPatient: 3,
		CriticalPct:       15,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Patients != 10 {
		t.Errorf("expected 10 patients, got %d", result.Patients)
	}
	if result.Studies < 10 || result.Studies > 30 {
		t.Errorf("expected between 10 and 30 studies, got %d", result.Studies)
	}
	if len(f.studies.created) != result.Studies {
		t.Errorf("result reports %d studies, repository holds %d", result.Studies, len(f.studies.created))
	}
	if len(f.orders.created) != len(f.studies.created) {
		t.Errorf("expected one order per study, got %d orders for %d studies",
			len(f.orders.created), len(f.studies.created))
	}
	if len(f.series.created) < len(f.studies.created) {
		t.Error("expected at least one series per study")
	}

	reported := 0
	for _, s := range f.studies.created {
		if s.ReportStatus != worklist.ReportStatusUnreported {
			reported++
		}
	}
	if len(f.reports.created) != reported {
		t.Errorf("expected %d reports for reported studies, got %d", reported, len(f.reports.created))
	}
}

func TestSeeder_ConcurrentGenerate(t *testing.T) {
	f := newSeederFixture(13)

	// One seeder serves every request, so parallel generate calls must be
	// safe. Run under the race detector.
	const callers = 4
	results := make([]*SeedResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.seeder.Generate(context.Background(), GenerateConfig{
				Patients:          5,
				StudiesPerPatient: 3,
				CriticalPct:       15,
			})
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error: %v", i, errs[i])
		}
		total += results[i].Patients
	}
	if len(f.patients.created) != total {
		t.Errorf("results report %d patients, repository holds %d", total, len(f.patients.created))
	}
}

func TestSeeder_SkipsDuplicateMRN(t *testing.T) {
	f := newSeederFixture(5)

	// Pre-claim the first MRN the generator will produce.
	firstMRN := NewDataGenerator(5).Patient().MRN
	f.patients.mrns[firstMRN] = true

	result, err := f.seeder.Generate(context.Background(), GenerateConfig{
		Patients:          5,
		StudiesPerPatient: 2,
		CriticalPct:       0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Patients != 4 {
		t.Errorf("expected 4 patients after one duplicate, got %d", result.Patients)
	}
	if len(f.patients.created) != 4 {
		t.Errorf("expected 4 stored patients, got %d", len(f.patients.created))
	}
}

func TestSeeder_SeedIfEmpty(t *testing.T) {
	f := newSeederFixture(21)

	result, err := f.seeder.SeedIfEmpty(context.Background(), GenerateConfig{
		Patients:          3,
		StudiesPerPatient: 2,
		CriticalPct:       15,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Patients != 3 {
		t.Fatalf("expected a first-run seed of 3 patients, got %+v", result)
	}

	again, err := f.seeder.SeedIfEmpty(context.Background(), DefaultGenerateConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != nil {
		t.Errorf("expected no reseed of a populated store, got %+v", again)
	}
}

func TestHandler_Generate(t *testing.T) {
	f := newSeederFixture(17)
	h := NewHandler(f.seeder)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/generate",
		strings.NewReader(`{"patients":4,"studies_per_patient":2,"critical_pct":10}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Generate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp SeedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Patients != 4 {
		t.Errorf("expected 4 patients, got %d", resp.Patients)
	}
	if resp.Studies != len(f.studies.created) {
		t.Errorf("response reports %d studies, repository holds %d", resp.Studies, len(f.studies.created))
	}
}

func TestHandler_GenerateDefaults(t *testing.T) {
	f := newSeederFixture(29)
	h := NewHandler(f.seeder)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Generate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp SeedResult
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Patients != 50 {
		t.Errorf("expected the default of 50 patients, got %d", resp.Patients)
	}
}
