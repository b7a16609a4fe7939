package worklist

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ---------------------------------------------------------------------------
// In-memory mocks
// ---------------------------------------------------------------------------

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
	mrns     map[string]bool
	failMRNs map[string]bool
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{
		patients: map[uuid.UUID]*Patient{},
		mrns:     map[string]bool{},
		failMRNs: map[string]bool{},
	}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	if m.failMRNs[p.MRN] {
		return pgx.ErrTxClosed
	}
	if m.mrns[p.MRN] {
		return ErrDuplicateMRN
	}
	if p.PatientID == uuid.Nil {
		p.PatientID = uuid.New()
	}
	m.patients[p.PatientID] = p
	m.mrns[p.MRN] = true
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockPatientRepo) Count(_ context.Context) (int, error) {
	return len(m.patients), nil
}

type mockOrderRepo struct {
	orders map[uuid.UUID]*Order
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: map[uuid.UUID]*Order{}}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if o.OrderID == uuid.Nil {
		o.OrderID = uuid.New()
	}
	m.orders[o.OrderID] = o
	return nil
}

type mockStudyRepo struct {
	studies    map[uuid.UUID]*Study
	details    map[uuid.UUID]*StudyContext
	worklist   []*WorklistItem
	exportRows []*ExportRow
	lastFilter WorklistFilter
}

func newMockStudyRepo() *mockStudyRepo {
	return &mockStudyRepo{
		studies: map[uuid.UUID]*Study{},
		details: map[uuid.UUID]*StudyContext{},
	}
}

func (m *mockStudyRepo) Create(_ context.Context, s *Study) error {
	if s.StudyID == uuid.Nil {
		s.StudyID = uuid.New()
	}
	m.studies[s.StudyID] = s
	return nil
}

func (m *mockStudyRepo) GetByID(_ context.Context, id uuid.UUID) (*Study, error) {
	s, ok := m.studies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

func (m *mockStudyRepo) Count(_ context.Context) (int, error) {
	return len(m.studies), nil
}

func (m *mockStudyRepo) Worklist(_ context.Context, filter WorklistFilter) ([]*WorklistItem, error) {
	m.lastFilter = filter
	start := filter.Offset
	if start > len(m.worklist) {
		start = len(m.worklist)
	}
	end := start + filter.Limit
	if end > len(m.worklist) {
		end = len(m.worklist)
	}
	return m.worklist[start:end], nil
}

func (m *mockStudyRepo) GetDetail(_ context.Context, id uuid.UUID) (*StudyContext, error) {
	d, ok := m.details[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return d, nil
}

func (m *mockStudyRepo) Stats(_ context.Context) (*Stats, error) {
	stats := &Stats{Modalities: map[string]int{}}
	for _, s := range m.studies {
		stats.Total++
		if s.CriticalFlag {
			stats.Critical++
		}
		if s.ReportStatus == ReportStatusUnreported {
			stats.Unreported++
		}
		stats.Modalities[s.Modality]++
	}
	return stats, nil
}

func (m *mockStudyRepo) ExportRows(_ context.Context) ([]*ExportRow, error) {
	return m.exportRows, nil
}

type mockSeriesRepo struct {
	byStudy map[uuid.UUID][]*Series
}

func newMockSeriesRepo() *mockSeriesRepo {
	return &mockSeriesRepo{byStudy: map[uuid.UUID][]*Series{}}
}

func (m *mockSeriesRepo) Create(_ context.Context, s *Series) error {
	if s.SeriesID == uuid.Nil {
		s.SeriesID = uuid.New()
	}
	m.byStudy[s.StudyID] = append(m.byStudy[s.StudyID], s)
	return nil
}

func (m *mockSeriesRepo) ListByStudy(_ context.Context, studyID uuid.UUID) ([]*Series, error) {
	return m.byStudy[studyID], nil
}

type mockReportRepo struct {
	reports map[uuid.UUID]*Report
	list    []*ReportListItem
}

func newMockReportRepo() *mockReportRepo {
	return &mockReportRepo{reports: map[uuid.UUID]*Report{}}
}

func (m *mockReportRepo) Create(_ context.Context, r *Report) error {
	if r.ReportID == uuid.Nil {
		r.ReportID = uuid.New()
	}
	cp := *r
	m.reports[r.ReportID] = &cp
	return nil
}

func (m *mockReportRepo) Update(_ context.Context, r *Report) (int64, error) {
	existing, ok := m.reports[r.ReportID]
	if !ok {
		return 0, nil
	}
	existing.Indication = r.Indication
	existing.Technique = r.Technique
	existing.Findings = r.Findings
	existing.Impression = r.Impression
	existing.SignStatus = r.SignStatus
	existing.UpdatedAt = r.UpdatedAt
	return 1, nil
}

func (m *mockReportRepo) LatestByStudy(_ context.Context, studyID uuid.UUID) (*Report, error) {
	var latest *Report
	for _, r := range m.reports {
		if r.StudyID != studyID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	return latest, nil
}

func (m *mockReportRepo) ListAll(_ context.Context) ([]*ReportListItem, error) {
	return m.list, nil
}

func newTestService() (*Service, *mockPatientRepo, *mockStudyRepo, *mockSeriesRepo, *mockReportRepo) {
	patients := newMockPatientRepo()
	orders := newMockOrderRepo()
	studies := newMockStudyRepo()
	series := newMockSeriesRepo()
	reports := newMockReportRepo()
	return NewService(patients, orders, studies, series, reports), patients, studies, series, reports
}

// ---------------------------------------------------------------------------
// Worklist
// ---------------------------------------------------------------------------

func TestWorklist_DefaultLimit(t *testing.T) {
	svc, _, studies, _, _ := newTestService()

	if _, _, err := svc.Worklist(context.Background(), WorklistFilter{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if studies.lastFilter.Limit != DefaultWorklistLimit {
		t.Errorf("expected default limit %d, got %d", DefaultWorklistLimit, studies.lastFilter.Limit)
	}
	if studies.lastFilter.Offset != 0 {
		t.Errorf("expected offset 0, got %d", studies.lastFilter.Offset)
	}
}

func TestWorklist_TotalIsPageSize(t *testing.T) {
	svc, _, studies, _, _ := newTestService()
	for i := 0; i < 5; i++ {
		studies.worklist = append(studies.worklist, &WorklistItem{StudyID: uuid.New()})
	}

	items, total, err := svc.Worklist(context.Background(), WorklistFilter{Limit: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected page of 3, got %d", len(items))
	}
	if total != 3 {
		t.Errorf("total reflects the page size, expected 3, got %d", total)
	}
}

// ---------------------------------------------------------------------------
// Patients and studies
// ---------------------------------------------------------------------------

func TestGetPatient_NotFound(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	if _, err := svc.GetPatient(context.Background(), uuid.New()); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetStudy_AssemblesDetail(t *testing.T) {
	svc, _, studies, series, reports := newTestService()

	studyID := uuid.New()
	studies.details[studyID] = &StudyContext{
		Study:     Study{StudyID: studyID, Modality: "CT"},
		FirstName: "Sarah",
		LastName:  "Chen",
	}
	series.byStudy[studyID] = []*Series{
		{SeriesID: uuid.New(), StudyID: studyID, SeriesNumber: 1},
		{SeriesID: uuid.New(), StudyID: studyID, SeriesNumber: 2},
	}
	older := &Report{ReportID: uuid.New(), StudyID: studyID, CreatedAt: time.Now().Add(-time.Hour), Findings: "older"}
	newer := &Report{ReportID: uuid.New(), StudyID: studyID, CreatedAt: time.Now(), Findings: "newer"}
	reports.reports[older.ReportID] = older
	reports.reports[newer.ReportID] = newer

	detail, err := svc.GetStudy(context.Background(), studyID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Study.Modality != "CT" {
		t.Errorf("expected CT, got %s", detail.Study.Modality)
	}
	if len(detail.Series) != 2 {
		t.Errorf("expected 2 series, got %d", len(detail.Series))
	}
	if detail.Report == nil || detail.Report.Findings != "newer" {
		t.Errorf("expected latest report, got %+v", detail.Report)
	}
}

func TestGetStudy_NoReport(t *testing.T) {
	svc, _, studies, _, _ := newTestService()

	studyID := uuid.New()
	studies.details[studyID] = &StudyContext{Study: Study{StudyID: studyID}}

	detail, err := svc.GetStudy(context.Background(), studyID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Report != nil {
		t.Errorf("expected nil report, got %+v", detail.Report)
	}
}

func TestGetStudy_NotFound(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	if _, err := svc.GetStudy(context.Background(), uuid.New()); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

func TestCreateReport_Defaults(t *testing.T) {
	svc, _, studies, _, reports := newTestService()

	studyID := uuid.New()
	studies.studies[studyID] = &Study{StudyID: studyID}

	r := &Report{StudyID: studyID}
	if err := svc.CreateReport(context.Background(), "radiolog", r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := reports.reports[r.ReportID]
	if stored == nil {
		t.Fatal("expected report to be stored")
	}
	if stored.SignStatus != SignStatusDraft {
		t.Errorf("expected Draft, got %s", stored.SignStatus)
	}
	if stored.Author != "radiolog" {
		t.Errorf("expected author radiolog, got %s", stored.Author)
	}
	if stored.Findings != "" {
		t.Errorf("expected empty findings, got %q", stored.Findings)
	}
	if stored.Addenda != "[]" {
		t.Errorf("expected empty addenda list, got %q", stored.Addenda)
	}
	if !stored.CreatedAt.Equal(stored.UpdatedAt) {
		t.Error("expected created_at == updated_at on create")
	}
}

func TestCreateReport_UnknownStudy(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	r := &Report{StudyID: uuid.New()}
	if err := svc.CreateReport(context.Background(), "david", r); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateReport_MissingStudyID(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	if err := svc.CreateReport(context.Background(), "david", &Report{}); err == nil {
		t.Error("expected error for missing study_id")
	}
}

func TestCreateReport_SignStatusStoredVerbatim(t *testing.T) {
	svc, _, studies, _, reports := newTestService()

	studyID := uuid.New()
	studies.studies[studyID] = &Study{StudyID: studyID}

	// Sign status is not an enum on the wire; whatever the client sends is
	// stored as-is.
	r := &Report{StudyID: studyID, SignStatus: "Signed"}
	if err := svc.CreateReport(context.Background(), "david", r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored := reports.reports[r.ReportID]; stored.SignStatus != "Signed" {
		t.Errorf("expected sign status stored verbatim, got %q", stored.SignStatus)
	}
}

func TestUpdateReport_UnknownIDIsZeroRowNoOp(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	// Updating a report that does not exist succeeds with zero rows
	// affected. Kept deliberately; callers inspect the count.
	affected, err := svc.UpdateReport(context.Background(), &Report{ReportID: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if affected != 0 {
		t.Errorf("expected 0 rows affected, got %d", affected)
	}
}

func TestUpdateReport_OverwritesAndBumpsUpdatedAt(t *testing.T) {
	svc, _, studies, _, reports := newTestService()

	studyID := uuid.New()
	studies.studies[studyID] = &Study{StudyID: studyID}
	r := &Report{StudyID: studyID, Findings: "initial"}
	if err := svc.CreateReport(context.Background(), "david", r); err != nil {
		t.Fatalf("create: %v", err)
	}
	created := reports.reports[r.ReportID].UpdatedAt

	time.Sleep(5 * time.Millisecond)
	affected, err := svc.UpdateReport(context.Background(), &Report{
		ReportID:   r.ReportID,
		Findings:   "revised",
		SignStatus: SignStatusFinal,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}

	stored := reports.reports[r.ReportID]
	if stored.Findings != "revised" {
		t.Errorf("expected revised findings, got %q", stored.Findings)
	}
	if stored.SignStatus != SignStatusFinal {
		t.Errorf("expected Final, got %s", stored.SignStatus)
	}
	if !stored.UpdatedAt.After(created) {
		t.Error("expected updated_at to move forward")
	}
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

func TestStats_Aggregates(t *testing.T) {
	svc, _, studies, _, _ := newTestService()

	add := func(modality, status string, critical bool) {
		id := uuid.New()
		studies.studies[id] = &Study{StudyID: id, Modality: modality, ReportStatus: status, CriticalFlag: critical}
	}
	add("CT", ReportStatusUnreported, true)
	add("CT", ReportStatusFinal, false)
	add("MRI", ReportStatusUnreported, false)

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("expected total 3, got %d", stats.Total)
	}
	if stats.Critical != 1 {
		t.Errorf("expected 1 critical, got %d", stats.Critical)
	}
	if stats.Unreported != 2 {
		t.Errorf("expected 2 unreported, got %d", stats.Unreported)
	}
	if stats.Modalities["CT"] != 2 || stats.Modalities["MRI"] != 1 {
		t.Errorf("unexpected modality breakdown %v", stats.Modalities)
	}
}
