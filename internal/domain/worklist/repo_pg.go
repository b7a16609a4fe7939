package worklist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aria-health/aria/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `patient_id, mrn, first_name, last_name, dob, sex, phone,
	allergies, alerts, infection_flags`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.PatientID, &p.MRN, &p.FirstName, &p.LastName, &p.DOB, &p.Sex, &p.Phone,
		&p.Allergies, &p.Alerts, &p.InfectionFlags)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.PatientID == uuid.Nil {
		p.PatientID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (patient_id, mrn, first_name, last_name, dob, sex, phone,
			allergies, alerts, infection_flags)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.PatientID, p.MRN, p.FirstName, p.LastName, p.DOB, p.Sex, p.Phone,
		p.Allergies, p.Alerts, p.InfectionFlags)
	if isUniqueViolation(err) {
		return ErrDuplicateMRN
	}
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE patient_id = $1`, id))
}

func (r *patientRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&n)
	return n, err
}

// =========== Order Repository ===========

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	if o.OrderID == uuid.Nil {
		o.OrderID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO orders (order_id, patient_id, ordering_clinician, ordering_location,
			indication, priority, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		o.OrderID, o.PatientID, o.OrderingClinician, o.OrderingLocation,
		o.Indication, o.Priority, o.Status, o.CreatedAt)
	return err
}

// =========== Study Repository ===========

type studyRepoPG struct{ pool *pgxpool.Pool }

func NewStudyRepoPG(pool *pgxpool.Pool) StudyRepository {
	return &studyRepoPG{pool: pool}
}

func (r *studyRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const studyCols = `study_id, patient_id, order_id, modality, description, body_part,
	scheduled_time, acquisition_time, accession, report_status, critical_flag, pacs_status`

func (r *studyRepoPG) scanStudy(row pgx.Row) (*Study, error) {
	var s Study
	err := row.Scan(&s.StudyID, &s.PatientID, &s.OrderID, &s.Modality, &s.Description, &s.BodyPart,
		&s.ScheduledTime, &s.AcquisitionTime, &s.Accession, &s.ReportStatus, &s.CriticalFlag, &s.PACSStatus)
	return &s, err
}

func (r *studyRepoPG) Create(ctx context.Context, s *Study) error {
	if s.StudyID == uuid.Nil {
		s.StudyID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO studies (study_id, patient_id, order_id, modality, description, body_part,
			scheduled_time, acquisition_time, accession, report_status, critical_flag, pacs_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		s.StudyID, s.PatientID, s.OrderID, s.Modality, s.Description, s.BodyPart,
		s.ScheduledTime, s.AcquisitionTime, s.Accession, s.ReportStatus, s.CriticalFlag, s.PACSStatus)
	return err
}

func (r *studyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Study, error) {
	return r.scanStudy(r.conn(ctx).QueryRow(ctx, `SELECT `+studyCols+` FROM studies WHERE study_id = $1`, id))
}

func (r *studyRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM studies`).Scan(&n)
	return n, err
}

const worklistCols = `s.study_id, s.modality, s.description, s.body_part, s.scheduled_time,
	s.acquisition_time, s.accession, s.report_status, s.critical_flag, s.pacs_status,
	p.first_name, p.last_name, p.mrn, p.dob, p.sex, p.allergies, p.alerts,
	o.priority, o.ordering_clinician, o.ordering_location, o.indication`

// worklistOrderBy mirrors WorklistLess: critical studies first, then by
// priority rank, then most recently scheduled first.
const worklistOrderBy = ` ORDER BY s.critical_flag DESC,
	CASE o.priority WHEN 'Emergency' THEN 0 WHEN 'Urgent' THEN 1 ELSE 2 END,
	s.scheduled_time DESC`

func (r *studyRepoPG) Worklist(ctx context.Context, filter WorklistFilter) ([]*WorklistItem, error) {
	query := `SELECT ` + worklistCols + `
		FROM studies s
		JOIN patients p ON s.patient_id = p.patient_id
		JOIN orders o ON s.order_id = o.order_id
		WHERE 1=1`
	var args []interface{}
	idx := 1

	if filter.Modality != "" {
		query += fmt.Sprintf(` AND s.modality = $%d`, idx)
		args = append(args, filter.Modality)
		idx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND s.report_status = $%d`, idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.Priority != "" {
		query += fmt.Sprintf(` AND o.priority = $%d`, idx)
		args = append(args, filter.Priority)
		idx++
	}
	if filter.Search != "" {
		query += fmt.Sprintf(` AND (p.first_name || ' ' || p.last_name ILIKE $%d OR p.mrn ILIKE $%d OR s.description ILIKE $%d)`, idx, idx, idx)
		args = append(args, "%"+filter.Search+"%")
		idx++
	}

	query += worklistOrderBy
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*WorklistItem
	for rows.Next() {
		var it WorklistItem
		if err := rows.Scan(&it.StudyID, &it.Modality, &it.Description, &it.BodyPart, &it.ScheduledTime,
			&it.AcquisitionTime, &it.Accession, &it.ReportStatus, &it.CriticalFlag, &it.PACSStatus,
			&it.FirstName, &it.LastName, &it.MRN, &it.DOB, &it.Sex, &it.Allergies, &it.Alerts,
			&it.Priority, &it.OrderingClinician, &it.OrderingLocation, &it.Indication); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *studyRepoPG) GetDetail(ctx context.Context, id uuid.UUID) (*StudyContext, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT s.study_id, s.patient_id, s.order_id, s.modality, s.description, s.body_part,
			s.scheduled_time, s.acquisition_time, s.accession, s.report_status, s.critical_flag, s.pacs_status,
			p.first_name, p.last_name, p.mrn, p.dob, p.sex, p.allergies, p.alerts,
			o.priority, o.ordering_clinician, o.indication
		FROM studies s
		JOIN patients p ON s.patient_id = p.patient_id
		JOIN orders o ON s.order_id = o.order_id
		WHERE s.study_id = $1`, id)

	var sc StudyContext
	err := row.Scan(&sc.StudyID, &sc.PatientID, &sc.OrderID, &sc.Modality, &sc.Description, &sc.BodyPart,
		&sc.ScheduledTime, &sc.AcquisitionTime, &sc.Accession, &sc.ReportStatus, &sc.CriticalFlag, &sc.PACSStatus,
		&sc.FirstName, &sc.LastName, &sc.MRN, &sc.DOB, &sc.Sex, &sc.Allergies, &sc.Alerts,
		&sc.Priority, &sc.OrderingClinician, &sc.Indication)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (r *studyRepoPG) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Modalities: map[string]int{}}
	q := r.conn(ctx)

	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM studies`).Scan(&stats.Total); err != nil {
		return nil, err
	}
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM studies WHERE critical_flag`).Scan(&stats.Critical); err != nil {
		return nil, err
	}
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM studies WHERE report_status = 'Unreported'`).Scan(&stats.Unreported); err != nil {
		return nil, err
	}
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&stats.Patients); err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT modality, COUNT(*) FROM studies GROUP BY modality`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var modality string
		var n int
		if err := rows.Scan(&modality, &n); err != nil {
			return nil, err
		}
		stats.Modalities[modality] = n
	}
	return stats, rows.Err()
}

func (r *studyRepoPG) ExportRows(ctx context.Context) ([]*ExportRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT p.mrn, p.first_name, p.last_name, p.dob, p.sex,
			s.modality, s.description, s.body_part, s.scheduled_time,
			s.report_status, s.critical_flag, o.priority, o.ordering_clinician
		FROM studies s
		JOIN patients p ON s.patient_id = p.patient_id
		JOIN orders o ON s.order_id = o.order_id
		ORDER BY s.scheduled_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*ExportRow
	for rows.Next() {
		var er ExportRow
		if err := rows.Scan(&er.MRN, &er.FirstName, &er.LastName, &er.DOB, &er.Sex,
			&er.Modality, &er.Description, &er.BodyPart, &er.ScheduledTime,
			&er.ReportStatus, &er.CriticalFlag, &er.Priority, &er.OrderingClinician); err != nil {
			return nil, err
		}
		items = append(items, &er)
	}
	return items, rows.Err()
}

// =========== Series Repository ===========

type seriesRepoPG struct{ pool *pgxpool.Pool }

func NewSeriesRepoPG(pool *pgxpool.Pool) SeriesRepository {
	return &seriesRepoPG{pool: pool}
}

func (r *seriesRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *seriesRepoPG) Create(ctx context.Context, s *Series) error {
	if s.SeriesID == uuid.Nil {
		s.SeriesID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO series (series_id, study_id, series_number, series_description)
		VALUES ($1,$2,$3,$4)`,
		s.SeriesID, s.StudyID, s.SeriesNumber, s.SeriesDescription)
	return err
}

func (r *seriesRepoPG) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Series, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT series_id, study_id, series_number, series_description
		FROM series WHERE study_id = $1 ORDER BY series_number`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Series
	for rows.Next() {
		var s Series
		if err := rows.Scan(&s.SeriesID, &s.StudyID, &s.SeriesNumber, &s.SeriesDescription); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}

// =========== Report Repository ===========

type reportRepoPG struct{ pool *pgxpool.Pool }

func NewReportRepoPG(pool *pgxpool.Pool) ReportRepository {
	return &reportRepoPG{pool: pool}
}

func (r *reportRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reportCols = `report_id, study_id, author, created_at, updated_at,
	indication, technique, findings, impression, sign_status, addenda`

func (r *reportRepoPG) scanReport(row pgx.Row) (*Report, error) {
	var rp Report
	err := row.Scan(&rp.ReportID, &rp.StudyID, &rp.Author, &rp.CreatedAt, &rp.UpdatedAt,
		&rp.Indication, &rp.Technique, &rp.Findings, &rp.Impression, &rp.SignStatus, &rp.Addenda)
	return &rp, err
}

func (r *reportRepoPG) Create(ctx context.Context, rp *Report) error {
	if rp.ReportID == uuid.Nil {
		rp.ReportID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO reports (report_id, study_id, author, created_at, updated_at,
			indication, technique, findings, impression, sign_status, addenda)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rp.ReportID, rp.StudyID, rp.Author, rp.CreatedAt, rp.UpdatedAt,
		rp.Indication, rp.Technique, rp.Findings, rp.Impression, rp.SignStatus, rp.Addenda)
	return err
}

func (r *reportRepoPG) Update(ctx context.Context, rp *Report) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reports SET indication=$2, technique=$3, findings=$4, impression=$5,
			sign_status=$6, updated_at=$7
		WHERE report_id = $1`,
		rp.ReportID, rp.Indication, rp.Technique, rp.Findings, rp.Impression,
		rp.SignStatus, rp.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *reportRepoPG) LatestByStudy(ctx context.Context, studyID uuid.UUID) (*Report, error) {
	return r.scanReport(r.conn(ctx).QueryRow(ctx, `
		SELECT `+reportCols+` FROM reports
		WHERE study_id = $1 ORDER BY created_at DESC LIMIT 1`, studyID))
}

func (r *reportRepoPG) ListAll(ctx context.Context) ([]*ReportListItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT r.report_id, r.study_id, r.author, r.created_at, r.updated_at,
			r.indication, r.technique, r.findings, r.impression, r.sign_status, r.addenda,
			p.first_name, p.last_name, p.mrn, s.modality, s.body_part, s.accession
		FROM reports r
		JOIN studies s ON r.study_id = s.study_id
		JOIN patients p ON s.patient_id = p.patient_id
		ORDER BY r.updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*ReportListItem
	for rows.Next() {
		var it ReportListItem
		if err := rows.Scan(&it.ReportID, &it.StudyID, &it.Author, &it.CreatedAt, &it.UpdatedAt,
			&it.Indication, &it.Technique, &it.Findings, &it.Impression, &it.SignStatus, &it.Addenda,
			&it.FirstName, &it.LastName, &it.MRN, &it.Modality, &it.BodyPart, &it.Accession); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}
