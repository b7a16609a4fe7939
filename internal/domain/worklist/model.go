// Package worklist implements the radiology worklist: patients, imaging
// orders, studies, series, and reports, plus the query, statistics, and
// export/import surface built on top of them.
package worklist

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a registered patient. List-valued fields (allergies, alerts,
// infection flags) are stored as serialized JSON arrays of strings.
type Patient struct {
	PatientID      uuid.UUID `json:"patient_id"`
	MRN            string    `json:"mrn"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	DOB            string    `json:"dob"`
	Sex            string    `json:"sex"`
	Phone          string    `json:"phone"`
	Allergies      string    `json:"allergies"`
	Alerts         string    `json:"alerts"`
	InfectionFlags string    `json:"infection_flags"`
}

// Order is a requested imaging episode.
type Order struct {
	OrderID           uuid.UUID `json:"order_id"`
	PatientID         uuid.UUID `json:"patient_id"`
	OrderingClinician string    `json:"ordering_clinician"`
	OrderingLocation  string    `json:"ordering_location"`
	Indication        string    `json:"indication"`
	Priority          string    `json:"priority"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// Study is the imaging episode itself.
type Study struct {
	StudyID         uuid.UUID  `json:"study_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	OrderID         uuid.UUID  `json:"order_id"`
	Modality        string     `json:"modality"`
	Description     string     `json:"description"`
	BodyPart        string     `json:"body_part"`
	ScheduledTime   time.Time  `json:"scheduled_time"`
	AcquisitionTime *time.Time `json:"acquisition_time"`
	Accession       string     `json:"accession"`
	ReportStatus    string     `json:"report_status"`
	CriticalFlag    bool       `json:"critical_flag"`
	PACSStatus      string     `json:"pacs_status"`
}

// Series is a child acquisition of a study.
type Series struct {
	SeriesID          uuid.UUID `json:"series_id"`
	StudyID           uuid.UUID `json:"study_id"`
	SeriesNumber      int       `json:"series_number"`
	SeriesDescription string    `json:"series_description"`
}

// Report is an authored narrative for a study. A study may accumulate
// multiple reports; the current one is the latest by created_at.
type Report struct {
	ReportID   uuid.UUID `json:"report_id"`
	StudyID    uuid.UUID `json:"study_id"`
	Author     string    `json:"author"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Indication string    `json:"indication"`
	Technique  string    `json:"technique"`
	Findings   string    `json:"findings"`
	Impression string    `json:"impression"`
	SignStatus string    `json:"sign_status"`
	Addenda    string    `json:"addenda"`
}

// WorklistItem is a worklist row: study joined with patient identity and
// order context.
type WorklistItem struct {
	StudyID           uuid.UUID  `json:"study_id"`
	Modality          string     `json:"modality"`
	Description       string     `json:"description"`
	BodyPart          string     `json:"body_part"`
	ScheduledTime     time.Time  `json:"scheduled_time"`
	AcquisitionTime   *time.Time `json:"acquisition_time"`
	Accession         string     `json:"accession"`
	ReportStatus      string     `json:"report_status"`
	CriticalFlag      bool       `json:"critical_flag"`
	PACSStatus        string     `json:"pacs_status"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	MRN               string     `json:"mrn"`
	DOB               string     `json:"dob"`
	Sex               string     `json:"sex"`
	Allergies         string     `json:"allergies"`
	Alerts            string     `json:"alerts"`
	Priority          string     `json:"priority"`
	OrderingClinician string     `json:"ordering_clinician"`
	OrderingLocation  string     `json:"ordering_location"`
	Indication        string     `json:"indication"`
}

// WorklistFilter selects and pages worklist rows. Search matches the patient
// full name, MRN, or study description, case-insensitively.
type WorklistFilter struct {
	Modality string
	Status   string
	Priority string
	Search   string
	Limit    int
	Offset   int
}

// StudyContext is a study with its patient and order context attached, as
// returned by the study detail endpoint.
type StudyContext struct {
	Study
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	MRN               string `json:"mrn"`
	DOB               string `json:"dob"`
	Sex               string `json:"sex"`
	Allergies         string `json:"allergies"`
	Alerts            string `json:"alerts"`
	Priority          string `json:"priority"`
	OrderingClinician string `json:"ordering_clinician"`
	Indication        string `json:"indication"`
}

// StudyDetail is the full study view: context row, all series ordered by
// series number, and the current report, if any.
type StudyDetail struct {
	Study  *StudyContext `json:"study"`
	Series []*Series     `json:"series"`
	Report *Report       `json:"report"`
}

// ReportListItem is a report joined with its study and patient context.
type ReportListItem struct {
	Report
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	MRN       string `json:"mrn"`
	Modality  string `json:"modality"`
	BodyPart  string `json:"body_part"`
	Accession string `json:"accession"`
}

// Stats is the dashboard aggregate.
type Stats struct {
	Total      int            `json:"total"`
	Critical   int            `json:"critical"`
	Unreported int            `json:"unreported"`
	Patients   int            `json:"patients"`
	Modalities map[string]int `json:"modalities"`
}

// ExportRow is the fixed study/patient/order projection used by export.
type ExportRow struct {
	MRN               string    `json:"mrn"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	DOB               string    `json:"dob"`
	Sex               string    `json:"sex"`
	Modality          string    `json:"modality"`
	Description       string    `json:"description"`
	BodyPart          string    `json:"body_part"`
	ScheduledTime     time.Time `json:"scheduled_time"`
	ReportStatus      string    `json:"report_status"`
	CriticalFlag      bool      `json:"critical_flag"`
	Priority          string    `json:"priority"`
	OrderingClinician string    `json:"ordering_clinician"`
}

// ImportResult reports per-row outcomes of a bulk patient import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Enumerations. Worklist ordering puts Emergency before Urgent before
// Routine; unknown priorities sort with Routine.
const (
	PriorityEmergency = "Emergency"
	PriorityUrgent    = "Urgent"
	PriorityRoutine   = "Routine"

	ReportStatusUnreported  = "Unreported"
	ReportStatusPreliminary = "Preliminary"
	ReportStatusFinal       = "Final"

	SignStatusDraft       = "Draft"
	SignStatusPreliminary = "Preliminary"
	SignStatusFinal       = "Final"
)

// PriorityRank maps a priority to its worklist sort rank: Emergency 0,
// Urgent 1, everything else 2. The worklist SQL orders by the same ranking.
func PriorityRank(priority string) int {
	switch priority {
	case PriorityEmergency:
		return 0
	case PriorityUrgent:
		return 1
	default:
		return 2
	}
}

// WorklistLess reports whether a sorts before b on the worklist: critical
// studies first, then by priority rank, then most recently scheduled first.
func WorklistLess(a, b *WorklistItem) bool {
	if a.CriticalFlag != b.CriticalFlag {
		return a.CriticalFlag
	}
	if ra, rb := PriorityRank(a.Priority), PriorityRank(b.Priority); ra != rb {
		return ra < rb
	}
	return a.ScheduledTime.After(b.ScheduledTime)
}
