// Package sandbox generates synthetic radiology data: patients with
// realistic demographics and, for each, a set of imaging episodes spanning
// order, study, series, and report. It backs the generate endpoint and the
// first-run seed of an empty database.
package sandbox

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aria-health/aria/internal/domain/worklist"
)

var (
	firstNamesFemale = []string{
		"Sarah", "Emma", "Olivia", "Amara", "Priya", "Fatima", "Grace",
		"Charlotte", "Ava", "Zara", "Diane", "Helen", "Margaret", "Aisha",
		"Mei", "Rosa", "Ingrid", "Clare", "Patricia", "Nadia",
	}
	firstNamesMale = []string{
		"James", "Mohammed", "David", "Oliver", "Liam", "Ethan", "George",
		"Daniel", "Kwame", "Ahmed", "Robert", "Michael", "Thomas", "Samuel",
		"Rajan", "Tariq", "Patrick", "Leon", "Victor", "Hugo",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Taylor", "Davies",
		"Wilson", "Evans", "Thomas", "Roberts", "Walker", "White", "Hall",
		"Martin", "Ahmed", "Khan", "Patel", "Singh", "Okafor", "Chen", "Kim",
		"Müller", "Rossi", "Garcia", "Dubois", "Andersen", "Kowalski",
		"Ferreira", "Nguyen",
	}
	clinicians = []string{
		"Dr. A. Patel", "Dr. S. Rahman", "Dr. K. Obi", "Dr. L. Chen",
		"Dr. M. Kowalski", "Dr. F. Adeyemi", "Dr. R. Singh",
		"Dr. T. Williams", "Dr. E. Johansson", "Dr. N. Mwangi",
	}
	locations = []string{
		"Emergency Department", "Cardiology", "Neurology", "Oncology",
		"General Medicine", "ICU", "Orthopaedics", "Gastroenterology",
		"Respiratory", "Vascular Surgery",
	}
	allergiesPool = []string{
		"Penicillin", "Aspirin", "Ibuprofen", "Contrast media", "Latex",
		"Morphine", "Codeine", "Sulfonamides", "None known",
	}
	alertsPool = []string{
		"Fall risk", "DNACPR", "Infection control", "Bariatric",
		"Implanted device", "Pregnancy — confirm", "Renal impairment",
		"Contrast caution",
	}
	seriesPlanes = []string{"Axial", "Sagittal", "Coronal", "MIP", "Scout"}
)

type studyTemplate struct {
	Modality    string
	BodyPart    string
	Description string
	Priority    string
}

var studyTemplates = []studyTemplate{
	{"CT", "Head", "CT Head without contrast — query intracranial haemorrhage", "Urgent"},
	{"CT", "Chest", "CT Pulmonary Angiography — query pulmonary embolism", "Urgent"},
	{"CT", "Abdomen", "CT Abdomen/Pelvis with contrast — query appendicitis", "Urgent"},
	{"CT", "Chest", "CT Chest — query lung malignancy", "Routine"},
	{"CT", "Head", "CT Head with contrast — query brain metastases", "Routine"},
	{"CT", "Spine", "CT Spine — query cord compression", "Urgent"},
	{"CT", "Abdomen", "CT Abdomen — query aortic aneurysm", "Emergency"},
	{"CT", "Chest", "CT Chest — staging non-small cell lung cancer", "Routine"},
	{"CT", "Head", "CT Head — query subdural haematoma", "Emergency"},
	{"CT", "Abdomen", "CT Abdomen — post-operative review", "Routine"},
	{"MRI", "Brain", "MRI Brain with/without contrast — seizures", "Urgent"},
	{"MRI", "Brain", "MRI Brain — query demyelination / MS", "Routine"},
	{"MRI", "Spine", "MRI Lumbar Spine — radiculopathy", "Routine"},
	{"MRI", "Cardiac", "MRI Cardiac — query cardiomyopathy", "Routine"},
	{"MRI", "Brain", "MRI Brain — query acute stroke", "Emergency"},
	{"MRI", "Abdomen", "MRI Liver — query hepatocellular carcinoma", "Routine"},
	{"MRI", "Pelvis", "MRI Pelvis — staging rectal cancer", "Routine"},
	{"MRI", "Knee", "MRI Knee — query meniscal tear", "Routine"},
	{"XR", "Chest", "Chest X-ray — shortness of breath", "Urgent"},
	{"XR", "Chest", "Chest X-ray — query pneumonia", "Urgent"},
	{"XR", "Chest", "Chest X-ray — query pneumothorax", "Emergency"},
	{"XR", "Chest", "Chest X-ray — routine post-procedure", "Routine"},
	{"XR", "Abdomen", "Abdominal X-ray — query obstruction", "Urgent"},
	{"XR", "MSK", "X-ray Hip — query fracture", "Urgent"},
	{"XR", "MSK", "X-ray Wrist — post-trauma", "Routine"},
	{"US", "Abdomen", "Ultrasound Abdomen — right upper quadrant pain", "Urgent"},
	{"US", "Pelvis", "Ultrasound Pelvis — pelvic pain", "Routine"},
	{"US", "Neck", "Ultrasound Thyroid — query nodule", "Routine"},
	{"US", "Vascular", "Ultrasound Duplex — query DVT", "Urgent"},
	{"US", "Abdomen", "Ultrasound Liver — abnormal LFTs", "Routine"},
	{"NM", "Chest", "Nuclear Medicine V/Q Scan — query PE", "Urgent"},
	{"NM", "Bone", "Nuclear Medicine Bone Scan — staging", "Routine"},
	{"NM", "Cardiac", "Nuclear Medicine Myocardial Perfusion — angina", "Routine"},
}

var criticalFindings = []string{
	"Acute large vessel occlusion — immediate stroke team activation required",
	"Massive pulmonary embolism with right heart strain — urgent cardiology review",
	"Acute aortic dissection type A — immediate cardiothoracic surgery referral",
	"Tension pneumothorax — immediate decompression required",
	"Acute subdural haematoma with midline shift — urgent neurosurgical review",
	"Ruptured abdominal aortic aneurysm — immediate vascular surgery",
	"Cord compression at C4 — immediate neurosurgical referral",
	"New intracranial haemorrhage — neurosurgical review required",
}

// reportFindings holds plausible narrative findings per modality. Modalities
// without a dedicated pool fall back to the XR entries.
var reportFindings = map[string][]string{
	"CT": {
		"No acute intracranial abnormality identified. No haemorrhage, mass effect or midline shift. Ventricles and sulci appear normal for age.",
		"There is evidence of a focal consolidative change in the right lower lobe consistent with pneumonia. No pleural effusion. Mediastinum normal.",
		"Filling defect identified within the right main pulmonary artery consistent with acute pulmonary embolism. Evidence of right heart strain.",
	},
	"MRI": {
		"Multiple periventricular and juxtacortical T2/FLAIR hyperintense lesions identified, the morphology and distribution of which is consistent with demyelinating disease.",
		"No restricted diffusion to suggest acute infarction. No haemorrhage or mass lesion. Background white matter changes consistent with small vessel disease.",
		"Large heterogeneous hepatic lesion in segment 6/7 measuring 4.2 x 3.8cm. Enhancement pattern is consistent with hepatocellular carcinoma.",
	},
	"XR": {
		"Heart size is at the upper limit of normal. Lung fields are clear. No pleural effusion or pneumothorax. Bony structures intact.",
		"Increased opacification in the left lower zone consistent with consolidation or collapse. Clinical correlation advised.",
		"Gas pattern within normal limits. No evidence of obstruction or perforation. No abnormal calcification.",
	},
	"US": {
		"The liver is of normal size and echotexture. No focal lesion identified. Gallbladder wall not thickened. No pericholecystic fluid. CBD measures 4mm.",
		"The right common femoral vein is non-compressible with absent flow on colour Doppler, findings consistent with acute deep vein thrombosis.",
		"Normal sized uterus and ovaries. No adnexal mass or free fluid. Endometrial thickness 6mm.",
	},
	"NM": {
		"Matched ventilation/perfusion defects in the right lower lobe. Low probability for pulmonary embolism.",
		"Increased tracer uptake in multiple vertebral bodies and the right 5th rib, findings consistent with widespread bony metastatic disease.",
	},
}

const reportImpression = "Findings as above. Clinical correlation advised. Please discuss with reporting radiologist if urgent review required."

// StudyBundle is one generated imaging episode: the order, the study, its
// series, and a report when the sampled status is Preliminary or Final.
type StudyBundle struct {
	Order  *worklist.Order
	Study  *worklist.Study
	Series []*worklist.Series
	Report *worklist.Report
}

// PatientBundle is a generated patient with their imaging episodes.
type PatientBundle struct {
	Patient *worklist.Patient
	Studies []*StudyBundle
}

// DataGenerator produces synthetic worklist entities from a seeded source.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// sampleJSON draws k distinct entries from pool and returns them as a
// serialized JSON array of strings.
func (g *DataGenerator) sampleJSON(pool []string, k int) string {
	idx := g.rng.Perm(len(pool))[:k]
	picked := make([]string, k)
	for i, j := range idx {
		picked[i] = pool[j]
	}
	out, _ := json.Marshal(picked)
	return string(out)
}

func (g *DataGenerator) randomDOB() string {
	age := 18 + g.rng.Intn(73)
	days := age*365 + g.rng.Intn(365)
	return time.Now().AddDate(0, 0, -days).Format("2006-01-02")
}

// recentTime returns a timestamp the given number of days back, jittered up
// to twelve hours earlier.
func (g *DataGenerator) recentTime(daysBack int) time.Time {
	jitter := time.Duration(g.rng.Intn(13)) * time.Hour
	return time.Now().AddDate(0, 0, -daysBack).Add(-jitter).Truncate(time.Minute)
}

func (g *DataGenerator) randomPhone() string {
	return fmt.Sprintf("+44 7%d %d", 100+g.rng.Intn(900), 100000+g.rng.Intn(900000))
}

func (g *DataGenerator) randomMRN() string {
	return fmt.Sprintf("KCH%d", 1000000+g.rng.Intn(9000000))
}

func (g *DataGenerator) randomAccession() string {
	return fmt.Sprintf("ACC%d", 10000000+g.rng.Intn(90000000))
}

// Patient generates a patient with 1-3 allergies and 0-2 ward alerts.
func (g *DataGenerator) Patient() *worklist.Patient {
	sex := "F"
	firstName := g.pick(firstNamesFemale)
	if g.rng.Intn(5) < 3 {
		sex = "M"
		firstName = g.pick(firstNamesMale)
	}

	return &worklist.Patient{
		PatientID:      uuid.New(),
		MRN:            g.randomMRN(),
		FirstName:      firstName,
		LastName:       g.pick(lastNames),
		DOB:            g.randomDOB(),
		Sex:            sex,
		Phone:          g.randomPhone(),
		Allergies:      g.sampleJSON(allergiesPool, 1+g.rng.Intn(3)),
		Alerts:         g.sampleJSON(alertsPool, g.rng.Intn(3)),
		InfectionFlags: "[]",
	}
}

// Study generates one imaging episode for the patient from a random
// template. Studies are flagged critical with probability criticalPct/100.
func (g *DataGenerator) Study(patientID uuid.UUID, criticalPct int) *StudyBundle {
	tmpl := studyTemplates[g.rng.Intn(len(studyTemplates))]
	isCritical := g.rng.Float64() < float64(criticalPct)/100
	reportStatus := g.pick([]string{
		worklist.ReportStatusUnreported,
		worklist.ReportStatusUnreported,
		worklist.ReportStatusUnreported,
		worklist.ReportStatusPreliminary,
		worklist.ReportStatusFinal,
		worklist.ReportStatusFinal,
	})

	order := &worklist.Order{
		OrderID:           uuid.New(),
		PatientID:         patientID,
		OrderingClinician: g.pick(clinicians),
		OrderingLocation:  g.pick(locations),
		Indication:        templateIndication(tmpl),
		Priority:          tmpl.Priority,
		Status:            "Active",
		CreatedAt:         g.recentTime(g.rng.Intn(8)),
	}

	acquisition := g.recentTime(g.rng.Intn(3))
	study := &worklist.Study{
		StudyID:         uuid.New(),
		PatientID:       patientID,
		OrderID:         order.OrderID,
		Modality:        tmpl.Modality,
		Description:     tmpl.Description,
		BodyPart:        tmpl.BodyPart,
		ScheduledTime:   g.recentTime(g.rng.Intn(4)),
		AcquisitionTime: &acquisition,
		Accession:       g.randomAccession(),
		ReportStatus:    reportStatus,
		CriticalFlag:    isCritical,
		PACSStatus:      "Available",
	}

	nSeries := 1 + g.rng.Intn(4)
	series := make([]*worklist.Series, 0, nSeries)
	for sn := 1; sn <= nSeries; sn++ {
		series = append(series, &worklist.Series{
			SeriesID:          uuid.New(),
			StudyID:           study.StudyID,
			SeriesNumber:      sn,
			SeriesDescription: fmt.Sprintf("Series %d — %s", sn, g.pick(seriesPlanes)),
		})
	}

	bundle := &StudyBundle{Order: order, Study: study, Series: series}
	if reportStatus == worklist.ReportStatusPreliminary || reportStatus == worklist.ReportStatusFinal {
		bundle.Report = g.report(study, tmpl, isCritical)
	}
	return bundle
}

func (g *DataGenerator) report(study *worklist.Study, tmpl studyTemplate, isCritical bool) *worklist.Report {
	pool, ok := reportFindings[tmpl.Modality]
	if !ok {
		pool = reportFindings["XR"]
	}
	findings := g.pick(pool)
	if isCritical {
		findings += fmt.Sprintf("\n\n⚠ CRITICAL FINDING: %s", g.pick(criticalFindings))
	}

	contrast := "without contrast"
	if g.rng.Float64() > 0.5 {
		contrast = "with contrast"
	}

	return &worklist.Report{
		ReportID:   uuid.New(),
		StudyID:    study.StudyID,
		Author:     g.pick(clinicians),
		CreatedAt:  g.recentTime(1),
		UpdatedAt:  g.recentTime(0),
		Indication: fmt.Sprintf("Query %s pathology", tmpl.BodyPart),
		Technique:  fmt.Sprintf("%s %s %s", tmpl.Modality, tmpl.BodyPart, contrast),
		Findings:   findings,
		Impression: reportImpression,
		SignStatus: study.ReportStatus,
		Addenda:    "[]",
	}
}

// PatientBundle generates a patient with 1..maxStudies imaging episodes.
func (g *DataGenerator) PatientBundle(maxStudies, criticalPct int) *PatientBundle {
	if maxStudies < 1 {
		maxStudies = 1
	}
	patient := g.Patient()

	nStudies := 1 + g.rng.Intn(maxStudies)
	studies := make([]*StudyBundle, 0, nStudies)
	for i := 0; i < nStudies; i++ {
		studies = append(studies, g.Study(patient.PatientID, criticalPct))
	}
	return &PatientBundle{Patient: patient, Studies: studies}
}

// templateIndication derives the order indication from the template
// description, using the clinical question after the dash when present.
func templateIndication(tmpl studyTemplate) string {
	if i := strings.LastIndex(tmpl.Description, "—"); i >= 0 {
		return "Query " + strings.TrimSpace(tmpl.Description[i+len("—"):])
	}
	return "Query " + tmpl.BodyPart
}
