package worklist

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// ErrBadPayload is returned when an import file cannot be parsed at all.
// Individual bad rows do not trigger it; they are counted as failed.
var ErrBadPayload = errors.New("unparseable import payload")

// Importer bulk-loads patient rows from JSON or CSV files. Rows missing
// identity fields get defaults; rows colliding on MRN are skipped.
type Importer struct {
	mu       sync.Mutex
	patients PatientRepository
	rng      *rand.Rand
}

func NewImporter(patients PatientRepository, rng *rand.Rand) *Importer {
	return &Importer{patients: patients, rng: rng}
}

// Import parses the file (extension decides the format, CSV unless .json)
// and inserts one patient per row. The batch never aborts on a bad row.
// One Importer serves all requests, so batches are serialized: the random
// source behind generated MRNs is not safe for concurrent use.
func (im *Importer) Import(ctx context.Context, filename string, data []byte) (*ImportResult, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	rows, err := im.parse(filename, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	result := &ImportResult{}
	for _, row := range rows {
		p := &Patient{
			MRN:            stringField(row, "mrn", im.newMRN()),
			FirstName:      stringField(row, "first_name", "Unknown"),
			LastName:       stringField(row, "last_name", "Unknown"),
			DOB:            stringField(row, "dob", "1970-01-01"),
			Sex:            stringField(row, "sex", "U"),
			Allergies:      "[]",
			Alerts:         "[]",
			InfectionFlags: "[]",
		}
		switch err := im.patients.Create(ctx, p); {
		case err == nil:
			result.Imported++
		case errors.Is(err, ErrDuplicateMRN):
			result.Skipped++
		default:
			result.Failed++
		}
	}
	return result, nil
}

func (im *Importer) parse(filename string, data []byte) ([]map[string]string, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".json") {
		var rows []map[string]interface{}
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, err
		}
		out := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			m := make(map[string]string, len(row))
			for k, v := range row {
				m[k] = fmt.Sprintf("%v", v)
			}
			out = append(out, m)
		}
		return out, nil
	}

	reader := csv.NewReader(bytes.NewReader(data))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	out := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		m := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				m[col] = record[i]
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (im *Importer) newMRN() string {
	return fmt.Sprintf("KCH%d", 1000000+im.rng.Intn(9000000))
}

func stringField(row map[string]string, key, fallback string) string {
	if v, ok := row[key]; ok && v != "" {
		return v
	}
	return fallback
}
