package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/gocarina/gocsv"
)

// Stat is a statistic that may be undefined (NaN). Undefined values are
// empty in CSV and null in JSON.
type Stat float64

func (s Stat) undefined() bool {
	return math.IsNaN(float64(s)) || math.IsInf(float64(s), 0)
}

func (s Stat) MarshalCSV() (string, error) {
	if s.undefined() {
		return "", nil
	}
	return strconv.FormatFloat(float64(s), 'g', -1, 64), nil
}

func (s *Stat) UnmarshalCSV(v string) error {
	if v == "" {
		*s = Stat(math.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*s = Stat(f)
	return nil
}

func (s Stat) MarshalJSON() ([]byte, error) {
	if s.undefined() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(s))
}

func (s *Stat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = Stat(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*s = Stat(f)
	return nil
}

// ReportRow summarises one variable of one written product, or one failed
// algorithm when Error is set.
type ReportRow struct {
	Input       string `csv:"input" json:"input"`
	Algorithm   string `csv:"algorithm" json:"algorithm"`
	Variable    string `csv:"variable" json:"variable"`
	ValidPixels int    `csv:"valid_pixels" json:"valid_pixels"`
	Min         Stat   `csv:"min" json:"min"`
	Max         Stat   `csv:"max" json:"max"`
	Mean        Stat   `csv:"mean" json:"mean"`
	Calibration string `csv:"calibration" json:"calibration"`
	Output      string `csv:"output" json:"output"`
	Error       string `csv:"error" json:"error,omitempty"`
}

func WriteReport(path string, rows []ReportRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer file.Close()
	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func WriteReportTo(w io.Writer, rows []ReportRow) error {
	return gocsv.Marshal(&rows, w)
}

func ReadReport(path string) ([]ReportRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var rows []ReportRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return rows, nil
}
