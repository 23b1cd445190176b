// Package ledger persists raw per-frame values together with the run
// configuration so that any report can be regenerated from the archive.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/RyanBlaney/voice-metrics/pkg/voice"
)

// FileName is the conventional name of a session ledger
const FileName = "ALL.frames.csv"

// Columns is the ledger header. Readers rely on the order, so new columns
// are only ever appended.
var Columns = []string{
	"file",
	"task",
	"time_s",
	"f0_hz",
	"voicing_prob",
	"f1_hz",
	"f2_hz",
	"f3_hz",
	"b1_hz",
	"b2_hz",
	"b3_hz",
	"spl_db",
	"calibration_offset_db",
	"spl_kind",
	"sr_hz",
	"params_json",
	"qc_flags",
	"intensity_db",
	"hnr_db",
	"p1_db",
	"p2_db",
	"p3_db",
}

// requiredColumns is the prefix every readable ledger must carry
const requiredColumns = 17

const (
	colFile = iota
	colTask
	colTime
	colF0
	colVoicing
	colF1
	colF2
	colF3
	colB1
	colB2
	colB3
	colSPL
	colOffset
	colSPLKind
	colSampleRate
	colParams
	colFlags
	colIntensity
	colHNR
	colP1
)

// FormatFloat renders a value with the shortest exact representation; missing values are empty
func FormatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseFloat reads a cell written by FormatFloat; empty or "nan" cells are NaN
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), err
	}
	return v, nil
}

// Writer streams ledger rows
type Writer struct {
	csv        *csv.Writer
	paramsJSON string
	rows       int
}

// NewWriter writes the header and prepares rows stamped with rc
func NewWriter(w io.Writer, rc *RunConfig) (*Writer, error) {
	params, err := rc.Compact()
	if err != nil {
		return nil, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return nil, fmt.Errorf("failed to write ledger header: %w", err)
	}
	return &Writer{csv: cw, paramsJSON: params}, nil
}

// WriteRecording appends one row per frame of rec
func (w *Writer) WriteRecording(rec *voice.Recording, calib voice.Calibration) error {
	file := rec.File()
	task := string(rec.ResolvedTask())
	sr := FormatFloat(rec.SampleRate)
	offset := FormatFloat(calib.OffsetDB)

	row := make([]string, len(Columns))
	for _, f := range rec.Frames {
		row[colFile] = file
		row[colTask] = task
		row[colTime] = FormatFloat(f.Time)
		row[colF0] = FormatFloat(f.F0)
		row[colVoicing] = FormatFloat(f.VoicingConfidence)
		row[colF1] = FormatFloat(f.FormantHz(1))
		row[colF2] = FormatFloat(f.FormantHz(2))
		row[colF3] = FormatFloat(f.FormantHz(3))
		row[colB1] = FormatFloat(f.BandwidthHz(1))
		row[colB2] = FormatFloat(f.BandwidthHz(2))
		row[colB3] = FormatFloat(f.BandwidthHz(3))
		row[colSPL] = FormatFloat(f.SPLDB)
		row[colOffset] = offset
		row[colSPLKind] = calib.SPLKind
		row[colSampleRate] = sr
		row[colParams] = w.paramsJSON
		row[colFlags] = f.FlagString()
		row[colIntensity] = FormatFloat(f.IntensityDB)
		row[colHNR] = FormatFloat(f.HNRDB)
		for n := 1; n <= voice.NumFormants; n++ {
			db, _ := f.Prominence(n)
			row[colP1+n-1] = FormatFloat(db)
		}

		if err := w.csv.Write(row); err != nil {
			return fmt.Errorf("failed to write ledger row for %s: %w", file, err)
		}
		w.rows++
	}
	return nil
}

// Rows returns the number of frame rows written
func (w *Writer) Rows() int {
	return w.rows
}

// Flush writes buffered rows and reports any write error
func (w *Writer) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}

// WriteFile writes a complete ledger for recs to path
func WriteFile(path string, recs []*voice.Recording, calib voice.Calibration, rc *RunConfig) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create ledger file: %w", err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))

	w, err := NewWriter(f, rc)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := w.WriteRecording(rec, calib); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Ledger is a decoded archive: recordings in first-appearance order plus the
// run configuration stamped on their rows
type Ledger struct {
	Recordings []*voice.Recording
	RunConfig  *RunConfig
}

// Read decodes a ledger. Recorded QC flags, nulled values and prominences
// are kept as written. Ledgers predating the intensity, HNR and prominence
// columns are accepted.
func Read(r io.Reader) (*Ledger, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger header: %w", err)
	}
	if len(header) < requiredColumns {
		return nil, fmt.Errorf("ledger header has %d columns, need at least %d", len(header), requiredColumns)
	}
	for i := 0; i < requiredColumns; i++ {
		if strings.TrimSpace(header[i]) != Columns[i] {
			return nil, fmt.Errorf("ledger column %d is %q, expected %q", i, header[i], Columns[i])
		}
	}

	out := &Ledger{}
	byFile := make(map[string]*voice.Recording)
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger line %d: %w", line, err)
		}
		if len(row) < requiredColumns {
			return nil, fmt.Errorf("ledger line %d has %d columns", line, len(row))
		}

		frame, err := parseFrame(row)
		if err != nil {
			return nil, fmt.Errorf("ledger line %d: %w", line, err)
		}

		file := row[colFile]
		rec, ok := byFile[file]
		if !ok {
			rec = &voice.Recording{Key: file, Task: voice.Task(row[colTask])}
			if rec.SampleRate, err = ParseFloat(row[colSampleRate]); err != nil {
				return nil, fmt.Errorf("ledger line %d: bad sr_hz: %w", line, err)
			}
			byFile[file] = rec
			out.Recordings = append(out.Recordings, rec)
		}
		rec.Frames = append(rec.Frames, frame)

		if out.RunConfig == nil && row[colParams] != "" {
			if out.RunConfig, err = ParseRunConfig([]byte(row[colParams])); err != nil {
				return nil, fmt.Errorf("ledger line %d: %w", line, err)
			}
		}
	}

	step := stepFromParams(out.RunConfig)
	for _, rec := range out.Recordings {
		rec.TimeStep = step
		if step <= 0 {
			rec.TimeStep = inferStep(rec.Frames)
		}
	}
	return out, nil
}

// ReadFile decodes the ledger at path
func ReadFile(path string) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func parseFrame(row []string) (voice.Frame, error) {
	get := func(col int) (float64, error) {
		if col >= len(row) {
			return math.NaN(), nil
		}
		v, err := ParseFloat(row[col])
		if err != nil {
			return v, fmt.Errorf("bad %s value %q: %w", Columns[col], row[col], err)
		}
		return v, nil
	}

	var errs error
	field := func(col int) float64 {
		v, err := get(col)
		errs = multierr.Append(errs, err)
		return v
	}

	f := voice.NewFrame(field(colTime))
	f.F0 = field(colF0)
	f.VoicingConfidence = field(colVoicing)
	f.Formants[0] = voice.Formant{FrequencyHz: field(colF1), BandwidthHz: field(colB1)}
	f.Formants[1] = voice.Formant{FrequencyHz: field(colF2), BandwidthHz: field(colB2)}
	f.Formants[2] = voice.Formant{FrequencyHz: field(colF3), BandwidthHz: field(colB3)}
	f.SPLDB = field(colSPL)
	f.IntensityDB = field(colIntensity)
	f.HNRDB = field(colHNR)
	var prominence []float64
	for n := 0; n < voice.NumFormants; n++ {
		db := field(colP1 + n)
		if voice.IsFinite(db) && prominence == nil {
			prominence = make([]float64, voice.NumFormants)
			for i := range prominence {
				prominence[i] = voice.NaN()
			}
		}
		if prominence != nil {
			prominence[n] = db
		}
	}
	f.ProminenceDB = prominence
	if errs != nil {
		return f, errs
	}
	if !voice.IsFinite(f.Time) {
		return f, fmt.Errorf("missing time_s")
	}
	if f.F0 == 0 {
		f.F0 = voice.NaN()
	}
	if flags := row[colFlags]; flags != "" {
		f.QCFlags = strings.Split(flags, "|")
	}
	return f, nil
}

// stepFromParams reads params.time_step from a run config, 0 when absent
func stepFromParams(rc *RunConfig) float64 {
	if rc == nil {
		return 0
	}
	var p struct {
		TimeStep float64 `json:"time_step"`
	}
	if err := rc.DecodeParams(&p); err != nil {
		return 0
	}
	return p.TimeStep
}

// inferStep returns the smallest positive spacing between consecutive frames
func inferStep(frames []voice.Frame) float64 {
	step := math.Inf(1)
	for i := 1; i < len(frames); i++ {
		if d := frames[i].Time - frames[i-1].Time; d > 0 && d < step {
			step = d
		}
	}
	if math.IsInf(step, 1) {
		return 0
	}
	return step
}
