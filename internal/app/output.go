package app

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/voice-metrics/internal/session"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/anchor"
)

// Formatter renders a session report
type Formatter interface {
	Format(report *session.Report) ([]byte, error)
}

// NewFormatter returns the formatter for an output format name
func NewFormatter(format string, precision int, colors bool) (Formatter, error) {
	switch format {
	case "", "json":
		return &JSONFormatter{Indent: "  "}, nil
	case "yaml":
		return &YAMLFormatter{}, nil
	case "table":
		return &TableFormatter{Precision: precision, Colors: colors}, nil
	case "csv":
		return &CSVFormatter{Precision: precision}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (available: json, yaml, table, csv)", format)
}

// JSONFormatter writes the report as JSON; missing values are null
type JSONFormatter struct {
	Indent string
}

func (f *JSONFormatter) Format(report *session.Report) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent != "" {
		data, err = json.MarshalIndent(report, "", f.Indent)
	} else {
		data, err = json.Marshal(report)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// YAMLFormatter writes the report as YAML
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(report *session.Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return buf.Bytes(), nil
}

// recordingRow is one recording flattened for tabular output
type recordingRow struct {
	File, Task, Status                string
	Frames, Voiced                    int
	F0, F1, F2, F3, SPL, Conf1, Conf2 voice.Measure
}

func recordingRows(report *session.Report) []recordingRow {
	rows := make([]recordingRow, 0, len(report.Recordings))
	for _, res := range report.Recordings {
		row := recordingRow{
			File:   res.File,
			Task:   string(res.Task),
			Frames: res.FrameCount,
			Voiced: res.VoicedCount,
			F0:     voice.Missing(), F1: voice.Missing(), F2: voice.Missing(), F3: voice.Missing(),
			SPL: voice.Missing(), Conf1: voice.Missing(), Conf2: voice.Missing(),
		}
		sum, ok := res.Summary.Get()
		if !ok {
			row.Status = res.Summary.Reason()
			rows = append(rows, row)
			continue
		}
		row.Status = string(voice.StatusAvailable)
		if sum.Fallback {
			row.Status = "fallback"
		}
		row.F0, row.F1, row.F2, row.F3, row.SPL = sum.F0, sum.F1, sum.F2, sum.F3, sum.SPL
		row.Conf1, row.Conf2 = voice.Measure(sum.Confidence1), voice.Measure(sum.Confidence2)
		rows = append(rows, row)
	}
	return rows
}

func formatMeasure(m voice.Measure, precision int) string {
	if !m.Known() {
		return ""
	}
	return strconv.FormatFloat(m.Float(), 'f', precision, 64)
}

// CSVFormatter writes one row per recording
type CSVFormatter struct {
	Precision int
}

var csvHeader = []string{"file", "task", "status", "frames", "voiced_frames", "f0_hz", "f1_hz", "f2_hz", "f3_hz", "spl_db", "f1_confidence", "f2_confidence"}

func (f *CSVFormatter) Format(report *session.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range recordingRows(report) {
		record := []string{
			r.File, r.Task, r.Status,
			strconv.Itoa(r.Frames), strconv.Itoa(r.Voiced),
			formatMeasure(r.F0, f.Precision),
			formatMeasure(r.F1, f.Precision),
			formatMeasure(r.F2, f.Precision),
			formatMeasure(r.F3, f.Precision),
			formatMeasure(r.SPL, f.Precision),
			formatMeasure(r.Conf1, f.Precision),
			formatMeasure(r.Conf2, f.Precision),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	headerColor = lipgloss.Color("#A40000")
	mutedColor  = lipgloss.Color("#888888")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(headerColor).MarginBottom(1)
	keyStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(headerColor).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	titleCaser = cases.Title(language.English)
)

// TableFormatter renders a human-readable summary
type TableFormatter struct {
	Precision int
	Colors    bool
}

// taskLabel turns a task id such as glide_up into "Glide Up"
func taskLabel(task string) string {
	return titleCaser.String(strings.ReplaceAll(task, "_", " "))
}

func (f *TableFormatter) render(style lipgloss.Style, s string) string {
	if !f.Colors {
		return s
	}
	return style.Render(s)
}

func (f *TableFormatter) Format(report *session.Report) ([]byte, error) {
	var b strings.Builder
	m := func(v voice.Measure) string {
		if s := formatMeasure(v, f.Precision); s != "" {
			return s
		}
		return "-"
	}

	b.WriteString(f.render(titleStyle, "Session "+report.SessionID))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s (%s)\n",
		f.render(keyStyle, "Pipeline:"), report.Pipeline,
		f.render(keyStyle, "Strategy:"), report.Strategy,
		f.render(keyStyle, "SPL offset:"), strconv.FormatFloat(report.Calibration.OffsetDB, 'f', f.Precision, 64),
		report.Calibration.SPLKind)
	b.WriteString("\n")

	t := table.New().
		Headers("Recording", "Task", "Status", "Voiced", "F0", "F1", "F2", "F3", "SPL", "Conf F1", "Conf F2")
	if f.Colors {
		t = t.Border(lipgloss.RoundedBorder()).
			BorderStyle(keyStyle).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
	} else {
		t = t.Border(lipgloss.NormalBorder())
	}
	for _, r := range recordingRows(report) {
		t = t.Row(r.File, taskLabel(r.Task), r.Status,
			fmt.Sprintf("%d/%d", r.Voiced, r.Frames),
			m(r.F0), m(r.F1), m(r.F2), m(r.F3), m(r.SPL), m(r.Conf1), m(r.Conf2))
	}
	b.WriteString(t.Render())
	b.WriteString("\n\n")

	sustained := report.Sustained
	fmt.Fprintf(&b, "%s %s  MPT %ss  F0 %s Hz  SPL %s dB\n",
		f.render(keyStyle, taskLabel(string(voice.TaskVowelMPT))+":"),
		orDash(sustained.File), m(sustained.MPTS), m(sustained.F0Median), m(sustained.SPLMedian))

	for _, a := range []struct {
		task string
		res  voice.Result[anchor.Anchor]
	}{
		{string(voice.TaskSoftA), report.Anchors.SoftA},
		{string(voice.TaskLoudA), report.Anchors.LoudA},
	} {
		label := f.render(keyStyle, taskLabel(a.task)+":")
		v, ok := a.res.Get()
		if !ok {
			fmt.Fprintf(&b, "%s unavailable (%s)\n", label, a.res.Reason())
			continue
		}
		fmt.Fprintf(&b, "%s F1 %s  F2 %s  SPL %s dB  (%d frames)\n", label, m(v.F1), m(v.F2), m(v.SPL), v.FrameCount)
	}

	vrpLabel := f.render(keyStyle, "VRP:")
	if p, ok := report.VRP.Get(); ok {
		fmt.Fprintf(&b, "%s %d bins  F0 %s-%s Hz  SPL %s-%s dB (%s)\n", vrpLabel, len(p.Bins),
			m(voice.Measure(p.F0P10)), m(voice.Measure(p.F0P90)),
			m(voice.Measure(p.SPLP10)), m(voice.Measure(p.SPLP90)), p.EnvelopeKind)
	} else {
		fmt.Fprintf(&b, "%s unavailable (%s)\n", vrpLabel, report.VRP.Reason())
	}

	for _, s := range []struct {
		label string
		res   voice.Result[session.SpeechFlow]
	}{
		{"Reading", report.Reading},
		{"Spontaneous", report.Spontaneous},
	} {
		label := f.render(keyStyle, s.label+":")
		flow, ok := s.res.Get()
		if !ok {
			fmt.Fprintf(&b, "%s unavailable (%s)\n", label, s.res.Reason())
			continue
		}
		fmt.Fprintf(&b, "%s %ss  voiced %s  pauses %d  F0 %s ± %s Hz\n", label,
			m(flow.DurationS), m(flow.VoicedRatio), flow.PauseCount, m(flow.F0Mean), m(flow.F0SD))
	}

	if q := report.Questionnaires; q != nil {
		var parts []string
		if len(q.RBH) > 0 {
			keys := make([]string, 0, len(q.RBH))
			for k := range q.RBH {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			var rbh []string
			for _, k := range keys {
				rbh = append(rbh, fmt.Sprintf("%s: %v", strings.ToUpper(k), q.RBH[k]))
			}
			parts = append(parts, "RBH "+strings.Join(rbh, ", "))
		}
		if v, ok := q.OVHS9Total.Get(); ok {
			parts = append(parts, fmt.Sprintf("OVHS-9 %d", v))
		}
		if v, ok := q.TVQGTotal.Get(); ok {
			parts = append(parts, fmt.Sprintf("TVQ-G %d (%s)", v, q.TVQGPercent))
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, "%s %s\n", f.render(keyStyle, "Questionnaires:"), strings.Join(parts, "  "))
		}
	}

	return []byte(b.String()), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
