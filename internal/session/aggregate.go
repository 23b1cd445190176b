package session

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/anchor"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/stats"
)

// MinPauseS is the shortest unvoiced gap counted as a pause
const MinPauseS = 0.25

const (
	ovhs9Items = 9
	tvqgItems  = 12
	tvqgMax    = 48
)

// NoiseIntensity returns the mean finite intensity of a noise recording
func NoiseIntensity(rec *voice.Recording) float64 {
	values := make([]float64, 0, len(rec.Frames))
	for _, f := range rec.Frames {
		values = append(values, f.IntensityDB)
	}
	return stats.Mean(values)
}

// firstOfTask returns the first recording labeled task
func firstOfTask(recs []*voice.Recording, task voice.Task) *voice.Recording {
	for _, r := range recs {
		if r.ResolvedTask() == task {
			return r
		}
	}
	return nil
}

// SpeechFlowOf summarizes rec. fallbackStep is used when the recording
// carries no time step of its own.
func SpeechFlowOf(rec *voice.Recording, fallbackStep float64) voice.Result[SpeechFlow] {
	if rec == nil {
		return voice.Unavailable[SpeechFlow](voice.ReasonNoRecording)
	}
	if len(rec.Frames) == 0 {
		return voice.Unavailable[SpeechFlow](voice.ReasonNoVoicedFrames)
	}

	step := rec.TimeStep
	if !(step > 0) {
		step = fallbackStep
	}

	var f0 []float64
	pauses, gap := 0, 0
	seenVoiced := false
	for _, f := range rec.Frames {
		if f.Voiced() && f.F0 > 0 {
			if seenVoiced && float64(gap)*step >= MinPauseS-1e-9 {
				pauses++
			}
			f0 = append(f0, f.F0)
			seenVoiced = true
			gap = 0
			continue
		}
		gap++
	}
	if len(f0) == 0 {
		return voice.Unavailable[SpeechFlow](voice.ReasonNoVoicedFrames)
	}

	first, last := rec.Frames[0].Time, rec.Frames[len(rec.Frames)-1].Time
	mean, sd := stats.PopMeanStdDev(f0)
	sorted := stats.Sorted(f0)

	return voice.Available(SpeechFlow{
		File:        rec.File(),
		DurationS:   voice.Measure(last - first + step).Round(2),
		VoicedRatio: voice.Measure(float64(len(f0)) / float64(len(rec.Frames))).Round(2),
		PauseCount:  pauses,
		F0Mean:      voice.Measure(mean).Round(2),
		F0SD:        voice.Measure(sd).Round(2),
		F0Stats: F0Stats{
			P10:    voice.Measure(stats.PercentileSorted(sorted, 10)).Round(2),
			Median: voice.Measure(stats.Median(sorted)).Round(2),
			P90:    voice.Measure(stats.PercentileSorted(sorted, 90)).Round(2),
		},
	})
}

// sustainedOf summarizes the chosen sustained vowel recording, which may be nil
func sustainedOf(rec *voice.Recording, voiced int, step float64, block anchor.FormantBlock) Sustained {
	s := Sustained{
		MPTS:              voice.Measure(float64(voiced) * step).Round(2),
		VoicedFrames:      voiced,
		F0Median:          voice.Missing(),
		SPLMedian:         voice.Missing(),
		HNRMedian:         voice.Missing(),
		FormantsSustained: block,
	}
	if rec == nil {
		return s
	}

	var f0, spl, hnr []float64
	for _, f := range rec.Frames {
		f0 = append(f0, f.F0)
		spl = append(spl, f.SPLDB)
		hnr = append(hnr, f.HNRDB)
	}
	s.File = rec.File()
	s.F0Median = voice.Measure(stats.Median(f0)).Round(2)
	s.SPLMedian = voice.Measure(stats.Median(spl)).Round(2)
	s.HNRMedian = voice.Measure(stats.Median(hnr)).Round(2)
	return s
}

// attachLegacy copies the phonation blocks into the sustained summary and derives the failure reasons
func (s *Sustained) attachLegacy(low, high anchor.FormantBlock) {
	s.FormantsLow = low
	s.FormantsHigh = high
	s.ReasonLow = failureReason(low)
	s.ReasonHigh = failureReason(high)
	s.ReasonSustained = failureReason(s.FormantsSustained)
	s.Failed = s.ReasonLow != "" || s.ReasonHigh != "" || s.ReasonSustained != ""
}

func failureReason(b anchor.FormantBlock) string {
	if !b.Failed() {
		return ""
	}
	return b.Reason
}

type questionnaireInput struct {
	RBH   map[string]any `json:"rbh"`
	OVHS9 []any          `json:"ovhs9"`
	TVQG  []any          `json:"tvqg"`
}

// ParseQuestionnaires scores the raw questionnaire answers. Nil input yields nil.
func ParseQuestionnaires(raw json.RawMessage) (*Questionnaires, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var in questionnaireInput
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("failed to decode questionnaires: %w", err)
	}

	q := &Questionnaires{
		OVHS9Total: voice.Unavailable[int](voice.ReasonIncompleteQuestionnaire),
		TVQGTotal:  voice.Unavailable[int](voice.ReasonIncompleteQuestionnaire),
	}
	if len(in.RBH) > 0 {
		q.RBH = make(map[string]any, len(in.RBH))
		for k, v := range in.RBH {
			if v != nil {
				q.RBH[k] = v
			}
		}
	}
	if total, ok := sumAnswers(in.OVHS9, ovhs9Items); ok {
		q.OVHS9Total = voice.Available(total)
	}
	if total, ok := sumAnswers(in.TVQG, tvqgItems); ok {
		q.TVQGTotal = voice.Available(total)
		q.TVQGPercent = fmt.Sprintf("%.0f%%", float64(total)*100/tvqgMax)
	}
	return q, nil
}

// sumAnswers totals the integer answers when exactly want of them are present
func sumAnswers(answers []any, want int) (int, bool) {
	total, n := 0, 0
	for _, a := range answers {
		num, ok := a.(json.Number)
		if !ok {
			continue
		}
		v, err := num.Int64()
		if err != nil {
			continue
		}
		total += int(v)
		n++
	}
	return total, n == want
}
