package voice

import (
	"path"
	"sort"
	"strings"
)

// Recording is the per-file output of the acoustic estimation engine
type Recording struct {
	// Key is the storage key or path the audio came from
	Key string `json:"key"`
	// Task overrides the task derived from Key when set
	Task       Task    `json:"task,omitempty"`
	SampleRate float64 `json:"sr_hz"`
	TimeStep   float64 `json:"time_step_s"`
	Frames     []Frame `json:"frames"`
	// Samples is optional decoded mono PCM used for the spectral envelope
	Samples []float64 `json:"samples,omitempty"`
}

// File returns the base name of the recording key
func (r *Recording) File() string {
	return path.Base(strings.ReplaceAll(r.Key, "\\", "/"))
}

// ResolvedTask returns the explicit task or the one derived from the key
func (r *Recording) ResolvedTask() Task {
	if r.Task != "" {
		return r.Task
	}
	return ClassifyKey(r.Key)
}

// VoicedCount returns the number of frames with a finite f0
func (r *Recording) VoicedCount() int {
	n := 0
	for _, f := range r.Frames {
		if f.Voiced() {
			n++
		}
	}
	return n
}

// ApplyCalibration fills SPLDB on every frame from its intensity
func (r *Recording) ApplyCalibration(c Calibration) {
	for i := range r.Frames {
		r.Frames[i].SPLDB = c.SPL(r.Frames[i].IntensityDB)
	}
}

// Segment is a half-open run [Start, End) of consecutive voiced frames
type Segment struct {
	Start int
	End   int
}

// SortedByTime returns a copy of frames in ascending time order. Frames
// sharing a timestamp keep their input order.
func SortedByTime(frames []Frame) []Frame {
	out := make([]Frame, len(frames))
	copy(out, frames)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// VoicedSegments splits the frame sequence into runs of consecutive voiced frames
func VoicedSegments(frames []Frame) []Segment {
	var segs []Segment
	start := -1
	for i, f := range frames {
		if f.Voiced() {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			segs = append(segs, Segment{Start: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		segs = append(segs, Segment{Start: start, End: len(frames)})
	}
	return segs
}
