package voice

import (
	"path"
	"strings"
)

// Task labels the vocal exercise a recording captures
type Task string

const (
	TaskNoise           Task = "noise"
	TaskCalibrationRead Task = "calibration_read"
	TaskStep1Other      Task = "step1_other"
	TaskVowelMPT        Task = "vowel_mpt"
	TaskGlideUp         Task = "glide_up"
	TaskGlideDown       Task = "glide_down"
	TaskGlideUnknown    Task = "glide_unknown"
	TaskSoftA           Task = "soft_a"
	TaskLoudA           Task = "loud_a"
	TaskStep4Unmapped   Task = "step4_unmapped"
	TaskRead            Task = "read"
	TaskFree            Task = "free"
	TaskUnknown         Task = "unknown"
)

// IsGlide reports whether the task is a directed pitch sweep used for the VRP
func (t Task) IsGlide() bool {
	return t == TaskGlideUp || t == TaskGlideDown
}

// IsSpeech reports whether the task is connected speech
func (t Task) IsSpeech() bool {
	return t == TaskRead || t == TaskFree
}

// ClassifyKey derives the task from a storage key shaped like
// "<session>/<step>/<step>_<n>.wav": the parent directory is the step id and the
// file stem picks the variant within steps 1, 3 and 4.
func ClassifyKey(key string) Task {
	if key == "" {
		return TaskUnknown
	}

	parts := strings.Split(strings.ReplaceAll(key, "\\", "/"), "/")
	if len(parts) < 2 {
		return TaskUnknown
	}
	step := parts[len(parts)-2]
	stem := strings.TrimSuffix(parts[len(parts)-1], path.Ext(parts[len(parts)-1]))

	switch step {
	case "1":
		switch stem {
		case "1_1":
			return TaskNoise
		case "1_2":
			return TaskCalibrationRead
		}
		return TaskStep1Other
	case "2":
		return TaskVowelMPT
	case "3":
		switch stem {
		case "3_1", "3_2":
			return TaskGlideUp
		case "3_3", "3_4":
			return TaskGlideDown
		}
		return TaskGlideUnknown
	case "4":
		switch stem {
		case "4_1":
			return TaskSoftA
		case "4_2":
			return TaskLoudA
		}
		return TaskStep4Unmapped
	case "5":
		return TaskRead
	case "6":
		return TaskFree
	}
	return TaskUnknown
}

// StepOf returns the step directory of a storage key, empty when absent
func StepOf(key string) string {
	parts := strings.Split(strings.ReplaceAll(key, "\\", "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}
