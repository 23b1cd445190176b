package voice

import "encoding/json"

// Status tags a Result
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
)

// Result is either an available value or an unavailable marker with a reason
// code. Consumers must go through Get, so a missing value cannot be read as a
// zero by accident.
type Result[T any] struct {
	value  T
	reason string
	ok     bool
}

// Available wraps a measured value
func Available[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Unavailable marks a missing value with its reason code
func Unavailable[T any](reason string) Result[T] {
	return Result[T]{reason: reason}
}

// UnavailableFrom marks a missing value using the reason code carried by err
func UnavailableFrom[T any](err error) Result[T] {
	return Result[T]{reason: ReasonOf(err)}
}

// Get returns the value and whether it is available
func (r Result[T]) Get() (T, bool) {
	return r.value, r.ok
}

// IsAvailable reports whether a value is present
func (r Result[T]) IsAvailable() bool {
	return r.ok
}

// Reason returns the reason code of an unavailable result
func (r Result[T]) Reason() string {
	return r.reason
}

// Status returns the tag
func (r Result[T]) Status() Status {
	if r.ok {
		return StatusAvailable
	}
	return StatusUnavailable
}

type resultWire[T any] struct {
	Status Status `json:"status" yaml:"status"`
	Value  *T     `json:"value,omitempty" yaml:"value,omitempty"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func (r Result[T]) wire() resultWire[T] {
	w := resultWire[T]{Status: r.Status(), Reason: r.reason}
	if r.ok {
		v := r.value
		w.Value = &v
	}
	return w
}

func (r Result[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

func (r *Result[T]) UnmarshalJSON(data []byte) error {
	var w resultWire[T]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Status == StatusAvailable && w.Value != nil {
		*r = Available(*w.Value)
		return nil
	}
	*r = Unavailable[T](w.Reason)
	return nil
}

// MarshalYAML mirrors the JSON shape
func (r Result[T]) MarshalYAML() (any, error) {
	return r.wire(), nil
}
