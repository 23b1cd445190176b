package anchor

import "github.com/RyanBlaney/voice-metrics/pkg/voice"

// FormantBlock is the flat formant record consumed by older report readers
type FormantBlock struct {
	F1         voice.Measure `json:"F1" yaml:"F1"`
	B1         voice.Measure `json:"B1" yaml:"B1"`
	F2         voice.Measure `json:"F2" yaml:"F2"`
	B2         voice.Measure `json:"B2" yaml:"B2"`
	F3         voice.Measure `json:"F3" yaml:"F3"`
	B3         voice.Measure `json:"B3" yaml:"B3"`
	F0Mean     voice.Measure `json:"f0_mean" yaml:"f0_mean"`
	SPLEstDBA  voice.Measure `json:"spl_dbA_est" yaml:"spl_dbA_est"`
	SourceFile string        `json:"source_file" yaml:"source_file"`
	Reason     string        `json:"reason" yaml:"reason"`
}

// Failed reports whether the block carries a failure reason
func (b FormantBlock) Failed() bool {
	return b.Reason != voice.ReasonSuccess
}

// LegacyBlock flattens an anchor result. Unavailable anchors produce
// missing measures and carry their reason code.
func LegacyBlock(r voice.Result[Anchor]) FormantBlock {
	a, ok := r.Get()
	if !ok {
		m := voice.Missing()
		return FormantBlock{
			F1: m, B1: m, F2: m, B2: m, F3: m, B3: m, F0Mean: m, SPLEstDBA: m,
			Reason: r.Reason(),
		}
	}
	return FormantBlock{
		F1:         a.F1,
		B1:         a.B1,
		F2:         a.F2,
		B2:         a.B2,
		F3:         a.F3,
		B3:         a.B3,
		F0Mean:     a.F0,
		SPLEstDBA:  a.SPL,
		SourceFile: a.File,
		Reason:     voice.ReasonSuccess,
	}
}
