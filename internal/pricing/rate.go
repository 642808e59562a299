package pricing

import (
	"encoding/json"
	"fmt"
)

// Rate is a per-second price that may be audio-conditional. It unmarshals
// from either a plain JSON number or a {"withAudio": x, "withoutAudio": y}
// object, since vendors price audio tracks inconsistently.
type Rate struct {
	WithAudio    float64
	WithoutAudio float64
}

// FlatRate builds a Rate that does not depend on audio presence.
func FlatRate(v float64) *Rate {
	return &Rate{WithAudio: v, WithoutAudio: v}
}

// resolve picks the applicable rate for the measured audio presence.
// A nil rate resolves to zero; when the pair is ambiguous the without-audio
// value wins.
func (r *Rate) resolve(hasAudio bool) float64 {
	if r == nil {
		return 0
	}
	if hasAudio {
		return r.WithAudio
	}
	return r.WithoutAudio
}

type audioRatePair struct {
	WithAudio    float64 `json:"withAudio"`
	WithoutAudio float64 `json:"withoutAudio"`
}

// UnmarshalJSON accepts either form of the rate field.
func (r *Rate) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		r.WithAudio = n
		r.WithoutAudio = n
		return nil
	}

	var pair audioRatePair
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("pricing: rate must be a number or {withAudio, withoutAudio}: %w", err)
	}
	r.WithAudio = pair.WithAudio
	r.WithoutAudio = pair.WithoutAudio
	return nil
}

// MarshalJSON emits the object form when the rates differ and the plain
// number form otherwise.
func (r Rate) MarshalJSON() ([]byte, error) {
	if r.WithAudio == r.WithoutAudio {
		return json.Marshal(r.WithoutAudio)
	}
	return json.Marshal(audioRatePair{WithAudio: r.WithAudio, WithoutAudio: r.WithoutAudio})
}
