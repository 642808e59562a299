package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vidarena/generation-worker/internal/pricing"
)

// PricingKey is the reserved key inside a model's default parameters that
// holds the pricing config. It is stripped from the merged parameter bag
// before anything is sent to a vendor.
const PricingKey = "pricing"

// Model holds a video-generation model's stored configuration: which
// provider serves it, the endpoint to call, per-direction default
// parameters, and how its output is priced.
type Model struct {
	ID       uuid.UUID
	Name     string
	Provider string
	Endpoint string
	// CostPerSecond is the legacy flat rate used when no pricing config is
	// embedded in the defaults.
	CostPerSecond *float64
	// DefaultParameters is the raw JSONB defaults blob; see Defaults.
	DefaultParameters []byte
}

// Defaults is the parsed shape of a model's default-parameters blob.
// Direction keys hold vendor parameters for each generation mode;
// FieldMappings carries vendor-agnostic mapping hints applied before the
// direction defaults; the reserved pricing key is parsed separately.
type Defaults struct {
	TextToVideo   map[string]any  `json:"textToVideo"`
	ImageToVideo  map[string]any  `json:"imageToVideo"`
	FieldMappings map[string]any  `json:"fieldMappings"`
	Pricing       json.RawMessage `json:"pricing"`
}

// Defaults parses the model's default-parameters blob. A missing blob
// yields empty defaults, not an error.
func (m *Model) Defaults() (Defaults, error) {
	var d Defaults
	if len(m.DefaultParameters) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(m.DefaultParameters, &d); err != nil {
		return d, fmt.Errorf("store: parse default parameters for model %s: %w", m.Name, err)
	}
	return d, nil
}

// PricingConfig parses the pricing config embedded under the reserved key.
// Returns nil when the model has none, leaving the legacy rate to apply.
func (m *Model) PricingConfig() (*pricing.Config, error) {
	d, err := m.Defaults()
	if err != nil {
		return nil, err
	}
	if len(d.Pricing) == 0 {
		return nil, nil
	}
	var cfg pricing.Config
	if err := json.Unmarshal(d.Pricing, &cfg); err != nil {
		return nil, fmt.Errorf("store: parse pricing config for model %s: %w", m.Name, err)
	}
	return &cfg, nil
}

// FallbackRate returns the legacy per-second rate, or 0 when unset.
func (m *Model) FallbackRate() float64 {
	if m.CostPerSecond == nil {
		return 0
	}
	return *m.CostPerSecond
}
