// Package pricing computes the monetary cost of a generated video from a
// model's pricing configuration and the metrics measured after generation.
// It is pure: no I/O, no clock, deterministic for a given input.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Static errors for pricing calculation.
var (
	// ErrNoPricingConfig is returned when a model has neither a pricing
	// config nor a legacy per-second rate. Callers must treat this as
	// "cost unknown", not "cost is free".
	ErrNoPricingConfig = errors.New("pricing: no pricing config and no fallback rate")
	// ErrUnknownPricingKind is returned for an unrecognized config kind.
	ErrUnknownPricingKind = errors.New("pricing: unknown pricing model")
	// ErrResolutionRequired is returned when a resolution-dependent config
	// is evaluated without measured width and height.
	ErrResolutionRequired = errors.New("pricing: resolution-dependent config requires width and height")
	// ErrNoTiers is returned when a resolution-dependent config has an
	// empty tier table.
	ErrNoTiers = errors.New("pricing: resolution-dependent config has no tiers")
	// ErrNoRate is returned when a per-second variant omits its rate
	// field. Charging 0 for a misconfigured model would read as "free".
	ErrNoRate = errors.New("pricing: config is missing its rate")
)

// Kind discriminates the pricing config variants.
type Kind string

// Supported pricing kinds.
const (
	KindPerSecond           Kind = "per_second"
	KindBasePlusPerSecond   Kind = "base_plus_per_second"
	KindFlatRate            Kind = "flat_rate"
	KindResolutionDependent Kind = "resolution_dependent"
)

// TierPricingPerSecond marks a resolution tier as priced per second of video.
const TierPricingPerSecond = "per_second"

// Tier is one entry of a resolution-dependent price table. Width and Height
// describe the envelope the measured resolution must fit inside.
type Tier struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Price  float64 `json:"price"`
}

// Config is the tagged pricing configuration stored on a model. Kind selects
// the variant; the remaining fields are populated per variant.
type Config struct {
	Kind Kind `json:"type"`

	// per_second
	PricePerSecond *Rate `json:"pricePerSecond,omitempty"`

	// base_plus_per_second
	BasePrice           float64 `json:"basePrice,omitempty"`
	BaseDuration        float64 `json:"baseDuration,omitempty"`
	PricePerExtraSecond *Rate   `json:"pricePerExtraSecond,omitempty"`

	// flat_rate
	Price float64 `json:"price,omitempty"`

	// resolution_dependent
	Tiers       []Tier `json:"tiers,omitempty"`
	PricingType string `json:"pricingType,omitempty"` // "per_second" or "flat"
}

// Metrics carries the measured properties of a generated video. Duration is
// in seconds. Width and Height are zero when probing did not produce them.
type Metrics struct {
	Duration float64
	Width    int
	Height   int
	HasAudio bool
}

// Result is the outcome of a cost calculation. Err is informational: a
// non-nil Err always comes with Cost 0 and must not abort generation.
type Result struct {
	Cost   float64
	Detail string
	Err    error
}

// Calculate resolves cfg against the measured metrics and returns the cost.
// A nil cfg falls back to duration x fallbackRatePerSecond when the legacy
// rate is positive, and to a zero cost with ErrNoPricingConfig otherwise.
func Calculate(cfg *Config, m Metrics, fallbackRatePerSecond float64) Result {
	if cfg == nil {
		if fallbackRatePerSecond > 0 {
			return Result{
				Cost:   roundCost(m.Duration * fallbackRatePerSecond),
				Detail: fmt.Sprintf("legacy rate %.4f/s x %.2fs", fallbackRatePerSecond, m.Duration),
			}
		}
		return Result{Err: ErrNoPricingConfig}
	}

	switch cfg.Kind {
	case KindPerSecond:
		if cfg.PricePerSecond == nil {
			return Result{Err: fmt.Errorf("%w: pricePerSecond", ErrNoRate)}
		}
		rate := cfg.PricePerSecond.resolve(m.HasAudio)
		return Result{
			Cost:   roundCost(m.Duration * rate),
			Detail: fmt.Sprintf("%.4f/s x %.2fs", rate, m.Duration),
		}

	case KindBasePlusPerSecond:
		if cfg.PricePerExtraSecond == nil {
			return Result{Err: fmt.Errorf("%w: pricePerExtraSecond", ErrNoRate)}
		}
		extra := m.Duration - cfg.BaseDuration
		if extra < 0 {
			extra = 0
		}
		rate := cfg.PricePerExtraSecond.resolve(m.HasAudio)
		return Result{
			Cost:   roundCost(cfg.BasePrice + extra*rate),
			Detail: fmt.Sprintf("base %.4f + %.4f/s x %.2fs extra", cfg.BasePrice, rate, extra),
		}

	case KindFlatRate:
		return Result{
			Cost:   roundCost(cfg.Price),
			Detail: "flat rate",
		}

	case KindResolutionDependent:
		return calculateTiered(cfg, m)

	default:
		return Result{Err: fmt.Errorf("%w: %q", ErrUnknownPricingKind, cfg.Kind)}
	}
}

// calculateTiered selects a resolution tier and prices the video against it.
// Tiers and the video are normalized to (longer, shorter) so orientation
// never affects selection. When no tier's envelope bounds the video, the
// largest tier is charged as overflow.
func calculateTiered(cfg *Config, m Metrics) Result {
	if len(cfg.Tiers) == 0 {
		return Result{Err: ErrNoTiers}
	}
	if m.Width <= 0 || m.Height <= 0 {
		return Result{Err: ErrResolutionRequired}
	}

	vLong, vShort := normalize(m.Width, m.Height)

	tiers := make([]Tier, len(cfg.Tiers))
	copy(tiers, cfg.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].Width*tiers[i].Height < tiers[j].Width*tiers[j].Height
	})

	selected := tiers[len(tiers)-1] // overflow fallback
	overflow := true
	for _, t := range tiers {
		tLong, tShort := normalize(t.Width, t.Height)
		if vLong <= tLong && vShort <= tShort {
			selected = t
			overflow = false
			break
		}
	}

	detail := fmt.Sprintf("tier %dx%d", selected.Width, selected.Height)
	if overflow {
		detail += " (overflow)"
	}

	if cfg.PricingType == TierPricingPerSecond {
		return Result{
			Cost:   roundCost(selected.Price * m.Duration),
			Detail: fmt.Sprintf("%s %.4f/s x %.2fs", detail, selected.Price, m.Duration),
		}
	}
	return Result{
		Cost:   roundCost(selected.Price),
		Detail: detail + " flat",
	}
}

// normalize orders a dimension pair as (longer, shorter).
func normalize(w, h int) (int, int) {
	if w >= h {
		return w, h
	}
	return h, w
}

// roundCost rounds half-up at 4 decimal places. Applied exactly once per
// strategy so floating-point tails like 0.35000000000000003 never surface
// and rounding is never compounded.
func roundCost(v float64) float64 {
	return math.Round(v*10000) / 10000
}
