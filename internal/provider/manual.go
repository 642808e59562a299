package provider

import "context"

// ManualName is the registry name of the manual provider.
const ManualName = "manual"

// ManualErrorMessage is the deterministic failure every manual generation
// reports. The video is produced out-of-band and uploaded by an operator.
const ManualErrorMessage = "manual generation required: provider has no API"

// Manual is the adapter for vendors without a programmatic API. It always
// fails deterministically so the video row surfaces as awaiting an operator
// upload.
type Manual struct{}

// NewManual creates the manual provider.
func NewManual() *Manual {
	return &Manual{}
}

// Name returns the registry name.
func (m *Manual) Name() string {
	return ManualName
}

// GenerateVideo always reports an out-of-band generation failure.
func (m *Manual) GenerateVideo(_ context.Context, _ string, _ Request) Result {
	return Result{Error: ManualErrorMessage}
}

var _ Provider = (*Manual)(nil)
