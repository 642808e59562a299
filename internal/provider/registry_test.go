package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider is a minimal Provider for registry tests.
type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) GenerateVideo(_ context.Context, _ string, _ Request) Result {
	return Result{Success: true, VideoURL: "https://example.com/" + s.name + ".mp4"}
}

func TestRegistry_Get(t *testing.T) {
	reg := NewRegistry(&stubProvider{name: "fal"}, &stubProvider{name: "runway"})

	p, err := reg.Get("fal")
	require.NoError(t, err)
	assert.Equal(t, "fal", p.Name())
}

func TestRegistry_Get_UnknownProvider(t *testing.T) {
	reg := NewRegistry(&stubProvider{name: "fal"})

	_, err := reg.Get("sora")
	require.ErrorIs(t, err, ErrUnknownProvider)
	assert.Contains(t, err.Error(), "sora")
	// The error names the known providers to make misconfiguration obvious.
	assert.Contains(t, err.Error(), "fal")
}

func TestRegistry_NamesSorted(t *testing.T) {
	reg := NewRegistry(
		&stubProvider{name: "runway"},
		&stubProvider{name: "fal"},
		&stubProvider{name: "manual"},
	)

	assert.Equal(t, []string{"fal", "manual", "runway"}, reg.Names())
}

func TestRegistry_All(t *testing.T) {
	reg := NewRegistry(&stubProvider{name: "runway"}, &stubProvider{name: "fal"})

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "fal", all[0].Name())
	assert.Equal(t, "runway", all[1].Name())
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	reg := NewRegistry(&stubProvider{name: "fal"})
	replacement := &stubProvider{name: "fal"}
	reg.Register(replacement)

	p, err := reg.Get("fal")
	require.NoError(t, err)
	assert.Same(t, Provider(replacement), p)
}

func TestManual_AlwaysFailsDeterministically(t *testing.T) {
	m := NewManual()

	first := m.GenerateVideo(context.Background(), "anything", Request{Prompt: "a cat"})
	second := m.GenerateVideo(context.Background(), "other", Request{})

	assert.False(t, first.Success)
	assert.Equal(t, ManualErrorMessage, first.Error)
	assert.Equal(t, first.Error, second.Error)
	assert.Empty(t, first.VideoURL)
}
