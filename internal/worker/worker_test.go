package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vidarena/generation-worker/internal/media"
	"github.com/vidarena/generation-worker/internal/mediapipe"
	"github.com/vidarena/generation-worker/internal/provider"
	"github.com/vidarena/generation-worker/internal/queue"
	"github.com/vidarena/generation-worker/internal/store"
)

type mockVideoRepo struct {
	mock.Mock
}

func (m *mockVideoRepo) GetByID(ctx context.Context, id uuid.UUID) (*store.Video, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*store.Video), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVideoRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockVideoRepo) MarkCompleted(ctx context.Context, id uuid.UUID, c store.Completion) error {
	return m.Called(ctx, id, c).Error(0)
}

func (m *mockVideoRepo) MarkFailed(ctx context.Context, id uuid.UUID, f store.Failure) error {
	return m.Called(ctx, id, f).Error(0)
}

func (m *mockVideoRepo) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type mockModelRepo struct {
	mock.Mock
}

func (m *mockModelRepo) GetByID(ctx context.Context, id uuid.UUID) (*store.Model, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*store.Model), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPipeline struct {
	mock.Mock
}

func (m *mockPipeline) DownloadAndUpload(ctx context.Context, sourceURL, id string) (mediapipe.UploadResult, error) {
	args := m.Called(ctx, sourceURL, id)
	return args.Get(0).(mediapipe.UploadResult), args.Error(1)
}

func (m *mockPipeline) GenerateThumbnail(ctx context.Context, src, id string) (mediapipe.ThumbnailResult, error) {
	args := m.Called(ctx, src, id)
	return args.Get(0).(mediapipe.ThumbnailResult), args.Error(1)
}

func (m *mockPipeline) Cleanup(ctx context.Context, paths ...string) {
	m.Called(ctx, paths)
}

type stubProvider struct {
	name   string
	result provider.Result
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) GenerateVideo(_ context.Context, _ string, _ provider.Request) provider.Result {
	return s.result
}

type workerFixture struct {
	videos   *mockVideoRepo
	models   *mockModelRepo
	pipeline *mockPipeline
	worker   *Worker
	job      queue.GenerationJob
	model    *store.Model
}

func newFixture(t *testing.T, prov provider.Provider) *workerFixture {
	t.Helper()

	videos := &mockVideoRepo{}
	models := &mockModelRepo{}
	pipeline := &mockPipeline{}

	rate := 0.07
	f := &workerFixture{
		videos:   videos,
		models:   models,
		pipeline: pipeline,
		worker:   New(videos, models, provider.NewRegistry(prov), pipeline, nil),
		job: queue.GenerationJob{
			JobID:        uuid.New(),
			VideoID:      uuid.New(),
			ComparisonID: uuid.New(),
			ModelID:      uuid.New(),
			Prompt:       "a red fox running through snow",
			Endpoint:     "vendor/model-v1",
			Provider:     prov.Name(),
		},
	}
	f.model = &store.Model{
		ID:            f.job.ModelID,
		Name:          "Model V1",
		Provider:      prov.Name(),
		Endpoint:      "vendor/model-v1",
		CostPerSecond: &rate,
	}
	return f
}

func (f *workerFixture) body(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(f.job)
	require.NoError(t, err)
	return b
}

func TestProcessJobCompletesVideo(t *testing.T) {
	prov := &stubProvider{
		name: "fal",
		result: provider.Result{
			Success:        true,
			VideoURL:       "https://vendor.example/out.mp4",
			GenerationTime: 42 * time.Second,
			RequestID:      "req-123",
			RawResponse:    json.RawMessage(`{"ok":true}`),
		},
	}
	f := newFixture(t, prov)
	ctx := context.Background()

	f.videos.On("GetByID", ctx, f.job.VideoID).Return(&store.Video{ID: f.job.VideoID, Status: store.StatusQueued}, nil)
	f.videos.On("MarkProcessing", ctx, f.job.VideoID).Return(nil)
	f.models.On("GetByID", ctx, f.job.ModelID).Return(f.model, nil)

	f.pipeline.On("DownloadAndUpload", ctx, "https://vendor.example/out.mp4", f.job.VideoID.String()).
		Return(mediapipe.UploadResult{
			URL:       "https://cdn.example/videos/x.mp4",
			Key:       "videos/x.mp4",
			FileSize:  1024,
			LocalPath: "/tmp/x.mp4",
			Metadata:  &media.Metadata{Duration: 5, Width: 1280, Height: 720, HasAudio: true},
		}, nil)
	f.pipeline.On("GenerateThumbnail", ctx, "/tmp/x.mp4", f.job.VideoID.String()).
		Return(mediapipe.ThumbnailResult{URL: "https://cdn.example/thumbnails/x.jpg", Key: "thumbnails/x.jpg"}, nil)
	f.pipeline.On("Cleanup", ctx, []string{"/tmp/x.mp4"}).Return()

	f.videos.On("MarkCompleted", ctx, f.job.VideoID, mock.MatchedBy(func(c store.Completion) bool {
		return c.VideoURL == "https://cdn.example/videos/x.mp4" &&
			c.ThumbnailKey == "thumbnails/x.jpg" &&
			c.Duration == 5 &&
			c.Width == 1280 &&
			c.Height == 720 &&
			c.Cost == 0.35 &&
			c.GenerationTime == 42 &&
			c.RequestID == "req-123"
	})).Return(nil)

	err := f.worker.ProcessJob(ctx, f.body(t))

	require.NoError(t, err)
	f.videos.AssertExpectations(t)
	f.pipeline.AssertExpectations(t)
}

func TestProcessJobSkipsDeletedVideo(t *testing.T) {
	f := newFixture(t, &stubProvider{name: "fal"})
	ctx := context.Background()

	f.videos.On("GetByID", ctx, f.job.VideoID).Return(nil, store.ErrVideoNotFound)

	err := f.worker.ProcessJob(ctx, f.body(t))

	require.NoError(t, err)
	f.videos.AssertNotCalled(t, "MarkProcessing", mock.Anything, mock.Anything)
	f.videos.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessJobSkipsFinalizedVideo(t *testing.T) {
	for _, status := range []store.VideoStatus{store.StatusCompleted, store.StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, &stubProvider{name: "fal"})
			ctx := context.Background()

			// A duplicate delivery after completion, or an operator
			// cancellation between enqueue and dequeue. Neither may
			// re-enter PROCESSING or reach the vendor.
			f.videos.On("GetByID", ctx, f.job.VideoID).
				Return(&store.Video{ID: f.job.VideoID, Status: status}, nil)

			err := f.worker.ProcessJob(ctx, f.body(t))

			require.NoError(t, err)
			f.videos.AssertNotCalled(t, "MarkProcessing", mock.Anything, mock.Anything)
			f.videos.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything)
			f.videos.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestProcessJobFinalizedDuringMarkProcessing(t *testing.T) {
	f := newFixture(t, &stubProvider{name: "fal"})
	ctx := context.Background()

	// The row finalizes between the status check and the update; the
	// guarded UPDATE matches nothing and the job skips.
	f.videos.On("GetByID", ctx, f.job.VideoID).
		Return(&store.Video{ID: f.job.VideoID, Status: store.StatusQueued}, nil)
	f.videos.On("MarkProcessing", ctx, f.job.VideoID).Return(store.ErrVideoNotFound)

	err := f.worker.ProcessJob(ctx, f.body(t))

	require.NoError(t, err)
	f.videos.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessJobVendorFailureIsRetryable(t *testing.T) {
	prov := &stubProvider{
		name:   "fal",
		result: provider.Failure("vendor said no", 3*time.Second),
	}
	f := newFixture(t, prov)
	ctx := context.Background()

	// A FAILED row is what a queue retry attempt sees; it must still be
	// processed rather than skipped.
	f.videos.On("GetByID", ctx, f.job.VideoID).
		Return(&store.Video{ID: f.job.VideoID, Status: store.StatusFailed}, nil)
	f.videos.On("MarkProcessing", ctx, f.job.VideoID).Return(nil)
	f.models.On("GetByID", ctx, f.job.ModelID).Return(f.model, nil)
	f.videos.On("MarkFailed", ctx, f.job.VideoID, mock.MatchedBy(func(fl store.Failure) bool {
		return fl.ErrorMessage == "vendor said no" && fl.GenerationTime == 3
	})).Return(nil)

	err := f.worker.ProcessJob(ctx, f.body(t))

	require.Error(t, err)
	assert.False(t, queue.IsNonRetryable(err))
	assert.Contains(t, err.Error(), "vendor said no")
	f.videos.AssertExpectations(t)
}

func TestProcessJobUnknownProviderDeadLetters(t *testing.T) {
	f := newFixture(t, &stubProvider{name: "fal"})
	f.job.Provider = "no-such-vendor"
	ctx := context.Background()

	f.videos.On("GetByID", ctx, f.job.VideoID).Return(&store.Video{ID: f.job.VideoID}, nil)
	f.videos.On("MarkProcessing", ctx, f.job.VideoID).Return(nil)
	f.models.On("GetByID", ctx, f.job.ModelID).Return(f.model, nil)
	f.videos.On("MarkFailed", ctx, f.job.VideoID, mock.Anything).Return(nil)

	err := f.worker.ProcessJob(ctx, f.body(t))

	require.Error(t, err)
	assert.True(t, queue.IsNonRetryable(err))
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestProcessJobMalformedPayloadDeadLetters(t *testing.T) {
	f := newFixture(t, &stubProvider{name: "fal"})

	err := f.worker.ProcessJob(context.Background(), []byte("{not json"))

	require.Error(t, err)
	assert.True(t, queue.IsNonRetryable(err))
}

func TestProcessJobMissingFieldsDeadLetters(t *testing.T) {
	f := newFixture(t, &stubProvider{name: "fal"})
	f.job.Prompt = ""

	err := f.worker.ProcessJob(context.Background(), f.body(t))

	require.Error(t, err)
	assert.True(t, queue.IsNonRetryable(err))
	f.videos.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestProcessJobPricingErrorStillCompletes(t *testing.T) {
	prov := &stubProvider{
		name: "fal",
		result: provider.Result{
			Success:  true,
			VideoURL: "https://vendor.example/out.mp4",
		},
	}
	f := newFixture(t, prov)
	// Resolution-dependent pricing with no dimensions anywhere: the cost
	// cannot be computed, but the video still completes.
	f.model.CostPerSecond = nil
	f.model.DefaultParameters = []byte(`{"pricing":{"type":"resolution_dependent","tiers":[{"width":1280,"height":720,"price":0.07,"pricingType":"per_second"}]}}`)
	ctx := context.Background()

	f.videos.On("GetByID", ctx, f.job.VideoID).Return(&store.Video{ID: f.job.VideoID}, nil)
	f.videos.On("MarkProcessing", ctx, f.job.VideoID).Return(nil)
	f.models.On("GetByID", ctx, f.job.ModelID).Return(f.model, nil)
	f.pipeline.On("DownloadAndUpload", ctx, mock.Anything, mock.Anything).
		Return(mediapipe.UploadResult{URL: "u", Key: "k", LocalPath: "/tmp/x.mp4"}, nil)
	f.pipeline.On("GenerateThumbnail", ctx, "/tmp/x.mp4", mock.Anything).
		Return(mediapipe.ThumbnailResult{URL: "tu", Key: "tk"}, nil)
	f.pipeline.On("Cleanup", ctx, mock.Anything).Return()
	f.videos.On("MarkCompleted", ctx, f.job.VideoID, mock.MatchedBy(func(c store.Completion) bool {
		return c.Cost == 0
	})).Return(nil)

	err := f.worker.ProcessJob(ctx, f.body(t))

	require.NoError(t, err)
	f.videos.AssertExpectations(t)
}

func TestProcessJobPipelineFailureIsRetryable(t *testing.T) {
	prov := &stubProvider{
		name: "fal",
		result: provider.Result{
			Success:  true,
			VideoURL: "https://vendor.example/out.mp4",
		},
	}
	f := newFixture(t, prov)
	ctx := context.Background()

	f.videos.On("GetByID", ctx, f.job.VideoID).Return(&store.Video{ID: f.job.VideoID}, nil)
	f.videos.On("MarkProcessing", ctx, f.job.VideoID).Return(nil)
	f.models.On("GetByID", ctx, f.job.ModelID).Return(f.model, nil)
	f.pipeline.On("DownloadAndUpload", ctx, mock.Anything, mock.Anything).
		Return(mediapipe.UploadResult{}, errors.New("connection reset"))
	f.videos.On("MarkFailed", ctx, f.job.VideoID, mock.Anything).Return(nil)

	err := f.worker.ProcessJob(ctx, f.body(t))

	require.Error(t, err)
	assert.False(t, queue.IsNonRetryable(err))
	f.videos.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessJobCompletedRowDeletedMidFlight(t *testing.T) {
	prov := &stubProvider{
		name: "fal",
		result: provider.Result{
			Success:  true,
			VideoURL: "https://vendor.example/out.mp4",
		},
	}
	f := newFixture(t, prov)
	ctx := context.Background()

	f.videos.On("GetByID", ctx, f.job.VideoID).Return(&store.Video{ID: f.job.VideoID}, nil)
	f.videos.On("MarkProcessing", ctx, f.job.VideoID).Return(nil)
	f.models.On("GetByID", ctx, f.job.ModelID).Return(f.model, nil)
	f.pipeline.On("DownloadAndUpload", ctx, mock.Anything, mock.Anything).
		Return(mediapipe.UploadResult{URL: "u", Key: "k", LocalPath: "/tmp/x.mp4"}, nil)
	f.pipeline.On("GenerateThumbnail", ctx, mock.Anything, mock.Anything).
		Return(mediapipe.ThumbnailResult{URL: "tu", Key: "tk"}, nil)
	f.pipeline.On("Cleanup", ctx, mock.Anything).Return()
	f.videos.On("MarkCompleted", ctx, f.job.VideoID, mock.Anything).Return(store.ErrVideoNotFound)

	err := f.worker.ProcessJob(ctx, f.body(t))

	require.NoError(t, err)
}

func TestProcessJobFailedRowDeletedMidFlightKeepsPrimaryError(t *testing.T) {
	prov := &stubProvider{
		name:   "fal",
		result: provider.Failure("vendor said no", time.Second),
	}
	f := newFixture(t, prov)
	ctx := context.Background()

	f.videos.On("GetByID", ctx, f.job.VideoID).Return(&store.Video{ID: f.job.VideoID}, nil)
	f.videos.On("MarkProcessing", ctx, f.job.VideoID).Return(nil)
	f.models.On("GetByID", ctx, f.job.ModelID).Return(f.model, nil)
	f.videos.On("MarkFailed", ctx, f.job.VideoID, mock.Anything).Return(store.ErrVideoNotFound)

	err := f.worker.ProcessJob(ctx, f.body(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "vendor said no")
}
