package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/pkg/types"
)

// fakeProvider is a scriptable provider for chain tests.
type fakeProvider struct {
	model string
	err   error
	calls int
}

func (f *fakeProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeProvider) GetModel() string { return f.model }

func retryableErr(model string) error {
	return &ProviderError{Provider: model, StatusCode: 503, Err: errors.New("upstream down")}
}

func newTestChain(primary, secondary Provider) (*FallbackController, *HealthTracker) {
	health := NewHealthTracker()
	params := config.DefaultParameters().Embedding
	return NewFallbackController(primary, secondary, NewLocalProvider(3), health, params), health
}

func TestEmbed_PrimaryHealthy(t *testing.T) {
	primary := &fakeProvider{model: "primary-model"}
	secondary := &fakeProvider{model: "secondary-model"}
	fc, _ := newTestChain(primary, secondary)

	res, err := fc.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, types.FallbackPrimary, res.FallbackLevel)
	assert.False(t, res.Provisional)
	assert.NotEmpty(t, res.ContextHash)
	assert.Equal(t, 0, secondary.calls)
}

func TestEmbed_StepsDownOnRetryableFailure(t *testing.T) {
	primary := &fakeProvider{model: "primary-model", err: retryableErr("primary-model")}
	secondary := &fakeProvider{model: "secondary-model"}
	fc, health := newTestChain(primary, secondary)

	res, err := fc.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, types.FallbackSecondary, res.FallbackLevel)
	assert.True(t, res.Provisional)
	assert.Equal(t, types.FallbackSecondary, fc.CurrentLevel())
	assert.Equal(t, 1, health.ConsecutiveFailures("primary-model"))
}

func TestEmbed_SecondarySuccessDoesNotResetLevel(t *testing.T) {
	primary := &fakeProvider{model: "primary-model", err: retryableErr("primary-model")}
	secondary := &fakeProvider{model: "secondary-model"}
	fc, health := newTestChain(primary, secondary)

	_, err := fc.Embed(context.Background(), "first")
	require.NoError(t, err)
	require.Equal(t, types.FallbackSecondary, fc.CurrentLevel())

	// Second call starts at the secondary; success there keeps the level.
	res, err := fc.Embed(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, types.FallbackSecondary, res.FallbackLevel)
	assert.Equal(t, types.FallbackSecondary, fc.CurrentLevel())
	assert.Equal(t, 0, health.ConsecutiveFailures("secondary-model"))
	assert.Equal(t, 1, primary.calls) // primary not retried on the query path
}

func TestGetNextProvider_WalksChain(t *testing.T) {
	primary := &fakeProvider{model: "primary-model", err: retryableErr("primary-model")}
	secondary := &fakeProvider{model: "secondary-model"}
	fc, _ := newTestChain(primary, secondary)

	// Drive the primary to maxRetries consecutive failures.
	for i := 0; i < config.DefaultParameters().Embedding.MaxRetries; i++ {
		_, _ = fc.Embed(context.Background(), "x")
	}

	next := fc.GetNextProvider("primary-model")
	require.NotNil(t, next)
	assert.Equal(t, "secondary-model", next.GetModel())

	// Past the end of the chain there is nothing left.
	assert.Nil(t, fc.GetNextProvider("local-hash"))
}

func TestEmbed_ChainExhaustedIsDegradedNotError(t *testing.T) {
	primary := &fakeProvider{model: "primary-model", err: retryableErr("primary-model")}
	secondary := &fakeProvider{model: "secondary-model", err: retryableErr("secondary-model")}
	health := NewHealthTracker()
	params := config.DefaultParameters().Embedding
	// No local provider: the chain can actually exhaust.
	fc := NewFallbackController(primary, secondary, nil, health, params)

	res, err := fc.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Nil(t, res.Vector)
	assert.Equal(t, types.FallbackDegraded, res.FallbackLevel)
	assert.Equal(t, types.FallbackDegraded, fc.CurrentLevel())
}

func TestEmbed_TerminalErrorStopsChain(t *testing.T) {
	primary := &fakeProvider{
		model: "primary-model",
		err:   &ProviderError{Provider: "primary-model", StatusCode: 401, Err: errors.New("bad key")},
	}
	secondary := &fakeProvider{model: "secondary-model"}
	fc, _ := newTestChain(primary, secondary)

	res, err := fc.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, types.FallbackDegraded, res.FallbackLevel)
	// Terminal means no rotation: the secondary is never consulted.
	assert.Equal(t, 0, secondary.calls)
	// And the level does not step down: the request was bad, not the provider.
	assert.Equal(t, types.FallbackPrimary, fc.CurrentLevel())
}

func TestEmbed_PrimarySuccessResetsLevel(t *testing.T) {
	primary := &fakeProvider{model: "primary-model", err: retryableErr("primary-model")}
	fc, _ := newTestChain(primary, &fakeProvider{model: "secondary-model"})

	_, _ = fc.Embed(context.Background(), "x")
	require.Equal(t, types.FallbackSecondary, fc.CurrentLevel())

	// Primary recovers; the probe path pulls the chain back up.
	primary.err = nil
	assert.True(t, fc.ProbePrimary(context.Background()))
	assert.Equal(t, types.FallbackPrimary, fc.CurrentLevel())
}

func TestRunPrimaryProbe_RecoversDegradedChain(t *testing.T) {
	primary := &fakeProvider{model: "primary-model", err: retryableErr("primary-model")}
	fc, _ := newTestChain(primary, &fakeProvider{model: "secondary-model"})

	_, _ = fc.Embed(context.Background(), "x")
	require.Equal(t, types.FallbackSecondary, fc.CurrentLevel())

	// Primary recovers before the loop starts; the periodic probe alone must
	// reset the level, with no further query traffic.
	primary.err = nil
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fc.RunPrimaryProbe(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return fc.CurrentLevel() == types.FallbackPrimary
	}, time.Second, 5*time.Millisecond)
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
		{403, false},
	}
	for _, tc := range cases {
		err := &ProviderError{StatusCode: tc.status, Err: errors.New("x")}
		assert.Equal(t, tc.want, IsRetryable(err), "status %d", tc.status)
	}
	assert.True(t, IsRetryable(context.DeadlineExceeded))
}

func TestContextHash_DetectsStaleness(t *testing.T) {
	h1 := ContextHash("some content", "model-a")
	h2 := ContextHash("some content", "model-b")
	h3 := ContextHash("other content", "model-a")
	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Equal(t, h1, ContextHash("some content", "model-a"))
}

func TestLocalProvider_DeterministicAndNormalized(t *testing.T) {
	p := NewLocalProvider(64)
	a, err := p.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	b, _ := p.Embed(context.Background(), "the quick brown fox")
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}
