package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	embedErr    error
	failures    int         // number of calls that return embedErr before succeeding
	perText     [][]float32 // vectors to return, one per input document
	returnEmpty bool
	callCount   int
	lastInputs  []string
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(r api.Registry) {}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++

	m.lastInputs = nil
	for _, doc := range req.Input {
		if len(doc.Content) > 0 {
			m.lastInputs = append(m.lastInputs, doc.Content[0].Text)
		}
	}

	if m.embedErr != nil && (m.failures == 0 || m.callCount <= m.failures) {
		return nil, m.embedErr
	}

	resp := &ai.EmbedResponse{}
	for i := range req.Input {
		if m.returnEmpty {
			resp.Embeddings = append(resp.Embeddings, &ai.Embedding{Embedding: []float32{}})
			continue
		}
		vec := []float32{0.1, 0.2, 0.3}
		if i < len(m.perText) {
			vec = m.perText[i]
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{Embedding: vec})
	}
	return resp, nil
}

// fastRetry keeps backoff out of test runtime.
func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit text", errors.New("Resource has been exhausted: rate limit"), true},
		{"http 429", errors.New("googleapi: Error 429: quota exceeded"), true},
		{"http 500", errors.New("server error 500"), true},
		{"http 503", errors.New("503 service unavailable"), true},
		{"overloaded", errors.New("model is overloaded"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"timeout text", errors.New("request timeout"), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"validation", errors.New("invalid argument: bad request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := do(context.Background(), fastRetry(), func() error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustedBudgetWrapsErrUnavailable(t *testing.T) {
	calls := 0
	err := do(context.Background(), fastRetry(), func() error {
		calls++
		return errors.New("429 too many requests")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 4, calls) // initial attempt plus three retries
}

func TestDoNonRetryablePassesThrough(t *testing.T) {
	sentinel := errors.New("invalid argument")
	calls := 0
	err := do(context.Background(), fastRetry(), func() error {
		calls++
		return sentinel
	})

	require.ErrorIs(t, err, sentinel)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := do(ctx, RetryConfig{MaxRetries: 5, InitialInterval: time.Hour, MaxInterval: time.Hour}, func() error {
		calls++
		cancel()
		return errors.New("503 service unavailable")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	mock := &mockEmbedder{perText: [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}}
	e := NewEmbedder(mock, nil, fastRetry(), nil)

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second", "third"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 0, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1, 0}, vecs[1])
	assert.Equal(t, []float32{0, 0, 1}, vecs[2])
	assert.Equal(t, []string{"first", "second", "third"}, mock.lastInputs)
	assert.Equal(t, 1, mock.callCount) // single round trip for the batch
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	mock := &mockEmbedder{}
	e := NewEmbedder(mock, nil, fastRetry(), nil)

	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
	assert.Equal(t, 0, mock.callCount)
}

func TestEmbedBatchEmptyVectorFails(t *testing.T) {
	mock := &mockEmbedder{returnEmpty: true}
	e := NewEmbedder(mock, nil, fastRetry(), nil)

	_, err := e.EmbedBatch(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty embedding")
}

func TestEmbedTextRetriesThenSucceeds(t *testing.T) {
	mock := &mockEmbedder{
		embedErr: errors.New("503 service unavailable"),
		failures: 2,
	}
	e := NewEmbedder(mock, nil, fastRetry(), nil)

	vec, err := e.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 3, mock.callCount)
}

func TestEmbedTextValidationErrorNotRetried(t *testing.T) {
	mock := &mockEmbedder{embedErr: errors.New("invalid argument: bad input")}
	e := NewEmbedder(mock, nil, fastRetry(), nil)

	_, err := e.EmbedText(context.Background(), "hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, mock.callCount)
}
