package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon/internal/engine"
	"github.com/beaconhq/beacon/internal/provider"
)

func TestChatAnswersQuery(t *testing.T) {
	f := newFixture(t)
	f.answerer.answer = "Grass is green."

	rec := f.do(t, http.MethodPost, "/api/chat", map[string]any{"query": "What color is grass?"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[chatResponse](t, rec)
	assert.Equal(t, "Grass is green.", resp.Answer)
	assert.Equal(t, 2, resp.Memory.Len())
}

func TestChatMemoryRoundTrip(t *testing.T) {
	f := newFixture(t)

	first := f.do(t, http.MethodPost, "/api/chat", map[string]any{"query": "first"})
	require.Equal(t, http.StatusOK, first.Code)

	// Echo the returned memory handle back verbatim.
	var raw struct {
		Memory json.RawMessage `json:"memory"`
	}
	require.NoError(t, json.NewDecoder(first.Body).Decode(&raw))

	body := fmt.Sprintf(`{"query":"second","memory":%s}`, raw.Memory)
	req := strings.NewReader(body)
	second := f.doRaw(t, http.MethodPost, "/api/chat", req)
	require.Equal(t, http.StatusOK, second.Code)

	resp := decodeBody[chatResponse](t, second)
	assert.Equal(t, 4, resp.Memory.Len())
}

func TestChatMalformedMemoryStartsFresh(t *testing.T) {
	f := newFixture(t)

	body := strings.NewReader(`{"query":"hello","memory":"not-a-turn-array"}`)
	rec := f.doRaw(t, http.MethodPost, "/api/chat", body)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[chatResponse](t, rec)
	assert.Equal(t, 2, resp.Memory.Len())
}

func TestChatEmptyQuery(t *testing.T) {
	f := newFixture(t)
	f.answerer.err = engine.ErrEmptyQuery

	rec := f.do(t, http.MethodPost, "/api/chat", map[string]any{"query": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatProviderUnavailable(t *testing.T) {
	f := newFixture(t)
	f.answerer.err = fmt.Errorf("wrapped: %w", provider.ErrUnavailable)

	rec := f.do(t, http.MethodPost, "/api/chat", map[string]any{"query": "hello"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "service_unavailable", resp.Error)
}

func TestChatUnknownChannel(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/chat", map[string]any{"query": "hello", "channel": "telegraph"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatInvalidJSON(t *testing.T) {
	f := newFixture(t)

	rec := f.doRaw(t, http.MethodPost, "/api/chat", strings.NewReader("{nope"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
