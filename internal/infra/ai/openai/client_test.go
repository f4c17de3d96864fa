package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/invoice-audit/internal/domain/ai"
	"github.com/bryanwahyu/invoice-audit/internal/domain/audit"
)

func completion(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("sk-test", "gpt-4o-mini", srv.URL+"/v1")
}

func profile() ai.SellerProfile {
	return ai.SellerProfile{
		DatasetID: "d1",
		Ratio:     audit.SellerRatio{SellerGSTIN: "S1", Ratio: audit.RatioOf(3, 2), Risk: audit.RiskHigh},
	}
}

func TestReviewSeller(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion(`{"risk":"high","findings":["ratio 1.5"],"actions":["pull GSTR-1"],"summary":"credit heavy"}`))
	})

	out, err := c.ReviewSeller(context.Background(), profile())
	require.NoError(t, err)

	var review map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &review))
	assert.Equal(t, "S1", review["gstin"], "gstin filled from the profile")
	assert.Equal(t, "high", review["risk"])
	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.Equal(t, float64(maxTokens), got["max_tokens"])
}

func TestReviewSellerQuota(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
	})

	_, err := c.ReviewSeller(context.Background(), profile())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ai.ErrQuotaExceeded))
}

func TestReviewSellerEmptyAnswer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion("  "))
	})

	_, err := c.ReviewSeller(context.Background(), profile())
	assert.ErrorIs(t, err, ai.ErrEmptyReview)
}

func TestIsReasoningModel(t *testing.T) {
	assert.True(t, isReasoningModel("o3-mini"))
	assert.True(t, isReasoningModel("gpt-5"))
	assert.False(t, isReasoningModel("gpt-4o-mini"))
}
