package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"github.com/RezaEskandarii/genfire/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake")

const (
	predictPath  = "/v1beta/models/" + DefaultModel + ":predict"
	fallbackPath = "/v1beta/models/" + DefaultFallbackModel + ":generateContent"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a, err := New(context.Background(), Config{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)
	return a
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(code int, status, message string) map[string]any {
	return map[string]any{"error": map[string]any{"code": code, "status": status, "message": message}}
}

func TestGenerate_GenerateImages(t *testing.T) {
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, predictPath, r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-goog-api-key"))

		var body struct {
			Instances []struct {
				Prompt string `json:"prompt"`
			} `json:"instances"`
			Parameters map[string]any `json:"parameters"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Instances, 1)
		assert.Equal(t, "a red fox", body.Instances[0].Prompt)
		assert.Equal(t, "16:9", body.Parameters["aspectRatio"])

		writeJSON(w, http.StatusOK, map[string]any{
			"predictions": []map[string]string{{
				"bytesBase64Encoded": base64.StdEncoding.EncodeToString(pngBytes),
				"mimeType":           "image/png",
			}},
		})
	})

	out, err := a.Generate(context.Background(), provider.Request{
		Prompt:  "a red fox",
		Options: map[string]any{"aspectRatio": "16:9"},
	})
	require.NoError(t, err)
	assert.Equal(t, pngBytes, out.Data)
	assert.Equal(t, "image/png", out.MediaType)
	assert.Equal(t, DefaultModel, out.ModelID)
}

func TestGenerate_FallsBackWhenModelUnavailable(t *testing.T) {
	var paths []string
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.HasSuffix(r.URL.Path, ":predict") {
			writeJSON(w, http.StatusNotFound, apiError(404, "NOT_FOUND",
				"models/imagen-3.0-generate-002 is not found for API version v1beta"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"role": "model", "parts": []map[string]any{
					{"text": "here you go"},
					{"inlineData": map[string]string{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString(pngBytes)}},
				}},
			}},
		})
	})

	out, err := a.Generate(context.Background(), provider.Request{Prompt: "a red fox"})
	require.NoError(t, err)
	assert.Equal(t, pngBytes, out.Data)
	assert.Equal(t, DefaultFallbackModel, out.ModelID)
	assert.Equal(t, []string{predictPath, fallbackPath}, paths)
}

func TestGenerate_QuotaDoesNotFallBack(t *testing.T) {
	calls := 0
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusTooManyRequests, apiError(429, "RESOURCE_EXHAUSTED",
			"Quota exceeded for metric: generate_requests_per_model_per_day, limit: 0"))
	})

	_, err := a.Generate(context.Background(), provider.Request{Prompt: "a red fox"})
	require.Error(t, err)
	assert.Equal(t, provider.QuotaExhausted, provider.ClassOf(err))
	assert.Equal(t, 1, calls)
}

func TestGenerate_RateLimited(t *testing.T) {
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, apiError(429, "RESOURCE_EXHAUSTED", "Resource has been exhausted (e.g. check quota)."))
	})

	_, err := a.Generate(context.Background(), provider.Request{Prompt: "a red fox"})
	assert.Equal(t, provider.RateLimited, provider.ClassOf(err))
}

func TestGenerate_BadRequestIsPermanent(t *testing.T) {
	calls := 0
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusBadRequest, apiError(400, "INVALID_ARGUMENT", "Invalid aspect ratio"))
	})

	_, err := a.Generate(context.Background(), provider.Request{Prompt: "a red fox"})
	assert.Equal(t, provider.Permanent, provider.ClassOf(err))
	assert.Equal(t, 1, calls)
}

func TestGenerate_FilteredPrompt(t *testing.T) {
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	_, err := a.Generate(context.Background(), provider.Request{Prompt: "something blocked"})
	assert.Equal(t, provider.Permanent, provider.ClassOf(err))
}

func TestGenerate_TransportFailureIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a, err := New(context.Background(), Config{APIKey: "k", BaseURL: url}, nil, nil)
	require.NoError(t, err)

	_, err = a.Generate(context.Background(), provider.Request{Prompt: "a red fox"})
	require.Error(t, err)
	assert.Equal(t, provider.Unknown, provider.ClassOf(err))
}
