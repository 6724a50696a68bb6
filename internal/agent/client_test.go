package agent

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "")
	t.Setenv("AZURE_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_VERSION", "")
}

func TestHasCredentials(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		clearCredentials(t)
		require.False(t, HasCredentials())
	})

	t.Run("openai key", func(t *testing.T) {
		clearCredentials(t)
		t.Setenv("OPENAI_API_KEY", "sk-test")
		require.True(t, HasCredentials())
	})

	t.Run("azure pair", func(t *testing.T) {
		clearCredentials(t)
		t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
		t.Setenv("AZURE_OPENAI_API_KEY", "azure-key")
		require.True(t, HasCredentials())
	})

	t.Run("azure endpoint alone is not enough", func(t *testing.T) {
		clearCredentials(t)
		t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
		require.False(t, HasCredentials())
	})
}

func TestNewClientWithoutCredentials(t *testing.T) {
	clearCredentials(t)
	_, err := newClient()
	require.Error(t, err)
	require.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestAzurePathRewriteMiddleware(t *testing.T) {
	mw := azurePathRewriteMiddleware()

	next := func(r *http.Request) (*http.Response, error) {
		rec := httptest.NewRecorder()
		rec.Header().Set("X-Path", r.URL.Path)
		resp := rec.Result()
		resp.Request = r
		return resp, nil
	}

	t.Run("rewrites chat completions", func(t *testing.T) {
		body := `{"model": "gpt-4o", "messages": []}`
		req := httptest.NewRequest(http.MethodPost, "https://example.openai.azure.com/chat/completions", bytes.NewBufferString(body))

		resp, err := mw(req, next)
		require.NoError(t, err)
		require.Equal(t, "/openai/deployments/gpt-4o/chat/completions", resp.Request.URL.Path)

		got, err := io.ReadAll(resp.Request.Body)
		require.NoError(t, err)
		require.JSONEq(t, body, string(got))
	})

	t.Run("keeps proxy base path", func(t *testing.T) {
		body := `{"model": "gpt-4o"}`
		req := httptest.NewRequest(http.MethodPost, "https://proxy.example.com/api/v1/chat/completions", bytes.NewBufferString(body))

		resp, err := mw(req, next)
		require.NoError(t, err)
		require.Equal(t, "/api/v1/openai/deployments/gpt-4o/chat/completions", resp.Request.URL.Path)
	})

	t.Run("leaves other paths alone", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "https://example.com/models", nil)

		resp, err := mw(req, next)
		require.NoError(t, err)
		require.Equal(t, "/models", resp.Request.URL.Path)
	})

	t.Run("leaves requests without a model alone", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "https://example.com/chat/completions", bytes.NewBufferString(`{}`))

		resp, err := mw(req, next)
		require.NoError(t, err)
		require.Equal(t, "/chat/completions", resp.Request.URL.Path)
	})
}
