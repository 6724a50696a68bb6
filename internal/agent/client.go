package agent

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/a5c-ai/mcpml/internal/errs"
)

const defaultAzureAPIVersion = "2024-02-15-preview"

// HasCredentials reports whether agent tools can run at all: either the
// Azure OpenAI variable set or a plain OpenAI API key must be present.
func HasCredentials() bool {
	if os.Getenv("AZURE_OPENAI_ENDPOINT") != "" && os.Getenv("AZURE_OPENAI_API_KEY") != "" {
		return true
	}
	return os.Getenv("OPENAI_API_KEY") != ""
}

// newClient builds a chat completions client from the environment. Azure
// takes precedence when its endpoint and key are both set.
func newClient() (openai.Client, error) {
	endpoint := os.Getenv("AZURE_OPENAI_ENDPOINT")
	apiKey := os.Getenv("AZURE_OPENAI_API_KEY")
	if endpoint != "" && apiKey != "" {
		apiVersion := os.Getenv("OPENAI_API_VERSION")
		if apiVersion == "" {
			apiVersion = defaultAzureAPIVersion
		}
		baseURL := strings.TrimSuffix(endpoint, "/") + "/"
		return openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithQueryAdd("api-version", apiVersion),
			option.WithHeader("Api-Key", apiKey),
			option.WithMiddleware(azurePathRewriteMiddleware()),
		), nil
	}

	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return openai.Client{}, errs.Error{
			Reason: "Agent tools need credentials: set OPENAI_API_KEY, or AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_API_KEY.",
		}
	}
	return openai.NewClient(option.WithAPIKey(key)), nil
}

// azurePathRewriteMiddleware rewrites chat completion paths into the Azure
// deployment form, taking the deployment name from the request's model
// field. The base path is preserved so proxies keep working.
func azurePathRewriteMiddleware() option.Middleware {
	return func(r *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		const suffix = "chat/completions"
		if !strings.HasSuffix(strings.TrimPrefix(r.URL.Path, "/"), suffix) || r.Body == nil {
			return next(r)
		}

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r.Body); err != nil {
			return nil, err
		}
		r.Body = io.NopCloser(bytes.NewReader(buf.Bytes()))

		var payload struct {
			Model string `json:"model"`
		}
		if err := json.Unmarshal(buf.Bytes(), &payload); err != nil || payload.Model == "" {
			return next(r)
		}

		basePath := strings.TrimSuffix(r.URL.Path, suffix)
		basePath = strings.TrimRight(basePath, "/")
		r.URL.Path = basePath + "/openai/deployments/" + url.PathEscape(payload.Model) + "/" + suffix
		r.Body = io.NopCloser(bytes.NewReader(buf.Bytes()))
		return next(r)
	}
}
