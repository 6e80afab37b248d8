package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docxingest/internal/config"
	"docxingest/internal/domain"
	"docxingest/internal/parser/openai"
	"docxingest/internal/port"
)

func newTestParser(serverURL string) *openai.Parser {
	return openai.NewParserWithEndpoint(&config.ParserProviderConfig{
		Provider:     "openai",
		APIKey:       "sk-test",
		DefaultModel: "gpt-4o",
		TimeoutSecs:  30,
	}, serverURL)
}

func TestOpenAIParser_ExtractFields_Success(t *testing.T) {
	modelText := `{"data":{"total":100.5},"confidence_scores":{"total":0.8}}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var reqBody map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.Equal(t, "gpt-4o", reqBody["model"])
		assert.Equal(t, "json_object", reqBody["response_format"].(map[string]interface{})["type"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": modelText}, "finish_reason": "stop"},
			},
		})
	}))
	defer server.Close()

	out, err := newTestParser(server.URL).ExtractFields(context.Background(), port.ExtractInput{OCRText: "Total 100.50"})
	require.NoError(t, err)
	assert.JSONEq(t, modelText, string(out.StructuredData))
	assert.Equal(t, "gpt-4o", out.ModelUsed)
}

func TestOpenAIParser_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := newTestParser(server.URL).ExtractFields(context.Background(), port.ExtractInput{OCRText: "x"})
	assert.ErrorContains(t, err, "no choices")
}

func TestOpenAIParser_UnreachableIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestParser(url).ExtractFields(context.Background(), port.ExtractInput{OCRText: "x"})
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}
