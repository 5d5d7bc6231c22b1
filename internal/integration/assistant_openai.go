package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAssistantBaseURL = "https://api.openai.com/v1"
	defaultAssistantModel   = "gpt-4o-mini"

	assistantSystemPrompt = "You are a flight-training scheduling assistant. Reply only with JSON matching the provided schema. " +
		"Suggest exactly 3 reschedule slots chosen from the candidate slots in the request."
)

// rescheduleOptionsSchema constrains the assistant to {"options":[...]}.
var rescheduleOptionsSchema = map[string]interface{}{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"options"},
	"properties": map[string]interface{}{
		"options": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"suggestedDate", "suggestedDuration", "weatherSummary", "reasoning", "confidenceScore"},
				"properties": map[string]interface{}{
					"suggestedDate":     map[string]interface{}{"type": "string", "description": "RFC 3339 start time in UTC"},
					"suggestedDuration": map[string]interface{}{"type": "integer", "description": "minutes"},
					"weatherSummary":    map[string]interface{}{"type": "string"},
					"reasoning":         map[string]interface{}{"type": "string"},
					"confidenceScore":   map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
				},
			},
		},
	},
}

// OpenAIAssistant calls an OpenAI-compatible chat completions endpoint with a
// strict JSON schema response format.
type OpenAIAssistant struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIAssistant constructs the assistant client.
func NewOpenAIAssistant(baseURL, apiKey, model string, timeout time.Duration) *OpenAIAssistant {
	if baseURL == "" {
		baseURL = defaultAssistantBaseURL
	}
	if model == "" {
		model = defaultAssistantModel
	}
	return &OpenAIAssistant{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  newHTTPClient(timeout),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string                 `json:"model"`
	Messages       []chatMessage          `json:"messages"`
	Temperature    float64                `json:"temperature"`
	ResponseFormat map[string]interface{} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt and returns the raw JSON text of the first choice.
func (a *OpenAIAssistant) Complete(ctx context.Context, prompt string) (string, error) {
	if a.apiKey == "" {
		return "", fmt.Errorf("assistant: api key not configured")
	}
	body, err := json.Marshal(chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: assistantSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		ResponseFormat: map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   "reschedule_options",
				"strict": true,
				"schema": rescheduleOptionsSchema,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode assistant request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build assistant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	var resp chatResponse
	if err := doJSON(ctx, a.client, req, &resp); err != nil {
		return "", fmt.Errorf("assistant completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("assistant completion: no choices returned")
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return "", fmt.Errorf("assistant completion refused: %s", msg.Refusal)
	}
	return msg.Content, nil
}
