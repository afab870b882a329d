package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jobscout/jobscout/internal/config"
	"github.com/jobscout/jobscout/pkg/models"
)

// OpenAIProvider implements models.ScoreProvider via the chat completions API.
type OpenAIProvider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewOpenAIProvider(cfg config.OpenAIConfig) *OpenAIProvider {
	return &OpenAIProvider{cfg: cfg, client: &http.Client{}}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) Score(ctx context.Context, profile models.Profile, listing models.Listing) (models.ScoreResult, error) {
	body, err := json.Marshal(openAIRequest{
		Model: p.cfg.Model,
		Messages: []openAIMessage{
			{Role: "user", Content: buildPrompt(profile, listing)},
		},
		Temperature: 0,
	})
	if err != nil {
		return models.ScoreResult{}, fmt.Errorf("encoding request: %w", err)
	}

	u := p.cfg.BaseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return models.ScoreResult{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return models.ScoreResult{}, classifyCallError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ScoreResult{}, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return models.ScoreResult{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return models.ScoreResult{}, fmt.Errorf("%w: empty choices", ErrInvalidResponse)
	}

	return parseResult(parsed.Choices[0].Message.Content)
}

var _ models.ScoreProvider = (*OpenAIProvider)(nil)
