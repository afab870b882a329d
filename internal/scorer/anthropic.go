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

const anthropicBaseURL = "https://api.anthropic.com"
const anthropicVersion = "2023-06-01"

// AnthropicProvider implements models.ScoreProvider via the messages API.
type AnthropicProvider struct {
	cfg    config.AnthropicConfig
	client *http.Client
}

func NewAnthropicProvider(cfg config.AnthropicConfig) *AnthropicProvider {
	return &AnthropicProvider{cfg: cfg, client: &http.Client{}}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *AnthropicProvider) Score(ctx context.Context, profile models.Profile, listing models.Listing) (models.ScoreResult, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     p.cfg.Model,
		MaxTokens: 512,
		Messages: []anthropicMessage{
			{Role: "user", Content: buildPrompt(profile, listing)},
		},
	})
	if err != nil {
		return models.ScoreResult{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicBaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return models.ScoreResult{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return models.ScoreResult{}, classifyCallError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ScoreResult{}, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return models.ScoreResult{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" {
			return parseResult(block.Text)
		}
	}
	return models.ScoreResult{}, fmt.Errorf("%w: no text content", ErrInvalidResponse)
}

var _ models.ScoreProvider = (*AnthropicProvider)(nil)
