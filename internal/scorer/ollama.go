package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/jobscout/jobscout/internal/config"
	"github.com/jobscout/jobscout/pkg/models"
)

// OllamaProvider implements models.ScoreProvider against a local Ollama server.
type OllamaProvider struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func NewOllamaProvider(cfg config.OllamaConfig) *OllamaProvider {
	return &OllamaProvider{cfg: cfg, client: &http.Client{}}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

func (p *OllamaProvider) Score(ctx context.Context, profile models.Profile, listing models.Listing) (models.ScoreResult, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:  p.cfg.Model,
		Prompt: buildPrompt(profile, listing),
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return models.ScoreResult{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return models.ScoreResult{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return models.ScoreResult{}, classifyCallError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ScoreResult{}, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var parsed ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return models.ScoreResult{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return parseResult(parsed.Response)
}

// classifyCallError maps transport errors onto scorer sentinels.
func classifyCallError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrScoreTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrScoreTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

var _ models.ScoreProvider = (*OllamaProvider)(nil)
