// Package scorer integrates LLM providers that judge listing relevance
// against a candidate profile.
package scorer

import "errors"

var (
	ErrProviderUnavailable = errors.New("score provider unavailable")
	ErrScoreTimeout        = errors.New("score call timeout")
	ErrInvalidResponse     = errors.New("score provider returned invalid response")
)
