package scorer

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jobscout/jobscout/pkg/models"
)

const maxDescriptionChars = 6000

// buildPrompt renders the scoring instruction shared by all HTTP providers.
// The model is told to answer with a single JSON object and nothing else.
func buildPrompt(profile models.Profile, listing models.Listing) string {
	var b strings.Builder

	b.WriteString("You evaluate how well a job posting matches a candidate.\n\n")

	b.WriteString("Candidate profile:\n")
	fmt.Fprintf(&b, "- Summary: %s\n", profile.Summary)
	fmt.Fprintf(&b, "- Skills: %s\n", strings.Join(profile.Skills, ", "))
	fmt.Fprintf(&b, "- Years of experience: %d\n", profile.YearsExperience)
	fmt.Fprintf(&b, "- Preferred locations: %s\n", strings.Join(profile.Locations, ", "))
	fmt.Fprintf(&b, "- Desired roles: %s\n\n", strings.Join(profile.DesiredRoles, ", "))

	b.WriteString("Job posting:\n")
	fmt.Fprintf(&b, "- Title: %s\n", listing.Title)
	fmt.Fprintf(&b, "- Company: %s\n", listing.Company)
	fmt.Fprintf(&b, "- Location: %s\n", listing.Location)
	if listing.Description != nil {
		fmt.Fprintf(&b, "- Description: %s\n", truncate(*listing.Description, maxDescriptionChars))
	}

	b.WriteString("\nAnswer with exactly one JSON object, no prose, in this form:\n")
	b.WriteString(`{"score": <0-100 integer>, "recommendation": "apply"|"review"|"skip", "rationale": "<one or two sentences>"}`)

	return b.String()
}

// parseResult extracts the JSON object from a model answer and validates it.
// Models occasionally wrap the object in code fences or prose, so parsing
// starts at the first '{' and ends at the last '}'.
func parseResult(text string) (models.ScoreResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return models.ScoreResult{}, fmt.Errorf("%w: no JSON object in %q", ErrInvalidResponse, truncate(text, 200))
	}

	var result models.ScoreResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return models.ScoreResult{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if err := result.Validate(); err != nil {
		return models.ScoreResult{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return result, nil
}

// truncate cuts s to at most max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
