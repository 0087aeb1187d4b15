// Package inference guesses a user's persona and vertical from profile text.
package inference

import (
	"context"
	"strings"

	"podcast-be/internal/domain"
)

// Inferrer produces a best-effort demographic guess. Implementations may
// use the provider access token to fetch extra signals.
type Inferrer interface {
	Infer(ctx context.Context, accessToken string, hints domain.DemographicHints) (domain.Demographics, error)
}

// specificKeywordLength marks keywords long enough to count double
const specificKeywordLength = 10

// KeywordInferrer scores taxonomy keywords against profile text
type KeywordInferrer struct {
	taxonomy *Taxonomy
}

// NewKeywordInferrer creates a keyword scorer over taxonomy
func NewKeywordInferrer(taxonomy *Taxonomy) *KeywordInferrer {
	return &KeywordInferrer{taxonomy: taxonomy}
}

// Infer never fails; it returns empty fields when nothing matches
func (k *KeywordInferrer) Infer(ctx context.Context, _ string, hints domain.DemographicHints) (domain.Demographics, error) {
	if err := ctx.Err(); err != nil {
		return domain.NoDemographics, err
	}

	result := domain.Demographics{
		Persona:  k.inferPersona(hints),
		Vertical: k.inferVertical(hints),
	}

	switch {
	case result.Persona != "" && result.Vertical != "":
		result.Confidence = domain.ConfidenceHigh
	case result.Persona != "" || result.Vertical != "":
		result.Confidence = domain.ConfidenceLow
	default:
		result.Confidence = domain.ConfidenceNone
	}
	return result, nil
}

func (k *KeywordInferrer) inferPersona(h domain.DemographicHints) string {
	if h.Title == "" && h.Headline == "" {
		return ""
	}
	return bestMatch(k.taxonomy.Personas, joinLower(h.Title, h.Headline))
}

func (k *KeywordInferrer) inferVertical(h domain.DemographicHints) string {
	// a known employer beats keyword scoring
	if company := strings.ToLower(h.Company); company != "" {
		for _, v := range k.taxonomy.Verticals {
			for _, c := range v.Companies {
				if strings.Contains(company, c) {
					return v.Name
				}
			}
		}
	}
	return bestMatch(k.taxonomy.Verticals, joinLower(h.Company, h.Industry, h.Title, h.Headline))
}

// bestMatch returns the highest scoring label, the earliest on ties, or "" if nothing scored
func bestMatch(labels []Label, text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	best, bestScore := "", 0
	for _, l := range labels {
		score := 0
		for _, kw := range l.Keywords {
			if strings.Contains(text, kw) {
				if len(kw) > specificKeywordLength {
					score += 2
				} else {
					score++
				}
			}
		}
		if score > bestScore {
			best, bestScore = l.Name, score
		}
	}
	return best
}

func joinLower(parts ...string) string {
	return strings.ToLower(strings.Join(parts, " "))
}
