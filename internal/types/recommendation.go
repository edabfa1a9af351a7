package types

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// Suggestion is one title proposed by the recommendation source.
type Suggestion struct {
	Title  string `json:"title"`
	Year   *int   `json:"year,omitempty"`
	Reason string `json:"reason"`
}

// Candidate is a Suggestion stamped with its position in the source's output.
// Rank is 1-based and never changes for the lifetime of a request.
type Candidate struct {
	Title  string
	Year   *int
	Reason string
	Rank   int
}

// NewCandidate builds a Candidate from a Suggestion received at the given rank.
func NewCandidate(s Suggestion, rank int) Candidate {
	return Candidate{
		Title:  strings.TrimSpace(s.Title),
		Year:   s.Year,
		Reason: s.Reason,
		Rank:   rank,
	}
}

// FetchTask is a Candidate that must be fetched from the metadata provider.
// KnownID is set when the catalog holds a stale row for the title, which
// lets the fetch skip the title search.
type FetchTask struct {
	Candidate
	KnownID *int
}

// ResolvedItem is a Candidate that was turned into a full record.
type ResolvedItem struct {
	Record Movie
	Reason string
	Rank   int
}

// Recommendation is the wire form of a ResolvedItem.
type Recommendation struct {
	Movie
	Reason string `json:"reason"`
	Rank   int    `json:"rank"`
}

// NewRecommendation converts a ResolvedItem to its wire form.
func NewRecommendation(item ResolvedItem) Recommendation {
	return Recommendation{Movie: item.Record, Reason: item.Reason, Rank: item.Rank}
}

// RecommendationResponse is the batched response body.
type RecommendationResponse struct {
	Recommendations []Recommendation `json:"recommendations"`
	Query           string           `json:"query"`
}

// RecommendationRequest is the request body for both delivery modes.
type RecommendationRequest struct {
	Query string `json:"query" validate:"required,notblank"`
}

// Validate validates the RecommendationRequest using the validator.
func (r *RecommendationRequest) Validate() error {
	return newValidator().Struct(r)
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}
