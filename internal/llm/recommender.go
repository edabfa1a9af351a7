package llm

import (
	"bytes"
	"context"
	"iter"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/jonathan/pikflix/internal/logging"
	"github.com/jonathan/pikflix/internal/metrics"
	"github.com/jonathan/pikflix/internal/prompts"
	"github.com/jonathan/pikflix/internal/types"
)

// DefaultMaxSuggestions caps how many suggestions a request may produce.
const DefaultMaxSuggestions = 9

// Recommender turns a free-text request into an ordered list of suggestions.
// Failures never reach the caller: they are logged and produce no suggestions.
type Recommender struct {
	client Client
	max    int
}

// NewRecommender creates a Recommender. A max of zero or less uses
// DefaultMaxSuggestions.
func NewRecommender(client Client, maxSuggestions int) *Recommender {
	if maxSuggestions <= 0 {
		maxSuggestions = DefaultMaxSuggestions
	}
	return &Recommender{client: client, max: maxSuggestions}
}

// Max returns the suggestion cap.
func (r *Recommender) Max() int {
	return r.max
}

func (r *Recommender) prompt(key, query string) (string, error) {
	return prompts.Render(prompts.RecommendFile, key, map[string]string{
		"Count": strconv.Itoa(r.max),
		"Query": query,
	})
}

// Propose returns up to Max suggestions in the model's order.
func (r *Recommender) Propose(ctx context.Context, query string) []types.Suggestion {
	log := logging.Ctx(ctx)

	prompt, err := r.prompt(prompts.RecommendBatch, query)
	if err != nil {
		metrics.SourceFailures.Inc()
		log.Error().Err(err).Msg("failed to build recommendation prompt")
		return nil
	}

	text, err := r.client.GenerateJSON(ctx, prompt)
	if err != nil {
		metrics.SourceFailures.Inc()
		log.Warn().Err(err).Msg("recommendation source failed")
		return nil
	}

	suggestions, err := parseSuggestionArray(text)
	if err != nil {
		metrics.SourceFailures.Inc()
		log.Warn().Err(err).Int("response_bytes", len(text)).Msg("recommendation source returned malformed output")
		return nil
	}

	out := make([]types.Suggestion, 0, min(len(suggestions), r.max))
	for _, s := range suggestions {
		if !s.valid() {
			metrics.SourceSuggestions.WithLabelValues("malformed").Inc()
			continue
		}
		if len(out) == r.max {
			metrics.SourceSuggestions.WithLabelValues("dropped").Inc()
			continue
		}
		metrics.SourceSuggestions.WithLabelValues("accepted").Inc()
		out = append(out, s.suggestion())
	}
	return out
}

// ProposeStream yields suggestions as soon as each one is complete in the
// model output. The sequence is finite, holds at most Max items and can be
// ranged over once.
func (r *Recommender) ProposeStream(ctx context.Context, query string) iter.Seq[types.Suggestion] {
	return func(yield func(types.Suggestion) bool) {
		log := logging.Ctx(ctx)

		prompt, err := r.prompt(prompts.RecommendStream, query)
		if err != nil {
			metrics.SourceFailures.Inc()
			log.Error().Err(err).Msg("failed to build recommendation prompt")
			return
		}

		var (
			lines   lineSplitter
			full    strings.Builder
			emitted int
		)

		// emit returns false once the consumer stopped or the cap is reached.
		emit := func(line string) bool {
			s, ok := parseSuggestionLine(line)
			if !ok {
				if line != "" {
					metrics.SourceSuggestions.WithLabelValues("malformed").Inc()
				}
				return true
			}
			metrics.SourceSuggestions.WithLabelValues("accepted").Inc()
			emitted++
			if !yield(s) {
				return false
			}
			return emitted < r.max
		}

		for chunk, err := range r.client.StreamContent(ctx, prompt) {
			if err != nil {
				metrics.SourceFailures.Inc()
				log.Warn().Err(err).Int("emitted", emitted).Msg("recommendation stream failed")
				return
			}
			full.WriteString(chunk)
			for _, line := range lines.Push(chunk) {
				if !emit(line) {
					return
				}
			}
		}
		if rest := lines.Flush(); rest != "" {
			if !emit(rest) {
				return
			}
		}

		// Some responses ignore the line format and send a single array.
		if emitted == 0 {
			suggestions, err := parseSuggestionArray(full.String())
			if err != nil {
				return
			}
			for _, s := range suggestions {
				if !s.valid() {
					continue
				}
				metrics.SourceSuggestions.WithLabelValues("accepted").Inc()
				emitted++
				if !yield(s.suggestion()) || emitted >= r.max {
					return
				}
			}
		}
	}
}

// rawSuggestion tolerates the shapes models actually produce for year.
type rawSuggestion struct {
	Title  string          `json:"title"`
	Year   json.RawMessage `json:"year"`
	Reason string          `json:"reason"`
}

func (s rawSuggestion) valid() bool {
	return strings.TrimSpace(s.Title) != ""
}

func (s rawSuggestion) suggestion() types.Suggestion {
	return types.Suggestion{
		Title:  strings.TrimSpace(s.Title),
		Year:   parseYear(s.Year),
		Reason: strings.TrimSpace(s.Reason),
	}
}

// parseYear accepts 1999, "1999" and null. Anything else is unknown.
func parseYear(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && n > 0 {
			return &n
		}
	}
	return nil
}

func parseSuggestionArray(text string) ([]rawSuggestion, error) {
	var raw []rawSuggestion
	if err := json.Unmarshal([]byte(CleanJSONBlock(text)), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// parseSuggestionLine decodes one streamed line. Array punctuation and code
// fences around the object are ignored.
func parseSuggestionLine(line string) (types.Suggestion, bool) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "[")
	line = strings.TrimSuffix(line, "]")
	line = strings.TrimSuffix(strings.TrimSpace(line), ",")
	if !strings.HasPrefix(line, "{") {
		return types.Suggestion{}, false
	}
	var raw rawSuggestion
	if err := json.Unmarshal([]byte(line), &raw); err != nil || !raw.valid() {
		return types.Suggestion{}, false
	}
	return raw.suggestion(), true
}
