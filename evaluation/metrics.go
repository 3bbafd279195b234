// Package evaluation scores agent answers with lightweight text heuristics
// and produces a JSON report over a test set.
package evaluation

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Metric names used in reports and weights.
const (
	MetricKeyword   = "keyword_score"
	MetricCoherence = "coherence_score"
	MetricRelevance = "relevance_score"
	MetricLength    = "length_score"
)

// Length bounds, in words, of an adequately sized answer.
const (
	MinWords = 20
	MaxWords = 500
)

// Weights maps metric names to their share of the overall score.
type Weights map[string]float64

// DefaultWeights favors keyword coverage and coherence.
var DefaultWeights = Weights{
	MetricKeyword:   0.3,
	MetricCoherence: 0.3,
	MetricRelevance: 0.2,
	MetricLength:    0.2,
}

// Metrics holds the scores of one answer. KeywordScore is nil when the test
// case lists no expected keywords.
type Metrics struct {
	KeywordScore   *float64 `json:"keyword_score,omitempty"`
	CoherenceScore float64  `json:"coherence_score"`
	RelevanceScore float64  `json:"relevance_score"`
	LengthScore    float64  `json:"length_score"`
	OverallScore   float64  `json:"overall_score"`
}

// Score computes every metric with DefaultWeights.
func Score(question, response string, keywords []string) Metrics {
	return ScoreWeighted(question, response, keywords, DefaultWeights)
}

// ScoreWeighted computes every metric and combines them with weights.
func ScoreWeighted(question, response string, keywords []string, weights Weights) Metrics {
	m := Metrics{
		CoherenceScore: Coherence(response),
		RelevanceScore: Relevance(question, response),
		LengthScore:    Length(response),
	}
	if len(keywords) > 0 {
		k := KeywordPresence(response, keywords)
		m.KeywordScore = &k
	}
	m.OverallScore = Overall(m.values(), weights)
	return m
}

func (m Metrics) values() map[string]float64 {
	v := map[string]float64{
		MetricCoherence: m.CoherenceScore,
		MetricRelevance: m.RelevanceScore,
		MetricLength:    m.LengthScore,
	}
	if m.KeywordScore != nil {
		v[MetricKeyword] = *m.KeywordScore
	}
	return v
}

// KeywordPresence returns the share of keywords contained in response,
// ignoring case. No keywords scores 1.
func KeywordPresence(response string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 1
	}
	lower := strings.ToLower(response)
	found := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			found++
		}
	}
	return float64(found) / float64(len(keywords))
}

// Length scores the word count: linear below MinWords, decaying above
// MaxWords, 1 in between.
func Length(response string) float64 {
	n := len(strings.Fields(response))
	switch {
	case n < MinWords:
		return float64(n) / MinWords
	case n > MaxWords:
		return math.Max(0, 1-float64(n-MaxWords)/MaxWords)
	default:
		return 1
	}
}

// Coherence is a structural heuristic: sentence punctuation, adequate
// length, a capitalized start and limited repetition.
func Coherence(response string) float64 {
	if utf8.RuneCountInString(response) < 10 {
		return 0
	}

	score := 0.0
	if strings.ContainsAny(response, ".!?") {
		score += 0.3
	}
	words := strings.Fields(response)
	if len(words) >= MinWords && len(words) <= MaxWords {
		score += 0.3
	}
	if first, _ := utf8.DecodeRuneInString(response); unicode.IsUpper(first) {
		score += 0.2
	}
	if len(words) > 0 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[strings.ToLower(w)] = struct{}{}
		}
		if float64(len(unique))/float64(len(words)) > 0.5 {
			score += 0.2
		}
	}
	return math.Min(score, 1)
}

var (
	wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

	stopWords = map[string]struct{}{
		"what": {}, "is": {}, "the": {}, "a": {}, "an": {}, "how": {}, "why": {},
		"when": {}, "where": {}, "who": {}, "do": {}, "does": {}, "can": {}, "will": {},
	}
)

// Relevance is the share of question words (minus stop words) that appear
// in the response. A question without content words scores 0.5.
func Relevance(question, response string) float64 {
	qwords := wordSet(question)
	for w := range stopWords {
		delete(qwords, w)
	}
	if len(qwords) == 0 {
		return 0.5
	}
	rwords := wordSet(response)
	overlap := 0
	for w := range qwords {
		if _, ok := rwords[w]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(qwords))
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
		set[w] = struct{}{}
	}
	return set
}

// Overall is the weighted mean over the metrics present in values.
func Overall(values map[string]float64, weights Weights) float64 {
	var total, weight float64
	for name, v := range values {
		w, ok := weights[name]
		if !ok {
			continue
		}
		total += v * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return total / weight
}
