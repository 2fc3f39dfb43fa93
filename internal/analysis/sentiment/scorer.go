// Package sentiment scores the polarity of financial news text.
//
// Two offline models are provided, a weighted financial phrase lexicon and a
// token-level polarity model with negation handling, plus Combined which
// averages them. All scorers are deterministic for identical input.
package sentiment

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/seenimoa/stockpulse/pkg/models"
)

// Scorer maps text to a bounded sentiment score and classification.
type Scorer interface {
	Score(text string) models.SentimentResult
}

// ------------------------------------------------------------------
// Lexicon: weighted bullish / bearish financial phrases.
// ------------------------------------------------------------------

type weightedTerm struct {
	term   string
	weight float64
}

// Single words match whole tokens or their inflections ("surge" catches
// "surged", never "again" for "gain"). Phrases with a space match as
// lower-case substrings.
var bullishTerms = sortedTerms(map[string]float64{
	"bullish": 0.7, "rally": 0.6, "surge": 0.7, "soar": 0.7, "upbeat": 0.5,
	"growth": 0.4, "upgrade": 0.6, "outperform": 0.6, "record high": 0.7,
	"all-time high": 0.7, "beats estimate": 0.6, "beat": 0.5, "exceeds": 0.5,
	"strong": 0.4, "recovery": 0.5, "breakout": 0.6, "expansion": 0.4,
	"profit": 0.3, "dividend": 0.4, "buyback": 0.5, "gain": 0.4, "jump": 0.5,
	"boost": 0.4, "launch": 0.2, "partnership": 0.3, "approval": 0.4,
})

var bearishTerms = sortedTerms(map[string]float64{
	"bearish": 0.7, "crash": 0.8, "plunge": 0.7, "slump": 0.6, "tumble": 0.6,
	"downgrade": 0.6, "underperform": 0.6, "selloff": 0.7, "sell-off": 0.7,
	"weak": 0.4, "decline": 0.5, "loss": 0.4, "fall": 0.4, "drop": 0.4,
	"correction": 0.5, "default": 0.7, "fraud": 0.8, "lawsuit": 0.6,
	"investigation": 0.5, "probe": 0.5, "antitrust": 0.5, "recall": 0.5,
	"layoff": 0.5, "cut": 0.3, "miss": 0.5, "warning": 0.5, "concern": 0.3,
	"fine": 0.3, "outage": 0.5,
})

func sortedTerms(m map[string]float64) []weightedTerm {
	terms := make([]weightedTerm, 0, len(m))
	for term, w := range m {
		terms = append(terms, weightedTerm{term: term, weight: w})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].term < terms[j].term })
	return terms
}

// Lexicon scores text by the net weight of matched financial phrases.
type Lexicon struct{}

// Score implements Scorer.
func (Lexicon) Score(text string) models.SentimentResult {
	score, confidence := scoreLexicon(text)
	return models.SentimentResult{
		Score:          score,
		Classification: models.Classify(score),
		Confidence:     confidence,
	}
}

func scoreLexicon(text string) (score, confidence float64) {
	lower := strings.ToLower(text)
	tokens := tokenize(text)

	bull, bear := 0.0, 0.0
	matches := 0
	for _, t := range bullishTerms {
		if containsTerm(lower, tokens, t.term) {
			bull += t.weight
			matches++
		}
	}
	for _, t := range bearishTerms {
		if containsTerm(lower, tokens, t.term) {
			bear += t.weight
			matches++
		}
	}

	total := bull + bear
	if matches == 0 || total == 0 {
		return 0, 0.1 // no signal
	}

	score = (bull - bear) / total
	confidence = math.Min(float64(matches)*0.15+0.2, 0.85)
	return score, confidence
}

func containsTerm(lower string, tokens []string, term string) bool {
	if strings.Contains(term, " ") {
		return strings.Contains(lower, term)
	}
	for _, tok := range tokens {
		if inflects(tok, term) {
			return true
		}
	}
	return false
}

var inflections = []string{"s", "es", "d", "ed", "ing", "er", "ers", "est", "en", "ly", "ness"}

// inflects reports whether tok is term or a regular inflection of it,
// including a doubled final consonant ("dropped") and y to i ("rallies").
func inflects(tok, term string) bool {
	if tok == term {
		return true
	}
	var rest string
	switch {
	case strings.HasPrefix(tok, term):
		rest = tok[len(term):]
		if len(rest) > 1 && rest[0] == term[len(term)-1] {
			if r := rest[1:]; r == "ed" || r == "ing" || r == "er" || r == "ers" {
				return true
			}
		}
	case strings.HasSuffix(term, "y") && strings.HasPrefix(tok, term[:len(term)-1]+"i"):
		rest = tok[len(term):]
		return rest == "es" || rest == "ed"
	default:
		return false
	}
	for _, suffix := range inflections {
		if rest == suffix {
			return true
		}
	}
	return false
}

// ------------------------------------------------------------------
// Polarity: general-purpose word valences with negation and intensifiers.
// ------------------------------------------------------------------

var valences = map[string]float64{
	"good": 1.9, "great": 3.1, "excellent": 3.2, "positive": 2.6, "best": 3.2,
	"better": 1.9, "win": 2.8, "wins": 2.8, "success": 2.7, "successful": 2.8,
	"optimistic": 2.3, "confident": 2.2, "love": 3.2, "impressive": 2.6,
	"improve": 1.9, "improved": 2.1, "rise": 1.2, "rises": 1.2, "up": 0.6,
	"innovative": 2.0, "robust": 1.8, "record": 0.8, "happy": 2.7,
	"bad": -2.5, "worse": -2.1, "worst": -3.1, "poor": -2.1, "negative": -2.7,
	"fail": -2.5, "fails": -2.5, "failure": -2.6, "risk": -1.1, "risks": -1.1,
	"fear": -2.2, "fears": -2.2, "worry": -1.9, "worries": -1.9, "crisis": -3.1,
	"struggle": -1.6, "struggles": -1.6, "down": -0.7, "threat": -2.4,
	"uncertain": -1.4, "uncertainty": -1.4, "angry": -2.3, "disappointing": -2.2,
	"hurt": -2.4, "pessimistic": -2.4, "terrible": -3.1, "slow": -0.9,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "neither": true, "nor": true,
	"without": true, "isn't": true, "aren't": true, "wasn't": true, "weren't": true,
	"doesn't": true, "don't": true, "didn't": true, "won't": true, "can't": true,
	"cannot": true, "hardly": true,
}

var intensifiers = map[string]float64{
	"very": 1.3, "extremely": 1.5, "highly": 1.3, "sharply": 1.4,
	"significantly": 1.3, "slightly": 0.6, "somewhat": 0.7, "barely": 0.5,
}

// normalizeAlpha bounds the summed valence into (-1, 1) the way compound
// scores are normalised: x / sqrt(x² + alpha).
const normalizeAlpha = 15.0

// negationScope is how many tokens after a negation are flipped.
const negationScope = 3

// Polarity scores text from per-word valences.
type Polarity struct{}

// Score implements Scorer.
func (Polarity) Score(text string) models.SentimentResult {
	score, matches := scorePolarity(text)
	confidence := 0.1
	if matches > 0 {
		confidence = math.Min(float64(matches)*0.2+0.2, 0.9)
	}
	return models.SentimentResult{
		Score:          score,
		Classification: models.Classify(score),
		Confidence:     confidence,
	}
}

func scorePolarity(text string) (score float64, matches int) {
	tokens := tokenize(text)

	sum := 0.0
	negateFor := 0
	boost := 1.0
	for _, tok := range tokens {
		if negations[tok] {
			negateFor = negationScope
			continue
		}
		if m, ok := intensifiers[tok]; ok {
			boost = m
			continue
		}

		if v, ok := valences[tok]; ok {
			v *= boost
			if negateFor > 0 {
				v *= -0.74
			}
			sum += v
			matches++
		}
		boost = 1.0
		if negateFor > 0 {
			negateFor--
		}
	}

	if sum == 0 {
		return 0, matches
	}
	return sum / math.Sqrt(sum*sum+normalizeAlpha), matches
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
}

// ------------------------------------------------------------------
// Combined
// ------------------------------------------------------------------

// Combined averages the Lexicon and Polarity scores.
type Combined struct {
	lexicon  Lexicon
	polarity Polarity
}

// NewCombined returns the default scorer.
func NewCombined() *Combined {
	return &Combined{}
}

// Score implements Scorer.
func (c *Combined) Score(text string) models.SentimentResult {
	lex := c.lexicon.Score(text)
	pol := c.polarity.Score(text)

	score := clamp((lex.Score + pol.Score) / 2)
	return models.SentimentResult{
		Score:          score,
		Classification: models.Classify(score),
		Confidence:     (lex.Confidence + pol.Confidence) / 2,
		Components: map[string]float64{
			"lexicon":  lex.Score,
			"polarity": pol.Score,
		},
	}
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// ScoreArticle scores an article's title and description.
func ScoreArticle(s Scorer, a models.Article) models.ScoredArticle {
	res := s.Score(a.Text())
	scored := models.NewScoredArticle(a, res.Score)
	conf := res.Confidence
	scored.Confidence = &conf
	return scored
}

// Overall returns the mean of scores, or nil when there are none.
func Overall(scores []float64) *models.OverallSentiment {
	if len(scores) == 0 {
		return nil
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	avg := sum / float64(len(scores))
	return &models.OverallSentiment{
		Score:          avg,
		Classification: models.Classify(avg),
	}
}
