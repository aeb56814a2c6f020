package similarity

import (
	"math"
	"strings"
)

const (
	weightEmbedding  = 0.4
	weightStructural = 0.3
	weightNegation   = 0.2
	weightSentiment  = 0.1

	lowCosineCeiling     = 0.3
	structuralThreshold  = 0.6
	sentimentMagnitude   = 0.3
	sentimentDifference  = 0.5
	intensifierAmplifier = 1.5
)

type OppositionScores struct {
	Embedding  float64 `json:"embedding"`
	Structural float64 `json:"structural"`
	Negation   float64 `json:"negation"`
	Sentiment  float64 `json:"sentiment"`
	Total      float64 `json:"total"`
}

// Opposition scores how likely two texts mean opposite things given their raw
// cosine similarity.
func Opposition(rawCosine float64, text1, text2 string) OppositionScores {
	return opposition(rawCosine, analyze(text1), analyze(text2))
}

func opposition(raw float64, t1, t2 textInfo) OppositionScores {
	s := OppositionScores{
		Embedding:  embeddingOpposition(raw),
		Structural: structuralOpposition(t1, t2),
		Negation:   math.Abs(negationScore(t1) - negationScore(t2)),
		Sentiment:  sentimentOpposition(sentimentScore(t1), sentimentScore(t2)),
	}
	total := weightEmbedding*s.Embedding +
		weightStructural*s.Structural +
		weightNegation*s.Negation +
		weightSentiment*s.Sentiment
	s.Total = math.Min(total, 1)
	return s
}

func embeddingOpposition(raw float64) float64 {
	switch {
	case raw < 0:
		return math.Min(-raw, 1)
	case raw < lowCosineCeiling:
		return (lowCosineCeiling - raw) * 0.5
	default:
		return 0
	}
}

// structuralOpposition is the combined character and word overlap of two texts
// that look alike without being the same text.
func structuralOpposition(t1, t2 textInfo) float64 {
	if len(t1.words) == 0 || len(t2.words) == 0 || t1.sameWords(t2) {
		return 0
	}
	combined := (charOverlap(t1, t2) + wordOverlap(t1, t2)) / 2
	if combined <= structuralThreshold {
		return 0
	}
	return combined
}

func charOverlap(t1, t2 textInfo) float64 {
	total1, total2, shared := 0, 0, 0
	for r, c := range t1.letters {
		total1 += c
		if o, ok := t2.letters[r]; ok {
			shared += min(c, o)
		}
	}
	for _, c := range t2.letters {
		total2 += c
	}
	denom := max(total1, total2)
	if denom == 0 {
		return 0
	}
	return float64(shared) / float64(denom)
}

func wordOverlap(t1, t2 textInfo) float64 {
	union := len(t1.wordSet)
	shared := 0
	for w := range t2.wordSet {
		if t1.has(w) {
			shared++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// negationScore is in [0,1]; higher means more negation markers.
func negationScore(t textInfo) float64 {
	markers, prefixed, contrast := 0, 0, 0
	for _, w := range t.words {
		switch {
		case isNegationMarker(w):
			markers++
		case hasNegativePrefix(w):
			prefixed++
		}
		if _, ok := contrastWords[w]; ok {
			contrast++
		}
	}
	score := 0.5*float64(markers) + 0.3*float64(prefixed) + 0.2*float64(contrast)
	return math.Min(score, 1)
}

func isNegationMarker(w string) bool {
	if _, ok := negationMarkers[w]; ok {
		return true
	}
	return strings.HasSuffix(w, "n't")
}

func hasNegativePrefix(w string) bool {
	if _, ok := prefixExceptions[w]; ok {
		return false
	}
	for _, p := range negativePrefixes {
		if strings.HasPrefix(w, p) && len(w)-len(p) >= 4 {
			return true
		}
	}
	return false
}

// sentimentScore is a signed polarity in (-1,1).
func sentimentScore(t textInfo) float64 {
	sum := 0.0
	for i, w := range t.words {
		polarity := 0.0
		if _, ok := positiveWords[w]; ok {
			polarity = 1
		} else if _, ok := negativeWords[w]; ok {
			polarity = -1
		}
		if polarity == 0 {
			continue
		}
		for j := i - 1; j >= 0 && j >= i-2; j-- {
			prev := t.words[j]
			if _, ok := intensifiers[prev]; ok {
				polarity *= intensifierAmplifier
				continue
			}
			if isNegationMarker(prev) {
				polarity = -polarity
				break
			}
		}
		sum += polarity
	}
	return sum / (math.Abs(sum) + 1)
}

func sentimentOpposition(s1, s2 float64) float64 {
	if math.Abs(s1) <= sentimentMagnitude || math.Abs(s2) <= sentimentMagnitude {
		return 0
	}
	diff := math.Abs(s1 - s2)
	if diff <= sentimentDifference {
		return 0
	}
	return math.Min(diff/2, 1)
}
