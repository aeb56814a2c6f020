package similarity

import "math"

const (
	weightTopic      = 0.4
	weightCause      = 0.3
	weightFigurative = 0.3

	maxEquivalenceBonus = 0.3
	minSharedTopics     = 2
)

type EquivalenceScores struct {
	Topic      float64 `json:"topic"`
	Cause      float64 `json:"cause"`
	Figurative float64 `json:"figurative"`
	Bonus      float64 `json:"bonus"`
}

// Equivalence scores whether two surface-dissimilar texts may still say the
// same thing.
func Equivalence(text1, text2 string) EquivalenceScores {
	return equivalence(analyze(text1), analyze(text2))
}

func equivalence(t1, t2 textInfo) EquivalenceScores {
	s := EquivalenceScores{
		Topic:      topicScore(t1, t2),
		Cause:      causeScore(t1, t2),
		Figurative: figurativeScore(t1, t2),
	}
	bonus := weightTopic*s.Topic + weightCause*s.Cause + weightFigurative*s.Figurative
	s.Bonus = math.Min(bonus, maxEquivalenceBonus)
	return s
}

func topicScore(t1, t2 textInfo) float64 {
	shared := 0
	for _, keywords := range topicGroups {
		if mentions(t1, keywords) && mentions(t2, keywords) {
			shared++
		}
	}
	if shared < minSharedTopics {
		return 0
	}
	return math.Min(0.25*float64(shared), 1)
}

func mentions(t textInfo, keywords []string) bool {
	for _, k := range keywords {
		if t.has(k) {
			return true
		}
	}
	return false
}

// causeScore rewards two texts that both state a causal relation, more so when
// one states it cause-first and the other effect-first.
func causeScore(t1, t2 textInfo) float64 {
	c1, e1 := t1.containsAny(causeFirstMarkers), t1.containsAny(effectFirstMarkers)
	c2, e2 := t2.containsAny(causeFirstMarkers), t2.containsAny(effectFirstMarkers)
	if !(c1 || e1) || !(c2 || e2) {
		return 0
	}
	if (c1 && e2) || (e1 && c2) {
		return 1
	}
	return 0.5
}

func figurativeScore(t1, t2 textInfo) float64 {
	for _, p := range paraphrasePairs {
		if matchesPair(t1, t2, p) || matchesPair(t2, t1, p) {
			return 1
		}
	}
	return 0
}

func matchesPair(fig, lit textInfo, p paraphrasePair) bool {
	if !fig.contains(p.figurative) || lit.contains(p.figurative) {
		return false
	}
	return lit.containsAny(p.literal)
}
