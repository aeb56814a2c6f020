package similarity

const (
	equivalenceLow  = 0.2
	equivalenceHigh = 0.5
)

// Breakdown exposes every signal that went into a corrected score.
type Breakdown struct {
	RawCosine   float64           `json:"raw_cosine"`
	Base        float64           `json:"base"`
	Opposition  OppositionScores  `json:"opposition"`
	Reduction   float64           `json:"reduction"`
	Corrected   float64           `json:"corrected"`
	Equivalence EquivalenceScores `json:"equivalence"`
	Final       float64           `json:"final"`
}

// Scorer turns a raw cosine into a corrected similarity in [0,1]. It holds no
// state and is safe for concurrent use.
type Scorer struct{}

func NewScorer() *Scorer {
	return &Scorer{}
}

func (s *Scorer) Score(v1, v2 []float64, text1, text2 string) (float64, error) {
	b, err := s.Explain(v1, v2, text1, text2)
	if err != nil {
		return 0, err
	}
	return b.Final, nil
}

func (s *Scorer) Explain(v1, v2 []float64, text1, text2 string) (*Breakdown, error) {
	raw, err := Cosine(v1, v2)
	if err != nil {
		return nil, err
	}
	b := &Breakdown{RawCosine: raw, Base: clamp(raw, 0, 1)}
	t1, t2 := analyze(text1), analyze(text2)

	b.Opposition = opposition(raw, t1, t2)
	b.Reduction = Reduction(b.Opposition.Total)
	b.Corrected = b.Base * (1 - b.Reduction)

	score := b.Corrected
	if b.Base >= equivalenceLow && b.Base <= equivalenceHigh {
		b.Equivalence = equivalence(t1, t2)
		score += b.Equivalence.Bonus
	}
	b.Final = clamp(score, 0, 1)
	return b, nil
}

// Reduction maps an opposition score to the fraction of similarity removed:
// 40%..90% above 0.5, 10%..40% in (0.25, 0.5], nothing otherwise.
func Reduction(opp float64) float64 {
	switch {
	case opp > 0.5:
		return 0.4 + clamp((opp-0.5)/0.5, 0, 1)*0.5
	case opp > 0.25:
		return 0.1 + (opp-0.25)/0.25*0.3
	default:
		return 0
	}
}
