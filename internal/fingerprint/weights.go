package fingerprint

import (
	"math"

	"github.com/rotisserie/eris"
)

// Weights are the visibility score coefficients. They must sum to 1.
type Weights struct {
	MentionRate float64 `mapstructure:"mention_rate" yaml:"mention_rate"`
	Sentiment   float64 `mapstructure:"sentiment" yaml:"sentiment"`
	Confidence  float64 `mapstructure:"confidence" yaml:"confidence"`
	RankQuality float64 `mapstructure:"rank_quality" yaml:"rank_quality"`
}

// DefaultWeights favor mention rate and rank quality, the two signals
// that move most when a business gains or loses AI visibility.
func DefaultWeights() Weights {
	return Weights{
		MentionRate: 0.35,
		Sentiment:   0.25,
		Confidence:  0.15,
		RankQuality: 0.25,
	}
}

// Validate checks the weights form a convex combination.
func (w Weights) Validate() error {
	for _, v := range []float64{w.MentionRate, w.Sentiment, w.Confidence, w.RankQuality} {
		if v < 0 || v > 1 {
			return eris.New("fingerprint: each weight must be in [0,1]")
		}
	}
	sum := w.MentionRate + w.Sentiment + w.Confidence + w.RankQuality
	if math.Abs(sum-1.0) > 1e-9 {
		return eris.Errorf("fingerprint: weights must sum to 1.0, got %.4f", sum)
	}
	return nil
}
