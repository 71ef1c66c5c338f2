package ranker

import "math/rand"

// seededRand wraps a *rand.Rand so model initialization is reproducible
// given a seed, matching the reproducibility requirement used elsewhere
// for the trace store's PER sampler.
type seededRand struct {
	r *rand.Rand
}

func newSeededRand(seed int64) *seededRand {
	return &seededRand{r: rand.New(rand.NewSource(seed))}
}

func (s *seededRand) normal() float64 {
	return s.r.NormFloat64()
}

// trainOn applies one simplified update step for the chosen candidate,
// moving toward a higher score on success and a lower one on failure,
// weighted by the example's PER priority. There is no backprop graph:
// every entry of Wo is shifted by the same amount, and fusionAlpha drifts
// as described below.
func (m *model) trainOn(example TrainingExample, learningRate float64) {
	if example.ChosenIndex < 0 || example.ChosenIndex >= len(example.Candidates) {
		return
	}
	embeddings := make([][]float32, len(example.Candidates))
	for i, c := range example.Candidates {
		embeddings[i] = c.Embedding
	}

	target := 1.0
	if !example.Success {
		target = 0.0
	}

	attention := m.attentionScore(example.IntentEmbedding, embeddings, example.ChosenIndex)
	predicted := sigmoid(attention)
	grad := (target - predicted) * learningRate * example.Priority

	// Shift every entry of the output projection by the same small step
	// (grad scaled by 0.01).
	r, c := m.wo.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.wo.Set(i, j, m.wo.At(i, j)+grad*0.01)
		}
	}

	// fusionAlpha drifts toward trusting attention more when it already
	// predicts success correctly, and toward trusting successRate more
	// otherwise.
	if (predicted >= 0.5) == example.Success {
		m.fusionAlpha = clamp(m.fusionAlpha+0.001*example.Priority, 0, 1)
	} else {
		m.fusionAlpha = clamp(m.fusionAlpha-0.001*example.Priority, 0, 1)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
