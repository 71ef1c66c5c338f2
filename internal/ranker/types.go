// Package ranker implements SHGAT (C6): a small multi-head attention model
// that fuses intent-embedding similarity with a capability's track record
// into a single ranking score, trained incrementally from sampled traces.
package ranker

// Candidate is one capability under consideration for a ranking query.
type Candidate struct {
	FQDN            string
	Embedding       []float32
	SuccessRate     float64
	UsageCount      int64
	RecencyWeight   float64 // 1.0 = used just now, decays toward 0
}

// Scored is a ranked candidate with its fused score.
type Scored struct {
	Candidate
	AttentionScore float64
	FusedScore     float64
}

// TrainingExample is one supervised signal extracted from a sampled trace:
// the intent embedding, the candidates considered, and which one the trace
// shows succeeded (or a negative example when success is false).
type TrainingExample struct {
	IntentEmbedding []float32
	Candidates      []Candidate
	ChosenIndex     int
	Success         bool
	Priority        float64
}

// Parameters is the serializable snapshot of a Model's learned weights,
// used for checkpoint import/export.
type Parameters struct {
	Heads        int
	Dim          int
	HeadDim      int
	Wq           [][]float64 // per head, HeadDim x Dim
	Wk           [][]float64
	Wv           [][]float64
	Wo           []float64 // Dim (heads*HeadDim) -> 1
	FusionAlpha  float64   // weight given to attention score vs successRate
}
