package ranker

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// model holds the K-head attention weights. Each head projects the intent
// embedding into a query vector and every candidate embedding into a
// key/value pair, producing a softmax-weighted attention score; the heads'
// outputs are concatenated and reduced to a scalar by Wo.
type model struct {
	heads   int
	dim     int
	headDim int

	wq []*mat.Dense // heads x (headDim x dim)
	wk []*mat.Dense
	wv []*mat.Dense
	wo *mat.Dense // 1 x (heads*headDim)

	fusionAlpha float64
}

func newModel(heads, dim, headDim int, seed *seededRand) *model {
	m := &model{heads: heads, dim: dim, headDim: headDim, fusionAlpha: 0.7}
	m.wq = make([]*mat.Dense, heads)
	m.wk = make([]*mat.Dense, heads)
	m.wv = make([]*mat.Dense, heads)
	for h := 0; h < heads; h++ {
		m.wq[h] = randomDense(headDim, dim, seed)
		m.wk[h] = randomDense(headDim, dim, seed)
		m.wv[h] = randomDense(headDim, dim, seed)
	}
	m.wo = randomDense(1, heads*headDim, seed)
	return m
}

func randomDense(rows, cols int, seed *seededRand) *mat.Dense {
	data := make([]float64, rows*cols)
	scale := 1.0 / math.Sqrt(float64(cols))
	for i := range data {
		data[i] = seed.normal() * scale
	}
	return mat.NewDense(rows, cols, data)
}

func toVec(v []float32, dim int) *mat.VecDense {
	data := make([]float64, dim)
	for i := 0; i < dim && i < len(v); i++ {
		data[i] = float64(v[i])
	}
	return mat.NewVecDense(dim, data)
}

// attentionScore computes this model's fused attention output for one
// candidate against the intent embedding, given the full candidate set
// (needed for the softmax normalization across keys).
func (m *model) attentionScore(intent []float32, candidates [][]float32, idx int) float64 {
	q := toVec(intent, m.dim)

	headOutputs := make([]float64, 0, m.heads*m.headDim)
	for h := 0; h < m.heads; h++ {
		qh := mat.NewVecDense(m.headDim, nil)
		qh.MulVec(m.wq[h], q)

		logits := make([]float64, len(candidates))
		for j, c := range candidates {
			kj := mat.NewVecDense(m.headDim, nil)
			kj.MulVec(m.wk[h], toVec(c, m.dim))
			logits[j] = mat.Dot(qh, kj) / math.Sqrt(float64(m.headDim))
		}
		weights := softmax(logits)

		out := mat.NewVecDense(m.headDim, nil)
		out.MulVec(m.wv[h], toVec(candidates[idx], m.dim))
		out.ScaleVec(weights[idx], out)
		for i := 0; i < m.headDim; i++ {
			headOutputs = append(headOutputs, out.AtVec(i))
		}
	}

	concat := mat.NewVecDense(len(headOutputs), headOutputs)
	scoreVec := mat.NewVecDense(1, nil)
	scoreVec.MulVec(m.wo, concat)
	return scoreVec.AtVec(0)
}

func softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	if sum == 0 {
		for i := range out {
			out[i] = 1.0 / float64(len(out))
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// fuse combines the raw attention score with the candidate's track record
// (successRate), producing the final ranking score. Ties in the fused
// score are broken by successRate descending, then fqdn ascending, at the
// call site in Ranker.Rank.
func (m *model) fuse(attention, successRate float64) float64 {
	return m.fusionAlpha*sigmoid(attention) + (1-m.fusionAlpha)*successRate
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func (m *model) export() Parameters {
	p := Parameters{Heads: m.heads, Dim: m.dim, HeadDim: m.headDim, FusionAlpha: m.fusionAlpha}
	p.Wq = denseSliceAll(m.wq)
	p.Wk = denseSliceAll(m.wk)
	p.Wv = denseSliceAll(m.wv)
	p.Wo = append([]float64{}, m.wo.RawRowView(0)...)
	return p
}

func denseSliceAll(ds []*mat.Dense) [][]float64 {
	out := make([][]float64, len(ds))
	for i, d := range ds {
		r, c := d.Dims()
		flat := make([]float64, 0, r*c)
		for row := 0; row < r; row++ {
			flat = append(flat, d.RawRowView(row)...)
		}
		out[i] = flat
	}
	return out
}

func (m *model) importFrom(p Parameters) {
	m.heads, m.dim, m.headDim, m.fusionAlpha = p.Heads, p.Dim, p.HeadDim, p.FusionAlpha
	m.wq = denseFromFlat(p.Wq, m.headDim, m.dim)
	m.wk = denseFromFlat(p.Wk, m.headDim, m.dim)
	m.wv = denseFromFlat(p.Wv, m.headDim, m.dim)
	m.wo = mat.NewDense(1, len(p.Wo), append([]float64{}, p.Wo...))
}

func denseFromFlat(flat [][]float64, rows, cols int) []*mat.Dense {
	out := make([]*mat.Dense, len(flat))
	for i, f := range flat {
		out[i] = mat.NewDense(rows, cols, append([]float64{}, f...))
	}
	return out
}
