package model

import (
	"fmt"
	"math"

	"github.com/samcharles93/committer/internal/safetensors"
	"github.com/samcharles93/committer/internal/tensor"
)

type attention struct {
	q, k, v, o tensor.Mat
	norm       []float32
}

type feedForward struct {
	wi, wi0, wi1, wo tensor.Mat
	norm             []float32
}

type encoderBlock struct {
	self attention
	ffn  feedForward
}

type decoderBlock struct {
	self  attention
	cross attention
	ffn   feedForward
}

// T5 is a T5-family encoder/decoder (T5 v1.0, v1.1, CodeT5). It is safe for
// concurrent use: every call allocates its own scratch space.
type T5 struct {
	cfg Config
	act func(float32) float32

	shared   tensor.Mat
	lmHead   *tensor.Mat
	encBias  tensor.Mat // [buckets, heads]
	decBias  tensor.Mat
	encFinal []float32
	decFinal []float32
	enc      []encoderBlock
	dec      []decoderBlock
}

var _ Seq2Seq = (*T5)(nil)

// TensorSource is the subset of a safetensors file the loader reads.
type TensorSource interface {
	Tensor(name string) (safetensors.TensorInfo, bool)
	ReadTensorF32(name string) ([]float32, safetensors.TensorInfo, error)
}

// LoadT5 reads every weight cfg requires from src. Missing tensors and shape
// disagreements fail with ErrBundleMismatch.
func LoadT5(cfg Config, src TensorSource) (*T5, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mats := make(map[string]tensor.Mat)
	for _, spec := range expectedTensors(cfg) {
		m, err := readMat(src, spec)
		if err != nil {
			return nil, err
		}
		mats[spec.Name] = m
	}
	vec := func(name string) []float32 { return mats[name].Data }

	m := &T5{
		cfg:      cfg,
		act:      activation(cfg.Act),
		shared:   mats[sharedEmbeddingName()],
		encBias:  mats[relBiasName(encoderStack)],
		decBias:  mats[relBiasName(decoderStack)],
		encFinal: vec(finalNormName(encoderStack)),
		decFinal: vec(finalNormName(decoderStack)),
		enc:      make([]encoderBlock, cfg.NumLayers),
		dec:      make([]decoderBlock, cfg.NumDecoderLayers),
	}
	if !cfg.TieWordEmbeddings {
		head := mats[lmHeadName()]
		m.lmHead = &head
	}

	attn := func(stack string, block, sub int, kind string) attention {
		return attention{
			q:    mats[attnName(stack, block, sub, kind, "q")],
			k:    mats[attnName(stack, block, sub, kind, "k")],
			v:    mats[attnName(stack, block, sub, kind, "v")],
			o:    mats[attnName(stack, block, sub, kind, "o")],
			norm: vec(layerNormName(stack, block, sub)),
		}
	}
	ffn := func(stack string, block, sub int) feedForward {
		return feedForward{
			wi:   mats[ffnName(stack, block, sub, "wi")],
			wi0:  mats[ffnName(stack, block, sub, "wi_0")],
			wi1:  mats[ffnName(stack, block, sub, "wi_1")],
			wo:   mats[ffnName(stack, block, sub, "wo")],
			norm: vec(layerNormName(stack, block, sub)),
		}
	}
	for i := range m.enc {
		m.enc[i] = encoderBlock{
			self: attn(encoderStack, i, 0, "SelfAttention"),
			ffn:  ffn(encoderStack, i, 1),
		}
	}
	for i := range m.dec {
		m.dec[i] = decoderBlock{
			self:  attn(decoderStack, i, 0, "SelfAttention"),
			cross: attn(decoderStack, i, 1, "EncDecAttention"),
			ffn:   ffn(decoderStack, i, 2),
		}
	}
	return m, nil
}

func readMat(src TensorSource, spec tensorSpec) (tensor.Mat, error) {
	name := spec.Name
	info, ok := src.Tensor(name)
	if !ok && name == sharedEmbeddingName() {
		// Some exports only keep the per-stack copy of the tied embedding.
		name = "encoder.embed_tokens.weight"
		info, ok = src.Tensor(name)
	}
	if !ok {
		return tensor.Mat{}, fmt.Errorf("%w: missing tensor %s", ErrBundleMismatch, spec.Name)
	}
	if !sameShape(info.Shape, spec.Shape) {
		return tensor.Mat{}, fmt.Errorf("%w: tensor %s has shape %v, want %v", ErrBundleMismatch, name, info.Shape, spec.Shape)
	}
	data, _, err := src.ReadTensorF32(name)
	if err != nil {
		return tensor.Mat{}, fmt.Errorf("%w: %v", ErrBundleMismatch, err)
	}
	rows, cols := 1, spec.Shape[0]
	if len(spec.Shape) == 2 {
		rows, cols = spec.Shape[0], spec.Shape[1]
	}
	return tensor.NewMatFromData(rows, cols, data)
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func activation(a Activation) func(float32) float32 {
	switch a {
	case ActGELU:
		return tensor.Gelu
	case ActGELUNew:
		return tensor.GeluTanh
	case ActSiLU:
		return tensor.Silu
	default:
		return func(x float32) float32 { return max(x, 0) }
	}
}

func (m *T5) Config() Config          { return m.cfg }
func (m *T5) DecoderStartID() int     { return m.cfg.DecoderStartTokenID }
func (m *T5) VocabSize() int          { return m.cfg.VocabSize }
func (m *T5) NewCache() *DecoderCache { return newDecoderCache(len(m.dec), m.cfg.inner()) }

func newDecoderCache(layers, inner int) *DecoderCache {
	return &DecoderCache{
		inner: inner,
		k:     make([][]float32, layers),
		v:     make([][]float32, layers),
	}
}

// scratch holds the per-call buffers for one position.
type scratch struct {
	h, q, k, v []float32
	attnOut    []float32
	proj       []float32
	ff0, ff1   []float32
	scores     []float32
	buckets    []int
}

func (m *T5) newScratch(maxKeys int) *scratch {
	d, inner, ff := m.cfg.DModel, m.cfg.inner(), m.cfg.DFF
	return &scratch{
		h:       make([]float32, d),
		q:       make([]float32, inner),
		k:       make([]float32, inner),
		v:       make([]float32, inner),
		attnOut: make([]float32, inner),
		proj:    make([]float32, d),
		ff0:     make([]float32, ff),
		ff1:     make([]float32, ff),
		scores:  make([]float32, maxKeys),
		buckets: make([]int, maxKeys),
	}
}

func (m *T5) checkIDs(ids []int) {
	for _, id := range ids {
		if id < 0 || id >= m.cfg.VocabSize {
			panic(fmt.Sprintf("token id out of range: %d", id))
		}
	}
}

// Encode runs the encoder over the whole input once and projects the
// cross-attention keys and values for every decoder layer.
func (m *T5) Encode(ids []int) (out *EncoderOutput, err error) {
	defer recoverExecution("encode", &err)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: encode: empty input", ErrModelExecution)
	}
	m.checkIDs(ids)

	n, d, inner := len(ids), m.cfg.DModel, m.cfg.inner()
	eps := m.cfg.LayerNormEps
	s := m.newScratch(n)

	x := make([][]float32, n)
	for i, id := range ids {
		x[i] = make([]float32, d)
		m.shared.RowTo(x[i], id)
	}

	q := make([]float32, n*inner)
	k := make([]float32, n*inner)
	v := make([]float32, n*inner)
	for bi := range m.enc {
		blk := &m.enc[bi]
		for i := range n {
			tensor.RMSNorm(s.h, x[i], blk.self.norm, eps)
			tensor.MatVec(q[i*inner:(i+1)*inner], &blk.self.q, s.h)
			tensor.MatVec(k[i*inner:(i+1)*inner], &blk.self.k, s.h)
			tensor.MatVec(v[i*inner:(i+1)*inner], &blk.self.v, s.h)
		}
		for i := range n {
			for j := range n {
				s.buckets[j] = relativeBucket(j-i, true, m.cfg.RelAttnBuckets, m.cfg.RelAttnMaxDistance)
			}
			m.attend(s.attnOut, q[i*inner:(i+1)*inner], k, v, n, &m.encBias, s.buckets[:n], s.scores)
			tensor.MatVec(s.proj, &blk.self.o, s.attnOut)
			tensor.Add(x[i], s.proj)
		}
		for i := range n {
			m.feedForward(x[i], &blk.ffn, s)
		}
	}
	for i := range n {
		tensor.RMSNorm(x[i], x[i], m.encFinal, eps)
	}

	out = &EncoderOutput{
		Len:    n,
		Hidden: x,
		crossK: make([][]float32, len(m.dec)),
		crossV: make([][]float32, len(m.dec)),
	}
	for l := range m.dec {
		ck := make([]float32, n*inner)
		cv := make([]float32, n*inner)
		for i := range n {
			tensor.MatVec(ck[i*inner:(i+1)*inner], &m.dec[l].cross.k, x[i])
			tensor.MatVec(cv[i*inner:(i+1)*inner], &m.dec[l].cross.v, x[i])
		}
		out.crossK[l], out.crossV[l] = ck, cv
	}
	return out, nil
}

// Decode returns the next-token logits after the decoder prefix. See
// Seq2Seq for the cache contract.
func (m *T5) Decode(ids []int, enc *EncoderOutput, cache *DecoderCache) (logits []float32, err error) {
	defer recoverExecution("decode", &err)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: decode: empty prefix", ErrModelExecution)
	}
	if enc == nil || len(enc.crossK) != len(m.dec) {
		return nil, fmt.Errorf("%w: decode: encoder output does not belong to this model", ErrModelExecution)
	}
	m.checkIDs(ids)
	if cache == nil {
		cache = m.NewCache()
	}
	if len(cache.k) != len(m.dec) || cache.inner != m.cfg.inner() {
		panic("decoder cache does not belong to this model")
	}

	s := m.newScratch(max(cache.n+len(ids), enc.Len))
	x := make([]float32, m.cfg.DModel)
	for _, id := range ids {
		m.decodeStep(x, id, enc, cache, s)
	}

	tensor.RMSNorm(x, x, m.decFinal, m.cfg.LayerNormEps)
	logits = make([]float32, m.cfg.VocabSize)
	if m.lmHead != nil {
		tensor.MatVec(logits, m.lmHead, x)
		return logits, nil
	}
	// Tied heads rescale before projecting back onto the embedding.
	tensor.Scale(x, float32(1/math.Sqrt(float64(m.cfg.DModel))))
	tensor.MatVec(logits, &m.shared, x)
	return logits, nil
}

// decodeStep consumes one token at position cache.Len() and leaves the
// pre-norm hidden state in x.
func (m *T5) decodeStep(x []float32, id int, enc *EncoderOutput, cache *DecoderCache, s *scratch) {
	inner, eps := m.cfg.inner(), m.cfg.LayerNormEps
	pos := cache.n
	keys := pos + 1

	m.shared.RowTo(x, id)
	for j := range keys {
		s.buckets[j] = relativeBucket(j-pos, false, m.cfg.RelAttnBuckets, m.cfg.RelAttnMaxDistance)
	}

	for l := range m.dec {
		blk := &m.dec[l]

		tensor.RMSNorm(s.h, x, blk.self.norm, eps)
		tensor.MatVec(s.q, &blk.self.q, s.h)
		tensor.MatVec(s.k, &blk.self.k, s.h)
		tensor.MatVec(s.v, &blk.self.v, s.h)
		cache.k[l] = append(cache.k[l], s.k...)
		cache.v[l] = append(cache.v[l], s.v...)
		if len(cache.k[l]) != keys*inner {
			panic("decoder cache length does not match position")
		}
		m.attend(s.attnOut, s.q, cache.k[l], cache.v[l], keys, &m.decBias, s.buckets[:keys], s.scores)
		tensor.MatVec(s.proj, &blk.self.o, s.attnOut)
		tensor.Add(x, s.proj)

		tensor.RMSNorm(s.h, x, blk.cross.norm, eps)
		tensor.MatVec(s.q, &blk.cross.q, s.h)
		m.attend(s.attnOut, s.q, enc.crossK[l], enc.crossV[l], enc.Len, nil, nil, s.scores)
		tensor.MatVec(s.proj, &blk.cross.o, s.attnOut)
		tensor.Add(x, s.proj)

		m.feedForward(x, &blk.ffn, s)
	}
	cache.n++
}

// attend computes multi-head attention of one query over n keys and values
// stored row-major with stride inner. T5 folds the 1/sqrt(d) scale into its
// weights, so scores are raw dot products plus the relative position bias.
func (m *T5) attend(dst, q, keys, values []float32, n int, bias *tensor.Mat, buckets []int, scores []float32) {
	heads, dkv := m.cfg.NumHeads, m.cfg.DKV
	inner := heads * dkv
	scores = scores[:n]
	for h := range heads {
		qh := q[h*dkv : (h+1)*dkv]
		for j := range n {
			sc := tensor.Dot(qh, keys[j*inner+h*dkv:j*inner+(h+1)*dkv])
			if bias != nil {
				sc += bias.Data[buckets[j]*bias.Stride+h]
			}
			scores[j] = sc
		}
		tensor.Softmax(scores)
		out := dst[h*dkv : (h+1)*dkv]
		clear(out)
		for j := range n {
			w := scores[j]
			vj := values[j*inner+h*dkv : j*inner+(h+1)*dkv]
			for c := range out {
				out[c] += w * vj[c]
			}
		}
	}
}

// feedForward applies the pre-norm FFN sublayer to x in place.
func (m *T5) feedForward(x []float32, f *feedForward, s *scratch) {
	tensor.RMSNorm(s.h, x, f.norm, m.cfg.LayerNormEps)
	if m.cfg.Gated {
		tensor.MatVec(s.ff0, &f.wi0, s.h)
		tensor.MatVec(s.ff1, &f.wi1, s.h)
		for i := range s.ff0 {
			s.ff0[i] = m.act(s.ff0[i]) * s.ff1[i]
		}
	} else {
		tensor.MatVec(s.ff0, &f.wi, s.h)
		for i := range s.ff0 {
			s.ff0[i] = m.act(s.ff0[i])
		}
	}
	tensor.MatVec(s.proj, &f.wo, s.ff0)
	tensor.Add(x, s.proj)
}

// relativeBucket maps a key-minus-query offset to one of numBuckets
// relative attention buckets. Half the buckets cover exact small offsets;
// the rest grow logarithmically up to maxDistance.
func relativeBucket(rel int, bidirectional bool, numBuckets, maxDistance int) int {
	bucket := 0
	if bidirectional {
		numBuckets /= 2
		if rel > 0 {
			bucket += numBuckets
		}
		if rel < 0 {
			rel = -rel
		}
	} else {
		rel = -min(rel, 0)
	}
	maxExact := numBuckets / 2
	if rel < maxExact {
		return bucket + rel
	}
	// float32 arithmetic matches the reference checkpoints' bucketing at
	// the boundaries.
	ratio := float32(math.Log(float64(float32(rel) / float32(maxExact))))
	span := float32(math.Log(float64(maxDistance) / float64(maxExact)))
	large := maxExact + int(ratio/span*float32(numBuckets-maxExact))
	return bucket + min(large, numBuckets-1)
}
