// Package logits turns a decode step's logits into the next token id.
package logits

import (
	"math"
	"math/rand"
	"slices"

	"github.com/samcharles93/committer/internal/tensor"
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Seed          int64
	Temperature   float32
	TopP          float32
	RepeatPenalty float32
	RepeatLastN   int
}

// Sampler picks one token per step. A Sampler belongs to a single
// generation: it carries the seeded random stream and scratch buffers.
type Sampler struct {
	rng       *rand.Rand
	cfg       SamplerConfig
	greedy    bool
	prob      []float64
	order     []int
	seenMark  []uint32
	seenEpoch uint32
	seenList  []int
}

// NewSampler returns a new sampler with the provided configuration.
func NewSampler(cfg SamplerConfig) *Sampler {
	greedy := cfg.Temperature <= 0
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	if cfg.RepeatPenalty <= 0 {
		cfg.RepeatPenalty = 1.0
	}
	if cfg.RepeatLastN <= 0 {
		cfg.RepeatLastN = 64
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: greedy,
	}
}

// Sample draws a single index from logits. The process is:
//
//  1. Penalise every distinct id among the last RepeatLastN entries of
//     recent (see Penalize).
//  2. With Temperature <= 0, return the arg-max; ties go to the lowest index.
//  3. Otherwise scale by 1/Temperature, softmax, keep the smallest
//     high-probability prefix whose mass reaches TopP, and draw from it
//     with the seeded random stream.
//
// logits is modified in place. The result is always in [0, len(logits)).
func (s *Sampler) Sample(logits []float32, recent []int) int {
	s.Penalize(logits, recent)
	if s.greedy {
		return tensor.Argmax(logits)
	}

	invTemp := 1 / float64(s.cfg.Temperature)
	maxv := float64(logits[tensor.Argmax(logits)])

	if cap(s.prob) < len(logits) {
		s.prob = make([]float64, len(logits))
	}
	prob := s.prob[:len(logits)]
	var sum float64
	for i, l := range logits {
		e := math.Exp((float64(l) - maxv) * invTemp)
		prob[i] = e
		sum += e
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return tensor.Argmax(logits)
	}
	for i := range prob {
		prob[i] /= sum
	}

	if s.cfg.TopP >= 1 {
		r := s.rng.Float64()
		var c float64
		for i, p := range prob {
			c += p
			if r < c {
				return i
			}
		}
		return len(prob) - 1
	}

	if cap(s.order) < len(prob) {
		s.order = make([]int, len(prob))
	}
	order := s.order[:len(prob)]
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case prob[a] > prob[b]:
			return -1
		case prob[a] < prob[b]:
			return 1
		default:
			return 0
		}
	})

	cut := len(order)
	var mass float64
	for i, id := range order {
		mass += prob[id]
		if mass >= float64(s.cfg.TopP) {
			cut = i + 1
			break
		}
	}

	r := s.rng.Float64() * mass
	var c float64
	for _, id := range order[:cut] {
		c += prob[id]
		if r < c {
			return id
		}
	}
	return order[cut-1]
}

// Penalize rescales the logit of every distinct id in the last RepeatLastN
// entries of recent: positive logits are divided by RepeatPenalty, the rest
// are multiplied by it.
func (s *Sampler) Penalize(logits []float32, recent []int) {
	if s.cfg.RepeatPenalty == 1 || len(recent) == 0 {
		return
	}
	start := max(len(recent)-s.cfg.RepeatLastN, 0)
	window := recent[start:]

	if len(s.seenMark) < len(logits) {
		s.seenMark = make([]uint32, len(logits))
	}
	s.seenEpoch++
	if s.seenEpoch == 0 {
		clear(s.seenMark)
		s.seenEpoch = 1
	}
	s.seenList = s.seenList[:0]

	for _, id := range window {
		if id >= 0 && id < len(logits) && s.seenMark[id] != s.seenEpoch {
			s.seenMark[id] = s.seenEpoch
			s.seenList = append(s.seenList, id)
		}
	}
	for _, id := range s.seenList {
		if logits[id] > 0 {
			logits[id] /= s.cfg.RepeatPenalty
		} else {
			logits[id] *= s.cfg.RepeatPenalty
		}
	}
}
