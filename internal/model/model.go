// Package model holds the encoder/decoder transformers that back local
// generation. Weights are immutable after load; all per-call state lives in
// EncoderOutput and DecoderCache values owned by the caller.
package model

import (
	"errors"
	"fmt"
)

var (
	// ErrModelExecution reports any failure inside a forward pass.
	ErrModelExecution = errors.New("model execution error")
	// ErrBundleMismatch reports a model bundle whose parts disagree.
	ErrBundleMismatch = errors.New("model bundle mismatch")
)

// Seq2Seq is an encoder/decoder model family.
//
// Decode with a nil cache recomputes every position of ids. With a cache,
// ids are the positions the cache has not seen yet: the whole prefix on the
// first step, then only the newest token. Both forms return the logits for
// the last position of the prefix and agree within float tolerance.
type Seq2Seq interface {
	Encode(ids []int) (*EncoderOutput, error)
	NewCache() *DecoderCache
	Decode(ids []int, enc *EncoderOutput, cache *DecoderCache) ([]float32, error)
	DecoderStartID() int
	VocabSize() int
}

// EncoderOutput is the encoder's contextual representation of one input,
// plus the cross-attention keys and values every decoder layer derives from
// it. It is never modified after Encode returns.
type EncoderOutput struct {
	Len    int
	Hidden [][]float32 // [Len][DModel]
	crossK [][]float32 // per decoder layer, Len*inner
	crossV [][]float32
}

// DecoderCache holds per-layer self-attention keys and values for the
// decoder positions already consumed.
type DecoderCache struct {
	n     int
	inner int
	k     [][]float32
	v     [][]float32
}

// Len reports the number of decoder positions stored.
func (c *DecoderCache) Len() int { return c.n }

// recoverExecution converts a panic raised during a forward pass into
// ErrModelExecution.
func recoverExecution(op string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %s: %v", ErrModelExecution, op, r)
	}
}
