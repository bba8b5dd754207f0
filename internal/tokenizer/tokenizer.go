// Package tokenizer converts text to token ids and back for the subword
// models shipped with HuggingFace checkpoints (byte-level BPE and
// SentencePiece Unigram).
package tokenizer

import "errors"

var (
	// ErrTokenization reports a malformed vocabulary or an undecodable id.
	ErrTokenization = errors.New("tokenization error")
	// ErrInputTooLong reports a prompt that exceeds the model's positional limit.
	ErrInputTooLong = errors.New("input too long")
)

// Tokenizer is the contract shared by the raw subword models and the Adapter.
//
// IDToToken and TokenToID are total: an id outside the vocabulary maps to ""
// and an unknown piece maps to UnknownID.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	IDToToken(id int) string
	TokenToID(tok string) int
	UnknownID() int
	VocabSize() int
}
