package tokenizer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Adapter wraps a subword model with the checkpoint's post-processing: the
// special ids wrapped around every encoded input, the positional limit and
// the special tokens dropped when decoding generated text.
type Adapter struct {
	tok            Tokenizer
	prefix         []int
	suffix         []int
	skip           map[int]bool
	maxInputTokens int
	special        Special
}

// NewAdapter wraps tok without any post-processing. It is mostly useful for
// tests and for models that take raw segmentations.
func NewAdapter(tok Tokenizer) *Adapter {
	return &Adapter{tok: tok, skip: map[int]bool{}}
}

// Encode segments text and wraps it with the post-processor ids. It never
// truncates: inputs longer than MaxInputTokens fail with ErrInputTooLong.
func (a *Adapter) Encode(text string) ([]int, error) {
	body, err := a.tok.Encode(text)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(a.prefix)+len(body)+len(a.suffix))
	ids = append(ids, a.prefix...)
	ids = append(ids, body...)
	ids = append(ids, a.suffix...)
	if a.maxInputTokens > 0 && len(ids) > a.maxInputTokens {
		return nil, fmt.Errorf("%w: %d tokens, limit %d", ErrInputTooLong, len(ids), a.maxInputTokens)
	}
	return ids, nil
}

// Decode drops special tokens and returns the text of the remaining ids with
// word-boundary and byte markers resolved.
func (a *Adapter) Decode(ids []int) (string, error) {
	if len(a.skip) == 0 {
		return a.tok.Decode(ids)
	}
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if !a.skip[id] {
			kept = append(kept, id)
		}
	}
	return a.tok.Decode(kept)
}

func (a *Adapter) IDToToken(id int) string  { return a.tok.IDToToken(id) }
func (a *Adapter) TokenToID(tok string) int { return a.tok.TokenToID(tok) }
func (a *Adapter) UnknownID() int           { return a.tok.UnknownID() }
func (a *Adapter) VocabSize() int           { return a.tok.VocabSize() }

// MaxInputTokens is the encode limit; zero means unbounded.
func (a *Adapter) MaxInputTokens() int { return a.maxInputTokens }

// SetMaxInputTokens overrides the encode limit. Non-positive values disable it.
func (a *Adapter) SetMaxInputTokens(n int) { a.maxInputTokens = max(n, 0) }

// Special reports the reserved token names from tokenizer_config.json.
func (a *Adapter) Special() Special { return a.special }

// IsSpecial reports whether id is dropped on decode.
func (a *Adapter) IsSpecial(id int) bool { return a.skip[id] }

// NewStream starts an incremental decoder for one generation.
func (a *Adapter) NewStream() *Stream {
	return &Stream{dec: a}
}

// Stream turns generated ids into text fragments one id at a time. The
// concatenation of every fragment plus Flush equals Decode of all ids.
// Fragments never end inside a multi-byte character.
type Stream struct {
	dec     interface{ Decode([]int) (string, error) }
	ids     []int
	emitted string
}

// NewStream builds a Stream over any decoder.
func NewStream(dec interface{ Decode([]int) (string, error) }) *Stream {
	return &Stream{dec: dec}
}

// Next appends id and returns the newly completed text.
func (s *Stream) Next(id int) (string, error) {
	s.ids = append(s.ids, id)
	full, err := s.dec.Decode(s.ids)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(full, s.emitted) {
		// Context-dependent decoding rewrote earlier text; resync by
		// emitting nothing until the stream is flushed.
		return "", nil
	}
	pending := full[len(s.emitted):]
	if cut := completePrefix(pending); cut < len(pending) {
		pending = pending[:cut]
	}
	s.emitted += pending
	return pending, nil
}

// Flush returns whatever text has been held back.
func (s *Stream) Flush() (string, error) {
	full, err := s.dec.Decode(s.ids)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(full, s.emitted) {
		return "", fmt.Errorf("%w: stream decode diverged", ErrTokenization)
	}
	rest := full[len(s.emitted):]
	s.emitted = full
	return rest, nil
}

// Text is everything emitted so far.
func (s *Stream) Text() string { return s.emitted }

// completePrefix returns the length of the longest prefix of s that does not
// end in a truncated UTF-8 sequence.
func completePrefix(s string) int {
	end := len(s)
	for i := 1; i <= utf8.UTFMax && i <= len(s); i++ {
		start := len(s) - i
		if !utf8.RuneStart(s[start]) {
			continue
		}
		if !utf8.FullRuneInString(s[start:]) {
			end = start
		}
		break
	}
	return end
}
