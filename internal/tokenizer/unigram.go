package tokenizer

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// metaspace is the SentencePiece word-boundary marker.
const metaspace = "▁"

// unkPenalty is subtracted from the lowest piece score to price characters
// the vocabulary cannot cover.
const unkPenalty = 10.0

// Unigram is a SentencePiece unigram tokenizer with Metaspace pre-tokenization
// and optional byte fallback. It is immutable after construction.
type Unigram struct {
	pieces       []string
	scores       []float64
	index        map[string]int
	isByte       []bool
	byteIDs      [256]int
	byteFallback bool
	unkID        int
	unkScore     float64
	maxPieceLen  int
	replacement  string
	addPrefix    bool
	added        map[int]bool
	specials     *specialMatcher
}

type unigramPiece struct {
	Piece string
	Score float64
}

func newUnigram(vocab []unigramPiece, unkID int, byteFallback bool, added []hfAddedToken, replacement string, addPrefix bool) (*Unigram, error) {
	if len(vocab) == 0 {
		return nil, fmt.Errorf("%w: empty unigram vocabulary", ErrTokenization)
	}
	if replacement == "" {
		replacement = metaspace
	}
	size := len(vocab)
	for _, at := range added {
		size = max(size, at.ID+1)
	}
	u := &Unigram{
		pieces:       make([]string, size),
		scores:       make([]float64, size),
		index:        make(map[string]int, size),
		isByte:       make([]bool, size),
		byteFallback: byteFallback,
		unkID:        unkID,
		replacement:  replacement,
		addPrefix:    addPrefix,
		added:        make(map[int]bool, len(added)),
	}
	for i := range u.byteIDs {
		u.byteIDs[i] = -1
	}

	minScore := math.Inf(1)
	for id, p := range vocab {
		u.pieces[id] = p.Piece
		u.scores[id] = p.Score
		if _, dup := u.index[p.Piece]; !dup {
			u.index[p.Piece] = id
		}
		if b, ok := parseBytePiece(p.Piece); ok {
			u.isByte[id] = true
			u.byteIDs[b] = id
			continue
		}
		u.maxPieceLen = max(u.maxPieceLen, len(p.Piece))
		minScore = min(minScore, p.Score)
	}
	if math.IsInf(minScore, 1) {
		minScore = 0
	}
	u.unkScore = minScore - unkPenalty

	addedText := make([]string, 0, len(added))
	for _, at := range added {
		if at.ID < 0 {
			return nil, fmt.Errorf("%w: negative id for added token %q", ErrTokenization, at.Content)
		}
		u.pieces[at.ID] = at.Content
		u.index[at.Content] = at.ID
		u.added[at.ID] = true
		addedText = append(addedText, at.Content)
	}
	u.specials = newSpecialMatcher(addedText)

	if unkID < 0 || unkID >= size {
		return nil, fmt.Errorf("%w: unk id %d outside vocabulary of %d", ErrTokenization, unkID, size)
	}
	return u, nil
}

// parseBytePiece recognises byte-fallback pieces of the form <0xNN>.
func parseBytePiece(p string) (byte, bool) {
	if len(p) != 6 || !strings.HasPrefix(p, "<0x") || p[5] != '>' {
		return 0, false
	}
	var v byte
	for _, c := range []byte(p[3:5]) {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= c - '0'
		case c >= 'A' && c <= 'F':
			v |= c - 'A' + 10
		case c >= 'a' && c <= 'f':
			v |= c - 'a' + 10
		default:
			return 0, false
		}
	}
	return v, true
}

func (u *Unigram) Encode(text string) ([]int, error) {
	var ids []int
	for i, part := range u.specials.split(text) {
		if part.isSpecial {
			ids = append(ids, u.index[part.text])
			continue
		}
		normalized := strings.ReplaceAll(part.text, " ", u.replacement)
		if u.addPrefix && i == 0 {
			normalized = u.replacement + normalized
		}
		for _, word := range splitMetaspace(normalized, u.replacement) {
			ids = u.segment(ids, word)
		}
	}
	return ids, nil
}

// splitMetaspace cuts s before every marker so each word starts with one.
func splitMetaspace(s, marker string) []string {
	var words []string
	start := 0
	for off := 1; off < len(s); {
		j := strings.Index(s[off:], marker)
		if j < 0 {
			break
		}
		cut := off + j
		words = append(words, s[start:cut])
		start = cut
		off = cut + len(marker)
	}
	if start < len(s) {
		words = append(words, s[start:])
	}
	return words
}

// segment appends the Viterbi-best segmentation of word to ids.
func (u *Unigram) segment(ids []int, word string) []int {
	n := len(word)
	best := make([]float64, n+1)
	from := make([]int, n+1)
	pick := make([]int, n+1)
	for i := 1; i <= n; i++ {
		best[i] = math.Inf(-1)
	}

	for i := 0; i < n; {
		_, runeLen := utf8.DecodeRuneInString(word[i:])
		if math.IsInf(best[i], -1) {
			i += runeLen
			continue
		}
		coveredRune := false
		for l := 1; l <= u.maxPieceLen && i+l <= n; l++ {
			id, ok := u.index[word[i:i+l]]
			if !ok || u.added[id] || u.isByte[id] {
				continue
			}
			if l == runeLen {
				coveredRune = true
			}
			if s := best[i] + u.scores[id]; s > best[i+l] {
				best[i+l], from[i+l], pick[i+l] = s, i, id
			}
		}
		if !coveredRune {
			if s := best[i] + u.unkScore; s > best[i+runeLen] {
				best[i+runeLen], from[i+runeLen], pick[i+runeLen] = s, i, -1
			}
		}
		i += runeLen
	}

	var rev []int
	for end := n; end > 0; end = from[end] {
		if pick[end] >= 0 {
			rev = append(rev, pick[end])
			continue
		}
		rev = append(rev, u.fallback(word[from[end]:end])...)
	}
	for i := len(rev) - 1; i >= 0; i-- {
		ids = append(ids, rev[i])
	}
	return ids
}

// fallback returns ids in reverse order for a span the vocabulary lacks.
func (u *Unigram) fallback(span string) []int {
	if u.byteFallback {
		out := make([]int, 0, len(span))
		ok := true
		for i := len(span) - 1; i >= 0; i-- {
			id := u.byteIDs[span[i]]
			if id < 0 {
				ok = false
				break
			}
			out = append(out, id)
		}
		if ok {
			return out
		}
	}
	return []int{u.unkID}
}

func (u *Unigram) Decode(ids []int) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(u.pieces) {
			return "", fmt.Errorf("%w: token id out of range: %d", ErrTokenization, id)
		}
		switch {
		case u.added[id]:
			b.WriteString(u.pieces[id])
		case u.isByte[id]:
			v, _ := parseBytePiece(u.pieces[id])
			b.WriteByte(v)
		default:
			b.WriteString(strings.ReplaceAll(u.pieces[id], u.replacement, " "))
		}
	}
	out := b.String()
	if u.addPrefix && len(ids) > 0 && !u.added[ids[0]] {
		out = strings.TrimPrefix(out, " ")
	}
	return out, nil
}

func (u *Unigram) IDToToken(id int) string {
	if id < 0 || id >= len(u.pieces) {
		return ""
	}
	return u.pieces[id]
}

func (u *Unigram) TokenToID(tok string) int {
	if id, ok := u.index[tok]; ok {
		return id
	}
	return u.unkID
}

func (u *Unigram) UnknownID() int { return u.unkID }
func (u *Unigram) VocabSize() int { return len(u.pieces) }
