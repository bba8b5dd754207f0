package tokenizer

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// gpt2Pattern is the GPT-2/RoBERTa pre-tokenizer regex with the trailing
// whitespace lookahead collapsed into \s+ (Go regexp has no lookahead).
const gpt2Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`

// BPE is a byte-level BPE tokenizer. It is safe for concurrent use.
type BPE struct {
	encoder      map[string]int
	decoder      []string
	bpeRanks     map[Pair]int
	byteEncoder  map[byte]string
	byteDecoder  map[rune]byte
	pattern      *regexp.Regexp
	unkID        int
	ignoreMerges bool
	added        map[int]bool
	specials     *specialMatcher

	mu    sync.RWMutex
	cache map[string][]string
}

func newBPE(vocab map[string]int, merges []any, added []hfAddedToken, unkToken string, ignoreMerges bool, pattern string) (*BPE, error) {
	if len(vocab) == 0 {
		return nil, fmt.Errorf("%w: empty BPE vocabulary", ErrTokenization)
	}
	encoder := make(map[string]int, len(vocab)+len(added))
	maxID := -1
	for tok, id := range vocab {
		if id < 0 {
			return nil, fmt.Errorf("%w: negative id %d for %q", ErrTokenization, id, tok)
		}
		encoder[tok] = id
		maxID = max(maxID, id)
	}
	for _, at := range added {
		maxID = max(maxID, at.ID)
	}
	decoder := make([]string, maxID+1)
	for tok, id := range vocab {
		decoder[id] = tok
	}
	addedIDs := make(map[int]bool, len(added))
	addedText := make([]string, 0, len(added))
	for _, at := range added {
		if at.ID < 0 {
			return nil, fmt.Errorf("%w: negative id for added token %q", ErrTokenization, at.Content)
		}
		decoder[at.ID] = at.Content
		encoder[at.Content] = at.ID
		addedIDs[at.ID] = true
		addedText = append(addedText, at.Content)
	}

	bpeRanks := make(map[Pair]int, len(merges))
	rank := 0
	for _, raw := range merges {
		line := ""
		switch v := raw.(type) {
		case string:
			line = v
		case []any:
			if len(v) == 2 {
				a, aok := v[0].(string)
				b, bok := v[1].(string)
				if aok && bok {
					line = a + " " + b
				}
			}
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, " ")
		if len(parts) != 2 {
			continue
		}
		p := Pair{A: parts[0], B: parts[1]}
		if _, ok := bpeRanks[p]; !ok {
			bpeRanks[p] = rank
			rank++
		}
	}

	if pattern == "" {
		pattern = gpt2Pattern
	}
	// Llama3-style patterns use lookahead and case-insensitive groups that Go
	// regexp rejects; swap in the llama.cpp equivalent.
	if strings.Contains(pattern, "(?!\\S)") || strings.Contains(pattern, "(?i:") {
		pattern = `(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+`
	}
	pat, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: pre-tokenizer pattern: %v", ErrTokenization, err)
	}

	unkID := -1
	if unkToken != "" {
		if id, ok := encoder[unkToken]; ok {
			unkID = id
		}
	}

	byteEncoder, byteDecoder := bytesToUnicode()
	return &BPE{
		encoder:      encoder,
		decoder:      decoder,
		bpeRanks:     bpeRanks,
		byteEncoder:  byteEncoder,
		byteDecoder:  byteDecoder,
		pattern:      pat,
		unkID:        unkID,
		ignoreMerges: ignoreMerges,
		added:        addedIDs,
		specials:     newSpecialMatcher(addedText),
		cache:        make(map[string][]string),
	}, nil
}

func (t *BPE) Encode(text string) ([]int, error) {
	var ids []int
	for _, part := range t.specials.split(text) {
		if part.isSpecial {
			ids = append(ids, t.encoder[part.text])
			continue
		}
		for _, token := range t.pattern.FindAllString(part.text, -1) {
			for _, bpeTok := range t.bpe(t.byteEncode(token)) {
				id, ok := t.encoder[bpeTok]
				if !ok {
					if t.unkID >= 0 {
						ids = append(ids, t.unkID)
						continue
					}
					return nil, fmt.Errorf("%w: unknown token %q and no unk token", ErrTokenization, bpeTok)
				}
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (t *BPE) Decode(ids []int) (string, error) {
	var b []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.decoder) {
			return "", fmt.Errorf("%w: token id out of range: %d", ErrTokenization, id)
		}
		token := t.decoder[id]
		if t.added[id] {
			b = append(b, token...)
			continue
		}
		for _, r := range token {
			if by, ok := t.byteDecoder[r]; ok {
				b = append(b, by)
			} else {
				b = append(b, string(r)...)
			}
		}
	}
	return string(b), nil
}

func (t *BPE) IDToToken(id int) string {
	if id < 0 || id >= len(t.decoder) {
		return ""
	}
	return t.decoder[id]
}

func (t *BPE) TokenToID(tok string) int {
	if id, ok := t.encoder[tok]; ok {
		return id
	}
	return t.unkID
}

func (t *BPE) UnknownID() int { return t.unkID }
func (t *BPE) VocabSize() int { return len(t.decoder) }

func (t *BPE) byteEncode(s string) string {
	var b strings.Builder
	for _, by := range []byte(s) {
		b.WriteString(t.byteEncoder[by])
	}
	return b.String()
}

func (t *BPE) bpe(token string) []string {
	t.mu.RLock()
	v, ok := t.cache[token]
	t.mu.RUnlock()
	if ok {
		return v
	}

	word := t.merge(token)

	t.mu.Lock()
	t.cache[token] = word
	t.mu.Unlock()
	return word
}

func (t *BPE) merge(token string) []string {
	if t.ignoreMerges {
		if _, ok := t.encoder[token]; ok {
			return []string{token}
		}
	}
	word := splitRunes(token)
	pairs := getPairs(word)
	for len(pairs) > 0 {
		bestRank := int(^uint(0) >> 1)
		bestPair := Pair{}
		found := false
		for p := range pairs {
			if rank, ok := t.bpeRanks[p]; ok && rank < bestRank {
				bestRank = rank
				bestPair = p
				found = true
			}
		}
		if !found {
			break
		}
		word = mergePair(word, bestPair)
		if len(word) == 1 {
			break
		}
		pairs = getPairs(word)
	}
	return word
}
