package tokenizer

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

type hfAddedToken struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Special bool   `json:"special"`
}

type hfPreTokenizer struct {
	Type           string           `json:"type"`
	Replacement    string           `json:"replacement"`
	AddPrefixSpace *bool            `json:"add_prefix_space"`
	PrependScheme  string           `json:"prepend_scheme"`
	Pattern        hfPattern        `json:"pattern"`
	Pretokenizers  []hfPreTokenizer `json:"pretokenizers"`
}

type hfPattern struct {
	Regex string `json:"Regex"`
}

type hfTemplatePiece struct {
	SpecialToken *struct {
		ID string `json:"id"`
	} `json:"SpecialToken"`
	Sequence *struct {
		ID string `json:"id"`
	} `json:"Sequence"`
}

type hfPostProcessor struct {
	Type          string            `json:"type"`
	Single        []hfTemplatePiece `json:"single"`
	SpecialTokens map[string]struct {
		IDs []int `json:"ids"`
	} `json:"special_tokens"`
	Sep        []any             `json:"sep"`
	Cls        []any             `json:"cls"`
	Processors []hfPostProcessor `json:"processors"`
}

type hfTokenizerJSON struct {
	Model struct {
		Type         string          `json:"type"`
		Vocab        json.RawMessage `json:"vocab"`
		Merges       []any           `json:"merges"`
		IgnoreMerges bool            `json:"ignore_merges"`
		UnkToken     string          `json:"unk_token"`
		UnkID        *int            `json:"unk_id"`
		ByteFallback bool            `json:"byte_fallback"`
	} `json:"model"`
	PreTokenizer  hfPreTokenizer  `json:"pre_tokenizer"`
	PostProcessor hfPostProcessor `json:"post_processor"`
	AddedTokens   []hfAddedToken  `json:"added_tokens"`
}

type hfTokenizerConfig struct {
	ModelMaxLength float64         `json:"model_max_length"`
	EOS            json.RawMessage `json:"eos_token"`
	PAD            json.RawMessage `json:"pad_token"`
	UNK            json.RawMessage `json:"unk_token"`
}

// hfUnboundedLength is the sentinel transformers writes for "no limit".
const hfUnboundedLength = 1 << 30

// Special names the reserved tokens declared by tokenizer_config.json.
// Empty strings mean the config did not declare that token.
type Special struct {
	EOS string
	PAD string
	UNK string
}

// LoadHF reads tokenizer.json and the optional tokenizer_config.json from disk.
func LoadHF(tokJSON, tokConfig string) (*Adapter, error) {
	data, err := os.ReadFile(tokJSON)
	if err != nil {
		return nil, err
	}
	var cfg []byte
	if tokConfig != "" {
		if raw, err := os.ReadFile(tokConfig); err == nil {
			cfg = raw
		}
	}
	return LoadHFBytes(data, cfg)
}

// LoadHFBytes builds an Adapter from the contents of tokenizer.json and an
// optional tokenizer_config.json (nil when absent).
func LoadHFBytes(tokJSON, tokConfig []byte) (*Adapter, error) {
	var tj hfTokenizerJSON
	if err := json.Unmarshal(tokJSON, &tj); err != nil {
		return nil, fmt.Errorf("%w: parse tokenizer.json: %v", ErrTokenization, err)
	}

	var (
		base Tokenizer
		err  error
	)
	switch strings.ToLower(tj.Model.Type) {
	case "bpe":
		var vocab map[string]int
		if err := json.Unmarshal(tj.Model.Vocab, &vocab); err != nil {
			return nil, fmt.Errorf("%w: BPE vocab: %v", ErrTokenization, err)
		}
		base, err = newBPE(vocab, tj.Model.Merges, tj.AddedTokens, tj.Model.UnkToken, tj.Model.IgnoreMerges, splitPattern(tj.PreTokenizer))
	case "unigram":
		vocab, verr := parseUnigramVocab(tj.Model.Vocab)
		if verr != nil {
			return nil, verr
		}
		unkID := 0
		if tj.Model.UnkID != nil {
			unkID = *tj.Model.UnkID
		}
		replacement, addPrefix := metaspaceSettings(tj.PreTokenizer)
		base, err = newUnigram(vocab, unkID, tj.Model.ByteFallback, tj.AddedTokens, replacement, addPrefix)
	default:
		return nil, fmt.Errorf("%w: unsupported tokenizer model: %s", ErrTokenization, tj.Model.Type)
	}
	if err != nil {
		return nil, err
	}

	var cfg hfTokenizerConfig
	if len(tokConfig) > 0 {
		if err := json.Unmarshal(tokConfig, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse tokenizer_config.json: %v", ErrTokenization, err)
		}
	}

	prefix, suffix, err := templateIDs(tj.PostProcessor, base)
	if err != nil {
		return nil, err
	}

	skip := make(map[int]bool)
	for _, at := range tj.AddedTokens {
		if at.Special {
			skip[at.ID] = true
		}
	}

	maxLen := 0
	if cfg.ModelMaxLength > 0 && cfg.ModelMaxLength < hfUnboundedLength {
		maxLen = int(cfg.ModelMaxLength)
	}

	return &Adapter{
		tok:            base,
		prefix:         prefix,
		suffix:         suffix,
		skip:           skip,
		maxInputTokens: maxLen,
		special: Special{
			EOS: tokenName(cfg.EOS),
			PAD: tokenName(cfg.PAD),
			UNK: tokenName(cfg.UNK),
		},
	}, nil
}

func parseUnigramVocab(raw json.RawMessage) ([]unigramPiece, error) {
	var entries [][]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: unigram vocab: %v", ErrTokenization, err)
	}
	out := make([]unigramPiece, len(entries))
	for i, e := range entries {
		if len(e) != 2 {
			return nil, fmt.Errorf("%w: unigram vocab entry %d has %d fields", ErrTokenization, i, len(e))
		}
		piece, ok := e[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: unigram vocab entry %d: piece is not a string", ErrTokenization, i)
		}
		score, ok := e[1].(float64)
		if !ok {
			return nil, fmt.Errorf("%w: unigram vocab entry %d: score is not a number", ErrTokenization, i)
		}
		out[i] = unigramPiece{Piece: piece, Score: score}
	}
	return out, nil
}

func splitPattern(pre hfPreTokenizer) string {
	if pre.Type == "Split" && pre.Pattern.Regex != "" {
		return pre.Pattern.Regex
	}
	for _, p := range pre.Pretokenizers {
		if p.Type == "Split" && p.Pattern.Regex != "" {
			return p.Pattern.Regex
		}
	}
	return ""
}

func metaspaceSettings(pre hfPreTokenizer) (string, bool) {
	if pre.Type == "Metaspace" {
		add := pre.PrependScheme != "never"
		if pre.AddPrefixSpace != nil && pre.PrependScheme == "" {
			add = *pre.AddPrefixSpace
		}
		return pre.Replacement, add
	}
	for _, p := range pre.Pretokenizers {
		if p.Type == "Metaspace" {
			return metaspaceSettings(p)
		}
	}
	return metaspace, true
}

// templateIDs returns the ids the post-processor wraps around a single
// sequence.
func templateIDs(pp hfPostProcessor, tok Tokenizer) (prefix, suffix []int, err error) {
	switch pp.Type {
	case "TemplateProcessing":
		seen := false
		for _, piece := range pp.Single {
			switch {
			case piece.Sequence != nil:
				seen = true
			case piece.SpecialToken != nil:
				spec, ok := pp.SpecialTokens[piece.SpecialToken.ID]
				if !ok {
					return nil, nil, fmt.Errorf("%w: post-processor special token %q undefined", ErrTokenization, piece.SpecialToken.ID)
				}
				if seen {
					suffix = append(suffix, spec.IDs...)
				} else {
					prefix = append(prefix, spec.IDs...)
				}
			}
		}
	case "RobertaProcessing", "BertProcessing":
		cls, err := specialPair(pp.Cls)
		if err != nil {
			return nil, nil, err
		}
		sep, err := specialPair(pp.Sep)
		if err != nil {
			return nil, nil, err
		}
		prefix, suffix = []int{cls}, []int{sep}
	case "Sequence":
		for _, p := range pp.Processors {
			pre, suf, err := templateIDs(p, tok)
			if err != nil {
				return nil, nil, err
			}
			prefix = append(prefix, pre...)
			suffix = append(suffix, suf...)
		}
	}
	for _, id := range append(append([]int(nil), prefix...), suffix...) {
		if id < 0 || id >= tok.VocabSize() {
			return nil, nil, fmt.Errorf("%w: post-processor id %d outside vocabulary", ErrTokenization, id)
		}
	}
	return prefix, suffix, nil
}

// specialPair decodes the ["</s>", 2] form used by RoBERTa/BERT processors.
func specialPair(v []any) (int, error) {
	if len(v) != 2 {
		return 0, fmt.Errorf("%w: malformed post-processor token %v", ErrTokenization, v)
	}
	id, ok := v[1].(float64)
	if !ok {
		return 0, fmt.Errorf("%w: malformed post-processor token %v", ErrTokenization, v)
	}
	return int(id), nil
}

// tokenName accepts either "</s>" or {"content": "</s>", ...}.
func tokenName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Content
	}
	return ""
}
