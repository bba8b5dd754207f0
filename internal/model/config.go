package model

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Activation names the FFN non-linearity.
type Activation string

const (
	ActReLU    Activation = "relu"
	ActGELU    Activation = "gelu"
	ActGELUNew Activation = "gelu_new"
	ActSiLU    Activation = "silu"
)

// Config is the architecture of a T5-family checkpoint.
type Config struct {
	ModelType             string
	VocabSize             int
	DModel                int
	DKV                   int
	DFF                   int
	NumLayers             int
	NumDecoderLayers      int
	NumHeads              int
	RelAttnBuckets        int
	RelAttnMaxDistance    int
	LayerNormEps          float32
	Act                   Activation
	Gated                 bool
	TieWordEmbeddings     bool
	PadTokenID            int
	EOSTokenID            int
	DecoderStartTokenID   int
	UseCache              bool
	MaxPositionEmbeddings int
}

type hfConfig struct {
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures"`

	VocabSize           int     `json:"vocab_size"`
	DModel              int     `json:"d_model"`
	DKV                 int     `json:"d_kv"`
	DFF                 int     `json:"d_ff"`
	NumLayers           int     `json:"num_layers"`
	NumDecoderLayers    *int    `json:"num_decoder_layers"`
	NumHeads            int     `json:"num_heads"`
	RelAttnBuckets      int     `json:"relative_attention_num_buckets"`
	RelAttnMaxDistance  int     `json:"relative_attention_max_distance"`
	LayerNormEpsilon    float64 `json:"layer_norm_epsilon"`
	FeedForwardProj     string  `json:"feed_forward_proj"`
	TieWordEmbeddings   *bool   `json:"tie_word_embeddings"`
	PadTokenID          *int    `json:"pad_token_id"`
	EOSTokenID          *int    `json:"eos_token_id"`
	DecoderStartTokenID *int    `json:"decoder_start_token_id"`
	UseCache            *bool   `json:"use_cache"`
	NPositions          int     `json:"n_positions"`
}

// ParseConfig reads a HuggingFace config.json for a T5-family model.
func ParseConfig(data []byte) (Config, error) {
	var hc hfConfig
	if err := json.Unmarshal(data, &hc); err != nil {
		return Config{}, fmt.Errorf("%w: parse config.json: %v", ErrBundleMismatch, err)
	}
	if hc.ModelType != "" && hc.ModelType != "t5" && hc.ModelType != "mt5" && hc.ModelType != "codet5" {
		return Config{}, fmt.Errorf("%w: unsupported model_type %q", ErrBundleMismatch, hc.ModelType)
	}

	cfg := Config{
		ModelType:             hc.ModelType,
		VocabSize:             hc.VocabSize,
		DModel:                hc.DModel,
		DKV:                   hc.DKV,
		DFF:                   hc.DFF,
		NumLayers:             hc.NumLayers,
		NumDecoderLayers:      hc.NumLayers,
		NumHeads:              hc.NumHeads,
		RelAttnBuckets:        hc.RelAttnBuckets,
		RelAttnMaxDistance:    hc.RelAttnMaxDistance,
		LayerNormEps:          float32(hc.LayerNormEpsilon),
		TieWordEmbeddings:     true,
		EOSTokenID:            1,
		UseCache:              true,
		MaxPositionEmbeddings: hc.NPositions,
	}
	if hc.NumDecoderLayers != nil {
		cfg.NumDecoderLayers = *hc.NumDecoderLayers
	}
	if cfg.RelAttnBuckets == 0 {
		cfg.RelAttnBuckets = 32
	}
	if cfg.RelAttnMaxDistance == 0 {
		cfg.RelAttnMaxDistance = 128
	}
	if cfg.LayerNormEps == 0 {
		cfg.LayerNormEps = 1e-6
	}
	if hc.TieWordEmbeddings != nil {
		cfg.TieWordEmbeddings = *hc.TieWordEmbeddings
	}
	if hc.PadTokenID != nil {
		cfg.PadTokenID = *hc.PadTokenID
	}
	if hc.EOSTokenID != nil {
		cfg.EOSTokenID = *hc.EOSTokenID
	}
	// Generation starts from the pad token unless the checkpoint says otherwise.
	cfg.DecoderStartTokenID = cfg.PadTokenID
	if hc.DecoderStartTokenID != nil {
		cfg.DecoderStartTokenID = *hc.DecoderStartTokenID
	}
	if hc.UseCache != nil {
		cfg.UseCache = *hc.UseCache
	}

	act, gated, err := parseFeedForward(hc.FeedForwardProj)
	if err != nil {
		return Config{}, err
	}
	cfg.Act, cfg.Gated = act, gated

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseFeedForward(proj string) (Activation, bool, error) {
	if proj == "" {
		return ActReLU, false, nil
	}
	gated := false
	name := proj
	if rest, ok := strings.CutPrefix(proj, "gated-"); ok {
		gated = true
		name = rest
	}
	switch Activation(name) {
	case ActReLU, ActGELUNew, ActSiLU:
		return Activation(name), gated, nil
	case ActGELU:
		// T5 v1.1 checkpoints say "gated-gelu" but were trained with the
		// tanh approximation.
		if gated {
			return ActGELUNew, true, nil
		}
		return ActGELU, false, nil
	default:
		return "", false, fmt.Errorf("%w: unsupported feed_forward_proj %q", ErrBundleMismatch, proj)
	}
}

// Validate checks the hyperparameters are usable.
func (c Config) Validate() error {
	checks := []struct {
		name string
		v    int
	}{
		{"vocab_size", c.VocabSize},
		{"d_model", c.DModel},
		{"d_kv", c.DKV},
		{"d_ff", c.DFF},
		{"num_layers", c.NumLayers},
		{"num_decoder_layers", c.NumDecoderLayers},
		{"num_heads", c.NumHeads},
		{"relative_attention_num_buckets", c.RelAttnBuckets},
		{"relative_attention_max_distance", c.RelAttnMaxDistance},
	}
	for _, ch := range checks {
		if ch.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrBundleMismatch, ch.name, ch.v)
		}
	}
	for name, id := range map[string]int{
		"pad_token_id":           c.PadTokenID,
		"eos_token_id":           c.EOSTokenID,
		"decoder_start_token_id": c.DecoderStartTokenID,
	} {
		if id < 0 || id >= c.VocabSize {
			return fmt.Errorf("%w: %s %d outside vocabulary of %d", ErrBundleMismatch, name, id, c.VocabSize)
		}
	}
	return nil
}

func (c Config) inner() int { return c.NumHeads * c.DKV }
