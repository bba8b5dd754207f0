package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/samcharles93/committer/internal/safetensors"
	"github.com/samcharles93/committer/internal/tokenizer"
)

// Bundle file names inside a model directory.
const (
	ConfigFile          = "config.json"
	TokenizerFile       = "tokenizer.json"
	TokenizerConfigFile = "tokenizer_config.json"
	WeightsFile         = "model.safetensors"
)

// Bundle is a loaded model together with its tokenizer.
type Bundle struct {
	Config    Config
	Model     *T5
	Tokenizer *tokenizer.Adapter
}

// LoadBundleDir loads a bundle from a directory on disk.
func LoadBundleDir(dir string) (*Bundle, error) {
	return LoadBundle(os.DirFS(dir))
}

// LoadBundle reads config.json, tokenizer.json, the optional
// tokenizer_config.json and model.safetensors from fsys and checks that they
// describe the same vocabulary and special tokens.
func LoadBundle(fsys fs.FS) (*Bundle, error) {
	cfgBytes, err := fs.ReadFile(fsys, ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ConfigFile, err)
	}
	cfg, err := ParseConfig(cfgBytes)
	if err != nil {
		return nil, err
	}

	tokBytes, err := fs.ReadFile(fsys, TokenizerFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", TokenizerFile, err)
	}
	tokCfg, err := fs.ReadFile(fsys, TokenizerConfigFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", TokenizerConfigFile, err)
	}
	tok, err := tokenizer.LoadHFBytes(tokBytes, tokCfg)
	if err != nil {
		return nil, err
	}
	if err := checkConsistency(cfg, tok); err != nil {
		return nil, err
	}
	if tok.MaxInputTokens() == 0 && cfg.MaxPositionEmbeddings > 0 {
		tok.SetMaxInputTokens(cfg.MaxPositionEmbeddings)
	}

	st, err := safetensors.OpenFS(fsys, WeightsFile)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", WeightsFile, err)
	}
	m, err := LoadT5(cfg, st)
	if cerr := st.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return &Bundle{Config: cfg, Model: m, Tokenizer: tok}, nil
}

func checkConsistency(cfg Config, tok *tokenizer.Adapter) error {
	if tok.VocabSize() > cfg.VocabSize {
		return fmt.Errorf("%w: tokenizer has %d tokens but model vocabulary is %d", ErrBundleMismatch, tok.VocabSize(), cfg.VocabSize)
	}
	for name, id := range map[string]int{
		"pad_token_id":           cfg.PadTokenID,
		"eos_token_id":           cfg.EOSTokenID,
		"decoder_start_token_id": cfg.DecoderStartTokenID,
	} {
		if id >= tok.VocabSize() {
			return fmt.Errorf("%w: %s %d outside tokenizer vocabulary of %d", ErrBundleMismatch, name, id, tok.VocabSize())
		}
	}
	special := tok.Special()
	if special.EOS != "" {
		if got := tok.TokenToID(special.EOS); got != cfg.EOSTokenID {
			return fmt.Errorf("%w: tokenizer eos %q is id %d, config says %d", ErrBundleMismatch, special.EOS, got, cfg.EOSTokenID)
		}
	}
	if special.PAD != "" {
		if got := tok.TokenToID(special.PAD); got != cfg.PadTokenID {
			return fmt.Errorf("%w: tokenizer pad %q is id %d, config says %d", ErrBundleMismatch, special.PAD, got, cfg.PadTokenID)
		}
	}
	return nil
}
