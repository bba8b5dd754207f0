package tokenizer

import (
	"fmt"
	"testing"
)

// bpeFixture is a RoBERTa-style byte-level vocabulary: the 256 byte symbols
// at ids 0-255, specials at 256-259, merged tokens from 260.
func bpeFixture(t *testing.T) []byte {
	t.Helper()
	enc, _ := bytesToUnicode()
	vocab := make(map[string]int, 270)
	for b := range 256 {
		vocab[enc[byte(b)]] = b
	}
	vocab["<s>"] = 256
	vocab["</s>"] = 257
	vocab["<pad>"] = 258
	vocab["<unk>"] = 259
	vocab["he"] = 260
	vocab["ll"] = 261
	vocab["hell"] = 262
	vocab["hello"] = 263
	vocab["Ġhello"] = 264

	return mustJSON(t, map[string]any{
		"added_tokens": []map[string]any{
			{"id": 256, "content": "<s>", "special": true},
			{"id": 257, "content": "</s>", "special": true},
			{"id": 258, "content": "<pad>", "special": true},
			{"id": 259, "content": "<unk>", "special": true},
		},
		"pre_tokenizer": map[string]any{"type": "ByteLevel", "add_prefix_space": false},
		"post_processor": map[string]any{
			"type": "RobertaProcessing",
			"sep":  []any{"</s>", 257},
			"cls":  []any{"<s>", 256},
		},
		"model": map[string]any{
			"type":      "BPE",
			"unk_token": "<unk>",
			"vocab":     vocab,
			"merges":    []string{"h e", "l l", "he ll", "hell o", "Ġ hello"},
		},
	})
}

func TestBPEEncodeAppliesMergesAndWraps(t *testing.T) {
	t.Parallel()

	a, err := LoadHFBytes(bpeFixture(t), nil)
	if err != nil {
		t.Fatalf("LoadHFBytes: %v", err)
	}
	ids, err := a.Encode("hello hello")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []int{256, 263, 264, 257}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("Encode = %v, want %v", ids, want)
	}
	text, err := a.Decode(ids)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "hello hello" {
		t.Fatalf("Decode = %q", text)
	}
}

func TestBPESpecialTokensInText(t *testing.T) {
	t.Parallel()

	a, err := LoadHFBytes(bpeFixture(t), nil)
	if err != nil {
		t.Fatalf("LoadHFBytes: %v", err)
	}
	ids, err := a.Encode("a</s>b")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []int{256, 'a', 257, 'b', 257}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("Encode = %v, want %v", ids, want)
	}
	if !a.IsSpecial(257) || a.IsSpecial('a') {
		t.Fatal("special id classification wrong")
	}
}

func TestBPENewlineMarker(t *testing.T) {
	t.Parallel()

	a, err := LoadHFBytes(bpeFixture(t), nil)
	if err != nil {
		t.Fatalf("LoadHFBytes: %v", err)
	}
	// Byte-level BPE spells a newline as Ċ and a space as Ġ.
	if got := a.IDToToken('\n'); got != "Ċ" {
		t.Fatalf("IDToToken('\\n') = %q", got)
	}
	if got := a.IDToToken(' '); got != "Ġ" {
		t.Fatalf("IDToToken(' ') = %q", got)
	}
	text, err := a.Decode([]int{263, '\n', ' ', 263})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "hello\n hello" {
		t.Fatalf("Decode = %q", text)
	}
}

func TestBPEConcurrentEncode(t *testing.T) {
	t.Parallel()

	a, err := LoadHFBytes(bpeFixture(t), nil)
	if err != nil {
		t.Fatalf("LoadHFBytes: %v", err)
	}
	done := make(chan error, 8)
	for range 8 {
		go func() {
			for range 50 {
				if _, err := a.Encode("hello hello world"); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}()
	}
	for range 8 {
		if err := <-done; err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
}
