package model

import "fmt"

// tensorSpec is one weight the loader expects, in HuggingFace T5 naming.
type tensorSpec struct {
	Name  string
	Shape []int
}

const (
	encoderStack = "encoder"
	decoderStack = "decoder"
)

func sharedEmbeddingName() string { return "shared.weight" }
func lmHeadName() string          { return "lm_head.weight" }

func finalNormName(stack string) string {
	return stack + ".final_layer_norm.weight"
}

func relBiasName(stack string) string {
	return stack + ".block.0.layer.0.SelfAttention.relative_attention_bias.weight"
}

func layerNormName(stack string, block, sub int) string {
	return fmt.Sprintf("%s.block.%d.layer.%d.layer_norm.weight", stack, block, sub)
}

func attnName(stack string, block, sub int, kind, proj string) string {
	return fmt.Sprintf("%s.block.%d.layer.%d.%s.%s.weight", stack, block, sub, kind, proj)
}

func ffnName(stack string, block, sub int, proj string) string {
	return fmt.Sprintf("%s.block.%d.layer.%d.DenseReluDense.%s.weight", stack, block, sub, proj)
}

// expectedTensors lists every tensor a checkpoint for cfg must carry.
func expectedTensors(cfg Config) []tensorSpec {
	d, inner, ff := cfg.DModel, cfg.inner(), cfg.DFF
	specs := []tensorSpec{
		{sharedEmbeddingName(), []int{cfg.VocabSize, d}},
		{relBiasName(encoderStack), []int{cfg.RelAttnBuckets, cfg.NumHeads}},
		{relBiasName(decoderStack), []int{cfg.RelAttnBuckets, cfg.NumHeads}},
		{finalNormName(encoderStack), []int{d}},
		{finalNormName(decoderStack), []int{d}},
	}
	if !cfg.TieWordEmbeddings {
		specs = append(specs, tensorSpec{lmHeadName(), []int{cfg.VocabSize, d}})
	}

	attn := func(stack string, block, sub int, kind string) []tensorSpec {
		return []tensorSpec{
			{attnName(stack, block, sub, kind, "q"), []int{inner, d}},
			{attnName(stack, block, sub, kind, "k"), []int{inner, d}},
			{attnName(stack, block, sub, kind, "v"), []int{inner, d}},
			{attnName(stack, block, sub, kind, "o"), []int{d, inner}},
			{layerNormName(stack, block, sub), []int{d}},
		}
	}
	ffn := func(stack string, block, sub int) []tensorSpec {
		out := []tensorSpec{
			{ffnName(stack, block, sub, "wo"), []int{d, ff}},
			{layerNormName(stack, block, sub), []int{d}},
		}
		if cfg.Gated {
			return append(out,
				tensorSpec{ffnName(stack, block, sub, "wi_0"), []int{ff, d}},
				tensorSpec{ffnName(stack, block, sub, "wi_1"), []int{ff, d}},
			)
		}
		return append(out, tensorSpec{ffnName(stack, block, sub, "wi"), []int{ff, d}})
	}

	for i := range cfg.NumLayers {
		specs = append(specs, attn(encoderStack, i, 0, "SelfAttention")...)
		specs = append(specs, ffn(encoderStack, i, 1)...)
	}
	for i := range cfg.NumDecoderLayers {
		specs = append(specs, attn(decoderStack, i, 0, "SelfAttention")...)
		specs = append(specs, attn(decoderStack, i, 1, "EncDecAttention")...)
		specs = append(specs, ffn(decoderStack, i, 2)...)
	}
	return specs
}
