package inference

import "slices"

// terminators are vocabulary entries that end a sequence in the checkpoints
// committer loads, whatever eos_token_id says.
var terminators = []string{"</s>", "<|endoftext|>"}

// BuildStopTokens returns the ids that end generation: eosID first, then any
// terminator the vocabulary knows under a different id.
func BuildStopTokens(tok interface {
	TokenToID(string) int
	UnknownID() int
}, eosID int) []int {
	stops := []int{}
	if eosID >= 0 {
		stops = append(stops, eosID)
	}
	for _, name := range terminators {
		id := tok.TokenToID(name)
		if id < 0 || id == tok.UnknownID() || slices.Contains(stops, id) {
			continue
		}
		stops = append(stops, id)
	}
	return stops
}
