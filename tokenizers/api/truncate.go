package api

import "github.com/gomlx/conll-ner/align"

// Truncate returns the encoding limited to maxLength tokens.
//
// Like the HuggingFace tokenizers with `truncation=True`, word tokens are dropped from the end
// while the special tokens the post-processor appended after the last word (e.g. [SEP]) are
// kept. If maxLength <= 0 or the encoding already fits, it is returned unchanged.
func Truncate(enc WordEncoding, maxLength int) WordEncoding {
	n := enc.Len()
	if maxLength <= 0 || n <= maxLength {
		return enc
	}

	// Trailing special tokens, kept as is.
	tailStart := n
	for tailStart > 0 && enc.SpecialTokensMask[tailStart-1] {
		tailStart--
	}
	tailLen := n - tailStart
	if tailLen >= maxLength {
		tailLen = 0
		tailStart = n
	}
	headLen := maxLength - tailLen

	keep := make([]int, 0, maxLength)
	for ii := range headLen {
		keep = append(keep, ii)
	}
	for ii := tailStart; ii < n; ii++ {
		keep = append(keep, ii)
	}

	out := WordEncoding{
		IDs:               make([]int, len(keep)),
		Tokens:            make([]string, len(keep)),
		WordIDs:           make([]align.WordID, len(keep)),
		SpecialTokensMask: make([]bool, len(keep)),
	}
	for ii, src := range keep {
		out.IDs[ii] = enc.IDs[src]
		if src < len(enc.Tokens) {
			out.Tokens[ii] = enc.Tokens[src]
		}
		out.WordIDs[ii] = enc.WordIDs[src]
		out.SpecialTokensMask[ii] = enc.SpecialTokensMask[src]
	}
	return out
}
