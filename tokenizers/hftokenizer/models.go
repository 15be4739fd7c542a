package hftokenizer

import (
	"fmt"
	"unicode/utf8"
)

func (t *Tokenizer) continuingSubwordPrefix() string {
	if prefix := t.tokenizer.Model.ContinuingSubwordPrefix; prefix != "" {
		return prefix
	}
	return "##"
}

// wordPieceTokenize implements WordPiece tokenization (used by BERT): greedy longest-match-first,
// with continuation pieces prefixed by "##". A word with any piece not in the vocabulary
// becomes a single unknown token.
func (t *Tokenizer) wordPieceTokenize(word string) []string {
	if word == "" {
		return nil
	}
	maxChars := t.tokenizer.Model.MaxInputCharsPerWord
	if maxChars == 0 {
		maxChars = 100
	}
	if utf8.RuneCountInString(word) > maxChars {
		return t.unkToken()
	}
	prefix := t.continuingSubwordPrefix()
	vocab := t.tokenizer.Model.Vocab

	var tokens []string
	start := 0
	for start < len(word) {
		end := len(word)
		found := ""
		for start < end {
			substr := word[start:end]
			if start > 0 {
				substr = prefix + substr
			}
			if _, ok := vocab[substr]; ok {
				found = substr
				break
			}
			// Step back one rune, not one byte.
			_, size := utf8.DecodeLastRuneInString(word[start:end])
			end -= size
		}
		if found == "" {
			return t.unkToken()
		}
		tokens = append(tokens, found)
		start = end
	}
	return tokens
}

// bpeTokenize implements BPE tokenization (used by GPT-2, RoBERTa): symbols are merged
// following the merges priority until no merge applies.
func (t *Tokenizer) bpeTokenize(word string) []string {
	if word == "" {
		return nil
	}
	vocab := t.tokenizer.Model.Vocab
	if _, ok := vocab[word]; ok && t.tokenizer.Model.EndOfWordSuffix == "" {
		return []string{word}
	}

	symbols := make([]string, 0, len(word))
	for _, r := range word {
		symbols = append(symbols, string(r))
	}
	if suffix := t.tokenizer.Model.EndOfWordSuffix; suffix != "" {
		symbols[len(symbols)-1] += suffix
	}

	for len(symbols) > 1 {
		bestRank, bestIdx := -1, -1
		for i := 0; i < len(symbols)-1; i++ {
			if rank, ok := t.mergeRanks[symbols[i]+" "+symbols[i+1]]; ok && (bestRank == -1 || rank < bestRank) {
				bestRank, bestIdx = rank, i
			}
		}
		if bestIdx == -1 {
			break
		}
		merged := symbols[bestIdx] + symbols[bestIdx+1]
		symbols = append(symbols[:bestIdx+1], symbols[bestIdx+2:]...)
		symbols[bestIdx] = merged
	}

	tokens := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if _, ok := vocab[sym]; ok {
			tokens = append(tokens, sym)
			continue
		}
		if t.tokenizer.Model.ByteFallback {
			if fallback, ok := t.byteFallback(sym); ok {
				tokens = append(tokens, fallback...)
				continue
			}
		}
		tokens = append(tokens, t.unkToken()...)
	}
	return tokens
}

// byteFallback returns the <0xXX> tokens of each byte of sym, if they are all in the vocabulary.
func (t *Tokenizer) byteFallback(sym string) ([]string, bool) {
	tokens := make([]string, 0, len(sym))
	for i := 0; i < len(sym); i++ {
		token := fmt.Sprintf("<0x%02X>", sym[i])
		if _, ok := t.tokenizer.Model.Vocab[token]; !ok {
			return nil, false
		}
		tokens = append(tokens, token)
	}
	return tokens, true
}

// unigramTokenize implements a greedy longest-match approximation of Unigram tokenization.
// The full model uses Viterbi decoding over the piece scores.
func (t *Tokenizer) unigramTokenize(word string) []string {
	vocab := t.tokenizer.Model.Vocab
	var tokens []string
	runes := []rune(word)
	start := 0
	for start < len(runes) {
		end := len(runes)
		for ; end > start; end-- {
			if _, ok := vocab[string(runes[start:end])]; ok {
				break
			}
		}
		if end > start {
			tokens = append(tokens, string(runes[start:end]))
			start = end
			continue
		}
		// No piece starts with this character.
		if unk := t.unkToken(); unk != nil && !isLastUnk(tokens, unk[0]) {
			tokens = append(tokens, unk[0])
		}
		start++
	}
	return tokens
}

// isLastUnk reports whether the last token is the unknown token: consecutive unknown characters
// are fused into one unknown token.
func isLastUnk(tokens []string, unk string) bool {
	return len(tokens) > 0 && tokens[len(tokens)-1] == unk
}
