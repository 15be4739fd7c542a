package hftokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// metaspace is the character SentencePiece-like tokenizers use in place of spaces.
const metaspace = "▁"

// normalize applies the normalizer to the text.
func (t *Tokenizer) normalize(text string) string {
	if t.tokenizer.Normalizer == nil {
		return text
	}
	return applyNormalizer(text, t.tokenizer.Normalizer)
}

func applyNormalizer(text string, n *Normalizer) string {
	switch n.Type {
	case "Lowercase":
		return strings.ToLower(text)
	case "NFD":
		return norm.NFD.String(text)
	case "NFC":
		return norm.NFC.String(text)
	case "NFKC":
		return norm.NFKC.String(text)
	case "NFKD":
		return norm.NFKD.String(text)
	case "StripAccents":
		return removeAccents(norm.NFD.String(text))
	case "BertNormalizer":
		result := cleanText(text)
		// strip_accents defaults to the value of lowercase.
		stripAccents := n.Lowercase
		if n.StripAccent != nil {
			stripAccents = *n.StripAccent
		}
		if n.Lowercase {
			result = strings.ToLower(result)
		}
		if stripAccents {
			result = removeAccents(norm.NFD.String(result))
		}
		return result
	case "Sequence":
		result := text
		for ii := range n.Normalizers {
			result = applyNormalizer(result, &n.Normalizers[ii])
		}
		return result
	default:
		return text
	}
}

// preTokenize splits text into words using the pre-tokenizer.
//
// isFirst tells whether text is at the start of the sentence: prefix-space pre-tokenizers
// (ByteLevel, Metaspace) mark later words as following a space.
func (t *Tokenizer) preTokenize(text string, isFirst bool) []string {
	if t.tokenizer.PreTokenizer == nil {
		return strings.Fields(text)
	}
	return applyPreTokenizer(text, t.tokenizer.PreTokenizer, isFirst)
}

func applyPreTokenizer(text string, pt *PreTokenizer, isFirst bool) []string {
	switch pt.Type {
	case "BertPreTokenizer":
		return bertPreTokenize(text)
	case "Whitespace", "WhitespaceSplit":
		return strings.Fields(text)
	case "ByteLevel":
		if (pt.AddPrefixSpace || !isFirst) && len(text) > 0 && text[0] != ' ' {
			text = " " + text
		}
		return byteLevelPreTokenize(text)
	case "Metaspace":
		return metaspacePreTokenize(text, pt.AddPrefixSpace || !isFirst)
	case "Punctuation":
		return punctuationPreTokenize(text)
	case "Sequence":
		result := []string{text}
		for ii := range pt.PreTokenizers {
			var newResult []string
			for _, s := range result {
				newResult = append(newResult, applyPreTokenizer(s, &pt.PreTokenizers[ii], isFirst)...)
			}
			result = newResult
		}
		return result
	default:
		return strings.Fields(text)
	}
}

func cleanText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r == 0 || r == 0xFFFD || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			result.WriteRune(' ')
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

func isPunctuation(r rune) bool {
	// ASCII symbols count as punctuation for BERT.
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

// removeAccents drops non-spacing marks (Mn), text is expected to be NFD normalized.
func removeAccents(text string) string {
	var result strings.Builder
	for _, r := range text {
		if !unicode.Is(unicode.Mn, r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// splitOn splits text on whitespace (dropped) and on runes for which isSep is true (kept as
// separate pieces).
func splitOn(text string, isSep func(rune) bool) []string {
	var pieces []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			pieces = append(pieces, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		switch {
		case isWhitespace(r):
			flush()
		case isSep(r):
			flush()
			pieces = append(pieces, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return pieces
}

func bertPreTokenize(text string) []string {
	return splitOn(text, isPunctuation)
}

func punctuationPreTokenize(text string) []string {
	return splitOn(text, func(r rune) bool { return !isWhitespace(r) && isPunctuation(r) })
}

// Byte-level BPE encoding/decoding
// GPT-2 uses a specific byte-to-unicode mapping
var byteToUnicode map[byte]rune
var unicodeToByte map[rune]byte

func init() {
	byteToUnicode = make(map[byte]rune)
	unicodeToByte = make(map[rune]byte)

	n := 0
	for b := 0; b < 256; b++ {
		if (b >= '!' && b <= '~') || (b >= 0xa1 && b <= 0xac) || (b >= 0xae && b <= 0xff) {
			byteToUnicode[byte(b)] = rune(b)
			unicodeToByte[rune(b)] = byte(b)
		} else {
			byteToUnicode[byte(b)] = rune(256 + n)
			unicodeToByte[rune(256+n)] = byte(b)
			n++
		}
	}
}

// byteLevelPreTokenize splits on spaces, keeping each space attached to the following word, and
// maps every byte to its printable unicode representation.
func byteLevelPreTokenize(text string) []string {
	var pieces []string
	var current strings.Builder
	for i := 0; i < len(text); i++ {
		b := text[i]
		if b == ' ' && current.Len() > 0 {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		current.WriteRune(byteToUnicode[b])
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

func byteLevelDecode(text string) string {
	var result []byte
	for _, r := range text {
		if b, ok := unicodeToByte[r]; ok {
			result = append(result, b)
		} else {
			result = append(result, []byte(string(r))...)
		}
	}
	return string(result)
}

// metaspacePreTokenize replaces spaces by the metaspace character and splits before each one.
func metaspacePreTokenize(text string, addPrefixSpace bool) []string {
	if addPrefixSpace && !strings.HasPrefix(text, " ") {
		text = " " + text
	}
	text = strings.ReplaceAll(text, " ", metaspace)

	var pieces []string
	var current strings.Builder
	for _, r := range text {
		if string(r) == metaspace && current.Len() > 0 {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}
