package metrics

import "strings"

// Chunk is an entity span [Start, End) of tokens with the given Type.
type Chunk struct {
	Type       string
	Start, End int
}

// splitTag splits a tag like "B-PER" into its prefix ("B") and type ("PER").
// "O" has an empty type.
func splitTag(tag string) (prefix, entityType string) {
	if tag == "" || tag == "O" {
		return "O", ""
	}
	prefix = tag[:1]
	entityType = tag[1:]
	if idx := strings.IndexAny(entityType, "-_"); idx >= 0 {
		entityType = entityType[idx+1:]
	}
	return prefix, entityType
}

// Chunks extracts the entity chunks of a tag sequence, following the conlleval rules: an "I-X"
// tag that doesn't continue a chunk of type X starts a new chunk. IOBES tags (E-X, S-X) are
// accepted too.
func Chunks(tags []string) []Chunk {
	var chunks []Chunk
	prevPrefix, prevType := "O", ""
	start := -1
	// A trailing "O" closes the last chunk.
	for ii := 0; ii <= len(tags); ii++ {
		prefix, entityType := "O", ""
		if ii < len(tags) {
			prefix, entityType = splitTag(tags[ii])
		}
		if start >= 0 && endOfChunk(prevPrefix, prefix, prevType, entityType) {
			chunks = append(chunks, Chunk{Type: prevType, Start: start, End: ii})
			start = -1
		}
		if startOfChunk(prevPrefix, prefix, prevType, entityType) {
			start = ii
		}
		prevPrefix, prevType = prefix, entityType
	}
	return chunks
}

func endOfChunk(prevPrefix, prefix, prevType, entityType string) bool {
	switch prevPrefix {
	case "E", "S":
		return true
	case "B", "I":
		if prefix == "B" || prefix == "S" || prefix == "O" {
			return true
		}
	}
	return prevPrefix != "O" && prevType != entityType
}

func startOfChunk(prevPrefix, prefix, prevType, entityType string) bool {
	switch prefix {
	case "B", "S":
		return true
	case "E", "I":
		if prevPrefix == "E" || prevPrefix == "S" || prevPrefix == "O" {
			return true
		}
	}
	return prefix != "O" && prevType != entityType
}
