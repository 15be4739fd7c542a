package conll2003

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/gomlx/conll-ner/labels"
	"github.com/pkg/errors"
)

// docStart is the word of the lines separating documents.
const docStart = "-DOCSTART-"

// ReadCoNLL reads examples in the text format of the CoNLL-2003 shared task: one word per line
// with 4 space separated columns (word, POS tag, chunk tag, NER tag), and blank lines between
// sentences. "-DOCSTART-" lines are skipped.
//
// NER tag names are converted to codes with vocab, and examples are given sequential IDs
// starting from "0".
func ReadCoNLL(r io.Reader, vocab *labels.Vocabulary) ([]Example, error) {
	posCodes := indexOf(POSTags)
	chunkCodes := indexOf(ChunkTags)

	var examples []Example
	current := Example{}
	flush := func() {
		if len(current.Tokens) == 0 {
			return
		}
		current.ID = strconv.Itoa(len(examples))
		examples = append(examples, current)
		current = Example{}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			flush()
			continue
		}
		if fields[0] == docStart {
			continue
		}
		if len(fields) != 4 {
			return nil, errors.Errorf("line %d: expected 4 columns (word, POS, chunk, NER), got %d", lineNum, len(fields))
		}
		pos, found := posCodes[fields[1]]
		if !found {
			return nil, errors.Errorf("line %d: unknown POS tag %q", lineNum, fields[1])
		}
		chunk, found := chunkCodes[fields[2]]
		if !found {
			return nil, errors.Errorf("line %d: unknown chunk tag %q", lineNum, fields[2])
		}
		ner, err := vocab.Code(fields[3])
		if err != nil {
			return nil, errors.WithMessagef(err, "line %d", lineNum)
		}
		current.Tokens = append(current.Tokens, fields[0])
		current.POSTags = append(current.POSTags, pos)
		current.ChunkTags = append(current.ChunkTags, chunk)
		current.NERTags = append(current.NERTags, ner)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read CoNLL text")
	}
	flush()
	return examples, nil
}

func indexOf(names []string) map[string]int {
	codes := make(map[string]int, len(names))
	for code, name := range names {
		codes[name] = code
	}
	return codes
}
