package sentencepiece

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// pieceType is the SentencePiece.Type enum of the ModelProto.
type pieceType int

const (
	pieceNormal  pieceType = 1
	pieceUnknown pieceType = 2
	pieceControl pieceType = 3
)

// Field numbers of the ModelProto messages read here.
const (
	modelPiecesField protowire.Number = 1
	pieceTextField   protowire.Number = 1
	pieceTypeField   protowire.Number = 3
)

// piece is one entry of the vocabulary of a SentencePiece model.
type piece struct {
	text string
	typ  pieceType
}

// readPieces decodes the vocabulary of a serialized ModelProto, indexed by token id.
// go-sentencepiece only exposes the control ids of "<bos>" and "<eos>", so the pieces are read
// directly to find the special tokens of models using "<s>" and "</s>".
func readPieces(content []byte) ([]piece, error) {
	var pieces []piece
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "invalid sentencepiece model")
		}
		content = content[n:]
		if num == modelPiecesField && typ == protowire.BytesType {
			value, n := protowire.ConsumeBytes(content)
			if n < 0 {
				return nil, errors.Wrapf(protowire.ParseError(n), "invalid piece %d of sentencepiece model", len(pieces))
			}
			p, err := readPiece(value)
			if err != nil {
				return nil, errors.WithMessagef(err, "piece %d of sentencepiece model", len(pieces))
			}
			pieces = append(pieces, p)
			content = content[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, content)
		if n < 0 {
			return nil, errors.Wrapf(protowire.ParseError(n), "invalid field %d of sentencepiece model", num)
		}
		content = content[n:]
	}
	return pieces, nil
}

func readPiece(content []byte) (piece, error) {
	p := piece{typ: pieceNormal}
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return p, protowire.ParseError(n)
		}
		content = content[n:]
		switch {
		case num == pieceTextField && typ == protowire.BytesType:
			value, n := protowire.ConsumeString(content)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.text = value
			content = content[n:]
		case num == pieceTypeField && typ == protowire.VarintType:
			value, n := protowire.ConsumeVarint(content)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.typ = pieceType(value)
			content = content[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, content)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			content = content[n:]
		}
	}
	return p, nil
}

// controlID returns the id of the first candidate that is a control piece, or -1.
// Empty candidates are skipped.
func controlID(pieces []piece, candidates ...string) int {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		for id, p := range pieces {
			if p.text == candidate && p.typ == pieceControl {
				return id
			}
		}
	}
	return -1
}
