package labels

// InsideRule maps a tag code to the code used for continuation sub-word pieces of a word.
type InsideRule func(code int) int

// ParityRule converts odd codes ("B-" tags in the CoNLL-2003 ordering) to code+1, and leaves
// even codes unchanged.
//
// It is only correct for vocabularies where every "B-X" tag has an odd code immediately
// followed by its "I-X" tag, see Vocabulary.HasParityLayout.
func ParityRule(code int) int {
	if code%2 == 1 {
		return code + 1
	}
	return code
}

// TableRule returns an InsideRule that maps each "B-X" code to the code of "I-X" by name.
// Codes of "I-X", "O", and "B-X" tags without an "I-X" counterpart are returned unchanged,
// as are codes outside the vocabulary.
func (v *Vocabulary) TableRule() InsideRule {
	return func(code int) int {
		if code < 0 || code >= len(v.inside) {
			return code
		}
		return v.inside[code]
	}
}

// Inside returns the inside counterpart of code according to the vocabulary names.
func (v *Vocabulary) Inside(code int) int {
	return v.TableRule()(code)
}

// HasParityLayout reports whether ParityRule gives the same result as TableRule for every
// code of the vocabulary.
//
// Alignment doesn't check this: using ParityRule on a vocabulary without this layout
// produces wrong continuation tags.
func (v *Vocabulary) HasParityLayout() bool {
	for code := range v.names {
		if ParityRule(code) != v.inside[code] {
			return false
		}
	}
	return true
}

// Rule returns ParityRule if the vocabulary has the parity layout, or TableRule otherwise.
func (v *Vocabulary) Rule() InsideRule {
	if v.HasParityLayout() {
		return ParityRule
	}
	return v.TableRule()
}
