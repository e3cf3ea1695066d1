package builtin

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"tableflow/internal/records"
)

// nbspReplacer folds non-breaking spaces, including the U+00C2 U+00A0 mojibake
// left by Latin-1 round trips, into plain spaces.
var nbspReplacer = strings.NewReplacer("\u00c2\u00a0", " ", "\u00a0", " ")

// Normalize cleans string values: NFC composition, non-breaking spaces to
// spaces, and surrounding whitespace trimmed. With Fields set only those
// fields are touched. EmptyToNil turns strings that end up empty into nil.
type Normalize struct {
	Fields     []string
	EmptyToNil bool
}

// Apply implements transformer.Transformer. It mutates rec in place.
func (n Normalize) Apply(rec records.Record) (records.Record, error) {
	if len(n.Fields) == 0 {
		for k, v := range rec {
			rec[k] = n.clean(v)
		}
		return rec, nil
	}
	for _, k := range n.Fields {
		if v, ok := rec[k]; ok {
			rec[k] = n.clean(v)
		}
	}
	return rec, nil
}

func (n Normalize) clean(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(nbspReplacer.Replace(norm.NFC.String(s)))
	if s == "" && n.EmptyToNil {
		return nil
	}
	return s
}
