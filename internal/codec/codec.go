package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// Spec describes one logical value type's host representation: the
// PostgreSQL type of the typed projection column (v_typed), the short tag
// prefixed onto the self-describing raw encoding stored in datoms.v_raw, and
// the canonical string <-> Go value conversion used when a caller supplies
// row values as text (spec.md §4.A).
type Spec struct {
	Type ValueType
	// PGType is the PostgreSQL type keyword for this type's generated v_typed
	// column (spec.md §4.C) and for the column the view compiler emits.
	PGType string
	// Tag prefixes the canonical text form inside v_raw so the parent
	// relation stays homogeneous across attributes of differing type
	// (spec.md §4.A "Encoded representation").
	Tag string
	// Parse converts a text-form value (as received by a DML trigger's NEW
	// record, or supplied by a caller that only has strings) to its
	// canonical string form, validating along the way. ValueCoercionError
	// is returned for input that cannot be converted.
	Parse func(text string) (canonical string, err error)
}

var specs = map[ValueType]*Spec{
	Text:        {Type: Text, PGType: "text", Tag: "s", Parse: parseText},
	Int4:        {Type: Int4, PGType: "integer", Tag: "i4", Parse: parseInt(32, Int4)},
	Int8:        {Type: Int8, PGType: "bigint", Tag: "i8", Parse: parseInt(64, Int8)},
	Float4:      {Type: Float4, PGType: "real", Tag: "f4", Parse: parseFloat(32, Float4)},
	Float8:      {Type: Float8, PGType: "double precision", Tag: "f8", Parse: parseFloat(64, Float8)},
	Numeric:     {Type: Numeric, PGType: "numeric", Tag: "n", Parse: parseNumeric},
	Bool:        {Type: Bool, PGType: "boolean", Tag: "b", Parse: parseBool},
	Timestamptz: {Type: Timestamptz, PGType: "timestamptz", Tag: "z", Parse: parseTimestamptz},
	Date:        {Type: Date, PGType: "date", Tag: "d", Parse: parseDate},
	UUID:        {Type: UUID, PGType: "uuid", Tag: "u", Parse: parseUUID},
	Bytea:       {Type: Bytea, PGType: "bytea", Tag: "y", Parse: parseHex},
	JSONB:       {Type: JSONB, PGType: "jsonb", Tag: "j", Parse: parseJSONB},
	Ref:         {Type: Ref, PGType: "bigint", Tag: "r", Parse: parseInt(64, Ref)},
}

// Lookup returns the Spec for vt. It panics on an out-of-range ValueType
// because the set is closed and every caller constructs ValueType values
// only from codec.Parse or the constants above.
func Lookup(vt ValueType) *Spec {
	s, ok := specs[vt]
	if !ok {
		panic(fmt.Sprintf("codec: value type %d has no spec", int(vt)))
	}
	return s
}

// EncodeRaw builds the self-describing v_raw text for a canonical value of
// type vt: "<tag>:<canonical>".
func (s *Spec) EncodeRaw(canonical string) string {
	return s.Tag + ":" + canonical
}

// DecodeRaw strips this type's tag from a v_raw value, returning the
// canonical text that follows it. It is the Go-side counterpart of the SQL
// decoding GeneratedColumnExpr renders for the child relation.
func (s *Spec) DecodeRaw(raw string) (string, bool) {
	prefix := s.Tag + ":"
	if !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	return raw[len(prefix):], true
}

// GeneratedColumnExpr returns the SQL expression used in the child
// relation's `v_typed <pgtype> GENERATED ALWAYS AS (<expr>) STORED` clause
// (spec.md §4.C), decoding v_raw into this type's PostgreSQL representation.
func (s *Spec) GeneratedColumnExpr() string {
	body := fmt.Sprintf("substring(v_raw from %d)", len(s.Tag)+2)
	switch s.Type {
	case Bytea:
		return fmt.Sprintf("decode(%s, 'hex')", body)
	case JSONB:
		return fmt.Sprintf("(%s)::jsonb", body)
	case UUID:
		return fmt.Sprintf("(%s)::uuid", body)
	default:
		return fmt.Sprintf("(%s)::%s", body, s.PGType)
	}
}

// ValueCoercionError is returned when a row value cannot be converted to an
// attribute's declared logical type (spec.md §7).
type ValueCoercionError struct {
	ValueType ValueType
	Input     string
	Reason    string
}

func (e *ValueCoercionError) Error() string {
	return fmt.Sprintf("codec: cannot coerce %q to %s: %s", e.Input, e.ValueType, e.Reason)
}

func coercionErr(vt ValueType, text string, err error) error {
	return &ValueCoercionError{ValueType: vt, Input: text, Reason: err.Error()}
}

func parseText(text string) (string, error) {
	return text, nil
}

func parseInt(bits int, vt ValueType) func(string) (string, error) {
	return func(text string) (string, error) {
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, bits)
		if err != nil {
			return "", coercionErr(vt, text, err)
		}
		return strconv.FormatInt(n, 10), nil
	}
}

func parseFloat(bits int, vt ValueType) func(string) (string, error) {
	return func(text string) (string, error) {
		f, err := strconv.ParseFloat(strings.TrimSpace(text), bits)
		if err != nil {
			return "", coercionErr(vt, text, err)
		}
		return strconv.FormatFloat(f, 'g', -1, bits), nil
	}
}

func parseNumeric(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", coercionErr(Numeric, text, fmt.Errorf("empty numeric literal"))
	}
	for i, r := range text {
		if r == '-' && i == 0 {
			continue
		}
		if r == '.' || (r >= '0' && r <= '9') {
			continue
		}
		return "", coercionErr(Numeric, text, fmt.Errorf("not a decimal literal"))
	}
	return text, nil
}

func parseBool(text string) (string, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(text))
	if err != nil {
		return "", coercionErr(Bool, text, err)
	}
	if b {
		return "true", nil
	}
	return "false", nil
}

func parseUUID(text string) (string, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if len(text) != 36 {
		return "", coercionErr(UUID, text, fmt.Errorf("expected 36-character UUID"))
	}
	for i, r := range text {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if r != '-' {
				return "", coercionErr(UUID, text, fmt.Errorf("malformed UUID"))
			}
			continue
		}
		if !isHexDigit(r) {
			return "", coercionErr(UUID, text, fmt.Errorf("malformed UUID"))
		}
	}
	return text, nil
}

func parseHex(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "\\x")
	if len(text)%2 != 0 {
		return "", coercionErr(Bytea, text, fmt.Errorf("odd-length hex string"))
	}
	for _, r := range text {
		if !isHexDigit(r) {
			return "", coercionErr(Bytea, text, fmt.Errorf("invalid hex digit"))
		}
	}
	return strings.ToLower(text), nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func parseJSONB(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", coercionErr(JSONB, text, fmt.Errorf("empty JSON document"))
	}
	return text, nil
}

// timestamptzLayouts are tried in order; the first one that parses wins.
var timestamptzLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
}

func parseTimestamptz(text string) (string, error) {
	text = strings.TrimSpace(text)
	if _, err := parseTimeAny(text, timestamptzLayouts); err != nil {
		return "", coercionErr(Timestamptz, text, err)
	}
	return text, nil
}

func parseDate(text string) (string, error) {
	text = strings.TrimSpace(text)
	if len(text) != 10 || text[4] != '-' || text[7] != '-' {
		return "", coercionErr(Date, text, fmt.Errorf("expected YYYY-MM-DD"))
	}
	return text, nil
}
