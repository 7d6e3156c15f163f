package grading

import (
	"encoding/json"
	"strconv"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// Answer is a stored answer value decoded against its question type.
// Exactly one of the concrete types below is produced by DecodeAnswer.
type Answer interface {
	answer()
}

// SingleChoiceAnswer holds one scalar choice.
type SingleChoiceAnswer struct {
	Key string
}

// MultiChoiceAnswer holds the set of chosen scalars.
type MultiChoiceAnswer struct {
	Keys map[string]struct{}
}

// TextAnswer holds a free-text response.
type TextAnswer struct {
	Text string
}

// ImageAnswer holds a reference to an uploaded image.
type ImageAnswer struct {
	Ref string
}

// NoAnswer means the student left the question blank.
type NoAnswer struct{}

// InvalidAnswer is a value whose shape does not fit the question type. It is always scored as incorrect.
type InvalidAnswer struct {
	Raw any
}

func (SingleChoiceAnswer) answer() {}
func (MultiChoiceAnswer) answer()  {}
func (TextAnswer) answer()         {}
func (ImageAnswer) answer()        {}
func (NoAnswer) answer()           {}
func (InvalidAnswer) answer()      {}

// DecodeAnswer converts a loosely typed JSON value into an Answer for the given question type.
// It never fails: anything that does not fit becomes InvalidAnswer.
func DecodeAnswer(t model.QuestionType, raw any) Answer {
	if raw == nil {
		return NoAnswer{}
	}

	switch t {
	case model.QuestionTypeSingleChoice:
		key, ok := scalarKey(raw)
		if !ok {
			return InvalidAnswer{Raw: raw}
		}
		return SingleChoiceAnswer{Key: key}

	case model.QuestionTypeMultiChoice:
		keys, ok := scalarSet(raw)
		if !ok {
			return InvalidAnswer{Raw: raw}
		}
		return MultiChoiceAnswer{Keys: keys}

	case model.QuestionTypeText:
		s, ok := raw.(string)
		if !ok {
			return InvalidAnswer{Raw: raw}
		}
		return TextAnswer{Text: s}

	case model.QuestionTypeImageUpload:
		s, ok := raw.(string)
		if !ok {
			return InvalidAnswer{Raw: raw}
		}
		return ImageAnswer{Ref: s}
	}

	return InvalidAnswer{Raw: raw}
}

// scalarKey returns a type-tagged canonical key so that "4", 4 and true never compare equal.
func scalarKey(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return "s:" + x, true
	case bool:
		return "b:" + strconv.FormatBool(x), true
	case float64:
		return numberKey(x), true
	case float32:
		return numberKey(float64(x)), true
	case int:
		return numberKey(float64(x)), true
	case int32:
		return numberKey(float64(x)), true
	case int64:
		return numberKey(float64(x)), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return "", false
		}
		return numberKey(f), true
	}
	return "", false
}

func numberKey(f float64) string {
	return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
}

// scalarSet converts a list of scalars into a set. Nested lists or objects make the whole value invalid.
func scalarSet(v any) (map[string]struct{}, bool) {
	var items []any
	switch x := v.(type) {
	case []any:
		items = x
	case []string:
		items = make([]any, len(x))
		for i, s := range x {
			items[i] = s
		}
	default:
		return nil, false
	}

	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		key, ok := scalarKey(item)
		if !ok {
			return nil, false
		}
		set[key] = struct{}{}
	}
	return set, true
}

// ScalarEqual reports whether two JSON scalars are equal under type-sensitive comparison.
func ScalarEqual(a, b any) bool {
	ka, ok := scalarKey(a)
	if !ok {
		return false
	}
	kb, ok := scalarKey(b)
	return ok && ka == kb
}
