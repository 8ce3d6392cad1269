package headers

import (
	"fmt"
	"strconv"
	"strings"
)

// ConversionError reports a header whose raw value does not match its
// declared type.
type ConversionError struct {
	Name string
	Raw  string
	Type TypeTag
	Err  error
}

func (e *ConversionError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("headers: cannot convert %q to %s: %v", e.Raw, e.Type, e.Err)
	}
	return fmt.Sprintf("headers: cannot convert header %q value %q to %s: %v", e.Name, e.Raw, e.Type, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Coerce converts raw into a Value of the declared type. TypeString never
// fails and unknown tags degrade to TypeString.
func Coerce(raw string, tag TypeTag) (Value, error) {
	switch tag {
	case TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return Value{}, &ConversionError{Raw: raw, Type: tag, Err: err}
		}
		return Int32(int32(n)), nil
	case TypeLong:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, &ConversionError{Raw: raw, Type: tag, Err: err}
		}
		return Int64(n), nil
	case TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, &ConversionError{Raw: raw, Type: tag, Err: err}
		}
		return Bool(b), nil
	case TypeDouble:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, &ConversionError{Raw: raw, Type: tag, Err: err}
		}
		return Float64(f), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return Value{}, &ConversionError{Raw: raw, Type: tag, Err: err}
		}
		return Float32(float32(f)), nil
	default:
		return String(raw), nil
	}
}

// Raw is a caller-supplied header before coercion.
type Raw struct {
	Name  string  `json:"name" mapstructure:"name"`
	Value string  `json:"value" mapstructure:"value"`
	Type  TypeTag `json:"type" mapstructure:"type"`
}

// CoerceAll converts every raw header into a Set. Entries with a blank name or
// value are skipped; names and values are trimmed first. A header that fails
// conversion is left out of the set and reported as a warning instead of
// aborting the whole batch.
func CoerceAll(raws []Raw) (*Set, []*ConversionError) {
	set := NewSet()
	var warnings []*ConversionError

	for _, r := range raws {
		name := strings.TrimSpace(r.Name)
		raw := strings.TrimSpace(r.Value)
		if name == "" || raw == "" {
			continue
		}

		v, err := Coerce(raw, ParseTypeTag(string(r.Type)))
		if err != nil {
			convErr := err.(*ConversionError)
			convErr.Name = name
			warnings = append(warnings, convErr)
			continue
		}
		set.Put(name, v)
	}

	return set, warnings
}
