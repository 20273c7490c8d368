// Package signature implements the Signature Layer: validation and
// default-filling of model I/O against a FieldSpec tree, the same
// accumulate-don't-short-circuit style the teacher's config package uses
// when validating a loaded config.json against its own schema.
package signature

import (
	"fmt"
	"strconv"

	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// ValidationError is a single accumulated validation failure, carrying the
// dotted field path at which it occurred.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a non-empty slice of ValidationError, itself an
// error so callers can use errors.As against the slice type if they need
// the full list rather than the first message.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors, first: %s", len(e), e[0].Error())
}

// Validate descends value against fields, accumulating every error rather
// than stopping at the first. value is expected to be the result of
// unmarshaling a JSON object into map[string]interface{} (nested objects
// and lists follow the same shape).
func Validate(value map[string]interface{}, fields []rlmtypes.FieldSpec) ValidationErrors {
	var errs ValidationErrors
	validateFields("", value, fields, &errs)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateFields(prefix string, value map[string]interface{}, fields []rlmtypes.FieldSpec, errs *ValidationErrors) {
	for _, f := range fields {
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}
		raw, present := value[f.Name]
		if !present || raw == nil {
			if f.Required && f.Default == nil {
				*errs = append(*errs, ValidationError{Path: path, Message: "required field missing"})
			}
			continue
		}
		validateOne(path, raw, f, errs)
	}
}

func validateOne(path string, raw interface{}, f rlmtypes.FieldSpec, errs *ValidationErrors) {
	switch f.Type {
	case rlmtypes.FieldString:
		if _, ok := raw.(string); !ok {
			*errs = append(*errs, ValidationError{Path: path, Message: "expected string"})
		}
	case rlmtypes.FieldInteger:
		if !isIntegerValue(raw) {
			*errs = append(*errs, ValidationError{Path: path, Message: "expected integer"})
		}
	case rlmtypes.FieldFloat:
		if !isNumericValue(raw) {
			*errs = append(*errs, ValidationError{Path: path, Message: "expected float"})
		}
	case rlmtypes.FieldBoolean:
		if _, ok := raw.(bool); !ok {
			*errs = append(*errs, ValidationError{Path: path, Message: "expected boolean"})
		}
	case rlmtypes.FieldList:
		list, ok := raw.([]interface{})
		if !ok {
			*errs = append(*errs, ValidationError{Path: path, Message: "expected list"})
			return
		}
		if f.ElementType == nil {
			return
		}
		for i, elem := range list {
			elemPath := fmt.Sprintf("%s[%d]", path, i)
			validateOne(elemPath, elem, *f.ElementType, errs)
		}
	case rlmtypes.FieldObject:
		obj, ok := raw.(map[string]interface{})
		if !ok {
			*errs = append(*errs, ValidationError{Path: path, Message: "expected object"})
			return
		}
		validateFields(path, obj, f.Fields, errs)
	case rlmtypes.FieldEnum:
		str, ok := raw.(string)
		if !ok {
			*errs = append(*errs, ValidationError{Path: path, Message: "expected enum string"})
			return
		}
		if !containsString(f.EnumValues, str) {
			*errs = append(*errs, ValidationError{Path: path, Message: fmt.Sprintf("%q is not one of %v", str, f.EnumValues)})
		}
	case rlmtypes.FieldCustom:
		// Custom types are validated by implementer-provided logic outside
		// this package; presence is all that's checked here.
	default:
		*errs = append(*errs, ValidationError{Path: path, Message: "unknown field type"})
	}
}

func isIntegerValue(raw interface{}) bool {
	switch v := raw.(type) {
	case int, int32, int64:
		return true
	case float64:
		return v == float64(int64(v))
	}
	return false
}

func isNumericValue(raw interface{}) bool {
	switch raw.(type) {
	case int, int32, int64, float32, float64:
		return true
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ApplyDefaults fills any field absent from value with its FieldSpec
// default, recursing into nested objects. value is mutated in place.
func ApplyDefaults(value map[string]interface{}, fields []rlmtypes.FieldSpec) {
	for _, f := range fields {
		raw, present := value[f.Name]
		if !present || raw == nil {
			if f.Default != nil {
				value[f.Name] = f.Default
			}
			continue
		}
		if f.Type == rlmtypes.FieldObject {
			if obj, ok := raw.(map[string]interface{}); ok {
				ApplyDefaults(obj, f.Fields)
			}
		}
	}
}

// PromptHint renders a field's type as the short type name used in
// generated prompt instructions, e.g. "string", "integer", "list of string".
func PromptHint(f rlmtypes.FieldSpec) string {
	switch f.Type {
	case rlmtypes.FieldList:
		if f.ElementType != nil {
			return "list of " + PromptHint(*f.ElementType)
		}
		return "list"
	case rlmtypes.FieldEnum:
		return "one of " + joinQuoted(f.EnumValues)
	case rlmtypes.FieldCustom:
		return f.CustomType
	default:
		return f.Type.String()
	}
}

func joinQuoted(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += strconv.Quote(v)
	}
	return out
}

// InferSchema builds a FieldSpec list describing the shape of a generic
// decoded JSON value (map[string]interface{}), recognizing string/
// integer/float/bool/list/object and falling back to Custom(typename) for
// anything else (e.g. an already-typed Go value passed through).
func InferSchema(value map[string]interface{}) []rlmtypes.FieldSpec {
	fields := make([]rlmtypes.FieldSpec, 0, len(value))
	for name, raw := range value {
		fields = append(fields, inferField(name, raw))
	}
	return fields
}

func inferField(name string, raw interface{}) rlmtypes.FieldSpec {
	switch v := raw.(type) {
	case string:
		return rlmtypes.FieldSpec{Name: name, Type: rlmtypes.FieldString}
	case bool:
		return rlmtypes.FieldSpec{Name: name, Type: rlmtypes.FieldBoolean}
	case float64:
		if v == float64(int64(v)) {
			return rlmtypes.FieldSpec{Name: name, Type: rlmtypes.FieldInteger}
		}
		return rlmtypes.FieldSpec{Name: name, Type: rlmtypes.FieldFloat}
	case []interface{}:
		var elem *rlmtypes.FieldSpec
		if len(v) > 0 {
			f := inferField(name, v[0])
			elem = &f
		}
		return rlmtypes.FieldSpec{Name: name, Type: rlmtypes.FieldList, ElementType: elem}
	case map[string]interface{}:
		return rlmtypes.FieldSpec{Name: name, Type: rlmtypes.FieldObject, Fields: InferSchema(v)}
	default:
		return rlmtypes.FieldSpec{Name: name, Type: rlmtypes.FieldCustom, CustomType: fmt.Sprintf("%T", raw)}
	}
}
