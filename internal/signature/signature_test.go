package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

func TestValidate_AccumulatesAllErrors(t *testing.T) {
	fields := []rlmtypes.FieldSpec{
		{Name: "name", Type: rlmtypes.FieldString, Required: true},
		{Name: "age", Type: rlmtypes.FieldInteger, Required: true},
		{Name: "role", Type: rlmtypes.FieldEnum, EnumValues: []string{"admin", "user"}, Required: true},
	}
	value := map[string]interface{}{
		"age":  "not a number",
		"role": "superuser",
	}

	errs := Validate(value, fields)
	require.Len(t, errs, 3)
	assert.Equal(t, "name", errs[0].Path)
	assert.Equal(t, "age", errs[1].Path)
	assert.Equal(t, "role", errs[2].Path)
}

func TestValidate_NestedObjectPath(t *testing.T) {
	fields := []rlmtypes.FieldSpec{
		{
			Name: "user", Type: rlmtypes.FieldObject, Required: true,
			Fields: []rlmtypes.FieldSpec{
				{Name: "address", Type: rlmtypes.FieldObject, Required: true, Fields: []rlmtypes.FieldSpec{
					{Name: "city", Type: rlmtypes.FieldString, Required: true},
				}},
			},
		},
	}
	value := map[string]interface{}{
		"user": map[string]interface{}{
			"address": map[string]interface{}{
				"city": 42,
			},
		},
	}

	errs := Validate(value, fields)
	require.Len(t, errs, 1)
	assert.Equal(t, "user.address.city", errs[0].Path)
}

func TestValidate_ListElements(t *testing.T) {
	elem := rlmtypes.FieldSpec{Type: rlmtypes.FieldInteger}
	fields := []rlmtypes.FieldSpec{
		{Name: "scores", Type: rlmtypes.FieldList, ElementType: &elem, Required: true},
	}
	value := map[string]interface{}{
		"scores": []interface{}{1.0, "bad", 3.0},
	}

	errs := Validate(value, fields)
	require.Len(t, errs, 1)
	assert.Equal(t, "scores[1]", errs[0].Path)
}

func TestValidate_OptionalMissingIsFine(t *testing.T) {
	fields := []rlmtypes.FieldSpec{
		{Name: "nickname", Type: rlmtypes.FieldString, Required: false},
	}
	errs := Validate(map[string]interface{}{}, fields)
	assert.Nil(t, errs)
}

func TestApplyDefaults_FillsMissingOptional(t *testing.T) {
	fields := []rlmtypes.FieldSpec{
		{Name: "verbosity", Type: rlmtypes.FieldString, Default: "normal"},
	}
	value := map[string]interface{}{}
	ApplyDefaults(value, fields)
	assert.Equal(t, "normal", value["verbosity"])
}

func TestApplyDefaults_DoesNotOverwritePresent(t *testing.T) {
	fields := []rlmtypes.FieldSpec{
		{Name: "verbosity", Type: rlmtypes.FieldString, Default: "normal"},
	}
	value := map[string]interface{}{"verbosity": "debug"}
	ApplyDefaults(value, fields)
	assert.Equal(t, "debug", value["verbosity"])
}

func TestPromptHint(t *testing.T) {
	elem := rlmtypes.FieldSpec{Type: rlmtypes.FieldString}
	f := rlmtypes.FieldSpec{Type: rlmtypes.FieldList, ElementType: &elem}
	assert.Equal(t, "list of string", PromptHint(f))
}

func TestInferSchema_RecognizesPrimitives(t *testing.T) {
	value := map[string]interface{}{
		"name":  "alice",
		"age":   float64(30),
		"score": float64(9.5),
		"admin": true,
	}
	fields := InferSchema(value)
	byName := map[string]rlmtypes.FieldSpec{}
	for _, f := range fields {
		byName[f.Name] = f
	}
	assert.Equal(t, rlmtypes.FieldString, byName["name"].Type)
	assert.Equal(t, rlmtypes.FieldInteger, byName["age"].Type)
	assert.Equal(t, rlmtypes.FieldFloat, byName["score"].Type)
	assert.Equal(t, rlmtypes.FieldBoolean, byName["admin"].Type)
}
