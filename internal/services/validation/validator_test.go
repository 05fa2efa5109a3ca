package validation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const deploySchema = `{
	"type": "object",
	"properties": {
		"service_name": {"type": "string"},
		"replicas": {"type": "integer", "minimum": 1}
	},
	"required": ["service_name"],
	"additionalProperties": false
}`

func newValidator(t *testing.T) *SchemaValidator {
	t.Helper()
	v, err := NewSchemaValidator(8)
	require.NoError(t, err)
	return v
}

func TestValidateAcceptsConformingArguments(t *testing.T) {
	v := newValidator(t)
	err := v.Validate("deploy", deploySchema, map[string]any{
		"service_name": "api",
		"replicas":     3,
	})
	require.NoError(t, err)
}

func TestValidateReportsMissingRequiredField(t *testing.T) {
	v := newValidator(t)
	err := v.Validate("deploy", deploySchema, map[string]any{"replicas": 3})
	require.Error(t, err)
	require.Contains(t, err.Error(), "service_name")
}

func TestValidateReportsPathOfViolation(t *testing.T) {
	v := newValidator(t)
	err := v.Validate("deploy", deploySchema, map[string]any{
		"service_name": "api",
		"replicas":     0,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "$.replicas")
}

func TestValidateRejectsUnknownProperties(t *testing.T) {
	v := newValidator(t)
	err := v.Validate("deploy", deploySchema, map[string]any{
		"service_name": "api",
		"force":        true,
	})
	require.Error(t, err)
}

func TestValidateCachesCompiledSchemas(t *testing.T) {
	v := newValidator(t)
	require.Equal(t, 0, v.CacheLen())

	require.NoError(t, v.Validate("deploy", deploySchema, map[string]any{"service_name": "api"}))
	require.Equal(t, 1, v.CacheLen())

	require.NoError(t, v.Validate("deploy", deploySchema, map[string]any{"service_name": "web"}))
	require.Equal(t, 1, v.CacheLen())
}

func TestValidateRejectsMalformedSchema(t *testing.T) {
	v := newValidator(t)
	err := v.Validate("broken", `{"type": `, map[string]any{})
	require.Error(t, err)
}
