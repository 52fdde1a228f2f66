package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestReplaceKeyReferences(t *testing.T) {
	logger := arbor.NewLogger()
	kvMap := map[string]string{
		"fitbit-client-secret": "s3cret",
		"fitbit-client-id":     "23ABCD",
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single", "{fitbit-client-secret}", "s3cret"},
		{"embedded", "id={fitbit-client-id}&secret={fitbit-client-secret}", "id=23ABCD&secret=s3cret"},
		{"missing key left unchanged", "{unknown-key}", "{unknown-key}"},
		{"no references", "plain", "plain"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplaceKeyReferences(tt.input, kvMap, logger))
		})
	}
}

func TestReplaceInStruct_Config(t *testing.T) {
	logger := arbor.NewLogger()
	config := NewDefaultConfig()
	config.Fitbit.ClientID = "{fitbit-client-id}"
	config.Fitbit.ClientSecret = "{fitbit-client-secret}"
	config.Fitbit.Scopes = []string{"activity", "{extra-scope}"}

	kvMap := map[string]string{
		"fitbit-client-id":     "23ABCD",
		"fitbit-client-secret": "s3cret",
		"extra-scope":          "nutrition",
	}

	require.NoError(t, ReplaceInStruct(config, kvMap, logger))
	assert.Equal(t, "23ABCD", config.Fitbit.ClientID)
	assert.Equal(t, "s3cret", config.Fitbit.ClientSecret)
	assert.Equal(t, []string{"activity", "nutrition"}, config.Fitbit.Scopes)
}

func TestReplaceInStruct_RequiresStructPointer(t *testing.T) {
	logger := arbor.NewLogger()

	assert.Error(t, ReplaceInStruct(Config{}, map[string]string{}, logger))

	s := "x"
	assert.Error(t, ReplaceInStruct(&s, map[string]string{}, logger))
}
