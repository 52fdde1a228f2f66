package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFromFlags(t *testing.T) {
	tests := []struct {
		name                          string
		isActive, isPaused, completed bool
		want                          QuestionnaireStatus
	}{
		{"none", false, false, false, StatusIdle},
		{"active", true, false, false, StatusActive},
		{"paused", false, true, false, StatusPaused},
		{"paused wins over active", true, true, false, StatusPaused},
		{"completed wins over everything", true, true, true, StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFromFlags(tt.isActive, tt.isPaused, tt.completed))
		})
	}
}

func TestDecodeQuestionnaireState_LegacyDocument(t *testing.T) {
	legacy := `{
		"state": {
			"isActive": false,
			"isPaused": true,
			"isCompleted": false,
			"currentDomainIndex": 2,
			"currentQuestionIndex": 1,
			"responses": [
				{"questionId": "q1", "domainId": "d1", "response": "fine", "flag": "", "timestamp": "2025-02-03T04:05:06.789Z"}
			],
			"sensitiveDisclosures": [],
			"lastQuestion": null
		},
		"version": 0
	}`

	state, err := DecodeQuestionnaireState([]byte(legacy))
	require.NoError(t, err)

	assert.Equal(t, StatusPaused, state.Status)
	assert.Equal(t, 2, state.CurrentDomainIndex)
	assert.Equal(t, 1, state.CurrentQuestionIndex)
	require.Len(t, state.Responses, 1)
	assert.True(t, state.Responses[0].Timestamp.Equal(time.Date(2025, 2, 3, 4, 5, 6, 789000000, time.UTC)))
	assert.NotNil(t, state.SensitiveDisclosures)
	assert.Nil(t, state.LastQuestion)
}

func TestEncodeQuestionnaireState_WritesDerivedFlags(t *testing.T) {
	state := NewQuestionnaireState()
	state.Status = StatusCompleted
	state.Responses = nil

	data, err := EncodeQuestionnaireState(state)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, QuestionnaireDocumentVersion, raw["version"])

	inner := raw["state"].(map[string]interface{})
	assert.Equal(t, "completed", inner["status"])
	assert.Equal(t, true, inner["isCompleted"])
	assert.Equal(t, false, inner["isActive"])
	assert.Equal(t, []interface{}{}, inner["responses"])

	decoded, err := DecodeQuestionnaireState(data)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, decoded.Status)
}

func TestDecodeQuestionnaireState_Errors(t *testing.T) {
	_, err := DecodeQuestionnaireState([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeQuestionnaireState([]byte(`{"version": 99, "state": {}}`))
	assert.Error(t, err)
}

func TestQuestionnaireState_CloneIsDeep(t *testing.T) {
	state := NewQuestionnaireState()
	state.Responses = append(state.Responses, Response{QuestionID: "q1"})
	state.LastQuestion = &LastQuestion{QuestionID: "q1"}

	clone := state.Clone()
	clone.Responses[0].QuestionID = "changed"
	clone.LastQuestion.QuestionID = "changed"

	assert.Equal(t, "q1", state.Responses[0].QuestionID)
	assert.Equal(t, "q1", state.LastQuestion.QuestionID)
}

func TestAccessCredential_Expiry(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	assert.False(t, (&AccessCredential{}).Expired(now))
	assert.True(t, (&AccessCredential{ExpiresAtEpochMs: now.UnixMilli()}).Expired(now))
	assert.False(t, (&AccessCredential{ExpiresAtEpochMs: now.UnixMilli() + 1}).Expired(now))

	assert.Equal(t, "1700000000000", FormatEpochMs(now))
	assert.Equal(t, int64(1700000000000), ParseEpochMs("1700000000000"))
	assert.Equal(t, int64(0), ParseEpochMs("soon"))
	assert.True(t, (&AccessCredential{}).ExpiresAt().IsZero())
}
