package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/bloom/internal/models"
)

// formatFitbitStatus formats the link state as markdown; nil means not linked
func formatFitbitStatus(cred *models.AccessCredential) string {
	var sb strings.Builder
	sb.WriteString("## Fitbit\n\n")

	if cred == nil {
		sb.WriteString("**Linked:** no\n")
		return sb.String()
	}

	sb.WriteString("**Linked:** yes\n")
	sb.WriteString(fmt.Sprintf("**Refresh token:** %t\n", cred.RefreshToken != ""))
	if expires := cred.ExpiresAt(); !expires.IsZero() {
		sb.WriteString(fmt.Sprintf("**Access token expires:** %s\n", expires.Format(time.RFC3339)))
	}
	return sb.String()
}

// formatFitbitData renders a Fitbit response under a heading
func formatFitbitData(heading string, data map[string]interface{}) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n\n", heading))

	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		sb.WriteString(fmt.Sprintf("Failed to format response: %v\n", err))
		return sb.String()
	}

	sb.WriteString("```json\n")
	sb.Write(body)
	sb.WriteString("\n```\n")
	return sb.String()
}

func formatProgress(store progressReader, includeResponses bool) string {
	state := store.Snapshot()

	var sb strings.Builder
	sb.WriteString("## Questionnaire\n\n")
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", state.Status))
	sb.WriteString(fmt.Sprintf("**Domain:** %s (index %d)\n", store.CurrentDomainTitle(), state.CurrentDomainIndex))
	sb.WriteString(fmt.Sprintf("**Question index:** %d\n", state.CurrentQuestionIndex))
	sb.WriteString(fmt.Sprintf("**Answered:** %d (%d%%)\n", len(state.Responses), store.ProgressPercentage()))
	sb.WriteString(fmt.Sprintf("**Position:** %d%%\n", store.NavigationPercentage()))
	sb.WriteString(fmt.Sprintf("**Sensitive disclosures:** %d\n", len(state.SensitiveDisclosures)))

	if state.LastQuestion != nil {
		sb.WriteString(fmt.Sprintf("**Resume at:** %s (%s)\n", state.LastQuestion.QuestionID, state.LastQuestion.DomainID))
	}

	if includeResponses && len(state.Responses) > 0 {
		sb.WriteString("\n### Responses\n\n")
		for _, r := range state.Responses {
			sb.WriteString(fmt.Sprintf("- **%s** (%s): %s", r.QuestionID, r.DomainID, r.Response))
			if r.Flag != "" {
				sb.WriteString(fmt.Sprintf(" [%s]", r.Flag))
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func formatQuestion(domainTitle string, q *models.Question) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n\n", domainTitle))
	sb.WriteString(fmt.Sprintf("**%s**\n\n", q.Text))
	sb.WriteString(fmt.Sprintf("**ID:** %s\n", q.ID))
	if q.Type != "" {
		sb.WriteString(fmt.Sprintf("**Type:** %s\n", q.Type))
	}
	if len(q.Options) > 0 {
		sb.WriteString(fmt.Sprintf("**Options:** %s\n", strings.Join(q.Options, ", ")))
	}
	if q.Hint != "" {
		sb.WriteString(fmt.Sprintf("**Hint:** %s\n", q.Hint))
	}
	return sb.String()
}
