package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/models"
	"github.com/ternarybob/bloom/internal/services/fitbit"
)

// fitbitReader is the read side of the Fitbit link used by the tools
type fitbitReader interface {
	CheckConnection(ctx context.Context) bool
	Credential(ctx context.Context) (*models.AccessCredential, error)
	GetDataForRange(ctx context.Context, endpoint, startDate, endDate string) map[string]interface{}
}

// progressReader is the read side of the questionnaire store used by the tools
type progressReader interface {
	Snapshot() models.QuestionnaireState
	CurrentQuestion() *models.Question
	CurrentDomainTitle() string
	ProgressPercentage() int
	NavigationPercentage() int
}

// dailyFetcher matches the Linker per-day wrappers
type dailyFetcher func(ctx context.Context, date string) map[string]interface{}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleFitbitStatus implements the fitbit_status tool
func handleFitbitStatus(linker fitbitReader, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !linker.CheckConnection(ctx) {
			return textResult(formatFitbitStatus(nil)), nil
		}

		cred, err := linker.Credential(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to read Fitbit credential")
			return textResult(formatFitbitStatus(nil)), nil
		}
		return textResult(formatFitbitStatus(cred)), nil
	}
}

// handleFitbitDaily implements the single-date Fitbit tools
func handleFitbitDaily(fetch dailyFetcher, title string, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		date := request.GetString("date", "today")
		if !fitbit.ValidDate(date) {
			return textResult(fmt.Sprintf("Error: invalid date %q, expected YYYY-MM-DD or 'today'", date)), nil
		}

		data := fetch(ctx, date)
		if data == nil {
			logger.Warn().Str("date", date).Str("tool", title).Msg("Fitbit request returned no data")
			return textResult("No data returned. The Fitbit account may not be linked or the request failed."), nil
		}
		return textResult(formatFitbitData(fmt.Sprintf("%s for %s", title, date), data)), nil
	}
}

// handleFitbitRange implements the fitbit_range tool
func handleFitbitRange(linker fitbitReader, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resource, err := request.RequireString("resource")
		if err != nil || resource == "" {
			return textResult("Error: resource parameter is required"), nil
		}
		startDate, err := request.RequireString("start_date")
		if err != nil || startDate == "" {
			return textResult("Error: start_date parameter is required"), nil
		}
		endDate, err := request.RequireString("end_date")
		if err != nil || endDate == "" {
			return textResult("Error: end_date parameter is required"), nil
		}

		if !fitbit.ValidResource(resource) {
			return textResult(fmt.Sprintf("Error: invalid resource %q", resource)), nil
		}
		if !fitbit.ValidDate(startDate) || !fitbit.ValidDate(endDate) {
			return textResult("Error: dates must be YYYY-MM-DD or 'today'"), nil
		}

		data := linker.GetDataForRange(ctx, resource, startDate, endDate)
		if data == nil {
			logger.Warn().Str("resource", resource).Msg("Fitbit range request returned no data")
			return textResult("No data returned. The Fitbit account may not be linked or the request failed."), nil
		}
		return textResult(formatFitbitData(fmt.Sprintf("%s from %s to %s", resource, startDate, endDate), data)), nil
	}
}

// handleQuestionnaireProgress implements the questionnaire_progress tool
func handleQuestionnaireProgress(store progressReader, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		includeResponses := request.GetBool("include_responses", false)
		return textResult(formatProgress(store, includeResponses)), nil
	}
}

// handleQuestionnaireCurrentQuestion implements the questionnaire_current_question tool
func handleQuestionnaireCurrentQuestion(store progressReader, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question := store.CurrentQuestion()
		if question == nil {
			logger.Debug().Msg("Questionnaire cursor does not resolve to a question")
			return textResult("No current question."), nil
		}
		return textResult(formatQuestion(store.CurrentDomainTitle(), question)), nil
	}
}
