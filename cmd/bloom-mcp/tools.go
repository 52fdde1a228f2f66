package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createFitbitStatusTool returns the fitbit_status tool definition
func createFitbitStatusTool() mcp.Tool {
	return mcp.NewTool("fitbit_status",
		mcp.WithDescription("Report whether a Fitbit account is linked and when its access token expires"),
	)
}

// createFitbitHeartRateTool returns the fitbit_heart_rate tool definition
func createFitbitHeartRateTool() mcp.Tool {
	return mcp.NewTool("fitbit_heart_rate",
		mcp.WithDescription("Fetch the daily heart rate summary from Fitbit"),
		mcp.WithString("date",
			mcp.Description("Date as YYYY-MM-DD or 'today' (default: today)"),
		),
	)
}

// createFitbitStepsTool returns the fitbit_steps tool definition
func createFitbitStepsTool() mcp.Tool {
	return mcp.NewTool("fitbit_steps",
		mcp.WithDescription("Fetch the daily step count from Fitbit"),
		mcp.WithString("date",
			mcp.Description("Date as YYYY-MM-DD or 'today' (default: today)"),
		),
	)
}

// createFitbitSleepTool returns the fitbit_sleep tool definition
func createFitbitSleepTool() mcp.Tool {
	return mcp.NewTool("fitbit_sleep",
		mcp.WithDescription("Fetch the sleep log for a night from Fitbit"),
		mcp.WithString("date",
			mcp.Description("Date as YYYY-MM-DD or 'today' (default: today)"),
		),
	)
}

func createFitbitRangeTool() mcp.Tool {
	return mcp.NewTool("fitbit_range",
		mcp.WithDescription("Fetch a Fitbit time series between two dates"),
		mcp.WithString("resource",
			mcp.Required(),
			mcp.Description("Resource path, e.g. activities/steps or body/weight"),
		),
		mcp.WithString("start_date",
			mcp.Required(),
			mcp.Description("Start date (YYYY-MM-DD)"),
		),
		mcp.WithString("end_date",
			mcp.Required(),
			mcp.Description("End date (YYYY-MM-DD or 'today')"),
		),
	)
}

// createQuestionnaireProgressTool returns the questionnaire_progress tool definition
func createQuestionnaireProgressTool() mcp.Tool {
	return mcp.NewTool("questionnaire_progress",
		mcp.WithDescription("Summarise the wellbeing questionnaire: status, cursor, progress and recorded answers"),
		mcp.WithBoolean("include_responses",
			mcp.Description("Include the recorded responses (default: false)"),
		),
	)
}

func createQuestionnaireCurrentQuestionTool() mcp.Tool {
	return mcp.NewTool("questionnaire_current_question",
		mcp.WithDescription("Return the question the questionnaire cursor currently points at"),
	)
}
