package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket event stream
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// API routes - Fitbit link
	fitbit := s.app.FitbitHandler
	mux.HandleFunc("/api/fitbit/status", fitbit.StatusHandler)         // GET
	mux.HandleFunc("/api/fitbit/connect", fitbit.ConnectHandler)       // POST, ?wait=true blocks
	mux.HandleFunc("/api/fitbit/exchange", fitbit.ExchangeHandler)     // POST {"code"}
	mux.HandleFunc("/api/fitbit/refresh", fitbit.RefreshHandler)       // POST
	mux.HandleFunc("/api/fitbit/disconnect", fitbit.DisconnectHandler) // POST

	// API routes - Fitbit data
	mux.HandleFunc("/api/fitbit/heart", fitbit.HeartRateHandler)
	mux.HandleFunc("/api/fitbit/steps", fitbit.StepsHandler)
	mux.HandleFunc("/api/fitbit/sleep", fitbit.SleepHandler)
	mux.HandleFunc("/api/fitbit/weight", fitbit.WeightHandler)
	mux.HandleFunc("/api/fitbit/range", fitbit.RangeHandler)
	mux.HandleFunc("/api/fitbit/sync", fitbit.SyncHandler)   // POST ?date=
	mux.HandleFunc("/api/fitbit/daily", fitbit.DailyHandler) // GET ?date=

	// API routes - Questionnaire
	q := s.app.QuestionnaireHandler
	mux.HandleFunc("/api/questionnaire", q.StateHandler)
	mux.HandleFunc("/api/questionnaire/domains", q.DomainsHandler)
	mux.HandleFunc("/api/questionnaire/current", q.CurrentHandler)
	mux.HandleFunc("/api/questionnaire/goto", q.GotoHandler)
	mux.HandleFunc("/api/questionnaire/responses", q.ResponsesHandler)
	mux.HandleFunc("/api/questionnaire/disclosures", q.DisclosuresHandler)
	mux.HandleFunc("/api/questionnaire/last-question", q.LastQuestionHandler)
	mux.HandleFunc("/api/questionnaire/report.pdf", q.ReportPDFHandler)
	mux.HandleFunc("/api/questionnaire/report.md", q.ReportMarkdownHandler)
	mux.HandleFunc("/api/questionnaire/", q.ActionHandler) // POST start|pause|resume|complete|reset|next

	// API routes - Variables
	mux.HandleFunc("/api/kv", s.app.KVHandler.ListKVHandler)
	mux.HandleFunc("/api/kv/", s.app.KVHandler.KeyRouteHandler) // GET/PUT/DELETE /{key}

	// API routes - Scheduler
	mux.HandleFunc("/api/scheduler/jobs", s.app.SchedulerHandler.ListJobsHandler)
	mux.HandleFunc("/api/scheduler/jobs/", s.app.SchedulerHandler.JobActionHandler)

	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
