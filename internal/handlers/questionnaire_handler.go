package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
	"github.com/ternarybob/bloom/internal/models"
)

// QuestionnaireHandler exposes the questionnaire state machine
type QuestionnaireHandler struct {
	service interfaces.QuestionnaireService
	reports interfaces.ReportService
	logger  arbor.ILogger
}

func NewQuestionnaireHandler(service interfaces.QuestionnaireService, reports interfaces.ReportService, logger arbor.ILogger) *QuestionnaireHandler {
	return &QuestionnaireHandler{
		service: service,
		reports: reports,
		logger:  logger,
	}
}

type gotoRequest struct {
	Domain   int  `json:"domain" validate:"gte=0"`
	Question *int `json:"question" validate:"omitempty,gte=0"`
}

type responseRequest struct {
	QuestionID string `json:"questionId" validate:"required,max=128"`
	DomainID   string `json:"domainId" validate:"required,max=128"`
	Response   string `json:"response" validate:"max=8192"`
	Flag       string `json:"flag" validate:"max=64"`
}

type disclosureRequest struct {
	Topic      string `json:"topic" validate:"required,max=128"`
	QuestionID string `json:"questionId" validate:"required,max=128"`
	DomainID   string `json:"domainId" validate:"required,max=128"`
	Response   string `json:"response" validate:"max=8192"`
}

type lastQuestionRequest struct {
	QuestionID    string `json:"questionId" validate:"required,max=128"`
	DomainID      string `json:"domainId" validate:"required,max=128"`
	Text          string `json:"text" validate:"max=1024"`
	DomainIndex   int    `json:"domainIndex" validate:"gte=0"`
	QuestionIndex int    `json:"questionIndex" validate:"gte=0"`
}

// stateView is the JSON shape returned by every questionnaire endpoint
type stateView struct {
	models.QuestionnaireState
	IsActive             bool             `json:"isActive"`
	IsPaused             bool             `json:"isPaused"`
	IsCompleted          bool             `json:"isCompleted"`
	ProgressPercentage   int              `json:"progressPercentage"`
	NavigationPercentage int              `json:"navigationPercentage"`
	CurrentDomainTitle   string           `json:"currentDomainTitle"`
	CurrentQuestion      *models.Question `json:"currentQuestion"`
}

func (h *QuestionnaireHandler) view() stateView {
	state := h.service.Snapshot()
	return stateView{
		QuestionnaireState:   state,
		IsActive:             state.Status.IsActive(),
		IsPaused:             state.Status.IsPaused(),
		IsCompleted:          state.Status.IsCompleted(),
		ProgressPercentage:   h.service.ProgressPercentage(),
		NavigationPercentage: h.service.NavigationPercentage(),
		CurrentDomainTitle:   h.service.CurrentDomainTitle(),
		CurrentQuestion:      h.service.CurrentQuestion(),
	}
}

// StateHandler handles GET /api/questionnaire
func (h *QuestionnaireHandler) StateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, h.view())
}

// DomainsHandler handles GET /api/questionnaire/domains
func (h *QuestionnaireHandler) DomainsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, h.service.Domains())
}

// CurrentHandler handles GET /api/questionnaire/current
func (h *QuestionnaireHandler) CurrentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	state := h.service.Snapshot()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"domainTitle":   h.service.CurrentDomainTitle(),
		"domainIndex":   state.CurrentDomainIndex,
		"questionIndex": state.CurrentQuestionIndex,
		"question":      h.service.CurrentQuestion(),
		"status":        state.Status,
	})
}

// ActionHandler handles POST /api/questionnaire/{start|pause|resume|complete|reset|next}
func (h *QuestionnaireHandler) ActionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	actions := map[string]func(context.Context) error{
		"start":    h.service.Start,
		"pause":    h.service.Pause,
		"resume":   h.service.Resume,
		"complete": h.service.Complete,
		"reset":    h.service.Reset,
		"next":     h.service.MoveToNextQuestion,
	}

	action := strings.TrimPrefix(r.URL.Path, "/api/questionnaire/")
	fn, ok := actions[action]
	if !ok {
		WriteError(w, http.StatusNotFound, "Unknown questionnaire action")
		return
	}

	h.respond(w, action, fn(r.Context()))
}

// GotoHandler handles POST /api/questionnaire/goto
func (h *QuestionnaireHandler) GotoHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req gotoRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	domains := h.service.Domains()
	if req.Domain >= len(domains) {
		WriteError(w, http.StatusBadRequest, "domain index out of range")
		return
	}

	if req.Question == nil {
		h.respond(w, "goto", h.service.GoToDomain(r.Context(), req.Domain))
		return
	}

	if *req.Question >= len(domains[req.Domain].Questions) {
		WriteError(w, http.StatusBadRequest, "question index out of range")
		return
	}
	h.respond(w, "goto", h.service.GoToQuestion(r.Context(), req.Domain, *req.Question))
}

// ResponsesHandler handles POST /api/questionnaire/responses
func (h *QuestionnaireHandler) ResponsesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req responseRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	err := h.service.AddResponse(r.Context(), models.Response{
		QuestionID: req.QuestionID,
		DomainID:   req.DomainID,
		Response:   req.Response,
		Flag:       req.Flag,
	})
	h.respond(w, "add_response", err)
}

// DisclosuresHandler handles POST /api/questionnaire/disclosures
func (h *QuestionnaireHandler) DisclosuresHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req disclosureRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	err := h.service.AddSensitiveDisclosure(r.Context(), models.SensitiveDisclosure{
		Topic:      req.Topic,
		QuestionID: req.QuestionID,
		DomainID:   req.DomainID,
		Response:   req.Response,
	})
	h.respond(w, "add_disclosure", err)
}

// LastQuestionHandler handles PUT /api/questionnaire/last-question
func (h *QuestionnaireHandler) LastQuestionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	var req lastQuestionRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	err := h.service.SetLastQuestion(r.Context(), &models.LastQuestion{
		QuestionID:    req.QuestionID,
		DomainID:      req.DomainID,
		Text:          req.Text,
		DomainIndex:   req.DomainIndex,
		QuestionIndex: req.QuestionIndex,
	})
	h.respond(w, "set_last_question", err)
}

// ReportPDFHandler handles GET /api/questionnaire/report.pdf
func (h *QuestionnaireHandler) ReportPDFHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	pdf, err := h.reports.QuestionnairePDF(h.service.Snapshot(), h.service.Domains())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to render questionnaire PDF")
		WriteError(w, http.StatusInternalServerError, "Failed to render report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="wellbeing-check-in.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// ReportMarkdownHandler handles GET /api/questionnaire/report.md
func (h *QuestionnaireHandler) ReportMarkdownHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.reports.QuestionnaireMarkdown(h.service.Snapshot(), h.service.Domains())))
}

// respond writes the current state. A persistence failure is a 500, though the
// in-memory change has already been applied.
func (h *QuestionnaireHandler) respond(w http.ResponseWriter, action string, err error) {
	if err != nil {
		h.logger.Error().Err(err).Str("action", action).Msg("Questionnaire change was not persisted")
		WriteError(w, http.StatusInternalServerError, "Questionnaire change was not persisted")
		return
	}
	WriteJSON(w, http.StatusOK, h.view())
}
