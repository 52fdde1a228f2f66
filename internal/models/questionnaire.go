package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// QuestionnaireStorageKey is the KV key holding the persisted questionnaire document
const QuestionnaireStorageKey = "questionnaire-storage"

// QuestionnaireDocumentVersion is the current persisted document version.
// Version 0 documents carry only the isActive/isPaused/isCompleted flags.
const QuestionnaireDocumentVersion = 1

// QuestionType describes how a question expects to be answered
type QuestionType string

const (
	QuestionTypeText   QuestionType = "text"
	QuestionTypeScale  QuestionType = "scale"
	QuestionTypeChoice QuestionType = "choice"
)

// Question is a static catalog entry belonging to exactly one Domain
type Question struct {
	ID             string       `toml:"id" json:"id" validate:"required"`
	Text           string       `toml:"text" json:"text" validate:"required"`
	Hint           string       `toml:"hint" json:"hint,omitempty"`
	Type           QuestionType `toml:"type" json:"type" validate:"omitempty,oneof=text scale choice"`
	Options        []string     `toml:"options" json:"options,omitempty"`
	SensitiveTopic string       `toml:"sensitive_topic" json:"sensitive_topic,omitempty"` // answers may warrant a disclosure entry
}

// Domain is a named group of questions presented together
type Domain struct {
	ID          string     `toml:"id" json:"id" validate:"required"`
	Description string     `toml:"description" json:"description" validate:"required"`
	Questions   []Question `toml:"questions" json:"questions" validate:"required,min=1,dive"`
}

// ProgressCursor points at the current (domain, question) pair
type ProgressCursor struct {
	CurrentDomainIndex   int `json:"currentDomainIndex"`
	CurrentQuestionIndex int `json:"currentQuestionIndex"`
}

// Response is one recorded answer. Responses are append-only.
type Response struct {
	QuestionID string    `json:"questionId" validate:"required"`
	DomainID   string    `json:"domainId" validate:"required"`
	Response   string    `json:"response"`
	Flag       string    `json:"flag"`
	Timestamp  time.Time `json:"timestamp"`
}

// SensitiveDisclosure is a flagged answer needing downstream follow-up. Append-only.
type SensitiveDisclosure struct {
	Topic      string    `json:"topic" validate:"required"`
	QuestionID string    `json:"questionId" validate:"required"`
	DomainID   string    `json:"domainId" validate:"required"`
	Response   string    `json:"response"`
	Timestamp  time.Time `json:"timestamp"`
}

// LastQuestion is the resume-prompt snapshot
type LastQuestion struct {
	QuestionID    string `json:"questionId" validate:"required"`
	DomainID      string `json:"domainId" validate:"required"`
	Text          string `json:"text"`
	DomainIndex   int    `json:"domainIndex" validate:"gte=0"`
	QuestionIndex int    `json:"questionIndex" validate:"gte=0"`
}

// QuestionnaireStatus is the lifecycle state of the questionnaire
type QuestionnaireStatus string

const (
	StatusIdle      QuestionnaireStatus = "idle"
	StatusActive    QuestionnaireStatus = "active"
	StatusPaused    QuestionnaireStatus = "paused"
	StatusCompleted QuestionnaireStatus = "completed"
)

// Valid reports whether s is a known status
func (s QuestionnaireStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

func (s QuestionnaireStatus) IsActive() bool { return s == StatusActive }

func (s QuestionnaireStatus) IsPaused() bool { return s == StatusPaused }

func (s QuestionnaireStatus) IsCompleted() bool { return s == StatusCompleted }

// StatusFromFlags maps the legacy boolean flags onto a status.
// Completed wins over paused, paused over active.
func StatusFromFlags(isActive, isPaused, isCompleted bool) QuestionnaireStatus {
	switch {
	case isCompleted:
		return StatusCompleted
	case isPaused:
		return StatusPaused
	case isActive:
		return StatusActive
	default:
		return StatusIdle
	}
}

// QuestionnaireState is the full persisted questionnaire state
type QuestionnaireState struct {
	Status QuestionnaireStatus `json:"status"`
	ProgressCursor
	Responses            []Response            `json:"responses"`
	SensitiveDisclosures []SensitiveDisclosure `json:"sensitiveDisclosures"`
	LastQuestion         *LastQuestion         `json:"lastQuestion"`
}

// NewQuestionnaireState returns the Idle state with empty logs
func NewQuestionnaireState() QuestionnaireState {
	return QuestionnaireState{
		Status:               StatusIdle,
		Responses:            []Response{},
		SensitiveDisclosures: []SensitiveDisclosure{},
	}
}

// Clone returns a deep copy safe to hand out of a locked store
func (s QuestionnaireState) Clone() QuestionnaireState {
	out := s
	out.Responses = append([]Response{}, s.Responses...)
	out.SensitiveDisclosures = append([]SensitiveDisclosure{}, s.SensitiveDisclosures...)
	if s.LastQuestion != nil {
		lq := *s.LastQuestion
		out.LastQuestion = &lq
	}
	return out
}

// persistedState is the wire shape inside the document envelope. The boolean flags
// are written for readers of the version 0 shape and read when Status is absent.
type persistedState struct {
	Status               QuestionnaireStatus   `json:"status,omitempty"`
	IsActive             bool                  `json:"isActive"`
	IsPaused             bool                  `json:"isPaused"`
	IsCompleted          bool                  `json:"isCompleted"`
	CurrentDomainIndex   int                   `json:"currentDomainIndex"`
	CurrentQuestionIndex int                   `json:"currentQuestionIndex"`
	Responses            []Response            `json:"responses"`
	SensitiveDisclosures []SensitiveDisclosure `json:"sensitiveDisclosures"`
	LastQuestion         *LastQuestion         `json:"lastQuestion"`
}

// QuestionnaireDocument is the envelope stored under QuestionnaireStorageKey
type QuestionnaireDocument struct {
	Version int            `json:"version"`
	State   persistedState `json:"state"`
}

// EncodeQuestionnaireState serializes state into the current document version
func EncodeQuestionnaireState(s QuestionnaireState) ([]byte, error) {
	doc := QuestionnaireDocument{
		Version: QuestionnaireDocumentVersion,
		State: persistedState{
			Status:               s.Status,
			IsActive:             s.Status.IsActive(),
			IsPaused:             s.Status.IsPaused(),
			IsCompleted:          s.Status.IsCompleted(),
			CurrentDomainIndex:   s.CurrentDomainIndex,
			CurrentQuestionIndex: s.CurrentQuestionIndex,
			Responses:            s.Responses,
			SensitiveDisclosures: s.SensitiveDisclosures,
			LastQuestion:         s.LastQuestion,
		},
	}
	if doc.State.Responses == nil {
		doc.State.Responses = []Response{}
	}
	if doc.State.SensitiveDisclosures == nil {
		doc.State.SensitiveDisclosures = []SensitiveDisclosure{}
	}
	return json.Marshal(doc)
}

// DecodeQuestionnaireState parses a stored document of any known version.
// Timestamps come back as time.Time via their RFC3339 encoding.
func DecodeQuestionnaireState(data []byte) (QuestionnaireState, error) {
	var doc QuestionnaireDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return QuestionnaireState{}, fmt.Errorf("failed to decode questionnaire document: %w", err)
	}
	if doc.Version > QuestionnaireDocumentVersion {
		return QuestionnaireState{}, fmt.Errorf("unsupported questionnaire document version %d", doc.Version)
	}

	st := doc.State
	status := st.Status
	if doc.Version == 0 || !status.Valid() {
		status = StatusFromFlags(st.IsActive, st.IsPaused, st.IsCompleted)
	}

	out := QuestionnaireState{
		Status: status,
		ProgressCursor: ProgressCursor{
			CurrentDomainIndex:   st.CurrentDomainIndex,
			CurrentQuestionIndex: st.CurrentQuestionIndex,
		},
		Responses:            st.Responses,
		SensitiveDisclosures: st.SensitiveDisclosures,
		LastQuestion:         st.LastQuestion,
	}
	if out.Responses == nil {
		out.Responses = []Response{}
	}
	if out.SensitiveDisclosures == nil {
		out.SensitiveDisclosures = []SensitiveDisclosure{}
	}
	return out, nil
}
