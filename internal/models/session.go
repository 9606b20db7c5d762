package models

import (
	"time"
)

// AppStep is the current step of the assessment wizard
type AppStep string

const (
	StepSetup           AppStep = "SETUP"
	StepLoadingProblems AppStep = "LOADING_PROBLEMS" // waiting on problem generation
	StepTesting         AppStep = "TESTING"
	StepAnalyzing       AppStep = "ANALYZING" // waiting on the analysis report
	StepReport          AppStep = "REPORT"
)

// IsBusy returns true while a gateway call owns the step
func (s AppStep) IsBusy() bool {
	return s == StepLoadingProblems || s == StepAnalyzing
}

// Notice is a non-blocking, user-visible message about a failed action
type Notice struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notice codes
const (
	NoticeGenerationFailed  = "generation_failed"
	NoticeProblemsTruncated = "problems_truncated"
	NoticeAnalysisFailed    = "analysis_failed"
	NoticeExportFailed      = "export_failed"
)

// RunnerView is the client-facing state of the per-problem loop
type RunnerView struct {
	CurrentIndex int        `json:"current_index"`
	Total        int        `json:"total"`
	Submitted    int        `json:"submitted"`
	Code         string     `json:"code"`
	LastRun      *RunResult `json:"last_run,omitempty"`
	Running      bool       `json:"running"`
	IsLast       bool       `json:"is_last"`
}

// SessionView is the client-facing snapshot of a session
type SessionView struct {
	ID        string          `json:"id"`
	Step      AppStep         `json:"step"`
	Busy      bool            `json:"busy"`
	Config    *TestConfig     `json:"config,omitempty"`
	Problems  []Problem       `json:"problems,omitempty"`
	Runner    *RunnerView     `json:"runner,omitempty"`
	Analysis  *AnalysisResult `json:"analysis,omitempty"`
	Notice    *Notice         `json:"notice,omitempty"`
	Exporting bool            `json:"exporting"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// EventType identifies a session event pushed to subscribers
type EventType string

const (
	EventStep   EventType = "step"   // step transition
	EventNotice EventType = "notice" // failure notice
	EventRun    EventType = "run"    // sample run started or finished
	EventClosed EventType = "closed" // session discarded
)

// Event is pushed to every subscriber of a session
type Event struct {
	Type    EventType    `json:"type"`
	Session *SessionView `json:"session,omitempty"`
	Notice  *Notice      `json:"notice,omitempty"`
}

// SelectProblemRequest selects the problem shown in the editor
type SelectProblemRequest struct {
	Index int `json:"index"`
}

// EditCodeRequest replaces the code of the current problem
type EditCodeRequest struct {
	Code string `json:"code"`
}

// KeyPressRequest applies an editor key to a text buffer
type KeyPressRequest struct {
	Key            string `json:"key"`
	Text           string `json:"text"`
	SelectionStart int    `json:"selectionStart"`
	SelectionEnd   int    `json:"selectionEnd"`
}

// KeyPressResponse is the buffer after an editor key
type KeyPressResponse struct {
	Text   string `json:"text"`
	Cursor int    `json:"cursor"`
}

// ReportResponse is returned by the report endpoint
type ReportResponse struct {
	UserName string          `json:"userName"`
	Analysis *AnalysisResult `json:"analysis"`
}
