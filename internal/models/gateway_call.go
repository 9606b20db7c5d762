package models

import "time"

// GatewayOperation names one of the AI gateway operations
type GatewayOperation string

const (
	OpGenerateProblems GatewayOperation = "generate_problems"
	OpJudgeCode        GatewayOperation = "judge_code"
	OpGenerateAnalysis GatewayOperation = "generate_analysis"
)

// GatewayCall is one ledger entry describing a gateway call
type GatewayCall struct {
	ID         int64            `json:"id"`
	Operation  GatewayOperation `json:"operation"`
	Model      string           `json:"model"`
	Attempts   int              `json:"attempts"`
	DurationMS int64            `json:"duration_ms"`
	Success    bool             `json:"success"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}
