// Package gateway is the boundary to the external language-model service
// that generates problems, judges sample runs and writes the final analysis.
package gateway

import (
	"context"
	"errors"

	"github.com/terra-clan/koi-prep/internal/models"
)

// Common errors
var (
	ErrInvalidResponse = errors.New("invalid gateway response")
	ErrNoProblems      = errors.New("gateway returned no problems")
	ErrNoSampleCase    = errors.New("problem has no sample case")
)

// Gateway defines the three AI operations. Every call may fail; callers
// convert failures into rollbacks or degraded results.
type Gateway interface {
	GenerateProblems(ctx context.Context, req ProblemRequest) (*Generation, error)
	JudgeCode(ctx context.Context, req JudgeRequest) (models.RunResult, error)
	GenerateAnalysisReport(ctx context.Context, req AnalysisRequest) (*models.AnalysisResult, error)
}

// ProblemRequest holds the problem generation parameters
type ProblemRequest struct {
	Language     models.Language
	IsAssessment bool
	Count        int
	TargetLevel  *int
}

// Generation is a normalised problem set
type Generation struct {
	Problems []models.Problem
	// Truncated is set when fewer problems than requested came back
	Truncated bool
}

// JudgeRequest asks for a simulated run of code against one sample case
type JudgeRequest struct {
	Code                 string
	Language             models.Language
	Problem              models.Problem
	SampleInput          string
	SampleExpectedOutput string
}

// AnalysisRequest holds everything the final report is written from
type AnalysisRequest struct {
	Submissions []models.CodeSubmission
	Problems    []models.Problem
	UserName    string
}

// ProblemRequestFor builds the generation parameters of a test config
func ProblemRequestFor(cfg models.TestConfig) ProblemRequest {
	req := ProblemRequest{
		Language:     cfg.Language,
		IsAssessment: cfg.IsAssessment(),
		Count:        cfg.ProblemCount,
	}
	if cfg.TargetLevel != nil {
		level := *cfg.TargetLevel
		req.TargetLevel = &level
	}
	return req
}
