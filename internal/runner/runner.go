// Package runner implements the per-problem test loop: code kept per
// problem, single-sample judging and submission accumulation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/terra-clan/koi-prep/internal/gateway"
	"github.com/terra-clan/koi-prep/internal/models"
)

// Common errors
var (
	ErrRunInProgress     = errors.New("sample run already in progress")
	ErrProblemOutOfRange = errors.New("problem index out of range")
	ErrProblemLocked     = errors.New("problem not reached yet")
	ErrNoProblems        = errors.New("runner needs at least one problem")
)

// Judge is the gateway operation used for sample runs
type Judge interface {
	JudgeCode(ctx context.Context, req gateway.JudgeRequest) (models.RunResult, error)
}

// AdvanceResult tells the caller whether the loop finished
type AdvanceResult struct {
	Completed   bool
	NextIndex   int
	Submissions []models.CodeSubmission // full ordered list when Completed
}

// Runner holds the state of one pass over a problem set.
//
// Submissions are always a gap-free prefix of the problem order: the
// current index never moves past len(submissions), and advancing writes at
// the current index.
type Runner struct {
	mu          sync.Mutex
	problems    []models.Problem
	language    models.Language
	skeleton    string
	current     int
	code        map[string]string
	lastRun     *models.RunResult
	running     bool
	submissions []models.CodeSubmission
}

// New creates a runner positioned on the first problem
func New(problems []models.Problem, language models.Language, skeleton string) (*Runner, error) {
	if len(problems) == 0 {
		return nil, ErrNoProblems
	}

	r := &Runner{
		problems: append([]models.Problem(nil), problems...),
		language: language,
		skeleton: skeleton,
		code:     make(map[string]string, len(problems)),
	}
	r.selectLocked(0)
	return r, nil
}

// SelectProblem moves to a problem that was already submitted or to the
// first unsubmitted one
func (r *Runner) SelectProblem(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrRunInProgress
	}
	if index < 0 || index >= len(r.problems) {
		return fmt.Errorf("%w: %d", ErrProblemOutOfRange, index)
	}
	if index > len(r.submissions) {
		return fmt.Errorf("%w: %d", ErrProblemLocked, index)
	}

	r.selectLocked(index)
	return nil
}

// selectLocked seeds the skeleton for unseen problems and clears the last run
func (r *Runner) selectLocked(index int) {
	r.current = index
	id := r.problems[index].ID
	if _, ok := r.code[id]; !ok {
		r.code[id] = r.skeleton
	}
	r.lastRun = nil
}

// EditCode replaces the code of the current problem
func (r *Runner) EditCode(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code[r.problems[r.current].ID] = code
}

// Code returns the code of the current problem
func (r *Runner) Code() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code[r.problems[r.current].ID]
}

// Current returns the index and problem being worked on
func (r *Runner) Current() (int, models.Problem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.problems[r.current]
}

// LastRun returns the result of the last sample run on the current problem
func (r *Runner) LastRun() (models.RunResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastRun == nil {
		return models.RunResult{}, false
	}
	return *r.lastRun, true
}

// Running reports whether a sample run is in flight
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// BeginRun marks a run in flight and returns the judge request for the
// first sample case of the current problem
func (r *Runner) BeginRun() (gateway.JudgeRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return gateway.JudgeRequest{}, ErrRunInProgress
	}

	problem := r.problems[r.current]
	sample, ok := problem.FirstSample()
	if !ok {
		return gateway.JudgeRequest{}, gateway.ErrNoSampleCase
	}

	r.running = true
	r.lastRun = nil

	return gateway.JudgeRequest{
		Code:                 r.code[problem.ID],
		Language:             r.language,
		Problem:              problem,
		SampleInput:          sample.Input,
		SampleExpectedOutput: sample.Output,
	}, nil
}

// FinishRun stores the judge verdict, turning a judge error into a failed
// run, and clears the in-flight flag
func (r *Runner) FinishRun(result models.RunResult, err error) models.RunResult {
	if err != nil {
		slog.Warn("sample run failed", "error", err)
		result = models.RunResult{Passed: false, Output: models.SystemErrorOutput}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = false
	r.lastRun = &result
	return result
}

// RunSample judges the current code against the first sample case. Judge
// failures come back as a failed result; the only error is ErrRunInProgress.
func (r *Runner) RunSample(ctx context.Context, judge Judge) (models.RunResult, error) {
	req, err := r.BeginRun()
	if errors.Is(err, gateway.ErrNoSampleCase) {
		return r.FinishRun(models.RunResult{}, err), nil
	}
	if err != nil {
		return models.RunResult{}, err
	}

	result, err := judge.JudgeCode(ctx, req)
	return r.FinishRun(result, err), nil
}

// Advance records the submission for the current problem and moves on.
// On the last problem it reports completion with every submission.
func (r *Runner) Advance() (AdvanceResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return AdvanceResult{}, ErrRunInProgress
	}

	problem := r.problems[r.current]
	submission := models.CodeSubmission{
		ProblemID:       problem.ID,
		Code:            r.code[problem.ID],
		Passed:          false,
		ExecutionOutput: models.NotExecutedOutput,
	}
	if r.lastRun != nil {
		submission.Passed = r.lastRun.Passed
		if r.lastRun.Output != "" {
			submission.ExecutionOutput = r.lastRun.Output
		}
	}

	if r.current < len(r.submissions) {
		r.submissions[r.current] = submission
	} else {
		r.submissions = append(r.submissions, submission)
	}

	if r.current == len(r.problems)-1 {
		return AdvanceResult{
			Completed:   true,
			NextIndex:   r.current,
			Submissions: append([]models.CodeSubmission(nil), r.submissions...),
		}, nil
	}

	r.selectLocked(r.current + 1)
	return AdvanceResult{NextIndex: r.current}, nil
}

// Completed returns every submission once each problem has one
func (r *Runner) Completed() ([]models.CodeSubmission, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.submissions) != len(r.problems) {
		return nil, false
	}
	return append([]models.CodeSubmission(nil), r.submissions...), true
}

// Submissions returns a copy of the recorded submissions
func (r *Runner) Submissions() []models.CodeSubmission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.CodeSubmission(nil), r.submissions...)
}

// View returns the client-facing runner state
func (r *Runner) View() *models.RunnerView {
	r.mu.Lock()
	defer r.mu.Unlock()

	view := &models.RunnerView{
		CurrentIndex: r.current,
		Total:        len(r.problems),
		Submitted:    len(r.submissions),
		Code:         r.code[r.problems[r.current].ID],
		Running:      r.running,
		IsLast:       r.current == len(r.problems)-1,
	}
	if r.lastRun != nil {
		run := *r.lastRun
		view.LastRun = &run
	}
	return view
}
