package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/terra-clan/koi-prep/internal/gateway"
	"github.com/terra-clan/koi-prep/internal/models"
	"github.com/terra-clan/koi-prep/internal/runner"
)

// Session is one pass through the wizard.
//
// The step, config, problems, analysis, notice and export flag are guarded
// by mu. The runner guards its own state. Gateway calls always happen with
// mu released.
type Session struct {
	machine *Machine
	id      string

	mu        sync.Mutex
	step      models.AppStep
	config    *models.TestConfig
	problems  []models.Problem
	runner    *runner.Runner
	analysis  *models.AnalysisResult
	notice    *models.Notice
	exporting bool
	createdAt time.Time
	updatedAt time.Time
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Step returns the current step
func (s *Session) Step() models.AppStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Busy reports whether a gateway call owns the session, either a step
// transition or a sample run
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyLocked()
}

func (s *Session) busyLocked() bool {
	return s.step.IsBusy() || s.exporting || (s.runner != nil && s.runner.Running())
}

// LastActivity returns when the session last changed
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Start validates cfg, stores it and requests the problem set in the
// background. The session is in LOADING_PROBLEMS when Start returns.
func (s *Session) Start(cfg models.TestConfig) (*models.SessionView, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.step.IsBusy() {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if s.step != models.StepSetup {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.step)
	}

	s.config = &cfg
	s.problems = nil
	s.notice = nil
	s.setStepLocked(models.StepLoadingProblems)
	view := s.viewLocked()
	s.mu.Unlock()

	slog.Info("problem generation requested",
		"session_id", s.id,
		"language", cfg.Language,
		"mode", cfg.Mode,
		"count", cfg.ProblemCount,
	)

	s.publish(models.Event{Type: models.EventStep, Session: view})
	s.machine.dispatch("generate_problems", s.id, func(ctx context.Context) {
		s.generate(ctx, cfg)
	})

	return view, nil
}

// generate performs the LOADING_PROBLEMS gateway call and applies its outcome
func (s *Session) generate(ctx context.Context, cfg models.TestConfig) {
	gen, err := s.machine.gateway.GenerateProblems(ctx, gateway.ProblemRequestFor(cfg))

	var r *runner.Runner
	if err == nil {
		r, err = runner.New(gen.Problems, cfg.Language, s.machine.skeletons.Skeleton(cfg.Language))
	}

	s.mu.Lock()
	if s.step != models.StepLoadingProblems {
		// discarded while loading
		s.mu.Unlock()
		return
	}

	if err != nil {
		slog.Error("problem generation failed", "session_id", s.id, "error", err)
		s.problems = nil
		s.runner = nil
		s.setNoticeLocked(models.NoticeGenerationFailed, "문제를 불러오는데 실패했습니다. 잠시 후 다시 시도해주세요.")
		s.setStepLocked(models.StepSetup)
	} else {
		s.problems = gen.Problems
		s.runner = r
		if gen.Truncated {
			s.setNoticeLocked(models.NoticeProblemsTruncated,
				fmt.Sprintf("요청한 %d문제 중 %d문제만 생성되었습니다.", cfg.ProblemCount, len(gen.Problems)))
		}
		s.setStepLocked(models.StepTesting)
		slog.Info("problems generated", "session_id", s.id, "count", len(gen.Problems), "truncated", gen.Truncated)
	}
	view := s.viewLocked()
	notice := s.notice
	s.mu.Unlock()

	s.publish(models.Event{Type: models.EventStep, Session: view, Notice: notice})
}

// testingRunner returns the runner when the session accepts test input
func (s *Session) testingRunner() (*runner.Runner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.testingRunnerLocked()
}

func (s *Session) testingRunnerLocked() (*runner.Runner, error) {
	if s.step.IsBusy() {
		return nil, ErrBusy
	}
	if s.step != models.StepTesting || s.runner == nil {
		return nil, fmt.Errorf("%w: not testing", ErrInvalidTransition)
	}
	return s.runner, nil
}

// SelectProblem shows another problem in the editor
func (s *Session) SelectProblem(index int) (*models.SessionView, error) {
	r, err := s.testingRunner()
	if err != nil {
		return nil, err
	}
	if err := r.SelectProblem(index); err != nil {
		return nil, err
	}
	return s.touch(), nil
}

// EditCode replaces the code of the current problem
func (s *Session) EditCode(code string) (*models.SessionView, error) {
	r, err := s.testingRunner()
	if err != nil {
		return nil, err
	}
	r.EditCode(code)
	return s.touch(), nil
}

// Run judges the current code on its first sample case in the background
func (s *Session) Run() (*models.SessionView, error) {
	s.mu.Lock()
	r, err := s.testingRunnerLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	req, err := r.BeginRun()
	s.mu.Unlock()

	if errors.Is(err, gateway.ErrNoSampleCase) {
		r.FinishRun(models.RunResult{}, err)
		view := s.touch()
		s.publish(models.Event{Type: models.EventRun, Session: view})
		return view, nil
	}
	if err != nil {
		return nil, err
	}

	view := s.touch()
	s.publish(models.Event{Type: models.EventRun, Session: view})

	s.machine.dispatch("judge_code", s.id, func(ctx context.Context) {
		result, err := s.machine.gateway.JudgeCode(ctx, req)
		result = r.FinishRun(result, err)
		slog.Info("sample run finished", "session_id", s.id, "problem_id", req.Problem.ID, "passed", result.Passed)
		s.publish(models.Event{Type: models.EventRun, Session: s.touch()})
	})

	return view, nil
}

// Advance records the current submission and moves to the next problem.
// On the last problem it starts the analysis and the session moves to
// ANALYZING.
func (s *Session) Advance() (*models.SessionView, error) {
	s.mu.Lock()
	r, err := s.testingRunnerLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	res, err := r.Advance()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !res.Completed {
		s.updatedAt = s.machine.now()
		view := s.viewLocked()
		s.mu.Unlock()
		return view, nil
	}

	req, view := s.beginAnalysisLocked(res.Submissions)
	s.mu.Unlock()

	s.startAnalysis(req, view)
	return view, nil
}

// Finish retries the analysis after a failure, once every problem has a
// submission
func (s *Session) Finish() (*models.SessionView, error) {
	s.mu.Lock()
	r, err := s.testingRunnerLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if r.Running() {
		s.mu.Unlock()
		return nil, runner.ErrRunInProgress
	}

	submissions, ok := r.Completed()
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotComplete
	}

	req, view := s.beginAnalysisLocked(submissions)
	s.mu.Unlock()

	s.startAnalysis(req, view)
	return view, nil
}

// beginAnalysisLocked moves a TESTING session to ANALYZING. s.mu must be
// held from the runner check onwards.
func (s *Session) beginAnalysisLocked(submissions []models.CodeSubmission) (gateway.AnalysisRequest, *models.SessionView) {
	req := gateway.AnalysisRequest{
		Submissions: submissions,
		Problems:    append([]models.Problem(nil), s.problems...),
		UserName:    s.config.UserName,
	}
	s.notice = nil
	s.setStepLocked(models.StepAnalyzing)
	return req, s.viewLocked()
}

func (s *Session) startAnalysis(req gateway.AnalysisRequest, view *models.SessionView) {
	slog.Info("analysis requested", "session_id", s.id, "submissions", len(req.Submissions))

	s.publish(models.Event{Type: models.EventStep, Session: view})
	s.machine.dispatch("generate_analysis", s.id, func(ctx context.Context) {
		s.analyze(ctx, req)
	})
}

// analyze performs the ANALYZING gateway call and applies its outcome
func (s *Session) analyze(ctx context.Context, req gateway.AnalysisRequest) {
	result, err := s.machine.gateway.GenerateAnalysisReport(ctx, req)

	s.mu.Lock()
	if s.step != models.StepAnalyzing {
		s.mu.Unlock()
		return
	}

	if err != nil {
		slog.Error("analysis failed", "session_id", s.id, "error", err)
		s.setNoticeLocked(models.NoticeAnalysisFailed, "결과 분석 중 오류가 발생했습니다.")
		s.setStepLocked(models.StepTesting)
	} else {
		s.analysis = result
		s.setStepLocked(models.StepReport)
		slog.Info("analysis ready", "session_id", s.id, "total_score", result.TotalScore, "rank", result.RankEstimate)
	}
	view := s.viewLocked()
	notice := s.notice
	s.mu.Unlock()

	s.publish(models.Event{Type: models.EventStep, Session: view, Notice: notice})
}

// Restart clears everything and returns to SETUP. Only a finished report
// can be restarted.
func (s *Session) Restart() (*models.SessionView, error) {
	s.mu.Lock()
	if s.step.IsBusy() {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if s.step != models.StepReport {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: restart from %s", ErrInvalidTransition, s.step)
	}
	if s.exporting {
		s.mu.Unlock()
		return nil, ErrExportInProgress
	}

	s.config = nil
	s.problems = nil
	s.runner = nil
	s.analysis = nil
	s.notice = nil
	s.setStepLocked(models.StepSetup)
	view := s.viewLocked()
	s.mu.Unlock()

	slog.Info("session restarted", "session_id", s.id)
	s.publish(models.Event{Type: models.EventStep, Session: view})
	return view, nil
}

// Report returns the analysis and the name it was written for
func (s *Session) Report() (*models.ReportResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != models.StepReport || s.analysis == nil {
		return nil, fmt.Errorf("%w: no report in %s", ErrInvalidTransition, s.step)
	}
	analysis := *s.analysis
	return &models.ReportResponse{
		UserName: s.config.UserName,
		Analysis: &analysis,
	}, nil
}

// Export builds a document from the report with build. Only one export
// runs per session; a failure leaves a notice and nothing else.
func (s *Session) Export(build func(*models.ReportResponse) ([]byte, error)) ([]byte, error) {
	s.mu.Lock()
	if s.exporting {
		s.mu.Unlock()
		return nil, ErrExportInProgress
	}
	if s.step != models.StepReport || s.analysis == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: no report in %s", ErrInvalidTransition, s.step)
	}
	analysis := *s.analysis
	report := &models.ReportResponse{UserName: s.config.UserName, Analysis: &analysis}
	s.exporting = true
	s.mu.Unlock()

	data, err := build(report)

	s.mu.Lock()
	s.exporting = false
	if err != nil {
		s.setNoticeLocked(models.NoticeExportFailed, "PDF 생성 중 오류가 발생했습니다.")
	}
	notice := s.notice
	s.updatedAt = s.machine.now()
	s.mu.Unlock()

	if err != nil {
		slog.Error("report export failed", "session_id", s.id, "error", err)
		s.publish(models.Event{Type: models.EventNotice, Notice: notice})
		return nil, err
	}
	return data, nil
}

// View returns a snapshot of the session
func (s *Session) View() *models.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Close tells subscribers the session is gone
func (s *Session) Close() {
	s.publish(models.Event{Type: models.EventClosed})
}

func (s *Session) touch() *models.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatedAt = s.machine.now()
	return s.viewLocked()
}

func (s *Session) setStepLocked(step models.AppStep) {
	slog.Debug("session step", "session_id", s.id, "from", s.step, "to", step)
	s.step = step
	s.updatedAt = s.machine.now()
}

func (s *Session) setNoticeLocked(code, message string) {
	s.notice = &models.Notice{Code: code, Message: message, CreatedAt: s.machine.now()}
}

func (s *Session) viewLocked() *models.SessionView {
	view := &models.SessionView{
		ID:        s.id,
		Step:      s.step,
		Busy:      s.busyLocked(),
		Problems:  append([]models.Problem(nil), s.problems...),
		Exporting: s.exporting,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
	if s.config != nil {
		cfg := *s.config
		view.Config = &cfg
	}
	if s.runner != nil && s.step != models.StepSetup {
		view.Runner = s.runner.View()
	}
	if s.analysis != nil {
		analysis := *s.analysis
		view.Analysis = &analysis
	}
	if s.notice != nil {
		notice := *s.notice
		view.Notice = &notice
	}
	return view
}

func (s *Session) publish(event models.Event) {
	s.machine.publisher.Publish(s.id, event)
}
