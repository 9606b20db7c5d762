package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/terra-clan/koi-prep/internal/gateway"
	"github.com/terra-clan/koi-prep/internal/models"
	"github.com/terra-clan/koi-prep/internal/runner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeGateway answers from its fields. A non-nil hold channel blocks the
// next call until it is closed.
type fakeGateway struct {
	mu          sync.Mutex
	problems    []models.Problem
	truncated   bool
	generateErr error
	judge       models.RunResult
	judgeErr    error
	analysis    *models.AnalysisResult
	analysisErr error
	hold        chan struct{}

	problemReqs  []gateway.ProblemRequest
	analysisReqs []gateway.AnalysisRequest
}

func (g *fakeGateway) wait() {
	g.mu.Lock()
	hold := g.hold
	g.mu.Unlock()
	if hold != nil {
		<-hold
	}
}

func (g *fakeGateway) GenerateProblems(_ context.Context, req gateway.ProblemRequest) (*gateway.Generation, error) {
	g.wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.problemReqs = append(g.problemReqs, req)
	if g.generateErr != nil {
		return nil, g.generateErr
	}
	return &gateway.Generation{Problems: g.problems, Truncated: g.truncated}, nil
}

func (g *fakeGateway) JudgeCode(context.Context, gateway.JudgeRequest) (models.RunResult, error) {
	g.wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.judge, g.judgeErr
}

func (g *fakeGateway) GenerateAnalysisReport(_ context.Context, req gateway.AnalysisRequest) (*models.AnalysisResult, error) {
	g.wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.analysisReqs = append(g.analysisReqs, req)
	if g.analysisErr != nil {
		return nil, g.analysisErr
	}
	result := *g.analysis
	return &result, nil
}

func (g *fakeGateway) set(fn func(g *fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

type staticSkeletons struct{}

func (staticSkeletons) Skeleton(lang models.Language) string {
	return "// " + string(lang)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(_ string, event models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func testProblems(n int) []models.Problem {
	out := make([]models.Problem, n)
	for i := range out {
		out[i] = models.Problem{
			ID:          fmt.Sprintf("p%d", i+1),
			Title:       fmt.Sprintf("Problem %d", i+1),
			Level:       i + 1,
			SampleCases: []models.TestCase{{Input: "1", Output: "1"}},
		}
	}
	return out
}

func testAnalysis() *models.AnalysisResult {
	return &models.AnalysisResult{
		TotalScore:   72,
		RankEstimate: "Silver",
		LevelScores:  []models.LevelScore{{Level: "Lv.1", Score: 100}, {Level: "Lv.2", Score: 44}},
	}
}

func testConfig() models.TestConfig {
	return models.TestConfig{
		UserName:     "Kim",
		Language:     models.LanguagePython,
		Mode:         models.ModeAssessment,
		ProblemCount: 2,
	}
}

func setup(t *testing.T, gw *fakeGateway) (*Machine, *Session, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	m := NewMachine(gw, staticSkeletons{}, WithPublisher(pub))
	t.Cleanup(m.Wait)
	return m, m.NewSession(), pub
}

// startTesting brings a session to TESTING with the gateway's problems
func startTesting(t *testing.T, m *Machine, s *Session) {
	t.Helper()
	_, err := s.Start(testConfig())
	require.NoError(t, err)
	m.Wait()
	require.Equal(t, models.StepTesting, s.Step())
}

func TestNewSession(t *testing.T) {
	_, s, _ := setup(t, &fakeGateway{})

	view := s.View()
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, models.StepSetup, view.Step)
	assert.Nil(t, view.Config)
	assert.Empty(t, view.Problems)
	assert.Nil(t, view.Analysis)
	assert.Nil(t, view.Runner)
}

// The two-problem walk: start, pass the first, skip the second, report.
func TestFullFlow(t *testing.T) {
	gw := &fakeGateway{
		problems: testProblems(2),
		judge:    models.RunResult{Passed: true, Output: "1"},
		analysis: testAnalysis(),
	}
	m, s, pub := setup(t, gw)

	view, err := s.Start(testConfig())
	require.NoError(t, err)
	assert.Equal(t, models.StepLoadingProblems, view.Step)
	assert.True(t, view.Busy)
	m.Wait()

	view = s.View()
	require.Equal(t, models.StepTesting, view.Step)
	require.Len(t, view.Problems, 2)
	require.NotNil(t, view.Runner)
	assert.Equal(t, "// python", view.Runner.Code)

	gw.mu.Lock()
	require.Len(t, gw.problemReqs, 1)
	assert.True(t, gw.problemReqs[0].IsAssessment)
	assert.Equal(t, 2, gw.problemReqs[0].Count)
	assert.Nil(t, gw.problemReqs[0].TargetLevel)
	gw.mu.Unlock()

	_, err = s.EditCode("print(1)")
	require.NoError(t, err)
	_, err = s.Run()
	require.NoError(t, err)
	m.Wait()
	require.NotNil(t, s.View().Runner.LastRun)

	view, err = s.Advance()
	require.NoError(t, err)
	assert.Equal(t, models.StepTesting, view.Step)
	assert.Equal(t, 1, view.Runner.CurrentIndex)

	view, err = s.Advance()
	require.NoError(t, err)
	assert.Equal(t, models.StepAnalyzing, view.Step)
	m.Wait()

	view = s.View()
	require.Equal(t, models.StepReport, view.Step)
	require.NotNil(t, view.Analysis)
	assert.Equal(t, 72.0, view.Analysis.TotalScore)

	gw.mu.Lock()
	require.Len(t, gw.analysisReqs, 1)
	req := gw.analysisReqs[0]
	gw.mu.Unlock()
	assert.Equal(t, "Kim", req.UserName)
	assert.Equal(t, []models.CodeSubmission{
		{ProblemID: "p1", Code: "print(1)", Passed: true, ExecutionOutput: "1"},
		{ProblemID: "p2", Code: "// python", Passed: false, ExecutionOutput: models.NotExecutedOutput},
	}, req.Submissions)

	report, err := s.Report()
	require.NoError(t, err)
	assert.Equal(t, "Kim", report.UserName)
	assert.Equal(t, "Silver", report.Analysis.RankEstimate)

	assert.Contains(t, pub.types(), models.EventStep)
	assert.Contains(t, pub.types(), models.EventRun)
}

func TestStartValidation(t *testing.T) {
	_, s, _ := setup(t, &fakeGateway{})

	cfg := testConfig()
	cfg.UserName = "  "
	_, err := s.Start(cfg)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
	assert.Equal(t, models.StepSetup, s.Step())
}

func TestStartDropsLevelInAssessmentMode(t *testing.T) {
	gw := &fakeGateway{problems: testProblems(2)}
	m, s, _ := setup(t, gw)

	cfg := testConfig()
	level := 4
	cfg.TargetLevel = &level
	_, err := s.Start(cfg)
	require.NoError(t, err)
	m.Wait()

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Nil(t, gw.problemReqs[0].TargetLevel)
}

func TestGenerationFailureRollsBack(t *testing.T) {
	gw := &fakeGateway{generateErr: errors.New("quota")}
	m, s, pub := setup(t, gw)

	_, err := s.Start(testConfig())
	require.NoError(t, err)
	m.Wait()

	view := s.View()
	assert.Equal(t, models.StepSetup, view.Step)
	assert.Empty(t, view.Problems)
	require.NotNil(t, view.Notice)
	assert.Equal(t, models.NoticeGenerationFailed, view.Notice.Code)
	require.NotNil(t, view.Config, "config is kept for the retry")

	// retry works from SETUP
	gw.set(func(g *fakeGateway) {
		g.generateErr = nil
		g.problems = testProblems(1)
	})
	_, err = s.Start(testConfig())
	require.NoError(t, err)
	m.Wait()
	assert.Equal(t, models.StepTesting, s.Step())
	assert.Nil(t, s.View().Notice)

	var notices int
	pub.mu.Lock()
	for _, e := range pub.events {
		if e.Notice != nil {
			notices++
		}
	}
	pub.mu.Unlock()
	assert.Equal(t, 1, notices)
}

func TestTruncatedGeneration(t *testing.T) {
	gw := &fakeGateway{problems: testProblems(1), truncated: true}
	m, s, _ := setup(t, gw)
	startTesting(t, m, s)

	view := s.View()
	assert.Len(t, view.Problems, 1)
	require.NotNil(t, view.Notice)
	assert.Equal(t, models.NoticeProblemsTruncated, view.Notice.Code)
}

func TestBusyRejectsInput(t *testing.T) {
	hold := make(chan struct{})
	gw := &fakeGateway{problems: testProblems(1), hold: hold}
	m, s, _ := setup(t, gw)

	_, err := s.Start(testConfig())
	require.NoError(t, err)

	_, err = s.Start(testConfig())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.Advance()
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.EditCode("x")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.Restart()
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, s.Busy())

	close(hold)
	m.Wait()
	assert.Equal(t, models.StepTesting, s.Step())
}

func TestInvalidTransitions(t *testing.T) {
	_, s, _ := setup(t, &fakeGateway{})

	_, err := s.Advance()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Run()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Finish()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Restart()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Report()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAnalysisFailureRollsBack(t *testing.T) {
	gw := &fakeGateway{problems: testProblems(2), analysisErr: errors.New("timeout")}
	m, s, _ := setup(t, gw)
	startTesting(t, m, s)

	_, err := s.Finish()
	assert.ErrorIs(t, err, ErrNotComplete)

	_, err = s.EditCode("a")
	require.NoError(t, err)
	_, err = s.Advance()
	require.NoError(t, err)
	_, err = s.EditCode("b")
	require.NoError(t, err)
	_, err = s.Advance()
	require.NoError(t, err)
	m.Wait()

	view := s.View()
	assert.Equal(t, models.StepTesting, view.Step)
	require.NotNil(t, view.Notice)
	assert.Equal(t, models.NoticeAnalysisFailed, view.Notice.Code)
	assert.Equal(t, 2, view.Runner.Submitted)

	// retry finalisation with the same submissions
	gw.set(func(g *fakeGateway) {
		g.analysisErr = nil
		g.analysis = testAnalysis()
	})
	_, err = s.Finish()
	require.NoError(t, err)
	m.Wait()
	assert.Equal(t, models.StepReport, s.Step())

	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.Len(t, gw.analysisReqs, 2)
	assert.Equal(t, gw.analysisReqs[0].Submissions, gw.analysisReqs[1].Submissions)
	assert.Equal(t, "a", gw.analysisReqs[1].Submissions[0].Code)
}

func TestJudgeFailureDegrades(t *testing.T) {
	gw := &fakeGateway{problems: testProblems(1), judgeErr: errors.New("down")}
	m, s, _ := setup(t, gw)
	startTesting(t, m, s)

	_, err := s.Run()
	require.NoError(t, err)
	m.Wait()

	last := s.View().Runner.LastRun
	require.NotNil(t, last)
	assert.False(t, last.Passed)
	assert.Equal(t, models.SystemErrorOutput, last.Output)
}

func TestRunBlocksAdvance(t *testing.T) {
	gw := &fakeGateway{problems: testProblems(2), judge: models.RunResult{Passed: true, Output: "1"}}
	m, s, _ := setup(t, gw)
	startTesting(t, m, s)

	hold := make(chan struct{})
	gw.set(func(g *fakeGateway) { g.hold = hold })

	_, err := s.Run()
	require.NoError(t, err)

	_, err = s.Run()
	assert.ErrorIs(t, err, runner.ErrRunInProgress)
	_, err = s.Advance()
	assert.ErrorIs(t, err, runner.ErrRunInProgress)
	_, err = s.SelectProblem(0)
	assert.ErrorIs(t, err, runner.ErrRunInProgress)

	close(hold)
	m.Wait()

	view, err := s.Advance()
	require.NoError(t, err)
	assert.Equal(t, 1, view.Runner.CurrentIndex)
}

// Specific mode at Lv.5 with three problems, every one skipped.
func TestSpecificModeAllSkipped(t *testing.T) {
	gw := &fakeGateway{problems: testProblems(3), analysis: testAnalysis()}
	m, s, _ := setup(t, gw)

	level := 5
	_, err := s.Start(models.TestConfig{
		UserName:     "Kim",
		Language:     models.LanguageCPP,
		Mode:         models.ModeSpecific,
		TargetLevel:  &level,
		ProblemCount: 3,
	})
	require.NoError(t, err)
	m.Wait()
	require.Equal(t, models.StepTesting, s.Step())

	gw.mu.Lock()
	require.Len(t, gw.problemReqs, 1)
	preq := gw.problemReqs[0]
	gw.mu.Unlock()
	assert.False(t, preq.IsAssessment)
	assert.Equal(t, 3, preq.Count)
	require.NotNil(t, preq.TargetLevel)
	assert.Equal(t, 5, *preq.TargetLevel)

	for i := 0; i < 3; i++ {
		_, err = s.Advance()
		require.NoError(t, err)
	}
	m.Wait()
	assert.Equal(t, models.StepReport, s.Step())

	gw.mu.Lock()
	require.Len(t, gw.analysisReqs, 1)
	areq := gw.analysisReqs[0]
	gw.mu.Unlock()
	assert.Equal(t, []models.CodeSubmission{
		{ProblemID: "p1", Code: "// cpp", Passed: false, ExecutionOutput: models.NotExecutedOutput},
		{ProblemID: "p2", Code: "// cpp", Passed: false, ExecutionOutput: models.NotExecutedOutput},
		{ProblemID: "p3", Code: "// cpp", Passed: false, ExecutionOutput: models.NotExecutedOutput},
	}, areq.Submissions)
}

func TestRunRejectedWhileAnalyzing(t *testing.T) {
	gw := &fakeGateway{problems: testProblems(1), analysis: testAnalysis()}
	m, s, _ := setup(t, gw)
	startTesting(t, m, s)

	hold := make(chan struct{})
	gw.set(func(g *fakeGateway) { g.hold = hold })

	view, err := s.Advance()
	require.NoError(t, err)
	require.Equal(t, models.StepAnalyzing, view.Step)

	_, err = s.Run()
	assert.ErrorIs(t, err, ErrBusy)
	assert.False(t, s.View().Runner.Running)

	close(hold)
	m.Wait()
	assert.Equal(t, models.StepReport, s.Step())
}

// Run and the final Advance race; exactly one of them wins.
func TestRunAndFinalAdvanceExclusive(t *testing.T) {
	gw := &fakeGateway{
		problems: testProblems(1),
		judge:    models.RunResult{Passed: true, Output: "1"},
		analysis: testAnalysis(),
	}
	m := NewMachine(gw, staticSkeletons{})
	t.Cleanup(m.Wait)

	for i := 0; i < 50; i++ {
		s := m.NewSession()
		startTesting(t, m, s)

		hold := make(chan struct{})
		gw.set(func(g *fakeGateway) { g.hold = hold })

		var wg sync.WaitGroup
		var runErr, advanceErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, runErr = s.Run()
		}()
		go func() {
			defer wg.Done()
			_, advanceErr = s.Advance()
		}()
		wg.Wait()
		close(hold)
		m.Wait()
		gw.set(func(g *fakeGateway) { g.hold = nil })

		if runErr == nil {
			assert.ErrorIs(t, advanceErr, runner.ErrRunInProgress)
			assert.Equal(t, models.StepTesting, s.Step())
		} else {
			assert.ErrorIs(t, runErr, ErrBusy)
			assert.NoError(t, advanceErr)
			assert.Equal(t, models.StepReport, s.Step())
		}
	}
}

func TestRestart(t *testing.T) {
	gw := &fakeGateway{problems: testProblems(1), analysis: testAnalysis()}
	m, s, _ := setup(t, gw)
	startTesting(t, m, s)

	_, err := s.Advance()
	require.NoError(t, err)
	m.Wait()
	require.Equal(t, models.StepReport, s.Step())

	view, err := s.Restart()
	require.NoError(t, err)
	assert.Equal(t, models.StepSetup, view.Step)
	assert.Nil(t, view.Config)
	assert.Empty(t, view.Problems)
	assert.Nil(t, view.Analysis)
	assert.Nil(t, view.Runner)

	// a fresh run starts from scratch
	startTesting(t, m, s)
	assert.Equal(t, 0, s.View().Runner.Submitted)
}

func TestExport(t *testing.T) {
	gw := &fakeGateway{problems: testProblems(1), analysis: testAnalysis()}
	m, s, pub := setup(t, gw)

	_, err := s.Export(func(*models.ReportResponse) ([]byte, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrInvalidTransition)

	startTesting(t, m, s)
	_, err = s.Advance()
	require.NoError(t, err)
	m.Wait()

	data, err := s.Export(func(r *models.ReportResponse) ([]byte, error) {
		assert.Equal(t, "Kim", r.UserName)
		assert.True(t, s.View().Exporting)

		_, err := s.Export(func(*models.ReportResponse) ([]byte, error) { return nil, nil })
		assert.ErrorIs(t, err, ErrExportInProgress)
		return []byte("%PDF"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)
	assert.False(t, s.View().Exporting)

	_, err = s.Export(func(*models.ReportResponse) ([]byte, error) { return nil, errors.New("raster") })
	require.Error(t, err)
	view := s.View()
	assert.False(t, view.Exporting)
	require.NotNil(t, view.Notice)
	assert.Equal(t, models.NoticeExportFailed, view.Notice.Code)
	assert.Contains(t, pub.types(), models.EventNotice)
}

func TestRegistry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	pub := &recordingPublisher{}
	m := NewMachine(&fakeGateway{}, staticSkeletons{}, WithPublisher(pub), WithClock(clock))
	reg := NewRegistry()

	old := m.NewSession()
	reg.Add(old)
	now = now.Add(time.Hour)
	fresh := m.NewSession()
	reg.Add(fresh)

	got, err := reg.Get(old.ID())
	require.NoError(t, err)
	assert.Same(t, old, got)
	assert.Equal(t, 2, reg.Len())

	idle := reg.Idle(now.Add(-30 * time.Minute))
	require.Len(t, idle, 1)
	assert.Same(t, old, idle[0])

	require.NoError(t, reg.Delete(old.ID()))
	_, err = reg.Get(old.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, reg.Delete(old.ID()), ErrNotFound)
	assert.Contains(t, pub.types(), models.EventClosed)
}
