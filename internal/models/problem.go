package models

// TestCase is one input/expected-output pair bundled with a problem
type TestCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Problem is a generated problem; read-only for the rest of the session
type Problem struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Level        int        `json:"level"`
	InputFormat  string     `json:"inputFormat"`
	OutputFormat string     `json:"outputFormat"`
	Constraints  string     `json:"constraints"`
	SampleCases  []TestCase `json:"sampleCases"`
}

// FirstSample returns the sample case used for interactive judging
func (p *Problem) FirstSample() (TestCase, bool) {
	if len(p.SampleCases) == 0 {
		return TestCase{}, false
	}
	return p.SampleCases[0], true
}

// RunResult is the outcome of judging code against the first sample case
type RunResult struct {
	Passed bool   `json:"passed"`
	Output string `json:"output"`
}

// Outputs recorded when no judge verdict is available
const (
	NotExecutedOutput = "Not executed or Failed"
	SystemErrorOutput = "System Error: Failed to execute code."
)

// CodeSubmission is the final code and verdict recorded for one problem
type CodeSubmission struct {
	ProblemID       string `json:"problemId"`
	Code            string `json:"code"`
	Passed          bool   `json:"passed"`
	ExecutionOutput string `json:"executionOutput"`
}
