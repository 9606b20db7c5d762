package gateway

import (
	"fmt"
	"strings"

	"github.com/terra-clan/koi-prep/internal/models"
)

const generateProblemsPrompt = `You write practice problems for the Korea Olympiad in Informatics (KOI).
Difficulty levels run from 1 (beginner) to 10 (national final).
Every problem must be solvable in %s within typical judge limits.
Answer with a single JSON object and nothing else:
{"problems":[{"id":string,"title":string,"description":string,"level":int,
"inputFormat":string,"outputFormat":string,"constraints":string,
"sampleCases":[{"input":string,"output":string}]}]}
Each problem needs at least one sample case whose output is exactly what a
correct program prints for its input. Write the statement text in Korean.`

const judgeCodePrompt = `You are a strict online judge. You cannot run code, so trace the given %s
program by hand on the sample input and decide what it prints.
Compare that output with the expected output, ignoring trailing whitespace.
Answer with a single JSON object and nothing else:
{"passed":bool,"output":string}
"output" is what the program prints, or the compile or runtime error it
would raise.`

const analysisPrompt = `You are a KOI coach reviewing a finished practice test.
You receive every problem and the code the student submitted for it, with
the sample-run verdict. Estimate the student's level honestly.
Answer with a single JSON object and nothing else:
{"totalScore":number 0-100,"rankEstimate":string,"strengths":[string],
"weaknesses":[string],"recommendations":[string],"detailedFeedback":string,
"levelScores":[{"level":"Lv.N","score":number 0-100}]}
rankEstimate is one of Beginner, Bronze, Silver, Gold, Platinum, Diamond.
levelScores has one entry per problem level that appeared in the test.
Write the text fields in Korean.`

type problemsUserPayload struct {
	Count       int    `json:"count"`
	Mode        string `json:"mode"`
	Levels      string `json:"levels"`
	TargetLevel *int   `json:"targetLevel,omitempty"`
}

type judgeUserPayload struct {
	Problem        string `json:"problem"`
	Code           string `json:"code"`
	SampleInput    string `json:"sampleInput"`
	ExpectedOutput string `json:"expectedOutput"`
}

type analysisUserPayload struct {
	UserName    string                  `json:"userName"`
	Problems    []models.Problem        `json:"problems"`
	Submissions []models.CodeSubmission `json:"submissions"`
}

func problemsMessages(req ProblemRequest, label string) (string, problemsUserPayload) {
	payload := problemsUserPayload{Count: req.Count}
	if req.IsAssessment {
		payload.Mode = string(models.ModeAssessment)
		payload.Levels = fmt.Sprintf("spread from %d to %d in ascending order", models.MinLevel, models.MaxLevel)
	} else {
		payload.Mode = string(models.ModeSpecific)
		payload.TargetLevel = req.TargetLevel
		if req.TargetLevel != nil {
			payload.Levels = fmt.Sprintf("every problem at level %d", *req.TargetLevel)
		}
	}
	return fmt.Sprintf(generateProblemsPrompt, label), payload
}

func judgeMessages(req JudgeRequest, label string) (string, judgeUserPayload) {
	var b strings.Builder
	b.WriteString(req.Problem.Title)
	b.WriteString("\n\n")
	b.WriteString(req.Problem.Description)
	if req.Problem.InputFormat != "" {
		b.WriteString("\n\nInput: ")
		b.WriteString(req.Problem.InputFormat)
	}
	if req.Problem.OutputFormat != "" {
		b.WriteString("\nOutput: ")
		b.WriteString(req.Problem.OutputFormat)
	}

	return fmt.Sprintf(judgeCodePrompt, label), judgeUserPayload{
		Problem:        b.String(),
		Code:           req.Code,
		SampleInput:    req.SampleInput,
		ExpectedOutput: req.SampleExpectedOutput,
	}
}

func analysisMessages(req AnalysisRequest) (string, analysisUserPayload) {
	return analysisPrompt, analysisUserPayload{
		UserName:    req.UserName,
		Problems:    req.Problems,
		Submissions: req.Submissions,
	}
}
