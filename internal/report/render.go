// Package report renders the final analysis as HTML for the browser and
// print dialog, and as a paginated PDF built from a raster of the report.
package report

import (
	"html/template"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/terra-clan/koi-prep/internal/models"
)

// Provider is printed in the report header and footer
const Provider = "알고학원"

// Options selects the flavour of the HTML page
type Options struct {
	// Print adds the print stylesheet and opens the print dialog on load
	Print bool
}

type levelBar struct {
	Level string
	Score float64
	Width int
}

type pageData struct {
	UserName      string
	Provider      string
	Analysis      *models.AnalysisResult
	Bars          []levelBar
	FeedbackLines []string
	Print         bool
}

var funcs = template.FuncMap{
	"inc":   func(i int) int { return i + 1 },
	"score": formatScore,
}

var page = template.Must(template.New("report").Funcs(funcs).Parse(pageTemplate))

// Render writes the report page. All model text is escaped by html/template.
func Render(w io.Writer, rep *models.ReportResponse, opts Options) error {
	return page.Execute(w, newPageData(rep, opts))
}

func newPageData(rep *models.ReportResponse, opts Options) pageData {
	a := rep.Analysis
	if a == nil {
		a = &models.AnalysisResult{}
	}

	bars := make([]levelBar, 0, len(a.LevelScores))
	for _, ls := range a.LevelScores {
		bars = append(bars, levelBar{Level: ls.Level, Score: ls.Score, Width: barWidth(ls.Score)})
	}

	return pageData{
		UserName:      rep.UserName,
		Provider:      Provider,
		Analysis:      a,
		Bars:          bars,
		FeedbackLines: strings.Split(a.DetailedFeedback, "\n"),
		Print:         opts.Print,
	}
}

// barWidth maps a 0..100 score to a CSS percentage
func barWidth(score float64) int {
	switch {
	case score <= models.MinTotalScore:
		return 0
	case score >= models.MaxTotalScore:
		return 100
	default:
		return int(score + 0.5)
	}
}

// formatScore prints a score with at most one decimal
func formatScore(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

const pageTemplate = `<!DOCTYPE html>
<html lang="ko">
<head>
<meta charset="utf-8">
<title>{{.UserName}}님의 종합 평가 리포트</title>
<style>
body { margin: 0; background: #0f172a; color: #e2e8f0; font-family: "Noto Sans KR", sans-serif; }
main { max-width: 960px; margin: 0 auto; padding: 32px; }
header { text-align: center; margin-bottom: 40px; }
header .provider { color: #60a5fa; font-weight: bold; letter-spacing: .05em; }
h1 { color: #fff; font-size: 2.2em; margin: 12px 0; }
.muted { color: #94a3b8; }
.grid { display: grid; grid-template-columns: 1fr 1fr; gap: 24px; margin-bottom: 24px; }
.card { background: #1e293b; border: 1px solid #334155; border-radius: 16px; padding: 24px; }
.score { text-align: center; }
.score .value { font-size: 4.5em; font-weight: bold; color: #fff; }
.rank { display: inline-block; padding: 6px 16px; border-radius: 999px; background: rgba(99,102,241,.2); color: #a5b4fc; font-weight: bold; }
.bar { display: flex; align-items: center; gap: 8px; margin: 6px 0; }
.bar .label { width: 64px; color: #94a3b8; font-size: .85em; }
.bar .track { flex: 1; background: #334155; border-radius: 4px; height: 14px; }
.bar .fill { background: #6366f1; height: 14px; border-radius: 4px; }
.strengths h3 { color: #34d399; }
.weaknesses h3 { color: #fbbf24; }
.feedback p { margin: 0 0 8px; }
.rec { display: flex; gap: 12px; align-items: center; background: rgba(51,65,85,.5); border-radius: 8px; padding: 12px; margin: 8px 0; }
.rec .n { width: 28px; height: 28px; border-radius: 50%; background: rgba(59,130,246,.2); color: #60a5fa; display: flex; align-items: center; justify-content: center; font-weight: bold; }
footer { text-align: center; color: #64748b; font-size: .85em; margin-top: 32px; }
{{- if .Print}}
@media print {
  body { background: #fff; color: #000; }
  h1, .score .value { color: #000; }
  .card { background: #fff; border-color: #cbd5e1; }
  .rec { background: #fff; border: 1px solid #cbd5e1; }
  .muted, .bar .label { color: #475569; }
}
{{- end}}
</style>
</head>
<body>
<main id="report">
<header>
  <div class="provider">Provided by {{.Provider}}</div>
  <h1>{{.UserName}}님의 종합 평가 리포트</h1>
  <p class="muted">{{.Provider}} Agent가 분석한 코딩 실력 진단 결과입니다.</p>
</header>

<section class="grid">
  <div class="card score">
    <div class="muted">TOTAL SCORE</div>
    <div class="value">{{score .Analysis.TotalScore}}</div>
    <div class="rank">Estimated Rank: {{.Analysis.RankEstimate}}</div>
  </div>
  <div class="card">
    <h3>영역별 분석</h3>
    {{- range .Bars}}
    <div class="bar">
      <span class="label">{{.Level}}</span>
      <span class="track"><span class="fill" style="display:block;width:{{.Width}}%"></span></span>
      <span>{{score .Score}}</span>
    </div>
    {{- end}}
  </div>
</section>

<section class="grid">
  <div class="card strengths">
    <h3>강점 (Strengths)</h3>
    <ul>{{range .Analysis.Strengths}}<li>{{.}}</li>{{end}}</ul>
  </div>
  <div class="card weaknesses">
    <h3>보완점 (Areas for Improvement)</h3>
    <ul>{{range .Analysis.Weaknesses}}<li>{{.}}</li>{{end}}</ul>
  </div>
</section>

<section class="card feedback">
  <h3>종합 피드백</h3>
  {{- range .FeedbackLines}}
  <p>{{.}}</p>
  {{- end}}
  <h4>학습 추천 (Next Steps)</h4>
  {{- range $i, $rec := .Analysis.Recommendations}}
  <div class="rec"><span class="n">{{inc $i}}</span><span>{{$rec}}</span></div>
  {{- end}}
</section>

<footer>{{.Provider}}에서 제공하는 콘텐츠입니다.</footer>
</main>
{{- if .Print}}
<script>window.addEventListener("load", function () { window.print(); });</script>
{{- end}}
</body>
</html>
`
