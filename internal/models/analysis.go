package models

// Score bounds of AnalysisResult.TotalScore
const (
	MinTotalScore = 0
	MaxTotalScore = 100
)

// LevelScore is one bar of the per-level chart
type LevelScore struct {
	Level string  `json:"level"`
	Score float64 `json:"score"`
}

// AnalysisResult is the final report produced from every submission
type AnalysisResult struct {
	TotalScore       float64      `json:"totalScore"`
	RankEstimate     string       `json:"rankEstimate"`
	Strengths        []string     `json:"strengths"`
	Weaknesses       []string     `json:"weaknesses"`
	Recommendations  []string     `json:"recommendations"`
	DetailedFeedback string       `json:"detailedFeedback"`
	LevelScores      []LevelScore `json:"levelScores"`
}
