package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/terra-clan/koi-prep/internal/models"
)

// extractJSON returns the first balanced JSON object in s. Models wrap
// answers in code fences or prose often enough that strict decoding fails.
func extractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	s = s[start:]

	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}

	return "", false
}

// decodeContent extracts and decodes the JSON object of a completion
func decodeContent(content string, out any) error {
	raw, ok := extractJSON(content)
	if !ok {
		return fmt.Errorf("%w: no json object in completion", ErrInvalidResponse)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

type problemsPayload struct {
	Problems []models.Problem `json:"problems"`
}

// normalizeProblems enforces the problem invariants on a generated set:
// at most count problems, unique non-empty ids, levels within range and at
// least one sample case each.
func normalizeProblems(problems []models.Problem, count int) (*Generation, error) {
	if len(problems) == 0 {
		return nil, ErrNoProblems
	}
	if len(problems) > count {
		slog.Debug("dropping extra generated problems", "requested", count, "received", len(problems))
		problems = problems[:count]
	}

	seen := make(map[string]bool, len(problems))
	out := make([]models.Problem, 0, len(problems))
	for i, p := range problems {
		if len(p.SampleCases) == 0 {
			return nil, fmt.Errorf("%w: problem %d has no sample case", ErrInvalidResponse, i+1)
		}

		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" || seen[p.ID] {
			p.ID = uuid.New().String()
		}
		seen[p.ID] = true

		p.Level = clampInt(p.Level, models.MinLevel, models.MaxLevel)
		out = append(out, p)
	}

	return &Generation{
		Problems:  out,
		Truncated: len(out) < count,
	}, nil
}

// normalizeAnalysis clamps scores and makes sure every level represented in
// the problem set has exactly one chart entry, ordered by level
func normalizeAnalysis(result *models.AnalysisResult, problems []models.Problem) *models.AnalysisResult {
	result.TotalScore = clampScore(result.TotalScore)

	if result.Strengths == nil {
		result.Strengths = []string{}
	}
	if result.Weaknesses == nil {
		result.Weaknesses = []string{}
	}
	if result.Recommendations == nil {
		result.Recommendations = []string{}
	}

	scores := make(map[int]float64)
	extra := make([]models.LevelScore, 0)
	for _, ls := range result.LevelScores {
		level, ok := parseLevelLabel(ls.Level)
		if !ok {
			extra = append(extra, models.LevelScore{Level: ls.Level, Score: clampScore(ls.Score)})
			continue
		}
		if _, dup := scores[level]; !dup {
			scores[level] = clampScore(ls.Score)
		}
	}

	for _, p := range problems {
		if _, ok := scores[p.Level]; !ok {
			scores[p.Level] = 0
		}
	}

	levels := make([]int, 0, len(scores))
	for level := range scores {
		levels = append(levels, level)
	}
	sort.Ints(levels)

	result.LevelScores = make([]models.LevelScore, 0, len(levels)+len(extra))
	for _, level := range levels {
		result.LevelScores = append(result.LevelScores, models.LevelScore{
			Level: levelLabel(level),
			Score: scores[level],
		})
	}
	result.LevelScores = append(result.LevelScores, extra...)

	return result
}

// levelLabel is the chart label of a level
func levelLabel(level int) string {
	return "Lv." + strconv.Itoa(level)
}

// parseLevelLabel accepts "Lv.3", "Lv 3", "Level 3" and "3"
func parseLevelLabel(label string) (int, bool) {
	s := strings.ToLower(strings.TrimSpace(label))
	for _, prefix := range []string{"level", "lv.", "lv"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	level, err := strconv.Atoi(s)
	if err != nil || level < models.MinLevel || level > models.MaxLevel {
		return 0, false
	}
	return level, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return models.MinTotalScore
	}
	return math.Max(models.MinTotalScore, math.Min(models.MaxTotalScore, v))
}
