package models

import (
	"errors"
	"fmt"
	"strings"
)

// Language is the closed set of languages a test can be taken in
type Language string

const (
	LanguagePython Language = "python"
	LanguageCPP    Language = "cpp"
)

// Languages lists every supported language in display order
var Languages = []Language{LanguagePython, LanguageCPP}

// Valid reports whether l is a supported language
func (l Language) Valid() bool {
	return l == LanguagePython || l == LanguageCPP
}

// ParseLanguage converts a wire value into a Language
func ParseLanguage(s string) (Language, error) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unsupported language %q", s)
	}
	return l, nil
}

// TestMode selects how problem levels are chosen
type TestMode string

const (
	ModeAssessment TestMode = "assessment" // levels spread across the whole range
	ModeSpecific   TestMode = "specific"   // every problem at TargetLevel
)

// Level and problem count bounds
const (
	MinLevel        = 1
	MaxLevel        = 10
	MinProblemCount = 1
	MaxProblemCount = 20
)

// Levels returns every selectable level in ascending order
func Levels() []int {
	levels := make([]int, 0, MaxLevel-MinLevel+1)
	for l := MinLevel; l <= MaxLevel; l++ {
		levels = append(levels, l)
	}
	return levels
}

// ErrInvalidConfig is returned for a TestConfig that fails validation
var ErrInvalidConfig = errors.New("invalid test config")

// TestConfig is the immutable configuration of one test session
type TestConfig struct {
	UserName     string   `json:"userName"`
	Language     Language `json:"language"`
	Mode         TestMode `json:"mode"`
	TargetLevel  *int     `json:"targetLevel,omitempty"`
	ProblemCount int      `json:"problemCount"`
}

// IsAssessment reports whether the config asks for a level-spread assessment
func (c TestConfig) IsAssessment() bool {
	return c.Mode == ModeAssessment
}

// Normalize trims the user name and drops a target level outside specific mode
func (c TestConfig) Normalize() TestConfig {
	c.UserName = strings.TrimSpace(c.UserName)
	if c.Mode != ModeSpecific {
		c.TargetLevel = nil
	} else if c.TargetLevel != nil {
		level := *c.TargetLevel
		c.TargetLevel = &level
	}
	return c
}

// Validate checks every field against its allowed range
func (c TestConfig) Validate() error {
	if strings.TrimSpace(c.UserName) == "" {
		return fmt.Errorf("%w: userName is required", ErrInvalidConfig)
	}
	if !c.Language.Valid() {
		return fmt.Errorf("%w: unsupported language %q", ErrInvalidConfig, c.Language)
	}

	switch c.Mode {
	case ModeAssessment:
	case ModeSpecific:
		if c.TargetLevel == nil {
			return fmt.Errorf("%w: targetLevel is required in specific mode", ErrInvalidConfig)
		}
		if *c.TargetLevel < MinLevel || *c.TargetLevel > MaxLevel {
			return fmt.Errorf("%w: targetLevel must be between %d and %d", ErrInvalidConfig, MinLevel, MaxLevel)
		}
	default:
		return fmt.Errorf("%w: unsupported mode %q", ErrInvalidConfig, c.Mode)
	}

	if c.ProblemCount < MinProblemCount || c.ProblemCount > MaxProblemCount {
		return fmt.Errorf("%w: problemCount must be between %d and %d", ErrInvalidConfig, MinProblemCount, MaxProblemCount)
	}
	return nil
}
