package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestTestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TestConfig
		wantErr bool
	}{
		{
			name: "assessment",
			cfg:  TestConfig{UserName: "kim", Language: LanguagePython, Mode: ModeAssessment, ProblemCount: 3},
		},
		{
			name: "specific with level",
			cfg:  TestConfig{UserName: "kim", Language: LanguageCPP, Mode: ModeSpecific, TargetLevel: intPtr(5), ProblemCount: 20},
		},
		{
			name:    "blank name",
			cfg:     TestConfig{UserName: "   ", Language: LanguagePython, Mode: ModeAssessment, ProblemCount: 3},
			wantErr: true,
		},
		{
			name:    "unknown language",
			cfg:     TestConfig{UserName: "kim", Language: "java", Mode: ModeAssessment, ProblemCount: 3},
			wantErr: true,
		},
		{
			name:    "specific without level",
			cfg:     TestConfig{UserName: "kim", Language: LanguagePython, Mode: ModeSpecific, ProblemCount: 3},
			wantErr: true,
		},
		{
			name:    "level out of range",
			cfg:     TestConfig{UserName: "kim", Language: LanguagePython, Mode: ModeSpecific, TargetLevel: intPtr(11), ProblemCount: 3},
			wantErr: true,
		},
		{
			name:    "zero problems",
			cfg:     TestConfig{UserName: "kim", Language: LanguagePython, Mode: ModeAssessment, ProblemCount: 0},
			wantErr: true,
		},
		{
			name:    "too many problems",
			cfg:     TestConfig{UserName: "kim", Language: LanguagePython, Mode: ModeAssessment, ProblemCount: 21},
			wantErr: true,
		},
		{
			name:    "unknown mode",
			cfg:     TestConfig{UserName: "kim", Language: LanguagePython, Mode: "random", ProblemCount: 3},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTestConfigNormalizeDropsLevelOutsideSpecificMode(t *testing.T) {
	cfg := TestConfig{UserName: "  lee ", Language: LanguagePython, Mode: ModeAssessment, TargetLevel: intPtr(4), ProblemCount: 2}

	got := cfg.Normalize()

	assert.Equal(t, "lee", got.UserName)
	assert.Nil(t, got.TargetLevel)
	assert.True(t, got.IsAssessment())
}

func TestParseLanguage(t *testing.T) {
	l, err := ParseLanguage(" CPP ")
	require.NoError(t, err)
	assert.Equal(t, LanguageCPP, l)

	_, err = ParseLanguage("rust")
	assert.Error(t, err)
}

func TestLevels(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, Levels())
}
