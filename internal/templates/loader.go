package templates

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/koi-prep/internal/models"
)

// DefaultPythonSkeleton is seeded into the editor for Python problems
const DefaultPythonSkeleton = `import sys

def solve():
    # 입력을 받기 위해 sys.stdin.readline() 사용 권장
    pass

if __name__ == "__main__":
    solve()
`

// DefaultCPPSkeleton is seeded into the editor for C++ problems
const DefaultCPPSkeleton = `#include <iostream>
#include <vector>
#include <algorithm>

using namespace std;

int main() {
    ios_base::sync_with_stdio(false);
    cin.tie(NULL);

    // 여기에 코드를 작성하세요
    
    return 0;
}
`

// Loader manages the language catalog. It starts with built-in entries for
// every supported language; YAML files can override them.
type Loader struct {
	mu        sync.RWMutex
	languages map[models.Language]*models.LanguageInfo
}

// NewLoader creates a loader holding the built-in catalog
func NewLoader() *Loader {
	return &Loader{
		languages: map[models.Language]*models.LanguageInfo{
			models.LanguagePython: {
				ID:           models.LanguagePython,
				Label:        "Python 3",
				GatewayLabel: "Python 3",
				Skeleton:     DefaultPythonSkeleton,
			},
			models.LanguageCPP: {
				ID:           models.LanguageCPP,
				Label:        "C++17",
				GatewayLabel: "C++17",
				Skeleton:     DefaultCPPSkeleton,
			},
		},
	}
}

// LoadFromDir loads every YAML language file from a directory
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading languages from directory", "dir", dir)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load language", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("languages loaded", "count", loaded, "total_files", len(files))
	return nil
}

// LoadFromFile loads a single language from a YAML file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var info models.LanguageInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	lang, err := models.ParseLanguage(string(info.ID))
	if err != nil {
		return err
	}
	info.ID = lang

	if info.Skeleton == "" {
		return fmt.Errorf("skeleton is required")
	}
	if info.Label == "" {
		info.Label = string(lang)
	}
	if info.GatewayLabel == "" {
		info.GatewayLabel = info.Label
	}

	l.mu.Lock()
	l.languages[lang] = &info
	l.mu.Unlock()

	slog.Info("language loaded", "id", lang, "label", info.Label)
	return nil
}

// Get retrieves a language by ID
func (l *Loader) Get(lang models.Language) *models.LanguageInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.languages[lang]
}

// List returns the catalog in display order
func (l *Loader) List() []*models.LanguageInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.LanguageInfo, 0, len(l.languages))
	for _, lang := range models.Languages {
		if info, ok := l.languages[lang]; ok {
			result = append(result, info)
		}
	}
	return result
}

// Skeleton returns the starter code for a language
func (l *Loader) Skeleton(lang models.Language) string {
	if info := l.Get(lang); info != nil {
		return info.Skeleton
	}
	return ""
}

// GatewayLabel returns the language name sent to the model
func (l *Loader) GatewayLabel(lang models.Language) string {
	if info := l.Get(lang); info != nil {
		return info.GatewayLabel
	}
	return string(lang)
}
