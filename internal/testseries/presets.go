package testseries

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Preset is a named generation template read from YAML.
type Preset struct {
	Name            string           `yaml:"name" json:"name"`
	Description     string           `yaml:"description" json:"description,omitempty"`
	Distribution    map[string]int   `yaml:"distribution" json:"distribution"`
	Mode            DistributionMode `yaml:"mode" json:"mode"`
	TotalQuestions  int              `yaml:"total_questions" json:"total_questions,omitempty"`
	DurationMinutes int              `yaml:"duration" json:"duration_minutes,omitempty"`
}

// PresetStore holds the presets loaded at startup.
type PresetStore struct {
	mu      sync.RWMutex
	presets map[string]Preset
}

func NewPresetStore(presets ...Preset) *PresetStore {
	s := &PresetStore{presets: make(map[string]Preset, len(presets))}
	for _, p := range presets {
		s.presets[presetKey(p.Name)] = p
	}
	return s
}

// LoadPresets reads every .yaml/.yml file under dir. Files that fail to parse
// or validate are skipped with a warning. An empty dir yields an empty store.
func LoadPresets(dir string, logger *zap.Logger) (*PresetStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := NewPresetStore()
	if strings.TrimSpace(dir) == "" {
		return store, nil
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			logger.Warn("presets directory not found", zap.String("dir", dir))
			return store, nil
		}
		return nil, fmt.Errorf("stat presets dir: %w", err)
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		p, err := loadPresetFile(path)
		if err != nil {
			logger.Warn("skipping preset", zap.String("file", path), zap.Error(err))
			return nil
		}
		store.mu.Lock()
		store.presets[presetKey(p.Name)] = p
		store.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk presets dir: %w", err)
	}

	logger.Info("presets loaded", zap.Int("count", len(store.presets)), zap.String("dir", dir))
	return store, nil
}

func loadPresetFile(path string) (Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Preset{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preset{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return Preset{}, err
	}
	return p, nil
}

func (p *Preset) validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return invalid("name", "is required")
	}
	if p.Mode == "" {
		p.Mode = ModeCount
	}
	if p.TotalQuestions < 0 {
		return invalid("total_questions", "must not be negative")
	}
	if p.DurationMinutes < 0 {
		return invalid("duration", "must not be negative")
	}
	total := p.TotalQuestions
	if total == 0 {
		total = 100
	}
	if _, err := resolveDistribution(p.Distribution, p.Mode, total); err != nil {
		return err
	}
	return nil
}

func (s *PresetStore) Lookup(name string) (Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[presetKey(name)]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s", ErrPresetNotFound, strings.TrimSpace(name))
	}
	return p, nil
}

// All returns the presets sorted by name.
func (s *PresetStore) All() []Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Preset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func presetKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
