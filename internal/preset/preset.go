package preset

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/aidenletourneau/forcemotion/internal/models"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoPresets is returned when a preset file defines nothing
	ErrNoPresets = errors.New("preset file defines no presets")
	// ErrUnknownPreset is returned when a preset name is not loaded
	ErrUnknownPreset = errors.New("unknown preset")
	// ErrIncompletePreset is returned when a preset omits mass, force or friction
	ErrIncompletePreset = errors.New("incomplete preset")
)

// Preset is a named starting configuration
type Preset struct {
	Name        string                  `yaml:"name" json:"name"`
	Description string                  `yaml:"description,omitempty" json:"description,omitempty"`
	Config      models.SimulationConfig `yaml:",inline" json:"config"`
}

// presetYAML mirrors Preset with optional numbers so omissions can be detected
type presetYAML struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Mass        *float64 `yaml:"mass"`
	Force       *float64 `yaml:"force"`
	Friction    *float64 `yaml:"friction"`
	IsPlaying   bool     `yaml:"is_playing"`
}

// UnmarshalYAML requires mass, force and friction so a misspelled key fails the load
// instead of silently becoming zero. is_playing defaults to false.
func (p *Preset) UnmarshalYAML(value *yaml.Node) error {
	var raw presetYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}

	var missing []string
	if raw.Mass == nil {
		missing = append(missing, "mass")
	}
	if raw.Force == nil {
		missing = append(missing, "force")
	}
	if raw.Friction == nil {
		missing = append(missing, "friction")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %q (line %d) is missing %s", ErrIncompletePreset, raw.Name, value.Line, strings.Join(missing, ", "))
	}

	*p = Preset{
		Name:        raw.Name,
		Description: raw.Description,
		Config: models.SimulationConfig{
			Mass:      *raw.Mass,
			Force:     *raw.Force,
			Friction:  *raw.Friction,
			IsPlaying: raw.IsPlaying,
		},
	}
	return nil
}

// PresetFile is the top-level structure of a preset YAML file
type PresetFile struct {
	Presets []Preset `yaml:"presets"`
}

// Manager holds the currently loaded presets
type Manager struct {
	mu      sync.RWMutex
	presets map[string]Preset
	order   []string
}

// NewManager creates an empty preset manager
func NewManager() *Manager {
	return &Manager{presets: make(map[string]Preset)}
}

// LoadFile loads presets from a YAML file
func (m *Manager) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read preset file: %w", err)
	}
	return m.LoadFromBytes(data)
}

// LoadFromBytes parses YAML and replaces the loaded presets.
// Every preset config is clamped into the slider ranges.
func (m *Manager) LoadFromBytes(data []byte) error {
	presets, err := Parse(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.presets = make(map[string]Preset, len(presets))
	m.order = m.order[:0]
	for _, p := range presets {
		if _, dup := m.presets[p.Name]; !dup {
			m.order = append(m.order, p.Name)
		}
		m.presets[p.Name] = p
	}
	m.mu.Unlock()

	log.Printf("Loaded %d presets", len(presets))
	return nil
}

// Parse decodes and validates a preset file without loading it
func Parse(data []byte) ([]Preset, error) {
	var file PresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(file.Presets) == 0 {
		return nil, ErrNoPresets
	}

	for i := range file.Presets {
		if file.Presets[i].Name == "" {
			return nil, fmt.Errorf("preset %d has no name", i)
		}
		file.Presets[i].Config = file.Presets[i].Config.Clamped()
	}
	return file.Presets, nil
}

// Get returns a preset by name
func (m *Manager) Get(name string) (Preset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	return p, nil
}

// List returns the loaded presets in file order
func (m *Manager) List() []Preset {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Preset, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.presets[name])
	}
	return out
}

// Names returns the loaded preset names sorted alphabetically
func (m *Manager) Names() []string {
	m.mu.RLock()
	names := append([]string(nil), m.order...)
	m.mu.RUnlock()

	sort.Strings(names)
	return names
}
