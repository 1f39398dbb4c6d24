package combo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"gridbt/internal/logger"
)

// Preset 是一份可按名字复用的参数网格。
type Preset struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Grid        Grid   `json:"grid"`
}

// PresetRegistry 管理 YAML 文件里的网格预设。
type PresetRegistry struct {
	path string

	mu       sync.RWMutex
	presets  map[string]Preset
	loadedAt time.Time
}

// NewPresetRegistry 读取预设文件并校验每份网格。
func NewPresetRegistry(path string) (*PresetRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("preset registry requires path")
	}
	r := &PresetRegistry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload 重新读取预设文件，文件非法时保留旧快照。
func (r *PresetRegistry) Reload() error {
	presets, err := readPresetFile(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.presets = presets
	r.loadedAt = time.Now()
	r.mu.Unlock()
	logger.Infof("网格预设加载完成：%s 共 %d 份", filepath.Base(r.path), len(presets))
	return nil
}

// Preset 返回指定 ID 的预设。
func (r *PresetRegistry) Preset(id string) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presets[strings.TrimSpace(id)]
	return p, ok
}

// Presets 返回全部预设，按 ID 排序。
func (r *PresetRegistry) Presets() []Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Preset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func readPresetFile(path string) (map[string]Preset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset file failed: %w", err)
	}
	var file struct {
		Presets map[string]struct {
			ID          string         `yaml:"id"`
			Description string         `yaml:"description"`
			Grid        map[string]any `yaml:"grid"`
		} `yaml:"presets"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse preset file failed: %w", err)
	}
	if len(file.Presets) == 0 {
		return nil, fmt.Errorf("preset file %s contains no presets", filepath.Base(path))
	}

	out := make(map[string]Preset, len(file.Presets))
	for name, entry := range file.Presets {
		grid, err := decodeGrid(entry.Grid)
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", name, err)
		}
		if err := validate(grid); err != nil {
			return nil, fmt.Errorf("preset %s: %w", name, err)
		}
		p := Preset{
			ID:          strings.TrimSpace(entry.ID),
			Description: strings.TrimSpace(entry.Description),
			Grid:        grid,
		}
		if p.ID == "" {
			p.ID = strings.TrimSpace(name)
		}
		if _, dup := out[p.ID]; dup {
			return nil, fmt.Errorf("duplicate preset id: %s", p.ID)
		}
		out[p.ID] = p
	}
	return out, nil
}

// decodeGrid 走 mapstructure，让 YAML 预设和主配置用同一套字段名。
func decodeGrid(raw map[string]any) (Grid, error) {
	var grid Grid
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &grid,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return Grid{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Grid{}, fmt.Errorf("decoding grid failed: %w", err)
	}
	return grid, nil
}
