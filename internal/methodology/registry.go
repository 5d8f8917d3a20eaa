// Package methodology holds the workflow catalog and the pure rules for
// resolving and migrating task statuses between methodologies.
package methodology

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"taskboard/internal/models"
)

//go:embed catalog.yaml
var builtinCatalog []byte

type catalogFile struct {
	Default       string            `yaml:"default"`
	Methodologies []methodologyFile `yaml:"methodologies"`
	Buckets       Buckets           `yaml:"buckets"`
}

type methodologyFile struct {
	ID     string      `yaml:"id"`
	Name   string      `yaml:"name"`
	Stages []stageFile `yaml:"stages"`
}

type stageFile struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
	Color       string `yaml:"color"`
	Initial     bool   `yaml:"initial"`
	Final       bool   `yaml:"final"`
}

// Registry is an immutable catalog of methodologies. Lookups return copies so
// callers can never mutate the shared table.
type Registry struct {
	order     []string
	byID      map[string]models.Methodology
	defaultID string
	buckets   Buckets
}

// Builtin returns the registry compiled into the binary.
func Builtin() (*Registry, error) {
	return Parse(builtinCatalog)
}

// Load reads a catalog from a YAML file. An empty path yields the built-in catalog.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Builtin()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Methodologies) == 0 {
		return nil, fmt.Errorf("catalog defines no methodologies")
	}

	r := &Registry{
		byID:    make(map[string]models.Methodology, len(file.Methodologies)),
		buckets: file.Buckets,
	}
	for _, mf := range file.Methodologies {
		m, err := buildMethodology(mf)
		if err != nil {
			return nil, err
		}
		if _, dup := r.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate methodology %q", m.ID)
		}
		r.byID[m.ID] = m
		r.order = append(r.order, m.ID)
	}

	r.defaultID = file.Default
	if r.defaultID == "" {
		r.defaultID = r.order[0]
	}
	if _, ok := r.byID[r.defaultID]; !ok {
		return nil, fmt.Errorf("default methodology %q is not defined", r.defaultID)
	}
	return r, nil
}

func buildMethodology(mf methodologyFile) (models.Methodology, error) {
	id := strings.TrimSpace(mf.ID)
	if id == "" {
		return models.Methodology{}, fmt.Errorf("methodology without id")
	}
	if len(mf.Stages) == 0 {
		return models.Methodology{}, fmt.Errorf("methodology %q has no stages", id)
	}

	m := models.Methodology{ID: id, DisplayName: mf.Name, Stages: make([]models.Stage, 0, len(mf.Stages))}
	if m.DisplayName == "" {
		m.DisplayName = id
	}

	seen := make(map[string]struct{}, len(mf.Stages))
	initials := 0
	for i, sf := range mf.Stages {
		if sf.ID == "" {
			return models.Methodology{}, fmt.Errorf("methodology %q: stage %d has no id", id, i)
		}
		if _, dup := seen[sf.ID]; dup {
			return models.Methodology{}, fmt.Errorf("methodology %q: duplicate stage %q", id, sf.ID)
		}
		seen[sf.ID] = struct{}{}
		if sf.Initial {
			initials++
		}
		m.Stages = append(m.Stages, models.Stage{
			ID:          sf.ID,
			Name:        sf.Name,
			Description: sf.Description,
			Icon:        sf.Icon,
			Color:       sf.Color,
			OrderIndex:  i,
			IsInitial:   sf.Initial,
			IsFinal:     sf.Final,
		})
	}
	if initials > 1 {
		return models.Methodology{}, fmt.Errorf("methodology %q flags %d initial stages", id, initials)
	}
	if initials == 0 {
		m.Stages[0].IsInitial = true
	}
	return m, nil
}

// List returns every methodology in catalog order.
func (r *Registry) List() []models.Methodology {
	out := make([]models.Methodology, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, clone(r.byID[id]))
	}
	return out
}

// Get looks up a methodology by id.
func (r *Registry) Get(id string) (models.Methodology, error) {
	m, ok := r.byID[id]
	if !ok {
		return models.Methodology{}, models.NotFoundf("methodology %q", id)
	}
	return clone(m), nil
}

// Stage looks up a stage within a methodology.
func (r *Registry) Stage(methodologyID, stageID string) (models.Stage, error) {
	m, ok := r.byID[methodologyID]
	if !ok {
		return models.Stage{}, models.NotFoundf("methodology %q", methodologyID)
	}
	s, ok := FindStage(m.Stages, stageID)
	if !ok {
		return models.Stage{}, models.NotFoundf("stage %q in methodology %q", stageID, methodologyID)
	}
	return s, nil
}

// Default returns the methodology assigned to new workspaces.
func (r *Registry) Default() models.Methodology {
	return clone(r.byID[r.defaultID])
}

// Buckets returns the migration bucket table.
func (r *Registry) Buckets() Buckets {
	return slices.Clone(r.buckets)
}

// Migrate maps a status of one methodology onto the other.
func (r *Registry) Migrate(oldStatus, fromID, toID string) (string, error) {
	if _, ok := r.byID[fromID]; !ok {
		return "", models.NotFoundf("methodology %q", fromID)
	}
	to, ok := r.byID[toID]
	if !ok {
		return "", models.NotFoundf("methodology %q", toID)
	}
	return Migrate(oldStatus, to.Stages, r.buckets), nil
}

// Initial returns the default stage for new tasks.
func Initial(m models.Methodology) models.Stage {
	for _, s := range m.Stages {
		if s.IsInitial {
			return s
		}
	}
	return m.Stages[0]
}

// FindStage returns the stage with the given id.
func FindStage(stages []models.Stage, id string) (models.Stage, bool) {
	for _, s := range stages {
		if s.ID == id {
			return s, true
		}
	}
	return models.Stage{}, false
}

func clone(m models.Methodology) models.Methodology {
	m.Stages = slices.Clone(m.Stages)
	return m
}
