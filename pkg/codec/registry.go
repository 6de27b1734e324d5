package codec

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed schemas.yaml
var defaultSchemas []byte

// Registry maps schema names to schemas. Register everything before sharing
// the registry; lookups are safe for concurrent use once registration is done.
type Registry struct {
	schemas map[string]*Schema
	names   []string
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register validates s and adds it. Names are unique.
func (r *Registry) Register(s Schema) error {
	s.Fields = append([]Field(nil), s.Fields...)
	if err := s.defaults(); err != nil {
		return err
	}
	if _, exists := r.schemas[s.Name]; exists {
		return fmt.Errorf("%w: %s registered twice", ErrInvalidSchema, s.Name)
	}

	r.schemas[s.Name] = &s
	r.names = append(r.names, s.Name)
	return nil
}

func (r *Registry) Lookup(name string) (*Schema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSchema, name)
	}
	return s, nil
}

// Names lists schemas in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

func (r *Registry) Encode(name string, values Values) ([]byte, error) {
	s, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return s.Encode(values)
}

func (r *Registry) Decode(name string, data []byte) (Values, error) {
	s, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return s.Decode(data)
}

func (r *Registry) Normalize(name string, raw map[string]any) (Values, error) {
	s, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return s.Normalize(raw)
}

type schemaFile struct {
	Schemas []Schema `yaml:"schemas"`
}

// LoadRegistry parses a YAML (or JSON) schema document.
func LoadRegistry(data []byte) (*Registry, error) {
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse schemas: %w", err)
	}

	r := NewRegistry()
	for _, s := range file.Schemas {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadRegistryFile reads a schema document from disk. An empty path yields
// the built-in schemas.
func LoadRegistryFile(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schemas file: %w", err)
	}
	return LoadRegistry(data)
}

// DefaultRegistry returns the built-in schemas.
func DefaultRegistry() (*Registry, error) {
	return LoadRegistry(defaultSchemas)
}
