package policy

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

//go:embed policies/*.rego
var builtinFS embed.FS

// Source is the Rego source of one policy.
type Source struct {
	Name   string
	Source string
}

// Pack is a named set of policies.
type Pack interface {
	Name() string
	Description() string
	Policies() []Source
}

type pack struct {
	name        string
	description string
	policies    []Source
}

func (p *pack) Name() string        { return p.name }
func (p *pack) Description() string { return p.description }
func (p *pack) Policies() []Source  { return p.policies }

// BuiltinPackName names the structural policies shipped with the binary.
const BuiltinPackName = "builtin"

// Builtin returns the embedded structural policies.
func Builtin() Pack {
	sources, err := readRego(builtinFS, "policies")
	if err != nil {
		// embedded at build time
		panic(err)
	}
	return &pack{
		name:        BuiltinPackName,
		description: "Structural checks for generated component definitions",
		policies:    sources,
	}
}

// LoadDir reads every .rego file in dir as a pack named after the directory.
func LoadDir(dir string) (Pack, error) {
	sources, err := readRego(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read policies from %s: %w", dir, err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no .rego files in %s", dir)
	}
	return &pack{
		name:        filepath.Base(dir),
		description: "Policies from " + dir,
		policies:    sources,
	}, nil
}

func readRego(fsys fs.FS, dir string) ([]Source, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var sources []Source
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(dir, entry.Name())))
		if err != nil {
			return nil, err
		}
		sources = append(sources, Source{
			Name:   strings.TrimSuffix(entry.Name(), ".rego"),
			Source: string(data),
		})
	}
	return sources, nil
}

// Registry manages the available policy packs.
type Registry struct {
	mu    sync.RWMutex
	packs map[string]Pack
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{packs: make(map[string]Pack)}
}

// Register adds a pack.
func (r *Registry) Register(p Pack) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.packs[p.Name()]; exists {
		return fmt.Errorf("policy pack %s already registered", p.Name())
	}
	r.packs[p.Name()] = p
	return nil
}

// Get retrieves a pack by name.
func (r *Registry) Get(name string) (Pack, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.packs[name]
	if !ok {
		return nil, fmt.Errorf("policy pack %s not found", name)
	}
	return p, nil
}

// List returns the registered pack names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.packs))
	for name := range r.packs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the packs known to the CLI.
var DefaultRegistry = NewRegistry()

// RegisterPack registers a pack in the default registry.
func RegisterPack(p Pack) error {
	return DefaultRegistry.Register(p)
}

func init() {
	if err := RegisterPack(Builtin()); err != nil {
		panic(err)
	}
}

// Resolve returns the named packs from the default registry, followed by a
// pack loaded from dir when dir is set.
func Resolve(names []string, dir string) ([]Pack, error) {
	packs := make([]Pack, 0, len(names)+1)
	for _, name := range names {
		p, err := DefaultRegistry.Get(name)
		if err != nil {
			return nil, err
		}
		packs = append(packs, p)
	}
	if dir != "" {
		p, err := LoadDir(dir)
		if err != nil {
			return nil, err
		}
		packs = append(packs, p)
	}
	return packs, nil
}
