// Package transform resolves named transformations, expands presets,
// applies chains to a working buffer and computes the smallest input a
// chain can run on.
package transform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dunamismax/pixelvault/internal/apperrors"
	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/imaging"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var ErrUnknownTransformation = errors.New("unknown transformation")

// Target is what a transformation mutates: the descriptor and the pixels.
type Target struct {
	Image  *domain.Image
	Buffer imaging.Buffer
}

type Handler interface {
	Transform(ctx context.Context, target *Target, params domain.Params) error
}

type HandlerFunc func(ctx context.Context, target *Target, params domain.Params) error

func (f HandlerFunc) Transform(ctx context.Context, target *Target, params domain.Params) error {
	return f(ctx, target, params)
}

// Initializer runs once on every handler right after it is materialized.
// It must not resolve other transformations.
type Initializer func(name string, h Handler)

// Definition says how to obtain a handler. Exactly one of the constructors
// below produces a usable value.
type Definition struct {
	instance Handler
	factory  func() Handler
	typeID   string
}

func Instance(h Handler) Definition { return Definition{instance: h} }

func Factory(fn func() Handler) Definition { return Definition{factory: fn} }

// Type defers to a constructor registered with RegisterType.
func Type(id string) Definition { return Definition{typeID: strings.TrimSpace(id)} }

func (d Definition) set() int {
	n := 0
	if d.instance != nil {
		n++
	}
	if d.factory != nil {
		n++
	}
	if d.typeID != "" {
		n++
	}
	return n
}

// Registry holds transformation definitions, type constructors,
// initializers and presets. Configure it fully before serving requests;
// only the handler cache changes afterwards.
type Registry struct {
	definitions  map[string]Definition
	types        map[string]func() Handler
	initializers []Initializer
	presets      map[string]domain.Preset
	logger       *zap.Logger

	mu       sync.Mutex
	resolved map[string]Handler
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		definitions: make(map[string]Definition),
		types:       make(map[string]func() Handler),
		presets:     make(map[string]domain.Preset),
		logger:      logger,
		resolved:    make(map[string]Handler),
	}
}

func (r *Registry) Register(name string, def Definition) error {
	const op = "register transformation"
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.Errorf(apperrors.CategoryConfiguration, op, "transformation name is empty")
	}
	if def.set() != 1 {
		return apperrors.Errorf(apperrors.CategoryConfiguration, op, "transformation %q needs exactly one of instance, factory or type", name)
	}
	if _, exists := r.definitions[name]; exists {
		return apperrors.Errorf(apperrors.CategoryConfiguration, op, "transformation %q is already registered", name)
	}
	r.definitions[name] = def
	return nil
}

func (r *Registry) RegisterType(id string, ctor func() Handler) error {
	const op = "register transformation type"
	id = strings.TrimSpace(id)
	if id == "" || ctor == nil {
		return apperrors.Errorf(apperrors.CategoryConfiguration, op, "type %q needs an id and a constructor", id)
	}
	if _, exists := r.types[id]; exists {
		return apperrors.Errorf(apperrors.CategoryConfiguration, op, "type %q is already registered", id)
	}
	r.types[id] = ctor
	return nil
}

func (r *Registry) AddInitializer(fn Initializer) {
	if fn != nil {
		r.initializers = append(r.initializers, fn)
	}
}

func (r *Registry) SetPreset(name string, preset domain.Preset) error {
	const op = "register preset"
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.Errorf(apperrors.CategoryConfiguration, op, "preset name is empty")
	}
	if len(preset) == 0 {
		return apperrors.Errorf(apperrors.CategoryConfiguration, op, "preset %q has no entries", name)
	}
	for i, entry := range preset {
		if strings.TrimSpace(entry.Name) == "" {
			return apperrors.Errorf(apperrors.CategoryConfiguration, op, "preset %q entry %d has no name", name, i)
		}
	}
	r.presets[name] = preset
	return nil
}

// Validate checks that every preset entry names a registered transformation
// and that every type definition has a constructor.
func (r *Registry) Validate() error {
	const op = "validate transformations"
	for name, def := range r.definitions {
		if def.typeID == "" {
			continue
		}
		if _, ok := r.types[def.typeID]; !ok {
			return apperrors.Errorf(apperrors.CategoryConfiguration, op, "transformation %q uses unregistered type %q", name, def.typeID)
		}
	}
	for _, name := range sortedNames(r.presets) {
		for _, entry := range r.presets[name] {
			if _, ok := r.definitions[entry.Name]; !ok {
				return apperrors.Errorf(apperrors.CategoryConfiguration, op, "preset %q references unknown transformation %q", name, entry.Name)
			}
		}
	}
	return nil
}

// Has reports whether name is a transformation or a preset.
func (r *Registry) Has(name string) bool {
	if _, ok := r.definitions[name]; ok {
		return true
	}
	return r.IsPreset(name)
}

func (r *Registry) IsPreset(name string) bool {
	_, ok := r.presets[name]
	return ok
}

func (r *Registry) Preset(name string) (domain.Preset, bool) {
	p, ok := r.presets[name]
	return p, ok
}

func (r *Registry) Names() []string {
	return sortedNames(r.definitions)
}

func (r *Registry) PresetNames() []string {
	return sortedNames(r.presets)
}

// Resolve returns the handler registered under name, materializing and
// initializing it on first use. Later calls return the same handler.
func (r *Registry) Resolve(name string) (Handler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.resolved[name]; ok {
		return h, nil
	}

	def, ok := r.definitions[name]
	if !ok {
		return nil, apperrors.New(apperrors.CategoryUnknownTransformation, "resolve transformation", fmt.Errorf("%w: %q", ErrUnknownTransformation, name))
	}

	h, err := r.materialize(name, def)
	if err != nil {
		return nil, err
	}
	for _, initialize := range r.initializers {
		initialize(name, h)
	}
	r.resolved[name] = h
	r.logger.Debug("transformation resolved", zap.String("name", name))
	return h, nil
}

func (r *Registry) materialize(name string, def Definition) (Handler, error) {
	const op = "resolve transformation"
	var h Handler
	switch {
	case def.instance != nil:
		h = def.instance
	case def.factory != nil:
		h = def.factory()
	default:
		ctor, ok := r.types[def.typeID]
		if !ok {
			return nil, apperrors.Errorf(apperrors.CategoryConfiguration, op, "transformation %q uses unregistered type %q", name, def.typeID)
		}
		h = ctor()
	}
	if h == nil {
		return nil, apperrors.Errorf(apperrors.CategoryConfiguration, op, "transformation %q produced a nil handler", name)
	}
	return h, nil
}

// NewManager returns a manager for a single request.
func (r *Registry) NewManager() *Manager {
	return &Manager{registry: r, logger: r.logger}
}

func sortedNames[V any](m map[string]V) []string {
	names := lo.Keys(m)
	sort.Strings(names)
	return names
}
