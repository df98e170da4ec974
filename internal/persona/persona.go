// Package persona defines the fixed cast of discussion characters.
//
// The cast is a closed set: every Character constant has exactly one
// definition in the embedded personas.yaml and nothing can be added or
// removed at runtime.
package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ent0n29/roundtable/internal/agent"
)

// Character identifies one member of the cast.
type Character int

const (
	Sheldon Character = iota + 1
	Leonard
	Penny
	Howard
	Raj
)

// Characters lists the cast in canonical order.
var Characters = []Character{Sheldon, Leonard, Penny, Howard, Raj}

func (c Character) String() string {
	switch c {
	case Sheldon:
		return "sheldon"
	case Leonard:
		return "leonard"
	case Penny:
		return "penny"
	case Howard:
		return "howard"
	case Raj:
		return "raj"
	default:
		return fmt.Sprintf("character(%d)", int(c))
	}
}

// Capability names an external tool a persona may draw on.
type Capability string

const WebScrape Capability = "web_scrape"

var ErrUnknownPersona = errors.New("unknown persona")

// Persona is an immutable character definition consumed by the agent runtime.
type Persona struct {
	Character    Character
	Name         string
	Description  string
	Instructions string
	Tools        []Capability
}

// AgentSpec converts the persona into the runtime's persona shape.
func (p Persona) AgentSpec() agent.Persona {
	tools := make([]string, 0, len(p.Tools))
	for _, t := range p.Tools {
		tools = append(tools, string(t))
	}
	return agent.Persona{
		Name:         p.Name,
		Description:  p.Description,
		Instructions: p.Instructions,
		Tools:        tools,
	}
}

// ParseCharacter maps a display name or identifier onto the closed set.
func ParseCharacter(name string) (Character, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, c := range Characters {
		if c.String() == key {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPersona, name)
}

// Registry resolves persona names to definitions.
type Registry struct {
	byCharacter map[Character]Persona
}

//go:embed personas.yaml
var embedded []byte

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry built from the embedded cast.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := Load(embedded)
		if err != nil {
			panic(fmt.Sprintf("persona: embedded cast is invalid: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

type definition struct {
	Character    string   `yaml:"character"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Instructions string   `yaml:"instructions"`
	Tools        []string `yaml:"tools"`
}

// Load builds a registry from YAML definitions. Every character must be
// defined exactly once.
func Load(data []byte) (*Registry, error) {
	var defs []definition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("decode personas: %w", err)
	}

	r := &Registry{byCharacter: make(map[Character]Persona, len(Characters))}
	for _, d := range defs {
		c, err := ParseCharacter(d.Character)
		if err != nil {
			return nil, err
		}
		if _, dup := r.byCharacter[c]; dup {
			return nil, fmt.Errorf("duplicate persona %q", d.Character)
		}
		name := strings.TrimSpace(d.Name)
		if name == "" || strings.TrimSpace(d.Instructions) == "" {
			return nil, fmt.Errorf("persona %q needs a name and instructions", d.Character)
		}
		tools := make([]Capability, 0, len(d.Tools))
		for _, t := range d.Tools {
			tools = append(tools, Capability(strings.TrimSpace(t)))
		}
		r.byCharacter[c] = Persona{
			Character:    c,
			Name:         name,
			Description:  strings.TrimSpace(d.Description),
			Instructions: strings.TrimSpace(d.Instructions),
			Tools:        tools,
		}
	}
	for _, c := range Characters {
		if _, ok := r.byCharacter[c]; !ok {
			return nil, fmt.Errorf("persona %q is not defined", c)
		}
	}
	return r, nil
}

// Resolve looks up a persona by display name or identifier, case-insensitively.
func (r *Registry) Resolve(name string) (Persona, error) {
	c, err := ParseCharacter(name)
	if err != nil {
		return Persona{}, err
	}
	return r.Lookup(c), nil
}

// ResolveAll resolves names in order, failing on the first unknown one.
func (r *Registry) ResolveAll(names []string) ([]Persona, error) {
	out := make([]Persona, 0, len(names))
	for _, n := range names {
		p, err := r.Resolve(n)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Lookup returns the definition of c. c must be one of Characters.
func (r *Registry) Lookup(c Character) Persona {
	p := r.byCharacter[c]
	p.Tools = append([]Capability(nil), p.Tools...)
	return p
}

// All returns the whole cast in canonical order.
func (r *Registry) All() []Persona {
	out := make([]Persona, 0, len(Characters))
	for _, c := range Characters {
		out = append(out, r.Lookup(c))
	}
	return out
}

// DefaultSelection is the cast that joins a discussion when none is chosen.
func DefaultSelection() []string {
	return []string{"Sheldon", "Leonard", "Penny", "Howard"}
}
