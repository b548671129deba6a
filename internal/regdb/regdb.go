// Package regdb resolves GPU register indices to names and formats their
// values for the command-stream decoder.
//
// The database is a YAML catalog embedded in the binary. It covers a
// working subset of the a2xx and a3xx register files; a full database can
// be plugged in through the Resolver interface.
package regdb

import (
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed db/registers.yaml
var registersYAML []byte

// Resolver maps register indices to names and renders register values.
type Resolver interface {
	// Name returns the register name for reg.
	Name(reg uint32) (string, bool)
	// Format renders val as written to reg.
	Format(reg, val uint32) string
	// Lookup returns the index of a named register.
	Lookup(name string) (uint32, bool)
}

// ValueType selects how a register value is rendered.
type ValueType string

// Value types.
const (
	TypeHex     ValueType = "hex"
	TypeUint    ValueType = "uint"
	TypeFloat   ValueType = "float"
	TypeAddress ValueType = "address"
)

// Register is one entry of a generation's register file.
type Register struct {
	Offset uint32    `yaml:"offset"`
	Name   string    `yaml:"name"`
	Count  uint32    `yaml:"count"`
	Stride uint32    `yaml:"stride"`
	Type   ValueType `yaml:"type"`
}

// Generation is the register file of a GPU family.
type Generation struct {
	Family    string      `yaml:"name"`
	MinGPUID  uint32      `yaml:"min_gpu_id"`
	MaxGPUID  uint32      `yaml:"max_gpu_id"`
	Registers []*Register `yaml:"registers"`

	byReg  map[uint32]entry
	byName map[string]uint32
}

type entry struct {
	name string
	typ  ValueType
}

// Database holds every known generation.
type Database struct {
	Version     int           `yaml:"version"`
	Generations []*Generation `yaml:"generations"`
}

var (
	defaultDB   *Database
	defaultOnce sync.Once
	defaultErr  error
)

// Load returns the embedded database. The catalog is parsed once.
func Load() (*Database, error) {
	defaultOnce.Do(func() {
		defaultDB, defaultErr = Parse(registersYAML)
	})
	return defaultDB, defaultErr
}

// Parse builds a database from YAML.
func Parse(data []byte) (*Database, error) {
	var db Database
	if err := yaml.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("failed to parse register database: %w", err)
	}
	for _, gen := range db.Generations {
		if err := gen.index(); err != nil {
			return nil, err
		}
	}
	return &db, nil
}

func (g *Generation) index() error {
	g.byReg = make(map[uint32]entry)
	g.byName = make(map[string]uint32)
	for _, r := range g.Registers {
		if r.Name == "" {
			return fmt.Errorf("%s: register 0x%04x has no name", g.Family, r.Offset)
		}
		typ := r.Type
		if typ == "" {
			typ = TypeHex
		}
		switch typ {
		case TypeHex, TypeUint, TypeFloat, TypeAddress:
		default:
			return fmt.Errorf("%s: register %s has unknown type %q", g.Family, r.Name, typ)
		}

		count := r.Count
		if count == 0 {
			count = 1
		}
		stride := r.Stride
		if stride == 0 {
			stride = 1
		}
		for i := uint32(0); i < count; i++ {
			name := r.Name
			if strings.Contains(name, "%d") {
				name = fmt.Sprintf(name, i)
			} else if count > 1 {
				name = fmt.Sprintf("%s[%d]", name, i)
			}
			reg := r.Offset + i*stride
			if prev, dup := g.byReg[reg]; dup {
				return fmt.Errorf("%s: register 0x%04x defined as both %s and %s", g.Family, reg, prev.name, name)
			}
			g.byReg[reg] = entry{name: name, typ: typ}
			g.byName[name] = reg
		}
	}
	return nil
}

// ForGPU returns the generation covering gpuID. Ids below every generation
// fall back to the first one, ids above to the last.
func (db *Database) ForGPU(gpuID uint32) *Generation {
	if len(db.Generations) == 0 {
		return nil
	}
	for _, gen := range db.Generations {
		if gpuID >= gen.MinGPUID && gpuID <= gen.MaxGPUID {
			return gen
		}
	}
	if gpuID < db.Generations[0].MinGPUID {
		return db.Generations[0]
	}
	return db.Generations[len(db.Generations)-1]
}

// Get returns a generation by name.
func (db *Database) Get(name string) (*Generation, bool) {
	for _, gen := range db.Generations {
		if gen.Family == name {
			return gen, true
		}
	}
	return nil, false
}

// Name implements Resolver.
func (g *Generation) Name(reg uint32) (string, bool) {
	e, ok := g.byReg[reg]
	return e.name, ok
}

// Lookup implements Resolver.
func (g *Generation) Lookup(name string) (uint32, bool) {
	reg, ok := g.byName[name]
	return reg, ok
}

// TypeOf returns the value type of reg (hex when unknown).
func (g *Generation) TypeOf(reg uint32) ValueType {
	if e, ok := g.byReg[reg]; ok {
		return e.typ
	}
	return TypeHex
}

// Format implements Resolver.
func (g *Generation) Format(reg, val uint32) string {
	return FormatValue(g.TypeOf(reg), val)
}

// Names returns every register name in the generation, sorted by index.
func (g *Generation) Names() []string {
	regs := make([]uint32, 0, len(g.byReg))
	for reg := range g.byReg {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })
	names := make([]string, len(regs))
	for i, reg := range regs {
		names[i] = g.byReg[reg].name
	}
	return names
}

// FormatValue renders val according to typ.
func FormatValue(typ ValueType, val uint32) string {
	switch typ {
	case TypeUint:
		return fmt.Sprintf("%d", val)
	case TypeFloat:
		return fmt.Sprintf("%f", math.Float32frombits(val))
	case TypeAddress:
		return fmt.Sprintf("0x%08x", val)
	default:
		return fmt.Sprintf("%08x", val)
	}
}

// Generic is the resolver used when no database generation applies: it
// knows no names and prints raw values.
type Generic struct{}

// Name implements Resolver.
func (Generic) Name(reg uint32) (string, bool) { return "", false }

// Format implements Resolver.
func (Generic) Format(reg, val uint32) string { return FormatValue(TypeHex, val) }

// Lookup implements Resolver.
func (Generic) Lookup(name string) (uint32, bool) { return 0, false }

// DisplayName returns the register name, or a numeric form.
func DisplayName(r Resolver, reg uint32) string {
	if name, ok := r.Name(reg); ok {
		return name
	}
	return fmt.Sprintf("<0x%04x>", reg)
}
