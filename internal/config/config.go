// Package config handles timerfix.toml, the file that chooses which patch
// categories run and which hook and target symbols they use.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "timerfix.toml"

var ErrInvalid = errors.New("invalid configuration")

// Category is a named group of patches that can be enabled together.
type Category string

const (
	Flatten   Category = "FLATTEN"
	Spells    Category = "SPELLS"
	Destroy   Category = "DESTROY"
	Pray      Category = "PRAY"
	Sacrifice Category = "SACRIFICE"
	Sow       Category = "SOW"
	Meditate  Category = "MEDITATE"
	Alchemy   Category = "ALCHEMY"
	Improve   Category = "IMPROVE"
	Forage    Category = "FORAGE"
	Breed     Category = "BREED"
	Misc      Category = "MISC"
)

// Categories lists every known category in a stable order.
var Categories = []Category{
	Flatten, Spells, Destroy, Pray, Sacrifice, Sow,
	Meditate, Alchemy, Improve, Forage, Breed, Misc,
}

// ParseCategory accepts a category name in any case.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if slices.Contains(Categories, c) {
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown patch category %q", ErrInvalid, s)
}

// Method names a method by class, name and descriptor. Class names may use
// dots or slashes.
type Method struct {
	Class      string `toml:"class" json:"class" jsonschema:"title=Class,description=Binary class name"`
	Name       string `toml:"name" json:"name" jsonschema:"title=Name"`
	Descriptor string `toml:"descriptor" json:"descriptor,omitempty" jsonschema:"title=Descriptor,description=JVM method descriptor"`
}

func (m Method) String() string {
	return m.Class + "." + m.Name + m.Descriptor
}

// FlattenTarget configures the FLATTEN category.
type FlattenTarget struct {
	Target   Method `toml:"target" json:"target" jsonschema:"title=Target,description=Method whose tick checks are rewritten"`
	Hook     Method `toml:"hook" json:"hook" jsonschema:"title=Hook,description=Static predicate called by the rewritten checks"`
	Classify string `toml:"classify" json:"classify" jsonschema:"title=Classify,description=Call whose stored result is the type local"`
	Accessor string `toml:"accessor" json:"accessor" jsonschema:"title=Accessor,description=Time accessor that opens each checked block"`
	// Separator is optional; an empty name lets the second block follow the
	// first directly.
	Separator string `toml:"separator" json:"separator,omitempty" jsonschema:"title=Separator,description=Call that must be passed before the second checked block"`
}

// Config is loaded once and passed by value. Use the accessor methods to
// read list fields; they return copies.
type Config struct {
	EnabledPatches []string      `toml:"enabled_patches" json:"enabled_patches" jsonschema:"title=Enabled patches,description=Patch categories to apply"`
	SpellBlacklist []string      `toml:"spell_blacklist" json:"spell_blacklist,omitempty" jsonschema:"title=Spell blacklist,description=Spells left on stock timers"`
	MinSpellTimer  int           `toml:"min_spell_timer" json:"min_spell_timer" jsonschema:"title=Minimum spell timer,minimum=0"`
	MinPickTimer   int           `toml:"min_pick_timer" json:"min_pick_timer" jsonschema:"title=Minimum pick timer,minimum=0"`
	MinBreedTimer  int           `toml:"min_breed_timer" json:"min_breed_timer" jsonschema:"title=Minimum breed timer,minimum=0"`
	Flatten        FlattenTarget `toml:"flatten" json:"flatten"`

	// Path is the file the configuration was read from, if any.
	Path string `toml:"-" json:"-"`

	enabled   []Category
	blacklist []string
	set       []string
}

// settingCategory maps each tuning key to the category that reads it.
var settingCategory = []struct {
	key string
	cat Category
}{
	{"spell_blacklist", Spells},
	{"min_spell_timer", Spells},
	{"min_pick_timer", Misc},
	{"min_breed_timer", Breed},
}

// Default returns the configuration used when no file is found.
func Default() Config {
	c := Config{
		EnabledPatches: []string{string(Flatten)},
		MinSpellTimer:  2,
		Flatten: FlattenTarget{
			Target: Method{
				Class:      "com.wurmonline.server.behaviours.Flattening",
				Name:       "flatten",
				Descriptor: "(JLcom/wurmonline/server/creatures/Creature;Lcom/wurmonline/server/items/Item;IIIIIIFLcom/wurmonline/server/behaviours/Action;)Z",
			},
			Hook: Method{
				Class:      "net.bdew.wurm.timerfix.TimerHooks",
				Name:       "shouldFlattenTick",
				Descriptor: "(Lcom/wurmonline/server/behaviours/Action;ZFBZ)Z",
			},
			Classify:  "decodeType",
			Accessor:  "currentSecond",
			Separator: "sendActionControl",
		},
	}
	c, _ = c.normalize()
	return c
}

// Parse decodes TOML over the defaults.
func Parse(data []byte) (Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	for _, s := range settingCategory {
		if md.IsDefined(s.key) {
			c.set = append(c.set, s.key)
		}
	}
	return c.normalize()
}

// Load reads the configuration at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	c.Path = path
	return c, nil
}

// FindAndLoad walks up from startDir looking for timerfix.toml. It returns
// Default when there is none.
func FindAndLoad(startDir string) (Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return Config{}, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

func (c Config) normalize() (Config, error) {
	c.enabled = nil
	for _, name := range c.EnabledPatches {
		cat, err := ParseCategory(name)
		if err != nil {
			return Config{}, err
		}
		if !slices.Contains(c.enabled, cat) {
			c.enabled = append(c.enabled, cat)
		}
	}

	c.blacklist = nil
	for _, s := range c.SpellBlacklist {
		if s = SanitizeSpellName(s); s != "" && !slices.Contains(c.blacklist, s) {
			c.blacklist = append(c.blacklist, s)
		}
	}

	for name, v := range map[string]int{
		"min_spell_timer": c.MinSpellTimer,
		"min_pick_timer":  c.MinPickTimer,
		"min_breed_timer": c.MinBreedTimer,
	} {
		if v < 0 {
			return Config{}, fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalid, name, v)
		}
	}

	f := c.Flatten
	if slices.Contains(c.enabled, Flatten) {
		if f.Target.Class == "" || f.Target.Name == "" {
			return Config{}, fmt.Errorf("%w: flatten.target needs class and name", ErrInvalid)
		}
		if f.Hook.Class == "" || f.Hook.Name == "" || f.Hook.Descriptor == "" {
			return Config{}, fmt.Errorf("%w: flatten.hook needs class, name and descriptor", ErrInvalid)
		}
		if f.Classify == "" || f.Accessor == "" {
			return Config{}, fmt.Errorf("%w: flatten.classify and flatten.accessor are required", ErrInvalid)
		}
	}
	return c, nil
}

// Enabled reports whether category cat is switched on.
func (c Config) Enabled(cat Category) bool {
	return slices.Contains(c.enabled, cat)
}

// Patches returns the enabled categories in file order.
func (c Config) Patches() []Category {
	return slices.Clone(c.enabled)
}

// Blacklist returns the sanitized spell blacklist.
func (c Config) Blacklist() []string {
	return slices.Clone(c.blacklist)
}

// Settings returns the tuning keys the file set for cat, in a fixed order.
func (c Config) Settings(cat Category) []string {
	var out []string
	for _, s := range settingCategory {
		if s.cat == cat && slices.Contains(c.set, s.key) {
			out = append(out, s.key)
		}
	}
	return out
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// SanitizeSpellName lower-cases a spell name and drops everything that is
// not a letter or digit, so "Wind of Ages" and "windofages" compare equal.
func SanitizeSpellName(s string) string {
	return strings.ToLower(nonAlnum.ReplaceAllString(s, ""))
}
