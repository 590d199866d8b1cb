package patch

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"timerfix/internal/classfile"
	"timerfix/internal/config"
)

func TestNewRegistry(t *testing.T) {
	cfg, err := config.Parse([]byte(`enabled_patches = ["FLATTEN", "SPELLS", "MISC"]`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	r := NewRegistry(cfg, nil)

	if len(r.Patchers()) != 1 || r.Patchers()[0].Category() != config.Flatten {
		t.Fatalf("Patchers = %v", r.Patchers())
	}
	if got := r.Unsupported(); !slices.Equal(got, []config.Category{config.Spells, config.Misc}) {
		t.Errorf("Unsupported = %v", got)
	}
	if got := r.Targets(); !slices.Equal(got, []string{flatteningClass}) {
		t.Errorf("Targets = %v", got)
	}
	for _, name := range []string{flatteningClass, "com.wurmonline.server.behaviours.Flattening"} {
		if len(r.For(name)) != 1 {
			t.Errorf("For(%q) found nothing", name)
		}
	}
	if len(r.For("com.wurmonline.server.behaviours.Terraforming")) != 0 {
		t.Error("For matched an untargeted class")
	}
}

func TestNewRegistryFlattenDisabled(t *testing.T) {
	cfg, err := config.Parse([]byte(`enabled_patches = ["BREED"]`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	r := NewRegistry(cfg, nil)
	if len(r.Patchers()) != 0 || len(r.Targets()) != 0 {
		t.Errorf("registry has patchers %v", r.Patchers())
	}
}

func TestNewRegistrySettings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []config.Category
		logs  []string
	}{
		{name: "defaults", input: ``},
		{
			name:  "spell timer without patcher",
			input: `min_spell_timer = 5`,
			want:  []config.Category{config.Spells},
			logs:  []string{"settings have no effect", "min_spell_timer"},
		},
		{
			name:  "pick and breed timers",
			input: "min_pick_timer = 3\nmin_breed_timer = 1",
			want:  []config.Category{config.Breed, config.Misc},
			logs:  []string{"min_pick_timer", "min_breed_timer"},
		},
		{
			name:  "enabled spells with blacklist",
			input: "enabled_patches = [\"FLATTEN\", \"SPELLS\"]\nspell_blacklist = [\"Wind of Ages\"]",
			want:  []config.Category{config.Spells},
			logs:  []string{"growing rewrite", "spell blacklist ignored", "windofages"},
		},
		{
			name:  "default value set explicitly",
			input: `min_spell_timer = 2`,
			want:  []config.Category{config.Spells},
			logs:  []string{"min_spell_timer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(tt.input))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			var buf bytes.Buffer
			r := NewRegistry(cfg, log.New(&buf))

			if got := r.Unsupported(); !slices.Equal(got, tt.want) {
				t.Errorf("Unsupported = %v, want %v", got, tt.want)
			}
			if len(r.Patchers()) != 1 {
				t.Errorf("got %d patchers", len(r.Patchers()))
			}
			for _, s := range tt.logs {
				if !strings.Contains(buf.String(), s) {
					t.Errorf("log does not mention %q:\n%s", s, buf.String())
				}
			}
			if len(tt.want) == 0 && strings.Contains(buf.String(), "WARN") {
				t.Errorf("unexpected warning:\n%s", buf.String())
			}
		})
	}
}

func TestPatchClass(t *testing.T) {
	r := NewRegistry(config.Default(), nil)

	f := buildFlatten(t, defaultShape())
	reports, err := r.PatchClass(f.cf)
	if err != nil {
		t.Fatalf("PatchClass failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports", len(reports))
	}
	rep := reports[0]
	if rep.Category != config.Flatten || rep.Vars != "act=12 insta=8 counter=11 type=7" {
		t.Errorf("report = %+v", rep)
	}
	if rep.Method != "flatten"+flattenDesc {
		t.Errorf("method = %q", rep.Method)
	}

	data, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, key := range []string{`"category":"FLATTEN"`, `"regions":[{"region":{"start":9,"end":25},"target":28,"first":true}`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("report JSON %s lacks %s", data, key)
		}
	}
}

func TestPatchClassUntargeted(t *testing.T) {
	cf, err := classfile.New("com/wurmonline/server/behaviours/Terraforming", "java/lang/Object")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = NewRegistry(config.Default(), nil).PatchClass(cf)
	if !errors.Is(err, ErrUnsupportedPatch) {
		t.Errorf("PatchClass error = %v, want ErrUnsupportedPatch", err)
	}
}

func TestPatchClassMissingMethod(t *testing.T) {
	cf, err := classfile.New(flatteningClass, "java/lang/Object")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = NewRegistry(config.Default(), nil).PatchClass(cf)
	if !errors.Is(err, classfile.ErrMethodNotFound) {
		t.Errorf("PatchClass error = %v, want ErrMethodNotFound", err)
	}
}

type failingPatcher struct{ err error }

func (p failingPatcher) Category() config.Category { return config.Misc }
func (p failingPatcher) Target() config.Method {
	return config.Method{Class: "com.wurmonline.server.behaviours.Flattening", Name: "flatten"}
}
func (p failingPatcher) Patch(*classfile.ClassFile) (*Report, error) { return nil, p.err }

func TestPatchClassStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistryWith(failingPatcher{err: boom}, NewFlattenPatcher(config.Default().Flatten, nil))

	f := buildFlatten(t, defaultShape())
	before := append([]byte(nil), f.code.Code...)
	_, err := r.PatchClass(f.cf)
	if !errors.Is(err, boom) || !strings.HasPrefix(err.Error(), "MISC patch") {
		t.Fatalf("PatchClass error = %v", err)
	}
	m, _ := f.cf.Method("flatten", flattenDesc)
	code, err := f.cf.Code(m)
	if err != nil {
		t.Fatalf("Code failed: %v", err)
	}
	if string(code.Code) != string(before) {
		t.Error("later patcher ran after a failure")
	}
}
