package styles

import (
	"strings"
	"testing"
)

func TestGetMarkdownRenderer(t *testing.T) {
	r, err := GetMarkdownRenderer(80)
	if err != nil {
		t.Fatalf("GetMarkdownRenderer failed: %v", err)
	}
	out, err := r.Render("# Flattening\n\n| region | target |\n|---|---|\n| [9,25) | 28 |\n")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(out, "Flattening") || !strings.Contains(out, "[9,25)") {
		t.Errorf("rendered output lost content: %q", out)
	}
}
