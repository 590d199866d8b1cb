package jar

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeJar(t *testing.T, path string, entries [][2]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e[0])
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(e[1])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.SetComment("server build"); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func readAll(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer zr.Close()
	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		out[f.Name] = string(data)
	}
	return out
}

func TestEntryName(t *testing.T) {
	for _, in := range []string{"com.wurmonline.server.behaviours.Flattening", "com/wurmonline/server/behaviours/Flattening"} {
		if got := EntryName(in); got != "com/wurmonline/server/behaviours/Flattening.class" {
			t.Errorf("EntryName(%q) = %q", in, got)
		}
	}
}

func TestRewrite(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "jar-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	in := filepath.Join(tmpDir, "server.jar")
	entries := [][2]string{
		{"META-INF/MANIFEST.MF", "Manifest-Version: 1.0\n"},
		{"com/wurmonline/server/behaviours/Flattening.class", "old class"},
		{"com/wurmonline/server/behaviours/Action.class", "action"},
	}
	writeJar(t, in, entries)

	r, err := Open(in)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	if !r.Has("com.wurmonline.server.behaviours.Flattening") || r.Has("com.wurmonline.server.Server") {
		t.Error("Has mismatch")
	}
	data, err := r.Class("com.wurmonline.server.behaviours.Flattening")
	if err != nil || string(data) != "old class" {
		t.Fatalf("Class = %q, %v", data, err)
	}
	if _, err := r.Class("com.wurmonline.server.Server"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Class of missing entry = %v", err)
	}

	var buf bytes.Buffer
	replace := map[string][]byte{"com/wurmonline/server/behaviours/Flattening.class": []byte("new class")}
	if err := r.Rewrite(&buf, replace); err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	out := filepath.Join(tmpDir, "patched.jar")
	if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	got := readAll(t, out)
	if got["com/wurmonline/server/behaviours/Flattening.class"] != "new class" {
		t.Errorf("replaced entry = %q", got["com/wurmonline/server/behaviours/Flattening.class"])
	}
	if got["META-INF/MANIFEST.MF"] != entries[0][1] || got["com/wurmonline/server/behaviours/Action.class"] != "action" {
		t.Errorf("copied entries changed: %v", got)
	}

	r2, err := Open(out)
	if err != nil {
		t.Fatalf("Open of rewritten jar failed: %v", err)
	}
	defer r2.Close()
	want := []string{entries[0][0], entries[1][0], entries[2][0]}
	if !slices.Equal(r2.Names(), want) {
		t.Errorf("Names = %v, want %v", r2.Names(), want)
	}
	if r2.zr.Comment != "server build" {
		t.Errorf("comment = %q", r2.zr.Comment)
	}
}

func TestRewriteUnknownEntry(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "jar-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	in := filepath.Join(tmpDir, "server.jar")
	writeJar(t, in, [][2]string{{"a.class", "a"}})
	r, err := Open(in)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	var buf bytes.Buffer
	err = r.Rewrite(&buf, map[string][]byte{"b.class": nil})
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Rewrite error = %v, want ErrEntryNotFound", err)
	}
	if buf.Len() != 0 {
		t.Error("Rewrite wrote output before failing")
	}
}

func TestOpenNotAJar(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "jar-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)
	path := filepath.Join(tmpDir, "x.jar")
	if err := os.WriteFile(path, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("Open of a non-zip succeeded")
	}
}
