package palette

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

func write(t *testing.T, dir, name, text string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "b_tunnel.frag", "void main() {}")
	write(t, dir, "a_plasma.expr", "rgb(1, 0, 0)")
	write(t, dir, "notes.txt", "ignored")
	write(t, dir, ".hidden.glsl", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub.glsl"), 0755); err != nil {
		t.Fatal(err)
	}

	shaders, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(shaders) != 2 {
		t.Fatalf("loaded %+v", shaders)
	}
	if shaders[0].ID != "a_plasma" || shaders[0].Name != "a plasma" || shaders[0].Source != "rgb(1, 0, 0)" {
		t.Fatalf("first = %+v", shaders[0])
	}
	if shaders[1].ID != "b_tunnel" {
		t.Fatalf("second = %+v", shaders[1])
	}

	if _, err := LoadDir(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestMerge(t *testing.T) {
	p := timeline.NewProject()
	p.Shaders = []timeline.Shader{
		{ID: "a", Name: "A", Source: "old", Color: "#f00"},
		{ID: "keep", Source: "k"},
	}
	if !Merge(p, []timeline.Shader{{ID: "a", Source: "new"}, {ID: "c", Source: "c"}}) {
		t.Fatal("no change reported")
	}
	if len(p.Shaders) != 3 {
		t.Fatalf("shaders = %+v", p.Shaders)
	}
	a, _ := p.Shader("a")
	if a.Source != "new" || a.Name != "A" || a.Color != "#f00" {
		t.Fatalf("a = %+v", a)
	}
	if Merge(p, []timeline.Shader{{ID: "a", Source: "new"}}) {
		t.Fatal("identical merge reported a change")
	}
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "one.glsl", "v1")

	got := make(chan []timeline.Shader, 8)
	w, err := NewWatcher(dir, func(s []timeline.Shader) { got <- s })
	if err != nil {
		t.Fatal(err)
	}
	w.settle = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	write(t, dir, "ignored.txt", "x")
	write(t, dir, "one.glsl", "v2")
	write(t, dir, "two.glsl", "t")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-got:
			if len(s) == 2 && s[0].Source == "v2" && s[1].ID == "two" {
				return
			}
		case <-deadline:
			t.Fatal("no reload with both shaders")
		}
	}
}
