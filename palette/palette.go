// Package palette loads shader sources from a directory and watches it so
// edits reach the live project.
package palette

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

// Extensions are the file types read as shader sources.
var Extensions = map[string]bool{
	".glsl": true,
	".frag": true,
	".fs":   true,
	".expr": true,
}

// IsShaderFile reports whether path names a shader source.
func IsShaderFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return Extensions[strings.ToLower(filepath.Ext(base))]
}

// ShaderID is the palette id of a shader file: its name without extension.
func ShaderID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadDir reads every shader file in dir, sorted by id.
func LoadDir(dir string) ([]timeline.Shader, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var shaders []timeline.Shader
	for _, e := range entries {
		if e.IsDir() || !IsShaderFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading shader %s: %w", path, err)
		}
		id := ShaderID(path)
		shaders = append(shaders, timeline.Shader{
			ID:     id,
			Name:   strings.ReplaceAll(id, "_", " "),
			Source: string(src),
		})
	}
	sort.Slice(shaders, func(i, j int) bool { return shaders[i].ID < shaders[j].ID })
	return shaders, nil
}

// Merge updates p's palette from loaded: shaders with a known id take the new
// source, new ids are appended. Shaders missing from loaded are kept so clips
// referring to them still resolve. It reports whether anything changed.
func Merge(p *timeline.Project, loaded []timeline.Shader) bool {
	changed := false
	for _, s := range loaded {
		if cur, ok := p.Shader(s.ID); ok {
			if cur.Source != s.Source {
				cur.Source = s.Source
				changed = true
			}
			continue
		}
		p.Shaders = append(p.Shaders, s)
		changed = true
	}
	return changed
}
