// Package timeline holds the data model of a project: the shader palette,
// clips with their automation, global effects, and markers.
package timeline

import (
	"encoding/json"
	"fmt"
	"math"
)

// ProjectVersion is written into every serialized project.
const ProjectVersion = 1

// Shader is one entry of the palette.
type Shader struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Source string `json:"code"`
	// Color is the UI swatch; it has no effect on rendering.
	Color string `json:"color,omitempty"`
}

// Marker is a named point on the timeline.
type Marker struct {
	ID    string  `json:"id"`
	Time  float64 `json:"time"`
	Label string  `json:"label,omitempty"`
}

// Region is a loop range in seconds.
type Region struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Valid reports whether the region has positive length.
func (r *Region) Valid() bool {
	return r != nil && r.End > r.Start && !math.IsNaN(r.Start) && !math.IsNaN(r.End)
}

// Project is the complete mutable state that is saved and restored.
type Project struct {
	Version  int             `json:"version"`
	Shaders  []Shader        `json:"shaders"`
	Clips    []Clip          `json:"clips"`
	Master   MasterFX        `json:"masterFX"`
	Duration float64         `json:"totalDuration"`
	Markers  []Marker        `json:"markers"`
	Loop     *Region         `json:"loopRegion,omitempty"`
	Mutes    [NumTracks]bool `json:"trackMutes"`
	Solos    [NumTracks]bool `json:"trackSolos"`
}

// NewProject returns an empty two minute project.
func NewProject() *Project {
	return &Project{
		Version:  ProjectVersion,
		Master:   DefaultMaster(),
		Duration: 120,
	}
}

// Shader returns the palette entry with the given id.
func (p *Project) Shader(id string) (*Shader, bool) {
	for i := range p.Shaders {
		if p.Shaders[i].ID == id {
			return &p.Shaders[i], true
		}
	}
	return nil, false
}

// Clip returns the clip with the given id.
func (p *Project) Clip(id string) (*Clip, bool) {
	for i := range p.Clips {
		if p.Clips[i].ID == id {
			return &p.Clips[i], true
		}
	}
	return nil, false
}

// RemoveClip deletes the clip with the given id.
func (p *Project) RemoveClip(id string) bool {
	for i := range p.Clips {
		if p.Clips[i].ID == id {
			p.Clips = append(p.Clips[:i], p.Clips[i+1:]...)
			return true
		}
	}
	return false
}

// End is the latest clip end time, or 0 with no clips.
func (p *Project) End() float64 {
	var end float64
	for i := range p.Clips {
		end = math.Max(end, p.Clips[i].End())
	}
	return end
}

// Sanitize repairs values that would break rendering.
func (p *Project) Sanitize() {
	if p.Duration <= 0 || math.IsNaN(p.Duration) || math.IsInf(p.Duration, 0) {
		p.Duration = math.Max(120, p.End())
	}
	for i := range p.Clips {
		p.Clips[i].Sanitize()
	}
	if p.Loop != nil && !p.Loop.Valid() {
		p.Loop = nil
	}
}

// Clone returns a deep copy.
func (p *Project) Clone() *Project {
	c := *p
	c.Shaders = append([]Shader(nil), p.Shaders...)
	c.Clips = CloneClips(p.Clips)
	c.Markers = append([]Marker(nil), p.Markers...)
	if p.Loop != nil {
		l := *p.Loop
		c.Loop = &l
	}
	return &c
}

// CloneClips deep copies a clip list.
func CloneClips(clips []Clip) []Clip {
	if clips == nil {
		return nil
	}
	out := make([]Clip, len(clips))
	for i := range clips {
		out[i] = clips[i].Clone()
	}
	return out
}

// MarshalProject encodes p as JSON.
func MarshalProject(p *Project) ([]byte, error) {
	p.Version = ProjectVersion
	return json.MarshalIndent(p, "", "  ")
}

// UnmarshalProject decodes and sanitizes a project.
func UnmarshalProject(data []byte) (*Project, error) {
	p := NewProject()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decoding project: %w", err)
	}
	if p.Version > ProjectVersion {
		return nil, fmt.Errorf("project version %d is newer than supported %d", p.Version, ProjectVersion)
	}
	p.Sanitize()
	return p, nil
}
