// Package control applies parameter updates arriving from outside the
// render loop: controller mappings, the graphql API, a websocket status
// stream and MQTT topics.
package control

import (
	"fmt"
	"strings"

	"github.com/fraendk-lang/elastic-pulse-studio/engine"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

// Registry resolves parameter paths and applies values to them. Paths are
//
//	masterBPM, masterBloom, ...     engine hooks, applied between frames
//	master.<field>                  any numeric MasterFX field
//	clip.<id>.<param>               a clip parameter, opacity or audioReactive
//
// Registry is safe for concurrent use.
type Registry struct {
	eng *engine.Engine
}

func NewRegistry(e *engine.Engine) *Registry {
	return &Registry{eng: e}
}

// Apply sets the parameter at path to value.
func (r *Registry) Apply(path string, value float64) error {
	for _, h := range engine.Hooks {
		if path == h {
			return r.eng.Dispatch(path, value)
		}
	}

	parts := strings.Split(path, ".")
	switch {
	case len(parts) == 2 && parts[0] == "master":
		return r.eng.Session.Update(func(p *timeline.Project) error {
			return p.Master.Set(parts[1], value)
		})
	case len(parts) == 3 && parts[0] == "clip":
		return r.eng.Session.Update(func(p *timeline.Project) error {
			c, ok := p.Clip(parts[1])
			if !ok {
				return fmt.Errorf("%w: %s", engine.ErrNoClip, parts[1])
			}
			return setClip(c, parts[2], value)
		})
	}
	return fmt.Errorf("unknown parameter %q", path)
}

func setClip(c *timeline.Clip, name string, value float64) error {
	switch name {
	case timeline.OpacityParam:
		c.Opacity = value
	case "audioReactive":
		c.AudioReactive = value
	default:
		p, ok := timeline.ParseParam(name)
		if !ok {
			return fmt.Errorf("unknown clip parameter %q", name)
		}
		c.Params[p] = value
	}
	c.Sanitize()
	return nil
}

// Paths lists the global parameter paths, for discovery by clients.
func (r *Registry) Paths() []string {
	paths := append([]string(nil), engine.Hooks...)
	for _, f := range timeline.MasterFields() {
		paths = append(paths, "master."+f)
	}
	return paths
}
