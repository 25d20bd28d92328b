package render

import (
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

// DiagnosticFunc receives the compile status of a shader: nil on success, the
// compiler log otherwise.
type DiagnosticFunc func(shaderID string, diag *string)

type cacheKey struct {
	id      string
	variant Variant
}

type cacheEntry struct {
	text string
	gen  uint64
	prog Program
	err  error
}

// ProgramCache compiles shader sources on demand and keeps the result until
// the source text changes or the cache is invalidated.
//
// Every entry remembers the generation it was built under. Invalidate bumps
// the generation, so each later lookup recompiles regardless of source text.
type ProgramCache struct {
	dev     Device
	gen     uint64
	entries map[cacheKey]*cacheEntry
	diags   map[cacheKey]string
	// status is the last compile status reported per shader; nil is success.
	status map[string]*string

	onDiag DiagnosticFunc
}

// NewProgramCache creates a cache compiling on dev.
func NewProgramCache(dev Device) *ProgramCache {
	return &ProgramCache{
		dev:     dev,
		entries: make(map[cacheKey]*cacheEntry),
		diags:   make(map[cacheKey]string),
		status:  make(map[string]*string),
	}
}

// OnDiagnostic registers the callback invoked when the compile status of a
// shader changes: its first compile, success to failure and back, or a
// different error message.
func (c *ProgramCache) OnDiagnostic(fn DiagnosticFunc) {
	c.onDiag = fn
}

// Generation returns the current cache generation.
func (c *ProgramCache) Generation() uint64 {
	return c.gen
}

// Program returns the compiled program for s in the given variant, compiling
// when there is no current entry. A failed compile is remembered, so the same
// broken text is not recompiled every frame.
func (c *ProgramCache) Program(s *timeline.Shader, v Variant) (Program, error) {
	k := cacheKey{s.ID, v}
	e, ok := c.entries[k]
	if ok && e.gen == c.gen && e.text == s.Source {
		return e.prog, e.err
	}
	if ok && e.gen == c.gen && e.prog != nil {
		c.dev.Release(e.prog)
	}

	glog.V(2).Infof("compiling shader %s (%v), generation %d", s.ID, v, c.gen)
	prog, err := c.dev.Compile(Source{ShaderID: s.ID, Text: s.Source, Variant: v})
	if err != nil && errors.Is(err, ErrDeviceLost) {
		// Nothing is learned about the source; compile again once recovered.
		delete(c.entries, k)
		return nil, fmt.Errorf("compiling shader %s: %w", s.ID, err)
	}
	e = &cacheEntry{text: s.Source, gen: c.gen, prog: prog}
	if err != nil {
		e.prog = nil
		e.err = fmt.Errorf("compiling shader %s: %w", s.ID, err)
		c.diags[k] = err.Error()
		glog.Warningf("shader %s (%v) failed to compile: %v", s.ID, v, err)
	} else {
		delete(c.diags, k)
	}
	c.entries[k] = e
	c.report(s.ID)
	return e.prog, e.err
}

// report notifies the diagnostic callback if the status of a shader differs
// from the one last reported.
func (c *ProgramCache) report(id string) {
	prev, seen := c.status[id]
	cur, failed := c.Diagnostic(id)
	if seen && (prev != nil) == failed && (!failed || *prev == cur) {
		return
	}
	if !failed {
		c.status[id] = nil
		c.notify(id, nil)
		return
	}
	c.status[id] = &cur
	c.notify(id, &cur)
}

func (c *ProgramCache) notify(id string, diag *string) {
	if c.onDiag != nil {
		c.onDiag(id, diag)
	}
}

// Diagnostic returns the last compile error of a shader, preferring the
// plain variant's when both failed.
func (c *ProgramCache) Diagnostic(shaderID string) (string, bool) {
	for _, v := range []Variant{Plain, WithVideo} {
		if d, ok := c.diags[cacheKey{shaderID, v}]; ok {
			return d, true
		}
	}
	return "", false
}

// Invalidate marks every entry stale. Use it after the device lost its
// context; stale programs are dropped without being released.
func (c *ProgramCache) Invalidate() {
	c.gen++
}

// Prune releases programs of shaders that are no longer in the palette.
func (c *ProgramCache) Prune(palette []timeline.Shader) {
	keep := make(map[string]bool, len(palette))
	for i := range palette {
		keep[palette[i].ID] = true
	}
	for k, e := range c.entries {
		if keep[k.id] {
			continue
		}
		if e.gen == c.gen && e.prog != nil {
			c.dev.Release(e.prog)
		}
		delete(c.entries, k)
		delete(c.diags, k)
		delete(c.status, k.id)
	}
}

// Close releases every live program.
func (c *ProgramCache) Close() {
	c.Prune(nil)
}
