// Package automation evaluates keyframe tracks and low frequency oscillators.
// Everything here is a pure function of its inputs.
package automation

import (
	"encoding/json"
	"math"
	"sort"
)

// Keyframe is one automation point. Time is normalized to the clip length.
type Keyframe struct {
	Time  float64 `json:"t"`
	Value float64 `json:"v"`
	Curve Curve   `json:"curve"`
}

// Track is a time-ordered set of keyframes with no two sharing a time.
type Track []Keyframe

// Set inserts k, replacing any keyframe already at k.Time.
func (t *Track) Set(k Keyframe) {
	k.Time = clamp01(k.Time)
	tr := *t
	i := sort.Search(len(tr), func(i int) bool { return tr[i].Time >= k.Time })
	if i < len(tr) && tr[i].Time == k.Time {
		tr[i] = k
		return
	}
	tr = append(tr, Keyframe{})
	copy(tr[i+1:], tr[i:])
	tr[i] = k
	*t = tr
}

// Remove deletes the keyframe at time, reporting whether one existed.
func (t *Track) Remove(time float64) bool {
	tr := *t
	i := sort.Search(len(tr), func(i int) bool { return tr[i].Time >= time })
	if i == len(tr) || tr[i].Time != time {
		return false
	}
	*t = append(tr[:i], tr[i+1:]...)
	return true
}

// Clone returns a copy that shares no memory with t.
func (t Track) Clone() Track {
	if t == nil {
		return nil
	}
	c := make(Track, len(t))
	copy(c, t)
	return c
}

// UnmarshalJSON decodes a list of points and restores the ordering invariant.
// Later points win when two share a time.
func (t *Track) UnmarshalJSON(b []byte) error {
	var raw []Keyframe
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	tr := make(Track, 0, len(raw))
	for _, k := range raw {
		if math.IsNaN(k.Time) || math.IsNaN(k.Value) {
			continue
		}
		tr.Set(k)
	}
	*t = tr
	return nil
}

// Evaluate returns the track's value at normalized time x, or base if the
// track is empty. Values outside the keyframe range are clamped to the
// nearest end. The curve stored on the left keyframe shapes each segment.
func Evaluate(track Track, base, x float64) float64 {
	n := len(track)
	if n == 0 {
		return base
	}
	if math.IsNaN(x) || x <= track[0].Time {
		return track[0].Value
	}
	if x >= track[n-1].Time {
		return track[n-1].Value
	}

	i := sort.Search(n, func(i int) bool { return track[i].Time > x })
	p1, p2 := track[i-1], track[i]
	span := p2.Time - p1.Time
	if span <= 0 {
		return p2.Value
	}
	a := (x - p1.Time) / span
	return p1.Value + (p2.Value-p1.Value)*p1.Curve.Apply(a)
}

// Evaluate is shorthand for the package level Evaluate.
func (t Track) Evaluate(base, x float64) float64 {
	return Evaluate(t, base, x)
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
