package automation

import (
	"encoding/json"
	"math"
	"testing"
)

func TestOscillateSine(t *testing.T) {
	o := Oscillator{Waveform: Sine, Frequency: 1, Amplitude: 1}
	if v := Oscillate(o, 0.25, 120); math.Abs(v-1) > 1e-12 {
		t.Fatal("expected 1, got", v)
	}
}

func TestOscillateDeterministic(t *testing.T) {
	for _, w := range []Waveform{Sine, Triangle, Square, Noise} {
		o := Oscillator{Waveform: w, Frequency: 2.3, Amplitude: 0.7, Phase: 0.13, Offset: 0.2, Sync: true}
		for _, clock := range []float64{0, 0.017, 1.5, 123.456} {
			a := Oscillate(o, clock, 128)
			b := Oscillate(o, clock, 128)
			if math.Float64bits(a) != math.Float64bits(b) {
				t.Fatalf("%v not deterministic at %v: %v != %v", w, clock, a, b)
			}
		}
	}
}

func TestOscillateShapes(t *testing.T) {
	cases := []struct {
		w     Waveform
		clock float64
		want  float64
	}{
		{Triangle, 0, 1},
		{Triangle, 0.25, 0},
		{Triangle, 0.5, -1},
		{Square, 0.1, 1},
		{Square, 0.6, -1},
		{Noise, 0.5, math.Sin(0.5*123.45) * math.Cos(0.5*678.90)},
	}
	for _, tc := range cases {
		o := Oscillator{Waveform: tc.w, Frequency: 1, Amplitude: 1}
		if got := Oscillate(o, tc.clock, 120); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("%v at %v = %v, want %v", tc.w, tc.clock, got, tc.want)
		}
	}
}

func TestOscillateSyncAndOffset(t *testing.T) {
	// 120 bpm is 2 beats per second, so a synced freq of 0.5 is 1 Hz.
	o := Oscillator{Waveform: Sine, Frequency: 0.5, Amplitude: 2, Offset: 0.5, Sync: true}
	if v := Oscillate(o, 0.25, 120); math.Abs(v-2.5) > 1e-12 {
		t.Fatal("expected 2.5, got", v)
	}
}

func TestSumTargets(t *testing.T) {
	oscs := []Oscillator{
		{Target: "zoom", Waveform: Square, Frequency: 1, Amplitude: 1},
		{Target: "zoom", Waveform: Square, Frequency: 1, Amplitude: 0.5, Offset: 0.1},
		{Target: "speed", Waveform: Square, Frequency: 1, Amplitude: 10},
	}
	if v := Sum(oscs, "zoom", 0.1, 120); math.Abs(v-1.6) > 1e-12 {
		t.Fatal("expected 1.6, got", v)
	}
	if v := Sum(oscs, "color", 0.1, 120); v != 0 {
		t.Fatal("expected 0, got", v)
	}
}

func TestWaveformJSON(t *testing.T) {
	var o Oscillator
	if err := json.Unmarshal([]byte(`{"type":"triangle","freq":2}`), &o); err != nil {
		t.Fatal(err)
	}
	if o.Waveform != Triangle || o.Frequency != 2 {
		t.Fatal(o)
	}
	b, err := json.Marshal(o)
	if err != nil {
		t.Fatal(err)
	}
	var back Oscillator
	if err := json.Unmarshal(b, &back); err != nil || back.Waveform != Triangle {
		t.Fatal(string(b), err)
	}
}
