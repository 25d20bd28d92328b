package util

import "testing"

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Push([]float64{1, 2, 3, 4, 5, 6})
	rb.Push([]float64{7, 8, 9, 10, 11, 12})

	g := rb.Get(10)
	exp := []float64{3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	for i := range g {
		if g[i] != exp[i] {
			t.Fatal(exp, g)
		}
	}

	g = rb.GetOffset(10, 2)
	exp = []float64{11, 12, 3, 4, 5, 6, 7, 8, 9, 10}
	for i := range g {
		if g[i] != exp[i] {
			t.Fatal(exp, g)
		}
	}

	g = rb.GetOffset(10, -2)
	exp = []float64{5, 6, 7, 8, 9, 10, 11, 12, 3, 4}
	for i := range g {
		if g[i] != exp[i] {
			t.Fatal(exp, g)
		}
	}
}

func TestRingBufferLongPush(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Push([]float64{1, 2, 3, 4, 5, 6})
	g := rb.Get(4)
	exp := []float64{3, 4, 5, 6}
	for i := range g {
		if g[i] != exp[i] {
			t.Fatal(exp, g)
		}
	}
	if rb.Size() != 4 {
		t.Fatal(rb.Size())
	}
}

func TestPreGainRaisesQuietSignal(t *testing.T) {
	p := NewPreGain(DefaultPreGainParams)
	for i := 0; i < 200; i++ {
		frame := make([]float64, 64)
		for j := range frame {
			frame[j] = 0.01
		}
		p.Apply(frame)
	}
	if p.Gain() <= 1 {
		t.Fatal("expected gain to rise for a quiet signal, got", p.Gain())
	}
}
