package audio

import (
	"testing"

	"github.com/faiface/beep"
)

func TestOfflineAdvance(t *testing.T) {
	s := newFakeStream(1024, 0.5)
	o := NewOffline(s, beep.Format{SampleRate: 1024, NumChannels: 2, Precision: 2}, 8)

	if b := o.Advance(0.5); b != nil {
		t.Fatal("advanced while paused")
	}
	o.Play()
	tap := o.Tap()

	b := o.Advance(100.0 / 1024)
	if len(b) != 100 || b[0] != 0.5 {
		t.Fatalf("block of %d", len(b))
	}
	if got := <-tap; len(got) != 100 {
		t.Fatalf("tap got %d", len(got))
	}
	if p := o.Position(); p != 100.0/1024 {
		t.Fatalf("position = %v", p)
	}

	// Fractional samples carry over to the next step.
	if b := o.Advance(1.5 / 1024); len(b) != 1 {
		t.Fatalf("first step %d samples", len(b))
	}
	<-tap
	if b := o.Advance(1.5 / 1024); len(b) != 2 {
		t.Fatalf("second step %d samples", len(b))
	}
	<-tap
	o.Untap(tap)

	w := o.Window(nil)
	if len(w) != 8 || w[0] != 0.5 || w[7] != 0.5 {
		t.Fatalf("window = %v", w)
	}

	if err := o.Seek(924.0 / 1024); err != nil {
		t.Fatal(err)
	}
	if b := o.Advance(1); len(b) != 100 {
		t.Fatalf("tail of %d", len(b))
	}
	if o.Playing() {
		t.Fatal("still playing after the end")
	}
	o.Play()
	if o.Playing() {
		t.Fatal("play at the end should not start")
	}
	if err := o.Close(); err != nil || !s.closed {
		t.Fatal("stream not closed")
	}
}
