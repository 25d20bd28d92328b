package audio

// NewNode creates a processing node that applies nodeFunc to every frame in place.
func NewNode(done chan struct{}, in <-chan Frame, nodeFunc func([]float64)) chan Frame {
	out := make(chan Frame)

	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case frame, ok := <-in:
				if !ok {
					return
				}
				nodeFunc(frame.Samples)
				select {
				case out <- frame:
				case <-done:
					return
				}
			}
		}
	}()

	return out
}
