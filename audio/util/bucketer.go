package util

// Bucketer averages fixed [start, end) index ranges of a frame, dividing each
// sum by the range width times Scale.
type Bucketer struct {
	Ranges [][2]int
	Scale  float64
}

// NewBucketer returns a Bucketer for the given ranges. A zero scale is 1.
func NewBucketer(ranges [][2]int, scale float64) *Bucketer {
	if scale == 0 {
		scale = 1
	}
	return &Bucketer{Ranges: ranges, Scale: scale}
}

// Bucket writes one value per range into dst and returns it. Ranges reaching
// past the end of the frame are truncated, but still normalized by their
// declared width.
func (b *Bucketer) Bucket(frame []float64, dst []float64) []float64 {
	if cap(dst) < len(b.Ranges) {
		dst = make([]float64, len(b.Ranges))
	}
	dst = dst[:len(b.Ranges)]
	for i, r := range b.Ranges {
		start, stop := r[0], r[1]
		if stop > len(frame) {
			stop = len(frame)
		}
		var sum float64
		for j := start; j < stop; j++ {
			sum += frame[j]
		}
		width := r[1] - r[0]
		if width <= 0 {
			dst[i] = 0
			continue
		}
		dst[i] = sum / (float64(width) * b.Scale)
	}
	return dst
}
