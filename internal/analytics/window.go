package analytics

// window is a fixed-capacity ring of float64 samples. Once full, each push
// overwrites the oldest entry.
type window struct {
	buf  []float64
	head int
	size int
}

func newWindow(capacity int) *window {
	return &window{buf: make([]float64, capacity)}
}

func (w *window) push(v float64) {
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)

	if w.size < len(w.buf) {
		w.size++
	}
}

func (w *window) len() int { return w.size }

// values returns the window contents oldest-first as a fresh slice.
func (w *window) values() []float64 {
	out := make([]float64, w.size)

	start := w.head - w.size
	if start < 0 {
		start += len(w.buf)
	}

	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(start+i)%len(w.buf)]
	}

	return out
}
