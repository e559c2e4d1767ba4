package tree

import "sync"

// Recorder is a Renderer that keeps every instruction it receives, in order.
// The HTTP sidecar serves it as a row feed.
type Recorder struct {
	mu  sync.Mutex
	ops []Op
}

// Apply implements Renderer.
func (r *Recorder) Apply(ops []Op) {
	r.mu.Lock()
	r.ops = append(r.ops, ops...)
	r.mu.Unlock()
}

// Since returns the instructions after the first n and the new total.
func (r *Recorder) Since(n int) ([]Op, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < 0 || n > len(r.ops) {
		n = 0
	}
	out := make([]Op, len(r.ops)-n)
	copy(out, r.ops[n:])
	return out, len(r.ops)
}

// Ops returns every instruction recorded so far.
func (r *Recorder) Ops() []Op {
	ops, _ := r.Since(0)
	return ops
}

type multiRenderer []Renderer

func (m multiRenderer) Apply(ops []Op) {
	for _, r := range m {
		r.Apply(ops)
	}
}

// MultiRenderer fans instructions out to every renderer in order.
func MultiRenderer(renderers ...Renderer) Renderer {
	return multiRenderer(renderers)
}
