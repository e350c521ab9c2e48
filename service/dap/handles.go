package dap

// Handles handed to the client start here so that they are never mistaken
// for thread ids.
const firstHandle = 1000

// tibScope is the thread information block of a thread, shown as the
// only scope of the only frame of that thread.
type tibScope struct {
	tid int
}

// refs hands out sequential references to values of type T. References
// stay valid until the next reset, which happens whenever the target
// moves to a different state.
type refs[T any] struct {
	next int
	vals map[int]T
}

func newRefs[T any]() *refs[T] {
	r := &refs[T]{}
	r.reset()
	return r
}

func (r *refs[T]) reset() {
	r.next = firstHandle
	r.vals = map[int]T{}
}

func (r *refs[T]) create(v T) int {
	id := r.next
	r.vals[id] = v
	r.next++
	return id
}

func (r *refs[T]) get(id int) (T, bool) {
	v, ok := r.vals[id]
	return v, ok
}
