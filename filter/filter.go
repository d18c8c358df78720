package filter

// Filter interface is the implementation of packet filtering.
type Filter interface {
	// Filter returns zero if the packet is filtered (rejected),
	// non-zero if it passes.
	Filter([]byte) int
}

// FilterFunc is a Filter interface implementation as a standalone
// function.
type FilterFunc func([]byte) int

func (f FilterFunc) Filter(b []byte) int {
	return f(b)
}
