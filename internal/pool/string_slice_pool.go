package pool

import "sync"

var stringSlicePool = sync.Pool{
	New: func() any {
		s := make([]string, 0, 64)
		return &s
	},
}

// GetStringSlice returns a zero-length string slice from the pool together
// with a release function. The ingest tokenizers reuse these slices for
// CSV rows, which repeat thousands of times per recording.
//
// The slice must not be retained after calling the release function.
func GetStringSlice() ([]string, func()) {
	ptr, _ := stringSlicePool.Get().(*[]string)
	slice := (*ptr)[:0]

	return slice, func() { stringSlicePool.Put(ptr) }
}
