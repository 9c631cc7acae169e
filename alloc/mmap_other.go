//go:build !unix

package alloc

// mapSlab falls back to the Go heap where anonymous mappings are unavailable.
func mapSlab(size int) ([]byte, func() error, error) {
	return make([]byte, size), nil, nil
}
