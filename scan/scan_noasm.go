//go:build !amd64 || purego

package scan

func accelerated() []*Impl {
	return nil
}
