//go:build !giouring
// +build !giouring

package uring

import "fmt"

// NewRealRing always errors in builds without -tags giouring; the real
// implementation lives in iouring.go.
func NewRealRing(config Config) (Ring, error) {
	return nil, fmt.Errorf("uring: giouring not enabled; build with -tags giouring")
}
