//go:build withcv
// +build withcv

package cvref

import "gocv.io/x/gocv"

// Available reports whether the OpenCV reference is compiled in.
func Available() bool {
	return true
}

// Version returns the linked OpenCV version.
func Version() string {
	return gocv.OpenCVVersion()
}
