//go:build !withcv
// +build !withcv

package cvref

// Available reports whether the OpenCV reference is compiled in.
func Available() bool {
	return false
}

// Version returns the linked OpenCV version, or "" without OpenCV.
func Version() string {
	return ""
}
