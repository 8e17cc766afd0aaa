package cvref

// Describe formats the OpenCV status line printed by the tools.
func Describe() string {
	if !Available() {
		return "OpenCV: not compiled in (build with -tags withcv)"
	}
	return "OpenCV: " + Version()
}
