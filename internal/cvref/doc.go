// Package cvref runs the same pipeline stages through OpenCV so the pure-Go
// implementations can be checked against a reference.
//
// The OpenCV-backed functions are only compiled with the withcv build tag.
// Available and Version exist in every build.
package cvref
