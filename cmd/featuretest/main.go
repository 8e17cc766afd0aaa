// Command featuretest runs keypoint detection on one image and prints the
// strongest keypoints.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"featalign/internal/cvref"
	"featalign/internal/features"
	fimage "featalign/internal/image"
	"featalign/internal/render"
	"featalign/internal/version"
)

func main() {
	imagePath := flag.String("image", "", "Path to image (PNG, JPEG, TIFF, BMP or WebP)")
	detector := flag.String("detector", "orb", "Detector: orb or akaze")
	descriptor := flag.String("descriptor", "binary", "Descriptor: binary or float (akaze only)")
	maxKps := flag.Int("max", 500, "Maximum keypoints")
	top := flag.Int("top", 20, "Number of keypoints to print")
	out := flag.String("o", "", "Write an image with keypoints drawn")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("featuretest"))
		fmt.Println(cvref.Describe())
		return
	}

	if *imagePath == "" {
		fmt.Println("Usage: featuretest -image <path> [-detector orb|akaze] [-descriptor binary|float] [-max 500] [-o out.png]")
		os.Exit(1)
	}

	img, format, err := fimage.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %s image: %dx%d pixels\n", format, img.Width, img.Height)

	variant, err := features.ParseVariant(strings.ToLower(*detector), strings.ToLower(*descriptor))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid detector: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Variant: %s, max %d keypoints\n", variant, *maxKps)

	fmt.Printf("\nDetecting keypoints...\n")
	start := time.Now()
	kps, desc, err := features.Detect(img, variant, *maxKps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Detected %d keypoints in %v (%s descriptors, %d x %d)\n",
		len(kps), time.Since(start).Round(time.Millisecond), desc.Type, desc.Rows, desc.Cols)

	n := *top
	if n > len(kps) {
		n = len(kps)
	}
	if n > 0 {
		fmt.Printf("\n%-6s %10s %10s %8s %8s %12s %6s\n",
			"#", "X", "Y", "Size", "Angle", "Response", "Octave")
		fmt.Println(strings.Repeat("-", 66))
		for i, kp := range kps[:n] {
			fmt.Printf("%-6d %10.1f %10.1f %8.1f %8.1f %12.5g %6d\n",
				i, kp.X, kp.Y, kp.Size, kp.Angle, kp.Response, kp.Octave)
		}
	}

	if *out != "" {
		drawn := render.DrawKeypoints(img, kps, render.DefaultOptions())
		if err := fimage.Save(*out, drawn); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save image: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote %s\n", *out)
	}
}
