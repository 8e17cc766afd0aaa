// Command aligntest aligns a moving image onto a reference image and writes
// the warped result, an overlay and diagnostic images.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"featalign/internal/alignment"
	"featalign/internal/config"
	"featalign/internal/cvref"
	fimage "featalign/internal/image"
	"featalign/internal/render"
	"featalign/internal/report"
	"featalign/internal/version"
	"featalign/internal/warp"
	"featalign/pkg/colorutil"
)

func main() {
	ref := flag.String("f", "", "Path to reference image")
	moving := flag.String("b", "", "Path to moving image")
	configPath := flag.String("config", "", "TOML configuration file")
	detector := flag.String("detector", "", "Detector: orb or akaze")
	descriptor := flag.String("descriptor", "", "Descriptor: binary or float (akaze only)")
	maxKps := flag.Int("max", 0, "Maximum keypoints per image")
	maxDim := flag.Int("maxdim", -1, "Downscale images for detection so neither side exceeds this")
	ratio := flag.Float64("ratio", 0, "Ratio-test threshold in (0, 1]")
	threshold := flag.Float64("threshold", 0, "RANSAC reprojection threshold in pixels")
	seed := flag.Int64("seed", 0, "RANSAC random seed")
	flip := flag.Bool("flip", false, "Mirror the moving image before alignment")
	rotate := flag.Int("rotate", 0, "Rotate the moving image clockwise by 90, 180 or 270 degrees before alignment")
	out := flag.String("o", "", "Write the warped moving image here")
	overlay := flag.String("overlay", "", "Write a blended overlay here")
	matchesOut := flag.String("matches", "", "Write a side-by-side match image here")
	panorama := flag.String("panorama", "", "Write both images on a shared canvas here")
	plotOut := flag.String("plot", "", "Write a residual histogram here")
	jsonOut := flag.String("json", "", "Write a JSON report here (- for stdout)")
	logFile := flag.String("log", "", "Also log to this file (rotated)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("aligntest"))
		fmt.Println(cvref.Describe())
		return
	}
	if *ref == "" || *moving == "" {
		fmt.Println("Usage: aligntest -f <reference> -b <moving> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := config.NewDefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Explicit flags override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "detector":
			cfg.Detector.Name = *detector
		case "descriptor":
			cfg.Detector.Descriptor = *descriptor
		case "max":
			cfg.Detector.MaxKeypoints = *maxKps
		case "maxdim":
			cfg.Detector.MaxDimension = *maxDim
		case "ratio":
			cfg.Matching.Ratio = *ratio
		case "threshold":
			cfg.RANSAC.Threshold = *threshold
		case "seed":
			cfg.RANSAC.Seed = *seed
		case "log":
			cfg.Log.File = *logFile
		case "debug":
			cfg.Log.Debug = *debug
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if !alignment.ValidRotation(*rotate) {
		fmt.Fprintf(os.Stderr, "Invalid rotation %d: use 0, 90, 180 or 270\n", *rotate)
		os.Exit(1)
	}

	logger, closer := config.NewLogger(cfg.Log, os.Stderr)
	defer closer.Close()

	if err := run(cfg, logger, *ref, *moving, pretransform{flip: *flip, rotate: *rotate}, outputs{
		warped:   *out,
		overlay:  *overlay,
		matches:  *matchesOut,
		panorama: *panorama,
		plot:     *plotOut,
		json:     *jsonOut,
	}); err != nil {
		logger.WithError(err).Error("Alignment failed")
		closer.Close()
		os.Exit(1)
	}
}

type pretransform struct {
	flip   bool
	rotate int
}

type outputs struct {
	warped, overlay, matches, panorama, plot, json string
}

func run(cfg *config.Config, logger *logrus.Logger, refPath, movingPath string, pre pretransform, out outputs) error {
	ref, _, err := fimage.Load(refPath)
	if err != nil {
		return err
	}
	moving, _, err := fimage.Load(movingPath)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"reference": fmt.Sprintf("%dx%d", ref.Width, ref.Height),
		"moving":    fmt.Sprintf("%dx%d", moving.Width, moving.Height),
	}).Info("Loaded images")

	opts, err := cfg.AlignmentOptions()
	if err != nil {
		return err
	}
	opts.FlipMoving = pre.flip
	opts.RotateMoving = pre.rotate
	opts.Logger = logger

	res, err := alignment.Align(ref, moving, opts)
	if err != nil {
		return err
	}

	rep := report.FromResult(refPath, movingPath, opts.Variant.String(), res)
	fmt.Print(rep.String())

	// Keypoints and the homography refer to the flipped and rotated image.
	moving = res.Moving

	if out.warped != "" {
		if err := fimage.Save(out.warped, res.Aligned); err != nil {
			return err
		}
	}
	if out.overlay != "" {
		mode, ok := fimage.ParseBlendMode(cfg.Output.BlendMode)
		if !ok {
			logger.WithField("blend_mode", cfg.Output.BlendMode).Warn("Unknown blend mode, using Normal")
		}
		img := fimage.Overlay(ref, res.Aligned, mode, cfg.Output.OverlayOpacity)
		if err := fimage.Save(out.overlay, img); err != nil {
			return err
		}
	}
	if out.matches != "" {
		ropts := render.DefaultOptions()
		ropts.OnlyInliers = cfg.Output.OnlyInliers
		ropts.Footprint, err = warp.WarpedCorners(res.Homography.Matrix, moving.Width, moving.Height)
		if err != nil {
			logger.WithError(err).Warn("Could not compute footprint, drawing all matches")
		}
		img := render.DrawMatches(moving, res.MovingKeypoints, ref, res.RefKeypoints,
			res.Matches, res.Homography.Mask, ropts)
		if err := fimage.Save(out.matches, img); err != nil {
			return err
		}
	}
	if out.panorama != "" {
		if err := savePanorama(out.panorama, ref, moving, res); err != nil {
			return err
		}
	}
	if out.plot != "" {
		if err := report.SaveHistogram(out.plot, res.Residuals, "Inlier reprojection error"); err != nil {
			return err
		}
	}
	if out.json != "" {
		w := os.Stdout
		if out.json != "-" {
			f, err := os.Create(out.json)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := rep.WriteJSON(w); err != nil {
			return err
		}
	}
	return nil
}

// savePanorama draws the reference and the warped moving image on one canvas
// and outlines the moving image's footprint.
func savePanorama(path string, ref, moving fimage.Buffer, res *alignment.Result) error {
	canvas, err := warp.CanvasFor(res.Homography.Matrix, moving.Width, moving.Height, ref.Width, ref.Height)
	if err != nil {
		return err
	}
	warped, err := warp.WarpPerspective(moving, canvas.Transform, canvas.Width, canvas.Height)
	if err != nil {
		return err
	}

	c := fimage.NewComposite(canvas.Width, canvas.Height)
	c.AddLayer(ref, fimage.BlendNormal, 1, canvas.OffsetX, canvas.OffsetY)
	c.AddLayer(warped, fimage.BlendNormal, 0.5, 0, 0)
	img := c.Render()

	corners, err := warp.WarpedCorners(canvas.Transform, moving.Width, moving.Height)
	if err != nil {
		return err
	}
	img = render.DrawQuad(img, corners, 2, colorutil.Yellow)
	return fimage.Save(path, img)
}
