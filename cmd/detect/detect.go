package detect

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/racephotos/bibfinder/internal/app"
	"github.com/racephotos/bibfinder/internal/detection"
)

type flags struct {
	minDetection float64
	minOCR       float64
	padding      float64
	noOCR        bool
	noEnhance    bool
	noFallback   bool
}

// Command creates the detect command: one photo, detections as JSON on stdout.
func Command(ctx *app.Context) *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "detect <image>",
		Short: "Detect bib numbers in a local photo",
		Long:  "Run the detection pipeline on one image file and print the detections as JSON. Nothing is stored.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("error reading image: %w", err)
			}

			opts := f.apply(cmd, app.DetectionOptions(ctx.Settings.Detection))
			if err := opts.Validate(); err != nil {
				return err
			}

			stack, err := app.NewDetectorStack(ctx.Settings, ctx.Build.UserAgent(ctx.Settings.Main.Name), nil)
			if err != nil {
				return err
			}
			defer func() { _ = stack.Close() }()

			dets, err := stack.Orchestrator.DetectBibNumbers(cmd.Context(), image, opts)
			if err != nil {
				return err
			}
			if dets == nil {
				dets = []detection.Detection{}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(dets)
		},
	}

	f.register(cmd)
	return cmd
}

func (f *flags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.minDetection, "min-detection-confidence", 0, "Drop candidates below this detector confidence")
	cmd.Flags().Float64Var(&f.minOCR, "min-ocr-confidence", 0, "Minimum OCR confidence to verify or correct a label")
	cmd.Flags().Float64Var(&f.padding, "padding", 0, "Percent each box grows before OCR")
	cmd.Flags().BoolVar(&f.noOCR, "no-ocr", false, "Decide every candidate by the detector alone")
	cmd.Flags().BoolVar(&f.noEnhance, "no-enhance", false, "Skip photo enhancement")
	cmd.Flags().BoolVar(&f.noFallback, "no-ocr-fallback", false, "Only run OCR on low confidence candidates")
}

// apply overrides opts with the flags set on the command line.
func (f *flags) apply(cmd *cobra.Command, opts detection.Options) detection.Options {
	changed := cmd.Flags().Changed
	if changed("min-detection-confidence") {
		opts.MinDetectionConfidence = f.minDetection
	}
	if changed("min-ocr-confidence") {
		opts.MinOCRConfidence = f.minOCR
	}
	if changed("padding") {
		opts.RegionPadding = f.padding
	}
	if f.noOCR {
		opts.UseOCR = false
	}
	if f.noEnhance {
		opts.EnhanceImage = false
	}
	if f.noFallback {
		opts.OCRFallback = false
	}
	return opts
}
