package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	flag "github.com/spf13/pflag"

	"github.com/mrsinham/recforge/internal/config"
	"github.com/mrsinham/recforge/internal/convert"
	"github.com/mrsinham/recforge/internal/util"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args, converts every input and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("recforge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false

	var (
		outputDir       string
		compressed      bool
		origin          string
		minmax          []string
		storeHeader     bool
		scaling         string
		verbose         int
		overwrite       bool
		permitTruncated bool
		volumeInfo      bool
		preview         bool
		configPath      string
		showVersion     bool
	)
	def := config.Default()
	fs.StringVarP(&outputDir, "output-dir", "o", def.OutputDir, "Output directory")
	fs.BoolVarP(&compressed, "compressed", "c", def.Compressed, "Write gzip-compressed .nii.gz files")
	fs.StringVar(&origin, "origin", def.Origin, "Affine origin: scanner or fov")
	fs.StringSliceVar(&minmax, "minmax", def.MinMax, "Calibration MIN MAX, each 'parse' or a number")
	fs.BoolVar(&storeHeader, "store-header", def.StoreHeader, "Embed the source header as a NIfTI comment extension")
	fs.StringVar(&scaling, "scaling", def.Scaling, "Intensity scaling: dv, fp or off")
	fs.CountVarP(&verbose, "verbose", "v", "Print progress; -vv per-step detail, -vvv debug with timestamps")
	fs.BoolVar(&overwrite, "overwrite", def.Overwrite, "Replace existing output files")
	fs.BoolVar(&permitTruncated, "permit-truncated", def.PermitTruncated, "Accept REC files shorter than the PAR declares")
	fs.BoolVar(&volumeInfo, "volume-info", def.VolumeInfo, "Write <name>.ordering.csv with per-volume labels")
	fs.BoolVar(&preview, "preview", def.Preview, "Write a <name>.png quick-look of the middle slice")
	fs.StringVar(&configPath, "config", "", "Load defaults from a YAML file (flags win)")
	fs.BoolVar(&showVersion, "version", false, "Show version")
	fs.Usage = func() { printUsage(stderr, fs) }

	if err := fs.Parse(joinMinMax(args)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if showVersion {
		fmt.Fprintf(stdout, "recforge %s\n", version)
		return 0
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if fs.Changed("output-dir") {
		cfg.OutputDir = outputDir
	}
	if fs.Changed("compressed") {
		cfg.Compressed = compressed
	}
	if fs.Changed("origin") {
		cfg.Origin = origin
	}
	if fs.Changed("minmax") {
		cfg.MinMax = minmax
	}
	if fs.Changed("store-header") {
		cfg.StoreHeader = storeHeader
	}
	if fs.Changed("scaling") {
		cfg.Scaling = scaling
	}
	if fs.Changed("overwrite") {
		cfg.Overwrite = overwrite
	}
	if fs.Changed("permit-truncated") {
		cfg.PermitTruncated = permitTruncated
	}
	if fs.Changed("volume-info") {
		cfg.VolumeInfo = volumeInfo
	}
	if fs.Changed("preview") {
		cfg.Preview = preview
	}
	if cfg.Verbose && verbose == 0 {
		verbose = 1
	}

	// Everything is validated before the first input is opened.
	opts, err := cfg.Validate()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	inputs := fs.Args()
	if len(inputs) == 0 {
		fmt.Fprintln(stderr, "Error: no input files")
		printUsage(stderr, fs)
		return 1
	}

	logger := util.NewLogger(verbose)
	logger.SetOutput(stderr)
	results := convert.New(opts, logger).Run(ctx, inputs)

	failed := convert.Report(stderr, results)
	logger.Info("Converted %d of %d file(s)", len(results)-failed, len(results))
	if failed > 0 {
		return 1
	}
	return 0
}

// joinMinMax rewrites "--minmax MIN MAX" into "--minmax=MIN,MAX" so the
// two-value form fits a slice flag. MIN may be negative.
func joinMinMax(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			return append(out, args[i:]...)
		}
		if args[i] == "--minmax" && i+2 < len(args) {
			out = append(out, "--minmax="+args[i+1]+","+args[i+2])
			i += 2
			continue
		}
		out = append(out, args[i])
	}
	return out
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "recforge")
	fmt.Fprintln(w, "========")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Convert Philips PAR/REC (and single-file DICOM) volumes to NIfTI-1.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  recforge [options] <file.PAR|file.dcm>...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  # fp-scaled, compressed, header kept as an extension")
	fmt.Fprintln(w, "  recforge --scaling fp --compressed --store-header -o nifti/ scan.PAR")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # fixed display range, raw samples")
	fmt.Fprintln(w, "  recforge --scaling off --minmax 0 1000 a.PAR b.PAR")
}
