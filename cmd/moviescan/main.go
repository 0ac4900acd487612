// Command moviescan aligns a movie with a voxel x TR signal matrix, averages
// the frames of every TR, and correlates all pairs of TRs.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/RyanBlaney/moviescan/config"
	"github.com/RyanBlaney/moviescan/frame"
	"github.com/RyanBlaney/moviescan/logging"
	"github.com/RyanBlaney/moviescan/pipeline"
	"github.com/RyanBlaney/moviescan/signals"
	"github.com/RyanBlaney/moviescan/transcode"
	"github.com/RyanBlaney/moviescan/view"
)

type options struct {
	video      string
	data       string
	configPath string
	tr         float64
	skip       int
	workers    int
	policy     string
	fps        float64
	logLevel   string
	out        string
	bins       string
	html       string
}

func parseFlags(args []string, stderr io.Writer) (*options, map[string]bool, error) {
	fs := flag.NewFlagSet("moviescan", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.video, "video", "", "movie file, or directory of still frames")
	fs.StringVar(&o.data, "data", "", "voxel x TR matrix (.npy, .csv, .mat or .cbor)")
	fs.StringVar(&o.configPath, "config", "", "JSON or YAML run configuration")
	fs.Float64Var(&o.tr, "tr", 0, "TR duration in seconds (overrides config)")
	fs.IntVar(&o.skip, "skip", 0, "leading TRs to discard (overrides config)")
	fs.IntVar(&o.workers, "workers", 0, "bins averaged in parallel (overrides config)")
	fs.StringVar(&o.policy, "policy", "", "zero-variance correlation policy: nan or zero (overrides config)")
	fs.Float64Var(&o.fps, "fps", 0, "frame rate of a still frame directory (overrides config)")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	fs.StringVar(&o.out, "out", "", "directory for per-TR PNG snapshots")
	fs.StringVar(&o.bins, "bins", "", "1-based TRs to snapshot, e.g. 1,5,10-12 (default all)")
	fs.StringVar(&o.html, "html", "", "write an interactive correlation heatmap to this file")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return o, set, nil
}

// loadConfig reads the config file, if any, and applies explicit flags on top
func loadConfig(o *options, set map[string]bool) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}

	if set["tr"] {
		cfg.BinDuration = o.tr
	}
	if set["skip"] {
		cfg.SkipBins = o.skip
	}
	if set["workers"] {
		cfg.Workers = o.workers
	}
	if set["policy"] {
		cfg.DegeneratePolicy = o.policy
	}
	if set["fps"] {
		cfg.SequenceFrameRate = o.fps
	}
	if set["log-level"] {
		cfg.LogLevel = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// prompt asks for a value on stdin when it was not given as a flag
func prompt(in *bufio.Reader, out io.Writer, question, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(out, question)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("no answer for %q: %w", strings.TrimSpace(question), err)
	}
	answer := strings.Trim(strings.TrimSpace(line), `"'`)
	if answer == "" {
		return "", fmt.Errorf("no answer for %q", strings.TrimSpace(question))
	}
	return answer, nil
}

// parseBins turns "1,3,5-7" into 0-based bin indexes. An empty list selects
// every bin and returns nil.
func parseBins(list string) ([]int, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, nil
	}

	var bins []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid TR %q", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid TR range %q", part)
			}
		}
		if first < 1 || last < first {
			return nil, fmt.Errorf("invalid TR range %q (TRs start at 1)", part)
		}
		for tr := first; tr <= last; tr++ {
			bins = append(bins, tr-1)
		}
	}
	return bins, nil
}

// opener picks the frame source for path: a directory of stills or a movie
func opener(path string, cfg *config.Config) (frame.Opener, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access video: %w", err)
	}
	if info.IsDir() {
		return frame.SequenceOpener(path, cfg.SequenceFrameRate), nil
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if !slices.Contains(transcode.GetSupportedFormats(), ext) {
		logging.Warn("Unrecognized movie extension, trying ffmpeg anyway", logging.Fields{"filename": path})
	}

	vc, err := cfg.VideoDecoderConfig()
	if err != nil {
		return nil, err
	}
	if err := transcode.CheckAvailability(vc); err != nil {
		return nil, err
	}
	return transcode.Opener(path, vc), nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, logger logging.Logger) error {
	o, set, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(o, set)
	if err != nil {
		return err
	}
	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)
	logging.SetGlobalLogger(logger)

	bins, err := parseBins(o.bins)
	if err != nil {
		return err
	}

	in := bufio.NewReader(stdin)
	if o.video, err = prompt(in, stdout, "Enter path to movie file (e.g., .mp4): ", o.video); err != nil {
		return err
	}
	if o.data, err = prompt(in, stdout, "Enter path to voxel x TRs matrix (.npy, .csv, .mat or .cbor): ", o.data); err != nil {
		return err
	}

	m, err := signals.Load(o.data)
	if err != nil {
		return fmt.Errorf("failed to load signal matrix: %w", err)
	}
	logger.Info("Loaded voxel x TRs matrix", logging.Fields{
		"shape":    fmt.Sprintf("(%d, %d)", m.Units(), m.Bins()),
		"format":   m.Format(),
		"variable": m.Variable(),
	})

	open, err := opener(o.video, cfg)
	if err != nil {
		return err
	}

	pc, err := cfg.PipelineConfig()
	if err != nil {
		return err
	}
	p, err := pipeline.New(pc)
	if err != nil {
		return err
	}

	result, err := p.Run(ctx, m, open)
	if err != nil {
		return err
	}

	v, err := view.New(result)
	if err != nil {
		return err
	}

	if o.out != "" {
		paths, err := v.SaveSnapshots(o.out, bins)
		if err != nil {
			return err
		}
		logger.Info("Snapshots written", logging.Fields{"directory": o.out, "count": len(paths)})
	}

	if o.html != "" {
		if err := writeHTML(v, o.html); err != nil {
			return err
		}
		logger.Info("Heatmap page written", logging.Fields{"filename": o.html})
	}

	return printSummary(stdout, v, bins)
}

func writeHTML(v *view.Viewer, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create heatmap page: %w", err)
	}
	if err := v.WriteHTML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// printSummary lists the selected bins with their timestamps and frame usage
func printSummary(w io.Writer, v *view.Viewer, bins []int) error {
	if bins == nil {
		bins = make([]int, v.NumBins())
		for i := range bins {
			bins[i] = i
		}
	}

	bw := bufio.NewWriter(w)
	for _, t := range bins {
		bv, err := v.Select(t)
		if err != nil {
			return err
		}
		fmt.Fprintf(bw, "%s\tframes %d/%d", bv.Title(), bv.Stats.Used, bv.Stats.Requested)
		if bv.Stats.Blank {
			fmt.Fprint(bw, "\tblank")
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewDefaultLogger()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, logger); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		logger.Error(err, "moviescan failed")
		stop()
		os.Exit(1)
	}
}
