package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"volprep/internal/models"
	"volprep/pkg/config"
	"volprep/pkg/logging"
	"volprep/pkg/preprocess"
	"volprep/pkg/resample"
	"volprep/pkg/store"
	"volprep/pkg/visualization"
)

func main() {
	configPath := flag.String("config", "volprep.yaml", "Path to the YAML configuration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file to -config and exit")
	inputDir := flag.String("in", "", "Directory store holding the subjects to re-grid")
	outputPath := flag.String("out", "", "Output store path (overrides store.path)")
	shape := flag.String("shape", "", "Target shape as X,Y,Z (overrides processing.imageShape)")
	previewDir := flag.String("preview", "", "Directory for preview slices (overrides output.previewDir)")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *outputPath != "" {
		cfg.Store.Path = *outputPath
	}
	if *previewDir != "" {
		cfg.Output.PreviewDir = *previewDir
	}
	if *shape != "" {
		s, err := parseShape(*shape)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -shape: %v\n", err)
			os.Exit(1)
		}
		cfg.Processing.ImageShape = s
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if cfg.Output.Verbose {
		level = "debug"
	}
	logger := logging.New(level, cfg.Logging.Format, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	if err := run(ctx, cfg, *inputDir, logger); err != nil {
		logger.Error("preprocessing failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, inputDir string, logger *slog.Logger) error {
	// NewDirContainer would create a missing directory
	info, err := os.Stat(inputDir)
	if err != nil {
		return fmt.Errorf("input store: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("input store %s is not a directory", inputDir)
	}
	inContainer, err := store.NewDirContainer(inputDir)
	if err != nil {
		return err
	}
	in := store.New(inContainer, store.WithLogger(logger))
	defer in.Close()

	outContainer, err := store.OpenContainer(ctx, cfg.Store.Backend, cfg.Store.Path, cfg.Store.RedisAddr, cfg.Store.RedisPrefix)
	if err != nil {
		return err
	}
	opts := []store.Option{store.WithLogger(logger)}
	if cfg.Store.AllowOverwrite {
		opts = append(opts, store.WithOverwrite())
	}
	out := store.New(outContainer, opts...)
	defer out.Close()

	reader := preprocess.NewReader(subjectLoader(in), resample.New(resample.WithLogger(logger)))

	ids, err := in.Subjects(ctx)
	if err != nil {
		return fmt.Errorf("listing input subjects: %w", err)
	}
	logger.Info("starting", "subjects", len(ids), "shape", cfg.Processing.ImageShape, "backend", cfg.Store.Backend)

	startTime := time.Now()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := processSubject(ctx, cfg, reader, out, id); err != nil {
			return fmt.Errorf("subject %s: %w", id, err)
		}
	}
	logger.Info("done", "subjects", len(ids), "elapsed", time.Since(startTime).Round(time.Millisecond))
	return nil
}

func processSubject(ctx context.Context, cfg *config.Config, reader *preprocess.Reader, out *store.Store, id string) error {
	features, err := reader.ReadImage(ctx, id+"#features", cfg.ReadOptions())
	if err != nil {
		return err
	}
	targets, err := reader.ReadImage(ctx, id+"#targets", cfg.LabelReadOptions())
	if err != nil {
		return err
	}
	if err := out.Add(ctx, id, features, targets); err != nil {
		return err
	}

	if cfg.Output.PreviewDir == "" {
		return nil
	}
	viewer, err := visualization.NewViewer(features, 0)
	if err != nil {
		return err
	}
	return viewer.SaveMidSlices(cfg.Output.PreviewDir, id)
}

// subjectLoader resolves "<id>#features" and "<id>#targets" against s.
func subjectLoader(s *store.Store) preprocess.Loader {
	return preprocess.LoaderFunc(func(ctx context.Context, path string) (*models.Volume, error) {
		id, part, ok := strings.Cut(path, "#")
		if !ok {
			return nil, fmt.Errorf("path %q has no #features or #targets suffix", path)
		}
		features, targets, err := s.GetVolumes(ctx, id)
		if err != nil {
			return nil, err
		}
		switch part {
		case "features":
			return features, nil
		case "targets":
			return targets, nil
		default:
			return nil, fmt.Errorf("unknown part %q", part)
		}
	})
}

func parseShape(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, errors.New("need three comma-separated sizes")
	}
	shape := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		shape[i] = n
	}
	return shape, nil
}
