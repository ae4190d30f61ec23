package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/melody-ding/go-vidthumbs/internal/config"
	"github.com/melody-ding/go-vidthumbs/internal/ffmpeg"
	"github.com/melody-ding/go-vidthumbs/internal/logger"
	"github.com/melody-ding/go-vidthumbs/internal/metrics"
	"github.com/melody-ding/go-vidthumbs/internal/notify"
	"github.com/melody-ding/go-vidthumbs/internal/raster"
	"github.com/melody-ding/go-vidthumbs/internal/sequencer"
	"github.com/melody-ding/go-vidthumbs/internal/sink"
	"github.com/melody-ding/go-vidthumbs/internal/thumbnailer"
	"github.com/melody-ding/go-vidthumbs/internal/tracing"
	"github.com/melody-ding/go-vidthumbs/internal/types"
)

const (
	exitFailure     = 1
	exitUnsupported = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return exitFailure
	}

	in := flag.String("in", "", "Path or URL of the input video, - for stdin")
	outputDir := flag.String("out", cfg.OutputDir, "Directory (or key prefix for object sinks) to save thumbnails")
	count := flag.Int("count", cfg.ThumbCount, "Number of thumbnails to capture")
	maxWidth := flag.Int("max-width", cfg.ThumbMaxWidth, "Maximum thumbnail width")
	maxHeight := flag.Int("max-height", cfg.ThumbMaxHeight, "Maximum thumbnail height")
	optionsPath := flag.String("options", "", "JSON file with maxWidth, maxHeight and count")
	sinkKind := flag.String("sink", cfg.Sink, "Output sink: dir, tar, zip, npy, s3 or minio")
	timeout := flag.Duration("timeout", cfg.Timeout, "Abort the capture after this long (0 disables)")
	flag.Parse()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "Missing -in")
		flag.Usage()
		return exitFailure
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		return exitFailure
	}
	defer log.Sync()

	opts, err := captureOptions(cfg, *optionsPath, *count, *maxWidth, *maxHeight)
	if err != nil {
		log.Error("invalid capture options", zap.Error(err))
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTELEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, cfg.OTELEndpoint)
		if err != nil {
			log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				tp.Shutdown(shutdownCtx)
			}()
		}
	}

	if cfg.MetricsPort > 0 {
		srv := metrics.StartMetricsServer(cfg.MetricsPort, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	sinkCfg := cfg.SinkConfig()
	sinkCfg.Kind = *sinkKind
	sinkCfg.OutputDir = *outputDir
	if sinkCfg.Prefix == "" {
		sinkCfg.Prefix = *outputDir
	}
	out, err := sink.New(ctx, sinkCfg)
	if err != nil {
		log.Error("failed to create sink", zap.Error(err))
		return exitFailure
	}

	var publisher notify.Publisher = notify.Nop{}
	if cfg.RabbitMQURL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			log.Error("failed to connect to rabbitmq", zap.Error(err))
			return exitFailure
		}
		defer conn.Close()
		pub, err := notify.NewAMQPPublisher(conn, cfg.RabbitMQExchange)
		if err != nil {
			log.Error("failed to create publisher", zap.Error(err))
			return exitFailure
		}
		defer pub.Close()
		publisher = pub
	}

	clip, err := loadClip(*in)
	if err != nil {
		log.Error("failed to read input", zap.Error(err))
		return exitFailure
	}

	svc := thumbnailer.NewService(
		thumbnailer.Config{Options: opts, Timeout: *timeout},
		func() sequencer.Decoder {
			return ffmpeg.NewDecoder(ffmpeg.Config{
				TempDir:         cfg.TempDir,
				MaxDecodeWidth:  opts.MaxWidth,
				MaxDecodeHeight: opts.MaxHeight,
				GrabTimeout:     cfg.GrabTimeout,
			}, log)
		},
		func() sequencer.Surface {
			s := raster.NewSurface()
			s.Quality = cfg.JPEGQuality
			return s
		},
		out, publisher, log,
	)

	fmt.Fprintf(os.Stderr, "Processing clip: %s\n", clip.Key)
	res, err := svc.Run(ctx, clip)
	if res != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res.Manifest); encErr != nil {
			log.Error("failed to print manifest", zap.Error(encErr))
		}
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, thumbnailer.ErrUnsupportedMedia):
		fmt.Fprintf(os.Stderr, "Unsupported media %s: %v\n", clip.Key, err)
		return exitUnsupported
	default:
		fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", clip.Key, err)
		return exitFailure
	}
}

// captureOptions starts from the env config, replaces it with the options
// file when given, then applies explicitly set flags.
func captureOptions(cfg *config.Config, path string, count, maxWidth, maxHeight int) (sequencer.Options, error) {
	opts := cfg.CaptureOptions()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return opts, fmt.Errorf("open options: %w", err)
		}
		defer f.Close()
		fileOpts, err := sequencer.LoadOptions(f)
		if err != nil {
			return opts, err
		}
		opts = fileOpts
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "count":
			opts.Count = count
		case "max-width":
			opts.MaxWidth = maxWidth
		case "max-height":
			opts.MaxHeight = maxHeight
		}
	})
	return opts, opts.Validate()
}

func loadClip(in string) (types.Clip, error) {
	if in != "-" {
		return types.Clip{Key: filepath.Base(in), Path: in}, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return types.Clip{}, fmt.Errorf("read stdin: %w", err)
	}
	return types.Clip{Key: "stdin", RawData: data}, nil
}
