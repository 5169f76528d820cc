package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/photosheet/internal/application"
	"github.com/eugenenazirov/photosheet/internal/config"
	"github.com/eugenenazirov/photosheet/internal/export"
	"github.com/eugenenazirov/photosheet/internal/layout"
	"github.com/eugenenazirov/photosheet/internal/logging"
	"github.com/eugenenazirov/photosheet/internal/render"
)

var signalNotify = signal.Notify

type renderOptions struct {
	PhotoPath string
	Paper     string
	Count     int
	Format    string
	OutDir    string
}

func main() {
	kingpinApp := kingpin.New("photosheet", "Photo Sheets - packs 2.5 x 3.0 cm photo prints onto paper sheets")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	logLevel := kingpinApp.Flag("log-level", "Minimum log level (debug, info, warn, error)").Default("info").String()
	dpi := kingpinApp.Flag("dpi", "Print resolution in dots per inch").Default("-1").Float64()
	margin := kingpinApp.Flag("margin", "Sheet margin in inches").Default("-1").Float64()
	spacing := kingpinApp.Flag("spacing", "Gap between photos in inches").Default("-1").Float64()
	maxPhotos := kingpinApp.Flag("max-photos", "Maximum photos per request").Default("-1").Int()

	serveCmd := kingpinApp.Command("serve", "Run the HTTP service").Default()
	port := serveCmd.Flag("port", "HTTP port exposed by the service").String()
	rateLimitRPSFlag := serveCmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	renderCmd := kingpinApp.Command("render", "Render photo sheets to files")
	var opts renderOptions
	renderCmd.Flag("photo", "Photo to print").Required().ExistingFileVar(&opts.PhotoPath)
	renderCmd.Flag("paper", "Paper size id (defaults to the configured paper)").StringVar(&opts.Paper)
	renderCmd.Flag("count", "Number of photos to print").Required().IntVar(&opts.Count)
	renderCmd.Flag("format", "Output format").Default("pdf").EnumVar(&opts.Format, "pdf", "png", "jpg", "jpeg")
	renderCmd.Flag("out", "Output directory").Default(".").ExistingDirVar(&opts.OutDir)

	command := kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
	}

	if *port != "" {
		overrides.Port = port
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	if *dpi > 0 {
		overrides.DPI = dpi
	}

	if *margin >= 0 {
		overrides.MarginIn = margin
	}

	if *spacing >= 0 {
		overrides.SpacingIn = spacing
	}

	if *maxPhotos > 0 {
		overrides.MaxPhotos = maxPhotos
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logOpts := []logging.Option{logging.WithLevel(*logLevel)}
	if command == renderCmd.FullCommand() {
		logOpts = append(logOpts, logging.WithConsole())
	}
	logger, err := logging.New(logOpts...)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	switch command {
	case renderCmd.FullCommand():
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		code := executeRender(ctx, cfg, opts, logger, os.Stdout)
		stop()
		if code != 0 {
			_ = logger.Sync()
			os.Exit(code)
		}
	default:
		app, err := application.New(cfg, logger)
		if err != nil {
			logger.Fatal("failed to initialize application", zap.Error(err))
		}

		if err := app.Start(); err != nil {
			logger.Fatal("failed to start server", zap.Error(err))
		}

		shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
	}
}

// executeRender runs the render command, printing the written paths to out,
// and returns the process exit code.
func executeRender(ctx context.Context, cfg config.Config, opts renderOptions, logger *zap.Logger, out io.Writer) int {
	paths, err := runRender(ctx, cfg, opts, logger)
	if err != nil {
		logger.Error("render failed", zap.Error(err))
		return 1
	}
	for _, p := range paths {
		fmt.Fprintln(out, p)
	}
	return 0
}

// runRender plans the requested copies and writes the sheets into opts.OutDir.
func runRender(ctx context.Context, cfg config.Config, opts renderOptions, logger *zap.Logger) ([]string, error) {
	if opts.Count <= 0 || opts.Count > cfg.Print.MaxPhotos {
		return nil, fmt.Errorf("count must be between 1 and %d, got %d", cfg.Print.MaxPhotos, opts.Count)
	}
	format, err := export.ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	catalog, err := application.NewCatalog(cfg.Print)
	if err != nil {
		return nil, err
	}
	paperID := opts.Paper
	if paperID == "" {
		paperID = cfg.Print.DefaultPaper
	}
	paper, err := catalog.GetPaper(paperID)
	if err != nil {
		return nil, err
	}

	plan, err := layout.New(cfg.Print.Item(), cfg.Print.Packing()).PlanLayout(paper, opts.Count)
	if err != nil {
		return nil, err
	}
	logger.Info("layout planned",
		zap.String("paper", paper.ID),
		zap.Int("photos", opts.Count),
		zap.Int("sheets", plan.SheetCount()),
		zap.Int("per_sheet", plan.Capacity.PerSheet),
	)

	f, err := os.Open(opts.PhotoPath)
	if err != nil {
		return nil, fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()

	photo, err := render.Decode(f)
	if err != nil {
		return nil, err
	}

	exporter := application.NewExporter(cfg.Print, logger)
	return exporter.WriteFiles(ctx, opts.OutDir, paper, plan, photo, format, time.Now())
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
