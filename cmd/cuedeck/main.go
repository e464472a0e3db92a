// Package main provides the cuedeck entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/term"

	apiconnect "github.com/osa030/cuedeck/internal/api/connect"
	"github.com/osa030/cuedeck/internal/app/filter"
	"github.com/osa030/cuedeck/internal/app/session"
	"github.com/osa030/cuedeck/internal/app/settings"
	"github.com/osa030/cuedeck/internal/infra/audio"
	"github.com/osa030/cuedeck/internal/infra/config"
	"github.com/osa030/cuedeck/internal/infra/logger"
	"github.com/osa030/cuedeck/internal/infra/midi"
	"github.com/osa030/cuedeck/internal/infra/store"
)

var (
	app        = kingpin.New("cuedeck", "cuedeck audio cue playback controller")
	configPath = app.Flag("config", "Path to config file").Default("cuedeck.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()

	// start command (default)
	startCmd   = app.Command("start", "Start the controller (default)").Default()
	startFiles = startCmd.Arg("files", "Audio files to load into the queue").Strings()
	noKeys     = startCmd.Flag("no-keys", "Do not read keyboard shortcuts from the terminal").Bool()

	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
	listOutputsCmd = app.Command("list-outputs", "List audio outputs and exit")
	listInputsCmd  = app.Command("list-inputs", "List MIDI inputs and exit")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	stdin := int(os.Stdin.Fd())
	keys := command == startCmd.FullCommand() && !*noKeys && term.IsTerminal(stdin)

	loggerConfig := logger.FromFlags(*verbose, *logfile)
	loggerConfig.RawTerminal = keys
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.LoadOptional(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	switch command {
	case listOutputsCmd.FullCommand():
		printOutputs(ctx)
		return
	case listInputsCmd.FullCommand():
		if err := printInputs(ctx, cfg); err != nil {
			zlog.Error().Msgf("Failed to list inputs: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, keys); err != nil {
		zlog.Error().Msgf("cuedeck error: %v", err)
		os.Exit(1)
	}
}

// run executes the main logic. Using a separate function ensures defer
// statements are executed even when returning with an error.
func run(cfg *config.Config, keys bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Validate filter config
	if err := validateFilterConfig(cfg); err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	blob := store.NewFileBlob(cfg.Settings.Path)
	st := settings.NewStore(blob)
	if err := st.Load(); err != nil {
		zlog.Warn().Msgf("Settings unreadable, using defaults: %v", err)
	}

	player, err := audio.NewPlayer(cfg.Audio)
	if err != nil {
		return errors.Wrap(err, "failed to open audio output")
	}
	if !audio.Audible {
		zlog.Warn().Msg("Built without cgo: audio output is silent")
	}
	if !midi.Available {
		zlog.Warn().Msg("Built without cgo: no MIDI inputs are available")
	}

	sessionMgr, err := session.NewManager(cfg, session.Deps{
		Settings: st,
		Resource: player,
		Prober:   audio.NewProber(),
		Outputs:  audio.NewOutputs(),
		Inputs:   midi.NewSource(cfg.MIDI),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create session manager")
	}
	defer sessionMgr.Close()

	if err := sessionMgr.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start session")
	}

	if cfg.WatchSettings() {
		watcher, err := store.NewWatcher(blob.Path(), st.Reload)
		if err != nil {
			zlog.Warn().Msgf("Settings file will not be watched: %v", err)
		} else {
			defer watcher.Close()
			go watcher.Run(ctx)
		}
	}

	if len(*startFiles) > 0 {
		if _, err := sessionMgr.AddPaths(ctx, *startFiles); err != nil {
			zlog.Warn().Msgf("Failed to load files: %v", err)
		}
	}

	// Create HTTP mux
	mux := http.NewServeMux()
	var opts []connect.HandlerOption
	if cfg.Server.Token != "" {
		opts = append(opts, connect.WithInterceptors(apiconnect.NewAuthInterceptor(cfg.Server.Token)))
	} else {
		zlog.Warn().Msg("No RPC token configured, the command surface is open to local clients")
	}
	apiconnect.NewTransportService(sessionMgr).Register(mux, opts...)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting RPC server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	quitCh := make(chan struct{})
	if keys {
		restore, err := startKeys(ctx, sessionMgr, quitCh)
		if err != nil {
			zlog.Warn().Msgf("Keyboard shortcuts disabled: %v", err)
		} else {
			defer restore()
		}
	}

	// Wait for shutdown signal, quit key, or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-quitCh:
		zlog.Info().Msg("Quit requested...")
	case <-sessionMgr.Done():
		zlog.Info().Msg("Session closed, shutting down...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Close session manager first to terminate notice streams
	sessionMgr.Close()
	cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("cuedeck stopped")
	return runErr
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for name, factory := range filter.GetRegistered() {
		f := factory()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", name, f.Description(), codes)
	}
}

func printOutputs(ctx context.Context) {
	devices, err := audio.NewOutputs().Outputs(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Audio Outputs:")
	for _, d := range devices {
		fmt.Printf("  %-20s %s\n", d.ID, d.Name)
	}
}

func printInputs(ctx context.Context, cfg *config.Config) error {
	if !midi.Available {
		fmt.Println("MIDI support is not compiled in (built without cgo)")
		return nil
	}
	inputs, err := midi.NewSource(cfg.MIDI).Inputs(ctx)
	if err != nil {
		return err
	}
	fmt.Println("MIDI Inputs:")
	if len(inputs) == 0 {
		fmt.Println("  (none)")
	}
	for _, in := range inputs {
		fmt.Printf("  %s\n", in.Name)
	}
	return nil
}

// validateFilterConfig validates filter configurations.
func validateFilterConfig(cfg *config.Config) error {
	registry := filter.GetRegistered()

	for filterName, filterCfg := range cfg.Filters {
		if !filterCfg.Enabled {
			continue
		}

		factory, exists := registry[filterName]
		if !exists {
			return errors.Newf("filter %s: unknown filter", filterName)
		}

		f := factory()
		if err := f.ValidateConfig(filterCfg.Settings); err != nil {
			return errors.Wrapf(err, "filter %s", filterName)
		}
	}

	return nil
}
