package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/albadl/albadl/internal/app"
	"github.com/albadl/albadl/internal/engine"
	"github.com/albadl/albadl/internal/finalize"
	"github.com/albadl/albadl/internal/logging"
	"github.com/albadl/albadl/internal/pipeline/direct"
	"github.com/albadl/albadl/internal/pipeline/extract"
	"github.com/albadl/albadl/internal/settings"
)

const (
	modeEnvProduction = "prod"
	modeEnvDebug      = "debug"
)

func main() {
	cliApp := &cli.App{
		Name:      "albadl",
		Usage:     "download videos as mp4 or pull their audio as mp3",
		ArgsUsage: "URL [URL ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "target directory (defaults to the configured download folder)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "mp4",
				Usage:   "output format: mp4 or mp3",
			},
			&cli.StringFlag{
				Name:    "quality",
				Aliases: []string{"q"},
				Value:   "auto",
				Usage:   "resolution ceiling: auto, 1080p, 720p or 480p",
			},
			&cli.BoolFlag{
				Name:  "playlist",
				Usage: "download the whole playlist instead of a single video",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print progress snapshots as JSON lines instead of bars",
			},
		},
		Action: run,
	}
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("no URLs given, nothing to download", 2)
	}

	viper.SetEnvPrefix("ALBADL")
	viper.AutomaticEnv()

	logger, err := buildLogger()
	if err != nil {
		return err
	}
	logging.SetLogger(logger)
	defer logger.Sync()

	ctx := logging.NewContextS(context.Background())
	log := logging.FromContextS(ctx)
	log.Infof("Application is running. Environment mode=%q", viper.GetString("MODE"))

	store, err := openStore()
	if err != nil {
		return err
	}
	store.OnChange(func(snap map[string]interface{}) {
		log.Debugf("Settings updated (%d keys)", len(snap))
	})

	snapshots := make(chan app.Snapshot, 64)
	eng := engine.New(ctx, store, func(s app.Snapshot) { snapshots <- s })

	ffmpegPath := viper.GetString("FFMPEG_PATH")
	fin := finalize.New(ffmpegPath, store)
	eng.Register(app.SourceDirect, direct.New(fin))
	eng.Register(app.SourceYouTube, extract.New(viper.GetString("YTDLP_PATH"), ffmpegPath, nil, store, fin))

	submitted := make(map[string]bool)
	for _, rawURL := range c.Args().Slice() {
		id, err := eng.Submit(app.Request{
			URL:       rawURL,
			Directory: c.String("dir"),
			Format:    app.ParseFormat(c.String("format")),
			Playlist:  c.Bool("playlist"),
			Quality:   app.ParseQuality(c.String("quality")),
		})
		if err != nil {
			log.Errorf("Rejected %q: %v", rawURL, err)
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", rawURL, err)
			continue
		}
		submitted[id] = true
	}
	if len(submitted) == 0 {
		return cli.Exit("no downloads were admitted", 1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("Signal received: %v. Cancelling all downloads...", sig)
		eng.CancelAll()
	}()

	r := newRenderer(c.Bool("json"), os.Stdout)
	failed := 0
	for done := 0; done < len(submitted); {
		s := <-snapshots
		r.Render(s)
		if submitted[s.ID] && s.State.IsTerminal() {
			done++
			if s.State == app.StateError {
				failed++
			}
		}
	}
	r.Close()

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d download(s) failed", failed), 1)
	}
	return nil
}

// buildLogger configures zap from the MODE and LOG_FILE_PATH environment
// variables. An empty MODE means debug.
func buildLogger() (*zap.Logger, error) {
	var logCfg zap.Config
	switch mode := viper.GetString("MODE"); mode {
	case modeEnvProduction:
		logCfg = zap.NewProductionConfig()
	case modeEnvDebug, "":
		logCfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown MODE %q: use %q, %q or leave it empty", mode, modeEnvProduction, modeEnvDebug)
	}
	// Progress bars own stdout and stderr; by default logs go to a file only.
	logCfg.OutputPaths = nil
	if logFilePath := viper.GetString("LOG_FILE_PATH"); logFilePath != "" {
		logCfg.OutputPaths = append(logCfg.OutputPaths, logFilePath)
	}
	logger, err := logCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// openStore loads the persistent settings, creating them next to the user's
// other application configs on first run.
func openStore() (*settings.Store, error) {
	path := viper.GetString("SETTINGS_PATH")
	if path == "" {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate user config directory: %w", err)
		}
		path = filepath.Join(cfgDir, "albadl", "settings.json")
	}

	downloadDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		downloadDir = filepath.Join(home, "Downloads")
	}
	return settings.New(path, downloadDir)
}
