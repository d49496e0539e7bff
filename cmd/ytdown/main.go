package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/r3labs/diff/v3"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ytdown/ytdown"
	"github.com/ytdown/ytdown/download"
	"github.com/ytdown/ytdown/internal/helper"
	"github.com/ytdown/ytdown/internal/history"
	"github.com/ytdown/ytdown/internal/settings"
)

func main() {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger, err := logConfig.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &cli.App{
		Name:  "ytdown",
		Usage: "resolve the best downloadable stream for a video via interchangeable providers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config-dir",
				Usage: "store settings and history under `DIR`",
				Value: defaultConfigDir(),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				logConfig.Level.SetLevel(zapcore.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			getCommand(),
			checkCommand(),
			providersCommand(),
			providerCommand(),
			historyCommand(),
			serveCommand(),
		},
		HideHelpCommand: true,
	}

	result := make(chan error, 1)
	go func() { result <- app.RunContext(ctx, os.Args) }()

	select {
	case err = <-result:
		if err != nil {
			logger.Fatal(err.Error())
		}
	case <-ctx.Done():
		stop()
		if err = <-result; err != nil {
			logger.Fatal(err.Error())
		}
	}
}

func defaultConfigDir() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "ytdown")
	}
	return ".ytdown"
}

// openSettings is best-effort: resolution must still work with built-in
// providers when the settings database is unusable.
func openSettings(c *cli.Context) ytdown.TemplateStore {
	dir := c.String("config-dir")
	if err := os.MkdirAll(dir, 0755); err != nil {
		zap.S().Warnw("cannot create config dir, using built-in providers only", "dir", dir, "error", err)
		return ytdown.NoStore{}
	}
	store, err := settings.Open(filepath.Join(dir, "settings.db"))
	if err != nil {
		zap.S().Warnw("cannot open settings store, using built-in providers only", "error", err)
		return ytdown.NoStore{}
	}
	return store
}

func openSettingsRW(c *cli.Context) (*settings.Store, error) {
	dir := c.String("config-dir")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return settings.Open(filepath.Join(dir, "settings.db"))
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "resolve a video reference and download the best stream",
		ArgsUsage: "URL-OR-ID [URL-OR-ID...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "target",
				Value: ".",
				Usage: "save downloaded video to `DIR`",
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "try `TEMPLATE` (must contain {videoId}) before the provider stack",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: ytdown.DefaultRequestTimeout,
				Usage: "per-provider request timeout",
			},
			&cli.BoolFlag{
				Name:  "overwrite",
				Usage: "overwrite existing files instead of picking a unique name",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("nothing to download", 1)
			}
			logger := zap.S()

			store := openSettings(c)
			if closer, ok := store.(*settings.Store); ok {
				defer closer.Close()
			}

			client := ytdown.NewClient(ytdown.WithTimeout(c.Duration("timeout")))
			resolver := ytdown.NewResolver(client, store)

			historyStore, err := history.Open(filepath.Join(c.String("config-dir"), "history.db"), zap.L())
			if err != nil {
				logger.Warnw("download history unavailable", "error", err)
			} else {
				defer historyStore.Close()
			}

			opts := ytdown.DefaultDownloadOptions()
			opts.SaveAs = !c.Bool("overwrite")
			opts.Override = c.String("provider")

			for _, input := range c.Args().Slice() {
				if err := fetchOne(c.Context, resolver, historyStore, input, c.String("target"), opts); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func fetchOne(ctx context.Context, resolver *ytdown.Resolver, historyStore *history.Store, input, target string, opts ytdown.DownloadOptions) error {
	logger := zap.S()
	logger.Infof("Resolving %s", input)

	bar := progressbar.DefaultBytes(1, "downloading")
	var last download.Progress
	trigger := download.NewTrigger(
		download.WithTargetDir(target),
		download.WithProgress(func(p download.Progress) {
			if p.Expected > 0 && bar.GetMax64() != p.Expected {
				bar.ChangeMax64(p.Expected)
			}
			_ = bar.Set64(p.Downloaded)
			// Milestone transitions only; per-chunk diffs would drown the log.
			if p.Done || p.Expected != last.Expected {
				if changes, err := diff.Diff(last, p); err == nil {
					for _, change := range changes {
						logger.Debugf("progress %v: %#v -> %#v", change.Path, change.From, change.To)
					}
				}
			}
			last = p
		}),
	)

	packager := ytdown.NewPackager(resolver, trigger)
	receipt, err := packager.HandleDownloadRequest(ctx, input, opts)
	if err != nil {
		return err
	}
	_ = bar.Finish()
	fmt.Println()
	logger.Infof("Saved %q (%s via %s)", receipt.Filename, receipt.Quality, receipt.Provider)

	if historyStore != nil {
		if id, ok := ytdown.ExtractVideoID(input); ok {
			if err := historyStore.Add(id, receipt); err != nil {
				logger.Warnw("failed to record download history", "error", err)
			}
		}
	}
	return nil
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "test a provider template against a video without downloading",
		ArgsUsage: "URL-OR-ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "template",
				Usage:    "provider `TEMPLATE` containing {videoId}",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: ytdown.DefaultRequestTimeout,
				Usage: "request timeout",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("check needs exactly one video reference", 1)
			}
			client := ytdown.NewClient(ytdown.WithTimeout(c.Duration("timeout")))
			resolver := ytdown.NewResolver(client, ytdown.NoStore{})
			packager := ytdown.NewPackager(resolver, nil)

			result, err := packager.CheckProvider(c.Context, c.Args().First(), c.String("template"))
			if err != nil {
				return err
			}
			fmt.Printf("provider %s OK, best quality: %s\n", result.Provider, result.Quality)
			return nil
		},
	}
}

func providersCommand() *cli.Command {
	return &cli.Command{
		Name:  "providers",
		Usage: "print the effective provider stack in priority order",
		Action: func(c *cli.Context) error {
			store := openSettings(c)
			if closer, ok := store.(*settings.Store); ok {
				defer closer.Close()
			}
			for i, p := range ytdown.BuildProviderStack(store, "") {
				fmt.Printf("%2d. %-24s %s\n", i+1, p.Label, p.Template)
			}
			return nil
		},
	}
}

func providerCommand() *cli.Command {
	return &cli.Command{
		Name:  "provider",
		Usage: "manage the persisted provider template override",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "persist a provider template override",
				ArgsUsage: "TEMPLATE",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("provider set needs exactly one template", 1)
					}
					store, err := openSettingsRW(c)
					if err != nil {
						return err
					}
					defer store.Close()
					if err := store.SetTemplate(c.Args().First()); err != nil {
						return err
					}
					fmt.Println("provider template saved")
					return nil
				},
			},
			{
				Name:  "clear",
				Usage: "remove the persisted provider template override",
				Action: func(c *cli.Context) error {
					store, err := openSettingsRW(c)
					if err != nil {
						return err
					}
					defer store.Close()
					if err := store.ClearTemplate(); err != nil {
						return err
					}
					fmt.Println("provider template cleared")
					return nil
				},
			},
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list recorded downloads, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "show at most `N` records",
			},
		},
		Action: func(c *cli.Context) error {
			store, err := history.Open(filepath.Join(c.String("config-dir"), "history.db"), zap.L())
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(c.Int("limit"))
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no downloads recorded")
				return nil
			}
			for _, record := range records {
				fmt.Printf("%s  %-11s  %-10s  %-22s  %s\n",
					record.CreatedAt.Format(time.DateTime),
					record.VideoID, record.Quality, record.Provider, record.Filename)
			}
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the local helper provider (the localhost entry of the default stack)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Value: helper.DefaultListen,
				Usage: "listen address",
			},
			&cli.DurationFlag{
				Name:  "cache-ttl",
				Value: helper.DefaultCacheTTL,
				Usage: "stream list cache lifetime",
			},
		},
		Action: func(c *cli.Context) error {
			server := helper.New(helper.Config{
				Listen:   c.String("listen"),
				CacheTTL: c.Duration("cache-ttl"),
			}, helper.NewYouTubeExtractor())
			return server.Run(c.Context)
		},
	}
}
