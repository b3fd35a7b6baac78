package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/safeschool/internal/app"
	"github.com/ayusman/safeschool/internal/capture"
	"github.com/ayusman/safeschool/internal/config"
	"github.com/ayusman/safeschool/internal/detector"
	"github.com/ayusman/safeschool/internal/gallery"
	"github.com/ayusman/safeschool/internal/notify"
	"github.com/ayusman/safeschool/internal/pipeline"
	"github.com/ayusman/safeschool/internal/server"
	"github.com/ayusman/safeschool/internal/store"
	"github.com/ayusman/safeschool/internal/telegram"
	"github.com/ayusman/safeschool/internal/tray"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run entrance recognition",
	Long: `Capture frames from the entrance camera, recognize enrolled students and
notify their bound guardians over Telegram.

Bindings are read once at startup; restart to pick up guardians bound
through the bot afterwards.`,
	RunE: runRecognition,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("source", config.DefaultCaptureSource, "Camera index or video file/stream URL")
	runCmd.Flags().Float64("threshold", config.DefaultThreshold, "Minimum cosine similarity for a match")
	runCmd.Flags().Duration("stable-window", config.DefaultStableWindow, "How long a student must be held before notifying")
	runCmd.Flags().Duration("cooldown", config.DefaultCooldown, "Minimum time between notifications for one student")
	runCmd.Flags().String("detector", config.DefaultDetector, "Face backend: insightface, dlib or mock")
	runCmd.Flags().Bool("display", false, "Show the annotated preview window")
	runCmd.Flags().Bool("tray", false, "Show the system tray menu")
	runCmd.Flags().String("http", "", "Serve the admin API and live feed on this address (e.g. :8080)")
}

func runRecognition(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	g, err := gallery.LoadFile(cfg.Storage.GalleryPath)
	if err != nil {
		return fmt.Errorf("load gallery: %w", err)
	}
	log.Printf("gallery loaded: %d references, %d students", g.Len(), len(g.Identities()))

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	snapshot, err := st.Bindings().Snapshot()
	if err != nil {
		return fmt.Errorf("load bindings: %w", err)
	}
	log.Printf("bindings loaded for %d students", len(snapshot))

	dispatcher, err := newDispatcher(cfg, notify.Snapshot(snapshot))
	if err != nil {
		return err
	}

	detCfg := detector.DefaultConfig()
	detCfg.Script = cfg.Detector.Script
	detCfg.ModelDir = cfg.Detector.ModelDir
	det, err := detector.New(cfg.Detector.Backend, detCfg)
	if err != nil {
		return fmt.Errorf("create detector: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appCfg := app.Config{
		Camera:   capture.NewCamera(capture.Source(cfg.Capture.Source)),
		Detector: det,
		Pipeline: pipeline.Config{
			Matcher:      gallery.NewMatcher(g, cfg.Pipeline.Threshold),
			StableWindow: cfg.Pipeline.StableWindow,
			Cooldown:     cfg.Pipeline.Cooldown,
		},
		Events: st.Events(),
	}
	if dispatcher != nil {
		appCfg.Pipeline.Dispatcher = dispatcher
	}

	var wg sync.WaitGroup
	serverErr := make(chan error, 1)
	if cfg.HTTP.Addr != "" {
		events := server.NewEventHub()
		frames := server.NewFrameHub()
		appCfg.Feed = events
		appCfg.Frames = frames

		srv := server.New(server.Config{
			StaticDir:   findWebDir(),
			Store:       st,
			Events:      events,
			Frames:      frames,
			BotUsername: cfg.Telegram.BotUsername,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(ctx, cfg.HTTP.Addr); err != nil {
				serverErr <- err
				cancel()
			}
		}()
	}

	if cfg.Capture.Display {
		appCfg.Display = app.NewWindow(app.WindowTitle)
	}

	var t *tray.Tray
	if cfg.Capture.Tray {
		t = tray.New()
		appCfg.OnEvent = func(e *store.Event) { t.SetLastStudent(e.StudentID) }
	}

	a := app.New(appCfg)
	log.Printf("watching %s (threshold %.2f, stable %s, cooldown %s)",
		cfg.Capture.Source, cfg.Pipeline.Threshold, cfg.Pipeline.StableWindow, cfg.Pipeline.Cooldown)

	if t == nil {
		err = a.Run(ctx)
	} else {
		err = runWithTray(ctx, cancel, a, t, cfg)
	}
	cancel()
	wg.Wait()

	select {
	case serr := <-serverErr:
		err = errors.Join(err, serr)
	default:
	}
	return err
}

// runWithTray keeps the tray on the main goroutine and the frame loop beside it.
// Whichever stops first takes the other down.
func runWithTray(ctx context.Context, cancel context.CancelFunc, a *app.App, t *tray.Tray, cfg *config.Config) error {
	t.OnToggle(a.SetEnabled)
	t.OnQuit(cancel)
	if cfg.HTTP.Addr != "" {
		url := dashboardURL(cfg.HTTP.Addr)
		t.OnDashboard(func() {
			if err := openBrowser(url); err != nil {
				log.Printf("failed to open dashboard: %v", err)
			}
		})
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
		t.Quit()
	}()

	t.Run()
	cancel()
	return <-errCh
}

// newDispatcher returns nil when no bot token is configured; recognition
// then runs without notifications.
func newDispatcher(cfg *config.Config, registry notify.Registry) (*notify.Dispatcher, error) {
	if cfg.Telegram.Token == "" {
		log.Printf("warning: TELEGRAM_BOT_TOKEN not set, notifications disabled")
		return nil, nil
	}

	opts := []telegram.Option{telegram.WithTimeout(cfg.Telegram.Timeout)}
	if cfg.Telegram.APIURL != "" {
		opts = append(opts, telegram.WithBaseURL(cfg.Telegram.APIURL))
	}
	client, err := telegram.New(cfg.Telegram.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}
	return notify.NewDispatcher(registry, client), nil
}

// findWebDir searches for the dashboard directory in common locations.
// It checks "web", "../web", "../../web" and ~/.safeschool/web.
// Returns the first existing directory or an empty string.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	homeWebDir := filepath.Join(homeDir, ".safeschool", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}

func openBrowser(url string) error {
	var name string
	var args []string
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		name = "xdg-open"
	}
	return exec.Command(name, append(args, url)...).Start()
}
