package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/safeschool/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the admin API without recognition",
	Long: `Serve the bindings, tokens and events API and the dashboard without
opening a camera. Use "run --http" to also get the live feed and preview stream.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("http", ":8080", "Address to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	webDir := findWebDir()
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = mustGetString(cmd, "http")
	}

	srv := server.New(server.Config{
		StaticDir:   webDir,
		Store:       st,
		BotUsername: cfg.Telegram.BotUsername,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("Starting server on %s\n", addr)
	return srv.ListenAndServe(ctx, addr)
}
