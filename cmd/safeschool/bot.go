package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/safeschool/internal/bot"
	"github.com/ayusman/safeschool/internal/telegram"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the guardian binding bot",
	Long: `Long-poll Telegram for guardian commands (/start, /bind, /unbind,
/my_students, /whoami) and admin commands (/gen, /pending).

Bindings made here reach a running recognizer after it restarts.`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(botCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []telegram.Option{telegram.WithTimeout(cfg.Telegram.Timeout)}
	if cfg.Telegram.APIURL != "" {
		opts = append(opts, telegram.WithBaseURL(cfg.Telegram.APIURL))
	}
	client, err := telegram.New(cfg.Telegram.Token, opts...)
	if err != nil {
		return fmt.Errorf("create telegram client: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	username := cfg.Telegram.BotUsername
	if username == "" {
		me, err := client.GetMe(ctx)
		if err != nil {
			return fmt.Errorf("getMe: %w", err)
		}
		username = me.Username
	}
	log.Printf("bot @%s started, %d admin chats", username, len(cfg.Telegram.AdminChats))

	b := bot.New(bot.Config{
		Store:    st,
		Sender:   client,
		Poller:   client,
		Username: username,
		IsAdmin:  cfg.Telegram.IsAdmin,
	})
	return b.Run(ctx)
}
