package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/safeschool/internal/bot"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage binding tokens",
}

var tokenGenCmd = &cobra.Command{
	Use:   "gen <student-id>",
	Short: "Issue a single-use binding token for a student",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenGen,
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending binding tokens",
	Args:  cobra.NoArgs,
	RunE:  runTokenList,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenGenCmd)
	tokenCmd.AddCommand(tokenListCmd)
}

func runTokenGen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	token, err := st.Tokens().Issue(args[0])
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Printf("Token: %s\n", token)
	if cfg.Telegram.BotUsername != "" {
		fmt.Printf("Link:  %s\n", bot.DeepLink(cfg.Telegram.BotUsername, token))
	} else {
		fmt.Printf("Guardian command: /bind %s\n", token)
	}
	return nil
}

func runTokenList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	tokens, err := st.Tokens().List()
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}
	if len(tokens) == 0 {
		fmt.Println("No pending tokens")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tSTUDENT\tCREATED")
	for _, t := range tokens {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Token, t.StudentID, t.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
