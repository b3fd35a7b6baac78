package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/safeschool/internal/store"
)

var bindingsCmd = &cobra.Command{
	Use:   "bindings",
	Short: "Manage guardian bindings",
}

var bindingsListCmd = &cobra.Command{
	Use:   "list [student-id]",
	Short: "List bindings, optionally for one student",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBindingsList,
}

var bindingsAddCmd = &cobra.Command{
	Use:   "add <student-id> <chat-id>",
	Short: "Bind a chat to a student",
	Args:  cobra.ExactArgs(2),
	RunE:  runBindingsAdd,
}

var bindingsRemoveCmd = &cobra.Command{
	Use:   "remove <student-id> <chat-id>",
	Short: "Remove a binding",
	Args:  cobra.ExactArgs(2),
	RunE:  runBindingsRemove,
}

func init() {
	rootCmd.AddCommand(bindingsCmd)
	bindingsCmd.AddCommand(bindingsListCmd)
	bindingsCmd.AddCommand(bindingsAddCmd)
	bindingsCmd.AddCommand(bindingsRemoveCmd)
}

func runBindingsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 1 {
		chats, err := st.Bindings().Lookup(args[0])
		if err != nil {
			return fmt.Errorf("lookup bindings: %w", err)
		}
		fmt.Printf("%s: %v\n", store.NormalizeStudentID(args[0]), chats)
		return nil
	}

	bindings, err := st.Bindings().List()
	if err != nil {
		return fmt.Errorf("list bindings: %w", err)
	}
	if len(bindings) == 0 {
		fmt.Println("No bindings")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STUDENT\tCHAT\tCREATED")
	for _, b := range bindings {
		fmt.Fprintf(w, "%s\t%d\t%s\n", b.StudentID, b.ChatID, b.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runBindingsAdd(cmd *cobra.Command, args []string) error {
	chatID, err := parseChatID(args[1])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	created, err := st.Bindings().Bind(args[0], chatID)
	if err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	if created {
		fmt.Printf("Bound chat %d to %s\n", chatID, store.NormalizeStudentID(args[0]))
	} else {
		fmt.Printf("Chat %d is already bound to %s\n", chatID, store.NormalizeStudentID(args[0]))
	}
	return nil
}

func runBindingsRemove(cmd *cobra.Command, args []string) error {
	chatID, err := parseChatID(args[1])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Bindings().Unbind(args[0], chatID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("chat %d is not bound to %s", chatID, store.NormalizeStudentID(args[0]))
		}
		return fmt.Errorf("unbind: %w", err)
	}
	fmt.Printf("Removed binding of chat %d from %s\n", chatID, store.NormalizeStudentID(args[0]))
	return nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chat id %q", s)
	}
	return id, nil
}
