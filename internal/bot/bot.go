// Package bot runs the guardian binding workflow over Telegram: schools hand
// out single-use links, guardians open them and start receiving notifications.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/ayusman/safeschool/internal/store"
	"github.com/ayusman/safeschool/internal/telegram"
)

// DefaultPollTimeout is the long-poll duration passed to getUpdates.
const DefaultPollTimeout = 30 * time.Second

// retryDelay is how long Run waits after a failed getUpdates call.
var retryDelay = 3 * time.Second

// Sender delivers replies.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, silent bool) error
}

// Poller fetches incoming updates.
type Poller interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Config configures a Bot.
type Config struct {
	Store       *store.Store
	Sender      Sender
	Poller      Poller
	Username    string           // without the leading @, required for /gen links
	IsAdmin     func(int64) bool // nil means nobody is an admin
	PollTimeout time.Duration
}

// Bot handles guardian commands.
type Bot struct {
	store    *store.Store
	sender   Sender
	poller   Poller
	username string
	isAdmin  func(int64) bool
	timeout  time.Duration
	offset   int64
}

// New creates a Bot.
func New(cfg Config) *Bot {
	if cfg.IsAdmin == nil {
		cfg.IsAdmin = func(int64) bool { return false }
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	return &Bot{
		store:    cfg.Store,
		sender:   cfg.Sender,
		poller:   cfg.Poller,
		username: strings.TrimPrefix(cfg.Username, "@"),
		isAdmin:  cfg.IsAdmin,
		timeout:  cfg.PollTimeout,
	}
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if b.poller == nil {
		return errors.New("bot: no poller configured")
	}

	log.Printf("bot polling for updates")
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := b.poller.GetUpdates(ctx, b.offset, b.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("getUpdates failed: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
			if u.Message != nil {
				b.Handle(ctx, u.Message)
			}
		}
	}
}

// Handle processes one message and sends the reply, if any.
func (b *Bot) Handle(ctx context.Context, m *telegram.Message) {
	reply := b.Reply(m.Chat.ID, m.Text)
	if reply == "" {
		return
	}
	if err := b.sender.SendText(ctx, m.Chat.ID, reply, false); err != nil {
		log.Printf("reply to chat %d failed: %v", m.Chat.ID, err)
	}
}

// Reply returns the response to text sent from chatID. Non-command text
// yields no reply.
func (b *Bot) Reply(chatID int64, text string) string {
	cmd, arg, ok := parseCommand(text)
	if !ok {
		return ""
	}

	switch cmd {
	case "start":
		return b.start(chatID, arg)
	case "bind":
		return b.bind(chatID, arg)
	case "unbind":
		return b.unbind(chatID, arg)
	case "whoami":
		return fmt.Sprintf("Your chat_id: %d", chatID)
	case "pending":
		return b.pending()
	case "my_students":
		return b.myStudents(chatID)
	case "gen":
		return b.gen(chatID, arg)
	default:
		return ""
	}
}

// parseCommand splits "/cmd@bot arg..." into the lowercase command and the
// trimmed argument.
func parseCommand(text string) (cmd, arg string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

func (b *Bot) start(chatID int64, arg string) string {
	if arg == "" {
		log.Printf("plain /start from chat %d", chatID)
		return "Hello! To link yourself to a student, open the personal link or QR code from the school."
	}

	token, err := url.QueryUnescape(arg)
	if err != nil {
		token = arg
	}
	token = strings.TrimSpace(token)
	log.Printf("deep-link start from chat %d: arg=%q token=%q", chatID, arg, token)

	sid, err := b.store.Tokens().Consume(token, chatID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "❓ Token not found or expired. Ask the school for a new personal link or QR code."
	case err != nil:
		log.Printf("consume token for chat %d: %v", chatID, err)
		return "Something went wrong, please try again later."
	}

	log.Printf("saved binding: %s -> %d", sid, chatID)
	return fmt.Sprintf("✅ Done! You are linked to student: %s. You will now receive notifications.", sid)
}

func (b *Bot) bind(chatID int64, code string) string {
	if code == "" {
		return "Send: /bind <code>"
	}
	log.Printf("manual bind from chat %d: code=%q", chatID, code)

	sid, err := b.store.Tokens().Consume(code, chatID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "Code not found or expired. Ask the school for a new one."
	case err != nil:
		log.Printf("consume code for chat %d: %v", chatID, err)
		return "Something went wrong, please try again later."
	}

	log.Printf("saved binding: %s -> %d", sid, chatID)
	return fmt.Sprintf("✅ Done! You are linked to student: %s.", sid)
}

func (b *Bot) unbind(chatID int64, sid string) string {
	if sid == "" {
		return "Usage: /unbind <student_id>\nFor example: /unbind ivan_petrov"
	}

	err := b.store.Bindings().Unbind(sid, chatID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "Binding not found. Check the student id."
	case err != nil:
		log.Printf("unbind %s from chat %d: %v", sid, chatID, err)
		return "Something went wrong, please try again later."
	}

	return fmt.Sprintf("❌ Binding to %s removed.", store.NormalizeStudentID(sid))
}

func (b *Bot) pending() string {
	tokens, err := b.store.Tokens().List()
	if err != nil {
		log.Printf("list pending tokens: %v", err)
		return "Something went wrong, please try again later."
	}
	if len(tokens) == 0 {
		return "No pending bindings."
	}

	var sb strings.Builder
	sb.WriteString("Waiting to be bound:")
	for _, t := range tokens {
		fmt.Fprintf(&sb, "\n%s → %s", t.Token, t.StudentID)
	}
	return sb.String()
}

func (b *Bot) myStudents(chatID int64) string {
	students, err := b.store.Bindings().ListByChat(chatID)
	if err != nil {
		log.Printf("list students for chat %d: %v", chatID, err)
		return "Something went wrong, please try again later."
	}
	if len(students) == 0 {
		return "You are linked to: no bindings"
	}
	return "You are linked to: " + strings.Join(students, ", ")
}

func (b *Bot) gen(chatID int64, sid string) string {
	if !b.isAdmin(chatID) || b.username == "" {
		return "Not available."
	}
	sid = store.NormalizeStudentID(sid)
	if sid == "" {
		return "Usage: /gen <student_id>"
	}

	token, err := b.store.Tokens().Issue(sid)
	if err != nil {
		log.Printf("issue token for %s: %v", sid, err)
		return "Something went wrong, please try again later."
	}
	return fmt.Sprintf("%s → %s", sid, DeepLink(b.username, token))
}

// DeepLink returns the t.me link that starts the bot with token.
func DeepLink(username, token string) string {
	return "https://t.me/" + strings.TrimPrefix(username, "@") + "?start=" + url.QueryEscape(token)
}
