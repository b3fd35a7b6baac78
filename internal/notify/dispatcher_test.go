package notify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/safeschool/internal/store"
)

type sentMessage struct {
	kind   string // "text" or "image"
	chatID int64
	text   string
	silent bool
	size   int
}

// fakeTransport records every call and fails for configured chats.
type fakeTransport struct {
	sent      []sentMessage
	failText  map[int64]bool
	failImage map[int64]bool
}

func (f *fakeTransport) SendText(ctx context.Context, chatID int64, text string, silent bool) error {
	f.sent = append(f.sent, sentMessage{kind: "text", chatID: chatID, text: text, silent: silent})
	if f.failText[chatID] {
		return fmt.Errorf("chat %d unreachable", chatID)
	}
	return nil
}

func (f *fakeTransport) SendImage(ctx context.Context, chatID int64, filename string, data []byte) error {
	f.sent = append(f.sent, sentMessage{kind: "image", chatID: chatID, size: len(data)})
	if f.failImage[chatID] {
		return fmt.Errorf("chat %d rejected image", chatID)
	}
	return nil
}

type failingRegistry struct{}

func (failingRegistry) Lookup(string) ([]int64, error) {
	return nil, errors.New("registry unavailable")
}

func TestDispatcher_NoDestinations(t *testing.T) {
	transport := &fakeTransport{}
	d := NewDispatcher(Snapshot{"olga": {1}}, transport)

	report := d.Dispatch(context.Background(), Notification{StudentID: "ivan", Text: "hello"})

	if len(transport.sent) != 0 {
		t.Errorf("expected zero transport calls, got %d", len(transport.sent))
	}
	if !report.OK() || report.Destinations != 0 {
		t.Errorf("report = %+v, want empty success", report)
	}
}

func TestDispatcher_TextOnly(t *testing.T) {
	transport := &fakeTransport{}
	d := NewDispatcher(Snapshot{"ivan": {10, 20}}, transport)

	report := d.Dispatch(context.Background(), Notification{StudentID: "ivan", Text: "ivan entered"})

	if len(transport.sent) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(transport.sent))
	}
	for i, want := range []int64{10, 20} {
		msg := transport.sent[i]
		if msg.kind != "text" || msg.chatID != want || msg.text != "ivan entered" {
			t.Errorf("call %d = %+v", i, msg)
		}
		if !msg.silent {
			t.Errorf("call %d should be silent by default", i)
		}
	}
	if report.Delivered != 2 || !report.OK() {
		t.Errorf("report = %+v", report)
	}
}

func TestDispatcher_WithImage(t *testing.T) {
	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	encodes := 0
	encoder := func(*gocv.Mat) ([]byte, error) {
		encodes++
		return []byte{0xFF, 0xD8, 0xFF}, nil
	}

	transport := &fakeTransport{}
	d := NewDispatcher(Snapshot{"ivan": {10, 20}}, transport, WithEncoder(encoder), WithSilent(false))

	report := d.Dispatch(context.Background(), Notification{StudentID: "ivan", Text: "hi", Image: &frame})

	want := []string{"text", "image", "text", "image"}
	if len(transport.sent) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(transport.sent))
	}
	for i, kind := range want {
		if transport.sent[i].kind != kind {
			t.Errorf("call %d kind = %s, want %s", i, transport.sent[i].kind, kind)
		}
	}
	if transport.sent[0].silent {
		t.Error("WithSilent(false) not applied")
	}
	if transport.sent[1].chatID != 10 || transport.sent[3].chatID != 20 {
		t.Error("images sent to the wrong destinations")
	}
	if encodes != 1 {
		t.Errorf("encoder called %d times, want 1", encodes)
	}
	if report.Delivered != 2 {
		t.Errorf("Delivered = %d, want 2", report.Delivered)
	}
}

func TestDispatcher_FailureDoesNotStopOthers(t *testing.T) {
	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	transport := &fakeTransport{
		failText:  map[int64]bool{1: true},
		failImage: map[int64]bool{2: true},
	}
	encoder := func(*gocv.Mat) ([]byte, error) { return []byte{1}, nil }
	d := NewDispatcher(Snapshot{"ivan": {1, 2, 3}}, transport, WithEncoder(encoder))

	report := d.Dispatch(context.Background(), Notification{StudentID: "ivan", Text: "hi", Image: &frame})

	// chat 1: text fails, image skipped; chat 2: text ok, image fails; chat 3: both ok
	want := []sentMessage{
		{kind: "text", chatID: 1},
		{kind: "text", chatID: 2},
		{kind: "image", chatID: 2},
		{kind: "text", chatID: 3},
		{kind: "image", chatID: 3},
	}
	if len(transport.sent) != len(want) {
		t.Fatalf("expected %d calls, got %d: %+v", len(want), len(transport.sent), transport.sent)
	}
	for i, w := range want {
		if transport.sent[i].kind != w.kind || transport.sent[i].chatID != w.chatID {
			t.Errorf("call %d = %s/%d, want %s/%d", i, transport.sent[i].kind, transport.sent[i].chatID, w.kind, w.chatID)
		}
	}

	if report.Destinations != 3 || report.Delivered != 1 {
		t.Errorf("report = %+v, want 3 destinations and 1 delivered", report)
	}
	if len(report.Failures) != 2 || report.Failures[0].ChatID != 1 || report.Failures[1].ChatID != 2 {
		t.Errorf("failures = %+v", report.Failures)
	}
}

func TestDispatcher_EncodeFailureStillSendsText(t *testing.T) {
	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	transport := &fakeTransport{}
	encoder := func(*gocv.Mat) ([]byte, error) { return nil, errors.New("codec missing") }
	d := NewDispatcher(Snapshot{"ivan": {1}}, transport, WithEncoder(encoder))

	report := d.Dispatch(context.Background(), Notification{StudentID: "ivan", Text: "hi", Image: &frame})

	if len(transport.sent) != 1 || transport.sent[0].kind != "text" {
		t.Errorf("expected only the text message, got %+v", transport.sent)
	}
	if report.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", report.Delivered)
	}
}

func TestDispatcher_LookupError(t *testing.T) {
	transport := &fakeTransport{}
	d := NewDispatcher(failingRegistry{}, transport)

	report := d.Dispatch(context.Background(), Notification{StudentID: "ivan", Text: "hi"})

	if len(transport.sent) != 0 {
		t.Errorf("expected no calls, got %d", len(transport.sent))
	}
	if report.Destinations != 0 {
		t.Errorf("Destinations = %d, want 0", report.Destinations)
	}
}

func TestEncodeJPEG(t *testing.T) {
	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	data, err := EncodeJPEG(&frame)
	if err != nil {
		t.Fatalf("EncodeJPEG() error = %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Errorf("output does not start with a JPEG SOI marker")
	}
}

func TestSnapshot_Lookup(t *testing.T) {
	s := Snapshot{"ivan": {1, 2}}

	chats, err := s.Lookup("ivan")
	if err != nil || len(chats) != 2 {
		t.Errorf("Lookup(ivan) = %v, %v", chats, err)
	}
	chats, err = s.Lookup("olga")
	if err != nil || len(chats) != 0 {
		t.Errorf("Lookup(olga) = %v, %v", chats, err)
	}
}

func TestSnapshot_LookupNormalizesLabel(t *testing.T) {
	decomposed := "\u0410\u043b\u0435\u043a\u0441\u0438\u0306"

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()

	if _, err := st.Bindings().Bind(decomposed, 42); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	bindings, err := st.Bindings().Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	for _, label := range []string{decomposed, " " + decomposed, "\ufeff" + decomposed} {
		chats, err := Snapshot(bindings).Lookup(label)
		if err != nil || len(chats) != 1 || chats[0] != 42 {
			t.Errorf("Lookup(%q) = %v, %v, want [42]", label, chats, err)
		}
	}
}
