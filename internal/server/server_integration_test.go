package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/safeschool/internal/server/api"
	"github.com/ayusman/safeschool/internal/store"
)

func TestAPI_BindingWorkflow(t *testing.T) {
	tmpDir := t.TempDir()
	s, _ := store.New(filepath.Join(tmpDir, "test.db"))
	defer s.Close()

	srv := New(Config{Store: s, BotUsername: "school_bot"})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Issue a token for a student
	resp, err := client.Post(ts.URL+"/api/tokens", "application/json", bytes.NewBufferString(`{"student_id": "ivan_petrov"}`))
	if err != nil {
		t.Fatalf("POST /api/tokens error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var issued struct {
		Token string `json:"token"`
		Link  string `json:"link"`
	}
	json.NewDecoder(resp.Body).Decode(&issued)
	resp.Body.Close()

	if !strings.Contains(issued.Link, issued.Token) {
		t.Errorf("link %q does not carry token %q", issued.Link, issued.Token)
	}

	// 2. A guardian consumes it (as the bot would)
	if _, err := s.Tokens().Consume(issued.Token, 555); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	// 3. The binding is visible through the API
	resp, _ = client.Get(ts.URL + "/api/bindings/ivan_petrov")
	var student struct {
		Chats []int64 `json:"chats"`
	}
	json.NewDecoder(resp.Body).Decode(&student)
	resp.Body.Close()

	if len(student.Chats) != 1 || student.Chats[0] != 555 {
		t.Fatalf("chats = %v, want [555]", student.Chats)
	}

	// 4. Add a second guardian manually
	resp, _ = client.Post(ts.URL+"/api/bindings", "application/json", bytes.NewBufferString(`{"student_id": "ivan_petrov", "chat_id": 777}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/bindings status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	resp.Body.Close()

	// 5. Remove both
	for _, chat := range []int64{555, 777} {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/bindings/ivan_petrov/"+strconv.FormatInt(chat, 10), nil)
		resp, _ = client.Do(req)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
		}
		resp.Body.Close()
	}

	// 6. Verify nothing is left
	resp, _ = client.Get(ts.URL + "/api/bindings")
	var listed struct {
		Bindings []json.RawMessage `json:"bindings"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Bindings) != 0 {
		t.Errorf("len(bindings) = %d, want 0", len(listed.Bindings))
	}
}

func TestAPI_EventFeed(t *testing.T) {
	s, _ := store.New(filepath.Join(t.TempDir(), "test.db"))
	defer s.Close()

	hub := NewEventHub()
	ts := httptest.NewServer(New(Config{Store: s, Events: hub}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	waitFor(t, "subscriber", func() bool { return hub.Clients() == 1 })

	e := &store.Event{StudentID: "ivan", Score: 0.71, OccurredAt: time.Now(), Destinations: 1, Delivered: 1}
	if err := s.Events().Record(e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	hub.Broadcast(api.NewEventResponse(e))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pushed api.EventResponse
	if err := conn.ReadJSON(&pushed); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if pushed.ID != e.ID || pushed.StudentID != "ivan" {
		t.Errorf("pushed = %+v", pushed)
	}

	resp, _ := ts.Client().Get(ts.URL + "/api/events")
	var listed struct {
		Events []api.EventResponse `json:"events"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Events) != 1 || listed.Events[0].ID != e.ID {
		t.Errorf("events = %+v", listed.Events)
	}
}
