package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"ecsrelay/internal/transport"
)

type fakeAPI struct {
	mu    sync.Mutex
	paths []string
	last  map[string]string
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	params := map[string]string{}
	_ = json.Unmarshal(body, &params)
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.last = params
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":-1001,"type":"supergroup"},"text":"x"}}`)
}

func TestPostSendsHTML(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	defer srv.Close()

	s, err := New(Config{Token: "123:abc", APIURL: srv.URL})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	m := transport.Message{
		Channel: "-1001",
		Author:  "INFRA - STAGING",
		Subject: "WORKER",
		Body:    "is STOPPED, Essential container <app> exited",
		Link:    "https://eu-west-1.console.aws.amazon.com/ecs/home#/clusters/c/services/worker/events",
		Color:   "#ffc76d",
	}
	if err := s.Post(context.Background(), m); err != nil {
		t.Fatalf("Post error: %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.paths) != 1 || api.paths[0] != "/bot123:abc/sendMessage" {
		t.Fatalf("paths = %v", api.paths)
	}
	if api.last["chat_id"] != "-1001" {
		t.Fatalf("chat_id = %q", api.last["chat_id"])
	}
	if api.last["parse_mode"] != "HTML" {
		t.Fatalf("parse_mode = %q", api.last["parse_mode"])
	}
	text := api.last["text"]
	if !strings.Contains(text, "&lt;app&gt;") {
		t.Fatalf("body not escaped: %q", text)
	}
	if !strings.HasPrefix(text, "🟠 <b>INFRA - STAGING</b>") {
		t.Fatalf("text = %q", text)
	}
}

func TestPostUsernameChannel(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	defer srv.Close()

	s, _ := New(Config{Token: "123:abc", APIURL: srv.URL})
	if err := s.Post(context.Background(), transport.Message{Channel: "@infra_alerts", Subject: "API", Body: "is RUNNING"}); err != nil {
		t.Fatalf("Post error: %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.last["chat_id"] != "@infra_alerts" {
		t.Fatalf("chat_id = %q", api.last["chat_id"])
	}
}

func TestRecipient(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{in: "-1001234567890", want: "-1001234567890"},
		{in: "@infra_alerts", want: "@infra_alerts"},
		{in: " infra_alerts ", want: "@infra_alerts"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			to, err := recipient(tt.in)
			if err != nil {
				t.Fatalf("recipient error: %v", err)
			}
			if got := to.Recipient(); got != tt.want {
				t.Fatalf("Recipient() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPostErrors(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty token")
	}
	s, err := New(Config{Token: "123:abc", APIURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := s.Post(context.Background(), transport.Message{Subject: "API"}); err == nil {
		t.Fatal("expected error for empty channel")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Post(ctx, transport.Message{Channel: "1", Subject: "API"}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestRenderHTML(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  transport.Message
		want string
	}{
		{
			name: "running",
			msg:  transport.Message{Author: "INFRA - PRODUCTION", Subject: "API", Body: "is RUNNING", Color: "good"},
			want: "🟢 <b>INFRA - PRODUCTION</b>\n<b>API</b>: is RUNNING",
		},
		{
			name: "link",
			msg:  transport.Message{Subject: "API", Body: "is STOPPED", Link: "https://x/?a=1&b=2"},
			want: `<b>API</b>: is STOPPED (<a href="https://x/?a=1&amp;b=2">More details</a>)`,
		},
		{
			name: "unknown color",
			msg:  transport.Message{Author: "A", Subject: "S", Body: "B", Color: "#123456"},
			want: "⚪ <b>A</b>\n<b>S</b>: B",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := RenderHTML(tt.msg); got != tt.want {
				t.Fatalf("RenderHTML = %q, want %q", got, tt.want)
			}
		})
	}
}
