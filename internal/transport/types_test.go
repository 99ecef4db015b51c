package transport

import (
	"context"
	"testing"
)

func TestSlackText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "with link",
			msg:  Message{Subject: "API", Body: "is STOPPED, OOMKilled", Link: "https://x"},
			want: "*API*: is STOPPED, OOMKilled (<https://x|More details>)",
		},
		{
			name: "custom label",
			msg:  Message{Subject: "API", Body: "is RUNNING", Link: "https://x", LinkLabel: "events"},
			want: "*API*: is RUNNING (<https://x|events>)",
		},
		{
			name: "no link",
			msg:  Message{Subject: "API", Body: "is RUNNING"},
			want: "*API*: is RUNNING",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.msg.SlackText(); got != tt.want {
				t.Fatalf("SlackText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlainText(t *testing.T) {
	t.Parallel()
	m := Message{Author: "INFRA - STAGING", Subject: "API", Body: "is RUNNING"}
	if got := m.PlainText(); got != "INFRA - STAGING API: is RUNNING" {
		t.Fatalf("PlainText = %q", got)
	}
}

func TestSinkFunc(t *testing.T) {
	t.Parallel()
	var got Message
	var s Sink = SinkFunc(func(ctx context.Context, m Message) error {
		got = m
		return nil
	})
	if err := s.Post(context.Background(), Message{Subject: "x"}); err != nil {
		t.Fatalf("Post error: %v", err)
	}
	if got.Subject != "x" || s.Name() != "func" {
		t.Fatalf("got %+v name %s", got, s.Name())
	}
}
