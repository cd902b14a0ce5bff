package telegram

import (
	"errors"
	"strings"
	"testing"
	"time"

	botModels "github.com/go-telegram/bot/models"

	"forward_bot/internal/telegram/forward"
	"forward_bot/internal/telegram/models"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{name: "zero", d: 0, want: "0s"},
		{name: "negative clamped", d: -5 * time.Second, want: "0s"},
		{name: "seconds only", d: 42 * time.Second, want: "42s"},
		{name: "minutes and seconds", d: 3*time.Minute + 5*time.Second, want: "3m5s"},
		{name: "hours", d: 2*time.Hour + 30*time.Minute, want: "2h30m"},
		{name: "days", d: 49*time.Hour + 10*time.Second, want: "2d1h10s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatDuration(tt.d); got != tt.want {
				t.Fatalf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestHasMedia(t *testing.T) {
	tests := []struct {
		name string
		msg  botModels.Message
		want bool
	}{
		{name: "plain text", msg: botModels.Message{Text: "hello"}, want: false},
		{name: "photo", msg: botModels.Message{Photo: []botModels.PhotoSize{{FileID: "p1"}}}, want: true},
		{name: "video", msg: botModels.Message{Video: &botModels.Video{FileID: "v1"}}, want: true},
		{name: "document", msg: botModels.Message{Document: &botModels.Document{FileID: "d1"}}, want: true},
		{name: "audio", msg: botModels.Message{Audio: &botModels.Audio{FileID: "a1"}}, want: true},
		{name: "voice", msg: botModels.Message{Voice: &botModels.Voice{FileID: "vo1"}}, want: true},
		{name: "animation", msg: botModels.Message{Animation: &botModels.Animation{FileID: "an1"}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasMedia(&tt.msg); got != tt.want {
				t.Fatalf("hasMedia() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChatMatches(t *testing.T) {
	tests := []struct {
		name       string
		chat       botModels.Chat
		configured string
		want       bool
	}{
		{
			name:       "numeric id matches",
			chat:       botModels.Chat{ID: -1001234567890},
			configured: "-1001234567890",
			want:       true,
		},
		{
			name:       "numeric id differs",
			chat:       botModels.Chat{ID: -1001234567890},
			configured: "-1009999999999",
			want:       false,
		},
		{
			name:       "username matches",
			chat:       botModels.Chat{ID: -1001, Username: "mychannel"},
			configured: "@mychannel",
			want:       true,
		},
		{
			name:       "username without at sign does not match",
			chat:       botModels.Chat{ID: -1001, Username: "mychannel"},
			configured: "mychannel",
			want:       false,
		},
		{
			name:       "no username configured as username",
			chat:       botModels.Chat{ID: -1001},
			configured: "@mychannel",
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chatMatches(tt.chat, tt.configured); got != tt.want {
				t.Fatalf("chatMatches(%+v, %q) = %v, want %v", tt.chat, tt.configured, got, tt.want)
			}
		})
	}
}

func TestStartErrorText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "not configured", err: forward.ErrNotConfigured, want: "/setconfig"},
		{name: "job active", err: forward.ErrJobActive, want: "already active"},
		{name: "no active job", err: forward.ErrNoActiveJob, want: "No active forwarding"},
		{name: "invalid range", err: forward.ErrInvalidRange, want: "Invalid message IDs"},
		{name: "unknown error", err: errors.New("mongo timeout"), want: "Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := startErrorText(tt.err)
			if !strings.Contains(got, tt.want) {
				t.Fatalf("startErrorText(%v) = %q, expected to contain %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestFormatProgress(t *testing.T) {
	running := FormatProgress(&models.ForwardProgress{
		SuccessCount:  280,
		FailedCount:   5,
		SkippedCount:  15,
		TotalCount:    1000,
		RateLimitHits: 2,
		Speed:         120,
		CurrentBatch:  3,
		TotalBatches:  10,
		IsActive:      true,
	})
	for _, fragment := range []string{"Running", "280 / 1000 (28%)", "Failed: 5", "Skipped: 15", "Rate limits: 2", "120 msgs/min", "Batch: 3 / 10"} {
		if !strings.Contains(running, fragment) {
			t.Fatalf("expected running progress to contain %q, got:\n%s", fragment, running)
		}
	}

	stopping := FormatProgress(&models.ForwardProgress{IsActive: true, StopRequested: true})
	if !strings.Contains(stopping, "Stopping") {
		t.Fatalf("expected stopping status, got:\n%s", stopping)
	}

	complete := FormatProgress(&models.ForwardProgress{SuccessCount: 10, TotalCount: 10})
	if !strings.Contains(complete, "Complete") {
		t.Fatalf("expected complete status, got:\n%s", complete)
	}
}
