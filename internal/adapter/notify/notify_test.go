package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"

	"helpdesk-ai/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	mu   sync.Mutex
	name string
	got  []domain.Notification
	err  error
}

func (r *recordingNotifier) Name() string { return r.name }
func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func TestSlackNotifierPostsMessage(t *testing.T) {
	var (
		channel     string
		attachments string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat.postMessage") {
			http.NotFound(w, r)
			return
		}
		r.ParseForm()
		channel = r.FormValue("channel")
		attachments = r.FormValue("attachments")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true,"channel":"C123","ts":"1700000000.000100"}`)
	}))
	defer srv.Close()

	s := NewSlackNotifier("xoxb-test", "#it-support-urgent", discardLogger(), WithSlackAPIURL(srv.URL+"/"))
	err := s.Notify(context.Background(), domain.Notification{
		Title:    "Ticket IT-101 opened",
		Text:     "VPN outage",
		Severity: "High",
		Fields:   map[string]string{"user": "user123"},
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if channel != "#it-support-urgent" {
		t.Errorf("channel = %q", channel)
	}
	if !strings.Contains(attachments, "Ticket IT-101 opened") || !strings.Contains(attachments, "warning") {
		t.Errorf("attachments = %s", attachments)
	}
}

func TestSlackNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":false,"error":"channel_not_found"}`)
	}))
	defer srv.Close()

	s := NewSlackNotifier("xoxb-test", "#nope", discardLogger(), WithSlackAPIURL(srv.URL+"/"))
	err := s.Notify(context.Background(), domain.Notification{Title: "x"})
	if !errors.Is(err, domain.ErrNotifyFailed) {
		t.Errorf("err = %v, want ErrNotifyFailed", err)
	}
}

type fakeDiscord struct {
	channelID string
	embed     *discordgo.MessageEmbed
	err       error
}

func (f *fakeDiscord) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channelID = channelID
	f.embed = embed
	return &discordgo.Message{}, f.err
}

func TestDiscordNotifier(t *testing.T) {
	fake := &fakeDiscord{}
	d := &DiscordNotifier{session: fake, channelID: "998877", logger: discardLogger()}

	err := d.Notify(context.Background(), domain.Notification{
		Channel:  "#ignored",
		Title:    "Threat",
		Severity: "Critical",
		Fields:   map[string]string{"b": "2", "a": "1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if fake.channelID != "998877" {
		t.Errorf("channel = %q", fake.channelID)
	}
	if fake.embed.Color != 0xD00000 || len(fake.embed.Fields) != 2 || fake.embed.Fields[0].Name != "a" {
		t.Errorf("embed = %+v", fake.embed)
	}

	fake.err = errors.New("boom")
	if err := d.Notify(context.Background(), domain.Notification{}); !errors.Is(err, domain.ErrNotifyFailed) {
		t.Errorf("err = %v", err)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{name: "ok"}
	bad := &recordingNotifier{name: "bad", err: errors.New("down")}
	f := NewFanout("#x", discardLogger(), ok, bad)

	err := f.Notify(context.Background(), domain.Notification{Title: "t"})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Errorf("err = %v", err)
	}
	if len(ok.got) != 1 || len(bad.got) != 1 {
		t.Error("every notifier should be attempted")
	}
	if f.Name() != "fanout(ok,bad)" {
		t.Errorf("name = %q", f.Name())
	}
}

func TestFanoutHandleEvent(t *testing.T) {
	rec := &recordingNotifier{name: "rec"}
	f := NewFanout("#it-support-urgent", discardLogger(), rec)
	ctx := context.Background()

	f.HandleEvent(ctx, domain.NewEvent(domain.EventTicketCreated, "s1", domain.TicketCreatedPayload{
		UserID:  "user_ceo",
		Handler: "Escalation",
		Ticket:  domain.Ticket{Key: "IT-123", Priority: domain.PriorityCriticalVIP, URL: "https://demo.atlassian.net/browse/IT-123"},
	}))
	f.HandleEvent(ctx, domain.NewEvent(domain.EventThreatDetected, "s1", domain.ThreatDetectedPayload{
		UserID: "user_hacker", Threats: []string{"intrusion"}, Severity: "Critical",
	}))
	f.HandleEvent(ctx, domain.NewEvent(domain.EventFeedbackRecorded, "s1", domain.FeedbackPayload{}))

	if len(rec.got) != 2 {
		t.Fatalf("got %d notifications, want 2", len(rec.got))
	}
	if rec.got[0].Title != "Ticket IT-123 opened by Escalation" || rec.got[0].Channel != "#it-support-urgent" {
		t.Errorf("ticket notification = %+v", rec.got[0])
	}
	if rec.got[1].Text != "Detected: intrusion" || rec.got[1].Severity != "Critical" {
		t.Errorf("threat notification = %+v", rec.got[1])
	}
}

func TestLogNotifier(t *testing.T) {
	if err := NewLogNotifier(discardLogger()).Notify(context.Background(), domain.Notification{Title: "x"}); err != nil {
		t.Fatal(err)
	}
}
