package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/infra/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDemoModeWithoutCredentials(t *testing.T) {
	c := NewJiraClient(config.JiraConfig{Project: "IT"}, discardLogger())
	if c.Mode() != ModeDemo {
		t.Fatalf("mode = %s", c.Mode())
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	tk, err := c.CreateTicket(context.Background(), domain.TicketRequest{
		Summary:  "VPN down",
		Priority: domain.PriorityHigh,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`^IT-[1-9]\d\d$`).MatchString(tk.Key) {
		t.Errorf("key = %q", tk.Key)
	}
	if tk.URL != "https://demo.atlassian.net/browse/"+tk.Key {
		t.Errorf("url = %q", tk.URL)
	}
	if !tk.Demo || tk.Status != "Open" {
		t.Errorf("ticket = %+v", tk)
	}

	got, err := c.GetTicket(context.Background(), tk.Key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary != "VPN down" || got.Assignee != "IT Support Team" {
		t.Errorf("got = %+v", got)
	}

	_, err = c.GetTicket(context.Background(), "IT-1")
	if !errors.Is(err, domain.ErrTicketNotFound) {
		t.Errorf("err = %v, want ErrTicketNotFound", err)
	}
}

func TestDemoProjects(t *testing.T) {
	c := NewJiraClient(config.JiraConfig{}, discardLogger())
	p := c.Projects(context.Background())
	if len(p) != 1 || p[0].Key != "IT" {
		t.Errorf("projects = %v", p)
	}
	// no configured project falls back to the first listed one
	tk, _ := c.CreateTicket(context.Background(), domain.TicketRequest{Summary: "x"})
	if !strings.HasPrefix(tk.Key, "IT-") {
		t.Errorf("key = %q", tk.Key)
	}
}

func TestConnectFailureSwitchesToDemo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewJiraClient(config.JiraConfig{Domain: "x", Email: "a@b.c", APIToken: "bad"}, discardLogger(), WithBaseURL(srv.URL))
	if c.Mode() != ModeLive {
		t.Fatalf("mode before probe = %s", c.Mode())
	}
	err := c.Connect(context.Background())
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Errorf("err = %v, want ErrAuthInvalid", err)
	}
	if c.Mode() != ModeDemo {
		t.Errorf("mode after failed probe = %s", c.Mode())
	}
}

func TestLiveCreateTicket(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "ops@company.com" || pass != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/rest/api/3/myself":
			json.NewEncoder(w).Encode(map[string]string{"displayName": "Ops Bot"})
		case r.Method == http.MethodPost && r.URL.Path == "/rest/api/3/issue":
			json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"id": "10001", "key": "IT-42"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewJiraClient(config.JiraConfig{
		Domain: "company.atlassian.net", Email: "ops@company.com", APIToken: "tok", Project: "IT",
	}, discardLogger(), WithBaseURL(srv.URL))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.Mode() != ModeLive {
		t.Fatalf("mode = %s", c.Mode())
	}

	tk, err := c.CreateTicket(context.Background(), domain.TicketRequest{
		Summary:     "CEO laptop dead",
		Description: "needs attention",
		Priority:    domain.PriorityCriticalVIP,
	})
	if err != nil {
		t.Fatal(err)
	}
	if tk.Key != "IT-42" || tk.URL != srv.URL+"/browse/IT-42" {
		t.Errorf("ticket = %+v", tk)
	}

	fields := body["fields"].(map[string]any)
	if p := fields["priority"].(map[string]any)["name"]; p != "Highest" {
		t.Errorf("priority = %v", p)
	}
	if desc := fields["description"].(map[string]any); desc["type"] != "doc" {
		t.Errorf("description = %v", desc)
	}
	labels := fields["labels"].([]any)
	if len(labels) != 2 || labels[0] != "ai-support" {
		t.Errorf("labels = %v", labels)
	}
}

func TestLiveCreateTicketServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewJiraClient(config.JiraConfig{Domain: "x", APIToken: "t", Project: "IT"}, discardLogger(), WithBaseURL(srv.URL))
	_, err := c.CreateTicket(context.Background(), domain.TicketRequest{Summary: "s"})
	if !errors.Is(err, domain.ErrTicketCreate) {
		t.Errorf("err = %v, want ErrTicketCreate", err)
	}
}

func TestLiveGetTicket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/3/issue/IT-7" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, `{"id":"7","key":"IT-7","fields":{"summary":"Printer","status":{"name":"In Progress"},"priority":{"name":"High"},"assignee":null}}`)
	}))
	defer srv.Close()

	c := NewJiraClient(config.JiraConfig{Domain: "x", APIToken: "t"}, discardLogger(), WithBaseURL(srv.URL))
	tk, err := c.GetTicket(context.Background(), "IT-7")
	if err != nil {
		t.Fatal(err)
	}
	if tk.Status != "In Progress" || tk.Priority != "High" || tk.Assignee != "Unassigned" {
		t.Errorf("ticket = %+v", tk)
	}

	_, err = c.GetTicket(context.Background(), "IT-8")
	if !errors.Is(err, domain.ErrTicketNotFound) {
		t.Errorf("err = %v, want ErrTicketNotFound", err)
	}
}

func TestJiraPriority(t *testing.T) {
	cases := map[domain.Priority]string{
		domain.PriorityCritical:    "Highest",
		domain.PriorityCriticalVIP: "Highest",
		domain.PriorityLow:         "Low",
		"weird":                    "Medium",
	}
	for in, want := range cases {
		if got := JiraPriority(in); got != want {
			t.Errorf("JiraPriority(%q) = %q, want %q", in, got, want)
		}
	}
}
