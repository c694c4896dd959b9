package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/infra/config"
	"helpdesk-ai/internal/infra/tracer"
)

const (
	ModeLive = "live"
	ModeDemo = "demo"

	demoBrowseURL = "https://demo.atlassian.net/browse/"
)

// DefaultLabels tag every issue opened by the desk.
var DefaultLabels = []string{"ai-support", "it-support-genius"}

// priorityMap translates desk priorities to Jira priority names.
var priorityMap = map[domain.Priority]string{
	domain.PriorityLow:         "Low",
	domain.PriorityMedium:      "Medium",
	domain.PriorityHigh:        "High",
	domain.PriorityCritical:    "Highest",
	domain.PriorityCriticalVIP: "Highest",
}

// JiraPriority returns the Jira priority name for p, defaulting to Medium.
func JiraPriority(p domain.Priority) string {
	if name, ok := priorityMap[p]; ok {
		return name
	}
	return "Medium"
}

// Project is a Jira project summary.
type Project struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	ID   string `json:"id"`
}

// ConnectionInfo is the result of probing /myself.
type ConnectionInfo struct {
	User  string
	Email string
}

// Option configures a JiraClient.
type Option func(*JiraClient)

// WithBaseURL overrides the https://{domain} root. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *JiraClient) { c.root = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *JiraClient) { c.http = hc }
}

// JiraClient implements domain.TicketService against Jira Cloud REST v3.
// Without credentials, or after a failed auth probe, it runs in demo mode
// and keeps tickets in memory.
type JiraClient struct {
	root      string
	email     string
	token     string
	project   string
	issueType string
	labels    []string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu   sync.Mutex
	demo bool
	// demo-mode tickets by key
	tickets map[string]*domain.Ticket
}

// NewJiraClient creates a client. Call Connect to probe credentials.
func NewJiraClient(cfg config.JiraConfig, logger *slog.Logger, opts ...Option) *JiraClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	issueType := cfg.IssueType
	if issueType == "" {
		issueType = "Task"
	}

	c := &JiraClient{
		email:     cfg.Email,
		token:     cfg.APIToken,
		project:   cfg.Project,
		issueType: issueType,
		labels:    labels,
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger,
		tickets:   make(map[string]*domain.Ticket),
	}
	if cfg.Domain != "" {
		c.root = "https://" + strings.TrimRight(cfg.Domain, "/")
	}
	for _, opt := range opts {
		opt(c)
	}
	c.demo = c.root == "" || c.token == ""
	return c
}

// Connect probes the credentials. On failure the client switches to demo
// mode; the probe error is returned for reporting only.
func (c *JiraClient) Connect(ctx context.Context) error {
	if c.Mode() == ModeDemo {
		c.logger.Info("jira: no credentials, using demo mode")
		return nil
	}
	info, err := c.TestConnection(ctx)
	if err != nil {
		c.mu.Lock()
		c.demo = true
		c.mu.Unlock()
		c.logger.Warn("jira: auth failed, using demo mode", "error", err)
		return err
	}
	c.logger.Info("jira: connected", "user", info.User)
	return nil
}

// Mode implements domain.TicketService.
func (c *JiraClient) Mode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.demo {
		return ModeDemo
	}
	return ModeLive
}

// TestConnection calls GET /myself and returns the authenticated user.
func (c *JiraClient) TestConnection(ctx context.Context) (ConnectionInfo, error) {
	if c.root == "" || c.token == "" {
		return ConnectionInfo{}, domain.NewDomainError("Jira.TestConnection", domain.ErrAuthInvalid, "no credentials configured")
	}
	var me struct {
		DisplayName  string `json:"displayName"`
		EmailAddress string `json:"emailAddress"`
	}
	if err := c.do(ctx, http.MethodGet, "/myself", nil, &me); err != nil {
		return ConnectionInfo{}, domain.WrapOp("Jira.TestConnection", err)
	}
	return ConnectionInfo{User: me.DisplayName, Email: me.EmailAddress}, nil
}

// Projects lists visible projects. Demo mode and lookup failures yield the
// single default IT project.
func (c *JiraClient) Projects(ctx context.Context) []Project {
	if c.Mode() == ModeDemo {
		return []Project{{Key: "IT", Name: "IT Support", ID: "demo-1"}}
	}
	var projects []Project
	if err := c.do(ctx, http.MethodGet, "/project", nil, &projects); err != nil || len(projects) == 0 {
		if err != nil {
			c.logger.Warn("jira: project listing failed", "error", err)
		}
		return []Project{{Key: "IT", Name: "IT Support (Default)", ID: "default"}}
	}
	return projects
}

// CreateTicket implements domain.TicketService.
func (c *JiraClient) CreateTicket(ctx context.Context, req domain.TicketRequest) (*domain.Ticket, error) {
	ctx, span := tracer.StartSpan(ctx, "jira.create_issue",
		trace.WithAttributes(
			tracer.StringAttr("jira.mode", c.Mode()),
			tracer.StringAttr("jira.priority", string(req.Priority)),
		),
	)
	defer span.End()

	if req.Project == "" {
		req.Project = c.project
	}
	if req.Project == "" {
		req.Project = c.Projects(ctx)[0].Key
	}
	if req.IssueType == "" {
		req.IssueType = c.issueType
	}
	if len(req.Labels) == 0 {
		req.Labels = c.labels
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityMedium
	}

	var (
		t   *domain.Ticket
		err error
	)
	if c.Mode() == ModeDemo {
		t = c.createDemo(req)
	} else {
		t, err = c.createLive(ctx, req)
	}
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracer.StringAttr("jira.key", t.Key))
	tracer.SetOK(span)
	c.logger.Info("ticket created", "key", t.Key, "priority", req.Priority, "mode", c.Mode())
	return t, nil
}

func (c *JiraClient) createDemo(req domain.TicketRequest) *domain.Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()

	var key string
	for {
		key = fmt.Sprintf("%s-%d", req.Project, 100+rand.IntN(900))
		if _, taken := c.tickets[key]; !taken || len(c.tickets) >= 900 {
			break
		}
	}
	t := &domain.Ticket{
		Key:         key,
		ID:          "demo-" + key,
		URL:         demoBrowseURL + key,
		Summary:     req.Summary,
		Description: req.Description,
		Status:      "Open",
		Priority:    req.Priority,
		Assignee:    "IT Support Team",
		Labels:      append([]string(nil), req.Labels...),
		Demo:        true,
		Created:     time.Now().UTC(),
	}
	c.tickets[key] = t
	cp := *t
	return &cp
}

func (c *JiraClient) createLive(ctx context.Context, req domain.TicketRequest) (*domain.Ticket, error) {
	fields := map[string]any{
		"project":     map[string]string{"key": req.Project},
		"summary":     req.Summary,
		"description": adfDocument(req.Description),
		"issuetype":   map[string]string{"name": req.IssueType},
		"priority":    map[string]string{"name": JiraPriority(req.Priority)},
	}
	if len(req.Labels) > 0 {
		fields["labels"] = req.Labels
	}

	var created struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := c.do(ctx, http.MethodPost, "/issue", map[string]any{"fields": fields}, &created); err != nil {
		return nil, domain.NewDomainError("Jira.CreateTicket", domain.ErrTicketCreate, err.Error())
	}
	return &domain.Ticket{
		Key:         created.Key,
		ID:          created.ID,
		URL:         c.root + "/browse/" + created.Key,
		Summary:     req.Summary,
		Description: req.Description,
		Status:      "Open",
		Priority:    req.Priority,
		Labels:      req.Labels,
		Created:     time.Now().UTC(),
	}, nil
}

// adfDocument wraps plain text in a single-paragraph Atlassian Document.
func adfDocument(text string) map[string]any {
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": []any{
			map[string]any{
				"type":    "paragraph",
				"content": []any{map[string]any{"type": "text", "text": text}},
			},
		},
	}
}

// GetTicket implements domain.TicketService.
func (c *JiraClient) GetTicket(ctx context.Context, key string) (*domain.Ticket, error) {
	if c.Mode() == ModeDemo {
		c.mu.Lock()
		defer c.mu.Unlock()
		t, ok := c.tickets[key]
		if !ok {
			return nil, domain.NewDomainError("Jira.GetTicket", domain.ErrTicketNotFound, key)
		}
		cp := *t
		return &cp, nil
	}

	var issue struct {
		ID     string `json:"id"`
		Key    string `json:"key"`
		Fields struct {
			Summary string `json:"summary"`
			Status  *struct {
				Name string `json:"name"`
			} `json:"status"`
			Priority *struct {
				Name string `json:"name"`
			} `json:"priority"`
			Assignee *struct {
				DisplayName string `json:"displayName"`
			} `json:"assignee"`
			Labels []string `json:"labels"`
		} `json:"fields"`
	}
	if err := c.do(ctx, http.MethodGet, "/issue/"+key, nil, &issue); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewDomainError("Jira.GetTicket", domain.ErrTicketNotFound, key)
		}
		return nil, domain.WrapOp("Jira.GetTicket", err)
	}

	t := &domain.Ticket{
		Key:      issue.Key,
		ID:       issue.ID,
		URL:      c.root + "/browse/" + issue.Key,
		Summary:  issue.Fields.Summary,
		Assignee: "Unassigned",
		Labels:   issue.Fields.Labels,
	}
	if issue.Fields.Status != nil {
		t.Status = issue.Fields.Status.Name
	}
	if issue.Fields.Priority != nil {
		t.Priority = domain.Priority(issue.Fields.Priority.Name)
	}
	if issue.Fields.Assignee != nil {
		t.Assignee = issue.Fields.Assignee.DisplayName
	}
	return t, nil
}

// do performs one rate-limited request against /rest/api/3.
func (c *JiraClient) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRateLimit, err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.root+"/rest/api/3"+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.email, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func statusError(status int, body []byte) error {
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status %d: %s", domain.ErrNotFound, status, msg)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", domain.ErrRateLimit, status, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", domain.ErrAuthInvalid, status, msg)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUpstream, status, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrProviderError, status, msg)
	}
}

var _ domain.TicketService = (*JiraClient)(nil)
