package itops

import (
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"helpdesk-ai/internal/domain"
)

// User is a directory record.
type User struct {
	ID         string `json:"user_id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	VIP        bool   `json:"vip"`
	Location   string `json:"location"`
}

// Incident is a record in the service-desk incident table.
type Incident struct {
	ID        string `json:"ticket_id"`
	Status    string `json:"status"`
	Priority  string `json:"priority"`
	Assignee  string `json:"assignee"`
	Created   string `json:"created"`
	Title     string `json:"title,omitempty"`
	Requester string `json:"requester,omitempty"`
}

// IncidentReceipt is returned when an incident is filed.
type IncidentReceipt struct {
	TicketID string `json:"ticket_id"`
	Message  string `json:"message"`
	ETA      string `json:"eta"`
}

// PasswordReset describes an issued reset link.
type PasswordReset struct {
	Message   string    `json:"message"`
	ResetLink string    `json:"reset_link"`
	Expires   time.Time `json:"expires"`
}

// Directory is the in-memory HR/IT database: users, incidents and
// monitored systems.
type Directory struct {
	mu        sync.RWMutex
	users     map[string]User
	incidents map[string]Incident
	systems   map[string]domain.SystemHealth
	intn      func(int) int
	now       func() time.Time
}

// NewDirectory returns a directory seeded with the demo records.
func NewDirectory() *Directory {
	return &Directory{
		users: map[string]User{
			"user123":  {ID: "user123", Name: "John Smith", Department: "Engineering", Location: "NYC"},
			"user_ceo": {ID: "user_ceo", Name: "Jane Doe", Department: "Executive", VIP: true, Location: "SF"},
			"user_dev": {ID: "user_dev", Name: "Bob Developer", Department: "Engineering", Location: "NYC"},
		},
		incidents: map[string]Incident{
			"INC-12345": {ID: "INC-12345", Status: "Open", Priority: "High", Assignee: "IT-Team-A", Created: "2025-12-05"},
			"INC-12346": {ID: "INC-12346", Status: "Resolved", Priority: "Medium", Assignee: "IT-Team-B", Created: "2025-12-04"},
		},
		systems: map[string]domain.SystemHealth{
			"vpn-gateway-1":   {SystemID: "vpn-gateway-1", Status: "healthy", Uptime: "99.9%", Region: "us-east"},
			"mail-server-1":   {SystemID: "mail-server-1", Status: "degraded", Uptime: "98.5%", Region: "us-west"},
			"ad-controller-1": {SystemID: "ad-controller-1", Status: "healthy", Uptime: "99.99%", Region: "us-east"},
		},
		intn: rand.IntN,
		now:  time.Now,
	}
}

// User looks up a directory record.
func (d *Directory) User(id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return User{}, domain.NewDomainError("Directory.User", domain.ErrNotFound, "user "+id)
	}
	return u, nil
}

// UserIDs returns the known user ids, sorted.
func (d *Directory) UserIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.users))
}

// Incident returns an incident by id.
func (d *Directory) Incident(id string) (Incident, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	inc, ok := d.incidents[id]
	if !ok {
		return Incident{}, domain.NewDomainError("Directory.Incident", domain.ErrTicketNotFound, id)
	}
	return inc, nil
}

// FileIncident records a new incident.
func (d *Directory) FileIncident(title, description, priority, requester string) IncidentReceipt {
	d.mu.Lock()
	defer d.mu.Unlock()

	var id string
	for {
		id = fmt.Sprintf("INC-%d", 10000+d.intn(90000))
		if _, taken := d.incidents[id]; !taken {
			break
		}
	}
	d.incidents[id] = Incident{
		ID:        id,
		Status:    "New",
		Priority:  priority,
		Assignee:  "Unassigned",
		Created:   d.now().Format("2006-01-02"),
		Title:     title,
		Requester: requester,
	}
	eta := "Response within 24 hours"
	if priority == "High" || priority == "Critical" {
		eta = "Response within 4 hours"
	}
	return IncidentReceipt{
		TicketID: id,
		Message:  fmt.Sprintf("Ticket %s created successfully", id),
		ETA:      eta,
	}
}

// SystemHealth returns monitoring data. Unknown systems report "unknown".
func (d *Directory) SystemHealth(id string) domain.SystemHealth {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if h, ok := d.systems[id]; ok {
		return h
	}
	return domain.SystemHealth{
		SystemID: id,
		Status:   "unknown",
		Message:  "No monitoring data for " + id,
	}
}

// ResetPassword issues a 24h reset link for a known user.
func (d *Directory) ResetPassword(userID string) (PasswordReset, error) {
	if _, err := d.User(userID); err != nil {
		return PasswordReset{}, err
	}
	return PasswordReset{
		Message:   "Password reset initiated for " + userID,
		ResetLink: fmt.Sprintf("https://id.company.com/reset/%d", 100000+d.intn(900000)),
		Expires:   d.now().Add(24 * time.Hour),
	}, nil
}

// UnlockUser unlocks a known user's account.
func (d *Directory) UnlockUser(userID string) (string, error) {
	if _, err := d.User(userID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Account %s has been unlocked. User should be able to login immediately.", userID), nil
}
