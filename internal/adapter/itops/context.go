package itops

import (
	"context"
	"log/slog"
	"strings"

	"helpdesk-ai/internal/domain"
)

// ContextProvider derives user profiles from the user id, overlaying the
// display name from the directory when the user is known.
type ContextProvider struct {
	dir    *Directory
	logger *slog.Logger
}

// NewContextProvider creates a provider. dir may be nil.
func NewContextProvider(dir *Directory, logger *slog.Logger) *ContextProvider {
	return &ContextProvider{dir: dir, logger: logger}
}

// GetContext implements domain.ContextProvider.
func (p *ContextProvider) GetContext(_ context.Context, userID string) domain.UserContext {
	uc := domain.UserContext{
		UserID:     userID,
		Role:       "Employee",
		Location:   "New York (HQ)",
		Department: "Engineering",
	}

	id := strings.ToLower(userID)
	switch {
	case strings.Contains(id, "vip") || strings.Contains(id, "ceo"):
		uc.Role = "Executive"
		uc.VIP = true
	case strings.Contains(id, "dev"):
		uc.Role = "Developer"
	case strings.Contains(id, "sales"):
		uc.Location = "London (Remote)"
		uc.Department = "Sales"
	}

	if p.dir != nil {
		if u, err := p.dir.User(userID); err == nil {
			uc.Name = u.Name
		}
	}
	p.logger.Debug("user context resolved", "user_id", userID, "role", uc.Role, "vip", uc.VIP)
	return uc
}

var _ domain.ContextProvider = (*ContextProvider)(nil)
