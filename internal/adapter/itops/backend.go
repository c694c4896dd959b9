package itops

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"helpdesk-ai/internal/domain"
)

// Mock is the simulated IT operations backend used by the workflow
// handler, approval resolution and the MCP server.
type Mock struct {
	dir    *Directory
	logger *slog.Logger
	// users whose VPN check reports "Account Locked"
	lockedUsers map[string]bool
}

// NewMock creates a backend. dir may be nil; a fresh directory is used.
func NewMock(dir *Directory, logger *slog.Logger) *Mock {
	if dir == nil {
		dir = NewDirectory()
	}
	return &Mock{
		dir:         dir,
		logger:      logger,
		lockedUsers: map[string]bool{"user_locked": true},
	}
}

// Directory returns the backing directory.
func (m *Mock) Directory() *Directory { return m.dir }

func (m *Mock) called(op string, attrs ...any) {
	m.logger.Info("itops call", append([]any{"op", op}, attrs...)...)
}

// CheckVPNStatus implements domain.ITOps.
func (m *Mock) CheckVPNStatus(_ context.Context, userID string) (string, error) {
	m.called("check_vpn_status", "user_id", userID)
	if m.lockedUsers[userID] {
		return "Account Locked", nil
	}
	return "Connected", nil
}

// UnlockAccount implements domain.ITOps.
func (m *Mock) UnlockAccount(_ context.Context, userID string) (string, error) {
	m.called("unlock_account", "user_id", userID)
	return "Account Unlocked", nil
}

// CheckLicenseAvailability implements domain.ITOps. "Pro" editions are
// out of seats.
func (m *Mock) CheckLicenseAvailability(_ context.Context, software string) (bool, error) {
	m.called("check_license_availability", "software", software)
	return !strings.Contains(strings.ToLower(software), "pro"), nil
}

// ProvisionLicense implements domain.ITOps.
func (m *Mock) ProvisionLicense(_ context.Context, userID, software string) (string, error) {
	m.called("provision_license", "user_id", userID, "software", software)
	if strings.TrimSpace(software) == "" {
		return "", domain.NewDomainError("Mock.ProvisionLicense", domain.ErrInvalidArguments, "software name is empty")
	}
	prefix := []rune(strings.ToUpper(software))
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return fmt.Sprintf("%s-%d-%d", string(prefix), 1000+m.dir.intn(9000), 1000+m.dir.intn(9000)), nil
}

// ResetMFA implements domain.ITOps.
func (m *Mock) ResetMFA(_ context.Context, userID string) (string, error) {
	m.called("reset_mfa", "user_id", userID)
	return "MFA Reset Link sent to backup email.", nil
}

// ResetPassword implements domain.ITOps.
func (m *Mock) ResetPassword(_ context.Context, userID string) (string, error) {
	m.called("reset_password", "user_id", userID)
	r, err := m.dir.ResetPassword(userID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s. Reset link: %s (expires %s)", r.Message, r.ResetLink, r.Expires.Format("2006-01-02 15:04 MST")), nil
}

// OnboardUser implements domain.ITOps.
func (m *Mock) OnboardUser(_ context.Context, name, department string) (string, error) {
	m.called("onboard_user", "name", name, "department", department)
	if strings.TrimSpace(name) == "" {
		return "", domain.NewDomainError("Mock.OnboardUser", domain.ErrInvalidArguments, "name is empty")
	}
	email := strings.ReplaceAll(strings.ToLower(name), " ", ".") + "@company.com"
	return fmt.Sprintf("User %s created. Email: %s", name, email), nil
}

// OffboardUser implements domain.ITOps.
func (m *Mock) OffboardUser(_ context.Context, userID string) (string, error) {
	m.called("offboard_user", "user_id", userID)
	return fmt.Sprintf("User %s disabled. Access revoked.", userID), nil
}

// GrantTempAdmin implements domain.ITOps.
func (m *Mock) GrantTempAdmin(_ context.Context, userID string, hours int) (string, error) {
	m.called("grant_temp_admin", "user_id", userID, "hours", hours)
	if hours <= 0 {
		return "", domain.NewDomainError("Mock.GrantTempAdmin", domain.ErrInvalidArguments, "duration must be positive")
	}
	return fmt.Sprintf("Sudo access granted to %s for %d hours.", userID, hours), nil
}

// CheckHardwareEligibility implements domain.ITOps.
func (m *Mock) CheckHardwareEligibility(_ context.Context, userID string) (string, error) {
	m.called("check_hardware_eligibility", "user_id", userID)
	return "Eligible for upgrade (Last refresh: 4 years ago)", nil
}

// OrderPeripheral implements domain.ITOps.
func (m *Mock) OrderPeripheral(_ context.Context, userID, item string) (string, error) {
	m.called("order_peripheral", "user_id", userID, "item", item)
	return fmt.Sprintf("Order #ORD-%d placed for %s.", 10000+m.dir.intn(90000), item), nil
}

// RebootServer implements domain.ITOps. Production servers only reboot
// when the context carries an approval.
func (m *Mock) RebootServer(ctx context.Context, serverID string) (string, error) {
	m.called("reboot_server", "server_id", serverID, "approved", domain.IsApproved(ctx))
	if strings.Contains(strings.ToLower(serverID), "prod") && !domain.IsApproved(ctx) {
		return "DENIED: Production server reboot requires approval.", nil
	}
	return fmt.Sprintf("Server %s rebooting...", serverID), nil
}

// SubmitFacilityRequest implements domain.ITOps.
func (m *Mock) SubmitFacilityRequest(_ context.Context, location, issue string) (string, error) {
	m.called("submit_facility_request", "location", location, "issue", issue)
	return fmt.Sprintf("Facility Ticket #FAC-%d created.", 100+m.dir.intn(900)), nil
}

// CheckSystemHealth implements domain.ITOps.
func (m *Mock) CheckSystemHealth(_ context.Context, systemID string) (domain.SystemHealth, error) {
	m.called("check_system_health", "system_id", systemID)
	return m.dir.SystemHealth(systemID), nil
}

var _ domain.ITOps = (*Mock)(nil)
