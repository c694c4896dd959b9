// Package workflow selects and runs scripted IT operations, gating the
// sensitive ones behind human approval.
package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"helpdesk-ai/internal/domain"
)

// OpKind names one operation in the closed catalog.
type OpKind string

const (
	OpCheckVPNStatus           OpKind = "check_vpn_status"
	OpUnlockAccount            OpKind = "unlock_account"
	OpProvisionLicense         OpKind = "provision_license"
	OpResetMFA                 OpKind = "reset_mfa"
	OpOnboardUser              OpKind = "onboard_user"
	OpOffboardUser             OpKind = "offboard_user"
	OpGrantTempAdmin           OpKind = "grant_temp_admin"
	OpCheckHardwareEligibility OpKind = "check_hardware_eligibility"
	OpOrderPeripheral          OpKind = "order_peripheral"
	OpRebootServer             OpKind = "reboot_server"
	OpSubmitFacilityRequest    OpKind = "submit_facility_request"
)

// Args are operation arguments as decoded from JSON.
type Args map[string]any

// String returns the argument as a string, or "".
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the argument as an int, or 0.
func (a Args) Int(key string) int {
	switch v := a[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	return 0
}

// Strings flattens the arguments for storage in conversation state.
func (a Args) Strings() map[string]string {
	out := make(map[string]string, len(a))
	for k := range a {
		out[k] = a.String(k)
	}
	return out
}

// Op describes one catalog entry.
type Op struct {
	Kind        OpKind
	Description string
	// Schema is the JSON Schema of the arguments object.
	Schema string
	// intArgs are decoded as integers when restored from strings.
	intArgs []string

	compiled *jsonschema.Schema
}

// NeedsUser reports whether the op acts on a user id.
func (o Op) NeedsUser() bool {
	return strings.Contains(o.Schema, `"user_id"`)
}

// Validate checks args against the op's schema.
func (o Op) Validate(args Args) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return domain.NewDomainError("Op.Validate", domain.ErrInvalidArguments, err.Error())
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.NewDomainError("Op.Validate", domain.ErrInvalidArguments, err.Error())
	}
	if err := o.compiled.Validate(v); err != nil {
		return domain.NewDomainError("Op.Validate", domain.ErrInvalidArguments, fmt.Sprintf("%s: %v", o.Kind, err))
	}
	return nil
}

// Restore rebuilds typed arguments from their string form.
func (o Op) Restore(flat map[string]string) Args {
	args := make(Args, len(flat))
	for k, v := range flat {
		args[k] = v
	}
	for _, k := range o.intArgs {
		if s, ok := flat[k]; ok {
			if n, err := strconv.Atoi(s); err == nil {
				args[k] = float64(n)
			}
		}
	}
	return args
}

const (
	userSchema = `{"type":"object","required":["user_id"],"properties":{"user_id":{"type":"string","minLength":1}}}`
)

var catalog = []Op{
	{Kind: OpCheckVPNStatus, Description: "Check VPN connection status. Args: user_id", Schema: userSchema},
	{Kind: OpUnlockAccount, Description: "Unlock a user account. Args: user_id", Schema: userSchema},
	{
		Kind:        OpProvisionLicense,
		Description: "Provision software license. Args: user_id, software_name",
		Schema: `{"type":"object","required":["user_id","software_name"],"properties":{
			"user_id":{"type":"string","minLength":1},
			"software_name":{"type":"string","minLength":1}}}`,
	},
	{Kind: OpResetMFA, Description: "Reset Multi-Factor Authentication (MFA/2FA). Args: user_id", Schema: userSchema},
	{
		Kind:        OpOnboardUser,
		Description: "Onboard a new employee. Args: name, department",
		Schema: `{"type":"object","required":["name","department"],"properties":{
			"name":{"type":"string","minLength":1},
			"department":{"type":"string","minLength":1}}}`,
	},
	{Kind: OpOffboardUser, Description: "Offboard/Disable a user. Args: user_id", Schema: userSchema},
	{
		Kind:        OpGrantTempAdmin,
		Description: "Grant temporary admin/sudo access. Args: user_id, duration_hours",
		Schema: `{"type":"object","required":["user_id","duration_hours"],"properties":{
			"user_id":{"type":"string","minLength":1},
			"duration_hours":{"type":"integer","minimum":1,"maximum":72}}}`,
		intArgs: []string{"duration_hours"},
	},
	{Kind: OpCheckHardwareEligibility, Description: "Check if user is eligible for laptop refresh. Args: user_id", Schema: userSchema},
	{
		Kind:        OpOrderPeripheral,
		Description: "Order hardware peripherals (monitor, mouse, keyboard). Args: user_id, item",
		Schema: `{"type":"object","required":["user_id","item"],"properties":{
			"user_id":{"type":"string","minLength":1},
			"item":{"type":"string","minLength":1}}}`,
	},
	{
		Kind:        OpRebootServer,
		Description: "Reboot a server. Args: server_id",
		Schema: `{"type":"object","required":["server_id"],"properties":{
			"server_id":{"type":"string","minLength":1}}}`,
	},
	{
		Kind:        OpSubmitFacilityRequest,
		Description: "Report facility issues (meeting rooms, printers). Args: location, issue",
		Schema: `{"type":"object","required":["location","issue"],"properties":{
			"location":{"type":"string","minLength":1},
			"issue":{"type":"string","minLength":1}}}`,
	},
}

var byKind = func() map[OpKind]*Op {
	m := make(map[OpKind]*Op, len(catalog))
	for i := range catalog {
		op := &catalog[i]
		c := jsonschema.NewCompiler()
		name := string(op.Kind) + ".json"
		if err := c.AddResource(name, bytes.NewReader([]byte(op.Schema))); err != nil {
			panic(fmt.Sprintf("workflow: add schema %s: %v", op.Kind, err))
		}
		s, err := c.Compile(name)
		if err != nil {
			panic(fmt.Sprintf("workflow: compile schema %s: %v", op.Kind, err))
		}
		op.compiled = s
		m[op.Kind] = op
	}
	return m
}()

// Catalog returns every operation in declaration order.
func Catalog() []Op {
	out := make([]Op, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the operation named kind.
func Lookup(kind OpKind) (Op, error) {
	op, ok := byKind[kind]
	if !ok {
		return Op{}, domain.NewDomainError("workflow.Lookup", domain.ErrUnknownOperation, string(kind))
	}
	return *op, nil
}

// ParseOpKind maps a name to a catalog entry. "None" and "" map to "" with
// no error.
func ParseOpKind(name string) (OpKind, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "none") || strings.EqualFold(name, "null") {
		return "", nil
	}
	k := OpKind(strings.ToLower(name))
	if _, ok := byKind[k]; !ok {
		return "", domain.NewDomainError("workflow.ParseOpKind", domain.ErrUnknownOperation, name)
	}
	return k, nil
}

// IsSensitive reports whether running kind with args needs a human approval.
func IsSensitive(kind OpKind, args Args) bool {
	switch kind {
	case OpOffboardUser, OpGrantTempAdmin:
		return true
	case OpRebootServer:
		return strings.Contains(strings.ToLower(args.String("server_id")), "prod")
	}
	return false
}

// Descriptions renders the catalog for a selection prompt.
func Descriptions() string {
	var b strings.Builder
	for _, op := range catalog {
		fmt.Fprintf(&b, "- %s: %s\n", op.Kind, op.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
