package chat

import (
	"fmt"
	"strings"
)

// Role is the closed set of principal kinds.
type Role int

const (
	RoleUnknown Role = iota
	RoleMember
	RoleAdmin
	RoleClient
)

var roleNames = map[Role]string{
	RoleMember: "member",
	RoleAdmin:  "admin",
	RoleClient: "client",
}

// ParseRole maps a role claim to a Role. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "member", "user", "employee":
		return RoleMember, nil
	case "admin", "staff":
		return RoleAdmin, nil
	case "client":
		return RoleClient, nil
	}
	return RoleUnknown, fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RolePolicy captures what a viewer of a given role may observe about other principals.
type RolePolicy struct {
	// SeesIdentities allows the viewer to receive other principals' ids and display names.
	SeesIdentities bool
	// SeesTyping allows the viewer to receive typing indicators.
	SeesTyping bool
}

var rolePolicies = map[Role]RolePolicy{
	RoleMember: {SeesIdentities: true, SeesTyping: true},
	RoleAdmin:  {SeesIdentities: true, SeesTyping: true},
	RoleClient: {SeesIdentities: false, SeesTyping: false},
}

// PolicyFor returns the policy for role. Unknown roles get the most restrictive policy.
func PolicyFor(role Role) RolePolicy {
	if p, ok := rolePolicies[role]; ok {
		return p
	}
	return RolePolicy{}
}

// FallbackTenantBrand is shown in place of a tenant name that is not on record.
const FallbackTenantBrand = "Company"

// TenantBrand returns name, or FallbackTenantBrand when name is blank.
func TenantBrand(name string) string {
	if strings.TrimSpace(name) == "" {
		return FallbackTenantBrand
	}
	return name
}

// ViewName returns the author name a viewer should see on a message.
// Authors always see their own real name; clients only ever see a tenant brand.
func ViewName(viewer Principal, msg *Message) string {
	if viewer.ID == msg.AuthorID {
		return msg.AuthorDisplayName
	}
	if !PolicyFor(viewer.Role).SeesIdentities {
		return TenantBrand(msg.AuthorTenantName)
	}
	return msg.AuthorDisplayName
}
