package identity

import (
	"errors"
	"strings"
)

var ErrUnknownRole = errors.New("unknown team role")

// Role is a remote team admin tier.
type Role string

const (
	RoleMemberOnly          Role = "member_only"
	RoleTeamAdmin           Role = "team_admin"
	RoleUserManagementAdmin Role = "user_management_admin"
	RoleSupportAdmin        Role = "support_admin"
)

// ParseRole normalises a human-entered role ("Team admin") to the wire tag.
// An empty input means member_only.
func ParseRole(s string) (Role, error) {
	normalised := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")

	switch Role(normalised) {
	case "":
		return RoleMemberOnly, nil
	case RoleMemberOnly, RoleTeamAdmin, RoleUserManagementAdmin, RoleSupportAdmin:
		return Role(normalised), nil
	default:
		return "", ErrUnknownRole
	}
}

// Member is one resolved directory identity. ExternalID is the directory
// login and the stable cross-system key; Email is the join key to the remote
// roster but is not guaranteed unique there.
type Member struct {
	ExternalID string
	Email      string
	GivenName  string
	Surname    string
	Role       Role

	// BadEmail is set once an email repair attempt failed. The member is
	// then excluded from group add/remove operations for the rest of the run.
	BadEmail bool
}
