package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

var ErrReadOverrides = errors.New("failed to read overrides file")

// commentKey is reserved in the overrides file for operator notes.
const commentKey = "comment"

const expiryLayout = "2006-01-02"

// Override is an operator-supplied exception entry keyed by directory login.
// It may force an email, assign an admin role and add the member to extra
// remote groups. It never creates a directory identity.
type Override struct {
	Email   string
	Role    Role
	Groups  []string
	Note    string
	Expires time.Time
}

type Overrides map[string]Override

type rawOverride struct {
	Email   string          `json:"email"`
	Role    string          `json:"role"`
	Group   json.RawMessage `json:"group"`
	Note    string          `json:"note"`
	Expires string          `json:"expires"`
}

// LoadOverrides parses the exceptions file. The reserved comment key and
// entries whose expiry is not after now are dropped, as if absent.
func LoadOverrides(path string, now time.Time, logger hclog.Logger) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadOverrides, err)
	}

	var raw map[string]rawOverride

	err = json.Unmarshal(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadOverrides, err)
	}

	overrides := make(Overrides, len(raw))

	for login, r := range raw {
		if login == commentKey {
			continue
		}

		expires, err := time.Parse(expiryLayout, r.Expires)
		if err != nil {
			logger.Warn("override has an unparseable expiry, skipping", "login", login, "expires", r.Expires)
			continue
		}

		if !expires.After(now) {
			continue
		}

		role, err := ParseRole(r.Role)
		if err != nil {
			logger.Warn("override has an unknown role, using member_only", "login", login, "role", r.Role)

			role = RoleMemberOnly
		}

		overrides[login] = Override{
			Email:   strings.ToLower(r.Email),
			Role:    role,
			Groups:  parseGroups(r.Group),
			Note:    r.Note,
			Expires: expires,
		}
	}

	return overrides, nil
}

// The group field has historically been either a single name or a list.
func parseGroups(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}

	return nil
}
