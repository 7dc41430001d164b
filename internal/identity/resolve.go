package identity

import (
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Resolver maps a raw directory record to its canonical member record:
// lowercased email, override substitution, and a synthetic institutional
// address when the directory holds an outside one.
//
// Resolution is idempotent: the same record and overrides always yield the
// same member.
type Resolver struct {
	domains  []string
	fallback string
	logger   hclog.Logger

	warned map[string]bool
}

func NewResolver(domains []string, fallbackDomain string, logger hclog.Logger) *Resolver {
	return &Resolver{
		domains:  domains,
		fallback: fallbackDomain,
		logger:   logger,
		warned:   make(map[string]bool),
	}
}

// Resolve returns m with its effective email set. An override email always
// wins over the directory one. Addresses outside the institutional domains
// (including an empty directory mail attribute) are replaced with
// "<login>@<fallback domain>", warned once per address per run.
func (r *Resolver) Resolve(m Member, overrides Overrides) Member {
	m.Email = strings.ToLower(m.Email)

	if ov, ok := overrides[m.ExternalID]; ok && ov.Email != "" {
		m.Email = ov.Email
	}

	if r.institutional(m.Email) {
		return m
	}

	synthetic := strings.ToLower(m.ExternalID + "@" + r.fallback)

	if !r.warned[synthetic] {
		r.warned[synthetic] = true
		r.logger.Warn("non-institutional email address, using synthetic one",
			"login", m.ExternalID, "email", m.Email,
			"surname", m.Surname, "given_name", m.GivenName,
			"using", synthetic)
	}

	m.Email = synthetic

	return m
}

func (r *Resolver) institutional(email string) bool {
	local, domain, found := strings.Cut(email, "@")
	if !found || local == "" {
		return false
	}

	for _, d := range r.domains {
		if domain == d {
			return true
		}
	}

	return false
}
