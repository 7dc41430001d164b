package directory

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"

	"github.com/uoa-eresearch/teamsync/internal/identity"
	"github.com/uoa-eresearch/teamsync/pkg/utils/errs"
)

var (
	ErrNotFound    = errors.New("no directory entry")
	ErrUnavailable = errors.New("directory search failed")
	ErrDial        = errors.New("failed to connect to the directory")
	ErrBind        = errors.New("directory bind failed")
)

// Attribute names carried by user entries, mapped onto identity.Member.
const (
	attrLogin     = "cn"
	attrSurname   = "sn"
	attrGivenName = "givenName"
	attrMail      = "mail"
	attrMember    = "member"
)

var userAttributes = []string{attrLogin, attrSurname, attrGivenName, attrMail}

type Config struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string
	GroupsDN     string
	Timeout      time.Duration
	TLS          *tls.Config
}

type searcher interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
}

// Client is a thin search-and-bind wrapper around the organisational
// directory. It is stateless apart from the underlying connection.
type Client struct {
	conn     searcher
	close    func()
	baseDN   string
	groupsDN string
	logger   hclog.Logger
}

func Dial(cfg Config, logger hclog.Logger) (*Client, error) {
	opts := []ldap.DialOpt{}
	if cfg.TLS != nil {
		opts = append(opts, ldap.DialWithTLSConfig(cfg.TLS))
	}

	conn, err := ldap.DialURL(cfg.URL, opts...)
	if err != nil {
		return nil, errs.Wrap(ErrDial, err)
	}

	if cfg.Timeout > 0 {
		conn.SetTimeout(cfg.Timeout)
	}

	err = conn.Bind(cfg.BindDN, cfg.BindPassword)
	if err != nil {
		_ = conn.Close()
		return nil, errs.Wrap(ErrBind, err)
	}

	return &Client{
		conn:     conn,
		close:    func() { _ = conn.Close() },
		baseDN:   cfg.BaseDN,
		groupsDN: cfg.GroupsDN,
		logger:   logger,
	}, nil
}

func (c *Client) Close() {
	if c.close != nil {
		c.close()
	}
}

// LookupUser fetches a single user entry by login name. Only the first entry
// is used.
func (c *Client) LookupUser(login string) (identity.Member, error) {
	filter := fmt.Sprintf("(&(objectCategory=user)(cn=%s))", ldap.EscapeFilter(login))

	return c.lookup(filter)
}

// LookupUserByEmail fetches a single user entry by its mail attribute.
func (c *Client) LookupUserByEmail(email string) (identity.Member, error) {
	filter := fmt.Sprintf("(&(objectCategory=user)(mail=%s))", ldap.EscapeFilter(email))

	return c.lookup(filter)
}

func (c *Client) lookup(filter string) (identity.Member, error) {
	req := ldap.NewSearchRequest(
		c.baseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		filter,
		userAttributes,
		nil,
	)

	result, err := c.conn.Search(req)
	if err != nil {
		// A size-limit overrun still returns the first entry.
		if result == nil || len(result.Entries) == 0 {
			return identity.Member{}, errs.Wrap(ErrUnavailable, err)
		}
	}

	if len(result.Entries) == 0 {
		return identity.Member{}, ErrNotFound
	}

	return memberFromEntry(result.Entries[0]), nil
}

// GroupMembers walks the group's member attribute and resolves every member
// DN to a user lookup. A failed or empty search result set yields
// ErrUnavailable, distinct from a group that exists with zero members.
func (c *Client) GroupMembers(groupName string) ([]identity.Member, error) {
	filter := fmt.Sprintf("(&(objectCategory=group)(cn=%s))", ldap.EscapeFilter(groupName))
	req := ldap.NewSearchRequest(
		c.groupsDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{attrMember},
		nil,
	)

	result, err := c.conn.Search(req)
	if err != nil {
		return nil, errs.Wrap(ErrUnavailable, err)
	}

	if len(result.Entries) == 0 {
		return nil, errs.Wrapf(ErrUnavailable, "no result for group "+groupName)
	}

	members := []identity.Member{}

	for _, dn := range result.Entries[0].GetAttributeValues(attrMember) {
		login, err := firstRDNValue(dn)
		if err != nil {
			c.logger.Warn("skipping unparseable member DN", "group", groupName, "dn", dn)
			continue
		}

		member, err := c.LookupUser(login)
		if err != nil {
			c.logger.Warn("skipping group member without a user entry",
				"group", groupName, "login", login, "error", err)
			continue
		}

		members = append(members, member)
	}

	return members, nil
}

// IsMemberOf reports whether the user entry carries the group in its
// memberOf attribute. The group's OU is the part of its name after the
// last dot.
func (c *Client) IsMemberOf(login, groupName string) (bool, error) {
	groupDN := fmt.Sprintf("CN=%s,OU=%s,%s", groupName, groupOU(groupName), c.groupsDN)
	filter := fmt.Sprintf("(&(objectCategory=person)(objectClass=user)(memberOf=%s)(cn=%s))",
		ldap.EscapeFilter(groupDN), ldap.EscapeFilter(login))

	req := ldap.NewSearchRequest(
		c.baseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		filter,
		[]string{attrLogin},
		nil,
	)

	result, err := c.conn.Search(req)
	if err != nil {
		if result == nil || len(result.Entries) == 0 {
			return false, errs.Wrap(ErrUnavailable, err)
		}
	}

	return len(result.Entries) > 0, nil
}

func memberFromEntry(entry *ldap.Entry) identity.Member {
	return identity.Member{
		ExternalID: strings.TrimSpace(entry.GetAttributeValue(attrLogin)),
		Email:      strings.TrimSpace(entry.GetAttributeValue(attrMail)),
		GivenName:  strings.TrimSpace(entry.GetAttributeValue(attrGivenName)),
		Surname:    strings.TrimSpace(entry.GetAttributeValue(attrSurname)),
		Role:       identity.RoleMemberOnly,
	}
}

func firstRDNValue(dn string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", err
	}

	if len(parsed.RDNs) == 0 || len(parsed.RDNs[0].Attributes) == 0 {
		return "", fmt.Errorf("empty DN %q", dn)
	}

	return parsed.RDNs[0].Attributes[0].Value, nil
}

func groupOU(groupName string) string {
	if i := strings.LastIndex(groupName, "."); i >= 0 {
		return groupName[i+1:]
	}

	return groupName
}
