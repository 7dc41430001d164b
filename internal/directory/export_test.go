package directory

import (
	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
)

type SearchFunc func(req *ldap.SearchRequest) (*ldap.SearchResult, error)

func (f SearchFunc) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	return f(req)
}

func NewTestClient(search SearchFunc, baseDN, groupsDN string, logger hclog.Logger) *Client {
	return &Client{
		conn:     search,
		baseDN:   baseDN,
		groupsDN: groupsDN,
		logger:   logger,
	}
}
