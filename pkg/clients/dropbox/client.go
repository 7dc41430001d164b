package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/uoa-eresearch/teamsync/pkg/utils/errs"
	"github.com/uoa-eresearch/teamsync/pkg/utils/httpclient"
)

const (
	DefaultHost = "https://api.dropboxapi.com"

	apiName = "Dropbox"

	headerAuthorization = "Authorization"
	headerSelectAdmin   = "Dropbox-API-Select-Admin"

	// The API throttles aggressively. A 429 is retried with a linearly
	// growing sleep; the fifth consecutive 429 aborts the call.
	maxRateLimitRetries  = 4
	rateLimitBackoffStep = 15 * time.Second
)

const (
	epMembersList            = "/2/team/members/list"
	epMembersListContinue    = "/2/team/members/list/continue"
	epMembersAdd             = "/2/team/members/add"
	epMembersRemove          = "/2/team/members/remove"
	epMembersSetProfile      = "/2/team/members/set_profile"
	epMembersSetAdmin        = "/2/team/members/set_admin_permissions"
	epGroupsList             = "/2/team/groups/list"
	epGroupsListContinue     = "/2/team/groups/list/continue"
	epGroupsCreate           = "/2/team/groups/create"
	epGroupMembersList       = "/2/team/groups/members/list"
	epGroupMembersListCont   = "/2/team/groups/members/list/continue"
	epGroupMembersAdd        = "/2/team/groups/members/add"
	epGroupMembersRemove     = "/2/team/groups/members/remove"
	epTeamFolderList         = "/2/team/team_folder/list"
	epTeamFolderListContinue = "/2/team/team_folder/list/continue"
	epTeamFolderCreate       = "/2/team/team_folder/create"
	epAddFolderMember        = "/2/sharing/add_folder_member"
	epTeamInfo               = "/2/team/get_info"
)

var (
	ErrRateLimited = errors.New("rate limit retries exhausted")
	ErrConflict    = errors.New("name already in use remotely")
	ErrRequest     = errors.New("request failed")
	ErrUnknownRole = errors.New("unknown role")
)

// Client issues authenticated calls against one bearer token. Every remote
// operation is an HTTP POST with a JSON body; rate limiting is handled
// inside the client so callers see at most ErrRateLimited.
type Client struct {
	logger     hclog.Logger
	httpClient *http.Client
	host       string
	token      string
	adminID    string
	sleep      func(time.Duration)
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithAdminID sets the admin-impersonation header on every request, for
// per-user file operations performed on a team-scoped token.
func WithAdminID(id string) Option {
	return func(c *Client) {
		c.adminID = id
	}
}

func New(host, token string, logger hclog.Logger, opts ...Option) *Client {
	c := &Client{
		logger:     logger,
		httpClient: &http.Client{},
		host:       host,
		token:      token,
		sleep:      time.Sleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// roundTrip performs one logical call, retrying 429 responses with sleeps of
// attempt*15s. The response is returned whatever its status; only transport
// failures and exhausted retries produce an error.
func (c *Client) roundTrip(ctx context.Context, endpoint string, in any) (*http.Response, error) {
	payload, err := marshalBody(in)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		req, err := c.newRequest(ctx, endpoint, payload)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errs.Wrap(ErrRequest, err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		drain(resp)

		if attempt > maxRateLimitRetries {
			return nil, errs.Wrapf(ErrRateLimited, endpoint)
		}

		c.logger.Warn("too many requests, backing off",
			"endpoint", endpoint, "attempt", attempt)
		c.sleep(time.Duration(attempt) * rateLimitBackoffStep)
	}
}

func (c *Client) newRequest(ctx context.Context, endpoint string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(headerAuthorization, "Bearer "+c.token)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.adminID != "" {
		req.Header.Set(headerSelectAdmin, c.adminID)
	}

	return req, nil
}

func do[T any](ctx context.Context, c *Client, endpoint string, in any) (*T, error) {
	resp, err := c.roundTrip(ctx, endpoint, in)
	if err != nil {
		return nil, err
	}

	defer drain(resp)

	return httpclient.DecodeResponse[T](ctx, apiName, resp, http.StatusOK)
}

// doDiscard is for calls whose response body carries nothing the sync needs.
func (c *Client) doDiscard(ctx context.Context, endpoint string, in any) error {
	resp, err := c.roundTrip(ctx, endpoint, in)
	if err != nil {
		return err
	}

	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		_, err = httpclient.DecodeResponse[struct{}](ctx, apiName, resp, http.StatusOK)
		return err
	}

	return nil
}

func marshalBody(in any) ([]byte, error) {
	if in == nil {
		return nil, nil
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	return payload, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// IsStatus reports whether err is a remote API failure with the given
// HTTP status code.
func IsStatus(err error, code int) bool {
	var statusErr *httpclient.StatusError

	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
