package dropbox

import (
	"context"
	"net/http"

	"github.com/uoa-eresearch/teamsync/pkg/utils/errs"
)

// ListGroups drains every team group, following continuation cursors.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group

	resp, err := do[groupsListResponse](ctx, c, epGroupsList, listRequest{Limit: listPageLimit})
	for {
		if err != nil {
			return nil, err
		}

		groups = append(groups, resp.Groups...)

		if !resp.HasMore {
			return groups, nil
		}

		resp, err = do[groupsListResponse](ctx, c, epGroupsListContinue, cursorRequest{Cursor: resp.Cursor})
	}
}

// CreateGroup makes a company-managed group. The group's external id is set
// to its name, since the API cannot look groups up by name alone.
func (c *Client) CreateGroup(ctx context.Context, name string) (string, error) {
	resp, err := do[Group](ctx, c, epGroupsCreate, struct {
		GroupName           string `json:"group_name"`
		GroupExternalID     string `json:"group_external_id"`
		GroupManagementType string `json:"group_management_type"`
	}{
		GroupName:           name,
		GroupExternalID:     name,
		GroupManagementType: "company_managed",
	})
	if err != nil {
		if IsStatus(err, http.StatusConflict) {
			return "", errs.Wrap(ErrConflict, err)
		}

		return "", err
	}

	return resp.GroupID, nil
}

// ListGroupMembers returns the email addresses currently in the group.
func (c *Client) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	emails := []string{}

	resp, err := do[groupMembersListResponse](ctx, c, epGroupMembersList, struct {
		Group groupSelector `json:"group"`
	}{selectGroup(groupID)})
	for {
		if err != nil {
			return nil, err
		}

		for _, m := range resp.Members {
			emails = append(emails, m.Profile.Email)
		}

		if !resp.HasMore {
			return emails, nil
		}

		resp, err = do[groupMembersListResponse](ctx, c, epGroupMembersListCont, cursorRequest{Cursor: resp.Cursor})
	}
}

// AddGroupMembers adds the addresses to the group. Addresses already in the
// group are accepted silently by the remote service.
func (c *Client) AddGroupMembers(ctx context.Context, groupID string, emails []string) error {
	type groupMemberAccess struct {
		User       UserSelector `json:"user"`
		AccessType string       `json:"access_type"`
	}

	members := make([]groupMemberAccess, len(emails))
	for i, e := range emails {
		members[i] = groupMemberAccess{User: SelectEmail(e), AccessType: "member"}
	}

	return c.doDiscard(ctx, epGroupMembersAdd, struct {
		Group   groupSelector       `json:"group"`
		Members []groupMemberAccess `json:"members"`
	}{selectGroup(groupID), members})
}

// RemoveGroupMembers drops the addresses from the group.
func (c *Client) RemoveGroupMembers(ctx context.Context, groupID string, emails []string) error {
	users := make([]UserSelector, len(emails))
	for i, e := range emails {
		users[i] = SelectEmail(e)
	}

	return c.doDiscard(ctx, epGroupMembersRemove, struct {
		Group groupSelector  `json:"group"`
		Users []UserSelector `json:"users"`
	}{selectGroup(groupID), users})
}
