package dropbox

import (
	"context"
	"errors"

	"github.com/uoa-eresearch/teamsync/pkg/utils/errs"
)

// The members/add endpoint rejects batches of more than 20 records.
const AddBatchLimit = 20

const listPageLimit = 1000

// ListMembers drains the full team roster, following continuation cursors.
func (c *Client) ListMembers(ctx context.Context) ([]TeamMember, error) {
	var members []TeamMember

	resp, err := do[membersListResponse](ctx, c, epMembersList, listRequest{Limit: listPageLimit})
	for {
		if err != nil {
			return nil, err
		}

		members = append(members, resp.Members...)

		if !resp.HasMore {
			return members, nil
		}

		resp, err = do[membersListResponse](ctx, c, epMembersListContinue, cursorRequest{Cursor: resp.Cursor})
	}
}

// AddTeamMembers stages the records onto the team in batches of at most 20.
// Identifiers the remote service refused are returned; a refused batch does
// not stop the remaining batches. Only rate-limit exhaustion aborts early.
func (c *Client) AddTeamMembers(ctx context.Context, members []NewMember, sendWelcome bool) ([]string, error) {
	var rejected []string

	for start := 0; start < len(members); start += AddBatchLimit {
		end := min(start+AddBatchLimit, len(members))
		batch := members[start:end]

		records := make([]newMemberRecord, len(batch))
		for i, m := range batch {
			records[i] = newMemberRecord{
				MemberEmail:      m.Email,
				MemberGivenName:  m.GivenName,
				MemberSurname:    m.Surname,
				MemberExternalID: m.ExternalID,
				SendWelcomeEmail: sendWelcome,
				Role:             RoleMemberOnly,
			}
		}

		resp, err := do[memberAddResponse](ctx, c, epMembersAdd, struct {
			NewMembers []newMemberRecord `json:"new_members"`
		}{records})
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				return rejected, err
			}

			// The whole batch is unaccounted for; treat it as rejected so
			// nobody gets staged into groups under an unknown team state.
			c.logger.Error("add batch failed", "size", len(batch), "error", err)

			for _, m := range batch {
				rejected = append(rejected, m.Email)
			}

			continue
		}

		for _, r := range resp.Complete {
			if r.Tag == "user_on_another_team" && r.UserOnAnotherTeam != "" {
				c.logger.Warn("user already on another team", "email", r.UserOnAnotherTeam)
				rejected = append(rejected, r.UserOnAnotherTeam)
			}
		}
	}

	return rejected, nil
}

// RemoveTeamMember drops a member from the team. Data is never wiped when
// the account is being kept as a basic one.
func (c *Client) RemoveTeamMember(ctx context.Context, teamMemberID string, keepAccount, wipeData bool) error {
	if keepAccount {
		wipeData = false
	}

	return c.doDiscard(ctx, epMembersRemove, struct {
		User             UserSelector `json:"user"`
		KeepAccount      bool         `json:"keep_account"`
		WipeData         bool         `json:"wipe_data"`
		RetainTeamShares bool         `json:"retain_team_shares"`
	}{
		User:        SelectTeamMemberID(teamMemberID),
		KeepAccount: keepAccount,
		WipeData:    wipeData,
	})
}

// SetMemberProfile overwrites the non-zero fields of changes on the profile
// selected by user.
func (c *Client) SetMemberProfile(ctx context.Context, user UserSelector, changes ProfileChanges) error {
	return c.doDiscard(ctx, epMembersSetProfile, struct {
		User          UserSelector `json:"user"`
		NewEmail      string       `json:"new_email,omitempty"`
		NewExternalID string       `json:"new_external_id,omitempty"`
		NewGivenName  string       `json:"new_given_name,omitempty"`
		NewSurname    string       `json:"new_surname,omitempty"`
	}{
		User:          user,
		NewEmail:      changes.NewEmail,
		NewExternalID: changes.NewExternalID,
		NewGivenName:  changes.NewGivenName,
		NewSurname:    changes.NewSurname,
	})
}

// SetAdminRole changes a member's admin tier.
func (c *Client) SetAdminRole(ctx context.Context, teamMemberID, role string) error {
	switch role {
	case RoleMemberOnly, RoleTeamAdmin, RoleUserManagementAdmin, RoleSupportAdmin:
	default:
		return errs.Wrapf(ErrUnknownRole, role)
	}

	return c.doDiscard(ctx, epMembersSetAdmin, struct {
		User    UserSelector `json:"user"`
		NewRole string       `json:"new_role"`
	}{
		User:    SelectTeamMemberID(teamMemberID),
		NewRole: role,
	})
}

// GetTeamInfo returns team name and licence usage.
func (c *Client) GetTeamInfo(ctx context.Context) (*TeamInfo, error) {
	return do[TeamInfo](ctx, c, epTeamInfo, nil)
}
