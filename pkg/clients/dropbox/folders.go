package dropbox

import (
	"context"
	"net/http"

	"github.com/uoa-eresearch/teamsync/pkg/utils/errs"
)

// ListTeamFolders drains every team folder, following continuation cursors.
func (c *Client) ListTeamFolders(ctx context.Context) ([]TeamFolder, error) {
	var folders []TeamFolder

	resp, err := do[foldersListResponse](ctx, c, epTeamFolderList, listRequest{Limit: listPageLimit})
	for {
		if err != nil {
			return nil, err
		}

		folders = append(folders, resp.TeamFolders...)

		if !resp.HasMore {
			return folders, nil
		}

		resp, err = do[foldersListResponse](ctx, c, epTeamFolderListContinue, cursorRequest{Cursor: resp.Cursor})
	}
}

// CreateTeamFolder makes a new top-level team folder. A name already in use
// yields ErrConflict; callers re-resolve the id rather than fail.
func (c *Client) CreateTeamFolder(ctx context.Context, name string) (string, error) {
	resp, err := do[TeamFolder](ctx, c, epTeamFolderCreate, struct {
		Name string `json:"name"`
	}{name})
	if err != nil {
		if IsStatus(err, http.StatusConflict) {
			return "", errs.Wrap(ErrConflict, err)
		}

		return "", err
	}

	return resp.TeamFolderID, nil
}

// AddFolderACL grants a group access to a shared folder. role is editor or
// viewer.
func (c *Client) AddFolderACL(ctx context.Context, folderID, groupID, role string) error {
	if role != AccessEditor && role != AccessViewer {
		return errs.Wrapf(ErrUnknownRole, role)
	}

	type memberRef struct {
		Tag       string `json:".tag"`
		DropboxID string `json:"dropbox_id"`
	}

	type aclEntry struct {
		Member      memberRef `json:"member"`
		AccessLevel string    `json:"access_level"`
	}

	return c.doDiscard(ctx, epAddFolderMember, struct {
		SharedFolderID string     `json:"shared_folder_id"`
		Members        []aclEntry `json:"members"`
		Quiet          bool       `json:"quiet"`
	}{
		SharedFolderID: folderID,
		Members: []aclEntry{{
			Member:      memberRef{Tag: "dropbox_id", DropboxID: groupID},
			AccessLevel: role,
		}},
		Quiet: true,
	})
}
