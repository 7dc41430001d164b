package dropbox

import "context"

// Suite bundles one client per token class. The remote API scopes bearer
// tokens by operation: file access (team folders), member management
// (mutations), team information (reads), and a file-access token carrying
// an admin-impersonation header for sharing calls.
type Suite struct {
	File       *Client
	Management *Client
	Info       *Client
	Person     *Client
}

func (s *Suite) ListMembers(ctx context.Context) ([]TeamMember, error) {
	return s.Info.ListMembers(ctx)
}

func (s *Suite) ListGroups(ctx context.Context) ([]Group, error) {
	return s.Info.ListGroups(ctx)
}

func (s *Suite) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	return s.Info.ListGroupMembers(ctx, groupID)
}

func (s *Suite) GetTeamInfo(ctx context.Context) (*TeamInfo, error) {
	return s.Info.GetTeamInfo(ctx)
}

func (s *Suite) ListTeamFolders(ctx context.Context) ([]TeamFolder, error) {
	return s.File.ListTeamFolders(ctx)
}

func (s *Suite) CreateTeamFolder(ctx context.Context, name string) (string, error) {
	return s.File.CreateTeamFolder(ctx, name)
}

func (s *Suite) CreateGroup(ctx context.Context, name string) (string, error) {
	return s.Management.CreateGroup(ctx, name)
}

func (s *Suite) AddTeamMembers(ctx context.Context, members []NewMember, sendWelcome bool) ([]string, error) {
	return s.Management.AddTeamMembers(ctx, members, sendWelcome)
}

func (s *Suite) RemoveTeamMember(ctx context.Context, teamMemberID string, keepAccount, wipeData bool) error {
	return s.Management.RemoveTeamMember(ctx, teamMemberID, keepAccount, wipeData)
}

func (s *Suite) AddGroupMembers(ctx context.Context, groupID string, emails []string) error {
	return s.Management.AddGroupMembers(ctx, groupID, emails)
}

func (s *Suite) RemoveGroupMembers(ctx context.Context, groupID string, emails []string) error {
	return s.Management.RemoveGroupMembers(ctx, groupID, emails)
}

func (s *Suite) SetMemberProfile(ctx context.Context, user UserSelector, changes ProfileChanges) error {
	return s.Management.SetMemberProfile(ctx, user, changes)
}

func (s *Suite) SetAdminRole(ctx context.Context, teamMemberID, role string) error {
	return s.Management.SetAdminRole(ctx, teamMemberID, role)
}

func (s *Suite) AddFolderACL(ctx context.Context, folderID, groupID, role string) error {
	return s.Person.AddFolderACL(ctx, folderID, groupID, role)
}
