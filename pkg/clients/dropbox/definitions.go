package dropbox

// Tagged holds the ".tag" discriminator of the API's union types.
type Tagged struct {
	Tag string `json:".tag"`
}

// UserSelector identifies a team member in mutation calls. Exactly one of
// the id fields is set, named by Tag.
type UserSelector struct {
	Tag          string `json:".tag"`
	TeamMemberID string `json:"team_member_id,omitempty"`
	ExternalID   string `json:"external_id,omitempty"`
	Email        string `json:"email,omitempty"`
}

func SelectEmail(email string) UserSelector {
	return UserSelector{Tag: "email", Email: email}
}

func SelectTeamMemberID(id string) UserSelector {
	return UserSelector{Tag: "team_member_id", TeamMemberID: id}
}

func SelectExternalID(id string) UserSelector {
	return UserSelector{Tag: "external_id", ExternalID: id}
}

type MemberName struct {
	GivenName string `json:"given_name"`
	Surname   string `json:"surname"`
}

type MemberProfile struct {
	TeamMemberID string     `json:"team_member_id"`
	ExternalID   string     `json:"external_id"`
	Email        string     `json:"email"`
	Name         MemberName `json:"name"`
}

type TeamMember struct {
	Profile MemberProfile `json:"profile"`
	Role    Tagged        `json:"role"`
}

type Group struct {
	GroupName       string `json:"group_name"`
	GroupID         string `json:"group_id"`
	GroupExternalID string `json:"group_external_id"`
}

const FolderStatusActive = "active"

type TeamFolder struct {
	TeamFolderID string `json:"team_folder_id"`
	Name         string `json:"name"`
	Status       Tagged `json:"status"`
}

func (f TeamFolder) Active() bool {
	return f.Status.Tag == FolderStatusActive
}

// NewMember is one record staged for a team add.
type NewMember struct {
	Email      string
	GivenName  string
	Surname    string
	ExternalID string
}

// ProfileChanges lists profile fields to overwrite; zero fields are left
// untouched remotely.
type ProfileChanges struct {
	NewEmail      string
	NewExternalID string
	NewGivenName  string
	NewSurname    string
}

type TeamInfo struct {
	Name                string `json:"name"`
	NumLicensedUsers    int    `json:"num_licensed_users"`
	NumProvisionedUsers int    `json:"num_provisioned_users"`
}

// Folder access roles.
const (
	AccessEditor = "editor"
	AccessViewer = "viewer"
)

// Admin roles accepted by SetAdminRole.
const (
	RoleMemberOnly          = "member_only"
	RoleTeamAdmin           = "team_admin"
	RoleUserManagementAdmin = "user_management_admin"
	RoleSupportAdmin        = "support_admin"
)

type listRequest struct {
	Limit int `json:"limit"`
}

type cursorRequest struct {
	Cursor string `json:"cursor"`
}

type membersListResponse struct {
	Members []TeamMember `json:"members"`
	Cursor  string       `json:"cursor"`
	HasMore bool         `json:"has_more"`
}

type groupsListResponse struct {
	Groups  []Group `json:"groups"`
	Cursor  string  `json:"cursor"`
	HasMore bool    `json:"has_more"`
}

type foldersListResponse struct {
	TeamFolders []TeamFolder `json:"team_folders"`
	Cursor      string       `json:"cursor"`
	HasMore     bool         `json:"has_more"`
}

type groupSelector struct {
	Tag     string `json:".tag"`
	GroupID string `json:"group_id"`
}

func selectGroup(groupID string) groupSelector {
	return groupSelector{Tag: "group_id", GroupID: groupID}
}

type groupMemberEntry struct {
	Profile MemberProfile `json:"profile"`
}

type groupMembersListResponse struct {
	Members []groupMemberEntry `json:"members"`
	Cursor  string             `json:"cursor"`
	HasMore bool               `json:"has_more"`
}

type newMemberRecord struct {
	MemberEmail      string `json:"member_email"`
	MemberGivenName  string `json:"member_given_name"`
	MemberSurname    string `json:"member_surname"`
	MemberExternalID string `json:"member_external_id"`
	SendWelcomeEmail bool   `json:"send_welcome_email"`
	Role             string `json:"role"`
}

type memberAddResult struct {
	Tag               string `json:".tag"`
	UserOnAnotherTeam string `json:"user_on_another_team,omitempty"`
}

type memberAddResponse struct {
	Complete []memberAddResult `json:"complete"`
}
