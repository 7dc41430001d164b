package sync_test

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/uoa-eresearch/teamsync/internal/directory"
	"github.com/uoa-eresearch/teamsync/internal/identity"
	"github.com/uoa-eresearch/teamsync/pkg/clients/dropbox"
)

type fakeDirectory struct {
	users       map[string]identity.Member
	groups      map[string][]identity.Member
	memberships map[string]map[string]bool
	groupErrs   map[string]int
	groupCalls  map[string]int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:       make(map[string]identity.Member),
		groups:      make(map[string][]identity.Member),
		memberships: make(map[string]map[string]bool),
		groupErrs:   make(map[string]int),
		groupCalls:  make(map[string]int),
	}
}

func (d *fakeDirectory) LookupUser(login string) (identity.Member, error) {
	m, ok := d.users[login]
	if !ok {
		return identity.Member{}, directory.ErrNotFound
	}

	return m, nil
}

func (d *fakeDirectory) LookupUserByEmail(email string) (identity.Member, error) {
	for _, m := range d.users {
		if strings.EqualFold(m.Email, email) {
			return m, nil
		}
	}

	return identity.Member{}, directory.ErrNotFound
}

func (d *fakeDirectory) GroupMembers(groupName string) ([]identity.Member, error) {
	d.groupCalls[groupName]++

	if d.groupErrs[groupName] > 0 {
		d.groupErrs[groupName]--
		return nil, directory.ErrUnavailable
	}

	members, ok := d.groups[groupName]
	if !ok {
		return nil, directory.ErrUnavailable
	}

	return members, nil
}

func (d *fakeDirectory) IsMemberOf(login, groupName string) (bool, error) {
	return d.memberships[groupName][login], nil
}

type aclCall struct {
	folderID string
	groupID  string
	role     string
}

type profileCall struct {
	user    dropbox.UserSelector
	changes dropbox.ProfileChanges
}

type adminCall struct {
	teamMemberID string
	role         string
}

type fakeTeam struct {
	members      []dropbox.TeamMember
	groups       map[string]string
	groupMembers map[string][]string
	folders      map[string]string

	nextID int

	// conflictFolder simulates a folder created by another actor between
	// the snapshot read and the create call.
	conflictFolder string
	rejectEmails   map[string]bool
	profileErr     error

	createdGroups  []string
	createdFolders []string
	teamAdds       [][]dropbox.NewMember
	groupAdds      map[string][]string
	groupRemoves   map[string][]string
	acls           []aclCall
	profileCalls   []profileCall
	adminCalls     []adminCall
}

func newFakeTeam() *fakeTeam {
	return &fakeTeam{
		groups:       make(map[string]string),
		groupMembers: make(map[string][]string),
		folders:      make(map[string]string),
		rejectEmails: make(map[string]bool),
		groupAdds:    make(map[string][]string),
		groupRemoves: make(map[string][]string),
	}
}

func (f *fakeTeam) addRemoteMember(teamMemberID, externalID, email string) {
	f.members = append(f.members, dropbox.TeamMember{
		Profile: dropbox.MemberProfile{
			TeamMemberID: teamMemberID,
			ExternalID:   externalID,
			Email:        email,
		},
		Role: dropbox.Tagged{Tag: dropbox.RoleMemberOnly},
	})
}

func (f *fakeTeam) addRemoteGroup(name string, emails ...string) string {
	f.nextID++
	id := fmt.Sprintf("g:%d", f.nextID)
	f.groups[name] = id
	f.groupMembers[id] = emails

	return id
}

func (f *fakeTeam) mutationCount() int {
	n := len(f.createdGroups) + len(f.createdFolders) + len(f.teamAdds) +
		len(f.profileCalls) + len(f.adminCalls)

	for _, emails := range f.groupAdds {
		n += len(emails)
	}

	for _, emails := range f.groupRemoves {
		n += len(emails)
	}

	return n
}

func (f *fakeTeam) ListMembers(context.Context) ([]dropbox.TeamMember, error) {
	return append([]dropbox.TeamMember{}, f.members...), nil
}

func (f *fakeTeam) ListGroups(context.Context) ([]dropbox.Group, error) {
	groups := make([]dropbox.Group, 0, len(f.groups))
	for name, id := range f.groups {
		groups = append(groups, dropbox.Group{GroupName: name, GroupID: id, GroupExternalID: name})
	}

	return groups, nil
}

func (f *fakeTeam) ListTeamFolders(context.Context) ([]dropbox.TeamFolder, error) {
	folders := make([]dropbox.TeamFolder, 0, len(f.folders))
	for name, id := range f.folders {
		folders = append(folders, dropbox.TeamFolder{
			TeamFolderID: id,
			Name:         name,
			Status:       dropbox.Tagged{Tag: dropbox.FolderStatusActive},
		})
	}

	return folders, nil
}

func (f *fakeTeam) ListGroupMembers(_ context.Context, groupID string) ([]string, error) {
	return append([]string{}, f.groupMembers[groupID]...), nil
}

func (f *fakeTeam) GetTeamInfo(context.Context) (*dropbox.TeamInfo, error) {
	return &dropbox.TeamInfo{
		Name:                "Fake Team",
		NumLicensedUsers:    100,
		NumProvisionedUsers: len(f.members),
	}, nil
}

func (f *fakeTeam) CreateGroup(_ context.Context, name string) (string, error) {
	if _, exists := f.groups[name]; exists {
		return "", dropbox.ErrConflict
	}

	f.createdGroups = append(f.createdGroups, name)

	return f.addRemoteGroup(name), nil
}

func (f *fakeTeam) CreateTeamFolder(_ context.Context, name string) (string, error) {
	if name == f.conflictFolder {
		f.conflictFolder = ""
		f.nextID++
		f.folders[name] = fmt.Sprintf("tf:%d", f.nextID)

		return "", dropbox.ErrConflict
	}

	if _, exists := f.folders[name]; exists {
		return "", dropbox.ErrConflict
	}

	f.createdFolders = append(f.createdFolders, name)
	f.nextID++
	id := fmt.Sprintf("tf:%d", f.nextID)
	f.folders[name] = id

	return id, nil
}

func (f *fakeTeam) AddTeamMembers(_ context.Context, members []dropbox.NewMember, _ bool) ([]string, error) {
	f.teamAdds = append(f.teamAdds, members)

	var rejected []string

	for _, m := range members {
		if f.rejectEmails[strings.ToLower(m.Email)] {
			rejected = append(rejected, m.Email)
			continue
		}

		f.nextID++
		f.members = append(f.members, dropbox.TeamMember{
			Profile: dropbox.MemberProfile{
				TeamMemberID: fmt.Sprintf("dbmid:%d", f.nextID),
				ExternalID:   m.ExternalID,
				Email:        m.Email,
				Name:         dropbox.MemberName{GivenName: m.GivenName, Surname: m.Surname},
			},
			Role: dropbox.Tagged{Tag: dropbox.RoleMemberOnly},
		})
	}

	return rejected, nil
}

func (f *fakeTeam) AddGroupMembers(_ context.Context, groupID string, emails []string) error {
	f.groupAdds[groupID] = append(f.groupAdds[groupID], emails...)
	f.groupMembers[groupID] = append(f.groupMembers[groupID], emails...)

	return nil
}

func (f *fakeTeam) RemoveGroupMembers(_ context.Context, groupID string, emails []string) error {
	f.groupRemoves[groupID] = append(f.groupRemoves[groupID], emails...)

	removed := make(map[string]bool, len(emails))
	for _, e := range emails {
		removed[strings.ToLower(e)] = true
	}

	var kept []string

	for _, e := range f.groupMembers[groupID] {
		if !removed[strings.ToLower(e)] {
			kept = append(kept, e)
		}
	}

	f.groupMembers[groupID] = kept

	return nil
}

func (f *fakeTeam) SetMemberProfile(_ context.Context, user dropbox.UserSelector, changes dropbox.ProfileChanges) error {
	f.profileCalls = append(f.profileCalls, profileCall{user: user, changes: changes})

	if f.profileErr != nil {
		return f.profileErr
	}

	for i := range f.members {
		p := &f.members[i].Profile
		if (user.Tag == "external_id" && p.ExternalID == user.ExternalID) ||
			(user.Tag == "team_member_id" && p.TeamMemberID == user.TeamMemberID) ||
			(user.Tag == "email" && strings.EqualFold(p.Email, user.Email)) {
			if changes.NewEmail != "" {
				p.Email = changes.NewEmail
			}

			if changes.NewExternalID != "" {
				p.ExternalID = changes.NewExternalID
			}

			if changes.NewGivenName != "" {
				p.Name.GivenName = changes.NewGivenName
			}

			if changes.NewSurname != "" {
				p.Name.Surname = changes.NewSurname
			}

			return nil
		}
	}

	return errors.New("no such member")
}

func (f *fakeTeam) SetAdminRole(_ context.Context, teamMemberID, role string) error {
	f.adminCalls = append(f.adminCalls, adminCall{teamMemberID: teamMemberID, role: role})
	return nil
}

func (f *fakeTeam) AddFolderACL(_ context.Context, folderID, groupID, role string) error {
	f.acls = append(f.acls, aclCall{folderID: folderID, groupID: groupID, role: role})
	return nil
}
