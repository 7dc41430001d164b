package sync

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/uoa-eresearch/teamsync/internal/directory"
	"github.com/uoa-eresearch/teamsync/internal/identity"
	"github.com/uoa-eresearch/teamsync/pkg/clients/dropbox"
)

// TeamReader is the read-only slice of the remote client the reports need.
type TeamReader interface {
	ListMembers(ctx context.Context) ([]dropbox.TeamMember, error)
	ListGroups(ctx context.Context) ([]dropbox.Group, error)
	ListTeamFolders(ctx context.Context) ([]dropbox.TeamFolder, error)
	GetTeamInfo(ctx context.Context) (*dropbox.TeamInfo, error)
}

type MembersReport struct {
	Team    *dropbox.TeamInfo
	Members []dropbox.TeamMember
	Partial int
}

// ReportMembers lists the remote roster sorted by address, with the team's
// licence usage for a headroom check against the configured cap.
func ReportMembers(ctx context.Context, team TeamReader) (*MembersReport, error) {
	info, err := team.GetTeamInfo(ctx)
	if err != nil {
		return nil, err
	}

	members, err := team.ListMembers(ctx)
	if err != nil {
		return nil, err
	}

	partial := 0

	for _, m := range members {
		if m.Profile.ExternalID == "" {
			partial++
		}
	}

	sort.Slice(members, func(i, j int) bool {
		return strings.ToLower(members[i].Profile.Email) < strings.ToLower(members[j].Profile.Email)
	})

	return &MembersReport{Team: info, Members: members, Partial: partial}, nil
}

type UnmanagedReport struct {
	Groups  []string
	Folders []string
}

// ReportUnmanaged lists remote groups and active team folders that no
// managed project accounts for. The manual-members group is expected and
// not reported.
func ReportUnmanaged(ctx context.Context, team TeamReader, projects []Project, suffix string) (*UnmanagedReport, error) {
	managed := ManagedGroupNames(projects, suffix)

	folderNames := make(map[string]bool, len(projects))
	for _, p := range projects {
		folderNames[p.TeamFolder] = true
	}

	groups, err := team.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	report := &UnmanagedReport{}

	for _, g := range groups {
		if managed[g.GroupName] || g.GroupName == manualGroup {
			continue
		}

		report.Groups = append(report.Groups, g.GroupName)
	}

	folders, err := team.ListTeamFolders(ctx)
	if err != nil {
		return nil, err
	}

	for _, f := range folders {
		if !f.Active() || folderNames[f.Name] {
			continue
		}

		report.Folders = append(report.Folders, f.Name)
	}

	sort.Strings(report.Groups)
	sort.Strings(report.Folders)

	return report, nil
}

// DirectoryChecker is the slice of the directory client the gone report
// needs.
type DirectoryChecker interface {
	LookupUser(login string) (identity.Member, error)
	IsMemberOf(login, groupName string) (bool, error)
}

type GoneMember struct {
	Login  string
	Email  string
	Reason string
}

// ReportGone lists team members whose directory entry has disappeared, or
// who dropped out of the access group that entitles them to a seat. Partial
// entries cannot be checked and are not reported here.
func ReportGone(ctx context.Context, dir DirectoryChecker, team TeamReader, accessGroup string) ([]GoneMember, error) {
	members, err := team.ListMembers(ctx)
	if err != nil {
		return nil, err
	}

	var gone []GoneMember

	for _, m := range members {
		login := m.Profile.ExternalID
		if login == "" {
			continue
		}

		_, err := dir.LookupUser(login)
		if errors.Is(err, directory.ErrNotFound) {
			gone = append(gone, GoneMember{Login: login, Email: m.Profile.Email, Reason: "no directory entry"})
			continue
		}

		if err != nil {
			return nil, err
		}

		if accessGroup == "" {
			continue
		}

		ok, err := dir.IsMemberOf(login, accessGroup)
		if err != nil {
			return nil, err
		}

		if !ok {
			gone = append(gone, GoneMember{Login: login, Email: m.Profile.Email, Reason: "not in " + accessGroup})
		}
	}

	sort.Slice(gone, func(i, j int) bool { return gone[i].Login < gone[j].Login })

	return gone, nil
}
