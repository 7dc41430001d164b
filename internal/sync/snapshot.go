package sync

import (
	"context"
	"strings"

	"github.com/uoa-eresearch/teamsync/internal/identity"
	"github.com/uoa-eresearch/teamsync/pkg/clients/dropbox"
)

// Snapshot is the in-memory picture of the remote team, built once per run
// by fully draining the member, group and folder lists. Every successful
// remote write is mirrored into it so later steps of the same run see the
// effect without a second remote read.
//
// Members without an external id cannot be reconciled by identity; they are
// held apart as partial entries so they never collide with directory-resolved
// members.
type Snapshot struct {
	byExternalID map[string]dropbox.TeamMember
	byEmail      map[string]dropbox.TeamMember
	groupIDs     map[string]string
	folderIDs    map[string]string
	partial      []dropbox.TeamMember
}

func BuildSnapshot(ctx context.Context, team TeamService) (*Snapshot, error) {
	snap := &Snapshot{
		byExternalID: make(map[string]dropbox.TeamMember),
		byEmail:      make(map[string]dropbox.TeamMember),
		groupIDs:     make(map[string]string),
		folderIDs:    make(map[string]string),
	}

	members, err := team.ListMembers(ctx)
	if err != nil {
		return nil, err
	}

	for _, m := range members {
		snap.index(m)
	}

	groups, err := team.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	for _, g := range groups {
		snap.groupIDs[g.GroupName] = g.GroupID
	}

	folders, err := team.ListTeamFolders(ctx)
	if err != nil {
		return nil, err
	}

	for _, f := range folders {
		if f.Active() {
			snap.folderIDs[f.Name] = f.TeamFolderID
		}
	}

	return snap, nil
}

func (s *Snapshot) index(m dropbox.TeamMember) {
	// Partial entries are indexed by email as well, so an address held by a
	// manually created account is seen as taken.
	if email := strings.ToLower(m.Profile.Email); email != "" {
		s.byEmail[email] = m
	}

	if m.Profile.ExternalID == "" {
		s.partial = append(s.partial, m)
		return
	}

	s.byExternalID[m.Profile.ExternalID] = m
}

func (s *Snapshot) Member(externalID string) (dropbox.TeamMember, bool) {
	m, ok := s.byExternalID[externalID]
	return m, ok
}

func (s *Snapshot) MemberByEmail(email string) (dropbox.TeamMember, bool) {
	m, ok := s.byEmail[strings.ToLower(email)]
	return m, ok
}

// EmailChanged reports whether the member exists remotely under a different
// address than the resolved one.
func (s *Snapshot) EmailChanged(m identity.Member) bool {
	remote, ok := s.byExternalID[m.ExternalID]

	return ok && !strings.EqualFold(remote.Profile.Email, m.Email)
}

func (s *Snapshot) GroupID(name string) (string, bool) {
	id, ok := s.groupIDs[name]
	return id, ok
}

func (s *Snapshot) FolderID(name string) (string, bool) {
	id, ok := s.folderIDs[name]
	return id, ok
}

// MemberCount includes partial entries; they hold licences too.
func (s *Snapshot) MemberCount() int {
	return len(s.byExternalID) + len(s.partial)
}

func (s *Snapshot) PartialEntries() []dropbox.TeamMember {
	return s.partial
}

// RecordMember mirrors a successful team add. The team member id is unknown
// until the next full drain, which is fine: within a run the member is only
// addressed by email or external id.
func (s *Snapshot) RecordMember(m identity.Member) {
	s.index(dropbox.TeamMember{
		Profile: dropbox.MemberProfile{
			ExternalID: m.ExternalID,
			Email:      m.Email,
			Name: dropbox.MemberName{
				GivenName: m.GivenName,
				Surname:   m.Surname,
			},
		},
	})
}

// RecordEmail mirrors a successful profile email repair.
func (s *Snapshot) RecordEmail(externalID, email string) {
	m, ok := s.byExternalID[externalID]
	if !ok {
		return
	}

	delete(s.byEmail, strings.ToLower(m.Profile.Email))

	m.Profile.Email = email
	s.byExternalID[externalID] = m
	s.byEmail[strings.ToLower(email)] = m
}

func (s *Snapshot) RecordGroup(name, id string) {
	s.groupIDs[name] = id
}

func (s *Snapshot) RecordFolder(name, id string) {
	s.folderIDs[name] = id
}
