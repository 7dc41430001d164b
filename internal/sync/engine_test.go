package sync_test

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uoa-eresearch/teamsync/internal/identity"
	"github.com/uoa-eresearch/teamsync/internal/sync"
	"github.com/uoa-eresearch/teamsync/pkg/clients/dropbox"
)

var testProject = sync.Project{ResearchCode: "CS001", TeamFolder: "CS001"}

func newTestEngine(dir *fakeDirectory, team *fakeTeam, opts ...func(*sync.Params)) *sync.Engine {
	params := sync.Params{
		Directory: dir,
		Team:      team,
		Resolver: identity.NewResolver(
			[]string{"auckland.ac.nz", "aucklanduni.ac.nz"},
			"aucklanduni.ac.nz",
			hclog.NewNullLogger()),
		Overrides:   identity.Overrides{},
		Logger:      hclog.NewNullLogger(),
		GroupSuffix: "eresearch",
		SendWelcome: true,
	}

	for _, opt := range opts {
		opt(&params)
	}

	return sync.NewEngine(params)
}

func TestRunCreatesEverythingOnFirstSight(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory()
	dir.groups["CS001_rw.eresearch"] = []identity.Member{
		{ExternalID: "abc123", Email: "ABC123@auckland.ac.nz", GivenName: "Alex", Surname: "Chen"},
	}
	dir.groups["CS001_ro.eresearch"] = nil

	team := newFakeTeam()
	engine := newTestEngine(dir, team)

	summary, err := engine.Run(context.Background(), []sync.Project{testProject})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Done)
	assert.Equal(t, 1, summary.TeamAdds)

	assert.Equal(t, []string{"CS001"}, team.createdFolders)
	assert.Contains(t, team.createdGroups, "CS001_rw.eresearch")
	assert.Contains(t, team.createdGroups, "CS001_ro.eresearch")

	require.Len(t, team.teamAdds, 1)
	require.Len(t, team.teamAdds[0], 1)
	assert.Equal(t, "abc123@auckland.ac.nz", team.teamAdds[0][0].Email)
	assert.Equal(t, "abc123", team.teamAdds[0][0].ExternalID)

	rwID := team.groups["CS001_rw.eresearch"]
	assert.Equal(t, []string{"abc123@auckland.ac.nz"}, team.groupAdds[rwID])

	folderID := team.folders["CS001"]
	assert.Contains(t, team.acls, aclCall{folderID: folderID, groupID: rwID, role: dropbox.AccessEditor})
	assert.Contains(t, team.acls, aclCall{folderID: folderID, groupID: team.groups["CS001_ro.eresearch"], role: dropbox.AccessViewer})
}

func TestRunRemovesDepartedMember(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory()
	dir.groups["CS001_rw.eresearch"] = nil
	dir.groups["CS001_ro.eresearch"] = nil

	team := newFakeTeam()
	team.addRemoteMember("dbmid:1", "old123", "old@auckland.ac.nz")
	rwID := team.addRemoteGroup("CS001_rw.eresearch", "old@auckland.ac.nz")
	team.addRemoteGroup("CS001_ro.eresearch")
	team.folders["CS001"] = "tf:1"

	engine := newTestEngine(dir, team)

	summary, err := engine.Run(context.Background(), []sync.Project{testProject})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Done)
	assert.Empty(t, team.teamAdds)
	assert.Empty(t, team.groupAdds)
	assert.Equal(t, []string{"old@auckland.ac.nz"}, team.groupRemoves[rwID])
}

func TestRunIsIdempotentOnConvergedState(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory()
	dir.groups["CS001_rw.eresearch"] = []identity.Member{
		{ExternalID: "abc123", Email: "abc123@auckland.ac.nz"},
	}
	dir.groups["CS001_ro.eresearch"] = nil

	team := newFakeTeam()
	team.addRemoteMember("dbmid:1", "abc123", "abc123@auckland.ac.nz")
	team.addRemoteGroup("CS001_rw.eresearch", "abc123@auckland.ac.nz")
	team.addRemoteGroup("CS001_ro.eresearch")
	team.folders["CS001"] = "tf:1"

	engine := newTestEngine(dir, team)

	summary, err := engine.Run(context.Background(), []sync.Project{testProject})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Done)
	assert.Zero(t, team.mutationCount())
	assert.Zero(t, summary.TeamAdds)
	assert.Zero(t, summary.GroupAdds)
	assert.Zero(t, summary.GroupRemoves)
}

func TestRunResolvesFolderCreationConflict(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory()
	dir.groups["CS001_rw.eresearch"] = []identity.Member{
		{ExternalID: "abc123", Email: "abc123@auckland.ac.nz"},
	}
	dir.groups["CS001_ro.eresearch"] = nil

	team := newFakeTeam()
	team.conflictFolder = "CS001"

	engine := newTestEngine(dir, team)

	summary, err := engine.Run(context.Background(), []sync.Project{testProject})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Done)
	assert.Zero(t, summary.Partial)
	assert.Empty(t, team.createdFolders)

	folderID := team.folders["CS001"]
	require.NotEmpty(t, folderID)
	assert.Contains(t, team.acls, aclCall{
		folderID: folderID,
		groupID:  team.groups["CS001_rw.eresearch"],
		role:     dropbox.AccessEditor,
	})
}

func TestRunSkipsProjectWhenDirectoryFails(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory()
	dir.groupErrs["CS001_rw.eresearch"] = 2

	team := newFakeTeam()
	engine := newTestEngine(dir, team)

	summary, err := engine.Run(context.Background(), []sync.Project{testProject})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, dir.groupCalls["CS001_rw.eresearch"])
	assert.Zero(t, team.mutationCount())
}

func TestRunRecoversDirectoryOnRetry(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory()
	dir.groupErrs["CS001_rw.eresearch"] = 1
	dir.groups["CS001_rw.eresearch"] = []identity.Member{
		{ExternalID: "abc123", Email: "abc123@auckland.ac.nz"},
	}
	dir.groups["CS001_ro.eresearch"] = nil

	team := newFakeTeam()
	engine := newTestEngine(dir, team)

	summary, err := engine.Run(context.Background(), []sync.Project{testProject})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Done)
	assert.Equal(t, 2, dir.groupCalls["CS001_rw.eresearch"])
	assert.Equal(t, 1, summary.TeamAdds)
}

func TestRunExcludesMemberAfterFailedEmailRepair(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory()
	dir.groups["CS001_rw.eresearch"] = []identity.Member{
		{ExternalID: "abc123", Email: "renamed@auckland.ac.nz"},
	}
	dir.groups["CS001_ro.eresearch"] = nil

	team := newFakeTeam()
	team.addRemoteMember("dbmid:1", "abc123", "stale@auckland.ac.nz")
	rwID := team.addRemoteGroup("CS001_rw.eresearch", "stale@auckland.ac.nz")
	team.addRemoteGroup("CS001_ro.eresearch")
	team.folders["CS001"] = "tf:1"
	team.profileErr = assert.AnError

	engine := newTestEngine(dir, team)

	summary, err := engine.Run(context.Background(), []sync.Project{testProject})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Done)
	assert.Zero(t, summary.EmailRepairs)
	assert.Empty(t, team.groupAdds[rwID])
	assert.Empty(t, team.groupRemoves[rwID])
}

func TestRunExcludesRejectedMemberFromGroups(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory()
	dir.groups["CS001_rw.eresearch"] = []identity.Member{
		{ExternalID: "abc123", Email: "abc123@auckland.ac.nz"},
	}
	dir.groups["CS001_ro.eresearch"] = nil

	team := newFakeTeam()
	team.rejectEmails["abc123@auckland.ac.nz"] = true

	engine := newTestEngine(dir, team)

	summary, err := engine.Run(context.Background(), []sync.Project{testProject})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Done)
	assert.Zero(t, summary.TeamAdds)
	require.Len(t, team.teamAdds, 1)
	assert.Empty(t, team.groupAdds)
}

func TestRunExcludesManualAccountCollision(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory()
	dir.groups["CS001_rw.eresearch"] = []identity.Member{
		{ExternalID: "abc123", Email: "abc123@auckland.ac.nz"},
	}
	dir.groups["CS001_ro.eresearch"] = nil

	team := newFakeTeam()
	// Manually created remote account holding the same address, no login.
	team.addRemoteMember("dbmid:9", "", "abc123@auckland.ac.nz")

	engine := newTestEngine(dir, team)

	summary, err := engine.Run(context.Background(), []sync.Project{testProject})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Done)
	assert.Zero(t, summary.TeamAdds)
	assert.Empty(t, team.teamAdds)
	assert.Empty(t, team.groupAdds)
	assert.Equal(t, 1, summary.UnresolvedPartial)
}

func TestRunHonoursLicenceHeadroom(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory()
	dir.groups["CS001_rw.eresearch"] = []identity.Member{
		{ExternalID: "abc123", Email: "abc123@auckland.ac.nz"},
		{ExternalID: "def456", Email: "def456@auckland.ac.nz"},
	}
	dir.groups["CS001_ro.eresearch"] = nil

	team := newFakeTeam()
	team.addRemoteMember("dbmid:1", "xyz789", "xyz789@auckland.ac.nz")

	engine := newTestEngine(dir, team, func(p *sync.Params) {
		p.Licenses = 2
	})

	summary, err := engine.Run(context.Background(), []sync.Project{testProject})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.TeamAdds)
	require.Len(t, team.teamAdds, 1)
	require.Len(t, team.teamAdds[0], 1)
	assert.Equal(t, "abc123@auckland.ac.nz", team.teamAdds[0][0].Email)
}

func TestRunProcessesOverrides(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory()
	dir.users["vis001"] = identity.Member{
		ExternalID: "vis001",
		Email:      "vis001@auckland.ac.nz",
		GivenName:  "Vi",
		Surname:    "Sitor",
	}

	team := newFakeTeam()
	team.addRemoteMember("dbmid:9", "vis001", "vis001@auckland.ac.nz")

	engine := newTestEngine(dir, team, func(p *sync.Params) {
		p.Overrides = identity.Overrides{
			"vis001": {Role: identity.RoleTeamAdmin, Groups: []string{"special_team"}},
		}
	})

	summary, err := engine.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, summary.TeamAdds)

	manualID := team.groups[sync.ManualGroup]
	require.NotEmpty(t, manualID)
	assert.Equal(t, []string{"vis001@auckland.ac.nz"}, team.groupAdds[manualID])

	specialID := team.groups["special_team"]
	require.NotEmpty(t, specialID)
	assert.Equal(t, []string{"vis001@auckland.ac.nz"}, team.groupAdds[specialID])

	assert.Equal(t, []adminCall{{teamMemberID: "dbmid:9", role: dropbox.RoleTeamAdmin}}, team.adminCalls)
}

func TestRunOverrideLeavesManagedGroupsAlone(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory()
	dir.groups["CS001_rw.eresearch"] = nil
	dir.groups["CS001_ro.eresearch"] = nil
	dir.users["vis001"] = identity.Member{ExternalID: "vis001", Email: "vis001@auckland.ac.nz"}

	team := newFakeTeam()
	team.addRemoteMember("dbmid:9", "vis001", "vis001@auckland.ac.nz")
	rwID := team.addRemoteGroup("CS001_rw.eresearch")
	team.addRemoteGroup("CS001_ro.eresearch")
	team.folders["CS001"] = "tf:1"

	engine := newTestEngine(dir, team, func(p *sync.Params) {
		p.Overrides = identity.Overrides{
			"vis001": {Groups: []string{"CS001_rw.eresearch"}},
		}
	})

	_, err := engine.Run(context.Background(), []sync.Project{testProject})

	require.NoError(t, err)
	assert.Empty(t, team.groupAdds[rwID])
}

func TestRunRepairsPartialProfiles(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory()
	dir.users["guest123"] = identity.Member{
		ExternalID: "guest123",
		Email:      "guest@auckland.ac.nz",
		GivenName:  "Guest",
		Surname:    "User",
	}

	team := newFakeTeam()
	team.addRemoteMember("dbmid:7", "", "guest@auckland.ac.nz")

	engine := newTestEngine(dir, team)

	summary, err := engine.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProfilesRepaired)
	assert.Zero(t, summary.UnresolvedPartial)

	require.Len(t, team.profileCalls, 1)
	assert.Equal(t, "dbmid:7", team.profileCalls[0].user.TeamMemberID)
	assert.Equal(t, "guest123", team.profileCalls[0].changes.NewExternalID)
	assert.Equal(t, "Guest", team.profileCalls[0].changes.NewGivenName)
}

func TestRunDryRunPerformsNoMutations(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory()
	dir.groups["CS001_rw.eresearch"] = []identity.Member{
		{ExternalID: "abc123", Email: "abc123@auckland.ac.nz"},
	}
	dir.groups["CS001_ro.eresearch"] = nil

	team := newFakeTeam()
	engine := newTestEngine(dir, team, func(p *sync.Params) {
		p.DryRun = true
	})

	summary, err := engine.Run(context.Background(), []sync.Project{testProject})

	require.NoError(t, err)
	assert.Zero(t, team.mutationCount())
	assert.Equal(t, 1, summary.Done)
	assert.Equal(t, 1, summary.TeamAdds)
	assert.Equal(t, 1, summary.GroupAdds)
}
