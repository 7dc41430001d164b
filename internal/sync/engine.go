package sync

import (
	"context"
	"errors"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/samber/oops"

	"github.com/uoa-eresearch/teamsync/internal/directory"
	"github.com/uoa-eresearch/teamsync/internal/identity"
	"github.com/uoa-eresearch/teamsync/pkg/clients/dropbox"
)

// manualGroup collects every member who exists on the team through an
// override rather than a managed project group.
const manualGroup = "user_added_manually"

// DirectoryService is the slice of the directory client the engine needs.
type DirectoryService interface {
	LookupUser(login string) (identity.Member, error)
	LookupUserByEmail(email string) (identity.Member, error)
	GroupMembers(groupName string) ([]identity.Member, error)
}

// TeamService is the slice of the remote team client the engine needs.
type TeamService interface {
	ListMembers(ctx context.Context) ([]dropbox.TeamMember, error)
	ListGroups(ctx context.Context) ([]dropbox.Group, error)
	ListTeamFolders(ctx context.Context) ([]dropbox.TeamFolder, error)
	ListGroupMembers(ctx context.Context, groupID string) ([]string, error)
	CreateGroup(ctx context.Context, name string) (string, error)
	CreateTeamFolder(ctx context.Context, name string) (string, error)
	AddTeamMembers(ctx context.Context, members []dropbox.NewMember, sendWelcome bool) ([]string, error)
	AddGroupMembers(ctx context.Context, groupID string, emails []string) error
	RemoveGroupMembers(ctx context.Context, groupID string, emails []string) error
	SetMemberProfile(ctx context.Context, user dropbox.UserSelector, changes dropbox.ProfileChanges) error
	SetAdminRole(ctx context.Context, teamMemberID, role string) error
	AddFolderACL(ctx context.Context, folderID, groupID, role string) error
}

// State is the terminal state of one project's reconciliation.
type State string

const (
	StateDone    State = "done"
	StateSkipped State = "skipped"
	StatePartial State = "partial"
)

// Params wires an Engine. Licenses of zero disables the headroom check.
type Params struct {
	Directory   DirectoryService
	Team        TeamService
	Resolver    *identity.Resolver
	Overrides   identity.Overrides
	Logger      hclog.Logger
	GroupSuffix string
	Licenses    int
	SendWelcome bool
	DryRun      bool
}

// Engine drives one reconciliation run. It is single threaded: projects are
// processed strictly in order so each observes the writes of the ones before
// it through the snapshot.
type Engine struct {
	dir         DirectoryService
	team        TeamService
	resolver    *identity.Resolver
	overrides   identity.Overrides
	logger      hclog.Logger
	suffix      string
	licenses    int
	sendWelcome bool
	dryRun      bool

	snap *Snapshot
}

func NewEngine(p Params) *Engine {
	return &Engine{
		dir:         p.Directory,
		team:        p.Team,
		resolver:    p.Resolver,
		overrides:   p.Overrides,
		logger:      p.Logger,
		suffix:      p.GroupSuffix,
		licenses:    p.Licenses,
		sendWelcome: p.SendWelcome,
		dryRun:      p.DryRun,
	}
}

// runContext holds the run-scoped accumulators. It is owned by the engine
// and discarded at run end.
type runContext struct {
	// failed emails are subtracted from every group's add list for the rest
	// of the run. A member whose remote identity could not be established
	// must never be added to an ACL group under a stale identity.
	failed map[string]bool

	// managed directory group names seen this run; override groups with
	// these names are not re-synced.
	managed map[string]bool

	summary Summary
}

func (rc *runContext) fail(email string) {
	rc.failed[strings.ToLower(email)] = true
}

func (rc *runContext) isFailed(email string) bool {
	return rc.failed[strings.ToLower(email)]
}

// Summary is the run's final tally.
type Summary struct {
	Done    int
	Skipped int
	Partial int

	TeamAdds     int
	GroupAdds    int
	GroupRemoves int
	EmailRepairs int

	ProfilesRepaired  int
	UnresolvedPartial int
}

// Run reconciles every project in order, then processes manual overrides.
// Only a failure to read the remote state at all aborts the run; individual
// project failures are absorbed into the summary.
func (e *Engine) Run(ctx context.Context, projects []Project) (*Summary, error) {
	errb := oops.In("reconcile")

	snap, err := BuildSnapshot(ctx, e.team)
	if err != nil {
		return nil, errb.Wrapf(err, "building remote snapshot")
	}

	e.snap = snap

	rc := &runContext{
		failed:  make(map[string]bool),
		managed: ManagedGroupNames(projects, e.suffix),
		summary: Summary{},
	}

	repaired := e.repairPartialProfiles(ctx)
	if repaired > 0 && !e.dryRun {
		snap, err = BuildSnapshot(ctx, e.team)
		if err != nil {
			return nil, errb.Wrapf(err, "rebuilding remote snapshot after profile repairs")
		}

		e.snap = snap
	}

	rc.summary.ProfilesRepaired = repaired

	for _, p := range projects {
		state := e.syncProject(ctx, rc, p)

		switch state {
		case StateDone:
			rc.summary.Done++
		case StateSkipped:
			rc.summary.Skipped++
		case StatePartial:
			rc.summary.Partial++
		}

		e.logger.Info("project reconciled", "code", p.ResearchCode, "state", string(state))
	}

	e.processOverrides(ctx, rc)

	rc.summary.UnresolvedPartial = len(e.snap.PartialEntries())

	e.logger.Info("run complete",
		"done", rc.summary.Done,
		"skipped", rc.summary.Skipped,
		"partial", rc.summary.Partial,
		"team_adds", rc.summary.TeamAdds,
		"group_adds", rc.summary.GroupAdds,
		"group_removes", rc.summary.GroupRemoves,
		"email_repairs", rc.summary.EmailRepairs,
		"unresolved_partial", rc.summary.UnresolvedPartial)

	return &rc.summary, nil
}

// syncProject walks one project through its state machine: directory fetch,
// folder resolution, team-membership staging, then the rw and ro group diffs
// and folder ACLs.
func (e *Engine) syncProject(ctx context.Context, rc *runContext, p Project) State {
	rwName, roName := p.GroupRW(e.suffix), p.GroupRO(e.suffix)

	rw, err := e.fetchGroup(rwName)
	if err != nil {
		e.logger.Warn("skipping project, directory lookup failed", "group", rwName, "error", err)
		return StateSkipped
	}

	ro, err := e.fetchGroup(roName)
	if err != nil {
		e.logger.Warn("skipping project, directory lookup failed", "group", roName, "error", err)
		return StateSkipped
	}

	rwMembers := e.resolveAll(rw)
	roMembers := e.resolveAll(ro)

	// The traverse set decides who must exist on the team. It never becomes
	// a remote group or an ACL of its own.
	traverse := mergeByEmail(rwMembers, roMembers)

	folderID, ok := e.ensureTeamFolder(ctx, p.TeamFolder)
	if !ok {
		return StatePartial
	}

	e.ensureMembers(ctx, rc, traverse)

	rwID, rwOK := e.syncGroup(ctx, rc, rwName, emails(rwMembers))
	roID, roOK := e.syncGroup(ctx, rc, roName, emails(roMembers))

	if rwOK {
		e.applyACL(ctx, p.TeamFolder, folderID, rwID, dropbox.AccessEditor)
	}

	if roOK {
		e.applyACL(ctx, p.TeamFolder, folderID, roID, dropbox.AccessViewer)
	}

	return StateDone
}

// fetchGroup retries a failed directory group lookup once before giving up.
func (e *Engine) fetchGroup(name string) ([]identity.Member, error) {
	members, err := e.dir.GroupMembers(name)
	if err == nil {
		return members, nil
	}

	e.logger.Warn("directory group lookup failed, retrying once", "group", name, "error", err)

	return e.dir.GroupMembers(name)
}

func (e *Engine) resolveAll(members []identity.Member) []identity.Member {
	resolved := make([]identity.Member, len(members))
	for i, m := range members {
		resolved[i] = e.resolver.Resolve(m, e.overrides)
	}

	return resolved
}

// mergeByEmail unions the two sets, first slice winning on a duplicate
// email or external id. One person in both groups under different effective
// emails is still one person.
func mergeByEmail(first, second []identity.Member) []identity.Member {
	seenEmail := make(map[string]bool)
	seenID := make(map[string]bool)

	merged := make([]identity.Member, 0, len(first)+len(second))

	for _, m := range append(append([]identity.Member{}, first...), second...) {
		if seenEmail[m.Email] || seenID[m.ExternalID] {
			continue
		}

		seenEmail[m.Email] = true
		seenID[m.ExternalID] = true
		merged = append(merged, m)
	}

	return merged
}

// ensureTeamFolder resolves the project's team folder id, creating the
// folder on first sight. A name conflict means somebody created it outside
// this run; the id is re-resolved from a fresh folder list.
func (e *Engine) ensureTeamFolder(ctx context.Context, name string) (string, bool) {
	if id, ok := e.snap.FolderID(name); ok {
		return id, true
	}

	if e.dryRun {
		e.logger.Info("dry run: would create team folder", "folder", name)
		e.snap.RecordFolder(name, "")

		return "", true
	}

	id, err := e.team.CreateTeamFolder(ctx, name)
	if errors.Is(err, dropbox.ErrConflict) {
		folders, listErr := e.team.ListTeamFolders(ctx)
		if listErr != nil {
			e.logger.Error("team folder exists but could not be re-resolved", "folder", name, "error", listErr)
			return "", false
		}

		for _, f := range folders {
			if f.Name == name && f.Active() {
				e.snap.RecordFolder(name, f.TeamFolderID)
				return f.TeamFolderID, true
			}
		}

		e.logger.Error("team folder name conflict with no active folder of that name", "folder", name)

		return "", false
	}

	if err != nil {
		e.logger.Error("team folder creation failed", "folder", name, "error", err)
		return "", false
	}

	e.logger.Info("created team folder", "folder", name, "id", id)
	e.snap.RecordFolder(name, id)

	return id, true
}

// ensureMembers stages every traverse-set member missing from the team and
// repairs remote addresses that drifted from the directory. Members whose
// identity cannot be established join the failed set.
func (e *Engine) ensureMembers(ctx context.Context, rc *runContext, members []identity.Member) {
	var staged []identity.Member

	for _, m := range members {
		if rc.isFailed(m.Email) {
			continue
		}

		if _, ok := e.snap.Member(m.ExternalID); ok {
			if e.snap.EmailChanged(m) {
				e.repairEmail(ctx, rc, m)
			}

			continue
		}

		if owner, ok := e.snap.MemberByEmail(m.Email); ok {
			// The address is already held by an account we cannot match to
			// this login, usually one created by hand on the remote side.
			e.logger.Warn("email held by an unmatchable remote account, excluding member for this run",
				"login", m.ExternalID, "email", m.Email, "holder_external_id", owner.Profile.ExternalID)
			rc.fail(m.Email)

			continue
		}

		if e.licenses > 0 && e.snap.MemberCount()+len(staged) >= e.licenses {
			e.logger.Warn("no licence headroom left, not staging member",
				"login", m.ExternalID, "email", m.Email, "licenses", e.licenses)
			rc.fail(m.Email)

			continue
		}

		staged = append(staged, m)
	}

	e.addToTeam(ctx, rc, staged)
}

func (e *Engine) addToTeam(ctx context.Context, rc *runContext, staged []identity.Member) {
	if len(staged) == 0 {
		return
	}

	if e.dryRun {
		for _, m := range staged {
			e.logger.Info("dry run: would add team member", "login", m.ExternalID, "email", m.Email)
			e.snap.RecordMember(m)
		}

		rc.summary.TeamAdds += len(staged)

		return
	}

	records := make([]dropbox.NewMember, len(staged))
	for i, m := range staged {
		records[i] = dropbox.NewMember{
			Email:      m.Email,
			GivenName:  m.GivenName,
			Surname:    m.Surname,
			ExternalID: m.ExternalID,
		}
	}

	rejected, err := e.team.AddTeamMembers(ctx, records, e.sendWelcome)
	if err != nil {
		// Rate limiting exhausted mid-add. Anything not positively added is
		// treated as failed for the rest of the run.
		e.logger.Error("team add aborted", "staged", len(staged), "error", err)

		for _, m := range staged {
			rc.fail(m.Email)
		}

		return
	}

	rejectedSet := make(map[string]bool, len(rejected))
	for _, email := range rejected {
		rejectedSet[strings.ToLower(email)] = true
		rc.fail(email)
	}

	for _, m := range staged {
		if rejectedSet[strings.ToLower(m.Email)] {
			e.logger.Warn("team add rejected", "login", m.ExternalID, "email", m.Email)
			continue
		}

		e.snap.RecordMember(m)
		rc.summary.TeamAdds++
	}
}

func (e *Engine) repairEmail(ctx context.Context, rc *runContext, m identity.Member) {
	if e.dryRun {
		e.logger.Info("dry run: would repair remote email", "login", m.ExternalID, "email", m.Email)
		e.snap.RecordEmail(m.ExternalID, m.Email)

		return
	}

	err := e.team.SetMemberProfile(ctx,
		dropbox.SelectExternalID(m.ExternalID),
		dropbox.ProfileChanges{NewEmail: m.Email})
	if err != nil {
		e.logger.Warn("email repair failed, excluding member for this run",
			"login", m.ExternalID, "email", m.Email, "error", err)
		rc.fail(m.Email)

		// The stale remote address stays off the removal lists too; the
		// member keeps whatever access they have until repair succeeds.
		if remote, ok := e.snap.Member(m.ExternalID); ok {
			rc.fail(remote.Profile.Email)
		}

		return
	}

	e.logger.Info("repaired remote email", "login", m.ExternalID, "email", m.Email)
	e.snap.RecordEmail(m.ExternalID, m.Email)
	rc.summary.EmailRepairs++
}

// syncGroup resolves or creates the remote group and applies the membership
// diff. It reports the group id and whether the id was resolved; diff
// failures are logged but do not stop the folder ACL from being applied.
func (e *Engine) syncGroup(ctx context.Context, rc *runContext, name string, desired []string) (string, bool) {
	groupID, ok := e.ensureGroup(ctx, name)
	if !ok {
		return "", false
	}

	var current []string

	if groupID != "" {
		var err error

		current, err = e.team.ListGroupMembers(ctx, groupID)
		if err != nil {
			e.logger.Error("could not list remote group members", "group", name, "error", err)
			return groupID, true
		}
	}

	filtered := make([]string, 0, len(desired))
	for _, email := range desired {
		if !rc.isFailed(email) {
			filtered = append(filtered, email)
		}
	}

	add, remove := diff(filtered, current)

	kept := remove[:0]

	for _, email := range remove {
		if !rc.isFailed(email) {
			kept = append(kept, email)
		}
	}

	remove = kept

	if len(add) == 0 && len(remove) == 0 {
		return groupID, true
	}

	e.logger.Info("syncing group", "group", name, "add", len(add), "remove", len(remove))

	if e.dryRun {
		for _, email := range add {
			e.logger.Info("dry run: would add to group", "group", name, "email", email)
		}

		for _, email := range remove {
			e.logger.Info("dry run: would remove from group", "group", name, "email", email)
		}

		rc.summary.GroupAdds += len(add)
		rc.summary.GroupRemoves += len(remove)

		return groupID, true
	}

	if len(add) > 0 {
		if err := e.team.AddGroupMembers(ctx, groupID, add); err != nil {
			e.logger.Error("group add failed", "group", name, "count", len(add), "error", err)
		} else {
			rc.summary.GroupAdds += len(add)
		}
	}

	if len(remove) > 0 {
		if err := e.team.RemoveGroupMembers(ctx, groupID, remove); err != nil {
			e.logger.Error("group remove failed", "group", name, "count", len(remove), "error", err)
		} else {
			rc.summary.GroupRemoves += len(remove)
		}
	}

	return groupID, true
}

func (e *Engine) ensureGroup(ctx context.Context, name string) (string, bool) {
	if id, ok := e.snap.GroupID(name); ok {
		return id, true
	}

	if e.dryRun {
		e.logger.Info("dry run: would create group", "group", name)
		e.snap.RecordGroup(name, "")

		return "", true
	}

	id, err := e.team.CreateGroup(ctx, name)
	if errors.Is(err, dropbox.ErrConflict) {
		groups, listErr := e.team.ListGroups(ctx)
		if listErr != nil {
			e.logger.Error("group exists but could not be re-resolved", "group", name, "error", listErr)
			return "", false
		}

		for _, g := range groups {
			if g.GroupName == name {
				e.snap.RecordGroup(name, g.GroupID)
				return g.GroupID, true
			}
		}

		e.logger.Error("group name conflict with no group of that name", "group", name)

		return "", false
	}

	if err != nil {
		e.logger.Error("group creation failed", "group", name, "error", err)
		return "", false
	}

	e.logger.Info("created group", "group", name, "id", id)
	e.snap.RecordGroup(name, id)

	return id, true
}

func (e *Engine) applyACL(ctx context.Context, folderName, folderID, groupID, role string) {
	if e.dryRun {
		e.logger.Info("dry run: would grant folder access", "folder", folderName, "role", role)
		return
	}

	if folderID == "" || groupID == "" {
		return
	}

	err := e.team.AddFolderACL(ctx, folderID, groupID, role)
	if err != nil {
		e.logger.Warn("folder access grant failed", "folder", folderName, "role", role, "error", err)
	}
}

// processOverrides runs after the project loop. Every active override user
// must exist on the team, lands in the manual-members group plus any extra
// groups the override names, and gets their admin tier reconciled.
func (e *Engine) processOverrides(ctx context.Context, rc *runContext) {
	groupMembers := map[string][]string{manualGroup: {}}

	for login, ov := range e.overrides {
		record, err := e.dir.LookupUser(login)
		if err != nil {
			e.logger.Warn("override user has no directory entry, skipping", "login", login, "error", err)
			continue
		}

		m := e.resolver.Resolve(record, e.overrides)
		m.Role = ov.Role

		e.ensureMembers(ctx, rc, []identity.Member{m})

		if rc.isFailed(m.Email) {
			continue
		}

		groupMembers[manualGroup] = append(groupMembers[manualGroup], m.Email)

		for _, group := range ov.Groups {
			if rc.managed[group] {
				// Managed research groups are owned by the project loop.
				continue
			}

			groupMembers[group] = append(groupMembers[group], m.Email)
		}

		e.reconcileAdminRole(ctx, m)
	}

	for group, members := range groupMembers {
		// Override groups are additive: membership granted by hand outside
		// the overrides file is left alone, so no diff-and-remove here.
		e.addToGroup(ctx, rc, group, members)
	}
}

func (e *Engine) addToGroup(ctx context.Context, rc *runContext, name string, desired []string) {
	if len(desired) == 0 {
		return
	}

	groupID, ok := e.ensureGroup(ctx, name)
	if !ok {
		return
	}

	var current []string

	if groupID != "" {
		var err error

		current, err = e.team.ListGroupMembers(ctx, groupID)
		if err != nil {
			e.logger.Error("could not list remote group members", "group", name, "error", err)
			return
		}
	}

	add, _ := diff(desired, current)
	if len(add) == 0 {
		return
	}

	if e.dryRun {
		for _, email := range add {
			e.logger.Info("dry run: would add to group", "group", name, "email", email)
		}

		rc.summary.GroupAdds += len(add)

		return
	}

	if err := e.team.AddGroupMembers(ctx, groupID, add); err != nil {
		e.logger.Error("group add failed", "group", name, "count", len(add), "error", err)
		return
	}

	rc.summary.GroupAdds += len(add)
}

func (e *Engine) reconcileAdminRole(ctx context.Context, m identity.Member) {
	remote, ok := e.snap.Member(m.ExternalID)
	if !ok || remote.Profile.TeamMemberID == "" {
		// Added this run; the admin tier is applied on the next run once a
		// team member id exists.
		return
	}

	if remote.Role.Tag == string(m.Role) {
		return
	}

	if e.dryRun {
		e.logger.Info("dry run: would change admin tier",
			"login", m.ExternalID, "from", remote.Role.Tag, "to", string(m.Role))
		return
	}

	err := e.team.SetAdminRole(ctx, remote.Profile.TeamMemberID, string(m.Role))
	if err != nil {
		e.logger.Warn("admin tier change failed", "login", m.ExternalID, "role", string(m.Role), "error", err)
		return
	}

	e.logger.Info("changed admin tier", "login", m.ExternalID, "role", string(m.Role))
}

// RepairProfiles runs only the partial-profile repair step against a fresh
// snapshot, for use outside a full reconciliation run.
func (e *Engine) RepairProfiles(ctx context.Context) (int, error) {
	snap, err := BuildSnapshot(ctx, e.team)
	if err != nil {
		return 0, oops.In("profiles").Wrapf(err, "building remote snapshot")
	}

	e.snap = snap

	return e.repairPartialProfiles(ctx), nil
}

// repairPartialProfiles tries to claim remote accounts that carry no
// external id by finding their address in the directory and writing the
// login and names back onto the profile.
func (e *Engine) repairPartialProfiles(ctx context.Context) int {
	repaired := 0

	for _, entry := range e.snap.PartialEntries() {
		record, err := e.dir.LookupUserByEmail(entry.Profile.Email)
		if err != nil {
			if !errors.Is(err, directory.ErrNotFound) {
				e.logger.Warn("partial profile lookup failed", "email", entry.Profile.Email, "error", err)
			}

			continue
		}

		if e.dryRun {
			e.logger.Info("dry run: would repair partial profile",
				"email", entry.Profile.Email, "login", record.ExternalID)
			repaired++

			continue
		}

		err = e.team.SetMemberProfile(ctx,
			dropbox.SelectTeamMemberID(entry.Profile.TeamMemberID),
			dropbox.ProfileChanges{
				NewExternalID: record.ExternalID,
				NewGivenName:  record.GivenName,
				NewSurname:    record.Surname,
			})
		if err != nil {
			e.logger.Warn("partial profile repair failed",
				"email", entry.Profile.Email, "login", record.ExternalID, "error", err)
			continue
		}

		e.logger.Info("repaired partial profile", "email", entry.Profile.Email, "login", record.ExternalID)
		repaired++
	}

	return repaired
}

func emails(members []identity.Member) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Email
	}

	return out
}

// diff computes add = desired - current and remove = current - desired,
// case-insensitively on the address.
func diff(desired, current []string) (add, remove []string) {
	currentSet := make(map[string]bool, len(current))
	for _, email := range current {
		currentSet[strings.ToLower(email)] = true
	}

	desiredSet := make(map[string]bool, len(desired))

	for _, email := range desired {
		lower := strings.ToLower(email)
		if desiredSet[lower] {
			continue
		}

		desiredSet[lower] = true

		if !currentSet[lower] {
			add = append(add, lower)
		}
	}

	for _, email := range current {
		if !desiredSet[strings.ToLower(email)] {
			remove = append(remove, strings.ToLower(email))
		}
	}

	return add, remove
}
