package groups

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"labspace/infrastructure"
	"labspace/internal/auth"
	"labspace/internal/invite"
	"labspace/internal/user"
)

type sentInvite struct {
	to, group, inviter, code string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentInvite
}

func (m *fakeMailer) SendInviteCode(to, groupName, inviterName, inviteCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentInvite{to, groupName, inviterName, inviteCode})
	return nil
}

type fixture struct {
	service   *Service
	directory *user.Directory
	mailer    *fakeMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	directory := user.NewDirectory(user.NewMemoryRepository(), true, zap.NewNop())
	mailer := &fakeMailer{}
	return &fixture{
		service:   NewService(NewMemoryRepository(), invite.NewGenerator(), directory, mailer, zap.NewNop()),
		directory: directory,
		mailer:    mailer,
	}
}

func (f *fixture) user(t *testing.T, name string, guest bool) uuid.UUID {
	t.Helper()
	id, err := f.directory.ResolveIdentity(context.Background(), auth.Identity{
		ExternalID:  "idp|" + name,
		DisplayName: name,
		Guest:       guest,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) group(t *testing.T, admin uuid.UUID) *Group {
	t.Helper()
	g, err := f.service.CreateGroup(context.Background(), CreateGroupInput{Name: "Lab X", Description: "synthesis"}, admin)
	require.NoError(t, err)
	return g
}

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin", false)

	g := f.group(t, admin)
	assert.Equal(t, "Lab X", g.Name)
	assert.Equal(t, "synthesis", g.Description)
	assert.Len(t, g.InviteCode, invite.CodeLength)
	assert.True(t, invite.IsValid(g.InviteCode))
	assert.Equal(t, 1, g.MemberCount)
	assert.True(t, g.AssistantEnabled)

	role, err := f.service.RoleOf(ctx, g.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)
}

func TestCreateGroupValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin", false)

	_, err := f.service.CreateGroup(ctx, CreateGroupInput{Name: "   "}, admin)
	assert.ErrorIs(t, err, infrastructure.ErrValidation)

	long := make([]byte, maxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = f.service.CreateGroup(ctx, CreateGroupInput{Name: string(long)}, admin)
	assert.ErrorIs(t, err, infrastructure.ErrValidation)

	_, err = f.service.CreateGroup(ctx, CreateGroupInput{Name: "Lab"}, uuid.New())
	assert.ErrorIs(t, err, infrastructure.ErrNotFound)
}

func TestGuestCannotCreateGroup(t *testing.T) {
	f := newFixture(t)
	guest := f.user(t, "guest", true)

	_, err := f.service.CreateGroup(context.Background(), CreateGroupInput{Name: "Lab"}, guest)
	assert.ErrorIs(t, err, infrastructure.ErrPermission)
}

func TestCreatedInviteCodesAreUnique(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, "admin", false)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		g := f.group(t, admin)
		assert.False(t, seen[g.InviteCode], "duplicate code %s", g.InviteCode)
		seen[g.InviteCode] = true
	}
}

func TestJoinByInviteCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin", false)
	u := f.user(t, "u", false)
	g := f.group(t, admin)

	m, err := f.service.JoinByInviteCode(ctx, g.InviteCode, u)
	require.NoError(t, err)
	assert.Equal(t, RoleMember, m.Role)

	got, err := f.service.GetGroup(ctx, g.ID, u)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MemberCount)

	_, err = f.service.JoinByInviteCode(ctx, g.InviteCode, u)
	require.ErrorIs(t, err, infrastructure.ErrConflict)
	assert.Equal(t, "already a member", err.Error())
}

func TestJoinNormalizesCode(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, "admin", false)
	u := f.user(t, "u", false)
	g := f.group(t, admin)

	lower := []byte(g.InviteCode)
	for i, c := range lower {
		if c >= 'A' && c <= 'Z' {
			lower[i] = c + ('a' - 'A')
		}
	}
	_, err := f.service.JoinByInviteCode(context.Background(), "  "+string(lower)+" ", u)
	assert.NoError(t, err)
}

func TestJoinUnknownCode(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "u", false)

	_, err := f.service.JoinByInviteCode(context.Background(), "ZZZZZZZZ", u)
	assert.ErrorIs(t, err, infrastructure.ErrNotFound)

	_, err = f.service.JoinByInviteCode(context.Background(), "bad", u)
	assert.ErrorIs(t, err, infrastructure.ErrNotFound)
}

func TestConcurrentDuplicateJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin", false)
	u := f.user(t, "u", false)
	g := f.group(t, admin)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.JoinByInviteCode(ctx, g.InviteCode, u)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, infrastructure.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)

	members, err := f.service.ListMembers(ctx, g.ID, admin)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestUpdateMemberRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin", false)
	u := f.user(t, "u", false)
	g := f.group(t, admin)
	_, err := f.service.JoinByInviteCode(ctx, g.InviteCode, u)
	require.NoError(t, err)

	mentor := f.user(t, "mentor", false)
	_, err = f.service.JoinByInviteCode(ctx, g.InviteCode, mentor)
	require.NoError(t, err)
	require.NoError(t, f.service.UpdateMemberRole(ctx, g.ID, mentor, RoleMentor, admin))

	// Non-admins are refused whatever role they ask for, invalid ones included.
	for _, actor := range []uuid.UUID{u, mentor} {
		for _, role := range []Role{RoleAdmin, RoleMentor, RoleMember, Role("owner")} {
			err := f.service.UpdateMemberRole(ctx, g.ID, admin, role, actor)
			assert.ErrorIs(t, err, infrastructure.ErrPermission, "role %s", role)
		}
	}

	err = f.service.UpdateMemberRole(ctx, g.ID, u, Role("owner"), admin)
	assert.ErrorIs(t, err, infrastructure.ErrValidation)

	err = f.service.UpdateMemberRole(ctx, g.ID, uuid.New(), RoleMentor, admin)
	assert.ErrorIs(t, err, infrastructure.ErrNotFound)

	require.NoError(t, f.service.UpdateMemberRole(ctx, g.ID, u, RoleMentor, admin))
	role, err := f.service.RoleOf(ctx, g.ID, u)
	require.NoError(t, err)
	assert.Equal(t, RoleMentor, role)
}

func TestLastAdminGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin", false)
	u := f.user(t, "u", false)
	g := f.group(t, admin)
	_, err := f.service.JoinByInviteCode(ctx, g.InviteCode, u)
	require.NoError(t, err)

	err = f.service.UpdateMemberRole(ctx, g.ID, admin, RoleMember, admin)
	require.ErrorIs(t, err, infrastructure.ErrConflict)
	assert.Equal(t, errLastAdmin, err.Error())

	assert.ErrorIs(t, f.service.LeaveGroup(ctx, g.ID, admin), infrastructure.ErrConflict)
	assert.ErrorIs(t, f.service.RemoveMember(ctx, g.ID, admin, admin), infrastructure.ErrConflict)

	require.NoError(t, f.service.UpdateMemberRole(ctx, g.ID, u, RoleAdmin, admin))
	require.NoError(t, f.service.LeaveGroup(ctx, g.ID, admin))

	// The last member may leave.
	require.NoError(t, f.service.LeaveGroup(ctx, g.ID, u))
	_, err = f.service.RoleOf(ctx, g.ID, u)
	assert.ErrorIs(t, err, infrastructure.ErrNotFound)
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin", false)
	u := f.user(t, "u", false)
	v := f.user(t, "v", false)
	g := f.group(t, admin)
	for _, id := range []uuid.UUID{u, v} {
		_, err := f.service.JoinByInviteCode(ctx, g.InviteCode, id)
		require.NoError(t, err)
	}

	assert.ErrorIs(t, f.service.RemoveMember(ctx, g.ID, v, u), infrastructure.ErrPermission)
	require.NoError(t, f.service.RemoveMember(ctx, g.ID, v, admin))
	require.NoError(t, f.service.RemoveMember(ctx, g.ID, u, u))

	members, err := f.service.ListMembers(ctx, g.ID, admin)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, admin, members[0].UserID)
	assert.Equal(t, "admin", members[0].DisplayName)
}

func TestRegenerateInviteCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin", false)
	u := f.user(t, "u", false)
	w := f.user(t, "w", false)
	g := f.group(t, admin)
	_, err := f.service.JoinByInviteCode(ctx, g.InviteCode, u)
	require.NoError(t, err)

	_, err = f.service.RegenerateInviteCode(ctx, g.ID, u)
	assert.ErrorIs(t, err, infrastructure.ErrPermission)

	code, err := f.service.RegenerateInviteCode(ctx, g.ID, admin)
	require.NoError(t, err)
	assert.Len(t, code, invite.CodeLength)
	assert.NotEqual(t, g.InviteCode, code)

	_, err = f.service.JoinByInviteCode(ctx, g.InviteCode, w)
	assert.ErrorIs(t, err, infrastructure.ErrNotFound)

	_, err = f.service.JoinByInviteCode(ctx, code, w)
	assert.NoError(t, err)
}

func TestUpdateGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin", false)
	g := f.group(t, admin)

	name := "  Lab Y "
	off := false
	updated, err := f.service.UpdateGroup(ctx, g.ID, admin, GroupPatch{Name: &name, AssistantEnabled: &off})
	require.NoError(t, err)
	assert.Equal(t, "Lab Y", updated.Name)
	assert.False(t, updated.AssistantEnabled)
	assert.Equal(t, "synthesis", updated.Description)

	empty := ""
	_, err = f.service.UpdateGroup(ctx, g.ID, admin, GroupPatch{Name: &empty})
	assert.ErrorIs(t, err, infrastructure.ErrValidation)
}

func TestGetGroupVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin", false)
	outsider := f.user(t, "outsider", false)

	private := f.group(t, admin)
	_, err := f.service.GetGroup(ctx, private.ID, outsider)
	assert.ErrorIs(t, err, infrastructure.ErrNotFound)

	public, err := f.service.CreateGroup(ctx, CreateGroupInput{Name: "Open Lab", IsPublic: true}, admin)
	require.NoError(t, err)
	got, err := f.service.GetGroup(ctx, public.ID, outsider)
	require.NoError(t, err)
	assert.Empty(t, got.InviteCode)

	listed, err := f.service.ListPublicGroups(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, public.ID, listed[0].ID)
	assert.Empty(t, listed[0].InviteCode)

	_, err = f.service.ListMembers(ctx, public.ID, outsider)
	assert.ErrorIs(t, err, infrastructure.ErrPermission)
}

func TestListUserGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin", false)
	u := f.user(t, "u", false)
	g := f.group(t, admin)
	_, err := f.service.JoinByInviteCode(ctx, g.InviteCode, u)
	require.NoError(t, err)

	groups, err := f.service.ListUserGroups(ctx, u)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, RoleMember, groups[0].Role)
	assert.Equal(t, 2, groups[0].MemberCount)
}

func TestSendInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin", false)
	u := f.user(t, "u", false)
	g := f.group(t, admin)
	_, err := f.service.JoinByInviteCode(ctx, g.InviteCode, u)
	require.NoError(t, err)

	assert.ErrorIs(t, f.service.SendInvite(ctx, g.ID, u, "new@example.com"), infrastructure.ErrPermission)
	assert.ErrorIs(t, f.service.SendInvite(ctx, g.ID, admin, "not-an-address"), infrastructure.ErrValidation)

	require.NoError(t, f.service.UpdateMemberRole(ctx, g.ID, u, RoleMentor, admin))
	require.NoError(t, f.service.SendInvite(ctx, g.ID, u, "new@example.com"))

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, sentInvite{"new@example.com", "Lab X", "u", g.InviteCode}, f.mailer.sent[0])
}
