package groups

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"labspace/infrastructure"
)

type memoryGroup struct {
	group   Group
	members map[uuid.UUID]*Membership
}

// MemoryRepository keeps groups in process; uniqueness of invite codes and
// of (group, user) pairs is enforced under one mutex.
type MemoryRepository struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]*memoryGroup
	byCode map[string]uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		groups: make(map[uuid.UUID]*memoryGroup),
		byCode: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) CreateGroup(_ context.Context, g *Group, admin *Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byCode[g.InviteCode]; taken {
		return errInviteCodeTaken
	}
	m := *admin
	r.groups[g.ID] = &memoryGroup{group: *g, members: map[uuid.UUID]*Membership{m.UserID: &m}}
	r.byCode[g.InviteCode] = g.ID
	g.MemberCount = 1
	return nil
}

func (r *MemoryRepository) InviteCodeAvailable(_ context.Context, code string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, taken := r.byCode[code]
	return !taken, nil
}

func (r *MemoryRepository) snapshot(mg *memoryGroup) *Group {
	g := mg.group
	g.MemberCount = len(mg.members)
	return &g
}

func (r *MemoryRepository) GetGroup(_ context.Context, id uuid.UUID) (*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mg, ok := r.groups[id]
	if !ok {
		return nil, infrastructure.NotFoundError(errGroupNotFound)
	}
	return r.snapshot(mg), nil
}

func (r *MemoryRepository) GetGroupByInviteCode(_ context.Context, code string) (*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCode[code]
	if !ok {
		return nil, infrastructure.NotFoundError("invalid invite code")
	}
	return r.snapshot(r.groups[id]), nil
}

func (r *MemoryRepository) UpdateGroup(_ context.Context, g *Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mg, ok := r.groups[g.ID]
	if !ok {
		return infrastructure.NotFoundError(errGroupNotFound)
	}
	mg.group.Name = g.Name
	mg.group.Description = g.Description
	mg.group.IsPublic = g.IsPublic
	mg.group.AssistantEnabled = g.AssistantEnabled
	mg.group.UpdatedAt = g.UpdatedAt
	return nil
}

func (r *MemoryRepository) SwapInviteCode(_ context.Context, groupID uuid.UUID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mg, ok := r.groups[groupID]
	if !ok {
		return infrastructure.NotFoundError(errGroupNotFound)
	}
	if _, taken := r.byCode[code]; taken {
		return errInviteCodeTaken
	}
	delete(r.byCode, mg.group.InviteCode)
	mg.group.InviteCode = code
	r.byCode[code] = groupID
	return nil
}

func (r *MemoryRepository) AddMember(_ context.Context, m *Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mg, ok := r.groups[m.GroupID]
	if !ok {
		return infrastructure.NotFoundError(errGroupNotFound)
	}
	if _, exists := mg.members[m.UserID]; exists {
		return infrastructure.ConflictError("already a member")
	}
	cp := *m
	mg.members[m.UserID] = &cp
	return nil
}

func (r *MemoryRepository) GetMembership(_ context.Context, groupID, userID uuid.UUID) (*Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mg, ok := r.groups[groupID]
	if !ok {
		return nil, infrastructure.NotFoundError(errNotMember)
	}
	m, ok := mg.members[userID]
	if !ok {
		return nil, infrastructure.NotFoundError(errNotMember)
	}
	cp := *m
	return &cp, nil
}

func (r *MemoryRepository) roles(mg *memoryGroup) map[uuid.UUID]Role {
	roles := make(map[uuid.UUID]Role, len(mg.members))
	for id, m := range mg.members {
		roles[id] = m.Role
	}
	return roles
}

func (r *MemoryRepository) UpdateMemberRole(_ context.Context, groupID, userID uuid.UUID, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mg, ok := r.groups[groupID]
	if !ok {
		return infrastructure.NotFoundError(errNotMember)
	}
	m, ok := mg.members[userID]
	if !ok {
		return infrastructure.NotFoundError(errNotMember)
	}
	roles := r.roles(mg)
	roles[userID] = role
	if !adminGuard(roles) {
		return infrastructure.ConflictError(errLastAdmin)
	}
	m.Role = role
	return nil
}

func (r *MemoryRepository) RemoveMember(_ context.Context, groupID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mg, ok := r.groups[groupID]
	if !ok {
		return infrastructure.NotFoundError(errNotMember)
	}
	if _, ok := mg.members[userID]; !ok {
		return infrastructure.NotFoundError(errNotMember)
	}
	roles := r.roles(mg)
	delete(roles, userID)
	if !adminGuard(roles) {
		return infrastructure.ConflictError(errLastAdmin)
	}
	delete(mg.members, userID)
	return nil
}

func (r *MemoryRepository) ListUserGroups(_ context.Context, userID uuid.UUID) ([]*UserGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*UserGroup
	for _, mg := range r.groups {
		m, ok := mg.members[userID]
		if !ok {
			continue
		}
		out = append(out, &UserGroup{Group: *r.snapshot(mg), Role: m.Role, JoinedAt: m.JoinedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.After(out[j].JoinedAt) })
	return out, nil
}

func (r *MemoryRepository) ListMembers(_ context.Context, groupID uuid.UUID) ([]*Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mg, ok := r.groups[groupID]
	if !ok {
		return nil, nil
	}
	out := make([]*Membership, 0, len(mg.members))
	for _, m := range mg.members {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (r *MemoryRepository) ListPublicGroups(_ context.Context) ([]*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Group
	for _, mg := range r.groups {
		if mg.group.IsPublic {
			out = append(out, r.snapshot(mg))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
