package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"labspace/infrastructure"
	"labspace/internal/auth"
	"labspace/pkg/logger"
)

const maxDisplayNameLength = 100

// Directory maps external identities to local users and owns the
// user-level settings the rest of the system reads.
type Directory struct {
	userRepo               Repository
	defaultCanCreateGroups bool
	log                    *zap.Logger
}

func NewDirectory(userRepo Repository, defaultCanCreateGroups bool, log *zap.Logger) *Directory {
	return &Directory{
		userRepo:               userRepo,
		defaultCanCreateGroups: defaultCanCreateGroups,
		log:                    log,
	}
}

// Resolve returns the local user for identity, creating it on first
// authentication. Guests never get the group-creation capability.
func (d *Directory) Resolve(ctx context.Context, identity auth.Identity) (*User, error) {
	if strings.TrimSpace(identity.ExternalID) == "" {
		return nil, infrastructure.ValidationError("identity has no subject")
	}

	existing, err := d.userRepo.GetByExternalID(ctx, identity.ExternalID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, infrastructure.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	created, err := d.userRepo.Create(ctx, &User{
		ID:              uuid.New(),
		ExternalID:      identity.ExternalID,
		DisplayName:     displayName(identity),
		Availability:    Available,
		CanCreateGroups: d.defaultCanCreateGroups && !identity.Guest,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if errors.Is(err, infrastructure.ErrConflict) {
		// Lost a first-login race with a concurrent request for the same identity.
		return d.userRepo.GetByExternalID(ctx, identity.ExternalID)
	}
	if err != nil {
		return nil, err
	}

	d.log.Info("provisioned user",
		zap.String(logger.FieldUserID, created.ID.String()),
		zap.Bool("can_create_groups", created.CanCreateGroups),
	)
	return created, nil
}

// ResolveIdentity implements auth.Resolver.
func (d *Directory) ResolveIdentity(ctx context.Context, identity auth.Identity) (uuid.UUID, error) {
	u, err := d.Resolve(ctx, identity)
	if err != nil {
		return uuid.Nil, err
	}
	return u.ID, nil
}

func (d *Directory) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return d.userRepo.GetByID(ctx, id)
}

// DisplayNames returns the display name of every known id. Unknown ids are
// left out.
func (d *Directory) DisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	users, err := d.userRepo.GetByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(users))
	for id, u := range users {
		names[id] = u.DisplayName
	}
	return names, nil
}

func (d *Directory) SetAvailability(ctx context.Context, id uuid.UUID, availability Availability) error {
	if !availability.Valid() {
		return infrastructure.ValidationError("invalid availability %q", availability)
	}
	return d.userRepo.UpdateAvailability(ctx, id, availability)
}

func displayName(identity auth.Identity) string {
	name := strings.TrimSpace(identity.DisplayName)
	if name == "" {
		name = identity.ExternalID
	}
	if len(name) > maxDisplayNameLength {
		name = name[:maxDisplayNameLength]
	}
	return name
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
