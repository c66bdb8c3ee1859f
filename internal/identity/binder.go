package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pluginmind/pluginmind-backend/internal/models"
	"github.com/pluginmind/pluginmind-backend/internal/session"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserStore is the persistence interface the binder depends on.
type UserStore interface {
	FindByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateGoogleID(ctx context.Context, id uint64, googleID string) error
	UpdateProfile(ctx context.Context, id uint64, profile datatypes.JSON) error
}

// Binder resolves verified identity claims to a local user record,
// creating the record on first login.
type Binder struct {
	store UserStore

	// Now supplies creation timestamps. Defaults to time.Now.
	Now func() time.Time
}

// NewBinder constructs a Binder.
func NewBinder(store UserStore) *Binder {
	return &Binder{store: store}
}

// BindOrCreate looks the user up by provider subject ID, then by email, and
// creates a new record when neither matches. An email match with a drifted
// or absent subject ID is rebound to the asserted one. All branches are
// idempotent under retry with the same claims; no record is ever deleted or
// deactivated here.
func (b *Binder) BindOrCreate(ctx context.Context, claims Claims) (*models.User, error) {
	if b == nil || b.store == nil {
		return nil, fmt.Errorf("identity: binder is not initialized")
	}
	if claims.Email == "" || claims.SubjectID == "" {
		return nil, session.ErrInvalidAssertion
	}

	user, errFind := b.store.FindByGoogleID(ctx, claims.SubjectID)
	if errFind != nil {
		return nil, storeFailure("find by subject id", errFind)
	}
	if user == nil {
		user, errFind = b.store.FindByEmail(ctx, claims.Email)
		if errFind != nil {
			return nil, storeFailure("find by email", errFind)
		}
	}

	switch {
	case user == nil:
		created, errCreate := b.create(ctx, claims)
		if errCreate != nil {
			return nil, errCreate
		}
		user = created
		log.WithField("user_id", user.ID).Info("created user on first login")
	case user.GoogleID == nil || *user.GoogleID != claims.SubjectID:
		if errUpdate := b.store.UpdateGoogleID(ctx, user.ID, claims.SubjectID); errUpdate != nil {
			return nil, storeFailure("rebind subject id", errUpdate)
		}
		googleID := claims.SubjectID
		user.GoogleID = &googleID
		log.WithField("user_id", user.ID).Info("rebound subject id for existing user")
	}

	b.snapshotProfile(ctx, user, claims)
	return user, nil
}

// create inserts a fresh record with tier defaults. A unique-constraint
// conflict means a concurrent first login won the insert; re-read and
// proceed with that record.
func (b *Binder) create(ctx context.Context, claims Claims) (*models.User, error) {
	now := b.clock().UTC()
	googleID := claims.SubjectID
	user := &models.User{
		Email:            claims.Email,
		GoogleID:         &googleID,
		SubscriptionTier: models.DefaultSubscriptionTier,
		QueriesUsed:      0,
		QueriesLimit:     models.DefaultQueriesLimit,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	errCreate := b.store.Create(ctx, user)
	if errCreate == nil {
		return user, nil
	}
	if !errors.Is(errCreate, gorm.ErrDuplicatedKey) {
		return nil, storeFailure("create", errCreate)
	}

	existing, errFind := b.store.FindByEmail(ctx, claims.Email)
	if errFind != nil {
		return nil, storeFailure("re-read after conflict", errFind)
	}
	if existing == nil {
		return nil, storeFailure("re-read after conflict", errCreate)
	}
	return existing, nil
}

// snapshotProfile persists the latest display name and avatar. Failures are
// logged and swallowed: binding has already succeeded and login must not
// fail past record creation.
func (b *Binder) snapshotProfile(ctx context.Context, user *models.User, claims Claims) {
	if claims.Name == "" && claims.Picture == "" {
		return
	}
	snapshot, errMarshal := json.Marshal(map[string]string{
		"name":    claims.Name,
		"picture": claims.Picture,
	})
	if errMarshal != nil {
		return
	}
	if errUpdate := b.store.UpdateProfile(ctx, user.ID, datatypes.JSON(snapshot)); errUpdate != nil {
		log.WithError(errUpdate).WithField("user_id", user.ID).Warn("profile snapshot update failed")
		return
	}
	user.Profile = datatypes.JSON(snapshot)
}

func (b *Binder) clock() time.Time {
	if b != nil && b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// storeFailure tags store I/O errors so handlers can distinguish a
// downstream outage from an authentication failure.
func storeFailure(op string, err error) error {
	return fmt.Errorf("identity: %s: %w: %v", op, session.ErrStoreUnavailable, err)
}
