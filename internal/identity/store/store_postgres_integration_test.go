//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civreg/internal/identity/models"
	"civreg/internal/reconcile"
	id "civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"
	"civreg/pkg/testutil/containers"
)

func TestPostgresStore_RoundTrip(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := NewPostgresStore(pg.Pool)
	ctx := context.Background()

	identity, err := models.NewIdentity(id.IdentityID(uuid.New()), anchor)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, identity))

	expiry := anchor.Add(90 * 24 * time.Hour)
	_, err = s.Execute(ctx, identity.ID, func(stored *models.Identity) error {
		snapshot := stored.Snapshot()
		snapshot["mail"] = reconcile.AttributeState{
			Key:   "mail",
			Value: "doe@ville.fr",
			Certification: &reconcile.Certification{
				CertifierCode: "prefecture",
				TrustLevel:    2,
				ExpiresAt:     &expiry,
			},
		}
		snapshot["family_name"] = reconcile.AttributeState{Key: "family_name", Value: "Doe"}
		stored.ApplySnapshot(snapshot, anchor.Add(time.Minute))
		return nil
	})
	require.NoError(t, err)

	found, err := s.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.Version)
	assert.Len(t, found.Attributes, 2)

	mail := found.Attributes["mail"]
	assert.Equal(t, "doe@ville.fr", mail.Value)
	require.NotNil(t, mail.Certification)
	assert.Equal(t, id.CertifierCode("prefecture"), mail.Certification.CertifierCode)
	assert.Equal(t, 2, mail.Certification.TrustLevel)
	require.NotNil(t, mail.Certification.ExpiresAt)
	assert.WithinDuration(t, expiry, *mail.Certification.ExpiresAt, time.Second)

	name := found.Attributes["family_name"]
	assert.Nil(t, name.Certification)
}

func TestPostgresStore_FindUnknown(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := NewPostgresStore(pg.Pool)

	_, err := s.FindByID(context.Background(), id.IdentityID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresStore_ExecuteErrorRollsBack(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := NewPostgresStore(pg.Pool)
	ctx := context.Background()

	identity, err := models.NewIdentity(id.IdentityID(uuid.New()), anchor)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, identity))

	_, err = s.Execute(ctx, identity.ID, func(stored *models.Identity) error {
		snapshot := stored.Snapshot()
		snapshot["mail"] = reconcile.AttributeState{Key: "mail", Value: "doe@ville.fr"}
		stored.ApplySnapshot(snapshot, anchor)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	found, err := s.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Empty(t, found.Attributes)
	assert.Equal(t, int64(0), found.Version)
}

func TestPostgresStore_ConcurrentExecutesSerialize(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := NewPostgresStore(pg.Pool)
	ctx := context.Background()

	identity, err := models.NewIdentity(id.IdentityID(uuid.New()), anchor)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, identity))

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Execute(ctx, identity.ID, func(stored *models.Identity) error {
				snapshot := stored.Snapshot()
				snapshot["counter"] = reconcile.AttributeState{Key: "counter", Value: "x"}
				stored.ApplySnapshot(snapshot, time.Now())
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	found, err := s.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), found.Version, "row lock must serialize writers, one version bump each")
}
