package auth_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/cloudguard/internal/auth"
	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/hugh/cloudguard/internal/testutil"
	"github.com/hugh/cloudguard/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestDeriveProfile(t *testing.T) {
	id := uuid.MustParse("3f2a9c1e-5b7d-4e8f-9a0b-1c2d3e4f5a6b")

	tests := []struct {
		name     string
		identity auth.Identity
		want     auth.Profile
	}{
		{
			name: "metadata wins",
			identity: auth.Identity{
				ID:       id,
				Email:    "jane@acme.io",
				Metadata: auth.UserMetadata{FullName: "Jane Doe", Company: "Acme Cloud GmbH"},
			},
			want: auth.Profile{FullName: "Jane Doe", Company: "Acme Cloud GmbH", Slug: "acme-cloud-gmbh-3f2a9c1e"},
		},
		{
			name:     "falls back to email parts",
			identity: auth.Identity{ID: id, Email: "max.mustermann@example.de"},
			want:     auth.Profile{FullName: "max.mustermann", Company: "example.de", Slug: "example-de-3f2a9c1e"},
		},
		{
			name:     "no email",
			identity: auth.Identity{ID: id},
			want:     auth.Profile{FullName: "User", Company: "Default Organization", Slug: "default-organization-3f2a9c1e"},
		},
		{
			name: "collapses punctuation runs",
			identity: auth.Identity{
				ID:       id,
				Email:    "a@b.c",
				Metadata: auth.UserMetadata{Company: "Müller & Söhne -- IT!!"},
			},
			want: auth.Profile{FullName: "a", Company: "Müller & Söhne -- IT!!", Slug: "m-ller-s-hne-it--3f2a9c1e"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.DeriveProfile(tt.identity))
		})
	}
}

func TestProvisioner_Ensure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	provisioner := auth.NewProvisioner(db, util.Discard())
	ctx := testutil.TestContext(t)

	identity := auth.Identity{
		ID:       uuid.New(),
		Email:    "owner@acme.io",
		Metadata: auth.UserMetadata{FullName: "Olivia Owner", Company: "Acme"},
	}

	user, created, err := provisioner.Ensure(ctx, identity)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, identity.ID, user.ID)
	assert.Equal(t, models.RoleOwner, user.Role)
	assert.Equal(t, "Olivia Owner", user.FullName)

	var org models.Organization
	require.NoError(t, db.First(&org, "id = ?", user.OrganizationID).Error)
	assert.Equal(t, "Acme", org.Name)
	assert.Equal(t, "acme-"+identity.ID.String()[:8], org.Slug)

	t.Run("second call is a no-op", func(t *testing.T) {
		again, created, err := provisioner.Ensure(ctx, identity)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, user.ID, again.ID)
		assert.Equal(t, user.OrganizationID, again.OrganizationID)

		assert.Equal(t, int64(1), countRows(t, db, &models.User{}))
		assert.Equal(t, int64(1), countRows(t, db, &models.Organization{}))
	})
}

func TestProvisioner_ExistingUserUntouched(t *testing.T) {
	db := testutil.SetupTestDB(t)
	org := testutil.CreateTestOrg(t, db)
	existing := testutil.CreateTestUser(t, db, org)

	provisioner := auth.NewProvisioner(db, util.Discard())
	user, created, err := provisioner.Ensure(testutil.TestContext(t), auth.Identity{
		ID:       existing.ID,
		Email:    existing.Email,
		Metadata: auth.UserMetadata{Company: "Something Else"},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, org.ID, user.OrganizationID)
	assert.Equal(t, int64(1), countRows(t, db, &models.Organization{}))
}

func TestProvisioner_ConcurrentFirstLogin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	provisioner := auth.NewProvisioner(db, util.Discard())
	ctx := testutil.TestContext(t)

	identity := auth.Identity{ID: uuid.New(), Email: "racer@example.com"}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		orgIDs  = map[uuid.UUID]bool{}
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, wasCreated, err := provisioner.Ensure(ctx, identity)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if wasCreated {
				created++
			}
			orgIDs[user.OrganizationID] = true
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, orgIDs, 1, "every caller must see the same organization")
	assert.Equal(t, int64(1), countRows(t, db, &models.User{}))
	assert.Equal(t, int64(1), countRows(t, db, &models.Organization{}), "losing transactions must not leave orphaned organizations")
}
