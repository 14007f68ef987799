package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/personaforge/backend/internal/repos"
	"github.com/personaforge/backend/internal/repos/testutil"
	"github.com/personaforge/backend/internal/types"
)

type versionEnv struct {
	gdb         *gorm.DB
	personaRepo repos.PersonaRepo
	versionRepo repos.PersonaVersionRepo
	service     VersionService
	persona     *types.Persona
	userID      uuid.UUID
}

func newVersionEnv(t *testing.T) *versionEnv {
	t.Helper()
	log := testutil.Logger(t)
	gdb := testutil.DB(t)

	personaRepo := repos.NewPersonaRepo(gdb, log)
	versionRepo := repos.NewPersonaVersionRepo(gdb, log)
	timelineRepo := repos.NewTimelineEventRepo(gdb, log)
	timelineService := NewTimelineService(gdb, log, personaRepo, timelineRepo)

	userID := uuid.New()
	persona, err := seedPersona(context.Background(), personaRepo, userID, "Mara")
	require.NoError(t, err)

	return &versionEnv{
		gdb:         gdb,
		personaRepo: personaRepo,
		versionRepo: versionRepo,
		service:     NewVersionService(gdb, log, personaRepo, versionRepo, timelineService),
		persona:     persona,
		userID:      userID,
	}
}

func TestVersionList_BootstrapsInitialVersion(t *testing.T) {
	env := newVersionEnv(t)
	ctx := context.Background()

	versions, err := env.service.List(ctx, env.persona.ID, env.userID)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	v := versions[0]
	require.Equal(t, "1.0", v.Label)
	require.Equal(t, "Initial Version", v.Name)
	require.True(t, v.IsActive)
	require.False(t, v.IsDraft)

	var snapshot types.VersionSnapshot
	require.NoError(t, json.Unmarshal(v.Snapshot, &snapshot))
	require.Equal(t, env.persona.Name, snapshot.Name)
	require.Equal(t, []string{"curious", "patient"}, snapshot.Traits)

	// Persona now points at the bootstrap version.
	persona, err := env.personaRepo.GetByID(ctx, nil, env.persona.ID)
	require.NoError(t, err)
	require.NotNil(t, persona.CurrentVersionID)
	require.Equal(t, v.ID, *persona.CurrentVersionID)
	require.Equal(t, "1.0", persona.CurrentVersionLabel)

	// A second list does not create another version.
	versions, err = env.service.List(ctx, env.persona.ID, env.userID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
}

func TestVersionCreate_DraftWithLineage(t *testing.T) {
	env := newVersionEnv(t)
	ctx := context.Background()

	base, err := env.service.List(ctx, env.persona.ID, env.userID)
	require.NoError(t, err)

	draft, err := env.service.Create(ctx, env.persona.ID, CreateVersionInput{
		Snapshot:        types.VersionSnapshot{Name: "Mara v2", Age: 35},
		ParentVersionID: &base[0].ID,
		Notes:           "sharper tone",
		CreatedBy:       env.userID,
	})
	require.NoError(t, err)
	require.True(t, draft.IsDraft)
	require.False(t, draft.IsActive)
	require.Equal(t, "1.1", draft.Label)
	require.Equal(t, &base[0].ID, draft.ParentVersionID)

	// Creating a draft does not disturb the active version.
	versions, err := env.service.List(ctx, env.persona.ID, env.userID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	active := 0
	for _, v := range versions {
		if v.IsActive {
			active++
		}
	}
	require.Equal(t, 1, active)
}

func TestVersionCreate_RejectsForeignParent(t *testing.T) {
	env := newVersionEnv(t)
	ctx := context.Background()

	other, err := seedPersona(ctx, env.personaRepo, env.userID, "Other")
	require.NoError(t, err)
	otherVersions, err := env.service.List(ctx, other.ID, env.userID)
	require.NoError(t, err)

	_, err = env.service.Create(ctx, env.persona.ID, CreateVersionInput{
		Snapshot:        types.VersionSnapshot{Name: "X"},
		ParentVersionID: &otherVersions[0].ID,
		CreatedBy:       env.userID,
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVersionPublish_SingleActiveInvariant(t *testing.T) {
	env := newVersionEnv(t)
	ctx := context.Background()

	_, err := env.service.List(ctx, env.persona.ID, env.userID)
	require.NoError(t, err)

	draft, err := env.service.Create(ctx, env.persona.ID, CreateVersionInput{
		Snapshot: types.VersionSnapshot{
			Name:       "Mara, revised",
			Age:        36,
			Occupation: "archivist",
			Traits:     []string{"meticulous"},
		},
		CreatedBy: env.userID,
	})
	require.NoError(t, err)

	published, err := env.service.Publish(ctx, env.persona.ID, draft.ID, env.userID)
	require.NoError(t, err)
	require.True(t, published.IsActive)
	require.False(t, published.IsDraft)

	versions, err := env.service.List(ctx, env.persona.ID, env.userID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	for _, v := range versions {
		if v.ID == draft.ID {
			require.True(t, v.IsActive)
		} else {
			require.False(t, v.IsActive)
		}
	}

	// Snapshot fields were copied onto the live persona.
	persona, err := env.personaRepo.GetByID(ctx, nil, env.persona.ID)
	require.NoError(t, err)
	require.Equal(t, "Mara, revised", persona.Name)
	require.Equal(t, 36, persona.Age)
	require.Equal(t, "archivist", persona.Occupation)
	require.Equal(t, draft.ID, *persona.CurrentVersionID)
	require.Equal(t, draft.Label, persona.CurrentVersionLabel)
	require.Greater(t, persona.LockVersion, 0)
}

func TestVersionPublish_UnknownVersion(t *testing.T) {
	env := newVersionEnv(t)
	_, err := env.service.Publish(context.Background(), env.persona.ID, uuid.New(), env.userID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVersionPublish_ConflictOnStaleLock(t *testing.T) {
	env := newVersionEnv(t)
	ctx := context.Background()

	base, err := env.service.List(ctx, env.persona.ID, env.userID)
	require.NoError(t, err)
	persona, err := env.personaRepo.GetByID(ctx, nil, env.persona.ID)
	require.NoError(t, err)

	// A writer using a stale lock version loses the swap.
	ok, err := env.personaRepo.UpdateFieldsCAS(ctx, nil, persona.ID, persona.LockVersion, map[string]any{"name": "winner"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = env.personaRepo.UpdateFieldsCAS(ctx, nil, persona.ID, persona.LockVersion, map[string]any{"name": "loser"})
	require.NoError(t, err)
	require.False(t, ok)

	// The version row itself is untouched by the failed swap.
	v, err := env.versionRepo.GetByID(ctx, nil, base[0].ID)
	require.NoError(t, err)
	require.True(t, v.IsActive)
}

func TestVersionLineage_WalksParentChain(t *testing.T) {
	env := newVersionEnv(t)
	ctx := context.Background()

	base, err := env.service.List(ctx, env.persona.ID, env.userID)
	require.NoError(t, err)

	child, err := env.service.Create(ctx, env.persona.ID, CreateVersionInput{
		Snapshot:        types.VersionSnapshot{Name: "child"},
		ParentVersionID: &base[0].ID,
		CreatedBy:       env.userID,
	})
	require.NoError(t, err)

	grandchild, err := env.service.Create(ctx, env.persona.ID, CreateVersionInput{
		Snapshot:        types.VersionSnapshot{Name: "grandchild"},
		ParentVersionID: &child.ID,
		CreatedBy:       env.userID,
	})
	require.NoError(t, err)

	chain, err := env.service.Lineage(ctx, grandchild.ID, env.userID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, grandchild.ID, chain[0].ID)
	require.Equal(t, child.ID, chain[1].ID)
	require.Equal(t, base[0].ID, chain[2].ID)
}

func TestVersionLabelIncrement(t *testing.T) {
	existing := []*types.PersonaVersion{
		{Label: "1.0"},
		{Label: "1.2"},
		{Label: "nightly"},
	}
	require.Equal(t, "1.3", nextVersionLabel(existing))
	require.Equal(t, "1.0", nextVersionLabel(nil))
	require.Equal(t, "2.1", nextVersionLabel([]*types.PersonaVersion{{Label: "2.0"}, {Label: "1.9"}}))
}

func TestVersions_ScopedToOwner(t *testing.T) {
	env := newVersionEnv(t)
	ctx := context.Background()

	base, err := env.service.List(ctx, env.persona.ID, env.userID)
	require.NoError(t, err)

	stranger := uuid.New()
	_, err = env.service.List(ctx, env.persona.ID, stranger)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = env.service.Create(ctx, env.persona.ID, CreateVersionInput{
		Snapshot:  types.VersionSnapshot{Name: "X"},
		CreatedBy: stranger,
	})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = env.service.Publish(ctx, env.persona.ID, base[0].ID, stranger)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = env.service.Lineage(ctx, base[0].ID, stranger)
	require.ErrorIs(t, err, ErrNotFound)
}
