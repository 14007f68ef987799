package repos_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/personaforge/backend/internal/repos"
	"github.com/personaforge/backend/internal/repos/testutil"
	"github.com/personaforge/backend/internal/types"
)

func TestPersonaRepo_UpdateFieldsCAS(t *testing.T) {
	log := testutil.Logger(t)
	gdb := testutil.DB(t)
	repo := repos.NewPersonaRepo(gdb, log)
	ctx := context.Background()

	persona := &types.Persona{ID: uuid.New(), UserID: uuid.New(), Name: "cas"}
	_, err := repo.Create(ctx, nil, []*types.Persona{persona})
	require.NoError(t, err)

	ok, err := repo.UpdateFieldsCAS(ctx, nil, persona.ID, 0, map[string]any{"name": "first"})
	require.NoError(t, err)
	require.True(t, ok)

	// Same lock version again: the row has moved on.
	ok, err = repo.UpdateFieldsCAS(ctx, nil, persona.ID, 0, map[string]any{"name": "second"})
	require.NoError(t, err)
	require.False(t, ok)

	got, err := repo.GetByID(ctx, nil, persona.ID)
	require.NoError(t, err)
	require.Equal(t, "first", got.Name)
	require.Equal(t, 1, got.LockVersion)

	ok, err = repo.UpdateFieldsCAS(ctx, nil, persona.ID, 1, map[string]any{"name": "second"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPersonaRepo_GetByID_NotFound(t *testing.T) {
	log := testutil.Logger(t)
	gdb := testutil.DB(t)
	repo := repos.NewPersonaRepo(gdb, log)

	_, err := repo.GetByID(context.Background(), nil, uuid.New())
	require.ErrorIs(t, err, repos.ErrNotFound)
}

func TestPersonaVersionRepo_DeactivateAllThenActivate(t *testing.T) {
	log := testutil.Logger(t)
	gdb := testutil.DB(t)
	personaRepo := repos.NewPersonaRepo(gdb, log)
	versionRepo := repos.NewPersonaVersionRepo(gdb, log)
	ctx := context.Background()

	persona := &types.Persona{ID: uuid.New(), UserID: uuid.New(), Name: "p"}
	_, err := personaRepo.Create(ctx, nil, []*types.Persona{persona})
	require.NoError(t, err)

	a := &types.PersonaVersion{ID: uuid.New(), PersonaID: persona.ID, Label: "1.0", Name: "a", Snapshot: []byte(`{}`), IsActive: true}
	b := &types.PersonaVersion{ID: uuid.New(), PersonaID: persona.ID, Label: "1.1", Name: "b", Snapshot: []byte(`{}`), IsDraft: true}
	_, err = versionRepo.Create(ctx, nil, []*types.PersonaVersion{a, b})
	require.NoError(t, err)

	require.NoError(t, versionRepo.DeactivateAll(ctx, nil, persona.ID))
	require.NoError(t, versionRepo.Activate(ctx, nil, b.ID))

	versions, err := versionRepo.GetByPersonaID(ctx, nil, persona.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	for _, v := range versions {
		if v.ID == b.ID {
			require.True(t, v.IsActive)
			require.False(t, v.IsDraft)
		} else {
			require.False(t, v.IsActive)
		}
	}

	count, err := versionRepo.CountByPersonaID(ctx, nil, persona.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestPersonaVersionRepo_PersistsDraftFlagLiterally(t *testing.T) {
	log := testutil.Logger(t)
	gdb := testutil.DB(t)
	personaRepo := repos.NewPersonaRepo(gdb, log)
	versionRepo := repos.NewPersonaVersionRepo(gdb, log)
	ctx := context.Background()

	persona := &types.Persona{ID: uuid.New(), UserID: uuid.New(), Name: "p"}
	_, err := personaRepo.Create(ctx, nil, []*types.Persona{persona})
	require.NoError(t, err)

	published := &types.PersonaVersion{ID: uuid.New(), PersonaID: persona.ID, Label: "1.0", Name: "published", Snapshot: []byte(`{}`), IsActive: true, IsDraft: false}
	draft := &types.PersonaVersion{ID: uuid.New(), PersonaID: persona.ID, Label: "1.1", Name: "draft", Snapshot: []byte(`{}`), IsDraft: true}
	_, err = versionRepo.Create(ctx, nil, []*types.PersonaVersion{published, draft})
	require.NoError(t, err)

	// The false must survive the insert; a column default must not win.
	got, err := versionRepo.GetByID(ctx, nil, published.ID)
	require.NoError(t, err)
	require.False(t, got.IsDraft)
	require.True(t, got.IsActive)

	got, err = versionRepo.GetByID(ctx, nil, draft.ID)
	require.NoError(t, err)
	require.True(t, got.IsDraft)
}
