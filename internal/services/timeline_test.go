package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/personaforge/backend/internal/repos"
	"github.com/personaforge/backend/internal/repos/testutil"
	"github.com/personaforge/backend/internal/types"
)

type timelineEnv struct {
	service TimelineService
	persona *types.Persona
	userID  uuid.UUID
}

func newTimelineEnv(t *testing.T) *timelineEnv {
	t.Helper()
	log := testutil.Logger(t)
	gdb := testutil.DB(t)
	personaRepo := repos.NewPersonaRepo(gdb, log)

	userID := uuid.New()
	persona, err := seedPersona(context.Background(), personaRepo, userID, "Tove")
	require.NoError(t, err)

	return &timelineEnv{
		service: NewTimelineService(gdb, log, personaRepo, repos.NewTimelineEventRepo(gdb, log)),
		persona: persona,
		userID:  userID,
	}
}

func TestTimelineRecord_Defaults(t *testing.T) {
	env := newTimelineEnv(t)

	event, err := env.service.Record(context.Background(), nil, TimelineEventInput{
		PersonaID: env.persona.ID,
		Title:     "Something happened",
		EventType: types.TimelineEventResearchUpload,
	})
	require.NoError(t, err)
	require.False(t, event.EventDate.IsZero())
	require.Equal(t, types.ImportanceMedium, event.Importance)

	_, err = env.service.Record(context.Background(), nil, TimelineEventInput{PersonaID: env.persona.ID})
	require.Error(t, err)
	_, err = env.service.Record(context.Background(), nil, TimelineEventInput{Title: "no persona"})
	require.Error(t, err)
}

func TestTimelineQuery_FiltersAndOrder(t *testing.T) {
	env := newTimelineEnv(t)
	ctx := context.Background()
	personaID := env.persona.ID

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seed := []TimelineEventInput{
		{PersonaID: personaID, Title: "created", EventType: types.TimelineEventPersonaCreated, Category: "persona", EventDate: base, Importance: types.ImportanceHigh},
		{PersonaID: personaID, Title: "upload one", EventType: types.TimelineEventResearchUpload, Category: "research", EventDate: base.AddDate(0, 0, 2)},
		{PersonaID: personaID, Title: "published", EventType: types.TimelineEventVersionPublish, Category: "versions", EventDate: base.AddDate(0, 0, 4), Importance: types.ImportanceMediumHigh},
		{PersonaID: personaID, Title: "upload two", EventType: types.TimelineEventResearchUpload, Category: "research", EventDate: base.AddDate(0, 0, 6)},
	}
	for _, input := range seed {
		_, err := env.service.Record(ctx, nil, input)
		require.NoError(t, err)
	}

	// Newest first by default.
	events, err := env.service.Query(ctx, env.userID, personaID, repos.TimelineQuery{})
	require.NoError(t, err)
	require.Len(t, events, 4)
	require.Equal(t, "upload two", events[0].Title)
	require.Equal(t, "created", events[3].Title)

	// Event type filter.
	events, err = env.service.Query(ctx, env.userID, personaID, repos.TimelineQuery{EventType: types.TimelineEventResearchUpload})
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Date range narrows to the middle entries.
	start := base.AddDate(0, 0, 1)
	end := base.AddDate(0, 0, 5)
	events, err = env.service.Query(ctx, env.userID, personaID, repos.TimelineQuery{StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Category plus limit.
	events, err = env.service.Query(ctx, env.userID, personaID, repos.TimelineQuery{Category: "research", Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "upload two", events[0].Title)
}

func TestTimelineQuery_ScopedToOwner(t *testing.T) {
	env := newTimelineEnv(t)
	ctx := context.Background()

	// A stranger cannot read the timeline, and an unknown persona is the
	// same as a foreign one.
	_, err := env.service.Query(ctx, uuid.New(), env.persona.ID, repos.TimelineQuery{})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = env.service.Query(ctx, env.userID, uuid.New(), repos.TimelineQuery{})
	require.ErrorIs(t, err, ErrNotFound)
}
