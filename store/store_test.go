package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvelle/parley/internal/profile"
	"github.com/kvelle/parley/store"
	"github.com/kvelle/parley/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	testProfile := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "parley_test.db"),
	}
	driver, err := sqlite.NewDB(testProfile)
	require.NoError(t, err)

	st := store.New(driver, testProfile)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestCreateConversationAssignsUID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateConversation(ctx, &store.Conversation{
		UserID: "u1",
		Title:  "First",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.UID)
	assert.NotZero(t, created.CreatedTs)
	assert.Equal(t, created.CreatedTs, created.UpdatedTs)

	second, err := st.CreateConversation(ctx, &store.Conversation{
		UserID: "u1",
		Title:  "Second",
	})
	require.NoError(t, err)
	assert.NotEqual(t, created.UID, second.UID)
}

func TestGetConversationUsesCache(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateConversation(ctx, &store.Conversation{UserID: "u1", Title: "Chat"})
	require.NoError(t, err)

	got, err := st.GetConversation(ctx, created.UID)
	require.NoError(t, err)
	assert.Equal(t, created.UID, got.UID)
	assert.Equal(t, "Chat", got.Title)

	_, err = st.GetConversation(ctx, "no-such-uid")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteConversationCascades(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	conversation, err := st.CreateConversation(ctx, &store.Conversation{UserID: "u1", Title: "Chat"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := st.CreateMessage(ctx, &store.Message{
			ConversationUID: conversation.UID,
			UserID:          "u1",
			Role:            store.RoleUser,
			Content:         "hello",
		})
		require.NoError(t, err)
	}

	// A message in another conversation must survive the cascade.
	other, err := st.CreateConversation(ctx, &store.Conversation{UserID: "u1", Title: "Other"})
	require.NoError(t, err)
	_, err = st.CreateMessage(ctx, &store.Message{
		ConversationUID: other.UID,
		UserID:          "u1",
		Role:            store.RoleAssistant,
		Content:         "still here",
	})
	require.NoError(t, err)

	require.NoError(t, st.DeleteConversation(ctx, &store.DeleteConversation{UID: conversation.UID}))

	messages, err := st.ListMessages(ctx, &store.FindMessage{ConversationUID: &conversation.UID})
	require.NoError(t, err)
	assert.Empty(t, messages)

	_, err = st.GetConversation(ctx, conversation.UID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	survivors, err := st.ListMessages(ctx, &store.FindMessage{ConversationUID: &other.UID})
	require.NoError(t, err)
	assert.Len(t, survivors, 1)
}

func TestUpdateConversationRefreshesCache(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	conversation, err := st.CreateConversation(ctx, &store.Conversation{UserID: "u1", Title: "Old"})
	require.NoError(t, err)

	title := "New"
	_, err = st.UpdateConversation(ctx, &store.UpdateConversation{UID: conversation.UID, Title: &title})
	require.NoError(t, err)

	got, err := st.GetConversation(ctx, conversation.UID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
}
