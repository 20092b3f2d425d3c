package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvelle/parley/internal/profile"
	"github.com/kvelle/parley/store"
)

func newTestDriver(t *testing.T) store.Driver {
	t.Helper()

	testProfile := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "parley_test.db"),
	}
	driver, err := NewDB(testProfile)
	require.NoError(t, err)
	require.NoError(t, driver.Migrate(context.Background()))
	t.Cleanup(func() { _ = driver.Close() })
	return driver
}

func TestConversationCRUD(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	created, err := driver.CreateConversation(ctx, &store.Conversation{
		UID:       "conv-1",
		UserID:    "u1",
		Title:     "Planning",
		CreatedTs: 100,
		UpdatedTs: 100,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Planning", created.Title)

	uid := "conv-1"
	list, err := driver.ListConversations(ctx, &store.FindConversation{UID: &uid})
	require.NoError(t, err)
	require.Len(t, list, 1)

	title := "Renamed"
	starred := true
	updatedTs := int64(200)
	updated, err := driver.UpdateConversation(ctx, &store.UpdateConversation{
		UID:       "conv-1",
		Title:     &title,
		Starred:   &starred,
		UpdatedTs: &updatedTs,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.True(t, updated.Starred)
	assert.Equal(t, int64(200), updated.UpdatedTs)

	require.NoError(t, driver.DeleteConversation(ctx, &store.DeleteConversation{UID: "conv-1"}))
	list, err = driver.ListConversations(ctx, &store.FindConversation{UID: &uid})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListConversationsOrdersByUpdatedTs(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	for _, c := range []struct {
		uid string
		ts  int64
	}{
		{"old", 100},
		{"newest", 300},
		{"mid", 200},
	} {
		_, err := driver.CreateConversation(ctx, &store.Conversation{
			UID: c.uid, UserID: "u1", Title: c.uid, CreatedTs: c.ts, UpdatedTs: c.ts,
		})
		require.NoError(t, err)
	}

	list, err := driver.ListConversations(ctx, &store.FindConversation{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "newest", list[0].UID)
	assert.Equal(t, "mid", list[1].UID)
	assert.Equal(t, "old", list[2].UID)
}

func TestMessageRoundTrip(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	created, err := driver.CreateMessage(ctx, &store.Message{
		UID:             "msg-1",
		ConversationUID: "conv-1",
		UserID:          "u1",
		Role:            store.RoleUser,
		Content:         "hello",
		Files:           []string{"photo.jpg"},
		CreatedTs:       100,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"photo.jpg"}, created.Files)

	conversationUID := "conv-1"
	list, err := driver.ListMessages(ctx, &store.FindMessage{ConversationUID: &conversationUID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "hello", list[0].Content)
	assert.Equal(t, store.RoleUser, list[0].Role)
}

func TestListMessagesDegradesWithoutIndex(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()
	db := driver.(*DB)

	for i, conv := range []string{"a", "b", "a"} {
		_, err := driver.CreateMessage(ctx, &store.Message{
			UID:             "msg-" + string(rune('0'+i)),
			ConversationUID: conv,
			UserID:          "u1",
			Role:            store.RoleUser,
			Content:         "m",
			CreatedTs:       int64(i),
		})
		require.NoError(t, err)
	}

	// Simulate a schema without the secondary index.
	_, err := db.db.ExecContext(ctx, "DROP INDEX idx_message_conversation_uid")
	require.NoError(t, err)
	db.forgetIndexes()

	conversationUID := "a"
	list, err := driver.ListMessages(ctx, &store.FindMessage{ConversationUID: &conversationUID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, message := range list {
		assert.Equal(t, "a", message.ConversationUID)
	}
}

func TestDeleteMessagesRequiresFilter(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	err := driver.DeleteMessages(ctx, &store.DeleteMessage{})
	require.Error(t, err)
}

func TestPendingRequestLifecycle(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	created, err := driver.CreatePendingRequest(ctx, &store.PendingRequest{
		ID:         "req-1",
		Timestamp:  1000,
		Method:     "POST",
		URL:        "/api/v1/messages",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(`{"content":"hi"}`),
		MaxRetries: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, created.RetryCount)

	retryCount := 2
	updated, err := driver.UpdatePendingRequest(ctx, &store.UpdatePendingRequest{
		ID:         "req-1",
		RetryCount: &retryCount,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.RetryCount)
	assert.Equal(t, []byte(`{"content":"hi"}`), updated.Body)
	assert.Equal(t, "application/json", updated.Headers["Content-Type"])

	require.NoError(t, driver.DeletePendingRequest(ctx, &store.DeletePendingRequest{ID: "req-1"}))
	list, err := driver.ListPendingRequests(ctx, &store.FindPendingRequest{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdateMissingPendingRequest(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	retryCount := 1
	_, err := driver.UpdatePendingRequest(ctx, &store.UpdatePendingRequest{
		ID:         "no-such-request",
		RetryCount: &retryCount,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestCacheEntryGenerations(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	for _, e := range []struct {
		generation, url string
	}{
		{"v1", "http://localhost/app.js"},
		{"v1", "http://localhost/index.html"},
		{"v2", "http://localhost/app.js"},
	} {
		_, err := driver.UpsertCacheEntry(ctx, &store.CacheEntry{
			Generation: e.generation,
			URL:        e.url,
			StatusCode: 200,
			Header:     map[string]string{"Content-Type": "text/plain"},
			Body:       []byte("body"),
			FetchedTs:  100,
		})
		require.NoError(t, err)
	}

	generations, err := driver.ListCacheGenerations(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, generations)

	// Upsert replaces in place.
	_, err = driver.UpsertCacheEntry(ctx, &store.CacheEntry{
		Generation: "v2",
		URL:        "http://localhost/app.js",
		StatusCode: 200,
		Body:       []byte("fresh"),
		FetchedTs:  200,
	})
	require.NoError(t, err)
	entry, err := driver.GetCacheEntry(ctx, &store.FindCacheEntry{Generation: "v2", URL: "http://localhost/app.js"})
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), entry.Body)

	// Superseded generations are deleted wholesale.
	require.NoError(t, driver.DeleteCacheGeneration(ctx, "v1"))
	_, err = driver.GetCacheEntry(ctx, &store.FindCacheEntry{Generation: "v1", URL: "http://localhost/app.js"})
	assert.True(t, errors.Is(err, store.ErrNotFound))

	generations, err = driver.ListCacheGenerations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, generations)
}
