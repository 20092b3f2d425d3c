package store

import (
	"context"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/kvelle/parley/internal/profile"
	"github.com/kvelle/parley/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Cache for conversations; invalidated on every write.
	conversationCache *cache.Cache[string, *Conversation]
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:            driver,
		profile:           profile,
		conversationCache: cache.New[string, *Conversation](cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	s.conversationCache.Close()
	return s.driver.Close()
}

func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	if create.UID == "" {
		create.UID = shortuuid.New()
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}
	conversation, err := s.driver.CreateConversation(ctx, create)
	if err != nil {
		return nil, err
	}
	s.conversationCache.Set(conversation.UID, conversation)
	return conversation, nil
}

// GetConversation returns a single conversation by UID, consulting the read
// cache first.
func (s *Store) GetConversation(ctx context.Context, uid string) (*Conversation, error) {
	if conversation, ok := s.conversationCache.Get(uid); ok {
		return conversation, nil
	}

	list, err := s.driver.ListConversations(ctx, &FindConversation{UID: &uid})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	s.conversationCache.Set(uid, list[0])
	return list[0], nil
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	conversation, err := s.driver.UpdateConversation(ctx, update)
	if err != nil {
		return nil, err
	}
	s.conversationCache.Set(conversation.UID, conversation)
	return conversation, nil
}

// DeleteConversation removes a conversation and every message that belongs
// to it. There is no cross-record transaction; a crash between the two
// deletes leaves orphaned messages that the next delete pass removes.
func (s *Store) DeleteConversation(ctx context.Context, delete *DeleteConversation) error {
	if err := s.driver.DeleteMessages(ctx, &DeleteMessage{ConversationUID: &delete.UID}); err != nil {
		return err
	}
	if err := s.driver.DeleteConversation(ctx, delete); err != nil {
		return err
	}
	s.conversationCache.Delete(delete.UID)
	return nil
}

func (s *Store) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	if create.UID == "" {
		create.UID = shortuuid.New()
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	return s.driver.CreateMessage(ctx, create)
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

func (s *Store) DeleteMessages(ctx context.Context, delete *DeleteMessage) error {
	return s.driver.DeleteMessages(ctx, delete)
}

func (s *Store) CreatePendingRequest(ctx context.Context, create *PendingRequest) (*PendingRequest, error) {
	return s.driver.CreatePendingRequest(ctx, create)
}

func (s *Store) ListPendingRequests(ctx context.Context, find *FindPendingRequest) ([]*PendingRequest, error) {
	return s.driver.ListPendingRequests(ctx, find)
}

func (s *Store) UpdatePendingRequest(ctx context.Context, update *UpdatePendingRequest) (*PendingRequest, error) {
	return s.driver.UpdatePendingRequest(ctx, update)
}

func (s *Store) DeletePendingRequest(ctx context.Context, delete *DeletePendingRequest) error {
	return s.driver.DeletePendingRequest(ctx, delete)
}

func (s *Store) ClearPendingRequests(ctx context.Context) error {
	return s.driver.ClearPendingRequests(ctx)
}

func (s *Store) UpsertCacheEntry(ctx context.Context, upsert *CacheEntry) (*CacheEntry, error) {
	return s.driver.UpsertCacheEntry(ctx, upsert)
}

func (s *Store) GetCacheEntry(ctx context.Context, find *FindCacheEntry) (*CacheEntry, error) {
	return s.driver.GetCacheEntry(ctx, find)
}

func (s *Store) ListCacheGenerations(ctx context.Context) ([]string, error) {
	return s.driver.ListCacheGenerations(ctx)
}

func (s *Store) DeleteCacheGeneration(ctx context.Context, generation string) error {
	return s.driver.DeleteCacheGeneration(ctx, generation)
}
