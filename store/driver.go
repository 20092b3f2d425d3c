package store

import (
	"context"

	"github.com/pkg/errors"
)

// ErrUnavailable marks the durable store as unusable. Callers treat it as
// "proceed network-only" rather than fatal.
var ErrUnavailable = errors.New("storage unavailable")

// ErrNotFound is returned when a lookup by key matches no record.
var ErrNotFound = errors.New("record not found")

// Driver is the interface for all database drivers.
type Driver interface {
	GetDB() any
	Close() error

	// Migrate creates missing tables and indexes. It is idempotent and safe
	// to run on every startup.
	Migrate(ctx context.Context) error

	// SetFallbackObserver registers a callback invoked whenever an indexed
	// lookup degrades to a full scan.
	SetFallbackObserver(fn func())

	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, delete *DeleteConversation) error

	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	DeleteMessages(ctx context.Context, delete *DeleteMessage) error

	CreatePendingRequest(ctx context.Context, create *PendingRequest) (*PendingRequest, error)
	ListPendingRequests(ctx context.Context, find *FindPendingRequest) ([]*PendingRequest, error)
	UpdatePendingRequest(ctx context.Context, update *UpdatePendingRequest) (*PendingRequest, error)
	DeletePendingRequest(ctx context.Context, delete *DeletePendingRequest) error
	ClearPendingRequests(ctx context.Context) error

	UpsertCacheEntry(ctx context.Context, upsert *CacheEntry) (*CacheEntry, error)
	GetCacheEntry(ctx context.Context, find *FindCacheEntry) (*CacheEntry, error)
	ListCacheGenerations(ctx context.Context) ([]string, error)
	DeleteCacheGeneration(ctx context.Context, generation string) error
}
