// Package store defines the transactional storage contract used by the services.
//
// A Tx records the version of every user and conversation it reads. Writes are
// version guarded: creating requires the record to be absent, updating or
// deleting requires the version to be unchanged since it was read. On Commit the
// versions of records that were only read are checked as well, so a decision
// taken on a peer's state never commits after that peer changed. Any failed
// guard makes Commit return ErrConflict and nothing is applied.
package store

import (
	"context"
	"errors"
	"time"

	"winkwink_server/models"
)

var (
	ErrNotFound = errors.New("item not found")
	ErrConflict = errors.New("write conflict")
	ErrTooLarge = errors.New("transaction too large")
	ErrTxDone   = errors.New("transaction already finished")
)

// Store opens units of work
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one unit of work. It is not safe for concurrent use.
type Tx interface {
	// User returns ErrNotFound when the user does not exist
	User(ctx context.Context, id string) (*models.User, error)
	// SaveUser creates the user when Version is 0, otherwise updates it
	SaveUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, u *models.User) error
	// ScanUsers calls fn for every stored user until fn returns false.
	// Scanned users are not version tracked unless they are saved.
	ScanUsers(ctx context.Context, fn func(*models.User) bool) error

	// Conversation returns ErrNotFound when no conversation exists for the pair key
	Conversation(ctx context.Context, pairKey string) (*models.Conversation, error)
	SaveConversation(ctx context.Context, c *models.Conversation) error
	// DeleteConversation also removes every message of c.ID
	DeleteConversation(ctx context.Context, c *models.Conversation) error
	// Conversations lists the user's conversations with UpdatedAt >= since, newest first
	Conversations(ctx context.Context, userID string, since time.Time) ([]*models.Conversation, error)

	// AddMessage inserts a message; its (ConversationID, Order) must be unused
	AddMessage(ctx context.Context, m *models.Message) error
	// Messages returns up to limit messages with Order < before (all when before <= 0),
	// highest order first
	Messages(ctx context.Context, conversationID string, before int64, limit int) ([]*models.Message, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
