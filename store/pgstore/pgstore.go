// Package pgstore implements store.Store on PostgreSQL. Every unit of work runs
// in a SERIALIZABLE transaction and writes still carry the version guard, so
// both serialization failures and stale versions surface as store.ErrConflict.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"winkwink_server/models"
	"winkwink_server/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MinConns = 0
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	return pool, nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	if s.pool == nil {
		return nil, errors.New("postgres pool is nil")
	}
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", mapError(err))
	}
	return &tx{tx: pgTx, written: map[string]int64{}}, nil
}

type tx struct {
	tx   pgx.Tx
	done bool
	// version bumps applied to the callers' records once the commit succeeds
	bumps []func()
	// row versions as written by this transaction, keyed by table and id
	written map[string]int64
}

// expectedVersion is the version the row holds right now from this
// transaction's point of view
func (t *tx) expectedVersion(table, key string, callerVersion int64) int64 {
	if v, ok := t.written[table+"/"+key]; ok {
		return v
	}
	return callerVersion
}

const userColumns = `id, first_name, last_name, profile_image, age, sex, country, interests, language,
	pref_age_from, pref_age_to, pref_sex, has_liked, has_disliked, has_matched, created_at, version`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name.First, &u.Name.Last, &u.ProfileImage, &u.Age, &u.Sex, &u.Country,
		&u.Interests, &u.Language, &u.Preferences.Age.From, &u.Preferences.Age.To, &u.Preferences.Sex,
		&u.Liked, &u.Disliked, &u.Matched, &u.CreatedAt, &u.Version)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *tx) User(ctx context.Context, id string) (*models.User, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	u, err := scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, mapError(err))
	}
	return u, nil
}

func (t *tx) SaveUser(ctx context.Context, u *models.User) error {
	if t.done {
		return store.ErrTxDone
	}
	expected := t.expectedVersion("users", u.ID, u.Version)
	next := expected + 1
	args := []any{u.ID, u.Name.First, u.Name.Last, u.ProfileImage, u.Age, u.Sex, u.Country, u.Interests,
		nonNil(u.Language), u.Preferences.Age.From, u.Preferences.Age.To, u.Preferences.Sex,
		nonNil(u.Liked), nonNil(u.Disliked), nonNil(u.Matched), u.CreatedAt, next}

	var (
		tag pgconn.CommandTag
		err error
	)
	if expected == 0 {
		tag, err = t.tx.Exec(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (id) DO NOTHING
`, args...)
	} else {
		tag, err = t.tx.Exec(ctx, `
UPDATE users SET
	first_name = $2, last_name = $3, profile_image = $4, age = $5, sex = $6, country = $7,
	interests = $8, language = $9, pref_age_from = $10, pref_age_to = $11, pref_sex = $12,
	has_liked = $13, has_disliked = $14, has_matched = $15, created_at = $16, version = $17
WHERE id = $1 AND version = $18
`, append(args, expected)...)
	}
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", u.ID, store.ErrConflict)
	}
	t.written["users/"+u.ID] = next
	t.bumps = append(t.bumps, func() { u.Version = next })
	return nil
}

func (t *tx) DeleteUser(ctx context.Context, u *models.User) error {
	if t.done {
		return store.ErrTxDone
	}
	expected := t.expectedVersion("users", u.ID, u.Version)
	tag, err := t.tx.Exec(ctx, `DELETE FROM users WHERE id = $1 AND version = $2`, u.ID, expected)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", u.ID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", u.ID, store.ErrConflict)
	}
	t.written["users/"+u.ID] = 0
	return nil
}

func (t *tx) ScanUsers(ctx context.Context, fn func(*models.User) bool) error {
	if t.done {
		return store.ErrTxDone
	}
	rows, err := t.tx.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return fmt.Errorf("scan users: %w", mapError(err))
	}
	// collected first: the connection is busy while rows are open and fn may
	// issue further queries on this transaction
	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan users: %w", mapError(err))
	}

	for _, u := range users {
		if !fn(u) {
			return nil
		}
	}
	return nil
}

const conversationColumns = `pair_key, id, user_a, user_b, last_message, seen_by_a, seen_by_b,
	last_order, created_at, updated_at, version`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var c models.Conversation
	err := row.Scan(&c.PairKey, &c.ID, &c.UserA, &c.UserB, &c.LastMessage, &c.SeenByA, &c.SeenByB,
		&c.LastOrder, &c.CreatedAt, &c.UpdatedAt, &c.Version)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *tx) Conversation(ctx context.Context, pairKey string) (*models.Conversation, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	c, err := scanConversation(t.tx.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE pair_key = $1`, pairKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", pairKey, mapError(err))
	}
	return c, nil
}

func (t *tx) SaveConversation(ctx context.Context, c *models.Conversation) error {
	if t.done {
		return store.ErrTxDone
	}
	expected := t.expectedVersion("conversations", c.PairKey, c.Version)
	next := expected + 1
	args := []any{c.PairKey, c.ID, c.UserA, c.UserB, c.LastMessage, c.SeenByA, c.SeenByB,
		c.LastOrder, c.CreatedAt, c.UpdatedAt, next}

	var (
		tag pgconn.CommandTag
		err error
	)
	if expected == 0 {
		tag, err = t.tx.Exec(ctx, `
INSERT INTO conversations (`+conversationColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (pair_key) DO NOTHING
`, args...)
	} else {
		tag, err = t.tx.Exec(ctx, `
UPDATE conversations SET
	id = $2, user_a = $3, user_b = $4, last_message = $5, seen_by_a = $6, seen_by_b = $7,
	last_order = $8, created_at = $9, updated_at = $10, version = $11
WHERE pair_key = $1 AND version = $12
`, append(args, expected)...)
	}
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", c.PairKey, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", c.PairKey, store.ErrConflict)
	}
	t.written["conversations/"+c.PairKey] = next
	t.bumps = append(t.bumps, func() { c.Version = next })
	return nil
}

func (t *tx) DeleteConversation(ctx context.Context, c *models.Conversation) error {
	if t.done {
		return store.ErrTxDone
	}
	var id string
	err := t.tx.QueryRow(ctx,
		`DELETE FROM conversations WHERE pair_key = $1 AND version = $2 RETURNING id`,
		c.PairKey, t.expectedVersion("conversations", c.PairKey, c.Version)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("conversation %s: %w", c.PairKey, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", c.PairKey, mapError(err))
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
		return fmt.Errorf("delete messages of %s: %w", c.PairKey, mapError(err))
	}
	t.written["conversations/"+c.PairKey] = 0
	return nil
}

func (t *tx) Conversations(ctx context.Context, userID string, since time.Time) ([]*models.Conversation, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	rows, err := t.tx.Query(ctx, `
SELECT `+conversationColumns+`
FROM conversations
WHERE (user_a = $1 OR user_b = $1) AND updated_at >= $2
ORDER BY updated_at DESC, pair_key
`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", mapError(err))
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", mapError(err))
	}
	return out, nil
}

func (t *tx) AddMessage(ctx context.Context, m *models.Message) error {
	if t.done {
		return store.ErrTxDone
	}
	_, err := t.tx.Exec(ctx, `
INSERT INTO messages (conversation_id, chat_order, id, sender_id, content, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, m.ConversationID, m.Order, m.ID, m.SenderID, m.Content, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message %s/%d: %w", m.ConversationID, m.Order, mapError(err))
	}
	return nil
}

func (t *tx) Messages(ctx context.Context, conversationID string, before int64, limit int) ([]*models.Message, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	query := `
SELECT conversation_id, chat_order, id, sender_id, content, created_at
FROM messages
WHERE conversation_id = $1 AND ($2::bigint <= 0 OR chat_order < $2::bigint)
ORDER BY chat_order DESC`
	args := []any{conversationID, before}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", mapError(err))
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ConversationID, &m.Order, &m.ID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", mapError(err))
	}
	return out, nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	if err := ctx.Err(); err != nil {
		_ = t.tx.Rollback(context.WithoutCancel(ctx))
		return err
	}
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapError(err))
	}
	for _, bump := range t.bumps {
		bump()
	}
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

// Postgres error codes that mean "another unit of work got there first"
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// mapError turns serialization failures and duplicate keys into store.ErrConflict
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
			return fmt.Errorf("%s: %w", pgErr.Message, store.ErrConflict)
		}
	}
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
