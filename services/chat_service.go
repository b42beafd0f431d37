package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"winkwink_server/models"
	"winkwink_server/store"
)

const (
	DefaultPageSize         = 20
	MaxPageSize             = 100
	DefaultMaxMessageLength = 2000
)

// ChatService manages conversation metadata and the per-pair message log
type ChatService struct {
	UoW              *UnitOfWork
	Limiter          *RateLimiter
	Log              *zap.Logger
	MaxMessageLength int
	Now              func() time.Time
	NewID            func() string
}

func NewChatService(uow *UnitOfWork, limiter *RateLimiter, maxMessageLength int, log *zap.Logger) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	if maxMessageLength <= 0 {
		maxMessageLength = DefaultMaxMessageLength
	}
	return &ChatService{
		UoW:              uow,
		Limiter:          limiter,
		Log:              log,
		MaxMessageLength: maxMessageLength,
		Now:              func() time.Time { return time.Now().UTC() },
		NewID:            uuid.NewString,
	}
}

// SendMessage appends a message to the pair's log. The order is taken from the
// conversation's counter, so two concurrent senders conflict on the
// conversation version and one of them is replayed with the next number.
func (s *ChatService) SendMessage(ctx context.Context, senderID, receiverID, content string) (*models.Message, error) {
	if err := validatePair(senderID, receiverID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, InvalidArgument("message content is empty")
	}
	if utf8.RuneCountInString(content) > s.MaxMessageLength {
		return nil, InvalidArgument("message is too long")
	}
	if err := s.Limiter.Allow(ctx, ActionMessage, senderID); err != nil {
		return nil, err
	}

	var msg *models.Message
	err := s.UoW.Do(ctx, "send_message", func(ctx context.Context, tx store.Tx) error {
		msg = nil

		conv, err := matchedConversation(ctx, tx, senderID, receiverID)
		if err != nil {
			return err
		}

		order := conv.NextOrder()
		at := conv.ApplyMessage(senderID, content, s.Now())
		m := &models.Message{
			ConversationID: conv.ID,
			Order:          order,
			ID:             s.NewID(),
			SenderID:       senderID,
			Content:        content,
			CreatedAt:      at,
		}
		if err := tx.AddMessage(ctx, m); err != nil {
			return err
		}
		if err := tx.SaveConversation(ctx, conv); err != nil {
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Debug("message stored",
		zap.String("conversation_id", msg.ConversationID), zap.Int64("chat_order", msg.Order))
	return msg, nil
}

// MarkSeen sets only the viewer's seen flag of the conversation identified by its pair key
func (s *ChatService) MarkSeen(ctx context.Context, viewerID, pairKey string, isSeen bool) error {
	if viewerID == "" {
		return InvalidArgument("user id is required")
	}
	a, b, err := models.SplitPairKey(pairKey)
	if err != nil {
		return InvalidArgument("invalid chat id")
	}
	if viewerID != a && viewerID != b {
		return NotFound("chat not found")
	}

	return s.UoW.Do(ctx, "mark_seen", func(ctx context.Context, tx store.Tx) error {
		conv, err := tx.Conversation(ctx, pairKey)
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("chat not found")
		}
		if err != nil {
			return err
		}
		if !conv.SetSeen(viewerID, isSeen) {
			return nil
		}
		return tx.SaveConversation(ctx, conv)
	})
}

// ListConversations returns the user's chats updated at or after since, newest first
func (s *ChatService) ListConversations(ctx context.Context, userID string, since time.Time) ([]models.ConversationSummary, error) {
	if userID == "" {
		return nil, InvalidArgument("user id is required")
	}

	var out []models.ConversationSummary
	err := s.UoW.Do(ctx, "list_conversations", func(ctx context.Context, tx store.Tx) error {
		out = []models.ConversationSummary{}

		convs, err := tx.Conversations(ctx, userID, since)
		if err != nil {
			return err
		}
		for _, c := range convs {
			peerID := c.Peer(userID)
			var name string
			peer, err := tx.User(ctx, peerID)
			switch {
			case err == nil:
				name = peer.Name.Full()
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
			out = append(out, models.ConversationSummary{
				ID:              c.PairKey,
				MatchedUserName: name,
				MatchedUser:     peerID,
				LastMessage:     c.LastMessage,
				IsSeen:          c.SeenBy(userID),
				UpdatedAt:       c.UpdatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Messages returns one page of the pair's log strictly older than before (the
// newest page when before <= 0), highest order first.
func (s *ChatService) Messages(ctx context.Context, viewerID, peerID string, before int64, pageSize int) ([]models.MessageView, error) {
	if err := validatePair(viewerID, peerID); err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	var page []models.MessageView
	err := s.UoW.Do(ctx, "list_messages", func(ctx context.Context, tx store.Tx) error {
		page = []models.MessageView{}

		conv, err := matchedConversation(ctx, tx, viewerID, peerID)
		if err != nil {
			return err
		}
		msgs, err := tx.Messages(ctx, conv.ID, before, pageSize)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			page = append(page, m.ViewFor(viewerID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Pager walks the log from the newest message backwards
func (s *ChatService) Pager(viewerID, peerID string, pageSize int) *MessagePager {
	return &MessagePager{chat: s, viewerID: viewerID, peerID: peerID, pageSize: pageSize}
}

// MessagePager hands out successive pages with a strictly decreasing cursor.
// Next returns an empty page once the oldest message was delivered.
type MessagePager struct {
	chat     *ChatService
	viewerID string
	peerID   string
	pageSize int
	cursor   int64
	done     bool
}

func (p *MessagePager) Next(ctx context.Context) ([]models.MessageView, error) {
	if p.done {
		return []models.MessageView{}, nil
	}
	page, err := p.chat.Messages(ctx, p.viewerID, p.peerID, p.cursor, p.pageSize)
	if err != nil {
		return nil, err
	}
	if len(page) == 0 {
		p.done = true
		return page, nil
	}
	p.cursor = page[len(page)-1].Order
	if p.cursor <= 1 {
		p.done = true
	}
	return page, nil
}

// Cursor is the order the next page starts below, 0 before the first page
func (p *MessagePager) Cursor() int64 { return p.cursor }

// matchedConversation resolves the conversation of two matched users. Talking to
// someone you are not matched with is a failed precondition, an unknown peer is
// not found.
func matchedConversation(ctx context.Context, tx store.Tx, userID, peerID string) (*models.Conversation, error) {
	user, err := tx.User(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, PreconditionFailed("your account does not exist")
	}
	if err != nil {
		return nil, err
	}

	if !user.HasMatched(peerID) {
		if _, err := tx.User(ctx, peerID); errors.Is(err, store.ErrNotFound) {
			return nil, NotFound("user not found")
		} else if err != nil {
			return nil, err
		}
		return nil, PreconditionFailed("you are not matched with this user")
	}

	conv, err := tx.Conversation(ctx, models.PairKey(userID, peerID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, PreconditionFailed("you are not matched with this user")
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}
