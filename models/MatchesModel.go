package models

import (
	"errors"
	"strings"
	"time"
)

const pairKeySeparator = "_"

var (
	ErrInvalidPairKey = errors.New("invalid pair key")
	ErrInvalidUserID  = errors.New("user id must be non-empty and must not contain " + pairKeySeparator)
)

// ValidateUserID rejects ids that would make PairKey ambiguous
func ValidateUserID(id string) error {
	if strings.TrimSpace(id) == "" || strings.Contains(id, pairKeySeparator) {
		return ErrInvalidUserID
	}
	return nil
}

// PairKey builds the order independent key for two user ids. It is only unique
// for ids accepted by ValidateUserID.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + pairKeySeparator + b
}

// SplitPairKey returns the two ids of a pair key in canonical order
func SplitPairKey(key string) (string, string, error) {
	a, b, ok := strings.Cut(key, pairKeySeparator)
	if !ok || a >= b || ValidateUserID(a) != nil || ValidateUserID(b) != nil {
		return "", "", ErrInvalidPairKey
	}
	return a, b, nil
}

// Conversation is the per-match metadata record. ID changes on every new match
// between the same two users so messages of a dissolved match are never reachable
// from a later one.
type Conversation struct {
	PairKey     string    `dynamodbav:"pairKey" json:"pairKey"`
	ID          string    `dynamodbav:"id" json:"id"`
	UserA       string    `dynamodbav:"userA" json:"userA"`
	UserB       string    `dynamodbav:"userB" json:"userB"`
	LastMessage string    `dynamodbav:"lastMessage" json:"lastMessage"`
	SeenByA     bool      `dynamodbav:"seenByA" json:"seenByA"`
	SeenByB     bool      `dynamodbav:"seenByB" json:"seenByB"`
	LastOrder   int64     `dynamodbav:"lastOrder" json:"lastOrder"`
	CreatedAt   time.Time `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `dynamodbav:"updatedAt" json:"updatedAt"`
	Version     int64     `dynamodbav:"version" json:"-"`
}

// NewConversation returns the zero state record: no message, seen by both
func NewConversation(id, userA, userB string, now time.Time) *Conversation {
	if userB < userA {
		userA, userB = userB, userA
	}
	return &Conversation{
		PairKey:   PairKey(userA, userB),
		ID:        id,
		UserA:     userA,
		UserB:     userB,
		SeenByA:   true,
		SeenByB:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Conversation) Involves(userID string) bool {
	return userID == c.UserA || userID == c.UserB
}

// Peer returns the other participant
func (c *Conversation) Peer(userID string) string {
	if userID == c.UserA {
		return c.UserB
	}
	return c.UserA
}

func (c *Conversation) SeenBy(userID string) bool {
	if userID == c.UserA {
		return c.SeenByA
	}
	return c.SeenByB
}

// SetSeen updates only the viewer's flag and reports whether it changed
func (c *Conversation) SetSeen(userID string, seen bool) bool {
	if c.SeenBy(userID) == seen {
		return false
	}
	if userID == c.UserA {
		c.SeenByA = seen
	} else {
		c.SeenByB = seen
	}
	return true
}

// NextOrder reserves the next message order for this conversation
func (c *Conversation) NextOrder() int64 {
	c.LastOrder++
	return c.LastOrder
}

// ApplyMessage records a new message. UpdatedAt never moves backwards, the
// effective timestamp is returned so the message can carry the same value.
func (c *Conversation) ApplyMessage(senderID, content string, at time.Time) time.Time {
	if at.Before(c.UpdatedAt) {
		at = c.UpdatedAt
	}
	c.LastMessage = content
	c.UpdatedAt = at
	c.SetSeen(senderID, true)
	c.SetSeen(c.Peer(senderID), false)
	return at
}

func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// ConversationSummary is the chat listing row returned to a user
type ConversationSummary struct {
	ID              string    `json:"id"`
	MatchedUserName string    `json:"matchedUserName"`
	MatchedUser     string    `json:"matchedUser"`
	LastMessage     string    `json:"lastMessage"`
	IsSeen          bool      `json:"isSeen"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ConversationsTable is the DynamoDB table name for conversation metadata
const ConversationsTable = "Conversations"

// GSI names used to list a user's conversations by recency
const (
	UserAUpdatedIndex = "userA-updatedAtKey-index"
	UserBUpdatedIndex = "userB-updatedAtKey-index"
)
