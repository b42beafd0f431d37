package models

import "time"

type Message struct {
	ConversationID string    `dynamodbav:"conversationId" json:"-"`
	Order          int64     `dynamodbav:"chatOrder" json:"chatOrder"`
	ID             string    `dynamodbav:"id" json:"id"`
	SenderID       string    `dynamodbav:"senderId" json:"senderId"`
	Content        string    `dynamodbav:"content" json:"content"`
	CreatedAt      time.Time `dynamodbav:"createdAt" json:"createdAt"`
}

// MessageView is a message as seen by one participant
type MessageView struct {
	ID        string    `json:"id"`
	IsMine    bool      `json:"isMine"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Order     int64     `json:"chatOrder"`
}

func (m *Message) ViewFor(viewerID string) MessageView {
	return MessageView{
		ID:        m.ID,
		IsMine:    m.SenderID == viewerID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Order:     m.Order,
	}
}

// MessagesTable is the DynamoDB table name for conversation messages
const MessagesTable = "Messages"
