// Package message lets buyers and sellers talk about a listing. A
// conversation is created lazily the first time a buyer contacts a seller;
// after that both sides exchange messages on it.
package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/marketctl/api"
)

// ErrEmptyMessage is returned when a message body is blank. The backend
// rejects these too; failing locally saves the round trip.
var ErrEmptyMessage = errors.New("message content is required")

// User identifies a conversation participant.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Message is one message in a conversation.
type Message struct {
	ID           int64     `json:"id"`
	Conversation int64     `json:"conversation"`
	Sender       User      `json:"sender"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	IsRead       bool      `json:"is_read"`
}

// Conversation is a thread between a buyer and a seller about one listing.
type Conversation struct {
	ID           int64     `json:"id"`
	Participants []User    `json:"participants"`
	Listing      int64     `json:"listing"`
	LastMessage  *Message  `json:"last_message"`
	UnreadCount  int       `json:"unread_count"`
	Location     string    `json:"location,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Service reads and writes conversations through the shared API client.
type Service struct {
	client *api.Client
}

// NewService creates a messaging service.
func NewService(client *api.Client) *Service {
	return &Service{client: client}
}

// ContactSeller starts (or continues) the conversation about a listing with
// an opening message. The backend reuses an existing conversation when the
// buyer already contacted this seller about this listing.
func (s *Service) ContactSeller(ctx context.Context, listingID int64, content string) (*Message, error) {
	if content == "" {
		return nil, ErrEmptyMessage
	}

	var msg Message
	path := fmt.Sprintf("/api/listings/%d/contact/", listingID)
	if err := s.client.Post(ctx, path, map[string]string{"message": content}, &msg); err != nil {
		return nil, fmt.Errorf("contact seller: %w", err)
	}
	return &msg, nil
}

// Conversations returns every conversation the user participates in.
func (s *Service) Conversations(ctx context.Context) ([]Conversation, error) {
	var conversations []Conversation
	if err := s.client.Get(ctx, "/api/conversations/", &conversations); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}

// Send posts a message to an existing conversation.
func (s *Service) Send(ctx context.Context, conversationID int64, content string) (*Message, error) {
	if content == "" {
		return nil, ErrEmptyMessage
	}

	var msg Message
	path := fmt.Sprintf("/api/conversations/%d/send_message/", conversationID)
	if err := s.client.Post(ctx, path, map[string]string{"message": content}, &msg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &msg, nil
}

// MarkRead marks every message from the other participants as read.
func (s *Service) MarkRead(ctx context.Context, conversationID int64) error {
	path := fmt.Sprintf("/api/conversations/%d/mark_as_read/", conversationID)
	if err := s.client.Post(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	return nil
}

// Messages returns a conversation's messages in posting order. The backend's
// message list spans every conversation the user participates in, so the
// conversation filter is applied here.
func (s *Service) Messages(ctx context.Context, conversationID int64) ([]Message, error) {
	var all []Message
	if err := s.client.Get(ctx, "/api/messages/", &all); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]Message, 0, len(all))
	for _, m := range all {
		if m.Conversation == conversationID {
			messages = append(messages, m)
		}
	}
	return messages, nil
}
