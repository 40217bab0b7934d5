// Package chat implements group chat semantics on top of the realtime
// directory: message persistence and broadcast, edit/delete with
// ownership checks, history replay at join time, typing signals and
// ephemeral reactions.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/campuslink/internal/apperr"
	"github.com/lalith-99/campuslink/internal/models"
	"github.com/lalith-99/campuslink/internal/realtime"
	"github.com/lalith-99/campuslink/internal/repository"
)

// historyLimit is how many messages seed a joining client. The replay
// is a finite snapshot, not a live subscription; anything older is out
// of scope for the realtime core.
const historyLimit = 50

// Reaction is an emoji attached to a message. Reactions are ephemeral:
// they live in process memory and are only ever delivered as
// reaction_added broadcasts.
type Reaction struct {
	MessageID  int64     `json:"messageId"`
	IdentityID uuid.UUID `json:"identityId"`
	Emoji      string    `json:"emoji"`
}

type Service struct {
	messages repository.MessageRepository
	members  repository.MembershipRepository
	dir      *realtime.Directory
	logger   *zap.Logger

	reactMu   sync.Mutex
	reactions map[int64][]Reaction
}

func NewService(
	messages repository.MessageRepository,
	members repository.MembershipRepository,
	dir *realtime.Directory,
	logger *zap.Logger,
) *Service {
	return &Service{
		messages:  messages,
		members:   members,
		dir:       dir,
		logger:    logger,
		reactions: make(map[int64][]Reaction),
	}
}

// Join authorizes the connection against durable group membership,
// joins the group room (announcing presence), then seeds the joining
// connection, and only it, with recent history.
func (s *Service) Join(ctx context.Context, c *realtime.Client, groupID uuid.UUID) error {
	member, err := s.members.IsMember(ctx, groupID, c.Identity.ID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !member {
		// Non-members get not-found, not permission-denied: a group id
		// probe must not reveal that the group exists.
		return fmt.Errorf("%w: group %s", apperr.ErrNotFound, groupID)
	}

	// Room entry comes before the history read: a message landing in
	// between reaches the client as a live new_message instead of
	// falling into neither the seed nor the broadcast. It may then show
	// up in both; clients dedupe by message id.
	s.dir.JoinGroup(c, groupID)

	history, err := s.History(ctx, groupID)
	if err != nil {
		s.dir.LeaveGroup(c, groupID)
		return err
	}

	s.dir.SendTo(c, realtime.Event{
		Name: realtime.EventMessageHistory,
		Data: map[string]any{"messages": history},
	})
	return nil
}

// Leave reverses Join for this connection.
func (s *Service) Leave(c *realtime.Client, groupID uuid.UUID) {
	s.dir.LeaveGroup(c, groupID)
}

// Send validates, persists and broadcasts a new message. The text must
// be non-empty after trimming — attachments alone do not qualify. The
// sender's typing entry is cleared as part of the send, and new_message
// goes to the room only after the write succeeded; a persistence
// failure is the sender's problem alone.
func (s *Service) Send(ctx context.Context, c *realtime.Client, groupID uuid.UUID, text string, attachments []string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", apperr.ErrValidation)
	}
	if !s.dir.HasJoined(c, groupID) {
		return nil, fmt.Errorf("%w: group %s", apperr.ErrNotFound, groupID)
	}

	msg, err := s.messages.Create(ctx, groupID, c.Identity.ID, text, attachments)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	msg.SenderName = c.Identity.Name

	// Sending implies the sender stopped typing, explicit typing_stop
	// or not.
	s.dir.ClearTyping(groupID, c.Identity.ID)

	s.dir.Broadcast(realtime.GroupRoom(groupID), realtime.Event{
		Name: realtime.EventNewMessage,
		Data: msg,
	})
	s.logger.Debug("message sent",
		zap.Int64("message_id", msg.ID),
		zap.String("group_id", groupID.String()),
	)
	return msg, nil
}

// Edit replaces the body of the caller's own message and broadcasts
// message_edited to the group. Editing someone else's message is a
// permission error; a missing or soft-deleted message is not-found.
func (s *Service) Edit(ctx context.Context, c *realtime.Client, messageID int64, newText string) (*models.Message, error) {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return nil, fmt.Errorf("%w: message text is required", apperr.ErrValidation)
	}

	existing, err := s.ownedMessage(ctx, c, messageID)
	if err != nil {
		return nil, err
	}

	updated, err := s.messages.MarkEdited(ctx, messageID, newText)
	if err != nil {
		return nil, fmt.Errorf("persist edit: %w", err)
	}
	if updated == nil {
		// Deleted between the ownership read and the update.
		return nil, fmt.Errorf("%w: message %d", apperr.ErrNotFound, messageID)
	}
	updated.SenderName = existing.SenderName

	s.dir.Broadcast(realtime.GroupRoom(updated.GroupID), realtime.Event{
		Name: realtime.EventMessageEdited,
		Data: map[string]any{
			"messageId": updated.ID,
			"newText":   updated.Body,
			"timestamp": updated.EditedAt,
		},
	})
	return updated, nil
}

// Delete soft-deletes the caller's own message. The row is retained so
// the broadcast message_deleted id stays referentially valid; history
// stops returning it.
func (s *Service) Delete(ctx context.Context, c *realtime.Client, messageID int64) error {
	existing, err := s.ownedMessage(ctx, c, messageID)
	if err != nil {
		return err
	}

	flipped, err := s.messages.MarkDeleted(ctx, messageID)
	if err != nil {
		return fmt.Errorf("persist delete: %w", err)
	}
	if !flipped {
		return fmt.Errorf("%w: message %d", apperr.ErrNotFound, messageID)
	}

	s.dir.Broadcast(realtime.GroupRoom(existing.GroupID), realtime.Event{
		Name: realtime.EventMessageDeleted,
		Data: map[string]any{"messageId": messageID},
	})
	return nil
}

// History returns the group's recent non-deleted messages in display
// order (oldest of the window first).
func (s *Service) History(ctx context.Context, groupID uuid.UUID) ([]models.Message, error) {
	recent, err := s.messages.ListRecent(ctx, groupID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	// The store returns newest-first; clients render oldest-first.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

// React records an ephemeral reaction and broadcasts reaction_added to
// the message's group. Reactions do not survive a process restart.
func (s *Service) React(ctx context.Context, c *realtime.Client, messageID int64, emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return fmt.Errorf("%w: emoji is required", apperr.ErrValidation)
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if msg == nil || msg.IsDeleted {
		return fmt.Errorf("%w: message %d", apperr.ErrNotFound, messageID)
	}

	reaction := Reaction{MessageID: messageID, IdentityID: c.Identity.ID, Emoji: emoji}

	s.reactMu.Lock()
	s.reactions[messageID] = append(s.reactions[messageID], reaction)
	s.reactMu.Unlock()

	s.dir.Broadcast(realtime.GroupRoom(msg.GroupID), realtime.Event{
		Name: realtime.EventReactionAdded,
		Data: reaction,
	})
	return nil
}

// Reactions returns the in-memory reactions recorded for a message.
func (s *Service) Reactions(messageID int64) []Reaction {
	s.reactMu.Lock()
	defer s.reactMu.Unlock()
	return append([]Reaction(nil), s.reactions[messageID]...)
}

// StartTyping and StopTyping forward typing signals to the directory.
func (s *Service) StartTyping(c *realtime.Client, groupID uuid.UUID) {
	s.dir.StartTyping(c, groupID)
}

func (s *Service) StopTyping(c *realtime.Client, groupID uuid.UUID) {
	s.dir.StopTyping(c, groupID)
}

// ownedMessage loads a message and verifies the caller owns it. The
// not-found and deleted cases collapse into ErrNotFound so existence
// never leaks; a live message owned by someone else is ErrPermission.
func (s *Service) ownedMessage(ctx context.Context, c *realtime.Client, messageID int64) (*models.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message: %w", err)
	}
	if msg == nil || msg.IsDeleted {
		return nil, fmt.Errorf("%w: message %d", apperr.ErrNotFound, messageID)
	}
	if msg.SenderID != c.Identity.ID {
		return nil, fmt.Errorf("%w: not the message sender", apperr.ErrPermission)
	}
	return msg, nil
}
