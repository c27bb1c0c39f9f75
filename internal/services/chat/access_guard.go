package chat

import (
	repoChat "messenger_backend/internal/repositories/chat"
	"messenger_backend/internal/repositories"
	"messenger_backend/pkg/apperrors"
)

// AccessGuard authorizes conversation actions and presence visibility.
// Block state is read from storage on every call, never cached: a block can
// land between a presence snapshot and the next update.
type AccessGuard struct {
	Conversations *repoChat.ConversationRepository
	Blocks        *repoChat.BlockRepository
	Users         *repositories.UserRepository
}

func NewAccessGuard(
	conversations *repoChat.ConversationRepository,
	blocks *repoChat.BlockRepository,
	users *repositories.UserRepository,
) *AccessGuard {
	return &AccessGuard{
		Conversations: conversations,
		Blocks:        blocks,
		Users:         users,
	}
}

// AssertConversationAccess fails unless the user is an active (non-deleted)
// participant of the conversation.
func (g *AccessGuard) AssertConversationAccess(conversationID, userID string) error {
	ok, err := g.Conversations.IsActiveParticipant(conversationID, userID)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	if !ok {
		return apperrors.Forbidden("Not a participant of this conversation")
	}
	return nil
}

// AssertCanMessage fails when a block exists in either direction between
// the two users.
func (g *AccessGuard) AssertCanMessage(senderID, recipientID string) error {
	blocked, err := g.Blocks.IsBlockedEither(senderID, recipientID)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	if blocked {
		return apperrors.Forbidden("Messaging is blocked between these users")
	}
	return nil
}

// AssertConversationInteraction combines membership and block checks: the
// user must be an active participant and not blocked either way by the
// other side. Used for typing signals and similar live interactions.
func (g *AccessGuard) AssertConversationInteraction(conversationID, userID string) error {
	if err := g.AssertConversationAccess(conversationID, userID); err != nil {
		return err
	}
	otherID, err := g.Conversations.OtherParticipantID(conversationID, userID)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	return g.AssertCanMessage(userID, otherID)
}

// CanSeePresence reports whether the viewer may observe the subject's
// online status.
func (g *AccessGuard) CanSeePresence(viewerID, subjectID string) (bool, error) {
	if viewerID == subjectID {
		return true, nil
	}

	subject, err := g.Users.FindByID(subjectID)
	if err != nil {
		return false, apperrors.DatabaseError(err)
	}
	if !subject.ShowOnlineStatus {
		return false, nil
	}

	blocked, err := g.Blocks.IsBlockedEither(viewerID, subjectID)
	if err != nil {
		return false, apperrors.DatabaseError(err)
	}
	return !blocked, nil
}

// FilterVisiblePresence returns the subset of candidates the viewer may see
// online: no block in either direction and online-status broadcast enabled.
func (g *AccessGuard) FilterVisiblePresence(viewerID string, candidateIDs []string) ([]string, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	blocked, err := g.Blocks.BlockedWith(viewerID, candidateIDs)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	users, err := g.Users.FindByIDs(candidateIDs)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	hidden := make(map[string]bool)
	for _, u := range users {
		if !u.ShowOnlineStatus {
			hidden[u.ID] = true
		}
	}

	visible := make([]string, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if id == viewerID {
			visible = append(visible, id)
			continue
		}
		if blocked[id] || hidden[id] {
			continue
		}
		visible = append(visible, id)
	}
	return visible, nil
}
