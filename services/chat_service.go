package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"parley/contract"
	"parley/domain"
	"parley/domain/event"
	"parley/errors"
	"parley/moderation"
	"parley/repositories"
)

type IChatService interface {
	GetChats(ctx context.Context, viewerID string) ([]domain.ConversationView, error)
	GetMembers(conversation domain.ConversationID, viewerID string) ([]domain.MemberView, error)
	CreateDM(ctx context.Context, creatorID, otherUsername string) (domain.ConversationView, error)
	CreateGroup(ctx context.Context, creatorID, name string, memberIDs []string) (domain.ConversationView, error)
	PostMessage(ctx context.Context, senderID string, conversation domain.ConversationID, content, fileRef *string) (domain.MessageView, error)
	DeleteMessage(ctx context.Context, actorID string, messageID uuid.UUID) error
	DownloadTranscript(ctx context.Context, viewerID string, conversation domain.ConversationID) (string, error)
	SearchMessages(ctx context.Context, viewerID string, conversation domain.ConversationID, terms string, limit int) ([]domain.MessageView, error)
	AddMember(ctx context.Context, actorID string, conversation domain.ConversationID, userID string) error
	RemoveMember(ctx context.Context, actorID string, conversation domain.ConversationID, userID string) error
	LeaveGroup(ctx context.Context, actorID string, conversation domain.ConversationID) error
	ToggleAdmin(ctx context.Context, actorID string, conversation domain.ConversationID, userID string) (bool, error)
	Rename(ctx context.Context, actorID string, conversation domain.ConversationID, name string) error
	SetMode(ctx context.Context, actorID string, conversation domain.ConversationID, disappearing bool) error
	SetConversationPicture(ctx context.Context, actorID string, conversation domain.ConversationID, picture string) error
}

// ChatService implements every conversation operation. Mutations commit to
// the store first; fan-out happens only after the commit, so an event is
// never observed for state that did not persist.
type ChatService struct {
	log           *slog.Logger
	users         repositories.IUserRepository
	conversations repositories.IConversationRepository
	memberships   repositories.IMembershipRepository
	messages      repositories.IMessageRepository
	index         repositories.ISearchIndex
	moderator     *moderation.Moderator
	registry      contract.IRegistry
	fanout        contract.IFanout
	reaper        *Reaper
	now           func() time.Time
}

func NewChatService(log *slog.Logger,
	users repositories.IUserRepository,
	conversations repositories.IConversationRepository,
	memberships repositories.IMembershipRepository,
	messages repositories.IMessageRepository,
	index repositories.ISearchIndex,
	moderator *moderation.Moderator,
	registry contract.IRegistry,
	fanout contract.IFanout,
	reaper *Reaper) *ChatService {
	return &ChatService{
		log:           log,
		users:         users,
		conversations: conversations,
		memberships:   memberships,
		messages:      messages,
		index:         index,
		moderator:     moderator,
		registry:      registry,
		fanout:        fanout,
		reaper:        reaper,
		now:           time.Now,
	}
}

// GetChats assembles the viewer's conversation list. Expired disappearing
// messages are purged before any history is read, so a client can never
// observe one.
func (s *ChatService) GetChats(ctx context.Context, viewerID string) ([]domain.ConversationView, error) {
	ids, err := s.memberships.ActiveConversations(viewerID)
	if err != nil {
		return nil, errors.Store(err)
	}

	views := make([]domain.ConversationView, 0, len(ids))
	seen := make([]domain.ConversationID, 0, len(ids))
	for _, id := range ids {
		view, err := s.viewFor(id, viewerID, true)
		if err != nil {
			s.log.Warn("Skipping unreadable conversation", "conversation", id, "error", err)
			continue
		}
		views = append(views, view)
		seen = append(seen, id)
	}
	if err := s.memberships.StampSeen(viewerID, seen, s.now().UTC()); err != nil {
		s.log.Warn("Failed to stamp last seen", "viewer", viewerID, "error", err)
	}

	// Most recently active first
	sort.Slice(views, func(i, j int) bool {
		return views[i].LastActivity.After(views[j].LastActivity)
	})
	return views, nil
}

// GetMembers returns the active roster with admins listed first.
func (s *ChatService) GetMembers(conversation domain.ConversationID, viewerID string) ([]domain.MemberView, error) {
	if err := s.requireActiveMember(conversation, viewerID); err != nil {
		return nil, err
	}

	members, err := s.memberships.ActiveMembers(conversation)
	if err != nil {
		return nil, errors.Store(err)
	}

	views := make([]domain.MemberView, 0, len(members))
	for _, m := range members {
		user, err := s.users.GetUser(m.UserID)
		if err != nil {
			return nil, errors.Store(err)
		}
		views = append(views, domain.MemberView{
			UserID:   m.UserID,
			Username: user.Username,
			Picture:  user.Picture,
			Admin:    m.Admin,
		})
	}

	admins, others := lo.FilterReject(views, func(v domain.MemberView, _ int) bool {
		return v.Admin
	})
	return append(admins, others...), nil
}

// CreateDM opens a direct conversation with another user. Both parties are
// admins of a direct conversation. If one already exists between the two,
// it is returned instead of creating a duplicate.
func (s *ChatService) CreateDM(ctx context.Context, creatorID, otherUsername string) (domain.ConversationView, error) {
	other, err := s.users.GetUserByUsername(otherUsername)
	if err != nil {
		return domain.ConversationView{}, errors.NotFoundf("user %s", otherUsername)
	}
	if other.ID == creatorID {
		return domain.ConversationView{}, errors.Validationf("cannot open a direct conversation with yourself")
	}

	if existing, ok := s.findDirect(creatorID, other.ID); ok {
		return s.viewFor(existing, creatorID, false)
	}

	conversation := domain.Conversation{
		ID:           domain.ConversationID(uuid.NewString()),
		Kind:         domain.KindDirect,
		LastActivity: s.now().UTC(),
	}
	if err := s.conversations.Create(conversation); err != nil {
		return domain.ConversationView{}, errors.Store(err)
	}
	for _, userID := range []string{creatorID, other.ID} {
		if _, err := s.memberships.Upsert(userID, conversation.ID, true); err != nil {
			return domain.ConversationView{}, errors.Store(err)
		}
		s.registry.SubscribeUser(userID, conversation.ID)
	}

	// The counterpart gets a snapshot personalized for them, never for the
	// creator; the creator receives the view as the call's return value.
	otherView, err := s.viewFor(conversation.ID, other.ID, false)
	if err == nil {
		s.fanout.PublishToUser(ctx, other.ID, event.ConversationCreated{
			Conversation: conversation.ID,
			Snapshot:     otherView,
		})
	}

	return s.viewFor(conversation.ID, creatorID, false)
}

// CreateGroup opens a group conversation. The creator is the initial admin;
// every listed member starts as a regular member.
func (s *ChatService) CreateGroup(ctx context.Context, creatorID, name string, memberIDs []string) (domain.ConversationView, error) {
	if strings.TrimSpace(name) == "" {
		return domain.ConversationView{}, errors.Validationf("group name is empty")
	}

	// Resolve every member before the first write so an unknown id leaves
	// no half-created group behind.
	members := lo.Reject(lo.Uniq(memberIDs), func(userID string, _ int) bool {
		return userID == creatorID
	})
	for _, userID := range members {
		if _, err := s.users.GetUser(userID); err != nil {
			return domain.ConversationView{}, errors.NotFoundf("user %s", userID)
		}
	}

	conversation := domain.Conversation{
		ID:           domain.ConversationID(uuid.NewString()),
		Kind:         domain.KindGroup,
		Name:         &name,
		LastActivity: s.now().UTC(),
	}
	if err := s.conversations.Create(conversation); err != nil {
		return domain.ConversationView{}, errors.Store(err)
	}

	if _, err := s.memberships.Upsert(creatorID, conversation.ID, true); err != nil {
		return domain.ConversationView{}, errors.Store(err)
	}
	s.registry.SubscribeUser(creatorID, conversation.ID)

	for _, userID := range members {
		if _, err := s.memberships.Upsert(userID, conversation.ID, false); err != nil {
			return domain.ConversationView{}, errors.Store(err)
		}
		s.registry.SubscribeUser(userID, conversation.ID)
	}

	view, err := s.viewFor(conversation.ID, creatorID, false)
	if err != nil {
		return domain.ConversationView{}, err
	}
	s.fanout.Publish(ctx, conversation.ID, event.ConversationCreated{
		Conversation: conversation.ID,
		Snapshot:     view,
	})
	return view, nil
}

// PostMessage censors, persists and fans out one message. The disappearing
// flag is frozen from the conversation's mode at creation time.
func (s *ChatService) PostMessage(ctx context.Context, senderID string, conversation domain.ConversationID, content, fileRef *string) (domain.MessageView, error) {
	if err := s.requireActiveMember(conversation, senderID); err != nil {
		return domain.MessageView{}, err
	}
	conv, err := s.conversations.Get(conversation)
	if err != nil {
		return domain.MessageView{}, errors.NotFoundf("conversation %s", conversation)
	}

	if content != nil && *content != "" {
		censored, matched := s.moderator.Censor(*content)
		if len(matched) > 0 {
			s.log.Info("Censored message content",
				"conversation", conversation, "sender", senderID, "words", len(matched))
		}
		content = &censored
	}

	message := domain.Message{
		ID:             uuid.New(),
		ConversationID: conversation,
		SenderID:       senderID,
		Content:        content,
		FileRef:        fileRef,
		Disappearing:   conv.DisappearingMode,
		CreatedAt:      s.now().UTC(),
	}
	if !message.HasBody() {
		return domain.MessageView{}, errors.Validationf("message needs text or a file")
	}

	if err := s.messages.Store(message); err != nil {
		return domain.MessageView{}, errors.Store(err)
	}
	if err := s.conversations.Touch(conversation, message.CreatedAt); err != nil {
		s.log.Warn("Failed to touch conversation", "conversation", conversation, "error", err)
	}
	if err := s.index.Index(message); err != nil {
		s.log.Warn("Failed to index message", "message", message.ID, "error", err)
	}

	sender, err := s.users.GetUser(senderID)
	if err != nil {
		return domain.MessageView{}, errors.Store(err)
	}
	view := messageView(message, sender, false)
	s.fanout.Publish(ctx, conversation, event.MessageCreated{
		Conversation: conversation,
		Message:      view,
	})
	return view, nil
}

// DeleteMessage removes one message. Only its sender may delete it.
func (s *ChatService) DeleteMessage(ctx context.Context, actorID string, messageID uuid.UUID) error {
	message, err := s.messages.Get(messageID)
	if err != nil {
		return errors.NotFoundf("message %s", messageID)
	}
	if message.SenderID != actorID {
		return errors.Permissionf("only the sender can delete a message")
	}

	if err := s.messages.Delete(messageID); err != nil {
		return errors.Store(err)
	}
	if err := s.index.Remove(messageID); err != nil {
		s.log.Warn("Failed to remove message from index", "message", messageID, "error", err)
	}

	s.fanout.Publish(ctx, message.ConversationID, event.MessageDeleted{
		Conversation: message.ConversationID,
		MessageID:    messageID,
	})
	return nil
}

// DownloadTranscript renders the readable history of one conversation as
// plain text, one line per message.
func (s *ChatService) DownloadTranscript(ctx context.Context, viewerID string, conversation domain.ConversationID) (string, error) {
	if err := s.requireActiveMember(conversation, viewerID); err != nil {
		return "", err
	}
	if _, err := s.conversations.Get(conversation); err != nil {
		return "", errors.NotFoundf("conversation %s", conversation)
	}
	s.reaper.Purge(conversation)

	messages, err := s.messages.List(conversation)
	if err != nil {
		return "", errors.Store(err)
	}

	var b strings.Builder
	names := make(map[string]string)
	for _, message := range messages {
		name, ok := names[message.SenderID]
		if !ok {
			if user, err := s.users.GetUser(message.SenderID); err == nil {
				name = user.Username
			} else {
				name = message.SenderID
			}
			names[message.SenderID] = name
		}
		body := "<File Sent>"
		if message.Content != nil && *message.Content != "" {
			body = *message.Content
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n",
			message.CreatedAt.Format("2006-01-02 15:04"), name, body)
	}
	return b.String(), nil
}

// SearchMessages runs a full-text query scoped to one conversation.
func (s *ChatService) SearchMessages(ctx context.Context, viewerID string, conversation domain.ConversationID, terms string, limit int) ([]domain.MessageView, error) {
	if err := s.requireActiveMember(conversation, viewerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(terms) == "" {
		return nil, errors.Validationf("search terms are empty")
	}

	ids, err := s.index.Search(ctx, conversation, terms, limit)
	if err != nil {
		return nil, errors.Store(err)
	}

	active, profiles, err := s.rosterIndex(conversation)
	if err != nil {
		return nil, err
	}

	views := make([]domain.MessageView, 0, len(ids))
	for _, id := range ids {
		message, err := s.messages.Get(id)
		if err != nil {
			// Index entries can outlive a purge by one cycle
			continue
		}
		sender := s.profileFor(profiles, message.SenderID)
		views = append(views, messageView(message, sender, !active[message.SenderID]))
	}
	return views, nil
}

// AddMember invites a user into a group. A previously removed member is
// revived with their former admin state intact.
func (s *ChatService) AddMember(ctx context.Context, actorID string, conversation domain.ConversationID, userID string) error {
	if err := s.requireGroupAdmin(conversation, actorID); err != nil {
		return err
	}
	user, err := s.users.GetUser(userID)
	if err != nil {
		return errors.NotFoundf("user %s", userID)
	}

	membership, err := s.memberships.Upsert(userID, conversation, false)
	if err != nil {
		return errors.Store(err)
	}
	s.registry.SubscribeUser(userID, conversation)

	s.fanout.Publish(ctx, conversation, event.MemberAdded{
		Conversation: conversation,
		Member: domain.MemberView{
			UserID:   userID,
			Username: user.Username,
			Picture:  user.Picture,
			Admin:    membership.Admin,
		},
	})

	// The newcomer also needs the full snapshot to render the conversation
	if view, err := s.viewFor(conversation, userID, false); err == nil {
		s.fanout.PublishToUser(ctx, userID, event.ConversationCreated{
			Conversation: conversation,
			Snapshot:     view,
		})
	}
	return nil
}

// RemoveMember soft-removes a group member. History stays; the member's
// subscription is dropped and both sides are notified.
func (s *ChatService) RemoveMember(ctx context.Context, actorID string, conversation domain.ConversationID, userID string) error {
	if err := s.requireGroupAdmin(conversation, actorID); err != nil {
		return err
	}
	return s.removeMember(ctx, conversation, userID)
}

// LeaveGroup is self-removal and needs no admin standing.
func (s *ChatService) LeaveGroup(ctx context.Context, actorID string, conversation domain.ConversationID) error {
	conv, err := s.conversations.Get(conversation)
	if err != nil {
		return errors.NotFoundf("conversation %s", conversation)
	}
	if conv.Direct() {
		return errors.Validationf("cannot leave a direct conversation")
	}
	if err := s.requireActiveMember(conversation, actorID); err != nil {
		return err
	}
	return s.removeMember(ctx, conversation, actorID)
}

func (s *ChatService) removeMember(ctx context.Context, conversation domain.ConversationID, userID string) error {
	if err := s.requireActiveMember(conversation, userID); err != nil {
		return err
	}
	if err := s.memberships.SetStatus(conversation, userID, domain.StatusRemoved); err != nil {
		return errors.Store(err)
	}
	s.registry.UnsubscribeUser(userID, conversation)

	removal := event.MemberRemoved{Conversation: conversation, UserID: userID}
	s.fanout.Publish(ctx, conversation, removal)
	// The removed user is no longer an active member, so the conversation
	// fan-out above cannot reach them; address them directly.
	s.fanout.PublishToUser(ctx, userID, removal)
	return nil
}

// ToggleAdmin flips the target's admin flag and returns the new value.
func (s *ChatService) ToggleAdmin(ctx context.Context, actorID string, conversation domain.ConversationID, userID string) (bool, error) {
	if err := s.requireGroupAdmin(conversation, actorID); err != nil {
		return false, err
	}
	membership, err := s.memberships.Get(conversation, userID)
	if err != nil || !membership.Active() {
		return false, errors.NotFoundf("member %s", userID)
	}

	next := !membership.Admin
	if err := s.memberships.SetAdmin(conversation, userID, next); err != nil {
		return false, errors.Store(err)
	}
	return next, nil
}

// Rename changes a group's name and notifies every member.
func (s *ChatService) Rename(ctx context.Context, actorID string, conversation domain.ConversationID, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.Validationf("group name is empty")
	}
	if err := s.requireGroupAdmin(conversation, actorID); err != nil {
		return err
	}
	if err := s.conversations.SetName(conversation, name); err != nil {
		return errors.Store(err)
	}
	s.fanout.Publish(ctx, conversation, event.NameChanged{
		Conversation: conversation,
		NewName:      name,
	})
	return nil
}

// SetMode toggles disappearing mode on a group. Already-stored messages
// keep the flag they were created with.
func (s *ChatService) SetMode(ctx context.Context, actorID string, conversation domain.ConversationID, disappearing bool) error {
	if err := s.requireGroupAdmin(conversation, actorID); err != nil {
		return err
	}
	if err := s.conversations.SetMode(conversation, disappearing); err != nil {
		return errors.Store(err)
	}
	s.fanout.Publish(ctx, conversation, event.ModeChanged{
		Conversation: conversation,
		Disappearing: disappearing,
	})
	return nil
}

// SetConversationPicture changes a group's picture and notifies members.
func (s *ChatService) SetConversationPicture(ctx context.Context, actorID string, conversation domain.ConversationID, picture string) error {
	if picture == "" {
		return errors.Validationf("picture is empty")
	}
	if err := s.requireGroupAdmin(conversation, actorID); err != nil {
		return err
	}
	if err := s.conversations.SetPicture(conversation, picture); err != nil {
		return errors.Store(err)
	}
	s.fanout.Publish(ctx, conversation, event.PictureChanged{
		Conversation: conversation,
		Picture:      picture,
	})
	return nil
}

// viewFor assembles the client-facing snapshot of one conversation for one
// viewer, resolving the direct counterpart's name and picture.
func (s *ChatService) viewFor(id domain.ConversationID, viewerID string, withMessages bool) (domain.ConversationView, error) {
	conv, err := s.conversations.Get(id)
	if err != nil {
		return domain.ConversationView{}, errors.NotFoundf("conversation %s", id)
	}
	// Purge regardless of the current mode: messages sent while the
	// conversation was disappearing keep their expiry even after the mode
	// is switched off.
	if withMessages {
		s.reaper.Purge(id)
	}

	active, profiles, err := s.rosterIndex(id)
	if err != nil {
		return domain.ConversationView{}, err
	}

	members, err := s.memberships.ActiveMembers(id)
	if err != nil {
		return domain.ConversationView{}, errors.Store(err)
	}
	memberViews := make([]domain.MemberView, 0, len(members))
	for _, m := range members {
		profile := profiles[m.UserID]
		memberViews = append(memberViews, domain.MemberView{
			UserID:   m.UserID,
			Username: profile.Username,
			Picture:  profile.Picture,
			Admin:    m.Admin,
		})
	}

	view := domain.ConversationView{
		ID:               conv.ID,
		Direct:           conv.Direct(),
		Name:             conv.Name,
		Picture:          conv.Picture,
		LastActivity:     conv.LastActivity,
		DisappearingMode: conv.DisappearingMode,
		Members:          memberViews,
	}

	if conv.Direct() {
		for _, m := range members {
			if m.UserID == viewerID {
				continue
			}
			profile := profiles[m.UserID]
			name := profile.Name
			if name == "" {
				name = profile.Username
			}
			view.Name = &name
			view.Picture = profile.Picture
		}
	}

	if withMessages {
		messages, err := s.messages.List(id)
		if err != nil {
			return domain.ConversationView{}, errors.Store(err)
		}
		view.Messages = make([]domain.MessageView, 0, len(messages))
		for _, message := range messages {
			view.Messages = append(view.Messages,
				messageView(message, s.profileFor(profiles, message.SenderID), !active[message.SenderID]))
		}
	}
	return view, nil
}

// rosterIndex resolves the conversation's users once: which ids are active
// members and the profile for every id ever seen in the roster.
func (s *ChatService) rosterIndex(id domain.ConversationID) (map[string]bool, map[string]domain.User, error) {
	members, err := s.memberships.ActiveMembers(id)
	if err != nil {
		return nil, nil, errors.Store(err)
	}
	active := make(map[string]bool, len(members))
	profiles := make(map[string]domain.User, len(members))
	for _, m := range members {
		active[m.UserID] = true
		if user, err := s.users.GetUser(m.UserID); err == nil {
			profiles[m.UserID] = user
		}
	}
	return active, profiles, nil
}

// profileFor resolves a user profile through the roster cache, falling back
// to the store for senders who have since left the conversation.
func (s *ChatService) profileFor(cache map[string]domain.User, userID string) domain.User {
	if user, ok := cache[userID]; ok {
		return user
	}
	user, err := s.users.GetUser(userID)
	if err != nil {
		return domain.User{Username: userID}
	}
	cache[userID] = user
	return user
}

func (s *ChatService) findDirect(a, b string) (domain.ConversationID, bool) {
	ids, err := s.memberships.ActiveConversations(a)
	if err != nil {
		return "", false
	}
	for _, id := range ids {
		conv, err := s.conversations.Get(id)
		if err != nil || !conv.Direct() {
			continue
		}
		membership, err := s.memberships.Get(id, b)
		if err == nil && membership.Active() {
			return id, true
		}
	}
	return "", false
}

func (s *ChatService) requireActiveMember(conversation domain.ConversationID, userID string) error {
	membership, err := s.memberships.Get(conversation, userID)
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.Permissionf("not a member of %s", conversation)
		}
		return errors.Store(err)
	}
	if !membership.Active() {
		return errors.Permissionf("not a member of %s", conversation)
	}
	return nil
}

func (s *ChatService) requireGroupAdmin(conversation domain.ConversationID, userID string) error {
	conv, err := s.conversations.Get(conversation)
	if err != nil {
		return errors.NotFoundf("conversation %s", conversation)
	}
	if conv.Direct() {
		return errors.Validationf("operation applies to groups only")
	}
	membership, err := s.memberships.Get(conversation, userID)
	if err != nil || !membership.Active() {
		return errors.Permissionf("not a member of %s", conversation)
	}
	if !membership.Admin {
		return errors.Permissionf("admin standing required")
	}
	return nil
}

// messageView pairs a message with its sender's profile. A sender no longer
// in the active roster is flagged removed.
func messageView(message domain.Message, sender domain.User, removed bool) domain.MessageView {
	name := sender.Name
	if name == "" {
		name = sender.Username
	}
	return domain.MessageView{
		ID:            message.ID,
		UserID:        message.SenderID,
		SenderName:    name,
		SenderPicture: sender.Picture,
		Removed:       removed,
		Content:       message.Content,
		FileRef:       message.FileRef,
		CreatedAt:     message.CreatedAt,
	}
}
