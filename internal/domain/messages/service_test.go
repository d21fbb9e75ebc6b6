package messages

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/loopteam/server/internal/domain/ids"
)

type stubRepo struct {
	Repository

	messages  map[string]*Message
	delivered []string
	reactions []Reaction
}

func newStubRepo() *stubRepo {
	return &stubRepo{messages: map[string]*Message{}}
}

func (s *stubRepo) CreateMessage(_ context.Context, params CreateParams) (*Message, error) {
	message := &Message{
		ID: params.ID, ChannelID: params.ChannelID, WorkspaceID: params.WorkspaceID,
		AuthorID: params.AuthorID, Body: params.Body, ParentID: params.ParentID,
		ScheduledAt: params.ScheduledAt, CreatedAt: time.Now(),
	}
	s.messages[params.ID] = message
	return message, nil
}

func (s *stubRepo) MessageByID(_ context.Context, id string) (*Message, error) {
	if message, ok := s.messages[id]; ok {
		return message, nil
	}
	return nil, ErrNotFound
}

func (s *stubRepo) DueScheduled(_ context.Context, now time.Time, _ int) ([]Message, error) {
	var due []Message
	for _, message := range s.messages {
		if message.ScheduledAt != nil && message.ScheduledAt.Before(now) {
			due = append(due, *message)
		}
	}
	return due, nil
}

func (s *stubRepo) MarkDelivered(_ context.Context, id string) error {
	s.messages[id].ScheduledAt = nil
	s.delivered = append(s.delivered, id)
	return nil
}

func (s *stubRepo) AddReaction(_ context.Context, reaction Reaction) error {
	for _, existing := range s.reactions {
		if existing.MessageID == reaction.MessageID && existing.UserID == reaction.UserID && existing.Emoji == reaction.Emoji {
			return ErrAlreadyReacted
		}
	}
	s.reactions = append(s.reactions, reaction)
	return nil
}

type stubNotifier struct {
	mu       sync.Mutex
	replies  []string
	mentions []string
}

func (n *stubNotifier) NotifyReply(_ context.Context, _, recipientID, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replies = append(n.replies, recipientID)
	return nil
}

func (n *stubNotifier) NotifyMention(_ context.Context, _, recipientID, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mentions = append(n.mentions, recipientID)
	return nil
}

type stubEvents struct {
	mu     sync.Mutex
	events []string
}

func (e *stubEvents) Dispatch(_ context.Context, _, event string, _ any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *stubEvents) seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func newService(repo Repository) *Service {
	return NewService(repo, nil, nil, nil, zerolog.Nop())
}

func TestPostSanitizesBody(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)

	message, err := svc.Post(context.Background(), PostParams{
		ChannelID: "ch-1", WorkspaceID: "ws-1", AuthorID: "user-1",
		Body: `<p>ship it</p><script>alert(1)</script>`,
	})
	require.NoError(t, err)
	require.Contains(t, message.Body, "ship it")
	require.NotContains(t, message.Body, "<script>")
}

func TestPostRejectsEmptyBody(t *testing.T) {
	svc := newService(newStubRepo())

	_, err := svc.Post(context.Background(), PostParams{ChannelID: "ch-1", Body: "   "})
	require.Error(t, err)
}

func TestPostRejectsPastSchedule(t *testing.T) {
	svc := newService(newStubRepo())
	past := time.Now().Add(-time.Hour)

	_, err := svc.Post(context.Background(), PostParams{ChannelID: "ch-1", Body: "later", ScheduledAt: &past})
	require.ErrorIs(t, err, ErrScheduleInPast)
}

func TestPostThreadParentMustShareChannel(t *testing.T) {
	repo := newStubRepo()
	repo.messages["parent-1"] = &Message{ID: "parent-1", ChannelID: "ch-other"}
	svc := newService(repo)

	parentID := "parent-1"
	_, err := svc.Post(context.Background(), PostParams{ChannelID: "ch-1", Body: "reply", ParentID: &parentID})
	require.Error(t, err)
}

func TestReactValidatesEmoji(t *testing.T) {
	svc := newService(newStubRepo())

	require.Error(t, svc.React(context.Background(), "msg-1", "user-1", "  "))
}

func TestReactDuplicate(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)

	require.NoError(t, svc.React(context.Background(), "msg-1", "user-1", "👍"))
	require.ErrorIs(t, svc.React(context.Background(), "msg-1", "user-1", "👍"), ErrAlreadyReacted)
}

func TestMentionsParsing(t *testing.T) {
	alice := ids.New()
	bob := ids.New()

	body := fmt.Sprintf("hey <@%s> and <@%s>, also <@%s> again, <@not-a-ulid> ignored", alice, bob, alice)
	require.Equal(t, []string{alice, bob}, Mentions(body))

	require.Empty(t, Mentions("no mentions here"))
	require.Empty(t, Mentions("<@truncated"))
}

func TestPostNotifiesMentionedUsers(t *testing.T) {
	repo := newStubRepo()
	notifier := &stubNotifier{}
	svc := NewService(repo, nil, notifier, nil, zerolog.Nop())

	author := ids.New()
	mentioned := ids.New()
	_, err := svc.Post(context.Background(), PostParams{
		ChannelID: "ch-1", WorkspaceID: "ws-1", AuthorID: author, AuthorName: "Alice",
		Body: fmt.Sprintf("ping <@%s> and <@%s>", mentioned, author),
	})
	require.NoError(t, err)

	// the author mentioning themselves produces nothing
	require.Equal(t, []string{mentioned}, notifier.mentions)
}

func TestScheduledPostDefersMentionNotifications(t *testing.T) {
	repo := newStubRepo()
	notifier := &stubNotifier{}
	svc := NewService(repo, nil, notifier, nil, zerolog.Nop())

	future := time.Now().Add(time.Hour)
	_, err := svc.Post(context.Background(), PostParams{
		ChannelID: "ch-1", WorkspaceID: "ws-1", AuthorID: ids.New(), AuthorName: "Alice",
		Body: fmt.Sprintf("later <@%s>", ids.New()), ScheduledAt: &future,
	})
	require.NoError(t, err)
	require.Empty(t, notifier.mentions)
}

func TestPostDispatchesWebhookEvent(t *testing.T) {
	repo := newStubRepo()
	events := &stubEvents{}
	svc := NewService(repo, nil, nil, events, zerolog.Nop())

	_, err := svc.Post(context.Background(), PostParams{
		ChannelID: "ch-1", WorkspaceID: "ws-1", AuthorID: "user-1", Body: "ship it",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		seen := events.seen()
		return len(seen) == 1 && seen[0] == "message.posted"
	}, time.Second, 10*time.Millisecond)
}

func TestScheduledPostDoesNotDispatch(t *testing.T) {
	repo := newStubRepo()
	events := &stubEvents{}
	svc := NewService(repo, nil, nil, events, zerolog.Nop())

	future := time.Now().Add(time.Hour)
	_, err := svc.Post(context.Background(), PostParams{
		ChannelID: "ch-1", WorkspaceID: "ws-1", AuthorID: "user-1", Body: "later", ScheduledAt: &future,
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, events.seen())
}

func TestDeliverDue(t *testing.T) {
	repo := newStubRepo()
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	repo.messages["m1"] = &Message{ID: "m1", ScheduledAt: &past}
	repo.messages["m2"] = &Message{ID: "m2", ScheduledAt: &future}
	svc := newService(repo)

	delivered, err := svc.DeliverDue(context.Background(), time.Now(), 100)
	require.NoError(t, err)
	require.Equal(t, 1, delivered)
	require.Equal(t, []string{"m1"}, repo.delivered)
	require.Nil(t, repo.messages["m1"].ScheduledAt)
	require.NotNil(t, repo.messages["m2"].ScheduledAt)
}
