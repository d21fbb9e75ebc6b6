package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/loopteam/server/internal/domain/ids"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "channels").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, workspaceID, name, topic string, private bool, creatorID string) (*Channel, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("name: missing")
	}
	if len(name) > 80 {
		return nil, fmt.Errorf("name: too long")
	}

	channel, err := s.repo.CreateChannel(ctx, CreateParams{
		ID:          ids.New(),
		WorkspaceID: workspaceID,
		Name:        name,
		Topic:       strings.TrimSpace(topic),
		IsPrivate:   private,
		CreatedBy:   creatorID,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("channel_id", channel.ID).Str("workspace_id", workspaceID).Msg("channel created")
	return channel, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Channel, error) {
	return s.repo.ChannelByID(ctx, id)
}

// List returns the channels visible to the user: all public channels of the
// workspace plus private ones they belong to.
func (s *Service) List(ctx context.Context, workspaceID, userID string) ([]Channel, error) {
	return s.repo.ChannelsForWorkspace(ctx, workspaceID, userID)
}

func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*Channel, error) {
	if params.Name != nil {
		name := normalizeName(*params.Name)
		if name == "" {
			return nil, fmt.Errorf("name: missing")
		}
		params.Name = &name
	}
	return s.repo.UpdateChannel(ctx, id, params)
}

func (s *Service) Archive(ctx context.Context, id string) error {
	return s.repo.SetArchived(ctx, id, true)
}

func (s *Service) Unarchive(ctx context.Context, id string) error {
	return s.repo.SetArchived(ctx, id, false)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteChannel(ctx, id)
}

func (s *Service) Members(ctx context.Context, channelID string) ([]Member, error) {
	return s.repo.Members(ctx, channelID)
}

func (s *Service) Join(ctx context.Context, channelID, userID string) error {
	channel, err := s.repo.ChannelByID(ctx, channelID)
	if err != nil {
		return err
	}
	if channel.IsPrivate {
		// private channels are join-by-invite only
		return ErrNotMember
	}
	if channel.IsArchived {
		return ErrArchived
	}
	return s.repo.AddChannelMember(ctx, channelID, userID)
}

func (s *Service) AddMember(ctx context.Context, channelID, userID string) error {
	channel, err := s.repo.ChannelByID(ctx, channelID)
	if err != nil {
		return err
	}
	if channel.IsArchived {
		return ErrArchived
	}
	return s.repo.AddChannelMember(ctx, channelID, userID)
}

func (s *Service) Leave(ctx context.Context, channelID, userID string) error {
	return s.repo.RemoveChannelMember(ctx, channelID, userID)
}

// CanPost reports whether the user may write to the channel: member of the
// channel and the channel is not archived.
func (s *Service) CanPost(ctx context.Context, channelID, userID string) (*Channel, error) {
	channel, err := s.repo.ChannelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.IsArchived {
		return nil, ErrArchived
	}
	member, err := s.repo.IsMember(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotMember
	}
	return channel, nil
}

// CanRead reports whether the user may read the channel: workspace members
// for public channels, channel members for private ones.
func (s *Service) CanRead(ctx context.Context, channelID, userID string) (*Channel, error) {
	channel, err := s.repo.ChannelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !channel.IsPrivate {
		return channel, nil
	}
	member, err := s.repo.IsMember(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotMember
	}
	return channel, nil
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Join(strings.Fields(name), " ")
	return name
}
