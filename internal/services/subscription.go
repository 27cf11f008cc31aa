package services

import (
	"context"
	"fmt"
	"time"

	"github.com/filegate/backend/internal/metrics"
	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/transport"
	"github.com/filegate/backend/pkg/logger"
	"golang.org/x/sync/errgroup"
)

type ChannelLister interface {
	ListGateChannels(ctx context.Context) ([]models.GateChannel, error)
}

type MembershipChecker interface {
	GetChatMembership(ctx context.Context, channelID int64, userID int64) (transport.MemberStatus, error)
}

type SubscriptionResult struct {
	Passed  bool
	Missing []models.GateChannel
}

type SubscriptionService struct {
	Channels ChannelLister
	Members  MembershipChecker
	Timeout  time.Duration
}

func NewSubscriptionService(channels ChannelLister, members MembershipChecker, timeout time.Duration) *SubscriptionService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SubscriptionService{Channels: channels, Members: members, Timeout: timeout}
}

// CheckSubscription queries every gate channel live. A failed query counts
// as not joined. Missing channels keep their configured order.
func (s *SubscriptionService) CheckSubscription(ctx context.Context, userID int64) (SubscriptionResult, error) {
	channels, err := s.Channels.ListGateChannels(ctx)
	if err != nil {
		return SubscriptionResult{}, fmt.Errorf("list gate channels: %w", err)
	}
	if len(channels) == 0 {
		return SubscriptionResult{Passed: true}, nil
	}

	joined := make([]bool, len(channels))
	g, gctx := errgroup.WithContext(ctx)
	for i, channel := range channels {
		i, channel := i, channel
		g.Go(func() error {
			joined[i] = s.isMember(gctx, channel, userID)
			return nil
		})
	}
	_ = g.Wait()

	result := SubscriptionResult{Passed: true}
	for i, channel := range channels {
		if !joined[i] {
			result.Passed = false
			result.Missing = append(result.Missing, channel)
		}
	}
	return result, nil
}

func (s *SubscriptionService) isMember(ctx context.Context, channel models.GateChannel, userID int64) bool {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	status, err := s.Members.GetChatMembership(ctx, channel.ChannelID, userID)
	if err != nil {
		metrics.MembershipChecksTotal.WithLabelValues("error").Inc()
		logger.WarnWithUser(userID, "membership_check_failed", map[string]interface{}{
			"channel_id": channel.ChannelID,
			"error":      err.Error(),
		})
		return false
	}

	if status.Satisfies() {
		metrics.MembershipChecksTotal.WithLabelValues("member").Inc()
		return true
	}
	metrics.MembershipChecksTotal.WithLabelValues("missing").Inc()
	return false
}
