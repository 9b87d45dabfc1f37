// Package profile reads the storefront user profiles shown next to chat messages
package profile

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/tixgate/eventchat/core"
)

var tracer = otel.Tracer("profile")

type service struct {
	repo Repository
}

// NewService creates a new profile service
func NewService(repo Repository) core.ProfileService {
	return &service{repo}
}

func (s *service) Get(ctx context.Context, wallet string) (core.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Profile.Service.Get")
	defer span.End()

	return s.repo.Get(ctx, wallet)
}

// GetMany returns the profiles found for wallets keyed by lower-cased wallet
func (s *service) GetMany(ctx context.Context, wallets []string) (map[string]core.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Profile.Service.GetMany")
	defer span.End()

	profiles, err := s.repo.GetMany(ctx, wallets)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := make(map[string]core.UserProfile, len(profiles))
	for _, profile := range profiles {
		result[strings.ToLower(profile.WalletAddress)] = profile
	}
	return result, nil
}
