package profile

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/tixgate/eventchat/core"
)

// Repository is the interface for profile repository
type Repository interface {
	Get(ctx context.Context, wallet string) (core.UserProfile, error)
	GetMany(ctx context.Context, wallets []string) ([]core.UserProfile, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new profile repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db}
}

func (r *repository) Get(ctx context.Context, wallet string) (core.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Profile.Repository.Get")
	defer span.End()

	var profile core.UserProfile
	err := r.db.WithContext(ctx).First(&profile, "LOWER(wallet_address) = ?", strings.ToLower(wallet)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.UserProfile{}, core.NewErrorNotFound("profile")
		}
		span.RecordError(err)
		return core.UserProfile{}, errors.Wrap(err, "get profile")
	}

	return profile, nil
}

func (r *repository) GetMany(ctx context.Context, wallets []string) ([]core.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Profile.Repository.GetMany")
	defer span.End()

	if len(wallets) == 0 {
		return []core.UserProfile{}, nil
	}

	lowered := make([]string, len(wallets))
	for i, wallet := range wallets {
		lowered[i] = strings.ToLower(wallet)
	}

	var profiles []core.UserProfile
	err := r.db.WithContext(ctx).Where("LOWER(wallet_address) IN ?", lowered).Find(&profiles).Error
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "get profiles")
	}

	return profiles, nil
}
