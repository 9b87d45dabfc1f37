// Package access decides whether a wallet may take part in an event channel
package access

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tixgate/eventchat/core"
)

var tracer = otel.Tracer("access")

type service struct {
	chain  core.ChainReader
	cache  core.AccessCache
	config core.Config

	cacheHits        int64
	cacheMisses      int64
	organizerHits    int64
	upstreamFailures int64
}

// NewService creates a new access gate
func NewService(chain core.ChainReader, cache core.AccessCache, config core.Config) core.AccessService {
	config.Normalize()
	return &service{
		chain:  chain,
		cache:  cache,
		config: config,
	}
}

// Check resolves membership of wallet in event.
// Organizer: allowed without touching cache or chain.
// Otherwise: cache, then token balance, then active resale listings on the marketplace.
// Upstream failures yield AccessUnknown and are never cached.
func (s *service) Check(ctx context.Context, event core.Event, wallet string) (core.AccessVerdict, error) {
	ctx, span := tracer.Start(ctx, "Access.Service.Check")
	defer span.End()

	wallet = strings.ToLower(wallet)
	span.SetAttributes(
		attribute.String("event", event.ID),
		attribute.String("wallet", wallet),
	)

	if core.SameWallet(wallet, event.OrganizerAddress) {
		atomic.AddInt64(&s.organizerHits, 1)
		return core.AccessAllowed, nil
	}

	if !event.HasContract() {
		return core.AccessDenied, nil
	}
	contract := strings.ToLower(*event.ContractAddress)

	key := core.AccessKey{
		ChainID:  event.ChainID,
		Contract: contract,
		Wallet:   wallet,
	}

	if isHolder, ok := s.cache.Get(ctx, key); ok {
		atomic.AddInt64(&s.cacheHits, 1)
		return verdictOf(isHolder), nil
	}
	atomic.AddInt64(&s.cacheMisses, 1)

	isHolder, err := s.resolve(ctx, event.ChainID, contract, wallet)
	if err != nil {
		atomic.AddInt64(&s.upstreamFailures, 1)
		span.RecordError(err)
		slog.WarnContext(
			ctx, "membership check failed upstream",
			slog.String("error", err.Error()),
			slog.String("event", event.ID),
			slog.String("wallet", wallet),
			slog.String("module", "access"),
		)
		return core.AccessUnknown, core.NewErrorUpstream(err)
	}

	err = s.cache.Set(ctx, key, isHolder, s.config.AccessCacheTTL)
	if err != nil {
		span.RecordError(err)
		slog.WarnContext(
			ctx, "failed to cache membership",
			slog.String("error", err.Error()),
			slog.String("module", "access"),
		)
	}

	return verdictOf(isHolder), nil
}

func (s *service) resolve(ctx context.Context, chainID int64, contract, wallet string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Access.Service.resolve")
	defer span.End()

	balance, err := s.chain.TokenBalance(ctx, chainID, contract, wallet)
	if err != nil {
		return false, err
	}
	if balance != nil && balance.Sign() > 0 {
		return true, nil
	}

	// a seller whose only ticket is listed but not yet transferred is still a member
	listings, err := s.chain.ActiveListingsBySeller(ctx, chainID, wallet)
	if err != nil {
		return false, err
	}
	for _, listing := range listings {
		if listing.Active && core.SameWallet(listing.NFTAddress, contract) {
			return true, nil
		}
	}

	return false, nil
}

// IsMember collapses Check to a boolean; unknown counts as not a member
func (s *service) IsMember(ctx context.Context, event core.Event, wallet string) bool {
	verdict, _ := s.Check(ctx, event, wallet)
	return verdict == core.AccessAllowed
}

func (s *service) GetMetrics() map[string]int64 {
	return map[string]int64{
		"access_cache_hits":        atomic.LoadInt64(&s.cacheHits),
		"access_cache_misses":      atomic.LoadInt64(&s.cacheMisses),
		"access_organizer_hits":    atomic.LoadInt64(&s.organizerHits),
		"access_upstream_failures": atomic.LoadInt64(&s.upstreamFailures),
	}
}

func verdictOf(isHolder bool) core.AccessVerdict {
	if isHolder {
		return core.AccessAllowed
	}
	return core.AccessDenied
}
