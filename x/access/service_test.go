package access

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/tixgate/eventchat/core"
	"github.com/tixgate/eventchat/core/mock"
	"github.com/tixgate/eventchat/internal/testutil"
)

const (
	Organizer = "0x00000000000000000000000000000000000000aa"
	Holder    = "0x00000000000000000000000000000000000000bb"
	Stranger  = "0x00000000000000000000000000000000000000cc"
	Contract  = "0x000000000000000000000000000000000000c0de"
	Other     = "0x000000000000000000000000000000000000beef"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testEvent() core.Event {
	contract := Contract
	return core.Event{
		ID:               "6f1c3a52-4d0e-4a8e-9a55-0b3c2c1e7d10",
		ContractAddress:  &contract,
		OrganizerAddress: Organizer,
		ChainID:          137,
	}
}

func TestOrganizerIsAlwaysMember(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockChain := mock_core.NewMockChainReader(ctrl)
	mockCache := mock_core.NewMockAccessCache(ctrl)

	service := NewService(mockChain, mockCache, core.Config{})

	// mixed case organizer address still matches
	verdict, err := service.Check(context.Background(), testEvent(), "0x00000000000000000000000000000000000000AA")
	assert.NoError(t, err)
	assert.Equal(t, core.AccessAllowed, verdict)
	assert.True(t, service.IsMember(context.Background(), testEvent(), Organizer))
	assert.Equal(t, int64(2), service.GetMetrics()["access_organizer_hits"])
}

func TestStrangerIsDeniedAndCached(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockChain := mock_core.NewMockChainReader(ctrl)
	mockChain.EXPECT().TokenBalance(gomock.Any(), int64(137), Contract, Stranger).Return(big.NewInt(0), nil).Times(1)
	mockChain.EXPECT().ActiveListingsBySeller(gomock.Any(), int64(137), Stranger).Return([]core.Listing{
		{NFTAddress: Other, Active: true},
		{NFTAddress: Contract, Active: false},
	}, nil).Times(1)

	clock := &fakeClock{now: time.Now()}
	service := NewService(mockChain, newMemoryCache(clock.Now), core.Config{})

	ctx := context.Background()
	verdict, err := service.Check(ctx, testEvent(), Stranger)
	assert.NoError(t, err)
	assert.Equal(t, core.AccessDenied, verdict)

	// served from cache
	assert.False(t, service.IsMember(ctx, testEvent(), Stranger))

	metrics := service.GetMetrics()
	assert.Equal(t, int64(1), metrics["access_cache_hits"])
	assert.Equal(t, int64(1), metrics["access_cache_misses"])
}

func TestHolderStaysMemberUntilTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockChain := mock_core.NewMockChainReader(ctrl)
	gomock.InOrder(
		mockChain.EXPECT().TokenBalance(gomock.Any(), int64(137), Contract, Holder).Return(big.NewInt(1), nil),
		mockChain.EXPECT().TokenBalance(gomock.Any(), int64(137), Contract, Holder).Return(big.NewInt(0), nil),
	)
	mockChain.EXPECT().ActiveListingsBySeller(gomock.Any(), int64(137), Holder).Return(nil, nil)

	clock := &fakeClock{now: time.Now()}
	service := NewService(mockChain, newMemoryCache(clock.Now), core.Config{})
	ctx := context.Background()

	assert.True(t, service.IsMember(ctx, testEvent(), Holder))

	// the ticket was sold; the cached answer holds for the ttl
	clock.Advance(59 * time.Second)
	assert.True(t, service.IsMember(ctx, testEvent(), Holder))

	clock.Advance(2 * time.Second)
	assert.False(t, service.IsMember(ctx, testEvent(), Holder))
}

func TestListedSellerIsMember(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockChain := mock_core.NewMockChainReader(ctrl)
	mockChain.EXPECT().TokenBalance(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(0), nil)
	mockChain.EXPECT().ActiveListingsBySeller(gomock.Any(), int64(137), Holder).Return([]core.Listing{
		{NFTAddress: "0x000000000000000000000000000000000000C0DE", Seller: Holder, Active: true},
	}, nil)

	service := NewService(mockChain, NewMemoryCache(), core.Config{})

	verdict, err := service.Check(context.Background(), testEvent(), Holder)
	assert.NoError(t, err)
	assert.Equal(t, core.AccessAllowed, verdict)
}

func TestUpstreamFailureIsUnknownAndNotCached(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rpcDown := errors.New("dial tcp: connection refused")

	mockChain := mock_core.NewMockChainReader(ctrl)
	gomock.InOrder(
		mockChain.EXPECT().TokenBalance(gomock.Any(), gomock.Any(), gomock.Any(), Holder).Return(nil, rpcDown),
		mockChain.EXPECT().TokenBalance(gomock.Any(), gomock.Any(), gomock.Any(), Holder).Return(big.NewInt(0), nil),
		mockChain.EXPECT().TokenBalance(gomock.Any(), gomock.Any(), gomock.Any(), Holder).Return(big.NewInt(3), nil),
	)
	mockChain.EXPECT().ActiveListingsBySeller(gomock.Any(), gomock.Any(), Holder).Return(nil, rpcDown)

	service := NewService(mockChain, NewMemoryCache(), core.Config{})
	ctx := context.Background()

	verdict, err := service.Check(ctx, testEvent(), Holder)
	assert.Equal(t, core.AccessUnknown, verdict)
	assert.ErrorAs(t, err, &core.ErrorUpstream{})
	assert.ErrorIs(t, err, rpcDown)

	// listing lookup failing also fails closed
	assert.False(t, service.IsMember(ctx, testEvent(), Holder))

	// nothing was cached, so the next check reaches the chain again
	assert.True(t, service.IsMember(ctx, testEvent(), Holder))

	assert.Equal(t, int64(2), service.GetMetrics()["access_upstream_failures"])
}

func TestEventWithoutContract(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	service := NewService(mock_core.NewMockChainReader(ctrl), NewMemoryCache(), core.Config{})

	event := testEvent()
	event.ContractAddress = nil

	assert.False(t, service.IsMember(context.Background(), event, Holder))
	assert.True(t, service.IsMember(context.Background(), event, Organizer))
}

func TestMemoryCacheExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cache := newMemoryCache(clock.Now)
	ctx := context.Background()

	key := core.AccessKey{ChainID: 1, Contract: Contract, Wallet: Holder}
	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	assert.NoError(t, cache.Set(ctx, key, true, time.Minute))
	isHolder, ok := cache.Get(ctx, key)
	assert.True(t, ok)
	assert.True(t, isHolder)

	// overwritten on every determination
	assert.NoError(t, cache.Set(ctx, key, false, time.Minute))
	isHolder, ok = cache.Get(ctx, key)
	assert.True(t, ok)
	assert.False(t, isHolder)

	clock.Advance(time.Minute)
	_, ok = cache.Get(ctx, key)
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Sweep())
}

func TestMemcacheCache(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	mc, cleanup := testutil.CreateMC()
	defer cleanup()

	cache := NewMemcacheCache(mc)
	ctx := context.Background()

	key := core.AccessKey{ChainID: 1, Contract: Contract, Wallet: Holder}
	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	assert.NoError(t, cache.Set(ctx, key, true, 2*time.Second))
	isHolder, ok := cache.Get(ctx, key)
	assert.True(t, ok)
	assert.True(t, isHolder)

	time.Sleep(2100 * time.Millisecond)
	_, ok = cache.Get(ctx, key)
	assert.False(t, ok)
}
