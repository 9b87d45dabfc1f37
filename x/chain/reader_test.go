package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

const (
	Ticket      = "0x000000000000000000000000000000000000c0de"
	OtherTicket = "0x000000000000000000000000000000000000beef"
	Market      = "0x0000000000000000000000000000000000001111"
	Seller      = "0x00000000000000000000000000000000000000bb"
)

type fakeCaller struct {
	balances map[common.Address]*big.Int
	listings []marketListing
	err      error
	calls    []ethereum.CallMsg
	deadline bool
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	if _, ok := ctx.Deadline(); ok {
		f.deadline = true
	}
	if f.err != nil {
		return nil, f.err
	}

	switch {
	case bytes.Equal(msg.Data[:4], erc721ABI.Methods["balanceOf"].ID):
		balance, ok := f.balances[*msg.To]
		if !ok {
			balance = big.NewInt(0)
		}
		return erc721ABI.Methods["balanceOf"].Outputs.Pack(balance)
	case bytes.Equal(msg.Data[:4], marketplaceABI.Methods["getListingsBySeller"].ID):
		return marketplaceABI.Methods["getListingsBySeller"].Outputs.Pack(f.listings)
	}
	return nil, errors.New("execution reverted")
}

func newTestReader(caller *fakeCaller, marketplace string) *reader {
	return &reader{backends: map[int64]backend{137: newBackend(caller, marketplace)}}
}

func listing(id int64, nft string, active bool) marketListing {
	return marketListing{
		ListingId:  big.NewInt(id),
		NftAddress: common.HexToAddress(nft),
		TokenId:    big.NewInt(id * 10),
		Price:      big.NewInt(1e18),
		Seller:     common.HexToAddress(Seller),
		Active:     active,
	}
}

func TestTokenBalance(t *testing.T) {
	caller := &fakeCaller{
		balances: map[common.Address]*big.Int{
			common.HexToAddress(Ticket): big.NewInt(2),
		},
	}
	r := newTestReader(caller, Market)
	ctx := context.Background()

	balance, err := r.TokenBalance(ctx, 137, Ticket, Seller)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), balance.Int64())

	balance, err = r.TokenBalance(ctx, 137, OtherTicket, Seller)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), balance.Int64())

	if assert.Len(t, caller.calls, 2) {
		assert.Equal(t, common.HexToAddress(Ticket), *caller.calls[0].To)
		args, err := erc721ABI.Methods["balanceOf"].Inputs.Unpack(caller.calls[0].Data[4:])
		assert.NoError(t, err)
		assert.Equal(t, common.HexToAddress(Seller), args[0])
	}
}

func TestUnknownChain(t *testing.T) {
	r := newTestReader(&fakeCaller{}, Market)

	_, err := r.TokenBalance(context.Background(), 1, Ticket, Seller)
	assert.Error(t, err)

	_, err = r.ActiveListingsBySeller(context.Background(), 1, Seller)
	assert.Error(t, err)
}

func TestCallFailure(t *testing.T) {
	rpcDown := errors.New("connection refused")
	r := newTestReader(&fakeCaller{err: rpcDown}, Market)

	_, err := r.TokenBalance(context.Background(), 137, Ticket, Seller)
	assert.ErrorIs(t, err, rpcDown)

	_, err = r.ActiveListingsBySeller(context.Background(), 137, Seller)
	assert.ErrorIs(t, err, rpcDown)
}

func TestActiveListingsBySeller(t *testing.T) {
	caller := &fakeCaller{
		listings: []marketListing{
			listing(1, Ticket, true),
			listing(2, Ticket, false),
			listing(3, OtherTicket, true),
		},
	}
	r := newTestReader(caller, Market)

	listings, err := r.ActiveListingsBySeller(context.Background(), 137, Seller)
	assert.NoError(t, err)
	if assert.Len(t, listings, 2) {
		assert.Equal(t, "1", listings[0].ListingID)
		assert.Equal(t, Ticket, listings[0].NFTAddress)
		assert.Equal(t, "10", listings[0].TokenID)
		assert.Equal(t, Seller, listings[0].Seller)
		assert.True(t, listings[0].Active)
		assert.Equal(t, OtherTicket, listings[1].NFTAddress)
	}

	if assert.Len(t, caller.calls, 1) {
		assert.Equal(t, common.HexToAddress(Market), *caller.calls[0].To)
	}
}

func TestNoMarketplace(t *testing.T) {
	caller := &fakeCaller{listings: []marketListing{listing(1, Ticket, true)}}
	r := newTestReader(caller, "")

	listings, err := r.ActiveListingsBySeller(context.Background(), 137, Seller)
	assert.NoError(t, err)
	assert.Empty(t, listings)
	assert.Empty(t, caller.calls)
}

func TestCallsKeepCallerDeadline(t *testing.T) {
	caller := &fakeCaller{}
	r := newTestReader(caller, Market)

	_, err := r.TokenBalance(context.Background(), 137, Ticket, Seller)
	assert.NoError(t, err)
	_, err = r.ActiveListingsBySeller(context.Background(), 137, Seller)
	assert.NoError(t, err)

	assert.Len(t, caller.calls, 2)
	assert.False(t, caller.deadline)
}
