// Package chain reads ticket ownership from EVM chains
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tixgate/eventchat/core"
)

var tracer = otel.Tracer("chain")

const erc721ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

const marketplaceABIJSON = `[
	{"type":"function","name":"getListingsBySeller","stateMutability":"view",
	 "inputs":[{"name":"seller","type":"address"}],
	 "outputs":[{"name":"","type":"tuple[]","components":[
		{"name":"listingId","type":"uint256"},
		{"name":"nftAddress","type":"address"},
		{"name":"tokenId","type":"uint256"},
		{"name":"price","type":"uint256"},
		{"name":"seller","type":"address"},
		{"name":"active","type":"bool"}
	 ]}]}
]`

var (
	erc721ABI      = mustParse(erc721ABIJSON)
	marketplaceABI = mustParse(marketplaceABIJSON)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// marketListing mirrors the marketplace Listing tuple
type marketListing struct {
	ListingId  *big.Int
	NftAddress common.Address
	TokenId    *big.Int
	Price      *big.Int
	Seller     common.Address
	Active     bool
}

type backend struct {
	caller      ethereum.ContractCaller
	marketplace *common.Address
}

type reader struct {
	backends map[int64]backend
}

// Dial connects to every configured chain
func Dial(ctx context.Context, config core.Config) (core.ChainReader, error) {
	backends := make(map[int64]backend, len(config.Chains))
	for _, chain := range config.Chains {
		client, err := ethclient.DialContext(ctx, chain.RPC)
		if err != nil {
			return nil, errors.Wrapf(err, "dial chain %d", chain.ID)
		}
		backends[chain.ID] = newBackend(client, chain.Marketplace)
	}
	return &reader{backends}, nil
}

func newBackend(caller ethereum.ContractCaller, marketplace string) backend {
	b := backend{caller: caller}
	if common.IsHexAddress(marketplace) {
		addr := common.HexToAddress(marketplace)
		b.marketplace = &addr
	}
	return b
}

func (r *reader) backend(chainID int64) (backend, error) {
	b, ok := r.backends[chainID]
	if !ok {
		return backend{}, fmt.Errorf("chain %d is not configured", chainID)
	}
	return b, nil
}

// TokenBalance calls balanceOf(wallet) on an ERC-721 contract
func (r *reader) TokenBalance(ctx context.Context, chainID int64, contract, wallet string) (*big.Int, error) {
	ctx, span := tracer.Start(ctx, "Chain.Reader.TokenBalance")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("chain", chainID),
		attribute.String("contract", contract),
	)

	b, err := r.backend(chainID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !common.IsHexAddress(contract) || !common.IsHexAddress(wallet) {
		return nil, core.NewErrorInvalidArgument("invalid address")
	}
	to := common.HexToAddress(contract)

	data, err := erc721ABI.Pack("balanceOf", common.HexToAddress(wallet))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out, err := call(ctx, b.caller, to, data)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "balanceOf")
	}

	res, err := erc721ABI.Unpack("balanceOf", out)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "decode balanceOf")
	}

	balance, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result %T", res[0])
	}
	return balance, nil
}

// ActiveListingsBySeller returns the active marketplace listings created by seller
func (r *reader) ActiveListingsBySeller(ctx context.Context, chainID int64, seller string) ([]core.Listing, error) {
	ctx, span := tracer.Start(ctx, "Chain.Reader.ActiveListingsBySeller")
	defer span.End()

	span.SetAttributes(attribute.Int64("chain", chainID))

	b, err := r.backend(chainID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if b.marketplace == nil {
		return nil, nil
	}

	if !common.IsHexAddress(seller) {
		return nil, core.NewErrorInvalidArgument("invalid address")
	}

	data, err := marketplaceABI.Pack("getListingsBySeller", common.HexToAddress(seller))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out, err := call(ctx, b.caller, *b.marketplace, data)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "getListingsBySeller")
	}

	res, err := marketplaceABI.Unpack("getListingsBySeller", out)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "decode getListingsBySeller")
	}

	raw := *abi.ConvertType(res[0], new([]marketListing)).(*[]marketListing)

	listings := make([]core.Listing, 0, len(raw))
	for _, l := range raw {
		if !l.Active {
			continue
		}
		listings = append(listings, core.Listing{
			ListingID:  l.ListingId.String(),
			NFTAddress: strings.ToLower(l.NftAddress.Hex()),
			TokenID:    l.TokenId.String(),
			Seller:     strings.ToLower(l.Seller.Hex()),
			Active:     l.Active,
		})
	}

	return listings, nil
}

func call(ctx context.Context, caller ethereum.ContractCaller, to common.Address, data []byte) ([]byte, error) {
	return caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}
