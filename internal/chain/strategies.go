package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/erazemk/kovnica/internal/mint"
	"github.com/erazemk/kovnica/internal/model"
)

// Purchase call shapes, tried in the order returned by Strategies.
const (
	StrategyClaimAllowlistProof = "claim-allowlist-proof"
	StrategyClaimProofs         = "claim-proofs"
	StrategyMintTo              = "mint-to"
)

// Strategies returns the candidate purchase calls for contract, most
// specific first.
func Strategies(contract string) []mint.Strategy {
	to := common.HexToAddress(contract).Hex()
	return []mint.Strategy{
		strategy{name: StrategyClaimAllowlistProof, to: to, build: buildClaimAllowlistProof},
		strategy{name: StrategyClaimProofs, to: to, build: buildClaimProofs},
		strategy{name: StrategyMintTo, to: to, build: buildMintTo},
	}
}

type strategy struct {
	name  string
	to    string
	build func(p mint.Purchase) ([]byte, error)
}

func (s strategy) Name() string { return s.name }

func (s strategy) Build(p mint.Purchase) (mint.Call, error) {
	data, err := s.build(p)
	if err != nil {
		return mint.Call{}, err
	}
	value := p.Value
	if value == nil {
		value = new(big.Int)
	}
	return mint.Call{To: s.to, Data: data, Value: value}, nil
}

func proofHashes(proof []string) [][32]byte {
	out := make([][32]byte, len(proof))
	for i, p := range proof {
		out[i] = common.HexToHash(p)
	}
	return out
}

func currencyAddress(c model.Currency) common.Address {
	if c.Native() {
		return common.HexToAddress(model.NativeCurrencyAddress)
	}
	return common.HexToAddress(c.Address)
}

type allowlistProof struct {
	Proof                  [][32]byte
	QuantityLimitPerWallet *big.Int
	PricePerToken          *big.Int
	Currency               common.Address
}

func buildClaimAllowlistProof(p mint.Purchase) ([]byte, error) {
	proof := allowlistProof{
		Proof:                  proofHashes(p.Proof),
		QuantityLimitPerWallet: big.NewInt(p.ProofLimit),
		PricePerToken:          new(big.Int).Set(math.MaxBig256),
		Currency:               common.Address{},
	}
	return claimV3.Pack("claim",
		common.HexToAddress(p.Receiver),
		big.NewInt(p.ItemID),
		big.NewInt(p.Quantity),
		currencyAddress(p.Currency),
		p.PricePerToken,
		proof,
		[]byte{},
	)
}

func buildClaimProofs(p mint.Purchase) ([]byte, error) {
	return claimV2.Pack("claim",
		common.HexToAddress(p.Receiver),
		big.NewInt(p.ItemID),
		big.NewInt(p.Quantity),
		currencyAddress(p.Currency),
		p.PricePerToken,
		proofHashes(p.Proof),
		big.NewInt(p.ProofLimit),
	)
}

func buildMintTo(p mint.Purchase) ([]byte, error) {
	return mintToABI.Pack("mintTo",
		common.HexToAddress(p.Receiver),
		big.NewInt(p.ItemID),
		big.NewInt(p.Quantity),
	)
}
