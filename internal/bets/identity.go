package bets

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var betIDArgs = mustArgs("string", "address", "uint256", "uint256", "uint256", "uint256")

func mustArgs(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// CalculateBetID derives the bet key from its terms. Anyone holding the terms
// can recompute it offline. Timeframes are hashed as unix seconds.
// Negative amounts or pre-epoch timeframes have no encoding.
func CalculateBetID(metadata string, firstParty common.Address, firstBetValue, secondBetValue *big.Int, secondPartyTimeframe, resultTimeframe time.Time) (common.Hash, error) {
	if firstBetValue == nil || secondBetValue == nil || firstBetValue.Sign() < 0 || secondBetValue.Sign() < 0 {
		return common.Hash{}, ErrBadTerms
	}
	if secondPartyTimeframe.Unix() < 0 || resultTimeframe.Unix() < 0 {
		return common.Hash{}, ErrBadTerms
	}
	packed, err := betIDArgs.Pack(
		metadata,
		firstParty,
		firstBetValue,
		secondBetValue,
		unixBig(secondPartyTimeframe),
		unixBig(resultTimeframe),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrBadTerms, err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// TermsID recomputes the identity of b from its stored terms.
func (b *Bet) TermsID() (common.Hash, error) {
	return CalculateBetID(b.Metadata, b.FirstParty, b.FirstBetValue, b.SecondBetValue, b.SecondPartyTimeframe, b.ResultTimeframe)
}

func unixBig(t time.Time) *big.Int {
	return big.NewInt(t.Unix())
}
