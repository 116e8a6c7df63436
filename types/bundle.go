package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/tendermint/tendermint/crypto/merkle"
)

// Bundle is an opaque candidate execution payload for one height: the
// ordered trades plus settlement data, together with the cumulative LP bribe
// the simulation engine scored it with.
type Bundle struct {
	Height            uint64   `json:"height"`
	Trades            [][]byte `json:"trades"`
	Settlement        []byte   `json:"settlement"`
	CumulativeLPBribe *big.Int `json:"cumulative_lp_bribe"`
}

func (b *Bundle) ValidateBasic() error {
	if b == nil {
		return errors.New("nil bundle")
	}
	if b.CumulativeLPBribe != nil && b.CumulativeLPBribe.Sign() < 0 {
		return fmt.Errorf("negative cumulative lp bribe: %v", b.CumulativeLPBribe)
	}
	return nil
}

// Hash returns the content hash that identifies the bundle. The bribe is
// part of it, so a certificate also fixes the bundle's score.
func (b *Bundle) Hash() common.Hash {
	if b == nil {
		return common.Hash{}
	}
	height, err := rlp.EncodeToBytes(b.Height)
	if err != nil {
		panic(err)
	}
	return common.BytesToHash(merkle.HashFromByteSlices([][]byte{
		height,
		merkle.HashFromByteSlices(b.Trades),
		b.Settlement,
		b.GetCumulativeLPBribe().Bytes(),
	}))
}

// GetCumulativeLPBribe returns the profitability score, zero when unset.
func (b *Bundle) GetCumulativeLPBribe() *big.Int {
	if b == nil || b.CumulativeLPBribe == nil {
		return new(big.Int)
	}
	return b.CumulativeLPBribe
}

func (b *Bundle) String() string {
	if b == nil {
		return "nil-Bundle"
	}
	return fmt.Sprintf("Bundle{%v h:%d trades:%d bribe:%v}", b.Hash().TerminalString(), b.Height, len(b.Trades), b.GetCumulativeLPBribe())
}

// SignAndPropagate instructs the caller to sign a vote for a newly seen
// bundle and broadcast it.
type SignAndPropagate struct {
	Hash common.Hash
}

// ValidatedFinalizedBundle is a 2/3 certificate paired with its bundle.
type ValidatedFinalizedBundle struct {
	Votes  FinalizedBundleVotes `json:"votes"`
	Bundle Bundle               `json:"bundle"`
}

func (vb *ValidatedFinalizedBundle) ValidateBasic() error {
	if vb == nil {
		return errors.New("nil finalized bundle")
	}
	if err := vb.Bundle.ValidateBasic(); err != nil {
		return err
	}
	if vb.Bundle.Hash() != vb.Votes.Hash {
		return fmt.Errorf("certificate hash %v does not match bundle %v", vb.Votes.Hash.Hex(), vb.Bundle.Hash().Hex())
	}
	return nil
}

// BestSolvedBundleData is the local engine's best bundle for a height,
// along with the lower bound this guard is willing to lock.
type BestSolvedBundleData struct {
	Bundle     Bundle   `json:"bundle"`
	LowerBound *big.Int `json:"lower_bound"`
}
