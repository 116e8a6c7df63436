package rpc

import (
	"errors"
	"fmt"

	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"guardbft/consensus"
	"guardbft/types"
)

// results only carry strings and numbers, the rpc server encodes them with
// tendermint's json which knows nothing about hashes and addresses

type ResultRoundState struct {
	Height      uint64 `json:"height"`
	Round       uint32 `json:"round"`
	Step        string `json:"step"`
	Leader      string `json:"leader"`
	IsLeader    bool   `json:"is_leader"`
	Locked      bool   `json:"locked"`
	PrePreposes int    `json:"pre_proposes"`
	Commits     int    `json:"commits"`
}

func RoundState(ctx *rpctypes.Context) (*ResultRoundState, error) {
	rs := env.Consensus.RoundState()
	return &ResultRoundState{
		Height:      rs.Height,
		Round:       rs.Round,
		Step:        rs.Step,
		Leader:      rs.Leader.Hex(),
		IsLeader:    rs.IsLeader,
		Locked:      rs.Locked,
		PrePreposes: rs.PrePreposes,
		Commits:     rs.Commits,
	}, nil
}

type ResultGuard struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
}

type ResultGuards struct {
	Guards []ResultGuard `json:"guards"`
	Total  int           `json:"total"`
	Quorum int           `json:"quorum"`
}

func Guards(ctx *rpctypes.Context) (*ResultGuards, error) {
	result := &ResultGuards{Total: env.Guards.Size(), Quorum: types.QuorumSize(env.Guards.Size())}
	env.Guards.Iterate(func(index int, g *types.Guard) bool {
		result.Guards = append(result.Guards, ResultGuard{Index: index, Address: g.Address.Hex()})
		return false
	})
	return result, nil
}

type ResultEvidence struct {
	Kind   string `json:"kind"`
	Guard  string `json:"guard"`
	Height uint64 `json:"height"`
	Round  uint32 `json:"round"`
	First  string `json:"first"`
	Second string `json:"second"`
}

type ResultEvidenceList struct {
	Evidence []ResultEvidence `json:"evidence"`
}

func Evidence(ctx *rpctypes.Context, fromHeight int64) (*ResultEvidenceList, error) {
	if fromHeight < 0 {
		return nil, fmt.Errorf("negative height %d", fromHeight)
	}
	list, err := env.Store.Evidence(uint64(fromHeight))
	if err != nil {
		return nil, err
	}

	result := &ResultEvidenceList{Evidence: make([]ResultEvidence, 0, len(list))}
	for _, ev := range list {
		result.Evidence = append(result.Evidence, ResultEvidence{
			Kind:   ev.Kind.String(),
			Guard:  ev.Guard.Hex(),
			Height: ev.Height,
			Round:  ev.Round,
			First:  ev.First.Digest.Hex(),
			Second: ev.Second.Digest.Hex(),
		})
	}
	return result, nil
}

type ResultFinalized struct {
	Height       uint64 `json:"height"`
	Round        uint32 `json:"round"`
	ProposalHash string `json:"proposal_hash"`
	BundleHash   string `json:"bundle_hash"`
	LowerBound   string `json:"lower_bound"`
	Commits      int    `json:"commits"`
	// Submission is the json encoded SubmissionBundle
	Submission string `json:"submission"`
}

// Finalized returns the committed submission of height, the latest one
// when height is 0.
func Finalized(ctx *rpctypes.Context, height int64) (*ResultFinalized, error) {
	if height < 0 {
		return nil, fmt.Errorf("negative height %d", height)
	}
	h := uint64(height)
	if h == 0 {
		latest, err := env.Store.LatestFinalizedHeight()
		if err != nil {
			return nil, err
		}
		h = latest
	}

	sb, err := env.Store.LoadFinalized(h)
	if err != nil {
		return nil, err
	}
	bz, err := json.MarshalToString(sb)
	if err != nil {
		return nil, err
	}

	lowerBound := "0"
	if sb.Proposal.LowerBound != nil {
		lowerBound = sb.Proposal.LowerBound.String()
	}
	return &ResultFinalized{
		Height:       sb.Height(),
		Round:        sb.Proposal.Round,
		ProposalHash: sb.Proposal.Hash().Hex(),
		BundleHash:   sb.Proposal.BundleHash().Hex(),
		LowerBound:   lowerBound,
		Commits:      len(sb.Commits),
		Submission:   bz,
	}, nil
}

type ResultBroadcast struct {
	Message string `json:"message"`
}

// BroadcastMessage hands a wire encoded consensus message to the core, as if
// it came from a peer.
func BroadcastMessage(ctx *rpctypes.Context, msg string) (*ResultBroadcast, error) {
	m, err := consensus.DecodeMessage([]byte(msg))
	if err != nil {
		return nil, err
	}
	if err := env.Consensus.HandleMessage(m); err != nil {
		return nil, err
	}
	return &ResultBroadcast{Message: m.String()}, nil
}

// SubmitBundle hands a bundle simulated by the local engine to the core.
func SubmitBundle(ctx *rpctypes.Context, bundle string) (*ResultBroadcast, error) {
	b := new(types.Bundle)
	if err := json.UnmarshalFromString(bundle, b); err != nil {
		return nil, err
	}
	if err := b.ValidateBasic(); err != nil {
		return nil, err
	}
	if err := env.Consensus.NewSimmedBundle(b); err != nil {
		return nil, err
	}
	return &ResultBroadcast{Message: b.String()}, nil
}

// BetterBundle hands the engine's best bundle and its lower bound to the core.
func BetterBundle(ctx *rpctypes.Context, data string) (*ResultBroadcast, error) {
	d := new(types.BestSolvedBundleData)
	if err := json.UnmarshalFromString(data, d); err != nil {
		return nil, err
	}
	if d.LowerBound != nil && d.LowerBound.Sign() < 0 {
		return nil, errors.New("negative lower bound")
	}
	if err := env.Consensus.BetterBundle(d); err != nil {
		return nil, err
	}
	return &ResultBroadcast{Message: d.Bundle.String()}, nil
}
