package consensus

import (
	"errors"
	"fmt"

	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"guardbft/types"
)

// ------ Message ------
// Message is anything the receive routine handles.
type Message interface {
	ValidateBasic() error
	String() string
}

// ConsensusMessage is a message exchanged between guards.
type ConsensusMessage interface {
	Message
	consensusMessage()
}

var (
	_ ConsensusMessage = (*PreProposeMessage)(nil)
	_ ConsensusMessage = (*ProposalMessage)(nil)
	_ ConsensusMessage = (*CommitMessage)(nil)
	_ ConsensusMessage = (*RelaySubmissionMessage)(nil)
	_ ConsensusMessage = (*BundleVoteMessage)(nil)
	_ ConsensusMessage = (*Bundle23Message)(nil)
)

// PreProposeMessage - every guard locks its lower bound and broadcasts it.
type PreProposeMessage struct {
	PrePropose *types.PreProposeBundle `json:"pre_propose"`
}

func (msg *PreProposeMessage) ValidateBasic() error {
	return msg.PrePropose.ValidateBasic()
}

func (msg *PreProposeMessage) String() string {
	return fmt.Sprintf("[PrePropose %v]", msg.PrePropose)
}

// ProposalMessage - the leader of the round sends the best finalized bundle
// and the lower bound commit.
type ProposalMessage struct {
	Proposal *types.LeaderProposal `json:"proposal"`
}

func (msg *ProposalMessage) ValidateBasic() error {
	return msg.Proposal.ValidateBasic()
}

func (msg *ProposalMessage) String() string {
	return fmt.Sprintf("[Proposal %v]", msg.Proposal)
}

// CommitMessage - the commit or nil vote on the leader proposal.
type CommitMessage struct {
	Commit *types.ProposalCommit `json:"commit"`
}

func (msg *CommitMessage) ValidateBasic() error {
	return msg.Commit.ValidateBasic()
}

func (msg *CommitMessage) String() string {
	return fmt.Sprintf("[Commit %v]", msg.Commit)
}

// RelaySubmissionMessage - sent by the leader once its proposal committed.
type RelaySubmissionMessage struct {
	Submission *types.SubmissionBundle `json:"submission"`
}

func (msg *RelaySubmissionMessage) ValidateBasic() error {
	if msg.Submission == nil {
		return errors.New("nil submission")
	}
	return msg.Submission.Proposal.ValidateBasic()
}

func (msg *RelaySubmissionMessage) String() string {
	return fmt.Sprintf("[RelaySubmission %v commits:%d]", &msg.Submission.Proposal, len(msg.Submission.Commits))
}

// BundleVoteMessage - a guard's vote on a simulated bundle.
type BundleVoteMessage struct {
	Vote *types.BundleVote `json:"vote"`
}

func (msg *BundleVoteMessage) ValidateBasic() error {
	return msg.Vote.ValidateBasic()
}

func (msg *BundleVoteMessage) String() string {
	return fmt.Sprintf("[BundleVote %v]", msg.Vote)
}

// Bundle23Message - a bundle certificate.
type Bundle23Message struct {
	Votes *types.FinalizedBundleVotes `json:"votes"`
}

func (msg *Bundle23Message) ValidateBasic() error {
	if msg.Votes == nil {
		return errors.New("nil certificate")
	}
	if len(msg.Votes.Signatures) == 0 {
		return errors.New("certificate without signatures")
	}
	return nil
}

func (msg *Bundle23Message) String() string {
	return fmt.Sprintf("[Bundle23 %v]", msg.Votes)
}

func (*PreProposeMessage) consensusMessage()      {}
func (*ProposalMessage) consensusMessage()        {}
func (*CommitMessage) consensusMessage()          {}
func (*RelaySubmissionMessage) consensusMessage() {}
func (*BundleVoteMessage) consensusMessage()      {}
func (*Bundle23Message) consensusMessage()        {}

// ----- internal messages -----

type newBlockMessage struct {
	Header *ethtypes.Header
}

func (msg *newBlockMessage) ValidateBasic() error {
	if msg.Header == nil || msg.Header.Number == nil {
		return errors.New("block header without number")
	}
	return nil
}

func (msg *newBlockMessage) String() string {
	return fmt.Sprintf("[NewBlock %v]", msg.Header.Number)
}

type simmedBundleMessage struct {
	Bundle *types.Bundle
}

func (msg *simmedBundleMessage) ValidateBasic() error {
	return msg.Bundle.ValidateBasic()
}

func (msg *simmedBundleMessage) String() string {
	return fmt.Sprintf("[SimmedBundle %v]", msg.Bundle)
}

type betterBundleMessage struct {
	Data *types.BestSolvedBundleData
}

func (msg *betterBundleMessage) ValidateBasic() error {
	if msg.Data == nil {
		return errors.New("nil bundle data")
	}
	if msg.Data.LowerBound != nil && msg.Data.LowerBound.Sign() < 0 {
		return fmt.Errorf("negative lower bound: %v", msg.Data.LowerBound)
	}
	return msg.Data.Bundle.ValidateBasic()
}

func (msg *betterBundleMessage) String() string {
	return fmt.Sprintf("[BetterBundle %v lb:%v]", &msg.Data.Bundle, msg.Data.LowerBound)
}

// ----- MsgInfo -----
type msgInfo struct {
	Msg Message
}

// outbound is one item of the core stream.
type outbound struct {
	Msg ConsensusMessage
	Err error
}
