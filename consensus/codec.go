package consensus

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// wire names of the consensus messages
const (
	msgTypePrePropose      = "guardbft/PrePropose"
	msgTypeProposal        = "guardbft/Proposal"
	msgTypeCommit          = "guardbft/Commit"
	msgTypeRelaySubmission = "guardbft/RelaySubmission"
	msgTypeBundleVote      = "guardbft/BundleVote"
	msgTypeBundle23        = "guardbft/Bundle23"
)

type envelope struct {
	Type  string              `json:"type"`
	Value jsoniter.RawMessage `json:"value"`
}

// EncodeMessage encodes msg as a {type, value} JSON envelope.
func EncodeMessage(msg ConsensusMessage) ([]byte, error) {
	var typ string
	switch msg.(type) {
	case *PreProposeMessage:
		typ = msgTypePrePropose
	case *ProposalMessage:
		typ = msgTypeProposal
	case *CommitMessage:
		typ = msgTypeCommit
	case *RelaySubmissionMessage:
		typ = msgTypeRelaySubmission
	case *BundleVoteMessage:
		typ = msgTypeBundleVote
	case *Bundle23Message:
		typ = msgTypeBundle23
	default:
		return nil, errors.Errorf("unknown message type %T", msg)
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s", typ)
	}
	return json.Marshal(envelope{Type: typ, Value: value})
}

// DecodeMessage decodes an envelope produced by EncodeMessage and validates
// the message.
func DecodeMessage(bz []byte) (ConsensusMessage, error) {
	var env envelope
	if err := json.Unmarshal(bz, &env); err != nil {
		return nil, errors.Wrap(err, "unmarshal envelope")
	}

	var msg ConsensusMessage
	switch env.Type {
	case msgTypePrePropose:
		msg = &PreProposeMessage{}
	case msgTypeProposal:
		msg = &ProposalMessage{}
	case msgTypeCommit:
		msg = &CommitMessage{}
	case msgTypeRelaySubmission:
		msg = &RelaySubmissionMessage{}
	case msgTypeBundleVote:
		msg = &BundleVoteMessage{}
	case msgTypeBundle23:
		msg = &Bundle23Message{}
	default:
		return nil, errors.Errorf("unknown message type %q", env.Type)
	}

	if err := json.Unmarshal(env.Value, msg); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s", env.Type)
	}
	if err := msg.ValidateBasic(); err != nil {
		return nil, errors.Wrapf(err, "invalid %s", env.Type)
	}
	return msg, nil
}
