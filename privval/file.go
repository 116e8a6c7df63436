package privval

import (
	"crypto/ecdsa"
	"fmt"
	"io/ioutil"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/tempfile"

	"guardbft/types"
)

//-------------------------------------------------------------------------------

// FilePVKey stores the immutable part of PrivValidator.
type FilePVKey struct {
	Address types.GuardIdentity
	PubKey  *ecdsa.PublicKey
	PrivKey *ecdsa.PrivateKey

	filePath string
}

// 落盘格式，全部为0x开头的hex字符串
type filePVKeyJSON struct {
	Address string `json:"address"`
	PubKey  string `json:"pub_key"`
	PrivKey string `json:"priv_key"`
}

// Save persists the FilePVKey to its filePath.
func (pvKey FilePVKey) Save() error {
	outFile := pvKey.filePath
	if outFile == "" {
		return errors.New("cannot save PrivValidator key: filePath not set")
	}

	jsonBytes, err := tmjson.MarshalIndent(filePVKeyJSON{
		Address: pvKey.Address.Hex(),
		PubKey:  hexutil.Encode(crypto.FromECDSAPub(pvKey.PubKey)),
		PrivKey: hexutil.Encode(crypto.FromECDSA(pvKey.PrivKey)),
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal guard key")
	}
	return errors.Wrapf(tempfile.WriteFileAtomic(outFile, jsonBytes, 0600), "write guard key %s", outFile)
}

//-------------------------------------------------------------------------------

// FilePV implements PrivValidator using a secp256k1 key persisted to disk.
// NOTE: the directory containing pv.Key.filePath must already exist.
type FilePV struct {
	Key FilePVKey
}

var _ types.PrivValidator = (*FilePV)(nil)

// NewFilePV generates a new guard signer from the given key and path.
func NewFilePV(privKey *ecdsa.PrivateKey, keyFilePath string) *FilePV {
	return &FilePV{
		Key: FilePVKey{
			Address:  crypto.PubkeyToAddress(privKey.PublicKey),
			PubKey:   &privKey.PublicKey,
			PrivKey:  privKey,
			filePath: keyFilePath,
		},
	}
}

// GenFilePV generates a new guard signer with randomly generated private
// key and sets the filePath, but does not call Save().
func GenFilePV(keyFilePath string) (*FilePV, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generate guard key")
	}
	return NewFilePV(priv, keyFilePath), nil
}

// LoadFilePV loads a FilePV from keyFilePath.
func LoadFilePV(keyFilePath string) (*FilePV, error) {
	keyJSONBytes, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		return nil, errors.Wrap(err, "read guard key")
	}
	raw := filePVKeyJSON{}
	if err := tmjson.Unmarshal(keyJSONBytes, &raw); err != nil {
		return nil, errors.Wrapf(err, "error reading guard key from %v", keyFilePath)
	}

	privBytes, err := hexutil.Decode(raw.PrivKey)
	if err != nil {
		return nil, errors.Wrap(err, "decode priv_key")
	}
	priv, err := crypto.ToECDSA(privBytes)
	if err != nil {
		return nil, errors.Wrap(err, "invalid priv_key")
	}

	// pubkey和address以私钥为准，文件里的只做校验
	pv := NewFilePV(priv, keyFilePath)
	if raw.Address != "" && raw.Address != pv.Key.Address.Hex() {
		return nil, errors.Errorf("guard key file %v: address %v does not match priv_key", keyFilePath, raw.Address)
	}
	return pv, nil
}

// LoadOrGenFilePV loads a FilePV from the given filePath
// or else generates a new one and saves it to the filePath.
func LoadOrGenFilePV(keyFilePath string) (*FilePV, error) {
	if tmos.FileExists(keyFilePath) {
		return LoadFilePV(keyFilePath)
	}
	pv, err := GenFilePV(keyFilePath)
	if err != nil {
		return nil, err
	}
	if err := pv.Save(); err != nil {
		return nil, err
	}
	return pv, nil
}

// GetAddress returns the identity of the guard.
// Implements PrivValidator.
func (pv *FilePV) GetAddress() types.GuardIdentity {
	return pv.Key.Address
}

// GetPubKey returns the public key of the guard.
// Implements PrivValidator.
func (pv *FilePV) GetPubKey() *ecdsa.PublicKey {
	return pv.Key.PubKey
}

func (pv *FilePV) IsUs(id types.GuardIdentity) bool {
	return pv.Key.Address == id
}

// SignBundleVote signs a canonical representation of the vote.
// Implements PrivValidator.
func (pv *FilePV) SignBundleVote(vote *types.BundleVote) error {
	sig, err := pv.sign(types.BundleVoteSignBytes(vote))
	if err != nil {
		return fmt.Errorf("error signing bundle vote: %v", err)
	}
	vote.Signature = sig
	return nil
}

func (pv *FilePV) SignPrePropose(pp *types.PreProposeBundle) error {
	sig, err := pv.sign(types.PreProposeSignBytes(pp))
	if err != nil {
		return fmt.Errorf("error signing pre-propose: %v", err)
	}
	pp.Signature = sig
	return nil
}

// SignProposal signs a canonical representation of the proposal.
// Implements PrivValidator.
func (pv *FilePV) SignProposal(proposal *types.LeaderProposal) error {
	sig, err := pv.sign(types.ProposalSignBytes(proposal))
	if err != nil {
		return fmt.Errorf("error signing proposal: %v", err)
	}
	proposal.LeaderSignature = sig
	return nil
}

func (pv *FilePV) SignCommit(commit *types.ProposalCommit) error {
	sig, err := pv.sign(types.CommitSignBytes(commit))
	if err != nil {
		return fmt.Errorf("error signing commit: %v", err)
	}
	commit.Signature = sig
	return nil
}

// Save persists the FilePV to disk.
func (pv *FilePV) Save() error {
	return pv.Key.Save()
}

// String returns a string representation of the FilePV.
func (pv *FilePV) String() string {
	return fmt.Sprintf(
		"PrivValidator{%v}",
		pv.GetAddress().Hex(),
	)
}

func (pv *FilePV) sign(signBytes []byte) ([]byte, error) {
	return types.Sign(pv.Key.PrivKey, signBytes)
}
