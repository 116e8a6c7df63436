// fork from github.com/tendermint/tendermint/types/validator.go
package types

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// GuardIdentity is the address derived from a guard's secp256k1 public key.
type GuardIdentity = common.Address

// Guard is a single validating node of the guard set.
type Guard struct {
	Address GuardIdentity    `json:"address"`
	PubKey  *ecdsa.PublicKey `json:"-"`
}

// NewGuard returns a new guard with the given pubkey.
func NewGuard(pubKey *ecdsa.PublicKey) *Guard {
	return &Guard{
		Address: crypto.PubkeyToAddress(*pubKey),
		PubKey:  pubKey,
	}
}

// ValidateBasic performs basic validation.
func (g *Guard) ValidateBasic() error {
	if g == nil {
		return errors.New("nil guard")
	}
	if g.PubKey == nil {
		return errors.New("guard does not have a public key")
	}
	if crypto.PubkeyToAddress(*g.PubKey) != g.Address {
		return fmt.Errorf("guard address does not match its public key: %v", g.Address.Hex())
	}

	return nil
}

// Copy creates a new copy of the guard.
// Panics if the guard is nil.
func (g *Guard) Copy() *Guard {
	gCopy := *g
	return &gCopy
}

// String returns a string representation of the guard.
func (g *Guard) String() string {
	if g == nil {
		return "nil-Guard"
	}
	return fmt.Sprintf("Guard{%v}", g.Address.Hex())
}

// Bytes returns the uncompressed public key. These are the bytes that get
// hashed into the guard set hash.
func (g *Guard) Bytes() []byte {
	return crypto.FromECDSAPub(g.PubKey)
}

//----------------------------------------
// RandGuard

// RandGuard returns a randomized guard, useful for testing.
// UNSTABLE
func RandGuard() (*Guard, PrivValidator) {
	privVal := NewMockPV()
	return NewGuard(privVal.GetPubKey()), privVal
}
