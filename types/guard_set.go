// fork from github.com/tendermint/tendermint/types/validator_set.go
package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tendermint/tendermint/crypto/merkle"
)

var (
	ErrEmptyGuardSet     = errors.New("guard set is nil or empty")
	ErrDuplicateGuard    = errors.New("duplicate guard in guard set")
	ErrGuardNotFound     = errors.New("no guard found for recovered signature")
	ErrNotEnoughGuards   = errors.New("not enough guard signatures for 2/3")
	ErrDuplicateGuardSig = errors.New("guard signed more than once")
)

// GuardSet represent the ordered set of guards of one consensus epoch.
//
// The order of the guards is the round robin order used for leader
// selection, so every guard must build the set from the same list.
//
// Reads (verification, leader computation) take the read lock and may run
// concurrently. Update replaces the membership under the write lock and is
// expected to happen rarely.
type GuardSet struct {
	mtx    sync.RWMutex
	guards []*Guard
	index  map[GuardIdentity]int
}

// NewGuardSet initializes a GuardSet by copying over the values from `guards`.
//
// The addresses of `guards` must be unique otherwise the function panics.
func NewGuardSet(guards []*Guard) *GuardSet {
	gs := &GuardSet{}
	if err := gs.Update(guards); err != nil && !errors.Is(err, ErrEmptyGuardSet) {
		panic(err)
	}
	return gs
}

// Update replaces the membership of the set.
func (gs *GuardSet) Update(guards []*Guard) error {
	if len(guards) == 0 {
		return ErrEmptyGuardSet
	}

	list := make([]*Guard, 0, len(guards))
	index := make(map[GuardIdentity]int, len(guards))
	for i, g := range guards {
		if err := g.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid guard #%d: %w", i, err)
		}
		if _, ok := index[g.Address]; ok {
			return fmt.Errorf("%w: %v", ErrDuplicateGuard, g.Address.Hex())
		}
		index[g.Address] = i
		list = append(list, g.Copy())
	}

	gs.mtx.Lock()
	gs.guards = list
	gs.index = index
	gs.mtx.Unlock()
	return nil
}

func (gs *GuardSet) ValidateBasic() error {
	if gs.IsNilOrEmpty() {
		return ErrEmptyGuardSet
	}

	gs.mtx.RLock()
	defer gs.mtx.RUnlock()
	for idx, g := range gs.guards {
		if err := g.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid guard #%d: %w", idx, err)
		}
	}

	return nil
}

// IsNilOrEmpty returns true if guard set is nil or empty.
func (gs *GuardSet) IsNilOrEmpty() bool {
	return gs == nil || gs.Size() == 0
}

// Copy each guard into a new GuardSet.
func (gs *GuardSet) Copy() *GuardSet {
	gs.mtx.RLock()
	defer gs.mtx.RUnlock()

	guards := make([]*Guard, len(gs.guards))
	index := make(map[GuardIdentity]int, len(gs.index))
	for i, g := range gs.guards {
		guards[i] = g.Copy()
		index[g.Address] = i
	}
	return &GuardSet{guards: guards, index: index}
}

// HasAddress returns true if address given is in the guard set, false -
// otherwise.
func (gs *GuardSet) HasAddress(address GuardIdentity) bool {
	gs.mtx.RLock()
	_, ok := gs.index[address]
	gs.mtx.RUnlock()
	return ok
}

// GetByAddress returns an index of the guard with address and guard
// itself (copy) if found. Otherwise, -1 and nil are returned.
func (gs *GuardSet) GetByAddress(address GuardIdentity) (index int32, g *Guard) {
	gs.mtx.RLock()
	defer gs.mtx.RUnlock()

	idx, ok := gs.index[address]
	if !ok {
		return -1, nil
	}
	return int32(idx), gs.guards[idx].Copy()
}

// GetByIndex returns the guard's address and guard itself (copy) by index.
// It returns nil values if index is less than 0 or greater or equal to
// the size of the set.
func (gs *GuardSet) GetByIndex(index int32) (address GuardIdentity, g *Guard) {
	gs.mtx.RLock()
	defer gs.mtx.RUnlock()

	if index < 0 || int(index) >= len(gs.guards) {
		return GuardIdentity{}, nil
	}
	g = gs.guards[index]
	return g.Address, g.Copy()
}

// Size returns the length of the guard set.
func (gs *GuardSet) Size() int {
	gs.mtx.RLock()
	defer gs.mtx.RUnlock()
	return len(gs.guards)
}

// GetProposer returns the round robin leader of (height, round).
// If the guard set is empty, nil is returned.
func (gs *GuardSet) GetProposer(height uint64, round uint32) (proposer *Guard) {
	gs.mtx.RLock()
	defer gs.mtx.RUnlock()

	if len(gs.guards) == 0 {
		return nil
	}
	idx := (height + uint64(round)) % uint64(len(gs.guards))

	return gs.guards[idx].Copy()
}

// Hash returns the Merkle root hash build using guards (as leaves) in the
// set.
func (gs *GuardSet) Hash() []byte {
	gs.mtx.RLock()
	defer gs.mtx.RUnlock()

	bzs := make([][]byte, len(gs.guards))
	for i, g := range gs.guards {
		bzs[i] = g.Bytes()
	}
	return merkle.HashFromByteSlices(bzs)
}

// Iterate will run the given function over the set.
func (gs *GuardSet) Iterate(fn func(index int, g *Guard) bool) {
	gs.mtx.RLock()
	guards := make([]*Guard, len(gs.guards))
	copy(guards, gs.guards)
	gs.mtx.RUnlock()

	for i, g := range guards {
		stop := fn(i, g.Copy())
		if stop {
			break
		}
	}
}

//----------------

// String returns a string representation of GuardSet.
//
// See StringIndented.
func (gs *GuardSet) String() string {
	return gs.StringIndented("")
}

// StringIndented returns an intended String.
//
// See Guard#String.
func (gs *GuardSet) StringIndented(indent string) string {
	if gs == nil {
		return "nil-GuardSet"
	}
	var guardStrings []string
	gs.Iterate(func(index int, g *Guard) bool {
		guardStrings = append(guardStrings, g.String())
		return false
	})
	return fmt.Sprintf(`GuardSet{
%s  Guards:
%s    %v
%s}`,
		indent,
		indent, strings.Join(guardStrings, "\n"+indent+"    "),
		indent)
}

//----------------------------------------

// RandGuardSet returns a randomized guard set of size numGuards. The
// returned PrivValidators are in the same order as the set.
//
// EXPOSED FOR TESTING.
func RandGuardSet(numGuards int) (*GuardSet, []PrivValidator) {
	privValidators := make([]PrivValidator, numGuards)
	for i := 0; i < numGuards; i++ {
		privValidators[i] = NewMockPV()
	}

	sort.Sort(PrivValidatorsByAddress(privValidators))

	guards := make([]*Guard, numGuards)
	for i, pv := range privValidators {
		guards[i] = NewGuard(pv.GetPubKey())
	}

	return NewGuardSet(guards), privValidators
}
