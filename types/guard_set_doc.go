package types

import (
	"fmt"
	"io/ioutil"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/tempfile"
)

// GuardDoc is one entry of the guard set file.
type GuardDoc struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	PubKey  string `json:"pub_key"`
}

// GuardSetDoc is the on-disk guard set. The order of Guards is the round
// robin order.
type GuardSetDoc struct {
	Epoch  uint64     `json:"epoch"`
	Guards []GuardDoc `json:"guards"`
}

func NewGuardDoc(name string, g *Guard) GuardDoc {
	return GuardDoc{
		Name:    name,
		Address: g.Address.Hex(),
		PubKey:  hexutil.Encode(g.Bytes()),
	}
}

// GuardSet decodes the document into a GuardSet.
func (doc *GuardSetDoc) GuardSet() (*GuardSet, error) {
	guards := make([]*Guard, 0, len(doc.Guards))
	for i, gd := range doc.Guards {
		bz, err := hexutil.Decode(gd.PubKey)
		if err != nil {
			return nil, fmt.Errorf("guard #%d (%s): %w", i, gd.Name, err)
		}
		pub, err := crypto.UnmarshalPubkey(bz)
		if err != nil {
			return nil, fmt.Errorf("guard #%d (%s): %w", i, gd.Name, err)
		}
		g := NewGuard(pub)
		if gd.Address != "" && gd.Address != g.Address.Hex() {
			return nil, fmt.Errorf("guard #%d (%s): address %s does not match pub key", i, gd.Name, gd.Address)
		}
		guards = append(guards, g)
	}

	gs := &GuardSet{}
	if err := gs.Update(guards); err != nil {
		return nil, err
	}
	return gs, nil
}

// SaveAs is a utility method for saving GuardSetDoc as a JSON file.
func (doc *GuardSetDoc) SaveAs(file string) error {
	bz, err := tmjson.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return tempfile.WriteFileAtomic(file, bz, 0644)
}

// GuardSetDocFromFile reads JSON data from a file and unmarshalls it into a GuardSetDoc.
func GuardSetDocFromFile(file string) (*GuardSetDoc, error) {
	bz, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("couldn't read guard set file: %w", err)
	}
	doc := &GuardSetDoc{}
	if err := tmjson.Unmarshal(bz, doc); err != nil {
		return nil, fmt.Errorf("error reading guard set from %s: %w", file, err)
	}
	return doc, nil
}
