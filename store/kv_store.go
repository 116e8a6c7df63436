package store

import (
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
	leveldb "github.com/tendermint/tm-db/goleveldb"

	"guardbft/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	tableEvidence  = "evidence/"
	tableFinalized = "finalized/"
	keyLatest      = "latest_finalized"
)

var ErrNotFound = errors.New("not found")

func NewKVStore(name, dir string, logger log.Logger) (*KVStore, error) {
	levelDB, err := leveldb.NewDB(name, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s in %s", name, dir)
	}
	return NewKVStoreWithDB(levelDB, logger), nil
}

// NewKVStoreWithDB wraps an opened db, e.g. tmdb.NewMemDB() in tests.
func NewKVStoreWithDB(kvdb tmdb.DB, logger log.Logger) *KVStore {
	return &KVStore{kvDB: kvdb, logger: logger}
}

// KVStore persists evidence and finalized submissions.
// table definition：
// evidence table: key=evidence/{height}/{round}/{kind}/{guard}; value=json(Evidence)
// finalized table: key=finalized/{height}; value=json(SubmissionBundle)
// latest_finalized: the highest finalized height
type KVStore struct {
	kvDB tmdb.DB

	logger log.Logger
}

func (kv *KVStore) SaveEvidence(ev *types.Evidence) error {
	bz, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal evidence")
	}
	if err := kv.kvDB.SetSync(evidenceKey(ev), bz); err != nil {
		return errors.Wrapf(err, "save evidence %v", ev)
	}
	kv.logger.Info("evidence saved", "evidence", ev)
	return nil
}

// Evidence returns every evidence recorded at height or above.
func (kv *KVStore) Evidence(fromHeight uint64) ([]*types.Evidence, error) {
	it, err := kv.kvDB.Iterator(genKey(tableEvidence, fromHeight), prefixEnd(tableEvidence))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []*types.Evidence
	for ; it.Valid(); it.Next() {
		ev := new(types.Evidence)
		if err := json.Unmarshal(it.Value(), ev); err != nil {
			return nil, errors.Wrapf(err, "decode evidence %s", it.Key())
		}
		out = append(out, ev)
	}
	return out, it.Error()
}

// SaveFinalized stores a committed submission and moves the latest height
// forward.
func (kv *KVStore) SaveFinalized(sb *types.SubmissionBundle) error {
	bz, err := json.Marshal(sb)
	if err != nil {
		return errors.Wrap(err, "marshal submission")
	}

	batch := kv.kvDB.NewBatch()
	defer batch.Close()

	height := sb.Height()
	if err := batch.Set(genKey(tableFinalized, height), bz); err != nil {
		return err
	}
	latest, err := kv.LatestFinalizedHeight()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if errors.Is(err, ErrNotFound) || height > latest {
		if err := batch.Set([]byte(keyLatest), uint2byte(height)); err != nil {
			return err
		}
	}
	if err := batch.WriteSync(); err != nil {
		return errors.Wrapf(err, "save finalized %d", height)
	}
	kv.logger.Info("finalized submission saved", "height", height, "proposal", &sb.Proposal)
	return nil
}

func (kv *KVStore) LoadFinalized(height uint64) (*types.SubmissionBundle, error) {
	bz, err := kv.kvDB.Get(genKey(tableFinalized, height))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, errors.Wrapf(ErrNotFound, "finalized %d", height)
	}
	sb := new(types.SubmissionBundle)
	if err := json.Unmarshal(bz, sb); err != nil {
		return nil, errors.Wrapf(err, "decode finalized %d", height)
	}
	return sb, nil
}

func (kv *KVStore) LatestFinalizedHeight() (uint64, error) {
	bz, err := kv.kvDB.Get([]byte(keyLatest))
	if err != nil {
		return 0, err
	}
	if bz == nil {
		return 0, ErrNotFound
	}
	return byte2uint(bz)
}

func (kv *KVStore) GetDB() tmdb.DB {
	return kv.kvDB
}

func (kv *KVStore) Close() error {
	return kv.kvDB.Close()
}

func evidenceKey(ev *types.Evidence) []byte {
	key := genKey(tableEvidence, ev.Height)
	return append(key, fmt.Sprintf("/%010d/%d/%s", ev.Round, ev.Kind, ev.Guard.Hex())...)
}

// heights are zero padded so that keys sort by height
func genKey(table string, height uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", table, height))
}

// prefixEnd is the smallest key greater than every key of the table.
func prefixEnd(table string) []byte {
	end := []byte(table)
	end[len(end)-1]++
	return end
}

func byte2uint(src []byte) (uint64, error) {
	return strconv.ParseUint(string(src), 10, 64)
}

func uint2byte(src uint64) []byte {
	return []byte(strconv.FormatUint(src, 10))
}
