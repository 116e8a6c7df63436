package store

import (
	"sync"

	"guardbft/types"
)

func NewMockStore(err error) *MockStore {
	return &MockStore{Err: err}
}

// MockStore keeps everything in memory and fails every write with Err when
// it is set.
type MockStore struct {
	mtx sync.Mutex

	Err       error
	evidence  []*types.Evidence
	finalized []*types.SubmissionBundle
}

func (mock *MockStore) SaveEvidence(ev *types.Evidence) error {
	mock.mtx.Lock()
	defer mock.mtx.Unlock()
	if mock.Err != nil {
		return mock.Err
	}
	mock.evidence = append(mock.evidence, ev)
	return nil
}

func (mock *MockStore) SaveFinalized(sb *types.SubmissionBundle) error {
	mock.mtx.Lock()
	defer mock.mtx.Unlock()
	if mock.Err != nil {
		return mock.Err
	}
	mock.finalized = append(mock.finalized, sb)
	return nil
}

func (mock *MockStore) SavedEvidence() []*types.Evidence {
	mock.mtx.Lock()
	defer mock.mtx.Unlock()
	return append([]*types.Evidence(nil), mock.evidence...)
}

func (mock *MockStore) SavedFinalized() []*types.SubmissionBundle {
	mock.mtx.Lock()
	defer mock.mtx.Unlock()
	return append([]*types.SubmissionBundle(nil), mock.finalized...)
}
