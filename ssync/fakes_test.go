package ssync

import (
	"io"

	"github.com/ais-oss/ssyncd/cmn"
	"github.com/ais-oss/ssyncd/store"
)

// fakeStore is an in-memory store.Store used across ssync's unit tests so
// reconciliation and dispatch logic can be exercised without a filesystem.
type fakeStore struct {
	records map[string]store.FragmentRecord

	markDurableErr error
	writePutErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]store.FragmentRecord)}
}

func (s *fakeStore) Lookup(hash string) (store.FragmentRecord, bool, error) {
	rec, ok := s.records[hash]
	return rec, ok, nil
}

func (s *fakeStore) WritePut(hash string, ts cmn.Timestamp, fragIndex int, headers map[string]string, body io.Reader, length int64) error {
	if s.writePutErr != nil {
		return s.writePutErr
	}
	buf := make([]byte, length)
	io.ReadFull(body, buf)
	s.records[hash] = store.FragmentRecord{
		ObjectHash: hash, TsData: ts, TsMeta: ts, TsCtype: ts,
		Durable: fragIndex < 0, FragIndex: fragIndex, Length: length, Meta: headers,
	}
	return nil
}

func (s *fakeStore) ApplyPost(hash string, ts cmn.Timestamp, headers map[string]string) error {
	rec, ok := s.records[hash]
	if !ok {
		rec = store.FragmentRecord{ObjectHash: hash}
	}
	rec.TsMeta = ts
	if _, has := headers["content-type"]; has {
		rec.TsCtype = ts
	}
	s.records[hash] = rec
	return nil
}

func (s *fakeStore) ApplyDelete(hash string, ts cmn.Timestamp) error {
	rec := s.records[hash]
	rec.ObjectHash = hash
	rec.TsData = ts
	rec.TsMeta = ts
	rec.TsCtype = ts
	rec.Tombstone = true
	s.records[hash] = rec
	return nil
}

func (s *fakeStore) MarkDurable(hash string, ts cmn.Timestamp, fragIndex int) error {
	if s.markDurableErr != nil {
		return s.markDurableErr
	}
	rec, ok := s.records[hash]
	if !ok {
		return nil
	}
	rec.Durable = true
	s.records[hash] = rec
	return nil
}
