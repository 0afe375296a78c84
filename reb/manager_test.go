package reb

import (
	"context"
	"fmt"
	"time"

	"github.com/ais-oss/ssyncd/lock"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type fakeDialer struct {
	downPeers map[string]bool
	pullErr   map[string]error
	pulled    []string
}

func (f *fakeDialer) Ping(_ context.Context, peer, _, _ string) error {
	if f.downPeers[peer] {
		return fmt.Errorf("peer %s unreachable", peer)
	}
	return nil
}

func (f *fakeDialer) Pull(_ context.Context, peer, _, _ string) error {
	f.pulled = append(f.pulled, peer)
	return f.pullErr[peer]
}

func newTestManager(d *fakeDialer) *Manager {
	lm := lock.NewManager(4, time.Minute)
	return NewManager(lm, d, 50*time.Millisecond)
}

var _ = Describe("Manager", func() {
	It("picks the first reachable candidate and pulls from it", func() {
		d := &fakeDialer{downPeers: map[string]bool{"peer-a": true}}
		m := newTestManager(d)

		peer, err := m.Decide(context.Background(), "sdb", "1042", []string{"peer-a", "peer-b", "peer-c"})
		Expect(err).NotTo(HaveOccurred())
		Expect(peer).To(Equal("peer-b"))
		Expect(d.pulled).To(Equal([]string{"peer-b"}))
	})

	It("fails when no candidate answers the ping", func() {
		d := &fakeDialer{downPeers: map[string]bool{"peer-a": true, "peer-b": true}}
		m := newTestManager(d)

		_, err := m.Decide(context.Background(), "sdb", "1042", []string{"peer-a", "peer-b"})
		Expect(err).To(HaveOccurred())
	})

	It("fails with zero candidates", func() {
		m := newTestManager(&fakeDialer{})
		_, err := m.Decide(context.Background(), "sdb", "1042", nil)
		Expect(err).To(HaveOccurred())
	})

	It("propagates a pull failure from the chosen peer", func() {
		d := &fakeDialer{pullErr: map[string]error{"peer-a": fmt.Errorf("boom")}}
		m := newTestManager(d)

		_, err := m.Decide(context.Background(), "sdb", "1042", []string{"peer-a"})
		Expect(err).To(HaveOccurred())
	})

	It("refuses to decide while the partition's pull lock is already held", func() {
		d := &fakeDialer{}
		lm := lock.NewManager(4, time.Minute)
		m := NewManager(lm, d, 50*time.Millisecond)

		release, err := lm.Acquire("pull:sdb", "1042", time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		defer release()

		_, err = m.Decide(context.Background(), "sdb", "1042", []string{"peer-a"})
		Expect(err).To(HaveOccurred())
		Expect(d.pulled).To(BeEmpty())
	})
})
