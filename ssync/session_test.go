package ssync

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ais-oss/ssyncd/cmn"
	"github.com/ais-oss/ssyncd/lock"
	"github.com/ais-oss/ssyncd/policy"
	"github.com/ais-oss/ssyncd/store"
)

func newTestReceiver(st store.Store) *Receiver {
	policies := policy.NewRegistry()
	policies.Register(policy.Policy{Index: 1, Name: "ec-default", EC: true})
	return &Receiver{
		Policies:   policies,
		Locks:      lock.NewManager(4, time.Minute),
		Sema:       cmn.NewDynSemaphore(4),
		Stores:     func(device, partition string) (store.Store, error) { return st, nil },
		MountCheck: func(device string) (bool, error) { return true, nil },
	}
}

func doSSYNC(t *testing.T, rv *Receiver, path, wireBody string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("SSYNC", path, strings.NewReader(wireBody))
	rec := httptest.NewRecorder()
	rv.ServeHTTP(rec, req)
	return rec
}

func TestServeHTTPEmptyMissingCheckNoUpdates(t *testing.T) {
	st := newFakeStore()
	rv := newTestReceiver(st)
	wire := ":MISSING_CHECK: START\r\n" +
		":MISSING_CHECK: END\r\n" +
		":UPDATES: START\r\n" +
		":UPDATES: END\r\n"

	rec := doSSYNC(t, rv, "/dev0/p1", wire)
	body := rec.Body.String()
	if !strings.Contains(body, markerMissingStart) || !strings.Contains(body, markerUpdatesEnd) {
		t.Errorf("expected full framing markers in response, got %q", body)
	}
	if strings.Contains(body, ":ERROR:") {
		t.Errorf("expected no error line for a clean empty session, got %q", body)
	}
}

func TestServeHTTPHaveNoneWantsBoth(t *testing.T) {
	st := newFakeStore()
	rv := newTestReceiver(st)
	wire := ":MISSING_CHECK: START\r\n" +
		"abc123 100.00000\r\n" +
		":MISSING_CHECK: END\r\n" +
		":UPDATES: START\r\n" +
		":UPDATES: END\r\n"

	rec := doSSYNC(t, rv, "/dev0/p1", wire)
	body := rec.Body.String()
	if !strings.Contains(body, "abc123 dm") {
		t.Errorf("expected a 'dm' wanted reply for an object the receiver has none of, got %q", body)
	}
}

func TestServeHTTPNonDurablePromotion(t *testing.T) {
	st := newFakeStore()
	st.records["abc123"] = store.FragmentRecord{
		ObjectHash: "abc123", TsData: mustTS(t, "100.00000"), TsMeta: mustTS(t, "100.00000"),
		Durable: false, FragIndex: 2,
	}
	rv := newTestReceiver(st)
	wire := ":MISSING_CHECK: START\r\n" +
		"abc123 100.00000\r\n" +
		":MISSING_CHECK: END\r\n" +
		":UPDATES: START\r\n" +
		":UPDATES: END\r\n"

	rec := doSSYNC(t, rv, "/dev0/p1", wire)
	body := rec.Body.String()
	if strings.Contains(body, "abc123") {
		t.Errorf("expected no wanted reply once the fragment is promoted durable, got %q", body)
	}
	rec2, _, _ := st.Lookup("abc123")
	if !rec2.Durable {
		t.Error("expected the fragment to end up durable after the session")
	}
}

func TestServeHTTPNonDurablePromotionCommitFailureWantsBoth(t *testing.T) {
	st := newFakeStore()
	st.records["abc123"] = store.FragmentRecord{
		ObjectHash: "abc123", TsData: mustTS(t, "100.00000"), TsMeta: mustTS(t, "100.00000"),
		Durable: false, FragIndex: 2,
	}
	st.markDurableErr = errMarkDurableTest
	rv := newTestReceiver(st)
	wire := ":MISSING_CHECK: START\r\n" +
		"abc123 100.00000\r\n" +
		":MISSING_CHECK: END\r\n" +
		":UPDATES: START\r\n" +
		":UPDATES: END\r\n"

	rec := doSSYNC(t, rv, "/dev0/p1", wire)
	body := rec.Body.String()
	if !strings.Contains(body, "abc123 dm") {
		t.Errorf("expected 'dm' when the durability commit fails, got %q", body)
	}
}

func TestServeHTTPPutSubRequestWithBody(t *testing.T) {
	st := newFakeStore()
	rv := newTestReceiver(st)
	payload := "object bytes"
	wire := ":MISSING_CHECK: START\r\n" +
		":MISSING_CHECK: END\r\n" +
		":UPDATES: START\r\n" +
		"PUT /dev0/p1/a/c/o\r\n" +
		"x-timestamp: 100.00000\r\n" +
		"content-length: 12\r\n" +
		"\r\n" + payload +
		":UPDATES: END\r\n"

	rec := doSSYNC(t, rv, "/dev0/p1", wire)
	if strings.Contains(rec.Body.String(), ":ERROR:") {
		t.Errorf("expected no error for a successful PUT sub-request, got %q", rec.Body.String())
	}
	h := hashSubRequestPath("/dev0/p1/a/c/o")
	if _, ok, _ := st.Lookup(h); !ok {
		t.Error("expected the PUT sub-request to have written the object")
	}
}

func TestServeHTTPRatioAbort(t *testing.T) {
	st := newFakeStore()
	st.writePutErr = fmt.Errorf("simulated disk failure")
	rv := newTestReceiver(st)
	update := cmn.GCO.BeginUpdate()
	update.Ssync.FailureThreshold = 2
	update.Ssync.FailureRatio = 1.0
	cmn.GCO.CommitUpdate(update)
	defer func() {
		u := cmn.GCO.BeginUpdate()
		*u = *cmn.DefaultConfig()
		cmn.GCO.CommitUpdate(u)
	}()

	wire := ":MISSING_CHECK: START\r\n" +
		":MISSING_CHECK: END\r\n" +
		":UPDATES: START\r\n" +
		"PUT /dev0/p1/a/c/o1\r\n" +
		"x-timestamp: 100.00000\r\n" +
		"content-length: 1\r\n" +
		"\r\nx" +
		"PUT /dev0/p1/a/c/o2\r\n" +
		"x-timestamp: 100.00000\r\n" +
		"content-length: 1\r\n" +
		"\r\nx" +
		"PUT /dev0/p1/a/c/o3\r\n" +
		"x-timestamp: 100.00000\r\n" +
		"content-length: 1\r\n" +
		"\r\nx" +
		":UPDATES: END\r\n"

	rec := doSSYNC(t, rv, "/dev0/p1", wire)
	body := rec.Body.String()
	if !strings.Contains(body, "Too many") {
		t.Errorf("expected the abort-ratio policy to fire and report too-many-failures, got %q", body)
	}
	if strings.Contains(body, markerUpdatesEnd) {
		t.Error("an aborted session must not also emit the normal UPDATES END marker")
	}
}

func TestServeHTTPInvalidFragIndexHeader(t *testing.T) {
	st := newFakeStore()
	rv := newTestReceiver(st)
	req := httptest.NewRequest("SSYNC", "/dev0/p1", strings.NewReader(""))
	req.Header.Set(hdrFragIndex, "not-a-number")
	rec := httptest.NewRecorder()
	rv.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Errorf("expected 400 for an invalid frag-index header, got %d", rec.Code)
	}
}

func TestServeHTTPLockTimeoutReportsInBand(t *testing.T) {
	st := newFakeStore()
	rv := newTestReceiver(st)
	rv.Locks = lock.NewManager(4, time.Minute)

	release, err := rv.Locks.Acquire("dev0", "p1", time.Minute)
	if err != nil {
		t.Fatalf("priming lock: %v", err)
	}
	defer release()

	update := cmn.GCO.BeginUpdate()
	update.Ssync.LockTimeout = time.Millisecond
	cmn.GCO.CommitUpdate(update)
	defer func() {
		u := cmn.GCO.BeginUpdate()
		*u = *cmn.DefaultConfig()
		cmn.GCO.CommitUpdate(u)
	}()

	rec := doSSYNC(t, rv, "/dev0/p1", "")
	if rec.Code != 200 {
		t.Errorf("a lock timeout must still answer 200 (the error is in-band), got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, ":ERROR: 0 '") || !strings.Contains(body, "seconds: /dev0/p1") {
		t.Errorf("expected an in-band lock-timeout error line, got %q", body)
	}
}

func TestServeHTTPInvalidPath(t *testing.T) {
	st := newFakeStore()
	rv := newTestReceiver(st)
	req := httptest.NewRequest("SSYNC", "/onlyonesegment", strings.NewReader(""))
	rec := httptest.NewRecorder()
	rv.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Errorf("expected 400 for a malformed request path, got %d", rec.Code)
	}
}
