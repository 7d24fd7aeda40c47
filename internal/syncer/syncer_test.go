package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rd/internal/models"
)

const testQuiet = 20 * time.Millisecond

type fakeCache struct {
	mu   sync.Mutex
	data map[string]map[string]models.ReviewRecord
	puts int
	fail bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]map[string]models.ReviewRecord{}}
}

func (f *fakeCache) GetReviews(ctx context.Context, scope string) (map[string]models.ReviewRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]models.ReviewRecord{}
	for k, v := range f.data[scope] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeCache) PutReviews(ctx context.Context, scope string, records map[string]models.ReviewRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("disk full")
	}
	f.puts++
	stored := map[string]models.ReviewRecord{}
	for k, v := range records {
		stored[k] = v
	}
	f.data[scope] = stored
	return nil
}

type fakeRemote struct {
	mu      sync.Mutex
	found   bool
	records map[string]models.ReviewRecord
	getErr  error
	putErr  error
	gets    int
	puts    int
	lastPut map[string]models.ReviewRecord
}

func (f *fakeRemote) GetReviews(ctx context.Context, scope string) (bool, map[string]models.ReviewRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return false, nil, f.getErr
	}
	return f.found, f.records, nil
}

func (f *fakeRemote) PutReviews(ctx context.Context, scope string, records map[string]models.ReviewRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.puts++
	f.lastPut = records
	return nil
}

func (f *fakeRemote) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func records(entity string, status models.ReviewStatus) map[string]models.ReviewRecord {
	return map[string]models.ReviewRecord{entity: {Status: status}}
}

func TestLoadGate_SuppressesRemoteWritesUntilLoaded(t *testing.T) {
	c, r := newFakeCache(), &fakeRemote{}
	s := New(c, r, "proj-1", WithQuietPeriod(testQuiet))
	defer s.Close()

	// Gate unset: mutation must never reach the remote, even after the
	// quiet period has long elapsed.
	s.StateChanged(records("Acme", models.ReviewStatusApproved))
	time.Sleep(5 * testQuiet)
	assert.Equal(t, 0, r.putCount())

	// The cache write still happened.
	got, err := c.GetReviews(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Open the gate; the next mutation triggers exactly one remote write.
	_, _, err = s.Load(context.Background())
	require.NoError(t, err)

	s.StateChanged(records("Acme", models.ReviewStatusRejected))
	require.Eventually(t, func() bool { return r.putCount() == 1 },
		time.Second, time.Millisecond)
	time.Sleep(5 * testQuiet)
	assert.Equal(t, 1, r.putCount())
}

func TestDebounce_CoalescesRapidMutations(t *testing.T) {
	c, r := newFakeCache(), &fakeRemote{}
	s := New(c, r, "proj-1", WithQuietPeriod(testQuiet))
	defer s.Close()
	_, _, err := s.Load(context.Background())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		s.StateChanged(records("Acme", models.ReviewStatusMaybe))
	}
	s.StateChanged(records("Acme", models.ReviewStatusApproved))

	require.Eventually(t, func() bool { return r.putCount() == 1 },
		time.Second, time.Millisecond)
	time.Sleep(5 * testQuiet)
	assert.Equal(t, 1, r.putCount(), "rapid mutations must coalesce into one write")

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, models.ReviewStatusApproved, r.lastPut["Acme"].Status,
		"the write carries the most recent payload")

	// Every mutation hit the cache synchronously.
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 11, c.puts)
}

func TestLoad_RemoteWinsAndRefreshesCache(t *testing.T) {
	c := newFakeCache()
	c.data["proj-1"] = map[string]models.ReviewRecord{
		"Shared Co": {Status: models.ReviewStatusMaybe},
		"Local Co":  {Status: models.ReviewStatusApproved},
	}
	r := &fakeRemote{
		found: true,
		records: map[string]models.ReviewRecord{
			"Shared Co": {Status: models.ReviewStatusRejected, Notes: "from remote"},
			"Remote Co": {Status: models.ReviewStatusApproved},
		},
	}
	s := New(c, r, "proj-1", WithQuietPeriod(testQuiet))
	defer s.Close()

	merged, found, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, found)

	// Remote record taken verbatim for entities present in both.
	assert.Equal(t, models.ReviewStatusRejected, merged["Shared Co"].Status)
	assert.Equal(t, "from remote", merged["Shared Co"].Notes)
	// Local-only and remote-only entities both survive.
	assert.Equal(t, models.ReviewStatusApproved, merged["Local Co"].Status)
	assert.Equal(t, models.ReviewStatusApproved, merged["Remote Co"].Status)

	// Cache was refreshed with the merged map.
	cached, err := c.GetReviews(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, merged, cached)
}

func TestLoad_SecondCallIsNoOp(t *testing.T) {
	c, r := newFakeCache(), &fakeRemote{found: true, records: records("a", models.ReviewStatusApproved)}
	s := New(c, r, "proj-1", WithQuietPeriod(testQuiet))
	defer s.Close()

	first, found, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, first, 1)

	second, found, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, second)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, 1, r.gets, "remote must be fetched once per scope")
}

func TestLoad_FetchFailureKeepsGateShutAndAllowsRetry(t *testing.T) {
	c, r := newFakeCache(), &fakeRemote{getErr: errors.New("network down")}
	s := New(c, r, "proj-1", WithQuietPeriod(testQuiet))
	defer s.Close()

	_, _, err := s.Load(context.Background())
	assert.Error(t, err)
	assert.False(t, s.Loaded())

	// Writes stay suppressed.
	s.StateChanged(records("Acme", models.ReviewStatusApproved))
	time.Sleep(5 * testQuiet)
	assert.Equal(t, 0, r.putCount())

	// Backend recovers; a retried Load opens the gate.
	r.mu.Lock()
	r.getErr = nil
	r.found = false
	r.mu.Unlock()

	_, _, err = s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Loaded())
}

func TestEmptyScope_CacheOnly(t *testing.T) {
	c, r := newFakeCache(), &fakeRemote{}
	s := New(c, r, "", WithQuietPeriod(testQuiet))
	defer s.Close()

	local, found, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.NotNil(t, local)

	s.StateChanged(records("Acme", models.ReviewStatusApproved))
	time.Sleep(5 * testQuiet)
	assert.Equal(t, 0, r.putCount())

	r.mu.Lock()
	assert.Equal(t, 0, r.gets)
	r.mu.Unlock()
}

func TestFlush_WritesImmediately(t *testing.T) {
	c, r := newFakeCache(), &fakeRemote{}
	s := New(c, r, "proj-1", WithQuietPeriod(time.Hour))
	defer s.Close()
	_, _, err := s.Load(context.Background())
	require.NoError(t, err)

	s.StateChanged(records("Acme", models.ReviewStatusApproved))
	assert.Equal(t, 0, r.putCount(), "quiet period has not elapsed")

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, r.putCount())
}

func TestClose_AbandonsPendingWrite(t *testing.T) {
	c, r := newFakeCache(), &fakeRemote{}
	s := New(c, r, "proj-1", WithQuietPeriod(testQuiet))
	_, _, err := s.Load(context.Background())
	require.NoError(t, err)

	s.StateChanged(records("Acme", models.ReviewStatusApproved))
	s.Close()

	time.Sleep(5 * testQuiet)
	assert.Equal(t, 0, r.putCount())
}

func TestMergeRemoteWins_Empty(t *testing.T) {
	merged := MergeRemoteWins(nil, nil)
	assert.Empty(t, merged)

	merged = MergeRemoteWins(records("a", models.ReviewStatusMaybe), nil)
	assert.Len(t, merged, 1)
}
