package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isabella232/sdc-amon/pkg/amonerr"
)

func countingFetch(value interface{}, err error) (func() (interface{}, error), *int) {
	calls := 0
	return func() (interface{}, error) {
		calls++
		return value, err
	}, &calls
}

func TestThroughCachesValues(t *testing.T) {
	c := New(10, time.Minute)
	fetch, calls := countingFetch("payload", nil)

	v, err := c.Through(ContactGet, "dn", fetch)
	require.NoError(t, err)
	assert.Equal(t, "payload", v)

	v, err = c.Through(ContactGet, "dn", fetch)
	require.NoError(t, err)
	assert.Equal(t, "payload", v)
	assert.Equal(t, 1, *calls, "second read must come from the cache")
}

func TestThroughCachesNegativeOutcomes(t *testing.T) {
	c := New(10, time.Minute)
	fetch, calls := countingFetch(nil, amonerr.NotFound("no such contact"))

	_, err := c.Through(ContactGet, "dn", fetch)
	assert.True(t, amonerr.IsNotFound(err))

	_, err = c.Through(ContactGet, "dn", fetch)
	assert.True(t, amonerr.IsNotFound(err))
	assert.Equal(t, 1, *calls, "NotFound must be cached")
}

func TestThroughNeverCachesUnavailable(t *testing.T) {
	c := New(10, time.Minute)
	fetch, calls := countingFetch(nil, amonerr.Unavailable("directory down"))

	_, err := c.Through(AccountByLogin, "alice", fetch)
	assert.True(t, amonerr.IsUnavailable(err))

	_, err = c.Through(AccountByLogin, "alice", fetch)
	assert.True(t, amonerr.IsUnavailable(err))
	assert.Equal(t, 2, *calls, "Unavailable must not be cached")
	assert.Equal(t, 0, c.Len())
}

func TestScopesDoNotCollide(t *testing.T) {
	c := New(10, time.Minute)

	get, _ := countingFetch("the-contact", nil)
	list, _ := countingFetch("the-list", nil)

	v, err := c.Through(ContactGet, "same-key", get)
	require.NoError(t, err)
	assert.Equal(t, "the-contact", v)

	v, err = c.Through(ContactList, "same-key", list)
	require.NoError(t, err)
	assert.Equal(t, "the-list", v)
}

func TestInvalidate(t *testing.T) {
	c := New(10, time.Minute)
	fetch, calls := countingFetch("payload", nil)

	_, _ = c.Through(MonitorGet, "dn", fetch)
	c.Invalidate(MonitorGet, "dn")
	_, _ = c.Through(MonitorGet, "dn", fetch)
	assert.Equal(t, 2, *calls, "invalidation must force a refetch")
}

func TestExpiry(t *testing.T) {
	c := New(10, 20*time.Millisecond)
	fetch, calls := countingFetch("payload", nil)

	_, _ = c.Through(ProbeGet, "dn", fetch)
	time.Sleep(50 * time.Millisecond)
	_, _ = c.Through(ProbeGet, "dn", fetch)
	assert.Equal(t, 2, *calls, "expired entry must read as a miss")
}

func TestSizeBoundEvictsLRU(t *testing.T) {
	c := New(2, time.Minute)

	a, aCalls := countingFetch("a", nil)
	b, _ := countingFetch("b", nil)
	d, _ := countingFetch("d", nil)

	_, _ = c.Through(ContactGet, "a", a)
	_, _ = c.Through(ContactGet, "b", b)
	_, _ = c.Through(ContactGet, "a", a) // refresh a's recency
	_, _ = c.Through(ContactGet, "d", d) // evicts b
	assert.Equal(t, 2, c.Len())

	_, _ = c.Through(ContactGet, "a", a)
	assert.Equal(t, 1, *aCalls, "a must have survived the eviction")
}
