package framelog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendNewestFirst(t *testing.T) {
	l := New(time.Minute, 0)
	base := time.Unix(0, 0)

	l.Append(Entry{ICAO: 1, CreatedAt: base})
	l.Append(Entry{ICAO: 2, CreatedAt: base.Add(time.Second)})

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, uint32(2), snap[0].ICAO)
	require.Equal(t, uint32(1), snap[1].ICAO)
}

func TestAppendRespectsCapacity(t *testing.T) {
	l := New(time.Minute, 2)
	base := time.Unix(0, 0)

	l.Append(Entry{ICAO: 1, CreatedAt: base})
	l.Append(Entry{ICAO: 2, CreatedAt: base})
	l.Append(Entry{ICAO: 3, CreatedAt: base})

	require.Equal(t, 2, l.Len())
	snap := l.Snapshot()
	require.Equal(t, uint32(3), snap[0].ICAO)
	require.Equal(t, uint32(2), snap[1].ICAO)
}

func TestTryEvictDropsEntriesPastTTL(t *testing.T) {
	l := New(10*time.Second, 0)
	base := time.Unix(1000, 0)

	l.Append(Entry{ICAO: 1, CreatedAt: base})                      // old, will expire
	l.Append(Entry{ICAO: 2, CreatedAt: base.Add(9 * time.Second)}) // fresh

	ok := l.TryEvict(base.Add(11 * time.Second))
	require.True(t, ok)
	require.Equal(t, 1, l.Len())
	require.Equal(t, uint32(2), l.Snapshot()[0].ICAO)
}

func TestTryEvictNoOpBeforeTTL(t *testing.T) {
	l := New(time.Minute, 0)
	base := time.Unix(0, 0)
	l.Append(Entry{ICAO: 1, CreatedAt: base})

	l.TryEvict(base.Add(time.Second))
	require.Equal(t, 1, l.Len())
}

func TestForICAOFiltersByAddress(t *testing.T) {
	l := New(time.Minute, 0)
	base := time.Unix(0, 0)
	l.Append(Entry{ICAO: 0xAAAAAA, CreatedAt: base})
	l.Append(Entry{ICAO: 0xBBBBBB, CreatedAt: base})
	l.Append(Entry{ICAO: 0xAAAAAA, CreatedAt: base})

	matches := l.ForICAO(0xAAAAAA)
	require.Len(t, matches, 2)
}
