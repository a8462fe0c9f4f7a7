package sync

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardedMutex_LockUnlock(t *testing.T) {
	m := NewShardedMutex()

	m.Lock("failed_attempts_u1")
	m.Unlock("failed_attempts_u1")

	// Empty key falls back to shard 0
	m.Lock("")
	m.Unlock("")
}

func TestShardedMutex_SameKeySerializes(t *testing.T) {
	m := NewShardedMutex()
	counter := 0
	var wg sync.WaitGroup

	for range 200 {
		wg.Go(func() {
			m.Lock("session_abc")
			defer m.Unlock("session_abc")
			counter++
		})
	}
	wg.Wait()

	assert.Equal(t, 200, counter)
}

func TestShardedMutex_With(t *testing.T) {
	m := NewShardedMutexN(4)
	sentinel := errors.New("stop")

	err := m.With("backup_codes_u1", func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	// lock must be released after With returns
	done := make(chan struct{})
	go func() {
		m.Lock("backup_codes_u1")
		m.Unlock("backup_codes_u1")
		close(done)
	}()
	<-done
}

func TestShardedMutex_ShardBounds(t *testing.T) {
	m := NewShardedMutexN(0)
	assert.Len(t, m.shards, 1)
	assert.Equal(t, 0, m.shardFor("anything"))

	m = NewShardedMutexN(8)
	for _, k := range []string{"a", "rate_limit_auth_u1", "session_x"} {
		idx := m.shardFor(k)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 8)
		assert.Equal(t, idx, m.shardFor(k), "shard selection must be stable")
	}
}
