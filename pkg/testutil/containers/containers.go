//go:build integration

// Package containers provides testcontainers fixtures for integration tests.
// A container lives as long as the test that first requested it; later
// requests within that test share it.
package containers

import (
	"sync"
	"testing"
)

// Manager hands out shared containers.
type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	redis    *RedisContainer
	kafka    *KafkaContainer
}

var (
	globalManager *Manager
	initOnce      sync.Once
)

// GetManager returns the process-wide manager.
func GetManager() *Manager {
	initOnce.Do(func() {
		globalManager = &Manager{}
	})
	return globalManager
}

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return shared(t, &m.mu, &m.postgres, NewPostgresContainer)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return shared(t, &m.mu, &m.redis, NewRedisContainer)
}

func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return shared(t, &m.mu, &m.kafka, NewKafkaContainer)
}

// shared starts a container on first use and forgets it when the owning
// test finishes, since the constructor terminates it in t.Cleanup.
func shared[C any](t *testing.T, mu *sync.Mutex, slot **C, start func(*testing.T) *C) *C {
	t.Helper()
	mu.Lock()
	defer mu.Unlock()
	if *slot != nil {
		return *slot
	}
	c := start(t)
	*slot = c
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		if *slot == c {
			*slot = nil
		}
	})
	return c
}
