package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory Store, used by the test suite and by the fake
// wiring path in cmd/server when the configured Redis address is empty
// (an unset REDIS_ADDR falls back to localhost:6379). It has no
// network calls and therefore never returns ErrStoreUnavailable; it exists
// so the ingestion and query packages can be exercised without a live
// Redis (grounded on the teacher's internal/trust in-memory
// DataSource/ScoreStore pair).
type Memory struct {
	mu      sync.Mutex
	strings map[string]string
	sets    map[string]map[string]float64
	ttl     map[string]time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		strings: make(map[string]string),
		sets:    make(map[string]map[string]float64),
		ttl:     make(map[string]time.Time),
	}
}

// expired reports whether key carries a TTL that has already passed, and
// if so deletes it. Must be called with mu held.
func (m *Memory) expired(key string) bool {
	exp, ok := m.ttl[key]
	if !ok {
		return false
	}
	if time.Now().Before(exp) {
		return false
	}
	delete(m.strings, key)
	delete(m.sets, key)
	delete(m.ttl, key)
	return true
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return "", false, nil
	}
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	delete(m.ttl, key)
	return nil
}

func (m *Memory) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	m.ttl[key] = time.Now().Add(ttl)
	return nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	cur, _ := strconv.ParseInt(m.strings[key], 10, 64)
	cur++
	m.strings[key] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (m *Memory) IncrByFloat(_ context.Context, key string, delta float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	cur, _ := strconv.ParseFloat(m.strings[key], 64)
	cur += delta
	m.strings[key] = strconv.FormatFloat(cur, 'f', -1, 64)
	return cur, nil
}

func (m *Memory) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]float64)
		m.sets[key] = s
	}
	s[member] = score
	return nil
}

// sortedMembers returns the set's members ordered by ascending score,
// ties broken lexically by member for determinism. Must be called with mu
// held.
func (m *Memory) sortedMembers(key string) []string {
	s := m.sets[key]
	members := make([]string, 0, len(s))
	for mem := range s {
		members = append(members, mem)
	}
	sort.Slice(members, func(i, j int) bool {
		if s[members[i]] != s[members[j]] {
			return s[members[i]] < s[members[j]]
		}
		return members[i] < members[j]
	})
	return members
}

func (m *Memory) ZRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return nil, nil
	}
	members := m.sortedMembers(key)
	n := int64(len(members))
	if n == 0 {
		return nil, nil
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, members[start:stop+1])
	return out, nil
}

func (m *Memory) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return 0, nil
	}
	return int64(len(m.sets[key])), nil
}

func (m *Memory) ZRank(_ context.Context, key, member string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return 0, false, nil
	}
	if _, ok := m.sets[key][member]; !ok {
		return 0, false, nil
	}
	for rank, mem := range m.sortedMembers(key) {
		if mem == member {
			return int64(rank), true, nil
		}
	}
	return 0, false, nil
}

func (m *Memory) ZRem(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets[key], member)
	return nil
}

func (m *Memory) ZRemRangeByScore(_ context.Context, key string, min, max float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		return 0, nil
	}
	var removed int64
	for member, score := range s {
		if score >= min && score <= max {
			delete(s, member)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl[key] = time.Now().Add(ttl)
	return nil
}

func (m *Memory) ZRevRangeByScoreFirst(_ context.Context, key string, max float64) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return "", false, nil
	}
	members := m.sortedMembers(key)
	s := m.sets[key]
	best := ""
	bestScore := 0.0
	found := false
	for _, mem := range members {
		score := s[mem]
		if score <= max && (!found || score > bestScore) {
			best, bestScore, found = mem, score, true
		}
	}
	return best, found, nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for key := range m.sets {
		if strings.HasPrefix(key, prefix) && !m.expired(key) {
			out = append(out, key)
		}
	}
	for key := range m.strings {
		if strings.HasPrefix(key, prefix) && !m.expired(key) {
			out = append(out, key)
		}
	}
	return out, nil
}

func (m *Memory) CASCounterPair(_ context.Context, counterKey, snapshotKey string, delta int64, snapshotTTL time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(counterKey)
	cur, _ := strconv.ParseInt(m.strings[counterKey], 10, 64)
	next := cur + delta
	nextStr := strconv.FormatInt(next, 10)
	m.strings[counterKey] = nextStr
	m.strings[snapshotKey] = nextStr
	m.ttl[snapshotKey] = time.Now().Add(snapshotTTL)
	return next, nil
}
