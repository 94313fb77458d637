package ratelimit

import (
	"container/list"
	"sync"
)

// DefaultMaxKeys bounds the number of buckets a KeyedLimiter retains when no
// explicit bound is configured.
const DefaultMaxKeys = 4096

// KeyedLimiter keeps one token bucket per key (for example a client address)
// and evicts the least recently used bucket once maxKeys is reached. An
// evicted key starts over with a full bucket.
type KeyedLimiter struct {
	clock    Clock
	capacity int64
	rate     int64
	maxKeys  int
	onEvict  func(key string)

	mu      sync.Mutex
	buckets map[string]*list.Element
	lru     *list.List // front is most recently used
}

type keyedBucket struct {
	key    string
	bucket *TokenBucket
}

func NewKeyedLimiter(clock Clock, capacityTokens, tokensPerSecond int64, maxKeys int, onEvict func(key string)) *KeyedLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &KeyedLimiter{
		clock:    clock,
		capacity: capacityTokens,
		rate:     tokensPerSecond,
		maxKeys:  maxKeys,
		onEvict:  onEvict,
		buckets:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Allow takes one token from key's bucket.
func (l *KeyedLimiter) Allow(key string) bool {
	return l.bucket(key).Allow(1)
}

// Len reports the number of retained buckets.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *KeyedLimiter) bucket(key string) *TokenBucket {
	var evicted []string

	l.mu.Lock()
	if elem, ok := l.buckets[key]; ok {
		l.lru.MoveToFront(elem)
		b := elem.Value.(*keyedBucket).bucket
		l.mu.Unlock()
		return b
	}
	for len(l.buckets) >= l.maxKeys {
		oldest := l.lru.Back()
		kb := l.lru.Remove(oldest).(*keyedBucket)
		delete(l.buckets, kb.key)
		evicted = append(evicted, kb.key)
	}
	b := NewTokenBucket(l.clock, l.capacity, l.rate)
	l.buckets[key] = l.lru.PushFront(&keyedBucket{key: key, bucket: b})
	l.mu.Unlock()

	if l.onEvict != nil {
		for _, k := range evicted {
			l.onEvict(k)
		}
	}
	return b
}
