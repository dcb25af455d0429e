package redistest

import (
	"context"
	"errors"
	"path"
	"sort"
	"sync"
	"time"
)

var errWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// keyspace is one numbered database.
type keyspace struct {
	strings map[string][]byte
	lists   map[string][][]byte
}

func newKeyspace() *keyspace {
	return &keyspace{
		strings: make(map[string][]byte),
		lists:   make(map[string][][]byte),
	}
}

// Store holds the numbered databases of a Server.
type Store struct {
	mu  sync.Mutex
	dbs map[int]*keyspace

	// pushed is closed and replaced whenever a list grows, to wake BLPOP
	pushed chan struct{}
}

func NewStore() *Store {
	return &Store{
		dbs:    make(map[int]*keyspace),
		pushed: make(chan struct{}),
	}
}

func (s *Store) db(n int) *keyspace {
	ks, ok := s.dbs[n]
	if !ok {
		ks = newKeyspace()
		s.dbs[n] = ks
	}

	return ks
}

func (s *Store) Get(db int, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.db(db)
	if _, ok := ks.lists[key]; ok {
		return nil, errWrongType
	}

	return ks.strings[key], nil
}

func (s *Store) Set(db int, key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.db(db)
	delete(ks.lists, key)
	ks.strings[key] = value
}

func (s *Store) Del(db int, keys ...string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.db(db)

	var n int64
	for _, key := range keys {
		if _, ok := ks.strings[key]; ok {
			delete(ks.strings, key)
			n++
		} else if _, ok := ks.lists[key]; ok {
			delete(ks.lists, key)
			n++
		}
	}

	return n
}

func (s *Store) Exists(db int, keys ...string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.db(db)

	var n int64
	for _, key := range keys {
		_, isString := ks.strings[key]
		_, isList := ks.lists[key]
		if isString || isList {
			n++
		}
	}

	return n
}

// Update replaces the string at key with fn(current) under the store lock.
func (s *Store) Update(db int, key string, fn func(current []byte) ([]byte, error)) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.db(db)
	if _, ok := ks.lists[key]; ok {
		return nil, errWrongType
	}

	value, err := fn(ks.strings[key])
	if err != nil {
		return nil, err
	}

	ks.strings[key] = value
	return value, nil
}

// Push adds values to the head (left) or tail of the list at key and returns
// its new length.
func (s *Store) Push(db int, key string, left bool, values ...[]byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.db(db)
	if _, ok := ks.strings[key]; ok {
		return 0, errWrongType
	}

	list := ks.lists[key]
	for _, value := range values {
		if left {
			list = append([][]byte{value}, list...)
		} else {
			list = append(list, value)
		}
	}

	ks.lists[key] = list

	close(s.pushed)
	s.pushed = make(chan struct{})

	return int64(len(list)), nil
}

// Range returns the elements between start and stop inclusive. Negative
// indexes count from the tail.
func (s *Store) Range(db int, key string, start, stop int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.db(db)
	if _, ok := ks.strings[key]; ok {
		return nil, errWrongType
	}

	list := ks.lists[key]
	n := int64(len(list))

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

	if start > stop {
		return [][]byte{}, nil
	}

	out := make([][]byte, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (s *Store) pop(db int, keys []string) (string, []byte, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.db(db)
	for _, key := range keys {
		list := ks.lists[key]
		if len(list) == 0 {
			continue
		}

		head := list[0]
		if len(list) == 1 {
			delete(ks.lists, key)
		} else {
			ks.lists[key] = list[1:]
		}

		return key, head, nil
	}

	return "", nil, s.pushed
}

// BlockingPop pops the head of the first non-empty list in keys, waiting up
// to timeout (forever when zero) for one to be pushed to. ok is false on
// timeout.
func (s *Store) BlockingPop(ctx context.Context, db int, keys []string, timeout time.Duration) (key string, value []byte, ok bool) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		key, value, pushed := s.pop(db, keys)
		if pushed == nil {
			return key, value, true
		}

		select {
		case <-pushed:
		case <-expired:
			return "", nil, false
		case <-ctx.Done():
			return "", nil, false
		}
	}
}

func (s *Store) Keys(db int, pattern string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.db(db)

	keys := make([]string, 0, len(ks.strings)+len(ks.lists))
	for key := range ks.strings {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}

	for key := range ks.lists {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys
}

func (s *Store) FlushDB(db int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dbs[db] = newKeyspace()
}
