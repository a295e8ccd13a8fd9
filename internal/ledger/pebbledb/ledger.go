package pebbledb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"poolmonitor/internal/ledger"
	"poolmonitor/internal/model"
)

var (
	postPrefix = []byte("post/")
	seqKey     = []byte("meta/seq")
)

// ErrClosed is returned by operations on a closed ledger.
var ErrClosed = errors.New("pebble ledger is closed")

// Ledger stores posts in a local pebble database under big-endian sequence
// keys, so iteration order is append order.
type Ledger struct {
	db     *pebble.DB
	mu     sync.Mutex
	next   uint64
	closed bool
}

// Open opens or creates the database at path.
func Open(path string) (*Ledger, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	var next uint64
	value, closer, err := db.Get(seqKey)
	switch {
	case err == nil:
		if len(value) == 8 {
			next = binary.BigEndian.Uint64(value)
		}
		closer.Close()
	case errors.Is(err, pebble.ErrNotFound):
	default:
		db.Close()
		return nil, fmt.Errorf("read sequence: %w", err)
	}

	return &Ledger{db: db, next: next}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

// Append stores post under the next sequence key.
func (l *Ledger) Append(_ context.Context, post model.Post) (string, error) {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	value, err := json.Marshal(post)
	if err != nil {
		return "", fmt.Errorf("marshal post: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return "", ErrClosed
	}

	seq := l.next + 1
	seqValue := make([]byte, 8)
	binary.BigEndian.PutUint64(seqValue, seq)

	batch := l.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(postKey(seq), value, nil); err != nil {
		return "", fmt.Errorf("stage post: %w", err)
	}
	if err := batch.Set(seqKey, seqValue, nil); err != nil {
		return "", fmt.Errorf("stage sequence: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return "", fmt.Errorf("commit post: %w", err)
	}
	l.next = seq
	return post.ID, nil
}

// QueryLatest walks posts from newest to oldest.
func (l *Ledger) QueryLatest(_ context.Context, postType, author string) ([]model.Post, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: postPrefix,
		UpperBound: prefixEnd(postPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var posts []model.Post
	for valid := iter.Last(); valid; valid = iter.Prev() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("read post: %w", err)
		}
		var post model.Post
		if err := json.Unmarshal(value, &post); err != nil {
			return nil, fmt.Errorf("decode post %x: %w", iter.Key(), err)
		}
		if ledger.Matches(post, postType, author) {
			posts = append(posts, post)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func postKey(seq uint64) []byte {
	key := make([]byte, len(postPrefix)+8)
	copy(key, postPrefix)
	binary.BigEndian.PutUint64(key[len(postPrefix):], seq)
	return key
}

func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	end[len(end)-1]++
	return end
}
