package tile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store persists one board per user. Last write wins.
type Store interface {
	Load(ctx context.Context, userID string) (*Board, error)
	Save(ctx context.Context, userID string, board *Board) error
	Delete(ctx context.Context, userID string) error
}

// BoardKey redis key of a user's board
func BoardKey(userID string) string {
	return "tile:board:" + userID
}

// RedisStore board as JSON, no expiry
type RedisStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Load returns an empty board when the user has none yet
func (s *RedisStore) Load(ctx context.Context, userID string) (*Board, error) {
	raw, err := s.rdb.Get(ctx, BoardKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewBoard(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load board: %w", err)
	}
	return decodeBoard(raw)
}

func (s *RedisStore) Save(ctx context.Context, userID string, board *Board) error {
	raw, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}
	if err := s.rdb.Set(ctx, BoardKey(userID), raw, 0).Err(); err != nil {
		return fmt.Errorf("save board: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, BoardKey(userID)).Err()
}

func decodeBoard(raw []byte) (*Board, error) {
	board := NewBoard()
	if err := json.Unmarshal(raw, board); err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}
	if board.BucketItems == nil {
		board.BucketItems = []Item{}
	}
	if board.CanvasItems == nil {
		board.CanvasItems = []Item{}
	}
	if board.TileGroups == nil {
		board.TileGroups = []Group{}
	}
	if err := board.Validate(); err != nil {
		return nil, fmt.Errorf("stored board: %w", err)
	}
	return board, nil
}

// MemoryStore process-local store, used when Redis is not configured
type MemoryStore struct {
	mu     sync.Mutex
	boards map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{boards: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, userID string) (*Board, error) {
	s.mu.Lock()
	raw, ok := s.boards[userID]
	s.mu.Unlock()
	if !ok {
		return NewBoard(), nil
	}
	return decodeBoard(raw)
}

func (s *MemoryStore) Save(_ context.Context, userID string, board *Board) error {
	raw, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}
	s.mu.Lock()
	s.boards[userID] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.boards, userID)
	s.mu.Unlock()
	return nil
}
