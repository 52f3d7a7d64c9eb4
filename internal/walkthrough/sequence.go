package walkthrough

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
)

// SequenceStore remembers the last walkthrough number used on a device.
// Save never moves the sequence backwards.
type SequenceStore interface {
	Last(ctx context.Context) (int, error)
	Save(ctx context.Context, n int) error
}

// MemorySequence keeps the sequence in process.
type MemorySequence struct {
	mu   sync.Mutex
	last int
}

// NewMemorySequence starts at last.
func NewMemorySequence(last int) *MemorySequence {
	return &MemorySequence{last: last}
}

func (s *MemorySequence) Last(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, nil
}

func (s *MemorySequence) Save(_ context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.last {
		s.last = n
	}
	return nil
}

// FileSequence stores the sequence in a small text file.
type FileSequence struct {
	mu   sync.Mutex
	path string
}

// NewFileSequence uses path; the file is created on first Save.
func NewFileSequence(path string) *FileSequence {
	return &FileSequence{path: path}
}

func (s *FileSequence) Last(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileSequence) read() (int, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return n, nil
}

func (s *FileSequence) Save(_ context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, err := s.read()
	if err != nil {
		return err
	}
	if n <= last {
		return nil
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".sequence-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(strconv.Itoa(n) + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// saveMax sets the key only when the new value is larger.
var saveMax = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local n = tonumber(ARGV[1])
if n > cur then
  redis.call('SET', KEYS[1], ARGV[1])
  return n
end
return cur
`)

// RedisSequence keeps one sequence per device in Redis.
type RedisSequence struct {
	client *redis.Client
	key    string
}

// NewRedisSequence stores the sequence for deviceID under
// walkthrough:sequence:<deviceID>.
func NewRedisSequence(client *redis.Client, deviceID string) *RedisSequence {
	return &RedisSequence{client: client, key: "walkthrough:sequence:" + deviceID}
}

func (s *RedisSequence) Last(ctx context.Context) (int, error) {
	n, err := s.client.Get(ctx, s.key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return n, nil
}

func (s *RedisSequence) Save(ctx context.Context, n int) error {
	if err := saveMax.Run(ctx, s.client, []string{s.key}, n).Err(); err != nil {
		return fmt.Errorf("redis save %s: %w", s.key, err)
	}
	return nil
}
