package cache

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type CacheEntry[T any] struct {
	Data      T         `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
}

type CacheService[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T) error
	GenerateKey(params ...any) string
}

// FileCache stores one JSON file per key. Entries whose checksum does not
// match, or older than maxAge when set, are misses.
type FileCache[T any] struct {
	cacheDir string
	maxAge   time.Duration
	now      func() time.Time
}

type Option func(*fileCacheOptions)

type fileCacheOptions struct {
	maxAge time.Duration
	now    func() time.Time
}

func WithMaxAge(d time.Duration) Option {
	return func(o *fileCacheOptions) { o.maxAge = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *fileCacheOptions) { o.now = now }
}

func NewFileCache[T any](cacheDir string, opts ...Option) *FileCache[T] {
	o := fileCacheOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &FileCache[T]{cacheDir: cacheDir, maxAge: o.maxAge, now: o.now}
}

func (fc *FileCache[T]) GenerateKey(params ...any) string {
	var keyData string
	for _, param := range params {
		keyData += fmt.Sprintf("%v_", param)
	}
	h := sha1.New()
	h.Write([]byte(keyData))
	return hex.EncodeToString(h.Sum(nil))
}

func (fc *FileCache[T]) Get(key string) (T, bool) {
	var zero T
	data, err := os.ReadFile(fc.path(key))
	if err != nil {
		return zero, false
	}

	var entry CacheEntry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		return zero, false
	}
	if entry.Checksum != fc.calculateChecksum(entry.Data) {
		return zero, false
	}
	if fc.maxAge > 0 && fc.now().Sub(entry.CreatedAt) > fc.maxAge {
		return zero, false
	}
	return entry.Data, true
}

func (fc *FileCache[T]) Set(key string, data T) error {
	if err := os.MkdirAll(fc.cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	entry := CacheEntry[T]{
		Data:      data,
		CreatedAt: fc.now(),
		Checksum:  fc.calculateChecksum(data),
	}
	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	cacheFile := fc.path(key)
	tmpFile := cacheFile + ".tmp"
	if err := os.WriteFile(tmpFile, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := os.Rename(tmpFile, cacheFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp cache file: %w", err)
	}
	return nil
}

// Delete removes key; a missing entry is not an error.
func (fc *FileCache[T]) Delete(key string) error {
	err := os.Remove(fc.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (fc *FileCache[T]) path(key string) string {
	return filepath.Join(fc.cacheDir, key+".json")
}

func (fc *FileCache[T]) calculateChecksum(data T) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return hex.EncodeToString(hash[:])
}
