// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/square/go-jose.v2"
)

// KeySize is the size of a FileBackend encryption key (A256GCM).
const KeySize = 32

// FileBackend persists values as files in a directory only the current user
// can read.  It's the default durable tier.  With an encryption key, values
// are stored as compact JWEs (dir + A256GCM).
type FileBackend struct {
	dir     string
	key     []byte
	mu      sync.Mutex
	nowFunc func() time.Time
}

// fileEnvelope is the on-disk representation of a value.
type fileEnvelope struct {
	Value     []byte `json:"v"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates the directory (0700) if needed.
//
// Supported options: WithEncryptionKey, WithNow
func NewFileBackend(dir string, opt ...Option) (*FileBackend, error) {
	const op = "NewFileBackend"
	if dir == "" {
		return nil, fmt.Errorf("%s: directory is empty: %w", op, ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	if opts.withEncryptionKey != nil && len(opts.withEncryptionKey) != KeySize {
		return nil, fmt.Errorf("%s: encryption key must be %d bytes: %w", op, KeySize, ErrInvalidParameter)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%s: unable to create directory: %w", op, err)
	}
	return &FileBackend{
		dir:     dir,
		key:     opts.withEncryptionKey,
		nowFunc: opts.withNowFunc,
	}, nil
}

// Load implements Backend.Load.
func (f *FileBackend) Load(_ context.Context, key string) ([]byte, error) {
	const op = "FileBackend.Load"
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := os.ReadFile(f.path(key))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: unable to read value: %w", op, err)
	}
	plain, err := f.open(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var env fileEnvelope
	if err := json.Unmarshal(plain, &env); err != nil {
		return nil, fmt.Errorf("%s: unable to decode value: %w", op, err)
	}
	if env.ExpiresAt != 0 && !time.Unix(env.ExpiresAt, 0).After(f.now()) {
		_ = os.Remove(f.path(key))
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return env.Value, nil
}

// Store implements Backend.Store.  The file is written atomically.
func (f *FileBackend) Store(_ context.Context, key string, val []byte, ttl time.Duration) error {
	const op = "FileBackend.Store"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, ErrInvalidParameter)
	}
	env := fileEnvelope{Value: val}
	if ttl > 0 {
		env.ExpiresAt = f.now().Add(ttl).Unix()
	}
	plain, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%s: unable to encode value: %w", op, err)
	}
	sealed, err := f.seal(plain)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%s: unable to create file: %w", op, err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: unable to set file mode: %w", op, err)
	}
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: unable to write file: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: unable to close file: %w", op, err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return fmt.Errorf("%s: unable to replace file: %w", op, err)
	}
	return nil
}

// Delete implements Backend.Delete.
func (f *FileBackend) Delete(_ context.Context, key string) error {
	const op = "FileBackend.Delete"
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: unable to remove file: %w", op, err)
	}
	return nil
}

// path hashes the key so file names never reveal it.
func (f *FileBackend) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:]))
}

func (f *FileBackend) seal(plain []byte) ([]byte, error) {
	if f.key == nil {
		return plain, nil
	}
	enc, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{Algorithm: jose.DIRECT, Key: f.key}, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create encrypter: %w", err)
	}
	obj, err := enc.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("unable to encrypt value: %w", err)
	}
	s, err := obj.CompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("unable to serialize value: %w", err)
	}
	return []byte(s), nil
}

func (f *FileBackend) open(raw []byte) ([]byte, error) {
	if f.key == nil {
		return raw, nil
	}
	obj, err := jose.ParseEncrypted(string(raw))
	if err != nil {
		return nil, fmt.Errorf("unable to parse encrypted value: %w", err)
	}
	plain, err := obj.Decrypt(f.key)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt value: %w", err)
	}
	return plain, nil
}

func (f *FileBackend) now() time.Time {
	if f.nowFunc != nil {
		return f.nowFunc()
	}
	return time.Now()
}
