// Package chunkstore persists in-flight upload chunks on the local
// filesystem. Every operation hits disk directly: chunk and finalize
// requests for one session may be handled by different instances, so the
// only shared state allowed is the session directory itself. That still
// assumes all instances mount the same root; a genuinely horizontal
// deployment needs this store backed by shared object storage instead.
package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const chunkPrefix = "chunk_"

type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{
		root: root,
	}
}

func (s *Store) sessionDir(uploadID string) string {
	return filepath.Join(s.root, uploadID)
}

// Ensure creates the session directory, idempotently.
func (s *Store) Ensure(ctx context.Context, uploadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.MkdirAll(s.sessionDir(uploadID), 0755)
}

// WriteChunk persists one chunk, overwriting any prior file at the same
// index so retried chunks never duplicate.
func (s *Store) WriteChunk(ctx context.Context, uploadID string, index int, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Ensure(ctx, uploadID); err != nil {
		return errors.New("creating upload directory error: " + err.Error())
	}
	path := filepath.Join(s.sessionDir(uploadID), fmt.Sprintf("%s%d", chunkPrefix, index))
	file, err := os.Create(path)
	if err != nil {
		return errors.New("creating chunk file error: " + err.Error())
	}
	defer file.Close()
	_, err = io.Copy(file, r)
	if err != nil {
		return errors.New("writing chunk content error: " + err.Error())
	}
	return nil
}

// List returns chunk filenames sorted by the numeric index embedded in
// each name. Lexical order is wrong past ten chunks (chunk_10 < chunk_2),
// so reassembly must never rely on it.
func (s *Store) List(ctx context.Context, uploadID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.sessionDir(uploadID))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return chunkIndex(names[i]) < chunkIndex(names[j])
	})
	return names, nil
}

func chunkIndex(name string) int {
	idx, err := strconv.Atoi(strings.TrimPrefix(name, chunkPrefix))
	if err != nil {
		return -1
	}
	return idx
}

// ReadChunk returns the content of one stored chunk by filename.
func (s *Store) ReadChunk(ctx context.Context, uploadID, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(s.sessionDir(uploadID), name))
}

// Assemble concatenates every chunk of a session in index order into one
// buffer. A session with no chunk files reports os.ErrNotExist.
func (s *Store) Assemble(ctx context.Context, uploadID string) ([]byte, error) {
	names, err := s.List(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, os.ErrNotExist
	}
	var buf []byte
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := s.ReadChunk(ctx, uploadID, name)
		if err != nil {
			return nil, errors.New("reading chunk error: " + err.Error())
		}
		buf = append(buf, content...)
	}
	return buf, nil
}

// Remove deletes the whole session directory. A directory that is already
// gone counts as success, cleanup runs on every terminal path and must be
// idempotent.
func (s *Store) Remove(ctx context.Context, uploadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.RemoveAll(s.sessionDir(uploadID))
}

// Exists reports whether a session directory is present.
func (s *Store) Exists(uploadID string) bool {
	info, err := os.Stat(s.sessionDir(uploadID))
	return err == nil && info.IsDir()
}
