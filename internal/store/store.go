// Package store はJSONフラットファイルによるレコードストアを提供する。
// コレクション全体を1つのJSONドキュメントとして読み込み、変更のたびに丸ごと書き戻す。
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Record はストアに保存できるレコードの制約。
// Keyはコレクション内で一意でなければならない。
type Record interface {
	Key() string
	Validate() error
}

// StoreError はフラットファイルの読み書きに失敗したことを表す。
type StoreError struct {
	Op   string // read, decode, validate, encode, write
	Path string
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *StoreError) Unwrap() error {
	return e.Err
}

// FileStore は1つのJSONファイルに型付きレコードの配列を保存する。
//
// Update はプロセス内のミューテックスで read-modify-write を直列化する。
// 複数プロセスから同じファイルを書き込んだ場合の競合は防げない。
type FileStore[T Record] struct {
	mu   sync.Mutex
	path string
}

// New は指定パスのFileStoreを生成する。ファイルはまだ存在しなくてよい。
func New[T Record](path string) *FileStore[T] {
	return &FileStore[T]{path: path}
}

// Path はストアのファイルパスを返す。
func (s *FileStore[T]) Path() string {
	return s.path
}

// Load はファイル全体を読み込み、全レコードを検証して返す。
// ファイルが存在しない、JSONが壊れている、または不正なレコードを含む場合は*StoreErrorを返す。
func (s *FileStore[T]) Load(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load()
}

// Save はレコード配列でファイル全体を置き換える。
func (s *FileStore[T]) Save(ctx context.Context, records []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(records)
}

// Update はファイルを読み込み、fnを適用した結果を書き戻す。
// fnがエラーを返した場合は何も書き込まず、そのエラーをそのまま返す。
func (s *FileStore[T]) Update(ctx context.Context, fn func(records []T) ([]T, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	next, err := fn(records)
	if err != nil {
		return err
	}
	return s.save(next)
}

// Init はファイルが存在しない場合のみseedで作成する。
// 作成した場合はtrueを返す。
func (s *FileStore[T]) Init(ctx context.Context, seed []T) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, &StoreError{Op: "read", Path: s.path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return false, &StoreError{Op: "write", Path: s.path, Err: err}
	}
	if err := s.save(seed); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore[T]) load() ([]T, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &StoreError{Op: "read", Path: s.path, Err: err}
	}

	var records []T
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, &StoreError{Op: "decode", Path: s.path, Err: err}
	}
	if records == nil {
		records = []T{}
	}

	if err := validate(records); err != nil {
		return nil, &StoreError{Op: "validate", Path: s.path, Err: err}
	}
	return records, nil
}

func (s *FileStore[T]) save(records []T) error {
	if records == nil {
		records = []T{}
	}
	if err := validate(records); err != nil {
		return &StoreError{Op: "validate", Path: s.path, Err: err}
	}

	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &StoreError{Op: "encode", Path: s.path, Err: err}
	}

	// 同じディレクトリの一時ファイルに書いてからrenameで置き換える
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &StoreError{Op: "write", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StoreError{Op: "write", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "write", Path: s.path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "write", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

// validate は各レコードの検証とキーの一意性を確認する。
func validate[T Record](records []T) error {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := seen[r.Key()]; dup {
			return fmt.Errorf("record %d: duplicate key %q", i, r.Key())
		}
		seen[r.Key()] = struct{}{}
	}
	return nil
}
