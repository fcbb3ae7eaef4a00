// Package sessionfs はセッションをディレクトリとして永続化するファイルツリーを提供する。
//
// レイアウトは <root>/<username>/<sessionName>/<files...> で、
// セッションの状態はディレクトリの内容そのものとなる。マニフェストは持たない。
package sessionfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/riicode/rcbuilder/internal/model"
)

// sessionPrefix は生成されるセッション名の接頭辞。
const sessionPrefix = "session_"

// defaultScanConcurrency はListAllで同時に走査するユーザーディレクトリ数。
const defaultScanConcurrency = 4

// Tree はセッションディレクトリツリー。
type Tree struct {
	root            string
	scanConcurrency int
}

// New はrootを起点とするTreeを生成する。
func New(root string) *Tree {
	return &Tree{
		root:            root,
		scanConcurrency: defaultScanConcurrency,
	}
}

// Root はツリーのルートディレクトリを返す。
func (t *Tree) Root() string {
	return t.root
}

// EnsureRoot はルートディレクトリを作成する。
func (t *Tree) EnsureRoot() error {
	if err := os.MkdirAll(t.root, 0o755); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return nil
}

// NewSessionName はタイムスタンプ由来の新しいセッション名を返す。
// ULIDはプロセス内で単調増加するため、同一ミリ秒内に作成しても衝突しない。
func NewSessionName() string {
	return sessionPrefix + ulid.Make().String()
}

// Save はセッションディレクトリを作成し、各ファイルを書き込む。
// 既存のファイルは上書きされる。ファイル名はすべて事前に検証し、
// 1つでもセッションディレクトリ外を指す場合や、ファイルとディレクトリが
// 衝突する場合は何も書き込まない。新規作成したセッションディレクトリは
// 書き込みに失敗した時点で削除する。
func (t *Tree) Save(ctx context.Context, username, sessionName string, files []model.SessionFile) error {
	dir, err := t.sessionDir(username, sessionName)
	if err != nil {
		return err
	}

	targets := make([]string, len(files))
	for i, f := range files {
		p, err := resolveFile(dir, f.FileName)
		if err != nil {
			return err
		}
		for _, prev := range files[:i] {
			if PathsConflict(prev.FileName, f.FileName) {
				return model.NewInvalidPathError(f.FileName)
			}
		}
		if err := checkExisting(dir, p, f.FileName); err != nil {
			return err
		}
		targets[i] = p
	}

	_, statErr := os.Stat(dir)
	created := errors.Is(statErr, fs.ErrNotExist)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	if err := writeFiles(ctx, files, targets); err != nil {
		if created {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				slog.Warn("failed to remove incomplete session",
					slog.String("path", dir),
					slog.String("error", rmErr.Error()),
				)
			}
		}
		return err
	}

	slog.Info("session saved",
		slog.String("username", username),
		slog.String("session", sessionName),
		slog.Int("files", len(files)),
	)
	return nil
}

func writeFiles(ctx context.Context, files []model.SessionFile, targets []string) error {
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(targets[i]), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", f.FileName, err)
		}
		if err := os.WriteFile(targets[i], []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.FileName, err)
		}
	}
	return nil
}

// List はユーザーのセッション一覧を返す。ユーザーディレクトリが無い場合は空を返す。
func (t *Tree) List(ctx context.Context, username string) ([]model.SessionSummary, error) {
	if err := ValidateName("username", username); err != nil {
		return nil, err
	}

	sessions, err := t.listUser(ctx, username)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.SessionSummary{}, nil
	}
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListAll は全ユーザーのセッション一覧をユーザー名、セッション名の順で返す。
// 読み込めないユーザーディレクトリはスキップする。
func (t *Tree) ListAll(ctx context.Context) ([]model.SessionSummary, error) {
	entries, err := os.ReadDir(t.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.SessionSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var users []string
	for _, e := range entries {
		if e.IsDir() {
			users = append(users, e.Name())
		}
	}

	perUser := make([][]model.SessionSummary, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.scanConcurrency)
	for i, username := range users {
		g.Go(func() error {
			sessions, err := t.listUser(gctx, username)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("skipping unreadable user directory",
					slog.String("username", username),
					slog.String("error", err.Error()),
				)
				return nil
			}
			perUser[i] = sessions
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := []model.SessionSummary{}
	for _, sessions := range perUser {
		all = append(all, sessions...)
	}
	return all, nil
}

// Resolve はセッションディレクトリの絶対パスを返す。
func (t *Tree) Resolve(username, sessionName string) (string, error) {
	dir, err := t.sessionDir(username, sessionName)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return "", model.NewSessionNotFoundError()
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat session: %w", err)
	}
	return dir, nil
}

// Lookup はユーザー名なしでセッション名からセッションを探す。
// ユーザーディレクトリを名前順に線形走査し、最初に一致したものを返す。
// セッション名は全ユーザーで一意であることが期待されるが保証はされない。
func (t *Tree) Lookup(ctx context.Context, sessionName string) (username, dir string, err error) {
	if err := ValidateName("sessionName", sessionName); err != nil {
		return "", "", err
	}

	entries, err := os.ReadDir(t.root)
	if errors.Is(err, fs.ErrNotExist) {
		return "", "", model.NewSessionNotFoundError()
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var owners []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		if !e.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(t.root, e.Name(), sessionName))
		if err == nil && info.IsDir() {
			owners = append(owners, e.Name())
		}
	}

	if len(owners) == 0 {
		return "", "", model.NewSessionNotFoundError()
	}
	if len(owners) > 1 {
		slog.Warn("session name is ambiguous, using first owner",
			slog.String("session", sessionName),
			slog.Any("owners", owners),
		)
	}
	return owners[0], filepath.Join(t.root, owners[0], sessionName), nil
}

// Delete はセッションディレクトリを再帰的に削除する。
func (t *Tree) Delete(ctx context.Context, username, sessionName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := t.Resolve(username, sessionName)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("session deleted",
		slog.String("username", username),
		slog.String("session", sessionName),
	)
	return nil
}

func (t *Tree) sessionDir(username, sessionName string) (string, error) {
	if err := ValidateName("username", username); err != nil {
		return "", err
	}
	if err := ValidateName("sessionName", sessionName); err != nil {
		return "", err
	}
	return filepath.Join(t.root, username, sessionName), nil
}

// listUser はユーザーディレクトリ直下のセッションを要約する。
func (t *Tree) listUser(ctx context.Context, username string) ([]model.SessionSummary, error) {
	userDir := filepath.Join(t.root, username)
	entries, err := os.ReadDir(userDir)
	if err != nil {
		return nil, err
	}

	sessions := []model.SessionSummary{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		count, err := countFiles(filepath.Join(userDir, e.Name()))
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, model.SessionSummary{
			Username:  username,
			Name:      e.Name(),
			Created:   createdAt(e.Name(), info),
			FileCount: count,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Name < sessions[j].Name
	})
	return sessions, nil
}

// countFiles はディレクトリ配下のディレクトリ以外のエントリ数を再帰的に数える。
func countFiles(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count, err
}

// createdAt はセッションの作成時刻を返す。
// 生成名（session_<ULID> または旧形式の session_<unix millis>）からは埋め込まれた時刻を、
// それ以外はディレクトリの更新時刻を使う。
func createdAt(name string, info fs.FileInfo) time.Time {
	suffix, ok := strings.CutPrefix(name, sessionPrefix)
	if ok {
		if id, err := ulid.ParseStrict(suffix); err == nil {
			return ulid.Time(id.Time()).UTC()
		}
		if ms, err := strconv.ParseInt(suffix, 10, 64); err == nil && ms > 0 {
			return time.UnixMilli(ms).UTC()
		}
	}
	return info.ModTime().UTC()
}

// ValidateName はユーザー名とセッション名が単一のパス要素であることを確認する。
// fieldはエラーメッセージに使うフィールド名。
func ValidateName(field, name string) error {
	if name == "" {
		return model.NewValidationError(fmt.Sprintf("%s is required", field))
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return model.NewInvalidPathError(name)
	}
	return nil
}

// resolveFile はセッションルートからの相対ファイル名を検証し、書き込み先のパスを返す。
func resolveFile(dir, name string) (string, error) {
	if name == "" {
		return "", model.NewValidationError("fileName is required")
	}
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) || filepath.Clean(local) == "." {
		return "", model.NewInvalidPathError(name)
	}
	return filepath.Join(dir, local), nil
}

// PathsConflict は2つの相対ファイル名の一方が他方の親ディレクトリになるかを返す。
// 同じ名前は上書きとして扱い、衝突としない。
func PathsConflict(a, b string) bool {
	a, b = cleanRel(a), cleanRel(b)
	return strings.HasPrefix(b, a+"/") || strings.HasPrefix(a, b+"/")
}

func cleanRel(name string) string {
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(name)))
}

// checkExisting は書き込み先がディスク上の既存ツリーと衝突しないことを確認する。
// 書き込み先が既存ディレクトリの場合と、途中の要素が既存ファイルの場合は衝突とする。
func checkExisting(dir, target, name string) error {
	if info, err := os.Lstat(target); err == nil && info.IsDir() {
		return model.NewInvalidPathError(name)
	}
	for p := filepath.Dir(target); len(p) > len(dir); p = filepath.Dir(p) {
		info, err := os.Lstat(p)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			return model.NewInvalidPathError(name)
		}
	}
	return nil
}

