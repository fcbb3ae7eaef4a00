// Package catalog はチャットと生成で選択できるAIモデル一覧を管理する。
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riicode/rcbuilder/internal/model"
)

// ModelStore はモデル一覧の永続化に必要なインターフェース。
type ModelStore interface {
	Load(ctx context.Context) ([]model.ModelEntry, error)
	Update(ctx context.Context, fn func(records []model.ModelEntry) ([]model.ModelEntry, error)) error
}

// Service はモデル一覧のサービス層。
type Service struct {
	store ModelStore
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store ModelStore) *Service {
	return &Service{store: store}
}

// List は全モデルを保存順に返す。
func (s *Service) List(ctx context.Context) ([]model.ModelEntry, error) {
	models, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	return models, nil
}

// Add はモデルを追加する。IDが重複する場合はストアを変更しない。
func (s *Service) Add(ctx context.Context, name, id string) (*model.ModelEntry, error) {
	if name == "" || id == "" {
		return nil, model.NewValidationError("Name and ID are required")
	}

	entry := model.ModelEntry{Name: name, ID: id}
	err := s.store.Update(ctx, func(models []model.ModelEntry) ([]model.ModelEntry, error) {
		if indexOf(models, id) >= 0 {
			return nil, model.NewModelIDExistsError()
		}
		return append(models, entry), nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("model added", slog.String("model_id", id))
	return &entry, nil
}

// Update はモデル名またはIDを変更する。空の値は変更しない。
// newIDが別のモデルのIDと衝突する場合は重複エラーを返す。
func (s *Service) Update(ctx context.Context, id, name, newID string) (*model.ModelEntry, error) {
	var updated model.ModelEntry
	err := s.store.Update(ctx, func(models []model.ModelEntry) ([]model.ModelEntry, error) {
		i := indexOf(models, id)
		if i < 0 {
			return nil, model.NewModelNotFoundError()
		}
		if newID != "" && newID != id && indexOf(models, newID) >= 0 {
			return nil, model.NewModelIDExistsError()
		}
		if name != "" {
			models[i].Name = name
		}
		if newID != "" {
			models[i].ID = newID
		}
		updated = models[i]
		return models, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete はモデルを削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.Update(ctx, func(models []model.ModelEntry) ([]model.ModelEntry, error) {
		i := indexOf(models, id)
		if i < 0 {
			return nil, model.NewModelNotFoundError()
		}
		return append(models[:i], models[i+1:]...), nil
	})
	if err != nil {
		return err
	}

	slog.Info("model deleted", slog.String("model_id", id))
	return nil
}

func indexOf(models []model.ModelEntry, id string) int {
	for i, m := range models {
		if m.ID == id {
			return i
		}
	}
	return -1
}
