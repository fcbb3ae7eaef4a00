// Package account はユーザーアカウント管理のドメインロジックを提供する。
// 認証はユーザー名とパスワードの平文一致のみで行う。
package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/riicode/rcbuilder/internal/model"
)

// UserStore はアカウントの永続化に必要なインターフェース。
// store.FileStore[model.UserAccount] が満たす。
type UserStore interface {
	Load(ctx context.Context) ([]model.UserAccount, error)
	Update(ctx context.Context, fn func(records []model.UserAccount) ([]model.UserAccount, error)) error
}

// CreateInput はアカウント作成の入力。
// RoleとExpは省略時にそれぞれ "user" と "Lifetime" になる。
type CreateInput struct {
	Username string
	Password string
	Role     model.Role
	Exp      string
}

// UpdateInput はアカウント更新の入力。空のフィールドは変更しない。
type UpdateInput struct {
	Password string
	Role     model.Role
	Exp      string
}

// Service はアカウント管理のサービス層。
type Service struct {
	store    UserStore
	newToken func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store UserStore) *Service {
	return &Service{
		store:    store,
		newToken: uuid.NewString,
	}
}

// Login はユーザー名とパスワードが一致するアカウントを探し、クライアント向けのユーザー情報を返す。
// 返すトークンは毎回新しく発行されるが、サーバー側では検証しない。
func (s *Service) Login(ctx context.Context, username, password string) (*model.LoginUser, error) {
	if username == "" || password == "" {
		return nil, model.NewValidationError("Username and password are required")
	}

	users, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	for _, u := range users {
		if u.Username == username && u.Password == password {
			slog.Info("user logged in",
				slog.String("username", u.Username),
				slog.String("role", string(u.Role)),
			)
			return &model.LoginUser{
				Username: u.Username,
				Role:     u.Role,
				Expired:  u.Exp,
				Token:    s.newToken(),
			}, nil
		}
	}

	return nil, model.NewInvalidCredentialsError()
}

// List は全アカウントを保存順に返す。
func (s *Service) List(ctx context.Context) ([]model.UserAccount, error) {
	users, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return users, nil
}

// Create はアカウントを追加する。
// 同じユーザー名が既に存在する場合はストアを変更せずに重複エラーを返す。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.UserAccount, error) {
	if in.Username == "" || in.Password == "" {
		return nil, model.NewValidationError("Username and password are required")
	}
	if in.Role == "" {
		in.Role = model.RoleUser
	}
	if !in.Role.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("Invalid role: %s", in.Role))
	}
	if in.Exp == "" {
		in.Exp = model.DefaultExp
	}

	created := model.UserAccount{
		Username: in.Username,
		Password: in.Password,
		Role:     in.Role,
		Exp:      in.Exp,
	}

	err := s.store.Update(ctx, func(users []model.UserAccount) ([]model.UserAccount, error) {
		for _, u := range users {
			if u.Username == created.Username {
				return nil, model.NewUsernameExistsError()
			}
		}
		return append(users, created), nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("user created",
		slog.String("username", created.Username),
		slog.String("role", string(created.Role)),
	)
	return &created, nil
}

// Update はアカウントのパスワード、権限、有効期限を更新する。
func (s *Service) Update(ctx context.Context, username string, in UpdateInput) (*model.UserAccount, error) {
	if username == "" {
		return nil, model.NewValidationError("Username is required")
	}
	if in.Role != "" && !in.Role.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("Invalid role: %s", in.Role))
	}

	var updated model.UserAccount
	err := s.store.Update(ctx, func(users []model.UserAccount) ([]model.UserAccount, error) {
		for i := range users {
			if users[i].Username != username {
				continue
			}
			if in.Password != "" {
				users[i].Password = in.Password
			}
			if in.Role != "" {
				users[i].Role = in.Role
			}
			if in.Exp != "" {
				users[i].Exp = in.Exp
			}
			updated = users[i]
			return users, nil
		}
		return nil, model.NewUserNotFoundError()
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete はアカウントを削除する。存在しない場合はストアを変更せずにエラーを返す。
// ユーザーのセッションディレクトリは削除しない。
func (s *Service) Delete(ctx context.Context, username string) error {
	err := s.store.Update(ctx, func(users []model.UserAccount) ([]model.UserAccount, error) {
		filtered := make([]model.UserAccount, 0, len(users))
		for _, u := range users {
			if u.Username != username {
				filtered = append(filtered, u)
			}
		}
		if len(filtered) == len(users) {
			return nil, model.NewUserNotFoundError()
		}
		return filtered, nil
	})
	if err != nil {
		return err
	}

	slog.Info("user deleted", slog.String("username", username))
	return nil
}
