// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// Role はユーザーアカウントの権限を表す。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
	// RoleAdmin は管理者。管理画面へのアクセスに使用される。
	RoleAdmin Role = "admin"
)

// DefaultExp はアカウント作成時に有効期限が省略された場合の値。
const DefaultExp = "Lifetime"

// Valid はRoleが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// UserAccount はacc.jsonに保存されるユーザーアカウントを表す。
// パスワードは平文で保存される。
type UserAccount struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
	Exp      string `json:"exp"`
}

// Key はユーザー名を一意キーとして返す。
func (u UserAccount) Key() string {
	return u.Username
}

// Validate はファイルから読み込んだ、または書き込むレコードを検証する。
func (u UserAccount) Validate() error {
	if u.Username == "" {
		return errors.New("username is empty")
	}
	if u.Password == "" {
		return fmt.Errorf("user %q: password is empty", u.Username)
	}
	if !u.Role.Valid() {
		return fmt.Errorf("user %q: invalid role %q", u.Username, u.Role)
	}
	return nil
}

// LoginUser はログイン成功時にクライアントへ返すユーザー情報。
type LoginUser struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Expired  string `json:"expired"`
	Token    string `json:"token"`
}
