package model

import "time"

// SessionSummary はセッション一覧で返すセッション情報。
// ディレクトリから導出され、どこにも保存されない。
type SessionSummary struct {
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Created   time.Time `json:"created"`
	FileCount int       `json:"fileCount"`
}

// SessionFile はセッションディレクトリに書き込まれる1ファイル。
// FileNameはセッションルートからの相対パスで、サブディレクトリを含んでよい。
type SessionFile struct {
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}
