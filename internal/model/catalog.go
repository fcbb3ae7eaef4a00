package model

import (
	"errors"
	"fmt"
)

// ModelEntry はmodels.jsonに保存されるAIモデルの定義を表す。
// IDは上流APIに渡すモデル識別子（例: "meta-llama/Llama-3.3-70B-Instruct"）。
type ModelEntry struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Key はモデルIDを一意キーとして返す。
func (m ModelEntry) Key() string {
	return m.ID
}

// Validate はモデル定義を検証する。
func (m ModelEntry) Validate() error {
	if m.ID == "" {
		return errors.New("model id is empty")
	}
	if m.Name == "" {
		return fmt.Errorf("model %q: name is empty", m.ID)
	}
	return nil
}
