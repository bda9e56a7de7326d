// Package storage はキー・バリュー型ストレージへの唯一の境界を提供する。
// LibraryData全体を単一キーのJSONドキュメントとして読み書きする。
package storage

import (
	"context"
	"sync"
)

// Substrate はキー・バリュー型ストレージのインターフェース。
type Substrate interface {
	// Get は指定キーの値を取得する。キーが存在しない場合はok=falseを返す。
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set は指定キーの値を丸ごと置き換える。
	Set(ctx context.Context, key string, value []byte) error
}

// Pinger は接続確認が可能なストレージ。ヘルスチェックで使用する。
type Pinger interface {
	Ping(ctx context.Context) error
}

// MemoryStore はメモリ上のSubstrate実装。
// テストおよびSTORAGE_DRIVER=memoryで使用する。プロセス終了時にデータは失われる。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

// Get は指定キーの値のコピーを返す。
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	value, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// Set は指定キーに値のコピーを保存する。
func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.entries[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	return nil
}

// Ping は常に成功する。
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
