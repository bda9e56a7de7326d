package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/booktab/internal/model"
	"github.com/hitoshi/booktab/internal/schema"
)

// Gateway はLibraryDataの永続化を担う唯一の境界。
// ストレージには単一キーでのみアクセスする。
type Gateway struct {
	substrate Substrate
	key       string
}

// NewGateway はmodel.StorageKeyを使用するGatewayを生成する。
func NewGateway(substrate Substrate) *Gateway {
	return &Gateway{substrate: substrate, key: model.StorageKey}
}

// Load は保存済みのLibraryDataを返す。
// データが存在しない、JSONとして不正、またはスキーマ検証に失敗した場合は
// 既定データを返す（部分的な復元は行わない）。
// ストレージの読み込み自体が失敗した場合のみエラーを返す。
func (g *Gateway) Load(ctx context.Context) (*model.LibraryData, error) {
	raw, ok, err := g.substrate.Get(ctx, g.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load BookTab data: %w", err)
	}
	if !ok {
		return model.DefaultData(), nil
	}

	res, err := schema.ValidateJSON(raw)
	if err != nil {
		slog.Warn("stored data is not valid JSON, falling back to defaults",
			slog.String("key", g.key),
			slog.String("error", err.Error()),
		)
		return model.DefaultData(), nil
	}
	if !res.OK() {
		slog.Warn("stored data failed validation, falling back to defaults",
			slog.String("key", g.key),
			slog.Int("issue_count", len(res.Issues)),
			slog.String("issues", res.Issues.Error()),
		)
		return model.DefaultData(), nil
	}

	return res.Data, nil
}

// Save はLibraryData全体を単一キーに書き込む。
// 失敗時はリトライせず、原因を含むエラーを返す。
func (g *Gateway) Save(ctx context.Context, data *model.LibraryData) error {
	if data == nil {
		return errors.New("Failed to save BookTab data: nil data")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("Failed to save BookTab data: %w", err)
	}
	if err := g.substrate.Set(ctx, g.key, payload); err != nil {
		return fmt.Errorf("Failed to save BookTab data: %w", err)
	}
	return nil
}

// Ping はストレージが接続確認に対応していれば実行する。
func (g *Gateway) Ping(ctx context.Context) error {
	if p, ok := g.substrate.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
