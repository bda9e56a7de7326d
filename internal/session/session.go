// Package session はストレージ、ライブラリストア、画面遷移のステートマシンを結び付け、
// 利用者の操作を順序どおりに処理する。
//
// Sessionはステートマシンへイベントを送る唯一の場所であり、
// 読み込み・保存・インポートの失敗をイベントまたはエラーに変換する。
// 操作はミューテックスで直列化される。
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/booktab/internal/library"
	"github.com/hitoshi/booktab/internal/metrics"
	"github.com/hitoshi/booktab/internal/model"
	"github.com/hitoshi/booktab/internal/safety"
	"github.com/hitoshi/booktab/internal/security"
	"github.com/hitoshi/booktab/internal/shelf"
	"github.com/hitoshi/booktab/internal/workflow"
)

// Gateway はLibraryDataの読み込みと保存を行う永続化境界。
type Gateway interface {
	Load(ctx context.Context) (*model.LibraryData, error)
	Save(ctx context.Context, data *model.LibraryData) error
}

// Notifier は状態変更の通知先。呼び出し元をブロックしないこと。
type Notifier interface {
	StateChanged(state string, bookCount int)
}

// Snapshot はある時点のセッション状態のコピー。
type Snapshot struct {
	State     workflow.State
	Context   workflow.Context
	BookCount int
}

// Ready はライブラリが読み込み済みかを返す。
func (s Snapshot) Ready() bool {
	return s.State.Top == workflow.Ready
}

// Session はひとつの画面コンテキストに対応する。
type Session struct {
	mu sync.Mutex

	gateway     Gateway
	downloader  safety.Downloader
	shelf       *shelf.Parser
	metrics     metrics.MetricsCollector
	notifier    Notifier
	now         func() time.Time
	saveTimeout time.Duration

	machine    workflow.Machine
	store      *library.Store
	settings   model.UserSettings
	generation uint64
	pending    *model.LibraryData
}

// Option はSessionの設定を変更する。
type Option func(*Session)

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *Session) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithNotifier は状態変更の通知先を設定する。
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithClock は時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSaveTimeout は1回の保存に許す時間を設定する。0以下は無制限。
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Session) { s.saveTimeout = d }
}

// WithShelfParser は本棚フィードのパーサーを差し替える。
func WithShelfParser(p *shelf.Parser) Option {
	return func(s *Session) {
		if p != nil {
			s.shelf = p
		}
	}
}

// New はloading状態のSessionを生成する。
// downloaderはインポート確定前のバックアップ書き出しに使用する。
func New(gateway Gateway, downloader safety.Downloader, opts ...Option) *Session {
	s := &Session{
		gateway:    gateway,
		downloader: downloader,
		shelf:      shelf.NewParser(security.NewTextSanitizer()),
		metrics:    noopMetrics{},
		now:        time.Now,
		machine:    workflow.New(),
		settings:   model.DefaultData().Settings,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load はストレージからデータを読み込み、結果をステートマシンへ伝える。
// 読み込み中に新しいLoadが開始された場合、古い結果は破棄される。
// 読み込みに失敗した場合はerror状態へ遷移し、エラーを返す。
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	data, err := s.gateway.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		slog.Debug("discarding stale load result", slog.Uint64("generation", gen))
		return nil
	}

	if err != nil {
		s.metrics.RecordLoad(false)
		slog.Error("failed to load library", slog.String("error", err.Error()))
		s.transition(workflow.DataFailed{Error: err.Error()})
		return err
	}

	s.metrics.RecordLoad(true)
	s.store = library.NewStore(data.Books, library.WithClock(s.now))
	s.settings = data.Settings
	s.pending = nil
	s.transition(workflow.DataLoaded{Data: s.currentData()})
	s.recordBookCounts()

	slog.Info("library loaded", slog.Int("book_count", s.store.Len()))
	return nil
}

// Retry はerror状態から読み込みをやり直す。
// error状態以外では何もしない。
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.machine.State.Top != workflow.Failed {
		s.mu.Unlock()
		return nil
	}
	s.transition(workflow.Retry{})
	s.mu.Unlock()

	return s.Load(ctx)
}

// Snapshot は現在の状態のコピーを返す。
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Navigate は画面遷移イベントを適用する。
// 現在の画面で受け付けないイベントは無視される。
// データの読み込みやインポート結果のイベントは専用の操作を使用すること。
func (s *Session) Navigate(ev workflow.Event) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case nil:
		return s.snapshot(), model.NewInvalidRequestError("イベントが指定されていません。")
	case workflow.DataLoaded, workflow.DataFailed, workflow.Retry,
		workflow.ImportValidated, workflow.ImportFailed, workflow.ImportComplete:
		return s.snapshot(), model.NewInvalidRequestError(ev.Type() + " は画面遷移イベントとして送信できません。")
	case workflow.StartEdit:
		if err := s.requireBook(e.BookID); err != nil {
			return s.snapshot(), err
		}
	case workflow.EditNote:
		if err := s.requireBook(e.BookID); err != nil {
			return s.snapshot(), err
		}
	default:
		if err := s.requireReady(); err != nil {
			return s.snapshot(), err
		}
	}

	s.transition(ev)
	return s.snapshot(), nil
}

// Books は現在のコレクションの複製を返す。
func (s *Session) Books() (model.BookCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	return s.store.Books(), nil
}

// Book は指定IDの本を返す。
func (s *Session) Book(id string) (model.BookRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireBook(id); err != nil {
		return model.BookRecord{}, err
	}
	book, _ := s.store.Book(id)
	return book, nil
}

// transition はイベントを適用し、状態またはデータが変わった場合に通知する。
// 呼び出し元がロックを保持していること。
func (s *Session) transition(ev workflow.Event) {
	before := s.machine.State
	s.machine = workflow.Transition(s.machine, ev)

	// データ管理画面を離れたら保留中のインポートを破棄する
	if !s.machine.State.Matches("ready.viewingData") {
		s.pending = nil
	}

	_, dataEvent := ev.(workflow.DataLoaded)
	if before != s.machine.State || dataEvent {
		if s.notifier != nil {
			s.notifier.StateChanged(s.machine.State.String(), s.bookCount())
		}
	}
}

// apply はコマンドをストアへ適用し、必要であれば保存してからステートマシンのデータを更新する。
// 保存に失敗してもメモリ上の変更は保持し、SAVE_FAILEDエラーを返す。
func (s *Session) apply(ctx context.Context, cmds ...library.Command) error {
	saveNeeded := false
	for _, cmd := range cmds {
		res := s.store.Apply(cmd)
		s.metrics.RecordCommand(library.CommandName(cmd), res.SaveNeeded)
		saveNeeded = saveNeeded || res.SaveNeeded
	}
	if !saveNeeded {
		return nil
	}

	err := s.save(ctx)
	s.transition(workflow.DataLoaded{Data: s.currentData()})
	s.recordBookCounts()
	return err
}

// save はコレクション全体を保存する。
func (s *Session) save(ctx context.Context) error {
	if s.saveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.saveTimeout)
		defer cancel()
	}

	start := time.Now()
	err := s.gateway.Save(ctx, s.currentData())
	s.metrics.RecordSave(err == nil, time.Since(start))
	if err != nil {
		slog.Error("failed to save library",
			slog.Int("book_count", s.store.Len()),
			slog.String("error", err.Error()),
		)
		return model.NewSaveFailedError(err)
	}
	return nil
}

// currentData は保存形式のLibraryDataを組み立てる。
func (s *Session) currentData() *model.LibraryData {
	return &model.LibraryData{
		SchemaVersion: model.CurrentSchemaVersion,
		Books:         s.store.Books(),
		Settings:      s.settings,
	}
}

func (s *Session) snapshot() Snapshot {
	ctx := s.machine.Context
	ctx.Data = ctx.Data.Clone()
	if ctx.ImportPreview != nil {
		p := *ctx.ImportPreview
		ctx.ImportPreview = &p
	}
	return Snapshot{
		State:     s.machine.State,
		Context:   ctx,
		BookCount: s.bookCount(),
	}
}

func (s *Session) bookCount() int {
	if s.store == nil {
		return 0
	}
	return s.store.Len()
}

func (s *Session) recordBookCounts() {
	counts := library.CountByStatus(s.store.Books())
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	s.metrics.SetBookCounts(out)
}

// requireReady はready状態でなければNOT_READYエラーを返す。
func (s *Session) requireReady() error {
	if s.machine.State.Top != workflow.Ready || s.store == nil {
		return model.NewNotReadyError()
	}
	return nil
}

// requireBook はready状態で指定IDの本が存在することを確認する。
func (s *Session) requireBook(id string) error {
	if err := s.requireReady(); err != nil {
		return err
	}
	if id == "" {
		return model.NewInvalidRequestError("本のIDを指定してください。")
	}
	if _, ok := s.store.Book(id); !ok {
		return model.NewBookNotFoundError(id)
	}
	return nil
}

// noopMetrics はメトリクスを記録しない実装。
type noopMetrics struct{}

func (noopMetrics) RecordCommand(string, bool)     {}
func (noopMetrics) RecordLoad(bool)                {}
func (noopMetrics) RecordSave(bool, time.Duration) {}
func (noopMetrics) RecordImport(string)            {}
func (noopMetrics) RecordBackup(bool)              {}
func (noopMetrics) RecordHTTPStatus(int)           {}
func (noopMetrics) SetBookCounts(map[string]int)   {}
