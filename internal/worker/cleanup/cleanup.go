// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// リモートのsessionsテーブルとローカルのセッションキャッシュの両方を対象にする。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/lexcms/internal/metrics"
)

// DefaultInterval はジョブの実行間隔のデフォルト値。
const DefaultInterval = time.Hour

// ExpiredSessionDeleter は期限切れセッションを削除し、削除件数を返す。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Target は削除対象のセッションストア。
type Target struct {
	Name  string
	Store ExpiredSessionDeleter
}

// CleanupJob は期限切れセッションの削除ジョブ。
// 冪等: 削除対象がない場合でもエラーにならない。
type CleanupJob struct {
	targets []Target
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(logger *slog.Logger, collector metrics.MetricsCollector, targets ...Target) *CleanupJob {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &CleanupJob{targets: targets, logger: logger, metrics: collector}
}

// Run は全ての対象から期限切れセッションを削除する。
// 一部の対象が失敗しても残りの対象は処理し、失敗をまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	var (
		total int64
		errs  []error
	)
	for _, t := range j.targets {
		n, err := t.Store.DeleteExpired(ctx)
		if err != nil {
			j.logger.Error("期限切れセッションの削除に失敗しました",
				slog.String("target", t.Name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		total += n
	}

	j.metrics.RecordSessionsCleaned(total)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", total),
		slog.Int("targets", len(j.targets)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	if len(errs) > 0 {
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", errors.Join(errs...))
	}
	return nil
}

// Start は起動直後に1回実行し、以降はintervalごとに実行する。
// ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
