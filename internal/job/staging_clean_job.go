package job

import (
	"errors"
	"io/fs"
	log "log/slog"
	"os"
	"path/filepath"
	"time"
)

// StagingCleanJob 清理上传暂存目录中进程崩溃遗留的文件
type StagingCleanJob struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

func NewStagingCleanJob(dir string, ttl time.Duration) *StagingCleanJob {
	return &StagingCleanJob{dir: dir, ttl: ttl, now: time.Now}
}

func (s *StagingCleanJob) Run() {
	log.Info("start staging cleanup job", "dir", s.dir)
	count, err := s.sweep()
	if err != nil {
		log.Error("staging cleanup job failed", "err", err)
		return
	}
	if count > 0 {
		log.Info("staging cleanup job finished", "cleaned_count", count)
	}
}

// sweep 删除修改时间早于 ttl 的普通文件，返回删除数量
func (s *StagingCleanJob) sweep() (int, error) {
	deadline := s.now().Add(-s.ttl)
	count := 0

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// 文件可能已被请求方自行删除
			return nil
		}
		if info.ModTime().After(deadline) {
			return nil
		}
		if err = os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn("failed to remove staged file", "path", path, "err", err)
			return nil
		}
		count++
		return nil
	})
	return count, err
}
