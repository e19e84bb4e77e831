package helm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"helm.sh/helm/v3/pkg/repo"
)

const repositoryLockTimeout = 30 * time.Second

// Repository is a chart repository to register
type Repository struct {
	Name string
	URL  string
}

// AddRepository registers r in repositories.yaml and downloads its index,
// the equivalent of `helm repo add` followed by `helm repo update r`.
// Concurrent harness runs on one host are serialized by a file lock.
func (c *Client) AddRepository(ctx context.Context, r Repository) error {
	if err := os.MkdirAll(filepath.Dir(c.repoFile), 0755); err != nil {
		return fmt.Errorf("failed to create repository config directory: %w", err)
	}

	fileLock := flock.New(c.repoFile + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, repositoryLockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, time.Second)
	if err != nil {
		return fmt.Errorf("failed to acquire repository file lock: %w", err)
	}
	if locked {
		defer fileLock.Unlock()
	}

	f, err := repo.LoadFile(c.repoFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load repository file: %w", err)
		}
		f = repo.NewFile()
	}

	entry := &repo.Entry{Name: r.Name, URL: r.URL}
	f.Update(entry)

	if err := f.WriteFile(c.repoFile, 0644); err != nil {
		return fmt.Errorf("write repository file: %w", err)
	}

	chartRepo, err := repo.NewChartRepository(entry, c.getters)
	if err != nil {
		return fmt.Errorf("create chart repository %s: %w", r.Name, err)
	}
	chartRepo.CachePath = c.repoCache

	if _, err := chartRepo.DownloadIndexFile(); err != nil {
		return fmt.Errorf("download index for repository %s: %w", r.Name, err)
	}

	c.logger.Info().Str("repo", r.Name).Str("url", r.URL).Msg("Chart repository registered")
	return nil
}
