package gtfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"lasttrips/internal/storage"
)

// Loader makes sure the schedule database holds a GTFS import before an
// evaluation starts.
type Loader struct {
	downloader *Downloader
	importer   *Importer
	db         *storage.DB
	opts       Options
	logger     *slog.Logger
}

// NewLoader creates a Loader. The downloader may be nil when the feed is
// only ever read from a local path.
func NewLoader(downloader *Downloader, db *storage.DB, opts Options, logger *slog.Logger) *Loader {
	return &Loader{
		downloader: downloader,
		importer:   NewImporter(db, opts, logger),
		db:         db,
		opts:       opts,
		logger:     logger,
	}
}

// EnsureData imports localPath when given (skipping the import if that exact
// file was the last one imported), otherwise reuses existing data, otherwise
// downloads the published feed.
func (l *Loader) EnsureData(ctx context.Context, localPath string) error {
	if localPath != "" {
		source, err := sourceStamp(localPath)
		if err != nil {
			return err
		}
		if prev, _ := l.db.GetMetadata(ctx, "source"); prev == source && l.db.HasData(ctx) {
			l.logger.Info("GTFS data already imported", "source", localPath)
			return nil
		}
		return l.importPath(ctx, localPath, &Feed{Source: source})
	}

	if l.db.HasData(ctx) {
		l.logger.Info("GTFS data already present")
		return nil
	}
	l.logger.Info("no GTFS data found, performing initial import")
	return l.download(ctx)
}

// Refresh re-imports the published feed when it changed since the last
// download.
func (l *Loader) Refresh(ctx context.Context) error {
	if l.downloader == nil {
		return fmt.Errorf("refresh: no GTFS URL configured")
	}
	var prev FeedVersion
	prev.LastModified, _ = l.db.GetMetadata(ctx, "last_modified")
	prev.ETag, _ = l.db.GetMetadata(ctx, "etag")

	changed, _, err := l.downloader.Changed(ctx, prev)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return l.download(ctx)
}

// download fetches the published feed and imports it unless its content is
// identical to the last import, in which case only the feed version is
// recorded so later checks can be conditional.
func (l *Loader) download(ctx context.Context) error {
	if l.downloader == nil {
		return fmt.Errorf("download: no GTFS URL configured")
	}
	f, err := l.downloader.Download(ctx)
	if err != nil {
		return err
	}

	if prev, _ := l.db.GetMetadata(ctx, "source"); prev == f.Source() && l.db.HasData(ctx) {
		l.logger.Info("downloaded GTFS feed matches the imported one", "sha256", f.SHA256[:12])
		if err := l.db.SetMetadata(ctx, "last_modified", f.LastModified); err != nil {
			return err
		}
		return l.db.SetMetadata(ctx, "etag", f.ETag)
	}
	return l.importPath(ctx, f.Path, &Feed{LastModified: f.LastModified, ETag: f.ETag, Source: f.Source()})
}

func (l *Loader) importPath(ctx context.Context, path string, meta *Feed) error {
	fsys, closer, err := OpenSource(path)
	if err != nil {
		return err
	}
	defer closer.Close()

	feed, err := ParseFS(fsys, l.opts, l.logger)
	if err != nil {
		return err
	}
	feed.LastModified = meta.LastModified
	feed.ETag = meta.ETag
	feed.Source = meta.Source

	return l.importer.Import(ctx, feed, fsys)
}

// sourceStamp identifies a local GTFS source by path and modification time.
func sourceStamp(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat gtfs source: %w", err)
	}
	return fmt.Sprintf("%s@%s", path, info.ModTime().UTC().Format(time.RFC3339)), nil
}
