package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"lasttrips/internal/realtime"
)

// ErrNoObject is returned when the archive holds no object of the requested
// feed for a minute.
var ErrNoObject = errors.New("no archived object")

// MinuteLayout formats the minute-resolution timestamps used in cache file
// names and results.
const MinuteLayout = "2006-01-02T15:04"

// FetchError reports that the snapshot of a feed for one minute could not be
// obtained. It is never retried.
type FetchError struct {
	Kind   FeedKind
	Minute time.Time
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Kind, e.Minute.Format(MinuteLayout), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Observer is notified of every snapshot served. source is "memory", "disk"
// or "remote".
type Observer interface {
	SnapshotFetched(kind, source string, d time.Duration)
	SnapshotFailed(kind string)
}

type nopObserver struct{}

func (nopObserver) SnapshotFetched(string, string, time.Duration) {}
func (nopObserver) SnapshotFailed(string)                         {}

type cacheKey struct {
	kind   FeedKind
	minute string
}

// Archive serves decoded per-minute snapshots, memoized in memory and as raw
// documents in a flat cache directory. Entries are written once and never
// invalidated; concurrent writers to the same directory are not coordinated.
type Archive struct {
	source   Source
	cacheDir string
	loc      *time.Location
	memory   *lru.Cache[cacheKey, any]
	observer Observer
	logger   *slog.Logger
}

// New creates an Archive. memorySize bounds the decoded snapshots kept in
// memory; loc is the zone minute timestamps are named in.
func New(source Source, cacheDir string, memorySize int, loc *time.Location, logger *slog.Logger) (*Archive, error) {
	if memorySize < 1 {
		memorySize = 1
	}
	memory, err := lru.New[cacheKey, any](memorySize)
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return &Archive{
		source:   source,
		cacheDir: cacheDir,
		loc:      loc,
		memory:   memory,
		observer: nopObserver{},
		logger:   logger,
	}, nil
}

// SetObserver installs a fetch observer.
func (a *Archive) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	a.observer = o
}

// VehicleSnapshot returns the vehicle positions snapshot for minute.
func (a *Archive) VehicleSnapshot(ctx context.Context, minute time.Time) (*realtime.VehicleSnapshot, error) {
	v, err := a.snapshot(ctx, VehiclePositions, minute, func(data []byte, f realtime.Format) (any, error) {
		return realtime.DecodeVehicles(data, f)
	})
	if err != nil {
		return nil, err
	}
	return v.(*realtime.VehicleSnapshot), nil
}

// PredictionSnapshot returns the trip updates snapshot for minute.
func (a *Archive) PredictionSnapshot(ctx context.Context, minute time.Time) (*realtime.PredictionSnapshot, error) {
	v, err := a.snapshot(ctx, TripUpdates, minute, func(data []byte, f realtime.Format) (any, error) {
		return realtime.DecodeTripUpdates(data, f)
	})
	if err != nil {
		return nil, err
	}
	return v.(*realtime.PredictionSnapshot), nil
}

type decodeFunc func([]byte, realtime.Format) (any, error)

func (a *Archive) snapshot(ctx context.Context, kind FeedKind, minute time.Time, decode decodeFunc) (any, error) {
	minute = minute.In(a.loc).Truncate(time.Minute)
	key := cacheKey{kind: kind, minute: minute.Format(MinuteLayout)}
	start := time.Now()

	if v, ok := a.memory.Get(key); ok {
		a.observer.SnapshotFetched(kind.String(), "memory", time.Since(start))
		return v, nil
	}

	fail := func(err error) (any, error) {
		a.observer.SnapshotFailed(kind.String())
		return nil, &FetchError{Kind: kind, Minute: minute, Err: err}
	}

	source := "disk"
	data, format, ok, err := a.readCache(kind, key.minute)
	if err != nil {
		return fail(err)
	}
	if !ok {
		source = "remote"
		obj, err := a.source.Fetch(ctx, kind, minute)
		if err != nil {
			return fail(err)
		}
		data, format = obj.Data, obj.Format
	}

	v, err := decode(data, format)
	if err != nil {
		return fail(err)
	}
	if source == "remote" {
		if err := a.writeCache(kind, key.minute, data, format); err != nil {
			a.logger.Warn("failed to cache archive object", "kind", kind, "minute", key.minute, "error", err)
		}
	}

	a.memory.Add(key, v)
	a.observer.SnapshotFetched(kind.String(), source, time.Since(start))
	a.logger.Debug("snapshot loaded", "kind", kind, "minute", key.minute, "source", source)
	return v, nil
}

func (a *Archive) cachePath(kind FeedKind, minute string, format realtime.Format) string {
	return filepath.Join(a.cacheDir, fmt.Sprintf("%s-%s.%s", kind, minute, format.Ext()))
}

// readCache looks for a cached document in either format.
func (a *Archive) readCache(kind FeedKind, minute string) ([]byte, realtime.Format, bool, error) {
	if a.cacheDir == "" {
		return nil, 0, false, nil
	}
	for _, f := range []realtime.Format{realtime.FormatJSON, realtime.FormatProtobuf} {
		data, err := os.ReadFile(a.cachePath(kind, minute, f))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, 0, false, fmt.Errorf("read cache: %w", err)
		}
		return data, f, true, nil
	}
	return nil, 0, false, nil
}

// writeCache stores a document through a temp file so a partially written
// entry is never read back.
func (a *Archive) writeCache(kind FeedKind, minute string, data []byte, format realtime.Format) error {
	if a.cacheDir == "" {
		return nil
	}
	tmp, err := os.CreateTemp(a.cacheDir, "snapshot-*.part")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, a.cachePath(kind, minute, format))
}
