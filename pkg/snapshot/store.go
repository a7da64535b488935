package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/matzehuels/supplychain/pkg/observability"
)

const (
	sidecarName    = "snapshot.toml"
	generationsDir = "generations"
	stagingDir     = "staging"
	lockName       = ".install.lock"

	lockRetryDelay = 50 * time.Millisecond
)

// Snapshot describes one installed dump generation.
type Snapshot struct {
	Generation string
	AcquiredAt time.Time
	Source     string
	Size       int64

	// Dir is the generation directory holding the table files.
	Dir string

	// Tables maps each present table file name to its absolute path.
	Tables map[string]string
}

// Path returns the location of table, if the snapshot has it.
func (s *Snapshot) Path(table string) (string, bool) {
	p, ok := s.Tables[table]
	return p, ok
}

// Age returns how long ago the snapshot was acquired.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.AcquiredAt)
}

// IsFresh reports whether s is younger than maxAge at now. The boundary is
// exclusive: a snapshot exactly maxAge old is stale. A nil snapshot is never
// fresh.
func IsFresh(s *Snapshot, now time.Time, maxAge time.Duration) bool {
	if s == nil {
		return false
	}
	return now.Sub(s.AcquiredAt) < maxAge
}

// Staged is an unpacked dump waiting to be installed.
type Staged struct {
	Dir       string
	Tables    []string
	Source    string
	Size      int64
	FetchedAt time.Time
}

// sidecar is the on-disk form of the current snapshot pointer.
type sidecar struct {
	Generation string    `toml:"generation"`
	AcquiredAt time.Time `toml:"acquired_at"`
	Source     string    `toml:"source,omitempty"`
	Size       int64     `toml:"size,omitempty"`
	Tables     []string  `toml:"tables"`
}

// Store owns the snapshot directory.
type Store struct {
	dir    string
	now    func() time.Time
	logger *log.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used by [Store.IsFresh].
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithStoreLogger sets the logger for diagnostics about unusable snapshots.
func WithStoreLogger(l *log.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore returns a store rooted at dir. The directory is created on first
// install.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{dir: dir, now: time.Now, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// StagingDir is where a [Fetcher] should unpack archives. It lives under the
// store root so installs can rename instead of copy.
func (s *Store) StagingDir() string { return filepath.Join(s.dir, stagingDir) }

// IsFresh evaluates [IsFresh] against the store's clock.
func (s *Store) IsFresh(snap *Snapshot, maxAge time.Duration) bool {
	return IsFresh(snap, s.now(), maxAge)
}

// Now returns the store's current time.
func (s *Store) Now() time.Time { return s.now() }

// CurrentSnapshot returns the installed snapshot, or nil when there is none
// or it is unusable (unreadable sidecar, missing generation, missing required
// table).
func (s *Store) CurrentSnapshot() *Snapshot {
	sc, err := s.readSidecar()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("ignoring unreadable snapshot metadata", "path", s.sidecarPath(), "err", err)
		}
		return nil
	}

	snap := &Snapshot{
		Generation: sc.Generation,
		AcquiredAt: sc.AcquiredAt,
		Source:     sc.Source,
		Size:       sc.Size,
		Dir:        filepath.Join(s.dir, generationsDir, sc.Generation),
		Tables:     make(map[string]string, len(sc.Tables)),
	}
	for _, name := range sc.Tables {
		p := filepath.Join(snap.Dir, name)
		if _, err := os.Stat(p); err != nil {
			s.logger.Debug("snapshot table unavailable", "table", name, "err", err)
			continue
		}
		snap.Tables[name] = p
	}
	for _, name := range RequiredTables {
		if _, ok := snap.Tables[name]; !ok {
			s.logger.Warn("ignoring incomplete snapshot", "generation", sc.Generation, "missing", name)
			return nil
		}
	}
	return snap
}

// Install makes staged the current snapshot.
//
// The staged directory becomes a new generation directory, then the sidecar
// is written to a temporary file and renamed over the previous one. The
// rename is the only step readers can observe. If any step fails, the staged
// and new generation directories are removed and the previous snapshot stays
// current.
//
// Installs hold an exclusive lock on the store directory, so concurrent
// installs from several processes are applied one after the other.
//
// One previous generation is retained for readers that loaded the old
// sidecar just before the switch; older generations are pruned.
func (s *Store) Install(ctx context.Context, staged *Staged) (snap *Snapshot, err error) {
	gen := uuid.NewString()
	defer func() { observability.Snapshot().OnInstall(ctx, gen, err) }()
	defer func() {
		if err != nil {
			_ = os.RemoveAll(staged.Dir)
		}
	}()

	if err := validateStaged(staged); err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var previous string
	if sc, err := s.readSidecar(); err == nil {
		previous = sc.Generation
	}

	genRoot := filepath.Join(s.dir, generationsDir)
	if err := os.MkdirAll(genRoot, 0755); err != nil {
		return nil, &StoreError{Op: "mkdir", Path: genRoot, Err: err}
	}

	dst := filepath.Join(genRoot, gen)
	if err := moveDir(staged.Dir, dst); err != nil {
		_ = os.RemoveAll(dst)
		return nil, &StoreError{Op: "move", Path: dst, Err: err}
	}

	sc := sidecar{
		Generation: gen,
		AcquiredAt: staged.FetchedAt.UTC(),
		Source:     staged.Source,
		Size:       staged.Size,
		Tables:     staged.Tables,
	}
	if err := s.writeSidecar(sc); err != nil {
		_ = os.RemoveAll(dst)
		return nil, err
	}

	s.prune(gen, previous)

	snap = s.CurrentSnapshot()
	if snap == nil {
		return nil, &StoreError{Op: "verify", Path: s.sidecarPath(), Err: ErrIncomplete}
	}
	return snap, nil
}

// validateStaged checks that every required table is both listed and present.
func validateStaged(staged *Staged) error {
	listed := make(map[string]bool, len(staged.Tables))
	for _, name := range staged.Tables {
		listed[name] = true
	}
	for _, name := range RequiredTables {
		if !listed[name] {
			return &StoreError{Op: "validate", Path: staged.Dir, Err: fmt.Errorf("%w: %s not listed", ErrIncomplete, name)}
		}
		if _, err := os.Stat(filepath.Join(staged.Dir, name)); err != nil {
			return &StoreError{Op: "validate", Path: staged.Dir, Err: fmt.Errorf("%w: %s", ErrIncomplete, name)}
		}
	}
	return nil
}

// lock takes the store's install lock, waiting until ctx ends.
func (s *Store) lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, &StoreError{Op: "mkdir", Path: s.dir, Err: err}
	}
	fl := flock.New(filepath.Join(s.dir, lockName))
	ok, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, &StoreError{Op: "lock", Path: fl.Path(), Err: err}
	}
	if !ok {
		return nil, &StoreError{Op: "lock", Path: fl.Path(), Err: ctx.Err()}
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Debug("release install lock", "err", err)
		}
	}, nil
}

// Clear removes every snapshot generation, the sidecar and staging data.
func (s *Store) Clear() error {
	if _, err := os.Stat(s.dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	unlock, err := s.lock(context.Background())
	if err != nil {
		return err
	}
	defer unlock()

	for _, name := range []string{sidecarName, generationsDir, stagingDir} {
		p := filepath.Join(s.dir, name)
		if err := os.RemoveAll(p); err != nil {
			return &StoreError{Op: "remove", Path: p, Err: err}
		}
	}
	return nil
}

func (s *Store) sidecarPath() string { return filepath.Join(s.dir, sidecarName) }

func (s *Store) readSidecar() (sidecar, error) {
	var sc sidecar
	if _, err := toml.DecodeFile(s.sidecarPath(), &sc); err != nil {
		return sc, err
	}
	if sc.Generation == "" {
		return sc, errors.New("missing generation")
	}
	if _, err := uuid.Parse(sc.Generation); err != nil {
		return sc, fmt.Errorf("invalid generation %q", sc.Generation)
	}
	return sc, nil
}

func (s *Store) writeSidecar(sc sidecar) error {
	tmp, err := os.CreateTemp(s.dir, ".snapshot-*.toml")
	if err != nil {
		return &StoreError{Op: "create", Path: s.dir, Err: err}
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if err := toml.NewEncoder(tmp).Encode(sc); err != nil {
		tmp.Close()
		cleanup()
		return &StoreError{Op: "write", Path: tmp.Name(), Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return &StoreError{Op: "sync", Path: tmp.Name(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &StoreError{Op: "close", Path: tmp.Name(), Err: err}
	}
	if err := os.Rename(tmp.Name(), s.sidecarPath()); err != nil {
		cleanup()
		return &StoreError{Op: "rename", Path: s.sidecarPath(), Err: err}
	}
	return nil
}

// prune removes generations other than keep. Failures are logged only.
func (s *Store) prune(keep ...string) {
	root := filepath.Join(s.dir, generationsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		if k != "" {
			keepSet[k] = true
		}
	}
	for _, e := range entries {
		if keepSet[e.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			s.logger.Debug("prune generation", "generation", e.Name(), "err", err)
		}
	}
}

// moveDir renames src to dst, copying when they are on different devices.
func moveDir(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return os.RemoveAll(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
