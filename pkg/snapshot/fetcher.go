package snapshot

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/supplychain/pkg/httputil"
	"github.com/matzehuels/supplychain/pkg/observability"
)

// DefaultURL is the location of the crates.io database dump.
const DefaultURL = "https://static.crates.io/db-dump.tar.gz"

// Fetcher downloads and unpacks the dump archive. It writes only below its
// staging directory and never retries; see [Refresh].
type Fetcher struct {
	url        string
	stagingDir string
	client     *http.Client
	userAgent  string
	logger     *log.Logger
	now        func() time.Time
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithURL overrides the archive location.
func WithURL(url string) FetcherOption {
	return func(f *Fetcher) {
		if url != "" {
			f.url = url
		}
	}
}

// WithHTTPClient sets the client used for the download.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header of the download request.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithFetchLogger sets the logger for download progress.
func WithFetchLogger(l *log.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher returns a fetcher that stages archives under stagingDir,
// normally [Store.StagingDir].
func NewFetcher(stagingDir string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		url:        DefaultURL,
		stagingDir: stagingDir,
		client:     httputil.NewHTTPClient(0),
		logger:     log.New(io.Discard),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// URL returns the archive location.
func (f *Fetcher) URL() string { return f.url }

// Fetch downloads the archive and extracts the known tables into a fresh
// staging directory. On failure nothing is left behind.
func (f *Fetcher) Fetch(ctx context.Context) (staged *Staged, err error) {
	start := time.Now()
	var size int64
	observability.Snapshot().OnFetchStart(ctx, f.url)
	defer func() {
		observability.Snapshot().OnFetchComplete(ctx, f.url, size, time.Since(start), err)
	}()

	if err := os.MkdirAll(f.stagingDir, 0755); err != nil {
		return nil, f.fail(FetchIO, err)
	}

	id := uuid.NewString()
	archive := filepath.Join(f.stagingDir, id+".tar.gz")
	defer os.Remove(archive)

	size, err = f.download(ctx, archive)
	if err != nil {
		return nil, err
	}
	fetchedAt := f.now()
	f.logger.Debug("downloaded dump", "bytes", size, "elapsed", time.Since(start).Round(time.Millisecond))

	outDir := filepath.Join(f.stagingDir, id)
	tables, err := f.unpack(archive, outDir)
	if err != nil {
		_ = os.RemoveAll(outDir)
		return nil, err
	}

	return &Staged{
		Dir:       outDir,
		Tables:    tables,
		Source:    f.url,
		Size:      size,
		FetchedAt: fetchedAt,
	}, nil
}

func (f *Fetcher) download(ctx context.Context, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return 0, f.fail(FetchNetwork, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, f.fail(FetchNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &FetchError{Kind: FetchStatus, URL: f.url, StatusCode: resp.StatusCode}
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, f.fail(FetchIO, err)
	}
	w := &errWriter{w: out}
	n, copyErr := io.Copy(w, resp.Body)
	closeErr := out.Close()

	switch {
	case w.err != nil:
		return n, f.fail(FetchIO, w.err)
	case copyErr != nil && resp.ContentLength > 0 && n < resp.ContentLength:
		return n, f.fail(FetchTruncated, fmt.Errorf("received %d of %d bytes: %w", n, resp.ContentLength, copyErr))
	case copyErr != nil:
		return n, f.fail(FetchNetwork, copyErr)
	case resp.ContentLength >= 0 && n != resp.ContentLength:
		return n, f.fail(FetchTruncated, fmt.Errorf("received %d of %d bytes", n, resp.ContentLength))
	case closeErr != nil:
		return n, f.fail(FetchIO, closeErr)
	}
	return n, nil
}

// unpack extracts the known tables found in the archive's data directory.
func (f *Fetcher) unpack(archive, outDir string) ([]string, error) {
	in, err := os.Open(archive)
	if err != nil {
		return nil, f.fail(FetchIO, err)
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return nil, f.fail(FetchCorrupt, err)
	}
	defer gz.Close()

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, f.fail(FetchIO, err)
	}

	found := make(map[string]bool)
	var tables []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, f.fail(FetchCorrupt, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Clean(hdr.Name)
		base := path.Base(name)
		if path.Base(path.Dir(name)) != "data" || !knownTable(base) || found[base] {
			continue
		}
		if err := f.extract(tr, filepath.Join(outDir, base)); err != nil {
			return nil, err
		}
		found[base] = true
		tables = append(tables, base)
	}

	for _, name := range RequiredTables {
		if !found[name] {
			return nil, f.fail(FetchUnpack, fmt.Errorf("%w: %s", ErrIncomplete, name))
		}
	}
	return tables, nil
}

func (f *Fetcher) extract(r io.Reader, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return f.fail(FetchIO, err)
	}
	w := &errWriter{w: out}
	_, copyErr := io.Copy(w, r)
	closeErr := out.Close()
	switch {
	case w.err != nil:
		return f.fail(FetchIO, w.err)
	case copyErr != nil:
		return f.fail(FetchCorrupt, copyErr)
	case closeErr != nil:
		return f.fail(FetchIO, closeErr)
	}
	return nil
}

func (f *Fetcher) fail(kind FetchErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, URL: f.url, Err: err}
}

// errWriter records write failures so they can be told apart from read
// failures after io.Copy.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
