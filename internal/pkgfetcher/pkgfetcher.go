package pkgfetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
	"github.com/schollz/progressbar/v3"
)

// Result describes one fetched archive.
type Result struct {
	URL    string
	Path   string // empty when the body was only hashed
	SHA256 string
	Size   int64
	Err    error
}

// Options controls FetchArchives.
type Options struct {
	Client   *http.Client
	Workers  int
	DestDir  string // when empty archives are hashed but not stored
	Progress bool
	Output   io.Writer // progress bar output, os.Stderr when nil
}

// StatusError is returned when the server answers with anything but 200.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: bad status: %s", e.URL, e.Status)
}

// FetchArchives downloads the given URLs using a pool of workers, hashing
// each body with SHA-256 while it streams. Results are returned in the
// order of urls. It shows a single progress bar tracking files completed vs total.
func FetchArchives(ctx context.Context, urls []string, opts Options) []Result {
	log := logger.Logger()

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	total := len(urls)
	results := make([]Result, total)
	jobs := make(chan int, total)
	var wg sync.WaitGroup

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if !opts.Progress {
		out = io.Discard
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionFullWidth(),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetDescription("fetching"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				u := urls[idx]
				bar.Describe(fmt.Sprintf("fetching %s", path.Base(u)))

				dest := ""
				if opts.DestDir != "" {
					dest = filepath.Join(opts.DestDir, CacheName(u))
				}
				res := Fetch(ctx, client, u, dest)
				if res.Err != nil {
					log.Errorf("fetching %s failed: %v", u, res.Err)
					logger.FetchReport.Add(fmt.Sprintf("FAILED %s %v", u, res.Err))
				} else {
					log.Debugf("fetched %s (%d bytes, sha256 %s)", u, res.Size, res.SHA256)
					logger.FetchReport.Add(fmt.Sprintf("%s %s %d", u, res.SHA256, res.Size))
				}
				results[idx] = res
				_ = bar.Add(1)
			}
		}()
	}

	for i := range urls {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	_ = bar.Finish()
	return results
}

// Fetch downloads one URL, hashing the body as it streams. When dest is not
// empty the body is written to a temporary file next to dest and renamed
// into place only after the full body was read.
func Fetch(ctx context.Context, client *http.Client, rawURL string, dest string) Result {
	res := Result{URL: rawURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		res.Err = fmt.Errorf("building request for %s: %w", rawURL, err)
		return res
	}
	resp, err := client.Do(req)
	if err != nil {
		res.Err = fmt.Errorf("GET %s: %w", rawURL, err)
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		res.Err = &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
		return res
	}

	h := sha256.New()
	var body io.Reader = io.TeeReader(resp.Body, h)

	if dest == "" {
		n, err := io.Copy(io.Discard, body)
		if err != nil {
			res.Err = fmt.Errorf("reading %s: %w", rawURL, err)
			return res
		}
		res.Size = n
		res.SHA256 = hex.EncodeToString(h.Sum(nil))
		return res
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		res.Err = fmt.Errorf("creating cache directory: %w", err)
		return res
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		res.Err = fmt.Errorf("creating temp file: %w", err)
		return res
	}
	defer func() {
		if res.Err != nil {
			os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		res.Err = fmt.Errorf("writing %s: %w", rawURL, err)
		return res
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		res.Err = fmt.Errorf("moving archive into cache: %w", err)
		return res
	}

	res.Path = dest
	res.Size = n
	res.SHA256 = hex.EncodeToString(h.Sum(nil))
	return res
}

// Head issues a HEAD request without following redirects and returns the
// status code. Release assets answer 302 before they are redirected to storage.
func Head(ctx context.Context, client *http.Client, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("building request for %s: %w", rawURL, err)
	}

	noRedirect := *client
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := noRedirect.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HEAD %s: %w", rawURL, err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// CacheName returns a file name for rawURL that is unique per URL but keeps
// the original base name readable, e.g. "1a2b3c4d5e6f-v1.0.3.tar.gz".
func CacheName(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	base := "archive"
	if u, err := url.Parse(rawURL); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
		base = path.Base(u.Path)
	}
	return hex.EncodeToString(sum[:6]) + "-" + base
}
