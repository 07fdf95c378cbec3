package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/open-edge-platform/tapkeeper/internal/archive"
	"github.com/open-edge-platform/tapkeeper/internal/formula"
	"github.com/open-edge-platform/tapkeeper/internal/ledger"
	"github.com/open-edge-platform/tapkeeper/internal/pkgfetcher"
	"github.com/open-edge-platform/tapkeeper/internal/signing"
	"github.com/open-edge-platform/tapkeeper/internal/utils/digest"
	"github.com/open-edge-platform/tapkeeper/internal/utils/general/slice"
	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
	"github.com/open-edge-platform/tapkeeper/internal/version"
)

// maxSignatureSize bounds a downloaded detached signature.
const maxSignatureSize = 64 << 10

// Options configure an Auditor.
type Options struct {
	// Licenses is the recognized license set. Empty accepts any license.
	Licenses []string

	// Remote enables archive download and checksum verification.
	Remote bool
	// Inspect looks inside downloaded archives. It requires CacheDir.
	Inspect  bool
	Client   *http.Client
	Workers  int
	CacheDir string
	Progress bool

	// Keyring verifies detached signatures of releases that declare one.
	Keyring *signing.Keyring
	// Ledger records published checksums across runs.
	Ledger *ledger.Ledger
}

// Auditor runs every check on a series of descriptors.
type Auditor struct {
	opts Options
}

// New returns an Auditor for opts.
func New(opts Options) *Auditor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &Auditor{opts: opts}
}

// Run audits ds in publication order. The returned error is reserved for
// failures of the audit itself; problems with descriptors are findings.
func (a *Auditor) Run(ctx context.Context, ds []*formula.Descriptor) (*Report, error) {
	log := logger.Logger()

	refs := make([]string, len(ds))
	for i, d := range ds {
		refs[i] = d.Ref()
	}
	report := newReport(refs)
	report.Remote = a.opts.Remote
	log.Infof("Audit %s: %d descriptor(s)", report.RunID, len(ds))

	for i, d := range ds {
		report.add(checkDescriptor(i, d, a.opts.Licenses)...)
	}
	report.add(CheckSeries(ds)...)

	failed := make(map[int]bool)
	if a.opts.Remote {
		fs, err := a.remote(ctx, ds)
		if err != nil {
			return nil, err
		}
		for _, f := range fs {
			if f.Severity == Error {
				failed[f.index] = true
			}
		}
		report.add(fs...)
	}

	if a.opts.Ledger != nil {
		fs, err := a.record(ctx, ds, failed)
		if err != nil {
			return nil, err
		}
		report.add(fs...)
	}

	report.finish()
	log.Infof("Audit %s finished: %d error(s), %d warning(s)", report.RunID, report.Summary.Error, report.Summary.Warning)
	return report, nil
}

// remote fetches every distinct archive once, then checks each descriptor
// against the result.
func (a *Auditor) remote(ctx context.Context, ds []*formula.Descriptor) ([]Finding, error) {
	var urls []string
	for _, d := range ds {
		if isWebURL(d.URL) {
			urls = append(urls, d.URL)
		}
	}
	urls = slice.Unique(urls)

	destDir := ""
	if a.opts.Inspect {
		if a.opts.CacheDir == "" {
			return nil, fmt.Errorf("archive inspection needs a cache directory")
		}
		if err := os.MkdirAll(a.opts.CacheDir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		destDir = a.opts.CacheDir
	}

	results := pkgfetcher.FetchArchives(ctx, urls, pkgfetcher.Options{
		Client:   a.opts.Client,
		Workers:  a.opts.Workers,
		DestDir:  destDir,
		Progress: a.opts.Progress,
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	byURL := make(map[string]pkgfetcher.Result, len(results))
	for _, r := range results {
		byURL[r.URL] = r
	}

	// per-descriptor checks that need more I/O run concurrently; each
	// goroutine owns its slot so the order stays stable
	perDesc := make([]*findings, len(ds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	inspected := newArchiveCache()

	for i, d := range ds {
		fs := &findings{index: i, ref: d.Ref()}
		perDesc[i] = fs

		res, ok := byURL[d.URL]
		if !ok {
			continue
		}
		if res.Err != nil {
			fs.add(Error, CodeFetchFailed, "fetching %s: %v", d.URL, res.Err)
			continue
		}
		if !d.IsDraft() && digest.IsSHA256Hex(d.SHA256) && !digest.Equal(res.SHA256, d.SHA256) {
			fs.add(Error, CodeChecksumMismatch, "declared sha256 %s but archive hashes to %s", digest.Short(d.SHA256), digest.Short(res.SHA256))
		}
		if d.IsDraft() {
			fs.add(Info, CodeDraft, "archive sha256 is %s", res.SHA256)
		}

		g.Go(func() error {
			if a.opts.Inspect && res.Path != "" {
				info, err := inspected.get(res.Path)
				if err != nil {
					fs.add(Warning, CodeArchiveUnreadable, "%v", err)
				} else {
					checkArchive(fs, d, info)
				}
			}
			return a.checkSignature(gctx, fs, d, res)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Finding
	for _, fs := range perDesc {
		out = append(out, fs.out...)
	}
	return out, nil
}

func checkArchive(fs *findings, d *formula.Descriptor, info *archive.Info) {
	p := info.Project
	if p == nil {
		fs.add(Info, CodeArchiveUnreadable, "archive %s has no top-level pyproject.toml", info.Root)
		return
	}
	if p.Version != "" && !version.Match(p.Version, d.ReleaseVersion()) {
		fs.add(Error, CodeArchiveVersion, "pyproject.toml declares version %s, descriptor releases %s", p.Version, d.ReleaseVersion())
	}
	if entry := d.EntryPoint(); !info.HasScript(entry) {
		fs.add(Error, CodeEntryPointMissing, "entry point %s is not a console script of the project (have %s)",
			entry, strings.Join(info.ScriptNames(), ", "))
	}
	if p.RequiresPython == "" {
		return
	}
	for _, dep := range d.RuntimeDependencies() {
		if dep.Name != "python" || dep.Constraint == "" {
			continue
		}
		ok, err := version.Satisfies(dep.Constraint, p.RequiresPython)
		if err != nil {
			fs.add(Warning, CodePythonIncompatible, "cannot evaluate requires-python %q: %v", p.RequiresPython, err)
		} else if !ok {
			fs.add(Error, CodePythonIncompatible, "python@%s does not satisfy requires-python %q", dep.Constraint, p.RequiresPython)
		}
	}
}

// checkSignature verifies the detached signature a release declares. Only a
// failure of the context is returned as an error.
func (a *Auditor) checkSignature(ctx context.Context, fs *findings, d *formula.Descriptor, res pkgfetcher.Result) error {
	if d.SignatureURL == "" {
		return nil
	}
	if a.opts.Keyring == nil {
		fs.add(Info, CodeSignatureUnchecked, "release declares a signature but no keyring is configured")
		return nil
	}
	if res.Path == "" {
		fs.add(Info, CodeSignatureUnchecked, "signature check needs the archive to be cached")
		return nil
	}

	sig, err := fetchSmall(ctx, a.opts.Client, d.SignatureURL, maxSignatureSize)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fs.add(Error, CodeSignatureInvalid, "fetching signature: %v", err)
		return nil
	}
	f, err := os.Open(res.Path)
	if err != nil {
		return fmt.Errorf("opening cached archive: %w", err)
	}
	defer f.Close()

	signer, err := a.opts.Keyring.Verify(f, sig)
	if err != nil {
		fs.add(Error, CodeSignatureInvalid, "%v", err)
		return nil
	}
	logger.Logger().Debugf("%s: signature by key %s", d.Ref(), signer.KeyID)
	return nil
}

// record stores every published descriptor that passed remote checks in the
// ledger.
func (a *Auditor) record(ctx context.Context, ds []*formula.Descriptor, failed map[int]bool) ([]Finding, error) {
	var out []Finding
	for i, d := range ds {
		if failed[i] || d.IsDraft() || !digest.IsSHA256Hex(d.SHA256) {
			continue
		}
		tag, err := d.Tag()
		if err != nil {
			continue
		}
		added, err := a.opts.Ledger.Record(ctx, ledger.Entry{
			Name:    d.Name,
			Version: d.ReleaseVersion(),
			Tag:     tag,
			URL:     d.URL,
			SHA256:  d.SHA256,
		})
		var conflict *ledger.ConflictError
		switch {
		case errors.As(err, &conflict):
			fs := &findings{index: i, ref: d.Ref()}
			fs.add(Error, CodeLedgerConflict, "%v", conflict)
			out = append(out, fs.out...)
		case err != nil:
			return nil, err
		case added:
			logger.Logger().Debugf("ledger: recorded %s %s", d.Name, tag)
		}
	}
	return out, nil
}

func fetchSmall(ctx context.Context, client *http.Client, rawURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &pkgfetcher.StatusError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s is larger than %d bytes", rawURL, limit)
	}
	return data, nil
}
