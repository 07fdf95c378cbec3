package release

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/open-edge-platform/tapkeeper/internal/pkgfetcher"
	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
)

// WaitForAsset polls url with HEAD requests until it answers 200 or 302,
// trying at most attempts times with interval between tries.
func WaitForAsset(ctx context.Context, client *http.Client, url string, attempts int, interval time.Duration) error {
	log := logger.Logger()
	if attempts < 1 {
		attempts = 1
	}
	log.Infof("Waiting for release asset %s", url)

	var lastErr error
	for i := 1; i <= attempts; i++ {
		status, err := pkgfetcher.Head(ctx, client, url)
		switch {
		case err == nil && (status == http.StatusOK || status == http.StatusFound):
			log.Infof("Release asset is ready after %d attempt(s)", i)
			return nil
		case err != nil:
			lastErr = err
			log.Debugf("attempt %d/%d: %v", i, attempts, err)
		default:
			lastErr = fmt.Errorf("HEAD %s: status %d", url, status)
			log.Debugf("attempt %d/%d: status %d", i, attempts, status)
		}

		if i == attempts {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("waiting for %s: %w", url, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("release asset %s not available after %d attempts: %w", url, attempts, lastErr)
}

// ComputeChecksum streams url through SHA-256 without storing it.
func ComputeChecksum(ctx context.Context, client *http.Client, url string) (string, error) {
	logger.Logger().Infof("Downloading %s to calculate hash", url)
	res := pkgfetcher.Fetch(ctx, client, url, "")
	if res.Err != nil {
		return "", res.Err
	}
	logger.Logger().Debugf("%s: %d bytes, sha256 %s", url, res.Size, res.SHA256)
	return res.SHA256, nil
}
