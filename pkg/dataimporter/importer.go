// Package dataimporter refreshes the GTFS-Static schedule snapshot. Each
// agency's ZIP is fetched on a schedule, content-hashed, and - when changed -
// swapped into the current_* tables inside a single advisory-locked
// transaction so detectors never observe a half-applied schedule.
package dataimporter

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/stoptrack/stoptrack/pkg/database"
	"github.com/stoptrack/stoptrack/pkg/feeds"
	"github.com/stoptrack/stoptrack/pkg/monitoring"
)

const userAgent = "stoptrack-importer/1.0"

// ImportAgency fetches the agency's static ZIP and swaps it into the
// schedule tables if its content hash differs from the active snapshot.
func ImportAgency(ctx context.Context, pool *pgxpool.Pool, feed feeds.Feed) error {
	if feed.StaticURL == "" {
		return errors.New("feed has no static url")
	}

	zipPath, err := downloadStaticZip(ctx, feed.StaticURL)
	if err != nil {
		monitoring.StaticImports.WithLabelValues(feed.Agency, "download_failed").Inc()
		return err
	}
	defer os.Remove(zipPath)

	contentHash, err := hashFile(zipPath)
	if err != nil {
		return err
	}

	activeHash, err := currentHash(ctx, pool, feed.Agency)
	if err != nil {
		return err
	}

	if contentHash == activeHash {
		log.Info().Str("agency", feed.Agency).Str("hash", contentHash).Msg("Static feed unchanged")
		monitoring.StaticImports.WithLabelValues(feed.Agency, "unchanged").Inc()
		return nil
	}

	log.Info().
		Str("agency", feed.Agency).
		Str("oldhash", activeHash).
		Str("newhash", contentHash).
		Msg("Static feed changed, swapping snapshot")

	if err := swapSnapshot(ctx, pool, feed.Agency, zipPath, contentHash); err != nil {
		monitoring.StaticImports.WithLabelValues(feed.Agency, "swap_failed").Inc()
		return err
	}

	monitoring.StaticImports.WithLabelValues(feed.Agency, "swapped").Inc()
	return nil
}

// RunScheduler imports every registered feed once, then again each interval
// until the context is cancelled. A failed import keeps the previous
// snapshot and is retried at the next tick.
func RunScheduler(ctx context.Context, pool *pgxpool.Pool, feedList []feeds.Feed, interval time.Duration) {
	importAll := func() {
		for _, feed := range feedList {
			if err := ImportAgency(ctx, pool, feed); err != nil {
				log.Error().Err(err).Str("agency", feed.Agency).Msg("Static import failed")
			}
		}
	}

	importAll()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			importAll()
		}
	}
}

// swapSnapshot applies the new schedule inside one transaction. A per-agency
// advisory lock excludes concurrent importers for the same agency.
func swapSnapshot(ctx context.Context, pool *pgxpool.Pool, agency string, zipPath string, contentHash string) error {
	transaction, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer transaction.Rollback(ctx)

	if _, err := transaction.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", database.AdvisoryLockKey(agency)); err != nil {
		return err
	}

	if err := loadZip(ctx, transaction, agency, zipPath); err != nil {
		return err
	}

	if _, err := transaction.Exec(ctx,
		`INSERT INTO gtfs_meta (agency_id, current_hash, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (agency_id) DO UPDATE
		 SET current_hash = EXCLUDED.current_hash, updated_at = now()`,
		agency, contentHash,
	); err != nil {
		return err
	}

	return transaction.Commit(ctx)
}

func currentHash(ctx context.Context, pool *pgxpool.Pool, agency string) (string, error) {
	var hash string

	err := pool.QueryRow(ctx, "SELECT current_hash FROM gtfs_meta WHERE agency_id = $1", agency).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return hash, nil
}

func downloadStaticZip(ctx context.Context, source string) (string, error) {
	var zipPath string

	operation := func() error {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		request.Header.Set("User-Agent", userAgent)

		response, err := http.DefaultClient.Do(request)
		if err != nil {
			return err
		}
		defer response.Body.Close()

		if response.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d fetching %s", response.StatusCode, source)
		}

		tempFile, err := os.CreateTemp("", "gtfs-static-*.zip")
		if err != nil {
			return backoff.Permanent(err)
		}

		if _, err := io.Copy(tempFile, response.Body); err != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
			return err
		}
		tempFile.Close()

		zipPath = tempFile.Name()
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}

	return zipPath, nil
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
