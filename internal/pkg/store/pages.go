package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/internetarchive/Talos/pkg/models"
)

// MarkPageCompleted records a fully processed page. Re-marking an already
// completed page overwrites its counts.
func (s *Store) MarkPageCompleted(ctx context.Context, p models.PageProgress) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO completed_pages (page_number, completion_date, image_count, total_bytes)
		VALUES (?, ?, ?, ?)`,
		p.PageNumber, p.CompletionDate, p.ImageCount, p.TotalBytes)
	return err
}

// CompletedPage returns the progress record for a page, or found=false when
// the page was never completed.
func (s *Store) CompletedPage(ctx context.Context, pageNumber int) (p models.PageProgress, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT page_number, completion_date, image_count, total_bytes
		FROM completed_pages WHERE page_number = ?`, pageNumber).
		Scan(&p.PageNumber, &p.CompletionDate, &p.ImageCount, &p.TotalBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return p, false, nil
	}
	if err != nil {
		return p, false, err
	}
	return p, true, nil
}

// ShouldSkipPage implements the restart rule: a page is skipped only when a
// completion record exists with at least one image.
func (s *Store) ShouldSkipPage(ctx context.Context, pageNumber int) (bool, error) {
	p, found, err := s.CompletedPage(ctx, pageNumber)
	if err != nil {
		return false, err
	}
	return found && p.ImageCount > 0, nil
}

// RecordFailedPage upserts a failed-page record, bumping its attempt count.
// Once attempts reach maxAttempts the status flips to the terminal 'failed'.
func (s *Store) RecordFailedPage(ctx context.Context, pageNumber int, errMsg string, maxAttempts int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var attempts int
	err = tx.QueryRowContext(ctx, `SELECT attempts FROM failed_pages WHERE page_number = ?`, pageNumber).Scan(&attempts)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	attempts++
	status := models.FailedPagePending
	if attempts >= maxAttempts {
		status = models.FailedPageFailed
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO failed_pages (page_number, error, attempts, status, last_attempt)
		VALUES (?, ?, ?, ?, ?)`,
		pageNumber, errMsg, attempts, string(status), time.Now())
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ResolveFailedPage marks a previously failed page as successfully
// reprocessed.
func (s *Store) ResolveFailedPage(ctx context.Context, pageNumber int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE failed_pages SET status = ? WHERE page_number = ?`,
		string(models.FailedPageSuccess), pageNumber)
	return err
}

// PendingFailedPages returns every failed page still eligible for a retry
// pass, oldest first.
func (s *Store) PendingFailedPages(ctx context.Context) ([]models.FailedPage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page_number, error, attempts, status
		FROM failed_pages
		WHERE status IN (?, ?)
		ORDER BY page_number ASC`,
		string(models.FailedPagePending), string(models.FailedPageRetried))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []models.FailedPage
	for rows.Next() {
		var p models.FailedPage
		var status string
		if err := rows.Scan(&p.PageNumber, &p.Error, &p.Attempts, &status); err != nil {
			return nil, err
		}
		p.Status = models.FailedPageStatus(status)
		pages = append(pages, p)
	}

	return pages, rows.Err()
}

// MarkFailedPageRetried flips a pending failed page to 'retried' when a
// retry pass picks it up.
func (s *Store) MarkFailedPageRetried(ctx context.Context, pageNumber int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE failed_pages SET status = ?, last_attempt = ? WHERE page_number = ?`,
		string(models.FailedPageRetried), time.Now(), pageNumber)
	return err
}
