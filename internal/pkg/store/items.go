package store

import (
	"context"
	"database/sql"

	"github.com/internetarchive/Talos/pkg/models"
)

// SaveRecord writes a validated item and all of its associations in a
// single transaction. A record whose image_id already exists is left
// untouched and reported via the bool return.
func (s *Store) SaveRecord(ctx context.Context, rec *models.Record) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	meta := rec.Metadata
	if meta == nil {
		meta = &models.Metadata{}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO images (
			image_id, url, page_url, local_path, sha256, bytes,
			title, description, author, license,
			camera_make, camera_model, focal_length, aperture, shutter_speed,
			taken_date, upload_date, saved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ImageID, rec.URL, rec.PageURL, rec.LocalPath, rec.Digest, rec.Bytes,
		meta.Title, meta.Description, meta.Author, meta.License,
		meta.CameraMake, meta.CameraModel, meta.FocalLength, meta.Aperture, meta.ShutterSpeed,
		meta.TakenDate, meta.UploadDate, rec.SavedAt)
	if err != nil {
		s.logger.Error("error inserting image", "image_id", rec.ImageID, "err", err.Error())
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, tx.Commit()
	}

	rowID, err := res.LastInsertId()
	if err != nil {
		return false, err
	}

	for _, tag := range meta.Tags {
		if err := linkNamed(ctx, tx, rowID, "tags", "image_tags", "tag_id", tag, ""); err != nil {
			return false, err
		}
	}
	for _, album := range meta.Albums {
		if err := linkNamed(ctx, tx, rowID, "albums", "image_albums", "album_id", album.Name, album.URL); err != nil {
			return false, err
		}
	}
	for _, coll := range meta.Collections {
		if err := linkNamed(ctx, tx, rowID, "collections", "image_collections", "collection_id", coll.Name, coll.URL); err != nil {
			return false, err
		}
	}

	return true, tx.Commit()
}

// linkNamed upserts a row into a lookup table and joins it to an image.
// Tags are keyed by name, albums and collections by URL.
func linkNamed(ctx context.Context, tx *sql.Tx, imageRowID int64, table, joinTable, joinCol, name, url string) error {
	var id int64
	var err error

	if table == "tags" {
		if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
			return err
		}
		err = tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id)
	} else {
		if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO `+table+` (name, url) VALUES (?, ?)`, name, url); err != nil {
			return err
		}
		err = tx.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE url = ?`, url).Scan(&id)
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+joinTable+` (image_id, `+joinCol+`) VALUES (?, ?)`, imageRowID, id)
	return err
}

// IsImageSaved reports whether an image_id already has a durable record.
func (s *Store) IsImageSaved(ctx context.Context, imageID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE image_id = ?`, imageID).Scan(&n)
	return n > 0, err
}

// CountImages returns the total number of durable image records.
func (s *Store) CountImages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n)
	return n, err
}

// BanAuthor records an author whose content must be skipped from now on.
func (s *Store) BanAuthor(ctx context.Context, author, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO author_bans (author, reason) VALUES (?, ?)`, author, reason)
	return err
}

// IsAuthorBanned reports whether an author is on the ban list.
func (s *Store) IsAuthorBanned(ctx context.Context, author string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM author_bans WHERE author = ?`, author).Scan(&n)
	return n > 0, err
}

// MarkImage records an operator mark against an image, e.g. for takedown.
func (s *Store) MarkImage(ctx context.Context, imageID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO marked_images (image_id, reason) VALUES (?, ?)`, imageID, reason)
	return err
}

// IsImageMarked reports whether an image carries an operator mark.
func (s *Store) IsImageMarked(ctx context.Context, imageID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM marked_images WHERE image_id = ?`, imageID).Scan(&n)
	return n > 0, err
}
