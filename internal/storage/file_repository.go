package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/types"
)

// FileRepository persists file metadata
type FileRepository struct {
	db *PostgresDB
}

// NewFileRepository creates a new file repository
func NewFileRepository(db *PostgresDB) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, owner_id, name, size_bytes, size_label, uploaded_at, storage_path,
	shared, share_url, share_password, share_mode, share_created_at`

// Create inserts a new file record, assigning an id when empty
func (r *FileRepository) Create(ctx context.Context, file *models.File) error {
	if file.ID == "" {
		file.ID = uuid.New().String()
	}

	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		file.ID,
		file.OwnerID,
		file.Name,
		file.SizeBytes,
		file.SizeLabel,
		file.UploadedAt,
		file.StoragePointer,
		file.Shared,
		file.ShareURL,
		file.SharePassword,
		shareModeArg(file.ShareMode),
		file.ShareCreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// GetByID returns the file with id or ErrNotFound
func (r *FileRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound("file", id)
	}

	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`

	file, err := scanFile(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("file", id)
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return file, nil
}

// ListByOwner returns the files of ownerID, newest first
func (r *FileRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = $1 ORDER BY uploaded_at DESC`

	rows, err := r.db.Pool().Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	files := make([]*models.File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// UpdateShare writes the sharing fields of file id in one statement
func (r *FileRepository) UpdateShare(ctx context.Context, id string, settings models.ShareSettings) error {
	query := `
		UPDATE files
		SET shared = $2, share_url = $3, share_password = $4, share_mode = $5, share_created_at = $6
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		id,
		settings.Shared,
		settings.ShareURL,
		settings.SharePassword,
		shareModeArg(settings.ShareMode),
		settings.ShareCreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update share: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("file", id)
	}
	return nil
}

// Delete removes file id and returns the deleted record
func (r *FileRepository) Delete(ctx context.Context, id string) (*models.File, error) {
	query := `DELETE FROM files WHERE id = $1 RETURNING ` + fileColumns

	file, err := scanFile(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("file", id)
		}
		return nil, fmt.Errorf("failed to delete file: %w", err)
	}
	return file, nil
}

// DeleteByOwner removes every file of ownerID and returns the deleted records
func (r *FileRepository) DeleteByOwner(ctx context.Context, ownerID string) ([]*models.File, error) {
	query := `DELETE FROM files WHERE owner_id = $1 RETURNING ` + fileColumns

	rows, err := r.db.Pool().Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete files: %w", err)
	}
	defer rows.Close()

	var files []*models.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// Totals returns the number of files, shared files and stored bytes across all owners
func (r *FileRepository) Totals(ctx context.Context) (files int, shared int, bytes int64, err error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE shared), COALESCE(SUM(size_bytes), 0)
		FROM files
	`

	if err := r.db.Pool().QueryRow(ctx, query).Scan(&files, &shared, &bytes); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to total files: %w", err)
	}
	return files, shared, bytes, nil
}

func shareModeArg(mode *types.ShareMode) *string {
	if mode == nil {
		return nil
	}
	s := string(*mode)
	return &s
}

func scanFile(row pgx.Row) (*models.File, error) {
	var file models.File
	var shareMode *string
	err := row.Scan(
		&file.ID,
		&file.OwnerID,
		&file.Name,
		&file.SizeBytes,
		&file.SizeLabel,
		&file.UploadedAt,
		&file.StoragePointer,
		&file.Shared,
		&file.ShareURL,
		&file.SharePassword,
		&shareMode,
		&file.ShareCreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if shareMode != nil {
		mode, err := types.ParseShareMode(*shareMode)
		if err != nil {
			return nil, err
		}
		file.ShareMode = &mode
	}
	return &file, nil
}
