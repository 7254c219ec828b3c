package database

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"imagesim/logging"
	"imagesim/types"
)

// InitDatabase initializes and returns a database connection
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, logging.WrapStorage("database.open", dbPath, err)
	}
	// sqlite allows one writer; indexing workers share a single connection
	db.SetMaxOpenConns(1)

	// Create table if it doesn't exist
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS embeddings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		source_prefix TEXT NOT NULL DEFAULT '',
		format TEXT,
		width INTEGER,
		height INTEGER,
		modified_at TEXT,
		captured_at TEXT,
		size INTEGER,
		dim INTEGER NOT NULL,
		embedding BLOB NOT NULL,
		created_at TEXT,
		UNIQUE(path, source_prefix)
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_path ON embeddings(path);
	CREATE INDEX IF NOT EXISTS idx_embeddings_prefix ON embeddings(source_prefix);`

	if _, err = db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, logging.WrapStorage("database.migrate", dbPath, err)
	}

	return db, nil
}

// OpenDatabase opens an existing database connection
func OpenDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, logging.WrapStorage("database.open", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, logging.WrapStorage("database.open", dbPath, err)
	}
	return db, nil
}

// CheckImageExists checks if an image is already indexed and returns its stored modification time
func CheckImageExists(db *sql.DB, path string, sourcePrefix string) (bool, string, error) {
	var storedModTime sql.NullString
	err := db.QueryRow("SELECT modified_at FROM embeddings WHERE path = ? AND source_prefix = ?", path, sourcePrefix).Scan(&storedModTime)
	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", logging.WrapStorage("database.check_image", path, err)
	}
	return true, storedModTime.String, nil
}

// StoreEmbedding stores an indexed image. Existing rows are replaced only
// when forceRewrite is set or the file changed.
func StoreEmbedding(db *sql.DB, image types.IndexedImage, forceRewrite bool) error {
	now := time.Now().Format(time.RFC3339)

	query := `
		INSERT INTO embeddings (
			path, source_prefix, format, width, height, modified_at, captured_at, size, dim, embedding, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, source_prefix) DO UPDATE SET
			format = excluded.format,
			width = excluded.width,
			height = excluded.height,
			modified_at = excluded.modified_at,
			captured_at = excluded.captured_at,
			size = excluded.size,
			dim = excluded.dim,
			embedding = excluded.embedding,
			created_at = excluded.created_at`
	if !forceRewrite {
		query += `
		WHERE embeddings.modified_at IS NOT excluded.modified_at`
	}

	stmt, err := db.Prepare(query)
	if err != nil {
		return logging.WrapStorage("database.store_embedding", image.Path, err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(
		image.Path,
		image.SourcePrefix,
		image.Format,
		image.Width,
		image.Height,
		image.ModifiedAt,
		image.CapturedAt,
		image.Size,
		len(image.Embedding),
		EncodeEmbedding(image.Embedding),
		now,
	)
	if err != nil {
		return logging.WrapStorage("database.store_embedding", image.Path, err)
	}
	return nil
}

// QueryEmbeddings loads indexed images, filtered by source prefix when one is given
func QueryEmbeddings(db *sql.DB, sourcePrefix string) ([]types.IndexedImage, error) {
	query := `SELECT id, path, source_prefix, format, width, height, modified_at, captured_at, size, dim, embedding FROM embeddings`
	var args []interface{}
	if sourcePrefix != "" {
		query += ` WHERE source_prefix = ?`
		args = append(args, sourcePrefix)
	}
	query += ` ORDER BY id`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, logging.WrapStorage("database.query_embeddings", sourcePrefix, err)
	}
	defer rows.Close()

	var images []types.IndexedImage
	for rows.Next() {
		var (
			img    types.IndexedImage
			format sql.NullString
			mod    sql.NullString
			taken  sql.NullString
			dim    int
			blob   []byte
		)
		if err := rows.Scan(&img.ID, &img.Path, &img.SourcePrefix, &format, &img.Width, &img.Height, &mod, &taken, &img.Size, &dim, &blob); err != nil {
			return nil, logging.WrapStorage("database.query_embeddings", sourcePrefix, err)
		}
		img.Format = format.String
		img.ModifiedAt = mod.String
		img.CapturedAt = taken.String
		img.Embedding, err = DecodeEmbedding(blob, dim)
		if err != nil {
			return nil, logging.WrapStorage("database.query_embeddings", img.Path, err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, logging.WrapStorage("database.query_embeddings", sourcePrefix, err)
	}
	return images, nil
}

// ScanStats contains statistics about the index
type ScanStats struct {
	TotalImages int
	Dimensions  []int
}

// GetScanStats retrieves statistics about indexed images
func GetScanStats(db *sql.DB, sourcePrefix string) (*ScanStats, error) {
	var stats ScanStats

	where := ""
	var args []interface{}
	if sourcePrefix != "" {
		where = " WHERE source_prefix = ?"
		args = append(args, sourcePrefix)
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM embeddings"+where, args...).Scan(&stats.TotalImages); err != nil {
		return nil, logging.WrapStorage("database.scan_stats", sourcePrefix, err)
	}

	// more than one dimension means the index mixes models
	rows, err := db.Query("SELECT DISTINCT dim FROM embeddings"+where+" ORDER BY dim", args...)
	if err != nil {
		return nil, logging.WrapStorage("database.scan_stats", sourcePrefix, err)
	}
	defer rows.Close()
	for rows.Next() {
		var dim int
		if err := rows.Scan(&dim); err != nil {
			return nil, logging.WrapStorage("database.scan_stats", sourcePrefix, err)
		}
		stats.Dimensions = append(stats.Dimensions, dim)
	}
	if err := rows.Err(); err != nil {
		return nil, logging.WrapStorage("database.scan_stats", sourcePrefix, err)
	}
	return &stats, nil
}

// EncodeEmbedding packs an embedding as little-endian float32 values
func EncodeEmbedding(vec types.Embedding) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	}
	return buf
}

// DecodeEmbedding unpacks a blob written by EncodeEmbedding
func DecodeEmbedding(blob []byte, dim int) (types.Embedding, error) {
	if len(blob) != 4*dim {
		return nil, fmt.Errorf("embedding blob has %d bytes, expected %d for dim %d", len(blob), 4*dim, dim)
	}
	vec := make(types.Embedding, dim)
	for i := range vec {
		vec[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:])))
	}
	return vec, nil
}
