package storage

// The files table is the source of truth. files_fts is an external-content
// FTS5 index over (title, text) kept in step by the three triggers, so every
// write to files is mirrored in the same transaction.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY,

	file_id TEXT NOT NULL UNIQUE,
	file_uid TEXT,

	file_uri TEXT NOT NULL,

	file_size INTEGER NOT NULL,
	file_hash_sha256 TEXT NOT NULL,

	file_extension TEXT NOT NULL,
	file_kind TEXT NOT NULL,

	importance INTEGER NOT NULL DEFAULT 0,
	title TEXT NOT NULL,
	origin_uri TEXT,

	record_created_datetime TEXT NOT NULL,
	record_updated_datetime TEXT NOT NULL,
	file_created_datetime TEXT NOT NULL,
	file_modified_datetime TEXT NOT NULL,

	text TEXT,
	extra JSON
);

CREATE INDEX IF NOT EXISTS idx_files_uid ON files(file_uid);
CREATE INDEX IF NOT EXISTS idx_files_sha256 ON files(file_hash_sha256);

CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
	title,
	text,
	content='files',
	content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS files_ai AFTER INSERT ON files BEGIN
	INSERT INTO files_fts(rowid, title, text)
	VALUES (new.id, new.title, new.text);
END;

CREATE TRIGGER IF NOT EXISTS files_ad AFTER DELETE ON files BEGIN
	INSERT INTO files_fts(files_fts, rowid, title, text)
	VALUES ('delete', old.id, old.title, old.text);
END;

CREATE TRIGGER IF NOT EXISTS files_au AFTER UPDATE ON files BEGIN
	INSERT INTO files_fts(files_fts, rowid, title, text)
	VALUES ('delete', old.id, old.title, old.text);
	INSERT INTO files_fts(rowid, title, text)
	VALUES (new.id, new.title, new.text);
END;
`

// record_created_datetime is insert-only; everything else follows the
// latest document.
const upsertSQL = `
INSERT INTO files (
	file_id,
	file_uid,
	file_uri,
	file_size,
	file_hash_sha256,
	file_extension,
	file_kind,
	importance,
	title,
	origin_uri,
	record_created_datetime,
	record_updated_datetime,
	file_created_datetime,
	file_modified_datetime,
	text,
	extra
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(file_id) DO UPDATE SET
	file_uid = excluded.file_uid,
	file_uri = excluded.file_uri,
	file_size = excluded.file_size,
	file_hash_sha256 = excluded.file_hash_sha256,
	file_extension = excluded.file_extension,
	file_kind = excluded.file_kind,
	importance = excluded.importance,
	title = excluded.title,
	origin_uri = excluded.origin_uri,
	record_updated_datetime = excluded.record_updated_datetime,
	file_created_datetime = excluded.file_created_datetime,
	file_modified_datetime = excluded.file_modified_datetime,
	text = excluded.text,
	extra = excluded.extra
`

const selectRecordSQL = `
SELECT
	id,
	file_id,
	file_uid,
	file_uri,
	file_size,
	file_hash_sha256,
	file_extension,
	file_kind,
	importance,
	title,
	origin_uri,
	record_created_datetime,
	record_updated_datetime,
	file_created_datetime,
	file_modified_datetime,
	text,
	extra
FROM files
`

// pragmas applied to every connection the package opens. modernc.org/sqlite
// ignores most DSN parameters, so they are issued as statements.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA temp_store = MEMORY",
}
