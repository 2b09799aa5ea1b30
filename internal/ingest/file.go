package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

const (
	fileIDPrefix = "file:"

	MetaSourcePath  = "source_path"
	MetaSourceMtime = "source_mtime"
	MetaSourceSize  = "source_size"
	MetaTitle       = "title"
)

// FileDocID returns the stable document id for a file path: the same cleaned path
// always yields the same id, so re-ingesting a file replaces its document.
func FileDocID(absolutePath string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(absolutePath)))
	return fileIDPrefix + hex.EncodeToString(hash[:])
}

// IngestFile extracts and stores the file at path under FileDocID. When allowedExts is
// non-empty the extension must be in it. A file already stored with the same mtime and
// size is skipped; the returned bool reports whether the file was (re)ingested.
func (in *Ingester) IngestFile(ctx context.Context, path string, allowedExts []string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("absolute path: %w", err)
	}
	ext := filepath.Ext(absPath)
	if len(allowedExts) > 0 && !ExtensionAllowed(ext, allowedExts) {
		return false, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return false, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("not a regular file: %s", absPath)
	}

	id := FileDocID(absPath)
	if in.unchanged(ctx, id, absPath, info) {
		in.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return false, nil
	}
	text, err := in.extractText(absPath)
	if err != nil {
		return false, fmt.Errorf("extract content: %w", err)
	}
	_, err = in.IngestDocument(ctx, &models.DocumentInput{
		ID:   id,
		Text: text,
		Metadata: map[string]interface{}{
			MetaTitle:      filepath.Base(absPath),
			MetaSourcePath: absPath,
			// strings: UnixNano exceeds float64 precision after a JSON round trip
			MetaSourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			MetaSourceSize:  strconv.FormatInt(info.Size(), 10),
		},
	})
	if err != nil {
		return false, err
	}
	in.logger.Debug("file ingested", zap.String("path", absPath), zap.String("doc_id", id))
	return true, nil
}

func (in *Ingester) unchanged(ctx context.Context, id, absPath string, info os.FileInfo) bool {
	doc, err := in.storage.GetDocument(ctx, id)
	if err != nil || doc.Metadata == nil {
		return false
	}
	if doc.Metadata[MetaSourcePath] != absPath {
		return false
	}
	return metadataInt64(doc.Metadata, MetaSourceMtime) == info.ModTime().UnixNano() &&
		metadataInt64(doc.Metadata, MetaSourceSize) == info.Size()
}

func metadataInt64(m map[string]interface{}, key string) int64 {
	switch n := m[key].(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

// IngestDirectory walks dir recursively and ingests each regular file whose extension is
// in allowedExts (all files when empty). Files that fail are logged and skipped; the
// count of (re)ingested files is returned.
func (in *Ingester) IngestDirectory(ctx context.Context, dir string, allowedExts []string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	n := 0
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(allowedExts) > 0 && !ExtensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		// follow symlinks; only regular files are ingested
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		ingested, ingestErr := in.IngestFile(ctx, path, allowedExts)
		if ingestErr != nil {
			in.logger.Warn("failed to ingest file", zap.String("path", path), zap.Error(ingestErr))
			return nil
		}
		if ingested {
			n++
		}
		return nil
	})
	return n, err
}

func (in *Ingester) extractText(path string) (string, error) {
	if in.extractor != nil {
		return in.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and leading dots.
func ExtensionAllowed(ext string, allowed []string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == ext {
			return true
		}
	}
	return false
}

// RemoveFile deletes the document ingested from path. A file that was never ingested is not an error.
func (in *Ingester) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	err = in.DeleteDocument(ctx, FileDocID(absPath))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}
