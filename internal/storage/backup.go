package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"
	"go.uber.org/zap"

	"github.com/arkilian/nanostore/internal/config"
)

// CompressedSuffix marks snappy-framed backups.
const CompressedSuffix = ".sz"

// Snapshotter writes a consistent copy of a store database to a file.
// *engine.Engine implements it.
type Snapshotter interface {
	SnapshotTo(ctx context.Context, path string) error
}

// Backup snapshots a store, optionally compresses the image and uploads it.
type Backup struct {
	storage  ObjectStorage
	prefix   string
	compress bool
	logger   *zap.Logger
	now      func() time.Time
}

// NewBackup creates a backup writer over storage. Objects are written under
// prefix.
func NewBackup(storage ObjectStorage, prefix string, compress bool, logger *zap.Logger) *Backup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backup{
		storage:  storage,
		prefix:   strings.Trim(prefix, "/"),
		compress: compress,
		logger:   logger,
		now:      time.Now,
	}
}

// NewBackupFromConfig builds the destination described by cfg.
func NewBackupFromConfig(ctx context.Context, cfg config.BackupConfig, logger *zap.Logger) (*Backup, error) {
	switch cfg.Type {
	case "", "local":
		local, err := NewLocalStorage(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewBackup(local, "", cfg.Compress, logger), nil
	case "s3":
		s3cfg := DefaultS3Config()
		if cfg.S3.Region != "" {
			s3cfg.Region = cfg.S3.Region
		}
		s3cfg.Endpoint = cfg.S3.Endpoint
		s3cfg.UsePathStyle = cfg.S3.Endpoint != ""
		s3, err := NewS3Storage(ctx, cfg.S3.Bucket, s3cfg)
		if err != nil {
			return nil, err
		}
		return NewBackup(s3, cfg.S3.Prefix, cfg.Compress, logger), nil
	default:
		return nil, fmt.Errorf("storage: unknown backup type %q", cfg.Type)
	}
}

// ObjectName returns the object path a backup named name is stored at.
// An empty name is replaced by a UTC timestamp.
func (b *Backup) ObjectName(name string) string {
	if name == "" {
		name = "nanostore-" + b.now().UTC().Format("20060102T150405.000Z") + ".db"
	}
	if b.compress && !strings.HasSuffix(name, CompressedSuffix) {
		name += CompressedSuffix
	}
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

// Run snapshots src and uploads the image. It returns the object path.
func (b *Backup) Run(ctx context.Context, src Snapshotter, name string) (string, error) {
	workDir, err := os.MkdirTemp("", "nanostore-backup-*")
	if err != nil {
		return "", fmt.Errorf("storage: backup work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	image := filepath.Join(workDir, "store.db")
	if err := src.SnapshotTo(ctx, image); err != nil {
		return "", err
	}

	upload := image
	if b.compress {
		upload = image + CompressedSuffix
		if err := compressFile(image, upload); err != nil {
			return "", fmt.Errorf("storage: compress backup: %w", err)
		}
	}

	objectPath := b.ObjectName(name)
	if err := b.storage.Upload(ctx, upload, objectPath); err != nil {
		return "", err
	}

	b.logger.Info("backup written",
		zap.String("object", objectPath),
		zap.Bool("compressed", b.compress))
	return objectPath, nil
}

// Restore downloads objectPath into localPath, decompressing snappy-framed
// backups.
func (b *Backup) Restore(ctx context.Context, objectPath, localPath string) error {
	if !strings.HasSuffix(objectPath, CompressedSuffix) {
		return b.storage.Download(ctx, objectPath, localPath)
	}

	tmp := localPath + CompressedSuffix
	if err := b.storage.Download(ctx, objectPath, tmp); err != nil {
		return err
	}
	defer os.Remove(tmp)
	if err := decompressFile(tmp, localPath); err != nil {
		return fmt.Errorf("storage: decompress %s: %w", objectPath, err)
	}
	return nil
}

// List returns the backups under the prefix.
func (b *Backup) List(ctx context.Context) ([]string, error) {
	return b.storage.ListObjects(ctx, b.prefix)
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	w := snappy.NewBufferedWriter(out)
	if _, err := io.Copy(w, in); err != nil {
		out.Close()
		return err
	}
	if err := w.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func decompressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, snappy.NewReader(in)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
