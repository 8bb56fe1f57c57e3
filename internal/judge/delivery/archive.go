package delivery

import (
	"archive/tar"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"judgehost/internal/common/storage"
	appErr "judgehost/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

const archiveContentType = "application/zstd"

// Archiver keeps a copy of a backed up submission elsewhere.
type Archiver interface {
	Archive(ctx context.Context, id, dir string) error
}

// MinIOArchiver uploads backups as <prefix><backup name>.tar.zst.
type MinIOArchiver struct {
	store  storage.ObjectStorage
	bucket string
	prefix string
}

func NewMinIOArchiver(store storage.ObjectStorage, bucket, prefix string) *MinIOArchiver {
	return &MinIOArchiver{store: store, bucket: bucket, prefix: prefix}
}

// ObjectKey is the key a backup directory is stored under.
func (a *MinIOArchiver) ObjectKey(dir string) string {
	return a.prefix + filepath.Base(dir) + ".tar.zst"
}

func (a *MinIOArchiver) Archive(ctx context.Context, id, dir string) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeArchive(pw, dir))
	}()
	key := a.ObjectKey(dir)
	err := a.store.PutObject(ctx, a.bucket, key, pr, -1, archiveContentType)
	_ = pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return appErr.Wrapf(err, appErr.BackupFailed, "upload archive of %s failed", id)
	}
	// streamed uploads have no length to compare against, so check what landed
	stat, err := a.store.StatObject(ctx, a.bucket, key)
	if err != nil {
		return appErr.Wrapf(err, appErr.BackupFailed, "verify archive of %s failed", id)
	}
	if stat.SizeBytes <= 0 || stat.ContentType != archiveContentType {
		return appErr.Newf(appErr.BackupFailed, "archive of %s stored as %d bytes of %q", id, stat.SizeBytes, stat.ContentType)
	}
	return nil
}

// writeArchive streams dir as a zstd compressed tar with paths relative to dir.
func writeArchive(w io.Writer, dir string) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(zw)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() && !strings.HasSuffix(hdr.Name, "/") {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		_ = tw.Close()
		_ = zw.Close()
		return walkErr
	}
	if err := tw.Close(); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}
