// Package fileutil writes session artifacts without leaving partial files
// behind.
package fileutil

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic replaces path with data. Readers see either the old file
// or the complete new one.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	return replace(path, mode, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// CopyFileVerified copies src to dst atomically and returns the hex SHA-256
// of the content. The copy is read back from disk and compared with the
// source digest before it is moved into place.
func CopyFileVerified(ctx context.Context, src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return "", err
	}

	srcSum := sha256.New()
	err = replace(dst, 0o644, func(f *os.File) error {
		n, err := io.Copy(f, io.TeeReader(ctxReader{ctx, in}, srcSum))
		if err != nil {
			return err
		}
		if n != info.Size() {
			return fmt.Errorf("copied %d of %d bytes from %s", n, info.Size(), src)
		}
		if err := f.Sync(); err != nil {
			return err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		dstSum := sha256.New()
		if _, err := io.Copy(dstSum, f); err != nil {
			return fmt.Errorf("read back copy: %w", err)
		}
		if !bytes.Equal(srcSum.Sum(nil), dstSum.Sum(nil)) {
			return fmt.Errorf("checksum mismatch copying %s", src)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(srcSum.Sum(nil)), nil
}

// replace writes through a temp file in path's directory and renames it over
// path. The temp file is removed on any failure.
func replace(path string, mode os.FileMode, write func(*os.File) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Chmod(mode); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// ctxReader stops a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
