// Package archive packages a staging directory into a zip file.
package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// Result describes a written archive.
type Result struct {
	Path    string
	Entries int
	Size    int64
}

// ZipDir writes every regular file below root/dir into dest. Entry names are
// relative to root, so extracting the archive recreates dir itself. The
// archive is closed and synced before ZipDir returns.
func ZipDir(root, dir, dest string) (*Result, error) {
	src := filepath.Join(root, dir)

	out, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	zw := zip.NewWriter(out)
	entries := 0

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if err := addFile(zw, path, filepath.ToSlash(rel)); err != nil {
			return err
		}
		entries++
		return nil
	})
	if walkErr != nil {
		zw.Close()
		out.Close()
		os.Remove(dest)
		return nil, fmt.Errorf("walk %s: %w", src, walkErr)
	}

	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(dest)
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return nil, fmt.Errorf("sync archive: %w", err)
	}

	info, err := out.Stat()
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}

	return &Result{Path: dest, Entries: entries, Size: info.Size()}, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
