// Package transform unpacks a package archive, hands the extracted bundle to
// the signing operation and repacks the result.
package transform

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/prostore-ios/sideloader/pkg/sideload/model"
)

const payloadDirName = "Payload"

// Transformer handles the archive side of re-signing a package. Unpack and
// Repack report a monotonically increasing fraction in [0,1] through
// onProgress; callers remap it into their own scale.
type Transformer interface {
	Unpack(ctx context.Context, archivePath string, destDir string, onProgress func(float64)) error
	LocateBundle(destDir string) (string, error)
	Repack(ctx context.Context, sourceDir string, destArchive string, onProgress func(float64)) error
}

type _Transformer struct {
}

func NewTransformer() *_Transformer {
	return &_Transformer{}
}

func (t *_Transformer) Unpack(ctx context.Context, archivePath string, destDir string, onProgress func(float64)) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("fail to open archive %s: %s%w", archivePath, err.Error(), model.ErrInvalidParameter)
	}
	defer reader.Close()

	var totalBytes uint64
	for _, f := range reader.File {
		totalBytes += f.UncompressedSize64
	}

	var doneBytes uint64
	for _, f := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := extractEntry(f, destDir); err != nil {
			return err
		}
		doneBytes += f.UncompressedSize64
		if onProgress != nil && totalBytes > 0 {
			onProgress(float64(doneBytes) / float64(totalBytes))
		}
	}
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}

func extractEntry(f *zip.File, destDir string) error {
	destPath := filepath.Join(destDir, filepath.FromSlash(f.Name))
	// Reject entries escaping the destination directory.
	if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return fmt.Errorf("archive entry %s escapes destination%w", f.Name, model.ErrInvalidParameter)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(destPath, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("fail to MkdirAll(%s): %w", filepath.Dir(destPath), err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("fail to open archive entry %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0o600)
	if err != nil {
		return fmt.Errorf("fail to create %s: %w", destPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("fail to extract %s: %w", f.Name, err)
	}
	return nil
}

// LocateBundle returns the single application bundle root under
// destDir/Payload. Zero or multiple bundle roots fail with ErrNoUniqueBundle.
func (t *_Transformer) LocateBundle(destDir string) (string, error) {
	entries, err := os.ReadDir(filepath.Join(destDir, payloadDirName))
	if err != nil {
		return "", fmt.Errorf("no %s directory in unpacked archive%w", payloadDirName, model.ErrNoUniqueBundle)
	}

	bundles := make([]string, 0, 1)
	for _, entry := range entries {
		if entry.IsDir() && strings.HasSuffix(entry.Name(), ".app") {
			bundles = append(bundles, filepath.Join(destDir, payloadDirName, entry.Name()))
		}
	}

	if len(bundles) == 0 {
		return "", fmt.Errorf("no application bundle in unpacked archive%w", model.ErrNoUniqueBundle)
	}
	if len(bundles) > 1 {
		return "", fmt.Errorf("%d application bundles in unpacked archive%w", len(bundles), model.ErrNoUniqueBundle)
	}
	return bundles[0], nil
}

func (t *_Transformer) Repack(ctx context.Context, sourceDir string, destArchive string, onProgress func(float64)) error {
	var totalBytes int64
	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		totalBytes += info.Size()
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail to walk %s: %w", sourceDir, err)
	}

	destFile, err := os.Create(destArchive)
	if err != nil {
		return fmt.Errorf("fail to create %s: %w", destArchive, err)
	}
	defer destFile.Close()

	writer := zip.NewWriter(destFile)
	var doneBytes int64
	err = filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		header.Method = zip.Deflate

		dst, err := writer.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		if _, err := io.Copy(dst, src); err != nil {
			return err
		}

		doneBytes += info.Size()
		if onProgress != nil && totalBytes > 0 {
			onProgress(float64(doneBytes) / float64(totalBytes))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail to repack %s: %w", sourceDir, err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("fail to finalize %s: %w", destArchive, err)
	}
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}
