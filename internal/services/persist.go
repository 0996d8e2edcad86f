package services

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ovpnadmin/internal/models"
)

// MaxArchiveSize bounds the decompressed size of an imported CCD archive.
const MaxArchiveSize = 8 << 20

// Export packs every CCD file into a tar.gz archive.
func (s *CCDService) Export() ([]byte, error) {
	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzWriter)

	entries, err := os.ReadDir(s.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to list ccd dir: %w", err)
	}

	for _, entry := range entries {
		// Skips directories and in-flight temp files.
		if !entry.Type().IsRegular() || !s.cn.MatchString(entry.Name()) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return nil, err
		}
		header.Name = entry.Name()

		if err := tarWriter.WriteHeader(header); err != nil {
			return nil, err
		}

		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(tarWriter, file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to create archive: %w", err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return nil, err
	}
	if err := gzWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Import restores CCD files from a tar.gz archive produced by Export. The
// whole archive is validated before any file is written. It returns the
// number of files written.
func (s *CCDService) Import(ctx context.Context, actor Actor, reader io.Reader) (int, error) {
	gzReader, err := gzip.NewReader(reader)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(io.LimitReader(gzReader, MaxArchiveSize))

	type file struct {
		cn   string
		data []byte
	}
	var files []file

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeReg:
		default:
			return 0, fmt.Errorf("%w: unsupported entry %s", ErrInvalidArchive, header.Name)
		}

		// Only flat CN-named entries are accepted, which also rules out
		// path traversal.
		if !s.cn.MatchString(header.Name) {
			return 0, fmt.Errorf("%w: %s", ErrInvalidCN, header.Name)
		}
		if header.Size > MaxCCDSize {
			return 0, fmt.Errorf("%w: %s", ErrCCDTooLarge, header.Name)
		}

		data, err := io.ReadAll(io.LimitReader(tarReader, MaxCCDSize+1))
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrInvalidArchive, header.Name, err)
		}
		if len(data) > MaxCCDSize {
			return 0, fmt.Errorf("%w: %s", ErrCCDTooLarge, header.Name)
		}
		files = append(files, file{cn: header.Name, data: data})
	}

	for i, f := range files {
		if err := s.writeFile(f.cn, f.data); err != nil {
			return i, err
		}
		s.audit.Record(ctx, actor.event(models.ActionCCDWrite, f.cn, map[string]any{
			"bytes":  len(f.data),
			"source": "import",
		}))
	}
	return len(files), nil
}
