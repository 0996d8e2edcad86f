package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"ovpnadmin/internal/models"
)

// MaxCCDSize bounds a single client-config-dir file.
const MaxCCDSize = 64 << 10

// CCDService manages per-client OpenVPN config fragments, one file per CN.
type CCDService struct {
	dir   string
	cn    *regexp.Regexp
	audit Auditor
}

func NewCCDService(dir string, cn *regexp.Regexp, audit Auditor) *CCDService {
	return &CCDService{dir: dir, cn: cn, audit: audit}
}

// Read returns the file for cn, or "" when none exists.
func (s *CCDService) Read(cn string) (string, error) {
	if !s.cn.MatchString(cn) {
		return "", ErrInvalidCN
	}
	data, err := os.ReadFile(filepath.Join(s.dir, cn))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read ccd: %w", err)
	}
	return string(data), nil
}

func (s *CCDService) Write(ctx context.Context, actor Actor, cn, content string) error {
	if !s.cn.MatchString(cn) {
		return ErrInvalidCN
	}
	if len(content) > MaxCCDSize {
		return ErrCCDTooLarge
	}
	if err := s.writeFile(cn, []byte(content)); err != nil {
		return err
	}
	s.audit.Record(ctx, actor.event(models.ActionCCDWrite, cn, map[string]int{"bytes": len(content)}))
	return nil
}

// writeFile replaces the file for cn via a temp file and rename so readers
// never observe a partial write.
func (s *CCDService) writeFile(cn string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create ccd dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+cn+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ccd: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync ccd: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close ccd: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, cn)); err != nil {
		return fmt.Errorf("failed to replace ccd: %w", err)
	}
	return nil
}
