package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"

	"isites_migrator/internal/domain"
)

var (
	errOutsideStaging = errors.New("path escapes staging tree")
	errInvalidName    = errors.New("not a usable file name")
)

// materialize writes the files and texts of a plan below root. Problems with
// single files are logged and counted; only context cancellation aborts.
func (s *ExportService) materialize(ctx context.Context, logger *slog.Logger, root string, plan *domain.CoursePlan, stats *domain.ExportStats) error {
	for _, unit := range plan.Units {
		unitLogger := logger.With("topic_id", unit.Topic.ID, "unit_dir", unit.Dir)

		for _, file := range unit.Files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := copyFileNode(root, unit, file); err != nil {
				stats.SkippedFiles++
				unitLogger.Error("skipping file",
					"file_node_id", file.ID,
					"file_name", file.FileName,
					"error", err,
				)
				continue
			}
			stats.Files++
		}

		for _, text := range unit.Texts {
			if err := writeText(root, unit, text); err != nil {
				stats.SkippedFiles++
				unitLogger.Error("skipping text", "text_id", text.ID, "name", text.Name, "error", err)
				continue
			}
			stats.Texts++
		}
	}
	return nil
}

func copyFileNode(root string, unit domain.UnitPlan, file domain.FileNode) error {
	src, err := file.SourcePath(unit.Repository)
	if err != nil {
		return err
	}

	dest, err := stagingPath(root, unit.Dir, file.FilePath, file.FileName)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	var r io.Reader = in
	if file.Gzipped() {
		gz, err := gzip.NewReader(in)
		if err != nil {
			return fmt.Errorf("open gzip stream %s: %w", src, err)
		}
		defer gz.Close()
		r = gz
	}

	return writeFile(dest, r)
}

func writeText(root string, unit domain.UnitPlan, text domain.TopicText) error {
	dest, err := stagingPath(root, unit.Dir, "", text.Name)
	if err != nil {
		return err
	}
	return writeFile(dest, strings.NewReader(strings.ToValidUTF8(text.SourceText, "\uFFFD")))
}

func writeFile(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("copy to %s: %w", dest, err)
	}
	return out.Close()
}

// stagingPath returns root/unitDir/relDir/name. The result must lie strictly
// below root/unitDir and name must name a file: empty names, "." and ".."
// elements are rejected.
func stagingPath(root, unitDir, relDir, name string) (string, error) {
	elems := strings.Split(strings.Trim(filepath.ToSlash(name), "/"), "/")
	if base := elems[len(elems)-1]; base == "" || base == "." {
		return "", fmt.Errorf("%q: %w", name, errInvalidName)
	}
	if slices.Contains(elems, "..") {
		return "", fmt.Errorf("%q: %w", name, errInvalidName)
	}

	unitRoot := filepath.Join(root, unitDir)
	dest := filepath.Join(unitRoot, strings.TrimLeft(relDir, "/"), name)
	rel, err := filepath.Rel(unitRoot, dest)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", dest, errOutsideStaging)
	}
	return dest, nil
}
