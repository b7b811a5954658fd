package update

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	appErrors "cabplanner/internal/errors"
)

// driveLetterRe matches Windows drive-absolute entry names like "C:\evil".
var driveLetterRe = regexp.MustCompile(`^[a-zA-Z]:`)

// SafeExtract extracts a zip archive into targetDir, rejecting any entry
// whose resolved path would escape targetDir. All entries are validated
// before anything is written: a single illegal path means nothing is
// extracted. Both "/" and "\" are treated as separators since archives are
// untrusted cross-platform input.
func SafeExtract(archivePath, targetDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return appErrors.New(appErrors.CodeBadArchive, "open zip archive", err)
	}
	defer func() { _ = reader.Close() }()

	absTarget, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolve target directory: %w", err)
	}

	// Pre-scan pass: validate every entry before the first write.
	targets := make([]string, len(reader.File))
	for i, entry := range reader.File {
		dest, err := resolveEntryPath(absTarget, entry.Name)
		if err != nil {
			return err
		}
		targets[i] = dest
	}

	if err := os.MkdirAll(absTarget, 0o755); err != nil {
		return fmt.Errorf("create target directory: %w", err)
	}

	for i, entry := range reader.File {
		if err := extractEntry(entry, targets[i]); err != nil {
			return err
		}
	}
	return nil
}

// resolveEntryPath joins an archive entry name to the target directory and
// verifies the result stays a descendant of it.
func resolveEntryPath(absTarget, name string) (string, error) {
	normalized := strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(normalized, "/") || driveLetterRe.MatchString(normalized) {
		return "", appErrors.New(appErrors.CodeBadArchive,
			fmt.Sprintf("illegal path in zip: %s", name), nil)
	}

	cleaned := path.Clean(normalized)
	dest := filepath.Join(absTarget, filepath.FromSlash(cleaned))

	rel, err := filepath.Rel(absTarget, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", appErrors.New(appErrors.CodeBadArchive,
			fmt.Sprintf("illegal path in zip: %s", name), nil)
	}
	return dest, nil
}

func extractEntry(entry *zip.File, dest string) error {
	if entry.FileInfo().IsDir() {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dest, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent directory for %s: %w", dest, err)
	}

	in, err := entry.Open()
	if err != nil {
		return appErrors.New(appErrors.CodeBadArchive,
			fmt.Sprintf("read zip entry %s", entry.Name), err)
	}
	defer func() { _ = in.Close() }()

	mode := entry.Mode()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	return out.Close()
}

// FindExecutable locates the new application binary inside an extracted
// package tree. Empty files are rejected; a missing or empty binary means
// the package is unusable.
func FindExecutable(root, name string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || found != "" {
			return nil
		}
		if !strings.EqualFold(d.Name(), name) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() == 0 {
			return nil
		}
		found = p
		return fs.SkipAll
	})
	if err != nil {
		return "", fmt.Errorf("scan package tree: %w", err)
	}
	if found == "" {
		return "", appErrors.New(appErrors.CodeBadArchive,
			fmt.Sprintf("executable %s not found in package", name), nil)
	}
	return found, nil
}
