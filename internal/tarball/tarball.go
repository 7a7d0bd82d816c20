// Package tarball builds and extracts the plain tar archives the
// sender transmits and the receiver reassembles. The tar format is an
// opaque container from the protocol's point of view: any reader that
// can extract a GNU tar stream can consume what this package produces.
package tarball

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Build writes a tar archive at destPath containing every relative
// path in files, resolved against root. It returns the subset of
// files actually included (a path vanishing between walk and archive
// time — e.g. deleted mid-cycle — is skipped rather than failing the
// whole cycle).
func Build(root string, files []string, destPath string) ([]string, error) {
	out, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("tarball: create %s: %w", destPath, err)
	}
	defer out.Close()

	tw := tar.NewWriter(out)
	defer tw.Close()

	included := make([]string, 0, len(files))
	for _, rel := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := addFile(tw, abs, rel); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		included = append(included, rel)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("tarball: finalize %s: %w", destPath, err)
	}
	return included, nil
}

func addFile(tw *tar.Writer, abs, rel string) error {
	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("tarball: stat %s: %w", abs, err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tarball: header for %s: %w", abs, err)
	}
	hdr.Name = filepath.ToSlash(rel)
	hdr.Format = tar.FormatGNU

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("tarball: write header for %s: %w", rel, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("tarball: write body for %s: %w", rel, err)
	}
	return nil
}

// Extract unpacks archivePath into destRoot, creating parent
// directories as needed. Entries that would escape destRoot via ".."
// are rejected rather than silently dropped, since a diode receiver
// has no trusted sender identity to fall back on.
func Extract(archivePath, destRoot string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("tarball: open %s: %w", archivePath, err)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tarball: read entry in %s: %w", archivePath, err)
		}

		target, err := safeJoin(destRoot, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("tarball: mkdir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("tarball: mkdir %s: %w", filepath.Dir(target), err)
			}
			if err := extractFile(tr, target, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		default:
			// Symlinks, devices, etc. have no place in a folder sync.
			continue
		}
	}
}

func extractFile(r io.Reader, target string, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("tarball: create %s: %w", target, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("tarball: write %s: %w", target, err)
	}
	return nil
}

func safeJoin(root, name string) (string, error) {
	joined := filepath.Join(root, filepath.FromSlash(name))
	if joined != root && !strings.HasPrefix(joined, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("tarball: entry %q escapes destination root", name)
	}
	return joined, nil
}
