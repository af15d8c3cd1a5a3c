package downloader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// placeFile moves a finished track to dst, replacing any previous copy. A plain
// rename is tried first; across filesystems the file is copied into a hidden
// temp file next to dst and renamed over it, so readers never see a partial track.
func placeFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tunefetch-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	discard := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	if _, err := io.Copy(tmp, in); err != nil {
		discard()
		return fmt.Errorf("copy track: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		discard()
		return fmt.Errorf("chmod track: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		discard()
		return fmt.Errorf("sync track: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close track: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("move into place: %w", err)
	}
	return nil
}

const unknownSizeLogStep = 8 << 20

// uploadProgress logs each quarter of a known-size upload once. Uploads of
// unknown size log every unknownSizeLogStep bytes.
func uploadProgress(logger *logrus.Entry) func(done, total int64) {
	var lastQuarter int64 = -1
	var lastLogged int64
	return func(done, total int64) {
		if total <= 0 {
			if done-lastLogged < unknownSizeLogStep {
				return
			}
			lastLogged = done
			logger.Infof("upload progress: %s sent", humanize.IBytes(uint64(done)))
			return
		}

		quarter := done * 4 / total
		if quarter <= lastQuarter {
			return
		}
		lastQuarter = quarter
		logger.Infof("upload progress: %d%% (%s of %s)", quarter*25, humanize.IBytes(uint64(done)), humanize.IBytes(uint64(total)))
	}
}
