package rod

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

const snapshotMaxWidth = 1024

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SetSnapshotDir changes where Snapshot writes; the default is ./log.
func (d *Document) SetSnapshotDir(dir string) {
	d.snapshotDir = dir
}

// Snapshot captures the viewport, downscales it and saves a JPEG named after
// reason. It returns the written path.
func (d *Document) Snapshot(ctx context.Context, reason string) (string, error) {
	raw, err := d.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return "", fmt.Errorf("screenshot failed: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("image decode failed: %w", err)
	}
	if img.Bounds().Dx() > snapshotMaxWidth {
		img = imaging.Resize(img, snapshotMaxWidth, 0, imaging.Lanczos)
	}

	if err := os.MkdirAll(d.snapshotDir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.jpg", time.Now().Format("2006-01-02_15-04-05.000"), unsafeName.ReplaceAllString(reason, "_"))
	path := filepath.Join(d.snapshotDir, name)

	if err := imaging.Save(img, path, imaging.JPEGQuality(75)); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	return path, nil
}
