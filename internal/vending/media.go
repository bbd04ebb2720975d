package vending

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MediaRefs builds object-storage URLs for snapshots and clips attached
// to events. Nothing is uploaded.
type MediaRefs struct {
	baseURL  string
	deviceNo string
	now      func() time.Time
}

// NewMediaRefs returns a builder rooted at baseURL.
func NewMediaRefs(baseURL, deviceNo string, now func() time.Time) MediaRefs {
	if now == nil {
		now = time.Now
	}
	return MediaRefs{
		baseURL:  strings.TrimRight(baseURL, "/"),
		deviceNo: deviceNo,
		now:      now,
	}
}

// Image returns a JPEG reference for kind, e.g. "dispense" or "jam".
//
// Example: https://oss.example.com/VM-BJ-001/jam_1718000000000_3f2a9c1e.jpg
func (m MediaRefs) Image(kind string) string {
	return m.url(kind, "jpg")
}

// Video returns an MP4 reference for kind.
func (m MediaRefs) Video(kind string) string {
	return m.url(kind, "mp4")
}

func (m MediaRefs) url(kind, ext string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s/%s/%s_%d_%s.%s", m.baseURL, m.deviceNo, kind, m.now().UnixMilli(), token, ext)
}
