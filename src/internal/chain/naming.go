package chain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DateLayout is the date embedded in default report names.
const DateLayout = "2006-01-02"

// DefaultOutputPath names a report after the calendar day of now. Two runs
// on the same day share a name and the later one overwrites the earlier.
func DefaultOutputPath(prefix, ext string, now time.Time) string {
	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("%s_%s.%s", prefix, now.Format(DateLayout), ext)
}

// OutputPath returns explicit when set, otherwise the dated default inside
// dir.
func OutputPath(explicit, dir, prefix, ext string, now time.Time) string {
	if explicit != "" {
		return explicit
	}
	name := DefaultOutputPath(prefix, ext, now)
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// ParseOutputDate recovers the date from a name built by DefaultOutputPath.
func ParseOutputDate(path, prefix string) (time.Time, error) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if !strings.HasPrefix(base, prefix+"_") {
		return time.Time{}, fmt.Errorf("%q does not start with %q", path, prefix+"_")
	}
	return time.Parse(DateLayout, strings.TrimPrefix(base, prefix+"_"))
}
