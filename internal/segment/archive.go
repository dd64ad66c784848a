package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Archive is the flat directory of segment files. It is append-only from the
// recorder's viewpoint and read-only from consumers', so enumeration takes no
// locks.
type Archive struct {
	// Dir is the archive directory (INGEST_DATADIR).
	Dir string
}

// NewArchive returns an Archive rooted at dir.
func NewArchive(dir string) Archive {
	return Archive{Dir: dir}
}

// TmpDir returns the transient working directory used by the segmenter.
func (a Archive) TmpDir() string {
	return filepath.Join(a.Dir, "tmp")
}

// TimelinesDir returns the directory holding persisted timeline windows.
func (a Archive) TimelinesDir() string {
	return filepath.Join(a.Dir, "timelines")
}

// Segments enumerates the archive ordered by begin time. The fixed filename
// format makes lexicographic basename order equivalent to begin order.
// Files that do not match the segment grammar are skipped.
func (a Archive) Segments() ([]Segment, error) {
	entries, err := os.ReadDir(a.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading archive %s: %w", a.Dir, err)
	}

	holes := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, HoleSuffix) {
			holes[strings.TrimSuffix(name, HoleSuffix)] = true
			continue
		}
		if nameRe.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	segs := make([]Segment, 0, len(names))
	for _, name := range names {
		seg, err := Parse(filepath.Join(a.Dir, name))
		if err != nil {
			return nil, err
		}
		seg.Hole = holes[name]
		segs = append(segs, seg)
	}
	return segs, nil
}
