// Package capture names raw feed captures and writes them durably to the
// archive, secondary and monitor directory trees.
package capture

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	dayLayout   = "2006/01/02"
	stampLayout = "2006-01-02-15-04-05"
)

// Identity locates a capture: Path is the local calendar subdirectory
// (YYYY/MM/DD) and Name the suffix-less filename {epoch}_{YYYY-MM-DD-HH-mm-ss}.
// Within one fixed-width epoch era, Names sort lexically in capture order.
type Identity struct {
	Epoch int64
	Path  string
	Name  string
}

// NewIdentity builds the identity for a capture taken at t, using loc for
// the calendar parts.
func NewIdentity(t time.Time, loc *time.Location) Identity {
	local := t.In(loc)
	epoch := t.Unix()
	return Identity{
		Epoch: epoch,
		Path:  local.Format(dayLayout),
		Name:  strconv.FormatInt(epoch, 10) + "_" + local.Format(stampLayout),
	}
}

// File returns the archive-relative file path for the given suffix.
func (id Identity) File(suffix string) string {
	return path.Join(id.Path, id.Name+suffix)
}

// DayPath returns the calendar subdirectory for a local day.
func DayPath(day time.Time) string {
	return day.Format(dayLayout)
}

// ParseEpoch extracts the epoch prefix of a capture filename.
func ParseEpoch(filename string) (int64, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("capture filename %q: missing epoch separator", filename)
	}
	epoch, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("capture filename %q: %w", filename, err)
	}
	return epoch, nil
}
