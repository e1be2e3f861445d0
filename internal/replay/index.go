package replay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"rtmonitor/internal/catalog"
	"rtmonitor/internal/feed"
)

// Recorder stores catalog entries. *catalog.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, e catalog.Entry) error
}

// Index records every capture the cursor yields. Captures that fail to
// decode are still recorded, with no entities. It returns the number of
// entries recorded; reaching the end of the window is not an error.
func Index(ctx context.Context, c *Cursor, rec Recorder, moduleID string) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		cp, err := c.Next()
		if errors.Is(err, ErrFinished) {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		raw, err := os.ReadFile(cp.Path)
		if err != nil {
			return n, fmt.Errorf("read capture: %w", err)
		}
		res, err := feed.Decode(raw)
		if err != nil {
			log.Printf("index: %s: %v", cp.Path, err)
		}
		e := catalog.Entry{
			Filename:      cp.Name,
			Filepath:      cp.Filepath,
			Epoch:         cp.Epoch,
			FeedTimestamp: res.Timestamp,
			Entities:      len(res.Entities),
			Bytes:         len(raw),
			ModuleID:      moduleID,
		}
		if err := rec.Record(ctx, e); err != nil {
			return n, err
		}
		n++
	}
}
