package domain

import (
	"fmt"
	"time"
)

// Cleanup phases delivered on the control channel, once per phase per day.
const (
	CleanupWarning1 = "warning_1"
	CleanupWarning2 = "warning_2"
	CleanupRun      = "cleanup"
)

var ErrInvalidCleanupCommand = fmt.Errorf("invalid cleanup command")

// CleanupCommand drives the staged room teardown for one date. Commands are
// idempotent: re-sending a warning is harmless and re-running cleanup on an
// already-deleted date is a no-op.
type CleanupCommand struct {
	Action string `json:"action"`
	Date   string `json:"date"`
}

func (c CleanupCommand) Validate() error {
	switch c.Action {
	case CleanupWarning1, CleanupWarning2, CleanupRun:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCleanupCommand, c.Action)
	}
	if c.Date == "" {
		return fmt.Errorf("%w: missing date", ErrInvalidCleanupCommand)
	}
	if _, err := time.Parse("2006-01-02", c.Date); err != nil {
		return fmt.Errorf("%w: bad date %q", ErrInvalidCleanupCommand, c.Date)
	}
	return nil
}
