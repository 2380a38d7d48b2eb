// Package submit delivers a confirmed record to its destination.
package submit

import (
	"context"
	"log/slog"

	"github.com/tbxark/formcopilot/types"
)

// LogSubmitter records the submission in the log and nothing else.
type LogSubmitter struct {
	logger *slog.Logger
}

func NewLogSubmitter(logger *slog.Logger) *LogSubmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSubmitter{logger: logger}
}

func (s *LogSubmitter) Submit(ctx context.Context, record types.Record) error {
	s.logger.InfoContext(ctx, "Form submitted",
		"name", record.Name,
		"email", record.Email,
		"profile_url", record.ProfileURL,
		"idea", record.Idea,
	)
	return nil
}
