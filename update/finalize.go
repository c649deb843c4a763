package update

import (
	"fmt"
	"log/slog"
)

// finalize commits the image once the final chunk has been written. Storage
// performs its own integrity check; a rejected commit fails the session and
// the device keeps running the current firmware.
func (s *Session) finalize() {
	size := s.writer.written
	if err := s.storage.Commit(size); err != nil {
		s.fail(CommitFailed, fmt.Errorf("%w: %w", ErrCommitFailed, err))
		return
	}
	s.finished = s.now()
	s.event(eventCommit)
	s.logger.Info("ota:success",
		slog.String("session", s.id.String()),
		slog.Uint64("bytes", uint64(size)),
		slog.Duration("took", s.finished.Sub(s.started)),
	)
	if s.trigger != nil {
		s.trigger.Schedule()
	}
}
