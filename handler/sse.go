package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"weather-chat/internal/domain"
	"weather-chat/internal/usecase"
)

const msgSerializationFailed = "Failed to process response. Please try again."

// sseWriter writes stream events as "data: <json>\n\n" frames.
type sseWriter struct {
	w      io.Writer
	flush  func()
	logger *slog.Logger
}

func newSSEWriter(w io.Writer, flush func(), logger *slog.Logger) *sseWriter {
	if flush == nil {
		flush = func() {}
	}
	return &sseWriter{w: w, flush: flush, logger: logger}
}

// Emit writes one event. An event that cannot be encoded is replaced by a
// generic error event and ends the stream.
func (s *sseWriter) Emit(ev domain.StreamEvent) error {
	buf, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to encode stream event", "type", ev.Type, "err", err)
		buf, _ = json.Marshal(domain.ErrorEvent(msgSerializationFailed))
		if writeErr := s.write(buf); writeErr != nil {
			return writeErr
		}
		return fmt.Errorf("%w: %w", usecase.ErrEventEncoding, err)
	}
	return s.write(buf)
}

func (s *sseWriter) write(buf []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", buf); err != nil {
		return fmt.Errorf("handler: write event: %w", err)
	}
	s.flush()
	return nil
}
