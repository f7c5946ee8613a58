package backend

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// maxEventSize bounds a single SSE line. Tool output can make parts large.
const maxEventSize = 1 << 20

// sseStream reads "data:" frames from a text/event-stream body.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &sseStream{body: body, scanner: scanner}
}

// Next returns the next event the bridge acts on, skipping comments,
// keep-alives, ignored event types and frames that fail to decode.
func (s *sseStream) Next() (Event, error) {
	var dataLines []string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line != "" {
			if strings.HasPrefix(line, "data:") {
				dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
			continue
		}

		// Blank line ends the frame.
		if len(dataLines) == 0 {
			continue
		}
		data := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]

		ev, err := ParseEvent([]byte(data))
		if err != nil {
			slog.Debug("backend: skipping malformed event", "err", err)
			continue
		}
		if ev != nil {
			return ev, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	return nil, ErrStreamClosed
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
