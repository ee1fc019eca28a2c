package testutil

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// SSEEvent is one parsed server-sent event data frame.
type SSEEvent struct {
	Raw  string // the data payload, verbatim
	Done bool   // true for the terminal [DONE] frame
}

// Content unmarshals the payload as a {"content": ...} frame.
func (e SSEEvent) Content() (string, error) {
	var frame struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(e.Raw), &frame); err != nil {
		return "", fmt.Errorf("parsing SSE frame %q: %w", e.Raw, err)
	}
	return frame.Content, nil
}

// ParseSSE reads a server-sent event stream and returns its data frames.
func ParseSSE(r io.Reader) ([]SSEEvent, error) {
	var events []SSEEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			return nil, fmt.Errorf("malformed SSE line %q", line)
		}
		events = append(events, SSEEvent{
			Raw:  payload,
			Done: payload == "[DONE]",
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading SSE stream: %w", err)
	}
	return events, nil
}
