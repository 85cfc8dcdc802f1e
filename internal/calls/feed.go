package calls

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ReadFeed streams JSON-lines call events from r. Blank lines are skipped.
// A malformed line is an error; dropped events would leave permanent gaps
// behind the watermark.
func ReadFeed(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if ev.ID <= 0 {
			return nil, fmt.Errorf("line %d: event id must be positive", line)
		}
		if ev.OccurredAt.IsZero() {
			return nil, fmt.Errorf("line %d: event %d has no occurred_at", line, ev.ID)
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

// ReadFeedFile opens path and reads it with ReadFeed.
func ReadFeedFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadFeed(f)
}
