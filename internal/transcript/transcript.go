// Package transcript reads token usage from the tail of an agent transcript
// (JSONL, one message per line) so the hook can report how much of the
// context window remains.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"
)

// TailMaxBytes bounds how much of a transcript is scanned.
const TailMaxBytes = 512 * 1024

// Usage is the newest usage block found in a transcript.
type Usage struct {
	InputTokens         int       `json:"input_tokens"`
	CacheCreationTokens int       `json:"cache_creation_input_tokens"`
	CacheReadTokens     int       `json:"cache_read_input_tokens"`
	Model               string    `json:"model,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// Total is the context occupied by the last request.
func (u Usage) Total() int {
	return u.InputTokens + u.CacheCreationTokens + u.CacheReadTokens
}

// RemainingPercent converts usage to percent of maxTokens still free,
// clamped to [0, 100]. It returns 0 when usage is unknown so callers can
// treat it as "not reported".
func (u Usage) RemainingPercent(maxTokens int) float64 {
	total := u.Total()
	if total <= 0 || maxTokens <= 0 {
		return 0
	}
	remaining := 100 - float64(total)*100/float64(maxTokens)
	switch {
	case remaining < 0:
		return 0
	case remaining > 100:
		return 100
	default:
		return remaining
	}
}

type lineEnvelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   struct {
		Model string          `json:"model"`
		Usage json.RawMessage `json:"usage"`
	} `json:"message"`
}

type usageEnvelope struct {
	InputTokens         int `json:"input_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens"`
	CacheReadTokens     int `json:"cache_read_input_tokens"`
}

// ReadUsage scans the transcript from the end and returns the newest
// non-empty usage block. Unparseable lines are skipped. A transcript without
// usage returns a zero Usage and a nil error.
func ReadUsage(path string) (Usage, error) {
	tail, err := readFileTail(path, TailMaxBytes)
	if err != nil {
		return Usage{}, err
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(tail))
	scanner.Buffer(make([]byte, 0, 64*1024), TailMaxBytes)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Usage{}, err
	}

	for i := len(lines) - 1; i >= 0; i-- {
		raw := strings.TrimSpace(lines[i])
		if raw == "" {
			continue
		}
		var entry lineEnvelope
		if err := json.Unmarshal([]byte(raw), &entry); err != nil || len(entry.Message.Usage) == 0 {
			continue
		}
		var u usageEnvelope
		if err := json.Unmarshal(entry.Message.Usage, &u); err != nil {
			continue
		}
		usage := Usage{
			InputTokens:         u.InputTokens,
			CacheCreationTokens: u.CacheCreationTokens,
			CacheReadTokens:     u.CacheReadTokens,
			Model:               entry.Message.Model,
			Timestamp:           parseTimestamp(entry.Timestamp),
		}
		if usage.Total() > 0 {
			return usage, nil
		}
	}
	return Usage{}, nil
}

// readFileTail returns at most maxBytes from the end of the file, starting at
// a line boundary.
func readFileTail(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return []byte{}, nil
	}

	start := int64(0)
	if size > maxBytes {
		start = size - maxBytes
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if start > 0 {
		if idx := bytes.IndexByte(data, '\n'); idx >= 0 && idx+1 < len(data) {
			data = data[idx+1:]
		}
	}
	return data, nil
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC()
	}
	return time.Time{}
}
