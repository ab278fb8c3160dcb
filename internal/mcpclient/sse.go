package mcpclient

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

// readSSEFrames scans r for Server-Sent-Events frames, invoking onFrame
// with the reassembled "data:" payload of each one. A frame ends at the
// first blank line (spec §4.1 "dual transport" — SSE framing). Frames
// whose payload is a JSON array are a micro-batch of messages; onFrame
// receives the payload verbatim and lets the caller decide.
func readSSEFrames(r io.Reader, onFrame func(data []byte) error) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	var dataLines [][]byte
	flush := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		payload := bytes.Join(dataLines, []byte("\n"))
		dataLines = dataLines[:0]
		return onFrame(payload)
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		trimmed := bytes.TrimRight(line, "\r")

		if len(trimmed) == 0 {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if bytes.HasPrefix(trimmed, []byte(":")) {
			continue // comment/keepalive line
		}
		if after, ok := cutPrefix(trimmed, []byte("data:")); ok {
			dataLines = append(dataLines, bytes.TrimPrefix(after, []byte(" ")))
			continue
		}
		// event:, id:, retry: and any other SSE field are irrelevant to
		// MCP's use of the stream; only "data:" carries JSON-RPC payload.
	}
	if err := flush(); err != nil {
		return err
	}
	return scanner.Err()
}

func cutPrefix(s, prefix []byte) ([]byte, bool) {
	if !bytes.HasPrefix(s, prefix) {
		return nil, false
	}
	return s[len(prefix):], true
}

// decodeFrame parses a single SSE data payload as either one JSON-RPC
// message or a JSON array micro-batch of them.
func decodeFrame(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return []json.RawMessage{trimmed}, nil
}
