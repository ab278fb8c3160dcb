package mcpclient

import (
	"strings"
	"testing"
)

func TestReadSSEFramesSplitsOnBlankLine(t *testing.T) {
	input := "data: {\"a\":1}\n\ndata: {\"a\":2}\n\n"
	var frames [][]byte
	err := readSSEFrames(strings.NewReader(input), func(data []byte) error {
		frames = append(frames, append([]byte(nil), data...))
		return nil
	})
	if err != nil {
		t.Fatalf("readSSEFrames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if string(frames[0]) != `{"a":1}` || string(frames[1]) != `{"a":2}` {
		t.Fatalf("unexpected frame contents: %q %q", frames[0], frames[1])
	}
}

func TestReadSSEFramesJoinsMultilineData(t *testing.T) {
	input := "data: line1\ndata: line2\n\n"
	var frames [][]byte
	err := readSSEFrames(strings.NewReader(input), func(data []byte) error {
		frames = append(frames, append([]byte(nil), data...))
		return nil
	})
	if err != nil {
		t.Fatalf("readSSEFrames: %v", err)
	}
	if len(frames) != 1 || string(frames[0]) != "line1\nline2" {
		t.Fatalf("expected joined multiline frame, got %q", frames)
	}
}

func TestReadSSEFramesSkipsCommentLines(t *testing.T) {
	input := ": keepalive\ndata: {\"a\":1}\n\n"
	var frames [][]byte
	err := readSSEFrames(strings.NewReader(input), func(data []byte) error {
		frames = append(frames, append([]byte(nil), data...))
		return nil
	})
	if err != nil {
		t.Fatalf("readSSEFrames: %v", err)
	}
	if len(frames) != 1 || string(frames[0]) != `{"a":1}` {
		t.Fatalf("unexpected frames: %q", frames)
	}
}

func TestDecodeFrameHandlesSingleMessageAndArrayMicroBatch(t *testing.T) {
	single, err := decodeFrame([]byte(`{"jsonrpc":"2.0","id":"1","result":{}}`))
	if err != nil {
		t.Fatalf("decode single: %v", err)
	}
	if len(single) != 1 {
		t.Fatalf("expected 1 message, got %d", len(single))
	}

	batch, err := decodeFrame([]byte(`[{"jsonrpc":"2.0","id":"1"},{"jsonrpc":"2.0","id":"2"}]`))
	if err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 messages in micro-batch, got %d", len(batch))
	}
}

func TestDecodeFrameSkipsEmptyPayload(t *testing.T) {
	msgs, err := decodeFrame([]byte("   "))
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if msgs != nil {
		t.Fatalf("expected nil for empty payload, got %v", msgs)
	}
}
