package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type syncBuf struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuf) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuf) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func waitFor(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

// TestContentLengthMultiByteDecoding verifies Content-Length is interpreted
// as a byte count, not a rune count, for multi-byte UTF-8 payloads.
func TestContentLengthMultiByteDecoding(t *testing.T) {
	body := []byte(`{"s":"你好世界"}`)
	frame := append([]byte("Content-Length: "+itoa(len(body))+"\r\n\r\n"), body...)

	var got []json.RawMessage
	var mu sync.Mutex
	var errs []error

	tr := New(bytes.NewReader(frame), io.Discard)
	tr.OnMessage(func(raw json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, raw)
	})
	tr.OnError(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	})
	require.NoError(t, tr.Start(context.Background()))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, errs)
	var decoded struct {
		S string `json:"s"`
	}
	require.NoError(t, json.Unmarshal(got[0], &decoded))
	require.Equal(t, "你好世界", decoded.S)
}

func TestNewlineFramingIgnoresBlankLines(t *testing.T) {
	in := "\n{\"a\":1}\n\n{\"a\":2}\n"
	var got []json.RawMessage
	var mu sync.Mutex

	tr := New(bytes.NewReader([]byte(in)), io.Discard)
	tr.OnMessage(func(raw json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, raw)
	})
	require.NoError(t, tr.Start(context.Background()))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
}

func TestMalformedFrameDoesNotKillSession(t *testing.T) {
	in := "{not json}\n{\"ok\":true}\n"
	var got []json.RawMessage
	var errCount int
	var mu sync.Mutex

	tr := New(bytes.NewReader([]byte(in)), io.Discard)
	tr.OnMessage(func(raw json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, raw)
	})
	tr.OnError(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errCount++
	})
	require.NoError(t, tr.Start(context.Background()))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && errCount == 1
	})
}

func TestMalformedContentLengthSkipsHeaderLineOnly(t *testing.T) {
	in := "Content-Length: notanumber\r\n\r\n{\"a\":1}\n"
	var got []json.RawMessage
	var mu sync.Mutex

	tr := New(bytes.NewReader([]byte(in)), io.Discard)
	tr.OnMessage(func(raw json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, raw)
	})
	require.NoError(t, tr.Start(context.Background()))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
}

func TestSendContentLengthFraming(t *testing.T) {
	out := &syncBuf{}
	tr := New(bytes.NewReader(nil), out, WithOutputFraming(FramingContentLength))
	require.NoError(t, tr.Send(context.Background(), map[string]any{"hello": "世界"}))

	expectedBody, _ := json.Marshal(map[string]any{"hello": "世界"})
	want := "Content-Length: " + itoa(len(expectedBody)) + "\r\n\r\n" + string(expectedBody)
	require.Equal(t, want, out.String())
}

func TestSendNewlineFraming(t *testing.T) {
	out := &syncBuf{}
	tr := New(bytes.NewReader(nil), out, WithOutputFraming(FramingNewline))
	require.NoError(t, tr.Send(context.Background(), map[string]any{"x": 1}))
	require.Equal(t, "{\"x\":1}\n", out.String())
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	out := &syncBuf{}
	tr := New(bytes.NewReader(nil), out)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Send(context.Background(), map[string]any{"x": 1}))
	require.Empty(t, out.String())
}

func TestStartTwiceFails(t *testing.T) {
	tr := New(bytes.NewReader(nil), io.Discard)
	require.NoError(t, tr.Start(context.Background()))
	err := tr.Start(context.Background())
	require.Error(t, err)
	require.EqualError(t, err, "transport already started")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
