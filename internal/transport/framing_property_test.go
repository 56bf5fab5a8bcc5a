package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestFramingRoundTrip checks that for every JSON object J, decoding an
// encoded frame reproduces J, under both output framings.
func TestFramingRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	jsonObject := gen.MapOf(
		gen.AlphaString(),
		gen.OneGenOf(gen.AlphaString(), gen.Int(), gen.Bool()),
	).Map(func(m map[string]any) map[string]any { return m })

	properties.Property("content-length round-trip", prop.ForAll(
		func(m map[string]any) bool {
			return roundTrips(t, m, FramingContentLength)
		},
		jsonObject,
	))

	properties.Property("newline round-trip", prop.ForAll(
		func(m map[string]any) bool {
			return roundTrips(t, m, FramingNewline)
		},
		jsonObject,
	))

	properties.TestingRun(t)
}

func roundTrips(t *testing.T, m map[string]any, framing OutputFraming) bool {
	t.Helper()

	var out bytes.Buffer
	var mu sync.Mutex
	sender := New(bytes.NewReader(nil), &out, WithOutputFraming(framing))
	if err := sender.Send(context.Background(), m); err != nil {
		return false
	}

	var got []json.RawMessage
	receiver := New(bytes.NewReader(out.Bytes()), &discardWriter{})
	receiver.OnMessage(func(raw json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, raw)
	})
	if err := receiver.Start(context.Background()); err != nil {
		return false
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		return false
	}
	var decoded map[string]any
	if err := json.Unmarshal(got[0], &decoded); err != nil {
		return false
	}
	if len(decoded) != len(m) {
		return false
	}
	for k, v := range m {
		dv, ok := decoded[k]
		if !ok {
			return false
		}
		switch vv := v.(type) {
		case int:
			f, ok := dv.(float64)
			if !ok || f != float64(vv) {
				return false
			}
		default:
			if dv != v {
				return false
			}
		}
	}
	return true
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
