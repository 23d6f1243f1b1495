package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false // Disable colors for easier testing
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}

	return buf, cleanup
}

// ============================================================================
// Level Filtering Tests
// ============================================================================

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		output := buf.String()
		assert.Contains(t, output, "DEBUG")
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "WARN")
		assert.Contains(t, output, "ERROR")
		assert.Contains(t, output, "debug message")
		assert.Contains(t, output, "info message")
		assert.Contains(t, output, "warn message")
		assert.Contains(t, output, "error message")
	})

	t.Run("InfoLevelFiltersDebug", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		output := buf.String()
		assert.NotContains(t, output, "DEBUG")
		assert.NotContains(t, output, "debug message")
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "WARN")
		assert.Contains(t, output, "ERROR")
	})

	t.Run("ErrorLevelShowsOnlyErrors", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("ERROR")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		output := buf.String()
		assert.NotContains(t, output, "DEBUG")
		assert.NotContains(t, output, "INFO")
		assert.NotContains(t, output, "WARN")
		assert.Contains(t, output, "ERROR")
		assert.Contains(t, output, "error message")
	})
}

// ============================================================================
// SetLevel Tests
// ============================================================================

func TestSetLevel(t *testing.T) {
	t.Run("SetLevelChangesFilteringBehavior", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("ERROR")
		Info("should not appear")
		buf.Reset()

		SetLevel("INFO")
		Info("should appear")

		output := buf.String()
		assert.Contains(t, output, "should appear")
		assert.NotContains(t, output, "should not appear")
	})

	t.Run("SetLevelIsCaseInsensitive", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("debug")
		Debug("test message")
		assert.Contains(t, buf.String(), "test message")

		buf.Reset()
		SetLevel("DeBuG")
		Debug("test message 2")
		assert.Contains(t, buf.String(), "test message 2")
	})

	t.Run("SetLevelIgnoresInvalidValues", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Info("info message")
		output1 := buf.String()
		assert.Contains(t, output1, "INFO")
		buf.Reset()

		// Invalid level should leave filtering unchanged
		SetLevel("INVALID")
		Debug("debug message")
		Info("info message 2")

		output2 := buf.String()
		assert.NotContains(t, output2, "debug message")
		assert.Contains(t, output2, "info message 2")
	})
}

// ============================================================================
// Message Formatting Tests
// ============================================================================

func TestMessageFormatting(t *testing.T) {
	t.Run("FormatsMessagesWithTimestamp", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Info("test message")

		output := buf.String()
		assert.Regexp(t, `\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\]`, output)
	})

	t.Run("FormatsMessagesWithStructuredFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Info("session created", "audience", "private-sessions", "recipients", 3)

		output := buf.String()
		assert.Contains(t, output, "session created")
		assert.Contains(t, output, "audience=private-sessions")
		assert.Contains(t, output, "recipients=3")
	})

	t.Run("HandlesEmptyMessages", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Info("")

		output := buf.String()
		assert.Contains(t, output, "[INFO]")
	})
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestConcurrentLogging(t *testing.T) {
	t.Run("ConcurrentLogsDoNotRace", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")

		const numGoroutines = 10
		const logsPerGoroutine = 100

		var wg sync.WaitGroup
		wg.Add(numGoroutines)

		for i := 0; i < numGoroutines; i++ {
			go func(id int) {
				defer wg.Done()
				for j := 0; j < logsPerGoroutine; j++ {
					Info("goroutine log", "id", id, "iteration", j)
				}
			}(i)
		}

		wg.Wait()

		output := buf.String()
		lines := strings.Split(strings.TrimSpace(output), "\n")
		assert.Equal(t, numGoroutines*logsPerGoroutine, len(lines))
	})

	t.Run("ConcurrentLevelChanges", func(t *testing.T) {
		// Use io.Discard since changing levels reconfigures the logger
		// and bytes.Buffer is not thread-safe
		InitWithWriter(io.Discard, "DEBUG", "text", false)
		defer func() {
			mu.Lock()
			output = os.Stdout
			mu.Unlock()
			reconfigure()
		}()

		const numGoroutines = 5
		const iterations = 50

		var wg sync.WaitGroup
		wg.Add(numGoroutines * 2)

		for i := 0; i < numGoroutines; i++ {
			go func() {
				defer wg.Done()
				for j := 0; j < iterations; j++ {
					if j%2 == 0 {
						SetLevel("DEBUG")
					} else {
						SetLevel("ERROR")
					}
				}
			}()
		}

		for i := 0; i < numGoroutines; i++ {
			go func(id int) {
				defer wg.Done()
				for j := 0; j < iterations; j++ {
					Debug("debug", "id", id)
					Info("info", "id", id)
					Warn("warn", "id", id)
					Error("error", "id", id)
				}
			}(i)
		}

		require.NotPanics(t, func() {
			wg.Wait()
		})
	})
}

// ============================================================================
// JSON Format Tests
// ============================================================================

func TestJSONFormat(t *testing.T) {
	t.Run("JSONFormatProducesValidJSON", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetFormat("json")

		Info("test message", "key1", "value1", "key2", 42)

		output := strings.TrimSpace(buf.String())

		var entry map[string]any
		err := json.Unmarshal([]byte(output), &entry)
		require.NoError(t, err, "Output should be valid JSON: %s", output)

		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "test message", entry["msg"])
		assert.Equal(t, "value1", entry["key1"])
		assert.Equal(t, float64(42), entry["key2"]) // JSON numbers are float64
	})
}

// ============================================================================
// Context Logging Tests
// ============================================================================

func TestContextLogging(t *testing.T) {
	t.Run("LogContextInjectsFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetFormat("json")

		lc := &LogContext{
			TraceID:   "abc123",
			SpanID:    "xyz789",
			RequestID: "req-1",
			Method:    "social.spkeasy.keys.getPublicKey",
			CallerDID: "did:plc:alice",
			ClientIP:  "192.168.1.100",
		}
		ctx := WithContext(context.Background(), lc)

		InfoCtx(ctx, "request completed", "extra_field", "value")

		var entry map[string]any
		err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry)
		require.NoError(t, err)

		assert.Equal(t, "abc123", entry["trace_id"])
		assert.Equal(t, "xyz789", entry["span_id"])
		assert.Equal(t, "req-1", entry["request_id"])
		assert.Equal(t, "social.spkeasy.keys.getPublicKey", entry["method"])
		assert.Equal(t, "192.168.1.100", entry["client_ip"])
		assert.Equal(t, "value", entry["extra_field"])
	})

	t.Run("CallerDIDIsAnonymized", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetFormat("json")

		lc := &LogContext{CallerDID: "did:plc:w4xbfzo7kqfes5zb7r6qv3rw"}
		ctx := WithContext(context.Background(), lc)

		InfoCtx(ctx, "request completed")

		raw := buf.String()
		assert.NotContains(t, raw, "did:plc:w4xbfzo7kqfes5zb7r6qv3rw")

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(raw)), &entry))
		caller, _ := entry["caller"].(string)
		assert.True(t, strings.HasPrefix(caller, "anon-"), "caller should be a pseudonym, got %q", caller)
	})

	t.Run("JobContextInjectsFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetFormat("json")

		lc := NewJobContext("job-42", "private-sessions.revoke-session", 3)
		ctx := WithContext(context.Background(), lc)

		InfoCtx(ctx, "job completed")

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
		assert.Equal(t, "job-42", entry["job_id"])
		assert.Equal(t, "private-sessions.revoke-session", entry["job_name"])
		assert.Equal(t, float64(3), entry["attempt"])
	})

	t.Run("NilContextHandled", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")

		require.NotPanics(t, func() {
			InfoCtx(nil, "test message")
		})

		assert.Contains(t, buf.String(), "test message")
	})

	t.Run("ContextWithoutLogContextHandled", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")

		require.NotPanics(t, func() {
			InfoCtx(context.Background(), "test message")
		})

		assert.Contains(t, buf.String(), "test message")
	})
}

// ============================================================================
// LogContext Tests
// ============================================================================

func TestLogContext(t *testing.T) {
	t.Run("NewLogContext", func(t *testing.T) {
		lc := NewLogContext("192.168.1.100")
		assert.Equal(t, "192.168.1.100", lc.ClientIP)
		assert.False(t, lc.StartTime.IsZero())
	})

	t.Run("Clone", func(t *testing.T) {
		lc := &LogContext{
			TraceID:   "trace123",
			Method:    "social.spkeasy.graph.getTrusted",
			CallerDID: "did:plc:alice",
			ClientIP:  "192.168.1.100",
		}

		clone := lc.Clone()
		assert.Equal(t, lc.TraceID, clone.TraceID)
		assert.Equal(t, lc.Method, clone.Method)
		assert.Equal(t, lc.CallerDID, clone.CallerDID)
		assert.Equal(t, lc.ClientIP, clone.ClientIP)

		clone.Method = "social.spkeasy.graph.addTrusted"
		assert.Equal(t, "social.spkeasy.graph.getTrusted", lc.Method)
	})

	t.Run("CloneNil", func(t *testing.T) {
		var lc *LogContext
		clone := lc.Clone()
		assert.Nil(t, clone)
	})

	t.Run("WithMethod", func(t *testing.T) {
		lc := NewLogContext("192.168.1.100")
		lc2 := lc.WithMethod("social.spkeasy.keys.getPublicKey")

		assert.Equal(t, "social.spkeasy.keys.getPublicKey", lc2.Method)
		assert.Equal(t, "", lc.Method) // Original unchanged
	})

	t.Run("WithCaller", func(t *testing.T) {
		lc := NewLogContext("192.168.1.100")
		lc2 := lc.WithCaller("did:plc:alice", "")
		lc3 := lc.WithCaller("", "private-sessions")

		assert.Equal(t, "did:plc:alice", lc2.CallerDID)
		assert.Equal(t, "private-sessions", lc3.Service)
	})
}

// ============================================================================
// Anonymization Tests
// ============================================================================

func TestAnonymize(t *testing.T) {
	t.Run("StableWithinProcess", func(t *testing.T) {
		a := Anonymize("did:plc:alice")
		b := Anonymize("did:plc:alice")
		assert.Equal(t, a, b)
	})

	t.Run("DistinctForDistinctDIDs", func(t *testing.T) {
		a := Anonymize("did:plc:alice")
		b := Anonymize("did:plc:bob")
		assert.NotEqual(t, a, b)
	})

	t.Run("EmptyDIDStaysEmpty", func(t *testing.T) {
		assert.Equal(t, "", Anonymize(""))
	})

	t.Run("KeyedDigestChangesWithKey", func(t *testing.T) {
		SetAnonymizationKey("secret-one", "salt")
		a := Anonymize("did:plc:alice")
		SetAnonymizationKey("secret-two", "salt")
		b := Anonymize("did:plc:alice")
		assert.NotEqual(t, a, b)
	})

	t.Run("NeverContainsRawDID", func(t *testing.T) {
		SetAnonymizationKey("secret", "salt")
		out := Anonymize("did:plc:w4xbfzo7kqfes5zb7r6qv3rw")
		assert.NotContains(t, out, "did:plc:")
		assert.True(t, strings.HasPrefix(out, "anon-"))
	})
}

// ============================================================================
// Field Helper Tests
// ============================================================================

func TestFieldHelpers(t *testing.T) {
	t.Run("ErrHandlesNil", func(t *testing.T) {
		attr := Err(nil)
		assert.Equal(t, "", attr.Key) // Empty attr for nil error
	})

	t.Run("ErrFormatsError", func(t *testing.T) {
		attr := Err(assert.AnError)
		assert.Equal(t, KeyError, attr.Key)
		assert.Contains(t, attr.Value.String(), "assert.AnError")
	})

	t.Run("DIDFieldsAreAnonymized", func(t *testing.T) {
		attr := DID("did:plc:alice")
		assert.Equal(t, KeyDID, attr.Key)
		assert.NotContains(t, attr.Value.String(), "did:plc:alice")

		attr = Recipient("did:plc:bob")
		assert.Equal(t, KeyRecipient, attr.Key)
		assert.True(t, strings.HasPrefix(attr.Value.String(), "anon-"))
	})

	t.Run("URLStripsQuery", func(t *testing.T) {
		attr := URL("https://pds.example.com/xrpc/com.atproto.server.getSession?token=secret")
		assert.Equal(t, "https://pds.example.com/xrpc/com.atproto.server.getSession", attr.Value.String())
	})
}

// ============================================================================
// Printf-style Backward Compatibility Tests
// ============================================================================

func TestPrintfStyleLogging(t *testing.T) {
	t.Run("InfofFormatsCorrectly", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Infof("count: %d", 100)

		assert.Contains(t, buf.String(), "count: 100")
	})

	t.Run("ErrorfFormatsCorrectly", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("ERROR")
		Errorf("error: %v", "test error")

		assert.Contains(t, buf.String(), "error: test error")
	})
}

// ============================================================================
// Init Tests
// ============================================================================

func TestInit(t *testing.T) {
	t.Run("InitWithWriter", func(t *testing.T) {
		buf := new(bytes.Buffer)

		InitWithWriter(buf, "DEBUG", "text", false)

		Debug("test message")
		assert.Contains(t, buf.String(), "test message")

		mu.Lock()
		output = os.Stdout
		mu.Unlock()
		reconfigure()
	})

	t.Run("InitWithEmptyConfig", func(t *testing.T) {
		err := Init(Config{})
		require.NoError(t, err)
	})
}

// ============================================================================
// Benchmark Tests
// ============================================================================

func BenchmarkLogDisabled(b *testing.B) {
	buf := new(bytes.Buffer)
	InitWithWriter(buf, "ERROR", "text", false)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Debug("test message", "key", "value")
	}
}

func BenchmarkLogJSON(b *testing.B) {
	buf := new(bytes.Buffer)
	InitWithWriter(buf, "DEBUG", "json", false)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Info("test message", "key", "value", "count", i)
	}
}

func BenchmarkAnonymize(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Anonymize("did:plc:w4xbfzo7kqfes5zb7r6qv3rw")
	}
}
