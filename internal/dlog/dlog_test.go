package dlog

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSinkFanOut(t *testing.T) {
	var got []Record
	sink := NewSink(WriterFunc(func(r Record) {
		got = append(got, r)
	}))
	sink.Register(WriterFunc(func(r Record) {
		got = append(got, r)
	}))

	sink.Logf(7, Info, "writer %d matched reader %d", 1, 2)

	assert.Len(t, got, 2)
	assert.Equal(t, uint32(7), got[0].Domain)
	assert.Equal(t, Info, got[0].Severity)
	assert.Equal(t, "writer 1 matched reader 2", got[0].Message)
}

func TestStdWriterSeverityFilter(t *testing.T) {
	// Capture the underlying logger's output to see what StdWriter lets
	// through at a Warning threshold.
	var buf bytes.Buffer
	w := NewStdWriter(log.New(&buf, "", 0), Warning)
	assert.NotNil(t, w)

	sink := NewSink(w)
	sink.Logf(0, Trace, "noisy")
	sink.Logf(0, ErrorSev, "important")
	out := buf.String()
	assert.NotContains(t, out, "noisy")
	assert.Contains(t, out, "important")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}
