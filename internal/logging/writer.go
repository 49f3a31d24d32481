package logging

import (
	"bytes"
	"log/slog"
	"strings"
)

// Writer is an io.Writer that forwards child process output to slog, one record per line.
type Writer struct {
	logger *slog.Logger
	tool   string
	buf    bytes.Buffer
	tail   []string
}

// tailLines bounds what Tail returns.
const tailLines = 20

// NewWriter constructs a Writer bound to the provided logger. Lines are logged at
// debug level and tagged with the tool name.
func NewWriter(logger *slog.Logger, tool string) *Writer {
	return &Writer{logger: logger, tool: tool}
}

// Write buffers p and logs every complete line.
func (w *Writer) Write(p []byte) (int, error) {
	if w.logger == nil {
		return len(p), nil
	}
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line: keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (w *Writer) Flush() {
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

// Tail returns the last lines written, oldest first.
func (w *Writer) Tail() []string {
	return append([]string(nil), w.tail...)
}

func (w *Writer) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	w.tail = append(w.tail, line)
	if len(w.tail) > tailLines {
		w.tail = w.tail[len(w.tail)-tailLines:]
	}
	if w.logger != nil {
		w.logger.Debug("command output", "tool", w.tool, "line", line)
	}
}
