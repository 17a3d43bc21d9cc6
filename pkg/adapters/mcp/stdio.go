package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// ServeStdio reads newline-delimited JSON-RPC messages from in and writes responses to out.
//
// Tool calls are answered concurrently, in completion order; other messages are
// answered in arrival order. It returns nil at EOF once every in-flight call has
// been answered, or when ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := &lineWriter{out: out}
	var inflight sync.WaitGroup
	defer inflight.Wait()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		readErr <- readLines(ctx, in, lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			return nil
		case line := <-lines:
			msg, ok := peek(line)
			if ok && mcp.MCPMethod(msg.Method) == mcp.MethodToolsCall {
				inflight.Add(1)
				go func() {
					defer inflight.Done()
					s.respond(ctx, w, line)
				}()
				continue
			}
			s.respond(ctx, w, line)
		}
	}
}

func (s *Server) respond(ctx context.Context, w *lineWriter, line []byte) {
	resp := s.HandleMessage(ctx, line)
	if resp == nil {
		return
	}
	if err := w.write(resp); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

// readLines sends every non-blank line of in to lines. It returns nil at EOF.
func readLines(ctx context.Context, in io.Reader, lines chan<- []byte) error {
	r := bufio.NewReader(in)
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			select {
			case lines <- trimmed:
			case <-ctx.Done():
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// lineWriter serializes responses onto a shared stream, one JSON document per line.
type lineWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *lineWriter) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.out.Write(data)
	return err
}
