// Package stdio implements the Stdio Transport (spec §4.10): a
// Content-Length framed read/write loop over the MCP Protocol Layer.
// Grounded on runStdioServer, generalized from wrapping
// server.NewStdioServer to framing directly for the in-repo mcpproto.Server
// (component 9's logic has moved in-repo, so stdio must frame for it).
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
)

// SessionID is the fixed mcp_session_id the stdio transport reports for
// identity persistence, per spec §4.10.
const SessionID = "stdio"

// Handler processes one decoded request body and returns the response
// body, or nil for a notification/dropped message.
type Handler func(body []byte) []byte

// Loop reads framed messages from r and writes framed responses to w until
// ctx is cancelled (checked between messages) or r reaches EOF. A body
// read or write error for one message is logged and the loop continues; a
// header that cannot be read or parsed ends the loop with that error.
func Loop(ctx context.Context, r io.Reader, w io.Writer, handle Handler, logger *log.Logger) error {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	reader := bufio.NewReader(r)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		length, err := readHeaders(reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			logger.Printf("stdio: header read error: %v", err)
			return err
		}

		body := make([]byte, length)
		if _, err := io.ReadFull(reader, body); err != nil {
			logger.Printf("stdio: body read error: %v", err)
			continue
		}

		resp := handle(body)
		if resp == nil {
			continue
		}
		if err := writeFrame(w, resp); err != nil {
			logger.Printf("stdio: write error: %v", err)
		}
	}
}

// readHeaders reads Content-Length-prefixed headers up to the blank line
// separator and returns the declared body length.
func readHeaders(r *bufio.Reader) (int, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return 0, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if strings.EqualFold(key, "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil {
				return 0, fmt.Errorf("stdio: invalid Content-Length %q: %w", parts[1], err)
			}
			length = n
		}
	}
	if length < 0 {
		return 0, fmt.Errorf("stdio: missing Content-Length header")
	}
	return length, nil
}

func writeFrame(w io.Writer, body []byte) error {
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
