package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// TeeResult reports what a stream copy moved and where it stopped
type TeeResult struct {
	ReadErr   error
	WriteErr  error
	Bytes     int64
	ReadCount int
}

func (r TeeResult) Err() error {
	if r.WriteErr != nil {
		return fmt.Errorf("client write: %w", r.WriteErr)
	}
	return r.ReadErr
}

// Tee copies body to the client one read at a time, flushing after each write so streamed
// tokens reach the client as they arrive. Every chunk is also handed to each side writer,
// whose errors are ignored. The copy stops on the first client write error or context cancel.
func Tee(ctx context.Context, w http.ResponseWriter, body io.Reader, buffer []byte, side ...io.Writer) TeeResult {
	var result TeeResult
	flusher, canFlush := w.(http.Flusher)

	for {
		if err := ctx.Err(); err != nil {
			result.ReadErr = err
			return result
		}

		n, err := body.Read(buffer)
		if n > 0 {
			result.ReadCount++
			chunk := buffer[:n]
			for _, sw := range side {
				_, _ = sw.Write(chunk)
			}

			written, writeErr := w.Write(chunk)
			result.Bytes += int64(written)
			if writeErr != nil {
				result.WriteErr = writeErr
				return result
			}
			if canFlush {
				flusher.Flush()
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				result.ReadErr = err
			}
			return result
		}
	}
}
