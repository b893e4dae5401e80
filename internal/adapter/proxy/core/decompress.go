package core

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

type decoder struct {
	io.Reader
	closeFn func() error
}

func (d *decoder) Close() error {
	if d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// NewDecoder wraps r so reads yield the decoded body for the given Content-Encoding.
// Closing the decoder does not close r.
func NewDecoder(contentEncoding string, r io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return &decoder{Reader: r}, nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return &decoder{Reader: gz, closeFn: gz.Close}, nil
	case "deflate":
		return newDeflateDecoder(r)
	case "br":
		return &decoder{Reader: brotli.NewReader(r)}, nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return &decoder{Reader: zr, closeFn: func() error { zr.Close(); return nil }}, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}
}

// HTTP deflate is meant to be zlib wrapped but plenty of servers send raw deflate
func newDeflateDecoder(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err == nil && isZlibHeader(header) {
		zr, zerr := zlib.NewReader(br)
		if zerr != nil {
			return nil, fmt.Errorf("deflate: %w", zerr)
		}
		return &decoder{Reader: zr, closeFn: zr.Close}, nil
	}
	fr := flate.NewReader(br)
	return &decoder{Reader: fr, closeFn: fr.Close}, nil
}

func isZlibHeader(h []byte) bool {
	// CM=8 and the 16-bit header is a multiple of 31 (RFC 1950)
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}
