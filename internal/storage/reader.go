package storage

import (
	"context"
	"io"
)

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

// NewContextReader returns a reader that fails with ctx.Err() once ctx is done.
// Used for both upload bodies and download copy loops so an aborted client
// stops the file loop at the next chunk.
func NewContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &contextReader{ctx: ctx, r: r}
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// limitReader fails with ErrSizeExceeded once more than limit bytes are read.
type limitReader struct {
	r     io.Reader
	limit int64
	n     int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.limit {
		return n, ErrSizeExceeded
	}
	return n, err
}
