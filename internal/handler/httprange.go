package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errRangeUnsatisfiable = errors.New("range not satisfiable")

// byteRange is an inclusive byte span.
type byteRange struct {
	start, end int64
}

func (br byteRange) length() int64 {
	return br.end - br.start + 1
}

func (br byteRange) contentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", br.start, br.end, size)
}

// parseRange interprets a single "bytes=start-end" header against size.
// Malformed bounds are clamped: a missing or bad start becomes 0, a missing,
// bad or overflowing end becomes the last byte, and start > end resets start
// to 0. Only a start at or beyond size is rejected, so any range against an
// empty file is unsatisfiable. ok is false when the
// header is absent or not a bytes range, meaning the whole file is served.
func parseRange(header string, size int64) (br byteRange, ok bool, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return byteRange{}, false, nil
	}
	set, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return byteRange{}, false, nil
	}
	// Only the first range of a multi-range request is served.
	if i := strings.IndexByte(set, ','); i >= 0 {
		set = set[:i]
	}

	startStr, endStr, _ := strings.Cut(strings.TrimSpace(set), "-")

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		start = 0
	}
	if start >= size {
		return byteRange{}, false, errRangeUnsatisfiable
	}

	end, err := strconv.ParseInt(strings.TrimSpace(endStr), 10, 64)
	if err != nil || end < 0 || end >= size {
		end = size - 1
	}
	if start > end {
		start = 0
	}

	return byteRange{start: start, end: end}, true, nil
}
