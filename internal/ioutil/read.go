package ioutil

import (
	"fmt"
	"io"
	"strings"
)

// ReadLimited reads up to limit bytes from r and returns them as a trimmed string.
// A read failure is described in the result rather than dropped, so response
// bodies can be quoted in error messages and logs.
func ReadLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return strings.TrimSpace(string(body))
}

// DrainAndClose discards what is left of an HTTP body so the connection can be reused
func DrainAndClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64<<10))
	_ = rc.Close()
}
