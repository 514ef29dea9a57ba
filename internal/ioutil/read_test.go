package ioutil

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadLimited(t *testing.T) {
	t.Run("reads content up to limit", func(t *testing.T) {
		assert.Equal(t, "invalid_grant", ReadLimited(strings.NewReader("invalid_grant\n"), 1024))
	})

	t.Run("truncates at limit", func(t *testing.T) {
		assert.Equal(t, "{\"err", ReadLimited(strings.NewReader(`{"error":"x"}`), 5))
	})

	t.Run("empty reader", func(t *testing.T) {
		assert.Equal(t, "", ReadLimited(strings.NewReader(""), 1024))
	})

	t.Run("read error returns description", func(t *testing.T) {
		r := &failingReader{err: errors.New("connection reset")}
		assert.Equal(t, "<unreadable: connection reset>", ReadLimited(r, 1024))
	})
}

func TestDrainAndClose(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("leftover")}
	DrainAndClose(body)
	assert.True(t, body.closed)
}

type failingReader struct {
	err error
}

func (r *failingReader) Read(_ []byte) (int, error) {
	return 0, r.err
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}
