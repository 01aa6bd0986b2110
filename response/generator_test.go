package response

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vearne/wndprobe/proto"
)

func TestGenerateLength(t *testing.T) {
	g := NewGenerator()
	for _, n := range []int{0, 1, 5, len(DefaultPrefix), len(DefaultPrefix) + 1, 36, 500, 1380, 4096} {
		assert.Len(t, g.Generate(n), n, "n=%d", n)
	}
	assert.Len(t, g.Generate(-3), 0)
}

func TestGenerateDeterministic(t *testing.T) {
	g := NewGenerator()
	first := g.Generate(1380)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, g.Generate(1380))
	}
	assert.Equal(t, first, (&Generator{}).Generate(1380))
}

func TestGeneratePrefixStable(t *testing.T) {
	g := NewGenerator()
	long := g.Generate(2000)
	for _, n := range []int{0, 3, 13, 14, 49, 50, 1380, 1999} {
		assert.True(t, bytes.HasPrefix(long, g.Generate(n)), "n=%d", n)
	}
}

func TestGenerateContent(t *testing.T) {
	g := NewGenerator()
	body := g.Generate(len(DefaultPrefix) + len(DefaultPattern) + 4)
	assert.Equal(t, DefaultPrefix+DefaultPattern+"0123", string(body))

	custom := &Generator{Prefix: "X_", Pattern: "ab"}
	assert.Equal(t, "X_ababa", string(custom.Generate(7)))
	assert.Equal(t, "X", string(custom.Generate(1)))
}

func TestBuild(t *testing.T) {
	body := NewGenerator().Generate(1380)
	payload := Build(body)

	assert.True(t, proto.HasResponseTitle(payload))
	assert.Equal(t, "200", string(proto.Status(payload)))
	assert.Equal(t, strconv.Itoa(len(body)), string(proto.Header(payload, []byte("Content-Length"))))
	assert.Equal(t, "close", string(proto.Header(payload, []byte("Connection"))))
	assert.Equal(t, body, proto.Body(payload))
	assert.Equal(t, len(Header(1380))+1380, len(payload))
}
