// Package response builds the HTTP response the harness pushes at the device.
// The body is a fixed prefix followed by a repeating pattern so the receiver
// can check every byte and spot where truncation or corruption started.
package response

import (
	"bytes"
	"strconv"
)

const (
	DefaultPrefix  = "RAW_TCP_TEST_"
	DefaultPattern = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Generator produces deterministic bodies. The zero value uses the defaults.
type Generator struct {
	Prefix  string
	Pattern string
}

func NewGenerator() *Generator {
	return &Generator{Prefix: DefaultPrefix, Pattern: DefaultPattern}
}

func (g *Generator) prefix() string {
	if g.Prefix == "" {
		return DefaultPrefix
	}
	return g.Prefix
}

func (g *Generator) pattern() string {
	if g.Pattern == "" {
		return DefaultPattern
	}
	return g.Pattern
}

// Generate returns exactly n bytes of body content.
func (g *Generator) Generate(n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	buf := make([]byte, 0, n)
	buf = append(buf, g.prefix()...)
	pattern := g.pattern()
	for len(buf) < n {
		remaining := n - len(buf)
		if remaining >= len(pattern) {
			buf = append(buf, pattern...)
		} else {
			buf = append(buf, pattern[:remaining]...)
		}
	}
	return buf[:n]
}

// Header returns the response head announcing a body of n bytes.
func Header(n int) []byte {
	var buff bytes.Buffer
	buff.WriteString("HTTP/1.1 200 OK\r\n")
	buff.WriteString("Content-Type: text/plain\r\n")
	buff.WriteString("Content-Length: " + strconv.Itoa(n) + "\r\n")
	buff.WriteString("Connection: close\r\n")
	buff.WriteString("\r\n")
	return buff.Bytes()
}

// Build frames body as a complete HTTP/1.1 response.
func Build(body []byte) []byte {
	head := Header(len(body))
	payload := make([]byte, 0, len(head)+len(body))
	payload = append(payload, head...)
	return append(payload, body...)
}
