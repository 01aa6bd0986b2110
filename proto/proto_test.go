package proto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeader(t *testing.T) {
	var payload, val []byte

	// Value with space at start
	payload = []byte("POST /post HTTP/1.1\r\nContent-Length: 7\r\nHost: www.w3.org\r\n\r\na=1&b=2")
	if val = Header(payload, []byte("Content-Length")); !bytes.Equal(val, []byte("7")) {
		t.Error("Should find header value")
	}

	// Value with space at end
	payload = []byte("POST /post HTTP/1.1\r\nContent-Length: 7 \r\nHost: www.w3.org\r\n\r\na=1&b=2")
	if val = Header(payload, []byte("Content-Length")); !bytes.Equal(val, []byte("7")) {
		t.Error("Should find header value without space after 7")
	}

	// Value without space at start
	payload = []byte("POST /post HTTP/1.1\r\nContent-Length:7\r\nHost: www.w3.org\r\n\r\na=1&b=2")
	if val = Header(payload, []byte("Content-Length")); !bytes.Equal(val, []byte("7")) {
		t.Error("Should find header value without space after :")
	}

	// Value is empty
	payload = []byte("GET /p HTTP/1.1\r\nCookie:\r\nHost: www.w3.org\r\n\r\n")
	if val = Header(payload, []byte("Cookie")); len(val) > 0 {
		t.Error("Should return empty value")
	}

	if val = Header(payload, []byte("Not-Found")); val != nil {
		t.Error("Should not found header")
	}

	// Lower case headers
	payload = []byte("POST /post HTTP/1.1\r\ncontent-length: 7\r\nhost: www.w3.org\r\n\r\na=1&b=2")
	if val = Header(payload, []byte("host")); !bytes.Equal(val, []byte("www.w3.org")) {
		t.Error("Should find lower case 1 word header")
	}

	// body lines never count as headers
	payload = []byte("POST /post HTTP/1.1\r\nHost: a\r\n\r\nX-Fake: 1\r\n")
	assert.Nil(t, Header(payload, []byte("X-Fake")))
}

func TestContentLength(t *testing.T) {
	assert.Equal(t, 1380, ContentLength([]byte("HTTP/1.1 200 OK\r\nContent-Length: 1380\r\n\r\n")))
	assert.Equal(t, -1, ContentLength([]byte("HTTP/1.1 200 OK\r\nConnection: close\r\n\r\n")))
	assert.Equal(t, -1, ContentLength([]byte("HTTP/1.1 200 OK\r\nContent-Length: x\r\n\r\n")))
}

func TestMIMEHeadersPos(t *testing.T) {
	payload := []byte("GET /test HTTP/1.1\r\nHost: test\r\n\r\nbody")
	assert.Equal(t, 20, MIMEHeadersStartPos(payload))
	assert.Equal(t, 34, MIMEHeadersEndPos(payload))
	assert.Equal(t, []byte("body"), Body(payload))
	assert.Equal(t, -1, MIMEHeadersEndPos([]byte("GET / HTTP/1.1\r\n")))
}

func TestHasRequestTitle(t *testing.T) {
	var m = map[string]bool{
		"GET / HTTP/1.1\r\n":                                    true,
		"GET /test HTTP/1.1\r\nHost: test\r\nConnection: close": true,
		"HEAD /x HTTP/1.0\r\n":                                  true,
		"GET / HTTP/1.1\n":                                      false,
		"FOO / HTTP/1.1\r\n":                                    false,
		"GET /  HTTP/1.1\r\n":                                   false,
		"GET / HTTP/2.0\r\n":                                    false,
		"GET / HTTP/1.1":                                        false,
	}
	for k, v := range m {
		if HasRequestTitle([]byte(k)) != v {
			t.Errorf("%q should yield %v", k, v)
		}
	}
}

func TestHasResponseTitle(t *testing.T) {
	var m = map[string]bool{
		"HTTP/1.1 200 OK\r\n":     true,
		"HTTP/1.0 404\r\n":        true,
		"HTTP/1.1 999 Nope\r\n":   false,
		"HTTP/2.0 200 OK\r\n":     false,
		"HTTP/1.1 200OK\r\n":      false,
		"HTTP/1.1 200 OK":         false,
		"GET / HTTP/1.1\r\n\r\n ": false,
	}
	for k, v := range m {
		if HasResponseTitle([]byte(k)) != v {
			t.Errorf("%q should yield %v", k, v)
		}
	}
}

func TestPathAndStatus(t *testing.T) {
	assert.Equal(t, "/test", string(Path([]byte("GET /test HTTP/1.1\r\n\r\n"))))
	assert.Nil(t, Path([]byte("HTTP/1.1 200 OK\r\n")))
	assert.Equal(t, "404", string(Status([]byte("HTTP/1.1 404 Not Found\r\n"))))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "GET /test", Describe([]byte("GET /test HTTP/1.1\r\nHost: test\r\n\r\n")))
	assert.Equal(t, "HTTP 200", Describe([]byte("HTTP/1.1 200 OK\r\n\r\n")))
	assert.Equal(t, "", Describe([]byte("RAW_TCP_TEST_0123")))
}

func TestTrace(t *testing.T) {
	assert.Equal(t, "[HTTP GET /test]", Trace([]byte("GET /test HTTP/1.1\r\nHost: test\r\n\r\n")))
	assert.Equal(t, "[HTTP RESP 200: 1380 bytes]",
		Trace([]byte("HTTP/1.1 200 OK\r\nContent-Length: 1380\r\n\r\nRAW_TCP_TEST_")))
	// no Content-Length, count what follows the head
	assert.Equal(t, "[HTTP RESP 404: 5 bytes]", Trace([]byte("HTTP/1.1 404 Not Found\r\n\r\nnope!")))
	assert.Equal(t, "[HTTP RESP 200: 0 bytes]", Trace([]byte("HTTP/1.1 200 OK\r\nServer: x\r\n")))
	assert.Equal(t, "", Trace([]byte("RAW_TCP_TEST_0123")))
	assert.Equal(t, "", Trace(nil))
}
