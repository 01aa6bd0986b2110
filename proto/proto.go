/*
Package proto provides byte-level inspection of HTTP/1 payloads seen on the
wire: request detection for the session engine and the labels the capture
trace puts next to every segment carrying an HTTP/1 title.

	GET /test HTTP/1.1\r\n
	Host: test\r\n
	Connection: close\r\n
	\r\n
*/
package proto

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/buger/goreplay/byteutils"
)

// CRLF In HTTP newline defined by 2 bytes (for both windows and *nix support)
var CRLF = []byte("\r\n")

// EmptyLine acts as separator: end of Headers or Body (in some cases)
var EmptyLine = []byte("\r\n\r\n")

const (
	//MinRequestCount GET / HTTP/1.1\r\n
	MinRequestCount = 16
	// MinResponseCount HTTP/1.1 200\r\n
	MinResponseCount = 14
	// VersionLen HTTP/1.1
	VersionLen = 8
)

// Methods holds the http methods ordered in ascending order
var Methods = [...]string{
	http.MethodConnect, http.MethodDelete, http.MethodGet,
	http.MethodHead, http.MethodOptions, http.MethodPatch,
	http.MethodPost, http.MethodPut, http.MethodTrace,
}

// MIMEHeadersEndPos finds end of the Headers section, which should end with empty line.
func MIMEHeadersEndPos(payload []byte) int {
	pos := bytes.Index(payload, EmptyLine)
	if pos < 0 {
		return -1
	}
	return pos + 4
}

// MIMEHeadersStartPos finds the second line, the first one holds the title.
func MIMEHeadersStartPos(payload []byte) int {
	pos := bytes.Index(payload, CRLF)
	if pos < 0 {
		return -1
	}
	return pos + 2
}

// Header returns the trimmed value of the named header, nil if absent.
// Multi-line headers are not supported.
func Header(payload, name []byte) []byte {
	start := 0
	if HasTitle(payload) {
		start = MIMEHeadersStartPos(payload)
	}
	end := MIMEHeadersEndPos(payload)
	if end < 0 {
		end = len(payload)
	}

	for start >= 0 && start < end {
		lineEnd := bytes.Index(payload[start:end], CRLF)
		if lineEnd <= 0 {
			break
		}
		line := payload[start : start+lineEnd]
		start += lineEnd + 2

		colon := bytes.IndexByte(line, ':')
		if colon == -1 {
			// partial header, most likely cut by a segment boundary
			continue
		}
		if bytes.EqualFold(line[:colon], name) {
			return bytes.TrimSpace(line[colon+1:])
		}
	}
	return nil
}

// ContentLength returns the Content-Length header value, -1 if missing or invalid.
func ContentLength(payload []byte) int {
	val := Header(payload, []byte("Content-Length"))
	if val == nil {
		return -1
	}
	n, err := strconv.Atoi(byteutils.SliceToString(val))
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// Body returns request/response body
func Body(payload []byte) []byte {
	pos := MIMEHeadersEndPos(payload)
	if pos == -1 || len(payload) <= pos {
		return nil
	}
	return payload[pos:]
}

// Method returns HTTP method
func Method(payload []byte) []byte {
	end := bytes.IndexByte(payload, ' ')
	if end == -1 {
		return nil
	}
	return payload[:end]
}

// Path takes payload and returns request path: Split(firstLine, ' ')[1]
func Path(payload []byte) []byte {
	if !HasRequestTitle(payload) {
		return nil
	}
	start := bytes.IndexByte(payload, ' ') + 1
	end := bytes.IndexByte(payload[start:], ' ')
	return payload[start : start+end]
}

// Status returns response status.
func Status(payload []byte) []byte {
	if !HasResponseTitle(payload) {
		return nil
	}
	start := bytes.IndexByte(payload, ' ') + 1
	// status code are in range 100-600
	return payload[start : start+3]
}

// HasResponseTitle reports whether this payload has an HTTP/1 response title
func HasResponseTitle(payload []byte) bool {
	s := byteutils.SliceToString(payload)
	if len(s) < MinResponseCount {
		return false
	}
	if bytes.Index(payload, CRLF) == -1 {
		return false
	}
	major, minor, ok := http.ParseHTTPVersion(s[0:VersionLen])
	if !(ok && major == 1 && (minor == 0 || minor == 1)) {
		return false
	}
	if s[VersionLen] != ' ' {
		return false
	}
	status, err := strconv.Atoi(s[VersionLen+1 : VersionLen+4])
	if err != nil || http.StatusText(status) == "" {
		return false
	}
	return payload[VersionLen+4] == ' ' || payload[VersionLen+4] == '\r'
}

// HasRequestTitle reports whether this payload has an HTTP/1 request title
func HasRequestTitle(payload []byte) bool {
	s := byteutils.SliceToString(payload)
	if len(s) < MinRequestCount {
		return false
	}
	titleLen := bytes.Index(payload, CRLF)
	if titleLen == -1 {
		return false
	}
	if strings.Count(s[:titleLen], " ") != 2 {
		return false
	}
	method := string(Method(payload))
	var methodFound bool
	for _, m := range Methods {
		if methodFound = method == m; methodFound {
			break
		}
	}
	if !methodFound {
		return false
	}
	path := strings.Index(s[len(method)+1:], " ")
	if path == -1 {
		return false
	}
	major, minor, ok := http.ParseHTTPVersion(s[path+len(method)+2 : titleLen])
	return ok && major == 1 && (minor == 0 || minor == 1)
}

// HasTitle reports if this payload has an http/1 title
func HasTitle(payload []byte) bool {
	return HasRequestTitle(payload) || HasResponseTitle(payload)
}

// Describe gives a short label for trace lines: "GET /test", "200" or "".
func Describe(payload []byte) string {
	switch {
	case HasRequestTitle(payload):
		return string(Method(payload)) + " " + string(Path(payload))
	case HasResponseTitle(payload):
		return "HTTP " + string(Status(payload))
	}
	return ""
}

// Trace labels a captured payload, e.g. "[HTTP GET /test]" or
// "[HTTP RESP 200: 1380 bytes]". Segments without a title get "".
func Trace(payload []byte) string {
	switch {
	case HasRequestTitle(payload):
		return fmt.Sprintf("[HTTP %s %s]", Method(payload), Path(payload))
	case HasResponseTitle(payload):
		n := ContentLength(payload)
		if n < 0 {
			n = len(Body(payload))
		}
		return fmt.Sprintf("[HTTP RESP %s: %d bytes]", Status(payload), n)
	}
	return ""
}
