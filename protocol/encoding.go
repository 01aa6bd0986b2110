// Package protocol holds the codecs that turn a session report into the
// bytes written by the report outputs.
package protocol

import (
	"strings"

	"github.com/vearne/wndprobe/model"
)

type Codec interface {
	// Marshal returns the wire format of r.
	Marshal(r *model.SessionReport) ([]byte, error)
	// Name returns the name of the Codec implementation, the value of --codec.
	// The result must be static; the result cannot change between calls.
	Name() string
}

var registeredCodecs = make(map[string]Codec)

func RegisterCodec(codec Codec) {
	if codec == nil {
		panic("cannot register a nil Codec")
	}
	if codec.Name() == "" {
		panic("cannot register Codec with empty string result for Name()")
	}
	contentSubtype := strings.ToLower(codec.Name())
	registeredCodecs[contentSubtype] = codec
}

// The content-subtype is expected to be lowercase.
func GetCodec(codecType string) Codec {
	return registeredCodecs[codecType]
}
