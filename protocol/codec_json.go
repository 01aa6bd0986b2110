package protocol

import (
	"encoding/json"

	"github.com/vearne/wndprobe/model"
)

const CodecJsonName = "json"

func init() {
	RegisterCodec(CodecJson{})
}

type CodecJson struct{}

func (c CodecJson) Marshal(r *model.SessionReport) ([]byte, error) {
	return json.Marshal(r)
}

func (c CodecJson) Name() string {
	return CodecJsonName
}
