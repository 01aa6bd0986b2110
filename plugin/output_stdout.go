package plugin

import (
	"io"
	"os"

	"github.com/vearne/wndprobe/model"
	"github.com/vearne/wndprobe/protocol"
)

type StdOutput struct {
	codec protocol.Codec
	w     io.Writer
}

func NewStdOutput(codec string) *StdOutput {
	return NewWriterOutput(codec, os.Stdout)
}

// NewWriterOutput writes encoded reports to w, one per line.
func NewWriterOutput(codec string, w io.Writer) *StdOutput {
	var o StdOutput
	o.codec = protocol.GetCodec(codec)
	o.w = w
	return &o
}

func (o *StdOutput) Close() error {
	return nil
}

func (o *StdOutput) PluginWrite(r *model.SessionReport) (n int, err error) {
	data, err := o.codec.Marshal(r)
	if err != nil {
		return 0, err
	}
	return o.w.Write(terminate(data))
}

func terminate(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\n' {
		return data
	}
	return append(data, '\n')
}
