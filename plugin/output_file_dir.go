package plugin

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/vearne/wndprobe/model"
	"github.com/vearne/wndprobe/protocol"
	"gopkg.in/natefinch/lumberjack.v2"
)

const ReportFileName = "sessions.log"

func IsValidDir(dirPath string) error {
	info, err := os.Stat(dirPath)
	if err != nil {
		return errors.Wrap(err, "invalid directory")
	}
	if !info.IsDir() {
		return errors.Errorf("%v is not directory", dirPath)
	}
	return nil
}

type FileDirOutputConfig struct {
	// MaxSize is the maximum size in megabytes of the log file before it gets rotated.
	MaxSize int `json:"maxSize"`
	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `json:"maxBackups"`
	// MaxAge is the maximum number of days to retain old log files based on the
	// timestamp encoded in their filename.
	MaxAge int `json:"maxAge"`
}

type FileDirOutput struct {
	codec  protocol.Codec
	logger *lumberjack.Logger
}

func NewFileDirOutput(codec string, path string, cf *FileDirOutputConfig) *FileDirOutput {
	var output FileDirOutput
	output.codec = protocol.GetCodec(codec)
	output.logger = &lumberjack.Logger{
		Filename:   filepath.Join(path, ReportFileName),
		MaxSize:    cf.MaxSize, // megabytes
		MaxBackups: cf.MaxBackups,
		MaxAge:     cf.MaxAge, //days
		Compress:   true,
	}
	return &output
}

func (o *FileDirOutput) Close() error {
	return o.logger.Close()
}

func (o *FileDirOutput) PluginWrite(r *model.SessionReport) (n int, err error) {
	data, err := o.codec.Marshal(r)
	if err != nil {
		return 0, err
	}
	return o.logger.Write(terminate(data))
}
