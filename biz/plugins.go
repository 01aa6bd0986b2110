package biz

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	slog "github.com/vearne/simplelog"
	"github.com/vearne/wndprobe/config"
	"github.com/vearne/wndprobe/plugin"
	"github.com/vearne/wndprobe/protocol"
)

// InOutPlugins struct for holding references to plugins
type InOutPlugins struct {
	Outputs []PluginWriter
	All     []interface{}
}

// NewPlugins specify and initialize all available plugins
func NewPlugins(settings *config.AppSettings) (*InOutPlugins, error) {
	plugins := new(InOutPlugins)

	if protocol.GetCodec(settings.Codec) == nil {
		return nil, errors.Errorf("unknown codec %q", settings.Codec)
	}

	// ----------output----------
	if settings.OutputStdout {
		slog.Debug("NewStdOutput")
		if err := plugins.registerPlugin(plugin.NewStdOutput, settings.Codec); err != nil {
			return nil, err
		}
	}

	for _, path := range settings.OutputFileDir {
		err := plugin.IsValidDir(path)
		if err != nil {
			return nil, err
		}
		cf := &plugin.FileDirOutputConfig{
			MaxSize:    settings.OutputFileMaxSize,
			MaxBackups: settings.OutputFileMaxBackups,
			MaxAge:     settings.OutputFileMaxAge,
		}
		slog.Debug("NewFileDirOutput, path:%v", path)
		if err = plugins.registerPlugin(plugin.NewFileDirOutput, settings.Codec, path, cf); err != nil {
			return nil, err
		}
	}

	if len(settings.OutputKafkaHost) > 0 {
		cf := &plugin.KafkaOutputConfig{
			Host:  settings.OutputKafkaHost,
			Topic: settings.OutputKafkaTopic,
		}
		slog.Debug("NewKafkaOutput, host:%v, topic:%v", cf.Host, cf.Topic)
		if err := plugins.registerPlugin(plugin.NewKafkaOutput, settings.Codec, cf); err != nil {
			plugins.Close()
			return nil, err
		}
	}

	return plugins, nil
}

// Automatically detects type of plugin and initialize it
func (plugins *InOutPlugins) registerPlugin(constructor interface{}, options ...interface{}) error {
	vc := reflect.ValueOf(constructor)

	// Pre-processing options to make it work with reflect
	vo := []reflect.Value{}
	for _, oi := range options {
		vo = append(vo, reflect.ValueOf(oi))
	}

	// Calling our constructor with list of given options
	out := vc.Call(vo)
	if len(out) > 1 && !out[1].IsNil() {
		return out[1].Interface().(error)
	}
	plugin := out[0].Interface()

	if w, ok := plugin.(PluginWriter); ok {
		plugins.Outputs = append(plugins.Outputs, w)
	}
	plugins.All = append(plugins.All, plugin)
	return nil
}

// Close closes every plugin that holds a resource
func (plugins *InOutPlugins) Close() {
	for _, p := range plugins.All {
		if cp, ok := p.(interface{ Close() error }); ok {
			if err := cp.Close(); err != nil {
				slog.Warn("[EMITTER] close plugin:%v", err)
			}
		}
	}
	plugins.All = nil
}

func (plugins *InOutPlugins) String() string {
	return fmt.Sprintf("#####  len(Outputs):%d, len(All):%d   #####",
		len(plugins.Outputs), len(plugins.All))
}
