// Package config 包含 wndprobe 的配置管理相关功能。
// 该包定义了应用程序的配置结构、命令行参数类型以及 YAML 配置文件的加载。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/buger/goreplay/size"
	"github.com/pkg/errors"
	"github.com/vearne/wndprobe/consts"
	"github.com/vearne/wndprobe/response"
	"gopkg.in/yaml.v3"
)

// MultiStringOption 实现了可以接受多个值的字符串命令行参数。
// 例如：--output-file-directory="/tmp/a" --output-file-directory="/tmp/b"
type MultiStringOption struct {
	Params *[]string // 指向存储所有参数值的切片的指针
}

func (h *MultiStringOption) String() string {
	if h.Params == nil {
		return ""
	}
	return fmt.Sprint(*h.Params)
}

// Set gets called multiple times for each flag with same name
func (h *MultiStringOption) Set(value string) error {
	if h.Params == nil {
		return nil
	}

	*h.Params = append(*h.Params, value)
	return nil
}

// MultiIntOption 实现了可以接受多个值的整数命令行参数。
// 同时支持逗号分隔：--chunk-size=500,500 与 --chunk-size=500 --chunk-size=500 等价。
type MultiIntOption struct {
	Params *[]int // 指向存储所有参数值的切片的指针
}

func (h *MultiIntOption) String() string {
	if h.Params == nil {
		return ""
	}

	return fmt.Sprint(*h.Params)
}

// Set gets called multiple times for each flag with same name
func (h *MultiIntOption) Set(value string) error {
	if h.Params == nil {
		return nil
	}

	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		val, err := strconv.Atoi(item)
		if err != nil {
			return errors.Wrapf(err, "invalid integer %q", item)
		}
		*h.Params = append(*h.Params, val)
	}
	return nil
}

// PolicyType selects how the response is cut into segments
type PolicyType uint8

const (
	// PolicySingleShot sends header and body in one segment
	PolicySingleShot PolicyType = iota
	// PolicyChunked sends configured chunk sizes, waiting for each ack
	PolicyChunked
	// PolicyFragmented sends small fixed-size chunks with a delay, no ack gating
	PolicyFragmented
)

// Set is here so that PolicyType can implement flag.Var
func (p *PolicyType) Set(v string) error {
	switch v {
	case "", "single", "window_overrun":
		*p = PolicySingleShot
	case "chunked":
		*p = PolicyChunked
	case "fragmented":
		*p = PolicyFragmented
	default:
		return fmt.Errorf("invalid policy %s", v)
	}
	return nil
}

func (p *PolicyType) String() string {
	switch *p {
	case PolicySingleShot:
		return "single"
	case PolicyChunked:
		return "chunked"
	case PolicyFragmented:
		return "fragmented"
	}
	return ""
}

func (p *PolicyType) UnmarshalYAML(value *yaml.Node) error {
	return p.Set(value.Value)
}

// SendEngine selects how forged segments leave the host
type SendEngine uint8

const (
	// EnginePcap writes whole link-layer frames through a pcap handle
	EnginePcap SendEngine = iota
	// EngineRawSocket writes IPv4 datagrams through a raw socket
	EngineRawSocket
)

// Set is here so that SendEngine can implement flag.Var
func (e *SendEngine) Set(v string) error {
	switch v {
	case "", "libpcap":
		*e = EnginePcap
	case "raw_socket":
		*e = EngineRawSocket
	default:
		return fmt.Errorf("invalid send engine %s", v)
	}
	return nil
}

func (e *SendEngine) String() string {
	switch *e {
	case EnginePcap:
		return "libpcap"
	case EngineRawSocket:
		return "raw_socket"
	}
	return ""
}

func (e *SendEngine) UnmarshalYAML(value *yaml.Node) error {
	return e.Set(value.Value)
}

// ByteSize is a size.Size that also reads "2kb" style values from YAML
type ByteSize int64

func (b *ByteSize) Set(v string) error {
	var siz size.Size
	if err := siz.Set(v); err != nil {
		return err
	}
	*b = ByteSize(siz)
	return nil
}

func (b *ByteSize) String() string {
	siz := size.Size(*b)
	return siz.String()
}

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	return b.Set(value.Value)
}

// PhaseTimeouts bounds every wait of the session engine
type PhaseTimeouts struct {
	SYN          time.Duration `json:"syn" yaml:"syn"`
	HandshakeACK time.Duration `json:"handshake-ack" yaml:"handshake_ack"`
	Request      time.Duration `json:"request" yaml:"request"`
	DataACK      time.Duration `json:"data-ack" yaml:"data_ack"`
	FIN          time.Duration `json:"fin" yaml:"fin"`
}

// AppSettings 是主配置结构体，运行期间不可变。
// 字段对应命令行参数，也可以通过 --config 指定的 YAML 文件提供。
type AppSettings struct {
	ExitAfter  time.Duration `json:"exit-after" yaml:"exit_after"`
	LogLevel   string        `json:"log-level" yaml:"log_level"`
	ConfigFile string        `json:"config" yaml:"-"`

	// ######################## capture #######################
	Interface     string        `json:"iface" yaml:"iface"`
	Port          int           `json:"port" yaml:"port"`
	Promiscuous   bool          `json:"capture-promisc" yaml:"capture_promisc"`
	BufferTimeout time.Duration `json:"capture-buffer-timeout" yaml:"capture_buffer_timeout"`
	Snaplen       int           `json:"capture-snaplen" yaml:"capture_snaplen"`
	CaptureDump   string        `json:"capture-dump" yaml:"capture_dump"`
	LogCapacity   int           `json:"capture-log-capacity" yaml:"capture_log_capacity"`

	// ######################## session #######################
	Policy        PolicyType    `json:"policy" yaml:"policy"`
	BodyLength    ByteSize      `json:"body-length" yaml:"body_length"`
	ChunkSizes    []int         `json:"chunk-size" yaml:"chunk_sizes"`
	FragmentSize  ByteSize      `json:"fragment-size" yaml:"fragment_size"`
	FragmentDelay time.Duration `json:"fragment-delay" yaml:"fragment_delay"`
	// gate the final chunk of the chunked policy too
	AckFinalChunk bool          `json:"ack-final-chunk" yaml:"ack_final_chunk"`
	RequestMarker string        `json:"request-marker" yaml:"request_marker"`
	Window        int           `json:"window" yaml:"window"`
	PollInterval  time.Duration `json:"poll-interval" yaml:"poll_interval"`
	Timeouts      PhaseTimeouts `json:"timeouts" yaml:"timeouts"`
	SendEngine    SendEngine    `json:"send-engine" yaml:"send_engine"`

	// ######################## output ########################
	OutputStdout  bool     `json:"output-stdout" yaml:"output_stdout"`
	OutputFileDir []string `json:"output-file-directory" yaml:"output_file_directory"`
	// MaxSize is the maximum size in megabytes of the log file before it gets rotated.
	OutputFileMaxSize int `json:"output-file-max-size" yaml:"output_file_max_size"`
	// MaxBackups is the maximum number of old log files to retain.
	OutputFileMaxBackups int `json:"output-file-max-backups" yaml:"output_file_max_backups"`
	// MaxAge is the maximum number of days to retain old log files based on the
	// timestamp encoded in their filename.
	OutputFileMaxAge int `json:"output-file-max-age" yaml:"output_file_max_age"`

	OutputKafkaHost  []string `json:"output-kafka-host" yaml:"output_kafka_host"`
	OutputKafkaTopic string   `json:"output-kafka-topic" yaml:"output_kafka_topic"`

	// --- filter ---
	IncludeFilterOutcomeMatch string `json:"include-filter-outcome-match" yaml:"include_filter_outcome_match"`

	// --- rate limit ---
	// reports per second
	RateLimitQPS int `json:"rate-limit-qps" yaml:"rate_limit_qps"`

	Codec       string `json:"codec" yaml:"codec"`
	MetricsAddr string `json:"metrics-addr" yaml:"metrics_addr"`
}

// Default returns the settings used when neither a flag nor the config file
// says otherwise.
func Default() AppSettings {
	return AppSettings{
		LogLevel:      "info",
		Interface:     "lo",
		Port:          consts.DefaultPort,
		BufferTimeout: 100 * time.Millisecond,
		LogCapacity:   consts.DefaultLogCapacity,
		Policy:        PolicySingleShot,
		BodyLength:    consts.DefaultBodyLength,
		FragmentSize:  500,
		FragmentDelay: 50 * time.Millisecond,
		RequestMarker: "GET",
		Window:        8192,
		PollInterval:  100 * time.Millisecond,
		Timeouts: PhaseTimeouts{
			SYN:          60 * time.Second,
			HandshakeACK: 10 * time.Second,
			Request:      10 * time.Second,
			DataACK:      10 * time.Second,
			FIN:          60 * time.Second,
		},
		SendEngine:           EnginePcap,
		OutputFileMaxSize:    500,
		OutputFileMaxBackups: 10,
		OutputFileMaxAge:     30,
		OutputKafkaTopic:     "wndprobe",
		Codec:                "json",
	}
}

// DefaultChunkSizes is used by the chunked policy when none are configured
var DefaultChunkSizes = []int{500, 500}

// LoadFile reads a YAML file over the values already in settings.
func LoadFile(path string, settings *AppSettings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}
	if err = yaml.Unmarshal(data, settings); err != nil {
		return errors.Wrapf(err, "parse config file %v", path)
	}
	return nil
}

// Marker returns the request marker as bytes, nil when any HTTP request line counts.
func (s *AppSettings) Marker() []byte {
	if s.RequestMarker == "" {
		return nil
	}
	return []byte(s.RequestMarker)
}

// Chunks returns the configured chunk sizes or the defaults.
func (s *AppSettings) Chunks() []int {
	if len(s.ChunkSizes) == 0 {
		return DefaultChunkSizes
	}
	return s.ChunkSizes
}

// Validate rejects settings the engine cannot run with.
func (s *AppSettings) Validate() error {
	if s.Interface == "" {
		return errors.New("interface must be set")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return errors.Errorf("invalid port %d", s.Port)
	}
	if s.BodyLength < 0 {
		return errors.Errorf("invalid body length %d", s.BodyLength)
	}
	if s.LogCapacity <= 0 {
		return errors.Errorf("invalid capture log capacity %d", s.LogCapacity)
	}
	if s.Window <= 0 || s.Window > 65535 {
		return errors.Errorf("invalid window %d", s.Window)
	}
	if s.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if s.BufferTimeout <= 0 {
		return errors.New("capture buffer timeout must be positive")
	}

	t := s.Timeouts
	for name, d := range map[string]time.Duration{
		"syn": t.SYN, "handshake-ack": t.HandshakeACK, "request": t.Request,
		"data-ack": t.DataACK, "fin": t.FIN,
	} {
		if d <= 0 {
			return errors.Errorf("timeout %v must be positive", name)
		}
	}

	switch s.Policy {
	case PolicyChunked:
		for _, c := range s.ChunkSizes {
			if c <= 0 {
				return errors.Errorf("invalid chunk size %d", c)
			}
		}
	case PolicyFragmented:
		if s.FragmentSize <= 0 {
			return errors.Errorf("invalid fragment size %d", s.FragmentSize)
		}
		if s.FragmentDelay < 0 {
			return errors.New("fragment delay must not be negative")
		}
	}

	if largest := s.largestSegment(); largest > consts.MaxSegmentPayload {
		return errors.Errorf("a %d byte segment does not fit one IPv4 datagram, max payload is %d",
			largest, consts.MaxSegmentPayload)
	}

	if s.OutputKafkaTopic == "" && len(s.OutputKafkaHost) > 0 {
		return errors.New("kafka output needs a topic")
	}
	if s.RateLimitQPS < 0 {
		return errors.Errorf("invalid rate limit %d", s.RateLimitQPS)
	}
	return nil
}

// largestSegment is the biggest payload the configured policy will put into
// one segment, the response header included.
func (s *AppSettings) largestSegment() int {
	body := int(s.BodyLength)
	total := len(response.Header(body)) + body

	switch s.Policy {
	case PolicyChunked:
		largest, rest := 0, total
		for _, c := range s.Chunks() {
			if c > rest {
				c = rest
			}
			rest -= c
			if c > largest {
				largest = c
			}
		}
		if rest > largest {
			largest = rest
		}
		return largest
	case PolicyFragmented:
		if int(s.FragmentSize) < total {
			return int(s.FragmentSize)
		}
	}
	return total
}
