package plugin

import (
	"time"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	"github.com/vearne/wndprobe/model"
	"github.com/vearne/wndprobe/protocol"
)

// KafkaOutputConfig is the representation of kafka output configuration
type KafkaOutputConfig struct {
	Host  []string `json:"output-kafka-host"`
	Topic string   `json:"output-kafka-topic"`
}

// KafkaOutput publishes every report to a topic, keyed by session id
type KafkaOutput struct {
	codec    protocol.Codec
	topic    string
	producer sarama.SyncProducer
}

func NewKafkaOutput(codec string, cf *KafkaOutputConfig) (*KafkaOutput, error) {
	c := sarama.NewConfig()
	c.ClientID = "wndprobe"
	c.Producer.RequiredAcks = sarama.WaitForLocal
	c.Producer.Return.Successes = true
	c.Producer.Timeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(cf.Host, c)
	if err != nil {
		return nil, errors.Wrap(err, "kafka producer")
	}
	return NewKafkaOutputWithProducer(codec, cf.Topic, producer), nil
}

func NewKafkaOutputWithProducer(codec string, topic string, producer sarama.SyncProducer) *KafkaOutput {
	var o KafkaOutput
	o.codec = protocol.GetCodec(codec)
	o.topic = topic
	o.producer = producer
	return &o
}

func (o *KafkaOutput) Close() error {
	return o.producer.Close()
}

func (o *KafkaOutput) PluginWrite(r *model.SessionReport) (n int, err error) {
	data, err := o.codec.Marshal(r)
	if err != nil {
		return 0, err
	}
	msg := &sarama.ProducerMessage{
		Topic: o.topic,
		Key:   sarama.StringEncoder(r.ID),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err = o.producer.SendMessage(msg); err != nil {
		return 0, errors.Wrapf(err, "send report %v", r.ID)
	}
	return len(data), nil
}
