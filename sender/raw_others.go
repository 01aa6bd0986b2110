//go:build !linux

package sender

import "github.com/pkg/errors"

type RawSender struct{}

func NewRawSender(iface string) (*RawSender, error) {
	return nil, errors.New("raw_socket send engine is not supported on OS other than linux")
}

func (s *RawSender) Send(seg *Segment) error {
	return errors.New("not implemented")
}

func (s *RawSender) Close() error {
	return nil
}
