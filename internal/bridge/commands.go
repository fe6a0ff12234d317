package bridge

import (
	"context"

	"github.com/algodomo/cerebro2mqtt/internal/config"
	"github.com/algodomo/cerebro2mqtt/internal/proto"
)

// runCommand implements the shared confirmation pipeline from spec.md
// §4.7: echo-ack, then an unconditional readback, then a decision that
// prefers the readback's view of the world and falls back to the echo
// outcome only when the readback itself failed, then publish.
func (s *Service) runCommand(device config.Device, action string, frame []byte, echoMatch func(proto.Frame) bool, desiredOK func(proto.PollingStatus) bool) {
	ctx := context.Background()
	address := uint8(device.Address)

	_, echoErr := s.engine.Execute(ctx, action, address, frame, echoMatch, 0)
	status, readErr := s.pollAddress(ctx, address)

	var success bool
	detail := "ok"
	switch {
	case readErr == nil:
		success = desiredOK(status)
		if !success {
			detail = "readback mismatch"
		}
	case echoErr == nil:
		success = true
		detail = "echo only, no readback"
	default:
		success = false
		detail = "no echo, no readback"
	}

	if success && readErr == nil {
		for _, d := range s.currentIndex().atAddress(address) {
			s.projectState(d, status)
		}
	}
	s.publishActionResult(device, action, success, detail)
}
