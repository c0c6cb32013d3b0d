package realtime

import "github.com/bytedance/sonic"

var wire = sonic.ConfigFastest

// EncodeFrame renders msg as one text frame.
func EncodeFrame(msg *Message) ([]byte, error) {
	return wire.Marshal(msg)
}

// DecodeFrame parses one text frame into msg.
func DecodeFrame(payload []byte, msg *Message) error {
	return wire.Unmarshal(payload, msg)
}

// DecodeData parses a message payload into v.
func DecodeData(data []byte, v any) error {
	return wire.Unmarshal(data, v)
}
