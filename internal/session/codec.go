package session

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Session documents carry whole spreadsheets and converted cards, so they are
// stored zstd-compressed. The encoder and decoder are safe for concurrent
// EncodeAll/DecodeAll calls.
var (
	zenc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zdec, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

func encode(s *Session) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return zenc.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

func decode(data []byte) (*Session, error) {
	raw, err := zdec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
