package protocol

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"printbridge/pkg/errors"
)

// Payload formats accepted in a print job
const (
	FormatBase64 = "base64"
	FormatText   = "text"
)

// codepages maps job encodings to the single-byte charsets thermal
// printers expect. Text payloads are transcoded before hitting the wire.
var codepages = map[string]*charmap.Charmap{
	"cp437": charmap.CodePage437,
	"cp850": charmap.CodePage850,
	"cp852": charmap.CodePage852,
	"cp858": charmap.CodePage858,
	"cp866": charmap.CodePage866,
}

// DecodePayload turns a job's payload string into the raw bytes sent to
// the device. The bytes are passed through verbatim after decoding; no
// printer command interpretation happens here.
func DecodePayload(payload, format, encoding string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatBase64, "":
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode base64 payload: %w", err)
		}
		return data, nil

	case FormatText:
		if encoding == "" {
			return []byte(payload), nil
		}
		cm, ok := codepages[strings.ToLower(encoding)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", errors.ErrUnknownEncoding, encoding)
		}
		data, err := cm.NewEncoder().Bytes([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("encode payload to %s: %w", encoding, err)
		}
		return data, nil

	default:
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownFormat, format)
	}
}
