package recovery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/hidrosfera/climdex-etl/internal/domain"
)

// Checkpoint wire form: a fixed header (magic, format version) followed by an
// lz4 frame containing the JSON-encoded records. The frame checksums itself,
// so a truncated or bit-flipped file fails to decode instead of yielding
// silently wrong records.
const (
	payloadMagic   = "CLDX"
	payloadVersion = 1
)

func encodePayload(records []domain.ClimateIndexRecord) ([]byte, error) {
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal records: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(payloadMagic)
	buf.WriteByte(payloadVersion)

	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress records: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish compression: %w", err)
	}
	return buf.Bytes(), nil
}

func decodePayload(data []byte) ([]domain.ClimateIndexRecord, error) {
	header := len(payloadMagic) + 1
	if len(data) < header {
		return nil, fmt.Errorf("short payload: %d bytes", len(data))
	}
	if string(data[:len(payloadMagic)]) != payloadMagic {
		return nil, fmt.Errorf("bad magic %q", data[:len(payloadMagic)])
	}
	if v := data[len(payloadMagic)]; v != payloadVersion {
		return nil, fmt.Errorf("unsupported payload version %d", v)
	}

	zr := lz4.NewReader(bytes.NewReader(data[header:]))
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress records: %w", err)
	}

	var records []domain.ClimateIndexRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("unmarshal records: %w", err)
	}
	return records, nil
}
