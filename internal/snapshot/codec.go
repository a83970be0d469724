package snapshot

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/agentmem/agentmem/internal/models"
)

// magic tags the compressed format so a stored blob is self-describing.
var magic = []byte("AMSNAP1")

// maxDecodedSize caps decompression to guard against corrupted or hostile
// blobs expanding without bound.
const maxDecodedSize = 16 << 20 // 16 MiB

// Encode serializes and gzip-compresses a snapshot payload.
func Encode(p *models.SnapshotPayload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot payload: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(magic)
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish snapshot compression: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode decompresses and deserializes a snapshot blob produced by Encode.
func Decode(data []byte) (*models.SnapshotPayload, error) {
	if len(data) < len(magic) || !bytes.Equal(data[:len(magic)], magic) {
		return nil, fmt.Errorf("unrecognized snapshot format")
	}

	zr, err := gzip.NewReader(bytes.NewReader(data[len(magic):]))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot blob: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(io.LimitReader(zr, maxDecodedSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot blob: %w", err)
	}
	if len(raw) > maxDecodedSize {
		return nil, fmt.Errorf("snapshot payload exceeds %d bytes", maxDecodedSize)
	}

	var p models.SnapshotPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot payload: %w", err)
	}
	return &p, nil
}
