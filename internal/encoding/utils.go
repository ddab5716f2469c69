// Package encoding converts vectors to and from their persisted byte
// form: little-endian float32 blobs for SQLite columns and the embedding
// cache's matrix files.
package encoding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidVector is returned when a vector or its byte form is invalid
var ErrInvalidVector = errors.New("invalid vector")

// EncodeVector encodes a float32 vector to bytes: an int32 length prefix
// followed by the values, all little-endian.
func EncodeVector(vector []float32) ([]byte, error) {
	if vector == nil {
		return nil, ErrInvalidVector
	}

	buf := new(bytes.Buffer)
	buf.Grow(4 + 4*len(vector))

	if len(vector) > math.MaxInt32 {
		return nil, fmt.Errorf("vector too large: %d elements", len(vector))
	}
	if err := binary.Write(buf, binary.LittleEndian, int32(len(vector))); err != nil {
		return nil, fmt.Errorf("failed to encode vector length: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
		return nil, fmt.Errorf("failed to encode vector values: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeVector decodes bytes produced by EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, ErrInvalidVector
	}

	buf := bytes.NewReader(data)

	var length int32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to decode vector length: %w", err)
	}
	if length < 0 {
		return nil, ErrInvalidVector
	}
	if length == 0 {
		return []float32{}, nil
	}
	if buf.Len() < int(length)*4 {
		return nil, ErrInvalidVector
	}

	vector := make([]float32, length)
	if err := binary.Read(buf, binary.LittleEndian, vector); err != nil {
		return nil, fmt.Errorf("failed to decode vector values: %w", err)
	}

	return vector, nil
}

// EncodeMatrix encodes a list of vectors: an int32 row count followed by
// each row in EncodeVector form.
func EncodeMatrix(matrix [][]float32) ([]byte, error) {
	buf := new(bytes.Buffer)

	if len(matrix) > math.MaxInt32 {
		return nil, fmt.Errorf("matrix too large: %d rows", len(matrix))
	}
	if err := binary.Write(buf, binary.LittleEndian, int32(len(matrix))); err != nil {
		return nil, fmt.Errorf("failed to encode row count: %w", err)
	}

	for i, row := range matrix {
		data, err := EncodeVector(row)
		if err != nil {
			return nil, fmt.Errorf("failed to encode row %d: %w", i, err)
		}
		buf.Write(data)
	}

	return buf.Bytes(), nil
}

// DecodeMatrix decodes bytes produced by EncodeMatrix.
func DecodeMatrix(data []byte) ([][]float32, error) {
	if len(data) < 4 {
		return nil, ErrInvalidVector
	}

	var count int32
	if err := binary.Read(bytes.NewReader(data[:4]), binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to decode row count: %w", err)
	}
	if count < 0 {
		return nil, ErrInvalidVector
	}

	// Cap the pre-allocation by what the data could possibly hold (each
	// row needs at least its 4-byte length prefix) so a corrupt count
	// cannot trigger a huge allocation before the per-row bounds checks.
	matrix := make([][]float32, 0, min(int(count), (len(data)-4)/4))
	offset := 4
	for i := int32(0); i < count; i++ {
		if len(data) < offset+4 {
			return nil, ErrInvalidVector
		}
		var length int32
		if err := binary.Read(bytes.NewReader(data[offset:offset+4]), binary.LittleEndian, &length); err != nil {
			return nil, fmt.Errorf("failed to decode row %d length: %w", i, err)
		}
		end := offset + 4 + int(length)*4
		if length < 0 || len(data) < end {
			return nil, ErrInvalidVector
		}
		row, err := DecodeVector(data[offset:end])
		if err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", i, err)
		}
		matrix = append(matrix, row)
		offset = end
	}

	return matrix, nil
}

// ValidateVector rejects nil, empty, NaN or infinite vectors.
func ValidateVector(vector []float32) error {
	if len(vector) == 0 {
		return ErrInvalidVector
	}
	for _, val := range vector {
		if val != val { // NaN check
			return ErrInvalidVector
		}
		if math.IsInf(float64(val), 0) {
			return ErrInvalidVector
		}
	}
	return nil
}
