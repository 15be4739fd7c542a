package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// maxHeaderSize is a sanity limit for the JSON header of a safetensors file.
const maxHeaderSize = 100 * 1024 * 1024

// Header represents the JSON header of a safetensors file.
type Header struct {
	Tensors  map[string]*TensorMetadata // Tensor name -> metadata
	Metadata map[string]string          // Optional __metadata__ field

	// dataOffset is where the tensor data starts in the file.
	dataOffset int64
}

// TensorMetadata represents metadata for a single tensor in a safetensors file.
type TensorMetadata struct {
	Name        string   `json:"-"`            // Tensor name (from map key)
	Dtype       string   `json:"dtype"`        // Data type: F32, F64, I32, I64, etc.
	Shape       []int    `json:"shape"`        // Tensor dimensions
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end] byte offsets in the data section
}

// ShardedIndex represents a model.safetensors.index.json file for sharded models.
type ShardedIndex struct {
	Metadata  map[string]any    `json:"metadata"`
	WeightMap map[string]string `json:"weight_map"` // Tensor name -> filename
}

// parseHeader reads the header of a safetensors file:
//
//	[8 bytes: header size as little-endian u64]
//	[header_size bytes: JSON header]
//	[remaining bytes: tensor data]
func parseHeader(r io.ReaderAt, fileSize int64) (*Header, error) {
	var sizeBytes [8]byte
	if _, err := r.ReadAt(sizeBytes[:], 0); err != nil {
		return nil, errors.Wrap(err, "failed to read header size")
	}
	headerSize := binary.LittleEndian.Uint64(sizeBytes[:])
	if headerSize > maxHeaderSize || int64(headerSize) > fileSize-8 {
		return nil, errors.Errorf("invalid header size %d for a file of %d bytes", headerSize, fileSize)
	}
	headerBytes := make([]byte, headerSize)
	if _, err := r.ReadAt(headerBytes, 8); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to read header JSON")
	}

	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawHeader); err != nil {
		return nil, errors.Wrap(err, "failed to parse header JSON")
	}
	header := &Header{
		Tensors:    make(map[string]*TensorMetadata, len(rawHeader)),
		Metadata:   make(map[string]string),
		dataOffset: int64(8 + headerSize),
	}
	dataSize := fileSize - header.dataOffset
	for key, value := range rawHeader {
		if key == "__metadata__" {
			if err := json.Unmarshal(value, &header.Metadata); err != nil {
				return nil, errors.Wrap(err, "failed to parse __metadata__")
			}
			continue
		}
		tm := &TensorMetadata{Name: key}
		if err := json.Unmarshal(value, tm); err != nil {
			return nil, errors.Wrapf(err, "failed to parse tensor metadata for %s", key)
		}
		if tm.DataOffsets[0] < 0 || tm.DataOffsets[1] < tm.DataOffsets[0] || tm.DataOffsets[1] > dataSize {
			return nil, errors.Errorf("tensor %s has invalid data offsets %v (data size is %d)", key, tm.DataOffsets, dataSize)
		}
		header.Tensors[key] = tm
	}
	return header, nil
}

// safetensorsFile is a memory-mapped safetensors file.
type safetensorsFile struct {
	reader *mmap.ReaderAt
	header *Header
}

func openSafetensors(filePath string) (*safetensorsFile, error) {
	reader, err := mmap.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %s", filePath)
	}
	header, err := parseHeader(reader, int64(reader.Len()))
	if err != nil {
		_ = reader.Close()
		return nil, errors.WithMessagef(err, "safetensors file %s", filePath)
	}
	return &safetensorsFile{reader: reader, header: header}, nil
}

func (f *safetensorsFile) Close() error {
	return f.reader.Close()
}

// readTensor reads a tensor by name into a GoMLX tensor.
func (f *safetensorsFile) readTensor(tensorName string) (*tensors.Tensor, error) {
	meta, ok := f.header.Tensors[tensorName]
	if !ok {
		return nil, errors.Errorf("tensor %s not found", tensorName)
	}
	dtype, err := dtypeToGoMLX(meta.Dtype)
	if err != nil {
		return nil, err
	}
	t := tensors.FromShape(shapes.Make(dtype, meta.Shape...))
	var readErr error
	t.MutableBytes(func(data []byte) {
		if int64(len(data)) != meta.DataOffsets[1]-meta.DataOffsets[0] {
			readErr = errors.Errorf("tensor %s shaped %s needs %d bytes, but the file has %d bytes",
				tensorName, t.Shape(), len(data), meta.DataOffsets[1]-meta.DataOffsets[0])
			return
		}
		_, readErr = f.reader.ReadAt(data, f.header.dataOffset+meta.DataOffsets[0])
		if readErr == io.EOF {
			readErr = nil
		}
		if readErr != nil {
			readErr = errors.Wrapf(readErr, "failed to read tensor %s", tensorName)
		}
	})
	if readErr != nil {
		return nil, readErr
	}
	return t, nil
}

// safetensorsDTypes maps safetensors dtype names to GoMLX dtypes.
var safetensorsDTypes = map[string]dtypes.DType{
	"BOOL": dtypes.Bool,
	"I8":   dtypes.Int8,
	"I16":  dtypes.Int16,
	"I32":  dtypes.Int32,
	"I64":  dtypes.Int64,
	"U8":   dtypes.Uint8,
	"U16":  dtypes.Uint16,
	"U32":  dtypes.Uint32,
	"U64":  dtypes.Uint64,
	"F16":  dtypes.Float16,
	"BF16": dtypes.BFloat16,
	"F32":  dtypes.Float32,
	"F64":  dtypes.Float64,
}

func dtypeToGoMLX(stDtype string) (dtypes.DType, error) {
	if dtype, found := safetensorsDTypes[stDtype]; found {
		return dtype, nil
	}
	// Aliases known to GoMLX.
	if dtype, found := dtypes.MapOfNames[stDtype]; found {
		return dtype, nil
	}
	return dtypes.InvalidDType, errors.Errorf("dtype %q not supported", stDtype)
}
