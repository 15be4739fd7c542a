package conll2003

import (
	"bytes"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// readBatchSize is the number of rows decoded per call to the parquet reader.
const readBatchSize = 1024

// ReadParquet reads all examples of a parquet file.
//
// The file is memory-mapped, and unmapped before returning: the returned examples don't
// reference the mapped memory.
func ReadParquet(filePath string) (examples []Example, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open parquet file %q", filePath)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat parquet file %q", filePath)
	}
	if info.Size() == 0 {
		return nil, errors.Errorf("parquet file %q is empty", filePath)
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to memory-map %q", filePath)
	}
	defer func() {
		if unmapErr := data.Unmap(); unmapErr != nil {
			klog.Warningf("failed to unmap %q: %v", filePath, unmapErr)
		}
	}()

	examples, err = decodeParquet(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "parquet file %q", filePath)
	}
	return examples, nil
}

// decodeParquet decodes the examples of an in-memory parquet file.
func decodeParquet(data []byte) ([]Example, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "invalid parquet file")
	}
	reader := parquet.NewGenericReader[Example](file)
	defer func() { _ = reader.Close() }()

	examples := make([]Example, 0, reader.NumRows())
	batch := make([]Example, readBatchSize)
	for {
		n, err := reader.Read(batch)
		for ii := range n {
			ex := batch[ii]
			if validateErr := ex.Validate(); validateErr != nil {
				return nil, validateErr
			}
			examples = append(examples, ex)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read parquet rows")
		}
		// Rows are decoded into the batch slices: start from fresh ones.
		clear(batch)
	}
	return examples, nil
}

// WriteParquet writes the examples to a parquet file with the columns of the Hub's conversion.
func WriteParquet(filePath string, examples []Example) error {
	if err := parquet.WriteFile(filePath, examples); err != nil {
		return errors.Wrapf(err, "failed to write parquet file %q", filePath)
	}
	return nil
}
