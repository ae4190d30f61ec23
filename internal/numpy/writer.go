package numpy

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrShapeMismatch = errors.New("frame data does not match header shape")

// Writer streams a uint8 NumPy (.npy v1.0) array to an io.Writer. The
// header is written once; frames follow in C order.
type Writer struct {
	w        io.Writer
	shape    []int
	expected int64
	written  int64
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the array header for shape. It must be called once
// before any WriteFrame.
func (w *Writer) WriteHeader(shape []int) error {
	if w.shape != nil {
		return errors.New("npy header already written")
	}
	header, err := createHeader(shape)
	if err != nil {
		return fmt.Errorf("error creating numpy header: %w", err)
	}
	if _, err := w.w.Write(header); err != nil {
		return fmt.Errorf("error writing npy header: %w", err)
	}

	w.shape = append([]int(nil), shape...)
	w.expected = 1
	for _, s := range shape {
		w.expected *= int64(s)
	}
	return nil
}

// WriteFrame appends raw bytes to the array body.
func (w *Writer) WriteFrame(data []byte) error {
	if w.shape == nil {
		return errors.New("npy header not written")
	}
	if w.written+int64(len(data)) > w.expected {
		return fmt.Errorf("%w: %d bytes past %v", ErrShapeMismatch, w.written+int64(len(data))-w.expected, w.shape)
	}
	n, err := w.w.Write(data)
	w.written += int64(n)
	if err != nil {
		return fmt.Errorf("error writing npy data: %w", err)
	}
	return nil
}

// Finish reports whether the body matched the header shape.
func (w *Writer) Finish() error {
	if w.written != w.expected {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrShapeMismatch, w.written, w.expected)
	}
	return nil
}

// Write writes a complete array with the given shape.
func (w *Writer) Write(data []byte, shape []int) error {
	if err := w.WriteHeader(shape); err != nil {
		return err
	}
	if err := w.WriteFrame(data); err != nil {
		return err
	}
	return w.Finish()
}

// createHeader creates a NumPy array header with the given shape
func createHeader(shape []int) ([]byte, error) {
	if len(shape) == 0 {
		return nil, errors.New("empty shape")
	}
	var dict bytes.Buffer
	dict.WriteString("{'descr': '|u1', 'fortran_order': False, 'shape': (")
	for i, s := range shape {
		if s < 0 {
			return nil, fmt.Errorf("negative dimension %d", s)
		}
		fmt.Fprintf(&dict, "%d", s)
		if i < len(shape)-1 || len(shape) == 1 {
			dict.WriteString(",")
		}
		if i < len(shape)-1 {
			dict.WriteString(" ")
		}
	}
	dict.WriteString("), }")

	// magic(6) + version(2) + header_len(2) + dict + padding + '\n' must be
	// a multiple of 16
	total := 10 + dict.Len() + 1
	padding := (16 - total%16) % 16

	var header bytes.Buffer
	header.Write([]byte{0x93, 'N', 'U', 'M', 'P', 'Y', 0x01, 0x00})
	if err := binary.Write(&header, binary.LittleEndian, uint16(dict.Len()+padding+1)); err != nil {
		return nil, fmt.Errorf("failed to write header dictionary length: %w", err)
	}
	header.Write(dict.Bytes())
	header.Write(bytes.Repeat([]byte{' '}, padding))
	header.WriteByte('\n')

	return header.Bytes(), nil
}
