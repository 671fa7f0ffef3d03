// Package codec упаковывает сырые образцы лиц в сжатый blob и обратно.
//
// Формат не содержит заголовка с длиной: при чтении берутся первые
// models.FaceSampleSize байт распакованного потока, остальное игнорируется.
package codec

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"face-attendance/internal/models"
)

// SampleSize - длина одного образца в байтах
const SampleSize = models.FaceSampleSize

// ErrDecode - blob поврежден или короче одного образца
var ErrDecode = errors.New("некорректный образец лица")

// DecodeError описывает, почему blob не превратился в образец
type DecodeError struct {
	Got int // сколько байт удалось распаковать (если известно)
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("образец лица: распаковано %d из %d байт: %v", e.Got, SampleSize, e.Err)
	}
	return fmt.Sprintf("образец лица: распаковано %d из %d байт", e.Got, SampleSize)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is позволяет проверять errors.Is(err, ErrDecode)
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Encode сжимает сырые байты. Длина не проверяется: контракт 7500 байт
// проверяется при чтении. Вывод детерминирован (без имени и времени в gzip заголовке).
func Encode(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("сжатие образца: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("сжатие образца: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode распаковывает поток и читает из него ровно один образец.
// Поток читается инкрементально, хвост после SampleSize байт не читается.
func Decode(r io.Reader) (models.RawFaceSample, error) {
	var sample models.RawFaceSample

	zr, err := newDecompressor(r)
	if err != nil {
		return sample, &DecodeError{Err: err}
	}
	defer zr.Close()

	n, err := io.ReadFull(zr, sample[:])
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return models.RawFaceSample{}, &DecodeError{Got: n}
		}
		return models.RawFaceSample{}, &DecodeError{Got: n, Err: err}
	}
	return sample, nil
}

// DecodeBytes - Decode для payload в памяти
func DecodeBytes(payload []byte) (models.RawFaceSample, error) {
	return Decode(bytes.NewReader(payload))
}

// newDecompressor определяет формат по сигнатуре: gzip или zlib
// (старые записи могли быть сохранены в zlib обертке).
func newDecompressor(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	if magic[0] == 0x1f && magic[1] == 0x8b {
		return gzip.NewReader(br)
	}
	if magic[0]&0x0f == 8 && (uint16(magic[0])<<8|uint16(magic[1]))%31 == 0 {
		return zlib.NewReader(br)
	}
	return nil, fmt.Errorf("неизвестный формат сжатия (%#x %#x)", magic[0], magic[1])
}
