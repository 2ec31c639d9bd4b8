package core

// imagecheck.go walks the container structure of accepted image formats
// without decoding pixels. It catches truncated and spliced files that still
// carry a valid header.

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

var (
	pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

	errTruncated = errors.New("file is truncated")
)

// maxPNGChunk is the largest chunk length the PNG format allows.
const maxPNGChunk = 1<<31 - 1

// checkImageStructure dispatches to the walker for format.
func checkImageStructure(f *os.File, format string) error {
	switch format {
	case "png":
		return checkPNG(bufio.NewReader(f))
	case "jpeg":
		return checkJPEG(bufio.NewReader(f))
	case "webp":
		info, err := f.Stat()
		if err != nil {
			return err
		}
		return checkWebP(bufio.NewReader(f), info.Size())
	}
	return fmt.Errorf("no structure check for %s", format)
}

// checkPNG verifies the signature, that IHDR comes first, every chunk CRC,
// and that the stream ends with IEND.
func checkPNG(r *bufio.Reader) error {
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return errTruncated
	}
	if !bytes.Equal(sig, pngSignature) {
		return errors.New("bad PNG signature")
	}

	var header [8]byte
	first := true
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return errTruncated
		}
		length := binary.BigEndian.Uint32(header[:4])
		if length > maxPNGChunk {
			return fmt.Errorf("chunk length %d out of range", length)
		}
		typ := string(header[4:8])
		if first && typ != "IHDR" {
			return errors.New("first chunk is not IHDR")
		}
		first = false

		crc := crc32.NewIEEE()
		crc.Write(header[4:8])
		if _, err := io.CopyN(crc, r, int64(length)); err != nil {
			return errTruncated
		}

		var stored [4]byte
		if _, err := io.ReadFull(r, stored[:]); err != nil {
			return errTruncated
		}
		if binary.BigEndian.Uint32(stored[:]) != crc.Sum32() {
			return fmt.Errorf("CRC mismatch in %s chunk", typ)
		}

		if typ == "IEND" {
			return nil
		}
	}
}

// JPEG markers used by the walker.
const (
	jpegSOI  = 0xD8
	jpegEOI  = 0xD9
	jpegSOS  = 0xDA
	jpegTEM  = 0x01
	jpegRST0 = 0xD0
	jpegRST7 = 0xD7
)

// checkJPEG walks marker segments from SOI to EOI, skipping entropy coded
// data after each SOS.
func checkJPEG(r *bufio.Reader) error {
	var soi [2]byte
	if _, err := io.ReadFull(r, soi[:]); err != nil {
		return errTruncated
	}
	if soi[0] != 0xFF || soi[1] != jpegSOI {
		return errors.New("missing SOI marker")
	}

	marker, err := nextJPEGMarker(r)
	for {
		if err != nil {
			return err
		}
		switch {
		case marker == jpegEOI:
			return nil
		case marker == jpegTEM || (marker >= jpegRST0 && marker <= jpegRST7):
			marker, err = nextJPEGMarker(r)
			continue
		}

		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return errTruncated
		}
		length := int64(binary.BigEndian.Uint16(lenBuf[:]))
		if length < 2 {
			return fmt.Errorf("segment 0x%02X has invalid length %d", marker, length)
		}
		if _, err := r.Discard(int(length - 2)); err != nil {
			return errTruncated
		}

		if marker == jpegSOS {
			marker, err = skipEntropyData(r)
			continue
		}
		marker, err = nextJPEGMarker(r)
	}
}

// nextJPEGMarker reads a 0xFF prefix, any fill bytes, and returns the marker code.
func nextJPEGMarker(r *bufio.Reader) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, errTruncated
	}
	if b != 0xFF {
		return 0, fmt.Errorf("expected marker, found 0x%02X", b)
	}
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, errTruncated
		}
		if b != 0xFF {
			return b, nil
		}
	}
}

// skipEntropyData consumes scan data up to the next real marker, which is
// returned. Stuffed zero bytes and restart markers belong to the scan.
func skipEntropyData(r *bufio.Reader) (byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, errTruncated
		}
		if b != 0xFF {
			continue
		}
		for b == 0xFF {
			if b, err = r.ReadByte(); err != nil {
				return 0, errTruncated
			}
		}
		if b == 0x00 || (b >= jpegRST0 && b <= jpegRST7) {
			continue
		}
		return b, nil
	}
}

// checkWebP validates the RIFF container: declared length against the file
// size, the WEBP form type, a leading VP8/VP8L/VP8X chunk, and that every
// chunk fits inside the container.
func checkWebP(r *bufio.Reader, fileSize int64) error {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return errTruncated
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WEBP" {
		return errors.New("not a RIFF WEBP container")
	}
	riffSize := int64(binary.LittleEndian.Uint32(header[4:8]))
	if riffSize < 4 || riffSize+8 > fileSize {
		return errTruncated
	}

	remaining := riffSize - 4
	first := true
	var chunk [8]byte
	for remaining > 0 {
		if remaining < 8 {
			return errors.New("trailing bytes inside RIFF container")
		}
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return errTruncated
		}
		fourcc := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		if first {
			switch fourcc {
			case "VP8 ", "VP8L", "VP8X":
			default:
				return fmt.Errorf("unexpected first chunk %q", fourcc)
			}
			first = false
		}

		padded := size + size&1
		if padded > remaining-8 {
			// Some encoders omit the final pad byte.
			if size != remaining-8 {
				return fmt.Errorf("chunk %q overruns container", fourcc)
			}
			padded = size
		}
		if _, err := r.Discard(int(padded)); err != nil {
			return errTruncated
		}
		remaining -= 8 + padded
	}
	if first {
		return errors.New("container has no image chunk")
	}
	return nil
}
