package block

import (
	"encoding/binary"
	"os"

	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// Plain is the unencrypted codec variant: pread/pwrite plus an inline
// xxhash checksum that makes a torn write detectable without a MAC.
type Plain struct{}

func NewPlain() *Plain { return &Plain{} }

func (Plain) ReadBlock(f *os.File, off int64, blockSize uint32, va vaddr.VA) ([]byte, Header, error) {
	raw, err := pread(f, off, int(blockSize))
	if err != nil {
		return nil, Header{}, err
	}
	hdr := decodeHeader(raw[:headerSize])
	payload := raw[headerSize:]

	if hdr.Magic != magicFor(va.Kind) {
		return nil, Header{}, corefs.Wrap(corefs.BadMagic, va.String(),
			corefs.New(corefs.BadMagic, "block magic mismatch"))
	}
	if hdr.VA != va {
		return nil, Header{}, corefs.New(corefs.CorruptData, "block header VA mismatch at "+va.String())
	}
	want := checksum(payload[:hdr.Length], raw[16:32])
	if want != hdr.Checksum {
		return nil, Header{}, corefs.New(corefs.CorruptData, "checksum mismatch at "+va.String())
	}
	return payload[:hdr.Length:hdr.Length], hdr, nil
}

func (Plain) WriteBlock(f *os.File, off int64, blockSize uint32, va vaddr.VA, generation uint64, payload []byte) error {
	corefs.Invariant(uint32(len(payload)) <= blockSize-headerSize, "payload exceeds block capacity")
	buf := make([]byte, blockSize)
	copy(buf[headerSize:], payload)

	hdr := Header{Magic: magicFor(va.Kind), Length: uint32(len(payload)), VA: va, Generation: generation}
	encodeHeader(buf[:headerSize], hdr)
	hdr.Checksum = checksum(payload, buf[16:32])
	binary.LittleEndian.PutUint32(buf[12:16], hdr.Checksum)

	return pwrite(f, off, buf)
}
