package block

import (
	"encoding/binary"
	"os"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// Authenticated encrypts and MAC-protects every block with ChaCha20-
// Poly1305, keyed from the mount passphrase (derived upstream of this
// package — see SPEC_FULL.md §1 Non-goals, passphrase handling stays
// external). The header's VA and generation double as AEAD additional
// data, so a block swapped from a different virtual address fails to
// authenticate even if its ciphertext alone were otherwise valid.
type Authenticated struct {
	aead chacha20poly1305.AEAD
}

// NewAuthenticated builds an Authenticated codec from a 32-byte key.
func NewAuthenticated(key [32]byte) (*Authenticated, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, corefs.Wrap(corefs.IoError, "init aead", err)
	}
	return &Authenticated{aead: aead}, nil
}

// nonceFor derives a deterministic, unique-per-block nonce from the VA and
// generation counter: two writes of the same block always bump the
// generation, so the (VA, generation) pair never repeats for a live key.
func nonceFor(va vaddr.VA, generation uint64) []byte {
	n := make([]byte, chacha20poly1305.NonceSize) // 12 bytes
	binary.LittleEndian.PutUint64(n[0:8], vaEncode(va))
	binary.LittleEndian.PutUint32(n[8:12], uint32(generation))
	return n
}

func (a *Authenticated) ReadBlock(f *os.File, off int64, blockSize uint32, va vaddr.VA) ([]byte, Header, error) {
	raw, err := pread(f, off, int(blockSize))
	if err != nil {
		return nil, Header{}, err
	}
	hdr := decodeHeader(raw[:headerSize])
	if hdr.Magic != magicFor(va.Kind) {
		return nil, Header{}, corefs.New(corefs.BadMagic, "block magic mismatch at "+va.String())
	}
	if hdr.VA != va {
		return nil, Header{}, corefs.New(corefs.CorruptData, "block header VA mismatch at "+va.String())
	}
	sealed := raw[headerSize : headerSize+int(hdr.Length)]
	nonce := nonceFor(va, hdr.Generation)
	plain, err := a.aead.Open(sealed[:0:0], nonce, sealed, raw[16:32])
	if err != nil {
		return nil, Header{}, corefs.New(corefs.CorruptData, "MAC mismatch at "+va.String())
	}
	return plain, hdr, nil
}

func (a *Authenticated) WriteBlock(f *os.File, off int64, blockSize uint32, va vaddr.VA, generation uint64, payload []byte) error {
	sealedLen := len(payload) + a.aead.Overhead()
	corefs.Invariant(uint32(sealedLen) <= blockSize-headerSize, "sealed payload exceeds block capacity")

	buf := make([]byte, blockSize)
	hdr := Header{Magic: magicFor(va.Kind), Length: uint32(sealedLen), VA: va, Generation: generation}
	encodeHeader(buf[:headerSize], hdr)

	nonce := nonceFor(va, generation)
	sealed := a.aead.Seal(buf[headerSize:headerSize:blockSize], nonce, payload, buf[16:32])
	corefs.Invariant(len(sealed) == sealedLen, "unexpected AEAD output length")

	return pwrite(f, off, buf)
}
