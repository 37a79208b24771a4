package content

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/google/uuid"
)

// Well known bundle names.
const (
	BundleOriginal = "ORIGINAL"
	BundleORE      = "ORE"
)

// Bundle is a named group of bitstreams on an item.
type Bundle struct {
	ID         uuid.UUID
	Name       string
	Bitstreams []Bitstream
}

// Bitstream is a stored file.
type Bitstream struct {
	ID       uuid.UUID
	Name     string
	MimeType string
	Size     int64
	Checksum string
	Source   string
	Content  []byte
}

// NewBitstream builds a bitstream and computes its size and MD5 checksum.
func NewBitstream(name, mimeType, source string, data []byte) Bitstream {
	sum := md5.Sum(data)
	return Bitstream{
		ID:       uuid.New(),
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Checksum: hex.EncodeToString(sum[:]),
		Source:   source,
		Content:  data,
	}
}

// Put adds b to the bundle, replacing any bitstream with the same name.
func (b *Bundle) Put(bs Bitstream) {
	for i := range b.Bitstreams {
		if b.Bitstreams[i].Name == bs.Name {
			bs.ID = b.Bitstreams[i].ID
			b.Bitstreams[i] = bs
			return
		}
	}
	b.Bitstreams = append(b.Bitstreams, bs)
}

// Bitstream returns the named bitstream, or nil.
func (b *Bundle) Bitstream(name string) *Bitstream {
	for i := range b.Bitstreams {
		if b.Bitstreams[i].Name == name {
			return &b.Bitstreams[i]
		}
	}
	return nil
}
