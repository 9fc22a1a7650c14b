package domain

import (
	"crypto/md5"
	"encoding/hex"
)

// Image describes the picture flowing through one request. Decoding creates
// it, transformations and the encoder mutate it.
type Image struct {
	ID               string
	Width            int
	Height           int
	MimeType         string
	Extension        string
	Blob             []byte
	Checksum         string
	OriginalChecksum string
	Metadata         map[string]any
	Transformed      bool
	// OutputQuality is a 1..100 hint for lossy encoders; 0 leaves the encoder default.
	OutputQuality int
}

func NewImage(blob []byte, mimeType, extension string, width, height int) *Image {
	img := &Image{
		Width:     width,
		Height:    height,
		MimeType:  mimeType,
		Extension: extension,
		Metadata:  map[string]any{},
	}
	img.SetBlob(blob)
	return img
}

// SetBlob replaces the encoded bytes and refreshes the checksum. The first
// blob ever set is remembered as the original.
func (i *Image) SetBlob(blob []byte) {
	i.Blob = blob
	sum := md5.Sum(blob)
	i.Checksum = hex.EncodeToString(sum[:])
	if i.OriginalChecksum == "" {
		i.OriginalChecksum = i.Checksum
	}
}

func (i *Image) SetDimensions(width, height int) {
	i.Width = width
	i.Height = height
	i.Transformed = true
}

func (i *Image) Filesize() int {
	return len(i.Blob)
}
