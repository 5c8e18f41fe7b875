package encoder

import "image"

// Encoder compresses a frame into bytes the feed can carry.
type Encoder interface {
	Encode(img *image.RGBA) ([]byte, error)
}
