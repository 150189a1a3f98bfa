// Package imageio recognizes the raster encodings a WMS GetMap response may
// legitimately carry.
package imageio

import (
	"github.com/gabriel-vasile/mimetype"
)

// Known lists the media types accepted as map imagery.
var Known = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/tiff",
	"image/webp",
}

// Detect sniffs the media type of data from its leading bytes.
func Detect(data []byte) string {
	return mimetype.Detect(data).String()
}

// IsValidFormat reports whether data starts with the signature of a known
// raster encoding. The declared Content-Type of the response is not trusted.
func IsValidFormat(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	m := mimetype.Detect(data)
	for _, k := range Known {
		if m.Is(k) {
			return true
		}
	}
	return false
}
