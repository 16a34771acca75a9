package imageprocessor

import (
	"path/filepath"
	"strings"
)

// FormatType represents a known raster format
type FormatType string

const (
	FormatUnknown FormatType = "unknown"
	FormatJPEG    FormatType = "jpeg"
	FormatPNG     FormatType = "png"
	FormatGIF     FormatType = "gif"
	FormatTIFF    FormatType = "tiff"
	FormatBMP     FormatType = "bmp"
	FormatWEBP    FormatType = "webp"
)

var formatExtensions = map[string]FormatType{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".gif":  FormatGIF,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
	".bmp":  FormatBMP,
	".webp": FormatWEBP,
}

// IsImageFile checks if a file is a supported raster based on extension
func IsImageFile(path string) bool {
	_, supported := formatExtensions[strings.ToLower(filepath.Ext(path))]
	return supported
}

// GetFileFormat returns the format type based on file extension
func GetFileFormat(path string) FormatType {
	format, exists := formatExtensions[strings.ToLower(filepath.Ext(path))]
	if !exists {
		return FormatUnknown
	}
	return format
}

// IsTiffFormat checks if a file is in TIFF format
func IsTiffFormat(path string) bool {
	return GetFileFormat(path) == FormatTIFF
}
