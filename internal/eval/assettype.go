package eval

import (
	"path"
	"strings"

	"github.com/brandalign/engine/pkg/types"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// AssetTypeFromURI infers the coarse asset type from the URI extension alone.
// No content inspection; extensions are matched case-insensitively.
func AssetTypeFromURI(uri string) string {
	ext := strings.ToLower(path.Ext(uri))
	switch {
	case imageExtensions[ext]:
		return types.AssetTypeImage
	case videoExtensions[ext]:
		return types.AssetTypeVideo
	default:
		return types.AssetTypeUnknown
	}
}
