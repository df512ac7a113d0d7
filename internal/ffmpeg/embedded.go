//go:build ffmpeg_embedded

package ffmpeg

import (
	"embed"
	"io/fs"
)

// Release builds tagged ffmpeg_embedded ship the ffmpeg bundle for their
// platform under assets/, named as assetForPlatform returns it, so Ensure
// installs without network access.
//
//go:embed assets/*
var bundled embed.FS

var embeddedAssets fs.FS = bundled
