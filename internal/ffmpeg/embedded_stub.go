//go:build !ffmpeg_embedded

package ffmpeg

import "io/fs"

// without the ffmpeg_embedded tag binaries come from PATH or a download
var embeddedAssets fs.FS
