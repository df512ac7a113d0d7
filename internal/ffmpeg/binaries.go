// Package ffmpeg locates the ffmpeg and ffprobe executables used to remux
// non-Matroska inputs, installing a prebuilt bundle into the user cache
// when neither the environment nor PATH provides them.
package ffmpeg

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	ffmpegReleaseVersion = "6.1"
	ffmpegReleaseBaseURL = "https://github.com/ffbinaries/ffbinaries-prebuilt/releases/download"

	envFFmpeg  = "SUBTOOLS_FFMPEG_PATH"
	envFFprobe = "SUBTOOLS_FFPROBE_PATH"
)

type BinaryPaths struct {
	FFmpeg  string
	FFprobe string
}

func (p BinaryPaths) complete() bool {
	return p.FFmpeg != "" && p.FFprobe != ""
}

var (
	ensureOnce sync.Once
	ensureErr  error
	ensurePath BinaryPaths
)

// Ensure resolves both binaries once per process.
func Ensure() (BinaryPaths, error) {
	ensureOnce.Do(func() {
		ensurePath, ensureErr = ensure()
	})
	return ensurePath, ensureErr
}

func FFmpegPath() (string, error) {
	paths, err := Ensure()
	if err != nil {
		return "", err
	}
	return paths.FFmpeg, nil
}

func FFprobePath() (string, error) {
	paths, err := Ensure()
	if err != nil {
		return "", err
	}
	return paths.FFprobe, nil
}

func ensure() (BinaryPaths, error) {
	if paths := lookupBinaries(os.Getenv, exec.LookPath); paths.complete() {
		return paths, nil
	}

	assetName, err := assetForPlatform(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return BinaryPaths{}, err
	}

	dir := installDir()
	paths := installedPaths(dir)
	if binariesExist(paths) {
		return paths, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return BinaryPaths{}, fmt.Errorf("create ffmpeg cache dir: %w", err)
	}

	embeddedUsed, err := extractEmbedded(embeddedAssets, assetName, dir)
	if err != nil {
		return BinaryPaths{}, err
	}
	if !embeddedUsed {
		if err := downloadAndExtract(assetName, dir); err != nil {
			return BinaryPaths{}, err
		}
	}

	if !binariesExist(paths) {
		return BinaryPaths{}, errors.New("ffmpeg binaries not found after extraction")
	}
	if err := makeExecutable(paths); err != nil {
		return BinaryPaths{}, err
	}
	return paths, nil
}

// lookupBinaries prefers the environment overrides, then PATH.
func lookupBinaries(getenv func(string) string, lookPath func(string) (string, error)) BinaryPaths {
	paths := BinaryPaths{
		FFmpeg:  getenv(envFFmpeg),
		FFprobe: getenv(envFFprobe),
	}
	if paths.FFmpeg == "" {
		if found, err := lookPath("ffmpeg"); err == nil {
			paths.FFmpeg = found
		}
	}
	if paths.FFprobe == "" {
		if found, err := lookPath("ffprobe"); err == nil {
			paths.FFprobe = found
		}
	}
	return paths
}

func installDir() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil || cacheDir == "" {
		cacheDir = os.TempDir()
	}
	return filepath.Join(
		cacheDir,
		"subtools",
		"ffmpeg",
		ffmpegReleaseVersion,
		runtime.GOOS,
		runtime.GOARCH,
	)
}

func installedPaths(dir string) BinaryPaths {
	exeSuffix := executableSuffix()
	return BinaryPaths{
		FFmpeg:  filepath.Join(dir, "ffmpeg"+exeSuffix),
		FFprobe: filepath.Join(dir, "ffprobe"+exeSuffix),
	}
}

func makeExecutable(paths BinaryPaths) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	for _, p := range []string{paths.FFmpeg, paths.FFprobe} {
		if err := os.Chmod(p, 0o755); err != nil {
			return fmt.Errorf("chmod %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

func assetForPlatform(goos, goarch string) (string, error) {
	switch {
	case goos == "linux" && goarch == "amd64":
		return "ffmpeg-" + ffmpegReleaseVersion + "-linux-64.zip", nil
	case goos == "linux" && goarch == "arm64":
		return "ffmpeg-" + ffmpegReleaseVersion + "-linux-arm-64.zip", nil
	case goos == "darwin" && goarch == "amd64":
		return "ffmpeg-" + ffmpegReleaseVersion + "-macos-64.zip", nil
	case goos == "windows" && goarch == "amd64":
		return "ffmpeg-" + ffmpegReleaseVersion + "-win-64.zip", nil
	default:
		return "", fmt.Errorf("unsupported platform for bundled ffmpeg: %s/%s (set %s and %s)",
			goos, goarch, envFFmpeg, envFFprobe)
	}
}

func downloadAndExtract(assetName, dir string) error {
	url := fmt.Sprintf("%s/v%s/%s", ffmpegReleaseBaseURL, ffmpegReleaseVersion, assetName)
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("download ffmpeg bundle: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download ffmpeg bundle: unexpected status %s", resp.Status)
	}

	return extractArchiveFromReader(assetName, resp.Body, dir)
}

// extractEmbedded installs assets/<assetName> from fsys into dir. It
// reports false when fsys is nil or holds no bundle for this platform.
func extractEmbedded(fsys fs.FS, assetName, dir string) (bool, error) {
	if fsys == nil {
		return false, nil
	}
	reader, err := fsys.Open(path.Join("assets", assetName))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer func() { _ = reader.Close() }()

	return true, extractArchiveFromReader(assetName, reader, dir)
}

// zip needs random access, so the stream is spooled to a temp file first
func extractArchiveFromReader(assetName string, reader io.Reader, dir string) error {
	tmpFile, err := os.CreateTemp("", "subtools-ffmpeg-*.zip")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	archivePath := tmpFile.Name()
	defer func() { _ = os.Remove(archivePath) }()

	_, err = io.Copy(tmpFile, reader)
	if closeErr := tmpFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	if err := extractArchive(archivePath, dir); err != nil {
		return fmt.Errorf("extract %s: %w", assetName, err)
	}
	return nil
}

func extractArchive(archivePath, dir string) error {
	zipReader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open ffmpeg archive: %w", err)
	}
	defer func() { _ = zipReader.Close() }()

	paths := installedPaths(dir)
	found := map[string]bool{}
	for _, file := range zipReader.File {
		var dest string
		switch name := binaryName(file.Name); name {
		case "ffmpeg":
			dest = paths.FFmpeg
		case "ffprobe":
			dest = paths.FFprobe
		default:
			continue
		}
		if err := extractZipFile(file, dest); err != nil {
			return err
		}
		found[dest] = true
	}

	if !found[paths.FFmpeg] || !found[paths.FFprobe] {
		return fmt.Errorf("ffmpeg archive missing required binaries")
	}
	return nil
}

func extractZipFile(file *zip.File, dest string) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("open ffmpeg archive entry: %w", err)
	}
	defer func() { _ = reader.Close() }()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create ffmpeg output dir: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create ffmpeg binary: %w", err)
	}
	if _, err := io.Copy(out, reader); err != nil {
		_ = out.Close()
		return fmt.Errorf("write ffmpeg binary: %w", err)
	}
	return out.Close()
}

func binariesExist(paths BinaryPaths) bool {
	return fileExists(paths.FFmpeg) && fileExists(paths.FFprobe)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

// binaryName maps an archive entry to "ffmpeg", "ffprobe" or "".
func binaryName(entry string) string {
	name := strings.TrimSuffix(strings.ToLower(filepath.Base(entry)), ".exe")
	if name == "ffmpeg" || name == "ffprobe" {
		return name
	}
	return ""
}

func executableSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
