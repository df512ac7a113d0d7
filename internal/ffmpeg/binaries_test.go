package ffmpeg

import (
	"archive/zip"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestLookupBinaries(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }
	onPath := map[string]string{}
	lookPath := func(name string) (string, error) {
		if p, ok := onPath[name]; ok {
			return p, nil
		}
		return "", errors.New("not found")
	}

	if got := lookupBinaries(getenv, lookPath); got.complete() {
		t.Errorf("expected nothing, got %+v", got)
	}

	onPath["ffmpeg"] = "/usr/bin/ffmpeg"
	onPath["ffprobe"] = "/usr/bin/ffprobe"
	got := lookupBinaries(getenv, lookPath)
	if got.FFmpeg != "/usr/bin/ffmpeg" || got.FFprobe != "/usr/bin/ffprobe" {
		t.Errorf("PATH lookup = %+v", got)
	}

	env[envFFmpeg] = "/opt/ffmpeg"
	got = lookupBinaries(getenv, lookPath)
	if got.FFmpeg != "/opt/ffmpeg" || got.FFprobe != "/usr/bin/ffprobe" {
		t.Errorf("env override = %+v", got)
	}
}

func TestAssetForPlatform(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
		wantErr      bool
	}{
		{"linux", "amd64", "ffmpeg-6.1-linux-64.zip", false},
		{"linux", "arm64", "ffmpeg-6.1-linux-arm-64.zip", false},
		{"darwin", "amd64", "ffmpeg-6.1-macos-64.zip", false},
		{"windows", "amd64", "ffmpeg-6.1-win-64.zip", false},
		{"plan9", "386", "", true},
	}
	for _, tt := range tests {
		got, err := assetForPlatform(tt.goos, tt.goarch)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s/%s: error = %v", tt.goos, tt.goarch, err)
		}
		if got != tt.want {
			t.Errorf("%s/%s = %q, want %q", tt.goos, tt.goarch, got, tt.want)
		}
	}
}

func TestBinaryName(t *testing.T) {
	tests := map[string]string{
		"ffmpeg":               "ffmpeg",
		"bundle/FFMPEG.exe":    "ffmpeg",
		"ffprobe":              "ffprobe",
		"dir/ffprobe.exe":      "ffprobe",
		"ffplay":               "",
		"readme/ffmpeg.txt":    "",
		"__MACOSX/._something": "",
	}
	for in, want := range tests {
		if got := binaryName(in); got != want {
			t.Errorf("binaryName(%q) = %q, want %q", in, got, want)
		}
	}
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtractArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "bundle.zip")
	writeZip(t, archive, map[string]string{
		"bin/ffmpeg" + executableSuffix():  "ffmpeg-binary",
		"bin/ffprobe" + executableSuffix(): "ffprobe-binary",
		"LICENSE":                           "text",
	})

	install := filepath.Join(dir, "install")
	if err := extractArchive(archive, install); err != nil {
		t.Fatalf("extractArchive: %v", err)
	}
	paths := installedPaths(install)
	if !binariesExist(paths) {
		t.Fatalf("binaries missing in %s", install)
	}
	data, _ := os.ReadFile(paths.FFprobe)
	if string(data) != "ffprobe-binary" {
		t.Errorf("ffprobe content = %q", data)
	}
	if err := makeExecutable(paths); err != nil {
		t.Errorf("makeExecutable: %v", err)
	}
}

func TestExtractArchiveMissingBinary(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "bundle.zip")
	writeZip(t, archive, map[string]string{"ffmpeg": "only one"})

	if err := extractArchive(archive, filepath.Join(dir, "install")); err == nil {
		t.Error("expected error for archive without ffprobe")
	}
}

func TestExtractEmbeddedWithoutAssets(t *testing.T) {
	for name, fsys := range map[string]fs.FS{
		"untagged build": nil,
		"other platform": fstest.MapFS{"assets/ffmpeg-6.1-macos-64.zip": {Data: []byte("zip")}},
	} {
		used, err := extractEmbedded(fsys, "ffmpeg-6.1-linux-64.zip", t.TempDir())
		if err != nil || used {
			t.Errorf("%s: extractEmbedded = %v, %v; want false, nil", name, used, err)
		}
	}
}

func TestExtractEmbedded(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "bundle.zip")
	writeZip(t, archive, map[string]string{
		"ffmpeg" + executableSuffix():  "ffmpeg-binary",
		"ffprobe" + executableSuffix(): "ffprobe-binary",
	})
	data, err := os.ReadFile(archive)
	if err != nil {
		t.Fatal(err)
	}
	fsys := fstest.MapFS{"assets/ffmpeg-6.1-linux-64.zip": {Data: data}}

	install := filepath.Join(dir, "install")
	used, err := extractEmbedded(fsys, "ffmpeg-6.1-linux-64.zip", install)
	if err != nil || !used {
		t.Fatalf("extractEmbedded = %v, %v; want true, nil", used, err)
	}
	if !binariesExist(installedPaths(install)) {
		t.Errorf("binaries missing in %s", install)
	}
}
