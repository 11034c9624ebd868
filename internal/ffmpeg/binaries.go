package ffmpeg

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// ErrNotFound is returned when no usable binary can be located.
var ErrNotFound = errors.New("ffmpeg binary not found")

type BinaryPaths struct {
	FFmpeg  string
	FFprobe string
}

var (
	mu        sync.Mutex
	overrides BinaryPaths
	resolved  = map[string]string{}
)

// Configure sets explicit binary paths, taking precedence over PATH lookup.
// Empty values keep the default lookup for that binary.
func Configure(ffmpegPath, ffprobePath string) {
	mu.Lock()
	defer mu.Unlock()
	overrides = BinaryPaths{FFmpeg: ffmpegPath, FFprobe: ffprobePath}
	resolved = map[string]string{}
}

// resolve looks a binary up once per configuration. Each binary is resolved
// on its own, so encoding works without ffprobe.
func resolve(name string, override func(BinaryPaths) string) (string, error) {
	mu.Lock()
	defer mu.Unlock()
	if path, ok := resolved[name]; ok {
		return path, nil
	}
	path, err := find(name, override(overrides))
	if err != nil {
		return "", err
	}
	resolved[name] = path
	return path, nil
}

// Locate resolves both binaries.
func Locate() (BinaryPaths, error) {
	ffmpegPath, err := FFmpegPath()
	if err != nil {
		return BinaryPaths{}, err
	}
	ffprobePath, err := FFprobePath()
	if err != nil {
		return BinaryPaths{}, err
	}
	return BinaryPaths{FFmpeg: ffmpegPath, FFprobe: ffprobePath}, nil
}

func FFmpegPath() (string, error) {
	return resolve("ffmpeg", func(p BinaryPaths) string { return p.FFmpeg })
}

func FFprobePath() (string, error) {
	return resolve("ffprobe", func(p BinaryPaths) string { return p.FFprobe })
}

// find checks the override, then PATH, then the per-user cache directory
// where a bundled build may have been unpacked.
func find(name, override string) (string, error) {
	if override != "" {
		if !fileExists(override) {
			return "", fmt.Errorf("%w: %s does not exist", ErrNotFound, override)
		}
		return override, nil
	}

	if found, err := exec.LookPath(name); err == nil {
		return found, nil
	}

	cached := filepath.Join(cacheDir(), name+executableSuffix())
	if fileExists(cached) {
		return cached, nil
	}

	return "", fmt.Errorf("%w: %s (install it or set VIBHAJ_%s_PATH)",
		ErrNotFound, name, strings.ToUpper(name))
}

func cacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "vibhaj", "ffmpeg", runtime.GOOS, runtime.GOARCH)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

func executableSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
