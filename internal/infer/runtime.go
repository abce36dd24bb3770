package infer

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// ensureRuntime loads the ONNX Runtime shared library once per process and
// initializes the environment. Unlike an embedded-asset build, the shared
// library path here always comes from the environment or the platform's
// default shared-library search path: a library has no binary to embed,
// and no fixed install location to assume.
func ensureRuntime() error {
	runtimeOnce.Do(func() {
		if path := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); path != "" {
			ort.SetSharedLibraryPath(path)
		} else if path := defaultSharedLibraryPath(); path != "" {
			ort.SetSharedLibraryPath(path)
		}

		if err := ort.InitializeEnvironment(); err != nil {
			runtimeErr = fmt.Errorf("infer: InitializeEnvironment: %w", err)
		}
	})
	return runtimeErr
}

func defaultSharedLibraryPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "/usr/local/lib/libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "/usr/local/lib/libonnxruntime.so"
	}
}
