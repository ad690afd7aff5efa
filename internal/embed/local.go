package embed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"

	idxerrors "github.com/openclaw/memindex/internal/errors"
)

// libraryName resolves the shared library amenable to purego.Dlopen for a
// GGUF-family inference runtime on the running OS, the same resolution
// cmd/purego-test exercised against libc/libSystem.
func libraryName() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		return "libllama.dylib", nil
	case "linux":
		return "libllama.so", nil
	default:
		return "", fmt.Errorf("local embedding provider not supported on %s", runtime.GOOS)
	}
}

// localRuntime holds the dlopen handle and resolved symbols for the model
// library, lazily initialized so processes that never touch the Local
// provider never pay a dlopen cost.
type localRuntime struct {
	handle     uintptr
	loadModel  func(path string) uintptr
	freeModel  func(model uintptr)
	embed      func(model uintptr, text string, out *float32, dims int32) int32
	dimensions func(model uintptr) int32
	model      uintptr
	dims       int
}

// LocalProvider embeds text by dlopen'ing a GGUF-family model library via
// purego and calling into it directly, with no subprocess or network hop.
// The library and model are loaded lazily on first use and guarded
// by a cross-process FileLock so concurrent agent processes don't race on
// the same model download/load.
type LocalProvider struct {
	modelPath string
	cacheDir  string
	modelName string

	mu      sync.Mutex
	runtime *localRuntime
	initErr error
}

// NewLocalProvider constructs a Local provider for modelPath (a GGUF file
// on disk) with cacheDir used for the cross-process load lock.
func NewLocalProvider(modelPath, cacheDir, modelName string) *LocalProvider {
	return &LocalProvider{
		modelPath: modelPath,
		cacheDir:  cacheDir,
		modelName: modelName,
	}
}

func (p *LocalProvider) ID() string    { return "local" }
func (p *LocalProvider) Model() string { return p.modelName }

func (p *LocalProvider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runtime == nil {
		return 0
	}
	return p.runtime.dims
}

// ensureLoaded dlopens the runtime library and loads the model, exactly
// once. Concurrent callers within this process block on mu; concurrent
// agent processes are serialized by a FileLock over cacheDir.
func (p *LocalProvider) ensureLoaded(ctx context.Context) (*localRuntime, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.runtime != nil {
		return p.runtime, nil
	}
	if p.initErr != nil {
		return nil, p.initErr
	}

	if err := p.load(ctx); err != nil {
		p.initErr = err
		return nil, err
	}
	return p.runtime, nil
}

func (p *LocalProvider) load(ctx context.Context) error {
	if _, err := os.Stat(p.modelPath); err != nil {
		return idxerrors.New(idxerrors.ErrCodeProviderSetup,
			fmt.Sprintf("local model file not found: %s", p.modelPath), err)
	}

	lock := NewFileLock(p.cacheDir)
	if err := os.MkdirAll(p.cacheDir, 0o755); err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeProviderSetup, err)
	}
	if err := lock.Lock(); err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeProviderSetup, err)
	}
	defer lock.Unlock()

	libName, err := libraryName()
	if err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeProviderSetup, err)
	}

	var handle uintptr
	err = DownloadWithRetry(ctx, DefaultRetryConfig(), func() error {
		var openErr error
		handle, openErr = purego.Dlopen(libName, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		return openErr
	})
	if err != nil {
		return idxerrors.New(idxerrors.ErrCodeProviderSetup,
			fmt.Sprintf("failed to load %s: %v", libName, err), err)
	}

	rt := &localRuntime{handle: handle}
	purego.RegisterLibFunc(&rt.loadModel, handle, "embed_load_model")
	purego.RegisterLibFunc(&rt.freeModel, handle, "embed_free_model")
	purego.RegisterLibFunc(&rt.embed, handle, "embed_text")
	purego.RegisterLibFunc(&rt.dimensions, handle, "embed_dimensions")

	rt.model = rt.loadModel(filepath.Clean(p.modelPath))
	if rt.model == 0 {
		purego.Dlclose(handle)
		return idxerrors.New(idxerrors.ErrCodeProviderSetup,
			fmt.Sprintf("model library rejected %s", p.modelPath), nil)
	}
	rt.dims = int(rt.dimensions(rt.model))

	p.runtime = rt
	return nil
}

func (p *LocalProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	rt, err := p.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		raw := make([]float32, rt.dims)
		rc := rt.embed(rt.model, text, &raw[0], int32(rt.dims))
		if rc != 0 {
			return nil, idxerrors.New(idxerrors.ErrCodeProviderCall,
				fmt.Sprintf("embed_text returned code %d", rc), nil)
		}
		out[i] = normalizeVector(raw)
	}
	return out, nil
}

func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.runtime == nil {
		return nil
	}
	if p.runtime.model != 0 {
		p.runtime.freeModel(p.runtime.model)
	}
	purego.Dlclose(p.runtime.handle)
	p.runtime = nil
	return nil
}
