package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/analyzer"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/config"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/history"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/logging"
)

// analyzerFlags override the environment's analyzer settings.
type analyzerFlags struct {
	provider string
	model    string
	baseURL  string
	key      string
}

func (f analyzerFlags) apply(cfg *config.Config) {
	if f.provider != "" {
		cfg.Analyzer.Provider = f.provider
	}
	if f.model != "" {
		cfg.Analyzer.Model = f.model
	}
	if f.baseURL != "" {
		cfg.Analyzer.BaseURL = f.baseURL
	}
}

// localService is a Service over a private upload root that is removed by
// close. Local runs convert one file, so nothing is cached.
type localService struct {
	svc     *core.Service
	root    string
	cleanup []func()
}

func newLocalService(ctx context.Context, cfg *config.Config, withHistory bool) (*localService, error) {
	root, err := os.MkdirTemp("", "legato-cli-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	ls := &localService{root: root}
	ls.cleanup = append(ls.cleanup, func() { _ = os.RemoveAll(root) })

	cfg.Upload.Root = root
	cfg.Cache.Scope = string(core.ScopeNone)
	if err := cfg.Validate(); err != nil {
		ls.close()
		return nil, err
	}

	var store core.HistoryStore
	if withHistory && cfg.Database.Enabled() {
		pool, err := history.Connect(ctx, cfg.Database)
		if err != nil {
			ls.close()
			return nil, err
		}
		ls.cleanup = append(ls.cleanup, pool.Close)

		rec := history.NewRecorder(pool)
		if err := rec.EnsureSchema(ctx); err != nil {
			ls.close()
			return nil, err
		}
		store = rec
	}

	layout, err := analyzer.New(cfg.Analyzer)
	if err != nil {
		ls.close()
		return nil, err
	}

	ls.svc, err = core.NewService(cfg, layout, core.NewPdftoppmRasterizer(cfg.Content.PdftoppmPath), store)
	if err != nil {
		ls.close()
		return nil, err
	}
	logging.FromContext(ctx).Debug("local service ready", "root", root, "provider", cfg.Analyzer.Provider, "history", store != nil)
	return ls, nil
}

// close runs cleanups in reverse order.
func (ls *localService) close() {
	for i := len(ls.cleanup) - 1; i >= 0; i-- {
		ls.cleanup[i]()
	}
	ls.cleanup = nil
}

// upload ingests the file at path under its base name.
func (ls *localService) upload(ctx context.Context, path string) (*core.UploadSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	size := int64(-1)
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	return ls.svc.Upload(ctx, f, filepath.Base(path), size, "")
}
