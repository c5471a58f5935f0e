// Package backend picks the analyzer implementation named in the config.
package backend

import (
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SirClappington/textintel/internal/analyzer"
	"github.com/SirClappington/textintel/internal/analyzer/heuristic"
	"github.com/SirClappington/textintel/internal/analyzer/remote"
	"github.com/SirClappington/textintel/internal/config"
)

func New(cfg config.Config, logger *zap.Logger) (analyzer.Suite, error) {
	switch cfg.AnalyzerBackend {
	case "heuristic":
		return analyzer.SuiteOf(heuristic.New()), nil
	case "remote":
		c, err := remote.New(remote.Config{
			BaseURL:    cfg.AnalyzerURL,
			Timeout:    cfg.StageDeadline(),
			RPS:        cfg.AnalyzerRPS,
			HTTPClient: &http.Client{Timeout: cfg.StageDeadline()},
		}, logger)
		if err != nil {
			return analyzer.Suite{}, errors.Wrap(err, "remote analyzer")
		}
		return analyzer.SuiteOf(c), nil
	default:
		return analyzer.Suite{}, errors.Errorf("unknown analyzer backend %q", cfg.AnalyzerBackend)
	}
}
