package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

type Config struct {
	AppEnv           string `env:"APP_ENV" envDefault:"development"`
	APIAddr          string `env:"API_ADDR" envDefault:":8080"`
	WorkerHealthAddr string `env:"WORKER_HEALTH_ADDR" envDefault:":8081"`
	PostgresDSN      string `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr        string `env:"REDIS_ADDR,notEmpty"`
	RedisPassword    string `env:"REDIS_PASSWORD"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	MigrationsDir    string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	QueueStream string `env:"QUEUE_STREAM" envDefault:"textintel:jobs"`
	QueueGroup  string `env:"QUEUE_GROUP" envDefault:"textintel-workers"`
	DefaultVT   int    `env:"DEFAULT_VISIBILITY_TIMEOUT_SEC" envDefault:"60"`
	QueueBlock  int    `env:"QUEUE_BLOCK_MS" envDefault:"5000"`

	SyncThreshold  int    `env:"SYNC_THRESHOLD" envDefault:"1000"`
	MaxTextLength  int    `env:"MAX_TEXT_LENGTH" envDefault:"100000"`
	TargetLanguage string `env:"TARGET_LANGUAGE" envDefault:"en"`
	StageTimeout   int    `env:"STAGE_TIMEOUT_SEC" envDefault:"30"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"1"`

	AnalyzerBackend string  `env:"ANALYZER_BACKEND" envDefault:"heuristic"`
	AnalyzerURL     string  `env:"ANALYZER_URL"`
	AnalyzerRPS     float64 `env:"ANALYZER_RPS" envDefault:"0"`

	ReconcileInterval   int `env:"RECONCILE_INTERVAL_SEC" envDefault:"30"`
	ReconcileStaleAfter int `env:"RECONCILE_STALE_AFTER_SEC" envDefault:"300"`
	ReconcileBatch      int `env:"RECONCILE_BATCH" envDefault:"200"`
}

func Load() Config {
	c, err := Parse()
	if err != nil {
		log.Fatal(err)
	}
	return c
}

// Parse reads the environment and validates the result.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, errors.Wrap(err, "parse env")
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.SyncThreshold <= 0 {
		return errors.New("SYNC_THRESHOLD must be positive")
	}
	if c.MaxTextLength <= c.SyncThreshold {
		return errors.Errorf("MAX_TEXT_LENGTH (%d) must exceed SYNC_THRESHOLD (%d)", c.MaxTextLength, c.SyncThreshold)
	}
	if c.DefaultVT <= 0 {
		return errors.New("DEFAULT_VISIBILITY_TIMEOUT_SEC must be positive")
	}
	switch c.AnalyzerBackend {
	case "heuristic":
	case "remote":
		if c.AnalyzerURL == "" {
			return errors.New("ANALYZER_URL is required for the remote analyzer backend")
		}
	default:
		return errors.Errorf("unknown ANALYZER_BACKEND %q", c.AnalyzerBackend)
	}
	if c.WorkerConcurrency < 1 {
		return errors.New("WORKER_CONCURRENCY must be at least 1")
	}
	return nil
}

func (c Config) VisibilityTimeout() time.Duration {
	return time.Duration(c.DefaultVT) * time.Second
}

func (c Config) QueueBlockTimeout() time.Duration {
	return time.Duration(c.QueueBlock) * time.Millisecond
}

func (c Config) StageDeadline() time.Duration {
	return time.Duration(c.StageTimeout) * time.Second
}

func (c Config) ReconcileEvery() time.Duration {
	return time.Duration(c.ReconcileInterval) * time.Second
}

func (c Config) StaleAfter() time.Duration {
	return time.Duration(c.ReconcileStaleAfter) * time.Second
}
