package blob

import (
	"fmt"
	"strings"

	appcfg "github.com/Carnacky79/energy-optimizer-v2/internal/config"
)

type Logger interface {
	Printf(format string, v ...any)
}

// NewBlobStore builds a slot store using mode memory|sqlite|s3|auto.
// auto: s3 when configured, else sqlite when BLOB_SQLITE_PATH is set, else memory.
func NewBlobStore(cfg appcfg.BlobConfig, logger Logger) (Store, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = appcfg.BlobModeMemory
	}

	switch mode {
	case appcfg.BlobModeMemory:
		logf(logger, "INFO blob: mode=memory (forced)")
		return NewMemoryStore(), appcfg.BlobModeMemory, nil

	case appcfg.BlobModeSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			logf(logger, "FATAL blob.sqlite: code=sqlite_path_missing")
			return nil, "", fmt.Errorf("BLOB_MODE=sqlite requested but BLOB_SQLITE_PATH is empty")
		}
		store, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			logf(logger, "FATAL blob.sqlite: init_failed=%v", err)
			return nil, "", fmt.Errorf("BLOB_MODE=sqlite init failed: %w", err)
		}
		logf(logger, "INFO blob: mode=sqlite (forced) path=%s", cfg.SQLitePath)
		return store, appcfg.BlobModeSQLite, nil

	case appcfg.BlobModeAuto:
		if cfg.S3.IsConfigured() {
			logf(logger, "INFO blob.s3: code=s3_ready %s", cfg.S3.DiagnosticsSummary())
			store, err := newS3FromConfig(cfg.S3)
			if err == nil {
				logf(logger, "INFO blob: mode=s3 (auto, configured)")
				return store, appcfg.BlobModeS3, nil
			}
			logf(logger, "WARN blob.s3: init_failed=%q, fallback=local", err.Error())
		} else {
			level, code, msg := cfg.S3.Diagnostics()
			logf(logger, "%s blob.s3: code=%s %s", level, code, msg)
			logf(logger, "INFO blob.s3: %s", cfg.S3.DiagnosticsSummary())
		}

		if strings.TrimSpace(cfg.SQLitePath) != "" {
			store, err := NewSQLiteStore(cfg.SQLitePath)
			if err == nil {
				logf(logger, "INFO blob: mode=sqlite (auto) path=%s", cfg.SQLitePath)
				return store, appcfg.BlobModeSQLite, nil
			}
			logf(logger, "WARN blob.sqlite: init_failed=%q, fallback=memory", err.Error())
		}

		logf(logger, "INFO blob: mode=memory (auto, nothing else configured)")
		return NewMemoryStore(), appcfg.BlobModeMemory, nil

	case appcfg.BlobModeS3:
		if !cfg.S3.IsConfigured() {
			missing := cfg.S3.MissingRequired()
			logf(logger, "FATAL blob.s3: code=s3_config_incomplete missing=%v", missing)
			logf(logger, "FATAL blob.s3: %s", cfg.S3.DiagnosticsSummary())
			err := fmt.Errorf("BLOB_MODE=s3 requested but missing required config: %s", strings.Join(missing, ", "))
			return nil, "", err
		}

		logf(logger, "INFO blob.s3: code=s3_ready %s", cfg.S3.DiagnosticsSummary())
		store, err := newS3FromConfig(cfg.S3)
		if err != nil {
			logf(logger, "FATAL blob.s3: init_failed=%v", err)
			return nil, "", fmt.Errorf("BLOB_MODE=s3 init failed: %w", err)
		}

		logf(logger, "INFO blob: mode=s3 (forced)")
		return store, appcfg.BlobModeS3, nil

	default:
		return nil, "", fmt.Errorf("unsupported blob mode: %s", mode)
	}
}

func newS3FromConfig(c appcfg.S3Config) (*S3Store, error) {
	return NewS3Store(c.Endpoint, c.Region, c.Bucket, c.AccessKeyID, c.SecretAccessKey, c.Prefix, c.UsePathStyle)
}

func logf(logger Logger, format string, v ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, v...)
}
