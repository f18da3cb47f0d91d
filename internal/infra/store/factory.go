package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/infra/config"
)

// FileConfig represents file backend settings.
type FileConfig struct {
	Dir string `mapstructure:"dir"`
}

// NewFromConfig creates a store using the configured backend.
func NewFromConfig(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	var kv KV

	zlog.Debug().Msgf("creating store: type=%s settings=%+v", cfg.Type, redactSettings(cfg.Settings))
	switch cfg.Type {
	case "memory":
		kv = NewMemoryKV()

	case "file":
		var fc FileConfig
		if err := decodeSettings(cfg.Settings, &fc); err != nil {
			return nil, err
		}
		f, err := NewFileKV(fc.Dir)
		if err != nil {
			return nil, err
		}
		kv = f

	case "redis":
		var rc RedisConfig
		if err := decodeSettings(cfg.Settings, &rc); err != nil {
			return nil, err
		}
		r, err := NewRedisKV(ctx, rc)
		if err != nil {
			return nil, err
		}
		kv = r

	case "sqlite":
		var sc SQLiteConfig
		if err := decodeSettings(cfg.Settings, &sc); err != nil {
			return nil, err
		}
		s, err := NewSQLiteKV(ctx, sc)
		if err != nil {
			return nil, err
		}
		kv = s

	default:
		return nil, errors.Newf("unsupported store type: %s", cfg.Type)
	}

	zlog.Info().Msgf("store ready: type=%s", cfg.Type)
	return New(kv), nil
}

// decodeSettings decodes a settings map into out, applies defaults and validates it.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode store settings")
	}

	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(out); err != nil {
		return errors.Wrap(err, "store settings validation failed")
	}
	return nil
}

func redactSettings(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		if k == "password" {
			v = "***"
		}
		out[k] = v
	}
	return out
}
