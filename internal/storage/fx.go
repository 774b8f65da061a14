package storage

import (
	"context"
	"strings"

	"github.com/smallbiznis/opspulse/internal/clock"
	"github.com/smallbiznis/opspulse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("storage",
	fx.Provide(New),
)

func New(lc fx.Lifecycle, cfg config.Config, clk clock.Clock, log *zap.Logger) (ObjectStore, error) {
	mode, err := ResolveMode(cfg.Storage)
	if err != nil {
		return nil, err
	}
	log = log.Named("storage")

	if mode == ModeMemory {
		log.Warn("object storage running in memory; exports are lost on restart")
		return NewMemoryStore(clk), nil
	}

	emulatorHost := strings.TrimRight(strings.TrimSpace(cfg.Storage.EmulatorHost), "/")
	client, err := newGCSClient(context.Background(), mode, emulatorHost)
	if err != nil {
		return nil, err
	}
	store := &GCSStore{
		client:        client,
		bucket:        cfg.Storage.Bucket,
		mode:          mode,
		emulatorHost:  emulatorHost,
		publicBaseURL: strings.TrimRight(cfg.Storage.PublicBaseURL, "/"),
		clock:         clk,
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})

	log.Info("object storage initialized",
		zap.String("mode", string(mode)),
		zap.String("bucket", cfg.Storage.Bucket),
		zap.String("emulator_host", emulatorHost),
	)
	return store, nil
}
