package storage

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/smallbiznis/opspulse/internal/config"
)

type Mode string

const (
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
	ModeMemory      Mode = "memory"
)

type ConfigError struct {
	Mode         string
	EmulatorHost string
	Reason       string
}

func (e *ConfigError) Error() string {
	if e.EmulatorHost != "" {
		return fmt.Sprintf("invalid object storage config (mode=%q emulator_host=%q): %s", e.Mode, e.EmulatorHost, e.Reason)
	}
	return fmt.Sprintf("invalid object storage config (mode=%q): %s", e.Mode, e.Reason)
}

// ResolveMode picks the storage mode. An empty mode falls back to the
// emulator when STORAGE_EMULATOR_HOST is set, otherwise real GCS.
func ResolveMode(cfg config.StorageConfig) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(cfg.Mode)))
	switch mode {
	case "":
		if strings.TrimSpace(cfg.EmulatorHost) != "" {
			mode = ModeGCSEmulator
		} else {
			mode = ModeGCS
		}
	case ModeGCS, ModeGCSEmulator, ModeMemory:
	default:
		return "", &ConfigError{Mode: cfg.Mode, Reason: "allowed modes are gcs, gcs_emulator, memory"}
	}

	if mode == ModeGCSEmulator {
		host := strings.TrimSpace(cfg.EmulatorHost)
		if host == "" {
			return "", &ConfigError{Mode: string(mode), Reason: "STORAGE_EMULATOR_HOST is required"}
		}
		u, err := url.Parse(host)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", &ConfigError{Mode: string(mode), EmulatorHost: host, Reason: "expected absolute URL like http://fake-gcs:4443"}
		}
	}
	if mode != ModeMemory && strings.TrimSpace(cfg.Bucket) == "" {
		return "", &ConfigError{Mode: string(mode), Reason: "EXPORT_GCS_BUCKET_NAME is required"}
	}
	return mode, nil
}
