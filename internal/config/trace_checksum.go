package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
)

type traceChecksumPayload struct {
	SafeCapacity int           `json:"safe_capacity"`
	PerDeviceMax int           `json:"per_device_max"`
	UniqueNames  bool          `json:"unique_names"`
	Events       []EventConfig `json:"events"`
}

// TraceChecksum returns a short, stable checksum that identifies the replayed
// trace together with the limits it ran against.
//
// It computes MD5 over a canonical JSON representation and returns the first 6 hex
// characters (equivalent to `md5sum | cut -c1-6`).
func TraceChecksum(cfg *Config) (string, error) {
	if cfg == nil {
		return "", nil
	}

	payload := traceChecksumPayload{
		SafeCapacity: cfg.Manager.SafeCapacity,
		PerDeviceMax: cfg.Manager.PerDeviceMax,
		UniqueNames:  cfg.Manager.UniqueNames,
		Events:       cfg.Trace,
	}
	if payload.Events == nil {
		payload.Events = []EventConfig{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])[:6], nil
}
