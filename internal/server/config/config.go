// Package config loads process configuration from the environment.
// Everything is read once at startup and treated as immutable afterwards;
// a missing required value or an unparsable value is an error, never a
// runtime surprise.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rescrv/brief-measure/internal/shared/apperr"
)

// EnvPrefix is prepended to every variable name, e.g. database_url is read
// from BRIEF_MEASURE_DATABASE_URL.
const EnvPrefix = "BRIEF_MEASURE"

type Config struct {
	HTTPAddr               string
	DatabaseDSN            string
	DatabaseMaxConns       int
	DatabaseConnectTimeout time.Duration
	DatabaseQueryTimeout   time.Duration
	ObservationWindow      time.Duration
	ObservationWindowCap   int64
	DefaultLimit           int64
	MaxLimit               int64
	MaxRequestBytes        int64
}

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("http_addr", "127.0.0.1:3000")
	v.SetDefault("database_max_connections", 5)
	v.SetDefault("database_connect_timeout_secs", 30)
	v.SetDefault("database_query_timeout_secs", 10)
	v.SetDefault("observation_window_secs", 86400)
	v.SetDefault("observation_window_cap", 2)
	v.SetDefault("observation_default_limit", 90)
	v.SetDefault("observation_max_limit", 90)
	v.SetDefault("max_request_bytes", 1<<20)

	dsn := v.GetString("database_url")
	if dsn == "" {
		return Config{}, apperr.MissingConfig(EnvPrefix + "_DATABASE_URL")
	}

	cfg := Config{
		HTTPAddr:    v.GetString("http_addr"),
		DatabaseDSN: dsn,
	}

	maxConns, err := intValue(v, "database_max_connections")
	if err != nil {
		return Config{}, err
	}
	cfg.DatabaseMaxConns = int(maxConns)

	connectSecs, err := intValue(v, "database_connect_timeout_secs")
	if err != nil {
		return Config{}, err
	}
	cfg.DatabaseConnectTimeout = time.Duration(connectSecs) * time.Second

	querySecs, err := intValue(v, "database_query_timeout_secs")
	if err != nil {
		return Config{}, err
	}
	cfg.DatabaseQueryTimeout = time.Duration(querySecs) * time.Second

	windowSecs, err := intValue(v, "observation_window_secs")
	if err != nil {
		return Config{}, err
	}
	cfg.ObservationWindow = time.Duration(windowSecs) * time.Second

	if cfg.ObservationWindowCap, err = intValue(v, "observation_window_cap"); err != nil {
		return Config{}, err
	}
	if cfg.DefaultLimit, err = intValue(v, "observation_default_limit"); err != nil {
		return Config{}, err
	}
	if cfg.MaxLimit, err = intValue(v, "observation_max_limit"); err != nil {
		return Config{}, err
	}
	if cfg.MaxRequestBytes, err = intValue(v, "max_request_bytes"); err != nil {
		return Config{}, err
	}

	if cfg.DatabaseMaxConns <= 0 {
		return Config{}, apperr.InvalidConfig(EnvPrefix + "_DATABASE_MAX_CONNECTIONS")
	}
	if cfg.ObservationWindowCap < 0 {
		return Config{}, apperr.InvalidConfig(EnvPrefix + "_OBSERVATION_WINDOW_CAP")
	}
	if cfg.DefaultLimit <= 0 || cfg.MaxLimit <= 0 || cfg.DefaultLimit > cfg.MaxLimit {
		return Config{}, apperr.InvalidConfig(EnvPrefix + "_OBSERVATION_MAX_LIMIT")
	}

	return cfg, nil
}

// intValue parses a key strictly: viper's GetInt64 silently turns garbage
// into zero, which would mask a misconfigured deployment.
func intValue(v *viper.Viper, key string) (int64, error) {
	raw := v.GetString(key)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.InvalidConfig(EnvPrefix + "_" + strings.ToUpper(key))
	}
	return n, nil
}
