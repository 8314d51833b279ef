package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/diarykeeper/internal/flagx"
	"github.com/dmitrijs2005/diarykeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the server config. Durations accept
// either "30m"-style strings or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	KDFIterations               int            `json:"kdf_iterations"`
	SessionTimeout              timex.Duration `json:"session_timeout"`
	SweepInterval               timex.Duration `json:"sweep_interval"`
	StoreBackend                string         `json:"store_backend"`
	BadgerPath                  string         `json:"badger_path"`
	MediaBackend                string         `json:"media_backend"`
	MaxMediaSize                int64          `json:"max_media_size"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
}

// parseJson overlays values from the file named by -c/-config (or
// $DIARYKEEPER_CONFIG). Keys absent from the file keep their current value.
func parseJson(config *Config) error {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", jsonConfigFile, err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	if c.KDFIterations != 0 {
		config.KDFIterations = c.KDFIterations
	}
	setDuration(&config.SessionTimeout, c.SessionTimeout)
	setDuration(&config.SweepInterval, c.SweepInterval)
	setString(&config.StoreBackend, c.StoreBackend)
	setString(&config.BadgerPath, c.BadgerPath)
	setString(&config.MediaBackend, c.MediaBackend)
	if c.MaxMediaSize != 0 {
		config.MaxMediaSize = c.MaxMediaSize
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
