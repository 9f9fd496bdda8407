package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Duration accepts "30s"-style strings or integer nanoseconds in JSON.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		d.Duration = time.Duration(x)
	case string:
		p, err := time.ParseDuration(x)
		if err != nil {
			return err
		}
		d.Duration = p
	default:
		return errors.New("invalid duration")
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// fileConfig mirrors Config for JSON files. Pointers tell unset from zero.
type fileConfig struct {
	DatabaseDSN *string `json:"database_dsn"`
	Backend     *string `json:"backend"`
	BoltPath    *string `json:"bolt_path"`

	S3Bucket    *string `json:"s3_bucket"`
	S3Prefix    *string `json:"s3_prefix"`
	S3Region    *string `json:"s3_region"`
	S3Endpoint  *string `json:"s3_endpoint"`
	S3AccessKey *string `json:"s3_access_key"`
	S3SecretKey *string `json:"s3_secret_key"`
	S3PathStyle *bool   `json:"s3_path_style"`

	MongoURI        *string `json:"mongo_uri"`
	MongoDatabase   *string `json:"mongo_database"`
	MongoCollection *string `json:"mongo_collection"`

	Issuer        *string `json:"issuer"`
	KDF           *string `json:"kdf"`
	KDFIterations *int    `json:"kdf_iterations"`
	TotpWindow    *uint   `json:"totp_window"`

	SigningKey   *string   `json:"signing_key"`
	ChallengeTTL *Duration `json:"challenge_ttl"`
	OpTimeout    *Duration `json:"op_timeout"`

	Source   *string `json:"source"`
	Limiter  *string `json:"limiter"`
	LogLevel *string `json:"log_level"`
	LogDev   *bool   `json:"log_dev"`
}

func (c *Config) loadJSON(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var f fileConfig
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	set(&c.DatabaseDSN, f.DatabaseDSN)
	set(&c.Backend, f.Backend)
	set(&c.BoltPath, f.BoltPath)
	set(&c.S3Bucket, f.S3Bucket)
	set(&c.S3Prefix, f.S3Prefix)
	set(&c.S3Region, f.S3Region)
	set(&c.S3Endpoint, f.S3Endpoint)
	set(&c.S3AccessKey, f.S3AccessKey)
	set(&c.S3SecretKey, f.S3SecretKey)
	set(&c.S3PathStyle, f.S3PathStyle)
	set(&c.MongoURI, f.MongoURI)
	set(&c.MongoDatabase, f.MongoDatabase)
	set(&c.MongoCollection, f.MongoCollection)
	set(&c.Issuer, f.Issuer)
	set(&c.KDF, f.KDF)
	set(&c.KDFIterations, f.KDFIterations)
	set(&c.TotpWindow, f.TotpWindow)
	set(&c.SigningKey, f.SigningKey)
	set(&c.Source, f.Source)
	set(&c.Limiter, f.Limiter)
	set(&c.LogLevel, f.LogLevel)
	set(&c.LogDev, f.LogDev)
	if f.ChallengeTTL != nil {
		c.ChallengeTTL = f.ChallengeTTL.Duration
	}
	if f.OpTimeout != nil {
		c.OpTimeout = f.OpTimeout.Duration
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
