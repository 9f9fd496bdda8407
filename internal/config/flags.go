package config

import (
	"flag"
	"io"
)

// parseFlags overlays flags on c and returns the remaining arguments and the
// JSON config path, if any.
func (c *Config) parseFlags(args []string) (rest []string, cfgFile string, err error) {
	fs := flag.NewFlagSet("lychee", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfgFile, "config", "", "JSON config file")
	fs.StringVar(&cfgFile, "c", "", "JSON config file (short)")

	fs.StringVar(&c.DatabaseDSN, "dsn", c.DatabaseDSN, "PostgreSQL DSN")
	fs.StringVar(&c.Backend, "backend", c.Backend, "vault storage: postgres|s3|bolt|mongo")
	fs.StringVar(&c.BoltPath, "bolt-path", c.BoltPath, "bolt database file")

	fs.StringVar(&c.S3Bucket, "s3-bucket", c.S3Bucket, "S3 bucket")
	fs.StringVar(&c.S3Prefix, "s3-prefix", c.S3Prefix, "S3 key prefix")
	fs.StringVar(&c.S3Region, "s3-region", c.S3Region, "S3 region")
	fs.StringVar(&c.S3Endpoint, "s3-endpoint", c.S3Endpoint, "S3 base endpoint")
	fs.StringVar(&c.S3AccessKey, "s3-access-key", c.S3AccessKey, "S3 access key")
	fs.StringVar(&c.S3SecretKey, "s3-secret-key", c.S3SecretKey, "S3 secret key")
	fs.BoolVar(&c.S3PathStyle, "s3-path-style", c.S3PathStyle, "use path-style S3 addressing")

	fs.StringVar(&c.MongoURI, "mongo-uri", c.MongoURI, "MongoDB connection string")
	fs.StringVar(&c.MongoDatabase, "mongo-db", c.MongoDatabase, "MongoDB database")
	fs.StringVar(&c.MongoCollection, "mongo-collection", c.MongoCollection, "MongoDB collection")

	fs.StringVar(&c.Issuer, "issuer", c.Issuer, "TOTP issuer label")
	fs.StringVar(&c.KDF, "kdf", c.KDF, "key derivation: pbkdf2-sha256|argon2id")
	fs.IntVar(&c.KDFIterations, "kdf-iterations", c.KDFIterations, "PBKDF2 iterations")
	fs.UintVar(&c.TotpWindow, "totp-window", c.TotpWindow, "accepted TOTP steps either side of now")

	fs.StringVar(&c.SigningKey, "signing-key", c.SigningKey, "HS256 key for second-factor challenges")
	fs.DurationVar(&c.ChallengeTTL, "challenge-ttl", c.ChallengeTTL, "second-factor challenge lifetime")
	fs.DurationVar(&c.OpTimeout, "timeout", c.OpTimeout, "timeout for each backend call")

	fs.StringVar(&c.Source, "source", c.Source, "client label for attempt limiting")
	fs.StringVar(&c.Limiter, "limiter", c.Limiter, "attempt limiter: postgres|memory")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug|info|warn|error")
	fs.BoolVar(&c.LogDev, "log-dev", c.LogDev, "human-readable logs")

	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	return fs.Args(), cfgFile, nil
}
