package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lycheelock/lycheelock/internal/crypto/clientcrypto"
)

func writeJSON(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	cfg, rest, err := Load([]string{"list"})
	require.NoError(t, err)
	require.Equal(t, []string{"list"}, rest)
	require.Equal(t, BackendPostgres, cfg.Backend)
	require.Equal(t, "/tmp/xdg/lycheelock/vault.db", cfg.BoltPath)
	require.Equal(t, clientcrypto.DefaultKDF(), cfg.KDFParams())
	require.Equal(t, uint(1), cfg.TotpWindow)
	require.Equal(t, 5*time.Minute, cfg.ChallengeTTL)
	require.Equal(t, LimiterPostgres, cfg.Limiter)
}

func TestLoad_JSONThenFlags(t *testing.T) {
	path := writeJSON(t, `{
		"backend": "s3",
		"s3_bucket": "b1",
		"s3_endpoint": "http://minio:9000",
		"s3_path_style": true,
		"challenge_ttl": "2m",
		"op_timeout": 1000000000,
		"totp_window": 2,
		"log_level": "debug",
		"limiter": "memory"
	}`)

	cfg, rest, err := Load([]string{"-c", path, "-s3-bucket", "b2", "-timeout", "5s", "show", "-id", "x"})
	require.NoError(t, err)
	require.Equal(t, []string{"show", "-id", "x"}, rest)

	require.Equal(t, BackendS3, cfg.Backend)
	require.Equal(t, "b2", cfg.S3Bucket, "flag beats file")
	require.Equal(t, "http://minio:9000", cfg.S3Endpoint)
	require.True(t, cfg.S3PathStyle)
	require.Equal(t, 2*time.Minute, cfg.ChallengeTTL)
	require.Equal(t, 5*time.Second, cfg.OpTimeout)
	require.Equal(t, uint(2), cfg.TotpWindow)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, LimiterMemory, cfg.Limiter)
	require.Equal(t, "vaults", cfg.S3Prefix, "unset keys keep defaults")

	o := cfg.S3Options()
	require.Equal(t, "http://minio:9000", o.Endpoint)
	require.True(t, o.PathStyle)
}

func TestLoad_ConfigFlagLongFormWithEquals(t *testing.T) {
	path := writeJSON(t, `{"issuer":"Acme"}`)
	cfg, _, err := Load([]string{"-config=" + path})
	require.NoError(t, err)
	require.Equal(t, "Acme", cfg.Issuer)
}

func TestLoad_Errors(t *testing.T) {
	_, _, err := Load([]string{"-c", filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)

	_, _, err = Load([]string{"-c", writeJSON(t, `{"nope": 1}`)})
	require.Error(t, err, "unknown keys rejected")

	_, _, err = Load([]string{"-c", writeJSON(t, `{"challenge_ttl": true}`)})
	require.Error(t, err)

	_, _, err = Load([]string{"-backend", "ftp"})
	require.Error(t, err)

	_, _, err = Load([]string{"-backend", "mongo", "-mongo-uri", ""})
	require.Error(t, err)

	_, _, err = Load([]string{"-limiter", "redis"})
	require.Error(t, err)

	_, _, err = Load([]string{"-kdf-iterations", "1000"})
	require.ErrorIs(t, err, clientcrypto.ErrWeakParams)

	_, _, err = Load([]string{"-timeout", "0s"})
	require.Error(t, err)

	_, _, err = Load([]string{"-no-such-flag"})
	require.Error(t, err)
}

func TestLoad_Mongo(t *testing.T) {
	path := writeJSON(t, `{"backend":"mongo","mongo_uri":"mongodb://db:27017","mongo_collection":"v2"}`)
	cfg, _, err := Load([]string{"-c", path, "-mongo-db", "prod"})
	require.NoError(t, err)
	require.Equal(t, BackendMongo, cfg.Backend)
	require.Equal(t, "mongodb://db:27017", cfg.MongoURI)
	require.Equal(t, "prod", cfg.MongoDatabase)
	require.Equal(t, "v2", cfg.MongoCollection)
}

func TestKDFParams_Argon(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()
	cfg.KDF = clientcrypto.AlgArgon2id
	require.Equal(t, clientcrypto.Argon2idKDF(), cfg.KDFParams())
	require.NoError(t, cfg.Validate())
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1h30m"`)))
	require.Equal(t, 90*time.Minute, d.Duration)
	require.NoError(t, d.UnmarshalJSON([]byte(`250`)))
	require.Equal(t, 250*time.Nanosecond, d.Duration)
	require.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))

	b, err := Duration{2 * time.Second}.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"2s"`, string(b))
}
