package totp

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RFC 6238 appendix B seed "12345678901234567890" in base32.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestGenerateCode_RFC6238Vectors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}
	for _, tc := range tests {
		got, err := GenerateCode(rfcSecret, time.Unix(tc.unix, 0))
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "t=%d", tc.unix)
	}
}

func TestGenerateCode_BadSecret(t *testing.T) {
	t.Parallel()
	_, err := GenerateCode("not base32 !!", time.Unix(59, 0))
	require.Error(t, err)
}

func TestVerifyCode_Window(t *testing.T) {
	t.Parallel()
	now := time.Unix(1234567890, 0)

	require.True(t, VerifyCode("005924", rfcSecret, now, 0))
	require.True(t, VerifyCode(" 005924 ", rfcSecret, now, 0))

	// adjacent steps accepted with window=1 only
	require.False(t, VerifyCode("590587", rfcSecret, now, 0))
	require.True(t, VerifyCode("590587", rfcSecret, now, 1))
	require.True(t, VerifyCode("980357", rfcSecret, now, 1))

	// two steps away is outside window=1
	require.False(t, VerifyCode("240500", rfcSecret, now, 1))
	require.True(t, VerifyCode("240500", rfcSecret, now, 2))
}

func TestVerifyCode_GeneratedRoundtripAndOutsideTolerance(t *testing.T) {
	t.Parallel()
	secret, err := GenerateSecret()
	require.NoError(t, err)

	for _, ts := range []int64{0, 29, 30, 1700000000, 1700000017} {
		at := time.Unix(ts, 0)
		code, err := GenerateCode(secret, at)
		require.NoError(t, err)
		require.True(t, VerifyCode(code, secret, at, 0), "t=%d", ts)
	}

	at := time.Unix(1234567890, 0)
	code, _ := GenerateCode(rfcSecret, at)
	for window := uint(0); window <= 3; window++ {
		later := at.Add(Step * time.Duration(window+1))
		require.False(t, VerifyCode(code, rfcSecret, later, window), "window=%d", window)
	}
}

func TestVerifyCode_Malformed(t *testing.T) {
	t.Parallel()
	now := time.Unix(1234567890, 0)
	require.False(t, VerifyCode("", rfcSecret, now, 1))
	require.False(t, VerifyCode("05924", rfcSecret, now, 1))
	require.False(t, VerifyCode("0059245", rfcSecret, now, 1))
	require.False(t, VerifyCode("xxxxxx", rfcSecret, now, 1))
	require.False(t, VerifyCode("005924", "???", now, 1))
}

func TestMatchStep(t *testing.T) {
	t.Parallel()
	now := time.Unix(1234567890, 0)
	base := StepAt(now)
	require.Equal(t, int64(41152263), base)

	for _, off := range []int64{-1, 0, 1} {
		code, err := GenerateCode(rfcSecret, now.Add(time.Duration(off)*Step))
		require.NoError(t, err)
		step, ok := MatchStep(code, rfcSecret, now, 1)
		require.True(t, ok, "offset %d", off)
		require.Equal(t, base+off, step, "offset %d", off)
	}

	step, ok := MatchStep("240500", rfcSecret, now, 1)
	require.False(t, ok)
	require.Zero(t, step)
	_, ok = MatchStep("00592", rfcSecret, now, 1)
	require.False(t, ok)
}

func TestGenerateSecret(t *testing.T) {
	t.Parallel()
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, _ := GenerateSecret()
	require.NotEqual(t, a, b)
	require.Len(t, a, 32) // 20 bytes -> 32 base32 chars
	require.NotContains(t, a, "=")

	raw, err := b32.DecodeString(a)
	require.NoError(t, err)
	require.Len(t, raw, secretSize)
}

func TestProvisioningURI(t *testing.T) {
	t.Parallel()
	got := ProvisioningURI("alice", "JBSWY3DPEHPK3PXP", "LycheeLock")
	require.Equal(t, "otpauth://totp/LycheeLock:alice?secret=JBSWY3DPEHPK3PXP&issuer=LycheeLock", got)

	spaced := ProvisioningURI("bob smith", "S", "Lychee Lock")
	require.True(t, strings.HasPrefix(spaced, "otpauth://totp/Lychee%20Lock:bob%20smith?"), spaced)
	require.True(t, strings.HasSuffix(spaced, "&issuer=Lychee+Lock"), spaced)
}

func TestRenderQR_DataURL(t *testing.T) {
	t.Parallel()
	uri := ProvisioningURI("alice", rfcSecret, "LycheeLock")

	got, err := RenderQR(uri)
	require.NoError(t, err)
	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(got, prefix))

	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got, prefix))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")))
}

func TestNewEnrollment(t *testing.T) {
	t.Parallel()
	e, err := NewEnrollment("alice", "LycheeLock")
	require.NoError(t, err)
	require.NotEmpty(t, e.Secret)
	require.Equal(t, ProvisioningURI("alice", e.Secret, "LycheeLock"), e.URI)
	require.True(t, strings.HasPrefix(e.QRDataURL, "data:image/png;base64,"))
}
