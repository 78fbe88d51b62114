package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendRequestRoundTrip(t *testing.T) {
	req := SendRequest{
		From:    "/var/spool/uucp/D.remote1234",
		To:      "/home/usr/incoming/report.txt",
		User:    "usr",
		Options: "dc",
		Temp:    "D.remote1234",
		Mode:    0o644,
		Notify:  "usr@remote",
		Size:    131072,
	}
	encoded := EncodeSendRequest(req)
	assert.Equal(t, "S /var/spool/uucp/D.remote1234 /home/usr/incoming/report.txt usr -dc D.remote1234 0644 usr@remote 131072", encoded)

	parsed, err := ParseSendRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, req, parsed)
}

func TestSendRequestEmptyFields(t *testing.T) {
	req := SendRequest{From: "/a", To: "/b", User: "usr", Temp: "tmp", Mode: 0o644, Size: 99}
	encoded := EncodeSendRequest(req)
	// Empty options keep their dash, an empty notify serializes as "".
	assert.Equal(t, `S /a /b usr - tmp 0644 "" 99`, encoded)

	parsed, err := ParseSendRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, "", parsed.Options)
	assert.Equal(t, "", parsed.Notify)
	assert.Equal(t, int64(99), parsed.Size)
}

func TestSendRequestNoSize(t *testing.T) {
	parsed, err := ParseSendRequest(`S /a /b usr -c tmp 0600 notify`)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), parsed.Size)
	assert.Equal(t, uint32(0o600), parsed.Mode)
}

func TestRecvRequestRoundTrip(t *testing.T) {
	req := RecvRequest{From: "/remote/file", To: "/local/file", User: "usr", Options: "d", Size: 4096}
	parsed, err := ParseRecvRequest(EncodeRecvRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, parsed)
}

func TestExecRequestRoundTrip(t *testing.T) {
	req := ExecRequest{From: "/spool/X.job", To: "/spool/X.job", User: "usr", Options: ""}
	parsed, err := ParseExecRequest(EncodeExecRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, parsed)
}

func TestParseMalformed(t *testing.T) {
	_, err := ParseSendRequest("S too few")
	assert.Error(t, err)
	_, err = ParseRecvRequest("X /a /b usr -")
	assert.Error(t, err)
	_, err = ParseExecRequest("")
	assert.Error(t, err)
}

func TestParseReply(t *testing.T) {
	code, mode, err := ParseReply("SY 0644")
	require.NoError(t, err)
	assert.Equal(t, ReplySY, code)
	assert.Equal(t, uint32(0o644), mode)

	code, _, err = ParseReply("SN6")
	require.NoError(t, err)
	assert.Equal(t, ReplySN6, code)

	_, _, err = ParseReply("")
	assert.Error(t, err)
}

func TestRetriableCodes(t *testing.T) {
	assert.True(t, ReplySN4.Retriable())
	assert.True(t, ReplySN6.Retriable())
	assert.True(t, ReplyRN6.Retriable())
	assert.False(t, ReplySN.Retriable())
	assert.False(t, ReplySN2.Retriable())
	assert.False(t, ReplyRN2.Retriable())
	assert.False(t, ReplyXN.Retriable())

	assert.True(t, ReplySN2.IsReject())
	assert.True(t, ReplyXN.IsReject())
	assert.False(t, ReplySY.IsReject())
	assert.False(t, ReplyCY.IsReject())
}
