package walletbridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/wldsell/service/sell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() sell.PayRequest {
	return sell.PayRequest{
		Reference:   "abc123",
		To:          "0xed036da30351904733ca13c7832d2cb51ffc72da",
		Tokens:      []sell.TokenAmount{{Symbol: "WLD", TokenAmount: "10000000000000000000"}},
		Description: "Pago de 10 WLD en la mini app",
	}
}

func TestTerminalBridge_IsInstalled(t *testing.T) {
	assert.False(t, NewTerminalBridge("app", io.Discard, nil).IsInstalled())
	assert.True(t, NewTerminalBridge("app", io.Discard, strings.NewReader("")).IsInstalled())
}

func TestTerminalBridge_Pay(t *testing.T) {
	in := strings.NewReader(`{"status":"success","transaction_id":"tx-1","reference":"abc123"}` + "\n")
	var out bytes.Buffer

	b := NewTerminalBridge("app_1", &out, in)
	resp, err := b.Pay(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, resp.FinalPayload.Succeeded())
	assert.Equal(t, "tx-1", resp.FinalPayload.TransactionID)
	assert.Contains(t, out.String(), "Pago de 10 WLD en la mini app")
	assert.Contains(t, out.String(), "WLD 10000000000000000000")
	assert.Contains(t, out.String(), DefaultLinkBase)
}

func TestTerminalBridge_PayErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "eof", input: ""},
		{name: "bad json", input: "{not json}\n"},
		{name: "missing status", input: `{"reference":"abc123"}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewTerminalBridge("app", io.Discard, strings.NewReader(tt.input))
			_, err := b.Pay(context.Background(), testRequest())
			assert.Error(t, err)
		})
	}
}

func TestTerminalBridge_PayCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewTerminalBridge("app", io.Discard, pr).Pay(ctx, testRequest())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTerminalBridge_PayAfterCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	b := NewTerminalBridge("app", io.Discard, pr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Pay(ctx, testRequest())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The line pasted after the timeout answers the retry.
	go io.WriteString(pw, `{"status":"success","transaction_id":"tx-2","reference":"abc123"}`+"\n")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	resp, err := b.Pay(ctx2, testRequest())
	require.NoError(t, err)
	assert.Equal(t, "tx-2", resp.FinalPayload.TransactionID)
}

func TestTerminalBridge_PayAfterInputClosed(t *testing.T) {
	b := NewTerminalBridge("app", io.Discard, strings.NewReader(""))

	_, err := b.Pay(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrNoPayload)
	_, err = b.Pay(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrNoPayload)
}

func TestDeepLink(t *testing.T) {
	b := NewTerminalBridge("app_1", io.Discard, nil)
	link, err := b.DeepLink(testRequest())
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "app_1", u.Query().Get("app_id"))

	path := u.Query().Get("path")
	require.True(t, strings.HasPrefix(path, "/pay?request="))
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(path, "/pay?request="))
	require.NoError(t, err)

	var decoded sell.PayRequest
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, testRequest(), decoded)
}
