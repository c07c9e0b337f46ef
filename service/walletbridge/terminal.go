// Package walletbridge implements sell.WalletBridge for environments
// without the MiniKit SDK.
package walletbridge

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/brojonat/wldsell/service/sell"
	"github.com/skip2/go-qrcode"
)

// DefaultLinkBase is the World App mini app launch URL.
const DefaultLinkBase = "https://worldcoin.org/mini-app"

// ErrNoPayload is returned when the input closes before a final payload arrives.
var ErrNoPayload = errors.New("no final payload received")

// TerminalBridge shows the payment request with a QR deep link and reads the
// wallet's final payload, one JSON object per line, from an input.
//
// A single goroutine owned by the bridge reads the input. A line that
// arrives after a Pay was cancelled goes to the next Pay.
type TerminalBridge struct {
	appID    string
	linkBase string
	out      io.Writer
	in       *bufio.Reader

	readOnce sync.Once
	lines    chan inputLine
}

type inputLine struct {
	text string
	err  error
}

// NewTerminalBridge creates a bridge writing to out and reading from in.
// A nil in means no wallet is attached.
func NewTerminalBridge(appID string, out io.Writer, in io.Reader) *TerminalBridge {
	b := &TerminalBridge{
		appID:    appID,
		linkBase: DefaultLinkBase,
		out:      out,
	}
	if in != nil {
		b.in = bufio.NewReader(in)
		b.lines = make(chan inputLine)
	}
	return b
}

// readLines feeds b.lines until the input fails, then closes it.
func (b *TerminalBridge) readLines() {
	defer close(b.lines)
	for {
		text, err := b.in.ReadString('\n')
		b.lines <- inputLine{text: text, err: err}
		if err != nil {
			return
		}
	}
}

// IsInstalled reports whether an input is attached.
func (b *TerminalBridge) IsInstalled() bool {
	return b.in != nil
}

// DeepLink returns the World App link that opens the payment request.
func (b *TerminalBridge) DeepLink(req sell.PayRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pay request: %w", err)
	}

	q := url.Values{}
	q.Set("app_id", b.appID)
	q.Set("path", "/pay?request="+base64.RawURLEncoding.EncodeToString(data))
	return b.linkBase + "?" + q.Encode(), nil
}

// Pay prints the request and waits for the final payload.
func (b *TerminalBridge) Pay(ctx context.Context, req sell.PayRequest) (sell.PayResponse, error) {
	if !b.IsInstalled() {
		return sell.PayResponse{}, fmt.Errorf("no wallet attached")
	}

	link, err := b.DeepLink(req)
	if err != nil {
		return sell.PayResponse{}, err
	}
	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return sell.PayResponse{}, fmt.Errorf("failed to create QR code: %w", err)
	}

	fmt.Fprintf(b.out, "%s\n", req.Description)
	fmt.Fprintf(b.out, "reference: %s\nto: %s\n", req.Reference, req.To)
	for _, t := range req.Tokens {
		fmt.Fprintf(b.out, "token: %s %s\n", t.Symbol, t.TokenAmount)
	}
	fmt.Fprintf(b.out, "\n%s\n%s\n\n", qr.ToString(false), link)
	fmt.Fprintln(b.out, "Paste the final payload JSON:")

	b.readOnce.Do(func() { go b.readLines() })

	var r inputLine
	select {
	case <-ctx.Done():
		return sell.PayResponse{}, ctx.Err()
	case next, ok := <-b.lines:
		if !ok {
			return sell.PayResponse{}, ErrNoPayload
		}
		r = next
	}

	line := strings.TrimSpace(r.text)
	if line == "" {
		if r.err != nil && !errors.Is(r.err, io.EOF) {
			return sell.PayResponse{}, fmt.Errorf("failed to read final payload: %w", r.err)
		}
		return sell.PayResponse{}, ErrNoPayload
	}

	var payload sell.FinalPayload
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return sell.PayResponse{}, fmt.Errorf("invalid final payload: %w", err)
	}
	if payload.Status == "" {
		return sell.PayResponse{}, fmt.Errorf("invalid final payload: missing status")
	}
	return sell.PayResponse{FinalPayload: payload}, nil
}
