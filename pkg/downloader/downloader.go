// Package downloader hands resolved magnet URIs off to a client other than
// the embedded engine: a Transmission daemon or the user's web browser.
package downloader

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnknownDownloader = errors.New("could not find a downloader with this name")
)

const (
	NameInternal     = "internal"
	NameTransmission = "transmission"
	NameWebBrowser   = "web_browser"
)

// Downloader sends a magnet URI to an external client. The embedded engine
// is not a Downloader; it keeps the full manager and monitor path.
type Downloader interface {
	Name() string
	SendMagnet(ctx context.Context, magnetURI string, downloadPath string, startPaused bool) error
}

// TransmissionOptions carries the connection settings for a Transmission
// daemon's RPC endpoint.
type TransmissionOptions struct {
	Host     string
	Port     int
	Username string
	Password string
}

// FromName selects a downloader implementation from its configured name.
// NameInternal has no Downloader and is handled by the caller.
func FromName(name string, transmission TransmissionOptions) (Downloader, error) {
	switch name {
	case NameTransmission:
		t, err := NewTransmission(transmission)
		if err != nil {
			return nil, err
		}

		return t, nil
	case NameWebBrowser:
		return NewWebBrowser(), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownDownloader, name)
	}
}
