package downloader

import (
	"context"

	"github.com/pkg/browser"
)

// WebBrowser opens the magnet URI with the desktop's default handler, which
// hands it to whatever torrent client the user has registered for the
// magnet scheme. Download path and pause flag don't apply there.
type WebBrowser struct {
	open func(url string) error
}

func NewWebBrowser() *WebBrowser {
	return &WebBrowser{
		open: browser.OpenURL,
	}
}

func (w *WebBrowser) Name() string {
	return NameWebBrowser
}

func (w *WebBrowser) SendMagnet(ctx context.Context, magnetURI string, downloadPath string, startPaused bool) error {
	return w.open(magnetURI)
}
