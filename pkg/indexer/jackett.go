package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/avast/retry-go"
	"github.com/pojntfx/storrent/pkg/cache"
	"github.com/rs/zerolog/log"
)

type jackettResult struct {
	Title     string `json:"Title"`
	Size      int64  `json:"Size"`
	Seeders   int    `json:"Seeders"`
	Peers     int    `json:"Peers"`
	Tracker   string `json:"Tracker"`
	MagnetURI string `json:"MagnetUri"`
	Link      string `json:"Link"`
}

type jackettResponse struct {
	Results []jackettResult `json:"Results"`
}

type Jackett struct {
	url    string
	apiKey string

	options Options

	hc *http.Client
}

func NewJackett(url string, apiKey string, options Options) *Jackett {
	options = options.withDefaults()

	return &Jackett{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,

		options: options,

		hc: &http.Client{Timeout: options.Timeout},
	}
}

func (j *Jackett) Name() string {
	return NameJackett
}

func (j *Jackett) Search(ctx context.Context, query string, useCache bool) ([]Torrent, error) {
	key := cache.MakeKey(NameJackett, query)

	if useCache && j.options.Cache != nil {
		if raw, ok := j.options.Cache.Get(key); ok {
			torrents := []Torrent{}
			if err := json.Unmarshal(raw, &torrents); err == nil {
				log.Debug().
					Str("query", query).
					Msg("Returning cached Jackett results")

				return torrents, nil
			}
		}
	}

	endpoint := fmt.Sprintf("%v/api/v2.0/indexers/all/results", j.url)

	body, err := getWithRetry(ctx, j.hc, endpoint, map[string]string{
		"apikey": j.apiKey,
		"query":  query,
	}, j.options.MaxRetries)
	if err != nil {
		return nil, classify(NameJackett, "make sure Jackett is running and the URL is correct", err)
	}

	response := jackettResponse{}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &Error{Indexer: NameJackett, Kind: KindUnexpectedStatus, Hint: hintVerifySetup, Err: err}
	}

	torrents := make([]Torrent, 0, len(response.Results))
	for _, result := range response.Results {
		torrents = append(torrents, normalizeJackettResult(result))
	}

	if useCache && j.options.Cache != nil && len(torrents) > 0 {
		if raw, err := json.Marshal(torrents); err == nil {
			j.options.Cache.Set(key, raw, j.options.CacheTTL)
		}
	}

	return torrents, nil
}

// Healthcheck requests a nonexistent indexer; Jackett answering at all
// proves connectivity, and answering 500 with the indexer name in the body
// proves the API key was accepted.
func (j *Jackett) Healthcheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%v/api/v2.0/indexers/nonexistent_indexer/results", j.url)

	res, err := get(ctx, j.hc, endpoint, map[string]string{
		"apikey": j.apiKey,
	})
	if err != nil {
		return &Error{
			Indexer: NameJackett,
			Kind:    KindUnreachable,
			Hint:    "make sure Jackett is running and the URL is correct",
			Err:     err,
		}
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	switch res.StatusCode {
	case http.StatusUnauthorized:
		return &Error{
			Indexer: NameJackett,
			Kind:    KindInvalidAPIKey,
			Hint:    "double-check the API key you provided",
		}
	case http.StatusInternalServerError:
		body, err := io.ReadAll(res.Body)
		if err == nil && strings.Contains(string(body), "nonexistent_indexer") {
			return nil
		}
	}

	return &Error{
		Indexer: NameJackett,
		Kind:    KindUnexpectedStatus,
		Hint:    hintVerifySetup,
		Err:     fmt.Errorf("HTTP %v", res.StatusCode),
	}
}

func normalizeJackettResult(r jackettResult) Torrent {
	source := r.Tracker
	if source == "" {
		source = "unknown"
	}

	magnetURI := r.MagnetURI
	if magnetURI == "" {
		magnetURI = r.Link
	}

	return Torrent{
		Title:     r.Title,
		Size:      r.Size,
		Seeders:   r.Seeders,
		Leechers:  r.Peers,
		Source:    source,
		MagnetURI: magnetURI,
	}
}

const hintVerifySetup = "please verify your setup"

// statusError is an internal marker for non-2xx responses so that classify
// can tell them apart from transport failures.
type statusError struct {
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %v", e.Code)
}

func classify(indexer string, unreachableHint string, err error) error {
	statusErr := &statusError{}
	if errors.As(err, &statusErr) {
		if statusErr.Code == http.StatusUnauthorized {
			return &Error{
				Indexer: indexer,
				Kind:    KindInvalidAPIKey,
				Hint:    "double-check the API key you provided",
				Err:     err,
			}
		}

		return &Error{
			Indexer: indexer,
			Kind:    KindUnexpectedStatus,
			Hint:    hintVerifySetup,
			Err:     err,
		}
	}

	return &Error{
		Indexer: indexer,
		Kind:    KindUnreachable,
		Hint:    unreachableHint,
		Err:     err,
	}
}

func get(ctx context.Context, hc *http.Client, endpoint string, params map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	for key, value := range params {
		q.Set(key, value)
	}
	req.URL.RawQuery = q.Encode()

	return hc.Do(req)
}

// getWithRetry fetches the endpoint, retrying transport-level failures up to
// maxRetries times after the initial attempt, with exponential backoff.
// Non-2xx statuses are never retried.
func getWithRetry(ctx context.Context, hc *http.Client, endpoint string, params map[string]string, maxRetries int) ([]byte, error) {
	var body []byte

	err := retry.Do(
		func() error {
			res, err := get(ctx, hc, endpoint, params)
			if err != nil {
				return err
			}
			defer res.Body.Close()

			if res.StatusCode < 200 || res.StatusCode >= 300 {
				return retry.Unrecoverable(&statusError{Code: res.StatusCode})
			}

			body, err = io.ReadAll(res.Body)

			return err
		},
		retry.Attempts(uint(maxRetries)+1),
		retry.Delay(retryBaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		// RetryIf replaces the default recoverability check, so it has to be
		// restated here or unrecoverable statuses would be retried too
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().
				Err(err).
				Uint("attempt", n).
				Str("endpoint", endpoint).
				Msg("Retrying indexer request")
		}),
	)
	if err != nil {
		return nil, err
	}

	return body, nil
}
