package esios

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/angas/pvpc-go/hours"
	"github.com/angas/pvpc-go/types"
)

const (
	urlPublicResource = "https://api.esios.ree.es/archives/70/download_json?locale=es&date=%s"
	urlTokenResource  = "https://api.esios.ree.es/indicators/%d?start_date=%sT00:00&end_date=%sT23:59"

	dateLayout = "2006-01-02"
)

// ErrBadAPIToken signals that the esios API rejected the configured
// token (401/403). This is a configuration problem retrying cannot fix,
// so it is the one fetch failure that propagates to the caller.
var ErrBadAPIToken = errors.New("esios API token rejected")

// Client downloads daily price series from api.esios.ree.es, either
// through the free PVPC archive or the token-authenticated indicator
// API, and normalizes them to UTC-keyed €/kWh series.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	source     types.DataSource
	token      string
	tariff     string
	localLoc   *time.Location

	agentMu sync.Mutex
	agents  []string
}

func New(logger *slog.Logger, source types.DataSource, token, tariff string, localLoc *time.Location, timeout time.Duration) *Client {
	if token != "" {
		source = types.SourceToken
	}
	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		source:     source,
		token:      token,
		tariff:     tariff,
		localLoc:   localLoc,
		agents:     shuffledAgents(),
	}
}

// Source returns the active data source.
func (c *Client) Source() types.DataSource {
	return c.source
}

// UsingPrivateAPI reports whether requests carry the API token.
func (c *Client) UsingPrivateAPI() bool {
	return c.token != "" && c.source == types.SourceToken
}

// SetToken switches the client to the token source with the given token.
func (c *Client) SetToken(token string) {
	c.token = token
	c.source = types.SourceToken
}

// DownloadDay fetches the series of one indicator for one calendar day
// (in the provider reference zone). A (nil, nil) return means "no data
// this call": the caller keeps its cached series and retries next cycle.
func (c *Client) DownloadDay(ctx context.Context, key types.SensorKey, day time.Time) (*types.Response, error) {
	url, err := c.urlFor(key, day)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Host", "api.esios.ree.es")
	req.Header.Set("User-Agent", c.currentAgent())
	if c.UsingPrivateAPI() {
		req.Header.Set("x-api-key", c.token)
		req.Header.Set("Authorization", fmt.Sprintf("Token token=%s", c.token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 400:
		return c.normalize(resp, key)

	case (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) &&
		c.source == types.SourceToken:
		c.logger.Warn("unauthorized esios response",
			slog.String("sensor", string(key)), slog.String("url", url))
		return nil, fmt.Errorf("[%s] unauthorized access: %w", key, ErrBadAPIToken)

	case resp.StatusCode == http.StatusForbidden:
		// Public endpoint occasionally bans user agents; rotate and let
		// the next cycle retry.
		c.rotateAgent()
		c.logger.Warn("forbidden esios response, rotating user agent",
			slog.String("sensor", string(key)), slog.String("url", url))
		return nil, nil

	default:
		c.logger.Error("unexpected esios response",
			slog.String("sensor", string(key)),
			slog.Int("status", resp.StatusCode),
			slog.String("url", url))
		return nil, nil
	}
}

func (c *Client) normalize(resp *http.Response, key types.SensorKey) (*types.Response, error) {
	switch c.source {
	case types.SourcePublic:
		return parsePublicArchive(resp.Body, types.ArchiveKeyForTariff(c.tariff), c.localLoc)
	case types.SourceToken:
		return parseIndicator(resp.Body, key, c.geoZone(), c.localLoc)
	default:
		return nil, fmt.Errorf("unknown data source: %s", c.source)
	}
}

func (c *Client) urlFor(key types.SensorKey, day time.Time) (string, error) {
	date := day.In(hours.Reference()).Format(dateLayout)
	if c.source == types.SourcePublic {
		if key != types.KeyPVPC {
			return "", fmt.Errorf("public source only serves PVPC, not %s", key)
		}
		return fmt.Sprintf(urlPublicResource, date), nil
	}
	spec, ok := types.SensorSpecFor(key)
	if !ok {
		return "", fmt.Errorf("not a downloadable indicator: %s", key)
	}
	return fmt.Sprintf(urlTokenResource, spec.DataID, date, date), nil
}

func (c *Client) geoZone() string {
	if c.tariff == types.Tariff20TDCM {
		return "Ceuta"
	}
	if c.localLoc.String() != hours.Reference().String() {
		return "Canarias"
	}
	return "España"
}
