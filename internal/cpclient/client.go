package cpclient

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/dirsync/internal/controlplane/handlers"
	"github.com/openmined/dirsync/internal/ledger"
	"github.com/openmined/dirsync/internal/reconcile"
	"github.com/openmined/dirsync/internal/version"
)

const (
	v1Status     = "/v1/status"
	v1Sync       = "/v1/sync"
	v1SyncStop   = "/v1/sync/stop"
	v1SyncReport = "/v1/sync/report"
	v1Logs       = "/v1/logs"
	v1Ledger     = "/v1/ledger"
	v1LedgerWipe = "/v1/ledger/clean"
)

var UserAgent = fmt.Sprintf("dirsync/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// Client talks to the control plane of a running daemon.
type Client struct {
	client *req.Client
}

// New returns a client for the control plane at addr. addr may omit the
// scheme, as in the daemon's http_addr setting.
func New(addr, token string) *Client {
	client := req.C().
		SetBaseURL(baseURL(addr)).
		SetTimeout(10*time.Second).
		SetCommonRetryCount(2).
		SetCommonRetryFixedInterval(500*time.Millisecond).
		SetUserAgent(UserAgent).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)
	if token != "" {
		client.SetCommonBearerAuthToken(token)
	}
	return &Client{client: client}
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	return "http://" + strings.TrimSuffix(addr, "/")
}

func (c *Client) Status(ctx context.Context) (resp *handlers.StatusResponse, err error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Get(v1Status)

	if err := handleAPIError(res, err, "status"); err != nil {
		return nil, err
	}
	return resp, nil
}

// Sync asks the daemon for a pass. It fails with ERR_SYNC_RUNNING while one
// is in progress.
func (c *Client) Sync(ctx context.Context) error {
	res, err := c.client.R().
		SetContext(ctx).
		Post(v1Sync)
	return handleAPIError(res, err, "sync")
}

func (c *Client) Stop(ctx context.Context) error {
	res, err := c.client.R().
		SetContext(ctx).
		Post(v1SyncStop)
	return handleAPIError(res, err, "stop sync")
}

func (c *Client) Report(ctx context.Context) (resp *reconcile.Report, err error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Get(v1SyncReport)

	if err := handleAPIError(res, err, "sync report"); err != nil {
		return nil, err
	}
	return resp, nil
}

// Logs returns up to maxResults events starting at the paging token.
func (c *Client) Logs(ctx context.Context, startingToken int64, maxResults int) (resp *handlers.LogsResponse, err error) {
	r := c.client.R().
		SetContext(ctx).
		SetQueryParam("startingToken", strconv.FormatInt(startingToken, 10)).
		SetSuccessResult(&resp)
	if maxResults > 0 {
		r.SetQueryParam("maxResults", strconv.Itoa(maxResults))
	}

	res, err := r.Get(v1Logs)
	if err := handleAPIError(res, err, "logs"); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) LedgerStats(ctx context.Context) (resp *ledger.Stats, err error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Get(v1Ledger)

	if err := handleAPIError(res, err, "ledger stats"); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CleanLedger(ctx context.Context) (resp *ledger.Stats, err error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Post(v1LedgerWipe)

	if err := handleAPIError(res, err, "clean ledger"); err != nil {
		return nil, err
	}
	return resp, nil
}
