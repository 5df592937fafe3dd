// Package jira fetches project releases and fixed bug tickets from a Jira
// server through the REST v2 API.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/defectlab/internal/cache"
	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/timeline"
)

const (
	// DefaultPageSize is the search page size requested from Jira
	DefaultPageSize = 1000

	bucketReleases = "releases"
	bucketTickets  = "tickets"
)

// Client talks to one Jira server. A nil Cache disables response caching.
type Client struct {
	URL        string
	Username   string
	APIToken   string
	PageSize   int
	HTTPClient *http.Client
	Cache      cache.Cache

	rateLimiter *rate.Limiter
	logger      logrus.FieldLogger
}

// NewClient creates a client limited to requestsPerSecond (unlimited when
// non-positive)
func NewClient(baseURL, username, apiToken string, requestsPerSecond float64, store cache.Cache, logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		URL:      strings.TrimSuffix(baseURL, "/"),
		Username: username,
		APIToken: apiToken,
		PageSize: DefaultPageSize,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Cache:       store,
		rateLimiter: rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

// version is a Jira project version
type version struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"releaseDate"`
	Released    bool   `json:"released"`
}

// issue is a Jira search hit restricted to the requested fields
type issue struct {
	Key    string `json:"key"`
	Fields struct {
		Created        string    `json:"created"`
		ResolutionDate string    `json:"resolutiondate"`
		Versions       []version `json:"versions"`
		FixVersions    []version `json:"fixVersions"`
	} `json:"fields"`
}

type searchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []issue `json:"issues"`
}

// BugQuery returns the JQL selecting the fixed bugs of project
func BugQuery(project string) string {
	return fmt.Sprintf(`project = "%s" AND issuetype = Bug AND status in (Closed, Resolved) AND resolution = Fixed ORDER BY resolutiondate ASC`, project)
}

// Releases returns the versions of project. Versions without a release
// date are returned with a zero Date; the timeline drops them.
func (c *Client) Releases(ctx context.Context, project string) ([]timeline.ReleaseRecord, error) {
	var cached []timeline.ReleaseRecord
	if found, err := c.cacheGet(ctx, bucketReleases, project, &cached); err != nil {
		c.logger.WithError(err).Warn("release cache unreadable")
	} else if found {
		c.logger.WithField("project", project).Debug("releases served from cache")
		return cached, nil
	}

	endpoint := fmt.Sprintf("%s/rest/api/2/project/%s/versions", c.URL, url.PathEscape(project))
	body, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var versions []version
	if err := json.Unmarshal(body, &versions); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExternal, errors.SeverityHigh, "decode versions").
			WithContext("project", project)
	}

	records := make([]timeline.ReleaseRecord, 0, len(versions))
	for _, v := range versions {
		rec := timeline.ReleaseRecord{VersionID: v.ID, Name: v.Name}
		if v.ReleaseDate != "" {
			d, err := time.Parse("2006-01-02", v.ReleaseDate)
			if err != nil {
				c.logger.WithFields(logrus.Fields{"version": v.Name, "date": v.ReleaseDate}).
					Warn("ignoring unparseable release date")
			} else {
				rec.Date = d
			}
		}
		records = append(records, rec)
	}

	if err := c.cachePut(ctx, bucketReleases, project, records); err != nil {
		c.logger.WithError(err).Warn("failed to cache releases")
	}
	return records, nil
}

// Tickets returns every fixed bug of project, paging through search results
func (c *Client) Tickets(ctx context.Context, project string) ([]timeline.TicketRecord, error) {
	var cached []timeline.TicketRecord
	if found, err := c.cacheGet(ctx, bucketTickets, project, &cached); err != nil {
		c.logger.WithError(err).Warn("ticket cache unreadable")
	} else if found {
		c.logger.WithField("project", project).Debug("tickets served from cache")
		return cached, nil
	}

	pageSize := c.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var records []timeline.TicketRecord
	startAt := 0
	for {
		params := url.Values{}
		params.Set("jql", BugQuery(project))
		params.Set("fields", "key,created,resolutiondate,versions,fixVersions")
		params.Set("startAt", strconv.Itoa(startAt))
		params.Set("maxResults", strconv.Itoa(pageSize))

		body, err := c.doRequest(ctx, c.URL+"/rest/api/2/search?"+params.Encode())
		if err != nil {
			return nil, err
		}

		var page searchResult
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeExternal, errors.SeverityHigh, "decode search results").
				WithContext("project", project)
		}

		for _, is := range page.Issues {
			rec, ok := c.toRecord(is)
			if ok {
				records = append(records, rec)
			}
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}

	c.logger.WithFields(logrus.Fields{"project": project, "tickets": len(records)}).Info("fetched tickets")

	if err := c.cachePut(ctx, bucketTickets, project, records); err != nil {
		c.logger.WithError(err).Warn("failed to cache tickets")
	}
	return records, nil
}

func (c *Client) cacheGet(ctx context.Context, bucket, key string, v interface{}) (bool, error) {
	if c.Cache == nil {
		return false, nil
	}
	return c.Cache.Get(ctx, bucket, key, v)
}

func (c *Client) cachePut(ctx context.Context, bucket, key string, v interface{}) error {
	if c.Cache == nil {
		return nil
	}
	return c.Cache.Put(ctx, bucket, key, v)
}

func (c *Client) toRecord(is issue) (timeline.TicketRecord, bool) {
	created, err := ParseTimestamp(is.Fields.Created)
	if err != nil {
		c.logger.WithField("ticket", is.Key).WithError(err).Warn("skipping ticket without creation date")
		return timeline.TicketRecord{}, false
	}
	resolved, err := ParseTimestamp(is.Fields.ResolutionDate)
	if err != nil {
		c.logger.WithField("ticket", is.Key).WithError(err).Warn("skipping ticket without resolution date")
		return timeline.TicketRecord{}, false
	}

	rec := timeline.TicketRecord{Key: is.Key, Created: created, Resolved: resolved}
	for _, v := range is.Fields.Versions {
		rec.AffectedVersionIDs = append(rec.AffectedVersionIDs, v.ID)
	}
	return rec, true
}

func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.ExternalErrorf(err, "request to %s failed", c.URL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New(errors.ErrorTypeExternal, errors.SeverityHigh,
			fmt.Sprintf("jira API returned %d: %s", resp.StatusCode, truncate(string(body), 200))).
			WithContext("status", resp.StatusCode)
	}
	return body, nil
}

// setAuth uses Basic auth when a username is configured, a bearer token
// otherwise
func (c *Client) setAuth(req *http.Request) {
	if c.APIToken == "" {
		return
	}
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.APIToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
}

// ParseTimestamp parses the timestamp layouts Jira emits
func ParseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	layouts := []string{
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05-0700",
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", ts)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
