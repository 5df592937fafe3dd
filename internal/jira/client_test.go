package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/defectlab/internal/cache"
	"github.com/rohankatakam/defectlab/internal/errors"
)

func newTestClient(t *testing.T, url string, store *cache.Store) *Client {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return NewClient(url, "", "", 0, store, logger)
}

func TestReleases(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/project/PROJ/versions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		fmt.Fprint(w, `[
			{"id": "10", "name": "1.0", "releaseDate": "2019-01-15", "released": true},
			{"id": "11", "name": "1.1", "released": false},
			{"id": "12", "name": "1.2", "releaseDate": "not-a-date"}
		]`)
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv.URL, nil).Releases(context.Background(), "PROJ")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "10", got[0].VersionID)
	assert.Equal(t, "1.0", got[0].Name)
	assert.Equal(t, time.Date(2019, 1, 15, 0, 0, 0, 0, time.UTC), got[0].Date)
	assert.True(t, got[1].Date.IsZero())
	assert.True(t, got[2].Date.IsZero())
}

func TestTicketsPaginates(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/rest/api/2/search", r.URL.Path)
		assert.Equal(t, BugQuery("PROJ"), r.URL.Query().Get("jql"))

		start, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		page := searchResult{StartAt: start, MaxResults: 2, Total: 3}
		for i := start; i < start+2 && i < 3; i++ {
			var is issue
			is.Key = fmt.Sprintf("PROJ-%d", i+1)
			is.Fields.Created = "2019-02-01T10:00:00.000+0000"
			is.Fields.ResolutionDate = "2019-03-01T10:00:00.000+0000"
			is.Fields.Versions = []version{{ID: "10"}, {ID: "11"}}
			page.Issues = append(page.Issues, is)
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	c.PageSize = 2

	got, err := c.Tickets(context.Background(), "PROJ")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Len(t, got, 3)

	assert.Equal(t, "PROJ-1", got[0].Key)
	assert.Equal(t, []string{"10", "11"}, got[0].AffectedVersionIDs)
	assert.Equal(t, time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC), got[0].Created.UTC())
	assert.Equal(t, time.Date(2019, 3, 1, 10, 0, 0, 0, time.UTC), got[0].Resolved.UTC())
}

func TestTicketsSkipsIssuesWithoutDates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"startAt":0,"maxResults":50,"total":2,"issues":[
			{"key":"PROJ-1","fields":{"created":"2019-02-01T10:00:00.000+0000"}},
			{"key":"PROJ-2","fields":{"created":"2019-02-01T10:00:00.000+0000","resolutiondate":"2019-02-03T10:00:00.000+0000"}}
		]}`)
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv.URL, nil).Tickets(context.Background(), "PROJ")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "PROJ-2", got[0].Key)
}

func TestErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such project", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, nil).Releases(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, errors.ErrorTypeExternal, errors.GetType(err))
}

func TestAuthHeaders(t *testing.T) {
	var basicUser, bearer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, _, ok := r.BasicAuth(); ok {
			basicUser = u
		} else {
			bearer = r.Header.Get("Authorization")
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	_, err := NewClient(srv.URL, "alice", "secret", 0, nil, logger).Releases(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "alice", basicUser)

	_, err = NewClient(srv.URL, "", "token", 0, nil, logger).Releases(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, "Bearer token", bearer)
}

func TestResponsesAreCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `[{"id": "10", "name": "1.0", "releaseDate": "2019-01-15"}]`)
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	store, err := cache.Open(filepath.Join(t.TempDir(), "jira.db"), 0, logger)
	require.NoError(t, err)
	defer store.Close()

	c := newTestClient(t, srv.URL, store)
	first, err := c.Releases(context.Background(), "PROJ")
	require.NoError(t, err)
	second, err := c.Releases(context.Background(), "PROJ")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Len(t, second, 1)
	assert.True(t, first[0].Date.Equal(second[0].Date))
	assert.Equal(t, first[0].VersionID, second[0].VersionID)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2019-02-01T10:00:00.000+0000", time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC), false},
		{"2019-02-01T10:00:00+0000", time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC), false},
		{"2019-02-01T10:00:00Z", time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC), false},
		{"2019-02-01", time.Date(2019, 2, 1, 0, 0, 0, 0, time.UTC), false},
		{"", time.Time{}, true},
		{"yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}
