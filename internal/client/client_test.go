package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/imports", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "books.csv", header.Filename)

		w.Write([]byte(`{"data":{"job_id":"job-1","token":"tok-1"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	ticket, err := c.Upload(context.Background(), "books.csv", strings.NewReader("title,author\n"))
	require.NoError(t, err)
	assert.Equal(t, "job-1", ticket.JobID)
	assert.Equal(t, "tok-1", ticket.Token)
}

func TestUploadMissingJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.Upload(context.Background(), "books.csv", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job id")
}

func TestJobStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/jobs/job-1/status", r.URL.Path)
		w.Write([]byte(`{"data":{"status":"processing","progress":0.5,"message":"Halfway"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	status, err := c.JobStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobStateProcessing, status.Status)
	assert.InDelta(t, 0.5, status.Progress, 1e-9)
	assert.Equal(t, "Halfway", status.Message)
}

func TestFetchResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/jobs/job-1/results", r.URL.Path)
		w.Write([]byte(`{"data":{"books":[{"title":"Beloved","author":"Toni Morrison"}],"errors":[{"title":"row 7","message":"bad isbn"}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	results, err := c.FetchResults(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, results.Books, 1)
	assert.Equal(t, "Beloved", results.Books[0].Title)
	require.Len(t, results.Errors, 1)
	assert.Equal(t, "bad isbn", results.Errors[0].Message)
}

func TestFetchResultsErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		target error
	}{
		{"expired on 404", http.StatusNotFound, ErrResultsExpired},
		{"rate limited on 429", http.StatusTooManyRequests, ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			c := New(srv.URL, nil)
			_, err := c.FetchResults(context.Background(), "job-1")
			require.ErrorIs(t, err, tt.target)
		})
	}
}

func TestFetchResultsOtherStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.FetchResults(context.Background(), "job-1")
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
}

func TestEnvelopeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"job not found"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.JobStatus(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")
}

func TestCancelJob(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/jobs/job-1/cancel", r.URL.Path)
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	require.NoError(t, c.CancelJob(context.Background(), "job-1"))
	assert.True(t, called)
}

func TestSearchBooks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/books/search", r.URL.Path)
		assert.Equal(t, "le guin", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"data":{"books":[{"title":"The Dispossessed","author":"Ursula K. Le Guin","year":1974}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	books, err := c.SearchBooks(context.Background(), "le guin", 5)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "The Dispossessed", books[0].Title)
	assert.Equal(t, 1974, books[0].Year)
}

func TestEnrichBook(t *testing.T) {
	t.Run("by isbn", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/books/enrich", r.URL.Path)
			assert.Equal(t, "9780061054884", r.URL.Query().Get("isbn"))
			assert.Empty(t, r.URL.Query().Get("title"))
			w.Write([]byte(`{"data":{"language":"en","author_country":"US"}}`))
		}))
		defer srv.Close()

		c := New(srv.URL, nil)
		meta, err := c.EnrichBook(context.Background(), "9780061054884", "", "")
		require.NoError(t, err)
		assert.Equal(t, "en", meta.Language)
		assert.Equal(t, "US", meta.AuthorCountry)
	})

	t.Run("by title and author", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.URL.Query().Get("isbn"))
			assert.Equal(t, "Beloved", r.URL.Query().Get("title"))
			assert.Equal(t, "Toni Morrison", r.URL.Query().Get("author"))
			w.Write([]byte(`{"data":{"publisher":"Knopf"}}`))
		}))
		defer srv.Close()

		c := New(srv.URL, nil)
		meta, err := c.EnrichBook(context.Background(), "", "Beloved", "Toni Morrison")
		require.NoError(t, err)
		assert.Equal(t, "Knopf", meta.Publisher)
	})
}

func TestNewDefaults(t *testing.T) {
	t.Setenv("SHELFSYNC_SERVER_URL", "")
	c := New("", nil)
	assert.Equal(t, "http://localhost:8480", c.baseURL)
}
