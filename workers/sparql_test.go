package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSPARQLClient() *SPARQLClient {
	return &SPARQLClient{
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
	}
}

func TestSPARQLSelect(t *testing.T) {
	var gotQuery, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotQuery = r.Form.Get("query")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/sparql-results+json")
		_, _ = w.Write([]byte(`{
			"head": {"vars": ["s"]},
			"results": {"bindings": [
				{"s": {"type": "uri", "value": "http://example.org/c1"}},
				{"s": {"type": "uri", "value": "http://example.org/c2"}}
			]}
		}`))
	}))
	defer server.Close()

	result, err := testSPARQLClient().Select(context.Background(), server.URL, "SELECT ?s WHERE { ?s ?p ?o }")
	require.NoError(t, err)
	assert.Equal(t, "SELECT ?s WHERE { ?s ?p ?o }", gotQuery)
	assert.Equal(t, "application/sparql-results+json", gotAccept)
	require.Len(t, result.Results.Bindings, 2)
	assert.Equal(t, "http://example.org/c1", result.Results.Bindings[0]["s"].Value)
}

func TestSPARQLSelectRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"head":{"vars":[]},"results":{"bindings":[]}}`))
	}))
	defer server.Close()

	_, err := testSPARQLClient().Select(context.Background(), server.URL, "SELECT * WHERE {}")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestSPARQLSelectGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := testSPARQLClient().Select(context.Background(), server.URL, "SELECT * WHERE {}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestSPARQLSelectClientErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "malformed query", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := testSPARQLClient().Select(context.Background(), server.URL, "SELEKT oops")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, 1, attempts, "4xx is the caller's fault, retrying will not help")
}

func TestLanguageMatcher(t *testing.T) {
	acceptAll := languageMatcher(nil)
	assert.True(t, acceptAll("fr"))
	assert.True(t, acceptAll(""))

	english := languageMatcher([]string{"en"})
	assert.True(t, english("en"))
	assert.True(t, english("en-GB"), "regional variants match the base tag")
	assert.True(t, english(""), "untagged literals always pass")
	assert.False(t, english("fr"))
	assert.False(t, english("not-a-tag!!"))
}
