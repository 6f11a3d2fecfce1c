package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcptools/odata-bridge/internal/client"
	"github.com/mcptools/odata-bridge/internal/constants"
)

// CSRFSuite exercises the token lifecycle against a mock SAP service:
// a fresh token is fetched before every modifying call, reads go out
// without one, and a 403 rejection triggers a refetch and replay.
type CSRFSuite struct {
	suite.Suite
	server         *httptest.Server
	client         *client.ODataClient
	csrfToken      string
	tokenFetches   int
	modifyRequests int
}

func (s *CSRFSuite) SetupTest() {
	s.csrfToken = "token-abc-123"
	s.tokenFetches = 0
	s.modifyRequests = 0

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(constants.CSRFTokenHeader) == constants.CSRFTokenFetch {
			s.tokenFetches++
			w.Header().Set(constants.CSRFTokenHeader, s.csrfToken)
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{"d": map[string]interface{}{}})
			return
		}

		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			s.modifyRequests++
			if r.Header.Get(constants.CSRFTokenHeader) != s.csrfToken {
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]interface{}{
						"code":    "403",
						"message": "CSRF token validation failed",
					},
				})
				return
			}
		}

		switch {
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "ProductSet"):
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"d": map[string]interface{}{
					"results": []map[string]interface{}{
						{"ProductID": "HT-1000", "Name": "Notebook"},
					},
				},
			})
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "ProductSet"):
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"d": map[string]interface{}{"ProductID": "HT-2000", "Name": body["Name"]},
			})
		case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "ProductSet"):
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "RegenerateKeys"):
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"d": map[string]interface{}{"Status": "done"},
			})
		default:
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{"d": map[string]interface{}{}})
		}
	}))

	s.client = client.NewODataClient(s.server.URL, false)
	s.client.SetBasicAuth("testuser", "testpass")
}

func (s *CSRFSuite) TearDownTest() {
	s.server.Close()
}

func (s *CSRFSuite) TestCreateFetchesToken() {
	_, err := s.client.CreateEntity(context.Background(), "ProductSet", map[string]interface{}{"Name": "Monitor"})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, s.tokenFetches)
	assert.Equal(s.T(), 1, s.modifyRequests)
}

func (s *CSRFSuite) TestUpdateFetchesToken() {
	_, err := s.client.UpdateEntity(context.Background(), "ProductSet",
		map[string]interface{}{"ProductID": "HT-1000"},
		map[string]interface{}{"Name": "Notebook Pro"}, "PUT")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, s.tokenFetches)
	assert.Equal(s.T(), 1, s.modifyRequests)
}

func (s *CSRFSuite) TestDeleteFetchesToken() {
	_, err := s.client.DeleteEntity(context.Background(), "ProductSet",
		map[string]interface{}{"ProductID": "HT-1000"})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, s.tokenFetches)
	assert.Equal(s.T(), 1, s.modifyRequests)
}

func (s *CSRFSuite) TestFreshTokenPerOperation() {
	ctx := context.Background()
	_, err := s.client.CreateEntity(ctx, "ProductSet", map[string]interface{}{"Name": "A"})
	require.NoError(s.T(), err)
	_, err = s.client.CreateEntity(ctx, "ProductSet", map[string]interface{}{"Name": "B"})
	require.NoError(s.T(), err)
	_, err = s.client.DeleteEntity(ctx, "ProductSet", map[string]interface{}{"ProductID": "HT-1000"})
	require.NoError(s.T(), err)

	assert.Equal(s.T(), 3, s.tokenFetches, "each modifying call should fetch a fresh token")
	assert.Equal(s.T(), 3, s.modifyRequests)
}

func (s *CSRFSuite) TestReadNeedsNoToken() {
	result, err := s.client.GetEntitySet(context.Background(), "ProductSet", nil)
	require.NoError(s.T(), err)
	assert.NotNil(s.T(), result)
	assert.Equal(s.T(), 0, s.tokenFetches)
	assert.Equal(s.T(), 0, s.modifyRequests)
}

func (s *CSRFSuite) TestModifyingFunctionFetchesToken() {
	_, err := s.client.CallFunction(context.Background(), "RegenerateKeys",
		map[string]interface{}{"Scope": "all"}, "POST")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, s.tokenFetches)
	assert.Equal(s.T(), 1, s.modifyRequests)
}

func (s *CSRFSuite) TestRejectedTokenIsRefetchedAndReplayed() {
	fetches := 0
	posts := 0
	valid := "good-token-456"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(constants.CSRFTokenHeader) == constants.CSRFTokenFetch {
			fetches++
			// the first token handed out is already expired
			if fetches == 1 {
				w.Header().Set(constants.CSRFTokenHeader, "expired-token")
			} else {
				w.Header().Set(constants.CSRFTokenHeader, valid)
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{"d": map[string]interface{}{}})
			return
		}

		if r.Method == http.MethodPost {
			posts++
			if r.Header.Get(constants.CSRFTokenHeader) == valid {
				w.WriteHeader(http.StatusCreated)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"d": map[string]interface{}{"ProductID": "HT-3000"},
				})
				return
			}
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{
					"code":    "403",
					"message": "CSRF token validation failed",
				},
			})
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{"d": map[string]interface{}{}})
	}))
	defer server.Close()

	c := client.NewODataClient(server.URL, false)
	c.SetBasicAuth("testuser", "testpass")

	result, err := c.CreateEntity(context.Background(), "ProductSet", map[string]interface{}{"Name": "X"})
	require.NoError(s.T(), err)
	assert.NotNil(s.T(), result)
	assert.Equal(s.T(), 2, fetches, "initial fetch plus refetch after rejection")
	assert.Equal(s.T(), 2, posts, "initial attempt plus replay")
}

func (s *CSRFSuite) TestTokenHeaderCaseVariations() {
	for _, headerName := range []string{"X-CSRF-TOKEN", "x-csrf-token", "X-Csrf-Token"} {
		s.Run(headerName, func() {
			token := "case-token-789"
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get(constants.CSRFTokenHeader) == constants.CSRFTokenFetch {
					w.Header().Set(headerName, token)
					w.WriteHeader(http.StatusOK)
					json.NewEncoder(w).Encode(map[string]interface{}{"d": map[string]interface{}{}})
					return
				}
				if r.Method == http.MethodPost && r.Header.Get(constants.CSRFTokenHeader) == token {
					w.WriteHeader(http.StatusCreated)
					json.NewEncoder(w).Encode(map[string]interface{}{"d": map[string]interface{}{"ProductID": "1"}})
					return
				}
				w.WriteHeader(http.StatusForbidden)
			}))
			defer server.Close()

			c := client.NewODataClient(server.URL, false)
			c.SetBasicAuth("user", "pass")
			_, err := c.CreateEntity(context.Background(), "ProductSet", map[string]interface{}{"Name": "Y"})
			assert.NoError(s.T(), err, "token in %s header should be accepted", headerName)
		})
	}
}

func TestCSRFSuite(t *testing.T) {
	suite.Run(t, new(CSRFSuite))
}

// TestCSRFLiveService runs against a real service when ODATA_URL,
// ODATA_USER and ODATA_PASS are set.
func TestCSRFLiveService(t *testing.T) {
	odataURL := os.Getenv("ODATA_URL")
	odataUser := os.Getenv("ODATA_USER")
	odataPass := os.Getenv("ODATA_PASS")
	if odataURL == "" || odataUser == "" || odataPass == "" {
		t.Skip("Skipping live test: ODATA_URL, ODATA_USER, ODATA_PASS not set")
	}

	c := client.NewODataClient(odataURL, true)
	c.SetBasicAuth(odataUser, odataPass)

	t.Run("GetMetadata", func(t *testing.T) {
		metadata, err := c.GetMetadata(context.Background())
		if err != nil {
			t.Skipf("metadata not available: %v", err)
		}
		assert.NotEmpty(t, metadata.EntitySets)
	})

	t.Run("ReadWithoutToken", func(t *testing.T) {
		resp, err := c.GetEntitySet(context.Background(), "", nil)
		if err != nil {
			t.Skipf("service document not accessible: %v", err)
		}
		assert.NotNil(t, resp)
	})
}
