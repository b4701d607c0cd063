package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/levandor/ferret/services/index"
)

func TestHandleCreateIndex(t *testing.T) {
	assert := require.New(t)
	server, dataDir := setupTestServer(t, assert)

	testCases := []testCase{
		{
			name:           "NoRequestBody",
			requestHeaders: defaultTestRequestHeaders,
			requestBody:    nil,
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "EmptyPath",
			requestHeaders: defaultTestRequestHeaders,
			requestBody:    map[string]any{"path": ""},
			expectedStatus: http.StatusNotAcceptable,
		},
		{
			name:           "NonExistentPath",
			requestHeaders: defaultTestRequestHeaders,
			requestBody:    map[string]any{"path": "/no/such/directory"},
			expectedStatus: http.StatusNotAcceptable,
		},
		{
			name:           "RelativePath",
			requestHeaders: defaultTestRequestHeaders,
			requestBody:    map[string]any{"path": "./abc"},
			expectedStatus: http.StatusNotAcceptable,
		},
		{
			name:           "Success",
			requestHeaders: defaultTestRequestHeaders,
			requestBody:    map[string]any{"path": dataDir},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "SuccessRepeat",
			requestHeaders: defaultTestRequestHeaders,
			requestBody:    map[string]any{"path": dataDir},
			expectedStatus: http.StatusAccepted,
		},
	}

	for _, testCase := range testCases {

		t.Run(testCase.name, func(t *testing.T) {
			assert := require.New(t)
			w := makeTestHTTPRequest(server, assert, http.MethodPost, "/index", testCase.requestHeaders, testCase.requestBody, testCase.queryParams)
			responseBytes := w.Body.Bytes()
			assert.Equal(testCase.expectedStatus, w.Code, fmt.Sprintf("response gotten was %s", string(responseBytes)))

			if testCase.expectedStatus == http.StatusAccepted {
				assertSuccessfulIndexCreation(assert, server, responseBytes)
			}
		})
	}
}

func TestHandleGetIndexStatusUnknown(t *testing.T) {
	assert := require.New(t)
	server, _ := setupTestServer(t, assert)

	w := makeTestHTTPRequest(server, assert, http.MethodGet, "/index/"+uuid.NewString(), nil, nil, nil)
	assert.Equal(http.StatusNotFound, w.Code)

	w = makeTestHTTPRequest(server, assert, http.MethodGet, "/index/not-a-uuid", nil, nil, nil)
	assert.Equal(http.StatusNotAcceptable, w.Code)
}

func assertSuccessfulIndexCreation(assert *require.Assertions, server *gin.Engine, responseBytes []byte) {

	type indexResponse struct {
		Data   IndexResponse `json:"data"`
		Errors []string      `json:"errors"`
	}
	actualResponse := indexResponse{}
	err := json.Unmarshal(responseBytes, &actualResponse)
	assert.NoError(err, "could not unmarshal gotten response")
	requestID, err := uuid.Parse(actualResponse.Data.ID)
	assert.NoError(err, "got an error parsing gotten request_id into UUID")

	type statusResponse struct {
		Data   index.RunRecord `json:"data"`
		Errors []string        `json:"errors"`
	}

	maxWaitForIndexCreation := 30 * time.Second

	for startTime := time.Now().UTC(); time.Since(startTime) < maxWaitForIndexCreation; time.Sleep(100 * time.Millisecond) {
		w := makeTestHTTPRequest(server, assert, http.MethodGet, fmt.Sprintf("/index/%s", requestID), nil, nil, nil)
		if w.Code != http.StatusOK {
			continue
		}
		gotten := statusResponse{}
		assert.NoError(json.Unmarshal(w.Body.Bytes(), &gotten))
		assert.NotEqual(index.ProgressStatusFailed, gotten.Data.Progress, "index run failed")
		if gotten.Data.Progress == index.ProgressStatusComplete {
			assert.NotNil(gotten.Data.Stats)
			assert.Equal(len(testFiles)+1, gotten.Data.Stats.TotalFiles, "all test files plus the database should be scanned")
			return
		}
	}
	assert.Fail("timed out waiting for index creation: ", requestID.String())
}
