package buildinfo_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/notewatch/pkg/buildinfo"
)

func TestHandlerServesBuildStamp(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/buildinfo", nil)
	rr := httptest.NewRecorder()

	buildinfo.Handler("notewatch")(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var got map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "notewatch", got["service"])
	assert.Equal(t, buildinfo.Version, got["version"])
	assert.Equal(t, buildinfo.Commit, got["commit"])
}

func TestStringCarriesVersionAndCommit(t *testing.T) {
	s := buildinfo.String()
	assert.Contains(t, s, buildinfo.Version)
	assert.Contains(t, s, buildinfo.Commit)
}
