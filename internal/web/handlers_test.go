package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/banwatch/internal/aggregate"
	"github.com/user/banwatch/internal/daemon"
	"github.com/user/banwatch/internal/fail2ban"
	"github.com/user/banwatch/internal/geo"
	"github.com/user/banwatch/internal/model"
)

type fixedResolver struct{}

func (fixedResolver) Resolve(ip string) string { return "??" }

func testHandlers(t *testing.T, clientPath string) *Handlers {
	t.Helper()

	if clientPath == "" {
		clientPath = filepath.Join(t.TempDir(), "missing-client")
	}

	return &Handlers{
		agg:      aggregate.New(fixedResolver{}, 100),
		client:   fail2ban.NewClient(clientPath, time.Second),
		resolver: geo.NewResolver("http://127.0.0.1:0", time.Second),
		status: func() *daemon.DaemonStatus {
			return &daemon.DaemonStatus{Running: true, PID: 42, StartTime: time.Now()}
		},
	}
}

// fakeClient writes a shell script standing in for fail2ban-client.
func fakeClient(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fail2ban-client")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestSnapshotEndpoint(t *testing.T) {
	h := testHandlers(t, "")
	h.agg.Apply(model.SecurityEvent{
		Kind:      model.KindBan,
		Jail:      "sshd",
		Address:   "203.0.113.5",
		Timestamp: time.Now(),
	})

	rec := httptest.NewRecorder()
	h.APIGetSnapshot(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.Bans, 1)
	assert.Equal(t, "203.0.113.5", snap.Bans[0].Address)
}

func TestStatusEndpoint(t *testing.T) {
	h := testHandlers(t, "")

	rec := httptest.NewRecorder()
	h.APIGetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["running"])
	assert.Equal(t, float64(42), body["pid"])
}

func TestLogsEndpointLimit(t *testing.T) {
	h := testHandlers(t, "")
	h.agg.AddRaw("first")
	h.agg.AddRaw("second")
	h.agg.AddRaw("third")

	rec := httptest.NewRecorder()
	h.APIGetLogs(rec, httptest.NewRequest(http.MethodGet, "/api/logs?limit=2", nil))

	var body struct {
		Lines []string `json:"lines"`
		Count int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"second", "third"}, body.Lines)
	assert.Equal(t, 2, body.Count)
}

func TestGeoEndpointRequiresIP(t *testing.T) {
	h := testHandlers(t, "")

	rec := httptest.NewRecorder()
	h.APIGetGeo(rec, httptest.NewRequest(http.MethodGet, "/api/geo", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBanRequiresIPAndJail(t *testing.T) {
	h := testHandlers(t, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ban", strings.NewReader(`{"ip":"203.0.113.5"}`))
	h.APIBan(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBanRejectsGet(t *testing.T) {
	h := testHandlers(t, "")

	rec := httptest.NewRecorder()
	h.APIBan(rec, httptest.NewRequest(http.MethodGet, "/api/ban", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBanAppliesToAggregator(t *testing.T) {
	h := testHandlers(t, fakeClient(t, "#!/bin/sh\necho 1\n"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ban",
		strings.NewReader(`{"ip":"203.0.113.5","jail":"sshd"}`))
	h.APIBan(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.agg.BanCount())
}

func TestUnbanAlreadyAbsent(t *testing.T) {
	h := testHandlers(t, fakeClient(t, "#!/bin/sh\necho 0\n"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/unban",
		strings.NewReader(`{"ip":"203.0.113.5","jail":"sshd"}`))
	h.APIUnban(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "already_absent", body["result"])
}

func TestJailsExecutorDownMapsToServiceUnavailable(t *testing.T) {
	h := testHandlers(t, "")

	rec := httptest.NewRecorder()
	h.APIGetJails(rec, httptest.NewRequest(http.MethodGet, "/api/jails", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExecStatusMapping(t *testing.T) {
	cases := []struct {
		kind fail2ban.ExecErrorKind
		want int
	}{
		{fail2ban.ExecTimeout, http.StatusGatewayTimeout},
		{fail2ban.ExecNotAvailable, http.StatusServiceUnavailable},
		{fail2ban.ExecPermissionDenied, http.StatusForbidden},
		{fail2ban.ExecDaemonRejected, http.StatusBadGateway},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, execStatus(&fail2ban.ExecError{Kind: tc.kind}))
	}
	assert.Equal(t, http.StatusInternalServerError, execStatus(assert.AnError))
}
