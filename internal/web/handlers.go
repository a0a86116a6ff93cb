package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/user/banwatch/internal/aggregate"
	"github.com/user/banwatch/internal/daemon"
	"github.com/user/banwatch/internal/fail2ban"
	"github.com/user/banwatch/internal/geo"
	"github.com/user/banwatch/internal/model"
)

// Handlers contains HTTP handlers.
type Handlers struct {
	agg      *aggregate.Aggregator
	client   *fail2ban.Client
	resolver *geo.Resolver
	status   func() *daemon.DaemonStatus
}

// NewHandlers creates new handlers.
func NewHandlers(d *daemon.Daemon) *Handlers {
	return &Handlers{
		agg:      d.Aggregator(),
		client:   d.Client(),
		resolver: d.Resolver(),
		status:   d.GetStatus,
	}
}

// APIGetSnapshot returns the current aggregated state.
func (h *Handlers) APIGetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.agg.Snapshot())
}

// APIGetStatus returns the daemon and fail2ban server status.
func (h *Handlers) APIGetStatus(w http.ResponseWriter, r *http.Request) {
	status := h.status()

	writeJSON(w, map[string]interface{}{
		"running":      status.Running,
		"pid":          status.PID,
		"start_time":   status.StartTime,
		"uptime":       status.Uptime.String(),
		"jobs":         status.Jobs,
		"banned_count": h.agg.BanCount(),
		"executor_up":  h.client.Available(),
	})
}

// APIGetJails queries the live jail statuses from the fail2ban server.
func (h *Handlers) APIGetJails(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.client.AllJailStatuses(r.Context())
	if err != nil {
		writeError(w, err, execStatus(err))
		return
	}
	writeJSON(w, statuses)
}

// APIGetLogs returns the most recent raw fail2ban log lines.
func (h *Handlers) APIGetLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if ln, err := strconv.Atoi(l); err == nil && ln > 0 {
			limit = ln
		}
	}

	lines := h.agg.RecentLines(limit)
	writeJSON(w, map[string]interface{}{
		"lines": lines,
		"count": len(lines),
	})
}

// APIGetGeo resolves the country for one address.
func (h *Handlers) APIGetGeo(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		http.Error(w, "missing ip parameter", http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]string{
		"ip":      ip,
		"country": h.resolver.Resolve(ip),
	})
}

type banRequest struct {
	IP      string `json:"ip"`
	Jail    string `json:"jail"`
	BanTime int    `json:"bantime,omitempty"` // seconds, 0 = jail default
}

// APIBan bans an address in a jail.
func (h *Handlers) APIBan(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if !decodeBanRequest(w, r, &req) {
		return
	}

	var err error
	if req.BanTime != 0 {
		err = h.client.BanIPFor(r.Context(), req.Jail, req.IP, time.Duration(req.BanTime)*time.Second)
	} else {
		err = h.client.BanIP(r.Context(), req.Jail, req.IP)
	}
	if err != nil {
		writeError(w, err, execStatus(err))
		return
	}

	// Reflect the ban immediately instead of waiting for the next log
	// tail cycle.
	h.agg.Apply(model.SecurityEvent{
		Kind:      model.KindBan,
		Jail:      req.Jail,
		Address:   req.IP,
		Timestamp: time.Now(),
	})

	writeJSON(w, map[string]string{"result": "banned"})
}

// APIUnban removes a ban. Unbanning an address that is not banned is
// reported as already_absent, not as an error.
func (h *Handlers) APIUnban(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if !decodeBanRequest(w, r, &req) {
		return
	}

	result, err := h.client.UnbanIP(r.Context(), req.Jail, req.IP)
	if err != nil {
		writeError(w, err, execStatus(err))
		return
	}

	h.agg.Apply(model.SecurityEvent{
		Kind:      model.KindUnban,
		Jail:      req.Jail,
		Address:   req.IP,
		Timestamp: time.Now(),
	})

	if result == fail2ban.AlreadyAbsent {
		writeJSON(w, map[string]string{"result": "already_absent"})
		return
	}
	writeJSON(w, map[string]string{"result": "unbanned"})
}

// APIReload reloads the fail2ban configuration, or a single jail when
// one is given.
func (h *Handlers) APIReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Jail string `json:"jail"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	var err error
	if req.Jail != "" {
		err = h.client.ReloadJail(r.Context(), req.Jail)
	} else {
		err = h.client.Reload(r.Context())
	}
	if err != nil {
		writeError(w, err, execStatus(err))
		return
	}

	writeJSON(w, map[string]string{"result": "reloaded"})
}

func decodeBanRequest(w http.ResponseWriter, r *http.Request, req *banRequest) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return false
	}
	if req.IP == "" || req.Jail == "" {
		http.Error(w, "ip and jail are required", http.StatusBadRequest)
		return false
	}
	return true
}

// execStatus maps an executor failure onto an HTTP status.
func execStatus(err error) int {
	kind, ok := fail2ban.ErrKind(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case fail2ban.ExecTimeout:
		return http.StatusGatewayTimeout
	case fail2ban.ExecNotAvailable:
		return http.StatusServiceUnavailable
	case fail2ban.ExecPermissionDenied:
		return http.StatusForbidden
	case fail2ban.ExecDaemonRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
