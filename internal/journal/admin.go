package journal

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/trackbind/internal/httputil"
	"github.com/banshee-data/trackbind/internal/monitoring"
)

// AttachAdminRoutes mounts a tailsql console over the journal, JSON views
// of recent rows, and an on-demand backup under /debug/.
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("journal: tailsql unavailable: %v", err)
	} else {
		tsql.SetDB("sqlite://"+filepath.Base(j.path), j.db, &tailsql.DBOptions{
			Label: "Trackbind journal",
		})
		debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	}

	debug.KVFunc("journal", func() any { return j.Counters() })

	debug.HandleFunc("journal-writes", "Recent binder writes (JSON, ?limit=N)", func(w http.ResponseWriter, r *http.Request) {
		rows, err := j.RecentWrites(limitParam(r))
		writeJSON(w, rows, err)
	})
	debug.HandleFunc("journal-transitions", "Recent overlap status transitions (JSON, ?limit=N)", func(w http.ResponseWriter, r *http.Request) {
		rows, err := j.RecentTransitions(limitParam(r))
		writeJSON(w, rows, err)
	})

	debug.Handle("journal-backup", "Create and download a backup of the journal now", http.HandlerFunc(j.serveBackup))
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return DefaultLimit
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any, err error) {
	if err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	httputil.WriteJSONOK(w, v)
}

func (j *Journal) serveBackup(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "trackbind-backup-")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup dir: %v", err), http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(dir)

	name := fmt.Sprintf("journal-%d.db", j.clock.Now().Unix())
	backupPath := filepath.Join(dir, name)
	if _, err := j.db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}

	f, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		monitoring.Logf("journal: backup stream: %v", err)
	}
}
