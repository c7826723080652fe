package api

import (
	"context"
	"net/http"
	"os"
	"strings"

	"stackmgr/internal/orchestrator"
	"stackmgr/internal/progress"
)

type setupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// postSetup runs the installation and streams its progress as NDJSON. The
// run is detached from the request so a dropped client does not abort it.
func (a *App) postSetup(w http.ResponseWriter, r *http.Request) {
	var body setupRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, "bad json", http.StatusBadRequest)
		return
	}
	body.Email = strings.TrimSpace(body.Email)
	if body.Email == "" || body.Password == "" {
		writeError(w, "email and password are required", http.StatusBadRequest)
		return
	}
	a.log.Infow("install requested", "email", body.Email)

	progress.StartHTTP(w)
	stream := progress.NewWriter(w)
	res, err := a.deps.Installer.Run(context.WithoutCancel(r.Context()), orchestrator.Request{
		Email:    body.Email,
		Password: body.Password,
		Domain:   a.cfg.Domain,
	}, stream)
	if err != nil {
		a.log.Errorw("installation failed", "err", err)
		_ = stream.Error(err.Error())
		return
	}
	if err := writeInstallLock(a.cfg.InstallLockFile); err != nil {
		a.log.Warnw("install lock not written", "path", a.cfg.InstallLockFile, "err", err)
	}
	if err := stream.Result(res); err != nil {
		a.log.Warnw("result not delivered", "err", err)
	}
}

func (a *App) getStatus(w http.ResponseWriter, r *http.Request) {
	installed, err := a.deps.Store.IsInstalled(r.Context())
	if err != nil {
		a.log.Errorw("status check", "err", err)
		writeJSON(w, map[string]any{"installed": lockExists(a.cfg.InstallLockFile), "error": err.Error()}, http.StatusOK)
		return
	}
	writeJSON(w, map[string]bool{"installed": installed}, http.StatusOK)
}

func writeInstallLock(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte("INSTALLED=true"), 0o644)
}

func lockExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
