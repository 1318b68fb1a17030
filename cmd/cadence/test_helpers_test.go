package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cadence/internal/daemon"
	"cadence/internal/jobs"
)

// fakeDaemon serves the daemon's HTTP API from an in-memory job list so CLI
// commands can run end to end without a real daemon process.
type fakeDaemon struct {
	mu   sync.Mutex
	jobs []jobs.Job
	logs []jobs.LogEntry

	lastSubmit map[string]string
	submitErr  string
	submitCode int
}

func newFakeDaemon(t *testing.T) (*fakeDaemon, string) {
	t.Helper()
	fd := &fakeDaemon{}

	router := http.NewServeMux()
	router.HandleFunc("GET /api/status", fd.handleStatus)
	router.HandleFunc("GET /api/logs", fd.handleGlobalLogs)
	router.HandleFunc("POST /api/jobs", fd.handleSubmit)
	router.HandleFunc("GET /api/jobs", fd.handleList)
	router.HandleFunc("POST /api/jobs/clear-completed", fd.handleClearCompleted)
	router.HandleFunc("GET /api/jobs/{id}", fd.handleGet)
	router.HandleFunc("DELETE /api/jobs/{id}", fd.handleDelete)
	router.HandleFunc("GET /api/jobs/{id}/logs", fd.handleJobLogs)
	router.HandleFunc("POST /api/jobs/{id}/cancel", fd.handleCancel)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return fd, server.URL
}

func (fd *fakeDaemon) addJob(job jobs.Job) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.jobs = append(fd.jobs, job)
}

func (fd *fakeDaemon) find(id string) *jobs.Job {
	for i := range fd.jobs {
		if fd.jobs[i].ID == id {
			return &fd.jobs[i]
		}
	}
	return nil
}

func (fd *fakeDaemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	counts := map[string]int{}
	for _, job := range fd.jobs {
		counts[string(job.Status)]++
	}
	writeTestJSON(w, http.StatusOK, daemon.Status{Running: true, PID: 4242, JobCounts: counts, ArchivedCount: 7})
}

func (fd *fakeDaemon) handleSubmit(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	fd.lastSubmit = req
	if fd.submitErr != "" {
		writeTestJSON(w, fd.submitCode, map[string]string{"error": fd.submitErr})
		return
	}
	job := jobs.Job{
		ID:        "11112222-3333-4444-5555-666677778888",
		SourceURL: req["url"],
		Format:    req["format"],
		Status:    jobs.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	fd.jobs = append(fd.jobs, job)
	writeTestJSON(w, http.StatusAccepted, job)
}

func (fd *fakeDaemon) handleList(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	list := fd.jobs
	if list == nil {
		list = []jobs.Job{}
	}
	writeTestJSON(w, http.StatusOK, list)
}

func (fd *fakeDaemon) handleGet(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	job := fd.find(r.PathValue("id"))
	if job == nil {
		writeTestJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	writeTestJSON(w, http.StatusOK, job)
}

func (fd *fakeDaemon) handleCancel(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	job := fd.find(r.PathValue("id"))
	if job == nil {
		writeTestJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	if job.Status.IsTerminal() {
		writeTestJSON(w, http.StatusConflict, map[string]string{"error": "job is already " + string(job.Status)})
		return
	}
	job.Status = jobs.StatusCancelled
	writeTestJSON(w, http.StatusOK, job)
}

func (fd *fakeDaemon) handleDelete(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	id := r.PathValue("id")
	for i := range fd.jobs {
		if fd.jobs[i].ID == id {
			fd.jobs = append(fd.jobs[:i], fd.jobs[i+1:]...)
			writeTestJSON(w, http.StatusOK, map[string]string{"deleted": id})
			return
		}
	}
	writeTestJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
}

func (fd *fakeDaemon) handleClearCompleted(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	kept := fd.jobs[:0]
	removed := 0
	for _, job := range fd.jobs {
		if job.Status.IsTerminal() {
			removed++
			continue
		}
		kept = append(kept, job)
	}
	fd.jobs = kept
	writeTestJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (fd *fakeDaemon) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.find(r.PathValue("id")) == nil {
		writeTestJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	entries := fd.logs
	if entries == nil {
		entries = []jobs.LogEntry{}
	}
	writeTestJSON(w, http.StatusOK, entries)
}

func (fd *fakeDaemon) handleGlobalLogs(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	entries := fd.logs
	if entries == nil {
		entries = []jobs.LogEntry{}
	}
	writeTestJSON(w, http.StatusOK, entries)
}

func writeTestJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func runCLI(t *testing.T, address string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--address", address}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("output missing %q:\n%s", want, output)
	}
}
