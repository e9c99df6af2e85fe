package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ytget/ytq/internal/download"
	"github.com/ytget/ytq/internal/model"
	"github.com/ytget/ytq/internal/resume"
)

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Enqueue(req model.JobRequest) (string, error) {
	args := m.Called(req)
	return args.String(0), args.Error(1)
}

func (m *mockQueue) GetStatus(id string) (model.JobStatus, bool) {
	args := m.Called(id)
	return args.Get(0).(model.JobStatus), args.Bool(1)
}

func (m *mockQueue) ListAll() []model.JobStatus {
	args := m.Called()
	return args.Get(0).([]model.JobStatus)
}

func (m *mockQueue) Stats() model.QueueStats {
	args := m.Called()
	return args.Get(0).(model.QueueStats)
}

type mockPartials struct {
	mock.Mock
}

func (m *mockPartials) ListAll(dir string) ([]resume.Summary, error) {
	args := m.Called(dir)
	summaries, _ := args.Get(0).([]resume.Summary)
	return summaries, args.Error(1)
}

func (m *mockPartials) BestToResume(dir string) (resume.Summary, bool, error) {
	args := m.Called(dir)
	return args.Get(0).(resume.Summary), args.Bool(1), args.Error(2)
}

func newTestServer(q Queue, p Partials) *Server {
	return NewServer(q, p, Options{
		DownloadDir: "/videos",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestSubmitJob(t *testing.T) {
	q := new(mockQueue)
	q.On("Enqueue", model.JobRequest{SourceID: "dQw4w9WgXcQ", Title: "Song", Quality: "720p"}).
		Return("job-1", nil).Once()

	rec := serve(newTestServer(q, nil), http.MethodPost, "/jobs",
		`{"source_id":" dQw4w9WgXcQ ","title":"Song","quality":"720p"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/jobs/job-1", rec.Header().Get("Location"))

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.ID)
	q.AssertExpectations(t)
}

func TestSubmitJob_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"source_id":`},
		{"missing source", `{"title":"x"}`},
		{"blank source", `{"source_id":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := new(mockQueue)
			rec := serve(newTestServer(q, nil), http.MethodPost, "/jobs", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			q.AssertNotCalled(t, "Enqueue", mock.Anything)
		})
	}
}

func TestSubmitJob_ServiceClosed(t *testing.T) {
	q := new(mockQueue)
	q.On("Enqueue", mock.Anything).Return("", download.ErrServiceClosed)

	rec := serve(newTestServer(q, nil), http.MethodPost, "/jobs", `{"source_id":"dQw4w9WgXcQ"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "shut down")
}

func TestListJobs(t *testing.T) {
	now := time.Now()
	q := new(mockQueue)
	q.On("ListAll").Return([]model.JobStatus{
		{ID: "job-1", SourceID: "aaaaaaaaaaa", State: model.JobStateRunning, QueuedAt: now},
		{ID: "job-2", SourceID: "bbbbbbbbbbb", State: model.JobStateQueued, QueuedAt: now},
	})

	rec := serve(newTestServer(q, nil), http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var jobs []model.JobStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-1", jobs[0].ID)
	assert.Equal(t, model.JobStateQueued, jobs[1].State)
}

func TestJobStatus(t *testing.T) {
	q := new(mockQueue)
	q.On("GetStatus", "job-1").Return(model.JobStatus{
		ID:      "job-1",
		State:   model.JobStateFailed,
		Outcome: model.OutcomeRateLimited,
	}, true)
	q.On("GetStatus", "job-404").Return(model.JobStatus{}, false)
	s := newTestServer(q, nil)

	rec := serve(s, http.MethodGet, "/jobs/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st model.JobStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, model.OutcomeRateLimited, st.Outcome)

	rec = serve(s, http.MethodGet, "/jobs/job-404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrJobNotFound.Error())
}

func TestStats(t *testing.T) {
	q := new(mockQueue)
	q.On("Stats").Return(model.QueueStats{Queued: 3, Running: 2, Completed: 7, RateLimited: 1})

	rec := serve(newTestServer(q, nil), http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats model.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Queued)
	assert.Equal(t, int64(7), stats.Completed)
	assert.Equal(t, int64(1), stats.RateLimited)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := serve(newTestServer(new(mockQueue), nil), http.MethodDelete, "/jobs", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := serve(newTestServer(new(mockQueue), nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPartials(t *testing.T) {
	p := new(mockPartials)
	p.On("ListAll", "/videos").Return([]resume.Summary{
		{Record: resume.Record{SourceID: "aaaaaaaaaaa", OutputPath: "/videos/a.mp4"}, Percent: 40},
	}, nil)

	rec := serve(newTestServer(new(mockQueue), p), http.MethodGet, "/partials", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PartialsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/videos", resp.Dir)
	require.Len(t, resp.Partials, 1)
	assert.Equal(t, "aaaaaaaaaaa", resp.Partials[0].SourceID)
	assert.InDelta(t, 40, resp.Partials[0].Percent, 0.001)
}

func TestPartials_Empty(t *testing.T) {
	p := new(mockPartials)
	p.On("ListAll", "/videos").Return(nil, nil)

	rec := serve(newTestServer(new(mockQueue), p), http.MethodGet, "/partials", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"partials":[]`)
}

func TestPartials_Error(t *testing.T) {
	p := new(mockPartials)
	p.On("ListAll", "/videos").Return(nil, errors.New("permission denied"))

	rec := serve(newTestServer(new(mockQueue), p), http.MethodGet, "/partials", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBestPartial(t *testing.T) {
	p := new(mockPartials)
	p.On("BestToResume", "/videos").Return(resume.Summary{
		Record: resume.Record{SourceID: "bbbbbbbbbbb"},
	}, true, nil).Once()
	p.On("BestToResume", "/videos").Return(resume.Summary{}, false, nil).Once()
	s := newTestServer(new(mockQueue), p)

	rec := serve(s, http.MethodGet, "/partials/best", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bbbbbbbbbbb")

	rec = serve(s, http.MethodGet, "/partials/best", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPartialsRoutesDisabled(t *testing.T) {
	rec := serve(newTestServer(new(mockQueue), nil), http.MethodGet, "/partials", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "ytq_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := NewServer(new(mockQueue), nil, Options{
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	rec := serve(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ytq_test_total 1")
}

func TestStartStop_Concurrent(t *testing.T) {
	s := NewServer(new(mockQueue), nil, Options{
		Addr:   "127.0.0.1:0",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	started := make(chan error, 1)
	go func() { started <- s.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Expected Start to return after Stop")
	}
}

func TestStop_WithoutStart(t *testing.T) {
	s := NewServer(new(mockQueue), nil, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, s.Stop(context.Background()))
	assert.NoError(t, s.Start())
}
