package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"pullview/internal/config"
	"pullview/internal/domain"
	"pullview/internal/ratelimit"
	"pullview/internal/service"
)

const (
	apiToken  = "api-secret"
	cronToken = "cron-secret"
)

type ServerTestSuite struct {
	suite.Suite

	records  *fakeRecords
	reports  *fakeReports
	ingester *fakeIngester
	importer *fakeImporter
	cfg      *config.Config
	server   *Server
	handler  http.Handler
}

func (s *ServerTestSuite) SetupTest() {
	s.records = newFakeRecords()
	s.reports = newFakeReports()
	s.ingester = newFakeIngester(domain.KindYouTube, domain.KindReddit)
	s.importer = &fakeImporter{result: &service.ImportResult{TookLines: 2, Inserted: 1, Errors: []service.LineError{{Line: 2, Error: "insert failed"}}}}

	s.cfg = &config.Config{
		Server: config.ServerConfig{Environment: "production", MaxBodyBytes: 1 << 20},
		Auth:   config.AuthConfig{APIToken: apiToken, CronToken: cronToken},
		Ingest: config.IngestConfig{DefaultCooldown: time.Minute, MaxCooldown: time.Hour},
		RateLimit: config.RateLimitConfig{
			CreateLimit:  2,
			CreateWindow: time.Minute,
			DeleteLimit:  5,
			DeleteWindow: time.Minute,
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.server = New(Deps{
		Records:  s.records,
		Sources:  &fakeSources{},
		Reports:  s.reports,
		Stats:    &fakeStats{snap: &domain.StoreSnapshot{}},
		Ingester: s.ingester,
		Importer: s.importer,
		Limiter:  ratelimit.New(ratelimit.NewMemoryStore()),
	}, s.cfg, logger)
	s.server.now = func() time.Time { return time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC) }
	s.handler = s.server.Routes()
}

func (s *ServerTestSuite) do(method, target, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *ServerTestSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func recordBody(ext string) string {
	return `{"source_id":"6f1c1c8e-3f57-4a55-9a7a-2b1d3b7a9c01","external_id":"` + ext +
		`","created_at":"2026-10-01T12:00:00Z","body":"great","rating":4.5,"tags":{"k":"v"}}`
}

func (s *ServerTestSuite) TestRecordCreateThenGet() {
	rec := s.do(http.MethodPost, "/records", apiToken, recordBody("c1"))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	item := s.decode(rec)["item"].(map[string]any)
	id := item["id"].(string)
	s.Equal("c1", item["external_id"])

	rec = s.do(http.MethodGet, "/records/"+id, "", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	got := s.decode(rec)["item"].(map[string]any)
	s.Equal(id, got["id"])
	s.Equal("great", got["body"])
	s.Equal(4.5, got["rating"])
	s.Equal(map[string]any{"k": "v"}, got["tags"])
}

func (s *ServerTestSuite) TestRecordCreateValidation() {
	rec := s.do(http.MethodPost, "/records", apiToken, `{"source_id":"x"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal(false, s.decode(rec)["ok"])

	rec = s.do(http.MethodPost, "/records", apiToken, `{not json`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("invalid JSON body", s.decode(rec)["error"])
}

func (s *ServerTestSuite) TestRecordListClampsLimit() {
	rec := s.do(http.MethodGet, "/records?limit=500&offset=-3&q=good", "", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	s.Equal(100, s.records.lastFilter.Limit)
	s.Equal(0, s.records.lastFilter.Offset)
	s.Require().NotNil(s.records.lastFilter.Query)
	s.Equal("good", *s.records.lastFilter.Query)

	body := s.decode(rec)
	s.Equal(float64(100), body["limit"])
	s.Equal([]any{}, body["items"])

	rec = s.do(http.MethodGet, "/records?limit=99999999999999999999", "", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(100, s.records.lastFilter.Limit)
}

func (s *ServerTestSuite) TestRecordListRejectsBadFilters() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/records?source_id=nope", "", "").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/records?rating_gte=high", "", "").Code)

	rec := s.do(http.MethodGet, "/records?since=yesterday", "", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Nil(s.records.lastFilter.Since)
}

func (s *ServerTestSuite) TestRecordDelete() {
	rec := s.do(http.MethodDelete, "/records/"+uuid.NewString(), apiToken, "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("not found", s.decode(rec)["error"])

	rec = s.do(http.MethodPost, "/records", apiToken, recordBody("d1"))
	s.Require().Equal(http.StatusCreated, rec.Code)
	id := s.decode(rec)["item"].(map[string]any)["id"].(string)

	rec = s.do(http.MethodDelete, "/records/"+id, apiToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(id, s.decode(rec)["deleted"])

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/records/"+id, "", "").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/records/not-a-uuid", "", "").Code)
}

func (s *ServerTestSuite) TestWritesRequireAPIToken() {
	for _, token := range []string{"", "wrong", cronToken} {
		rec := s.do(http.MethodPost, "/records", token, recordBody("t1"))
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Equal("unauthorized", s.decode(rec)["error"])
	}
	s.Equal(0, s.records.count())

	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/reports", "", `{"title":"x"}`).Code)
	s.Empty(s.reports.items)
}

func (s *ServerTestSuite) TestAPITokenEmptyDisablesWrites() {
	s.cfg.Auth.APIToken = ""
	rec := s.do(http.MethodPost, "/records", "", recordBody("e1"))
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *ServerTestSuite) TestBulkPassesBodyThrough() {
	body := recordBody("b1") + "\n" + recordBody("b1") + "\n"
	rec := s.do(http.MethodPost, "/records/bulk", apiToken, body)
	s.Require().Equal(http.StatusOK, rec.Code)

	s.Equal(body, s.importer.body)
	out := s.decode(rec)
	s.Equal(float64(2), out["took_lines"])
	s.Equal(float64(1), out["inserted"])
	s.Equal([]any{map[string]any{"line": float64(2), "error": "insert failed"}}, out["errors"])
}

func (s *ServerTestSuite) TestCreateRateLimited() {
	s.Equal(http.StatusCreated, s.do(http.MethodPost, "/records", apiToken, recordBody("r1")).Code)
	s.Equal(http.StatusCreated, s.do(http.MethodPost, "/records", apiToken, recordBody("r2")).Code)

	rec := s.do(http.MethodPost, "/records", apiToken, recordBody("r3"))
	s.Require().Equal(http.StatusTooManyRequests, rec.Code)
	s.NotEmpty(rec.Header().Get("Retry-After"))

	out := s.decode(rec)
	s.Equal("rate_limited", out["error"])
	s.Greater(out["retry_after_seconds"].(float64), float64(0))
	s.Equal(2, s.records.count())

	// a different route has its own bucket
	s.Equal(http.StatusCreated, s.do(http.MethodPost, "/reports", apiToken, `{"title":"t"}`).Code)
}

func (s *ServerTestSuite) TestReportCreateDefaultsWeekStart() {
	s.cfg.RateLimit.CreateLimit = 10

	rec := s.do(http.MethodPost, "/reports", apiToken, `{"title":"  Week recap  ","body":"notes"}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	item := s.decode(rec)["item"].(map[string]any)
	s.Equal("1", item["id"])
	s.Equal("Week recap", item["title"])
	s.Equal("2026-10-12", item["week_start"])
	s.Equal("notes", item["body"])

	rec = s.do(http.MethodPost, "/reports", apiToken, `{"title":"x","week_start":"2026-02-30"}`)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/reports", apiToken, `{"title":"   "}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerTestSuite) TestReportGetBadID() {
	for _, id := range []string{"abc", "0", "-4"} {
		rec := s.do(http.MethodGet, "/reports/"+id, "", "")
		s.Equal(http.StatusBadRequest, rec.Code, id)
		s.Equal("bad id", s.decode(rec)["error"])
	}
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/reports/99", "", "").Code)
}

func (s *ServerTestSuite) TestReportListDefaults() {
	rec := s.do(http.MethodGet, "/reports", "", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(domain.ReportQuery{Limit: 20, Offset: 0, Sort: "week_start", Order: "desc"}, s.reports.lastQuery)

	out := s.decode(rec)
	s.Equal("week_start", out["sort"])
	s.Equal(float64(0), out["total"])

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/reports?sort=body", "", "").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/reports?order=up", "", "").Code)
}

func (s *ServerTestSuite) TestReportUpdate() {
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/reports", apiToken, `{"title":"t","body":"b"}`).Code)

	rec := s.do(http.MethodPut, "/reports/1", apiToken, `{}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("no fields to update", s.decode(rec)["error"])

	rec = s.do(http.MethodPut, "/reports/1", apiToken, `{"title":""}`)
	s.Equal("title cannot be empty", s.decode(rec)["error"])

	rec = s.do(http.MethodPut, "/reports/1", apiToken, `{"week_start":"12/10/2026"}`)
	s.Equal("week_start must be YYYY-MM-DD", s.decode(rec)["error"])

	rec = s.do(http.MethodPut, "/reports/1", apiToken, `{"body":null,"week_start":"2026-09-07"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.True(s.reports.lastPatch.ClearBody)

	item := s.decode(rec)["item"].(map[string]any)
	s.Nil(item["body"])
	s.Equal("2026-09-07", item["week_start"])
	s.Equal("t", item["title"])

	s.Equal(http.StatusNotFound, s.do(http.MethodPut, "/reports/7", apiToken, `{"title":"x"}`).Code)
}

func (s *ServerTestSuite) TestReportDelete() {
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/reports", apiToken, `{"title":"t"}`).Code)

	rec := s.do(http.MethodDelete, "/reports/1", apiToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(float64(1), s.decode(rec)["deleted"])

	s.Equal(http.StatusNotFound, s.do(http.MethodDelete, "/reports/1", apiToken, "").Code)
}

func (s *ServerTestSuite) TestIngestRequiresTokenOutsideLocal() {
	rec := s.do(http.MethodGet, "/ingest/youtube?video=abc", "", "")
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Empty(s.ingester.calls)

	rec = s.do(http.MethodGet, "/ingest/youtube?video=abc&token="+cronToken, "", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	s.cfg.Server.Environment = config.EnvironmentLocal
	rec = s.do(http.MethodGet, "/ingest/youtube?video=abc", "", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Len(s.ingester.calls, 2)
}

func (s *ServerTestSuite) TestIngestParameters() {
	rec := s.do(http.MethodGet, "/ingest/youtube?video=abc&pages=9&cooldown=99999&dry=1", cronToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)

	s.Require().Len(s.ingester.calls, 1)
	req := s.ingester.calls[0]
	s.Equal(domain.IngestRequest{
		Platform: domain.KindYouTube,
		Target:   "abc",
		Budget:   5,
		Cooldown: time.Hour,
		DryRun:   true,
	}, req)

	out := s.decode(rec)
	s.Equal(true, out["ok"])
	s.Equal("abc", out["target"])
	s.Equal(float64(2), out["stats"].(map[string]any)["inserted"])
}

func (s *ServerTestSuite) TestIngestExtractsIDFromURL() {
	rec := s.do(http.MethodGet, "/ingest/reddit?url=https://reddit.test/p42", cronToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)

	req := s.ingester.calls[0]
	s.Equal("p42", req.Target)
	s.Equal("https://reddit.test/p42", req.OriginURL)
	s.Equal(100, req.Budget)
	s.Equal(time.Minute, req.Cooldown)

	rec = s.do(http.MethodGet, "/ingest/youtube?url=https://youtube.test/v1", cronToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Empty(s.ingester.calls[1].OriginURL)

	rec = s.do(http.MethodGet, "/ingest/reddit?url=https://elsewhere.test/x", cronToken, "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("could not extract id from url", s.decode(rec)["error"])
}

func (s *ServerTestSuite) TestIngestUnknownPlatform() {
	rec := s.do(http.MethodGet, "/ingest/myspace?id=1", cronToken, "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerTestSuite) TestIngestCooldown() {
	s.ingester.err = &domain.CooldownError{Key: "pull:youtube:abc", RetryAfter: 41500 * time.Millisecond}

	rec := s.do(http.MethodGet, "/ingest/youtube?video=abc", cronToken, "")
	s.Require().Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("42", rec.Header().Get("Retry-After"))

	out := s.decode(rec)
	s.Equal("cooldown_active", out["error"])
	s.Equal(float64(42), out["retry_after_seconds"])
}

func (s *ServerTestSuite) TestIngestUpstreamError() {
	s.ingester.err = &domain.UpstreamError{Platform: "youtube", Status: http.StatusForbidden, Body: "quota"}

	rec := s.do(http.MethodGet, "/ingest/youtube?video=abc", cronToken, "")
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Contains(s.decode(rec)["error"], "HTTP 403")
}

func (s *ServerTestSuite) TestRunBatchRequiresCronToken() {
	s.cfg.Server.Environment = config.EnvironmentLocal
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/ingest/reddit/run", "", "").Code)
	s.Empty(s.ingester.batches)

	s.ingester.outcomes = []domain.BatchOutcome{{Target: "p1", OK: true, Stats: &domain.UpsertStats{Total: 1}}}
	rec := s.do(http.MethodGet, "/ingest/reddit/run?limit=50&fetch=20", cronToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)

	s.Equal(domain.BatchRequest{Platform: domain.KindReddit, MaxSources: 10, Budget: 20}, s.ingester.batches[0])
	out := s.decode(rec)
	s.Equal(float64(1), out["count"])
	s.Len(out["calls"], 1)
}

func (s *ServerTestSuite) TestDebugDBRequiresCronToken() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/debug/db", "", "").Code)

	rec := s.do(http.MethodGet, "/debug/db?token="+cronToken, "", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	out := s.decode(rec)
	s.Equal(true, out["ok"])
	s.Contains(out, "counts")
}

func (s *ServerTestSuite) TestPrettyOutput() {
	rec := s.do(http.MethodGet, "/healthz?pretty", "", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("{\n  \"ok\": true\n}\n", rec.Body.String())

	rec = s.do(http.MethodGet, "/healthz?pretty=0", "", "")
	s.Equal("{\"ok\":true}\n", rec.Body.String())
	s.Equal("application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}

func (s *ServerTestSuite) TestUnknownRoute() {
	rec := s.do(http.MethodGet, "/nowhere", "", "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(false, s.decode(rec)["ok"])
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
