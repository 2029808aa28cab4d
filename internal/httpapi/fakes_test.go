package httpapi

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pullview/internal/domain"
	"pullview/internal/service"
)

type fakeRecords struct {
	mu         sync.Mutex
	items      map[uuid.UUID]domain.Record
	lastFilter domain.RecordFilter
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{items: map[uuid.UUID]domain.Record{}}
}

func (f *fakeRecords) Create(_ context.Context, record *domain.Record) (*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.SourceID == record.SourceID && existing.ExternalID == record.ExternalID {
			return nil, domain.Invalid("record already exists for this source and external_id")
		}
	}
	created := *record
	created.ID = uuid.New()
	created.HarvestedAt = time.Now().UTC()
	f.items[created.ID] = created
	return &created, nil
}

func (f *fakeRecords) Get(_ context.Context, id uuid.UUID) (*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

func (f *fakeRecords) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeRecords) List(_ context.Context, filter domain.RecordFilter) ([]domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	out := make([]domain.Record, 0, len(f.items))
	for _, r := range f.items {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRecords) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

type fakeReports struct {
	mu        sync.Mutex
	items     map[int64]domain.Report
	nextID    int64
	lastQuery domain.ReportQuery
	lastPatch domain.ReportPatch
}

func newFakeReports() *fakeReports {
	return &fakeReports{items: map[int64]domain.Report{}}
}

func (f *fakeReports) List(_ context.Context, q domain.ReportQuery) ([]domain.Report, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	out := make([]domain.Report, 0, len(f.items))
	for _, r := range f.items {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (f *fakeReports) Get(_ context.Context, id int64) (*domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (f *fakeReports) Create(_ context.Context, weekStart time.Time, title string, body *string) (*domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r := domain.Report{ID: f.nextID, WeekStart: weekStart, Title: title, Body: body, CreatedAt: time.Now().UTC()}
	f.items[r.ID] = r
	return &r, nil
}

func (f *fakeReports) Update(_ context.Context, id int64, patch domain.ReportPatch) (*domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPatch = patch
	r, ok := f.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if patch.Title != nil {
		r.Title = *patch.Title
	}
	if patch.Body != nil {
		r.Body = patch.Body
	}
	if patch.ClearBody {
		r.Body = nil
	}
	if patch.WeekStart != nil {
		r.WeekStart = *patch.WeekStart
	}
	f.items[id] = r
	return &r, nil
}

func (f *fakeReports) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

type fakeSources struct {
	items []domain.Source
}

func (f *fakeSources) List(context.Context) ([]domain.Source, error) {
	return f.items, nil
}

type fakeStats struct {
	snap *domain.StoreSnapshot
}

func (f *fakeStats) Snapshot(context.Context) (*domain.StoreSnapshot, error) {
	return f.snap, nil
}

// fakePlatform extracts ids from urls of the form https://<kind>.test/<id>.
type fakePlatform struct {
	kind string
}

func (p *fakePlatform) Kind() string { return p.kind }
func (p *fakePlatform) OriginURL(target string) string {
	return "https://" + p.kind + ".test/" + target
}
func (p *fakePlatform) DisplayName(target string) string { return p.kind + ": " + target }
func (p *fakePlatform) LegacyURLPattern() string         { return "%" + p.kind + ".test/%" }

func (p *fakePlatform) ExtractID(rawURL string) (string, bool) {
	id, ok := strings.CutPrefix(rawURL, "https://"+p.kind+".test/")
	return id, ok && id != ""
}

func (p *fakePlatform) Fetch(context.Context, string, int) ([]domain.RawItem, error) {
	return nil, nil
}

type fakeIngester struct {
	mu        sync.Mutex
	platforms map[string]service.Platform
	calls     []domain.IngestRequest
	batches   []domain.BatchRequest
	err       error
	outcomes  []domain.BatchOutcome
}

func newFakeIngester(kinds ...string) *fakeIngester {
	f := &fakeIngester{platforms: map[string]service.Platform{}}
	for _, k := range kinds {
		f.platforms[k] = &fakePlatform{kind: k}
	}
	return f
}

func (f *fakeIngester) Platform(kind string) (service.Platform, error) {
	p, ok := f.platforms[kind]
	if !ok {
		return nil, domain.ErrUnknownKind
	}
	return p, nil
}

func (f *fakeIngester) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.IngestResult{
		Platform: req.Platform,
		Target:   req.Target,
		Stats:    domain.UpsertStats{Total: 2, Inserted: 2},
		DryRun:   req.DryRun,
	}, nil
}

func (f *fakeIngester) RunBatch(_ context.Context, req domain.BatchRequest) ([]domain.BatchOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, req)
	return f.outcomes, nil
}

type fakeImporter struct {
	body   string
	result *service.ImportResult
}

func (f *fakeImporter) Import(_ context.Context, r io.Reader) (*service.ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.body = string(data)
	return f.result, nil
}
