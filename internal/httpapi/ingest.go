package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pullview/internal/domain"
)

// ingestEndpoint holds the query surface of one platform's ingestion routes.
type ingestEndpoint struct {
	// budget bounds a single-source fetch: pages for youtube, items for reddit.
	budget intParam
	// batchBudget is the per-source budget of a batch run.
	batchBudget intParam
	// keepURL stores the caller's url as the source origin instead of the canonical one.
	keepURL bool
}

var (
	ingestEndpoints = map[string]ingestEndpoint{
		domain.KindYouTube: {
			budget:      intParam{name: "pages", def: 1, min: 1, max: 5},
			batchBudget: intParam{name: "pages", def: 1, min: 1, max: 5},
		},
		domain.KindReddit: {
			budget:      intParam{name: "limit", def: 100, min: 1, max: 100},
			batchBudget: intParam{name: "fetch", def: 50, min: 1, max: 100},
			keepURL:     true,
		},
	}
	defaultIngestEndpoint = ingestEndpoint{
		budget:      intParam{name: "limit", def: 50, min: 1, max: 100},
		batchBudget: intParam{name: "limit", def: 50, min: 1, max: 100},
	}

	batchSources = intParam{name: "limit", def: 3, min: 1, max: 10}
)

func endpointFor(kind string) ingestEndpoint {
	if e, ok := ingestEndpoints[kind]; ok {
		return e
	}
	return defaultIngestEndpoint
}

type ingestResponse struct {
	OK bool `json:"ok"`
	*domain.IngestResult
	TookMS int64 `json:"took_ms"`
}

func (s *Server) cooldownParam() intParam {
	return intParam{
		name: "cooldown",
		def:  int(s.cfg.Ingest.DefaultCooldown / time.Second),
		min:  0,
		max:  int(s.cfg.Ingest.MaxCooldown / time.Second),
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "platform")
	p, err := s.deps.Ingester.Platform(kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	endpoint := endpointFor(kind)

	req := domain.IngestRequest{
		Platform: kind,
		Target:   firstParam(r, "target", "video", "id", "post"),
		Budget:   endpoint.budget.read(r),
		Cooldown: time.Duration(s.cooldownParam().read(r)) * time.Second,
		DryRun:   flagParam(r, "dry"),
	}
	if rawURL := firstParam(r, "url"); rawURL != "" {
		if req.Target == "" {
			id, ok := p.ExtractID(rawURL)
			if !ok {
				s.writeError(w, r, domain.Invalid("could not extract id from url"))
				return
			}
			req.Target = id
		}
		if endpoint.keepURL {
			req.OriginURL = rawURL
		}
	}

	result, err := s.deps.Ingester.Ingest(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, ingestResponse{
		OK:           true,
		IngestResult: result,
		TookMS:       result.Duration.Milliseconds(),
	})
}

func (s *Server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "platform")
	if _, err := s.deps.Ingester.Platform(kind); err != nil {
		s.writeError(w, r, err)
		return
	}

	outcomes, err := s.deps.Ingester.RunBatch(r.Context(), domain.BatchRequest{
		Platform:   kind,
		MaxSources: batchSources.read(r),
		Budget:     endpointFor(kind).batchBudget.read(r),
		DryRun:     flagParam(r, "dry"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"ok":    true,
		"count": len(outcomes),
		"calls": outcomes,
	})
}

type debugDBResponse struct {
	OK bool `json:"ok"`
	*domain.StoreSnapshot
}

func (s *Server) handleDebugDB(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Stats.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, debugDBResponse{OK: true, StoreSnapshot: snap})
}
