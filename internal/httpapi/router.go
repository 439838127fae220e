package httpapi

import "net/http"

// NewMux wires all handlers. The caller wraps the result in middleware
// (Chain with RequestID, Recover, AccessLog).
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	rh := RunsHandler{Manager: d.Manager, CfgVal: d.CfgVal, BuildPolicy: d.BuildPolicy}
	mux.HandleFunc("/runs", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: rh.Start,
	}))
	mux.HandleFunc("/runs/", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:  rh.GetByPath,    // /runs/{id}
		http.MethodPost: rh.CancelByPath, // /runs/{id}/cancel
	}))

	lh := RecordsHandler{Ledger: d.Ledger}
	mux.HandleFunc("/records", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: lh.List,
	}))
	mux.HandleFunc("/stats", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: lh.Stats,
	}))

	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))

	sh := SecretsHandler{}
	mux.HandleFunc("/api/secrets/", methodMux(map[string]http.HandlerFunc{
		http.MethodPost:   sh.SetByPath,    // /api/secrets/{name}
		http.MethodDelete: sh.DeleteByPath, // /api/secrets/{name}
	}))

	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	hh := HealthHandler{Ledger: d.Ledger}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))

	return mux
}
