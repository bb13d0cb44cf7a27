package devnode

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/compose-network/ledger-harness/server/api"
	"github.com/compose-network/ledger-harness/x/ledger"
)

type nodeView struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type statusView struct {
	Height  uint64     `json:"height"`
	Pending int        `json:"pending"`
	Peers   int        `json:"peers"`
	Nodes   []nodeView `json:"nodes"`
}

func registerRoutes(s *api.Server, n *Network, gatherer prometheus.Gatherer) {
	r := s.Router
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		view := statusView{
			Height:  n.ledger.Height(),
			Pending: n.ledger.PendingCount(),
			Peers:   len(n.ledger.Peers()),
		}
		for _, ep := range n.endpoints {
			view.Nodes = append(view.Nodes, nodeView{Name: ep.Name, Address: ep.Address()})
		}
		api.WriteJSON(w, http.StatusOK, view)
	}).Methods(http.MethodGet)

	r.HandleFunc("/peers", func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, n.ledger.Peers())
	}).Methods(http.MethodGet)

	r.HandleFunc("/blocks", func(w http.ResponseWriter, req *http.Request) {
		from, err := queryUint(req, "from", 1)
		if err != nil {
			api.WriteError(w, req, http.StatusBadRequest, "bad_request", "invalid from", err.Error())
			return
		}
		limit, err := queryUint(req, "limit", defaultPageSize)
		if err != nil {
			api.WriteError(w, req, http.StatusBadRequest, "bad_request", "invalid limit", err.Error())
			return
		}
		blocks, height := n.ledger.Blocks(from, uint32(min(limit, maxPageSize)))
		api.WriteJSON(w, http.StatusOK, ledger.ListBlocksResponse{Blocks: blocks, Height: height})
	}).Methods(http.MethodGet)

	r.HandleFunc("/blocks/{height:[0-9]+}", func(w http.ResponseWriter, req *http.Request) {
		h, _ := strconv.ParseUint(mux.Vars(req)["height"], 10, 64)
		blocks, _ := n.ledger.Blocks(h, 1)
		if h == 0 || len(blocks) == 0 {
			api.WriteError(w, req, http.StatusNotFound, "not_found", "block not found", nil)
			return
		}
		api.WriteJSON(w, http.StatusOK, blocks[0])
	}).Methods(http.MethodGet)

	r.HandleFunc("/tx/{hash}", func(w http.ResponseWriter, req *http.Request) {
		hash, err := ledger.ParseHash(mux.Vars(req)["hash"])
		if err != nil {
			api.WriteError(w, req, http.StatusBadRequest, "bad_request", "invalid transaction hash", err.Error())
			return
		}
		api.WriteJSON(w, http.StatusOK, n.ledger.Status(hash))
	}).Methods(http.MethodGet)

	r.HandleFunc("/accounts/{id}/assets", func(w http.ResponseWriter, req *http.Request) {
		id := mux.Vars(req)["id"]
		assets, err := n.ledger.AccountAssets(id)
		if err != nil {
			api.WriteError(w, req, http.StatusNotFound, "not_found", err.Error(), nil)
			return
		}
		api.WriteJSON(w, http.StatusOK, ledger.AccountAssetsResponse{AccountID: id, Assets: assets})
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

func queryUint(r *http.Request, key string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
