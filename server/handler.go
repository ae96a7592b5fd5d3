package server

import (
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rawewhat/quera/crud"
	"github.com/rawewhat/quera/query"
	"github.com/rawewhat/quera/response"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewHandler creates the HTTP handler with all routes. ops serves the
// REST routes; each request names its collection, so ops needs no
// default target.
func NewHandler(hub *Hub, ops *crud.Adapter) http.Handler {
	mux := http.NewServeMux()
	api := &restAPI{ops: ops}

	mux.HandleFunc("POST /collections/{collection}/docs", api.create)
	mux.HandleFunc("GET /collections/{collection}/docs", api.list)
	mux.HandleFunc("GET /collections/{collection}/docs/{id}", api.get)
	mux.HandleFunc("PATCH /collections/{collection}/docs/{id}", api.update)
	mux.HandleFunc("DELETE /collections/{collection}/docs/{id}", api.remove)

	// WebSocket endpoint.
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			if hub.logger != nil {
				hub.logger.Warn("websocket upgrade error", "error", err.Error())
			}
			return
		}
		client := newClient(hub, conn)
		go client.WritePump()
		go client.ReadPump()
	})

	return mux
}

type restAPI struct {
	ops *crud.Adapter
}

func (a *restAPI) create(w http.ResponseWriter, r *http.Request) {
	data, err := decodeBody(r)
	if err != nil {
		writeEnvelope(w, response.Build(err.Error(), response.CodeBadRequest))
		return
	}
	writeEnvelope(w, a.ops.Create(r.Context(), data, crud.In(r.PathValue("collection"))))
}

// list serves the whole collection, or the documents matching ?q=.
// The leading "?" of the filter may be omitted.
func (a *restAPI) list(w http.ResponseWriter, r *http.Request) {
	selector := r.URL.Query().Get("q")
	if selector != "" && !query.IsFilter(selector) {
		selector = "?" + selector
	}
	writeEnvelope(w, a.ops.Read(r.Context(), selector, crud.In(r.PathValue("collection"))))
}

func (a *restAPI) get(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, a.ops.Read(r.Context(), r.PathValue("id"), crud.In(r.PathValue("collection"))))
}

func (a *restAPI) update(w http.ResponseWriter, r *http.Request) {
	data, err := decodeBody(r)
	if err != nil {
		writeEnvelope(w, response.Build(err.Error(), response.CodeBadRequest))
		return
	}
	writeEnvelope(w, a.ops.Update(r.Context(), r.PathValue("id"), data, crud.In(r.PathValue("collection"))))
}

func (a *restAPI) remove(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, a.ops.Delete(r.Context(), r.PathValue("id"), crud.In(r.PathValue("collection"))))
}

// decodeBody reads a JSON object. An empty body yields a nil map.
func decodeBody(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// writeEnvelope answers with the envelope as body and its code as HTTP
// status. Codes outside the HTTP range answer 500.
func writeEnvelope(w http.ResponseWriter, env response.Envelope) {
	status := env.Code
	if http.StatusText(status) == "" {
		status = http.StatusInternalServerError
	}
	body, err := json.Marshal(env)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(response.Build(err.Error(), response.CodeInternal))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
