package server

import (
	"net/http"

	"github.com/a-h/templ"
)

//go:generate templ generate -f index.templ

// feedScript prepends every change message from /ws to the events list.
const feedScript = `
const out = document.getElementById("events");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (msg) => {
  const m = JSON.parse(msg.data);
  if (m.type === "change") {
    out.textContent = m.store + " " + m.event.kind + " " + m.event.path + "\n" + out.textContent;
  }
};`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	stores := s.storeInfos()

	var languages []string
	if s.translator != nil {
		languages = s.translator.Languages()
	}
	templ.Handler(indexPage(stores, languages)).ServeHTTP(w, r)
}
