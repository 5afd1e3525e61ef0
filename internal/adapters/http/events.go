package http

import (
	"net/http"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/jobrunner/mapcore/internal/application"
)

const heartbeatInterval = 15 * time.Second

// handleEvents streams session changes as datastar signal patches. Each
// patch carries the interaction state and the newest surface journal
// position so that clients know when to replay.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	bus := s.session.Bus()
	events := bus.Subscribe()
	defer bus.Unsubscribe(events)

	sse := datastar.NewSSE(w, r)
	if err := sse.MarshalAndPatchSignals(s.signals(nil)); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := sse.MarshalAndPatchSignals(s.signals(&e)); err != nil {
				s.logger.Debug("event stream closed", "error", err)
				return
			}
		case t := <-heartbeat.C:
			if err := sse.MarshalAndPatchSignals(map[string]any{"heartbeat": t.UTC().Format(time.RFC3339)}); err != nil {
				return
			}
		}
	}
}

func (s *Server) signals(e *application.Event) map[string]any {
	out := map[string]any{
		"state":    s.session.State(),
		"layers":   len(s.session.Layers()),
		"regions":  len(s.session.Regions()),
		"features": len(s.session.Features()),
	}
	if s.surface != nil {
		out["surfaceSeq"] = s.surface.Journal().Last()
	}
	if e != nil {
		out["event"] = map[string]any{
			"resource": e.Resource,
			"action":   e.Action,
			"id":       e.ID,
		}
		if e.Resource == application.ResourceNotification {
			out["notification"] = e.Message
		}
	}
	return out
}
