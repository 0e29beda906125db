package editor

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-critters/internal/humastar"
)

// EventsInput names the session either directly or through the signals
// Datastar appends to GET requests.
type EventsInput struct {
	SessionID string `query:"sessionid" doc:"Session ID"`
	Datastar  string `query:"datastar" doc:"Datastar signals (JSON)"`
}

func (in *EventsInput) sessionID() string {
	if in.SessionID != "" {
		return in.SessionID
	}
	signals, err := humastar.ParseSignals([]byte(in.Datastar))
	if err != nil {
		return ""
	}
	return signals.String("sessionid")
}

// Events streams the session state: once on connect and again whenever
// the coordinator moves, the view refreshes or the slider plays.
func (h *Handler) Events(_ context.Context, input *EventsInput) (*huma.StreamResponse, error) {
	s, ok := h.sessions.Get(input.sessionID())
	if !ok {
		return nil, huma.Error404NotFound("session not found")
	}
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			s.attach()
			defer s.detach()
			h.push(sse, s, nil, true)

			done := humaCtx.Context().Done()
			for {
				select {
				case <-done:
					return
				case <-s.Changes():
					h.push(sse, s, nil, false)
				}
			}
		},
	}, nil
}
