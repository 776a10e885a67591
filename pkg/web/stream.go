package web

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/flowrun/pkg/events"
	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"
)

const (
	snapshotEvent     = "execution.snapshot"
	heartbeatInterval = 15 * time.Second
)

// StreamExecutionEvents streams the events of one execution as server-sent
// events. The first event is a snapshot of the execution; the stream ends
// after execution.completed or when the client goes away.
func (h *APIHandlers) StreamExecutionEvents(c fiber.Ctx) error {
	executionID := c.Params("id")

	// Subscribe before reading the snapshot so nothing published in between is lost.
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := h.events.Subscribe(ctx, executionID)
	if err != nil {
		cancel()

		return internalError(c, err)
	}

	execution, err := h.executionService.FetchByID(c.Context(), executionID)
	if err != nil {
		cancel()

		return handleServiceError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Response().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()

		if err := writeSSE(w, snapshotEvent, execution); err != nil {
			return
		}

		if execution.Status.IsTerminal() {
			return
		}

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}

				if err := writeSSE(w, string(event.GetType()), event); err != nil {
					h.logger.Debug("event stream closed", "execution_id", executionID, "error", err)

					return
				}

				if event.GetType() == events.ExecutionCompletedEvent {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}

				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}

func writeSSE(w *bufio.Writer, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}

	return w.Flush()
}
