package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/markerservo/pkg/history"
	"github.com/teslashibe/markerservo/pkg/telemetry"
)

// handleIndex serves the single page dashboard
func (s *Server) handleIndex(c *fiber.Ctx) error {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		return fiber.ErrNotFound
	}
	c.Type("html")
	return c.Send(page)
}

// handleStatus returns the last loop snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

// handleTransitions returns commands emitted during this run, oldest first
func (s *Server) handleTransitions(c *fiber.Ctx) error {
	s.eventsMu.RLock()
	out := make([]telemetry.Event, len(s.events))
	copy(out, s.events)
	s.eventsMu.RUnlock()
	return c.JSON(out)
}

// handleHistory returns stored commands across runs, newest first
func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.history == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "command history is disabled",
		})
	}

	limit := c.QueryInt("limit", history.DefaultLimit)
	recs, err := s.history.Recent(c.UserContext(), limit)
	if err != nil {
		s.logger.Warn("history query failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if recs == nil {
		recs = []history.CommandRecord{}
	}
	return c.JSON(recs)
}
