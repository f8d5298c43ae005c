package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SweeperService exposes the reconciliation passes for manual triggering.
type SweeperService interface {
	AutoReturnPass(ctx context.Context) (int, error)
	ExpireReadyPass(ctx context.Context) (int, error)
	RepairStatusPass(ctx context.Context) (int, error)
}

// SweeperHandler lets operators run individual reconciliation passes
// outside the scheduled interval.
type SweeperHandler struct {
	sweeper SweeperService
	logger  *slog.Logger
}

func NewSweeperHandler(sweeper SweeperService, logger *slog.Logger) *SweeperHandler {
	return &SweeperHandler{sweeper: sweeper, logger: logger}
}

// AutoReturn handles POST /api/v1/admin/sweeper/auto-return
func (h *SweeperHandler) AutoReturn(c *gin.Context) {
	h.runPass(c, "auto-return", h.sweeper.AutoReturnPass)
}

// ExpireReady handles POST /api/v1/admin/sweeper/expire-ready
func (h *SweeperHandler) ExpireReady(c *gin.Context) {
	h.runPass(c, "expire-ready", h.sweeper.ExpireReadyPass)
}

// RepairStatus handles POST /api/v1/admin/sweeper/repair-status
func (h *SweeperHandler) RepairStatus(c *gin.Context) {
	h.runPass(c, "repair-status", h.sweeper.RepairStatusPass)
}

func (h *SweeperHandler) runPass(c *gin.Context, name string, pass func(context.Context) (int, error)) {
	affected, err := pass(c.Request.Context())
	if err != nil {
		h.logger.Error("Manual sweeper pass failed", "pass", name, "affected", affected, "error", err)
		respondError(c, http.StatusInternalServerError, "SWEEPER_PASS_FAILED", "Sweeper pass completed with errors")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"pass":     name,
		"affected": affected,
	})
}
