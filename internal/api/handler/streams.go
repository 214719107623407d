package handler

import (
	"errors"
	"log"
	"net/http"

	"liveflow/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// ListStreams віддає каталог live-режиму, опційно з фільтром ?tag=
func (h *Handler) ListStreams(c *gin.Context) {
	streams, err := h.Catalog.List(c.Request.Context(), c.Query("tag"))
	if errors.Is(err, models.ErrUnknownIdentity) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.Printf("ERROR: list streams: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load streams"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"streams": streams})
}
