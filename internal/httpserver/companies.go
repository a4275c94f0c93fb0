package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"purify/internal/etl"
	"purify/internal/etl/sources"
)

const maxBodyBytes = 32 << 20

// ── Read route ─────────────────────────────────────────────

// handleReadCompanies serves the read side pivoted on the configured
// column (or ?pivot=). Nulls become "" before reshaping.
func (s *Server) handleReadCompanies(c *gin.Context) {
	pivot := c.DefaultQuery("pivot", s.cfg.PivotColumn)
	if pivot == "" {
		c.JSON(http.StatusBadRequest, errorBody(fmt.Errorf("no pivot column configured")))
		return
	}

	ds, err := s.deps.Reader.ReadDataset(c.Request.Context(), s.cfg.ReadConnection, s.cfg.ReadQuery)
	if err != nil {
		log.Printf("read companies: %v", err)
		c.JSON(http.StatusBadGateway, errorBody(err))
		return
	}

	reshaped, err := etl.ProcessData(etl.FillNulls(ds), pivot)
	if err != nil {
		var schemaErr *etl.SchemaError
		if errors.As(err, &schemaErr) {
			c.JSON(http.StatusBadRequest, errorBody(err))
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	c.PureJSON(http.StatusOK, reshaped)
}

// ── Write route ────────────────────────────────────────────

// handleWriteCompanies cleans the names of a posted batch and inserts it.
// ?mode=replace clears the collection first.
func (s *Server) handleWriteCompanies(c *gin.Context) {
	records, ok := s.bindNamedRecords(c)
	if !ok {
		return
	}
	cleaned := etl.RewriteKeys(records, s.deps.Cleaner)

	mode := etl.SyncMode(c.DefaultQuery("mode", string(etl.SyncAppend)))
	if mode != etl.SyncAppend && mode != etl.SyncReplace {
		c.JSON(http.StatusBadRequest, errorBody(fmt.Errorf("unknown mode %q", mode)))
		return
	}

	dest := &etl.DocumentDestination{Store: s.deps.Writer}
	target := etl.DestinationConfig{Type: "mongodb", ConnectionID: s.cfg.WriteConnection, Collection: s.cfg.WriteCollection}
	n, err := dest.Write(c.Request.Context(), target, cleaned, mode)
	if err != nil {
		log.Printf("write companies: %v", err)
		c.JSON(http.StatusBadGateway, errorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "inserted": n})
}

// ── Dry runs ───────────────────────────────────────────────

func (s *Server) handleCleanNames(c *gin.Context) {
	records, ok := s.bindNamedRecords(c)
	if !ok {
		return
	}
	c.PureJSON(http.StatusOK, etl.RewriteKeys(records, s.deps.Cleaner))
}

type reshapeRequest struct {
	PivotColumn string          `json:"pivotColumn"`
	Rows        json.RawMessage `json:"rows"`
}

func (s *Server) handleReshape(c *gin.Context) {
	var req reshapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(fmt.Errorf("invalid JSON body: %w", err)))
		return
	}
	if req.PivotColumn == "" {
		c.JSON(http.StatusBadRequest, errorBody(fmt.Errorf("pivotColumn is required")))
		return
	}
	ds := etl.Dataset{Columns: []string{}, Rows: []etl.Record{}}
	if len(req.Rows) > 0 {
		schema, rows, err := sources.DecodeRows(req.Rows, "")
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(err))
			return
		}
		ds = etl.NewDataset(schema, rows)
	}

	reshaped, err := etl.ProcessData(etl.FillNulls(ds), req.PivotColumn)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}
	c.PureJSON(http.StatusOK, reshaped)
}

// bindNamedRecords decodes a JSON array of single-key objects, writing a
// 400 response and returning false when the body is not one.
func (s *Server) bindNamedRecords(c *gin.Context) ([]etl.NamedRecord, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(fmt.Errorf("read body: %w", err)))
		return nil, false
	}
	records, err := etl.ParseNamedRecords(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return nil, false
	}
	return records, true
}
