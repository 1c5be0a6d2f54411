package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	reconciledomain "github.com/fleetops/tollsync/internal/reconcile/domain"
	tollimportdomain "github.com/fleetops/tollsync/internal/tollimport/domain"
)

// importResponse bundles the import outcome with the reconciliation pass
// that runs right after it.
type importResponse struct {
	Import    tollimportdomain.ImportResult   `json:"import"`
	Reconcile reconciledomain.ReconcileResult `json:"reconcile"`
}

func (s *Server) ImportRows(c *gin.Context) {
	var req tollimportdomain.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	imported, err := s.importSvc.Import(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reconciled, err := s.reconcileSvc.Reconcile(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, importResponse{Import: imported, Reconcile: reconciled})
}

func (s *Server) ImportFile(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "missing_file", "multipart field 'file' is required"))
		return
	}
	defer file.Close()

	source := strings.TrimSpace(c.PostForm("source"))
	if source == "" {
		source = header.Filename
	}

	imported, err := s.importSvc.ImportFile(c.Request.Context(), file, tollimportdomain.FileImportRequest{
		DefaultCountry: c.PostForm("default_country"),
		Source:         source,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reconciled, err := s.reconcileSvc.Reconcile(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, importResponse{Import: imported, Reconcile: reconciled})
}

func (s *Server) Reconcile(c *gin.Context) {
	result, err := s.reconcileSvc.Reconcile(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) Apply(c *gin.Context) {
	var req reconciledomain.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	result, err := s.reconcileSvc.Apply(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if !result.OK {
		c.JSON(http.StatusConflict, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

type recordIDsRequest struct {
	RecordIDs []snowflake.ID `json:"record_ids"`
}

func (s *Server) Unapply(c *gin.Context) {
	var req recordIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	if err := s.reconcileSvc.Unapply(c.Request.Context(), req.RecordIDs); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) DeleteRecords(c *gin.Context) {
	var req recordIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	deleted, err := s.importSvc.DeleteRecords(c.Request.Context(), req.RecordIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
