package routes

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"standards-archive/internal/config"
	"standards-archive/internal/logger"
	"standards-archive/models"
	"standards-archive/services"
	"standards-archive/utils"
)

// HandleUpload accepts a scanned standard PDF with its metadata, registers
// (or re-registers) the document record and dispatches its conversion.
// The response returns as soon as the job is queued; conversion progress is
// observable through the document's status.
func HandleUpload(cfg *config.Config, repo *services.DocumentRepository, supervisor *services.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithBadRequest(c, "File size exceeds maximum limit", nil)
			return
		}

		meta, ok := parseMetadataForm(c)
		if !ok {
			return
		}

		file, header, err := c.Request.FormFile("pdf")
		if err != nil {
			utils.RespondWithBadRequest(c, "No PDF file provided", nil)
			return
		}
		defer file.Close()

		if header.Size > cfg.MaxFileSize {
			utils.RespondWithBadRequest(c, "File size exceeds maximum limit", nil)
			return
		}
		if !validatePDFHeader(c, file, header.Filename) {
			return
		}

		id := models.DocumentID(meta.Organization, meta.StandardNumber)
		if id == "" {
			utils.RespondWithBadRequest(c, "Organization and standard number do not form a usable identity", nil)
			return
		}

		// Re-uploading an existing document replaces its source and metadata
		// and requeues it, unless a conversion is already in flight.
		existing, err := repo.Get(c.Request.Context(), id)
		switch {
		case err == nil:
			if existing.Status == models.StatusProcessing {
				utils.RespondWithConflict(c, "Document is already being processed")
				return
			}
			if err := repo.UpdateMetadata(c.Request.Context(), id, meta); err != nil {
				utils.RespondWithInternalError(c, "Failed to update document record", nil)
				return
			}
			if err := repo.Retry(c.Request.Context(), id); err != nil {
				if errors.Is(err, services.ErrAlreadyProcessing) {
					utils.RespondWithConflict(c, "Document is already being processed")
					return
				}
				utils.RespondWithInternalError(c, "Failed to requeue document", nil)
				return
			}
		case errors.Is(err, services.ErrNotFound):
			doc := models.Document{
				ID:             id,
				Title:          meta.Title,
				StandardNumber: meta.StandardNumber,
				Organization:   meta.Organization,
				Year:           meta.Year,
				Categories:     meta.Categories,
				Status:         models.StatusPending,
			}
			if err := repo.Upsert(c.Request.Context(), &doc); err != nil {
				utils.RespondWithInternalError(c, "Failed to create document record", nil)
				return
			}
		default:
			utils.RespondWithInternalError(c, "Failed to look up document record", nil)
			return
		}

		if err := saveSource(file, supervisor.SourcePath(id)); err != nil {
			logger.Error("Failed to save uploaded source", "document", id, "error", err)
			utils.RespondWithInternalError(c, "Failed to save uploaded file", nil)
			return
		}

		if err := supervisor.Dispatch(c.Request.Context(), id, meta, c.Query("fallback") == "true"); err != nil {
			respondDispatchError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message": "Document accepted for processing",
			"id":      id,
			"status":  models.StatusProcessing,
		})
	}
}

// HandleProcess dispatches a conversion for an already uploaded document,
// typically right after a retry. The stored source file is reused; nothing
// needs to be re-uploaded.
func HandleProcess(repo *services.DocumentRepository, supervisor *services.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		doc, err := repo.Get(c.Request.Context(), id)
		if err != nil {
			respondLookupError(c, err)
			return
		}

		if _, err := os.Stat(supervisor.SourcePath(id)); err != nil {
			utils.RespondWithError(c, http.StatusConflict, "no_source",
				"No stored source file for this document; upload it again", nil)
			return
		}

		if err := supervisor.Dispatch(c.Request.Context(), id, doc.Meta(), c.Query("fallback") == "true"); err != nil {
			respondDispatchError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message": "Document accepted for processing",
			"id":      id,
			"status":  models.StatusProcessing,
		})
	}
}

// HandleRetry requeues an errored or completed document by flipping it back
// to pending. It does not dispatch by itself; follow with a process call.
func HandleRetry(repo *services.DocumentRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		if err := repo.Retry(c.Request.Context(), id); err != nil {
			switch {
			case errors.Is(err, services.ErrNotFound):
				utils.RespondWithNotFound(c, "Document not found")
			case errors.Is(err, services.ErrAlreadyProcessing):
				utils.RespondWithConflict(c, "Document is already being processed")
			default:
				utils.RespondWithInternalError(c, "Failed to retry document", nil)
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":     id,
			"status": models.StatusPending,
		})
	}
}

// HandleGetDocument returns one document record.
func HandleGetDocument(repo *services.DocumentRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := repo.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

// HandleListDocuments lists document records, optionally filtered by
// status or by exact category membership.
func HandleListDocuments(repo *services.DocumentRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		if status != "" && !models.ValidStatus(status) {
			utils.RespondWithBadRequest(c, "Unknown status filter", gin.H{"status": status})
			return
		}

		var (
			docs []models.Document
			err  error
		)
		if category := c.Query("category"); category != "" {
			docs, err = repo.FilterByCategory(c.Request.Context(), category)
			if err == nil && status != "" {
				filtered := docs[:0]
				for _, d := range docs {
					if d.Status == status {
						filtered = append(filtered, d)
					}
				}
				docs = filtered
			}
		} else {
			docs, err = repo.List(c.Request.Context(), status)
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}

		if docs == nil {
			docs = []models.Document{}
		}
		c.JSON(http.StatusOK, gin.H{
			"documents": docs,
			"count":     len(docs),
		})
	}
}

// HandleUpdateMetadata changes the descriptive fields of a record. The
// identity is fixed at creation, so renaming the organization or number
// does not move the document.
func HandleUpdateMetadata(repo *services.DocumentRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var meta models.DocumentMeta
		if err := c.ShouldBindJSON(&meta); err != nil {
			utils.RespondWithBadRequest(c, "Invalid metadata payload", nil)
			return
		}
		if msg := validateMeta(meta); msg != "" {
			utils.RespondWithBadRequest(c, msg, nil)
			return
		}

		if err := repo.UpdateMetadata(c.Request.Context(), id, meta); err != nil {
			respondLookupError(c, err)
			return
		}

		doc, err := repo.Get(c.Request.Context(), id)
		if err != nil {
			respondLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

// HandleDeleteDocument removes a record, its index entry, and its files on
// disk. Deletion works from any status.
func HandleDeleteDocument(cfg *config.Config, repo *services.DocumentRepository, supervisor *services.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		if err := repo.Delete(c.Request.Context(), id); err != nil {
			respondLookupError(c, err)
			return
		}

		// Files go after the record: a leftover file is reclaimable, a
		// record pointing at deleted content is not.
		if err := os.Remove(supervisor.SourcePath(id)); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove source file", "document", id, "error", err)
		}
		if err := os.RemoveAll(filepath.Join(cfg.ArtifactDir(), id)); err != nil {
			logger.Warn("Failed to remove artifacts", "document", id, "error", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Document deleted",
			"id":      id,
		})
	}
}

// HandleGetContent serves the converted artifact of a completed document.
func HandleGetContent(cfg *config.Config, repo *services.DocumentRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := repo.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondLookupError(c, err)
			return
		}

		if doc.Status != models.StatusCompleted || doc.ContentPath == "" {
			utils.RespondWithError(c, http.StatusConflict, "not_converted",
				"Document has no converted content yet", gin.H{"status": doc.Status})
			return
		}

		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.File(filepath.Join(cfg.ArtifactDir(), doc.ContentPath))
	}
}

// HandleListCategories returns the distinct category labels in use.
func HandleListCategories(repo *services.DocumentRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		categories, err := repo.ListCategories(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list categories", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"categories": categories})
	}
}

func respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrNotFound) {
		utils.RespondWithNotFound(c, "Document not found")
		return
	}
	utils.RespondWithInternalError(c, "Failed to load document", nil)
}

func respondDispatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.RespondWithNotFound(c, "Document not found")
	case errors.Is(err, services.ErrAlreadyProcessing):
		utils.RespondWithConflict(c, "Document is already being processed")
	case errors.Is(err, services.ErrAlreadyCompleted):
		utils.RespondWithConflict(c, "Document is already completed; retry it first to reprocess")
	default:
		utils.RespondWithInternalError(c, "Failed to dispatch conversion", nil)
	}
}

// parseMetadataForm reads and validates the metadata form fields of an
// upload. Categories come as one comma-separated field.
func parseMetadataForm(c *gin.Context) (models.DocumentMeta, bool) {
	meta := models.DocumentMeta{
		Title:          strings.TrimSpace(c.PostForm("title")),
		StandardNumber: strings.TrimSpace(c.PostForm("standard_number")),
		Organization:   strings.TrimSpace(c.PostForm("organization")),
	}

	if yearStr := strings.TrimSpace(c.PostForm("year")); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			utils.RespondWithBadRequest(c, "Year must be a number", gin.H{"year": yearStr})
			return meta, false
		}
		meta.Year = year
	}

	if raw := c.PostForm("categories"); raw != "" {
		for _, cat := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(cat); trimmed != "" {
				meta.Categories = append(meta.Categories, trimmed)
			}
		}
	}

	if msg := validateMeta(meta); msg != "" {
		utils.RespondWithBadRequest(c, msg, nil)
		return meta, false
	}
	return meta, true
}

func validateMeta(meta models.DocumentMeta) string {
	switch {
	case meta.Title == "":
		return "Title is required"
	case meta.StandardNumber == "":
		return "Standard number is required"
	case meta.Organization == "":
		return "Organization is required"
	}
	return ""
}

// validatePDFHeader checks the magic bytes without loading the whole file
// and rewinds the reader for the save that follows.
func validatePDFHeader(c *gin.Context, file io.ReadSeeker, filename string) bool {
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		utils.RespondWithBadRequest(c, "Only PDF files are allowed", nil)
		return false
	}

	headerBuf := make([]byte, 5)
	if _, err := io.ReadFull(file, headerBuf); err != nil {
		utils.RespondWithBadRequest(c, "Cannot read file header", nil)
		return false
	}
	if string(headerBuf[:4]) != "%PDF" {
		utils.RespondWithBadRequest(c, "File does not appear to be a valid PDF", nil)
		return false
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		utils.RespondWithInternalError(c, "Failed to reset file for saving", nil)
		return false
	}
	return true
}

// saveSource streams the upload into the canonical source location,
// replacing any previous version.
func saveSource(file io.Reader, path string) error {
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return err
	}
	return dst.Sync()
}
