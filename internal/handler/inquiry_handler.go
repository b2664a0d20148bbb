package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-site-api/internal/models"
	"github.com/noah-isme/school-site-api/internal/service"
	"github.com/noah-isme/school-site-api/pkg/response"
)

type inquiryService interface {
	SubmitContact(ctx context.Context, req service.ContactRequest) (*models.ContactMessage, error)
	SubmitAdmission(ctx context.Context, req service.AdmissionRequest) (*models.AdmissionInquiry, error)
	ListContacts(ctx context.Context, status string) ([]models.ContactMessage, error)
	ListAdmissions(ctx context.Context, status string) ([]models.AdmissionInquiry, error)
	Delete(ctx context.Context, kind models.InquiryKind, id string) error
	UpdateStatus(ctx context.Context, kind models.InquiryKind, id, status string) error
}

// InquiryHandler manages contact and admission submissions.
type InquiryHandler struct {
	inquiries inquiryService
}

// NewInquiryHandler constructs InquiryHandler.
func NewInquiryHandler(inquiries inquiryService) *InquiryHandler {
	return &InquiryHandler{inquiries: inquiries}
}

type inquiryStatusRequest struct {
	Status string `json:"status"`
}

// SubmitContact godoc
// @Summary Submit the contact form
// @Tags Inquiries
// @Accept json
// @Produce json
// @Param payload body service.ContactRequest true "Contact form"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /contact [post]
func (h *InquiryHandler) SubmitContact(c *gin.Context) {
	var req service.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	msg, err := h.inquiries.SubmitContact(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, "Thank you! Your message has been received.", gin.H{"id": msg.ID.Hex()})
}

// SubmitAdmission godoc
// @Summary Submit an admission inquiry
// @Tags Inquiries
// @Accept json
// @Produce json
// @Param payload body service.AdmissionRequest true "Admission form"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admission [post]
func (h *InquiryHandler) SubmitAdmission(c *gin.Context) {
	var req service.AdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	inquiry, err := h.inquiries.SubmitAdmission(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, "Admission inquiry submitted successfully.", gin.H{"id": inquiry.ID.Hex()})
}

// ListContacts godoc
// @Summary List contact messages
// @Tags Inquiries
// @Produce json
// @Param status query string false "new, read, replied or archived"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /contact [get]
func (h *InquiryHandler) ListContacts(c *gin.Context) {
	items, err := h.inquiries.ListContacts(c.Request.Context(), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"count": len(items)})
}

// ListAdmissions godoc
// @Summary List admission inquiries
// @Tags Inquiries
// @Produce json
// @Param status query string false "new, read, replied or archived"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admission [get]
func (h *InquiryHandler) ListAdmissions(c *gin.Context) {
	items, err := h.inquiries.ListAdmissions(c.Request.Context(), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"count": len(items)})
}

// Delete returns a handler removing one inquiry of kind.
// @Summary Delete an inquiry
// @Tags Inquiries
// @Param id path string true "Inquiry ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /contact/{id} [delete]
// @Router /admission/{id} [delete]
func (h *InquiryHandler) Delete(kind models.InquiryKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.inquiries.Delete(c.Request.Context(), kind, c.Param("id")); err != nil {
			response.Error(c, err)
			return
		}
		response.Message(c, http.StatusOK, "Inquiry deleted successfully", nil)
	}
}

// UpdateStatus returns a handler moving one inquiry of kind to a new status.
// @Summary Update inquiry status
// @Tags Inquiries
// @Accept json
// @Param id path string true "Inquiry ID"
// @Param payload body inquiryStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /contact/{id}/status [patch]
// @Router /admission/{id}/status [patch]
func (h *InquiryHandler) UpdateStatus(kind models.InquiryKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req inquiryStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, invalidPayload(err))
			return
		}
		if err := h.inquiries.UpdateStatus(c.Request.Context(), kind, c.Param("id"), req.Status); err != nil {
			response.Error(c, err)
			return
		}
		response.Message(c, http.StatusOK, "Inquiry status updated", gin.H{"status": req.Status})
	}
}
