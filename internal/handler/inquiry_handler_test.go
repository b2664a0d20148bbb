package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/noah-isme/school-site-api/internal/models"
	"github.com/noah-isme/school-site-api/internal/service"
	appErrors "github.com/noah-isme/school-site-api/pkg/errors"
)

type fakeInquirySrv struct {
	id         primitive.ObjectID
	submitErr  error
	contacts   []models.ContactMessage
	lastStatus string
	lastKind   models.InquiryKind
	lastID     string
	mutateErr  error
}

func (f *fakeInquirySrv) SubmitContact(_ context.Context, req service.ContactRequest) (*models.ContactMessage, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &models.ContactMessage{ID: f.id, Name: req.Name}, nil
}

func (f *fakeInquirySrv) SubmitAdmission(context.Context, service.AdmissionRequest) (*models.AdmissionInquiry, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &models.AdmissionInquiry{ID: f.id}, nil
}

func (f *fakeInquirySrv) ListContacts(_ context.Context, status string) ([]models.ContactMessage, error) {
	f.lastStatus = status
	return f.contacts, nil
}

func (f *fakeInquirySrv) ListAdmissions(_ context.Context, status string) ([]models.AdmissionInquiry, error) {
	f.lastStatus = status
	return nil, nil
}

func (f *fakeInquirySrv) Delete(_ context.Context, kind models.InquiryKind, id string) error {
	f.lastKind, f.lastID = kind, id
	return f.mutateErr
}

func (f *fakeInquirySrv) UpdateStatus(_ context.Context, kind models.InquiryKind, id, status string) error {
	f.lastKind, f.lastID, f.lastStatus = kind, id, status
	return f.mutateErr
}

func TestInquiryHandlerSubmitContact(t *testing.T) {
	srv := &fakeInquirySrv{id: primitive.NewObjectID()}
	handler := NewInquiryHandler(srv)

	c, rec := newTestContext(http.MethodPost, "/contact", bytes.NewBufferString(`{"name":"Ravi","email":"ravi@example.com","subject":"Hi","message":"Hello"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	handler.SubmitContact(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, srv.id.Hex(), envelope.Data["id"])
	assert.Contains(t, envelope.Message, "received")
}

func TestInquiryHandlerSubmitAdmissionValidationError(t *testing.T) {
	handler := NewInquiryHandler(&fakeInquirySrv{
		submitErr: appErrors.WithDetails(appErrors.ErrValidation, "invalid admission form", []string{"phone: is required"}),
	})

	c, rec := newTestContext(http.MethodPost, "/admission", bytes.NewBufferString(`{"student_name":"Mira"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	handler.SubmitAdmission(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "invalid admission form", envelope.Message)
	assert.Equal(t, []interface{}{"phone: is required"}, envelope.Error["details"])
}

func TestInquiryHandlerListContactsPassesStatus(t *testing.T) {
	srv := &fakeInquirySrv{contacts: []models.ContactMessage{{Name: "Ravi"}}}
	handler := NewInquiryHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/contact?status=new", nil)
	handler.ListContacts(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new", srv.lastStatus)
	var body struct {
		Data []models.ContactMessage `json:"data"`
		Meta map[string]interface{}  `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, float64(1), body.Meta["count"])
}

func TestInquiryHandlerUpdateStatusBindsKind(t *testing.T) {
	srv := &fakeInquirySrv{}
	handler := NewInquiryHandler(srv)

	c, rec := newTestContext(http.MethodPatch, "/admission/abc/status", bytes.NewBufferString(`{"status":"replied"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	handler.UpdateStatus(models.InquiryAdmission)(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.InquiryAdmission, srv.lastKind)
	assert.Equal(t, "abc", srv.lastID)
	assert.Equal(t, "replied", srv.lastStatus)
}

func TestInquiryHandlerDeleteNotFound(t *testing.T) {
	srv := &fakeInquirySrv{mutateErr: appErrors.Clone(appErrors.ErrNotFound, "contact not found")}
	handler := NewInquiryHandler(srv)

	c, rec := newTestContext(http.MethodDelete, "/contact/abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	handler.Delete(models.InquiryContact)(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, models.InquiryContact, srv.lastKind)
}
