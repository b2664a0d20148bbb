package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/noah-isme/school-site-api/internal/models"
	appErrors "github.com/noah-isme/school-site-api/pkg/errors"
)

type contactRepository interface {
	Insert(ctx context.Context, msg *models.ContactMessage) error
	List(ctx context.Context, status models.InquiryStatus) ([]models.ContactMessage, error)
	DeleteByID(ctx context.Context, id primitive.ObjectID) error
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.InquiryStatus) error
}

type admissionRepository interface {
	Insert(ctx context.Context, inquiry *models.AdmissionInquiry) error
	List(ctx context.Context, status models.InquiryStatus) ([]models.AdmissionInquiry, error)
	DeleteByID(ctx context.Context, id primitive.ObjectID) error
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.InquiryStatus) error
}

// ContactRequest is the public contact form payload.
type ContactRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=5000"`
}

// AdmissionRequest is the public admission form payload.
type AdmissionRequest struct {
	StudentName    string `json:"student_name" validate:"required,max=120"`
	ParentName     string `json:"parent_name" validate:"required,max=120"`
	Email          string `json:"email" validate:"required,email"`
	Phone          string `json:"phone" validate:"required,max=32"`
	GradeApplying  string `json:"grade_applying" validate:"required,max=32"`
	DateOfBirth    string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	PreviousSchool string `json:"previous_school" validate:"omitempty,max=200"`
	Message        string `json:"message" validate:"omitempty,max=5000"`
}

// InquiryService handles contact and admission submissions and their admin follow-up.
type InquiryService struct {
	contacts   contactRepository
	admissions admissionRepository
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewInquiryService constructs the inquiry service.
func NewInquiryService(contacts contactRepository, admissions admissionRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *InquiryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	validate.RegisterTagNameFunc(jsonFieldName)
	return &InquiryService{contacts: contacts, admissions: admissions, metrics: metrics, validator: validate, logger: logger}
}

// SubmitContact stores a contact form message.
func (s *InquiryService) SubmitContact(ctx context.Context, req ContactRequest) (*models.ContactMessage, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Subject = strings.TrimSpace(req.Subject)
	req.Message = strings.TrimSpace(req.Message)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid contact form", validationDetails(err))
	}
	msg := &models.ContactMessage{
		Name:    req.Name,
		Email:   strings.ToLower(req.Email),
		Phone:   strings.TrimSpace(req.Phone),
		Subject: req.Subject,
		Message: req.Message,
	}
	if err := s.contacts.Insert(ctx, msg); err != nil {
		return nil, appErrors.Storage(err, "failed to save contact message")
	}
	s.metrics.RecordInquiry(models.InquiryContact)
	s.logger.Info("contact message received", zap.String("id", msg.ID.Hex()))
	return msg, nil
}

// SubmitAdmission stores an admission inquiry.
func (s *InquiryService) SubmitAdmission(ctx context.Context, req AdmissionRequest) (*models.AdmissionInquiry, error) {
	req.StudentName = strings.TrimSpace(req.StudentName)
	req.ParentName = strings.TrimSpace(req.ParentName)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.GradeApplying = strings.TrimSpace(req.GradeApplying)
	req.DateOfBirth = strings.TrimSpace(req.DateOfBirth)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid admission form", validationDetails(err))
	}
	inquiry := &models.AdmissionInquiry{
		StudentName:    req.StudentName,
		ParentName:     req.ParentName,
		Email:          strings.ToLower(req.Email),
		Phone:          req.Phone,
		GradeApplying:  req.GradeApplying,
		DateOfBirth:    req.DateOfBirth,
		PreviousSchool: strings.TrimSpace(req.PreviousSchool),
		Message:        strings.TrimSpace(req.Message),
	}
	if err := s.admissions.Insert(ctx, inquiry); err != nil {
		return nil, appErrors.Storage(err, "failed to save admission inquiry")
	}
	s.metrics.RecordInquiry(models.InquiryAdmission)
	s.logger.Info("admission inquiry received", zap.String("id", inquiry.ID.Hex()), zap.String("grade", inquiry.GradeApplying))
	return inquiry, nil
}

// ListContacts returns contact messages newest first. An empty status lists all.
func (s *InquiryService) ListContacts(ctx context.Context, status string) ([]models.ContactMessage, error) {
	filter, err := parseStatusFilter(status)
	if err != nil {
		return nil, err
	}
	messages, err := s.contacts.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to list contact messages")
	}
	return messages, nil
}

// ListAdmissions returns admission inquiries newest first. An empty status lists all.
func (s *InquiryService) ListAdmissions(ctx context.Context, status string) ([]models.AdmissionInquiry, error) {
	filter, err := parseStatusFilter(status)
	if err != nil {
		return nil, err
	}
	inquiries, err := s.admissions.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to list admission inquiries")
	}
	return inquiries, nil
}

// Delete removes an inquiry of the given kind.
func (s *InquiryService) Delete(ctx context.Context, kind models.InquiryKind, id string) error {
	objectID, err := parseObjectID(id)
	if err != nil {
		return err
	}
	switch kind {
	case models.InquiryContact:
		err = s.contacts.DeleteByID(ctx, objectID)
	case models.InquiryAdmission:
		err = s.admissions.DeleteByID(ctx, objectID)
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown inquiry kind")
	}
	return mapInquiryError(err, kind, "failed to delete inquiry")
}

// UpdateStatus moves an inquiry through the admin follow-up states.
func (s *InquiryService) UpdateStatus(ctx context.Context, kind models.InquiryKind, id, status string) error {
	objectID, err := parseObjectID(id)
	if err != nil {
		return err
	}
	next := models.InquiryStatus(strings.ToLower(strings.TrimSpace(status)))
	if !next.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "status must be one of new, read, replied, archived")
	}
	switch kind {
	case models.InquiryContact:
		err = s.contacts.UpdateStatus(ctx, objectID, next)
	case models.InquiryAdmission:
		err = s.admissions.UpdateStatus(ctx, objectID, next)
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown inquiry kind")
	}
	return mapInquiryError(err, kind, "failed to update inquiry status")
}

func parseStatusFilter(raw string) (models.InquiryStatus, error) {
	status := models.InquiryStatus(strings.ToLower(strings.TrimSpace(raw)))
	if status != "" && !status.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "status must be one of new, read, replied, archived")
	}
	return status, nil
}

func parseObjectID(raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, appErrors.Clone(appErrors.ErrValidation, "invalid id")
	}
	return id, nil
}

func mapInquiryError(err error, kind models.InquiryKind, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return appErrors.Clone(appErrors.ErrNotFound, string(kind)+" not found")
	}
	return appErrors.Storage(err, message)
}
