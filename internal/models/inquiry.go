package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InquiryKind selects the collection an inquiry lives in.
type InquiryKind string

const (
	InquiryContact   InquiryKind = "contact"
	InquiryAdmission InquiryKind = "admission"
)

// InquiryStatus tracks admin follow-up.
type InquiryStatus string

const (
	InquiryStatusNew      InquiryStatus = "new"
	InquiryStatusRead     InquiryStatus = "read"
	InquiryStatusReplied  InquiryStatus = "replied"
	InquiryStatusArchived InquiryStatus = "archived"
)

// Valid reports whether s is a known status.
func (s InquiryStatus) Valid() bool {
	switch s {
	case InquiryStatusNew, InquiryStatusRead, InquiryStatusReplied, InquiryStatusArchived:
		return true
	}
	return false
}

// ContactMessage is a submission of the public contact form.
type ContactMessage struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Phone     string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Subject   string             `bson:"subject" json:"subject"`
	Message   string             `bson:"message" json:"message"`
	Status    InquiryStatus      `bson:"status" json:"status"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt *time.Time         `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// AdmissionInquiry is a submission of the admission form.
type AdmissionInquiry struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StudentName    string             `bson:"studentName" json:"student_name"`
	ParentName     string             `bson:"parentName" json:"parent_name"`
	Email          string             `bson:"email" json:"email"`
	Phone          string             `bson:"phone" json:"phone"`
	GradeApplying  string             `bson:"gradeApplying" json:"grade_applying"`
	DateOfBirth    string             `bson:"dateOfBirth,omitempty" json:"date_of_birth,omitempty"`
	PreviousSchool string             `bson:"previousSchool,omitempty" json:"previous_school,omitempty"`
	Message        string             `bson:"message,omitempty" json:"message,omitempty"`
	Status         InquiryStatus      `bson:"status" json:"status"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      *time.Time         `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}
