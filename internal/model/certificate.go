package model

import (
	"time"

	"github.com/google/uuid"
)

// PassingGradeType controls how a certificate template's minimum score is
// interpreted.
type PassingGradeType string

const (
	GradeTypePercentage PassingGradeType = "percentage"
	GradeTypePoints     PassingGradeType = "points"
)

// CertificateTemplate configures certificate eligibility for an exam.
// MinimumScore is deliberately independent of the exam's own passing
// score; the two thresholds are configured separately.
type CertificateTemplate struct {
	ID               uuid.UUID        `json:"id"`
	ExamID           uuid.UUID        `json:"exam_id"`
	Name             string           `json:"name"`
	MinimumScore     int              `json:"minimum_score"`
	PassingGradeType PassingGradeType `json:"passing_grade_type"`
	MaxScore         int              `json:"max_score"`
	GradeText        string           `json:"grade_text"`
	CreatedAt        time.Time        `json:"created_at"`
}

// EligibilityResult is the certificate-eligibility decision for one score.
type EligibilityResult struct {
	Eligible   bool   `json:"eligible"`
	GradeLabel string `json:"grade_label"`
	Message    string `json:"message"`
}

// Certificate is an issued certificate record.
type Certificate struct {
	ID                uuid.UUID `json:"id"`
	AttemptID         uuid.UUID `json:"attempt_id"`
	CandidateID       int       `json:"candidate_id"`
	ExamID            uuid.UUID `json:"exam_id"`
	CertificateNumber string    `json:"certificate_number"`
	Percentage        int       `json:"percentage"`
	GradeLabel        string    `json:"grade_label"`
	IssuedAt          time.Time `json:"issued_at"`
}

// RenderRequest is the hand-off to the external certificate renderer.
type RenderRequest struct {
	CandidateName     string    `json:"candidate_name"`
	ExamTitle         string    `json:"exam_title"`
	Percentage        int       `json:"percentage"`
	CompletedAt       time.Time `json:"completed_at"`
	CertificateNumber string    `json:"certificate_number"`
	GradeText         string    `json:"grade_text"`
}
