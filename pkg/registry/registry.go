package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/moguedu/accredit/pkg/api/store"
)

var (
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrStorage is returned when the database fails. The cause is logged,
	// not exposed.
	ErrStorage = errors.New("storage error")
)

// VerifyQuery holds the criteria of a public verification lookup.
type VerifyQuery struct {
	CertificateNumber string `json:"certificateNumber"`
	HolderName        string `json:"holderName"`
	TrainingProvider  string `json:"trainingProvider"`
}

// Stats are the public headline counters.
type Stats struct {
	AccreditedCenters  int64 `json:"accreditedCenters"`
	AccreditedPrograms int64 `json:"accreditedPrograms"`
	IssuedCertificates int64 `json:"issuedCertificates"`
}

// CertificateInput is the body of a certificate create or update.
type CertificateInput struct {
	CertificateNumber string      `json:"certificate_number" validate:"required,max=64"`
	HolderName        string      `json:"holder_name" validate:"required,max=255"`
	ProgramID         uint        `json:"program_id" validate:"required"`
	CenterID          uint        `json:"center_id" validate:"required"`
	IssueDate         store.Date  `json:"issue_date" validate:"required"`
	ExpiryDate        *store.Date `json:"expiry_date"`
	Status            string      `json:"status" validate:"omitempty,oneof=valid expired suspended"`
}

// CenterInput is the body of a training center create or update.
type CenterInput struct {
	Name                string     `json:"name" validate:"required,max=255"`
	Country             string     `json:"country" validate:"required,max=100"`
	City                *string    `json:"city"`
	Website             *string    `json:"website"`
	AccreditationDate   store.Date `json:"accreditation_date"`
	AccreditationStatus string     `json:"accreditation_status" validate:"omitempty,oneof=active inactive suspended"`
}

// ProgramInput is the body of a training program create or update.
type ProgramInput struct {
	ProgramName         string     `json:"program_name" validate:"required,max=255"`
	ProgramCode         string     `json:"program_code" validate:"required,max=64"`
	CenterID            uint       `json:"center_id" validate:"required"`
	AccreditationDate   store.Date `json:"accreditation_date"`
	AccreditationStatus string     `json:"accreditation_status" validate:"omitempty,oneof=active inactive"`
}

// Service is the public registry and the admin CRUD surface over it.
type Service interface {
	// Public queries.
	Verify(ctx context.Context, q VerifyQuery) (*store.CertificateRecord, error)
	Search(ctx context.Context, term string, limit int) ([]store.CertificateRecord, error)
	ListActiveCenters(ctx context.Context) ([]store.TrainingCenter, error)
	ListStandards(ctx context.Context) ([]store.AccreditationStandard, error)
	Stats(ctx context.Context) (*Stats, error)

	// Certificates.
	ListCertificates(ctx context.Context) ([]store.CertificateRecord, error)
	GetCertificate(ctx context.Context, id uint) (*store.Certificate, error)
	CreateCertificate(ctx context.Context, in CertificateInput) (uint, error)
	UpdateCertificate(ctx context.Context, id uint, in CertificateInput) error
	DeleteCertificate(ctx context.Context, id uint) error

	// Centers.
	ListCenters(ctx context.Context) ([]store.TrainingCenter, error)
	ListCenterOptions(ctx context.Context) ([]store.CenterOption, error)
	CreateCenter(ctx context.Context, in CenterInput) (uint, error)
	UpdateCenter(ctx context.Context, id uint, in CenterInput) error
	DeleteCenter(ctx context.Context, id uint) error

	// Programs.
	ListPrograms(ctx context.Context) ([]store.ProgramRecord, error)
	CreateProgram(ctx context.Context, in ProgramInput) (uint, error)
	UpdateProgram(ctx context.Context, id uint, in ProgramInput) error
	DeleteProgram(ctx context.Context, id uint) error
}

// Compile-time interface check.
var _ Service = (*service)(nil)

type service struct {
	log      logrus.FieldLogger
	store    store.Store
	validate *validator.Validate
}

// NewService creates a new registry Service.
func NewService(log logrus.FieldLogger, st store.Store) Service {
	return &service{
		log:      log.WithField("component", "registry"),
		store:    st,
		validate: newValidator(),
	}
}

// storageErr logs a database failure and hides it behind ErrStorage.
func (s *service) storageErr(op string, err error) error {
	s.log.WithError(err).WithField("op", op).Error("Storage operation failed")

	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// --- Public queries ---

// Verify returns the first certificate matching every given criterion.
func (s *service) Verify(
	ctx context.Context, q VerifyQuery,
) (*store.CertificateRecord, error) {
	filter := store.CertificateFilter{
		CertificateNumber: q.CertificateNumber,
		HolderName:        q.HolderName,
		CenterName:        q.TrainingProvider,
	}

	if filter.IsEmpty() {
		return nil, fmt.Errorf(
			"%w: provide a certificate number, holder name or training provider",
			ErrInvalidInput,
		)
	}

	rec, err := s.store.FindCertificate(ctx, filter)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, s.storageErr("verify certificate", err)
	}

	return rec, nil
}

// Search matches term against holder name, certificate number and center
// name. An empty term matches everything.
func (s *service) Search(
	ctx context.Context, term string, limit int,
) ([]store.CertificateRecord, error) {
	recs, err := s.store.SearchCertificates(ctx, term, limit)
	if err != nil {
		return nil, s.storageErr("search certificates", err)
	}

	return recs, nil
}

func (s *service) ListActiveCenters(ctx context.Context) ([]store.TrainingCenter, error) {
	centers, err := s.store.ListCenters(ctx, true)
	if err != nil {
		return nil, s.storageErr("list active centers", err)
	}

	return centers, nil
}

func (s *service) ListStandards(ctx context.Context) ([]store.AccreditationStandard, error) {
	standards, err := s.store.ListStandards(ctx)
	if err != nil {
		return nil, s.storageErr("list standards", err)
	}

	return standards, nil
}

// Stats counts active centers, active programs and valid certificates
// concurrently.
func (s *service) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.store.CountActiveCenters(gctx)
		stats.AccreditedCenters = n

		return err
	})

	g.Go(func() error {
		n, err := s.store.CountActivePrograms(gctx)
		stats.AccreditedPrograms = n

		return err
	})

	g.Go(func() error {
		n, err := s.store.CountValidCertificates(gctx)
		stats.IssuedCertificates = n

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, s.storageErr("compute stats", err)
	}

	return &stats, nil
}

// --- Certificates ---

func (s *service) ListCertificates(ctx context.Context) ([]store.CertificateRecord, error) {
	recs, err := s.store.ListCertificates(ctx)
	if err != nil {
		return nil, s.storageErr("list certificates", err)
	}

	return recs, nil
}

func (s *service) GetCertificate(ctx context.Context, id uint) (*store.Certificate, error) {
	cert, err := s.store.GetCertificate(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, s.storageErr("get certificate", err)
	}

	return cert, nil
}

func (in CertificateInput) model(id uint) *store.Certificate {
	status := in.Status
	if status == "" {
		status = store.CertificateValid
	}

	expiry := in.ExpiryDate
	if expiry != nil && expiry.IsZero() {
		expiry = nil
	}

	return &store.Certificate{
		ID:                id,
		CertificateNumber: in.CertificateNumber,
		HolderName:        in.HolderName,
		ProgramID:         in.ProgramID,
		CenterID:          in.CenterID,
		IssueDate:         in.IssueDate,
		ExpiryDate:        expiry,
		Status:            status,
	}
}

// CreateCertificate stores a new certificate and returns its id.
func (s *service) CreateCertificate(
	ctx context.Context, in CertificateInput,
) (uint, error) {
	if err := s.validateInput(in); err != nil {
		return 0, err
	}

	cert := in.model(0)
	if err := s.store.CreateCertificate(ctx, cert); err != nil {
		return 0, s.storageErr("create certificate", err)
	}

	return cert.ID, nil
}

// UpdateCertificate replaces all mutable fields. A missing id is a no-op.
func (s *service) UpdateCertificate(
	ctx context.Context, id uint, in CertificateInput,
) error {
	if err := s.validateInput(in); err != nil {
		return err
	}

	if err := s.store.UpdateCertificate(ctx, in.model(id)); err != nil {
		return s.storageErr("update certificate", err)
	}

	return nil
}

func (s *service) DeleteCertificate(ctx context.Context, id uint) error {
	if err := s.store.DeleteCertificate(ctx, id); err != nil {
		return s.storageErr("delete certificate", err)
	}

	return nil
}

// --- Centers ---

func (s *service) ListCenters(ctx context.Context) ([]store.TrainingCenter, error) {
	centers, err := s.store.ListCenters(ctx, false)
	if err != nil {
		return nil, s.storageErr("list centers", err)
	}

	return centers, nil
}

func (s *service) ListCenterOptions(ctx context.Context) ([]store.CenterOption, error) {
	options, err := s.store.ListCenterOptions(ctx)
	if err != nil {
		return nil, s.storageErr("list center options", err)
	}

	return options, nil
}

func nullable(p *string) *string {
	if p == nil || *p == "" {
		return nil
	}

	return p
}

func (in CenterInput) model(id uint) *store.TrainingCenter {
	status := in.AccreditationStatus
	if status == "" {
		status = store.AccreditationActive
	}

	return &store.TrainingCenter{
		ID:                  id,
		Name:                in.Name,
		Country:             in.Country,
		City:                nullable(in.City),
		Website:             nullable(in.Website),
		AccreditationDate:   in.AccreditationDate,
		AccreditationStatus: status,
	}
}

func (s *service) CreateCenter(ctx context.Context, in CenterInput) (uint, error) {
	if err := s.validateInput(in); err != nil {
		return 0, err
	}

	center := in.model(0)
	if err := s.store.CreateCenter(ctx, center); err != nil {
		return 0, s.storageErr("create center", err)
	}

	return center.ID, nil
}

func (s *service) UpdateCenter(ctx context.Context, id uint, in CenterInput) error {
	if err := s.validateInput(in); err != nil {
		return err
	}

	if err := s.store.UpdateCenter(ctx, in.model(id)); err != nil {
		return s.storageErr("update center", err)
	}

	return nil
}

// DeleteCenter removes the center. Programs and certificates referencing it
// are kept.
func (s *service) DeleteCenter(ctx context.Context, id uint) error {
	if err := s.store.DeleteCenter(ctx, id); err != nil {
		return s.storageErr("delete center", err)
	}

	return nil
}

// --- Programs ---

func (s *service) ListPrograms(ctx context.Context) ([]store.ProgramRecord, error) {
	programs, err := s.store.ListPrograms(ctx)
	if err != nil {
		return nil, s.storageErr("list programs", err)
	}

	return programs, nil
}

func (in ProgramInput) model(id uint) *store.TrainingProgram {
	status := in.AccreditationStatus
	if status == "" {
		status = store.AccreditationActive
	}

	return &store.TrainingProgram{
		ID:                  id,
		ProgramName:         in.ProgramName,
		ProgramCode:         in.ProgramCode,
		CenterID:            in.CenterID,
		AccreditationDate:   in.AccreditationDate,
		AccreditationStatus: status,
	}
}

func (s *service) CreateProgram(ctx context.Context, in ProgramInput) (uint, error) {
	if err := s.validateInput(in); err != nil {
		return 0, err
	}

	program := in.model(0)
	if err := s.store.CreateProgram(ctx, program); err != nil {
		return 0, s.storageErr("create program", err)
	}

	return program.ID, nil
}

func (s *service) UpdateProgram(ctx context.Context, id uint, in ProgramInput) error {
	if err := s.validateInput(in); err != nil {
		return err
	}

	if err := s.store.UpdateProgram(ctx, in.model(id)); err != nil {
		return s.storageErr("update program", err)
	}

	return nil
}

func (s *service) DeleteProgram(ctx context.Context, id uint) error {
	if err := s.store.DeleteProgram(ctx, id); err != nil {
		return s.storageErr("delete program", err)
	}

	return nil
}
