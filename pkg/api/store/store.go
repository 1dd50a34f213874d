package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/moguedu/accredit/pkg/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Store provides persistence for the registry and the admin back office.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Admin users.
	GetAdminByID(ctx context.Context, id uint) (*AdminUser, error)
	GetAdminByUsername(ctx context.Context, username string) (*AdminUser, error)
	GetActiveAdminByUsername(ctx context.Context, username string) (*AdminUser, error)
	CreateAdmin(ctx context.Context, admin *AdminUser) error
	UpdateAdminPassword(ctx context.Context, id uint, hash string) error
	UpdateAdminLastLogin(ctx context.Context, id uint, t time.Time) error
	SetAdminActive(ctx context.Context, id uint, active bool) error

	// Sessions.
	CreateSession(ctx context.Context, session *AdminSession) error
	GetActiveSession(ctx context.Context, token string, now time.Time) (*ActiveSession, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// Certificate queries.
	FindCertificate(ctx context.Context, filter CertificateFilter) (*CertificateRecord, error)
	SearchCertificates(ctx context.Context, term string, limit int) ([]CertificateRecord, error)
	ListCertificates(ctx context.Context) ([]CertificateRecord, error)

	// Certificate CRUD.
	GetCertificate(ctx context.Context, id uint) (*Certificate, error)
	CreateCertificate(ctx context.Context, cert *Certificate) error
	UpdateCertificate(ctx context.Context, cert *Certificate) error
	DeleteCertificate(ctx context.Context, id uint) error

	// Center CRUD.
	ListCenters(ctx context.Context, activeOnly bool) ([]TrainingCenter, error)
	ListCenterOptions(ctx context.Context) ([]CenterOption, error)
	GetCenter(ctx context.Context, id uint) (*TrainingCenter, error)
	CreateCenter(ctx context.Context, center *TrainingCenter) error
	UpdateCenter(ctx context.Context, center *TrainingCenter) error
	DeleteCenter(ctx context.Context, id uint) error

	// Program CRUD.
	ListPrograms(ctx context.Context) ([]ProgramRecord, error)
	CreateProgram(ctx context.Context, program *TrainingProgram) error
	UpdateProgram(ctx context.Context, program *TrainingProgram) error
	DeleteProgram(ctx context.Context, id uint) error

	// Reference data and statistics.
	ListStandards(ctx context.Context) ([]AccreditationStandard, error)
	CountActiveCenters(ctx context.Context) (int64, error)
	CountActivePrograms(ctx context.Context) (int64, error)
	CountValidCertificates(ctx context.Context) (int64, error)

	// Seeding from config.
	SeedStandards(ctx context.Context, standards []config.StandardSeed) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		// SQLite serializes writers anyway, and an in-memory database
		// only exists on the connection that created it.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if s.cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(s.cfg.MaxOpenConns)
		}

		if s.cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(s.cfg.MaxIdleConns)
		}

		if s.cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)
		}
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&TrainingCenter{},
		&TrainingProgram{},
		&Certificate{},
		&AccreditationStandard{},
		&AdminUser{},
		&AdminSession{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	if err := s.backfillSearchKeys(ctx); err != nil {
		return fmt.Errorf("backfilling search keys: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// backfillSearchKeys fills key columns left empty by rows written before
// the columns existed.
func (s *store) backfillSearchKeys(ctx context.Context) error {
	var certs []Certificate

	if err := s.db.WithContext(ctx).
		Select("id", "certificate_number", "holder_name").
		Where("number_key = '' OR holder_name_key = ''").
		FindInBatches(&certs, 500, func(_ *gorm.DB, _ int) error {
			for _, c := range certs {
				if err := s.db.WithContext(ctx).
					Model(&Certificate{}).
					Where("id = ?", c.ID).
					UpdateColumns(map[string]any{
						"number_key":      searchKey(c.CertificateNumber),
						"holder_name_key": searchKey(c.HolderName),
					}).Error; err != nil {
					return err
				}
			}

			return nil
		}).Error; err != nil {
		return fmt.Errorf("certificates: %w", err)
	}

	var centers []TrainingCenter

	if err := s.db.WithContext(ctx).
		Select("id", "name").
		Where("name_key = ''").
		FindInBatches(&centers, 500, func(_ *gorm.DB, _ int) error {
			for _, c := range centers {
				if err := s.db.WithContext(ctx).
					Model(&TrainingCenter{}).
					Where("id = ?", c.ID).
					UpdateColumn("name_key", searchKey(c.Name)).Error; err != nil {
					return err
				}
			}

			return nil
		}).Error; err != nil {
		return fmt.Errorf("centers: %w", err)
	}

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// lookupErr maps gorm's not-found error onto ErrNotFound.
func lookupErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// --- Admin users ---

func (s *store) GetAdminByID(ctx context.Context, id uint) (*AdminUser, error) {
	var admin AdminUser
	if err := s.db.WithContext(ctx).First(&admin, id).Error; err != nil {
		return nil, lookupErr("getting admin by id", err)
	}

	return &admin, nil
}

func (s *store) GetAdminByUsername(
	ctx context.Context, username string,
) (*AdminUser, error) {
	var admin AdminUser
	if err := s.db.WithContext(ctx).
		Where("username = ?", username).
		First(&admin).Error; err != nil {
		return nil, lookupErr("getting admin by username", err)
	}

	return &admin, nil
}

func (s *store) GetActiveAdminByUsername(
	ctx context.Context, username string,
) (*AdminUser, error) {
	var admin AdminUser
	if err := s.db.WithContext(ctx).
		Where("username = ? AND is_active = ?", username, true).
		First(&admin).Error; err != nil {
		return nil, lookupErr("getting active admin by username", err)
	}

	return &admin, nil
}

func (s *store) CreateAdmin(ctx context.Context, admin *AdminUser) error {
	if err := s.db.WithContext(ctx).Create(admin).Error; err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}

	return nil
}

func (s *store) UpdateAdminPassword(
	ctx context.Context, id uint, hash string,
) error {
	if err := s.db.WithContext(ctx).
		Model(&AdminUser{}).
		Where("id = ?", id).
		Update("password_hash", hash).Error; err != nil {
		return fmt.Errorf("updating admin password: %w", err)
	}

	return nil
}

func (s *store) UpdateAdminLastLogin(
	ctx context.Context, id uint, t time.Time,
) error {
	if err := s.db.WithContext(ctx).
		Model(&AdminUser{}).
		Where("id = ?", id).
		Update("last_login", t).Error; err != nil {
		return fmt.Errorf("updating admin last login: %w", err)
	}

	return nil
}

func (s *store) SetAdminActive(ctx context.Context, id uint, active bool) error {
	if err := s.db.WithContext(ctx).
		Model(&AdminUser{}).
		Where("id = ?", id).
		Update("is_active", active).Error; err != nil {
		return fmt.Errorf("updating admin active flag: %w", err)
	}

	return nil
}

// --- Sessions ---

func (s *store) CreateSession(
	ctx context.Context, session *AdminSession,
) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	return nil
}

// GetActiveSession resolves a token to an unexpired session whose admin is
// active, in a single query.
func (s *store) GetActiveSession(
	ctx context.Context, token string, now time.Time,
) (*ActiveSession, error) {
	var sessions []ActiveSession

	if err := s.db.WithContext(ctx).
		Table("admin_sessions AS s").
		Select(`s.id AS session_id, s.expires_at, u.id AS admin_id,
			u.username, u.full_name, u.role`).
		Joins("JOIN admin_users u ON s.admin_id = u.id").
		Where("s.session_token = ?", token).
		Where("s.expires_at > ?", now.UTC()).
		Where("u.is_active = ?", true).
		Limit(1).
		Scan(&sessions).Error; err != nil {
		return nil, fmt.Errorf("getting active session: %w", err)
	}

	if len(sessions) == 0 {
		return nil, fmt.Errorf("getting active session: %w", ErrNotFound)
	}

	return &sessions[0], nil
}

func (s *store) DeleteSession(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).
		Where("session_token = ?", token).
		Delete(&AdminSession{}).Error; err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

func (s *store) DeleteExpiredSessions(
	ctx context.Context, now time.Time,
) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&AdminSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.WithField("count", result.RowsAffected).
			Debug("Cleaned up expired sessions")
	}

	return result.RowsAffected, nil
}

// --- Certificate queries ---

// FindCertificate returns the first certificate, in storage order, matching
// every criterion of the filter.
func (s *store) FindCertificate(
	ctx context.Context, filter CertificateFilter,
) (*CertificateRecord, error) {
	var records []CertificateRecord

	q := apply(certificateQuery(s.db.WithContext(ctx)), filter.predicates()...)

	if err := q.Order("c.id ASC").Limit(1).Scan(&records).Error; err != nil {
		return nil, fmt.Errorf("finding certificate: %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("finding certificate: %w", ErrNotFound)
	}

	return &records[0], nil
}

// SearchCertificates matches term against holder name, certificate number or
// center name, newest issue date first.
func (s *store) SearchCertificates(
	ctx context.Context, term string, limit int,
) ([]CertificateRecord, error) {
	records := make([]CertificateRecord, 0, clampLimit(limit))

	match := anyOf(
		containsFold("c.holder_name_key", term),
		containsFold("c.number_key", term),
		containsFold("tc.name_key", term),
	)

	if err := apply(certificateQuery(s.db.WithContext(ctx)), match).
		Order("c.issue_date DESC").
		Order("c.id DESC").
		Limit(clampLimit(limit)).
		Scan(&records).Error; err != nil {
		return nil, fmt.Errorf("searching certificates: %w", err)
	}

	return records, nil
}

func (s *store) ListCertificates(ctx context.Context) ([]CertificateRecord, error) {
	records := make([]CertificateRecord, 0, 64)

	if err := certificateQuery(s.db.WithContext(ctx)).
		Order("c.created_at DESC").
		Order("c.id DESC").
		Scan(&records).Error; err != nil {
		return nil, fmt.Errorf("listing certificates: %w", err)
	}

	return records, nil
}

// --- Certificate CRUD ---

func (s *store) GetCertificate(ctx context.Context, id uint) (*Certificate, error) {
	var cert Certificate
	if err := s.db.WithContext(ctx).First(&cert, id).Error; err != nil {
		return nil, lookupErr("getting certificate", err)
	}

	return &cert, nil
}

func (s *store) CreateCertificate(ctx context.Context, cert *Certificate) error {
	cert.NumberKey = searchKey(cert.CertificateNumber)
	cert.HolderNameKey = searchKey(cert.HolderName)

	if err := s.db.WithContext(ctx).Create(cert).Error; err != nil {
		return fmt.Errorf("creating certificate: %w", err)
	}

	return nil
}

// UpdateCertificate replaces every mutable column of the row with cert.ID.
// A missing row is not an error.
func (s *store) UpdateCertificate(ctx context.Context, cert *Certificate) error {
	if err := s.db.WithContext(ctx).
		Model(&Certificate{}).
		Where("id = ?", cert.ID).
		Updates(map[string]any{
			"certificate_number": cert.CertificateNumber,
			"number_key":         searchKey(cert.CertificateNumber),
			"holder_name":        cert.HolderName,
			"holder_name_key":    searchKey(cert.HolderName),
			"program_id":         cert.ProgramID,
			"center_id":          cert.CenterID,
			"issue_date":         cert.IssueDate,
			"expiry_date":        cert.ExpiryDate,
			"status":             cert.Status,
			"updated_at":         time.Now().UTC(),
		}).Error; err != nil {
		return fmt.Errorf("updating certificate: %w", err)
	}

	return nil
}

func (s *store) DeleteCertificate(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Delete(&Certificate{}, id).Error; err != nil {
		return fmt.Errorf("deleting certificate: %w", err)
	}

	return nil
}

// --- Center CRUD ---

func (s *store) ListCenters(
	ctx context.Context, activeOnly bool,
) ([]TrainingCenter, error) {
	centers := make([]TrainingCenter, 0, 16)

	q := s.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("accreditation_status = ?", AccreditationActive)
	}

	if err := q.Order("name ASC").Find(&centers).Error; err != nil {
		return nil, fmt.Errorf("listing centers: %w", err)
	}

	return centers, nil
}

func (s *store) ListCenterOptions(ctx context.Context) ([]CenterOption, error) {
	options := make([]CenterOption, 0, 16)

	if err := s.db.WithContext(ctx).
		Model(&TrainingCenter{}).
		Select("id, name").
		Where("accreditation_status = ?", AccreditationActive).
		Order("name ASC").
		Scan(&options).Error; err != nil {
		return nil, fmt.Errorf("listing center options: %w", err)
	}

	return options, nil
}

func (s *store) GetCenter(ctx context.Context, id uint) (*TrainingCenter, error) {
	var center TrainingCenter
	if err := s.db.WithContext(ctx).First(&center, id).Error; err != nil {
		return nil, lookupErr("getting center", err)
	}

	return &center, nil
}

func (s *store) CreateCenter(ctx context.Context, center *TrainingCenter) error {
	center.NameKey = searchKey(center.Name)

	if err := s.db.WithContext(ctx).Create(center).Error; err != nil {
		return fmt.Errorf("creating center: %w", err)
	}

	return nil
}

// UpdateCenter replaces every mutable column of the row with center.ID.
func (s *store) UpdateCenter(ctx context.Context, center *TrainingCenter) error {
	if err := s.db.WithContext(ctx).
		Model(&TrainingCenter{}).
		Where("id = ?", center.ID).
		Updates(map[string]any{
			"name":                 center.Name,
			"name_key":             searchKey(center.Name),
			"country":              center.Country,
			"city":                 center.City,
			"website":              center.Website,
			"accreditation_date":   center.AccreditationDate,
			"accreditation_status": center.AccreditationStatus,
			"updated_at":           time.Now().UTC(),
		}).Error; err != nil {
		return fmt.Errorf("updating center: %w", err)
	}

	return nil
}

// DeleteCenter removes the center only. Its programs and certificates are
// left in place with dangling references.
func (s *store) DeleteCenter(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Delete(&TrainingCenter{}, id).Error; err != nil {
		return fmt.Errorf("deleting center: %w", err)
	}

	return nil
}

// --- Program CRUD ---

func (s *store) ListPrograms(ctx context.Context) ([]ProgramRecord, error) {
	programs := make([]ProgramRecord, 0, 16)

	if err := s.db.WithContext(ctx).
		Table("training_programs AS p").
		Select("p.*, tc.name AS center_name").
		Joins("JOIN training_centers tc ON p.center_id = tc.id").
		Order("p.program_name ASC").
		Scan(&programs).Error; err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}

	return programs, nil
}

func (s *store) CreateProgram(ctx context.Context, program *TrainingProgram) error {
	if err := s.db.WithContext(ctx).Create(program).Error; err != nil {
		return fmt.Errorf("creating program: %w", err)
	}

	return nil
}

// UpdateProgram replaces every mutable column of the row with program.ID.
func (s *store) UpdateProgram(ctx context.Context, program *TrainingProgram) error {
	if err := s.db.WithContext(ctx).
		Model(&TrainingProgram{}).
		Where("id = ?", program.ID).
		Updates(map[string]any{
			"program_name":         program.ProgramName,
			"program_code":         program.ProgramCode,
			"center_id":            program.CenterID,
			"accreditation_date":   program.AccreditationDate,
			"accreditation_status": program.AccreditationStatus,
			"updated_at":           time.Now().UTC(),
		}).Error; err != nil {
		return fmt.Errorf("updating program: %w", err)
	}

	return nil
}

func (s *store) DeleteProgram(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Delete(&TrainingProgram{}, id).Error; err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}

	return nil
}

// --- Reference data and statistics ---

func (s *store) ListStandards(ctx context.Context) ([]AccreditationStandard, error) {
	standards := make([]AccreditationStandard, 0, 16)

	if err := s.db.WithContext(ctx).
		Order("category ASC").
		Order("standard_name ASC").
		Find(&standards).Error; err != nil {
		return nil, fmt.Errorf("listing standards: %w", err)
	}

	return standards, nil
}

func (s *store) count(ctx context.Context, model any, column, value string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).
		Model(model).
		Where(column+" = ?", value).
		Count(&n).Error; err != nil {
		return 0, err
	}

	return n, nil
}

func (s *store) CountActiveCenters(ctx context.Context) (int64, error) {
	n, err := s.count(ctx, &TrainingCenter{}, "accreditation_status", AccreditationActive)
	if err != nil {
		return 0, fmt.Errorf("counting active centers: %w", err)
	}

	return n, nil
}

func (s *store) CountActivePrograms(ctx context.Context) (int64, error) {
	n, err := s.count(ctx, &TrainingProgram{}, "accreditation_status", AccreditationActive)
	if err != nil {
		return 0, fmt.Errorf("counting active programs: %w", err)
	}

	return n, nil
}

func (s *store) CountValidCertificates(ctx context.Context) (int64, error) {
	n, err := s.count(ctx, &Certificate{}, "status", CertificateValid)
	if err != nil {
		return 0, fmt.Errorf("counting valid certificates: %w", err)
	}

	return n, nil
}

// --- Seeding ---

// SeedStandards inserts config-sourced standards. Standards already present
// by name are left unchanged.
func (s *store) SeedStandards(
	ctx context.Context, standards []config.StandardSeed,
) error {
	if len(standards) == 0 {
		return nil
	}

	rows := make([]AccreditationStandard, 0, len(standards))
	for _, st := range standards {
		rows = append(rows, AccreditationStandard{
			StandardName: st.StandardName,
			Category:     st.Category,
			Description:  st.Description,
		})
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error; err != nil {
		return fmt.Errorf("seeding standards: %w", err)
	}

	s.log.WithField("count", len(standards)).
		Info("Seeded accreditation standards from config")

	return nil
}
