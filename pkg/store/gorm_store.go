package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"floodwatch/internal/util"
	"floodwatch/pkg/domain"
)

const migrateLockID int64 = 51772026

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so that several replicas can boot at once.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&FloodModel{},
			&ShelterModel{},
			&MissingPersonModel{},
			&HelpRequestModel{},
			&SyncRunModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()

	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Ping checks the database connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func upsertByID(columns ...string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}
}

func firstOrMissing(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

func (s *GormStore) deleteByID(ctx context.Context, model any, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(model, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) count(ctx context.Context, tx *gorm.DB) (int, error) {
	var n int64
	if err := tx.WithContext(ctx).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(ctx context.Context, u *domain.User) error {
	stamp(&u.ID, &u.CreatedAt, &u.UpdatedAt, s.now())
	model := userToModel(*u)
	err := s.db.WithContext(ctx).
		Clauses(upsertByID("name", "email", "password_hash", "role", "updated_at")).
		Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, u.Email)
	}
	return err
}

// GetUserByEmail looks up a user by normalized email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	ok, err := firstOrMissing(s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error)
	if !ok {
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	ok, err := firstOrMissing(s.db.WithContext(ctx).First(&model, "id = ?", id).Error)
	if !ok {
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	var models []UserModel
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount(ctx context.Context) (int, error) {
	return s.count(ctx, s.db.Model(&UserModel{}))
}

// SaveFlood creates or updates a flood record.
func (s *GormStore) SaveFlood(ctx context.Context, f *domain.Flood) error {
	stamp(&f.ID, &f.CreatedAt, &f.UpdatedAt, s.now())
	model := floodToModel(*f)
	return s.db.WithContext(ctx).
		Clauses(upsertByID("title", "description", "severity", "lat", "lng", "status", "updated_at")).
		Create(&model).Error
}

func (s *GormStore) GetFlood(ctx context.Context, id string) (domain.Flood, bool, error) {
	var model FloodModel
	ok, err := firstOrMissing(s.db.WithContext(ctx).First(&model, "id = ?", id).Error)
	if !ok {
		return domain.Flood{}, false, err
	}
	return floodFromModel(model), true, nil
}

// FindFloodByKey matches title and coordinates exactly.
func (s *GormStore) FindFloodByKey(ctx context.Context, title string, loc domain.Location) (domain.Flood, bool, error) {
	var model FloodModel
	ok, err := firstOrMissing(s.db.WithContext(ctx).
		Where("title = ? AND lat = ? AND lng = ?", title, loc.Lat, loc.Lng).
		Order("created_at ASC").
		First(&model).Error)
	if !ok {
		return domain.Flood{}, false, err
	}
	return floodFromModel(model), true, nil
}

func (s *GormStore) floodQuery(filter FloodFilter) *gorm.DB {
	tx := s.db.Model(&FloodModel{})
	if filter.Status != "" {
		tx = tx.Where("status = ?", string(filter.Status))
	}
	if filter.Severity != "" {
		tx = tx.Where("severity = ?", string(filter.Severity))
	}
	return tx
}

// ListFloods returns floods newest first.
func (s *GormStore) ListFloods(ctx context.Context, filter FloodFilter) ([]domain.Flood, error) {
	var models []FloodModel
	if err := s.floodQuery(filter).WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Flood, 0, len(models))
	for _, m := range models {
		res = append(res, floodFromModel(m))
	}
	return res, nil
}

func (s *GormStore) CountFloods(ctx context.Context, filter FloodFilter) (int, error) {
	return s.count(ctx, s.floodQuery(filter))
}

func (s *GormStore) DeleteFlood(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, &FloodModel{}, id)
}

// SaveShelter creates or updates a shelter record.
func (s *GormStore) SaveShelter(ctx context.Context, sh *domain.Shelter) error {
	stamp(&sh.ID, &sh.CreatedAt, &sh.UpdatedAt, s.now())
	model := shelterToModel(*sh)
	return s.db.WithContext(ctx).
		Clauses(upsertByID("name", "capacity", "current_occupancy", "facilities", "contact", "lat", "lng", "status", "updated_at")).
		Create(&model).Error
}

func (s *GormStore) GetShelter(ctx context.Context, id string) (domain.Shelter, bool, error) {
	var model ShelterModel
	ok, err := firstOrMissing(s.db.WithContext(ctx).First(&model, "id = ?", id).Error)
	if !ok {
		return domain.Shelter{}, false, err
	}
	return shelterFromModel(model), true, nil
}

// FindShelterByKey matches name and coordinates exactly.
func (s *GormStore) FindShelterByKey(ctx context.Context, name string, loc domain.Location) (domain.Shelter, bool, error) {
	var model ShelterModel
	ok, err := firstOrMissing(s.db.WithContext(ctx).
		Where("name = ? AND lat = ? AND lng = ?", name, loc.Lat, loc.Lng).
		Order("created_at ASC").
		First(&model).Error)
	if !ok {
		return domain.Shelter{}, false, err
	}
	return shelterFromModel(model), true, nil
}

func (s *GormStore) shelterQuery(filter ShelterFilter) *gorm.DB {
	tx := s.db.Model(&ShelterModel{})
	if filter.Status != "" {
		tx = tx.Where("status = ?", string(filter.Status))
	}
	if filter.HasSpace {
		tx = tx.Where("capacity IS NOT NULL AND capacity > 0 AND current_occupancy < capacity")
	}
	return tx
}

// ListShelters returns shelters newest first.
func (s *GormStore) ListShelters(ctx context.Context, filter ShelterFilter) ([]domain.Shelter, error) {
	var models []ShelterModel
	if err := s.shelterQuery(filter).WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Shelter, 0, len(models))
	for _, m := range models {
		res = append(res, shelterFromModel(m))
	}
	return res, nil
}

func (s *GormStore) CountShelters(ctx context.Context, filter ShelterFilter) (int, error) {
	return s.count(ctx, s.shelterQuery(filter))
}

// ShelterTotals sums capacity (nulls as zero) and occupancy.
func (s *GormStore) ShelterTotals(ctx context.Context) (ShelterTotals, error) {
	var row struct {
		Capacity  int
		Occupancy int
	}
	err := s.db.WithContext(ctx).Model(&ShelterModel{}).
		Select("COALESCE(SUM(capacity), 0) AS capacity, COALESCE(SUM(current_occupancy), 0) AS occupancy").
		Scan(&row).Error
	if err != nil {
		return ShelterTotals{}, err
	}
	return ShelterTotals{Capacity: row.Capacity, Occupancy: row.Occupancy}, nil
}

func (s *GormStore) DeleteShelter(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, &ShelterModel{}, id)
}

// SaveMissingPerson creates or updates a missing-person report.
func (s *GormStore) SaveMissingPerson(ctx context.Context, p *domain.MissingPerson) error {
	stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt, s.now())
	model := missingToModel(*p)
	return s.db.WithContext(ctx).
		Clauses(upsertByID("name", "age", "last_seen", "description", "photo_url", "photo_key", "contact", "status", "updated_at")).
		Create(&model).Error
}

func (s *GormStore) GetMissingPerson(ctx context.Context, id string) (domain.MissingPerson, bool, error) {
	var model MissingPersonModel
	ok, err := firstOrMissing(s.db.WithContext(ctx).First(&model, "id = ?", id).Error)
	if !ok {
		return domain.MissingPerson{}, false, err
	}
	return missingFromModel(model), true, nil
}

func (s *GormStore) missingQuery(filter MissingFilter) *gorm.DB {
	tx := s.db.Model(&MissingPersonModel{})
	if name := strings.TrimSpace(filter.NameContains); name != "" {
		tx = tx.Where("name ILIKE ? ESCAPE '\\'", "%"+escapeLike(name)+"%")
	}
	if filter.Status != "" {
		tx = tx.Where("status = ?", string(filter.Status))
	}
	return tx
}

// ListMissingPersons returns reports newest first.
func (s *GormStore) ListMissingPersons(ctx context.Context, filter MissingFilter) ([]domain.MissingPerson, error) {
	var models []MissingPersonModel
	if err := s.missingQuery(filter).WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.MissingPerson, 0, len(models))
	for _, m := range models {
		res = append(res, missingFromModel(m))
	}
	return res, nil
}

func (s *GormStore) CountMissingPersons(ctx context.Context, filter MissingFilter) (int, error) {
	return s.count(ctx, s.missingQuery(filter))
}

func (s *GormStore) DeleteMissingPerson(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, &MissingPersonModel{}, id)
}

// SaveHelpRequest creates or updates a help request.
func (s *GormStore) SaveHelpRequest(ctx context.Context, h *domain.HelpRequest) error {
	stamp(&h.ID, &h.CreatedAt, &h.UpdatedAt, s.now())
	model := helpToModel(*h)
	return s.db.WithContext(ctx).
		Clauses(upsertByID("user_id", "name", "phone", "type", "description", "lat", "lng", "status", "updated_at")).
		Create(&model).Error
}

func (s *GormStore) GetHelpRequest(ctx context.Context, id string) (domain.HelpRequest, bool, error) {
	var model HelpRequestModel
	ok, err := firstOrMissing(s.db.WithContext(ctx).First(&model, "id = ?", id).Error)
	if !ok {
		return domain.HelpRequest{}, false, err
	}
	return helpFromModel(model), true, nil
}

func (s *GormStore) helpQuery(filter HelpFilter) *gorm.DB {
	tx := s.db.Model(&HelpRequestModel{})
	if filter.Status != "" {
		tx = tx.Where("status = ?", string(filter.Status))
	}
	if filter.UserID != "" {
		tx = tx.Where("user_id = ?", filter.UserID)
	}
	return tx
}

// ListHelpRequests returns requests newest first.
func (s *GormStore) ListHelpRequests(ctx context.Context, filter HelpFilter) ([]domain.HelpRequest, error) {
	var models []HelpRequestModel
	if err := s.helpQuery(filter).WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.HelpRequest, 0, len(models))
	for _, m := range models {
		res = append(res, helpFromModel(m))
	}
	return res, nil
}

func (s *GormStore) CountHelpRequests(ctx context.Context, filter HelpFilter) (int, error) {
	return s.count(ctx, s.helpQuery(filter))
}

func (s *GormStore) DeleteHelpRequest(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, &HelpRequestModel{}, id)
}

var groupColumns = map[GroupField]struct {
	model  any
	column string
}{
	FloodsBySeverity: {&FloodModel{}, "severity"},
	HelpByType:       {&HelpRequestModel{}, "type"},
	HelpByStatus:     {&HelpRequestModel{}, "status"},
	MissingByStatus:  {&MissingPersonModel{}, "status"},
	SheltersByStatus: {&ShelterModel{}, "status"},
}

// GroupCounts runs a GROUP BY count over a whitelisted column.
func (s *GormStore) GroupCounts(ctx context.Context, field GroupField) ([]GroupCount, error) {
	target, ok := groupColumns[field]
	if !ok {
		return nil, fmt.Errorf("unknown group field %q", field)
	}
	var rows []struct {
		Key   string
		Count int
	}
	err := s.db.WithContext(ctx).Model(target.model).
		Select(fmt.Sprintf("COALESCE(%s, '') AS key, COUNT(*) AS count", target.column)).
		Group(target.column).
		Order(target.column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]GroupCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, GroupCount{Key: r.Key, Count: r.Count})
	}
	return out, nil
}

// HelpRequestsPerDay buckets help requests created since the cutoff by UTC day.
func (s *GormStore) HelpRequestsPerDay(ctx context.Context, since time.Time) ([]DayCount, error) {
	var rows []DayCount
	err := s.db.WithContext(ctx).Model(&HelpRequestModel{}).
		Select("to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS date, COUNT(*) AS count").
		Where("created_at >= ?", since.UTC()).
		Group("date").
		Order("date ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// AppendSyncRun records one reconciliation pass.
func (s *GormStore) AppendSyncRun(ctx context.Context, run *domain.SyncRun) error {
	if run.ID == "" {
		run.ID = util.NewID()
	}
	model, err := syncRunToModel(*run)
	if err != nil {
		return fmt.Errorf("encode sync run details: %w", err)
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListSyncRuns returns the most recent runs first.
func (s *GormStore) ListSyncRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []SyncRunModel
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.SyncRun, 0, len(models))
	for _, m := range models {
		res = append(res, syncRunFromModel(m))
	}
	return res, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
