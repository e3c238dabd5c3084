package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"timeclock/backend/internal/model"
	"timeclock/backend/internal/repository"
	"timeclock/backend/internal/timeclock"
	pkgerrors "timeclock/backend/pkg/errors"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User // key: user_id
	seq   int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	for _, u := range m.users {
		if u.Email == user.Email {
			return fmt.Errorf("duplicate email %s", user.Email)
		}
	}
	if user.UserID == "" {
		m.seq++
		user.UserID = fmt.Sprintf("user-%03d", m.seq)
	}
	if user.Version == 0 {
		user.Version = 1
	}
	stored := *user
	m.users[user.UserID] = &stored
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	stored, ok := m.users[user.UserID]
	if !ok || stored.Version != user.Version {
		return pkgerrors.ErrOptimisticLock
	}
	user.Version++
	cp := *user
	m.users[user.UserID] = &cp
	return nil
}

func (m *mockUserRepo) UpdateLastLogin(_ context.Context, id string) error {
	if u, ok := m.users[id]; ok {
		now := time.Now()
		u.LastLoginAt = &now
	}
	return nil
}

func (m *mockUserRepo) List(_ context.Context, filter repository.UserFilter, offset, limit int) ([]model.User, int64, error) {
	var all []model.User
	for _, u := range m.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		if filter.Keyword != "" && !strings.Contains(u.Name, filter.Keyword) && !strings.Contains(u.Email, filter.Keyword) {
			continue
		}
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })
	return paginate(all, offset, limit), int64(len(all)), nil
}

func (m *mockUserRepo) ListActiveIDs(_ context.Context) ([]string, error) {
	var ids []string
	for id, u := range m.users {
		if u.IsActive() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ── Mock TimeEntryRepository ──

type mockTimeEntryRepo struct {
	entries map[string]*model.TimeEntry
	seq     int
	// failFor FetchRange 对指定用户返回错误
	failFor map[string]error
}

func newMockTimeEntryRepo() *mockTimeEntryRepo {
	return &mockTimeEntryRepo{
		entries: make(map[string]*model.TimeEntry),
		failFor: make(map[string]error),
	}
}

func (m *mockTimeEntryRepo) Create(_ context.Context, entry *model.TimeEntry) error {
	if entry.EntryID == "" {
		m.seq++
		entry.EntryID = fmt.Sprintf("te-%03d", m.seq)
	}
	if entry.Version == 0 {
		entry.Version = 1
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	cp := *entry
	m.entries[entry.EntryID] = &cp
	return nil
}

func (m *mockTimeEntryRepo) GetByID(_ context.Context, id string) (*model.TimeEntry, error) {
	if e, ok := m.entries[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTimeEntryRepo) sorted(userID string) []model.TimeEntry {
	var list []model.TimeEntry
	for _, e := range m.entries {
		if userID == "" || e.UserID == userID {
			list = append(list, *e)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Timestamp.Equal(list[j].Timestamp) {
			return list[i].Timestamp.Before(list[j].Timestamp)
		}
		return list[i].EntryID < list[j].EntryID
	})
	return list
}

func (m *mockTimeEntryRepo) GetLastByUser(_ context.Context, userID string) (*model.TimeEntry, error) {
	list := m.sorted(userID)
	if len(list) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	last := list[len(list)-1]
	return &last, nil
}

func (m *mockTimeEntryRepo) FetchRange(_ context.Context, userID string, from, to time.Time) ([]model.TimeEntry, error) {
	if err, ok := m.failFor[userID]; ok {
		return nil, err
	}
	var result []model.TimeEntry
	for _, e := range m.sorted(userID) {
		if e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func (m *mockTimeEntryRepo) List(_ context.Context, filter repository.TimeEntryFilter, offset, limit int) ([]model.TimeEntry, int64, error) {
	var all []model.TimeEntry
	for _, e := range m.sorted(filter.UserID) {
		if filter.EntryType != "" && e.EntryType != filter.EntryType {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.From != nil && e.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.Timestamp.After(*filter.To) {
			continue
		}
		all = append(all, e)
	}
	// 与真实实现一致：时间倒序
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return paginate(all, offset, limit), int64(len(all)), nil
}

func (m *mockTimeEntryRepo) Update(_ context.Context, entry *model.TimeEntry) error {
	stored, ok := m.entries[entry.EntryID]
	if !ok || stored.Version != entry.Version {
		return pkgerrors.ErrOptimisticLock
	}
	entry.Version++
	cp := *entry
	m.entries[entry.EntryID] = &cp
	return nil
}

func (m *mockTimeEntryRepo) Delete(_ context.Context, id string, _ string) error {
	delete(m.entries, id)
	return nil
}

// ── Mock IncidentRepository ──

type mockIncidentRepo struct {
	incidents map[string]*model.Incident
	seq       int
}

func newMockIncidentRepo() *mockIncidentRepo {
	return &mockIncidentRepo{incidents: make(map[string]*model.Incident)}
}

func (m *mockIncidentRepo) Create(_ context.Context, incident *model.Incident) error {
	if incident.IncidentID == "" {
		m.seq++
		incident.IncidentID = fmt.Sprintf("inc-%03d", m.seq)
	}
	if incident.Version == 0 {
		incident.Version = 1
	}
	cp := *incident
	m.incidents[incident.IncidentID] = &cp
	return nil
}

func (m *mockIncidentRepo) GetByID(_ context.Context, id string) (*model.Incident, error) {
	if i, ok := m.incidents[id]; ok {
		cp := *i
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockIncidentRepo) GetByTimeEntry(_ context.Context, timeEntryID string) (*model.Incident, error) {
	for _, i := range m.incidents {
		if i.TimeEntryID == timeEntryID {
			cp := *i
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockIncidentRepo) List(_ context.Context, filter repository.IncidentFilter, offset, limit int) ([]model.Incident, int64, error) {
	var all []model.Incident
	for _, i := range m.incidents {
		if filter.UserID != "" && i.UserID != filter.UserID {
			continue
		}
		if filter.Date != "" && i.Date != filter.Date {
			continue
		}
		if len(filter.Statuses) > 0 && !containsString(filter.Statuses, i.Status) {
			continue
		}
		all = append(all, *i)
	}
	sort.Slice(all, func(a, b int) bool { return all[a].IncidentID < all[b].IncidentID })
	return paginate(all, offset, limit), int64(len(all)), nil
}

func (m *mockIncidentRepo) CountByStatus(_ context.Context, userID string) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, i := range m.incidents {
		if userID != "" && i.UserID != userID {
			continue
		}
		counts[i.Status]++
	}
	return counts, nil
}

func (m *mockIncidentRepo) Update(_ context.Context, incident *model.Incident) error {
	stored, ok := m.incidents[incident.IncidentID]
	if !ok || stored.Version != incident.Version {
		return pkgerrors.ErrOptimisticLock
	}
	incident.Version++
	cp := *incident
	m.incidents[incident.IncidentID] = &cp
	return nil
}

// ── Mock AuditLogRepository ──

type mockAuditRepo struct {
	logs []model.AuditLog
	err  error
}

func (m *mockAuditRepo) Create(_ context.Context, log *model.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, *log)
	return nil
}

func (m *mockAuditRepo) List(_ context.Context, filter repository.AuditLogFilter, offset, limit int) ([]model.AuditLog, int64, error) {
	var all []model.AuditLog
	for _, l := range m.logs {
		if filter.Action != "" && l.Action != filter.Action {
			continue
		}
		if filter.EntityType != "" && l.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && (l.EntityID == nil || *l.EntityID != filter.EntityID) {
			continue
		}
		all = append(all, l)
	}
	return paginate(all, offset, limit), int64(len(all)), nil
}

// actions 按写入顺序返回审计动作
func (m *mockAuditRepo) actions() []string {
	out := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		out = append(out, l.Action)
	}
	return out
}

// ── 测试辅助 ──

// testFixture 一组共享 mock 的仓储与固定时钟引擎
type testFixture struct {
	repo      *repository.Repository
	users     *mockUserRepo
	entries   *mockTimeEntryRepo
	incidents *mockIncidentRepo
	audits    *mockAuditRepo
	engine    *timeclock.Engine
	now       time.Time
	logger    *zap.Logger
}

// newFixture now 为 UTC 时刻，引擎按 UTC+1 划分自然日
func newFixture(now time.Time) *testFixture {
	f := &testFixture{
		users:     newMockUserRepo(),
		entries:   newMockTimeEntryRepo(),
		incidents: newMockIncidentRepo(),
		audits:    &mockAuditRepo{},
		now:       now,
		logger:    zap.NewNop(),
	}
	f.repo = &repository.Repository{
		User:      f.users,
		TimeEntry: f.entries,
		Incident:  f.incidents,
		AuditLog:  f.audits,
	}
	f.engine = timeclock.NewEngine(timeclock.Options{
		UTCOffsetHours: 1,
		Now:            func() time.Time { return f.now },
	})
	return f
}

func (f *testFixture) audit() AuditService {
	return NewAuditService(f.repo, f.engine, f.logger)
}

// addUser 直接写入一个在职用户
func (f *testFixture) addUser(id, role string) *model.User {
	u := &model.User{
		UserID: id,
		Name:   "用户" + id,
		Email:  id + "@example.com",
		Role:   role,
		Status: model.UserStatusActive,
	}
	u.Version = 1
	f.users.users[id] = u
	return u
}

// addEntry 直接写入一条打卡记录，ts 为 RFC3339
func (f *testFixture) addEntry(id, userID string, kind timeclock.Kind, ts string) *model.TimeEntry {
	e := &model.TimeEntry{
		EntryID:   id,
		UserID:    userID,
		EntryType: string(kind),
		Timestamp: mustParse(ts),
		Status:    string(timeclock.StatusApproved),
	}
	e.Version = 1
	f.entries.entries[id] = e
	return e
}

func mustParse(ts string) time.Time {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return t
}

func paginate[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
