package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/pinpincloud/internal/blob"
	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/storage"
	"github.com/pinpincloud/internal/types"
)

// Map-backed repositories for testing. Every fake counts its calls so tests
// can assert that a rejected operation never reached the store.

type calls struct {
	mu sync.Mutex
	n  int
}

func (c *calls) hit() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *calls) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type fakeRoleRepo struct {
	calls
	roles map[string]types.Role
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{roles: make(map[string]types.Role)}
}

func (f *fakeRoleRepo) Get(ctx context.Context, userID string) (*models.RoleRecord, error) {
	f.hit()
	role, ok := f.roles[userID]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", userID, storage.ErrNotFound)
	}
	return &models.RoleRecord{UserID: userID, Role: role}, nil
}

func (f *fakeRoleRepo) InitIfAbsent(ctx context.Context, userID string) (*models.RoleRecord, error) {
	f.hit()
	if _, ok := f.roles[userID]; !ok {
		f.roles[userID] = types.RoleUser
	}
	return &models.RoleRecord{UserID: userID, Role: f.roles[userID]}, nil
}

func (f *fakeRoleRepo) Set(ctx context.Context, userID string, role types.Role) error {
	f.hit()
	f.roles[userID] = role
	return nil
}

func (f *fakeRoleRepo) Delete(ctx context.Context, userID string) error {
	f.hit()
	delete(f.roles, userID)
	return nil
}

type fakePlanRepo struct {
	calls
	plans map[string]*models.Plan
}

func newFakePlanRepo() *fakePlanRepo {
	return &fakePlanRepo{plans: make(map[string]*models.Plan)}
}

func (f *fakePlanRepo) Get(ctx context.Context, userID string) (*models.Plan, error) {
	f.hit()
	plan, ok := f.plans[userID]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", userID, storage.ErrNotFound)
	}
	cp := *plan
	return &cp, nil
}

func (f *fakePlanRepo) CreateIfAbsent(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	f.hit()
	if _, ok := f.plans[plan.UserID]; !ok {
		cp := *plan
		f.plans[plan.UserID] = &cp
	}
	cp := *f.plans[plan.UserID]
	return &cp, nil
}

func (f *fakePlanRepo) Activate(ctx context.Context, plan *models.Plan) error {
	f.hit()
	var used int64
	if existing, ok := f.plans[plan.UserID]; ok {
		used = existing.StorageUsed
	}
	cp := *plan
	cp.StorageUsed = used
	f.plans[plan.UserID] = &cp
	return nil
}

func (f *fakePlanRepo) AdjustUsage(ctx context.Context, userID string, delta int64) error {
	f.hit()
	plan, ok := f.plans[userID]
	if !ok {
		return fmt.Errorf("plan %s: %w", userID, storage.ErrNotFound)
	}
	plan.StorageUsed += delta
	if plan.StorageUsed < 0 {
		plan.StorageUsed = 0
	}
	return nil
}

func (f *fakePlanRepo) Delete(ctx context.Context, userID string) error {
	f.hit()
	delete(f.plans, userID)
	return nil
}

func (f *fakePlanRepo) CountByType(ctx context.Context) (map[types.PlanType]int, error) {
	f.hit()
	counts := make(map[types.PlanType]int)
	for _, p := range f.plans {
		counts[p.Type]++
	}
	return counts, nil
}

type fakeFileRepo struct {
	calls
	mu    sync.Mutex
	files map[string]*models.File
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{files: make(map[string]*models.File)}
}

func (f *fakeFileRepo) Create(ctx context.Context, file *models.File) error {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *file
	f.files[file.ID] = &cp
	return nil
}

func (f *fakeFileRepo) GetByID(ctx context.Context, id string) (*models.File, error) {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	cp := *file
	return &cp, nil
}

func (f *fakeFileRepo) ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error) {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]*models.File, 0)
	for _, file := range f.files {
		if file.OwnerID == ownerID {
			cp := *file
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UploadedAt.After(result[j].UploadedAt) })
	return result, nil
}

func (f *fakeFileRepo) UpdateShare(ctx context.Context, id string, settings models.ShareSettings) error {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	applyShare(file, settings)
	return nil
}

func (f *fakeFileRepo) Delete(ctx context.Context, id string) (*models.File, error) {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	delete(f.files, id)
	return file, nil
}

func (f *fakeFileRepo) DeleteByOwner(ctx context.Context, ownerID string) ([]*models.File, error) {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed []*models.File
	for id, file := range f.files {
		if file.OwnerID == ownerID {
			removed = append(removed, file)
			delete(f.files, id)
		}
	}
	return removed, nil
}

func (f *fakeFileRepo) Totals(ctx context.Context) (int, int, int64, error) {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	var shared int
	var bytes int64
	for _, file := range f.files {
		if file.Shared {
			shared++
		}
		bytes += file.SizeBytes
	}
	return len(f.files), shared, bytes, nil
}

// fakeKeyRepo redeems against plans atomically. A non-nil planErr fails the
// plan write and leaves both the key and the plan untouched.
type fakeKeyRepo struct {
	calls
	mu      sync.Mutex
	keys    map[string]*models.PremiumKey
	plans   *fakePlanRepo
	planErr error
}

func newFakeKeyRepo(plans *fakePlanRepo) *fakeKeyRepo {
	return &fakeKeyRepo{keys: make(map[string]*models.PremiumKey), plans: plans}
}

func (f *fakeKeyRepo) Create(ctx context.Context, key *models.PremiumKey) error {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *key
	f.keys[key.Key] = &cp
	return nil
}

func (f *fakeKeyRepo) Get(ctx context.Context, code string) (*models.PremiumKey, error) {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[code]
	if !ok {
		return nil, fmt.Errorf("key %s: %w", code, storage.ErrNotFound)
	}
	cp := *key
	return &cp, nil
}

func (f *fakeKeyRepo) Redeem(ctx context.Context, code, userID, email string, at time.Time, grant func(current *models.Plan) *models.Plan) error {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[code]
	if !ok || key.Status != types.KeyUnused {
		return storage.ErrKeyNotRedeemable
	}

	var current *models.Plan
	if existing, ok := f.plans.plans[userID]; ok {
		cp := *existing
		current = &cp
	}
	plan := grant(current)
	if f.planErr != nil {
		return f.planErr
	}
	if err := f.plans.Activate(ctx, plan); err != nil {
		return err
	}

	key.Status = types.KeyUsed
	key.UsedBy = &userID
	key.UsedAt = &at
	key.AssignedEmail = &email
	return nil
}

func (f *fakeKeyRepo) List(ctx context.Context) ([]*models.PremiumKey, error) {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]*models.PremiumKey, 0, len(f.keys))
	for _, k := range f.keys {
		cp := *k
		keys = append(keys, &cp)
	}
	return keys, nil
}

func (f *fakeKeyRepo) Delete(ctx context.Context, code string) error {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[code]; !ok {
		return fmt.Errorf("key %s: %w", code, storage.ErrNotFound)
	}
	delete(f.keys, code)
	return nil
}

func (f *fakeKeyRepo) Stats(ctx context.Context) (models.KeyStats, error) {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats models.KeyStats
	for _, k := range f.keys {
		stats.Total++
		if k.Status == types.KeyUsed {
			stats.Used++
		}
	}
	stats.Unused = stats.Total - stats.Used
	return stats, nil
}

type fakeMaintenanceRepo struct {
	calls
	record *models.Maintenance
}

func (f *fakeMaintenanceRepo) Get(ctx context.Context) (*models.Maintenance, error) {
	f.hit()
	if f.record == nil {
		return nil, fmt.Errorf("maintenance: %w", storage.ErrNotFound)
	}
	cp := *f.record
	return &cp, nil
}

func (f *fakeMaintenanceRepo) Put(ctx context.Context, record *models.Maintenance) error {
	f.hit()
	cp := *record
	f.record = &cp
	return nil
}

type fakeDirectoryRepo struct {
	calls
	entries map[string]*models.DirectoryEntry
}

func newFakeDirectoryRepo() *fakeDirectoryRepo {
	return &fakeDirectoryRepo{entries: make(map[string]*models.DirectoryEntry)}
}

func (f *fakeDirectoryRepo) Upsert(ctx context.Context, entry *models.DirectoryEntry) error {
	f.hit()
	if existing, ok := f.entries[entry.UserID]; ok {
		entry.CreatedAt = existing.CreatedAt
	}
	cp := *entry
	f.entries[entry.UserID] = &cp
	return nil
}

func (f *fakeDirectoryRepo) Get(ctx context.Context, userID string) (*models.DirectoryEntry, error) {
	f.hit()
	entry, ok := f.entries[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, storage.ErrNotFound)
	}
	return entry, nil
}

func (f *fakeDirectoryRepo) Delete(ctx context.Context, userID string) error {
	f.hit()
	delete(f.entries, userID)
	return nil
}

func (f *fakeDirectoryRepo) Count(ctx context.Context) (int, error) {
	f.hit()
	return len(f.entries), nil
}

func (f *fakeDirectoryRepo) ListAdminView(ctx context.Context) ([]*models.AdminUserView, error) {
	f.hit()
	views := make([]*models.AdminUserView, 0, len(f.entries))
	for _, e := range f.entries {
		views = append(views, &models.AdminUserView{UserID: e.UserID, Email: e.Email, DisplayName: e.DisplayName})
	}
	return views, nil
}

type fakeOrphanRepo struct {
	orphans []*models.OrphanBlob
}

func (f *fakeOrphanRepo) Add(ctx context.Context, orphan *models.OrphanBlob) error {
	f.orphans = append(f.orphans, orphan)
	return nil
}

type fakeActivity struct {
	mu     sync.Mutex
	events []*models.Activity
	daily  []models.DailyCount
}

func (f *fakeActivity) Record(ctx context.Context, activity *models.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, activity)
	return nil
}

func (f *fakeActivity) DailyCounts(ctx context.Context, kind models.ActivityKind, since time.Time) ([]models.DailyCount, error) {
	return f.daily, nil
}

// fakeBlobStore keeps blobs in memory. downloadErrs are returned, in order,
// by successive Download calls before the stored data is served.
type fakeBlobStore struct {
	mu            sync.Mutex
	blobs         map[string][]byte
	downloadErrs  []error
	downloadCalls int
	deleteErr     error
	uploadErr     error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (f *fakeBlobStore) Upload(ctx context.Context, pointer string, body io.Reader, size int64, contentType string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[pointer] = data
	return nil
}

func (f *fakeBlobStore) Download(ctx context.Context, pointer string, maxBytes int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadCalls++
	if len(f.downloadErrs) > 0 {
		err := f.downloadErrs[0]
		f.downloadErrs = f.downloadErrs[1:]
		return nil, err
	}
	data, ok := f.blobs[pointer]
	if !ok {
		return nil, fmt.Errorf("%s: %w", pointer, blob.ErrObjectNotFound)
	}
	if int64(len(data)) > maxBytes {
		return nil, blob.ErrTooLarge
	}
	return bytes.Clone(data), nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, pointer string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, pointer)
	return nil
}
