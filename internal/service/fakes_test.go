package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"albumshare/internal/domain"
	"albumshare/internal/metrics"
)

const mib = int64(1 << 20)

// memStore keeps ledger and media rows together so reconciliation can
// see both, like the real database does.
type memStore struct {
	mu           sync.Mutex
	defaultQuota int64
	quotas       map[string]*domain.QuotaRecord
	media        map[uuid.UUID]*domain.MediaAsset
	keys         map[string]uuid.UUID

	incrementErr error
	decrementErr error
	// reconcileHook runs under the store lock, before the sum is taken.
	reconcileHook func()
}

func newMemStore(defaultQuota int64) *memStore {
	return &memStore{
		defaultQuota: defaultQuota,
		quotas:       make(map[string]*domain.QuotaRecord),
		media:        make(map[uuid.UUID]*domain.MediaAsset),
		keys:         make(map[string]uuid.UUID),
	}
}

func (m *memStore) record(userID string) *domain.QuotaRecord {
	rec, ok := m.quotas[userID]
	if !ok {
		rec = &domain.QuotaRecord{UserID: userID, QuotaBytes: m.defaultQuota}
		m.quotas[userID] = rec
	}
	return rec
}

func (m *memStore) setUsage(userID string, quota, used int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.record(userID)
	rec.QuotaBytes = quota
	rec.UsedBytes = used
}

func (m *memStore) used(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(userID).UsedBytes
}

func (m *memStore) mediaCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.media)
}

func (m *memStore) ReadLocked(_ context.Context, userID string, fn func(*domain.QuotaRecord) error) error {
	m.mu.Lock()
	rec := *m.record(userID)
	m.mu.Unlock()
	return fn(&rec)
}

func (m *memStore) Get(_ context.Context, userID string) (*domain.QuotaRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := *m.record(userID)
	return &rec, nil
}

func (m *memStore) Increment(_ context.Context, userID string, bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return m.incrementErr
	}
	m.record(userID).UsedBytes += bytes
	return nil
}

func (m *memStore) Decrement(_ context.Context, userID string, bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decrementErr != nil {
		return m.decrementErr
	}
	rec := m.record(userID)
	rec.UsedBytes = max(0, rec.UsedBytes-bytes)
	return nil
}

func (m *memStore) Reconcile(_ context.Context, userID string) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reconcileHook != nil {
		m.reconcileHook()
	}
	var sum int64
	for _, a := range m.media {
		if a.UploaderID == userID {
			sum += a.SizeBytes
		}
	}
	rec := m.record(userID)
	before := rec.UsedBytes
	rec.UsedBytes = sum
	return before, sum, nil
}

func (m *memStore) ListUserIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	for id := range m.quotas {
		seen[id] = struct{}{}
	}
	for _, a := range m.media {
		seen[a.UploaderID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) UpdateQuotaLimit(_ context.Context, userID string, newLimit int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(userID).QuotaBytes = newLimit
	return nil
}

func (m *memStore) Create(_ context.Context, asset *domain.MediaAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[asset.ObjectKey]; ok {
		return domain.ErrAlreadyRegistered
	}
	asset.CreatedAt = time.Now()
	cp := *asset
	m.media[asset.ID] = &cp
	m.keys[asset.ObjectKey] = asset.ID
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*domain.MediaAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.media[id]
	if !ok {
		return nil, domain.ErrMediaNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) KeyRegistered(_ context.Context, objectKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[objectKey]
	return ok, nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.media[id]
	if !ok {
		return domain.ErrMediaNotFound
	}
	delete(m.keys, a.ObjectKey)
	delete(m.media, id)
	return nil
}

type fakeObject struct {
	size        int64
	contentType string
}

type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string]fakeObject
	deleted   []string
	deleteErr error
	presigned []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string]fakeObject)}
}

func (f *fakeStorage) put(key string, size int64) {
	f.putTyped(key, size, "image/jpeg")
}

func (f *fakeStorage) putTyped(key string, size int64, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = fakeObject{size: size, contentType: contentType}
}

func (f *fakeStorage) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeStorage) PresignUpload(_ context.Context, key, contentType string) (*domain.UploadCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presigned = append(f.presigned, key)
	return &domain.UploadCredential{
		URL:       "https://store.test/media/" + key,
		Method:    "PUT",
		Headers:   map[string][]string{"Content-Type": {contentType}},
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}, nil
}

func (f *fakeStorage) PresignDownload(_ context.Context, key string) (*domain.DownloadURL, error) {
	return &domain.DownloadURL{
		URL:       "https://store.test/media/" + key,
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}, nil
}

func (f *fakeStorage) StatObject(_ context.Context, key string) (*domain.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return &domain.ObjectInfo{Key: key, Size: obj.size, ContentType: obj.contentType}, nil
}

func (f *fakeStorage) DeleteObject(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, key)
	delete(f.objects, key)
	return nil
}

// fakeMembers maps album -> user -> role.
type fakeMembers struct {
	roles map[string]map[string]string
	err   error
}

func (f fakeMembers) ActiveRole(_ context.Context, albumID, userID string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	role, ok := f.roles[albumID][userID]
	return role, ok, nil
}

var errDown = errors.New("connection refused")

type harness struct {
	store   *memStore
	storage *fakeStorage
	metrics *metrics.Metrics
	quota   *QuotaService
	uploads *UploadService
	media   *MediaService
	recon   *ReconcileJob
}

func newHarness() *harness {
	store := newMemStore(256 * mib)
	storage := newFakeStorage()
	members := fakeMembers{roles: map[string]map[string]string{
		"album-1": {"alice": "member", "bob": "member", "olga": RoleOwner},
		"album-2": {"carol": "member"},
	}}
	m := metrics.New(prometheus.NewRegistry())
	log := zerolog.Nop()

	limits := Limits{ImageMaxBytes: 20 * mib, VideoMaxBytes: 200 * mib}
	quota := NewQuotaService(store, log)
	return &harness{
		store:   store,
		storage: storage,
		metrics: m,
		quota:   quota,
		uploads: NewUploadService(quota, members, storage, limits, m, log),
		media:   NewMediaService(store, quota, members, storage, limits, m, log),
		recon:   NewReconcileJob(quota, m, log),
	}
}

// upload reserves, writes size bytes to the store and completes.
func (h *harness) upload(ctx context.Context, userID, albumID string, declared, actual int64) (*domain.MediaAsset, error) {
	resp, err := h.uploads.Reserve(ctx, userID, domain.ReserveUploadRequest{
		AlbumID:  albumID,
		FileName: "photo.jpg",
		FileSize: declared,
		MimeType: "image/jpeg",
	})
	if err != nil {
		return nil, err
	}
	h.storage.put(resp.ObjectKey, actual)
	return h.media.Complete(ctx, userID, domain.CompleteUploadRequest{
		AlbumID:   albumID,
		ObjectKey: resp.ObjectKey,
		MediaType: resp.MediaType,
		MimeType:  "image/jpeg",
	})
}
