package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/healthfirst-backend/internal/models"
	"github.com/javajoker/healthfirst-backend/internal/repository"
)

// memoryStore is an in-memory repository.Store. Transactions snapshot the
// whole dataset and restore it when fn fails.
type memoryStore struct {
	data *memoryData

	// failures makes the named method return the given error once.
	failures map[string]error
}

type memoryData struct {
	users         map[uuid.UUID]models.User
	types         map[uuid.UUID]models.LicenseType
	licenses      map[uuid.UUID]models.License
	certificates  map[uuid.UUID]models.Certificate
	statuses      map[uuid.UUID]models.Status
	dataset       []models.LicenseDatasetEntry
	notifications []models.Notification
	sequence      int64
}

var _ repository.Store = (*memoryStore)(nil)

func newMemoryStore() *memoryStore {
	return &memoryStore{
		data: &memoryData{
			users:        map[uuid.UUID]models.User{},
			types:        map[uuid.UUID]models.LicenseType{},
			licenses:     map[uuid.UUID]models.License{},
			certificates: map[uuid.UUID]models.Certificate{},
			statuses:     map[uuid.UUID]models.Status{},
		},
		failures: map[string]error{},
	}
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		users:         make(map[uuid.UUID]models.User, len(d.users)),
		types:         make(map[uuid.UUID]models.LicenseType, len(d.types)),
		licenses:      make(map[uuid.UUID]models.License, len(d.licenses)),
		certificates:  make(map[uuid.UUID]models.Certificate, len(d.certificates)),
		statuses:      make(map[uuid.UUID]models.Status, len(d.statuses)),
		dataset:       append([]models.LicenseDatasetEntry(nil), d.dataset...),
		notifications: append([]models.Notification(nil), d.notifications...),
		sequence:      d.sequence,
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.types {
		c.types[k] = v
	}
	for k, v := range d.licenses {
		c.licenses[k] = v
	}
	for k, v := range d.certificates {
		c.certificates[k] = v
	}
	for k, v := range d.statuses {
		c.statuses[k] = v
	}
	return c
}

func (m *memoryStore) fail(method string) error {
	if err, ok := m.failures[method]; ok {
		delete(m.failures, method)
		return err
	}
	return nil
}

func (m *memoryStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	snapshot := m.data.clone()
	err := fn(m)
	if err == nil {
		err = m.fail("Commit")
	}
	if err != nil {
		m.data = snapshot
	}
	return err
}

// seed helpers

func (m *memoryStore) addUser(role models.UserRole, first, last string) models.User {
	u := models.User{Username: strings.ToLower(first), FirstName: first, LastName: last, Role: role}
	u.ID = uuid.New()
	m.data.users[u.ID] = u
	return u
}

func (m *memoryStore) addType(name, group string, require, immediate bool) models.LicenseType {
	t := models.LicenseType{Name: name, Group: group, CertificateRequire: require, ImmediateCertificate: immediate}
	t.ID = uuid.New()
	m.data.types[t.ID] = t
	return t
}

func (m *memoryStore) licenseCount() int {
	return len(m.data.licenses)
}

func (m *memoryStore) certificatesOf(licenseID uuid.UUID) []models.Certificate {
	var out []models.Certificate
	for _, c := range m.data.certificates {
		if c.LicenseID != nil && *c.LicenseID == licenseID {
			out = append(out, c)
		}
	}
	return out
}

// Store implementation

func (m *memoryStore) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := m.data.users[id]
	if !ok || u.IsDeleted {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (m *memoryStore) FindLicenseType(ctx context.Context, id uuid.UUID) (*models.LicenseType, error) {
	t, ok := m.data.types[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (m *memoryStore) ListLicenseTypes(ctx context.Context) ([]models.LicenseType, error) {
	var out []models.LicenseType
	for _, t := range m.data.types {
		if !t.IsDeleted {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) FindLicense(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.License, error) {
	if err := m.fail("FindLicense"); err != nil {
		return nil, err
	}
	l, ok := m.data.licenses[id]
	if !ok || l.IsDeleted {
		return nil, gorm.ErrRecordNotFound
	}
	return m.hydrate(l), nil
}

func (m *memoryStore) hydrate(l models.License) *models.License {
	l.User = m.data.users[l.UserID]
	l.Type = m.data.types[l.TypeID]
	if s, ok := m.data.statuses[l.ID]; ok {
		l.Status = &s
	}
	if l.EvaluatorID != nil {
		e := m.data.users[*l.EvaluatorID]
		l.Evaluator = &e
	}
	for _, c := range m.data.certificates {
		if c.LicenseID != nil && *c.LicenseID == l.ID && !c.IsDeleted {
			c := c
			l.Certificate = &c
		}
	}
	return &l
}

func stripLicense(l *models.License) models.License {
	stored := *l
	stored.User = models.User{}
	stored.Type = models.LicenseType{}
	stored.Evaluator = nil
	stored.Certificate = nil
	stored.Status = nil
	return stored
}

func (m *memoryStore) CreateLicense(ctx context.Context, license *models.License) error {
	if err := m.fail("CreateLicense"); err != nil {
		return err
	}
	if license.ID == uuid.Nil {
		license.ID = uuid.New()
	}
	license.CreatedAt = time.Now()
	m.data.licenses[license.ID] = stripLicense(license)
	return nil
}

func (m *memoryStore) SaveLicense(ctx context.Context, license *models.License) error {
	if err := m.fail("SaveLicense"); err != nil {
		return err
	}
	m.data.licenses[license.ID] = stripLicense(license)
	return nil
}

func (m *memoryStore) ListLicenses(ctx context.Context, filter repository.LicenseFilter) ([]models.License, int64, error) {
	licenses := []models.License{}
	if filter.MatchNone {
		return licenses, 0, nil
	}

	for _, stored := range m.data.licenses {
		l := m.hydrate(stored)
		if l.IsDeleted {
			continue
		}
		if filter.OwnerID != nil && l.UserID != *filter.OwnerID {
			continue
		}
		if filter.TypeName != "" && l.Type.Name != filter.TypeName {
			continue
		}
		if filter.Status != "" && (l.Status == nil || l.Status.Name != filter.Status) {
			continue
		}
		if name := strings.ToLower(filter.EmployeeName); name != "" &&
			!strings.Contains(strings.ToLower(l.User.FirstName), name) &&
			!strings.Contains(strings.ToLower(l.User.LastName), name) {
			continue
		}
		licenses = append(licenses, *l)
	}

	sort.Slice(licenses, func(i, j int) bool { return licenses[i].StartDate.After(licenses[j].StartDate) })
	total := int64(len(licenses))

	if filter.Limit > 0 {
		if filter.Offset >= len(licenses) {
			return []models.License{}, total, nil
		}
		end := filter.Offset + filter.Limit
		if end > len(licenses) {
			end = len(licenses)
		}
		licenses = licenses[filter.Offset:end]
	}
	return licenses, total, nil
}

func (m *memoryStore) FindCertificateByCode(ctx context.Context, code int64) (*models.Certificate, error) {
	for _, c := range m.data.certificates {
		if c.Code != nil && *c.Code == code {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryStore) FindCertificate(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	c, ok := m.data.certificates[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

// checkUnique mirrors the partial unique indexes on certificates.
func (m *memoryStore) checkUnique(certificate *models.Certificate) error {
	for id, other := range m.data.certificates {
		if id == certificate.ID {
			continue
		}
		if certificate.Code != nil && other.Code != nil && *certificate.Code == *other.Code {
			return gorm.ErrDuplicatedKey
		}
		if !certificate.IsDeleted && !other.IsDeleted && certificate.LicenseID != nil && other.LicenseID != nil &&
			*certificate.LicenseID == *other.LicenseID {
			return gorm.ErrDuplicatedKey
		}
	}
	return nil
}

func (m *memoryStore) CreateCertificate(ctx context.Context, certificate *models.Certificate) error {
	if err := m.fail("CreateCertificate"); err != nil {
		return err
	}
	if certificate.ID == uuid.Nil {
		certificate.ID = uuid.New()
	}
	if err := m.checkUnique(certificate); err != nil {
		return err
	}
	m.data.certificates[certificate.ID] = *certificate
	return nil
}

func (m *memoryStore) SaveCertificate(ctx context.Context, certificate *models.Certificate) error {
	if err := m.fail("SaveCertificate"); err != nil {
		return err
	}
	if err := m.checkUnique(certificate); err != nil {
		return err
	}
	m.data.certificates[certificate.ID] = *certificate
	return nil
}

func (m *memoryStore) NextCertificateCode(ctx context.Context) (int64, error) {
	m.data.sequence++
	return m.data.sequence, nil
}

func (m *memoryStore) FindStatus(ctx context.Context, licenseID uuid.UUID) (*models.Status, error) {
	s, ok := m.data.statuses[licenseID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &s, nil
}

func (m *memoryStore) CreateStatus(ctx context.Context, status *models.Status) error {
	if err := m.fail("CreateStatus"); err != nil {
		return err
	}
	if _, exists := m.data.statuses[status.LicenseID]; exists {
		return gorm.ErrDuplicatedKey
	}
	if status.ID == uuid.Nil {
		status.ID = uuid.New()
	}
	m.data.statuses[status.LicenseID] = *status
	return nil
}

func (m *memoryStore) SaveStatus(ctx context.Context, status *models.Status) error {
	m.data.statuses[status.LicenseID] = *status
	return nil
}

func (m *memoryStore) CreateDatasetEntry(ctx context.Context, entry *models.LicenseDatasetEntry) error {
	if err := m.fail("CreateDatasetEntry"); err != nil {
		return err
	}
	m.data.dataset = append(m.data.dataset, *entry)
	return nil
}

func (m *memoryStore) CreateNotification(ctx context.Context, notification *models.Notification) error {
	m.data.notifications = append(m.data.notifications, *notification)
	return nil
}

// fakeInspector recognises documents by their leading bytes and reads
// certificate codes from PDF bodies as plain text.
type fakeInspector struct {
	conversions int
	convertErr  error
}

var fakeCodePattern = regexp.MustCompile(`HFCOD\s*(\d+)`)

func (f *fakeInspector) SniffMIME(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return "image/png"
	}
	return "text/plain; charset=utf-8"
}

func (f *fakeInspector) ConvertImageToPDF(data []byte) ([]byte, error) {
	if f.convertErr != nil {
		return nil, f.convertErr
	}
	f.conversions++
	return append([]byte("%PDF-1.4 converted "), data...), nil
}

func (f *fakeInspector) ExtractEmbeddedCode(data []byte) (int64, bool) {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return 0, false
	}
	match := fakeCodePattern.FindSubmatch(data)
	if match == nil {
		return 0, false
	}
	code, err := strconv.ParseInt(string(match[1]), 10, 64)
	return code, err == nil
}

func pdfPayload(body string) string {
	return base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 " + body))
}

func jpegPayload() string {
	return base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0xFF, 0xE0, 'J', 'F', 'I', 'F'})
}
