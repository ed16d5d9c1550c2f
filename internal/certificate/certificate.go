// Package certificate awards course-completion certificates. Each user holds at
// most one certificate per course name and certificates never change.
package certificate

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// DateFormat is the fixed layout of Certificate.Date.
const DateFormat = "2006-01-02"

// Certificate is an issued completion record.
type Certificate struct {
	CourseName string `json:"courseName"`
	UserName   string `json:"userName"`
	Date       string `json:"date"`
	Serial     string `json:"serial"`
}

// Store is an append-only certificate collection keyed by user.
type Store interface {
	// Insert appends cert unless the user already holds one for the same
	// course name, in which case the existing record is returned with created=false.
	Insert(ctx context.Context, userID string, cert Certificate) (Certificate, bool, error)
	Find(ctx context.Context, userID, courseName string) (Certificate, bool, error)
	List(ctx context.Context, userID string) ([]Certificate, error)
}

// Issuer creates certificates.
type Issuer struct {
	store Store
	now   func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the issue date source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer creates an issuer writing to store.
func NewIssuer(store Store, opts ...Option) *Issuer {
	i := &Issuer{store: store, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Award issues a certificate for courseName. Awarding an already-held course
// returns the existing certificate untouched with created=false.
func (i *Issuer) Award(ctx context.Context, userID, courseName, userName string) (Certificate, bool, error) {
	if userID == "" || courseName == "" {
		return Certificate{}, false, fmt.Errorf("user_id and course name are required")
	}

	if existing, ok, err := i.store.Find(ctx, userID, courseName); err != nil {
		return Certificate{}, false, fmt.Errorf("looking up certificate: %w", err)
	} else if ok {
		return existing, false, nil
	}

	cert := Certificate{
		CourseName: courseName,
		UserName:   userName,
		Date:       i.now().Format(DateFormat),
	}
	cert.Serial = Serial(userID, cert)

	stored, created, err := i.store.Insert(ctx, userID, cert)
	if err != nil {
		return Certificate{}, false, fmt.Errorf("storing certificate: %w", err)
	}
	if created {
		slog.Info("certificate awarded",
			"user_id", userID,
			"course", courseName,
			"serial", stored.Serial,
		)
	}
	return stored, created, nil
}

// List returns the user's certificates in award order.
func (i *Issuer) List(ctx context.Context, userID string) ([]Certificate, error) {
	return i.store.List(ctx, userID)
}

// Serial derives the verification code printed on a certificate.
func Serial(userID string, cert Certificate) string {
	sum := blake2b.Sum256([]byte(strings.Join([]string{userID, cert.CourseName, cert.UserName, cert.Date}, "\x00")))
	code := strings.ToUpper(hex.EncodeToString(sum[:8]))
	return "PAI-" + code[0:4] + "-" + code[4:8] + "-" + code[8:12] + "-" + code[12:16]
}

// Verify reports whether cert's serial matches its contents for userID.
func Verify(userID string, cert Certificate) bool {
	return cert.Serial != "" && cert.Serial == Serial(userID, cert)
}

// MemoryStore keeps certificates in memory.
type MemoryStore struct {
	mu    sync.Mutex
	certs map[string][]Certificate
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{certs: make(map[string][]Certificate)}
}

func (m *MemoryStore) Insert(_ context.Context, userID string, cert Certificate) (Certificate, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.certs[userID] {
		if c.CourseName == cert.CourseName {
			return c, false, nil
		}
	}
	m.certs[userID] = append(m.certs[userID], cert)
	return cert, true, nil
}

func (m *MemoryStore) Find(_ context.Context, userID, courseName string) (Certificate, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.certs[userID] {
		if c.CourseName == courseName {
			return c, true, nil
		}
	}
	return Certificate{}, false, nil
}

func (m *MemoryStore) List(_ context.Context, userID string) ([]Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Certificate{}, m.certs[userID]...), nil
}
