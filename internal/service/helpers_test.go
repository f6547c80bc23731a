package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/textproto"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"ecoaction/internal/database"
	"ecoaction/internal/model"
	"ecoaction/internal/queue"
	"ecoaction/internal/repository"
)

var baseTime = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

// =============================================================================
// FAKES
// =============================================================================

type sentMail struct {
	To, Subject, Body string
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []sentMail
	err   error
	codes *regexp.Regexp
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{codes: regexp.MustCompile(`\b\d{6}\b`)}
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

// lastCode returns the passcode from the most recent mail to addr.
func (m *fakeMailer) lastCode(t *testing.T, addr string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == addr {
			code := m.codes.FindString(m.sent[i].Body)
			require.NotEmpty(t, code, "mail body has no code: %q", m.sent[i].Body)
			return code
		}
	}
	t.Fatalf("no mail sent to %s", addr)
	return ""
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ActivityEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event queue.ActivityEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return "0-1", nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// =============================================================================
// HELPERS
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, users repository.UserRepository, email, username string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Username: username, Icon: model.DefaultIcon, CreatedAt: baseTime}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: 120, B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartFile runs data through a real multipart form so the service
// sees the same types an HTTP request produces.
func multipartFile(t *testing.T, field, filename, contentType string, data []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	headers := form.File[field]
	require.Len(t, headers, 1)
	f, err := headers[0].Open()
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f, headers[0]
}
