package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/midrand-elite/meg-services/internal/auth"
	"github.com/midrand-elite/meg-services/internal/middleware"
	"github.com/midrand-elite/meg-services/internal/models"
	"github.com/midrand-elite/meg-services/internal/realtime"
	"github.com/midrand-elite/meg-services/internal/requests"
	"github.com/midrand-elite/meg-services/internal/session"
	"github.com/midrand-elite/meg-services/internal/storage"
)

type memIdentities struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Identity
}

func (m *memIdentities) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.byID {
		if id.Email == email {
			cp := *id
			return &cp, nil
		}
	}
	return nil, auth.ErrIdentityNotFound
}

func (m *memIdentities) FindByID(ctx context.Context, uid uuid.UUID) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byID[uid]
	if !ok {
		return nil, auth.ErrIdentityNotFound
	}
	cp := *id
	return &cp, nil
}

func (m *memIdentities) Create(ctx context.Context, identity *models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	cp := *identity
	m.byID[identity.ID] = &cp
	return nil
}

type memDenylist struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (d *memDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revoked[jti] = true
	return nil
}

func (d *memDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.revoked[jti], nil
}

type memProfiles struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.User
}

func (p *memProfiles) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[id]
	if !ok {
		return nil, session.ErrProfileNotFound
	}
	cp := *u
	return &cp, nil
}

func (p *memProfiles) Create(ctx context.Context, u *models.User) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *u
	p.byID[u.ID] = &cp
	return nil
}

func (p *memProfiles) promote(id uuid.UUID, role models.Role) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[id].Role = role
}

type memRepo struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*models.ServiceRequest
	clock time.Time
}

func (m *memRepo) Create(ctx context.Context, r *models.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.clock = m.clock.Add(time.Minute)
	r.CreatedAt, r.UpdatedAt = m.clock, m.clock
	cp := *r
	m.byID[r.ID] = &cp
	return nil
}

func (m *memRepo) Get(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, requests.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) list(keep func(*models.ServiceRequest) bool) []models.ServiceRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ServiceRequest{}
	for _, r := range m.byID {
		if keep(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memRepo) List(ctx context.Context) ([]models.ServiceRequest, error) {
	return m.list(func(*models.ServiceRequest) bool { return true }), nil
}

func (m *memRepo) ListByClient(ctx context.Context, clientID uuid.UUID) ([]models.ServiceRequest, error) {
	return m.list(func(r *models.ServiceRequest) bool { return r.ClientID == clientID }), nil
}

func (m *memRepo) Transition(ctx context.Context, id uuid.UUID, from models.RequestStatus, p requests.Patch) (*models.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, requests.ErrNotFound
	}
	if r.Status != from {
		return nil, requests.ErrStatusConflict
	}
	r.Status = p.Status
	if p.WorkerID != nil {
		wid := *p.WorkerID
		r.WorkerID = &wid
		r.WorkerName = p.WorkerName
	}
	m.clock = m.clock.Add(time.Second)
	r.UpdatedAt = m.clock
	cp := *r
	return &cp, nil
}

type testServer struct {
	app      *fiber.App
	profiles *memProfiles
	repo     *memRepo
	svc      *requests.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zap.NewNop()

	provider := auth.NewProvider(
		&memIdentities{byID: map[uuid.UUID]*models.Identity{}},
		&memDenylist{revoked: map[string]bool{}},
		"test-secret",
		60,
		log,
	)
	profiles := &memProfiles{byID: map[uuid.UUID]*models.User{}}
	sessions := session.NewManager(provider, profiles, log)

	repo := &memRepo{
		byID:  map[uuid.UUID]*models.ServiceRequest{},
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	hub := realtime.NewHub(log)
	hubStop := make(chan struct{})
	go hub.Run(hubStop)
	t.Cleanup(func() { close(hubStop) })

	svc := requests.NewService(repo, requests.Options{
		Bucket:            storage.NewLocalBucket(t.TempDir(), "http://uploads.test"),
		UploadConcurrency: 2,
		MaxPhotoBytes:     1 << 20,
		Events:            hub,
	}, log)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(log)})
	authH := &AuthHandler{Sessions: sessions, Expires: 60, Log: log}
	routes := &Routes{
		Auth:     authH,
		Catalog:  &CatalogHandler{},
		Requests: &RequestHandler{Svc: svc, Log: log},
		Admin: &AdminHandler{Svc: svc, Now: func() time.Time {
			return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
		}},
		WS: &RequestsWSHandler{Sessions: sessions, Svc: svc, Hub: hub, Log: log},
	}
	routes.Mount(app)

	return &testServer{app: app, profiles: profiles, repo: repo, svc: svc}
}

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
}

func (s *testServer) do(t *testing.T, req *http.Request) (*http.Response, envelope) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var env envelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			t.Fatalf("decode %q: %v", body, err)
		}
	}
	return resp, env
}

func jsonRequest(method, target, token string, body any) *http.Request {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

type sessionData struct {
	User  models.User `json:"user"`
	Home  string      `json:"home"`
	Token string      `json:"token"`
}

func (s *testServer) register(t *testing.T, name, email, role string) sessionData {
	t.Helper()
	resp, env := s.do(t, jsonRequest(http.MethodPost, "/api/auth/register", "", RegisterReq{
		FirstName:       name,
		Email:           email,
		Password:        "secret123",
		ConfirmPassword: "secret123",
		Role:            role,
	}))
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("register %s: status %d (%s)", email, resp.StatusCode, env.Message)
	}
	var sd sessionData
	if err := json.Unmarshal(env.Data, &sd); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return sd
}

func TestRegisterSetsCookieAndHome(t *testing.T) {
	s := newTestServer(t)

	req := jsonRequest(http.MethodPost, "/api/auth/register", "", RegisterReq{
		FirstName:       "Thandi",
		Email:           "thandi@example.com",
		Password:        "secret123",
		ConfirmPassword: "secret123",
		Role:            "worker",
	})
	resp, env := s.do(t, req)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == middleware.TokenCookie && c.Value != "" && c.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Fatal("session cookie not set")
	}

	var sd sessionData
	_ = json.Unmarshal(env.Data, &sd)
	if sd.Home != "/worker-dashboard" || sd.User.Role != models.RoleWorker {
		t.Fatalf("session = %+v", sd)
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)

	resp, env := s.do(t, jsonRequest(http.MethodPost, "/api/auth/register", "", RegisterReq{
		FirstName:       "",
		Email:           "nobody",
		Password:        "secret123",
		ConfirmPassword: "other",
	}))
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var fields map[string][]string
	if err := json.Unmarshal(env.Errors, &fields); err != nil {
		t.Fatalf("decode errors: %v", err)
	}
	for _, k := range []string{"first_name", "email", "confirm_password"} {
		if len(fields[k]) == 0 {
			t.Errorf("missing error for %s: %v", k, fields)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "Sipho", "sipho@example.com", "client")

	resp, env := s.do(t, jsonRequest(http.MethodPost, "/api/auth/register", "", RegisterReq{
		FirstName:       "Sipho",
		Email:           "Sipho@Example.com",
		Password:        "secret123",
		ConfirmPassword: "secret123",
	}))
	if resp.StatusCode != fiber.StatusConflict || env.Code != string(auth.CodeEmailInUse) {
		t.Fatalf("status = %d code = %q", resp.StatusCode, env.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "Lerato", "lerato@example.com", "client")

	resp, env := s.do(t, jsonRequest(http.MethodPost, "/api/auth/login", "", LoginReq{
		Email:    "lerato@example.com",
		Password: "wrong-one",
	}))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if env.Code != string(auth.CodeWrongPassword) || env.Success {
		t.Fatalf("envelope = %+v", env)
	}

	resp, _ = s.do(t, jsonRequest(http.MethodPost, "/api/auth/login", "", LoginReq{
		Email:    "lerato@example.com",
		Password: "secret123",
	}))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
}

func TestMeRequiresSession(t *testing.T) {
	s := newTestServer(t)

	resp, env := s.do(t, jsonRequest(http.MethodGet, "/api/me", "", nil))
	if resp.StatusCode != fiber.StatusUnauthorized || env.Success {
		t.Fatalf("status = %d envelope = %+v", resp.StatusCode, env)
	}

	resp, _ = s.do(t, jsonRequest(http.MethodGet, "/api/me", "not-a-token", nil))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("garbage token status = %d", resp.StatusCode)
	}

	sd := s.register(t, "Naledi", "naledi@example.com", "client")
	resp, env = s.do(t, jsonRequest(http.MethodGet, "/api/me", sd.Token, nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	var me sessionData
	_ = json.Unmarshal(env.Data, &me)
	if me.User.Email != "naledi@example.com" || me.Home != "/home" {
		t.Fatalf("me = %+v", me)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newTestServer(t)
	sd := s.register(t, "Kagiso", "kagiso@example.com", "client")

	resp, _ := s.do(t, jsonRequest(http.MethodPost, "/api/auth/logout", sd.Token, nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}

	resp, env := s.do(t, jsonRequest(http.MethodGet, "/api/me", sd.Token, nil))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status after logout = %d (%s)", resp.StatusCode, env.Message)
	}
}

func TestCatalogList(t *testing.T) {
	s := newTestServer(t)

	resp, env := s.do(t, jsonRequest(http.MethodGet, "/api/catalog", "", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(env.Data), `"painting-interior"`) || !strings.Contains(string(env.Data), `"price_label"`) {
		t.Fatalf("catalog = %s", env.Data)
	}
}

func multipartRequest(t *testing.T, token string, fields map[string]string, photos map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	names := make([]string, 0, len(photos))
	for name := range photos {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		part, err := w.CreateFormFile("photos", name)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = part.Write(photos[name])
	}
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/requests", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	return req
}

var validForm = map[string]string{
	"service_id": "cleaning-residential",
	"phone":      "082 123 4567",
	"address":    "12 Main Road",
	"city":       "Midrand",
	"quantity":   "2",
	"details":    "Two bedrooms",
}

type createdData struct {
	Request struct {
		models.ServiceRequest
		Badge   requests.Badge    `json:"badge"`
		Actions []requests.Action `json:"actions"`
	} `json:"request"`
	FailedPhotos []requests.FailedPhoto `json:"failed_photos"`
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	client := s.register(t, "Ayanda", "ayanda@example.com", "client")
	worker := s.register(t, "Bongani", "bongani@example.com", "worker")

	resp, env := s.do(t, multipartRequest(t, client.Token, validForm, map[string][]byte{
		"kitchen.JPG": []byte("jpeg-bytes"),
		"notes.exe":   []byte("nope"),
	}))
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create status = %d (%s)", resp.StatusCode, env.Message)
	}
	var created createdData
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	r := created.Request
	if r.Status != models.StatusPending || r.Title != "Residential Cleaning" || r.ClientPhone != "0821234567" {
		t.Fatalf("request = %+v", r.ServiceRequest)
	}
	if len(r.PhotoURLs) != 1 || !strings.HasPrefix(r.PhotoURLs[0], "http://uploads.test/uploads/requests/") {
		t.Fatalf("photo urls = %v", r.PhotoURLs)
	}
	if len(created.FailedPhotos) != 1 || created.FailedPhotos[0].Name != "notes.exe" {
		t.Fatalf("failed photos = %+v", created.FailedPhotos)
	}
	if len(r.Actions) != 1 || r.Actions[0] != requests.ActionCancel {
		t.Fatalf("client actions = %v", r.Actions)
	}

	// The worker sees it with the accept action.
	resp, env = s.do(t, jsonRequest(http.MethodGet, "/api/requests", worker.Token, nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var rows []struct {
		ID      uuid.UUID         `json:"id"`
		Actions []requests.Action `json:"actions"`
	}
	_ = json.Unmarshal(env.Data, &rows)
	if len(rows) != 1 || rows[0].ID != r.ID || len(rows[0].Actions) != 1 || rows[0].Actions[0] != requests.ActionAccept {
		t.Fatalf("worker rows = %+v", rows)
	}

	path := "/api/requests/" + r.ID.String()

	// Clients cannot accept.
	resp, _ = s.do(t, jsonRequest(http.MethodPost, path+"/accept", client.Token, nil))
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("client accept status = %d", resp.StatusCode)
	}

	resp, env = s.do(t, jsonRequest(http.MethodPost, path+"/accept", worker.Token, nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("accept status = %d (%s)", resp.StatusCode, env.Message)
	}
	var accepted models.ServiceRequest
	_ = json.Unmarshal(env.Data, &accepted)
	if accepted.Status != models.StatusAccepted || accepted.WorkerName != "Bongani" || !accepted.AssignedTo(worker.User.ID) {
		t.Fatalf("accepted = %+v", accepted)
	}

	// Accepted requests can no longer be cancelled.
	resp, _ = s.do(t, jsonRequest(http.MethodPost, path+"/cancel", client.Token, nil))
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("cancel status = %d", resp.StatusCode)
	}

	// Skipping in-progress is illegal.
	resp, _ = s.do(t, jsonRequest(http.MethodPatch, path+"/status", worker.Token, statusReq{Status: "completed"}))
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("skip status = %d", resp.StatusCode)
	}

	for _, st := range []string{"in-progress", "completed"} {
		resp, env = s.do(t, jsonRequest(http.MethodPatch, path+"/status", worker.Token, statusReq{Status: st}))
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("%s status = %d (%s)", st, resp.StatusCode, env.Message)
		}
	}

	resp, env = s.do(t, jsonRequest(http.MethodGet, path, client.Token, nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var final struct {
		Status models.RequestStatus `json:"status"`
		Badge  requests.Badge       `json:"badge"`
	}
	_ = json.Unmarshal(env.Data, &final)
	if final.Status != models.StatusCompleted || final.Badge.Label != "Completed" {
		t.Fatalf("final = %+v", final)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	s := newTestServer(t)
	client := s.register(t, "Zanele", "zanele@example.com", "client")

	form := map[string]string{"service_id": "cleaning-residential", "phone": "12345"}
	resp, env := s.do(t, multipartRequest(t, client.Token, form, nil))
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var fields map[string][]string
	_ = json.Unmarshal(env.Errors, &fields)
	for _, k := range []string{"phone", "address", "city"} {
		if len(fields[k]) == 0 {
			t.Errorf("missing error for %s: %v", k, fields)
		}
	}
}

func TestCreateRequestAllPhotosFail(t *testing.T) {
	s := newTestServer(t)
	client := s.register(t, "Mpho", "mpho@example.com", "client")

	resp, env := s.do(t, multipartRequest(t, client.Token, validForm, map[string][]byte{
		"a.gif": []byte("x"),
		"b.pdf": []byte("y"),
	}))
	if resp.StatusCode != fiber.StatusBadGateway || env.Success {
		t.Fatalf("status = %d envelope = %+v", resp.StatusCode, env)
	}

	list, _ := s.repo.List(context.Background())
	if len(list) != 0 {
		t.Fatalf("request written despite failed photos: %+v", list)
	}
}

func TestWorkersCannotCreateRequests(t *testing.T) {
	s := newTestServer(t)
	worker := s.register(t, "Themba", "themba@example.com", "worker")

	resp, _ := s.do(t, multipartRequest(t, worker.Token, validForm, nil))
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRequestsAreScopedToTheirClient(t *testing.T) {
	s := newTestServer(t)
	owner := s.register(t, "Refilwe", "refilwe@example.com", "client")
	other := s.register(t, "Palesa", "palesa@example.com", "client")

	_, env := s.do(t, multipartRequest(t, owner.Token, validForm, nil))
	var created createdData
	_ = json.Unmarshal(env.Data, &created)

	resp, _ := s.do(t, jsonRequest(http.MethodGet, "/api/requests/"+created.Request.ID.String(), other.Token, nil))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("other client get status = %d", resp.StatusCode)
	}

	resp, _ = s.do(t, jsonRequest(http.MethodGet, "/api/requests/not-a-uuid", owner.Token, nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("bad id status = %d", resp.StatusCode)
	}

	_, env = s.do(t, jsonRequest(http.MethodGet, "/api/requests", other.Token, nil))
	if string(env.Data) != "[]" {
		t.Fatalf("other client list = %s", env.Data)
	}
}

func TestAdminStatsRoleGuard(t *testing.T) {
	s := newTestServer(t)
	client := s.register(t, "Lindiwe", "lindiwe@example.com", "client")
	admin := s.register(t, "Ops", "ops@example.com", "client")
	s.profiles.promote(admin.User.ID, models.RoleAdmin)

	s.do(t, multipartRequest(t, client.Token, validForm, nil))

	resp, _ := s.do(t, jsonRequest(http.MethodGet, "/api/admin/stats", client.Token, nil))
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("client stats status = %d", resp.StatusCode)
	}

	resp, env := s.do(t, jsonRequest(http.MethodGet, "/api/admin/stats", admin.Token, nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("admin stats status = %d (%s)", resp.StatusCode, env.Message)
	}
	var dash struct {
		Total              int `json:"total"`
		AwaitingAssignment int `json:"awaiting_assignment"`
	}
	if err := json.Unmarshal(env.Data, &dash); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if dash.Total != 1 || dash.AwaitingAssignment != 1 {
		t.Fatalf("stats = %s", env.Data)
	}
}
