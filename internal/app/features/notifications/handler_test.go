package notifications_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/impacthub/internal/app/features/logout"
	"github.com/dalemusser/impacthub/internal/app/features/notifications"
	"github.com/dalemusser/impacthub/internal/app/system/notify"
	"github.com/dalemusser/impacthub/internal/domain/models"
	"github.com/dalemusser/impacthub/internal/testutil"
	"github.com/go-chi/chi/v5"
)

type fixture struct {
	env    *testutil.Env
	svc    *notify.Service
	router chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := testutil.NewEnv(t)
	svc := notify.NewService(env.Store, nil, env.Logger)
	h := notifications.NewHandler(svc, env.Sessions, env.Logger)

	r := chi.NewRouter()
	r.Mount("/notifications", notifications.Routes(h, env.Sessions))
	r.Mount("/logout", logout.Routes(logout.NewHandler(env.Sessions, env.Logger), env.Sessions))
	return &fixture{env: env, svc: svc, router: r}
}

func (f *fixture) create(t *testing.T, uid, title string) string {
	t.Helper()
	id, err := f.svc.Create(context.Background(), notify.New{
		UserID: uid, Type: models.NotificationSystem, Title: title, Message: "m",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

func (f *fixture) do(s testutil.Session, method, target string) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	f.router.ServeHTTP(rec, s.Request(method, target, nil))
	return rec
}

type listBody struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
	Total         int                   `json:"total"`
	HasNext       bool                  `json:"has_next"`
}

func TestServeList_OnlyOwnNotifications(t *testing.T) {
	f := newFixture(t)
	s := f.env.SignIn(t, testutil.PartnerUser("u-1"))
	f.create(t, "u-1", "first")
	f.create(t, "u-1", "second")
	f.create(t, "u-2", "not yours")

	rec := f.do(s, "GET", "/notifications/")
	rec.AssertStatus(t, http.StatusOK)

	var body listBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 || len(body.Notifications) != 2 {
		t.Fatalf("count: got total=%d len=%d, want 2", body.Total, len(body.Notifications))
	}
	if body.Unread != 2 {
		t.Errorf("unread: got %d, want 2", body.Unread)
	}
	for _, n := range body.Notifications {
		if n.UserID != "u-1" {
			t.Errorf("leaked notification for %q", n.UserID)
		}
	}
}

func TestServeList_Paging(t *testing.T) {
	f := newFixture(t)
	s := f.env.SignIn(t, testutil.PartnerUser("u-1"))
	for i := 0; i < 3; i++ {
		f.create(t, "u-1", "n")
	}

	rec := f.do(s, "GET", "/notifications/?limit=2")
	rec.AssertStatus(t, http.StatusOK)

	var body listBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Notifications) != 2 || !body.HasNext {
		t.Errorf("first page: got len=%d has_next=%v", len(body.Notifications), body.HasNext)
	}
}

func TestServeList_RequiresSignIn(t *testing.T) {
	f := newFixture(t)

	rec := f.do(testutil.Session{}, "GET", "/notifications/")
	rec.AssertStatus(t, http.StatusUnauthorized)
}

func TestServeUnreadCount(t *testing.T) {
	f := newFixture(t)
	s := f.env.SignIn(t, testutil.PartnerUser("u-1"))
	id := f.create(t, "u-1", "a")
	f.create(t, "u-1", "b")
	if err := f.svc.MarkAsRead(context.Background(), id); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}

	rec := f.do(s, "GET", "/notifications/unread-count")
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"count":1`)
}

func TestHandleMarkRead(t *testing.T) {
	f := newFixture(t)
	s := f.env.SignIn(t, testutil.PartnerUser("u-1"))
	id := f.create(t, "u-1", "a")

	rec := f.do(s, "POST", "/notifications/"+id+"/read")
	rec.AssertStatus(t, http.StatusNoContent)

	n, err := f.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !n.Read {
		t.Error("notification should be read")
	}
}

func TestHandleMarkRead_OtherUsersNotification(t *testing.T) {
	f := newFixture(t)
	s := f.env.SignIn(t, testutil.PartnerUser("u-1"))
	id := f.create(t, "u-2", "theirs")

	rec := f.do(s, "POST", "/notifications/"+id+"/read")
	rec.AssertStatus(t, http.StatusNotFound)

	n, _ := f.svc.Get(context.Background(), id)
	if n.Read {
		t.Error("another user's notification was marked read")
	}
}

func TestHandleMarkRead_Missing(t *testing.T) {
	f := newFixture(t)
	s := f.env.SignIn(t, testutil.PartnerUser("u-1"))

	rec := f.do(s, "POST", "/notifications/nope/read")
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestHandleMarkAllRead(t *testing.T) {
	f := newFixture(t)
	s := f.env.SignIn(t, testutil.PartnerUser("u-1"))
	f.create(t, "u-1", "a")
	f.create(t, "u-1", "b")
	other := f.create(t, "u-2", "c")

	rec := f.do(s, "POST", "/notifications/read-all")
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"marked":2`)

	n, _ := f.svc.UnreadCount(context.Background(), "u-1")
	if n != 0 {
		t.Errorf("unread after read-all: got %d, want 0", n)
	}
	if o, _ := f.svc.Get(context.Background(), other); o.Read {
		t.Error("read-all touched another user's notification")
	}

	rec = f.do(s, "POST", "/notifications/read-all")
	rec.AssertContains(t, `"marked":0`)
}

func TestHandleDelete(t *testing.T) {
	f := newFixture(t)
	s := f.env.SignIn(t, testutil.PartnerUser("u-1"))
	id := f.create(t, "u-1", "a")

	rec := f.do(s, "DELETE", "/notifications/"+id)
	rec.AssertStatus(t, http.StatusNoContent)

	if _, err := f.svc.Get(context.Background(), id); err == nil {
		t.Error("notification still exists")
	}

	// deleting again is fine
	rec = f.do(s, "DELETE", "/notifications/"+id)
	rec.AssertStatus(t, http.StatusNoContent)
}

func TestHandleDelete_OtherUsersNotificationKept(t *testing.T) {
	f := newFixture(t)
	s := f.env.SignIn(t, testutil.PartnerUser("u-1"))
	id := f.create(t, "u-2", "theirs")

	rec := f.do(s, "DELETE", "/notifications/"+id)
	rec.AssertStatus(t, http.StatusNoContent)

	if _, err := f.svc.Get(context.Background(), id); err != nil {
		t.Errorf("another user's notification was deleted: %v", err)
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| stream                                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

type sseEvent struct {
	name string
	data string
}

// readEvents parses server-sent events from body until it closes.
func readEvents(body *bufio.Reader, out chan<- sseEvent) {
	defer close(out)
	var ev sseEvent
	for {
		line, err := body.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				out <- ev
			}
			ev = sseEvent{}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func waitFor(t *testing.T, events <-chan sseEvent, name string, match func(string) bool) sseEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("stream closed before %q event", name)
			}
			if ev.name == name && (match == nil || match(ev.data)) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", name)
		}
	}
}

func TestServeStream_LiveUpdatesAndSignOut(t *testing.T) {
	f := newFixture(t)
	s := f.env.SignIn(t, testutil.PartnerUser("u-1"))
	f.create(t, "u-1", "existing")

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	req, _ := http.NewRequest("GET", srv.URL+"/notifications/stream", nil)
	for _, c := range s.Cookies {
		req.AddCookie(c)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type: got %q", ct)
	}

	events := make(chan sseEvent, 64)
	go readEvents(bufio.NewReader(resp.Body), events)

	waitFor(t, events, "unread", func(d string) bool { return d == `{"count":1}` })

	f.create(t, "u-1", "fresh")
	waitFor(t, events, "notifications", func(d string) bool { return strings.Contains(d, "fresh") })
	waitFor(t, events, "unread", func(d string) bool { return d == `{"count":2}` })

	f.env.IDs.SignOutAll(s.SID)
	ev := waitFor(t, events, "redirect", nil)
	if !strings.Contains(ev.data, "/login") {
		t.Errorf("redirect data: got %s", ev.data)
	}

	// the server ends the stream after redirecting
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream stayed open after redirect")
		}
	}
}

func TestServeStream_LocalLogoutRedirects(t *testing.T) {
	f := newFixture(t)
	s := f.env.SignIn(t, testutil.PartnerUser("u-1"))

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	req, _ := http.NewRequest("GET", srv.URL+"/notifications/stream", nil)
	for _, c := range s.Cookies {
		req.AddCookie(c)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}

	events := make(chan sseEvent, 64)
	go readEvents(bufio.NewReader(resp.Body), events)
	waitFor(t, events, "unread", func(d string) bool { return d == `{"count":0}` })

	// Sign out in another tab of the same browser session.
	rec := f.do(s, "POST", "/logout")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("logout status: got %d, want %d", rec.Code, http.StatusSeeOther)
	}

	ev := waitFor(t, events, "redirect", nil)
	if !strings.Contains(ev.data, "/login") {
		t.Errorf("redirect data: got %s", ev.data)
	}

	// A notification created after sign-out never reaches the closed stream.
	f.create(t, "u-1", "after logout")
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if strings.Contains(e.data, "after logout") {
				t.Fatal("signed-out stream delivered a new notification")
			}
		case <-deadline:
			t.Fatal("stream stayed open after logout")
		}
	}
}

func TestHandleMarkRead_BrowserFormRedirects(t *testing.T) {
	f := newFixture(t)
	s := f.env.SignIn(t, testutil.PartnerUser("u-1"))
	id := f.create(t, "u-1", "a")

	req := s.Request("POST", "/notifications/"+id+"/read", nil)
	req.Header.Set("Accept", "text/html")
	rec := testutil.NewRecorder()
	f.router.ServeHTTP(rec, req)
	rec.AssertRedirect(t, "/notifications")
}
