package bbdc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
)

const (
	fakeBearer      = "Bearer abc.def"
	fakeCourseToken = "course-token-3c"
)

// fakeSite mimics the back-service endpoints the bot uses.
type fakeSite struct {
	t *testing.T

	mu        sync.Mutex
	calls     map[string]int
	bodies    map[string][]map[string]any
	headers   map[string][]http.Header
	listing   string
	booked    string
	listCode  int
	bookCode  int
	loginCode int
}

func newFakeSite(t *testing.T) (*fakeSite, *httptest.Server) {
	t.Helper()
	f := &fakeSite{
		t:         t,
		calls:     make(map[string]int),
		bodies:    make(map[string][]map[string]any),
		headers:   make(map[string][]http.Header),
		listCode:  http.StatusOK,
		bookCode:  http.StatusOK,
		loginCode: http.StatusOK,
		listing:   `{"code":0,"success":true,"data":{"releasedSlotListGroupByDay":null}}`,
		booked:    `{"code":0,"success":true,"data":{"bookedPracticalSlotList":[]}}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.record("login", r)
		if f.loginCode != http.StatusOK {
			w.WriteHeader(f.loginCode)
			_, _ = io.WriteString(w, `{"code":401,"success":false,"message":"Invalid credentials","data":null}`)
			return
		}
		_, _ = io.WriteString(w, `{"code":0,"success":true,"data":{"tokenContent":"`+fakeBearer+`"}}`)
	})
	mux.HandleFunc("/api/account/listAccountCourseType", func(w http.ResponseWriter, r *http.Request) {
		f.record("courses", r)
		_, _ = io.WriteString(w, `{"code":0,"success":true,"data":{"activeCourseList":[`+
			`{"courseType":"2B","authToken":"course-token-2b"},`+
			`{"courseType":"3C","authToken":"`+fakeCourseToken+`"}]}}`)
	})
	mux.HandleFunc("/api/booking/c3practical/listC3PracticalSlotReleased", func(w http.ResponseWriter, r *http.Request) {
		f.record("list", r)
		f.mu.Lock()
		code, body := f.listCode, f.listing
		f.mu.Unlock()
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("/api/booking/c3practical/callBookC3PracticalSlot", func(w http.ResponseWriter, r *http.Request) {
		f.record("book", r)
		f.mu.Lock()
		code, body := f.bookCode, f.booked
		f.mu.Unlock()
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeSite) record(name string, r *http.Request) {
	var body map[string]any
	raw, _ := io.ReadAll(r.Body)
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			f.t.Errorf("decode %s body: %v", name, err)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	f.bodies[name] = append(f.bodies[name], body)
	f.headers[name] = append(f.headers[name], r.Header.Clone())
}

func (f *fakeSite) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeSite) lastBody(name string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.bodies[name]
	if len(b) == 0 {
		return nil
	}
	return b[len(b)-1]
}

func (f *fakeSite) lastHeader(name string) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.headers[name]
	if len(h) == 0 {
		return nil
	}
	return h[len(h)-1]
}

func (f *fakeSite) setListing(code int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCode, f.listing = code, body
}

func (f *fakeSite) setBooking(code int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookCode, f.booked = code, body
}

func testClient(srv *httptest.Server, archiver *Archiver) *Client {
	return New(Options{
		BaseURL:        srv.URL + "/api",
		Timeout:        2 * time.Second,
		UserAgent:      "bbdc-slot-bot/test",
		MaxRetries:     1,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}, nil, archiver, zap.NewNop())
}

func testUser(prefs ...booking.Slot) *booking.User {
	return booking.NewUser("S1234567A", "secret", "1001", prefs)
}
