package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music/session"
	"github.com/keshon/jukebox/internal/storage"
)

const guild = "400000000000000001"

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func newServer(t *testing.T) (*Server, *session.Registry, *storage.Storage) {
	t.Helper()
	reg := session.NewRegistry(session.DefaultConfig(), session.Deps{Log: zerolog.Nop()})
	t.Cleanup(reg.Shutdown)
	store, err := storage.New(context.Background(), filepath.Join(t.TempDir(), "datastore.json"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return New(reg, store, zerolog.Nop()), reg, store
}

func TestHealth(t *testing.T) {
	s, reg, _ := newServer(t)
	reg.GetOrCreate(guild)

	rec := get(t, s.Handler(), "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body health
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Sessions != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestQueue(t *testing.T) {
	s, reg, _ := newServer(t)

	var view queueView
	rec := get(t, s.Handler(), "/api/guilds/"+guild+"/queue")
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.State != "idle" || view.Entries == nil || len(view.Entries) != 0 {
		t.Errorf("queue without session = %+v", view)
	}

	reg.GetOrCreate(guild)
	rec = get(t, s.Handler(), "/api/guilds/"+guild+"/queue")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	s, _, store := newServer(t)
	for _, title := range []string{"first", "second"} {
		err := store.AppendTrackToHistory(guild, storage.TrackHistoryRecord{Title: title, PlayedAt: time.Now()})
		if err != nil {
			t.Fatal(err)
		}
	}

	rec := get(t, s.Handler(), "/api/guilds/"+guild+"/history")
	var records []storage.TrackHistoryRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].Title != "second" {
		t.Errorf("history = %+v", records)
	}

	rec = get(t, s.Handler(), "/api/guilds/500000000000000001/history")
	if rec.Code != http.StatusOK || rec.Body.String() == "null\n" {
		t.Errorf("empty history = %d %q", rec.Code, rec.Body.String())
	}
}

type brokenHistory struct{}

func (brokenHistory) FetchTrackHistory(string) ([]storage.TrackHistoryRecord, error) {
	return nil, errors.New("disk full")
}

func TestHistoryError(t *testing.T) {
	reg := session.NewRegistry(session.DefaultConfig(), session.Deps{Log: zerolog.Nop()})
	s := New(reg, brokenHistory{}, zerolog.Nop())

	if rec := get(t, s.Handler(), "/api/guilds/"+guild+"/history"); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}
