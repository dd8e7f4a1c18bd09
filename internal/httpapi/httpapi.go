// Package httpapi serves a read-only status API: health, live queues and the
// recently played tracks of a guild.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music/session"
	"github.com/keshon/jukebox/internal/storage"
	"github.com/keshon/jukebox/internal/version"
)

type Sessions interface {
	Get(guildID string) (*session.Session, bool)
	Len() int
}

type History interface {
	FetchTrackHistory(guildID string) ([]storage.TrackHistoryRecord, error)
}

type Server struct {
	echo     *echo.Echo
	sessions Sessions
	history  History
	started  time.Time
	log      zerolog.Logger
}

type health struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Sessions int    `json:"sessions"`
}

type entryView struct {
	Position    int       `json:"position"`
	Title       string    `json:"title"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source"`
	RequestedBy string    `json:"requested_by,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

type queueView struct {
	GuildID   string      `json:"guild_id"`
	State     string      `json:"state"`
	ChannelID string      `json:"channel_id,omitempty"`
	Entries   []entryView `json:"entries"`
}

func New(sessions Sessions, history History, log zerolog.Logger) *Server {
	s := &Server{
		echo:     echo.New(),
		sessions: sessions,
		history:  history,
		started:  time.Now(),
		log:      log.With().Str("component", "http").Logger(),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}\n",
		Output: zerologWriter{s.log},
	}))
	s.echo.Use(middleware.Recover())

	api := s.echo.Group("/api")
	api.GET("/health", s.health)
	api.GET("/guilds/:id/queue", s.queue)
	api.GET("/guilds/:id/history", s.tracks)
	return s
}

func (s *Server) Handler() http.Handler { return s.echo }

// Run listens on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.echo.Start(addr) }()
	s.log.Info().Str("addr", addr).Msg("status API listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, health{
		Status:   "ok",
		Version:  version.Version,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Sessions: s.sessions.Len(),
	})
}

func (s *Server) queue(c echo.Context) error {
	guildID := c.Param("id")
	view := queueView{GuildID: guildID, State: session.StateIdle.String(), Entries: []entryView{}}

	sess, ok := s.sessions.Get(guildID)
	if !ok {
		return c.JSON(http.StatusOK, view)
	}
	snap := sess.Snapshot()
	view.State = snap.State.String()
	view.ChannelID = snap.ChannelID
	for i, e := range snap.Entries {
		view.Entries = append(view.Entries, entryView{
			Position:    i + 1,
			Title:       e.DisplayTitle(),
			URL:         e.URL,
			Source:      e.Kind.String(),
			RequestedBy: e.RequestedBy,
			EnqueuedAt:  e.EnqueuedAt,
		})
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) tracks(c echo.Context) error {
	if s.history == nil {
		return echo.NewHTTPError(http.StatusNotFound, "history is not recorded")
	}
	records, err := s.history.FetchTrackHistory(c.Param("id"))
	if err != nil {
		s.log.Error().Err(err).Str("guild", c.Param("id")).Msg("failed to read track history")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read history")
	}
	if records == nil {
		records = []storage.TrackHistoryRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

// zerologWriter feeds echo's access log lines into zerolog.
type zerologWriter struct{ log zerolog.Logger }

func (w zerologWriter) Write(p []byte) (int, error) {
	w.log.Debug().Msg(string(trimNewline(p)))
	return len(p), nil
}

func trimNewline(p []byte) []byte {
	if n := len(p); n > 0 && p[n-1] == '\n' {
		return p[:n-1]
	}
	return p
}
