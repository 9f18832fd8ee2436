package main

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dbchat/dbchat/internal/chat"
	"github.com/dbchat/dbchat/internal/config"
	"github.com/dbchat/dbchat/internal/logging"
	"github.com/dbchat/dbchat/internal/nlsql"
	"github.com/dbchat/dbchat/internal/schema"
)

const sessionCookie = "dbchat_session"

type app struct {
	cfg      config.Config
	db       *sql.DB
	tmpl     *template.Template
	schema   *schema.Cache
	sessions *chat.Manager
	log      zerolog.Logger
}

func main() {
	_ = godotenv.Load() // loads .env if present, silently ignores if not

	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.Configure(logging.Options{
		Name:    "dbchat",
		File:    cfg.Logging.File,
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
	})
	if err != nil {
		log.Fatalf("configure logging: %v", err)
	}

	db, err := sql.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	schemaCache := schema.NewCache(logger.With().Str("component", "schema").Logger())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := schemaCache.Refresh(ctx, db); err != nil {
		logger.Warn().Err(err).Msg("schema load failed; continuing with empty context")
	}
	cancel()

	provider, err := nlsql.NewProvider(nlsql.ProviderConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialize LLM provider")
	}
	logger.Info().Str("provider", provider.Name()).Msg("LLM provider initialized")

	chain := nlsql.NewChain(
		provider, db, schemaCache,
		logger.With().Str("component", "nlsql").Logger(),
		nlsql.WithQueryTimeout(cfg.DB.QueryTimeout),
		nlsql.WithMaxTokens(cfg.LLM.MaxTokens),
	)

	sessionLog := logger.With().Str("component", "chat").Logger()
	sessions := chat.NewManager(func() *chat.Session {
		return chat.NewSession(chain, cfg.Chat.HistoryLimit, sessionLog)
	})

	app := &app{
		cfg:      cfg,
		db:       db,
		tmpl:     template.Must(template.New("index").Parse(indexHTML)),
		schema:   schemaCache,
		sessions: sessions,
		log:      logger,
	}

	r := chi.NewRouter()
	r.Use(metricsMiddleware)
	r.Get("/", app.handleIndex)
	r.Post("/chat", app.handleChat)
	r.Post("/chat/clear", app.handleChatClear)
	r.Get("/chat/history", app.handleChatHistory)
	r.Get("/schema", app.handleSchema)
	r.Post("/schema/refresh", app.handleSchemaRefresh)
	r.Get("/healthz", app.handleHealthz)
	r.Method("GET", "/metrics", promhttp.Handler())

	logger.Info().Str("addr", cfg.HTTP.Addr).Str("driver", cfg.DB.Driver).Msg("listening")
	if err := http.ListenAndServe(cfg.HTTP.Addr, r); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

// session resolves the caller's conversation session from the cookie,
// minting a new session ID when none is present.
func (a *app) session(w http.ResponseWriter, r *http.Request) *chat.Session {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return a.sessions.Get(c.Value)
	}
	id := a.sessions.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return a.sessions.Get(id)
}

func (a *app) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := a.tmpl.Execute(w, nil); err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Answer string `json:"answer,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (a *app) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		chatOutcome("rejected")
		respondJSON(w, http.StatusBadRequest, chatResponse{Error: "invalid JSON body"})
		return
	}

	session := a.session(w, r)

	start := time.Now()
	answer, err := session.Submit(r.Context(), req.Question)
	switch {
	case errors.Is(err, chat.ErrEmptyQuestion):
		chatOutcome("rejected")
		respondJSON(w, http.StatusBadRequest, chatResponse{Error: "question is required"})
		return
	case errors.Is(err, chat.ErrBusy):
		chatOutcome("rejected")
		respondJSON(w, http.StatusConflict, chatResponse{Error: "still working on your previous question"})
		return
	case err != nil:
		// Per-request recoverable: the generic message is already recorded
		// as a turn, so the chat flow continues with a 200.
		chatOutcome("failed")
		chatDuration(time.Since(start))
		respondJSON(w, http.StatusOK, chatResponse{Answer: answer})
		return
	}

	chatOutcome("answered")
	chatDuration(time.Since(start))
	respondJSON(w, http.StatusOK, chatResponse{Answer: answer})
}

func (a *app) handleChatClear(w http.ResponseWriter, r *http.Request) {
	a.session(w, r).Clear()
	respondJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

type historyResponse struct {
	Turns []chat.Turn `json:"turns"`
}

func (a *app) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, historyResponse{Turns: a.session(w, r).Turns()})
}

type schemaResponse struct {
	Tables      []schema.Table `json:"tables"`
	TableCount  int            `json:"tableCount"`
	LastRefresh string         `json:"lastRefresh"`
}

func (a *app) handleSchema(w http.ResponseWriter, r *http.Request) {
	snap := a.schema.Snapshot()
	respondJSON(w, http.StatusOK, schemaResponse{
		Tables:      snap.Tables,
		TableCount:  snap.TableCount(),
		LastRefresh: snap.Taken.Format(time.RFC3339),
	})
}

func (a *app) handleSchemaRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := a.schema.Refresh(ctx, a.db); err != nil {
		a.log.Error().Err(err).Msg("schema refresh failed")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "schema refresh failed"})
		return
	}

	snap := a.schema.Snapshot()
	respondJSON(w, http.StatusOK, schemaResponse{
		Tables:      snap.Tables,
		TableCount:  snap.TableCount(),
		LastRefresh: snap.Taken.Format(time.RFC3339),
	})
}

func (a *app) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := a.db.PingContext(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db unreachable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

//go:embed templates/index.html
var indexHTML string
