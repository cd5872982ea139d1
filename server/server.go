package server

import (
	"crypto/tls"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/negroni"
	"golang.org/x/crypto/acme/autocert"

	"github.com/athenadocs/athena/handlers"
)

type Config struct {
	Domains      []string
	CertCacheDir string
	HTTPPort     string
	HTTPSPort    string
	IdleTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Dependencies struct {
	Documents *handlers.DocumentHandler
	Search    *handlers.SearchHandler
	Chat      *handlers.ChatHandler
	Health    *handlers.HealthHandler
	Logger    *slog.Logger
}

func SetupRoutes(deps Dependencies) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/documents/upload", deps.Documents.Upload).Methods("POST")
	r.HandleFunc("/documents", deps.Documents.List).Methods("GET")
	r.HandleFunc("/documents", deps.Documents.DeleteAll).Methods("DELETE")
	r.Handle("/documents/search", deps.Search).Methods("GET")
	r.HandleFunc("/documents/chat", deps.Chat.Chat).Methods("POST")

	r.HandleFunc("/documents/{id}", deps.Documents.Get).Methods("GET")
	r.HandleFunc("/documents/{id}", deps.Documents.Update).Methods("PUT", "PATCH")
	r.HandleFunc("/documents/{id}", deps.Documents.Delete).Methods("DELETE")
	r.HandleFunc("/documents/{id}/chunks", deps.Documents.Chunks).Methods("GET")
	r.HandleFunc("/documents/{id}/markdown", deps.Documents.Markdown).Methods("GET")
	r.HandleFunc("/documents/{id}/file", deps.Documents.File).Methods("GET")
	r.HandleFunc("/documents/{id}/ocr", deps.Documents.OCRFile).Methods("GET")
	r.HandleFunc("/documents/{id}/retry", deps.Documents.Retry).Methods("POST")
	r.HandleFunc("/documents/{id}/chat", deps.Chat.ChatWithDocument).Methods("POST")

	r.Handle("/health", deps.Health).Methods("GET")

	return r
}

func SetupNegroni(r *mux.Router) *negroni.Negroni {
	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.Use(negroni.NewLogger())
	n.UseHandler(r)
	return n
}

// ServeProduction runs the HTTPS server with autocert-managed certificates
// and an HTTP listener answering ACME challenges and redirecting the rest.
func ServeProduction(n *negroni.Negroni, cfg Config) {
	autocertManager := autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.Domains...),
		Cache:      autocert.DirCache(cfg.CertCacheDir),
	}

	go func() {
		srv := &http.Server{
			Addr:         ":" + cfg.HTTPPort,
			Handler:      autocertManager.HTTPHandler(nil),
			IdleTimeout:  cfg.IdleTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}
		log.Fatal(srv.ListenAndServe())
	}()

	tlsConfig := &tls.Config{
		GetCertificate:   autocertManager.GetCertificate,
		CurvePreferences: []tls.CurveID{tls.X25519, tls.CurveP256},
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPSPort,
		Handler:      n,
		TLSConfig:    tlsConfig,
		IdleTimeout:  cfg.IdleTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	log.Fatal(srv.ListenAndServeTLS("", ""))
}

// ServeDevelopment runs a plain HTTP server.
func ServeDevelopment(s *http.Server) {
	log.Fatal(s.ListenAndServe())
}
