package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"purify/internal/dbclient"
	"purify/internal/domain"
	"purify/internal/etl"
	"purify/internal/service"
)

// CompanyReader is the read side of the relay.
type CompanyReader interface {
	ReadDataset(ctx context.Context, connID, query string) (etl.Dataset, error)
}

// JobRunner is the narrow relay-job contract required by the job routes.
type JobRunner interface {
	CreateJob(input service.CreateRelayJobInput) (*etl.RelayJob, error)
	GetJob(id string) (*etl.RelayJob, error)
	ListJobs() ([]etl.RelayJob, error)
	UpdateJob(id string, input service.CreateRelayJobInput) (*etl.RelayJob, error)
	DeleteJob(id string) error
	RunJob(ctx context.Context, id string) (*etl.RunResult, error)
	ListRunLogs(jobID string) ([]etl.RunLog, error)
	ListSources() []etl.SourceSpec
}

// ConnectionLister exposes configured connections without their secrets.
type ConnectionLister interface {
	ListConnections() ([]domain.DatabaseConnection, error)
	Introspect(ctx context.Context, connectionID string) (*dbclient.SchemaInfo, error)
}

// Config addresses the read and write sides.
type Config struct {
	Addr            string
	PivotColumn     string
	ReadConnection  string
	ReadQuery       string
	WriteConnection string
	WriteCollection string
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Reader      CompanyReader
	Writer      etl.DocumentStore
	Cleaner     etl.NameCleaner
	Jobs        JobRunner
	Connections ConnectionLister
}

// Server serves the relay's read and write routes plus the job API.
type Server struct {
	cfg       Config
	deps      Deps
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.WriteCollection == "" {
		cfg.WriteCollection = "companies"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/companies", s.handleReadCompanies)
	r.POST("/companies", s.handleWriteCompanies)

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/names/clean", s.handleCleanNames)
	api.POST("/reshape", s.handleReshape)
	api.GET("/sources", s.handleSources)
	api.GET("/connections", s.handleConnections)
	api.GET("/connections/:id/schema", s.handleConnectionSchema)

	jobs := api.Group("/jobs")
	jobs.GET("", s.handleListJobs)
	jobs.POST("", s.handleCreateJob)
	jobs.GET("/:id", s.handleGetJob)
	jobs.PUT("/:id", s.handleUpdateJob)
	jobs.DELETE("/:id", s.handleDeleteJob)
	jobs.POST("/:id/run", s.handleRunJob)
	jobs.GET("/:id/runs", s.handleListRuns)

	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      6 * time.Minute,
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.cfg.Addr }

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"uptime":           time.Since(s.startTime).String(),
		"pivot_column":     s.cfg.PivotColumn,
		"read_connection":  s.cfg.ReadConnection,
		"write_connection": s.cfg.WriteConnection,
		"write_collection": s.cfg.WriteCollection,
	})
}

func errorBody(err error) gin.H {
	return gin.H{"success": false, "error": err.Error()}
}
