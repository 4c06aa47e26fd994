package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/emrgen/linksync/internal/config"
	"github.com/emrgen/linksync/internal/jobs"
	"github.com/emrgen/linksync/internal/store"
	"github.com/gobuffalo/packr"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Server is the reference backend of the link endpoints.
type Server struct {
	cfg *config.Config
}

// NewServer creates a new server
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Start starts the server and blocks until it receives a termination signal.
func (s *Server) Start() error {
	return Start(s.cfg)
}

// Routes wraps the API handler with the middleware chain and mounts the docs.
func Routes(s store.Store, token string) http.Handler {
	api := RequestTimeMiddleware(CorrelationMiddleware(AuthTokenMiddleware(token)(NewHandler(s))))

	mux := http.NewServeMux()
	openapiDocs := packr.NewBox("../../docs/v1")
	docsPath := "/v1/docs/"
	mux.Handle(docsPath, http.StripPrefix(docsPath, http.FileServer(openapiDocs)))
	mux.Handle(APIPrefix+"/", api)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // All origins are allowed
		AllowedMethods:   []string{"GET", "POST", "DELETE", "PUT"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", correlationHeader},
		AllowCredentials: true,
	})

	return c.Handler(mux)
}

// Start runs the http server and the migration jobs.
func Start(cfg *config.Config) error {
	db, err := store.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return err
	}

	linkStore := store.NewGormStore(db)
	if err := linkStore.Migrate(); err != nil {
		return err
	}

	httpPort := ":" + strconv.Itoa(cfg.Server.HTTPPort)
	rl, err := net.Listen("tcp", httpPort)
	if err != nil {
		return err
	}

	restServer := &http.Server{
		Addr:              httpPort,
		Handler:           Routes(linkStore, cfg.Server.Token),
		ReadHeaderTimeout: 10 * time.Second,
	}

	executor := jobs.NewTaskExecutor(nil, []jobs.CronJob{
		jobs.NewMigrationRunner(linkStore, "@every 1s", 0),
		jobs.NewTaskReaper(linkStore, "@every 1m", cfg.Migration.StaleAfter),
	})
	if err := executor.Run(); err != nil {
		return err
	}
	defer executor.Stop()

	// make sure to wait for the server to stop before exiting
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logrus.Info("starting rest server on: ", httpPort)
		logrus.Info("click on the following link to view the API documentation: http://localhost", httpPort, "/v1/docs/")
		if err := restServer.Serve(rl); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("error starting rest server: %v", err)
			}
		}
		logrus.Infof("rest server stopped")
	}()

	logrus.Infof("Press Ctrl+C to stop the server")

	// listen for interrupt signal to gracefully shut down the server
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT, unix.SIGTSTP)
	<-sigs
	// clean Ctrl+C output
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := restServer.Shutdown(ctx); err != nil {
		logrus.Errorf("error stopping rest server: %v", err)
	}

	wg.Wait()

	return nil
}
