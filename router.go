package livetiming

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-http-utils/etag"
	"github.com/sirupsen/logrus"
)

// MaxLogSizeBytes is the amount of recent log output kept in memory for /api/logs.
const MaxLogSizeBytes = 1e6

var (
	logOutput = newLogBuffer(MaxLogSizeBytes)

	logMultiWriter io.Writer = os.Stdout

	Debug = os.Getenv("DEBUG") == "true"
)

func InitLogging(logFile string) {
	if !Debug {
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetLevel(logrus.DebugLevel)
	}

	logMultiWriter = io.MultiWriter(os.Stdout, logOutput)

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)

		if err == nil {
			logMultiWriter = io.MultiWriter(os.Stdout, logOutput, f)
		} else {
			logrus.WithError(err).Errorf("Could not create live timing log file")
		}
	}

	logrus.SetOutput(logMultiWriter)
}

func Router(fs http.FileSystem, dashboardHandler *DashboardHandler, healthCheck *HealthCheck) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(panicHandler)

	r.Handle("/metrics", prometheusMonitoringHandler())

	if Debug {
		r.Mount("/debug/", middleware.Profiler())
	}

	r.Get("/", etag.Handler(serveIndex(fs), false).ServeHTTP)
	r.Get("/api/dashboard", dashboardHandler.websocket)
	r.Get("/api/logs", logsAPI)
	r.Handle("/healthcheck.json", healthCheck)

	FileServer(r, "/static", fs)

	return prometheusMonitoringWrapper(r)
}

func serveIndex(fs http.FileSystem) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fs.Open("index.html")

		if err != nil {
			logrus.WithError(err).Error("could not open dashboard page")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		defer f.Close()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		if _, err := io.Copy(w, f); err != nil {
			logrus.WithError(err).Debug("could not write dashboard page")
		}
	}
}

func logsAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	_, _ = io.WriteString(w, logOutput.String())
}

func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit URL parameters.")
	}

	fs := etag.Handler(http.StripPrefix(path, http.FileServer(root)), false)

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", http.StatusMovedPermanently).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, fs.ServeHTTP)
}

func newLogBuffer(maxSize int) *logBuffer {
	return &logBuffer{
		size: maxSize,
		buf:  new(bytes.Buffer),
	}
}

// logBuffer keeps roughly the last size bytes written to it.
type logBuffer struct {
	buf  *bytes.Buffer
	size int

	mutex sync.Mutex
}

func (lb *logBuffer) Write(p []byte) (n int, err error) {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	b := lb.buf.Bytes()

	if len(b) > lb.size {
		lb.buf = bytes.NewBuffer(b[len(b)-lb.size:])
	}

	return lb.buf.Write(p)
}

func (lb *logBuffer) String() string {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	return lb.buf.String()
}
