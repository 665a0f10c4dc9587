package discordhttp

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const xRequestIDHeader = "X-Request-ID"

type httpError struct {
	Error string `json:"error"`
}

// statusResponse is the GET / body: the bot's own user plus the last
// time the client finished startup.
type statusResponse struct {
	Me         statusUser   `json:"@me"`
	LastReboot statusReboot `json:"last_reboot"`
}

type statusUser struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Discriminator string    `json:"discriminator"`
	CreatedAt     time.Time `json:"created_at"`
}

type statusReboot struct {
	Datetime  time.Time `json:"datetime"`
	Timedelta string    `json:"timedelta"`
	Unix      int64     `json:"unix"`
}

// interactionServer hosts the interaction endpoint: a single POST route
// verified against the application's public key, an optional GET status
// route, and an optional /metrics route.
type interactionServer struct {
	config     *ServerConfig
	httpServer *http.Server
	engine     *gin.Engine
	logger     *slog.Logger
}

// newInteractionServer builds the gin engine and http.Server for the
// client. Signature verification only guards the POST route; the status
// and metrics routes are unauthenticated.
func newInteractionServer(
	c *Client,
	publicKey ed25519.PublicKey,
	registry *prometheus.Registry,
) (*interactionServer, error) {
	config := c.config.Server
	logger := slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "interaction_server")

	if c.config.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	srv := &interactionServer{config: config, engine: r, logger: logger}

	httpServer := &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	if config.SSL.Cert != "" || config.SSL.Key != "" {
		tlsCfg, err := tlsConfig(
			config.SSL.Cert,
			config.SSL.Key,
			config.SSL.TLSMinVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("error loading SSL certs: %w", err)
		}
		httpServer.TLSConfig = tlsCfg
	}
	srv.httpServer = httpServer

	if !c.config.Development {
		r.Use(gin.Recovery())
	}
	r.Use(requestIDMiddleware(), ginLoggingMiddleware(logger))
	if len(config.CORS.AllowOrigins) > 0 {
		r.Use(cors.New(config.CORS.GINConfig()))
	}

	r.POST(
		"/",
		signatureMiddleware(publicKey, c.metrics),
		c.webhookReceiveHandler,
	)

	if c.config.DisableDefaultGetPath {
		r.GET(
			"/", func(g *gin.Context) {
				g.JSON(
					http.StatusMethodNotAllowed,
					httpError{Error: "method not allowed"},
				)
			},
		)
	} else {
		r.GET("/", c.statusHandler)
	}

	if registry != nil {
		r.GET(
			"/metrics", gin.WrapH(
				promhttp.HandlerFor(
					registry,
					promhttp.HandlerOpts{Registry: registry},
				),
			),
		)
	}

	return srv, nil
}

// serve listens per the configured network/address and blocks until the
// server closes. A unix-socket listen path is removed first so restarts
// don't fail on a stale socket.
func (s *interactionServer) serve(_ context.Context) error {
	if s.config.ListenNetwork == "unix" {
		if err := os.Remove(s.config.Listen); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("error removing stale socket: %w", err)
			}
		}
	}
	listener, err := net.Listen(s.config.ListenNetwork, s.config.Listen)
	if err != nil {
		return fmt.Errorf(
			"error listening on %s %s: %w",
			s.config.ListenNetwork, s.config.Listen, err,
		)
	}

	if s.httpServer.TLSConfig == nil {
		s.logger.Warn("starting server without TLS")
		return s.httpServer.Serve(listener)
	}
	return s.httpServer.ServeTLS(listener, "", "")
}

func (s *interactionServer) shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// parsePublicKey decodes the hex-encoded ed25519 verification key from
// the Discord developer portal.
func parsePublicKey(hexKey string) (ed25519.PublicKey, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("error decoding public key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf(
			"invalid public key size: %d (expected %d)",
			len(key), ed25519.PublicKeySize,
		)
	}
	return ed25519.PublicKey(key), nil
}

// requestIDMiddleware assigns a unique request ID to each incoming
// request, set in the Gin context and echoed in the response headers.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

// ginContextLogger returns the slog.Logger from the given gin context,
// or, if it doesn't exist, creates a logger with request details included,
// and sets the logger in the context so the next call to ginContextLogger
// will return the new logger.
func ginContextLogger(c *gin.Context, base *slog.Logger) *slog.Logger {
	existing, ok := c.Get(string(loggerContextKey))
	if ok {
		if requestLogger, isLogger := existing.(*slog.Logger); isLogger {
			return requestLogger
		}
	}
	if base == nil {
		base = slog.Default()
	}
	requestID, _ := c.Get(xRequestIDHeader)
	path := c.Request.URL.Path
	raw := c.Request.URL.RawQuery
	if raw != "" {
		path = path + "?" + raw
	}

	requestLogger := base.With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", path,
			"remote_addr", c.Request.RemoteAddr,
			"remote_ip", c.RemoteIP(),
			"user_agent", c.Request.UserAgent(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

// ginLoggingMiddleware logs each request with its duration and response
// status, including any gin-collected errors.
func ginLoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := ginContextLogger(c, logger)
		c.Next()
		latency := time.Since(start)

		var errs []error
		for _, e := range c.Errors.ByType(gin.ErrorTypePrivate) {
			errs = append(errs, *e)
		}
		if len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf(
					"%s %s finished with errors",
					c.Request.Method,
					c.Request.URL,
				),
				"duration", latency,
				"errors", errs,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
			return
		}
		requestLogger.Info(
			fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL),
			"duration", latency,
			slog.Group(
				"response",
				"status_code", c.Writer.Status(),
				"body_size", c.Writer.Size(),
			),
		)
	}
}

// signatureMiddleware rejects POST requests whose ed25519 signature
// doesn't verify against the application's public key.
// See: https://discord.com/developers/docs/interactions/overview#setting-up-an-endpoint-validating-security-request-headers
//
//nolint:lll // can't split link
func signatureMiddleware(
	publicKey ed25519.PublicKey,
	metrics *interactionMetrics,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !verifyRequest(c.Request, publicKey) {
			ginContextLogger(c, nil).WarnContext(c, "invalid signature")
			metrics.observeSignatureFailure()
			c.AbortWithStatusJSON(
				http.StatusUnauthorized,
				httpError{Error: "invalid signature"},
			)
			return
		}
		c.Next()
	}
}

// verifyRequest checks the request's signature and timestamp headers
// against the public key. The signed message is the timestamp
// concatenated with the raw body; the body is replaced afterward so
// downstream handlers can still read it.
func verifyRequest(r *http.Request, key ed25519.PublicKey) bool {
	var msg bytes.Buffer

	signature := r.Header.Get("X-Signature-Ed25519")
	if signature == "" {
		return false
	}

	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	if len(sig) != ed25519.SignatureSize || sig[63]&224 != 0 {
		return false
	}

	timestamp := r.Header.Get("X-Signature-Timestamp")
	if timestamp == "" {
		return false
	}

	msg.WriteString(timestamp)

	defer func() {
		_ = r.Body.Close()
	}()
	var body bytes.Buffer

	defer func() {
		r.Body = io.NopCloser(&body)
	}()

	_, err = io.Copy(&msg, io.TeeReader(r.Body, &body))
	if err != nil {
		return false
	}

	return ed25519.Verify(key, msg.Bytes(), sig)
}
