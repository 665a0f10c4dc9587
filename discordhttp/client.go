package discordhttp

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// interaction log outcomes
const (
	outcomeOK          = "ok"
	outcomeCheckFailed = "check_failed"
	outcomeError       = "error"
	outcomeNotFound    = "not_found"
)

// Client receives Discord interactions over HTTP instead of the gateway.
// Register commands and component handlers, then call Run: the client
// hosts the interactions endpoint, verifies request signatures against
// the application's public key, routes each interaction to its handler,
// and writes the handler's response as the HTTP reply.
type Client struct {
	config *Config
	logger *slog.Logger

	session    SessionHandler
	publicKey  ed25519.PublicKey
	commands   *commandRegistry
	components *componentRegistry
	events     *eventHandlers
	tasks      *taskRunner

	server   *interactionServer
	db       *database
	registry *prometheus.Registry
	metrics  *interactionMetrics

	me         atomic.Pointer[discordgo.User]
	ready      atomic.Bool
	lastReboot atomic.Pointer[time.Time]

	runMu      sync.Mutex
	signalStop chan struct{}

	// pendingWG tracks async work spawned per-interaction (storage
	// writes), so shutdown can wait for it.
	pendingWG sync.WaitGroup
}

// New creates a Client from the given config. Nil config sections
// (Server, Storage, Metrics) are filled from [DefaultConfig]; scalar
// fields are not defaulted, so start from DefaultConfig and override
// what you need.
func New(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("nil config")
	}
	defaults := DefaultConfig()
	if config.Server == nil {
		config.Server = defaults.Server
	}
	if config.Storage == nil {
		config.Storage = defaults.Storage
	}
	if config.Metrics == nil {
		config.Metrics = defaults.Metrics
	}
	if err := structValidator.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	publicKey, err := parsePublicKey(config.PublicKey)
	if err != nil {
		return nil, err
	}

	if config.LogLevel == nil {
		config.LogLevel = &slog.LevelVar{}
		config.LogLevel.Set(DefaultLogLevel)
	}
	logger := newTintLogger(config.LogLevel).With(loggerNameKey, "discordhttp")

	session, err := newSession(config, logger.With(loggerNameKey, "discordgo"))
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:     config,
		logger:     logger,
		session:    session,
		publicKey:  publicKey,
		commands:   newCommandRegistry(),
		components: newComponentRegistry(),
		signalStop: make(chan struct{}, 1),
	}
	c.events = &eventHandlers{logger: logger.With(loggerNameKey, "events")}
	c.tasks = newTaskRunner(logger, c.events.dispatchEventError)

	if config.Metrics != nil && config.Metrics.Enabled {
		c.registry = prometheus.NewRegistry()
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		c.metrics = newInteractionMetrics(c.registry)
	}

	return c, nil
}

// AddCommand registers a command (or command group) for dispatch.
// Must be called before Run when SyncCommandsOnStart is set, or the
// command won't be part of the synced set.
func (c *Client) AddCommand(cmd *Command) error {
	return c.commands.add(cmd)
}

// RemoveCommand deregisters a command by name, reporting whether it was
// registered. Note this does not remove the command from Discord; call
// SyncCommands for that.
func (c *Client) RemoveCommand(name string) bool {
	return c.commands.remove(name)
}

// Command returns the registered command with the given name.
func (c *Client) Command(name string) (*Command, bool) {
	return c.commands.get(name)
}

// Component registers a handler for message component and modal submit
// interactions with exactly this custom ID.
func (c *Client) Component(customID string, handler CommandHandler) error {
	return c.components.add(customID, handler)
}

// ComponentRegex registers a handler for component and modal custom IDs
// matching the given pattern. Exact-match handlers take precedence.
func (c *Client) ComponentRegex(pattern string, handler CommandHandler) error {
	return c.components.addRegex(pattern, handler)
}

// AddTask schedules a background task with a cron spec ("*/5 * * * *",
// "@every 30s"). Tasks start with Run and stop with the client.
func (c *Client) AddTask(name string, spec string, fn TaskFunc) error {
	return c.tasks.add(name, spec, fn)
}

// AddIntervalTask schedules fn to run on a fixed interval.
func (c *Client) AddIntervalTask(
	name string,
	interval time.Duration,
	fn TaskFunc,
) error {
	return c.tasks.addInterval(name, interval, fn)
}

// OnReady registers a listener invoked once startup completes.
func (c *Client) OnReady(handler ReadyHandler) {
	c.events.ready = append(c.events.ready, handler)
}

// OnPing registers a listener for endpoint-verification pings.
func (c *Client) OnPing(handler PingHandler) {
	c.events.ping = append(c.events.ping, handler)
}

// OnRawInteraction registers a listener that sees every verified
// interaction before it's routed.
func (c *Client) OnRawInteraction(handler RawInteractionHandler) {
	c.events.rawInteraction = append(c.events.rawInteraction, handler)
}

// OnEventError registers a listener for listener panics and background
// failures.
func (c *Client) OnEventError(handler EventErrorHandler) {
	c.events.eventError = append(c.events.eventError, handler)
}

// OnInteractionError registers a listener for interaction dispatch
// failures. Without one, failures fall through to the event-error
// listeners.
func (c *Client) OnInteractionError(handler InteractionErrorHandler) {
	c.events.interactionError = append(c.events.interactionError, handler)
}

// User returns the bot's own user, fetched at startup. Nil before ready.
func (c *Client) User() *discordgo.User {
	return c.me.Load()
}

// IsReady reports whether startup has completed.
func (c *Client) IsReady() bool {
	return c.ready.Load()
}

// SyncCommands overwrites the application's registered commands with the
// local registry, targeting the configured guild (or global when unset).
func (c *Client) SyncCommands(ctx context.Context) error {
	commands := c.commands.applicationCommands()
	synced, err := c.session.ApplicationCommandBulkOverwrite(
		c.config.ApplicationID,
		c.config.GuildID,
		commands,
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("error syncing commands: %w", err)
	}
	c.logger.InfoContext(
		ctx,
		"synced commands",
		"count", len(synced),
		"guild_id", c.config.GuildID,
	)
	return nil
}

// Run starts the client and blocks until ctx is canceled or Stop is
// called, then shuts down gracefully. The HTTP server starts listening
// immediately, but POST requests other than pings are rejected until
// initialization (bot user fetch, optional storage and command sync)
// completes within StartupTimeout.
func (c *Client) Run(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	logger := c.logger
	ctx = WithLogger(ctx, logger)
	logger.LogAttrs(
		ctx,
		slog.LevelInfo,
		"starting",
		slog.Any("config", c.config),
	)

	server, err := newInteractionServer(c, c.publicKey, c.registry)
	if err != nil {
		return err
	}
	c.server = server

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-c.signalStop:
			logger.Warn("got stop signal, canceling")
			cancel()
		case <-runCtx.Done():
		}
	}()

	eg, egCtx := errgroup.WithContext(runCtx)

	eg.Go(
		func() error {
			serveErr := server.serve(egCtx)
			if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				return serveErr
			}
			return nil
		},
	)

	eg.Go(
		func() error {
			startCtx, startCancel := context.WithTimeout(
				egCtx,
				c.config.StartupTimeout,
			)
			defer startCancel()
			if initErr := c.initRun(startCtx); initErr != nil {
				// the listener is already up; drop it before bailing
				stopCtx, stopCancel := context.WithTimeout(
					context.WithoutCancel(egCtx),
					c.config.ShutdownTimeout,
				)
				defer stopCancel()
				if e := server.shutdown(stopCtx); e != nil {
					logger.Error("error shutting down server", tint.Err(e))
				}
				return initErr
			}

			now := time.Now()
			c.lastReboot.Store(&now)
			c.ready.Store(true)
			c.tasks.start(egCtx)
			c.events.dispatchReady(egCtx, c.me.Load())
			logger.InfoContext(egCtx, "ready")

			<-egCtx.Done()
			return c.shutdown(context.WithoutCancel(egCtx))
		},
	)

	return eg.Wait()
}

// Stop triggers a graceful shutdown of a running client.
func (c *Client) Stop() {
	select {
	case c.signalStop <- struct{}{}:
	default:
	}
}

// initRun performs startup work: opens storage when enabled, fetches the
// bot's own user, and optionally syncs commands.
func (c *Client) initRun(ctx context.Context) error {
	if c.config.Storage != nil && c.config.Storage.Enabled {
		db, err := openDatabase(ctx, c.config.Storage, c.logger)
		if err != nil {
			return err
		}
		c.db = db
	}

	me, err := c.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error fetching bot user: %w", err)
	}
	c.me.Store(me)
	c.logger.InfoContext(
		ctx,
		"identified bot user",
		"user_id", me.ID,
		"username", me.Username,
	)
	if c.db != nil {
		if err = c.db.saveBotUser(ctx, me); err != nil {
			c.logger.WarnContext(ctx, "error saving bot user", tint.Err(err))
		}
	}

	if c.config.SyncCommandsOnStart {
		if err = c.SyncCommands(ctx); err != nil {
			return err
		}
	}
	return nil
}

// shutdown stops background tasks, drains the HTTP server, waits for
// pending storage writes, and closes the database.
func (c *Client) shutdown(ctx context.Context) error {
	c.ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(ctx, c.config.ShutdownTimeout)
	defer cancel()

	c.tasks.stop()

	var errs []error
	if err := c.server.shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("error shutting down server: %w", err))
	}

	done := make(chan struct{})
	go func() {
		c.pendingWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		c.logger.Warn("timed out waiting for pending writes")
	}

	if c.db != nil {
		if err := c.db.close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing database: %w", err))
		}
	}
	c.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// statusHandler serves GET / - 503 until startup completes, then the bot
// user (with its snowflake creation time) and the last reboot as a
// timestamp, uptime, and unix seconds.
func (c *Client) statusHandler(g *gin.Context) {
	me := c.me.Load()
	if !c.ready.Load() || me == nil {
		g.JSON(
			http.StatusServiceUnavailable,
			httpError{Error: ErrNotReady.Error()},
		)
		return
	}
	var lastReboot time.Time
	if t := c.lastReboot.Load(); t != nil {
		lastReboot = *t
	}
	g.JSON(
		http.StatusOK, statusResponse{
			Me: statusUser{
				ID:            me.ID,
				Username:      me.Username,
				Discriminator: me.Discriminator,
				CreatedAt:     snowflakeTime(me.ID),
			},
			LastReboot: statusReboot{
				Datetime:  lastReboot,
				Timedelta: time.Since(lastReboot).String(),
				Unix:      lastReboot.Unix(),
			},
		},
	)
}

// webhookReceiveHandler handles POST /: parses the (already verified)
// interaction payload and dispatches it.
func (c *Client) webhookReceiveHandler(g *gin.Context) {
	started := time.Now()
	requestID, _ := g.Get(xRequestIDHeader)
	logger := ginContextLogger(g, c.logger)

	defer func() {
		_ = g.Request.Body.Close()
	}()
	body, err := io.ReadAll(g.Request.Body)
	if err != nil {
		logger.ErrorContext(g, "error reading body", tint.Err(err))
		g.JSON(
			http.StatusInternalServerError,
			httpError{Error: "error reading body"},
		)
		return
	}

	var interaction discordgo.InteractionCreate
	if e := json.Unmarshal(body, &interaction); e != nil {
		logger.ErrorContext(g, "error unmarshalling body", tint.Err(e))
		g.JSON(
			http.StatusBadRequest,
			httpError{Error: "error unmarshalling body"},
		)
		return
	}

	logger = logger.With(interactionLogAttrs(interaction)...)
	if c.config.DebugEvents {
		logger.DebugContext(g, "interaction received", "payload", string(body))
	}

	runCtx := WithLogger(g.Request.Context(), logger)
	c.events.dispatchRawInteraction(runCtx, &interaction)

	ctx := &Context{
		ctx:         runCtx,
		client:      c,
		interaction: &interaction,
		logger:      logger,
		requestID:   fmt.Sprint(requestID),
		receivedAt:  started,
	}

	defer c.metrics.trackInFlight()()
	status := c.dispatch(g, ctx)
	c.metrics.observe(interaction.Type.String(), status, time.Since(started))
}

// dispatch routes one interaction by type and returns the HTTP status
// written. Pings are always answered; anything else is rejected until
// startup completes, since handlers may depend on the bot user or
// storage being available.
func (c *Client) dispatch(g *gin.Context, ctx *Context) int {
	i := ctx.interaction
	if i.Type != discordgo.InteractionPing && !c.ready.Load() {
		ctx.Logger().Warn("interaction received before ready", "type", i.Type)
		g.JSON(
			http.StatusServiceUnavailable,
			httpError{Error: ErrNotReady.Error()},
		)
		return http.StatusServiceUnavailable
	}
	switch i.Type {
	case discordgo.InteractionPing:
		c.metrics.observePing()
		c.events.dispatchPing(
			ctx.Context(), Ping{
				ID:            i.ID,
				ApplicationID: i.AppID,
				Version:       int(i.Version),
				ReceivedAt:    time.Now(),
			},
		)
		g.JSON(http.StatusOK, Pong().interactionResponse())
		return http.StatusOK

	case discordgo.InteractionApplicationCommand:
		return c.dispatchCommand(g, ctx)

	case discordgo.InteractionApplicationCommandAutocomplete:
		return c.dispatchAutocomplete(g, ctx)

	case discordgo.InteractionMessageComponent,
		discordgo.InteractionModalSubmit:
		return c.dispatchComponent(g, ctx)

	default:
		ctx.Logger().Warn("unknown interaction type", "type", i.Type)
		c.recordInteraction(ctx, "", outcomeNotFound)
		g.JSON(
			http.StatusBadRequest,
			httpError{Error: "unknown interaction type"},
		)
		return http.StatusBadRequest
	}
}

// dispatchCommand routes an application command: registry lookup,
// subcommand digging, checks, then the handler.
func (c *Client) dispatchCommand(g *gin.Context, ctx *Context) int {
	data := ctx.interaction.ApplicationCommandData()
	cmd, ok := c.commands.get(data.Name)
	if !ok {
		ctx.Logger().Warn("unknown command", "command", data.Name)
		c.metrics.observeCommand(data.Name, outcomeNotFound)
		c.recordInteraction(ctx, data.Name, outcomeNotFound)
		c.events.dispatchInteractionError(
			ctx,
			fmt.Errorf("%w: %q", ErrUnknownCommand, data.Name),
		)
		g.JSON(http.StatusNotFound, httpError{Error: "command not found"})
		return http.StatusNotFound
	}

	leaf, options, path, err := digSubcommand(cmd, data.Options)
	if err != nil {
		ctx.Logger().Warn("bad command invocation", tint.Err(err))
		c.metrics.observeCommand(data.Name, outcomeNotFound)
		c.recordInteraction(ctx, data.Name, outcomeNotFound)
		c.events.dispatchInteractionError(ctx, err)
		if errors.Is(err, ErrUnknownCommand) {
			g.JSON(http.StatusNotFound, httpError{Error: "command not found"})
			return http.StatusNotFound
		}
		g.JSON(http.StatusBadRequest, httpError{Error: "invalid command"})
		return http.StatusBadRequest
	}
	ctx.options = options
	ctx.commandPath = strings.Join(append([]string{data.Name}, path...), " ")

	if checkErr := leaf.runChecks(ctx); checkErr != nil {
		var check *CheckError
		if errors.As(checkErr, &check) {
			ctx.Logger().Info(
				"check failed",
				"command", ctx.commandPath,
				"reason", check.Reason,
			)
			c.metrics.observeCommand(ctx.commandPath, outcomeCheckFailed)
			c.recordInteraction(ctx, ctx.commandPath, outcomeCheckFailed)
			g.JSON(
				http.StatusOK,
				EphemeralMessage(check.Reason).interactionResponse(),
			)
			return http.StatusOK
		}
		return c.handlerError(g, ctx, ctx.commandPath, checkErr)
	}

	response, err := c.runHandler(ctx, leaf.Handler)
	if err != nil {
		c.metrics.observeCommand(ctx.commandPath, outcomeError)
		return c.handlerError(g, ctx, ctx.commandPath, err)
	}

	c.metrics.observeCommand(ctx.commandPath, outcomeOK)
	c.recordInteraction(ctx, ctx.commandPath, outcomeOK)
	g.JSON(http.StatusOK, response.interactionResponse())
	return http.StatusOK
}

// dispatchAutocomplete routes the focused option of an autocomplete
// interaction to the leaf command's registered suggestion handler.
func (c *Client) dispatchAutocomplete(g *gin.Context, ctx *Context) int {
	data := ctx.interaction.ApplicationCommandData()
	cmd, ok := c.commands.get(data.Name)
	if !ok {
		ctx.Logger().Warn("unknown command", "command", data.Name)
		c.recordInteraction(ctx, data.Name, outcomeNotFound)
		g.JSON(http.StatusNotFound, httpError{Error: "command not found"})
		return http.StatusNotFound
	}

	leaf, options, path, err := digSubcommand(cmd, data.Options)
	if err != nil {
		ctx.Logger().Warn("bad autocomplete invocation", tint.Err(err))
		c.recordInteraction(ctx, data.Name, outcomeNotFound)
		g.JSON(http.StatusBadRequest, httpError{Error: "invalid command"})
		return http.StatusBadRequest
	}
	ctx.options = options
	ctx.commandPath = strings.Join(append([]string{data.Name}, path...), " ")

	var focused *discordgo.ApplicationCommandInteractionDataOption
	for _, option := range options {
		if option.Focused {
			focused = option
			break
		}
	}
	if focused == nil {
		ctx.Logger().Warn("no focused option", "command", ctx.commandPath)
		c.recordInteraction(ctx, ctx.commandPath, outcomeNotFound)
		g.JSON(http.StatusBadRequest, httpError{Error: "no focused option"})
		return http.StatusBadRequest
	}

	handler, ok := leaf.Autocomplete[focused.Name]
	if !ok {
		ctx.Logger().Warn(
			"no autocomplete handler",
			"command", ctx.commandPath,
			"option", focused.Name,
		)
		c.recordInteraction(ctx, ctx.commandPath, outcomeNotFound)
		g.JSON(
			http.StatusNotFound,
			httpError{Error: "no autocomplete handler"},
		)
		return http.StatusNotFound
	}

	response, err := c.runAutocomplete(ctx, handler, focused)
	if err != nil {
		return c.handlerError(g, ctx, ctx.commandPath, err)
	}

	c.recordInteraction(ctx, ctx.commandPath, outcomeOK)
	g.JSON(http.StatusOK, response.interactionResponse())
	return http.StatusOK
}

// dispatchComponent routes component and modal submit interactions by
// custom ID, through the shared component registry.
func (c *Client) dispatchComponent(g *gin.Context, ctx *Context) int {
	customID := ctx.CustomID()
	handler, ok := c.components.match(customID)
	if !ok {
		ctx.Logger().Warn("unhandled custom ID", "custom_id", customID)
		c.metrics.observeComponent(outcomeNotFound)
		c.recordInteraction(ctx, customID, outcomeNotFound)
		c.events.dispatchInteractionError(
			ctx,
			fmt.Errorf("%w: custom ID %q", ErrUnknownInteraction, customID),
		)
		g.JSON(http.StatusNotFound, httpError{Error: "interaction not found"})
		return http.StatusNotFound
	}

	response, err := c.runHandler(ctx, handler)
	if err != nil {
		var check *CheckError
		if errors.As(err, &check) {
			c.metrics.observeComponent(outcomeCheckFailed)
			c.recordInteraction(ctx, customID, outcomeCheckFailed)
			g.JSON(
				http.StatusOK,
				EphemeralMessage(check.Reason).interactionResponse(),
			)
			return http.StatusOK
		}
		c.metrics.observeComponent(outcomeError)
		return c.handlerError(g, ctx, customID, err)
	}

	c.metrics.observeComponent(outcomeOK)
	c.recordInteraction(ctx, customID, outcomeOK)
	g.JSON(http.StatusOK, response.interactionResponse())
	return http.StatusOK
}

// runHandler executes a handler with panic recovery. A nil response with
// a nil error is treated as a handler bug.
func (c *Client) runHandler(ctx *Context, handler CommandHandler) (
	response Response,
	err error,
) {
	defer func() {
		if rc := recover(); rc != nil {
			ctx.Logger().Error(
				"handler panicked",
				"recovered", rc,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("handler panic: %v", rc)
		}
	}()
	response, err = handler(ctx)
	if err == nil && response == nil {
		err = errors.New("handler returned no response")
	}
	return response, err
}

func (c *Client) runAutocomplete(
	ctx *Context,
	handler AutocompleteHandler,
	focused *discordgo.ApplicationCommandInteractionDataOption,
) (response *AutocompleteResponse, err error) {
	defer func() {
		if rc := recover(); rc != nil {
			ctx.Logger().Error(
				"autocomplete handler panicked",
				"recovered", rc,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("handler panic: %v", rc)
		}
	}()
	response, err = handler(ctx, focused)
	if err == nil && response == nil {
		response = &AutocompleteResponse{}
	}
	return response, err
}

// handlerError reports a dispatch failure: error listeners, interaction
// log, and a 500 reply.
func (c *Client) handlerError(
	g *gin.Context,
	ctx *Context,
	route string,
	err error,
) int {
	c.metrics.observeHandlerError(ctx.interaction.Type.String())
	c.recordInteraction(ctx, route, outcomeError)
	c.events.dispatchInteractionError(ctx, err)
	g.JSON(
		http.StatusInternalServerError,
		httpError{Error: "internal error"},
	)
	return http.StatusInternalServerError
}

// recordInteraction writes the interaction log entry in the background,
// off the request path.
func (c *Client) recordInteraction(ctx *Context, route string, outcome string) {
	if c.db == nil {
		return
	}
	interaction := ctx.interaction
	var latency time.Duration
	if !ctx.receivedAt.IsZero() {
		latency = time.Since(ctx.receivedAt)
	}
	logCtx := WithLogger(context.Background(), ctx.Logger())
	c.pendingWG.Add(1)
	go func() {
		defer c.pendingWG.Done()
		c.db.recordInteraction(logCtx, interaction, route, outcome, latency)
	}()
}
