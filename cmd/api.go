package cmd

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/infra-sim/infra-sim/sim"
	"github.com/infra-sim/infra-sim/sim/game"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	streamBuffer  = 256
	pingInterval  = 30 * time.Second
	writeWait     = 5 * time.Second
	maxAdvance    = 3600
	defaultTraceN = 60
)

// api exposes the game's command and status surface over HTTP.
type api struct {
	game     *game.Game
	upgrader websocket.Upgrader
}

// newRouter builds the HTTP surface for g.
func newRouter(g *game.Game) *gin.Engine {
	a := &api{
		game: g,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metricsMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/start", a.start)
		v1.POST("/pause", a.pause)
		v1.POST("/reset", a.reset)
		v1.POST("/tick", a.advance)
		v1.POST("/services", a.deployService)
		v1.DELETE("/services/:id", a.removeService)
		v1.POST("/spike", a.spike)
		v1.POST("/attack", a.attack)
		v1.GET("/status", a.status)
		v1.GET("/health", a.health)
		v1.GET("/cost", a.cost)
		v1.GET("/trace", a.trace)
		v1.GET("/events", a.events)
	}
	return r
}

func (a *api) start(c *gin.Context) {
	if err := a.game.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a.game.Snapshot())
}

func (a *api) pause(c *gin.Context) {
	a.game.Pause()
	c.JSON(http.StatusOK, a.game.Snapshot())
}

func (a *api) reset(c *gin.Context) {
	if err := a.game.Reset(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a.game.Snapshot())
}

// advance runs ?n= ticks synchronously, for stepping a paused game.
func (a *api) advance(c *gin.Context) {
	n := 1
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxAdvance {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be an integer in [1," + strconv.Itoa(maxAdvance) + "]"})
			return
		}
		n = parsed
	}
	ran := a.game.Advance(n)
	c.JSON(http.StatusOK, gin.H{"ticks": ran, "snapshot": a.game.Snapshot()})
}

func (a *api) deployService(c *gin.Context) {
	var cfg sim.ServiceConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := a.game.DeployService(cfg)
	if err != nil {
		var cfgErr *sim.ConfigurationError
		if errors.As(err, &cfgErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "violations": cfgErr.Violations})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (a *api) removeService(c *gin.Context) {
	id := c.Param("id")
	if err := a.game.RemoveService(id); err != nil {
		if errors.Is(err, game.ErrUnknownService) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": id})
}

func (a *api) spike(c *gin.Context) {
	var req SpikeCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.game.TriggerSpike(req.Multiplier, req.DurationSeconds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a.game.Snapshot())
}

func (a *api) attack(c *gin.Context) {
	var req AttackCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.game.StartAttack(req.Vector, req.DurationSeconds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a.game.Snapshot())
}

func (a *api) status(c *gin.Context) {
	c.JSON(http.StatusOK, a.game.Snapshot())
}

func (a *api) health(c *gin.Context) {
	c.JSON(http.StatusOK, a.game.Snapshot().HealthSummary())
}

func (a *api) cost(c *gin.Context) {
	c.JSON(http.StatusOK, a.game.Snapshot().CostSummary())
}

func (a *api) trace(c *gin.Context) {
	n := defaultTraceN
	if raw := c.Query("ticks"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			n = parsed
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"level":   a.game.Config().Trace.Level,
		"summary": a.game.TraceSummary(),
		"ticks":   a.game.RecentTicks(n),
	})
}

// events streams notifications as JSON websocket messages. ?types= narrows
// the stream to a comma-separated list of event types. A client that falls
// behind loses events rather than stalling the game.
func (a *api) events(c *gin.Context) {
	var filter map[game.EventType]bool
	if raw := c.Query("types"); raw != "" {
		filter = make(map[game.EventType]bool)
		for _, t := range strings.Split(raw, ",") {
			filter[game.EventType(strings.TrimSpace(t))] = true
		}
	}

	client := c.ClientIP()
	out := make(chan game.Event, streamBuffer)
	var dropped atomic.Int64
	unsubscribe := a.game.Subscribe(func(ev game.Event) {
		if filter != nil && !filter[ev.Type] {
			return
		}
		select {
		case out <- ev:
		default:
			if n := dropped.Add(1); n%streamBuffer == 1 {
				logrus.Warnf("events: slow client %s, %d events dropped", client, n)
			}
		}
	})
	defer unsubscribe()

	// Subscribed first so nothing published after the handshake is missed.
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Warnf("events: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The read loop only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case ev := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				logrus.Debugf("events: write to %s failed: %v", conn.RemoteAddr(), err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
