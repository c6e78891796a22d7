// Package mockcollector is an in-memory collector server for development and
// end-to-end tests. It speaks the agent's four endpoints, keeps the tokens
// agents registered with, and can be told to reject specific calls.
package mockcollector

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shelteragent/agent/internal/models"
)

// Stats is a snapshot of what the server has received.
type Stats struct {
	Registrations  int
	Heartbeats     int
	MetricBatches  int
	ServiceReports int
	Samples        []models.MetricSample
	LastServices   []models.ServiceRecord
	Tokens         map[string]string
}

// Server holds the collector state.
type Server struct {
	logger   *zap.Logger
	validate *validator.Validate
	limiter  *rateLimiter

	mu              sync.Mutex
	tokens          map[string]string // agent_id -> api_token
	stats           Stats
	rejectRegister  bool
	rejectHeartbeat bool
	rejectMetrics   bool
}

// New creates an empty Server.
func New(logger *zap.Logger) *Server {
	return &Server{
		logger:   logger,
		validate: validator.New(),
		limiter:  newRateLimiter(100, 200),
		tokens:   make(map[string]string),
	}
}

// RejectRegister makes /agent/register answer {success:false}.
func (s *Server) RejectRegister(v bool) {
	s.mu.Lock()
	s.rejectRegister = v
	s.mu.Unlock()
}

// RejectHeartbeat makes /agent/heartbeat answer {success:false}.
func (s *Server) RejectHeartbeat(v bool) {
	s.mu.Lock()
	s.rejectHeartbeat = v
	s.mu.Unlock()
}

// RejectMetrics makes /metrics answer 503.
func (s *Server) RejectMetrics(v bool) {
	s.mu.Lock()
	s.rejectMetrics = v
	s.mu.Unlock()
}

// Stats returns a copy of the received data.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	out.Samples = append([]models.MetricSample(nil), s.stats.Samples...)
	out.LastServices = append([]models.ServiceRecord(nil), s.stats.LastServices...)
	out.Tokens = make(map[string]string, len(s.tokens))
	for k, v := range s.tokens {
		out.Tokens[k] = v
	}
	return out
}

// Handler builds the gin engine serving the collector API.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.limiter.middleware())

	r.POST("/agent/register", s.register)

	auth := r.Group("/", s.requireToken())
	{
		auth.POST("/agent/heartbeat", s.heartbeat)
		auth.POST("/metrics", s.metrics)
		auth.POST("/services", s.services)
	}
	return r
}

func fail(c *gin.Context, status int, msg string, errs any) {
	body := gin.H{"success": false, "message": msg}
	if errs != nil {
		body["errors"] = errs
	}
	c.AbortWithStatusJSON(status, body)
}

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, "invalid json", err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		fail(c, http.StatusOK, "validation failed", validationErrors(err))
		return false
	}
	return true
}

func validationErrors(err error) map[string]string {
	out := map[string]string{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			out[fe.Namespace()] = fe.Tag()
		}
		return out
	}
	out["body"] = err.Error()
	return out
}

func (s *Server) register(c *gin.Context) {
	var req models.RegisterRequest
	if !s.bind(c, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Registrations++
	if s.rejectRegister {
		fail(c, http.StatusOK, "registration disabled", nil)
		return
	}
	s.tokens[req.AgentID] = req.APIToken
	ok(c)
}

// requireToken accepts any bearer token some agent registered with and
// stores the owning agent id in the context.
func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || token == "" {
			fail(c, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}

		s.mu.Lock()
		var owner string
		for agentID, t := range s.tokens {
			if t == token {
				owner = agentID
				break
			}
		}
		s.mu.Unlock()

		if owner == "" {
			fail(c, http.StatusUnauthorized, "invalid token", nil)
			return
		}
		c.Set("agent_id", owner)
		c.Next()
	}
}

func (s *Server) ownsAgent(c *gin.Context, agentID string) bool {
	if c.GetString("agent_id") != agentID {
		fail(c, http.StatusForbidden, "token does not belong to agent", nil)
		return false
	}
	return true
}

func (s *Server) heartbeat(c *gin.Context) {
	var req models.HeartbeatRequest
	if !s.bind(c, &req) || !s.ownsAgent(c, req.AgentID) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Heartbeats++
	if s.rejectHeartbeat {
		fail(c, http.StatusOK, "token expired", nil)
		return
	}
	ok(c)
}

func (s *Server) metrics(c *gin.Context) {
	var req models.MetricsRequest
	if !s.bind(c, &req) || !s.ownsAgent(c, req.AgentID) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rejectMetrics {
		fail(c, http.StatusServiceUnavailable, "storage unavailable", nil)
		return
	}
	s.stats.MetricBatches++
	s.stats.Samples = append(s.stats.Samples, req.Metrics...)
	ok(c)
}

func (s *Server) services(c *gin.Context) {
	var req models.ServicesRequest
	if !s.bind(c, &req) || !s.ownsAgent(c, req.AgentID) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.ServiceReports++
	s.stats.LastServices = req.Services
	ok(c)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// rateLimiter is a per-client-IP token bucket.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *rateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, exists := rl.limiters[ip]; exists {
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[ip] = l
	return l
}

func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.get(c.ClientIP()).Allow() {
			fail(c, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		c.Next()
	}
}
