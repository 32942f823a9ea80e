package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/yahdeeez/teenguard/internal/domain"
)

const tokenLifetime = 7 * 24 * time.Hour

// Server exposes the backend REST surface over gin.
type Server struct {
	store  *Store
	secret []byte
	logger *zap.Logger
}

// NewServer creates the backend. secret signs the HS256 bearer tokens.
func NewServer(store *Store, secret []byte, logger *zap.Logger) *Server {
	return &Server{store: store, secret: secret, logger: logger}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/auth/register", s.handleRegister)
		api.POST("/auth/login", s.handleLogin)

		// Device-facing ingestion endpoints take no bearer token.
		api.POST("/locations", s.handleCreateLocation)
		api.POST("/app-usage", s.handleCreateAppUsage)
		api.POST("/web-history", s.handleCreateWebHistory)

		authed := api.Group("", s.requireAuth)
		{
			authed.GET("/teens", s.handleListTeens)
			authed.POST("/teens", s.handleCreateTeen)
			authed.GET("/teens/:id", s.handleGetTeen)
			authed.GET("/teens/:id/locations", s.handleTeenLocations)
			authed.POST("/geofences", s.handleCreateGeofence)
			authed.GET("/alerts", s.handleListAlerts)
			authed.PUT("/alerts/:id/read", s.handleMarkAlertRead)
			authed.GET("/dashboard/:id", s.handleDashboard)
		}
	}
	return r
}

// --- auth ---

func (s *Server) createToken(parentID string) (string, error) {
	claims := jwt.MapClaims{
		"parent_id": parentID,
		"exp":       time.Now().Add(tokenLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// requireAuth validates the bearer token and stores parent_id on the
// context.
func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Missing bearer token"})
		return
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token"})
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token"})
		return
	}
	parentID, _ := claims["parent_id"].(string)
	if parentID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token"})
		return
	}

	c.Set("parent_id", parentID)
	c.Next()
}

func parentID(c *gin.Context) string {
	return c.GetString("parent_id")
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	existing, err := s.store.ParentByEmail(req.Email)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if existing != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Email already registered"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.internalError(c, err)
		return
	}

	parent, err := s.store.CreateParent(req.Email, string(hash), req.Name)
	if err != nil {
		s.internalError(c, err)
		return
	}

	token, err := s.createToken(parent.ID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "parent": parent})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	rec, err := s.store.ParentByEmail(req.Email)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if rec == nil || bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid credentials"})
		return
	}

	token, err := s.createToken(rec.ID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "parent": rec.Parent})
}

// --- teens ---

type teenCreateRequest struct {
	Name        string `json:"name" binding:"required"`
	DeviceID    string `json:"device_id" binding:"required"`
	PhoneNumber string `json:"phone_number"`
	Age         int    `json:"age"`
}

func (s *Server) handleCreateTeen(c *gin.Context) {
	var req teenCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	teen, err := s.store.CreateTeen(parentID(c), req.Name, req.DeviceID, req.PhoneNumber, req.Age)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, teen)
}

func (s *Server) handleListTeens(c *gin.Context) {
	teens, err := s.store.TeensByParent(parentID(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, teens)
}

func (s *Server) handleGetTeen(c *gin.Context) {
	teen, err := s.ownedTeen(c)
	if err != nil || teen == nil {
		return
	}
	c.JSON(http.StatusOK, teen)
}

// ownedTeen fetches the teen from the :id param, enforcing parent
// ownership. On failure it writes the response and returns nil.
func (s *Server) ownedTeen(c *gin.Context) (*domain.Teen, error) {
	teen, err := s.store.TeenByID(c.Param("id"))
	if err != nil {
		s.internalError(c, err)
		return nil, err
	}
	if teen == nil || teen.ParentID != parentID(c) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Teen not found"})
		return nil, nil
	}
	return teen, nil
}

// --- ingestion ---

func (s *Server) handleCreateLocation(c *gin.Context) {
	var sample domain.LocationSample
	if err := c.ShouldBindJSON(&sample); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	teen, err := s.store.TeenByID(sample.TeenID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if teen == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Teen not found"})
		return
	}

	loc, err := s.store.InsertLocation(sample)
	if err != nil {
		s.internalError(c, err)
		return
	}

	s.checkGeofences(*teen, loc)

	c.JSON(http.StatusOK, gin.H{"status": "success", "location_id": loc.ID})
}

// checkGeofences raises an alert for each geofence the location falls
// inside. Rough planar distance; fine at geofence scale.
func (s *Server) checkGeofences(teen domain.Teen, loc domain.Location) {
	fences, err := s.store.GeofencesByTeen(teen.ID)
	if err != nil {
		s.logger.Warn("failed to load geofences", zap.Error(err))
		return
	}
	for _, fence := range fences {
		dLat := loc.Latitude - fence.Latitude
		dLon := loc.Longitude - fence.Longitude
		distance := math.Sqrt(dLat*dLat+dLon*dLon) * 111000
		if distance > fence.Radius {
			continue
		}
		_, err := s.store.InsertAlert(teen.ParentID, teen.ID, "geofence_enter",
			teen.Name+" entered "+fence.Name)
		if err != nil {
			s.logger.Warn("failed to insert geofence alert", zap.Error(err))
		}
	}
}

func (s *Server) handleCreateAppUsage(c *gin.Context) {
	var event domain.UsageEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	teen, err := s.store.TeenByID(event.TeenID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if teen == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Teen not found"})
		return
	}

	created, err := s.store.UpsertAppUsage(event)
	if err != nil {
		s.internalError(c, err)
		return
	}
	status := "updated"
	if created {
		status = "created"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (s *Server) handleCreateWebHistory(c *gin.Context) {
	var event domain.WebVisitEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	teen, err := s.store.TeenByID(event.TeenID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if teen == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Teen not found"})
		return
	}

	created, err := s.store.RecordWebVisit(event)
	if err != nil {
		s.internalError(c, err)
		return
	}
	status := "updated"
	if created {
		status = "created"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// --- reads ---

func (s *Server) handleTeenLocations(c *gin.Context) {
	teen, err := s.ownedTeen(c)
	if err != nil || teen == nil {
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	locs, err := s.store.RecentLocations(teen.ID, limit)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, locs)
}

func (s *Server) handleCreateGeofence(c *gin.Context) {
	var fence domain.Geofence
	if err := c.ShouldBindJSON(&fence); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	teen, err := s.store.TeenByID(fence.TeenID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if teen == nil || teen.ParentID != parentID(c) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Teen not found"})
		return
	}

	created, err := s.store.CreateGeofence(fence)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (s *Server) handleListAlerts(c *gin.Context) {
	unreadOnly := c.Query("unread_only") == "true"
	alerts, err := s.store.AlertsByParent(parentID(c), unreadOnly)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) handleMarkAlertRead(c *gin.Context) {
	updated, err := s.store.MarkAlertRead(c.Param("id"), parentID(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !updated {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Alert not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) handleDashboard(c *gin.Context) {
	teen, err := s.ownedTeen(c)
	if err != nil || teen == nil {
		return
	}

	today := time.Now().Format("2006-01-02")

	usage, err := s.store.UsageByTeenDate(teen.ID, today)
	if err != nil {
		s.internalError(c, err)
		return
	}
	screenTime := 0
	for _, u := range usage {
		screenTime += u.UsageTime
	}

	locations, err := s.store.RecentLocations(teen.ID, 10)
	if err != nil {
		s.internalError(c, err)
		return
	}
	history, err := s.store.RecentWebHistory(teen.ID, 20)
	if err != nil {
		s.internalError(c, err)
		return
	}
	fences, err := s.store.GeofencesByTeen(teen.ID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	alerts, err := s.store.UnreadAlerts(parentID(c), teen.ID)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, domain.DashboardSnapshot{
		Teen:             *teen,
		ScreenTimeToday:  screenTime,
		AppUsageToday:    usage,
		RecentLocations:  locations,
		RecentWebHistory: history,
		Geofences:        fences,
		UnreadAlerts:     alerts,
	})
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
}
