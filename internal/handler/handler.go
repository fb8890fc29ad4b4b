// Package handler exposes the kiosk and admin HTTP API.
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kiosk/internal/auth"
	"kiosk/internal/history"
	"kiosk/internal/presence"
	"kiosk/internal/visitors"
)

// Handler carries the services behind the HTTP surface.
type Handler struct {
	svc      *presence.Service
	archiver *history.Archiver
	hist     *history.Service
	exporter *history.Exporter
	visitors *visitors.Service

	adminPassword string
	jwtIssuer     string
	jwtKey        string
	accessTTL     time.Duration
	log           *zap.Logger
}

// Config wires the handler's collaborators.
type Config struct {
	Presences *presence.Service
	Archiver  *history.Archiver
	History   *history.Service
	Exporter  *history.Exporter
	Visitors  *visitors.Service

	AdminPassword string
	JWTIssuer     string
	JWTSigningKey string
	AccessTTL     time.Duration
}

// New creates the handler.
func New(cfg Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		svc:           cfg.Presences,
		archiver:      cfg.Archiver,
		hist:          cfg.History,
		exporter:      cfg.Exporter,
		visitors:      cfg.Visitors,
		adminPassword: cfg.AdminPassword,
		jwtIssuer:     cfg.JWTIssuer,
		jwtKey:        cfg.JWTSigningKey,
		accessTTL:     cfg.AccessTTL,
		log:           logger,
	}
}

// RegisterRoutes attaches all endpoints. Admin routes go through adminMW.
func (h *Handler) RegisterRoutes(r *gin.Engine, adminMW gin.HandlerFunc) {
	r.GET("/presences", h.ListPresences)
	r.POST("/presences", h.CreatePresence)
	r.GET("/presences/history", h.ListHistoryDates)
	r.GET("/presences/history/:date", h.GetHistoryDate)

	r.GET("/tarifs/:type", h.QuoteTarif)

	r.POST("/attempts", h.LogAttempt)
	r.GET("/attempts", h.ListAttempts)

	r.GET("/visitors", h.ListVisitors)
	r.POST("/visitors", h.SaveVisitor)
	r.GET("/visitors/find", h.FindVisitor)

	r.POST("/admin/login", h.AdminLogin)

	mutations := r.Group("/", adminMW)
	mutations.POST("/presences/:id/valider", h.ValidatePresence)
	mutations.POST("/presences/:id/annuler", h.CancelPresence)
	mutations.DELETE("/presences/:id", h.DeletePresence)
	mutations.POST("/presences/archive", h.Archive)
	mutations.GET("/admin/seasons", h.Seasons)
	mutations.GET("/admin/stats", h.Stats)
	mutations.GET("/admin/export/season", h.ExportSeason)
	mutations.GET("/admin/export/year/:year", h.ExportYear)
	mutations.GET("/admin/export/years", h.ExportYears)
}

// ---------- Presences ----------

// ListPresences returns today's live set, attempt records included.
func (h *Handler) ListPresences(c *gin.Context) {
	presences := h.svc.ListToday(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "presences": presences, "count": len(presences)})
}

// CreatePresence records a kiosk check-in; a near-simultaneous identical
// submission returns the existing record tagged duplicate.
func (h *Handler) CreatePresence(c *gin.Context) {
	var in presence.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Corps de requête invalide"})
		return
	}
	p, duplicate, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	if duplicate {
		c.JSON(http.StatusOK, gin.H{"success": true, "duplicate": true, "presence": p})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "presence": p})
}

type validateRequest struct {
	Montant         *float64 `json:"montant"`
	MethodePaiement string   `json:"methodePaiement"`
}

// ValidatePresence marks a presence paid.
func (h *Handler) ValidatePresence(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Corps de requête invalide"})
		return
	}
	p, err := h.svc.Validate(c.Request.Context(), c.Param("id"), req.Montant, req.MethodePaiement)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "presence": p})
}

// CancelPresence marks a presence cancelled.
func (h *Handler) CancelPresence(c *gin.Context) {
	p, err := h.svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "presence": p})
}

// DeletePresence removes a record from the live documents; unknown ids are
// a success so retries stay safe.
func (h *Handler) DeletePresence(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// QuoteTarif returns the configured price for a visitor type, priced from
// the optional dateNaissance query parameter.
func (h *Handler) QuoteTarif(c *gin.Context) {
	tarif, err := h.svc.Quote(c.Param("type"), c.Query("dateNaissance"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tarif": tarif})
}

// ---------- Attempts ----------

// LogAttempt records a kiosk access attempt.
func (h *Handler) LogAttempt(c *gin.Context) {
	var in presence.AttemptInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Corps de requête invalide"})
		return
	}
	attempt, err := h.svc.LogAttempt(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "attempt": attempt})
}

// ListAttempts returns the live attempt log.
func (h *Handler) ListAttempts(c *gin.Context) {
	attempts := h.svc.ListAttempts(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "attempts": attempts, "count": len(attempts)})
}

// ---------- History ----------

// ListHistoryDates returns archived dates, most recent first.
func (h *Handler) ListHistoryDates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "dates": h.hist.ListDates(c.Request.Context())})
}

// GetHistoryDate returns one archived day; unknown dates yield an empty
// list, never an error.
func (h *Handler) GetHistoryDate(c *gin.Context) {
	presences := h.hist.GetDate(c.Request.Context(), c.Param("date"))
	c.JSON(http.StatusOK, gin.H{"success": true, "presences": presences})
}

// Archive sweeps today's activity into history. An empty day is a reported
// soft failure, not an error status.
func (h *Handler) Archive(c *gin.Context) {
	archived, err := h.archiver.ArchiveToday(c.Request.Context())
	if err != nil {
		if errors.Is(err, history.ErrNothingToArchive) {
			c.JSON(http.StatusOK, gin.H{"success": false, "archived": 0, "error": "No data to archive"})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "archived": archived})
}

// Seasons lists club seasons derived from the archive.
func (h *Handler) Seasons(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "seasons": h.hist.ListSeasons(c.Request.Context())})
}

// Stats returns today's totals for the admin dashboard.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": h.svc.StatsToday(c.Request.Context())})
}

// ---------- Exports ----------

// ExportSeason writes and serves the current season's spreadsheet.
func (h *Handler) ExportSeason(c *gin.Context) {
	res, err := h.exporter.ExportSeason(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.FileAttachment(res.Path, res.Filename)
}

// ExportYear writes and serves one calendar year's spreadsheet.
func (h *Handler) ExportYear(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Année invalide"})
		return
	}
	res, err := h.exporter.ExportYear(c.Request.Context(), year)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.FileAttachment(res.Path, res.Filename)
}

// ExportYears lists years with data, descending.
func (h *Handler) ExportYears(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "years": h.exporter.AvailableYears(c.Request.Context())})
}

// ---------- Visitors ----------

// ListVisitors returns saved walk-in profiles.
func (h *Handler) ListVisitors(c *gin.Context) {
	profiles := h.visitors.List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "visitors": profiles, "count": len(profiles)})
}

// SaveVisitor creates or refreshes a walk-in profile.
func (h *Handler) SaveVisitor(c *gin.Context) {
	var v visitors.Visitor
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Corps de requête invalide"})
		return
	}
	if v.Nom == "" || v.Prenom == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Champs requis: nom, prenom"})
		return
	}
	saved, err := h.visitors.Save(c.Request.Context(), v)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "visitor": saved})
}

// FindVisitor looks up a returning walk-in by identity.
func (h *Handler) FindVisitor(c *gin.Context) {
	nom, prenom := c.Query("nom"), c.Query("prenom")
	if nom == "" || prenom == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Paramètres 'nom' et 'prenom' requis"})
		return
	}
	v, err := h.visitors.Find(c.Request.Context(), nom, prenom, c.Query("dateNaissance"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if v == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "found": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "found": true, "visitor": v})
}

// ---------- Admin auth ----------

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

// AdminLogin exchanges the admin password for a bearer token.
func (h *Handler) AdminLogin(c *gin.Context) {
	if h.adminPassword == "" {
		c.JSON(http.StatusOK, gin.H{"success": true, "auth": "disabled"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Mot de passe requis"})
		return
	}
	if req.Password != h.adminPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Mot de passe incorrect"})
		return
	}
	token, exp, err := auth.Issue("admin", "admin", h.jwtIssuer, h.jwtKey, h.accessTTL)
	if err != nil {
		h.log.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token, "expires_at": exp.Unix()})
}

// ---------- Error mapping ----------

func (h *Handler) fail(c *gin.Context, err error) {
	var ve *presence.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": ve.Msg})
	case errors.Is(err, presence.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Présence non trouvée"})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur interne du serveur"})
	}
}
