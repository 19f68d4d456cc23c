// Check-in HTTP handlers.
//
// This file exposes REST endpoints for the check-in board:
//   - POST   /checkins                (check in, Idempotency-Key aware)
//   - GET    /checkins                (live roster, ETag support)
//   - GET    /checkins/markers        (roster as offset map markers)
//   - GET    /checkins/search         (rank online check-ins by name/skills)
//   - POST   /checkins/reload         (manual roster reload)
//   - GET    /me/checkins             (own check-ins, paginated, ETag support)
//   - GET    /me/quota                (own quota)
//   - PUT    /checkins/{id}/location  (move)
//   - PUT    /checkins/{id}/status    (online/offline)
//   - POST   /checkins/{id}/toggle    (flip online flag)
//   - PUT    /checkins/{id}/profile   (edit name, skills, contact)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
// The device identity is resolved upstream by middleware.Fingerprint and
// travels in the request context.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-devradar-backend/internal/domain"
	"github.com/tbourn/go-devradar-backend/internal/http/middleware"
	"github.com/tbourn/go-devradar-backend/internal/search"
	"github.com/tbourn/go-devradar-backend/internal/services"
	"github.com/tbourn/go-devradar-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// CheckInService creates check-ins under the quota.
type CheckInService interface {
	// CheckIn publishes a new check-in for the device in ctx.
	CheckIn(ctx context.Context, in services.ProfileInput, loc services.LocationSource) (*domain.CheckIn, error)
}

// RosterService exposes the live roster of online check-ins. Each read
// returns the data with the version it was taken at.
type RosterService interface {
	Current() ([]domain.CheckIn, uint64)
	CurrentMarkers() ([]domain.Marker, uint64)
	Reload(ctx context.Context) error
}

// OwnershipService scopes reads and edits to the device in ctx.
type OwnershipService interface {
	Fingerprint(ctx context.Context) string
	MyCheckIns(ctx context.Context) ([]domain.CheckIn, error)
	MyStats(ctx context.Context) (int64, *time.Time, error)
	UpdateLocation(ctx context.Context, id string, lat, lon float64) (*domain.CheckIn, error)
	SetOnline(ctx context.Context, id string, online bool) (*domain.CheckIn, error)
	Toggle(ctx context.Context, id string) (*domain.CheckIn, error)
	UpdateProfile(ctx context.Context, id string, in services.ProfileInput) (*domain.CheckIn, error)
}

// QuotaService reports a device's quota.
type QuotaService interface {
	View(ctx context.Context, fingerprint string) (services.QuotaView, bool)
}

// IdempotencyStore persists and resolves idempotent check-in results.
type IdempotencyStore interface {
	GetCheckIn(ctx context.Context, id string) (*domain.CheckIn, error)
	SaveIdempotency(ctx context.Context, fingerprint, key, checkInID string, status int, ttl time.Duration) error
}

//
// Handler wiring
//

// DefaultIdempotencyTTL is how long a completed check-in can be replayed.
const DefaultIdempotencyTTL = 24 * time.Hour

// Handlers groups HTTP endpoints for check-ins, the roster and the
// per-device view. It depends on abstract service interfaces to keep
// transport concerns separate from business logic.
type Handlers struct {
	checkins CheckInService
	roster   RosterService
	mine     OwnershipService
	quota    QuotaService

	idem    IdempotencyStore
	idemTTL time.Duration

	live *Live
}

// New constructs and returns a Handlers instance bound to the given services.
func New(checkins CheckInService, roster RosterService, mine OwnershipService, quota QuotaService) *Handlers {
	return &Handlers{checkins: checkins, roster: roster, mine: mine, quota: quota, idemTTL: DefaultIdempotencyTTL}
}

// WithIdempotency enables replay of POST /checkins through store. ttl <= 0
// keeps DefaultIdempotencyTTL.
func (h *Handlers) WithIdempotency(store IdempotencyStore, ttl time.Duration) *Handlers {
	h.idem = store
	if ttl > 0 {
		h.idemTTL = ttl
	}
	return h
}

//
// DTOs
//

// LocationPayload is a device-reported WGS84 position.
type LocationPayload struct {
	Lat *float64 `json:"lat" example:"52.5200"`
	Lon *float64 `json:"lon" example:"13.4050"`
}

// CheckInRequest is the JSON payload for creating a check-in.
//
// Exactly one of Location or LocationError is expected. LocationError carries
// the device's geolocation failure (permission_denied, unavailable,
// unsupported or the numeric browser code).
type CheckInRequest struct {
	Name          string           `json:"name" example:"Ada Lovelace"`
	Skills        []string         `json:"skills" example:"go,postgres"`
	SkillsCSV     string           `json:"skills_csv" example:"go, kubernetes"`
	Communication string           `json:"communication" example:"@ada on Matrix"`
	Location      *LocationPayload `json:"location"`
	LocationError string           `json:"location_error" example:"permission_denied"`
}

// ProfileRequest is the JSON payload for editing a check-in's profile.
type ProfileRequest struct {
	Name          string   `json:"name" example:"Ada Lovelace"`
	Skills        []string `json:"skills"`
	SkillsCSV     string   `json:"skills_csv" example:"go, rust"`
	Communication string   `json:"communication"`
}

// StatusRequest is the JSON payload for setting the online flag.
type StatusRequest struct {
	IsOnline *bool `json:"is_online" example:"false"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// RosterResponse is the live roster.
type RosterResponse struct {
	Version  uint64           `json:"version"`
	Count    int              `json:"count"`
	CheckIns []domain.CheckIn `json:"checkins"`
}

// MarkersResponse is the live roster as map markers.
type MarkersResponse struct {
	Version uint64          `json:"version"`
	Markers []domain.Marker `json:"markers"`
}

// SearchResponse holds ranked roster matches for a query.
type SearchResponse struct {
	Version uint64          `json:"version"`
	Query   string          `json:"query"`
	Count   int             `json:"count"`
	Results []search.Result `json:"results"`
}

// MyCheckInsResponse wraps a page of the device's check-ins.
type MyCheckInsResponse struct {
	CheckIns   []domain.CheckIn `json:"checkins"`
	Pagination Pagination       `json:"pagination"`
}

// QuotaResponse is the device's quota. Degraded is set when the store
// could not be read and defaults are shown.
type QuotaResponse struct {
	services.QuotaView
	Degraded bool `json:"degraded,omitempty"`
}

//
// Helpers
//

func checkInID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "check-in id must be a UUID")
		return "", false
	}
	return id, true
}

func (r CheckInRequest) source() services.ReportedLocation {
	var src services.ReportedLocation
	if r.LocationError != "" {
		src.Failure = r.LocationError
		return src
	}
	if r.Location != nil && r.Location.Lat != nil && r.Location.Lon != nil {
		src.Coords = &services.Coordinates{Latitude: *r.Location.Lat, Longitude: *r.Location.Lon}
	}
	return src
}

func (r CheckInRequest) input() services.ProfileInput {
	return ProfileRequest{
		Name:          r.Name,
		Skills:        r.Skills,
		SkillsCSV:     r.SkillsCSV,
		Communication: r.Communication,
	}.input()
}

func (r ProfileRequest) input() services.ProfileInput {
	return services.ProfileInput{
		Name:          r.Name,
		Skills:        r.Skills,
		SkillsCSV:     r.SkillsCSV,
		Communication: r.Communication,
	}
}

//
// Handlers
//

// CreateCheckIn godoc
// @ID          createCheckIn
// @Summary     Check in
// @Description Publishes the device's position and profile on the board. Consumes one unit of the device's check-in quota.
// @Description Supports idempotency via the Idempotency-Key header (same key → same check-in, no extra quota).
// @Tags        CheckIns
// @Accept      json
// @Produce     json
//
// @Param       X-Fingerprint    header  string  false "Device fingerprint token"   example(1x9ab2k)
// @Param       X-Client-Signals header  string  false "Browser environment signals (JSON)"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CheckInRequest  true  "Check-in payload"
//
// @Success     201  {object}  domain.CheckIn
// @Success     200  {object}  domain.CheckIn  "Idempotent replay"
// @Header      200  {string}  Idempotency-Replayed  "true when served from a previous request"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid profile or coordinates"
// @Failure     409  {object}  handlers.ErrorResponse  "Quota exceeded"
// @Failure     422  {object}  handlers.ErrorResponse  "Location unavailable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /checkins [post]
func (h *Handlers) CreateCheckIn(c *gin.Context) {
	ctx := c.Request.Context()

	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	// Idempotency (replay path).
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if h.idem != nil && middleware.IsReplay(c) {
		if id, found := middleware.ReplayTarget(c); found {
			if prev, err := h.idem.GetCheckIn(ctx, id); err == nil && prev != nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, prev)
				return
			}
		}
	}

	ci, err := h.checkins.CheckIn(ctx, req.input(), req.source())
	if err != nil {
		failService(c, err)
		return
	}

	// Idempotency (store path), best effort.
	if h.idem != nil && idemKey != "" {
		if fp := middleware.FingerprintFrom(c); fp != "" {
			if err := h.idem.SaveIdempotency(ctx, fp, idemKey, ci.ID, http.StatusCreated, h.idemTTL); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not saved")
			}
		}
	}

	ok(c, http.StatusCreated, ci)
}

// ListCheckIns godoc
// @ID          listCheckIns
// @Summary     Live roster
// @Description Returns every online check-in, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Roster
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"roster:42\")
//
// @Success     200  {object} handlers.RosterResponse
// @Header      200  {string} ETag  "Weak ETag for the roster version"
// @Success     304  {string} string "Not Modified"
// @Router      /checkins [get]
func (h *Handlers) ListCheckIns(c *gin.Context) {
	list, v := h.roster.Current()
	if notModified(c, fmt.Sprintf(`W/"roster:%d"`, v)) {
		return
	}
	ok(c, http.StatusOK, RosterResponse{Version: v, Count: len(list), CheckIns: list})
}

// ListMarkers godoc
// @ID          listMarkers
// @Summary     Roster markers
// @Description Returns the live roster as map markers. Check-ins sharing a fingerprint are rendered with a small cumulative offset.
// @Tags        Roster
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"markers:42\")
//
// @Success     200  {object} handlers.MarkersResponse
// @Success     304  {string} string "Not Modified"
// @Router      /checkins/markers [get]
func (h *Handlers) ListMarkers(c *gin.Context) {
	markers, v := h.roster.CurrentMarkers()
	if notModified(c, fmt.Sprintf(`W/"markers:%d"`, v)) {
		return
	}
	ok(c, http.StatusOK, MarkersResponse{Version: v, Markers: markers})
}

// SearchCheckIns godoc
// @ID          searchCheckIns
// @Summary     Search the roster
// @Description Ranks online check-ins by token overlap between q and each developer's name and skills. Check-ins sharing no token with q are omitted.
// @Tags        Roster
// @Produce     json
//
// @Param       q            query   string  true  "Free-text query"  example(go rust)
// @Param       limit        query   int     false "Max results (1..100)"  default(20)
// @Param       skills_only  query   bool    false "Ignore names"
//
// @Success     200  {object} handlers.SearchResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing query"
// @Router      /checkins/search [get]
func (h *Handlers) SearchCheckIns(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q must not be empty")
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), search.DefaultK)
	if limit < 1 || limit > utils.MaxPageSize {
		limit = search.DefaultK
	}
	var opts []search.Option
	if c.Query("skills_only") == "true" {
		opts = append(opts, search.WithSkillsOnly())
	}

	list, v := h.roster.Current()
	results := search.NewIndex(list, opts...).TopK(q, limit)
	if results == nil {
		results = []search.Result{}
	}
	ok(c, http.StatusOK, SearchResponse{Version: v, Query: q, Count: len(results), Results: results})
}

// ReloadRoster godoc
// @ID          reloadRoster
// @Summary     Reload the roster
// @Description Forces a full roster read from the store and pushes it to live clients.
// @Tags        Roster
// @Produce     json
//
// @Success     200  {object} handlers.RosterResponse
// @Failure     500  {object} handlers.ErrorResponse "Store failure"
// @Router      /checkins/reload [post]
func (h *Handlers) ReloadRoster(c *gin.Context) {
	if err := h.roster.Reload(c.Request.Context()); err != nil {
		failService(c, err)
		return
	}
	list, v := h.roster.Current()
	ok(c, http.StatusOK, RosterResponse{Version: v, Count: len(list), CheckIns: list})
}

// ListMyCheckIns godoc
// @ID          listMyCheckIns
// @Summary     My check-ins (paginated)
// @Description Returns every check-in created by this device, online or offline, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Me
// @Produce     json
//
// @Param       X-Fingerprint  header  string  false "Device fingerprint token"   example(1x9ab2k)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.MyCheckInsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "No device identity"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /me/checkins [get]
func (h *Handlers) ListMyCheckIns(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))

	// ETag pre-check (best effort).
	if count, maxTS, err := h.mine.MyStats(ctx); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"checkins:%s:%d:%d:%d:%d"`, h.mine.Fingerprint(ctx), count, ts, page, pageSize)
		if notModified(c, etag) {
			return
		}
	}

	all, err := h.mine.MyCheckIns(ctx)
	if err != nil {
		failService(c, err)
		return
	}

	lo, hi := utils.Window(len(all), page, pageSize)
	totalPages := utils.TotalPages(len(all), pageSize)
	ok(c, http.StatusOK, MyCheckInsResponse{
		CheckIns: all[lo:hi],
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int64(len(all)),
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetMyQuota godoc
// @ID          getMyQuota
// @Summary     My quota
// @Description Returns the device's check-in allowance. If the store cannot be read the default allowance is returned with degraded=true.
// @Tags        Me
// @Produce     json
//
// @Param       X-Fingerprint  header  string  false "Device fingerprint token"  example(1x9ab2k)
//
// @Success     200  {object} handlers.QuotaResponse
// @Failure     401  {object} handlers.ErrorResponse "No device identity"
// @Router      /me/quota [get]
func (h *Handlers) GetMyQuota(c *gin.Context) {
	ctx := c.Request.Context()
	fp := h.mine.Fingerprint(ctx)
	if fp == "" {
		failService(c, services.ErrNoIdentity)
		return
	}
	v, found := h.quota.View(ctx, fp)
	ok(c, http.StatusOK, QuotaResponse{QuotaView: v, Degraded: !found})
}

// UpdateLocation godoc
// @ID          updateCheckInLocation
// @Summary     Move a check-in
// @Description Updates the coordinates of a check-in owned by this device. Does not consume quota.
// @Tags        CheckIns
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Check-in ID (UUID)"  format(uuid)
// @Param       body  body  handlers.LocationPayload  true  "New position"
//
// @Success     200  {object} domain.CheckIn
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Owned by another device"
// @Failure     404  {object} handlers.ErrorResponse "Check-in not found"
// @Router      /checkins/{id}/location [put]
func (h *Handlers) UpdateLocation(c *gin.Context) {
	id, valid := checkInID(c)
	if !valid {
		return
	}
	var req LocationPayload
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lon == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lat and lon required")
		return
	}
	ci, err := h.mine.UpdateLocation(c.Request.Context(), id, *req.Lat, *req.Lon)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ci)
}

// SetStatus godoc
// @ID          setCheckInStatus
// @Summary     Set online status
// @Description Shows or hides a check-in owned by this device on the live roster.
// @Tags        CheckIns
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Check-in ID (UUID)"  format(uuid)
// @Param       body  body  handlers.StatusRequest  true  "Online flag"
//
// @Success     200  {object} domain.CheckIn
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Owned by another device"
// @Failure     404  {object} handlers.ErrorResponse "Check-in not found"
// @Router      /checkins/{id}/status [put]
func (h *Handlers) SetStatus(c *gin.Context) {
	id, valid := checkInID(c)
	if !valid {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsOnline == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "is_online required")
		return
	}
	ci, err := h.mine.SetOnline(c.Request.Context(), id, *req.IsOnline)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ci)
}

// ToggleStatus godoc
// @ID          toggleCheckInStatus
// @Summary     Toggle online status
// @Description Flips the online flag of a check-in owned by this device.
// @Tags        CheckIns
// @Produce     json
//
// @Param       id  path  string  true  "Check-in ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.CheckIn
// @Failure     403  {object} handlers.ErrorResponse "Owned by another device"
// @Failure     404  {object} handlers.ErrorResponse "Check-in not found"
// @Router      /checkins/{id}/toggle [post]
func (h *Handlers) ToggleStatus(c *gin.Context) {
	id, valid := checkInID(c)
	if !valid {
		return
	}
	ci, err := h.mine.Toggle(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ci)
}

// UpdateProfile godoc
// @ID          updateCheckInProfile
// @Summary     Edit a check-in
// @Description Replaces name, skills and contact of a check-in owned by this device.
// @Tags        CheckIns
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Check-in ID (UUID)"  format(uuid)
// @Param       body  body  handlers.ProfileRequest  true  "Profile"
//
// @Success     200  {object} domain.CheckIn
// @Failure     400  {object} handlers.ErrorResponse "Invalid profile"
// @Failure     403  {object} handlers.ErrorResponse "Owned by another device"
// @Failure     404  {object} handlers.ErrorResponse "Check-in not found"
// @Router      /checkins/{id}/profile [put]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	id, valid := checkInID(c)
	if !valid {
		return
	}
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, ErrCodeInvalidProfile, "name required")
		return
	}
	ci, err := h.mine.UpdateProfile(c.Request.Context(), id, req.input())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ci)
}
