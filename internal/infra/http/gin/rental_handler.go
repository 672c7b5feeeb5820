package ginserver

import (
	"errors"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"motorent/internal/app/commands"
	rentalapp "motorent/internal/app/handlers/rental"
	"motorent/internal/app/policies"
	"motorent/internal/app/queries"
	domainrental "motorent/internal/domain/rental"
	domainuser "motorent/internal/domain/user"
	"motorent/internal/infra/storage/s3"
)

type RentalHTTP interface {
	Checkout(c *gin.Context)
	Get(c *gin.Context)
	UploadPhoto(c *gin.Context)
}

type RentalHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Photos   policies.PhotoStore
}

type conditionReportRequest struct {
	Mileage      int      `json:"mileage"`
	BatteryLevel int      `json:"battery_level"`
	Exterior     string   `json:"exterior"`
	Interior     string   `json:"interior"`
	Notes        string   `json:"notes"`
	PhotoURLs    []string `json:"photo_urls"`
}

func (r conditionReportRequest) toReport() domainrental.ConditionReport {
	return domainrental.ConditionReport{
		Mileage:      r.Mileage,
		BatteryLevel: r.BatteryLevel,
		Exterior:     domainrental.Condition(r.Exterior),
		Interior:     domainrental.Condition(r.Interior),
		Notes:        r.Notes,
		PhotoURLs:    r.PhotoURLs,
	}
}

type checkoutRequest struct {
	After     conditionReportRequest `json:"after"`
	OtherFees int64                  `json:"other_fees"`
	Notes     string                 `json:"notes"`
}

func (h RentalHandler) Checkout(c *gin.Context) {
	p, ok := requireRole(c, string(domainuser.RoleStaff))
	if !ok {
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := rentalapp.CheckoutCommand{
		CommandID:       generateCommandID(),
		StaffID:         p.ID,
		RentalID:        c.Param("id"),
		After:           req.After.toReport(),
		OtherFees:       req.OtherFees,
		Notes:           req.Notes,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[rentalapp.CheckoutCommand, *rentalapp.CheckoutResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondRentalError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h RentalHandler) Get(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	result, err := queries.Ask[rentalapp.GetRentalQuery, *rentalapp.RentalView](c.Request.Context(), h.Queries, rentalapp.GetRentalQuery{RentalID: c.Param("id")})
	if err != nil {
		respondRentalError(c, err)
		return
	}
	if result.UserID != p.ID && !p.HasRole(string(domainuser.RoleStaff)) && !p.HasRole(string(domainuser.RoleAdmin)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// UploadPhoto stores one inspection photo and returns its public URL. The
// URL is then referenced from the pickup or return condition report.
func (h RentalHandler) UploadPhoto(c *gin.Context) {
	_, ok := requireRole(c, string(domainuser.RoleStaff))
	if !ok {
		return
	}
	if h.Photos == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "photo store unavailable"})
		return
	}
	phase := c.Param("phase")
	if phase != "pickup" && phase != "return" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phase must be pickup or return"})
		return
	}
	file, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	key := s3.PhotoKey(c.Param("id"), phase, file.Filename)
	url, err := h.Photos.Upload(c.Request.Context(), key, src, file.Header.Get("Content-Type"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

func respondRentalError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainrental.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domainuser.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domainrental.ErrNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

var _ RentalHTTP = RentalHandler{}
