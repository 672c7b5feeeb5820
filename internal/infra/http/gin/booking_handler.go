package ginserver

import (
	"errors"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"motorent/internal/app/commands"
	bookingapp "motorent/internal/app/handlers/booking"
	"motorent/internal/app/queries"
	domainbooking "motorent/internal/domain/booking"
	domainstation "motorent/internal/domain/station"
	domainuser "motorent/internal/domain/user"
	domainvehicle "motorent/internal/domain/vehicle"
)

type BookingHTTP interface {
	Create(c *gin.Context)
	Cancel(c *gin.Context)
	Confirm(c *gin.Context)
	Scan(c *gin.Context)
	ListMine(c *gin.Context)
}

type BookingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
}

type createBookingRequest struct {
	Model      string    `json:"model"`
	Color      string    `json:"color"`
	StationID  string    `json:"station_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	PickupTime string    `json:"pickup_time"`
	ReturnTime string    `json:"return_time"`
}

func (h BookingHandler) Create(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Commands == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "commands unavailable"})
		return
	}
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := bookingapp.CreateBookingCommand{
		CommandID:       generateCommandID(),
		UserID:          p.ID,
		Model:           req.Model,
		Color:           req.Color,
		StationID:       req.StationID,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		PickupTime:      req.PickupTime,
		ReturnTime:      req.ReturnTime,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[bookingapp.CreateBookingCommand, *bookingapp.CreateBookingResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondBookingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

func (h BookingHandler) Cancel(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	var req cancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := bookingapp.CancelBookingCommand{
		CommandID:       generateCommandID(),
		ActorID:         p.ID,
		BookingID:       c.Param("id"),
		Reason:          req.Reason,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[bookingapp.CancelBookingCommand, *bookingapp.CancelBookingResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type confirmBookingRequest struct {
	Before        conditionReportRequest `json:"before"`
	ContractTplID string                 `json:"contract_template_id"`
}

func (h BookingHandler) Confirm(c *gin.Context) {
	p, ok := requireRole(c, string(domainuser.RoleStaff))
	if !ok {
		return
	}
	var req confirmBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := bookingapp.ConfirmBookingCommand{
		CommandID:       generateCommandID(),
		StaffID:         p.ID,
		BookingID:       c.Param("id"),
		Before:          req.Before.toReport(),
		ContractTplID:   req.ContractTplID,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[bookingapp.ConfirmBookingCommand, *bookingapp.ConfirmBookingResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type scanRequest struct {
	Token string `json:"token"`
}

func (h BookingHandler) Scan(c *gin.Context) {
	p, ok := requireRole(c, string(domainuser.RoleStaff))
	if !ok {
		return
	}
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := bookingapp.ScanCheckInCommand{
		CommandID: generateCommandID(),
		StaffID:   p.ID,
		Token:     req.Token,
	}
	result, err := commands.Dispatch[bookingapp.ScanCheckInCommand, *bookingapp.ScanCheckInResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) ListMine(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Queries == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queries unavailable"})
		return
	}
	result, err := queries.Ask[bookingapp.ListBookingsQuery, *bookingapp.ListBookingsResult](c.Request.Context(), h.Queries, bookingapp.ListBookingsQuery{UserID: p.ID})
	if err != nil {
		respondBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func respondBookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainbooking.ErrNotFound),
		errors.Is(err, domainvehicle.ErrNotFound),
		errors.Is(err, domainuser.ErrNotFound),
		errors.Is(err, domainstation.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domainuser.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domainbooking.ErrNoAvailableVehicle),
		errors.Is(err, domainbooking.ErrConcurrentReservation),
		errors.Is(err, domainbooking.ErrAlreadyCancelled),
		errors.Is(err, domainvehicle.ErrStatusConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domainbooking.ErrNotCancellable),
		errors.Is(err, domainbooking.ErrTooManyActive),
		errors.Is(err, domainbooking.ErrCheckInExpired),
		errors.Is(err, domainbooking.ErrNotCheckedIn),
		errors.Is(err, domainbooking.ErrWrongStation),
		errors.Is(err, bookingapp.ErrKycNotApproved):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func generateCommandID() string {
	return uuid.NewString()
}

var _ BookingHTTP = BookingHandler{}
