package events

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"incidentdb/internal/catalog"
	"incidentdb/internal/constants"
	"incidentdb/internal/logger"
	"incidentdb/internal/query"
)

// TicketService is what the ticket endpoints need from Service.
type TicketService interface {
	TicketSearch(ctx context.Context, spec query.FilterSpec, opts query.Options) (*SearchResult, error)
	TicketStat(ctx context.Context, spec query.FilterSpec, opts query.Options) (*StatResult, error)
	Ticket(ctx context.Context, ticket string) ([]Row, error)
	Recipients(ctx context.Context, ticket string) ([]Recipient, error)
	TicketEventIDs(ctx context.Context, ticket string) ([]int64, error)
	TicketEvents(ctx context.Context, ticket string, limit int) ([]Row, error)
	LastTicket(ctx context.Context) (string, error)
	Event(ctx context.Context, ids []int64, include []string) ([]Row, error)
	Subqueries() []catalog.KeyInfo
	Location() *time.Location
}

// TicketHandler serves the ticket view and the ticket check endpoints.
type TicketHandler struct {
	Service TicketService
	Logger  logger.Logger
}

func NewTicketHandler(service TicketService, log logger.Logger) *TicketHandler {
	return &TicketHandler{
		Service: service,
		Logger:  log,
	}
}

func (h *TicketHandler) HandleError(c *gin.Context, err error) {
	handleError(c, h.Logger, err)
}

func (h *TicketHandler) RegisterRoutes(router gin.IRouter) {
	tickets := router.Group("/api/tickets")
	{
		tickets.GET("", h.GetTicket)
		tickets.GET("/search", h.Search)
		tickets.GET("/stats", h.Stats)
		tickets.GET("/subqueries", h.Subqueries)
		tickets.GET("/getRecipient", h.GetRecipient)
	}

	check := router.Group("/api/checkticket")
	{
		check.GET("/getEventIDsForTicket", h.GetEventIDs)
		check.GET("/getEvents", h.GetEvents)
		check.GET("/getEventsForTicket", h.GetEventsForTicket)
		check.GET("/getLastTicketNumber", h.GetLastTicketNumber)
	}
}

// GetTicket godoc
// @Summary      Get a ticket
// @Description  Return the events of a ticket with their directives and sent rows
// @Tags         tickets
// @Produce      json
// @Param        ticketnumber  query     string  true  "Ticket number"
// @Success      200  {array}   Row
// @Failure      400  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Router       /tickets [get]
func (h *TicketHandler) GetTicket(c *gin.Context) {
	rows, err := h.Service.Ticket(c.Request.Context(), strings.TrimSpace(c.Query(constants.ParamTicketNumber)))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Search godoc
// @Summary      Search tickets
// @Description  Search events together with the directives and sent rows they were notified with
// @Tags         tickets
// @Produce      json
// @Param        limit   query     int     false  "Page size"
// @Param        offset  query     int     false  "Rows to skip"
// @Param        sort    query     string  false  "Sort keys, prefixed with - for descending"
// @Success      200  {object}  SearchResult
// @Failure      400  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /tickets/search [get]
func (h *TicketHandler) Search(c *gin.Context) {
	spec, opts, err := parseRequest(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	result, err := h.Service.TicketSearch(c.Request.Context(), spec, opts)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Stats godoc
// @Summary      Ticket statistics
// @Description  Count distinct tickets per bucket of their sent time
// @Tags         tickets
// @Produce      json
// @Param        timeres  query     string  false  "Bucket width (hour, day, week, month)"
// @Success      200  {object}  StatResult
// @Failure      400  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /tickets/stats [get]
func (h *TicketHandler) Stats(c *gin.Context) {
	spec, opts, err := parseRequest(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	result, err := h.Service.TicketStat(c.Request.Context(), spec, opts)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Subqueries godoc
// @Summary      List filter keys
// @Description  List the usable filter keys by name and the database time zone
// @Tags         tickets
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /tickets/subqueries [get]
func (h *TicketHandler) Subqueries(c *gin.Context) {
	subqueries(c, h.Service)
}

// GetRecipient godoc
// @Summary      Get ticket recipients
// @Description  Return the directives and sent rows of a ticket
// @Tags         tickets
// @Produce      json
// @Param        ticketnumber  query     string  true  "Ticket number"
// @Success      200  {array}   Recipient
// @Failure      400  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Router       /tickets/getRecipient [get]
func (h *TicketHandler) GetRecipient(c *gin.Context) {
	recipients, err := h.Service.Recipients(c.Request.Context(), strings.TrimSpace(c.Query(constants.ParamTicketNumber)))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipients)
}

// GetEventIDs godoc
// @Summary      Event ids of a ticket
// @Description  List the ids of the events notified with a ticket in ascending order
// @Tags         checkticket
// @Produce      json
// @Param        ticket  query     string  true  "Ticket number"
// @Success      200  {array}   int
// @Failure      400  {object}  map[string]interface{}
// @Router       /checkticket/getEventIDsForTicket [get]
func (h *TicketHandler) GetEventIDs(c *gin.Context) {
	ids, err := h.Service.TicketEventIDs(c.Request.Context(), strings.TrimSpace(c.Query(constants.ParamTicket)))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, ids)
}

// GetEvents godoc
// @Summary      Get events by id
// @Description  Return whole events for a list of ids
// @Tags         checkticket
// @Produce      json
// @Param        ids  query     []int  true  "Event ids, repeated or comma separated"  collectionFormat(multi)
// @Success      200  {array}   Row
// @Failure      400  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Router       /checkticket/getEvents [get]
func (h *TicketHandler) GetEvents(c *gin.Context) {
	ids, err := idParams(c, constants.ParamIDs)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	rows, err := h.Service.Event(c.Request.Context(), ids, nil)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GetEventsForTicket godoc
// @Summary      Events of a ticket
// @Description  Return the events for the first limit event ids of a ticket
// @Tags         checkticket
// @Produce      json
// @Param        ticket  query     string  true   "Ticket number"
// @Param        limit   query     int     false  "Maximum number of events"
// @Success      200  {array}   Row
// @Failure      400  {object}  map[string]interface{}
// @Router       /checkticket/getEventsForTicket [get]
func (h *TicketHandler) GetEventsForTicket(c *gin.Context) {
	limit, err := intParam(c, constants.ParamLimit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	rows, err := h.Service.TicketEvents(c.Request.Context(), strings.TrimSpace(c.Query(constants.ParamTicket)), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GetLastTicketNumber godoc
// @Summary      Last ticket number
// @Description  Return the ticket number sent most recently
// @Tags         checkticket
// @Produce      json
// @Success      200  {string}  string
// @Failure      404  {object}  map[string]interface{}
// @Router       /checkticket/getLastTicketNumber [get]
func (h *TicketHandler) GetLastTicketNumber(c *gin.Context) {
	ticket, err := h.Service.LastTicket(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}
