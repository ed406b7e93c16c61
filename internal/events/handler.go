package events

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"incidentdb/internal/catalog"
	"incidentdb/internal/constants"
	"incidentdb/internal/logger"
	"incidentdb/internal/query"
	"incidentdb/pkg/errors"
)

// EventService is what the HTTP layer needs from Service.
type EventService interface {
	Search(ctx context.Context, spec query.FilterSpec, opts query.Options) (*SearchResult, error)
	Export(ctx context.Context, spec query.FilterSpec, opts query.Options) (*ExportResult, error)
	Stat(ctx context.Context, spec query.FilterSpec, opts query.Options) (*StatResult, error)
	Event(ctx context.Context, ids []int64, include []string) ([]Row, error)
	Subqueries() []catalog.KeyInfo
	Location() *time.Location
}

type Handler struct {
	Service EventService
	Logger  logger.Logger
}

func NewHandler(service EventService, log logger.Logger) *Handler {
	return &Handler{
		Service: service,
		Logger:  log,
	}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	handleError(c, h.Logger, err)
}

func handleError(c *gin.Context, log logger.Logger, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		log.InfowCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/events")
	{
		api.GET("", h.GetEvent)
		api.GET("/search", h.Search)
		api.GET("/stats", h.Stats)
		api.GET("/export", h.Export)
		api.GET("/subqueries", h.Subqueries)
	}
}

// GetEvent godoc
// @Summary      Get events by id
// @Description  Return whole events for one or more id parameters
// @Tags         events
// @Produce      json
// @Param        id       query     []int   true   "Event ids, repeated or comma separated"  collectionFormat(multi)
// @Param        include  query     string  false  "Optional tables to join (directives, sent)"
// @Success      200  {array}   Row
// @Failure      400  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /events [get]
func (h *Handler) GetEvent(c *gin.Context) {
	ids, err := idParams(c, constants.ParamID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	rows, err := h.Service.Event(c.Request.Context(), ids, listParam(c, constants.ParamInclude))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Search godoc
// @Summary      Search events
// @Description  Return the main columns of the events matching every filter parameter
// @Tags         events
// @Produce      json
// @Param        limit    query     int     false  "Page size"
// @Param        offset   query     int     false  "Rows to skip"
// @Param        sort     query     string  false  "Sort keys, prefixed with - for descending"
// @Param        include  query     string  false  "Optional tables to join (directives, sent)"
// @Success      200  {object}  SearchResult
// @Failure      400  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /events/search [get]
func (h *Handler) Search(c *gin.Context) {
	spec, opts, err := parseRequest(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	result, err := h.Service.Search(c.Request.Context(), spec, opts)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Stats godoc
// @Summary      Event statistics
// @Description  Count matching events per time bucket, empty buckets included
// @Tags         events
// @Produce      json
// @Param        timeres   query     string  false  "Bucket width (hour, day, week, month)"
// @Param        timeaxis  query     string  false  "Datetime key to bucket by"
// @Success      200  {object}  StatResult
// @Failure      400  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /events/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	spec, opts, err := parseRequest(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	result, err := h.Service.Stat(c.Request.Context(), spec, opts)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Export godoc
// @Summary      Export events
// @Description  Return complete matching events, up to the export row cap
// @Tags         events
// @Produce      json
// @Param        include  query     string  false  "Optional tables to join (directives, sent)"
// @Success      200  {object}  ExportResult
// @Failure      400  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /events/export [get]
func (h *Handler) Export(c *gin.Context) {
	spec, opts, err := parseRequest(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	result, err := h.Service.Export(c.Request.Context(), spec, opts)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Subqueries godoc
// @Summary      List filter keys
// @Description  List the usable filter keys by name and the time zone dates without an offset are read in
// @Tags         events
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /events/subqueries [get]
func (h *Handler) Subqueries(c *gin.Context) {
	subqueries(c, h.Service)
}

type keyLister interface {
	Subqueries() []catalog.KeyInfo
	Location() *time.Location
}

func subqueries(c *gin.Context, svc keyLister) {
	keys := svc.Subqueries()
	byName := make(map[string]catalog.KeyInfo, len(keys))
	for _, k := range keys {
		byName[k.Key] = k
	}
	c.JSON(http.StatusOK, gin.H{
		"subqueries": byName,
		"timezone":   svc.Location().String(),
	})
}

func parseRequest(c *gin.Context) (query.FilterSpec, query.Options, error) {
	var opts query.Options

	limit, err := intParam(c, constants.ParamLimit)
	if err != nil {
		return nil, opts, err
	}
	offset, err := intParam(c, constants.ParamOffset)
	if err != nil {
		return nil, opts, err
	}
	res, err := query.ParseResolution(c.Query(constants.ParamResolution))
	if err != nil {
		return nil, opts, errors.ErrInvalidFilterValue.
			WithMessage(err.Error()).
			WithDetail("key", constants.ParamResolution)
	}

	opts.Limit = limit
	opts.Offset = offset
	opts.Resolution = res
	opts.Include = listParam(c, constants.ParamInclude)
	opts.StatAxis = strings.TrimSpace(c.Query(constants.ParamStatAxis))
	for _, key := range listParam(c, constants.ParamSort) {
		if strings.HasPrefix(key, "-") {
			opts.Sort = append(opts.Sort, query.SortKey{Key: strings.TrimPrefix(key, "-"), Desc: true})
			continue
		}
		opts.Sort = append(opts.Sort, query.SortKey{Key: key})
	}

	spec := query.FromValues(c.Request.URL.Query(), constants.ReservedParams...)
	return spec, opts, nil
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.ErrInvalidFilterValue.
			WithMessagef("%s must be a non-negative integer", name).
			WithDetail("key", name).
			WithDetail("value", raw)
	}
	return n, nil
}

// idParams parses repeated or comma separated integer ids.
func idParams(c *gin.Context, name string) ([]int64, error) {
	var ids []int64
	for _, part := range listParam(c, name) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, errors.ErrInvalidFilterValue.
				WithMessagef("invalid event id %q", part).
				WithDetail("key", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// listParam accepts both repeated and comma separated values.
func listParam(c *gin.Context, name string) []string {
	var out []string
	for _, v := range c.QueryArray(name) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
