package apirouter

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hookline/hookline/internal/idgen"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/models"
)

type apiStore interface {
	CreateApplication(ctx context.Context, app *models.Application) error
	RetrieveApplication(ctx context.Context, id idgen.ApplicationID) (*models.Application, error)
	CreateEndpoint(ctx context.Context, endpoint *models.Endpoint) error
	RetrieveEndpoint(ctx context.Context, id idgen.EndpointID) (*models.Endpoint, error)
	UpdateEndpointStatus(ctx context.Context, id idgen.EndpointID, status models.EndpointStatus) error
}

type eventPublisher interface {
	PublishEvent(ctx context.Context, appID idgen.ApplicationID, topic string, payload models.Payload) (*models.Event, error)
}

type Handlers struct {
	logger    *logging.Logger
	store     apiStore
	publisher eventPublisher
	now       func() time.Time
}

func NewHandlers(logger *logging.Logger, store apiStore, publisher eventPublisher) *Handlers {
	return &Handlers{
		logger:    logger,
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

func (h *Handlers) HealthCheck(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

type createApplicationRequest struct {
	Name string `json:"name" binding:"required"`
}

type applicationResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *Handlers) CreateApplication(c *gin.Context) {
	var req createApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err)
		return
	}

	app, err := models.NewApplication(req.Name, h.now())
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.store.CreateApplication(c.Request.Context(), app); err != nil {
		c.Error(NewErrInternalServer(err))
		return
	}

	c.JSON(http.StatusCreated, applicationResponse{
		ID:   app.ID.String(),
		Name: app.Name,
	})
}

type createEndpointRequest struct {
	URL    string   `json:"url" binding:"required"`
	Topics []string `json:"topics" binding:"required,min=1"`
}

type endpointResponse struct {
	ID     string   `json:"id"`
	AppID  string   `json:"app_id"`
	URL    string   `json:"url"`
	Topics []string `json:"topics"`
	Status string   `json:"status"`
}

func (h *Handlers) CreateEndpoint(c *gin.Context) {
	app, ok := h.lookupApplication(c)
	if !ok {
		return
	}

	var req createEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err)
		return
	}

	endpoint, err := models.NewEndpoint(app.ID, req.URL, req.Topics, h.now())
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.store.CreateEndpoint(c.Request.Context(), endpoint); err != nil {
		c.Error(NewErrInternalServer(err))
		return
	}

	c.JSON(http.StatusCreated, endpointResponse{
		ID:     endpoint.ID.String(),
		AppID:  endpoint.ApplicationID.String(),
		URL:    endpoint.URL,
		Topics: endpoint.Topics,
		Status: string(endpoint.Status),
	})
}

func (h *Handlers) DisableEndpoint(c *gin.Context) {
	h.transitionEndpoint(c, func(endpoint *models.Endpoint) {
		endpoint.Disable()
	})
}

func (h *Handlers) EnableEndpoint(c *gin.Context) {
	h.transitionEndpoint(c, func(endpoint *models.Endpoint) {
		endpoint.Enable()
	})
}

func (h *Handlers) transitionEndpoint(c *gin.Context, apply func(*models.Endpoint)) {
	app, ok := h.lookupApplication(c)
	if !ok {
		return
	}

	endpointID, err := idgen.ParseEndpointID(c.Param("endpointID"))
	if notFoundOnLookupError(c, "endpoint", err) {
		return
	}
	endpoint, err := h.store.RetrieveEndpoint(c.Request.Context(), endpointID)
	if notFoundOnLookupError(c, "endpoint", err) {
		return
	}
	// Endpoints are addressed through their owning application.
	if endpoint.ApplicationID != app.ID {
		c.Error(NewErrNotFound("endpoint"))
		return
	}

	apply(endpoint)
	if err := h.store.UpdateEndpointStatus(c.Request.Context(), endpoint.ID, endpoint.Status); err != nil {
		c.Error(NewErrInternalServer(err))
		return
	}

	c.Status(http.StatusNoContent)
}

type publishEventRequest struct {
	Topic   string          `json:"topic" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

type publishEventResponse struct {
	ID string `json:"id"`
}

func (h *Handlers) PublishEvent(c *gin.Context) {
	app, ok := h.lookupApplication(c)
	if !ok {
		return
	}

	var req publishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err)
		return
	}

	event, err := h.publisher.PublishEvent(c.Request.Context(), app.ID, req.Topic, models.Payload(req.Payload))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, publishEventResponse{ID: event.ID.String()})
}

func (h *Handlers) lookupApplication(c *gin.Context) (*models.Application, bool) {
	appID, err := idgen.ParseApplicationID(c.Param("appID"))
	if notFoundOnLookupError(c, "application", err) {
		return nil, false
	}
	app, err := h.store.RetrieveApplication(c.Request.Context(), appID)
	if notFoundOnLookupError(c, "application", err) {
		return nil, false
	}
	return app, true
}
