package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"options-dashboard/interfaces"
	"options-dashboard/services"
)

// OptionController handles option contract and reference quote endpoints
type OptionController struct {
	contracts *services.ContractService
	logger    *logrus.Logger
}

// NewOptionController creates a new option controller
func NewOptionController(contracts *services.ContractService, log *logrus.Logger) *OptionController {
	if log == nil {
		log = logrus.New()
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return &OptionController{
		contracts: contracts,
		logger:    log,
	}
}

// HandleListOptions lists contracts in insertion order
// GET /options?offset=0&limit=10
func (oc *OptionController) HandleListOptions(c *gin.Context) {
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			bindError(c, "offset", errors.New("must be an integer"))
			return
		}
		offset = v
	}

	var limit *int
	raw := c.Query("limit")
	if raw == "" {
		// first_n is the older name of limit
		raw = c.Query("first_n")
	}
	if raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			bindError(c, "limit", errors.New("must be an integer"))
			return
		}
		limit = &v
	}

	options, err := oc.contracts.List(c.Request.Context(), offset, limit)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	c.JSON(http.StatusOK, options)
}

// HandleGetOption retrieves a specific contract
// GET /options/:id
func (oc *OptionController) HandleGetOption(c *gin.Context) {
	id, ok := optionID(c)
	if !ok {
		return
	}

	option, err := oc.contracts.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	c.JSON(http.StatusOK, option)
}

// HandleGetEnrichedOption returns a contract merged with live reference data.
// Provider failures still answer 200 with enrichment_unavailable set.
// GET /options/:id/enriched
func (oc *OptionController) HandleGetEnrichedOption(c *gin.Context) {
	id, ok := optionID(c)
	if !ok {
		return
	}

	enriched, err := oc.contracts.GetEnriched(c.Request.Context(), id)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	c.JSON(http.StatusOK, enriched)
}

// HandleCreateOption stores a new contract
// POST /options
func (oc *OptionController) HandleCreateOption(c *gin.Context) {
	var draft interfaces.OptionDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		bindError(c, "body", err)
		return
	}

	option, err := oc.contracts.Create(c.Request.Context(), bearerToken(c), draft)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	c.JSON(http.StatusCreated, option)
}

// HandleUpdateOption applies a partial update
// PUT /options/:id
func (oc *OptionController) HandleUpdateOption(c *gin.Context) {
	id, ok := optionID(c)
	if !ok {
		return
	}

	var patch interfaces.OptionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		bindError(c, "body", err)
		return
	}

	option, err := oc.contracts.Update(c.Request.Context(), bearerToken(c), id, patch)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	c.JSON(http.StatusOK, option)
}

// HandleDeleteOption removes a contract
// DELETE /options/:id
func (oc *OptionController) HandleDeleteOption(c *gin.Context) {
	id, ok := optionID(c)
	if !ok {
		return
	}

	if err := oc.contracts.Delete(c.Request.Context(), bearerToken(c), id); err != nil {
		respondError(c, oc.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"detail": "Option contract deleted",
	})
}

// HandleGetQuote returns the cached reference payload for a ticker
// GET /quotes/:ticker
func (oc *OptionController) HandleGetQuote(c *gin.Context) {
	entry, err := oc.contracts.Quote(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// HandleRefreshQuote drops a cached payload so the next read refetches it
// DELETE /quotes/:ticker
func (oc *OptionController) HandleRefreshQuote(c *gin.Context) {
	if err := oc.contracts.RefreshQuote(c.Request.Context(), bearerToken(c), c.Param("ticker")); err != nil {
		respondError(c, oc.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"detail": "Quote invalidated",
	})
}

// optionID parses the :id path parameter, answering 422 when it is not a non-negative integer
func optionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 0 {
		bindError(c, "id", errors.New("must be a non-negative integer"))
		return 0, false
	}
	return id, true
}
