package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"poolscope/internal/model"
	"poolscope/internal/resolver"
)

// ResponseError is the JSON error body.
type ResponseError struct {
	Message string `json:"message"`
}

// PoolsHandler serves the /pools resource.
type PoolsHandler struct {
	resolver *resolver.Resolver
}

// Register mounts the handler's routes.
func (h *PoolsHandler) Register(e *echo.Echo) {
	e.GET("/pools", h.GetPools)
	e.GET("/pools/search", h.SearchPools)
	e.GET("/pools/by-tokens", h.GetPoolByTokens)
	e.POST("/pools/batch", h.BatchGetPools)
	e.GET("/pools/:address", h.GetPool)
	e.GET("/stats", h.GetStats)
}

// GetPool returns one pool by contract address.
func (h *PoolsHandler) GetPool(c echo.Context) error {
	address := c.Param("address")
	if !model.IsAddress(address) {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "malformed pool address"})
	}
	chainID, err := chainParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	result := h.resolver.GetPool(c.Request().Context(), chainID, address)
	return c.JSON(statusFor(result.Success, result.Err), result)
}

// GetPoolByTokens returns the pool for a token pair and fee tier.
func (h *PoolsHandler) GetPoolByTokens(c echo.Context) error {
	tokenA := c.QueryParam("tokenA")
	tokenB := c.QueryParam("tokenB")
	if !model.IsAddress(tokenA) || !model.IsAddress(tokenB) {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "tokenA and tokenB must be addresses"})
	}

	fee, err := strconv.ParseUint(c.QueryParam("fee"), 10, 32)
	if err != nil || !model.ValidFeeTier(uint32(fee)) {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "unknown fee tier"})
	}
	chainID, err := chainParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	result := h.resolver.GetPoolByTokens(c.Request().Context(), chainID, tokenA, tokenB, uint32(fee))
	return c.JSON(statusFor(result.Success, result.Err), result)
}

// GetPools lists pools with optional filters.
func (h *PoolsHandler) GetPools(c echo.Context) error {
	chainID, err := chainParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	filter := model.PoolFilter{
		Token:          c.QueryParam("token"),
		MinTVLUSD:      c.QueryParam("minTvlUsd"),
		MinVolumeUSD:   c.QueryParam("minVolumeUsd"),
		OrderBy:        c.QueryParam("orderBy"),
		OrderDirection: c.QueryParam("orderDirection"),
	}
	if raw := c.QueryParam("fee"); raw != "" {
		fee, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || !model.ValidFeeTier(uint32(fee)) {
			return c.JSON(http.StatusBadRequest, ResponseError{Message: "unknown fee tier"})
		}
		filter.FeeTier = uint32(fee)
	}
	if raw := c.QueryParam("first"); raw != "" {
		if filter.First, err = strconv.Atoi(raw); err != nil {
			return c.JSON(http.StatusBadRequest, ResponseError{Message: "first must be an integer"})
		}
	}
	if raw := c.QueryParam("skip"); raw != "" {
		if filter.Skip, err = strconv.Atoi(raw); err != nil {
			return c.JSON(http.StatusBadRequest, ResponseError{Message: "skip must be an integer"})
		}
	}

	result := h.resolver.GetPools(c.Request().Context(), chainID, filter)
	return c.JSON(statusFor(result.Success, result.Err), result)
}

// SearchPools resolves a free-form query against addresses and symbols.
func (h *PoolsHandler) SearchPools(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "q is required"})
	}
	chainID, err := chainParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	opts := resolver.SearchOptions{}
	if raw := c.QueryParam("limit"); raw != "" {
		if opts.Limit, err = strconv.Atoi(raw); err != nil {
			return c.JSON(http.StatusBadRequest, ResponseError{Message: "limit must be an integer"})
		}
	}

	result := h.resolver.SearchPools(c.Request().Context(), query, chainID, opts)
	return c.JSON(statusFor(result.Success, result.Err), result)
}

// BatchGetPools resolves many pools in one call, best-effort.
func (h *PoolsHandler) BatchGetPools(c echo.Context) error {
	var body struct {
		Requests []resolver.BatchRequest `json:"requests"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "malformed batch body"})
	}

	result := h.resolver.BatchGetPools(c.Request().Context(), body.Requests)
	return c.JSON(statusFor(result.Success, result.Err), result)
}

// GetStats reports cache effectiveness counters.
func (h *PoolsHandler) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.resolver.Cache().Stats())
}

func chainParam(c echo.Context) (uint64, error) {
	raw := c.QueryParam("chain")
	if raw == "" {
		return 1, nil
	}
	chainID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || chainID == 0 {
		return 0, fmt.Errorf("chain must be a positive integer")
	}
	return chainID, nil
}

// statusFor maps a failed result to an HTTP status while keeping the result
// body intact so callers still see provenance and latency.
func statusFor(success bool, errText string) int {
	if success {
		return http.StatusOK
	}
	if strings.Contains(errText, model.ErrNotFound.Error()) {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}
