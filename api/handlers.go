package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/gin-gonic/gin"

	"hostscan/bans"
	"hostscan/eventloop"
	"hostscan/exempt"
	"hostscan/scanner"
)

// EndpointSource reports the configured scan endpoint.
type EndpointSource interface {
	Endpoint() (netip.AddrPort, bool)
}

// Server bundles dependencies for HTTP handlers.
type Server struct {
	module   *scanner.Module
	loop     *eventloop.Loop
	bans     *bans.Table
	exempt   *exempt.List
	endpoint EndpointSource
}

// Deps are the components the API reads from. The ban table is only ever
// read on the core loop.
type Deps struct {
	Module   *scanner.Module
	Loop     *eventloop.Loop
	Bans     *bans.Table
	Exempt   *exempt.List
	Endpoint EndpointSource
}

// NewServer creates a new API server instance.
func NewServer(deps Deps) *Server {
	return &Server{
		module:   deps.Module,
		loop:     deps.Loop,
		bans:     deps.Bans,
		exempt:   deps.Exempt,
		endpoint: deps.Endpoint,
	}
}

// RegisterRoutes attaches handlers to the provided Gin router group.
func (s *Server) RegisterRoutes(routes gin.IRoutes) {
	routes.GET("/status", s.statusHandler)
	routes.GET("/scans", s.listScansHandler)
	routes.GET("/bans", s.listBansHandler)
	routes.GET("/exemptions", s.listExemptionsHandler)
	routes.PUT("/exemptions", s.replaceExemptionsHandler)
}

// @Summary      Liveness probe
// @Tags         Health
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Router       /healthz [get]
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// @Summary      Scan subsystem status
// @Description  Reports the bound scan endpoint, registered probe hooks, registry occupancy and worker pool usage.
// @Description  **Unload**: quiescent becomes true once every record has been swept; only then can the scan module unload.
// @Tags         Scans
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      401  {object}  ErrorResponse  "Missing or incorrect API key. Example: {\"error\":\"unauthorized\"}"
// @Failure      429  {object}  ErrorResponse  "Rate limit exceeded. Example: {\"error\":\"rate limit exceeded\"}"
// @Failure      503  {object}  ErrorResponse  "Core loop is not running. Example: {\"error\":\"event loop stopped\"}"
// @Security     ApiKeyAuth
// @Router       /status [get]
func (s *Server) statusHandler(c *gin.Context) {
	resp := StatusResponse{
		ActiveScans:   s.module.Registry.Len(),
		Quiescent:     s.module.IsQuiescent(),
		QueuedResults: s.module.Results.Len(),
		Hooks:         []string{},
	}
	if s.endpoint != nil {
		if addr, ok := s.endpoint.Endpoint(); ok {
			resp.Endpoint = addr.String()
			resp.EndpointConfigured = true
		}
	}
	for _, h := range s.module.Dispatcher.Hooks() {
		resp.Hooks = append(resp.Hooks, h.Name)
	}
	stats := s.module.Dispatcher.Stats()
	resp.Workers = WorkerStats{Running: stats.Running, Capacity: stats.Capacity, Free: stats.Free}

	if err := s.onLoop(c.Request.Context(), func() { resp.Bans = s.bans.Len() }); err != nil {
		loopUnavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary      Addresses under scan
// @Description  Lists every linked scan record, oldest first, with the number of probe workers still running against it.
// @Tags         Scans
// @Produce      json
// @Success      200  {array}   ScanRecord
// @Failure      401  {object}  ErrorResponse  "Missing or incorrect API key. Example: {\"error\":\"unauthorized\"}"
// @Security     ApiKeyAuth
// @Router       /scans [get]
func (s *Server) listScansHandler(c *gin.Context) {
	snapshot := s.module.Registry.Snapshot()
	out := make([]ScanRecord, 0, len(snapshot))
	for _, rec := range snapshot {
		out = append(out, ScanRecord{Addr: rec.Addr.String(), Refs: rec.Refs, Since: rec.Since.UTC()})
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      Host bans in force
// @Description  Lists bans issued for open proxies, oldest first. Expired bans are removed by the core loop.
// @Tags         Bans
// @Produce      json
// @Success      200  {array}   Ban
// @Failure      401  {object}  ErrorResponse  "Missing or incorrect API key. Example: {\"error\":\"unauthorized\"}"
// @Failure      503  {object}  ErrorResponse  "Core loop is not running. Example: {\"error\":\"event loop stopped\"}"
// @Security     ApiKeyAuth
// @Router       /bans [get]
func (s *Server) listBansHandler(c *gin.Context) {
	var list []bans.Request
	if err := s.onLoop(c.Request.Context(), func() { list = s.bans.List() }); err != nil {
		loopUnavailable(c, err)
		return
	}
	out := make([]Ban, 0, len(list))
	for _, req := range list {
		out = append(out, Ban{
			Mask:     req.Mask(),
			Kind:     req.Kind,
			SetBy:    req.SetBy,
			SetAt:    req.SetAt.UTC(),
			ExpireAt: req.ExpireAt.UTC(),
			Reason:   req.Reason,
			Country:  req.Country,
		})
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      Exempt prefixes
// @Tags         Exemptions
// @Produce      json
// @Success      200  {object}  ExemptionsResponse
// @Failure      401  {object}  ErrorResponse  "Missing or incorrect API key. Example: {\"error\":\"unauthorized\"}"
// @Security     ApiKeyAuth
// @Router       /exemptions [get]
func (s *Server) listExemptionsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.exemptions())
}

// @Summary      Replace exempt prefixes
// @Description  Atomically replaces the exemption list. Connections from exempt addresses are never scanned; scans already running are not affected.
// @Tags         Exemptions
// @Accept       json
// @Produce      json
// @Param        request  body      ReplaceExemptionsRequest  true  "New exemption list"
// @Success      200      {object}  ExemptionsResponse
// @Failure      400      {object}  ErrorResponse  "Malformed body or prefix. Example: {\"error\":\"invalid exempt prefix \\\"10.0.0.0/33\\\"\"}"
// @Failure      401      {object}  ErrorResponse  "Missing or incorrect API key. Example: {\"error\":\"unauthorized\"}"
// @Security     ApiKeyAuth
// @Router       /exemptions [put]
func (s *Server) replaceExemptionsHandler(c *gin.Context) {
	var req ReplaceExemptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request payload: %v", err)})
		return
	}
	prefixes, err := exempt.ParsePrefixes(req.Prefixes)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := s.exempt.Replace(prefixes); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.exemptions())
}

func (s *Server) exemptions() ExemptionsResponse {
	resp := ExemptionsResponse{Prefixes: []string{}}
	for _, p := range s.exempt.Prefixes() {
		resp.Prefixes = append(resp.Prefixes, p.String())
	}
	return resp
}

// onLoop runs fn on the core loop and waits for it, bounded by a short timeout.
func (s *Server) onLoop(ctx context.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.loop.Call(ctx, fn)
}

func loopUnavailable(c *gin.Context, err error) {
	if errors.Is(err, eventloop.ErrLoopStopped) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "core loop busy"})
}
