// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatcher implements the C7 request dispatcher (spec.md §4.7):
// per-connection frame decode, rate limiting and request-size policy,
// tag-based routing to handlers backed by the L1 cache, package index,
// backend adapter, and L2 store, and response encoding.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PyRo1121/omg-sub003/internal/backend"
	"github.com/PyRo1121/omg-sub003/internal/cache"
	"github.com/PyRo1121/omg-sub003/internal/contract"
	omgerrors "github.com/PyRo1121/omg-sub003/internal/errors"
	"github.com/PyRo1121/omg-sub003/internal/index"
	"github.com/PyRo1121/omg-sub003/internal/metrics"
	"github.com/PyRo1121/omg-sub003/internal/model"
	"github.com/PyRo1121/omg-sub003/internal/protocol"
	"github.com/PyRo1121/omg-sub003/internal/security"
	"github.com/PyRo1121/omg-sub003/internal/store"
)

// Dispatcher owns the collaborators every handler needs. One Dispatcher is
// shared across all connections; it holds no per-connection state itself.
type Dispatcher struct {
	Cache     *cache.Cache
	Index     *index.Handle
	Backend   backend.Backend
	Store     *store.Store
	Scanner   security.Scanner
	VulnCount *atomic.Uint32 // maintained by the background worker (spec.md §4.8)
	Logger    *slog.Logger
}

// Per-request deadlines (spec.md §5): exceeding one yields INTERNAL_ERROR
// with message "deadline exceeded".
const (
	searchInfoDeadline    = 2 * time.Second
	securityAuditDeadline = 30 * time.Second
)

// HandleConnection runs the per-connection read/decode/dispatch/encode/write
// loop until the connection closes or ctx is cancelled (spec.md §4.7 step 1-5).
// Requests are processed sequentially in arrival order on this goroutine,
// which trivially satisfies the "responses written in request order" and
// "≤ 64 in-flight" guarantees without needing a separate scheduler.
func (d *Dispatcher) HandleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	limiter := newSlidingWindowLimiter(contract.RateWindowSeconds*time.Second, contract.MaxRequestsPerWindow)

	for {
		if ctx.Err() != nil {
			return
		}
		payload, err := protocol.ReadFrame(conn)
		if err != nil {
			var frameErr *protocol.FrameError
			if errors.As(err, &frameErr) {
				// A bad length prefix is answered with PARSE_ERROR and the
				// connection stays open for the next frame.
				resp := errorResponse(0, omgerrors.ParseError(err.Error()))
				if err := protocol.WriteFrame(conn, protocol.EncodeResponse(resp)); err != nil {
					d.logConnError("dispatcher.frame.write_error", err)
					return
				}
				continue
			}
			if !errors.Is(err, io.EOF) {
				d.logConnError("dispatcher.frame.read_error", err)
			}
			return
		}

		resp := d.dispatchFrame(ctx, payload, limiter)
		if err := protocol.WriteFrame(conn, protocol.EncodeResponse(resp)); err != nil {
			d.logConnError("dispatcher.frame.write_error", err)
			return
		}
	}
}

func (d *Dispatcher) dispatchFrame(ctx context.Context, payload []byte, limiter *slidingWindowLimiter) protocol.Response {
	req, err := protocol.DecodeRequest(payload)
	if err != nil {
		resp := errorResponse(0, classifyDecodeError(err))
		metrics.Default().RequestErrors.WithLabelValues("decode", fmt.Sprintf("%d", resp.(*protocol.ErrorResponse).Code)).Inc()
		return resp
	}

	method := methodName(req)
	metrics.Default().RequestsTotal.WithLabelValues(method).Inc()

	if !limiter.Allow() {
		metrics.Default().RequestErrors.WithLabelValues(method, fmt.Sprintf("%d", omgerrors.CodeRateLimited)).Inc()
		return errorResponse(req.RequestID(), omgerrors.RateLimited("connection exceeded request rate limit"))
	}

	resp := d.dispatchRequest(ctx, req)
	if errResp, ok := resp.(*protocol.ErrorResponse); ok {
		metrics.Default().RequestErrors.WithLabelValues(method, fmt.Sprintf("%d", errResp.Code)).Inc()
	}
	return resp
}

// methodName labels a request for metrics purposes, independent of its wire tag byte.
func methodName(req protocol.Request) string {
	switch req.(type) {
	case *protocol.PingRequest:
		return "ping"
	case *protocol.SearchRequest:
		return "search"
	case *protocol.InfoRequest:
		return "info"
	case *protocol.SuggestRequest:
		return "suggest"
	case *protocol.StatusRequest:
		return "status"
	case *protocol.ExplicitRequest:
		return "explicit"
	case *protocol.SecurityAuditRequest:
		return "security_audit"
	case *protocol.BatchRequest:
		return "batch"
	case *protocol.InvalidNestedBatchRequest:
		return "batch"
	case *protocol.CacheClearRequest:
		return "cache_clear"
	default:
		return "unknown"
	}
}

// classifyDecodeError maps a protocol decode failure to its wire code.
// Unknown tags are METHOD_NOT_FOUND (spec.md §8 scenario 2); every other
// malformed-payload shape is PARSE_ERROR.
func classifyDecodeError(err error) *omgerrors.WireError {
	if isUnknownTagError(err) {
		return omgerrors.MethodNotFound("unknown request method tag")
	}
	return omgerrors.ParseError(err.Error())
}

func (d *Dispatcher) dispatchRequest(ctx context.Context, req protocol.Request) protocol.Response {
	switch r := req.(type) {
	case *protocol.PingRequest:
		return successResponse(r.ID, protocol.PongResult{})

	case *protocol.SearchRequest:
		return d.handleSearch(ctx, r)

	case *protocol.InfoRequest:
		return d.handleInfo(ctx, r)

	case *protocol.SuggestRequest:
		return d.handleSuggest(r)

	case *protocol.StatusRequest:
		return d.handleStatus(ctx, r)

	case *protocol.ExplicitRequest:
		return d.handleExplicit(ctx, r)

	case *protocol.SecurityAuditRequest:
		return d.handleSecurityAudit(ctx, r)

	case *protocol.BatchRequest:
		return d.handleBatch(ctx, r)

	case *protocol.InvalidNestedBatchRequest:
		return errorResponse(r.ID, omgerrors.InvalidParams("nested batch requests are not allowed"))

	case *protocol.CacheClearRequest:
		return d.handleCacheClear(r)

	default:
		return errorResponse(req.RequestID(), omgerrors.Internal(fmt.Sprintf("unhandled request type %T", req)))
	}
}

func (d *Dispatcher) handleSearch(ctx context.Context, r *protocol.SearchRequest) protocol.Response {
	ctx, cancel := context.WithTimeout(ctx, searchInfoDeadline)
	defer cancel()

	if v := contract.ValidateQuery(r.Query); !v.OK {
		return errorResponse(r.ID, omgerrors.InvalidParams(v.Message))
	}
	limit := int(contract.ClampSearchLimit(limitPtrToIntPtr(r.Limit)))

	key := cache.Key(cache.NamespaceSearch, r.Query)
	if cached, ok := d.Cache.Get(key); ok {
		metrics.Default().CacheHitsTotal.WithLabelValues(cache.NamespaceSearch).Inc()
		packages := cached.([]model.PackageInfo)
		return successResponse(r.ID, protocol.SearchResultValue{Packages: packages, Total: uint64(len(packages))})
	}
	metrics.Default().CacheMissTotal.WithLabelValues(cache.NamespaceSearch).Inc()

	idx := d.Index.Load()
	var packages []model.PackageInfo
	if idx != nil {
		packages = idx.Search(r.Query, limit)
	}

	if ctx.Err() != nil {
		return errorResponse(r.ID, omgerrors.Internal("deadline exceeded"))
	}

	d.Cache.Set(cache.NamespaceSearch, key, packages)
	return successResponse(r.ID, protocol.SearchResultValue{Packages: packages, Total: uint64(len(packages))})
}

func (d *Dispatcher) handleInfo(ctx context.Context, r *protocol.InfoRequest) protocol.Response {
	ctx, cancel := context.WithTimeout(ctx, searchInfoDeadline)
	defer cancel()

	if v := contract.ValidateQuery(r.Package); !v.OK {
		return errorResponse(r.ID, omgerrors.InvalidParams(v.Message))
	}

	key := cache.Key(cache.NamespaceInfo, r.Package)
	if cached, ok := d.Cache.Get(key); ok {
		metrics.Default().CacheHitsTotal.WithLabelValues(cache.NamespaceInfo).Inc()
		return successResponse(r.ID, protocol.InfoResultValue{Package: cached.(model.DetailedPackageInfo)})
	}
	metrics.Default().CacheMissTotal.WithLabelValues(cache.NamespaceInfo).Inc()

	if idx := d.Index.Load(); idx != nil {
		if info, ok := idx.Get(r.Package); ok {
			d.Cache.Set(cache.NamespaceInfo, key, info)
			return successResponse(r.ID, protocol.InfoResultValue{Package: info})
		}
	}

	if d.Backend != nil {
		info, err := d.Backend.GetOne(ctx, r.Package)
		if err == nil {
			d.Cache.Set(cache.NamespaceInfo, key, info)
			return successResponse(r.ID, protocol.InfoResultValue{Package: info})
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return errorResponse(r.ID, omgerrors.Internal("deadline exceeded"))
		}
		if !errors.Is(err, backend.ErrPackageNotFound) {
			return errorResponse(r.ID, omgerrors.Internal(err.Error()))
		}
	}

	return errorResponse(r.ID, omgerrors.PackageNotFound(r.Package))
}

func (d *Dispatcher) handleSuggest(r *protocol.SuggestRequest) protocol.Response {
	if v := contract.ValidateQuery(r.Query); !v.OK {
		return errorResponse(r.ID, omgerrors.InvalidParams(v.Message))
	}
	limit := int(r.Limit)
	if limit <= 0 || limit > contract.MaxSuggestLimit {
		limit = contract.MaxSuggestLimit
	}

	key := cache.Key(cache.NamespaceSuggest, r.Query)
	if cached, ok := d.Cache.Get(key); ok {
		metrics.Default().CacheHitsTotal.WithLabelValues(cache.NamespaceSuggest).Inc()
		return successResponse(r.ID, protocol.SuggestResultValue{Names: cached.([]string)})
	}
	metrics.Default().CacheMissTotal.WithLabelValues(cache.NamespaceSuggest).Inc()

	var names []string
	if idx := d.Index.Load(); idx != nil {
		names = idx.Suggest(r.Query, limit)
	}
	d.Cache.Set(cache.NamespaceSuggest, key, names)
	return successResponse(r.ID, protocol.SuggestResultValue{Names: names})
}

func (d *Dispatcher) handleStatus(ctx context.Context, r *protocol.StatusRequest) protocol.Response {
	key := cache.Key(cache.NamespaceStatus, "current")
	if cached, ok := d.Cache.Get(key); ok {
		metrics.Default().CacheHitsTotal.WithLabelValues(cache.NamespaceStatus).Inc()
		return successResponse(r.ID, protocol.StatusResultValue{Status: cached.(model.StatusResult)})
	}
	metrics.Default().CacheMissTotal.WithLabelValues(cache.NamespaceStatus).Inc()

	if d.Store != nil {
		if status, err := d.Store.LoadStatus(); err == nil {
			d.Cache.Set(cache.NamespaceStatus, key, status)
			return successResponse(r.ID, protocol.StatusResultValue{Status: status})
		}
	}

	status, err := d.computeStatus(ctx)
	if err != nil {
		return errorResponse(r.ID, omgerrors.Internal(err.Error()))
	}
	d.Cache.Set(cache.NamespaceStatus, key, status)
	if d.Store != nil {
		_ = d.Store.SaveStatus(status)
	}
	return successResponse(r.ID, protocol.StatusResultValue{Status: status})
}

func (d *Dispatcher) computeStatus(ctx context.Context) (model.StatusResult, error) {
	if d.Backend == nil {
		return model.StatusResult{}, nil
	}
	counts, err := d.Backend.CountStatus(ctx)
	if err != nil {
		return model.StatusResult{}, err
	}
	runtimes, err := d.Backend.ProbeRuntimes(ctx)
	if err != nil {
		return model.StatusResult{}, err
	}
	var vulnCount uint32
	if d.VulnCount != nil {
		vulnCount = d.VulnCount.Load()
	}
	return model.StatusResult{
		TotalPackages:           counts.Total,
		ExplicitPackages:        counts.Explicit,
		OrphanPackages:          counts.Orphan,
		UpdatesAvailable:        counts.Updates,
		SecurityVulnerabilities: vulnCount,
		RuntimeVersions:         runtimes,
	}, nil
}

func (d *Dispatcher) handleExplicit(ctx context.Context, r *protocol.ExplicitRequest) protocol.Response {
	key := cache.Key(cache.NamespaceExplicit, "all")
	if cached, ok := d.Cache.Get(key); ok {
		metrics.Default().CacheHitsTotal.WithLabelValues(cache.NamespaceExplicit).Inc()
		return successResponse(r.ID, protocol.ExplicitResultValue{Names: cached.([]string)})
	}
	metrics.Default().CacheMissTotal.WithLabelValues(cache.NamespaceExplicit).Inc()

	if d.Backend == nil {
		return successResponse(r.ID, protocol.ExplicitResultValue{Names: nil})
	}
	names, err := d.Backend.ListExplicit(ctx)
	if err != nil {
		return errorResponse(r.ID, omgerrors.Internal(err.Error()))
	}
	d.Cache.Set(cache.NamespaceExplicit, key, names)
	return successResponse(r.ID, protocol.ExplicitResultValue{Names: names})
}

// handleSecurityAudit schedules one scan per explicitly-installed package
// with parallelism bounded to the host's CPU count (spec.md §4.7), then
// aggregates the severities returned.
func (d *Dispatcher) handleSecurityAudit(ctx context.Context, r *protocol.SecurityAuditRequest) protocol.Response {
	ctx, cancel := context.WithTimeout(ctx, securityAuditDeadline)
	defer cancel()

	if d.Backend == nil || d.Scanner == nil {
		return successResponse(r.ID, protocol.SecurityAuditResultValue{})
	}
	names, err := d.Backend.ListExplicit(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errorResponse(r.ID, omgerrors.Internal("deadline exceeded"))
		}
		return errorResponse(r.ID, omgerrors.Internal(err.Error()))
	}

	severities := d.scanAll(ctx, names)
	if ctx.Err() != nil {
		return errorResponse(r.ID, omgerrors.Internal("deadline exceeded"))
	}
	return successResponse(r.ID, protocol.SecurityAuditResultValue{Summary: security.Aggregate(severities)})
}

func (d *Dispatcher) scanAll(ctx context.Context, names []string) []security.Severity {
	results := make([]security.Severity, len(names))
	if len(names) == 0 {
		return results
	}

	limit := runtime.NumCPU()
	if limit < 1 {
		limit = 1
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	for i, name := range names {
		i, name := i, name
		group.Go(func() error {
			version := ""
			if idx := d.Index.Load(); idx != nil {
				if info, ok := idx.Get(name); ok {
					version = info.Version
				}
			}
			sev, err := d.Scanner.ScanPackage(groupCtx, name, version)
			if err == nil {
				results[i] = sev
			}
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (d *Dispatcher) handleBatch(ctx context.Context, r *protocol.BatchRequest) protocol.Response {
	if v := contract.ValidateBatchSize(len(r.Requests)); !v.OK {
		return errorResponse(r.ID, omgerrors.InvalidParams(v.Message))
	}
	responses := make([]protocol.Response, len(r.Requests))
	for i, child := range r.Requests {
		responses[i] = d.dispatchRequest(ctx, child)
	}
	return successResponse(r.ID, protocol.BatchResultValue{Responses: responses})
}

func (d *Dispatcher) handleCacheClear(r *protocol.CacheClearRequest) protocol.Response {
	cleared := d.Cache.Clear()
	return successResponse(r.ID, protocol.CacheClearResultValue{Cleared: cleared})
}

func successResponse(id uint64, result protocol.Result) protocol.Response {
	return &protocol.SuccessResponse{ID: id, Result: result}
}

func errorResponse(id uint64, err *omgerrors.WireError) protocol.Response {
	return &protocol.ErrorResponse{ID: id, Code: int32(err.Code), Message: err.Message}
}

func (d *Dispatcher) logConnError(event string, err error) {
	if d.Logger == nil {
		return
	}
	d.Logger.Debug(event, "error", err)
}

func limitPtrToIntPtr(limit *uint32) *int {
	if limit == nil {
		return nil
	}
	v := int(*limit)
	return &v
}

func isUnknownTagError(err error) bool {
	return err.Error() == "protocol: unknown tag byte"
}
