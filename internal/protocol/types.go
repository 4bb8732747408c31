// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol implements the length-delimited binary IPC codec
// (spec.md §4.1, component C1): a 4-byte big-endian frame length, followed
// by a tag-prefixed compact encoding of the Request/Response tagged unions.
//
// Tag bytes are assigned in the lexical variant order spec.md §3 lists for
// Request and Response — this is the normalization spec.md §9's open
// question on serialization asks implementers to pick and document.
package protocol

import "github.com/PyRo1121/omg-sub003/internal/model"

// Request tag bytes, in the order spec.md §3 lists the Request variants.
const (
	TagPing byte = iota
	TagSearch
	TagInfo
	TagSuggest
	TagStatus
	TagExplicit
	TagSecurityAudit
	TagBatch
	TagCacheClear
)

// Response tag bytes (top-level union: Success or Error).
const (
	TagSuccess byte = iota
	TagError
)

// Result tag bytes, in the order spec.md §3 lists the Success.result variants.
const (
	TagPong byte = iota
	TagResultSearch
	TagResultInfo
	TagResultSuggest
	TagResultStatus
	TagResultExplicit
	TagResultSecurityAudit
	TagResultBatch
	TagResultCacheClear
)

// Request is the tagged union of all client requests. Every variant carries
// an ID that the core echoes verbatim without interpreting it.
type Request interface {
	RequestID() uint64
	requestTag() byte
}

type PingRequest struct{ ID uint64 }

func (r *PingRequest) RequestID() uint64 { return r.ID }
func (r *PingRequest) requestTag() byte  { return TagPing }

type SearchRequest struct {
	ID    uint64
	Query string
	Limit *uint32 // nil means "use the default" (spec.md §3)
}

func (r *SearchRequest) RequestID() uint64 { return r.ID }
func (r *SearchRequest) requestTag() byte  { return TagSearch }

type InfoRequest struct {
	ID      uint64
	Package string
}

func (r *InfoRequest) RequestID() uint64 { return r.ID }
func (r *InfoRequest) requestTag() byte  { return TagInfo }

type SuggestRequest struct {
	ID    uint64
	Query string
	Limit uint32
}

func (r *SuggestRequest) RequestID() uint64 { return r.ID }
func (r *SuggestRequest) requestTag() byte  { return TagSuggest }

type StatusRequest struct{ ID uint64 }

func (r *StatusRequest) RequestID() uint64 { return r.ID }
func (r *StatusRequest) requestTag() byte  { return TagStatus }

type ExplicitRequest struct{ ID uint64 }

func (r *ExplicitRequest) RequestID() uint64 { return r.ID }
func (r *ExplicitRequest) requestTag() byte  { return TagExplicit }

type SecurityAuditRequest struct{ ID uint64 }

func (r *SecurityAuditRequest) RequestID() uint64 { return r.ID }
func (r *SecurityAuditRequest) requestTag() byte  { return TagSecurityAudit }

// BatchRequest wraps an ordered sequence of child requests. A decoded child
// that was itself a Batch is represented by InvalidNestedBatchRequest rather
// than rejecting the whole frame — spec.md §4.1's tie-break rule is that
// nested batches are an INVALID_PARAMS outcome for that one child, not a
// decode failure for the envelope.
type BatchRequest struct {
	ID       uint64
	Requests []Request
}

func (r *BatchRequest) RequestID() uint64 { return r.ID }
func (r *BatchRequest) requestTag() byte  { return TagBatch }

// InvalidNestedBatchRequest stands in for a Batch found nested inside
// another Batch. The dispatcher turns it directly into an INVALID_PARAMS
// error response without attempting to run it.
type InvalidNestedBatchRequest struct{ ID uint64 }

func (r *InvalidNestedBatchRequest) RequestID() uint64 { return r.ID }
func (r *InvalidNestedBatchRequest) requestTag() byte  { return TagBatch }

type CacheClearRequest struct{ ID uint64 }

func (r *CacheClearRequest) RequestID() uint64 { return r.ID }
func (r *CacheClearRequest) requestTag() byte  { return TagCacheClear }

// Response is the tagged union of all daemon responses.
type Response interface {
	ResponseID() uint64
}

type SuccessResponse struct {
	ID     uint64
	Result Result
}

func (r *SuccessResponse) ResponseID() uint64 { return r.ID }

type ErrorResponse struct {
	ID      uint64
	Code    int32
	Message string
}

func (r *ErrorResponse) ResponseID() uint64 { return r.ID }

// Result is the tagged union carried by a SuccessResponse.
type Result interface {
	resultTag() byte
}

type PongResult struct{}

func (PongResult) resultTag() byte { return TagPong }

type SearchResultValue struct {
	Packages []model.PackageInfo
	Total    uint64
}

func (SearchResultValue) resultTag() byte { return TagResultSearch }

type InfoResultValue struct {
	Package model.DetailedPackageInfo
}

func (InfoResultValue) resultTag() byte { return TagResultInfo }

type SuggestResultValue struct {
	Names []string
}

func (SuggestResultValue) resultTag() byte { return TagResultSuggest }

type StatusResultValue struct {
	Status model.StatusResult
}

func (StatusResultValue) resultTag() byte { return TagResultStatus }

type ExplicitResultValue struct {
	Names []string
}

func (ExplicitResultValue) resultTag() byte { return TagResultExplicit }

type SecurityAuditResultValue struct {
	Summary model.SecurityAuditSummary
}

func (SecurityAuditResultValue) resultTag() byte { return TagResultSecurityAudit }

type BatchResultValue struct {
	Responses []Response
}

func (BatchResultValue) resultTag() byte { return TagResultBatch }

type CacheClearResultValue struct {
	Cleared uint64
}

func (CacheClearResultValue) resultTag() byte { return TagResultCacheClear }
