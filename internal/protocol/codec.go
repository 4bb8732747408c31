// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/PyRo1121/omg-sub003/internal/contract"
	"github.com/PyRo1121/omg-sub003/internal/model"
)

// WriteFrame writes a length-delimited frame: a 4-byte big-endian payload
// length followed by payload itself (spec.md §4.1). Callers pass an already
//-encoded message body; WriteFrame never encodes.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 || len(payload) > contract.MaxFrameBytes {
		return &FrameError{Len: uint32(len(payload))}
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-delimited frame, rejecting the length prefix
// before allocating or reading the payload (spec.md §4.1: frames outside
// [1, MaxFrameBytes] are a PARSE_ERROR without consuming the body).
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 || n > contract.MaxFrameBytes {
		return nil, &FrameError{Len: n}
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// EncodeRequest serializes req to its tag-prefixed body. Encoding is total:
// every value constructible in Go encodes to bytes without error.
func EncodeRequest(req Request) []byte {
	w := &buffer{}
	w.writeByte(req.requestTag())
	encodeRequestBody(w, req)
	return w.b
}

func encodeRequestBody(w *buffer, req Request) {
	switch v := req.(type) {
	case *PingRequest:
		w.writeU64(v.ID)
	case *SearchRequest:
		w.writeU64(v.ID)
		w.writeString(v.Query)
		w.writeOptionalU32(v.Limit)
	case *InfoRequest:
		w.writeU64(v.ID)
		w.writeString(v.Package)
	case *SuggestRequest:
		w.writeU64(v.ID)
		w.writeString(v.Query)
		w.writeU32(v.Limit)
	case *StatusRequest:
		w.writeU64(v.ID)
	case *ExplicitRequest:
		w.writeU64(v.ID)
	case *SecurityAuditRequest:
		w.writeU64(v.ID)
	case *BatchRequest:
		w.writeU64(v.ID)
		w.writeVarint(uint64(len(v.Requests)))
		for _, child := range v.Requests {
			w.writeByte(child.requestTag())
			encodeRequestBody(w, child)
		}
	case *InvalidNestedBatchRequest:
		// Never produced outside of decode; encodes as an empty batch so a
		// round trip through Encode/Decode stays total instead of panicking.
		w.writeU64(v.ID)
		w.writeVarint(0)
	case *CacheClearRequest:
		w.writeU64(v.ID)
	default:
		panic(fmt.Sprintf("protocol: unhandled request type %T", req))
	}
}

// DecodeRequest parses a single tag-prefixed request body. A Batch request
// nested inside another Batch decodes to InvalidNestedBatchRequest rather
// than failing the whole frame (spec.md §4.1's tie-break rule).
func DecodeRequest(data []byte) (Request, error) {
	r := &reader{b: data}
	req, err := decodeRequestAt(r, 0)
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, errTrailingBytes
	}
	return req, nil
}

func decodeRequestAt(r *reader, depth int) (Request, error) {
	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagPing:
		id, err := r.readU64()
		if err != nil {
			return nil, err
		}
		return &PingRequest{ID: id}, nil
	case TagSearch:
		id, err := r.readU64()
		if err != nil {
			return nil, err
		}
		query, err := r.readString()
		if err != nil {
			return nil, err
		}
		limit, err := r.readOptionalU32()
		if err != nil {
			return nil, err
		}
		return &SearchRequest{ID: id, Query: query, Limit: limit}, nil
	case TagInfo:
		id, err := r.readU64()
		if err != nil {
			return nil, err
		}
		pkg, err := r.readString()
		if err != nil {
			return nil, err
		}
		return &InfoRequest{ID: id, Package: pkg}, nil
	case TagSuggest:
		id, err := r.readU64()
		if err != nil {
			return nil, err
		}
		query, err := r.readString()
		if err != nil {
			return nil, err
		}
		limit, err := r.readU32()
		if err != nil {
			return nil, err
		}
		return &SuggestRequest{ID: id, Query: query, Limit: limit}, nil
	case TagStatus:
		id, err := r.readU64()
		if err != nil {
			return nil, err
		}
		return &StatusRequest{ID: id}, nil
	case TagExplicit:
		id, err := r.readU64()
		if err != nil {
			return nil, err
		}
		return &ExplicitRequest{ID: id}, nil
	case TagSecurityAudit:
		id, err := r.readU64()
		if err != nil {
			return nil, err
		}
		return &SecurityAuditRequest{ID: id}, nil
	case TagBatch:
		id, err := r.readU64()
		if err != nil {
			return nil, err
		}
		n, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		if n > uint64(r.remaining()) {
			return nil, errStringOverrun
		}
		if depth > 0 {
			// Still must consume exactly the bytes the nested batch owns so
			// the outer decode stays correctly positioned for what follows.
			for i := uint64(0); i < n; i++ {
				if _, err := decodeRequestAt(r, depth+1); err != nil {
					return nil, err
				}
			}
			return &InvalidNestedBatchRequest{ID: id}, nil
		}
		reqs := make([]Request, 0, n)
		for i := uint64(0); i < n; i++ {
			child, err := decodeRequestAt(r, depth+1)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, child)
		}
		return &BatchRequest{ID: id, Requests: reqs}, nil
	case TagCacheClear:
		id, err := r.readU64()
		if err != nil {
			return nil, err
		}
		return &CacheClearRequest{ID: id}, nil
	default:
		return nil, errUnknownTag
	}
}

// EncodeResponse serializes resp to its tag-prefixed body.
func EncodeResponse(resp Response) []byte {
	w := &buffer{}
	switch v := resp.(type) {
	case *SuccessResponse:
		w.writeByte(TagSuccess)
		w.writeU64(v.ID)
		w.writeByte(v.Result.resultTag())
		encodeResultBody(w, v.Result)
	case *ErrorResponse:
		w.writeByte(TagError)
		w.writeU64(v.ID)
		w.writeI32(v.Code)
		w.writeString(v.Message)
	default:
		panic(fmt.Sprintf("protocol: unhandled response type %T", resp))
	}
	return w.b
}

func encodeResultBody(w *buffer, result Result) {
	switch v := result.(type) {
	case PongResult:
	case SearchResultValue:
		w.writeVarint(uint64(len(v.Packages)))
		for _, p := range v.Packages {
			writePackageInfo(w, p)
		}
		w.writeVarint(v.Total)
	case InfoResultValue:
		writeDetailedPackageInfo(w, v.Package)
	case SuggestResultValue:
		w.writeStrings(v.Names)
	case StatusResultValue:
		writeStatusResult(w, v.Status)
	case ExplicitResultValue:
		w.writeStrings(v.Names)
	case SecurityAuditResultValue:
		writeSecurityAuditSummary(w, v.Summary)
	case BatchResultValue:
		w.writeVarint(uint64(len(v.Responses)))
		for _, child := range v.Responses {
			switch c := child.(type) {
			case *SuccessResponse:
				w.writeByte(TagSuccess)
				w.writeU64(c.ID)
				w.writeByte(c.Result.resultTag())
				encodeResultBody(w, c.Result)
			case *ErrorResponse:
				w.writeByte(TagError)
				w.writeU64(c.ID)
				w.writeI32(c.Code)
				w.writeString(c.Message)
			default:
				panic(fmt.Sprintf("protocol: unhandled response type %T", child))
			}
		}
	case CacheClearResultValue:
		w.writeVarint(v.Cleared)
	default:
		panic(fmt.Sprintf("protocol: unhandled result type %T", result))
	}
}

// DecodeResponse parses a single tag-prefixed response body.
func DecodeResponse(data []byte) (Response, error) {
	r := &reader{b: data}
	resp, err := decodeResponseAt(r)
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, errTrailingBytes
	}
	return resp, nil
}

func decodeResponseAt(r *reader) (Response, error) {
	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagSuccess:
		id, err := r.readU64()
		if err != nil {
			return nil, err
		}
		result, err := decodeResultAt(r)
		if err != nil {
			return nil, err
		}
		return &SuccessResponse{ID: id, Result: result}, nil
	case TagError:
		id, err := r.readU64()
		if err != nil {
			return nil, err
		}
		code, err := r.readI32()
		if err != nil {
			return nil, err
		}
		msg, err := r.readString()
		if err != nil {
			return nil, err
		}
		return &ErrorResponse{ID: id, Code: code, Message: msg}, nil
	default:
		return nil, errUnknownTag
	}
}

func decodeResultAt(r *reader) (Result, error) {
	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagPong:
		return PongResult{}, nil
	case TagResultSearch:
		n, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		if n > uint64(r.remaining()) {
			return nil, errStringOverrun
		}
		packages := make([]model.PackageInfo, 0, n)
		for i := uint64(0); i < n; i++ {
			p, err := readPackageInfo(r)
			if err != nil {
				return nil, err
			}
			packages = append(packages, p)
		}
		total, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		return SearchResultValue{Packages: packages, Total: total}, nil
	case TagResultInfo:
		d, err := readDetailedPackageInfo(r)
		if err != nil {
			return nil, err
		}
		return InfoResultValue{Package: d}, nil
	case TagResultSuggest:
		names, err := r.readStrings()
		if err != nil {
			return nil, err
		}
		return SuggestResultValue{Names: names}, nil
	case TagResultStatus:
		s, err := readStatusResult(r)
		if err != nil {
			return nil, err
		}
		return StatusResultValue{Status: s}, nil
	case TagResultExplicit:
		names, err := r.readStrings()
		if err != nil {
			return nil, err
		}
		return ExplicitResultValue{Names: names}, nil
	case TagResultSecurityAudit:
		s, err := readSecurityAuditSummary(r)
		if err != nil {
			return nil, err
		}
		return SecurityAuditResultValue{Summary: s}, nil
	case TagResultBatch:
		n, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		if n > uint64(r.remaining()) {
			return nil, errStringOverrun
		}
		responses := make([]Response, 0, n)
		for i := uint64(0); i < n; i++ {
			resp, err := decodeResponseAt(r)
			if err != nil {
				return nil, err
			}
			responses = append(responses, resp)
		}
		return BatchResultValue{Responses: responses}, nil
	case TagResultCacheClear:
		cleared, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		return CacheClearResultValue{Cleared: cleared}, nil
	default:
		return nil, errUnknownTag
	}
}

func writePackageInfo(w *buffer, p model.PackageInfo) {
	w.writeString(p.Name)
	w.writeString(p.Version)
	w.writeString(p.Description)
	w.writeString(p.Source)
}

func readPackageInfo(r *reader) (model.PackageInfo, error) {
	name, err := r.readString()
	if err != nil {
		return model.PackageInfo{}, err
	}
	version, err := r.readString()
	if err != nil {
		return model.PackageInfo{}, err
	}
	description, err := r.readString()
	if err != nil {
		return model.PackageInfo{}, err
	}
	source, err := r.readString()
	if err != nil {
		return model.PackageInfo{}, err
	}
	return model.PackageInfo{Name: name, Version: version, Description: description, Source: source}, nil
}

func writeDetailedPackageInfo(w *buffer, d model.DetailedPackageInfo) {
	w.writeString(d.Name)
	w.writeString(d.Version)
	w.writeString(d.Description)
	w.writeString(d.URL)
	w.writeVarint(d.InstallSize)
	w.writeVarint(d.DownloadSize)
	w.writeString(d.Repo)
	w.writeStrings(d.Depends)
	w.writeStrings(d.Licenses)
	w.writeString(d.Source)
}

func readDetailedPackageInfo(r *reader) (model.DetailedPackageInfo, error) {
	var d model.DetailedPackageInfo
	var err error
	if d.Name, err = r.readString(); err != nil {
		return d, err
	}
	if d.Version, err = r.readString(); err != nil {
		return d, err
	}
	if d.Description, err = r.readString(); err != nil {
		return d, err
	}
	if d.URL, err = r.readString(); err != nil {
		return d, err
	}
	if d.InstallSize, err = r.readVarint(); err != nil {
		return d, err
	}
	if d.DownloadSize, err = r.readVarint(); err != nil {
		return d, err
	}
	if d.Repo, err = r.readString(); err != nil {
		return d, err
	}
	if d.Depends, err = r.readStrings(); err != nil {
		return d, err
	}
	if d.Licenses, err = r.readStrings(); err != nil {
		return d, err
	}
	if d.Source, err = r.readString(); err != nil {
		return d, err
	}
	return d, nil
}

func writeStatusResult(w *buffer, s model.StatusResult) {
	w.writeU32(s.TotalPackages)
	w.writeU32(s.ExplicitPackages)
	w.writeU32(s.OrphanPackages)
	w.writeU32(s.UpdatesAvailable)
	w.writeU32(s.SecurityVulnerabilities)
	w.writeVarint(uint64(len(s.RuntimeVersions)))
	for _, rv := range s.RuntimeVersions {
		w.writeString(rv.Runtime)
		w.writeString(rv.Version)
	}
}

func readStatusResult(r *reader) (model.StatusResult, error) {
	var s model.StatusResult
	var err error
	if s.TotalPackages, err = r.readU32(); err != nil {
		return s, err
	}
	if s.ExplicitPackages, err = r.readU32(); err != nil {
		return s, err
	}
	if s.OrphanPackages, err = r.readU32(); err != nil {
		return s, err
	}
	if s.UpdatesAvailable, err = r.readU32(); err != nil {
		return s, err
	}
	if s.SecurityVulnerabilities, err = r.readU32(); err != nil {
		return s, err
	}
	n, err := r.readVarint()
	if err != nil {
		return s, err
	}
	if n > uint64(r.remaining())/2 {
		return s, errStringOverrun
	}
	s.RuntimeVersions = make([]model.RuntimeVersion, 0, n)
	for i := uint64(0); i < n; i++ {
		runtime, err := r.readString()
		if err != nil {
			return s, err
		}
		version, err := r.readString()
		if err != nil {
			return s, err
		}
		s.RuntimeVersions = append(s.RuntimeVersions, model.RuntimeVersion{Runtime: runtime, Version: version})
	}
	return s, nil
}

func writeSecurityAuditSummary(w *buffer, s model.SecurityAuditSummary) {
	w.writeU32(s.Critical)
	w.writeU32(s.High)
	w.writeU32(s.Medium)
	w.writeU32(s.Low)
	w.writeU32(s.Scanned)
}

func readSecurityAuditSummary(r *reader) (model.SecurityAuditSummary, error) {
	var s model.SecurityAuditSummary
	var err error
	if s.Critical, err = r.readU32(); err != nil {
		return s, err
	}
	if s.High, err = r.readU32(); err != nil {
		return s, err
	}
	if s.Medium, err = r.readU32(); err != nil {
		return s, err
	}
	if s.Low, err = r.readU32(); err != nil {
		return s, err
	}
	if s.Scanned, err = r.readU32(); err != nil {
		return s, err
	}
	return s, nil
}

// IsParseError reports whether err came from a malformed wire payload. The
// dispatcher surfaces these as errors.CodeParseError, except an unknown tag
// byte, which it reports as errors.CodeMethodNotFound.
func IsParseError(err error) bool {
	switch err {
	case errTruncated, errMalformedVarint, errStringOverrun, errInvalidUTF8, errUnknownTag, errTrailingBytes:
		return true
	}
	_, isFrameErr := err.(*FrameError)
	return isFrameErr
}
