// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatcher

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/PyRo1121/omg-sub003/internal/backend"
	"github.com/PyRo1121/omg-sub003/internal/cache"
	omgerrors "github.com/PyRo1121/omg-sub003/internal/errors"
	"github.com/PyRo1121/omg-sub003/internal/index"
	"github.com/PyRo1121/omg-sub003/internal/model"
	"github.com/PyRo1121/omg-sub003/internal/protocol"
	"github.com/PyRo1121/omg-sub003/internal/security"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *backend.FakeBackend) {
	t.Helper()
	c, err := cache.New(cache.Options{MaxEntries: 100})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	fb := backend.NewFakeBackend()
	fb.Seed(model.DetailedPackageInfo{Name: "firefox", Version: "128.0", Description: "web browser"}, true)
	fb.Seed(model.DetailedPackageInfo{Name: "vim", Version: "9.1", Description: "text editor"}, true)

	idx := &index.Handle{}
	idx.Store(index.Build(map[string]model.DetailedPackageInfo{
		"firefox": {Name: "firefox", Version: "128.0", Description: "web browser"},
		"vim":     {Name: "vim", Version: "9.1", Description: "text editor"},
	}, time.Now()))

	return &Dispatcher{
		Cache:   c,
		Index:   idx,
		Backend: fb,
		Scanner: security.NullScanner{},
	}, fb
}

func TestHandlePingReturnsPong(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.dispatchRequest(context.Background(), &protocol.PingRequest{ID: 1})
	success, ok := resp.(*protocol.SuccessResponse)
	require.True(t, ok)
	require.IsType(t, protocol.PongResult{}, success.Result)
}

func TestHandleSearchCachesOnSecondCall(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp1 := d.dispatchRequest(context.Background(), &protocol.SearchRequest{ID: 1, Query: "firefox"})
	success1 := resp1.(*protocol.SuccessResponse)
	result1 := success1.Result.(protocol.SearchResultValue)
	require.GreaterOrEqual(t, len(result1.Packages), 1)

	resp2 := d.dispatchRequest(context.Background(), &protocol.SearchRequest{ID: 2, Query: "firefox"})
	result2 := resp2.(*protocol.SuccessResponse).Result.(protocol.SearchResultValue)
	require.Equal(t, result1.Packages, result2.Packages)
}

func TestHandleInfoFallsBackToBackendThenNotFound(t *testing.T) {
	d, fb := newTestDispatcher(t)
	fb.Seed(model.DetailedPackageInfo{Name: "community-only", Version: "1.0"}, false)

	resp := d.dispatchRequest(context.Background(), &protocol.InfoRequest{ID: 1, Package: "community-only"})
	success := resp.(*protocol.SuccessResponse)
	info := success.Result.(protocol.InfoResultValue)
	require.Equal(t, "community-only", info.Package.Name)

	missing := d.dispatchRequest(context.Background(), &protocol.InfoRequest{ID: 2, Package: "definitely-not-a-package"})
	errResp := missing.(*protocol.ErrorResponse)
	require.Equal(t, int32(omgerrors.CodePackageNotFound), errResp.Code)
}

func TestHandleStatusComputesFromBackend(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.dispatchRequest(context.Background(), &protocol.StatusRequest{ID: 1})
	success := resp.(*protocol.SuccessResponse)
	status := success.Result.(protocol.StatusResultValue).Status
	require.Equal(t, uint32(2), status.TotalPackages)
}

func TestHandleExplicitListsSeededPackages(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.dispatchRequest(context.Background(), &protocol.ExplicitRequest{ID: 1})
	success := resp.(*protocol.SuccessResponse)
	names := success.Result.(protocol.ExplicitResultValue).Names
	require.ElementsMatch(t, []string{"firefox", "vim"}, names)
}

func TestHandleCacheClearReturnsEvictedCount(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.dispatchRequest(context.Background(), &protocol.SearchRequest{ID: 1, Query: "firefox"})

	resp := d.dispatchRequest(context.Background(), &protocol.CacheClearRequest{ID: 2})
	success := resp.(*protocol.SuccessResponse)
	_, ok := success.Result.(protocol.CacheClearResultValue)
	require.True(t, ok)
}

// TestBatchMixedOutcomes mirrors spec.md §8 scenario 4: a batch whose
// middle child fails still returns all three children, each response's id
// matching its request's id.
func TestBatchMixedOutcomes(t *testing.T) {
	d, _ := newTestDispatcher(t)
	batch := &protocol.BatchRequest{
		ID: 9,
		Requests: []protocol.Request{
			&protocol.PingRequest{ID: 1},
			&protocol.InfoRequest{ID: 2, Package: "definitely-not-a-package"},
			&protocol.StatusRequest{ID: 3},
		},
	}
	resp := d.dispatchRequest(context.Background(), batch)
	success := resp.(*protocol.SuccessResponse)
	batchResult := success.Result.(protocol.BatchResultValue)
	require.Len(t, batchResult.Responses, 3)

	require.Equal(t, uint64(1), batchResult.Responses[0].ResponseID())
	require.IsType(t, &protocol.SuccessResponse{}, batchResult.Responses[0])

	errResp := batchResult.Responses[1].(*protocol.ErrorResponse)
	require.Equal(t, uint64(2), errResp.ID)
	require.Equal(t, int32(omgerrors.CodePackageNotFound), errResp.Code)

	require.Equal(t, uint64(3), batchResult.Responses[2].ResponseID())
	require.IsType(t, &protocol.SuccessResponse{}, batchResult.Responses[2])
}

func TestBatchOver32RequestsIsInvalidParams(t *testing.T) {
	d, _ := newTestDispatcher(t)
	children := make([]protocol.Request, 33)
	for i := range children {
		children[i] = &protocol.PingRequest{ID: uint64(i)}
	}
	resp := d.dispatchRequest(context.Background(), &protocol.BatchRequest{ID: 1, Requests: children})
	errResp := resp.(*protocol.ErrorResponse)
	require.Equal(t, int32(omgerrors.CodeInvalidParams), errResp.Code)
}

func TestNestedBatchYieldsInvalidParamsForThatChildOnly(t *testing.T) {
	d, _ := newTestDispatcher(t)
	batch := &protocol.BatchRequest{
		ID: 1,
		Requests: []protocol.Request{
			&protocol.PingRequest{ID: 1},
			&protocol.InvalidNestedBatchRequest{ID: 2},
		},
	}
	resp := d.dispatchRequest(context.Background(), batch)
	success := resp.(*protocol.SuccessResponse)
	results := success.Result.(protocol.BatchResultValue).Responses
	require.IsType(t, &protocol.SuccessResponse{}, results[0])
	errResp := results[1].(*protocol.ErrorResponse)
	require.Equal(t, int32(omgerrors.CodeInvalidParams), errResp.Code)
}

func TestQueryOver256BytesIsInvalidParams(t *testing.T) {
	d, _ := newTestDispatcher(t)
	long := make([]byte, 257)
	for i := range long {
		long[i] = 'a'
	}
	resp := d.dispatchRequest(context.Background(), &protocol.SearchRequest{ID: 1, Query: string(long)})
	errResp := resp.(*protocol.ErrorResponse)
	require.Equal(t, int32(omgerrors.CodeInvalidParams), errResp.Code)
}

func TestEmptyQueryReturnsEmptyResultNotError(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.dispatchRequest(context.Background(), &protocol.SearchRequest{ID: 1, Query: ""})
	success, ok := resp.(*protocol.SuccessResponse)
	require.True(t, ok)
	require.Empty(t, success.Result.(protocol.SearchResultValue).Packages)
}

func TestUnknownTagYieldsMethodNotFound(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.dispatchFrame(context.Background(), []byte{0xFE}, newSlidingWindowLimiter(time.Second, 1000))
	errResp := resp.(*protocol.ErrorResponse)
	require.Equal(t, int32(omgerrors.CodeMethodNotFound), errResp.Code)
	require.Contains(t, errResp.Message, "method")
}

func TestOversizeFrameYieldsParseErrorAndConnectionStaysOpen(t *testing.T) {
	d, _ := newTestDispatcher(t)
	server, client := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		d.HandleConnection(context.Background(), server)
		close(done)
	}()

	// Oversize length header: 0x01000001 = 16 MiB + 1.
	_, err := client.Write([]byte{0x01, 0x00, 0x00, 0x01})
	require.NoError(t, err)

	// The bad length prefix is answered with a PARSE_ERROR frame.
	client.SetDeadline(time.Now().Add(2 * time.Second))
	errFrame, err := protocol.ReadFrame(client)
	require.NoError(t, err)
	decodedErr, err := protocol.DecodeResponse(errFrame)
	require.NoError(t, err)
	require.IsType(t, &protocol.ErrorResponse{}, decodedErr)
	require.Equal(t, int32(omgerrors.CodeParseError), decodedErr.(*protocol.ErrorResponse).Code)

	// Connection should not be torn down by the daemon for a bad length
	// prefix read from the client side of a net.Pipe — verify by writing a
	// well-formed ping afterward and reading its response.
	ping := protocol.EncodeRequest(&protocol.PingRequest{ID: 42})
	require.NoError(t, protocol.WriteFrame(client, ping))

	resp, err := protocol.ReadFrame(client)
	require.NoError(t, err)
	decoded, err := protocol.DecodeResponse(resp)
	require.NoError(t, err)
	require.IsType(t, &protocol.SuccessResponse{}, decoded)

	client.Close()
	<-done
}

func TestRateLimitExceededReturnsRateLimitedError(t *testing.T) {
	d, _ := newTestDispatcher(t)
	limiter := newSlidingWindowLimiter(10*time.Second, 1)
	payload := protocol.EncodeRequest(&protocol.PingRequest{ID: 1})

	first := d.dispatchFrame(context.Background(), payload, limiter)
	require.IsType(t, &protocol.SuccessResponse{}, first)

	second := d.dispatchFrame(context.Background(), payload, limiter)
	errResp := second.(*protocol.ErrorResponse)
	require.Equal(t, int32(omgerrors.CodeRateLimited), errResp.Code)
}
