// Copyright 2026 Parsec DB, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	errkind "gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrTransport is a worker communication failure: connection refused,
	// timeout, malformed response.
	ErrTransport = errkind.NewKind("worker transport: %s")

	// ErrApplication is a failure the worker reported after receiving the
	// request.
	ErrApplication = errkind.NewKind("worker error: %s")

	// ErrMismatchedID is a response whose id does not repeat the request id.
	ErrMismatchedID = errkind.NewKind("worker response id %d does not match request id %d")
)

// WorkerAddr is the HTTP base of one worker's service endpoint.
type WorkerAddr struct {
	Name string
	Host string
	Port int
}

// URL joins the worker base with an endpoint path.
func (w WorkerAddr) URL(path string) string {
	return fmt.Sprintf("http://%s:%d%s", w.Host, w.Port, path)
}

// Client speaks the worker HTTP/JSON protocol. Transient transport
// failures of JSON requests are retried with exponential backoff inside
// the caller's context deadline; result-file fetches and pings are single
// attempts.
type Client struct {
	http       *http.Client
	maxRetries uint64
	nextID     uint64
}

// NewClient creates a Client. timeout bounds each individual HTTP exchange;
// maxRetries bounds retransmissions of one request.
func NewClient(timeout time.Duration, maxRetries uint64) *Client {
	return &Client{
		http:       &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

// NextID allocates a request id. Responses must repeat it.
func (c *Client) NextID() uint64 {
	return atomic.AddUint64(&c.nextID, 1)
}

// post sends one JSON request and decodes the response into out.
func (c *Client) post(ctx context.Context, url string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return ErrTransport.New(err.Error())
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(ErrTransport.New(err.Error()))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return ErrTransport.New(err.Error())
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			err := ErrTransport.New(fmt.Sprintf("%s returned %d: %s", url, resp.StatusCode, data))
			if resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return ErrTransport.New(err.Error())
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		log.WithFields(log.Fields{"url": url}).WithError(err).Debug("worker request failed")
		return err
	}
	return nil
}

func checkID(reqID, respID uint64) error {
	if reqID != respID {
		return ErrMismatchedID.New(respID, reqID)
	}
	return nil
}

// SubmitUberJob sends a batch of chunk fragments to a worker.
func (c *Client) SubmitUberJob(ctx context.Context, w WorkerAddr, req *UberJobRequest) (*UberJobResponse, error) {
	req.ID = c.NextID()
	var resp UberJobResponse
	if err := c.post(ctx, w.URL("/query"), req, &resp); err != nil {
		return nil, err
	}
	if err := checkID(req.ID, resp.ID); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, ErrApplication.New(resp.Error)
	}
	return &resp, nil
}

// CancelQuery stops a query's work on a worker. Cancellation is
// idempotent: cancelling finished or unknown work succeeds.
func (c *Client) CancelQuery(ctx context.Context, w WorkerAddr, queryID uint64, uberJobIDs []uint64) error {
	req := &CancelQueryRequest{ID: c.NextID(), QueryID: queryID, UberJobIDs: uberJobIDs}
	var resp Ack
	if err := c.post(ctx, w.URL("/query/cancel"), req, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return ErrApplication.New(resp.Error)
	}
	return nil
}

// CancelAfterRestart tells a worker to drop all work submitted before this
// czar restarted.
func (c *Client) CancelAfterRestart(ctx context.Context, w WorkerAddr, czarID, lastQueryID uint64) error {
	req := &CancelAfterRestartRequest{ID: c.NextID(), CzarID: czarID, LastQueryID: lastQueryID}
	var resp Ack
	if err := c.post(ctx, w.URL("/query/cancel-after-restart"), req, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return ErrApplication.New(resp.Error)
	}
	return nil
}

// FetchResultFile streams an uber-job result file to dst, returning the
// byte count.
func (c *Client) FetchResultFile(ctx context.Context, fileURL string, dst io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return 0, ErrTransport.New(err.Error())
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, ErrTransport.New(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, ErrTransport.New(fmt.Sprintf("result file %s returned %d", fileURL, resp.StatusCode))
	}
	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, ErrTransport.New(err.Error())
	}
	return n, nil
}

// ServiceCmd runs a service-management operation on a worker.
func (c *Client) ServiceCmd(ctx context.Context, w WorkerAddr, op ServiceOp) (*ServiceResponse, error) {
	req := &ServiceRequest{ID: c.NextID(), Type: op}
	var resp ServiceResponse
	if err := c.post(ctx, w.URL("/service"), req, &resp); err != nil {
		return nil, err
	}
	if err := checkID(req.ID, resp.ID); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunSql executes a statement on a worker database service.
func (c *Client) RunSql(ctx context.Context, w WorkerAddr, req *SqlRequest) (*SqlResponse, error) {
	req.ID = c.NextID()
	var resp SqlResponse
	if err := c.post(ctx, w.URL("/sql"), req, &resp); err != nil {
		return nil, err
	}
	if err := checkID(req.ID, resp.ID); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetReplicas reads a worker's chunk inventory.
func (c *Client) GetReplicas(ctx context.Context, w WorkerAddr, req *GetReplicasRequest) (*ReplicaResponse, error) {
	req.ID = c.NextID()
	return c.replicaCall(ctx, w, "/replicas/get", req, req.ID)
}

// SetReplicas replaces a worker's chunk inventory for a family.
func (c *Client) SetReplicas(ctx context.Context, w WorkerAddr, req *SetReplicasRequest) (*ReplicaResponse, error) {
	req.ID = c.NextID()
	return c.replicaCall(ctx, w, "/replicas/set", req, req.ID)
}

// AddReplica materializes chunk replicas on a worker.
func (c *Client) AddReplica(ctx context.Context, w WorkerAddr, req *AddReplicaRequest) (*ReplicaResponse, error) {
	req.ID = c.NextID()
	return c.replicaCall(ctx, w, "/replicas/add", req, req.ID)
}

// RemoveReplica drops chunk replicas from a worker.
func (c *Client) RemoveReplica(ctx context.Context, w WorkerAddr, req *RemoveReplicaRequest) (*ReplicaResponse, error) {
	req.ID = c.NextID()
	return c.replicaCall(ctx, w, "/replicas/remove", req, req.ID)
}

func (c *Client) replicaCall(ctx context.Context, w WorkerAddr, path string, req interface{}, reqID uint64) (*ReplicaResponse, error) {
	var resp ReplicaResponse
	if err := c.post(ctx, w.URL(path), req, &resp); err != nil {
		return nil, err
	}
	if err := checkID(reqID, resp.ID); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, ErrApplication.New(resp.Error)
	}
	return &resp, nil
}

// DirectorIndexData extracts director-index rows for one chunk.
func (c *Client) DirectorIndexData(ctx context.Context, w WorkerAddr, req *DirectorIndexRequest) (*DirectorIndexResponse, error) {
	req.ID = c.NextID()
	var resp DirectorIndexResponse
	if err := c.post(ctx, w.URL("/index/data"), req, &resp); err != nil {
		return nil, err
	}
	if err := checkID(req.ID, resp.ID); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, ErrApplication.New(resp.Error)
	}
	return &resp, nil
}

// Ping probes one worker service for liveness.
func (c *Client) Ping(ctx context.Context, w WorkerAddr, service string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.URL("/ping/"+service), nil)
	if err != nil {
		return ErrTransport.New(err.Error())
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ErrTransport.New(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ErrTransport.New(fmt.Sprintf("ping %s returned %d", w.Name, resp.StatusCode))
	}
	return nil
}
