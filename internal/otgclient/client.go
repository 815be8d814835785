// Copyright 2024 Google LLC
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

// Package otgclient is an otgsession.Remote backed by a gosnappi client,
// talking to an OTG traffic generator over gRPC or HTTP.
package otgclient

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	grpc_retry "github.com/grpc-ecosystem/go-grpc-middleware/retry"
	"github.com/open-traffic-generator/snappi/gosnappi"
	"github.com/openconfig/otgharness/internal/latency"
	"github.com/openconfig/otgharness/internal/otgconfig"
	"github.com/openconfig/otgharness/internal/otgmetrics"
	"github.com/openconfig/otgharness/internal/otgsession"
	"github.com/openconfig/otgharness/internal/testconfig"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"k8s.io/klog/v2"
)

// DefaultGrpcPort is used when a gRPC host carries no port.
const DefaultGrpcPort = "40051"

var (
	gosnappiNewAPIFn = gosnappi.NewApi
	grpcNewClientFn  = grpc.NewClient
)

var _ otgsession.Remote = (*Client)(nil)

// Options selects and tunes the transport.
type Options struct {
	// Host is an HTTP(S) URL, or host[:port] for gRPC.
	Host string
	GRPC bool
	// RequestTimeout bounds every gRPC call.
	RequestTimeout time.Duration
	// Retries is the number of times a gRPC call failing with Unavailable
	// or ResourceExhausted is retried.
	Retries uint
	// Recorder receives one "rpc/<Method>" sample per gRPC call. HTTP calls
	// are not recorded here.
	Recorder *latency.Recorder
}

// OptionsFromTestConfig maps the test environment onto client options.
func OptionsFromTestConfig(tc *testconfig.TestConfig, rec *latency.Recorder) Options {
	return Options{
		Host:           tc.OtgHost,
		GRPC:           tc.OtgGrpcTransport,
		RequestTimeout: tc.OtgRequestTimeout,
		Recorder:       rec,
	}
}

// Client is a gosnappi-backed otgsession.Remote. gosnappi calls take no
// context: ctx is checked before each call and RequestTimeout bounds the
// call itself.
type Client struct {
	api  gosnappi.Api
	conn *grpc.ClientConn
	rec  *latency.Recorder
}

// grpcTarget strips any scheme from host and adds the default port.
func grpcTarget(host string) (string, error) {
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		host = u.Host
	}
	if host == "" {
		return "", fmt.Errorf("empty gRPC host")
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, DefaultGrpcPort)
	}
	return host, nil
}

// New creates a client. For gRPC the connection is created lazily and the
// latency interceptors are installed on it.
func New(opts Options) (*Client, error) {
	rec := opts.Recorder
	if rec == nil {
		rec = latency.NewRecorder()
	}
	c := &Client{api: gosnappiNewAPIFn(), rec: rec}
	c.api.SetVersionCompatibilityCheck(true)

	if !opts.GRPC {
		klog.Infof("Using HTTP transport to %s", opts.Host)
		c.api.NewHttpTransport().SetLocation(opts.Host).SetVerify(false)
		return c, nil
	}

	target, err := grpcTarget(opts.Host)
	if err != nil {
		return nil, err
	}
	unary := []grpc.UnaryClientInterceptor{latency.UnaryClientInterceptor(rec)}
	stream := []grpc.StreamClientInterceptor{latency.StreamClientInterceptor(rec)}
	if opts.Retries > 0 {
		retryOpt := grpc_retry.WithMax(opts.Retries)
		unary = append(unary, grpc_retry.UnaryClientInterceptor(retryOpt))
		stream = append(stream, grpc_retry.StreamClientInterceptor(retryOpt))
	}
	conn, err := grpcNewClientFn(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(unary...),
		grpc.WithChainStreamInterceptor(stream...),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create gRPC client for %s: %w", target, err)
	}
	klog.Infof("Using gRPC transport to %s", target)
	c.conn = conn
	transport := c.api.NewGrpcTransport().SetClientConnection(conn)
	if opts.RequestTimeout != 0 {
		transport.SetRequestTimeout(opts.RequestTimeout)
	}
	return c, nil
}

// Close releases the gRPC connection, if any.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func warnings(w gosnappi.Warning) []string {
	if w == nil {
		return nil
	}
	return w.Warnings()
}

// ConfigToJSON renders cfg as the JSON sent to the generator, recording a
// "ConfigToJson" sample.
func (c *Client) ConfigToJSON(cfg *otgconfig.Config) (string, error) {
	defer c.rec.Timer(time.Now(), "ConfigToJson")
	sc, err := cfg.ToSnappi()
	if err != nil {
		return "", err
	}
	pb, err := sc.Marshal().ToProto()
	if err != nil {
		return "", err
	}
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(pb)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PushConfiguration converts cfg and sets it on the generator.
func (c *Client) PushConfiguration(ctx context.Context, cfg *otgconfig.Config) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sc, err := cfg.ToSnappi()
	if err != nil {
		return nil, err
	}
	w, err := c.api.SetConfig(sc)
	return warnings(w), err
}

func (c *Client) setControlState(ctx context.Context, cs gosnappi.ControlState) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, err := c.api.SetControlState(cs)
	return warnings(w), err
}

// SetProtocolState starts or stops all protocols.
func (c *Client) SetProtocolState(ctx context.Context, state otgsession.ControlState) ([]string, error) {
	cs := gosnappi.NewControlState()
	switch state {
	case otgsession.Start:
		cs.Protocol().All().SetState(gosnappi.StateProtocolAllState.START)
	case otgsession.Stop:
		cs.Protocol().All().SetState(gosnappi.StateProtocolAllState.STOP)
	default:
		return nil, fmt.Errorf("unknown protocol state %q", state)
	}
	return c.setControlState(ctx, cs)
}

// SetTransmitState starts or stops all flows.
func (c *Client) SetTransmitState(ctx context.Context, state otgsession.ControlState) ([]string, error) {
	cs := gosnappi.NewControlState()
	switch state {
	case otgsession.Start:
		cs.Traffic().FlowTransmit().SetState(gosnappi.StateTrafficFlowTransmitState.START)
	case otgsession.Stop:
		cs.Traffic().FlowTransmit().SetState(gosnappi.StateTrafficFlowTransmitState.STOP)
	default:
		return nil, fmt.Errorf("unknown transmit state %q", state)
	}
	return c.setControlState(ctx, cs)
}

// SetCaptureState starts or stops capture on ports.
func (c *Client) SetCaptureState(ctx context.Context, ports []string, state otgsession.ControlState) ([]string, error) {
	cs := gosnappi.NewControlState()
	switch state {
	case otgsession.Start:
		cs.Port().Capture().SetState(gosnappi.StatePortCaptureState.START).SetPortNames(ports)
	case otgsession.Stop:
		cs.Port().Capture().SetState(gosnappi.StatePortCaptureState.STOP).SetPortNames(ports)
	default:
		return nil, fmt.Errorf("unknown capture state %q", state)
	}
	return c.setControlState(ctx, cs)
}

// FlowMetrics fetches the metrics of every flow.
func (c *Client) FlowMetrics(ctx context.Context) ([]otgmetrics.FlowMetric, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mr := gosnappi.NewMetricsRequest()
	mr.Flow()
	res, err := c.api.GetMetrics(mr)
	if err != nil {
		return nil, err
	}
	return flowMetrics(res), nil
}

// PortMetrics fetches the metrics of every port.
func (c *Client) PortMetrics(ctx context.Context) ([]otgmetrics.PortMetric, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mr := gosnappi.NewMetricsRequest()
	mr.Port()
	res, err := c.api.GetMetrics(mr)
	if err != nil {
		return nil, err
	}
	return portMetrics(res), nil
}

// ProtocolMetrics fetches the per-peer or per-router metrics of kind.
func (c *Client) ProtocolMetrics(ctx context.Context, kind otgmetrics.ProtocolKind) (otgmetrics.ProtocolMetrics, error) {
	if err := ctx.Err(); err != nil {
		return otgmetrics.ProtocolMetrics{}, err
	}
	mr := gosnappi.NewMetricsRequest()
	switch kind {
	case otgmetrics.BGPv4:
		mr.Bgpv4()
	case otgmetrics.BGPv6:
		mr.Bgpv6()
	case otgmetrics.ISIS:
		mr.Isis()
	case otgmetrics.LLDP:
		mr.Lldp()
	case otgmetrics.OSPFv2:
		mr.Ospfv2()
	case otgmetrics.OSPFv3:
		mr.Ospfv3()
	case otgmetrics.LAG:
		mr.Lag()
	case otgmetrics.LACP:
		mr.Lacp()
	default:
		return otgmetrics.ProtocolMetrics{}, fmt.Errorf("unknown protocol kind %q", kind)
	}
	res, err := c.api.GetMetrics(mr)
	if err != nil {
		return otgmetrics.ProtocolMetrics{}, err
	}
	return protocolMetrics(kind, res), nil
}

// Neighbors fetches the ARP (ipv4) or ND (ipv6) table.
func (c *Client) Neighbors(ctx context.Context, layer otgmetrics.Layer) ([]otgmetrics.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sr := gosnappi.NewStatesRequest()
	switch layer {
	case otgmetrics.IPv4:
		sr.Ipv4Neighbors()
	case otgmetrics.IPv6:
		sr.Ipv6Neighbors()
	default:
		return nil, fmt.Errorf("unknown neighbor layer %q", layer)
	}
	res, err := c.api.GetStates(sr)
	if err != nil {
		return nil, err
	}
	return neighbors(layer, res), nil
}

// ProtocolStates fetches the learned state of kind: BGP prefixes, IS-IS
// LSPs, OSPF LSAs or LLDP neighbors.
func (c *Client) ProtocolStates(ctx context.Context, kind otgmetrics.StateKind) (otgmetrics.ProtocolStates, error) {
	if err := ctx.Err(); err != nil {
		return otgmetrics.ProtocolStates{}, err
	}
	sr := gosnappi.NewStatesRequest()
	switch kind {
	case otgmetrics.BGPPrefixes:
		sr.BgpPrefixes()
	case otgmetrics.ISISLsps:
		sr.IsisLsps()
	case otgmetrics.OSPFv2Lsas:
		sr.Ospfv2Lsas()
	case otgmetrics.OSPFv3Lsas:
		sr.Ospfv3Lsas()
	case otgmetrics.LLDPNeighbors:
		sr.LldpNeighbors()
	default:
		return otgmetrics.ProtocolStates{}, fmt.Errorf("unknown state kind %q", kind)
	}
	res, err := c.api.GetStates(sr)
	if err != nil {
		return otgmetrics.ProtocolStates{}, err
	}
	return protocolStates(kind, res), nil
}

// RawCapture fetches the pcap captured on port.
func (c *Client) RawCapture(ctx context.Context, port string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.api.GetCapture(gosnappi.NewCaptureRequest().SetPortName(port))
}
